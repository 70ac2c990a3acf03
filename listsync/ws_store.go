package listsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// a TreeStore over one websocket connection to a `WsTreeServer`.
// child keys are generated locally (monotonic ulids, in the manner of push
// ids), so key generation never round-trips.

var errClientClosed = errors.New("connection closed")

func DefaultWsTreeClientSettings() *WsTreeClientSettings {
	return &WsTreeClientSettings{
		HandshakeTimeout: 5 * time.Second,
		RequestTimeout:   30 * time.Second,
	}
}

type WsTreeClientSettings struct {
	HandshakeTimeout time.Duration
	// upper bound on write/delete confirmation, on top of the caller context
	RequestTimeout time.Duration
}

type WsTreeClient struct {
	ctx  context.Context
	conn *websocket.Conn
	// closed when the connection shuts down
	done     chan struct{}
	keys     *childKeyGenerator
	settings *WsTreeClientSettings

	sendLock sync.Mutex

	stateLock     sync.Mutex
	closed        bool
	nextSubId     int
	subs          map[int]*wsTreeSub
	nextRequestId int
	pending       map[int]chan error
}

type wsTreeSub struct {
	path       string
	dispatcher *snapshotDispatcher
}

func NewWsTreeClientWithDefaults(ctx context.Context, url string) (*WsTreeClient, error) {
	return NewWsTreeClient(ctx, url, DefaultWsTreeClientSettings())
}

func NewWsTreeClient(ctx context.Context, url string, settings *WsTreeClientSettings) (*WsTreeClient, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: settings.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	client := &WsTreeClient{
		ctx:      ctx,
		done:     make(chan struct{}),
		conn:     conn,
		keys:     newChildKeyGenerator(),
		settings: settings,
		subs:     map[int]*wsTreeSub{},
		pending:  map[int]chan error{},
	}
	go client.run()
	go func() {
		// a cancelled parent context closes the connection
		select {
		case <-ctx.Done():
			client.shutdown(ctx.Err())
		case <-client.done:
		}
	}()
	return client, nil
}

func (self *WsTreeClient) Subscribe(path string, callback SnapshotFunction) (func(), error) {
	dispatcher := newSnapshotDispatcher(self.ctx, callback)

	self.stateLock.Lock()
	if self.closed {
		self.stateLock.Unlock()
		dispatcher.Cancel()
		return nil, &SubscriptionError{Path: path, Err: errClientClosed}
	}
	self.nextSubId += 1
	subId := self.nextSubId
	self.subs[subId] = &wsTreeSub{
		path:       path,
		dispatcher: dispatcher,
	}
	self.stateLock.Unlock()

	err := self.send(&wsMessage{
		Op:    wsOpSubscribe,
		SubId: subId,
		Path:  path,
	})
	if err != nil {
		self.stateLock.Lock()
		delete(self.subs, subId)
		self.stateLock.Unlock()
		dispatcher.Cancel()
		return nil, &SubscriptionError{Path: path, Err: err}
	}

	unsub := func() {
		self.stateLock.Lock()
		_, active := self.subs[subId]
		delete(self.subs, subId)
		closed := self.closed
		self.stateLock.Unlock()

		if !active {
			return
		}
		dispatcher.Cancel()
		if !closed {
			self.send(&wsMessage{
				Op:    wsOpUnsubscribe,
				SubId: subId,
			})
		}
	}
	return unsub, nil
}

func (self *WsTreeClient) Write(ctx context.Context, path string, value any) error {
	return self.request(ctx, wsOpWrite, path, value)
}

func (self *WsTreeClient) Delete(ctx context.Context, path string) error {
	return self.request(ctx, wsOpDelete, path, nil)
}

func (self *WsTreeClient) GenerateChildKey(path string) (string, error) {
	key, err := self.keys.NextKey()
	if err != nil {
		return "", &WriteError{Op: "generate-key", Path: path, Err: err}
	}
	return key, nil
}

// closes the connection. open subscriptions are terminated with a
// *SubscriptionError and pending requests fail.
func (self *WsTreeClient) Close() {
	self.shutdown(errClientClosed)
}

func (self *WsTreeClient) request(ctx context.Context, op string, path string, value any) error {
	result := make(chan error, 1)

	self.stateLock.Lock()
	if self.closed {
		self.stateLock.Unlock()
		return &WriteError{Op: op, Path: path, Err: errClientClosed}
	}
	self.nextRequestId += 1
	requestId := self.nextRequestId
	self.pending[requestId] = result
	self.stateLock.Unlock()

	removePending := func() {
		self.stateLock.Lock()
		delete(self.pending, requestId)
		self.stateLock.Unlock()
	}

	err := self.send(&wsMessage{
		Op:        op,
		RequestId: requestId,
		Path:      path,
		Value:     value,
	})
	if err != nil {
		removePending()
		return &WriteError{Op: op, Path: path, Err: err}
	}

	select {
	case err := <-result:
		if err != nil {
			return &WriteError{Op: op, Path: path, Err: err}
		}
		return nil
	case <-ctx.Done():
		removePending()
		return &WriteError{Op: op, Path: path, Err: ctx.Err()}
	case <-self.done:
		removePending()
		return &WriteError{Op: op, Path: path, Err: errClientClosed}
	case <-time.After(self.settings.RequestTimeout):
		removePending()
		return &WriteError{Op: op, Path: path, Err: errors.New("request timeout")}
	}
}

func (self *WsTreeClient) send(message *wsMessage) error {
	self.sendLock.Lock()
	defer self.sendLock.Unlock()
	return self.conn.WriteJSON(message)
}

func (self *WsTreeClient) run() {
	for {
		var message wsMessage
		if err := self.conn.ReadJSON(&message); err != nil {
			self.shutdown(err)
			return
		}

		switch message.Op {
		case wsOpSnapshot:
			self.stateLock.Lock()
			sub, ok := self.subs[message.SubId]
			if ok && message.Error != "" {
				// terminated at the store, no further deliveries
				delete(self.subs, message.SubId)
			}
			self.stateLock.Unlock()
			if !ok {
				// already unsubscribed
				continue
			}
			if message.Error != "" {
				sub.dispatcher.Fail(&SubscriptionError{
					Path: sub.path,
					Err:  errors.New(message.Error),
				})
			} else {
				sub.dispatcher.Offer(message.Value)
			}
		case wsOpResult:
			self.stateLock.Lock()
			result, ok := self.pending[message.RequestId]
			delete(self.pending, message.RequestId)
			self.stateLock.Unlock()
			if ok {
				if message.Error != "" {
					result <- errors.New(message.Error)
				} else {
					result <- nil
				}
			}
		default:
			glog.Warningf("[ws]unknown op from server: %s", message.Op)
		}
	}
}

func (self *WsTreeClient) shutdown(err error) {
	self.stateLock.Lock()
	if self.closed {
		self.stateLock.Unlock()
		return
	}
	self.closed = true
	subs := self.subs
	pending := self.pending
	self.subs = map[int]*wsTreeSub{}
	self.pending = map[int]chan error{}
	self.stateLock.Unlock()

	glog.Infof("[ws]connection closed: %v", err)

	for _, sub := range subs {
		sub.dispatcher.Fail(&SubscriptionError{Path: sub.path, Err: err})
	}
	for _, result := range pending {
		result <- err
	}
	self.conn.Close()
	close(self.done)
}
