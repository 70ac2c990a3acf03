package listsync

import (
	"context"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// bridges websocket connections onto a backing TreeStore, one connection per
// client device. every connection gets its own reader loop; snapshot
// deliveries come in on the store's dispatcher goroutines, so outbound writes
// are serialized with a send lock.
type WsTreeServer struct {
	ctx      context.Context
	store    TreeStore
	upgrader websocket.Upgrader
}

func NewWsTreeServer(ctx context.Context, store TreeStore) *WsTreeServer {
	return &WsTreeServer{
		ctx:   ctx,
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (self *WsTreeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[ws]upgrade failed: %v", err)
		return
	}
	glog.Infof("[ws]client connected from %s", r.RemoteAddr)

	serverConn := &wsTreeServerConn{
		ctx:    self.ctx,
		store:  self.store,
		conn:   conn,
		unsubs: map[int]func(){},
	}
	serverConn.run()
}

type wsTreeServerConn struct {
	ctx   context.Context
	store TreeStore
	conn  *websocket.Conn

	sendLock sync.Mutex

	stateLock sync.Mutex
	unsubs    map[int]func()
}

func (self *wsTreeServerConn) run() {
	defer func() {
		self.stateLock.Lock()
		unsubs := self.unsubs
		self.unsubs = map[int]func(){}
		self.stateLock.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
		self.conn.Close()
	}()

	for {
		var message wsMessage
		if err := self.conn.ReadJSON(&message); err != nil {
			glog.Infof("[ws]client disconnected: %v", err)
			return
		}

		switch message.Op {
		case wsOpSubscribe:
			self.subscribe(message.SubId, message.Path)
		case wsOpUnsubscribe:
			self.unsubscribe(message.SubId)
		case wsOpWrite:
			err := self.store.Write(self.ctx, message.Path, message.Value)
			self.sendResult(message.RequestId, err)
		case wsOpDelete:
			err := self.store.Delete(self.ctx, message.Path)
			self.sendResult(message.RequestId, err)
		default:
			glog.Warningf("[ws]unknown op from client: %s", message.Op)
		}
	}
}

func (self *wsTreeServerConn) subscribe(subId int, path string) {
	unsub, err := self.store.Subscribe(path, func(snapshot any, err error) {
		if err != nil {
			self.send(&wsMessage{
				Op:    wsOpSnapshot,
				SubId: subId,
				Error: err.Error(),
			})
			self.unsubscribe(subId)
			return
		}
		self.send(&wsMessage{
			Op:    wsOpSnapshot,
			SubId: subId,
			Value: snapshot,
		})
	})
	if err != nil {
		self.send(&wsMessage{
			Op:    wsOpSnapshot,
			SubId: subId,
			Error: err.Error(),
		})
		return
	}

	self.stateLock.Lock()
	self.unsubs[subId] = unsub
	self.stateLock.Unlock()
}

func (self *wsTreeServerConn) unsubscribe(subId int) {
	self.stateLock.Lock()
	unsub, ok := self.unsubs[subId]
	delete(self.unsubs, subId)
	self.stateLock.Unlock()
	if ok {
		unsub()
	}
}

func (self *wsTreeServerConn) sendResult(requestId int, err error) {
	message := &wsMessage{
		Op:        wsOpResult,
		RequestId: requestId,
	}
	if err != nil {
		message.Error = err.Error()
	}
	self.send(message)
}

func (self *wsTreeServerConn) send(message *wsMessage) {
	self.sendLock.Lock()
	defer self.sendLock.Unlock()
	if err := self.conn.WriteJSON(message); err != nil {
		glog.Warningf("[ws]send failed: %v", err)
	}
}
