package listsync

import (
	"context"
	"sync"
)

// delivers snapshots to one subscription callback, in order, on a dedicated
// goroutine. a latest-snapshot slot coalesces rapid updates: a snapshot the
// consumer never saw is superseded by the next one, which is safe because
// every snapshot is whole-state.
type snapshotDispatcher struct {
	ctx      context.Context
	cancel   context.CancelFunc
	callback SnapshotFunction

	stateLock sync.Mutex
	pending   bool
	snapshot  any
	err       error

	notify chan struct{}
}

func newSnapshotDispatcher(ctx context.Context, callback SnapshotFunction) *snapshotDispatcher {
	cancelCtx, cancel := context.WithCancel(ctx)
	dispatcher := &snapshotDispatcher{
		ctx:      cancelCtx,
		cancel:   cancel,
		callback: callback,
		notify:   make(chan struct{}, 1),
	}
	go dispatcher.run()
	return dispatcher
}

// replaces the undelivered snapshot, if any
func (self *snapshotDispatcher) Offer(snapshot any) {
	self.stateLock.Lock()
	self.snapshot = snapshot
	self.pending = true
	self.stateLock.Unlock()

	select {
	case self.notify <- struct{}{}:
	default:
	}
}

// terminal. any undelivered snapshot is delivered first, then the error,
// then delivery stops.
func (self *snapshotDispatcher) Fail(err error) {
	self.stateLock.Lock()
	if self.err == nil {
		self.err = err
	}
	self.stateLock.Unlock()

	select {
	case self.notify <- struct{}{}:
	default:
	}
}

// stops delivery promptly without a terminal error
func (self *snapshotDispatcher) Cancel() {
	self.cancel()
}

func (self *snapshotDispatcher) run() {
	defer self.cancel()
	for {
		select {
		case <-self.ctx.Done():
			return
		case <-self.notify:
		}

		self.stateLock.Lock()
		snapshot := self.snapshot
		pending := self.pending
		err := self.err
		self.snapshot = nil
		self.pending = false
		self.stateLock.Unlock()

		if pending {
			if self.ctx.Err() != nil {
				return
			}
			func() {
				defer recover()
				self.callback(snapshot, nil)
			}()
		}
		if err != nil {
			if self.ctx.Err() == nil {
				func() {
					defer recover()
					self.callback(nil, err)
				}()
			}
			return
		}
	}
}
