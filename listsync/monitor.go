package listsync

import (
	"sync"
)

// single-slot update notification. each `NotifyAll` closes the current update
// channel and replaces it with a new one, so a slow receiver sees at most one
// pending notification and re-reads the latest state when it wakes. this is
// the delivery model for whole-state snapshots, where a superseded
// notification carries no information of its own.
//
// usage:
//
//	notify := monitor.NotifyChannel()
//	// read state
//	<-notify
//	// state may have changed, read again
type Monitor struct {
	stateLock sync.Mutex
	update    chan struct{}
}

func NewMonitor() *Monitor {
	return &Monitor{
		update: make(chan struct{}),
	}
}

func (self *Monitor) NotifyChannel() <-chan struct{} {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.update
}

func (self *Monitor) NotifyAll() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	close(self.update)
	self.update = make(chan struct{})
}
