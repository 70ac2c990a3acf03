package listsync

import (
	"sync"

	"golang.org/x/exp/slices"
)

// the most recent fully-materialized view of one remote subtree, fed by a
// single subscription. every inbound snapshot is whole-subtree authoritative,
// so the only mutation is a full replace. readers never observe a partially
// replaced sequence.
type Projection[T any] struct {
	stateLock sync.Mutex
	entries   []Entry[T]
}

func NewProjection[T any]() *Projection[T] {
	return &Projection[T]{
		entries: []Entry[T]{},
	}
}

// atomically swaps the entire contents for `entries`
func (self *Projection[T]) ReplaceAll(entries []Entry[T]) {
	nextEntries := slices.Clone(entries)

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.entries = nextEntries
}

// the latest replaced sequence, in order. the returned slice is a copy.
func (self *Projection[T]) Snapshot() []Entry[T] {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.entries)
}

func (self *Projection[T]) Get(id string) (T, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	for _, entry := range self.entries {
		if entry.Id == id {
			return entry.Value, true
		}
	}
	var empty T
	return empty, false
}

func (self *Projection[T]) Len() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.entries)
}
