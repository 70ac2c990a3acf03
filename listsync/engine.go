package listsync

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// orchestrates subscriptions against the remote store and translates local
// mutation intents into store writes. the engine never applies a mutation to
// a local projection itself; the caller observes its own writes through the
// normal subscription path, exactly like any other client.

// renaming a section preserves its `fechaCreacion`, which the engine can only
// know from a sections subscription that has already delivered that section
var ErrUnknownSection = errors.New("section has not been observed by an active sections subscription")

type SnapshotCallbackFunction[T any] func(entries []Entry[T])

func DefaultSyncEngineSettings() *SyncEngineSettings {
	return &SyncEngineSettings{
		RootPath: DefaultRootPath,
	}
}

type SyncEngineSettings struct {
	// path of the collection root in the remote tree
	RootPath string
}

type SyncEngine struct {
	ctx      context.Context
	store    TreeStore
	settings *SyncEngineSettings

	stateLock sync.Mutex
	// latest decoded `info` per section id, fed by every active sections
	// subscription
	sectionInfos map[string]Section
}

func NewSyncEngineWithDefaults(ctx context.Context, store TreeStore) *SyncEngine {
	return NewSyncEngine(ctx, store, DefaultSyncEngineSettings())
}

func NewSyncEngine(ctx context.Context, store TreeStore, settings *SyncEngineSettings) *SyncEngine {
	return &SyncEngine{
		ctx:          ctx,
		store:        store,
		settings:     settings,
		sectionInfos: map[string]Section{},
	}
}

// opens a change subscription on the collection root. children that fail to
// decode are skipped; the subscription stays active until closed or until the
// store terminates it.
func (self *SyncEngine) SubscribeSections() (*SectionSubscription, error) {
	sub := newSubscription[Section]()
	unsub, err := self.store.Subscribe(self.settings.RootPath, func(snapshot any, err error) {
		if err != nil {
			glog.Warningf("[sync]sections subscription terminated: %v", err)
			sub.fail(err)
			return
		}
		sub.deliver(self.decodeSections(snapshot))
	})
	if err != nil {
		return nil, err
	}
	sub.setUnsub(unsub)
	self.closeOnDone(sub.done, sub.Close)
	return sub, nil
}

// same pattern scoped to one section's children, excluding the reserved
// metadata key
func (self *SyncEngine) SubscribeItems(sectionId string) (*ItemSubscription, error) {
	sub := newSubscription[Item]()
	path := joinPath(self.settings.RootPath, sectionId)
	unsub, err := self.store.Subscribe(path, func(snapshot any, err error) {
		if err != nil {
			glog.Warningf("[sync]items subscription terminated for %s: %v", sectionId, err)
			sub.fail(err)
			return
		}
		sub.deliver(decodeItems(snapshot))
	})
	if err != nil {
		return nil, err
	}
	sub.setUnsub(unsub)
	self.closeOnDone(sub.done, sub.Close)
	return sub, nil
}

// requests a unique child key and writes the section info under it.
// returns before the store confirms the change back through the subscription
// path; the returned id is pending until then.
func (self *SyncEngine) CreateSection(ctx context.Context, name string, createdAt string) (string, error) {
	sectionId, err := self.store.GenerateChildKey(self.settings.RootPath)
	if err != nil {
		return "", err
	}
	infoPath := joinPath(self.settings.RootPath, sectionId, InfoKey)
	err = self.store.Write(ctx, infoPath, EncodeSectionInfo(Section{
		Name:      name,
		CreatedAt: createdAt,
	}))
	if err != nil {
		return "", err
	}
	glog.Infof("[sync]create section %s", sectionId)
	return sectionId, nil
}

// full replace of the section's info node with the new name and the
// existing `fechaCreacion`
func (self *SyncEngine) RenameSection(ctx context.Context, sectionId string, newName string) error {
	self.stateLock.Lock()
	section, ok := self.sectionInfos[sectionId]
	self.stateLock.Unlock()
	if !ok {
		return ErrUnknownSection
	}

	section.Name = newName
	infoPath := joinPath(self.settings.RootPath, sectionId, InfoKey)
	return self.store.Write(ctx, infoPath, EncodeSectionInfo(section))
}

// deletes the entire section subtree, items included
func (self *SyncEngine) DeleteSection(ctx context.Context, sectionId string) error {
	return self.store.Delete(ctx, joinPath(self.settings.RootPath, sectionId))
}

// existingId empty: requests a new key and writes the item there.
// existingId set: overwrites the item at that exact id. a full replace, not a
// merge; fields left empty in `item` become empty in the store.
// the create/update branch matches on presence of existingId only.
func (self *SyncEngine) UpsertItem(ctx context.Context, sectionId string, item Item, existingId string) (string, error) {
	itemId := existingId
	if itemId == "" {
		var err error
		itemId, err = self.store.GenerateChildKey(joinPath(self.settings.RootPath, sectionId))
		if err != nil {
			return "", err
		}
	}
	itemPath := joinPath(self.settings.RootPath, sectionId, itemId)
	err := self.store.Write(ctx, itemPath, EncodeItem(item))
	if err != nil {
		return "", err
	}
	return itemId, nil
}

func (self *SyncEngine) DeleteItem(ctx context.Context, sectionId string, itemId string) error {
	return self.store.Delete(ctx, joinPath(self.settings.RootPath, sectionId, itemId))
}

func (self *SyncEngine) decodeSections(snapshot any) []Entry[Section] {
	entries := []Entry[Section]{}
	sectionInfos := map[string]Section{}
	if children, ok := snapshot.(map[string]any); ok {
		// child keys are monotonic, so key order is arrival order
		sectionIds := maps.Keys(children)
		slices.Sort(sectionIds)
		for _, sectionId := range sectionIds {
			section, ok := DecodeSection(sectionId, children[sectionId])
			if !ok {
				glog.Warningf("[sync]skip undecodable section %s", sectionId)
				continue
			}
			entries = append(entries, Entry[Section]{Id: sectionId, Value: section})
			sectionInfos[sectionId] = section
		}
	}

	self.stateLock.Lock()
	self.sectionInfos = sectionInfos
	self.stateLock.Unlock()

	return entries
}

func decodeItems(snapshot any) []Entry[Item] {
	entries := []Entry[Item]{}
	if children, ok := snapshot.(map[string]any); ok {
		itemIds := maps.Keys(children)
		slices.Sort(itemIds)
		for _, itemId := range itemIds {
			item, ok := DecodeItem(itemId, children[itemId])
			if !ok {
				// the reserved metadata key lands here
				continue
			}
			entries = append(entries, Entry[Item]{Id: itemId, Value: item})
		}
	}
	return entries
}

// closes the subscription when the engine context ends
func (self *SyncEngine) closeOnDone(done chan struct{}, closeSub func()) {
	go func() {
		select {
		case <-self.ctx.Done():
			closeSub()
		case <-done:
		}
	}()
}

type SectionSubscription = Subscription[Section]
type ItemSubscription = Subscription[Item]

// a live binding of one remote subtree to a local projection.
// owned by the consumer that opened it; `Close` is idempotent.
type Subscription[T any] struct {
	projection        *Projection[T]
	monitor           *Monitor
	snapshotCallbacks *CallbackList[SnapshotCallbackFunction[T]]
	done              chan struct{}

	stateLock sync.Mutex
	unsub     func()
	closed    bool
	delivered bool
	err       error
}

func newSubscription[T any]() *Subscription[T] {
	return &Subscription[T]{
		projection:        NewProjection[T](),
		monitor:           NewMonitor(),
		snapshotCallbacks: NewCallbackList[SnapshotCallbackFunction[T]](),
		done:              make(chan struct{}),
	}
}

// the latest delivered sequence of (id, entity)
func (self *Subscription[T]) Snapshot() []Entry[T] {
	return self.projection.Snapshot()
}

// whether at least one snapshot has been delivered.
// the store delivers an initial snapshot shortly after subscribing, even when
// the subtree is empty.
func (self *Subscription[T]) Ready() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.delivered
}

// closed when a new snapshot lands or the subscription ends.
// see `Monitor` for the re-read loop this implies.
func (self *Subscription[T]) NotifyChannel() <-chan struct{} {
	return self.monitor.NotifyChannel()
}

// the callback runs on the store's delivery goroutine with the snapshot just
// applied to the projection. the returned function removes it.
func (self *Subscription[T]) AddSnapshotCallback(callback SnapshotCallbackFunction[T]) func() {
	callbackId := self.snapshotCallbacks.Add(callback)
	return func() {
		self.snapshotCallbacks.Remove(callbackId)
	}
}

// the terminal subscription error, if the store ended this subscription
func (self *Subscription[T]) Err() error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.err
}

// stops delivery promptly. safe to call multiple times. does not affect
// in-flight writes.
func (self *Subscription[T]) Close() {
	self.stateLock.Lock()
	if self.closed {
		self.stateLock.Unlock()
		return
	}
	self.closed = true
	unsub := self.unsub
	self.stateLock.Unlock()

	if unsub != nil {
		unsub()
	}
	close(self.done)
	self.monitor.NotifyAll()
}

func (self *Subscription[T]) setUnsub(unsub func()) {
	self.stateLock.Lock()
	closed := self.closed
	if !closed {
		self.unsub = unsub
	}
	self.stateLock.Unlock()

	if closed {
		// ended before the store handle arrived
		unsub()
	}
}

func (self *Subscription[T]) deliver(entries []Entry[T]) {
	self.stateLock.Lock()
	if self.closed {
		self.stateLock.Unlock()
		return
	}
	self.delivered = true
	self.stateLock.Unlock()

	self.projection.ReplaceAll(entries)
	for _, callback := range self.snapshotCallbacks.Get() {
		func() {
			defer recover()
			callback(entries)
		}()
	}
	self.monitor.NotifyAll()
}

func (self *Subscription[T]) fail(err error) {
	self.stateLock.Lock()
	if self.closed {
		self.stateLock.Unlock()
		return
	}
	self.closed = true
	self.err = err
	unsub := self.unsub
	self.stateLock.Unlock()

	if unsub != nil {
		unsub()
	}
	close(self.done)
	self.monitor.NotifyAll()
}
