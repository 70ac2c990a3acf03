package listsync

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

// an in-process TreeStore. backs the self-hosted server and the tests.
// state is a nested map tree guarded by one lock; every subscription has its
// own delivery dispatcher, so a slow consumer never blocks writers or other
// consumers.
type MemoryTreeStore struct {
	ctx  context.Context
	keys *childKeyGenerator

	stateLock sync.Mutex
	root      map[string]any
	nextSubId int
	subs      map[int]*memoryTreeSub
}

type memoryTreeSub struct {
	path       string
	dispatcher *snapshotDispatcher
}

func NewMemoryTreeStore(ctx context.Context) *MemoryTreeStore {
	return &MemoryTreeStore{
		ctx:  ctx,
		keys: newChildKeyGenerator(),
		root: map[string]any{},
		subs: map[int]*memoryTreeSub{},
	}
}

func (self *MemoryTreeStore) Subscribe(path string, callback SnapshotFunction) (func(), error) {
	dispatcher := newSnapshotDispatcher(self.ctx, callback)

	self.stateLock.Lock()
	self.nextSubId += 1
	subId := self.nextSubId
	self.subs[subId] = &memoryTreeSub{
		path:       path,
		dispatcher: dispatcher,
	}
	// initial delivery of current state, even if empty. offered under the
	// lock so a concurrent write cannot be superseded by this older snapshot.
	dispatcher.Offer(copyValue(getAt(self.root, splitPath(path))))
	self.stateLock.Unlock()

	unsub := func() {
		self.stateLock.Lock()
		delete(self.subs, subId)
		self.stateLock.Unlock()
		dispatcher.Cancel()
	}
	return unsub, nil
}

func (self *MemoryTreeStore) Write(ctx context.Context, path string, value any) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		return &WriteError{Op: "write", Path: path, Err: errors.New("empty path")}
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	setAt(self.root, segments, copyValue(value))
	self.fanout(path)
	return nil
}

func (self *MemoryTreeStore) Delete(ctx context.Context, path string) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		return &WriteError{Op: "delete", Path: path, Err: errors.New("empty path")}
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	deleteAt(self.root, segments)
	self.fanout(path)
	return nil
}

func (self *MemoryTreeStore) GenerateChildKey(path string) (string, error) {
	key, err := self.keys.NextKey()
	if err != nil {
		return "", &WriteError{Op: "generate-key", Path: path, Err: err}
	}
	return key, nil
}

// must be called with `stateLock`.
// offers a fresh snapshot to every subscription whose subtree contains, or is
// contained by, the changed path.
func (self *MemoryTreeStore) fanout(changedPath string) {
	for _, sub := range self.subs {
		if pathsOverlap(sub.path, changedPath) {
			sub.dispatcher.Offer(copyValue(getAt(self.root, splitPath(sub.path))))
		}
	}
}

func pathsOverlap(a string, b string) bool {
	aSegments := splitPath(a)
	bSegments := splitPath(b)
	n := min(len(aSegments), len(bSegments))
	return slices.Equal(aSegments[:n], bSegments[:n])
}

// nil when the path is absent
func getAt(root map[string]any, segments []string) any {
	var current any = root
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = node[segment]
		if !ok {
			return nil
		}
	}
	if node, ok := current.(map[string]any); ok && len(node) == 0 {
		// empty nodes do not exist
		return nil
	}
	return current
}

// full replace of the node at the path, creating intermediate nodes
func setAt(root map[string]any, segments []string, value any) {
	node := root
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

// removes the node and all descendants, pruning emptied ancestors
func deleteAt(node map[string]any, segments []string) {
	if len(segments) == 1 {
		delete(node, segments[0])
		return
	}
	child, ok := node[segments[0]].(map[string]any)
	if !ok {
		return
	}
	deleteAt(child, segments[1:])
	if len(child) == 0 {
		delete(node, segments[0])
	}
}

func copyValue(value any) any {
	if node, ok := value.(map[string]any); ok {
		copied := make(map[string]any, len(node))
		for key, child := range node {
			copied[key] = copyValue(child)
		}
		return copied
	}
	return value
}
