package listsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

// reads snapshots until one satisfies `test`. successive writes may coalesce
// into a single snapshot, so tests never count deliveries.
func awaitStoreSnapshot(t *testing.T, snapshots chan any, test func(snapshot any) bool) any {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snapshot := <-snapshots:
			if test(snapshot) {
				return snapshot
			}
		case <-timeout:
			t.Fatal("timeout waiting for snapshot")
			return nil
		}
	}
}

func TestMemoryTreeStoreSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryTreeStore(ctx)

	snapshots := make(chan any, 16)
	unsub, err := store.Subscribe("compras", func(snapshot any, err error) {
		assert.Equal(t, err, nil)
		snapshots <- snapshot
	})
	assert.Equal(t, err, nil)
	defer unsub()

	// initial delivery of the empty subtree
	awaitStoreSnapshot(t, snapshots, func(snapshot any) bool {
		return snapshot == nil
	})

	err = store.Write(ctx, "compras/SEC1/info", map[string]any{
		"nombre":        "Casa",
		"fechaCreacion": "01/09/2026 10:30",
	})
	assert.Equal(t, err, nil)

	snapshot := awaitStoreSnapshot(t, snapshots, func(snapshot any) bool {
		return snapshot != nil
	})
	children := snapshot.(map[string]any)
	section := children["SEC1"].(map[string]any)
	info := section["info"].(map[string]any)
	assert.Equal(t, info["nombre"], "Casa")
}

func TestMemoryTreeStoreScopedSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryTreeStore(ctx)

	err := store.Write(ctx, "compras/SEC1/info", map[string]any{"nombre": "Casa"})
	assert.Equal(t, err, nil)
	err = store.Write(ctx, "compras/SEC1/ITEM1", map[string]any{"producto": "Pan"})
	assert.Equal(t, err, nil)
	err = store.Write(ctx, "compras/SEC2/info", map[string]any{"nombre": "Otra"})
	assert.Equal(t, err, nil)

	snapshots := make(chan any, 16)
	unsub, err := store.Subscribe("compras/SEC1", func(snapshot any, err error) {
		snapshots <- snapshot
	})
	assert.Equal(t, err, nil)
	defer unsub()

	// the initial snapshot is scoped to SEC1 and does not include SEC2
	snapshot := awaitStoreSnapshot(t, snapshots, func(snapshot any) bool {
		return snapshot != nil
	})
	children := snapshot.(map[string]any)
	assert.Equal(t, len(children), 2)
	assert.NotEqual(t, children["info"], nil)
	assert.NotEqual(t, children["ITEM1"], nil)

	// a write outside the subtree does not change the snapshot content.
	// a following write inside it must still arrive.
	err = store.Write(ctx, "compras/SEC2/ITEM9", map[string]any{"producto": "Cafe"})
	assert.Equal(t, err, nil)
	err = store.Write(ctx, "compras/SEC1/ITEM2", map[string]any{"producto": "Leche"})
	assert.Equal(t, err, nil)

	awaitStoreSnapshot(t, snapshots, func(snapshot any) bool {
		children, ok := snapshot.(map[string]any)
		if !ok {
			return false
		}
		_, hasItem2 := children["ITEM2"]
		_, hasOther := children["ITEM9"]
		return hasItem2 && !hasOther
	})
}

func TestMemoryTreeStoreDeleteSubtree(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryTreeStore(ctx)

	err := store.Write(ctx, "compras/SEC1/info", map[string]any{"nombre": "Casa"})
	assert.Equal(t, err, nil)
	err = store.Write(ctx, "compras/SEC1/ITEM1", map[string]any{"producto": "Pan"})
	assert.Equal(t, err, nil)

	snapshots := make(chan any, 16)
	unsub, err := store.Subscribe("compras", func(snapshot any, err error) {
		snapshots <- snapshot
	})
	assert.Equal(t, err, nil)
	defer unsub()

	awaitStoreSnapshot(t, snapshots, func(snapshot any) bool {
		return snapshot != nil
	})

	// removes the section and everything under it; the emptied root reads
	// as absent
	err = store.Delete(ctx, "compras/SEC1")
	assert.Equal(t, err, nil)

	awaitStoreSnapshot(t, snapshots, func(snapshot any) bool {
		return snapshot == nil
	})
}

func TestMemoryTreeStoreChildKeys(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryTreeStore(ctx)

	previous := ""
	for range 4096 {
		key, err := store.GenerateChildKey("compras")
		assert.Equal(t, err, nil)
		assert.NotEqual(t, key, "")
		assert.NotEqual(t, key, InfoKey)
		// unique and monotonically orderable at the generation path
		assert.Equal(t, previous < key, true)
		previous = key
	}
}

func TestMemoryTreeStoreUnsubIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryTreeStore(ctx)

	snapshots := make(chan any, 16)
	unsub, err := store.Subscribe("compras", func(snapshot any, err error) {
		snapshots <- snapshot
	})
	assert.Equal(t, err, nil)

	awaitStoreSnapshot(t, snapshots, func(snapshot any) bool {
		return snapshot == nil
	})

	unsub()
	unsub()

	err = store.Write(ctx, "compras/SEC1/info", map[string]any{"nombre": "Casa"})
	assert.Equal(t, err, nil)

	select {
	case snapshot := <-snapshots:
		t.Fatalf("delivery after unsubscribe: %v", snapshot)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMemoryTreeStoreEmptyPathRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryTreeStore(ctx)

	err := store.Write(ctx, "", map[string]any{"x": "y"})
	assert.NotEqual(t, err, nil)
	var writeErr *WriteError
	assert.Equal(t, errors.As(err, &writeErr), true)

	err = store.Delete(ctx, "")
	assert.NotEqual(t, err, nil)
}
