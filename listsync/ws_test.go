package listsync

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func newTestWsStore(t *testing.T) (context.Context, *WsTreeClient) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := NewMemoryTreeStore(ctx)
	server := httptest.NewServer(NewWsTreeServer(ctx, store))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := NewWsTreeClientWithDefaults(ctx, url)
	assert.Equal(t, err, nil)
	t.Cleanup(client.Close)

	return ctx, client
}

func TestWsStoreEndToEnd(t *testing.T) {
	ctx, client := newTestWsStore(t)

	engine := NewSyncEngineWithDefaults(ctx, client)

	sub, err := engine.SubscribeSections()
	assert.Equal(t, err, nil)
	defer sub.Close()

	awaitEntries(t, sub, func(entries []Entry[Section]) bool {
		return len(entries) == 0
	})

	sectionId, err := engine.CreateSection(ctx, "Groceries", "01/09/2026 10:30")
	assert.Equal(t, err, nil)

	entries := awaitEntries(t, sub, func(entries []Entry[Section]) bool {
		return len(entries) == 1
	})
	assert.Equal(t, entries[0].Id, sectionId)
	assert.Equal(t, entries[0].Value.Name, "Groceries")

	itemSub, err := engine.SubscribeItems(sectionId)
	assert.Equal(t, err, nil)
	defer itemSub.Close()

	itemId, err := engine.UpsertItem(ctx, sectionId, Item{
		Name:     "Pan",
		Quantity: "2",
		Price:    "1.5",
	}, "")
	assert.Equal(t, err, nil)

	itemEntries := awaitEntries(t, itemSub, func(entries []Entry[Item]) bool {
		return len(entries) == 1
	})
	assert.Equal(t, itemEntries[0].Id, itemId)
	assert.Equal(t, itemEntries[0].Value.Price, "1.5")

	err = engine.DeleteSection(ctx, sectionId)
	assert.Equal(t, err, nil)
	awaitEntries(t, sub, func(entries []Entry[Section]) bool {
		return len(entries) == 0
	})
}

func TestWsStoreTwoClientsConverge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := NewMemoryTreeStore(ctx)
	server := httptest.NewServer(NewWsTreeServer(ctx, store))
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	clientA, err := NewWsTreeClientWithDefaults(ctx, url)
	assert.Equal(t, err, nil)
	t.Cleanup(clientA.Close)
	clientB, err := NewWsTreeClientWithDefaults(ctx, url)
	assert.Equal(t, err, nil)
	t.Cleanup(clientB.Close)

	engineA := NewSyncEngineWithDefaults(ctx, clientA)
	engineB := NewSyncEngineWithDefaults(ctx, clientB)

	subB, err := engineB.SubscribeSections()
	assert.Equal(t, err, nil)
	defer subB.Close()

	// a mutation from one device reaches the other only through the store
	sectionId, err := engineA.CreateSection(ctx, "Groceries", "01/09/2026 10:30")
	assert.Equal(t, err, nil)

	entries := awaitEntries(t, subB, func(entries []Entry[Section]) bool {
		return len(entries) == 1
	})
	assert.Equal(t, entries[0].Id, sectionId)
}

func TestWsClientCloseTerminatesSubscriptions(t *testing.T) {
	_, client := newTestWsStore(t)

	errs := make(chan error, 4)
	unsub, err := client.Subscribe("compras", func(snapshot any, err error) {
		if err != nil {
			errs <- err
		}
	})
	assert.Equal(t, err, nil)
	defer unsub()

	client.Close()

	select {
	case err := <-errs:
		var subErr *SubscriptionError
		assert.Equal(t, errors.As(err, &subErr), true)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for subscription error")
	}

	// writes against a closed client fail with a write error
	writeErr := client.Write(context.Background(), "compras/X/info", map[string]any{"nombre": "X"})
	assert.NotEqual(t, writeErr, nil)
}
