package listsync

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestMonitorNotify(t *testing.T) {
	monitor := NewMonitor()

	notify := monitor.NotifyChannel()
	select {
	case <-notify:
		t.Fatal("notified without an update")
	default:
	}

	monitor.NotifyAll()
	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notify")
	}

	// the channel taken after an update only fires on the next update
	next := monitor.NotifyChannel()
	select {
	case <-next:
		t.Fatal("stale notification")
	default:
	}
	monitor.NotifyAll()
	<-next
}

func TestCallbackList(t *testing.T) {
	callbacks := NewCallbackList[func(int)]()
	assert.Equal(t, len(callbacks.Get()), 0)

	received := []int{}
	idA := callbacks.Add(func(v int) {
		received = append(received, v)
	})
	idB := callbacks.Add(func(v int) {
		received = append(received, v*10)
	})

	// in add order
	for _, callback := range callbacks.Get() {
		callback(1)
	}
	assert.Equal(t, received, []int{1, 10})

	callbacks.Remove(idA)
	// removing twice is a no-op
	callbacks.Remove(idA)
	assert.Equal(t, len(callbacks.Get()), 1)

	callbacks.Remove(idB)
	assert.Equal(t, len(callbacks.Get()), 0)
}
