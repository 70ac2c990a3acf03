package listsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// the remote store contract consumed by the engine.
// a path-addressed hierarchical key/value service with full-snapshot change
// subscriptions. the store is the sole owner of persisted state; everything
// local is a rebuildable cache.

// receives the full value at the subscribed path on every change under it,
// including an immediate initial delivery. snapshot is nil when the path is
// absent. within one subscription snapshots arrive in store order, and rapid
// changes may coalesce into a single snapshot.
// err is terminal: after a non-nil err the subscription is over and no
// further snapshots are delivered. err is a *SubscriptionError.
type SnapshotFunction func(snapshot any, err error)

type TreeStore interface {
	// opens a change subscription at `path`. the returned unsubscribe
	// function stops delivery promptly and is safe to call multiple times.
	Subscribe(path string, callback SnapshotFunction) (func(), error)

	// replaces the node at `path` with `value` (a scalar or nested mapping).
	// failures are surfaced as *WriteError.
	Write(ctx context.Context, path string, value any) error

	// produces a child key unique and monotonically orderable among keys
	// generated at `path`. never produces the reserved key `info`.
	GenerateChildKey(path string) (string, error)

	// removes the node and all descendants at `path`.
	// failures are surfaced as *WriteError.
	Delete(ctx context.Context, path string) error
}

// a write, delete or key generation call rejected by the store.
// fatal to the operation, recoverable by retry.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (self *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", self.Op, self.Path, self.Err)
}

func (self *WriteError) Unwrap() error {
	return self.Err
}

// the subscription itself failed at the store. delivered once through the
// snapshot callback, after which the subscription is terminated.
type SubscriptionError struct {
	Path string
	Err  error
}

func (self *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", self.Path, self.Err)
}

func (self *SubscriptionError) Unwrap() error {
	return self.Err
}

// child keys are monotonic ulids: unique, orderable by generation time, and
// structurally never equal to the reserved key `info` (26 chars versus 4).
type childKeyGenerator struct {
	stateLock sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func newChildKeyGenerator() *childKeyGenerator {
	return &childKeyGenerator{
		entropy: ulid.Monotonic(ulid.DefaultEntropy(), 0),
	}
}

func (self *childKeyGenerator) NextKey() (string, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	key, err := ulid.New(ulid.Timestamp(time.Now()), self.entropy)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}
