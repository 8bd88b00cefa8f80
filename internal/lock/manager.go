// Package lock implements time-boxed advisory edit locks over history items.
// Locks are a convention: nothing stops a client that ignores them from
// writing. The 5 minute expiry is the sole recovery path when an editor
// crashes without releasing.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pelden/lingobridge/internal/docstore"
	"github.com/pelden/lingobridge/internal/history"
	"github.com/pelden/lingobridge/internal/identity"
)

// TTL is the advisory lock duration.
const TTL = 5 * time.Minute

// errHeld aborts an atomic update when another identity holds the lock.
var errHeld = errors.New("lock held by another editor")

// Manager grants and releases edit locks on items keyed by
// (collection, item id), attributed to the injected identity.
type Manager struct {
	store    docstore.Store
	identity identity.Provider
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a Manager using the default TTL.
func NewManager(store docstore.Store, id identity.Provider) *Manager {
	return &Manager{store: store, identity: id, ttl: TTL, now: time.Now}
}

// Acquire attempts to take (or renew) the lock on an item. It returns
// (true, nil) when this identity now holds an unexpired lock, and
// (false, nil) when another identity does. An absent item yields
// (false, docstore.ErrNotFound).
//
// When the store supports atomic read-modify-write the check-then-set window
// is closed; otherwise two racing acquirers can both observe "no lock" and
// both succeed.
func (m *Manager) Acquire(ctx context.Context, collection, id string) (bool, error) {
	if u, ok := m.store.(docstore.AtomicUpdater); ok {
		err := u.UpdateFn(ctx, collection, id, func(data json.RawMessage) (json.RawMessage, error) {
			next, err := m.grant(data)
			if err != nil {
				return nil, err
			}
			return next, nil
		})
		if errors.Is(err, errHeld) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}

	// Fallback: read-then-write. The window between the two calls is a
	// known race (two editors can both be granted).
	doc, err := m.store.Get(ctx, collection, id)
	if err != nil {
		return false, err
	}
	next, err := m.grant(doc.Data)
	if errors.Is(err, errHeld) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := m.store.Set(ctx, collection, id, next); err != nil {
		return false, err
	}
	return true, nil
}

// grant decides the acquire outcome against the current document payload
// and returns the payload with a fresh lock written for this identity.
func (m *Manager) grant(data json.RawMessage) (json.RawMessage, error) {
	var item history.HistoryItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decoding item: %w", err)
	}

	now := m.now()
	self := m.identity.ID()
	if item.EditLock != nil && !item.EditLock.Expired(now) && item.EditLock.UserID != self {
		return nil, errHeld
	}

	// Absent, expired, or our own lock: (re)acquire. Renewal extends the
	// expiry from now, so repeated acquires by the owner are idempotent
	// and monotonic.
	item.EditLock = &history.EditLock{
		UserID:    self,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(m.ttl).UnixMilli(),
	}
	return json.Marshal(item)
}

// Release clears the lock if this identity owns it. Releasing a lock owned
// by someone else, or a lock that does not exist, is a silent no-op; so is
// releasing on an item that has vanished.
func (m *Manager) Release(ctx context.Context, collection, id string) error {
	release := func(data json.RawMessage) (json.RawMessage, error) {
		var item history.HistoryItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("decoding item: %w", err)
		}
		if item.EditLock == nil || item.EditLock.UserID != m.identity.ID() {
			return data, nil
		}
		item.EditLock = nil
		return json.Marshal(item)
	}

	var err error
	if u, ok := m.store.(docstore.AtomicUpdater); ok {
		err = u.UpdateFn(ctx, collection, id, release)
	} else {
		var doc docstore.Document
		doc, err = m.store.Get(ctx, collection, id)
		if err == nil {
			var next json.RawMessage
			if next, err = release(doc.Data); err == nil {
				err = m.store.Set(ctx, collection, id, next)
			}
		}
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return err
}

// IsLocked reports whether the item is locked against the given identity:
// a lock is blocking iff present, unexpired, and owned by someone else.
func IsLocked(item history.HistoryItem, selfID string, now time.Time) bool {
	return item.EditLock != nil && !item.EditLock.Expired(now) && item.EditLock.UserID != selfID
}
