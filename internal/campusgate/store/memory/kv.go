package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type kvEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// KV is an in-memory store.KV with lazy expiry.
type KV struct {
	mu   sync.Mutex
	data map[string]kvEntry
	now  func() time.Time
}

func NewKV() *KV {
	return &KV{data: make(map[string]kvEntry), now: time.Now}
}

func (k *KV) Get(_ context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.live(key)
	if !ok {
		return "", store.ErrNotFound
	}
	return e.value, nil
}

func (k *KV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = kvEntry{value: value, expiresAt: k.expiry(ttl)}
	return nil
}

func (k *KV) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.data, key)
	return nil
}

func (k *KV) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.live(key)
	if !ok {
		k.data[key] = kvEntry{value: "1", expiresAt: k.expiry(ttl)}
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	k.data[key] = e
	return n, nil
}

// PruneExpired drops every entry that has expired as of now.  Entries are
// otherwise only released when read.
func (k *KV) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var n int64
	for key, e := range k.data {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(k.data, key)
			n++
		}
	}
	return n, nil
}

// Len counts stored entries, expired ones included.
func (k *KV) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.data)
}

func (k *KV) live(key string) (kvEntry, bool) {
	e, ok := k.data[key]
	if !ok {
		return kvEntry{}, false
	}
	if !e.expiresAt.IsZero() && !k.now().Before(e.expiresAt) {
		delete(k.data, key)
		return kvEntry{}, false
	}
	return e, true
}

func (k *KV) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return k.now().Add(ttl)
}
