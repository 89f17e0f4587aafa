package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

// AccessLogStore is an in-memory append-only log of access decisions.
// It is intended for use in tests and dev environments.
type AccessLogStore struct {
	mu      sync.Mutex
	entries []store.AccessLogEntry
}

func NewAccessLogStore() *AccessLogStore {
	return &AccessLogStore{}
}

func (s *AccessLogStore) Append(_ context.Context, e store.AccessLogEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.ID == e.ID {
			return fmt.Errorf("Append %s: %w", e.ID, store.ErrConflict)
		}
	}
	s.entries = append(s.entries, cloneEntry(e))
	return nil
}

func (s *AccessLogStore) Get(_ context.Context, id string) (*store.AccessLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			out := cloneEntry(e)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *AccessLogStore) List(_ context.Context, f store.LogFilter) ([]store.AccessLogEntry, error) {
	s.mu.Lock()
	matched := make([]store.AccessLogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if matchFilter(e, f) {
			matched = append(matched, cloneEntry(e))
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if f.Offset >= len(matched) {
		return []store.AccessLogEntry{}, nil
	}
	if f.Offset > 0 {
		matched = matched[f.Offset:]
	}
	if limit := store.ClampLimit(f.Limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *AccessLogStore) Count(_ context.Context, f store.CountFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if f.Decision != "" && e.Decision != f.Decision {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *AccessLogStore) CountByReason(_ context.Context, since time.Time) (map[store.DenialReason]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[store.DenialReason]int64)
	for _, e := range s.entries {
		if e.Decision != store.DecisionDenied || e.Timestamp.Before(since) {
			continue
		}
		out[e.DenialReason]++
	}
	return out, nil
}

func (s *AccessLogStore) TopLocations(_ context.Context, since time.Time, limit int) ([]store.LocationCount, error) {
	s.mu.Lock()
	counts := make(map[string]int64)
	for _, e := range s.entries {
		if e.Location == "" || e.Timestamp.Before(since) {
			continue
		}
		counts[e.Location]++
	}
	s.mu.Unlock()

	out := make([]store.LocationCount, 0, len(counts))
	for loc, n := range counts {
		out = append(out, store.LocationCount{Location: loc, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Location < out[j].Location
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns a copy of all appended entries in append order.
// Test-only helper.
func (s *AccessLogStore) Entries() []store.AccessLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AccessLogEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func matchFilter(e store.AccessLogEntry, f store.LogFilter) bool {
	if f.RFIDNumber != "" && e.RFIDNumber != f.RFIDNumber {
		return false
	}
	if f.CardID != "" && (e.CardID == nil || *e.CardID != f.CardID) {
		return false
	}
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if f.DenialReason != "" && e.DenialReason != f.DenialReason {
		return false
	}
	if f.Location != "" && e.Location != f.Location {
		return false
	}
	if f.DeviceID != "" && e.DeviceID != f.DeviceID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.Timestamp.Before(*f.To) {
		return false
	}
	return true
}

func cloneEntry(e store.AccessLogEntry) store.AccessLogEntry {
	if e.CardID != nil {
		id := *e.CardID
		e.CardID = &id
	}
	return e
}
