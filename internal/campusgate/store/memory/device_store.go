package memory

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type DeviceStore struct {
	mu    sync.RWMutex
	known map[string]store.DeviceRecord
	keys  map[string]string // hex(key hash) -> gate id
	seen  map[string]time.Time
}

// NewDeviceStore seeds known gates.  Each entry is either "id" or
// "id:key"; gates without a key can heartbeat but never authenticate.
func NewDeviceStore(knownGates []string) *DeviceStore {
	s := &DeviceStore{
		known: make(map[string]store.DeviceRecord, len(knownGates)),
		keys:  make(map[string]string),
		seen:  make(map[string]time.Time),
	}
	for _, m := range knownGates {
		id, key, _ := strings.Cut(strings.TrimSpace(m), ":")
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		s.known[id] = store.DeviceRecord{GateID: id, Enabled: true}
		if key = strings.TrimSpace(key); key != "" {
			s.keys[hex.EncodeToString(store.HashDeviceKey(key))] = id
		}
	}
	return s
}

func (s *DeviceStore) IsKnown(_ context.Context, gateID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.known[gateID]
	return ok && rec.Enabled, nil
}

func (s *DeviceStore) MarkSeen(_ context.Context, gateID string, _ bool, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[gateID] = t
	return nil
}

func (s *DeviceStore) Authenticate(_ context.Context, keyHash []byte) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.keys[hex.EncodeToString(keyHash)]
	if !ok {
		return "", false, nil
	}
	rec, ok := s.known[id]
	if !ok || !rec.Enabled {
		return "", false, nil
	}
	return id, true, nil
}

func (s *DeviceStore) Register(_ context.Context, rec store.DeviceRecord, keyHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, id := range s.keys {
		if id == rec.GateID {
			delete(s.keys, k)
		}
	}
	s.known[rec.GateID] = rec
	if len(keyHash) > 0 {
		s.keys[hex.EncodeToString(keyHash)] = rec.GateID
	}
	return nil
}

func (s *DeviceStore) Counts(_ context.Context, onlineSince time.Time) (store.DeviceCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c store.DeviceCounts
	for id, rec := range s.known {
		if !rec.Enabled {
			continue
		}
		c.Total++
		if t, ok := s.seen[id]; ok && !t.Before(onlineSince) {
			c.Online++
		}
	}
	return c, nil
}
