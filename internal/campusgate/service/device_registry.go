package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

// DeviceRegistry fronts the gate store: which readers exist, which keys
// they present, and when they were last heard from.
type DeviceRegistry struct {
	store store.DeviceStore
	now   func() time.Time
}

func NewDeviceRegistry(st store.DeviceStore) *DeviceRegistry {
	return &DeviceRegistry{store: st, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DeviceRegistry) IsKnown(ctx context.Context, gateID string) (bool, error) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, gateID)
}

func (r *DeviceRegistry) NoteSeen(ctx context.Context, gateID string, known bool) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, gateID, known, r.now())
}

// Authenticate resolves a raw device key to its gate.  Blank keys never
// match.
func (r *DeviceRegistry) Authenticate(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, nil
	}
	return r.store.Authenticate(ctx, store.HashDeviceKey(key))
}

// Register commissions a gate under key.  Only the key's hash is stored.
func (r *DeviceRegistry) Register(ctx context.Context, rec store.DeviceRecord, key string) error {
	var hash []byte
	if key = strings.TrimSpace(key); key != "" {
		hash = store.HashDeviceKey(key)
	}
	return r.store.Register(ctx, rec, hash)
}

// Counts reports gates seen within window as online.
func (r *DeviceRegistry) Counts(ctx context.Context, window time.Duration) (store.DeviceCounts, error) {
	return r.store.Counts(ctx, r.now().Add(-window))
}
