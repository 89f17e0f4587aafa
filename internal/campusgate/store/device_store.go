package store

import (
	"context"
	"crypto/sha256"
	"time"
)

// DeviceRecord is a card reader installed at a gate.
type DeviceRecord struct {
	GateID      string
	DisplayName string
	Location    string
	Enabled     bool
	LastSeen    time.Time
}

type DeviceCounts struct {
	Total  int64
	Online int64 // seen since the cutoff passed to Counts
}

type DeviceStore interface {
	IsKnown(ctx context.Context, gateID string) (bool, error)
	MarkSeen(ctx context.Context, gateID string, known bool, t time.Time) error

	// Authenticate resolves a device key hash to the gate that owns it.
	// ok is false for unknown keys and for disabled, uncommissioned or
	// revoked gates.
	Authenticate(ctx context.Context, keyHash []byte) (gateID string, ok bool, err error)

	// Register creates or re-commissions a gate with the given key hash.
	Register(ctx context.Context, rec DeviceRecord, keyHash []byte) error

	Counts(ctx context.Context, onlineSince time.Time) (DeviceCounts, error)
}

// HashDeviceKey is the digest stored for a device key.
func HashDeviceKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}
