package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/memory"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// captureSink records entries synchronously.
type captureSink struct {
	mu      sync.Mutex
	entries []store.AccessLogEntry
}

func (c *captureSink) Record(e store.AccessLogEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return true
}

func (c *captureSink) Entries() []store.AccessLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.AccessLogEntry(nil), c.entries...)
}

type panicSink struct{}

func (panicSink) Record(store.AccessLogEntry) bool { panic("audit backend exploded") }

// refusingSink behaves like a recorder whose queue is full.
type refusingSink struct{}

func (refusingSink) Record(store.AccessLogEntry) bool { return false }

// stubCards answers FindByRFID with fn.
type stubCards struct {
	fn func(ctx context.Context, rfid string) (*store.Card, error)
}

func (s stubCards) FindByRFID(ctx context.Context, rfid string) (*store.Card, error) {
	return s.fn(ctx, rfid)
}
func (stubCards) IssueCard(context.Context, store.Card) error      { return nil }
func (stubCards) SetActive(context.Context, string, bool) error    { return nil }
func (stubCards) Counts(context.Context) (store.CardCounts, error) { return store.CardCounts{}, nil }

func student(id string, active bool) *store.Student {
	return &store.Student{
		ID:                 id,
		RegistrationNumber: "REG-" + id,
		FirstName:          "Ada",
		Surname:            "Lovelace",
		Email:              id + "@campus.test",
		Department:         "Computing",
		Program:            "BSc CS",
		Status:             "Enrolled",
		IsActive:           active,
	}
}

func staff(id string, active bool) *store.Staff {
	return &store.Staff{
		ID:               id,
		StaffNumber:      "STF-" + id,
		FirstName:        "Grace",
		Surname:          "Hopper",
		Department:       "Registry",
		Position:         "Officer",
		EmploymentStatus: "Active",
		IsActive:         active,
	}
}

func security(id string, active bool) *store.SecurityPersonnel {
	return &store.SecurityPersonnel{
		ID:          id,
		EmployeeID:  "EMP-" + id,
		BadgeNumber: "B-" + id,
		FullName:    "Alan Turing",
		IsActive:    active,
	}
}

// issue saves h and gives it a card.
func issue(t *testing.T, dir *memory.Directory, h store.Holder, rfid string, active bool, expires *time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, dir.SaveHolder(ctx, h))
	require.NoError(t, dir.IssueCard(ctx, store.Card{
		ID:         "card-" + rfid,
		RFIDNumber: rfid,
		Holder:     h,
		IsActive:   active,
		IssuedAt:   testNow.AddDate(-1, 0, 0),
		ExpiresAt:  expires,
	}))
}

func at(t time.Time) *time.Time { return &t }
