package store

import (
	"context"
	"time"
)

// Card binds an RFID number to exactly one holder.
//
// Type is the tag persisted with the card.  Holder is nil when the row the
// tag points at is missing, which callers treat as a data integrity failure.
type Card struct {
	ID         string
	RFIDNumber string
	Type       CardType
	Holder     Holder
	IsActive   bool
	IssuedAt   time.Time
	ExpiresAt  *time.Time
}

// ExpiredAt reports whether the card's expiry is strictly before t.
func (c *Card) ExpiredAt(t time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(t)
}

type CardCounts struct {
	Total  int64
	Active int64
}

// CardStore is the card registry.  FindByRFID must return the card and its
// holder from a single read and must observe every committed SetActive /
// IssueCard; no caching is allowed on that path.
type CardStore interface {
	// FindByRFID returns (nil, nil) when no card carries the rfid.
	FindByRFID(ctx context.Context, rfid string) (*Card, error)

	// IssueCard fails with ErrConflict when the rfid or the holder already
	// has a card.  card.Holder must reference an existing holder.
	IssueCard(ctx context.Context, card Card) error

	// SetActive fails with ErrNotFound when no card carries the rfid.
	SetActive(ctx context.Context, rfid string, active bool) error

	Counts(ctx context.Context) (CardCounts, error)
}
