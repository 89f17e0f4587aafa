package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type holderKey struct {
	kind store.CardType
	id   string
}

// Directory holds holders and cards together so FindByRFID can resolve the
// holder under the same read lock.  It implements store.HolderStore and
// store.CardStore.
type Directory struct {
	mu       sync.RWMutex
	holders  map[holderKey]store.Holder
	cards    map[string]store.Card // by rfid
	byHolder map[holderKey]string  // holder -> rfid
}

func NewDirectory() *Directory {
	return &Directory{
		holders:  make(map[holderKey]store.Holder),
		cards:    make(map[string]store.Card),
		byHolder: make(map[holderKey]string),
	}
}

func (d *Directory) SaveHolder(_ context.Context, h store.Holder) error {
	if h == nil || h.HolderID() == "" {
		return fmt.Errorf("SaveHolder: holder id is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holders[holderKey{h.Kind(), h.HolderID()}] = copyHolder(h)
	return nil
}

func (d *Directory) FindHolder(_ context.Context, kind store.CardType, id string) (store.Holder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.holders[holderKey{kind, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyHolder(h), nil
}

func (d *Directory) CountActive(_ context.Context) (store.HolderCounts, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var c store.HolderCounts
	for _, h := range d.holders {
		if !h.Active() {
			continue
		}
		switch h.Kind() {
		case store.CardTypeStudent:
			c.Students++
		case store.CardTypeStaff:
			c.Staff++
		case store.CardTypeSecurity:
			c.Security++
		}
	}
	return c, nil
}

func (d *Directory) FindByRFID(_ context.Context, rfid string) (*store.Card, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.cards[rfid]
	if !ok {
		return nil, nil
	}
	out := c
	out.Holder = nil
	if h, ok := d.holders[holderKey{c.Type, c.Holder.HolderID()}]; ok {
		out.Holder = copyHolder(h)
	}
	if c.ExpiresAt != nil {
		exp := *c.ExpiresAt
		out.ExpiresAt = &exp
	}
	return &out, nil
}

func (d *Directory) IssueCard(_ context.Context, card store.Card) error {
	if card.RFIDNumber == "" || card.Holder == nil {
		return fmt.Errorf("IssueCard: rfid and holder are required")
	}
	if card.Type == "" {
		card.Type = card.Holder.Kind()
	}
	if card.Type != card.Holder.Kind() {
		return fmt.Errorf("IssueCard: card type %q does not match holder kind %q", card.Type, card.Holder.Kind())
	}
	if card.IssuedAt.IsZero() {
		card.IssuedAt = time.Now().UTC()
	}

	hk := holderKey{card.Type, card.Holder.HolderID()}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.holders[hk]; !ok {
		return fmt.Errorf("IssueCard %s: holder: %w", card.RFIDNumber, store.ErrNotFound)
	}
	if _, ok := d.cards[card.RFIDNumber]; ok {
		return fmt.Errorf("IssueCard %s: rfid: %w", card.RFIDNumber, store.ErrConflict)
	}
	if _, ok := d.byHolder[hk]; ok {
		return fmt.Errorf("IssueCard %s: holder already has a card: %w", card.RFIDNumber, store.ErrConflict)
	}
	d.cards[card.RFIDNumber] = card
	d.byHolder[hk] = card.RFIDNumber
	return nil
}

func (d *Directory) SetActive(_ context.Context, rfid string, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cards[rfid]
	if !ok {
		return store.ErrNotFound
	}
	c.IsActive = active
	d.cards[rfid] = c
	return nil
}

func (d *Directory) Counts(_ context.Context) (store.CardCounts, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c := store.CardCounts{Total: int64(len(d.cards))}
	for _, card := range d.cards {
		if card.IsActive {
			c.Active++
		}
	}
	return c, nil
}

// DeleteHolder drops a holder while leaving its card in place.  Test-only
// helper for exercising the missing-holder path.
func (d *Directory) DeleteHolder(kind store.CardType, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.holders, holderKey{kind, id})
}

func copyHolder(h store.Holder) store.Holder {
	switch v := h.(type) {
	case *store.Student:
		c := *v
		return &c
	case *store.Staff:
		c := *v
		return &c
	case *store.SecurityPersonnel:
		c := *v
		return &c
	}
	return h
}
