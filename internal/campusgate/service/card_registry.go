package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
)

// CardRegistry is the admin-facing side of the card store: issuance and
// activation changes.  The decision engine reads the store directly.
type CardRegistry struct {
	cards  store.CardStore
	logger *zap.Logger
}

func NewCardRegistry(cards store.CardStore, logger *zap.Logger) *CardRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardRegistry{cards: cards, logger: logger}
}

// Lookup returns store.ErrNotFound when no card carries rfid.
func (r *CardRegistry) Lookup(ctx context.Context, rfid string) (*store.Card, error) {
	rfid = strings.TrimSpace(rfid)
	if rfid == "" {
		return nil, ErrInvalidRFID
	}
	c, err := r.cards.FindByRFID(ctx, rfid)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, store.ErrNotFound
	}
	return c, nil
}

// Issue assigns a new card to an existing holder.  The card id is
// generated when empty.
func (r *CardRegistry) Issue(ctx context.Context, card store.Card) (store.Card, error) {
	card.RFIDNumber = strings.TrimSpace(card.RFIDNumber)
	if card.RFIDNumber == "" {
		return card, ErrInvalidRFID
	}
	if card.Holder == nil {
		return card, fmt.Errorf("issue card %s: holder is required", card.RFIDNumber)
	}
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.Type == "" {
		card.Type = card.Holder.Kind()
	}
	if card.IssuedAt.IsZero() {
		card.IssuedAt = time.Now().UTC()
	}
	if err := r.cards.IssueCard(ctx, card); err != nil {
		return card, err
	}
	r.logger.Info("card issued",
		zap.String("rfid", card.RFIDNumber),
		zap.String("card_type", string(card.Type)),
		zap.String("holder_id", card.Holder.HolderID()),
	)
	return card, nil
}

func (r *CardRegistry) Activate(ctx context.Context, rfid string) (types.CardStateResponse, error) {
	return r.setActive(ctx, rfid, true)
}

func (r *CardRegistry) Deactivate(ctx context.Context, rfid string) (types.CardStateResponse, error) {
	return r.setActive(ctx, rfid, false)
}

func (r *CardRegistry) setActive(ctx context.Context, rfid string, active bool) (types.CardStateResponse, error) {
	rfid = strings.TrimSpace(rfid)
	if rfid == "" {
		return types.CardStateResponse{}, ErrInvalidRFID
	}
	if err := r.cards.SetActive(ctx, rfid, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.CardStateResponse{}, store.ErrNotFound
		}
		return types.CardStateResponse{}, err
	}

	msg := "Card deactivated successfully"
	if active {
		msg = "Card activated successfully"
	}
	r.logger.Info("card state changed", zap.String("rfid", rfid), zap.Bool("active", active))
	return types.CardStateResponse{RFIDNumber: rfid, IsActive: active, Message: msg}, nil
}
