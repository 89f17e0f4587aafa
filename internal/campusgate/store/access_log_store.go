package store

import (
	"context"
	"errors"
	"time"
)

type Decision string

const (
	DecisionGranted Decision = "granted"
	DecisionDenied  Decision = "denied"
)

// DenialReason values, in the order the decision engine checks them.
type DenialReason string

const (
	ReasonInvalidRFID      DenialReason = "invalid_rfid"
	ReasonCardInactive     DenialReason = "card_inactive"
	ReasonCardExpired      DenialReason = "card_expired"
	ReasonStudentInactive  DenialReason = "student_inactive"
	ReasonStaffInactive    DenialReason = "staff_inactive"
	ReasonSecurityInactive DenialReason = "security_inactive"
	ReasonInvalidCardType  DenialReason = "invalid_card_type"
	ReasonSystemError      DenialReason = "system_error"
)

// DenialReasons lists every reason in precedence order.
var DenialReasons = []DenialReason{
	ReasonInvalidRFID,
	ReasonCardInactive,
	ReasonCardExpired,
	ReasonStudentInactive,
	ReasonStaffInactive,
	ReasonSecurityInactive,
	ReasonInvalidCardType,
	ReasonSystemError,
}

func (r DenialReason) Valid() bool {
	for _, v := range DenialReasons {
		if r == v {
			return true
		}
	}
	return false
}

// InactiveReason maps a holder kind to its "<kind>_inactive" reason.
func InactiveReason(kind CardType) DenialReason {
	switch kind {
	case CardTypeStudent:
		return ReasonStudentInactive
	case CardTypeStaff:
		return ReasonStaffInactive
	case CardTypeSecurity:
		return ReasonSecurityInactive
	}
	return ReasonInvalidCardType
}

var ErrInvalidLogEntry = errors.New("invalid access log entry")

// AccessLogEntry is one access attempt.  Entries are immutable once
// appended; no store exposes update or delete.
type AccessLogEntry struct {
	ID             string
	RFIDNumber     string  // as scanned (trimmed), not normalised against the card
	CardID         *string // nil when the rfid matched no card
	Decision       Decision
	DenialReason   DenialReason // empty iff Decision == DecisionGranted
	Location       string
	DeviceID       string
	RemoteIP       string
	Timestamp      time.Time // captured when evaluation started
	ResponseTimeMs int64
}

// Validate enforces the granted/denial_reason invariant.
func (e AccessLogEntry) Validate() error {
	if e.ID == "" {
		return errors.Join(ErrInvalidLogEntry, errors.New("missing id"))
	}
	switch e.Decision {
	case DecisionGranted:
		if e.DenialReason != "" {
			return errors.Join(ErrInvalidLogEntry, errors.New("granted entry carries a denial reason"))
		}
	case DecisionDenied:
		if !e.DenialReason.Valid() {
			return errors.Join(ErrInvalidLogEntry, errors.New("denied entry needs a known denial reason"))
		}
	default:
		return errors.Join(ErrInvalidLogEntry, errors.New("unknown decision "+string(e.Decision)))
	}
	if e.Timestamp.IsZero() {
		return errors.Join(ErrInvalidLogEntry, errors.New("missing timestamp"))
	}
	return nil
}

// LogFilter narrows List.  Zero values mean "no constraint"; results are
// newest first.
type LogFilter struct {
	RFIDNumber   string
	CardID       string
	Decision     Decision
	DenialReason DenialReason
	Location     string
	DeviceID     string
	From         *time.Time // inclusive
	To           *time.Time // exclusive
	Limit        int
	Offset       int
}

type CountFilter struct {
	Decision Decision
	Since    *time.Time // inclusive
}

type LocationCount struct {
	Location string
	Count    int64
}

// AccessLogStore persists access decisions as an append-only audit log.
type AccessLogStore interface {
	Append(ctx context.Context, e AccessLogEntry) error
	Get(ctx context.Context, id string) (*AccessLogEntry, error)
	List(ctx context.Context, f LogFilter) ([]AccessLogEntry, error)
	Count(ctx context.Context, f CountFilter) (int64, error)
	CountByReason(ctx context.Context, since time.Time) (map[DenialReason]int64, error)
	TopLocations(ctx context.Context, since time.Time, limit int) ([]LocationCount, error)
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ClampLimit applies the list defaults shared by every store.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}
