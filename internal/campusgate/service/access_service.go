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

var ErrInvalidRFID = errors.New("rfid_number is required")

const (
	MsgGranted          = "Access granted"
	MsgInvalidRFID      = "Invalid RFID"
	MsgCardInactive     = "Card inactive"
	MsgCardExpired      = "Card expired"
	MsgStudentInactive  = "Student inactive"
	MsgStaffInactive    = "Staff inactive"
	MsgSecurityInactive = "Security personnel inactive"
	MsgInvalidCardType  = "Invalid card type"
	MsgSystemError      = "System error"
)

var denialMessages = map[store.DenialReason]string{
	store.ReasonInvalidRFID:      MsgInvalidRFID,
	store.ReasonCardInactive:     MsgCardInactive,
	store.ReasonCardExpired:      MsgCardExpired,
	store.ReasonStudentInactive:  MsgStudentInactive,
	store.ReasonStaffInactive:    MsgStaffInactive,
	store.ReasonSecurityInactive: MsgSecurityInactive,
	store.ReasonInvalidCardType:  MsgInvalidCardType,
	store.ReasonSystemError:      MsgSystemError,
}

// Message is the human-readable text sent to the gate for a denial reason.
func Message(r store.DenialReason) string {
	if r == "" {
		return MsgGranted
	}
	if m, ok := denialMessages[r]; ok {
		return m
	}
	return MsgSystemError
}

// Decision is the outcome of evaluating one scan.  Reason is empty iff
// Granted.  Card is the matched card, if any; Err carries the cause of a
// system_error.
type Decision struct {
	Granted bool
	Reason  store.DenialReason
	Card    *store.Card
	Err     error
}

func deny(reason store.DenialReason, card *store.Card) Decision {
	return Decision{Reason: reason, Card: card}
}

// AuditSink accepts finished audit entries.  Record must not block the
// caller for longer than it takes to hand the entry off, and reports
// whether the entry was taken for writing.
type AuditSink interface {
	Record(e store.AccessLogEntry) bool
}

// AccessService is the access decision engine.  It holds no per-request
// state; concurrent Check calls share only the stores.
type AccessService struct {
	cards  store.CardStore
	audit  AuditSink
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

type AccessOption func(*AccessService)

// WithClock replaces time.Now for evaluation timestamps and latency.
func WithClock(now func() time.Time) AccessOption {
	return func(s *AccessService) { s.now = now }
}

func WithIDGenerator(fn func() string) AccessOption {
	return func(s *AccessService) { s.newID = fn }
}

func NewAccessService(cards store.CardStore, audit AuditSink, logger *zap.Logger, opts ...AccessOption) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AccessService{
		cards:  cards,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check evaluates one scan and returns the gate's answer.  The only error
// is ErrInvalidRFID for a blank rfid_number, in which case nothing is
// looked up or logged.  Every other outcome, failures included, is a
// definitive grant or deny with exactly one audit entry.
func (s *AccessService) Check(ctx context.Context, req types.AccessCheckRequest) (types.AccessCheckResponse, error) {
	start := s.now()

	rfid := strings.TrimSpace(req.RFIDNumber)
	if rfid == "" {
		return types.AccessCheckResponse{Message: MsgInvalidRFID}, ErrInvalidRFID
	}
	return s.answer(req, rfid, start, s.Evaluate(ctx, rfid, start)), nil
}

// Fail answers a scan that could not reach the policy because a step in
// front of it failed, such as looking up the reader's key.  The gate gets
// a system_error denial and the scan is audited like any other.
func (s *AccessService) Fail(req types.AccessCheckRequest, cause error) (types.AccessCheckResponse, error) {
	start := s.now()

	rfid := strings.TrimSpace(req.RFIDNumber)
	if rfid == "" {
		return types.AccessCheckResponse{Message: MsgInvalidRFID}, ErrInvalidRFID
	}
	return s.answer(req, rfid, start, Decision{Reason: store.ReasonSystemError, Err: cause}), nil
}

// answer records the audit entry for d and builds the gate response.
// log_id is only returned when the sink accepted the entry.
func (s *AccessService) answer(req types.AccessCheckRequest, rfid string, start time.Time, d Decision) types.AccessCheckResponse {
	if d.Reason == store.ReasonSystemError {
		s.logger.Error("access check failed",
			zap.String("rfid", rfid),
			zap.String("device_id", req.DeviceID),
			zap.Error(d.Err),
		)
	}

	elapsed := s.now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	entry := store.AccessLogEntry{
		ID:             s.newID(),
		RFIDNumber:     rfid,
		Decision:       store.DecisionDenied,
		DenialReason:   d.Reason,
		Location:       strings.TrimSpace(req.Location),
		DeviceID:       strings.TrimSpace(req.DeviceID),
		RemoteIP:       req.RemoteIP,
		Timestamp:      start,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if d.Granted {
		entry.Decision = store.DecisionGranted
	}
	if d.Card != nil {
		id := d.Card.ID
		entry.CardID = &id
	}

	resp := types.AccessCheckResponse{
		AccessGranted:  d.Granted,
		Message:        Message(d.Reason),
		DenialReason:   string(d.Reason),
		ResponseTimeMs: entry.ResponseTimeMs,
	}
	if s.record(entry) {
		resp.LogID = entry.ID
	}
	if d.Granted {
		resp.Person = personPayload(d.Card.Holder)
	}
	return resp
}

// Evaluate applies the access policy to rfid at time now.  Checks run in
// a fixed order and the first failure decides the reason:
//
//	invalid_rfid > card_inactive > card_expired > invalid_card_type > <kind>_inactive
//
// A failed lookup, an expired ctx or a panic yields system_error.
func (s *AccessService) Evaluate(ctx context.Context, rfid string, now time.Time) (d Decision) {
	var card *store.Card
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Reason: store.ReasonSystemError, Card: card, Err: fmt.Errorf("evaluate panic: %v", r)}
		}
	}()

	card, err := s.lookup(ctx, rfid)
	if err != nil {
		return Decision{Reason: store.ReasonSystemError, Err: err}
	}
	if card == nil {
		return deny(store.ReasonInvalidRFID, nil)
	}
	if !card.IsActive {
		return deny(store.ReasonCardInactive, card)
	}
	if card.ExpiredAt(now) {
		return deny(store.ReasonCardExpired, card)
	}

	h := card.Holder
	if h == nil || h.Kind() != card.Type {
		return deny(store.ReasonInvalidCardType, card)
	}
	if !h.Active() {
		return deny(store.InactiveReason(h.Kind()), card)
	}
	return Decision{Granted: true, Card: card}
}

type lookupResult struct {
	card *store.Card
	err  error
}

// lookup bounds the card read by ctx even when the store ignores it, so a
// stuck backend still yields an answer before the gate times out.
func (s *AccessService) lookup(ctx context.Context, rfid string) (*store.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan lookupResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- lookupResult{err: fmt.Errorf("card lookup panic: %v", r)}
			}
		}()
		c, err := s.cards.FindByRFID(ctx, rfid)
		ch <- lookupResult{card: c, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("card lookup: %w", r.err)
		}
		return r.card, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("card lookup: %w", ctx.Err())
	}
}

// record hands the entry to the audit sink.  The audit path never affects
// the decision: a panicking sink is logged and counts as not accepted.
func (s *AccessService) record(e store.AccessLogEntry) (accepted bool) {
	if s.audit == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("audit sink panic", zap.String("log_id", e.ID), zap.Any("panic", r))
			accepted = false
		}
	}()
	return s.audit.Record(e)
}

func personPayload(h store.Holder) *types.Person {
	p := &types.Person{Type: string(h.Kind()), Name: h.DisplayName()}
	switch v := h.(type) {
	case *store.Student:
		p.FirstName, p.Surname = v.FirstName, v.Surname
		p.RegistrationNumber = v.RegistrationNumber
		p.Department, p.Program = v.Department, v.Program
		p.Status, p.Email, p.Phone = v.Status, v.Email, v.Phone
	case *store.Staff:
		p.FirstName, p.Surname = v.FirstName, v.Surname
		p.StaffNumber = v.StaffNumber
		p.Department, p.Position = v.Department, v.Position
		p.Status, p.Phone = v.EmploymentStatus, v.Phone
	case *store.SecurityPersonnel:
		p.EmployeeID, p.BadgeNumber = v.EmployeeID, v.BadgeNumber
		p.Phone = v.Phone
	}
	return p
}
