package store

import (
	"context"
	"strings"
)

// CardType tags which holder kind a card is issued to.
type CardType string

const (
	CardTypeStudent  CardType = "student"
	CardTypeStaff    CardType = "staff"
	CardTypeSecurity CardType = "security"
)

func (t CardType) Valid() bool {
	switch t {
	case CardTypeStudent, CardTypeStaff, CardTypeSecurity:
		return true
	}
	return false
}

// Holder is the person a card is issued to.  The interface is sealed: the
// only implementations are *Student, *Staff and *SecurityPersonnel, so a
// type switch over a Holder is exhaustive.
type Holder interface {
	HolderID() string
	Kind() CardType
	Active() bool
	IdentityNumber() string
	DisplayName() string

	sealed()
}

// Student: Active reflects enrolment.
type Student struct {
	ID                 string
	RegistrationNumber string
	FirstName          string
	MiddleName         string
	Surname            string
	Email              string
	Phone              string
	Department         string
	Program            string
	Status             string // Enrolled | Withdrawn | Suspended
	IsActive           bool
}

func (s *Student) HolderID() string       { return s.ID }
func (s *Student) Kind() CardType         { return CardTypeStudent }
func (s *Student) Active() bool           { return s.IsActive }
func (s *Student) IdentityNumber() string { return s.RegistrationNumber }
func (s *Student) DisplayName() string    { return joinName(s.FirstName, s.Surname) }
func (*Student) sealed()                  {}

// Staff: Active reflects employment.
type Staff struct {
	ID               string
	StaffNumber      string
	FirstName        string
	MiddleName       string
	Surname          string
	Phone            string
	Department       string
	Position         string
	EmploymentStatus string // Active | Inactive | Terminated | Retired | On Leave
	IsActive         bool
}

func (s *Staff) HolderID() string       { return s.ID }
func (s *Staff) Kind() CardType         { return CardTypeStaff }
func (s *Staff) Active() bool           { return s.IsActive }
func (s *Staff) IdentityNumber() string { return s.StaffNumber }
func (s *Staff) DisplayName() string    { return joinName(s.FirstName, s.Surname) }
func (*Staff) sealed()                  {}

type SecurityPersonnel struct {
	ID          string
	EmployeeID  string
	BadgeNumber string
	FullName    string
	Phone       string
	IsActive    bool
}

func (s *SecurityPersonnel) HolderID() string       { return s.ID }
func (s *SecurityPersonnel) Kind() CardType         { return CardTypeSecurity }
func (s *SecurityPersonnel) Active() bool           { return s.IsActive }
func (s *SecurityPersonnel) IdentityNumber() string { return s.EmployeeID }
func (s *SecurityPersonnel) DisplayName() string    { return strings.TrimSpace(s.FullName) }
func (*SecurityPersonnel) sealed()                  {}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// HolderCounts is the number of active holders per kind.
type HolderCounts struct {
	Students int64
	Staff    int64
	Security int64
}

// HolderStore is the read side of the holder directory plus the minimal
// write used by directory management and seeding.
type HolderStore interface {
	SaveHolder(ctx context.Context, h Holder) error
	FindHolder(ctx context.Context, kind CardType, id string) (Holder, error)
	CountActive(ctx context.Context) (HolderCounts, error)
}
