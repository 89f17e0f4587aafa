package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

// SeedStores is the set of stores SeedDev writes through.  Seeding goes
// through the store interfaces so every driver gets the same fixture.
type SeedStores struct {
	Holders store.HolderStore
	Cards   store.CardStore
	Devices store.DeviceStore
	Admins  store.AdminStore
}

type SeedDevOptions struct {
	DeviceKey     string // key for gate-main; default "dev-gate-key"
	AdminPassword string // default "admin"
	Now           time.Time
}

// SeedDevResult carries the generated secrets an operator needs to log in.
type SeedDevResult struct {
	AdminUsername   string
	AdminTOTPSecret string // empty when the admin already existed
}

// SeedDev loads a small campus: one gate, a card per holder kind, an
// expired student card, and an admin account.  Safe to run repeatedly.
func SeedDev(ctx context.Context, s SeedStores, opt SeedDevOptions) (SeedDevResult, error) {
	if opt.DeviceKey == "" {
		opt.DeviceKey = "dev-gate-key"
	}
	if opt.AdminPassword == "" {
		opt.AdminPassword = "admin"
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var res SeedDevResult

	if err := s.Devices.Register(ctx, store.DeviceRecord{
		GateID:      "gate-main",
		DisplayName: "Main Gate Reader",
		Location:    "Main Gate",
		Enabled:     true,
	}, store.HashDeviceKey(opt.DeviceKey)); err != nil {
		return res, fmt.Errorf("seed gate: %w", err)
	}

	holders := []store.Holder{
		&store.Student{
			ID: "stu-0001", RegistrationNumber: "REG/2024/001",
			FirstName: "Amina", Surname: "Otieno", Email: "amina.otieno@campus.test",
			Department: "Computer Science", Program: "BSc Computer Science",
			Status: "Enrolled", IsActive: true,
		},
		&store.Student{
			ID: "stu-0002", RegistrationNumber: "REG/2021/117",
			FirstName: "Brian", Surname: "Mwangi",
			Department: "Physics", Program: "BSc Physics",
			Status: "Enrolled", IsActive: true,
		},
		&store.Staff{
			ID: "stf-0001", StaffNumber: "STF-042",
			FirstName: "Grace", Surname: "Wanjiru",
			Department: "Library", Position: "Librarian",
			EmploymentStatus: "Active", IsActive: true,
		},
		&store.SecurityPersonnel{
			ID: "sec-0001", EmployeeID: "EMP-900", BadgeNumber: "B-17",
			FullName: "Peter Kamau", IsActive: false,
		},
	}
	for _, h := range holders {
		if err := s.Holders.SaveHolder(ctx, h); err != nil {
			return res, fmt.Errorf("seed holder %s: %w", h.HolderID(), err)
		}
	}

	yearOut := now.AddDate(1, 0, 0)
	yesterday := now.AddDate(0, 0, -1)
	cards := []store.Card{
		{ID: "card-0001", RFIDNumber: "CARD001", Type: store.CardTypeStudent, Holder: holders[0], IsActive: true, IssuedAt: now, ExpiresAt: &yearOut},
		{ID: "card-0002", RFIDNumber: "CARD002", Type: store.CardTypeStudent, Holder: holders[1], IsActive: true, IssuedAt: now.AddDate(-3, 0, 0), ExpiresAt: &yesterday},
		{ID: "card-0003", RFIDNumber: "CARD003", Type: store.CardTypeStaff, Holder: holders[2], IsActive: true, IssuedAt: now},
		{ID: "card-0004", RFIDNumber: "CARD004", Type: store.CardTypeSecurity, Holder: holders[3], IsActive: true, IssuedAt: now},
	}
	for _, c := range cards {
		if err := s.Cards.IssueCard(ctx, c); err != nil && !errors.Is(err, store.ErrConflict) {
			return res, fmt.Errorf("seed card %s: %w", c.RFIDNumber, err)
		}
	}

	res.AdminUsername = "admin"
	_, err := s.Admins.FindAdmin(ctx, res.AdminUsername)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return res, fmt.Errorf("seed admin lookup: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opt.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return res, fmt.Errorf("seed admin password: %w", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "CampusGate", AccountName: res.AdminUsername})
	if err != nil {
		return res, fmt.Errorf("seed admin totp: %w", err)
	}

	if err := s.Admins.SaveAdmin(ctx, store.Admin{
		ID:           "adm-0001",
		Username:     res.AdminUsername,
		FullName:     "Dev Administrator",
		PasswordHash: string(hash),
		TOTPSecret:   key.Secret(),
		IsActive:     true,
	}); err != nil {
		return res, fmt.Errorf("seed admin: %w", err)
	}
	res.AdminTOTPSecret = key.Secret()
	return res, nil
}
