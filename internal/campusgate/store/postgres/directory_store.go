package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type DirectoryStore struct {
	pool *pgxpool.Pool
}

func NewDirectoryStore(pool *pgxpool.Pool) *DirectoryStore {
	return &DirectoryStore{pool: pool}
}

func (s *DirectoryStore) SaveHolder(ctx context.Context, h store.Holder) error {
	if h == nil || strings.TrimSpace(h.HolderID()) == "" {
		return fmt.Errorf("SaveHolder: holder id is required")
	}

	var err error
	switch v := h.(type) {
	case *store.Student:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO students (student_id, registration_number, first_name, middle_name, surname,
			                      email, phone, department, program, student_status, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (student_id) DO UPDATE SET
				registration_number = EXCLUDED.registration_number,
				first_name          = EXCLUDED.first_name,
				middle_name         = EXCLUDED.middle_name,
				surname             = EXCLUDED.surname,
				email               = EXCLUDED.email,
				phone               = EXCLUDED.phone,
				department          = EXCLUDED.department,
				program             = EXCLUDED.program,
				student_status      = EXCLUDED.student_status,
				is_active           = EXCLUDED.is_active,
				updated_at          = now()
		`, v.ID, v.RegistrationNumber, v.FirstName, strPtr(v.MiddleName), v.Surname,
			strPtr(v.Email), strPtr(v.Phone), v.Department, v.Program, v.Status, v.IsActive)
	case *store.Staff:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO staff (staff_id, staff_number, first_name, middle_name, surname,
			                   phone, department, position, employment_status, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (staff_id) DO UPDATE SET
				staff_number      = EXCLUDED.staff_number,
				first_name        = EXCLUDED.first_name,
				middle_name       = EXCLUDED.middle_name,
				surname           = EXCLUDED.surname,
				phone             = EXCLUDED.phone,
				department        = EXCLUDED.department,
				position          = EXCLUDED.position,
				employment_status = EXCLUDED.employment_status,
				is_active         = EXCLUDED.is_active,
				updated_at        = now()
		`, v.ID, v.StaffNumber, v.FirstName, strPtr(v.MiddleName), v.Surname,
			strPtr(v.Phone), v.Department, v.Position, v.EmploymentStatus, v.IsActive)
	case *store.SecurityPersonnel:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO security_personnel (security_id, employee_id, badge_number, full_name, phone, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (security_id) DO UPDATE SET
				employee_id  = EXCLUDED.employee_id,
				badge_number = EXCLUDED.badge_number,
				full_name    = EXCLUDED.full_name,
				phone        = EXCLUDED.phone,
				is_active    = EXCLUDED.is_active,
				updated_at   = now()
		`, v.ID, v.EmployeeID, v.BadgeNumber, v.FullName, strPtr(v.Phone), v.IsActive)
	}
	if err != nil {
		return fmt.Errorf("save holder %s %s: %w", h.Kind(), h.HolderID(), err)
	}
	return nil
}

func (s *DirectoryStore) FindHolder(ctx context.Context, kind store.CardType, id string) (store.Holder, error) {
	var (
		h   store.Holder
		err error
	)
	switch kind {
	case store.CardTypeStudent:
		var st store.Student
		var middle, email, phone *string
		err = s.pool.QueryRow(ctx, `
			SELECT student_id, registration_number, first_name, middle_name, surname,
			       email, phone, department, program, student_status, is_active
			FROM students WHERE student_id = $1
		`, id).Scan(&st.ID, &st.RegistrationNumber, &st.FirstName, &middle, &st.Surname,
			&email, &phone, &st.Department, &st.Program, &st.Status, &st.IsActive)
		st.MiddleName, st.Email, st.Phone = deref(middle), deref(email), deref(phone)
		h = &st
	case store.CardTypeStaff:
		var sf store.Staff
		var middle, phone *string
		err = s.pool.QueryRow(ctx, `
			SELECT staff_id, staff_number, first_name, middle_name, surname,
			       phone, department, position, employment_status, is_active
			FROM staff WHERE staff_id = $1
		`, id).Scan(&sf.ID, &sf.StaffNumber, &sf.FirstName, &middle, &sf.Surname,
			&phone, &sf.Department, &sf.Position, &sf.EmploymentStatus, &sf.IsActive)
		sf.MiddleName, sf.Phone = deref(middle), deref(phone)
		h = &sf
	case store.CardTypeSecurity:
		var sp store.SecurityPersonnel
		var phone *string
		err = s.pool.QueryRow(ctx, `
			SELECT security_id, employee_id, badge_number, full_name, phone, is_active
			FROM security_personnel WHERE security_id = $1
		`, id).Scan(&sp.ID, &sp.EmployeeID, &sp.BadgeNumber, &sp.FullName, &phone, &sp.IsActive)
		sp.Phone = deref(phone)
		h = &sp
	default:
		return nil, fmt.Errorf("find holder: unknown kind %q", kind)
	}

	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find holder %s %s: %w", kind, id, err)
	}
	return h, nil
}

func (s *DirectoryStore) CountActive(ctx context.Context) (store.HolderCounts, error) {
	var c store.HolderCounts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM students           WHERE is_active),
			(SELECT COUNT(*) FROM staff              WHERE is_active),
			(SELECT COUNT(*) FROM security_personnel WHERE is_active)
	`).Scan(&c.Students, &c.Staff, &c.Security)
	if err != nil {
		return c, fmt.Errorf("count active holders: %w", err)
	}
	return c, nil
}

func (s *DirectoryStore) FindByRFID(ctx context.Context, rfid string) (*store.Card, error) {
	var (
		card     store.Card
		cardType string

		stuID, stuReg, stuFirst, stuMiddle, stuSurname     *string
		stuEmail, stuPhone, stuDept, stuProgram, stuStatus *string
		stuActive                                          *bool
		stfID, stfNum, stfFirst, stfMiddle, stfSurname     *string
		stfPhone, stfDept, stfPosition, stfEmployment      *string
		stfActive                                          *bool
		secID, secEmployee, secBadge, secName, secPhone    *string
		secActive                                          *bool
	)

	err := s.pool.QueryRow(ctx, `
		SELECT c.card_id, c.rfid_number, c.card_type, c.is_active, c.issued_at, c.expires_at,
		       s.student_id, s.registration_number, s.first_name, s.middle_name, s.surname,
		       s.email, s.phone, s.department, s.program, s.student_status, s.is_active,
		       f.staff_id, f.staff_number, f.first_name, f.middle_name, f.surname,
		       f.phone, f.department, f.position, f.employment_status, f.is_active,
		       p.security_id, p.employee_id, p.badge_number, p.full_name, p.phone, p.is_active
		FROM cards c
		LEFT JOIN students           s ON c.card_type = 'student'  AND s.student_id  = c.student_id
		LEFT JOIN staff              f ON c.card_type = 'staff'    AND f.staff_id    = c.staff_id
		LEFT JOIN security_personnel p ON c.card_type = 'security' AND p.security_id = c.security_id
		WHERE c.rfid_number = $1
	`, rfid).Scan(
		&card.ID, &card.RFIDNumber, &cardType, &card.IsActive, &card.IssuedAt, &card.ExpiresAt,
		&stuID, &stuReg, &stuFirst, &stuMiddle, &stuSurname,
		&stuEmail, &stuPhone, &stuDept, &stuProgram, &stuStatus, &stuActive,
		&stfID, &stfNum, &stfFirst, &stfMiddle, &stfSurname,
		&stfPhone, &stfDept, &stfPosition, &stfEmployment, &stfActive,
		&secID, &secEmployee, &secBadge, &secName, &secPhone, &secActive,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find card by rfid: %w", err)
	}

	card.Type = store.CardType(cardType)
	card.IssuedAt = card.IssuedAt.UTC()
	if card.ExpiresAt != nil {
		t := card.ExpiresAt.UTC()
		card.ExpiresAt = &t
	}

	switch {
	case stuID != nil:
		card.Holder = &store.Student{
			ID: *stuID, RegistrationNumber: deref(stuReg),
			FirstName: deref(stuFirst), MiddleName: deref(stuMiddle), Surname: deref(stuSurname),
			Email: deref(stuEmail), Phone: deref(stuPhone),
			Department: deref(stuDept), Program: deref(stuProgram),
			Status: deref(stuStatus), IsActive: stuActive != nil && *stuActive,
		}
	case stfID != nil:
		card.Holder = &store.Staff{
			ID: *stfID, StaffNumber: deref(stfNum),
			FirstName: deref(stfFirst), MiddleName: deref(stfMiddle), Surname: deref(stfSurname),
			Phone: deref(stfPhone), Department: deref(stfDept), Position: deref(stfPosition),
			EmploymentStatus: deref(stfEmployment), IsActive: stfActive != nil && *stfActive,
		}
	case secID != nil:
		card.Holder = &store.SecurityPersonnel{
			ID: *secID, EmployeeID: deref(secEmployee), BadgeNumber: deref(secBadge),
			FullName: deref(secName), Phone: deref(secPhone), IsActive: secActive != nil && *secActive,
		}
	}
	return &card, nil
}

func (s *DirectoryStore) IssueCard(ctx context.Context, card store.Card) error {
	if strings.TrimSpace(card.RFIDNumber) == "" || card.Holder == nil {
		return fmt.Errorf("issue card: rfid and holder are required")
	}
	if card.Type == "" {
		card.Type = card.Holder.Kind()
	}
	if card.Type != card.Holder.Kind() {
		return fmt.Errorf("issue card: card type %q does not match holder kind %q", card.Type, card.Holder.Kind())
	}
	table, column := holderTable(card.Type)
	if table == "" {
		return fmt.Errorf("issue card: unknown card type %q", card.Type)
	}
	if card.ID == "" {
		card.ID = newID()
	}
	if card.IssuedAt.IsZero() {
		card.IssuedAt = time.Now().UTC()
	}
	holderID := card.Holder.HolderID()

	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+table+" WHERE "+column+" = $1)", holderID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("issue card %s holder lookup: %w", card.RFIDNumber, err)
	}
	if !exists {
		return fmt.Errorf("issue card %s: holder: %w", card.RFIDNumber, store.ErrNotFound)
	}

	// The unique constraints on rfid_number and the holder column decide
	// conflicts; a holder deleted between the check and the insert fails
	// the foreign key instead.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cards (card_id, rfid_number, card_type, `+column+`, is_active, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, card.ID, card.RFIDNumber, string(card.Type), holderID, card.IsActive, card.IssuedAt, card.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("issue card %s: %w", card.RFIDNumber, store.ErrConflict)
		}
		return fmt.Errorf("issue card %s: %w", card.RFIDNumber, err)
	}
	return nil
}

func (s *DirectoryStore) SetActive(ctx context.Context, rfid string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cards SET is_active = $1, updated_at = now() WHERE rfid_number = $2
	`, active, rfid)
	if err != nil {
		return fmt.Errorf("set card active %s: %w", rfid, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *DirectoryStore) Counts(ctx context.Context) (store.CardCounts, error) {
	var c store.CardCounts
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM cards
	`).Scan(&c.Total, &c.Active)
	if err != nil {
		return c, fmt.Errorf("count cards: %w", err)
	}
	return c, nil
}

func holderTable(t store.CardType) (table, column string) {
	switch t {
	case store.CardTypeStudent:
		return "students", "student_id"
	case store.CardTypeStaff:
		return "staff", "staff_id"
	case store.CardTypeSecurity:
		return "security_personnel", "security_id"
	}
	return "", ""
}
