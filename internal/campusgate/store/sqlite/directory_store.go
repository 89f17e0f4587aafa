package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	dbpkg "github.com/BrandonDHaskell/CampusGate/server/internal/db"
)

// DirectoryStore serves the holder directory and the card registry from
// the same database.  Reads go straight to db; writes go through writer.
type DirectoryStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDirectoryStore(db *sql.DB, writer *dbpkg.Worker) *DirectoryStore {
	return &DirectoryStore{db: db, writer: writer}
}

func (s *DirectoryStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DirectoryStore) SaveHolder(ctx context.Context, h store.Holder) error {
	if h == nil || strings.TrimSpace(h.HolderID()) == "" {
		return fmt.Errorf("SaveHolder: holder id is required")
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		switch v := h.(type) {
		case *store.Student:
			_, err = tx.ExecContext(ctx, `
INSERT INTO students(
  student_id, registration_number, first_name, middle_name, surname,
  email, phone, department, program, student_status, is_active,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(student_id) DO UPDATE SET
  registration_number = excluded.registration_number,
  first_name          = excluded.first_name,
  middle_name         = excluded.middle_name,
  surname             = excluded.surname,
  email               = excluded.email,
  phone               = excluded.phone,
  department          = excluded.department,
  program             = excluded.program,
  student_status      = excluded.student_status,
  is_active           = excluded.is_active,
  updated_at_ms       = excluded.updated_at_ms;
`, v.ID, v.RegistrationNumber, v.FirstName, nullString(v.MiddleName), v.Surname,
				nullString(v.Email), nullString(v.Phone), v.Department, v.Program, v.Status, boolInt(v.IsActive),
				nowMs, nowMs)
		case *store.Staff:
			_, err = tx.ExecContext(ctx, `
INSERT INTO staff(
  staff_id, staff_number, first_name, middle_name, surname,
  phone, department, position, employment_status, is_active,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(staff_id) DO UPDATE SET
  staff_number      = excluded.staff_number,
  first_name        = excluded.first_name,
  middle_name       = excluded.middle_name,
  surname           = excluded.surname,
  phone             = excluded.phone,
  department        = excluded.department,
  position          = excluded.position,
  employment_status = excluded.employment_status,
  is_active         = excluded.is_active,
  updated_at_ms     = excluded.updated_at_ms;
`, v.ID, v.StaffNumber, v.FirstName, nullString(v.MiddleName), v.Surname,
				nullString(v.Phone), v.Department, v.Position, v.EmploymentStatus, boolInt(v.IsActive),
				nowMs, nowMs)
		case *store.SecurityPersonnel:
			_, err = tx.ExecContext(ctx, `
INSERT INTO security_personnel(
  security_id, employee_id, badge_number, full_name, phone, is_active,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(security_id) DO UPDATE SET
  employee_id   = excluded.employee_id,
  badge_number  = excluded.badge_number,
  full_name     = excluded.full_name,
  phone         = excluded.phone,
  is_active     = excluded.is_active,
  updated_at_ms = excluded.updated_at_ms;
`, v.ID, v.EmployeeID, v.BadgeNumber, v.FullName, nullString(v.Phone), boolInt(v.IsActive),
				nowMs, nowMs)
		}
		if err != nil {
			return fmt.Errorf("SaveHolder %s %s: %w", h.Kind(), h.HolderID(), err)
		}
		return nil
	})
}

func (s *DirectoryStore) FindHolder(ctx context.Context, kind store.CardType, id string) (store.Holder, error) {
	var (
		row *sql.Row
		h   store.Holder
		err error
	)
	switch kind {
	case store.CardTypeStudent:
		var st store.Student
		var middle, email, phone sql.NullString
		row = s.db.QueryRowContext(ctx, `
SELECT student_id, registration_number, first_name, middle_name, surname,
       email, phone, department, program, student_status, is_active
FROM students WHERE student_id = ?;
`, id)
		err = row.Scan(&st.ID, &st.RegistrationNumber, &st.FirstName, &middle, &st.Surname,
			&email, &phone, &st.Department, &st.Program, &st.Status, &st.IsActive)
		st.MiddleName, st.Email, st.Phone = middle.String, email.String, phone.String
		h = &st
	case store.CardTypeStaff:
		var sf store.Staff
		var middle, phone sql.NullString
		row = s.db.QueryRowContext(ctx, `
SELECT staff_id, staff_number, first_name, middle_name, surname,
       phone, department, position, employment_status, is_active
FROM staff WHERE staff_id = ?;
`, id)
		err = row.Scan(&sf.ID, &sf.StaffNumber, &sf.FirstName, &middle, &sf.Surname,
			&phone, &sf.Department, &sf.Position, &sf.EmploymentStatus, &sf.IsActive)
		sf.MiddleName, sf.Phone = middle.String, phone.String
		h = &sf
	case store.CardTypeSecurity:
		var sp store.SecurityPersonnel
		var phone sql.NullString
		row = s.db.QueryRowContext(ctx, `
SELECT security_id, employee_id, badge_number, full_name, phone, is_active
FROM security_personnel WHERE security_id = ?;
`, id)
		err = row.Scan(&sp.ID, &sp.EmployeeID, &sp.BadgeNumber, &sp.FullName, &phone, &sp.IsActive)
		sp.Phone = phone.String
		h = &sp
	default:
		return nil, fmt.Errorf("FindHolder: unknown kind %q", kind)
	}

	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindHolder %s %s: %w", kind, id, err)
	}
	return h, nil
}

func (s *DirectoryStore) CountActive(ctx context.Context) (store.HolderCounts, error) {
	var c store.HolderCounts
	err := s.db.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM students           WHERE is_active = 1),
  (SELECT COUNT(*) FROM staff              WHERE is_active = 1),
  (SELECT COUNT(*) FROM security_personnel WHERE is_active = 1);
`).Scan(&c.Students, &c.Staff, &c.Security)
	if err != nil {
		return c, fmt.Errorf("CountActive: %w", err)
	}
	return c, nil
}

// findCardSQL resolves the card and whichever holder its tag points at in
// one statement.  The holder primary keys come from the joined tables so a
// dangling reference scans as NULL.
const findCardSQL = `
SELECT c.card_id, c.rfid_number, c.card_type, c.is_active, c.issued_at_ms, c.expires_at_ms,
       s.student_id, s.registration_number, s.first_name, s.middle_name, s.surname,
       s.email, s.phone, s.department, s.program, s.student_status, s.is_active,
       f.staff_id, f.staff_number, f.first_name, f.middle_name, f.surname,
       f.phone, f.department, f.position, f.employment_status, f.is_active,
       p.security_id, p.employee_id, p.badge_number, p.full_name, p.phone, p.is_active
FROM cards c
LEFT JOIN students           s ON c.card_type = 'student'  AND s.student_id  = c.student_id
LEFT JOIN staff              f ON c.card_type = 'staff'    AND f.staff_id    = c.staff_id
LEFT JOIN security_personnel p ON c.card_type = 'security' AND p.security_id = c.security_id
WHERE c.rfid_number = ?;
`

func (s *DirectoryStore) FindByRFID(ctx context.Context, rfid string) (*store.Card, error) {
	var (
		card      store.Card
		cardType  string
		issuedMs  int64
		expiresMs sql.NullInt64

		stuID, stuReg, stuFirst, stuMiddle, stuSurname     sql.NullString
		stuEmail, stuPhone, stuDept, stuProgram, stuStatus sql.NullString
		stuActive                                          sql.NullBool
		stfID, stfNum, stfFirst, stfMiddle, stfSurname     sql.NullString
		stfPhone, stfDept, stfPosition, stfEmployment      sql.NullString
		stfActive                                          sql.NullBool
		secID, secEmployee, secBadge, secName, secPhone    sql.NullString
		secActive                                          sql.NullBool
	)

	err := s.db.QueryRowContext(ctx, findCardSQL, rfid).Scan(
		&card.ID, &card.RFIDNumber, &cardType, &card.IsActive, &issuedMs, &expiresMs,
		&stuID, &stuReg, &stuFirst, &stuMiddle, &stuSurname,
		&stuEmail, &stuPhone, &stuDept, &stuProgram, &stuStatus, &stuActive,
		&stfID, &stfNum, &stfFirst, &stfMiddle, &stfSurname,
		&stfPhone, &stfDept, &stfPosition, &stfEmployment, &stfActive,
		&secID, &secEmployee, &secBadge, &secName, &secPhone, &secActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByRFID: %w", err)
	}

	card.Type = store.CardType(cardType)
	card.IssuedAt = time.UnixMilli(issuedMs).UTC()
	if expiresMs.Valid {
		t := time.UnixMilli(expiresMs.Int64).UTC()
		card.ExpiresAt = &t
	}

	switch {
	case stuID.Valid:
		card.Holder = &store.Student{
			ID: stuID.String, RegistrationNumber: stuReg.String,
			FirstName: stuFirst.String, MiddleName: stuMiddle.String, Surname: stuSurname.String,
			Email: stuEmail.String, Phone: stuPhone.String,
			Department: stuDept.String, Program: stuProgram.String,
			Status: stuStatus.String, IsActive: stuActive.Bool,
		}
	case stfID.Valid:
		card.Holder = &store.Staff{
			ID: stfID.String, StaffNumber: stfNum.String,
			FirstName: stfFirst.String, MiddleName: stfMiddle.String, Surname: stfSurname.String,
			Phone: stfPhone.String, Department: stfDept.String, Position: stfPosition.String,
			EmploymentStatus: stfEmployment.String, IsActive: stfActive.Bool,
		}
	case secID.Valid:
		card.Holder = &store.SecurityPersonnel{
			ID: secID.String, EmployeeID: secEmployee.String, BadgeNumber: secBadge.String,
			FullName: secName.String, Phone: secPhone.String, IsActive: secActive.Bool,
		}
	}

	return &card, nil
}

func (s *DirectoryStore) IssueCard(ctx context.Context, card store.Card) error {
	if strings.TrimSpace(card.RFIDNumber) == "" || card.Holder == nil {
		return fmt.Errorf("IssueCard: rfid and holder are required")
	}
	if card.Type == "" {
		card.Type = card.Holder.Kind()
	}
	if card.Type != card.Holder.Kind() {
		return fmt.Errorf("IssueCard: card type %q does not match holder kind %q", card.Type, card.Holder.Kind())
	}
	table, column := holderTable(card.Type)
	if table == "" {
		return fmt.Errorf("IssueCard: unknown card type %q", card.Type)
	}
	if card.IssuedAt.IsZero() {
		card.IssuedAt = time.Now().UTC()
	}
	var expiresMs any
	if card.ExpiresAt != nil {
		expiresMs = card.ExpiresAt.UTC().UnixMilli()
	}
	holderID := card.Holder.HolderID()
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM "+table+" WHERE "+column+" = ?;", holderID,
		).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("IssueCard %s: holder: %w", card.RFIDNumber, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("IssueCard %s holder lookup: %w", card.RFIDNumber, err)
		}

		// The writer serialises issuance, so this check cannot race.
		var taken int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM cards WHERE rfid_number = ? OR "+column+" = ?;",
			card.RFIDNumber, holderID,
		).Scan(&taken); err != nil {
			return fmt.Errorf("IssueCard %s conflict check: %w", card.RFIDNumber, err)
		}
		if taken > 0 {
			return fmt.Errorf("IssueCard %s: %w", card.RFIDNumber, store.ErrConflict)
		}

		if card.ID == "" {
			card.ID = newID()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO cards(
  card_id, rfid_number, card_type, `+column+`, is_active,
  issued_at_ms, expires_at_ms, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, card.ID, card.RFIDNumber, string(card.Type), holderID, boolInt(card.IsActive),
			card.IssuedAt.UTC().UnixMilli(), expiresMs, nowMs, nowMs); err != nil {
			return fmt.Errorf("IssueCard %s insert: %w", card.RFIDNumber, err)
		}
		return nil
	})
}

func (s *DirectoryStore) SetActive(ctx context.Context, rfid string, active bool) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE cards
SET is_active     = ?,
    updated_at_ms = ?
WHERE rfid_number = ?;
`, boolInt(active), nowMs, rfid)
		if err != nil {
			return fmt.Errorf("SetActive %s: %w", rfid, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *DirectoryStore) Counts(ctx context.Context) (store.CardCounts, error) {
	var c store.CardCounts
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM cards;
`).Scan(&c.Total, &c.Active)
	if err != nil {
		return c, fmt.Errorf("card Counts: %w", err)
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
