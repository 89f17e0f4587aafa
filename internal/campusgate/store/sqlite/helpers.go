package sqlite

import (
	"database/sql"

	"github.com/google/uuid"
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func newID() string {
	return uuid.NewString()
}
