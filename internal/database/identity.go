package database

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/kozaktomas/facegate/internal/facematch"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// IdentityTable names the table and columns of an external user directory.
type IdentityTable struct {
	Table      string
	IDColumn   string
	NameColumn string
}

// Validate rejects names that cannot be safely interpolated into SQL.
func (t IdentityTable) Validate() error {
	for _, name := range []string{t.Table, t.IDColumn, t.NameColumn} {
		if !identifierRe.MatchString(name) {
			return fmt.Errorf("invalid SQL identifier %q", name)
		}
	}
	return nil
}

// FindNameInRows scans (id, name) rows and returns the first id whose name folds to the same
// value as want under facematch.NormalizeName.
func FindNameInRows(rows *sql.Rows, want string) (int64, bool, error) {
	target := facematch.NormalizeName(want)
	if target == "" {
		return 0, false, nil
	}

	for rows.Next() {
		var id int64
		var name sql.NullString
		if err := rows.Scan(&id, &name); err != nil {
			return 0, false, fmt.Errorf("scan identity: %w", err)
		}
		if name.Valid && facematch.NormalizeName(name.String) == target {
			return id, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("iterate identities: %w", err)
	}
	return 0, false, nil
}
