package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
)

// IdentityRepository resolves identities stored in a MariaDB table.
type IdentityRepository struct {
	pool  *Pool
	table database.IdentityTable
}

// NewIdentityRepository creates a repository over the given table.
func NewIdentityRepository(pool *Pool, table database.IdentityTable) (*IdentityRepository, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &IdentityRepository{pool: pool, table: table}, nil
}

// Exists reports whether the identity row exists.
func (r *IdentityRepository) Exists(ctx context.Context, identityID int64) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ?)", r.table.Table, r.table.IDColumn)
	if err := r.pool.db.QueryRowContext(ctx, query, identityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check identity exists: %w", err)
	}
	return exists, nil
}

// FindByName resolves a display name to an identity, ignoring case and accents.
func (r *IdentityRepository) FindByName(ctx context.Context, name string) (int64, bool, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s",
		r.table.IDColumn, r.table.NameColumn, r.table.Table, r.table.IDColumn)
	rows, err := r.pool.db.QueryContext(ctx, query)
	if err != nil {
		return 0, false, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	return database.FindNameInRows(rows, name)
}
