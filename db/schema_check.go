package db

import (
	"context"

	"github.com/georgysavva/scany/pgxscan"
	"github.com/ninja-software/terror/v2"
)

// SchemaDirty reports whether a migration was left half applied
func SchemaDirty(ctx context.Context, conn Conn) (bool, error) {
	var count int
	err := pgxscan.Get(ctx, conn, &count, `SELECT count(*) FROM schema_migrations WHERE dirty IS TRUE`)
	if err != nil {
		return false, terror.Error(err)
	}
	return count > 0, nil
}
