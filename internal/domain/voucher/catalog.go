package voucher

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Catalog answers which powerup ids exist. The catalog itself is owned elsewhere.
type Catalog interface {
	Missing(ctx context.Context, ids []string) ([]string, error)
}

// DBCatalog reads the powerups table.
type DBCatalog struct {
	db *sqlx.DB
}

func NewDBCatalog(db *sqlx.DB) *DBCatalog {
	return &DBCatalog{db: db}
}

func (c *DBCatalog) Missing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	missing := make([]string, 0)
	err := c.db.SelectContext(ctx2, &missing, `
		SELECT wanted.id FROM unnest($1::text[]) AS wanted(id)
		WHERE NOT EXISTS (SELECT 1 FROM powerups p WHERE p.id = wanted.id)
	`, pq.Array(ids))
	return missing, err
}
