package migrations

import (
	"context"
	"fmt"

	"econ-clock/internal/storage/postgres"
)

// Postgres returns the embedded PostgreSQL migrations in apply order.
func Postgres() ([]Migration, error) {
	return load(PostgresFS, "postgres")
}

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Migrations are idempotent (CREATE ... IF NOT EXISTS) and return the
// names of the applied files.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	migrations, err := Postgres()
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(migrations))
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}
