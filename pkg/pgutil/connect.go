// Package pgutil wires bun onto Postgres for the agent's stores.
package pgutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/vouchnet/settlement-middleware/pkg/config"
)

// ConnectDB opens a bun connection from the database section and pings
// it once so misconfiguration fails at startup, not on first query.
func ConnectDB(cfg *config.DatabaseConfig) (*bun.DB, error) {
	// functional options escape credentials with special characters
	connector := pgdriver.NewConnector(
		pgdriver.WithNetwork("tcp"),
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.Database),
		pgdriver.WithInsecure(cfg.SSLMode == "disable"),
	)

	db := bun.NewDB(sql.OpenDB(connector), pgdialect.New())
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database %s: %w", cfg.Database, err)
	}
	return db, nil
}
