package agentdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/vouchnet/settlement-middleware/pkg/creditstore"
	mghelper "github.com/vouchnet/settlement-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating users table...")
		if err := mghelper.CreateSchema(ctx, db, &creditstore.ProfileDao{}); err != nil {
			return err
		}
		if err := mghelper.Exec(ctx, db,
			`ALTER TABLE users ADD CONSTRAINT chk_users_credit_score CHECK (credit_score BETWEEN 300 AND 900)`); err != nil {
			return err
		}
		return mghelper.Exec(ctx, db,
			`ALTER TABLE users ADD CONSTRAINT chk_users_garnish_percentage CHECK (garnish_percentage BETWEEN 0 AND 100)`)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping users table...")
		return mghelper.DropTables(ctx, db, &creditstore.ProfileDao{})
	})
}
