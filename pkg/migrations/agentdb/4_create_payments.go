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
		log.Println("creating payments table...")
		if err := mghelper.CreateSchema(ctx, db, &creditstore.PaymentDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &creditstore.PaymentDao{}, "debt_id"); err != nil {
			return err
		}
		return mghelper.Exec(ctx, db,
			`ALTER TABLE payments ADD CONSTRAINT chk_payments_kind CHECK (kind IN ('garnish', 'manual', 'full'))`)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping payments table...")
		return mghelper.DropTables(ctx, db, &creditstore.PaymentDao{})
	})
}
