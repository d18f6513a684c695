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
		log.Println("creating debts table...")
		if err := mghelper.CreateSchema(ctx, db, &creditstore.DebtDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &creditstore.DebtDao{}, "borrower", "vouch_id", "status", "due_date"); err != nil {
			return err
		}
		if err := mghelper.Exec(ctx, db,
			`ALTER TABLE debts ADD CONSTRAINT chk_debts_amount_owed CHECK (amount_owed >= 0 AND amount_owed <= original_amount)`); err != nil {
			return err
		}
		return mghelper.Exec(ctx, db,
			`ALTER TABLE debts ADD CONSTRAINT chk_debts_status CHECK (status IN ('active', 'paid', 'overdue', 'defaulted'))`)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping debts table...")
		return mghelper.DropTables(ctx, db, &creditstore.DebtDao{})
	})
}
