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
		log.Println("creating vouches table...")
		if err := mghelper.CreateSchema(ctx, db, &creditstore.VouchDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &creditstore.VouchDao{}, "borrower", "voucher"); err != nil {
			return err
		}
		if err := mghelper.Exec(ctx, db,
			`ALTER TABLE vouches ADD CONSTRAINT chk_vouches_limit_amount CHECK (limit_amount > 0)`); err != nil {
			return err
		}
		if err := mghelper.Exec(ctx, db,
			`ALTER TABLE vouches ADD CONSTRAINT chk_vouches_current_usage CHECK (current_usage >= 0 AND current_usage <= limit_amount)`); err != nil {
			return err
		}
		// One active vouch per (voucher, borrower) pair; revoked vouches
		// stay behind for the audit trail.
		return mghelper.Exec(ctx, db,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_vouches_voucher_borrower_active ON vouches (voucher, borrower) WHERE active`)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping vouches table...")
		return mghelper.DropTables(ctx, db, &creditstore.VouchDao{})
	})
}
