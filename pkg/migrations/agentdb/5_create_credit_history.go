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
		log.Println("creating credit_history table...")
		if err := mghelper.CreateSchema(ctx, db, &creditstore.HistoryDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &creditstore.HistoryDao{}, "address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping credit_history table...")
		return mghelper.DropTables(ctx, db, &creditstore.HistoryDao{})
	})
}
