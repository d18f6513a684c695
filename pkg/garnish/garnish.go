// Package garnish redirects a configured percentage of every incoming
// transfer toward the recipient's oldest open debt. The transfer itself
// is always accepted in full first; only then is the garnished slice
// forwarded out of the session balance to the settlement vault.
package garnish

import (
	"context"

	"go.uber.org/zap"

	"github.com/vouchnet/settlement-middleware/internal/metrics"
	"github.com/vouchnet/settlement-middleware/pkg/clearnet"
	"github.com/vouchnet/settlement-middleware/pkg/credit"
	"github.com/vouchnet/settlement-middleware/pkg/creditstore"
)

type garnishStore interface {
	GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error)
	OpenDebtsForBorrower(ctx context.Context, borrower string) ([]*credit.Debt, error)
	ApplyPayment(ctx context.Context, debtID int64, amount int64, kind credit.PaymentKind) (*creditstore.PaymentResult, error)
}

type settlementConn interface {
	Transfers() <-chan clearnet.Transfer
	SendTransfer(ctx context.Context, destination string, amount int64) error
}

type paymentSettler interface {
	SettleGarnishPayment(ctx context.Context, result *creditstore.PaymentResult)
}

// Engine watches one user's incoming transfers and applies garnishment.
type Engine struct {
	owner   string
	vault   string
	store   garnishStore
	conn    settlementConn
	settler paymentSettler
	logger  *zap.Logger
}

func NewEngine(owner, vault string, store garnishStore, conn settlementConn, settler paymentSettler, logger *zap.Logger) *Engine {
	return &Engine{
		owner:   owner,
		vault:   vault,
		store:   store,
		conn:    conn,
		settler: settler,
		logger:  logger.With(zap.String("user", owner)),
	}
}

// Run consumes the session's transfer stream until the stream closes or
// the context is canceled. Each transfer is processed to completion
// before the next one is taken, so a debt is never garnished twice from
// interleaved transfers.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case transfer, ok := <-e.conn.Transfers():
			if !ok {
				return
			}
			e.process(ctx, transfer)
		}
	}
}

// process handles one incoming transfer. Failures are logged and the
// transfer is left untouched; garnishment is best effort per transfer
// and the next one gets a fresh chance.
func (e *Engine) process(ctx context.Context, transfer clearnet.Transfer) {
	log := e.logger.With(
		zap.String("transfer_id", transfer.ID),
		zap.Int64("amount", transfer.Amount))

	profile, err := e.store.GetOrCreateProfile(ctx, e.owner)
	if err != nil {
		log.Error("failed to load profile", zap.Error(err))
		return
	}
	if !profile.AutoRepay {
		log.Debug("auto-repay disabled, accepting transfer untouched")
		return
	}

	debts, err := e.store.OpenDebtsForBorrower(ctx, e.owner)
	if err != nil {
		log.Error("failed to list open debts", zap.Error(err))
		return
	}
	if len(debts) == 0 {
		return
	}
	// oldest due date first
	target := debts[0]

	amount := credit.GarnishAmount(transfer.Amount, profile.GarnishPercent, target.AmountOwed)
	if amount == 0 {
		return
	}
	if e.vault == "" {
		log.Warn("no settlement vault configured, skipping garnish")
		return
	}

	if err := e.conn.SendTransfer(ctx, e.vault, amount); err != nil {
		log.Error("failed to forward garnished amount", zap.Error(err))
		return
	}

	result, err := e.store.ApplyPayment(ctx, target.ID, amount, credit.PaymentGarnish)
	if err != nil {
		// the funds already moved; this needs operator attention
		log.Error("garnish forwarded but payment not recorded",
			zap.Int64("debt_id", target.ID),
			zap.Int64("garnished", amount),
			zap.Error(err))
		return
	}

	metrics.GarnishedAmount.Observe(float64(amount))
	log.Info("transfer garnished",
		zap.Int64("debt_id", target.ID),
		zap.Int64("garnished", amount),
		zap.Bool("fully_paid", result.FullyPaid))

	e.settler.SettleGarnishPayment(ctx, result)
}
