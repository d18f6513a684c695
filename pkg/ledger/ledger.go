// Package ledger is the authority over credit scores. Every score change
// flows through it so that clamping, reputation stripping, and on-chain
// status pushes stay consistent with each other.
package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/vouchnet/settlement-middleware/pkg/credit"
)

type scoreStore interface {
	GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error)
	AdjustScore(ctx context.Context, address string, delta int, reason string) (*credit.Profile, error)
	MarkStripped(ctx context.Context, address string) (bool, error)
	ClearStripped(ctx context.Context, address string) (bool, error)
	HasOpenDebts(ctx context.Context, borrower string) (bool, error)
	ListHistory(ctx context.Context, address string, limit int) ([]*credit.HistoryEntry, error)
}

type statusPusher interface {
	MarkDefault(user string)
	ClearDefault(user string)
	UpdateCreditScore(user string, score int)
}

// Ledger applies score deltas and keeps the stripped flag and the status
// oracle in sync with the resulting score.
type Ledger struct {
	store  scoreStore
	oracle statusPusher
	logger *zap.Logger
}

func New(store scoreStore, oracle statusPusher, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, oracle: oracle, logger: logger}
}

// UpdateScore applies a delta to the user's score, recording the reason
// in the history trail. A score falling below the strip threshold marks
// the account as reputation-stripped and pushes the default flag on
// chain; both effects are idempotent.
func (l *Ledger) UpdateScore(ctx context.Context, address string, delta int, reason string) (*credit.Profile, error) {
	profile, err := l.store.AdjustScore(ctx, address, delta, reason)
	if err != nil {
		return nil, err
	}

	l.oracle.UpdateCreditScore(address, profile.Score)

	if profile.Score < credit.StripThreshold {
		stripped, err := l.store.MarkStripped(ctx, address)
		if err != nil {
			return nil, err
		}
		if stripped {
			profile.Stripped = true
			l.oracle.MarkDefault(address)
			l.logger.Warn("reputation stripped",
				zap.String("address", address),
				zap.Int("score", profile.Score))
		}
	}

	l.logger.Info("credit score updated",
		zap.String("address", address),
		zap.Int("delta", delta),
		zap.Int("score", profile.Score),
		zap.String("reason", reason))
	return profile, nil
}

// RestoreIfClean lifts the stripped flag once the user has no active or
// overdue debts left. The score is not consulted: a clean slate clears
// the flag even below the strip threshold, and the next score update
// re-strips if the score is still that low. Returns whether the flag
// was lifted by this call.
func (l *Ledger) RestoreIfClean(ctx context.Context, address string) (bool, error) {
	profile, err := l.store.GetOrCreateProfile(ctx, address)
	if err != nil {
		return false, err
	}
	if !profile.Stripped {
		return false, nil
	}

	open, err := l.store.HasOpenDebts(ctx, address)
	if err != nil {
		return false, err
	}
	if open {
		return false, nil
	}

	cleared, err := l.store.ClearStripped(ctx, address)
	if err != nil {
		return false, err
	}
	if cleared {
		l.oracle.ClearDefault(address)
		l.logger.Info("reputation restored", zap.String("address", address))
	}
	return cleared, nil
}

// History returns the most recent score changes for a user.
func (l *Ledger) History(ctx context.Context, address string, limit int) ([]*credit.HistoryEntry, error) {
	return l.store.ListHistory(ctx, address, limit)
}
