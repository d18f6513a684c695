// Package oracle pushes credit status to the on-chain status oracle and
// answers read queries against it. Pushes are best effort: the ledger is
// the source of truth and oracle failures never block settlement.
package oracle

import (
	"context"
)

// StatusOracle is the on-chain credit status registry.
type StatusOracle interface {
	MarkDefault(ctx context.Context, user string) error
	ClearDefault(ctx context.Context, user string) error
	UpdateCreditScore(ctx context.Context, user string, score int) error

	IsRegistered(ctx context.Context, user string) (bool, error)
	IsDefaulted(ctx context.Context, user string) (bool, error)
	HasCollateral(ctx context.Context, user string) (bool, error)
	GetScore(ctx context.Context, user string) (int, error)
}

// Noop is the oracle used when on-chain status sync is disabled.
type Noop struct{}

func (Noop) MarkDefault(context.Context, string) error            { return nil }
func (Noop) ClearDefault(context.Context, string) error           { return nil }
func (Noop) UpdateCreditScore(context.Context, string, int) error { return nil }
func (Noop) IsRegistered(context.Context, string) (bool, error)   { return false, nil }
func (Noop) IsDefaulted(context.Context, string) (bool, error)    { return false, nil }
func (Noop) HasCollateral(context.Context, string) (bool, error)  { return false, nil }
func (Noop) GetScore(context.Context, string) (int, error)        { return 0, nil }
