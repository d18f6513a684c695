// Package creditstore provides Postgres persistence for credit profiles,
// vouches, debts, payments, and score history.
//
// Every read-modify-write against a debt or a profile score happens inside
// a transaction with the row locked FOR UPDATE, so two transfers arriving
// in quick succession cannot double-count relief against the same debt.
package creditstore

import "errors"

var (
	// ErrProfileNotFound is returned when no credit profile exists for an address.
	ErrProfileNotFound = errors.New("credit profile not found")
	// ErrVouchNotFound is returned when a vouch lookup finds no matching record.
	ErrVouchNotFound = errors.New("vouch not found")
	// ErrDebtNotFound is returned when a debt lookup finds no matching record.
	ErrDebtNotFound = errors.New("debt not found")
	// ErrDebtNotPayable is returned when a payment targets a paid or defaulted debt.
	ErrDebtNotPayable = errors.New("debt is not payable")
	// ErrVouchOverdrawn is returned when a draw would push usage past the vouch limit.
	ErrVouchOverdrawn = errors.New("vouch usage would exceed limit")
	// ErrVouchInactive is returned when a draw targets a revoked vouch.
	ErrVouchInactive = errors.New("vouch is not active")
	// ErrDuplicateVouch is returned when an active vouch already exists for the pair.
	ErrDuplicateVouch = errors.New("active vouch already exists for this pair")
)

// ProfileDefaults are applied when a profile is created on first interaction.
type ProfileDefaults struct {
	Score          int
	GarnishPercent int
	AutoRepay      bool
}
