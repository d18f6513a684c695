// Package credit holds the domain model for vouch-backed lending:
// credit profiles, vouches, debts, payments, and the score history trail.
package credit

import "time"

// Score bounds and thresholds. A profile's score never leaves
// [MinScore, MaxScore]; falling below StripThreshold marks the
// account as reputation-stripped.
const (
	MinScore       = 300
	MaxScore       = 900
	StripThreshold = 400
)

// ClampScore clamps a score into the valid [MinScore, MaxScore] range.
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// DebtStatus represents the current state of a debt
type DebtStatus string

const (
	DebtActive    DebtStatus = "active"
	DebtPaid      DebtStatus = "paid"
	DebtOverdue   DebtStatus = "overdue"
	DebtDefaulted DebtStatus = "defaulted"
)

// Terminal reports whether the status allows no further transitions.
func (s DebtStatus) Terminal() bool {
	return s == DebtPaid || s == DebtDefaulted
}

// PaymentKind classifies how a debt reduction came about
type PaymentKind string

const (
	PaymentGarnish PaymentKind = "garnish"
	PaymentManual  PaymentKind = "manual"
	PaymentFull    PaymentKind = "full"
)

// Profile represents the per-address credit record. Created on first
// interaction, mutated only by the credit ledger, never deleted.
type Profile struct {
	Address        string
	Score          int
	Stripped       bool
	GarnishPercent int
	AutoRepay      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Vouch represents a credit extension from a voucher to a borrower.
// Usage never exceeds LimitAmount; usage is released only by the
// original principal of a fully-paid debt.
type Vouch struct {
	ID           int64
	Voucher      string
	Borrower     string
	LimitAmount  int64
	CurrentUsage int64
	Active       bool
	CreatedAt    time.Time
}

// Remaining returns the capacity still available on this vouch.
func (v *Vouch) Remaining() int64 {
	remaining := v.LimitAmount - v.CurrentUsage
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Debt represents one principal draw against one vouch. All amounts
// are integer minor units of the settlement asset.
type Debt struct {
	ID             int64
	VouchID        int64
	Borrower       string
	OriginalAmount int64
	AmountOwed     int64
	DueDate        time.Time
	Status         DebtStatus
	CreatedAt      time.Time
	PaidAt         *time.Time
}

// PastDue reports whether the debt is active and past its due date.
func (d *Debt) PastDue(now time.Time) bool {
	return d.Status == DebtActive && d.DueDate.Before(now)
}

// Payment is an immutable record of a reduction in a debt's amount owed.
type Payment struct {
	ID        string
	DebtID    int64
	Amount    int64
	Kind      PaymentKind
	CreatedAt time.Time
}

// HistoryEntry is an append-only record of a credit score change.
type HistoryEntry struct {
	ID        int64
	Address   string
	OldScore  int
	NewScore  int
	Reason    string
	CreatedAt time.Time
}

// GarnishAmount computes how much of an incoming transfer is redirected
// toward a debt: floor(amount * percent / 100), capped at the amount
// still owed. Never negative, never more than the transfer itself.
func GarnishAmount(amount int64, percent int, owed int64) int64 {
	if amount <= 0 || percent <= 0 || owed <= 0 {
		return 0
	}
	if percent > 100 {
		percent = 100
	}
	garnish := amount * int64(percent) / 100
	if garnish > owed {
		garnish = owed
	}
	return garnish
}
