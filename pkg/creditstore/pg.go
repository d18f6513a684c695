package creditstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vouchnet/settlement-middleware/pkg/credit"
)

// Store is the Postgres implementation of the lending bookkeeping.
type Store struct {
	db       *bun.DB
	defaults ProfileDefaults
}

// NewStore creates a new postgres credit store
func NewStore(db *bun.DB, defaults ProfileDefaults) *Store {
	return &Store{db: db, defaults: defaults}
}

// ---------------------------------------------------------------------------
// Profiles

// GetOrCreateProfile returns the profile for an address, creating it with
// the configured defaults on first interaction.
func (s *Store) GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error) {
	dao := &ProfileDao{
		Address:        address,
		CreditScore:    s.defaults.Score,
		GarnishPercent: s.defaults.GarnishPercent,
		AutoRepay:      s.defaults.AutoRepay,
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (address) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return s.GetProfile(ctx, address)
}

// GetProfile returns the profile for an address.
func (s *Store) GetProfile(ctx context.Context, address string) (*credit.Profile, error) {
	dao := new(ProfileDao)
	err := s.db.NewSelect().Model(dao).Where("address = ?", address).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return toProfile(dao), nil
}

// SetGarnishPercent updates the garnish percentage for an address.
func (s *Store) SetGarnishPercent(ctx context.Context, address string, percent int) error {
	res, err := s.db.NewUpdate().
		Model((*ProfileDao)(nil)).
		Set("garnish_percentage = ?", percent).
		Set("updated_at = now()").
		Where("address = ?", address).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set garnish percentage: %w", err)
	}
	return requireAffected(res, ErrProfileNotFound)
}

// SetAutoRepay updates the auto-repay toggle for an address.
func (s *Store) SetAutoRepay(ctx context.Context, address string, enabled bool) error {
	res, err := s.db.NewUpdate().
		Model((*ProfileDao)(nil)).
		Set("auto_repay = ?", enabled).
		Set("updated_at = now()").
		Where("address = ?", address).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set auto repay: %w", err)
	}
	return requireAffected(res, ErrProfileNotFound)
}

// AdjustScore applies a delta to an address's credit score, clamped into
// the valid range, and appends a history entry with the given reason.
// The profile row is locked for the duration of the transaction.
func (s *Store) AdjustScore(ctx context.Context, address string, delta int, reason string) (*credit.Profile, error) {
	var out *credit.Profile
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		dao := new(ProfileDao)
		err := tx.NewSelect().Model(dao).Where("address = ?", address).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("failed to lock profile: %w", err)
		}

		oldScore := dao.CreditScore
		newScore := credit.ClampScore(oldScore + delta)

		_, err = tx.NewUpdate().
			Model((*ProfileDao)(nil)).
			Set("credit_score = ?", newScore).
			Set("updated_at = now()").
			Where("address = ?", address).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update score: %w", err)
		}

		entry := &HistoryDao{
			Address:  address,
			OldScore: oldScore,
			NewScore: newScore,
			Reason:   reason,
		}
		if _, err = tx.NewInsert().Model(entry).Exec(ctx); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}

		dao.CreditScore = newScore
		out = toProfile(dao)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkStripped flags the address as reputation-stripped. Returns false
// without touching the row if the flag is already set.
func (s *Store) MarkStripped(ctx context.Context, address string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*ProfileDao)(nil)).
		Set("stripped = true").
		Set("updated_at = now()").
		Where("address = ? AND stripped = false", address).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark stripped: %w", err)
	}
	return affected(res), nil
}

// ClearStripped removes the reputation-stripped flag. Returns false if
// the flag was not set.
func (s *Store) ClearStripped(ctx context.Context, address string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*ProfileDao)(nil)).
		Set("stripped = false").
		Set("updated_at = now()").
		Where("address = ? AND stripped = true", address).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to clear stripped: %w", err)
	}
	return affected(res), nil
}

// ListHistory returns the most recent score changes for an address.
func (s *Store) ListHistory(ctx context.Context, address string, limit int) ([]*credit.HistoryEntry, error) {
	var daos []HistoryDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("address = ?", address).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	entries := make([]*credit.HistoryEntry, len(daos))
	for i := range daos {
		entries[i] = toHistoryEntry(&daos[i])
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Vouches

// CreateVouch inserts a new vouch. A partial unique index on
// (voucher, borrower) WHERE active guards the pair constraint.
func (s *Store) CreateVouch(ctx context.Context, v *credit.Vouch) (*credit.Vouch, error) {
	dao := &VouchDao{
		Voucher:     v.Voucher,
		Borrower:    v.Borrower,
		LimitAmount: v.LimitAmount,
		Active:      true,
	}
	var out *credit.Vouch
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*VouchDao)(nil)).
			Where("voucher = ? AND borrower = ? AND active = true", v.Voucher, v.Borrower).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check vouch pair: %w", err)
		}
		if exists {
			return ErrDuplicateVouch
		}
		if _, err := tx.NewInsert().Model(dao).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create vouch: %w", err)
		}
		out = toVouch(dao)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetVouch returns a vouch by id.
func (s *Store) GetVouch(ctx context.Context, id int64) (*credit.Vouch, error) {
	dao := new(VouchDao)
	err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVouchNotFound
		}
		return nil, fmt.Errorf("failed to get vouch: %w", err)
	}
	return toVouch(dao), nil
}

// ActiveVouchesForBorrower returns active vouches sorted largest limit
// first, creation order breaking ties. This is the allocation order.
func (s *Store) ActiveVouchesForBorrower(ctx context.Context, borrower string) ([]*credit.Vouch, error) {
	var daos []VouchDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("borrower = ? AND active = true", borrower).
		Order("limit_amount DESC", "created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouches: %w", err)
	}
	vouches := make([]*credit.Vouch, len(daos))
	for i := range daos {
		vouches[i] = toVouch(&daos[i])
	}
	return vouches, nil
}

// DeactivateVouch flips the active flag off. Vouches are never hard-deleted.
func (s *Store) DeactivateVouch(ctx context.Context, id int64) error {
	res, err := s.db.NewUpdate().
		Model((*VouchDao)(nil)).
		Set("active = false").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to deactivate vouch: %w", err)
	}
	return requireAffected(res, ErrVouchNotFound)
}

// AvailableCredit returns the sum of remaining capacity across all
// active vouches for a borrower.
func (s *Store) AvailableCredit(ctx context.Context, borrower string) (int64, error) {
	var available int64
	err := s.db.NewSelect().
		Model((*VouchDao)(nil)).
		ColumnExpr("COALESCE(SUM(limit_amount - current_usage), 0)").
		Where("borrower = ? AND active = true", borrower).
		Scan(ctx, &available)
	if err != nil {
		return 0, fmt.Errorf("failed to compute available credit: %w", err)
	}
	return available, nil
}

// OpenDebtCountForVouch counts active or overdue debts drawn against a vouch.
func (s *Store) OpenDebtCountForVouch(ctx context.Context, vouchID int64) (int, error) {
	count, err := s.db.NewSelect().
		Model((*DebtDao)(nil)).
		Where("vouch_id = ? AND status IN (?)", vouchID, bun.In([]string{
			string(credit.DebtActive), string(credit.DebtOverdue),
		})).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count open debts: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Debts

// AllocateDebts atomically inserts the given debts and increments each
// backing vouch's usage by the drawn amount. Vouches are locked in id
// order inside the transaction; any capacity violation rolls the whole
// allocation back, leaving no partial debts behind.
func (s *Store) AllocateDebts(ctx context.Context, debts []*credit.Debt) ([]*credit.Debt, error) {
	out := make([]*credit.Debt, 0, len(debts))
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, d := range debts {
			vouch := new(VouchDao)
			err := tx.NewSelect().Model(vouch).Where("id = ?", d.VouchID).For("UPDATE").Scan(ctx)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrVouchNotFound
				}
				return fmt.Errorf("failed to lock vouch %d: %w", d.VouchID, err)
			}
			if !vouch.Active {
				return ErrVouchInactive
			}
			if vouch.CurrentUsage+d.OriginalAmount > vouch.LimitAmount {
				return ErrVouchOverdrawn
			}

			_, err = tx.NewUpdate().
				Model((*VouchDao)(nil)).
				Set("current_usage = current_usage + ?", d.OriginalAmount).
				Where("id = ?", d.VouchID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to increment vouch usage: %w", err)
			}

			dao := toDebtDao(d)
			dao.ID = 0
			dao.Status = string(credit.DebtActive)
			dao.AmountOwed = d.OriginalAmount
			if _, err = tx.NewInsert().Model(dao).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert debt: %w", err)
			}
			out = append(out, toDebt(dao))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetDebt returns a debt by id.
func (s *Store) GetDebt(ctx context.Context, id int64) (*credit.Debt, error) {
	dao := new(DebtDao)
	err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDebtNotFound
		}
		return nil, fmt.Errorf("failed to get debt: %w", err)
	}
	return toDebt(dao), nil
}

// OpenDebtsForBorrower returns active and overdue debts ordered oldest
// due date first. This is the garnishment targeting order.
func (s *Store) OpenDebtsForBorrower(ctx context.Context, borrower string) ([]*credit.Debt, error) {
	var daos []DebtDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("borrower = ? AND status IN (?)", borrower, bun.In([]string{
			string(credit.DebtActive), string(credit.DebtOverdue),
		})).
		Order("due_date ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open debts: %w", err)
	}
	debts := make([]*credit.Debt, len(daos))
	for i := range daos {
		debts[i] = toDebt(&daos[i])
	}
	return debts, nil
}

// HasOpenDebts reports whether a borrower has any active or overdue debts.
func (s *Store) HasOpenDebts(ctx context.Context, borrower string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*DebtDao)(nil)).
		Where("borrower = ? AND status IN (?)", borrower, bun.In([]string{
			string(credit.DebtActive), string(credit.DebtOverdue),
		})).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check open debts: %w", err)
	}
	return exists, nil
}

// ListDebtsForBorrower returns every debt for a borrower, newest first.
func (s *Store) ListDebtsForBorrower(ctx context.Context, borrower string) ([]*credit.Debt, error) {
	var daos []DebtDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("borrower = ?", borrower).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}
	debts := make([]*credit.Debt, len(daos))
	for i := range daos {
		debts[i] = toDebt(&daos[i])
	}
	return debts, nil
}

// PaymentResult describes the outcome of an applied payment.
type PaymentResult struct {
	Payment   *credit.Payment
	Debt      *credit.Debt
	FullyPaid bool
	// OnTime is true when the debt was cleared at or before its due date.
	OnTime bool
}

// ApplyPayment reduces a debt's amount owed inside a single transaction
// with the debt row locked FOR UPDATE. The payment is capped at the
// amount still owed. When the debt reaches zero it is marked paid and
// the backing vouch's usage is released by the debt's original amount.
func (s *Store) ApplyPayment(ctx context.Context, debtID int64, amount int64, kind credit.PaymentKind) (*PaymentResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %d", amount)
	}

	var result *PaymentResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		dao := new(DebtDao)
		err := tx.NewSelect().Model(dao).Where("id = ?", debtID).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDebtNotFound
			}
			return fmt.Errorf("failed to lock debt: %w", err)
		}
		if credit.DebtStatus(dao.Status).Terminal() {
			return ErrDebtNotPayable
		}

		if amount > dao.AmountOwed {
			amount = dao.AmountOwed
		}
		newOwed := dao.AmountOwed - amount
		now := time.Now()

		// Manual payments that clear the debt are recorded as kind "full".
		if kind == credit.PaymentManual && newOwed == 0 {
			kind = credit.PaymentFull
		}

		payment := &PaymentDao{
			ID:     uuid.NewString(),
			DebtID: debtID,
			Amount: amount,
			Kind:   string(kind),
		}
		if _, err = tx.NewInsert().Model(payment).Exec(ctx); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		update := tx.NewUpdate().
			Model((*DebtDao)(nil)).
			Set("amount_owed = ?", newOwed).
			Where("id = ?", debtID)
		if newOwed == 0 {
			update = update.
				Set("status = ?", string(credit.DebtPaid)).
				Set("paid_at = ?", now)
		}
		if _, err = update.Exec(ctx); err != nil {
			return fmt.Errorf("failed to update debt: %w", err)
		}

		if newOwed == 0 {
			// Release by the original principal, not the garnished amount.
			_, err = tx.NewUpdate().
				Model((*VouchDao)(nil)).
				Set("current_usage = GREATEST(current_usage - ?, 0)", dao.OriginalAmount).
				Where("id = ?", dao.VouchID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to release vouch usage: %w", err)
			}
		}

		dao.AmountOwed = newOwed
		if newOwed == 0 {
			dao.Status = string(credit.DebtPaid)
			dao.PaidAt = &now
		}
		result = &PaymentResult{
			Payment:   toPayment(payment),
			Debt:      toDebt(dao),
			FullyPaid: newOwed == 0,
			OnTime:    !now.After(dao.DueDate),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DebtsPastDue returns active debts whose due date has elapsed.
func (s *Store) DebtsPastDue(ctx context.Context, now time.Time) ([]*credit.Debt, error) {
	var daos []DebtDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status = ? AND due_date < ?", string(credit.DebtActive), now).
		Order("due_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list past-due debts: %w", err)
	}
	debts := make([]*credit.Debt, len(daos))
	for i := range daos {
		debts[i] = toDebt(&daos[i])
	}
	return debts, nil
}

// MarkOverdue flips an active past-due debt to overdue. Returns false
// when the debt has already been flipped, so repeated sweeps apply the
// late penalty exactly once.
func (s *Store) MarkOverdue(ctx context.Context, debtID int64) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*DebtDao)(nil)).
		Set("status = ?", string(credit.DebtOverdue)).
		Where("id = ? AND status = ? AND due_date < now()", debtID, string(credit.DebtActive)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark overdue: %w", err)
	}
	return affected(res), nil
}

// MarkDefaulted flips an active or overdue debt to defaulted. Terminal
// and irreversible. Returns false if the debt was already terminal.
func (s *Store) MarkDefaulted(ctx context.Context, debtID int64) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*DebtDao)(nil)).
		Set("status = ?", string(credit.DebtDefaulted)).
		Where("id = ? AND status IN (?)", debtID, bun.In([]string{
			string(credit.DebtActive), string(credit.DebtOverdue),
		})).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark defaulted: %w", err)
	}
	return affected(res), nil
}

// ListPaymentsForDebt returns the payment trail for a debt, oldest first.
func (s *Store) ListPaymentsForDebt(ctx context.Context, debtID int64) ([]*credit.Payment, error) {
	var daos []PaymentDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("debt_id = ?", debtID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	payments := make([]*credit.Payment, len(daos))
	for i := range daos {
		payments[i] = toPayment(&daos[i])
	}
	return payments, nil
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func requireAffected(res sql.Result, notFound error) error {
	if !affected(res) {
		return notFound
	}
	return nil
}
