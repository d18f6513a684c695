// Package lending implements vouch lifecycle, credit allocation, and
// repayment. Borrowing draws against active vouches largest limit first
// and is all or nothing: a request that cannot be covered
// in full leaves no partial debts behind.
package lending

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vouchnet/settlement-middleware/internal/metrics"
	apperrors "github.com/vouchnet/settlement-middleware/pkg/app/errors"
	"github.com/vouchnet/settlement-middleware/pkg/auth"
	"github.com/vouchnet/settlement-middleware/pkg/config"
	"github.com/vouchnet/settlement-middleware/pkg/credit"
	"github.com/vouchnet/settlement-middleware/pkg/creditstore"
)

type lendingStore interface {
	GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error)
	CreateVouch(ctx context.Context, v *credit.Vouch) (*credit.Vouch, error)
	GetVouch(ctx context.Context, id int64) (*credit.Vouch, error)
	ActiveVouchesForBorrower(ctx context.Context, borrower string) ([]*credit.Vouch, error)
	DeactivateVouch(ctx context.Context, id int64) error
	AvailableCredit(ctx context.Context, borrower string) (int64, error)
	OpenDebtCountForVouch(ctx context.Context, vouchID int64) (int, error)
	AllocateDebts(ctx context.Context, debts []*credit.Debt) ([]*credit.Debt, error)
	GetDebt(ctx context.Context, id int64) (*credit.Debt, error)
	ListDebtsForBorrower(ctx context.Context, borrower string) ([]*credit.Debt, error)
	ApplyPayment(ctx context.Context, debtID int64, amount int64, kind credit.PaymentKind) (*creditstore.PaymentResult, error)
	DebtsPastDue(ctx context.Context, now time.Time) ([]*credit.Debt, error)
	MarkOverdue(ctx context.Context, debtID int64) (bool, error)
	MarkDefaulted(ctx context.Context, debtID int64) (bool, error)
	ListPaymentsForDebt(ctx context.Context, debtID int64) ([]*credit.Payment, error)
}

type scoreLedger interface {
	UpdateScore(ctx context.Context, address string, delta int, reason string) (*credit.Profile, error)
	RestoreIfClean(ctx context.Context, address string) (bool, error)
}

// Service coordinates vouches, debts, and repayments on top of the
// credit store, delegating all score changes to the ledger.
type Service struct {
	store  lendingStore
	ledger scoreLedger
	cfg    config.LendingConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store lendingStore, ledger scoreLedger, cfg config.LendingConfig, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CreateVouch extends credit from a voucher to a borrower. Self-vouching
// and non-positive limits are rejected; at most one active vouch may
// exist per voucher-borrower pair.
func (s *Service) CreateVouch(ctx context.Context, voucher, borrower string, limit int64) (*credit.Vouch, error) {
	if !auth.ValidateEVMAddress(voucher) || !auth.ValidateEVMAddress(borrower) {
		return nil, apperrors.BadRequestError(nil, "invalid address")
	}
	if auth.SameAddress(voucher, borrower) {
		return nil, apperrors.BusinessRuleError(nil, "cannot vouch for yourself")
	}
	if limit <= 0 {
		return nil, apperrors.BusinessRuleError(nil, "vouch limit must be positive")
	}

	voucher = auth.NormalizeAddress(voucher)
	borrower = auth.NormalizeAddress(borrower)

	// both sides get a credit profile on first interaction
	if _, err := s.store.GetOrCreateProfile(ctx, voucher); err != nil {
		return nil, err
	}
	if _, err := s.store.GetOrCreateProfile(ctx, borrower); err != nil {
		return nil, err
	}

	vouch, err := s.store.CreateVouch(ctx, &credit.Vouch{
		Voucher:     voucher,
		Borrower:    borrower,
		LimitAmount: limit,
	})
	if err != nil {
		if errors.Is(err, creditstore.ErrDuplicateVouch) {
			return nil, apperrors.ConflictError(err, "an active vouch for this borrower already exists")
		}
		return nil, err
	}

	s.logger.Info("vouch created",
		zap.Int64("vouch_id", vouch.ID),
		zap.String("voucher", voucher),
		zap.String("borrower", borrower),
		zap.Int64("limit", limit))
	return vouch, nil
}

// RevokeVouch deactivates a vouch so no new debt can draw against it.
// Refused while debts backed by the vouch are still open, since their
// capacity must remain reserved until they resolve.
func (s *Service) RevokeVouch(ctx context.Context, voucher string, vouchID int64) error {
	vouch, err := s.store.GetVouch(ctx, vouchID)
	if err != nil {
		if errors.Is(err, creditstore.ErrVouchNotFound) {
			return apperrors.ResourceNotFoundError(err, "vouch not found")
		}
		return err
	}
	if !auth.SameAddress(vouch.Voucher, voucher) {
		return apperrors.ForbiddenError(nil, "only the voucher can revoke a vouch")
	}
	if !vouch.Active {
		return nil
	}

	open, err := s.store.OpenDebtCountForVouch(ctx, vouchID)
	if err != nil {
		return err
	}
	if open > 0 {
		return apperrors.BusinessRuleError(nil,
			fmt.Sprintf("vouch backs %d open debt(s) and cannot be revoked", open))
	}

	if err := s.store.DeactivateVouch(ctx, vouchID); err != nil {
		return err
	}
	s.logger.Info("vouch revoked", zap.Int64("vouch_id", vouchID))
	return nil
}

// AvailableCredit returns the borrower's total unused capacity across
// active vouches.
func (s *Service) AvailableCredit(ctx context.Context, borrower string) (int64, error) {
	return s.store.AvailableCredit(ctx, auth.NormalizeAddress(borrower))
}

// Borrow draws the requested amount against the borrower's active
// vouches, splitting across vouches largest limit first.
// Each draw becomes one debt due after the configured repayment period.
// Insufficient total capacity fails the whole request.
func (s *Service) Borrow(ctx context.Context, borrower string, amount int64) ([]*credit.Debt, error) {
	if amount <= 0 {
		return nil, apperrors.BusinessRuleError(nil, "borrow amount must be positive")
	}
	borrower = auth.NormalizeAddress(borrower)

	profile, err := s.store.GetOrCreateProfile(ctx, borrower)
	if err != nil {
		return nil, err
	}
	if profile.Stripped {
		return nil, apperrors.BusinessRuleError(nil, "account is reputation-stripped and cannot borrow")
	}

	vouches, err := s.store.ActiveVouchesForBorrower(ctx, borrower)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(vouches, func(i, j int) bool {
		return vouches[i].LimitAmount > vouches[j].LimitAmount
	})

	dueDate := s.now().Add(s.repaymentPeriod())
	var draws []*credit.Debt
	rest := amount
	for _, vouch := range vouches {
		if rest == 0 {
			break
		}
		draw := vouch.Remaining()
		if draw == 0 {
			continue
		}
		if draw > rest {
			draw = rest
		}
		draws = append(draws, &credit.Debt{
			VouchID:        vouch.ID,
			Borrower:       borrower,
			OriginalAmount: draw,
			AmountOwed:     draw,
			DueDate:        dueDate,
		})
		rest -= draw
	}
	if rest > 0 {
		return nil, apperrors.BusinessRuleError(nil,
			fmt.Sprintf("insufficient vouched credit: %d short of %d", rest, amount))
	}

	debts, err := s.store.AllocateDebts(ctx, draws)
	if err != nil {
		if errors.Is(err, creditstore.ErrVouchOverdrawn) || errors.Is(err, creditstore.ErrVouchInactive) {
			return nil, apperrors.ConflictError(err, "vouch capacity changed, retry the borrow")
		}
		return nil, err
	}

	s.logger.Info("credit drawn",
		zap.String("borrower", borrower),
		zap.Int64("amount", amount),
		zap.Int("debts", len(debts)))
	return debts, nil
}

// Repay applies a manual repayment to a debt.
func (s *Service) Repay(ctx context.Context, borrower string, debtID int64, amount int64) (*creditstore.PaymentResult, error) {
	if amount <= 0 {
		return nil, apperrors.BusinessRuleError(nil, "repayment amount must be positive")
	}

	debt, err := s.store.GetDebt(ctx, debtID)
	if err != nil {
		if errors.Is(err, creditstore.ErrDebtNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "debt not found")
		}
		return nil, err
	}
	if !auth.SameAddress(debt.Borrower, borrower) {
		return nil, apperrors.ForbiddenError(nil, "debt belongs to another borrower")
	}

	result, err := s.store.ApplyPayment(ctx, debtID, amount, credit.PaymentManual)
	if err != nil {
		if errors.Is(err, creditstore.ErrDebtNotPayable) {
			return nil, apperrors.BusinessRuleError(err, "debt is already settled")
		}
		return nil, err
	}
	metrics.PaymentsRecorded.WithLabelValues(string(result.Payment.Kind)).Inc()

	s.settleIfCleared(ctx, result)
	return result, nil
}

// settleIfCleared runs the shared fully-paid side effects: the on-time
// bonus and the chance to lift a stripped flag. The vouch capacity
// release already happened inside the payment transaction.
func (s *Service) settleIfCleared(ctx context.Context, result *creditstore.PaymentResult) {
	if !result.FullyPaid {
		return
	}
	borrower := result.Debt.Borrower

	if result.OnTime {
		if _, err := s.ledger.UpdateScore(ctx, borrower, s.cfg.OnTimeBonus, "on_time_repayment"); err != nil {
			s.logger.Error("failed to apply on-time bonus",
				zap.String("borrower", borrower), zap.Error(err))
		}
	}
	if _, err := s.ledger.RestoreIfClean(ctx, borrower); err != nil {
		s.logger.Error("failed to check reputation restore",
			zap.String("borrower", borrower), zap.Error(err))
	}

	s.logger.Info("debt fully repaid",
		zap.Int64("debt_id", result.Debt.ID),
		zap.String("borrower", borrower),
		zap.Bool("on_time", result.OnTime))
}

// SettleGarnishPayment applies the fully-paid side effects for a payment
// recorded by the garnishment engine.
func (s *Service) SettleGarnishPayment(ctx context.Context, result *creditstore.PaymentResult) {
	metrics.PaymentsRecorded.WithLabelValues(string(result.Payment.Kind)).Inc()
	s.settleIfCleared(ctx, result)
}

// ListDebts returns all debts for a borrower, newest first.
func (s *Service) ListDebts(ctx context.Context, borrower string) ([]*credit.Debt, error) {
	return s.store.ListDebtsForBorrower(ctx, auth.NormalizeAddress(borrower))
}

// ListPayments returns the payment trail for a debt.
func (s *Service) ListPayments(ctx context.Context, debtID int64) ([]*credit.Payment, error) {
	return s.store.ListPaymentsForDebt(ctx, debtID)
}

// SweepOverdue flips past-due active debts to overdue and applies the
// late penalty once per debt. Safe to run repeatedly.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	debts, err := s.store.DebtsPastDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	flipped := 0
	for _, debt := range debts {
		ok, err := s.store.MarkOverdue(ctx, debt.ID)
		if err != nil {
			s.logger.Error("failed to mark debt overdue",
				zap.Int64("debt_id", debt.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		flipped++
		metrics.DebtsSweptOverdue.Inc()
		if _, err := s.ledger.UpdateScore(ctx, debt.Borrower, -s.cfg.LatePenalty, "late_repayment"); err != nil {
			s.logger.Error("failed to apply late penalty",
				zap.String("borrower", debt.Borrower), zap.Error(err))
		}
	}
	return flipped, nil
}

// MarkDefaulted flips an overdue debt to defaulted and applies the
// default penalty. Defaulting is never automatic: it is an explicit
// operator action, allowed only once the grace period after the due
// date has elapsed. Terminal and irreversible.
func (s *Service) MarkDefaulted(ctx context.Context, debtID int64) error {
	debt, err := s.store.GetDebt(ctx, debtID)
	if err != nil {
		if errors.Is(err, creditstore.ErrDebtNotFound) {
			return apperrors.ResourceNotFoundError(err, "debt not found")
		}
		return err
	}
	if debt.Status != credit.DebtOverdue {
		return apperrors.BusinessRuleError(nil,
			fmt.Sprintf("only overdue debts can default, debt is %s", debt.Status))
	}
	if s.now().Before(debt.DueDate.Add(s.cfg.GracePeriod)) {
		return apperrors.BusinessRuleError(nil, "grace period has not elapsed")
	}

	ok, err := s.store.MarkDefaulted(ctx, debtID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ConflictError(nil, "debt state changed, retry")
	}

	s.logger.Warn("debt defaulted",
		zap.Int64("debt_id", debt.ID),
		zap.String("borrower", debt.Borrower))
	if _, err := s.ledger.UpdateScore(ctx, debt.Borrower, -s.cfg.DefaultPenalty, "default"); err != nil {
		s.logger.Error("failed to apply default penalty",
			zap.String("borrower", debt.Borrower), zap.Error(err))
	}
	return nil
}

// RunSweeper periodically runs the overdue sweep until the context is
// canceled. Defaults are never swept automatically; see MarkDefaulted.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOverdue(ctx); err != nil {
				s.logger.Error("overdue sweep failed", zap.Error(err))
			}
		}
	}
}

// repaymentPeriod converts the configured fractional days into a
// duration with millisecond precision.
func (s *Service) repaymentPeriod() time.Duration {
	return time.Duration(s.cfg.RepaymentPeriodDays * 24 * float64(time.Hour))
}
