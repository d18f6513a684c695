package lending

import (
	"context"
	"time"

	"github.com/vouchnet/settlement-middleware/pkg/credit"
	"github.com/vouchnet/settlement-middleware/pkg/creditstore"
)

type mockStore struct {
	GetOrCreateProfileFunc       func(ctx context.Context, address string) (*credit.Profile, error)
	CreateVouchFunc              func(ctx context.Context, v *credit.Vouch) (*credit.Vouch, error)
	GetVouchFunc                 func(ctx context.Context, id int64) (*credit.Vouch, error)
	ActiveVouchesForBorrowerFunc func(ctx context.Context, borrower string) ([]*credit.Vouch, error)
	DeactivateVouchFunc          func(ctx context.Context, id int64) error
	AvailableCreditFunc          func(ctx context.Context, borrower string) (int64, error)
	OpenDebtCountForVouchFunc    func(ctx context.Context, vouchID int64) (int, error)
	AllocateDebtsFunc            func(ctx context.Context, debts []*credit.Debt) ([]*credit.Debt, error)
	GetDebtFunc                  func(ctx context.Context, id int64) (*credit.Debt, error)
	ListDebtsForBorrowerFunc     func(ctx context.Context, borrower string) ([]*credit.Debt, error)
	ApplyPaymentFunc             func(ctx context.Context, debtID int64, amount int64, kind credit.PaymentKind) (*creditstore.PaymentResult, error)
	DebtsPastDueFunc             func(ctx context.Context, now time.Time) ([]*credit.Debt, error)
	MarkOverdueFunc              func(ctx context.Context, debtID int64) (bool, error)
	MarkDefaultedFunc            func(ctx context.Context, debtID int64) (bool, error)
	ListPaymentsForDebtFunc      func(ctx context.Context, debtID int64) ([]*credit.Payment, error)
}

func newMockStore() *mockStore {
	return &mockStore{
		GetOrCreateProfileFunc: func(_ context.Context, address string) (*credit.Profile, error) {
			return &credit.Profile{Address: address, Score: 500}, nil
		},
	}
}

func (m *mockStore) GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error) {
	return m.GetOrCreateProfileFunc(ctx, address)
}

func (m *mockStore) CreateVouch(ctx context.Context, v *credit.Vouch) (*credit.Vouch, error) {
	return m.CreateVouchFunc(ctx, v)
}

func (m *mockStore) GetVouch(ctx context.Context, id int64) (*credit.Vouch, error) {
	return m.GetVouchFunc(ctx, id)
}

func (m *mockStore) ActiveVouchesForBorrower(ctx context.Context, borrower string) ([]*credit.Vouch, error) {
	return m.ActiveVouchesForBorrowerFunc(ctx, borrower)
}

func (m *mockStore) DeactivateVouch(ctx context.Context, id int64) error {
	return m.DeactivateVouchFunc(ctx, id)
}

func (m *mockStore) AvailableCredit(ctx context.Context, borrower string) (int64, error) {
	return m.AvailableCreditFunc(ctx, borrower)
}

func (m *mockStore) OpenDebtCountForVouch(ctx context.Context, vouchID int64) (int, error) {
	return m.OpenDebtCountForVouchFunc(ctx, vouchID)
}

func (m *mockStore) AllocateDebts(ctx context.Context, debts []*credit.Debt) ([]*credit.Debt, error) {
	return m.AllocateDebtsFunc(ctx, debts)
}

func (m *mockStore) GetDebt(ctx context.Context, id int64) (*credit.Debt, error) {
	return m.GetDebtFunc(ctx, id)
}

func (m *mockStore) ListDebtsForBorrower(ctx context.Context, borrower string) ([]*credit.Debt, error) {
	return m.ListDebtsForBorrowerFunc(ctx, borrower)
}

func (m *mockStore) ApplyPayment(ctx context.Context, debtID int64, amount int64, kind credit.PaymentKind) (*creditstore.PaymentResult, error) {
	return m.ApplyPaymentFunc(ctx, debtID, amount, kind)
}

func (m *mockStore) DebtsPastDue(ctx context.Context, now time.Time) ([]*credit.Debt, error) {
	return m.DebtsPastDueFunc(ctx, now)
}

func (m *mockStore) MarkOverdue(ctx context.Context, debtID int64) (bool, error) {
	return m.MarkOverdueFunc(ctx, debtID)
}

func (m *mockStore) MarkDefaulted(ctx context.Context, debtID int64) (bool, error) {
	return m.MarkDefaultedFunc(ctx, debtID)
}

func (m *mockStore) ListPaymentsForDebt(ctx context.Context, debtID int64) ([]*credit.Payment, error) {
	return m.ListPaymentsForDebtFunc(ctx, debtID)
}

type mockLedger struct {
	UpdateScoreFunc    func(ctx context.Context, address string, delta int, reason string) (*credit.Profile, error)
	RestoreIfCleanFunc func(ctx context.Context, address string) (bool, error)

	scoreCalls []scoreCall
}

type scoreCall struct {
	address string
	delta   int
	reason  string
}

func newMockLedger() *mockLedger {
	l := &mockLedger{}
	l.UpdateScoreFunc = func(_ context.Context, address string, delta int, reason string) (*credit.Profile, error) {
		l.scoreCalls = append(l.scoreCalls, scoreCall{address, delta, reason})
		return &credit.Profile{Address: address, Score: 500 + delta}, nil
	}
	l.RestoreIfCleanFunc = func(context.Context, string) (bool, error) { return false, nil }
	return l
}

func (m *mockLedger) UpdateScore(ctx context.Context, address string, delta int, reason string) (*credit.Profile, error) {
	return m.UpdateScoreFunc(ctx, address, delta, reason)
}

func (m *mockLedger) RestoreIfClean(ctx context.Context, address string) (bool, error) {
	return m.RestoreIfCleanFunc(ctx, address)
}
