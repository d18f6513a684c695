package service

import (
	"context"
	"net/http"

	"github.com/vouchnet/settlement-middleware/pkg/agent"
	"github.com/vouchnet/settlement-middleware/pkg/credit"
	"github.com/vouchnet/settlement-middleware/pkg/creditstore"
)

type mockSessions struct {
	StartSessionFunc func(ctx context.Context, privateKeyHex string) (agent.SessionInfo, error)
	StopSessionFunc  func(address string) error
	SessionFunc      func(address string) (agent.SessionInfo, error)
	SessionsFunc     func() []agent.SessionInfo
}

func (m *mockSessions) StartSession(ctx context.Context, privateKeyHex string) (agent.SessionInfo, error) {
	return m.StartSessionFunc(ctx, privateKeyHex)
}

func (m *mockSessions) StopSession(address string) error {
	return m.StopSessionFunc(address)
}

func (m *mockSessions) Session(address string) (agent.SessionInfo, error) {
	return m.SessionFunc(address)
}

func (m *mockSessions) Sessions() []agent.SessionInfo {
	return m.SessionsFunc()
}

type mockLender struct {
	CreateVouchFunc     func(ctx context.Context, voucher, borrower string, limit int64) (*credit.Vouch, error)
	RevokeVouchFunc     func(ctx context.Context, voucher string, vouchID int64) error
	BorrowFunc          func(ctx context.Context, borrower string, amount int64) ([]*credit.Debt, error)
	RepayFunc           func(ctx context.Context, borrower string, debtID int64, amount int64) (*creditstore.PaymentResult, error)
	MarkDefaultedFunc   func(ctx context.Context, debtID int64) error
	AvailableCreditFunc func(ctx context.Context, borrower string) (int64, error)
	ListDebtsFunc       func(ctx context.Context, borrower string) ([]*credit.Debt, error)
	ListPaymentsFunc    func(ctx context.Context, debtID int64) ([]*credit.Payment, error)
}

func (m *mockLender) CreateVouch(ctx context.Context, voucher, borrower string, limit int64) (*credit.Vouch, error) {
	return m.CreateVouchFunc(ctx, voucher, borrower, limit)
}

func (m *mockLender) RevokeVouch(ctx context.Context, voucher string, vouchID int64) error {
	return m.RevokeVouchFunc(ctx, voucher, vouchID)
}

func (m *mockLender) Borrow(ctx context.Context, borrower string, amount int64) ([]*credit.Debt, error) {
	return m.BorrowFunc(ctx, borrower, amount)
}

func (m *mockLender) Repay(ctx context.Context, borrower string, debtID int64, amount int64) (*creditstore.PaymentResult, error) {
	return m.RepayFunc(ctx, borrower, debtID, amount)
}

func (m *mockLender) MarkDefaulted(ctx context.Context, debtID int64) error {
	return m.MarkDefaultedFunc(ctx, debtID)
}

func (m *mockLender) AvailableCredit(ctx context.Context, borrower string) (int64, error) {
	return m.AvailableCreditFunc(ctx, borrower)
}

func (m *mockLender) ListDebts(ctx context.Context, borrower string) ([]*credit.Debt, error) {
	return m.ListDebtsFunc(ctx, borrower)
}

func (m *mockLender) ListPayments(ctx context.Context, debtID int64) ([]*credit.Payment, error) {
	return m.ListPaymentsFunc(ctx, debtID)
}

type mockProfiles struct {
	GetOrCreateProfileFunc func(ctx context.Context, address string) (*credit.Profile, error)
	SetGarnishPercentFunc  func(ctx context.Context, address string, percent int) error
	SetAutoRepayFunc       func(ctx context.Context, address string, enabled bool) error
}

func (m *mockProfiles) GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error) {
	return m.GetOrCreateProfileFunc(ctx, address)
}

func (m *mockProfiles) SetGarnishPercent(ctx context.Context, address string, percent int) error {
	return m.SetGarnishPercentFunc(ctx, address, percent)
}

func (m *mockProfiles) SetAutoRepay(ctx context.Context, address string, enabled bool) error {
	return m.SetAutoRepayFunc(ctx, address, enabled)
}

type mockHistorian struct {
	HistoryFunc func(ctx context.Context, address string, limit int) ([]*credit.HistoryEntry, error)
}

func (m *mockHistorian) History(ctx context.Context, address string, limit int) ([]*credit.HistoryEntry, error) {
	return m.HistoryFunc(ctx, address, limit)
}

// passGuard lets every request through, used where auth is not under test.
type passGuard struct{}

func (passGuard) Middleware(next http.Handler) http.Handler { return next }
