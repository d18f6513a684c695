package ledger

import (
	"context"

	"github.com/vouchnet/settlement-middleware/pkg/credit"
)

type mockStore struct {
	GetOrCreateProfileFunc func(ctx context.Context, address string) (*credit.Profile, error)
	AdjustScoreFunc        func(ctx context.Context, address string, delta int, reason string) (*credit.Profile, error)
	MarkStrippedFunc       func(ctx context.Context, address string) (bool, error)
	ClearStrippedFunc      func(ctx context.Context, address string) (bool, error)
	HasOpenDebtsFunc       func(ctx context.Context, borrower string) (bool, error)
	ListHistoryFunc        func(ctx context.Context, address string, limit int) ([]*credit.HistoryEntry, error)
}

func (m *mockStore) GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error) {
	return m.GetOrCreateProfileFunc(ctx, address)
}

func (m *mockStore) AdjustScore(ctx context.Context, address string, delta int, reason string) (*credit.Profile, error) {
	return m.AdjustScoreFunc(ctx, address, delta, reason)
}

func (m *mockStore) MarkStripped(ctx context.Context, address string) (bool, error) {
	return m.MarkStrippedFunc(ctx, address)
}

func (m *mockStore) ClearStripped(ctx context.Context, address string) (bool, error) {
	return m.ClearStrippedFunc(ctx, address)
}

func (m *mockStore) HasOpenDebts(ctx context.Context, borrower string) (bool, error) {
	return m.HasOpenDebtsFunc(ctx, borrower)
}

func (m *mockStore) ListHistory(ctx context.Context, address string, limit int) ([]*credit.HistoryEntry, error) {
	return m.ListHistoryFunc(ctx, address, limit)
}

type mockPusher struct {
	markDefaults  []string
	clearDefaults []string
	scorePushes   map[string]int
}

func newMockPusher() *mockPusher {
	return &mockPusher{scorePushes: map[string]int{}}
}

func (m *mockPusher) MarkDefault(user string)  { m.markDefaults = append(m.markDefaults, user) }
func (m *mockPusher) ClearDefault(user string) { m.clearDefaults = append(m.clearDefaults, user) }
func (m *mockPusher) UpdateCreditScore(user string, score int) {
	m.scorePushes[user] = score
}
