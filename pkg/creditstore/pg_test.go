package creditstore

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vouchnet/settlement-middleware/pkg/credit"
	"github.com/vouchnet/settlement-middleware/pkg/pgutil"
	mghelper "github.com/vouchnet/settlement-middleware/pkg/pgutil/migrations"
)

const (
	borrowerAddr = "0x1111111111111111111111111111111111111111"
	voucherAddr  = "0x2222222222222222222222222222222222222222"
)

func setupStore(t *testing.T) (context.Context, *Store) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	err := mghelper.CreateSchema(ctx, db,
		&ProfileDao{}, &VouchDao{}, &DebtDao{}, &PaymentDao{}, &HistoryDao{})
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return ctx, NewStore(db, ProfileDefaults{Score: 500, GarnishPercent: 10, AutoRepay: true})
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}

	for _, sock := range candidates {
		if sock == "" {
			continue
		}
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}

	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed creditstore tests")
}

func mustVouch(t *testing.T, ctx context.Context, s *Store, limit int64) *credit.Vouch {
	t.Helper()
	v, err := s.CreateVouch(ctx, &credit.Vouch{
		Voucher:     voucherAddr,
		Borrower:    borrowerAddr,
		LimitAmount: limit,
	})
	if err != nil {
		t.Fatalf("CreateVouch() failed: %v", err)
	}
	return v
}

func mustAllocate(t *testing.T, ctx context.Context, s *Store, vouchID, amount int64, due time.Time) *credit.Debt {
	t.Helper()
	debts, err := s.AllocateDebts(ctx, []*credit.Debt{{
		VouchID:        vouchID,
		Borrower:       borrowerAddr,
		OriginalAmount: amount,
		DueDate:        due,
	}})
	if err != nil {
		t.Fatalf("AllocateDebts() failed: %v", err)
	}
	return debts[0]
}

func TestStore_GetOrCreateProfile_Defaults(t *testing.T) {
	ctx, s := setupStore(t)

	profile, err := s.GetOrCreateProfile(ctx, borrowerAddr)
	if err != nil {
		t.Fatalf("GetOrCreateProfile() failed: %v", err)
	}
	if profile.Score != 500 || profile.GarnishPercent != 10 || !profile.AutoRepay {
		t.Errorf("unexpected defaults: %+v", profile)
	}

	// second call returns the same row
	again, err := s.GetOrCreateProfile(ctx, borrowerAddr)
	if err != nil {
		t.Fatalf("second GetOrCreateProfile() failed: %v", err)
	}
	if again.Address != profile.Address || again.Score != profile.Score {
		t.Errorf("expected stable profile, got %+v vs %+v", again, profile)
	}
}

func TestStore_AdjustScore_ClampsAndRecordsHistory(t *testing.T) {
	ctx, s := setupStore(t)

	if _, err := s.GetOrCreateProfile(ctx, borrowerAddr); err != nil {
		t.Fatalf("GetOrCreateProfile() failed: %v", err)
	}

	profile, err := s.AdjustScore(ctx, borrowerAddr, 1000, "on-time repayment")
	if err != nil {
		t.Fatalf("AdjustScore() failed: %v", err)
	}
	if profile.Score != credit.MaxScore {
		t.Errorf("expected score clamped to %d, got %d", credit.MaxScore, profile.Score)
	}

	profile, err = s.AdjustScore(ctx, borrowerAddr, -2000, "loan default")
	if err != nil {
		t.Fatalf("AdjustScore() failed: %v", err)
	}
	if profile.Score != credit.MinScore {
		t.Errorf("expected score clamped to %d, got %d", credit.MinScore, profile.Score)
	}

	entries, err := s.ListHistory(ctx, borrowerAddr, 10)
	if err != nil {
		t.Fatalf("ListHistory() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	// newest first
	if entries[0].Reason != "loan default" || entries[0].NewScore != credit.MinScore {
		t.Errorf("unexpected newest entry: %+v", entries[0])
	}
	if entries[1].OldScore != 500 || entries[1].NewScore != credit.MaxScore {
		t.Errorf("unexpected oldest entry: %+v", entries[1])
	}
}

func TestStore_MarkStripped_Idempotent(t *testing.T) {
	ctx, s := setupStore(t)

	if _, err := s.GetOrCreateProfile(ctx, borrowerAddr); err != nil {
		t.Fatalf("GetOrCreateProfile() failed: %v", err)
	}

	changed, err := s.MarkStripped(ctx, borrowerAddr)
	if err != nil {
		t.Fatalf("MarkStripped() failed: %v", err)
	}
	if !changed {
		t.Error("expected first MarkStripped to report a change")
	}

	changed, err = s.MarkStripped(ctx, borrowerAddr)
	if err != nil {
		t.Fatalf("second MarkStripped() failed: %v", err)
	}
	if changed {
		t.Error("expected second MarkStripped to be a no-op")
	}
}

func TestStore_CreateVouch_RejectsDuplicateActivePair(t *testing.T) {
	ctx, s := setupStore(t)

	mustVouch(t, ctx, s, 2000)

	_, err := s.CreateVouch(ctx, &credit.Vouch{
		Voucher:     voucherAddr,
		Borrower:    borrowerAddr,
		LimitAmount: 500,
	})
	if !errors.Is(err, ErrDuplicateVouch) {
		t.Fatalf("expected ErrDuplicateVouch, got %v", err)
	}

	// revoking frees the pair for a fresh vouch
	vouches, err := s.ActiveVouchesForBorrower(ctx, borrowerAddr)
	if err != nil {
		t.Fatalf("ActiveVouchesForBorrower() failed: %v", err)
	}
	if err := s.DeactivateVouch(ctx, vouches[0].ID); err != nil {
		t.Fatalf("DeactivateVouch() failed: %v", err)
	}
	if _, err := s.CreateVouch(ctx, &credit.Vouch{
		Voucher:     voucherAddr,
		Borrower:    borrowerAddr,
		LimitAmount: 500,
	}); err != nil {
		t.Fatalf("expected re-vouch after revoke to succeed, got %v", err)
	}
}

func TestStore_AllocateDebts_AllOrNothing(t *testing.T) {
	ctx, s := setupStore(t)

	v := mustVouch(t, ctx, s, 1000)
	due := time.Now().Add(24 * time.Hour)

	_, err := s.AllocateDebts(ctx, []*credit.Debt{
		{VouchID: v.ID, Borrower: borrowerAddr, OriginalAmount: 600, DueDate: due},
		{VouchID: v.ID, Borrower: borrowerAddr, OriginalAmount: 600, DueDate: due},
	})
	if !errors.Is(err, ErrVouchOverdrawn) {
		t.Fatalf("expected ErrVouchOverdrawn, got %v", err)
	}

	// nothing committed: usage untouched, no debts behind
	got, err := s.GetVouch(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVouch() failed: %v", err)
	}
	if got.CurrentUsage != 0 {
		t.Errorf("expected usage 0 after rollback, got %d", got.CurrentUsage)
	}
	debts, err := s.OpenDebtsForBorrower(ctx, borrowerAddr)
	if err != nil {
		t.Fatalf("OpenDebtsForBorrower() failed: %v", err)
	}
	if len(debts) != 0 {
		t.Errorf("expected no debts after rollback, got %d", len(debts))
	}
}

func TestStore_ApplyPayment_PartialThenFull(t *testing.T) {
	ctx, s := setupStore(t)

	v := mustVouch(t, ctx, s, 2000)
	debt := mustAllocate(t, ctx, s, v.ID, 1200, time.Now().Add(24*time.Hour))

	// partial payment
	result, err := s.ApplyPayment(ctx, debt.ID, 500, credit.PaymentManual)
	if err != nil {
		t.Fatalf("ApplyPayment() failed: %v", err)
	}
	if result.FullyPaid {
		t.Error("expected partial payment not to fully pay")
	}
	if result.Debt.AmountOwed != 700 {
		t.Errorf("expected amount owed 700, got %d", result.Debt.AmountOwed)
	}
	if result.Payment.Kind != credit.PaymentManual {
		t.Errorf("expected kind manual, got %s", result.Payment.Kind)
	}

	// vouch usage untouched by partial payments
	got, err := s.GetVouch(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVouch() failed: %v", err)
	}
	if got.CurrentUsage != 1200 {
		t.Errorf("expected usage 1200 after partial payment, got %d", got.CurrentUsage)
	}

	// overpay caps at owed, clears debt, releases the original principal
	result, err = s.ApplyPayment(ctx, debt.ID, 9999, credit.PaymentManual)
	if err != nil {
		t.Fatalf("ApplyPayment() failed: %v", err)
	}
	if !result.FullyPaid || !result.OnTime {
		t.Errorf("expected fully paid on-time result, got %+v", result)
	}
	if result.Payment.Amount != 700 {
		t.Errorf("expected capped payment 700, got %d", result.Payment.Amount)
	}
	if result.Payment.Kind != credit.PaymentFull {
		t.Errorf("expected kind full, got %s", result.Payment.Kind)
	}
	if result.Debt.Status != credit.DebtPaid || result.Debt.PaidAt == nil {
		t.Errorf("expected paid debt with paid_at, got %+v", result.Debt)
	}

	got, err = s.GetVouch(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVouch() failed: %v", err)
	}
	if got.CurrentUsage != 0 {
		t.Errorf("expected usage released to 0, got %d", got.CurrentUsage)
	}

	// a third payment hits a terminal debt
	if _, err = s.ApplyPayment(ctx, debt.ID, 100, credit.PaymentManual); !errors.Is(err, ErrDebtNotPayable) {
		t.Fatalf("expected ErrDebtNotPayable, got %v", err)
	}
}

func TestStore_ApplyPayment_ConcurrentPaymentsDoNotDoubleCount(t *testing.T) {
	ctx, s := setupStore(t)

	// a second debt keeps usage above zero so a double release of the
	// first debt's principal would be visible
	v := mustVouch(t, ctx, s, 2000)
	debt := mustAllocate(t, ctx, s, v.ID, 1000, time.Now().Add(24*time.Hour))
	mustAllocate(t, ctx, s, v.ID, 500, time.Now().Add(24*time.Hour))

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.ApplyPayment(ctx, debt.ID, 300, credit.PaymentGarnish)
			if err != nil {
				if !errors.Is(err, ErrDebtNotPayable) {
					t.Errorf("unexpected ApplyPayment error: %v", err)
				}
				return
			}
			mu.Lock()
			applied += result.Payment.Amount
			mu.Unlock()
		}()
	}
	wg.Wait()

	// total relief equals the amount owed, never more
	if applied != 1000 {
		t.Errorf("expected total applied 1000, got %d", applied)
	}

	got, err := s.GetDebt(ctx, debt.ID)
	if err != nil {
		t.Fatalf("GetDebt() failed: %v", err)
	}
	if got.AmountOwed != 0 || got.Status != credit.DebtPaid {
		t.Errorf("expected paid debt with 0 owed, got owed=%d status=%s", got.AmountOwed, got.Status)
	}

	// usage released exactly once, by the first debt's principal only
	vouch, err := s.GetVouch(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVouch() failed: %v", err)
	}
	if vouch.CurrentUsage != 500 {
		t.Errorf("expected usage 500 after single release, got %d", vouch.CurrentUsage)
	}
}

func TestStore_MarkOverdue_Idempotent(t *testing.T) {
	ctx, s := setupStore(t)

	v := mustVouch(t, ctx, s, 2000)
	debt := mustAllocate(t, ctx, s, v.ID, 300, time.Now().Add(-time.Hour))

	flipped, err := s.MarkOverdue(ctx, debt.ID)
	if err != nil {
		t.Fatalf("MarkOverdue() failed: %v", err)
	}
	if !flipped {
		t.Error("expected first sweep to flip the debt")
	}

	flipped, err = s.MarkOverdue(ctx, debt.ID)
	if err != nil {
		t.Fatalf("second MarkOverdue() failed: %v", err)
	}
	if flipped {
		t.Error("expected repeated sweep to be a no-op")
	}
}

func TestStore_AvailableCredit(t *testing.T) {
	ctx, s := setupStore(t)

	v := mustVouch(t, ctx, s, 2000)
	mustAllocate(t, ctx, s, v.ID, 1200, time.Now().Add(24*time.Hour))

	available, err := s.AvailableCredit(ctx, borrowerAddr)
	if err != nil {
		t.Fatalf("AvailableCredit() failed: %v", err)
	}
	if available != 800 {
		t.Errorf("expected available credit 800, got %d", available)
	}
}
