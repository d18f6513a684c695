package credit

import (
	"testing"
	"time"
)

func TestClampScore(t *testing.T) {
	tests := []struct {
		name  string
		score int
		want  int
	}{
		{"below floor", 120, MinScore},
		{"at floor", 300, 300},
		{"mid range", 650, 650},
		{"at ceiling", 900, 900},
		{"above ceiling", 1200, MaxScore},
		{"negative", -50, MinScore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampScore(tt.score); got != tt.want {
				t.Errorf("ClampScore(%d) = %d, want %d", tt.score, got, tt.want)
			}
		})
	}
}

func TestGarnishAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		percent int
		owed    int64
		want    int64
	}{
		{"zero percent", 1000, 0, 500, 0},
		{"zero owed", 1000, 50, 0, 0},
		{"basic split", 1000, 50, 5000, 500},
		{"capped by owed", 100, 50, 40, 40},
		{"floors fraction", 99, 10, 5000, 9},
		{"full percent", 250, 100, 5000, 250},
		{"percent over hundred", 250, 150, 5000, 250},
		{"negative amount", -10, 50, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GarnishAmount(tt.amount, tt.percent, tt.owed)
			if got != tt.want {
				t.Errorf("GarnishAmount(%d, %d, %d) = %d, want %d",
					tt.amount, tt.percent, tt.owed, got, tt.want)
			}
			if got > tt.amount && tt.amount > 0 {
				t.Errorf("garnish %d exceeds transfer amount %d", got, tt.amount)
			}
		})
	}
}

func TestVouchRemaining(t *testing.T) {
	v := &Vouch{LimitAmount: 2000, CurrentUsage: 1200}
	if got := v.Remaining(); got != 800 {
		t.Errorf("Remaining() = %d, want 800", got)
	}

	// usage at limit
	v.CurrentUsage = 2000
	if got := v.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

func TestDebtPastDue(t *testing.T) {
	now := time.Now()

	d := &Debt{Status: DebtActive, DueDate: now.Add(-time.Hour)}
	if !d.PastDue(now) {
		t.Error("expected active debt with elapsed due date to be past due")
	}

	d.DueDate = now.Add(time.Hour)
	if d.PastDue(now) {
		t.Error("expected debt with future due date not to be past due")
	}

	d.Status = DebtPaid
	d.DueDate = now.Add(-time.Hour)
	if d.PastDue(now) {
		t.Error("paid debt must never be past due")
	}
}

func TestDebtStatusTerminal(t *testing.T) {
	if DebtActive.Terminal() || DebtOverdue.Terminal() {
		t.Error("active and overdue are not terminal states")
	}
	if !DebtPaid.Terminal() || !DebtDefaulted.Terminal() {
		t.Error("paid and defaulted are terminal states")
	}
}
