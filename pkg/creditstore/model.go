package creditstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/vouchnet/settlement-middleware/pkg/credit"
)

// ProfileDao is a data access object that maps directly to the 'users' table in PostgreSQL.
type ProfileDao struct {
	bun.BaseModel  `bun:"table:users,alias:u"`
	ID             int64     `bun:"id,pk,autoincrement"`
	Address        string    `bun:"address,unique,notnull,type:varchar(42)"`
	CreditScore    int       `bun:"credit_score,notnull,default:500"`
	Stripped       bool      `bun:"stripped,notnull,default:false"`
	GarnishPercent int       `bun:"garnish_percentage,notnull,default:10"`
	AutoRepay      bool      `bun:"auto_repay,notnull,default:true"`
	CreatedAt      time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// VouchDao is a data access object that maps directly to the 'vouches' table in PostgreSQL.
type VouchDao struct {
	bun.BaseModel `bun:"table:vouches,alias:v"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Voucher       string    `bun:"voucher,notnull,type:varchar(42)"`
	Borrower      string    `bun:"borrower,notnull,type:varchar(42)"`
	LimitAmount   int64     `bun:"limit_amount,notnull"`
	CurrentUsage  int64     `bun:"current_usage,notnull,default:0"`
	Active        bool      `bun:"active,notnull,default:true"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// DebtDao is a data access object that maps directly to the 'debts' table in PostgreSQL.
type DebtDao struct {
	bun.BaseModel  `bun:"table:debts,alias:d"`
	ID             int64      `bun:"id,pk,autoincrement"`
	VouchID        int64      `bun:"vouch_id,notnull"`
	Borrower       string     `bun:"borrower,notnull,type:varchar(42)"`
	OriginalAmount int64      `bun:"original_amount,notnull"`
	AmountOwed     int64      `bun:"amount_owed,notnull"`
	DueDate        time.Time  `bun:"due_date,notnull"`
	Status         string     `bun:"status,notnull,default:'active',type:varchar(16)"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	PaidAt         *time.Time `bun:"paid_at"`
}

// PaymentDao is a data access object that maps directly to the 'payments' table in PostgreSQL.
type PaymentDao struct {
	bun.BaseModel `bun:"table:payments,alias:p"`
	ID            string    `bun:"id,pk,type:uuid"`
	DebtID        int64     `bun:"debt_id,notnull"`
	Amount        int64     `bun:"amount,notnull"`
	Kind          string    `bun:"kind,notnull,type:varchar(16)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// HistoryDao is a data access object that maps directly to the 'credit_history' table in PostgreSQL.
type HistoryDao struct {
	bun.BaseModel `bun:"table:credit_history,alias:ch"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Address       string    `bun:"address,notnull,type:varchar(42)"`
	OldScore      int       `bun:"old_score,notnull"`
	NewScore      int       `bun:"new_score,notnull"`
	Reason        string    `bun:"reason,notnull,type:varchar(255)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toProfile(dao *ProfileDao) *credit.Profile {
	return &credit.Profile{
		Address:        dao.Address,
		Score:          dao.CreditScore,
		Stripped:       dao.Stripped,
		GarnishPercent: dao.GarnishPercent,
		AutoRepay:      dao.AutoRepay,
		CreatedAt:      dao.CreatedAt,
		UpdatedAt:      dao.UpdatedAt,
	}
}

func toVouch(dao *VouchDao) *credit.Vouch {
	return &credit.Vouch{
		ID:           dao.ID,
		Voucher:      dao.Voucher,
		Borrower:     dao.Borrower,
		LimitAmount:  dao.LimitAmount,
		CurrentUsage: dao.CurrentUsage,
		Active:       dao.Active,
		CreatedAt:    dao.CreatedAt,
	}
}

func toDebt(dao *DebtDao) *credit.Debt {
	return &credit.Debt{
		ID:             dao.ID,
		VouchID:        dao.VouchID,
		Borrower:       dao.Borrower,
		OriginalAmount: dao.OriginalAmount,
		AmountOwed:     dao.AmountOwed,
		DueDate:        dao.DueDate,
		Status:         credit.DebtStatus(dao.Status),
		CreatedAt:      dao.CreatedAt,
		PaidAt:         dao.PaidAt,
	}
}

func toDebtDao(d *credit.Debt) *DebtDao {
	return &DebtDao{
		ID:             d.ID,
		VouchID:        d.VouchID,
		Borrower:       d.Borrower,
		OriginalAmount: d.OriginalAmount,
		AmountOwed:     d.AmountOwed,
		DueDate:        d.DueDate,
		Status:         string(d.Status),
		PaidAt:         d.PaidAt,
	}
}

func toPayment(dao *PaymentDao) *credit.Payment {
	return &credit.Payment{
		ID:        dao.ID,
		DebtID:    dao.DebtID,
		Amount:    dao.Amount,
		Kind:      credit.PaymentKind(dao.Kind),
		CreatedAt: dao.CreatedAt,
	}
}

func toHistoryEntry(dao *HistoryDao) *credit.HistoryEntry {
	return &credit.HistoryEntry{
		ID:        dao.ID,
		Address:   dao.Address,
		OldScore:  dao.OldScore,
		NewScore:  dao.NewScore,
		Reason:    dao.Reason,
		CreatedAt: dao.CreatedAt,
	}
}
