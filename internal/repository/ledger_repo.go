package repository

import (
	"context"
	"time"

	"gstbooks/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerFilter restricts journal queries. Nil fields are ignored.
type LedgerFilter struct {
	AccountID *uuid.UUID
	ClientID  *uuid.UUID
	VendorID  *uuid.UUID
	BranchID  *uuid.UUID
}

// AccountTotal is a trial balance row.
type AccountTotal struct {
	AccountID   uuid.UUID
	Code        string
	Name        string
	AccountType string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

type LedgerRepository interface {
	CreateEntries(ctx context.Context, entries []model.LedgerEntry) error
	FindByVoucher(ctx context.Context, voucherNumber string) ([]model.LedgerEntry, error)
	// SumBefore returns Σdebit − Σcredit of entries dated strictly before the given day.
	SumBefore(ctx context.Context, filter LedgerFilter, before time.Time) (decimal.Decimal, error)
	ListRange(ctx context.Context, filter LedgerFilter, from, to time.Time) ([]model.LedgerEntry, error)
	TrialBalance(ctx context.Context, asOf time.Time) ([]AccountTotal, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	// NextSequence increments and returns the counter for (prefix, financial year) under a row lock.
	NextSequence(ctx context.Context, prefix, financialYear string) (int, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) CreateEntries(ctx context.Context, entries []model.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&entries).Error
}

func (r *ledgerRepository) FindByVoucher(ctx context.Context, voucherNumber string) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	if err := GetDB(ctx, r.db).
		Preload("Account").
		Where("voucher_number = ?", voucherNumber).
		Order("line_no").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerRepository) scope(query *gorm.DB, f LedgerFilter) *gorm.DB {
	if f.AccountID != nil {
		query = query.Where("account_id = ?", *f.AccountID)
	}
	if f.ClientID != nil {
		query = query.Where("client_id = ?", *f.ClientID)
	}
	if f.VendorID != nil {
		query = query.Where("vendor_id = ?", *f.VendorID)
	}
	if f.BranchID != nil {
		query = query.Where("branch_id = ?", *f.BranchID)
	}
	return query
}

func (r *ledgerRepository) SumBefore(ctx context.Context, filter LedgerFilter, before time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.scope(GetDB(ctx, r.db).Model(&model.LedgerEntry{}), filter).
		Where("entry_date < ?", before).
		Select("COALESCE(SUM(debit - credit), 0)").
		Row().Scan(&sum)
	return sum, err
}

func (r *ledgerRepository) ListRange(ctx context.Context, filter LedgerFilter, from, to time.Time) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	if err := r.scope(GetDB(ctx, r.db), filter).
		Where("entry_date >= ? AND entry_date <= ?", from, to).
		Order("entry_date, voucher_number, line_no").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerRepository) TrialBalance(ctx context.Context, asOf time.Time) ([]AccountTotal, error) {
	var rows []AccountTotal
	err := GetDB(ctx, r.db).Table("ledger_entries AS le").
		Select(`le.account_id AS account_id, a.code AS code, a.name AS name, a.account_type AS account_type,
			COALESCE(SUM(le.debit), 0) AS debit, COALESCE(SUM(le.credit), 0) AS credit`).
		Joins("JOIN chart_of_accounts a ON a.id = le.account_id").
		Where("le.entry_date <= ?", asOf).
		Group("le.account_id, a.code, a.name, a.account_type").
		Order("a.code").
		Scan(&rows).Error
	return rows, err
}

func (r *ledgerRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.LedgerEntry{}).Where("account_id = ?", accountID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ledgerRepository) NextSequence(ctx context.Context, prefix, financialYear string) (int, error) {
	db := GetDB(ctx, r.db)

	seed := model.VoucherSequence{Prefix: prefix, FinancialYear: financialYear}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, err
	}

	var seq model.VoucherSequence
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&seq, "prefix = ? AND financial_year = ?", prefix, financialYear).Error; err != nil {
		return 0, err
	}

	seq.LastNumber++
	if err := db.Model(&model.VoucherSequence{}).
		Where("prefix = ? AND financial_year = ?", prefix, financialYear).
		Update("last_number", seq.LastNumber).Error; err != nil {
		return 0, err
	}
	return seq.LastNumber, nil
}
