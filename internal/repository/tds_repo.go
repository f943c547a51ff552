package repository

import (
	"context"
	"time"

	"gstbooks/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChallanFilter narrows challan listings. Superseded challans are excluded unless asked for.
type ChallanFilter struct {
	FinancialYear     string
	TDSType           string
	Month             int
	Quarter           int
	BranchID          *uuid.UUID
	IncludeSuperseded bool
}

type TDSRepository interface {
	CreateChallan(ctx context.Context, challan *model.TDSChallan) error
	UpdateChallan(ctx context.Context, challan *model.TDSChallan) error
	UpdateEntry(ctx context.Context, entry *model.TDSChallanEntry) error
	FindChallanByID(ctx context.Context, id uuid.UUID) (*model.TDSChallan, error)
	FindChallanForUpdate(ctx context.Context, id uuid.UUID) (*model.TDSChallan, error)
	ListChallans(ctx context.Context, filter ChallanFilter) ([]model.TDSChallan, error)
	SupersedeChallan(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateReturn(ctx context.Context, ret *model.TDSReturn) error
	UpdateReturn(ctx context.Context, ret *model.TDSReturn) error
	FindReturn(ctx context.Context, financialYear string, quarter int, tdsType string, branchID *uuid.UUID) (*model.TDSReturn, error)
	FindReturnForUpdate(ctx context.Context, id uuid.UUID) (*model.TDSReturn, error)
	// ListReturnsForPeriod returns every branch's return for the quarter, locked for share.
	ListReturnsForPeriod(ctx context.Context, financialYear string, quarter int, tdsType string) ([]model.TDSReturn, error)
	ListReturns(ctx context.Context, financialYear, tdsType string) ([]model.TDSReturn, error)
}

type tdsRepository struct {
	db *gorm.DB
}

func NewTDSRepository(db *gorm.DB) TDSRepository {
	return &tdsRepository{db: db}
}

func (r *tdsRepository) CreateChallan(ctx context.Context, challan *model.TDSChallan) error {
	return GetDB(ctx, r.db).Create(challan).Error
}

func (r *tdsRepository) UpdateChallan(ctx context.Context, challan *model.TDSChallan) error {
	return GetDB(ctx, r.db).Omit("Entries").Save(challan).Error
}

func (r *tdsRepository) UpdateEntry(ctx context.Context, entry *model.TDSChallanEntry) error {
	return GetDB(ctx, r.db).Save(entry).Error
}

func orderEntries(db *gorm.DB) *gorm.DB {
	return db.Order("invoice_date, invoice_number")
}

func (r *tdsRepository) FindChallanByID(ctx context.Context, id uuid.UUID) (*model.TDSChallan, error) {
	var challan model.TDSChallan
	if err := GetDB(ctx, r.db).Preload("Entries", orderEntries).First(&challan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &challan, nil
}

func (r *tdsRepository) FindChallanForUpdate(ctx context.Context, id uuid.UUID) (*model.TDSChallan, error) {
	var challan model.TDSChallan
	db := GetDB(ctx, r.db)
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&challan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := orderEntries(db.Where("challan_id = ?", id)).Find(&challan.Entries).Error; err != nil {
		return nil, err
	}
	return &challan, nil
}

func (r *tdsRepository) ListChallans(ctx context.Context, f ChallanFilter) ([]model.TDSChallan, error) {
	var challans []model.TDSChallan
	query := GetDB(ctx, r.db).Preload("Entries", orderEntries)
	if f.FinancialYear != "" {
		query = query.Where("financial_year = ?", f.FinancialYear)
	}
	if f.TDSType != "" {
		query = query.Where("tds_type = ?", f.TDSType)
	}
	if f.Month != 0 {
		query = query.Where("month = ?", f.Month)
	}
	if f.Quarter != 0 {
		query = query.Where("quarter = ?", f.Quarter)
	}
	if f.BranchID != nil {
		query = query.Where("branch_id = ?", *f.BranchID)
	}
	if !f.IncludeSuperseded {
		query = query.Where("superseded_at IS NULL")
	}
	if err := query.Order("payment_date, challan_number").Find(&challans).Error; err != nil {
		return nil, err
	}
	return challans, nil
}

func (r *tdsRepository) SupersedeChallan(ctx context.Context, id uuid.UUID, at time.Time) error {
	db := GetDB(ctx, r.db)
	if err := db.Model(&model.TDSChallan{}).Where("id = ?", id).Update("superseded_at", at).Error; err != nil {
		return err
	}
	return db.Model(&model.TDSChallanEntry{}).Where("challan_id = ?", id).Update("superseded", true).Error
}

func (r *tdsRepository) CreateReturn(ctx context.Context, ret *model.TDSReturn) error {
	return GetDB(ctx, r.db).Create(ret).Error
}

func (r *tdsRepository) UpdateReturn(ctx context.Context, ret *model.TDSReturn) error {
	return GetDB(ctx, r.db).Save(ret).Error
}

func (r *tdsRepository) FindReturn(ctx context.Context, financialYear string, quarter int, tdsType string, branchID *uuid.UUID) (*model.TDSReturn, error) {
	var ret model.TDSReturn
	query := GetDB(ctx, r.db).Where("financial_year = ? AND quarter = ? AND tds_type = ?", financialYear, quarter, tdsType)
	if branchID == nil {
		query = query.Where("branch_id IS NULL")
	} else {
		query = query.Where("branch_id = ?", *branchID)
	}
	if err := query.First(&ret).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *tdsRepository) FindReturnForUpdate(ctx context.Context, id uuid.UUID) (*model.TDSReturn, error) {
	var ret model.TDSReturn
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&ret, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *tdsRepository) ListReturnsForPeriod(ctx context.Context, financialYear string, quarter int, tdsType string) ([]model.TDSReturn, error) {
	var rets []model.TDSReturn
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("financial_year = ? AND quarter = ? AND tds_type = ?", financialYear, quarter, tdsType).
		Find(&rets).Error; err != nil {
		return nil, err
	}
	return rets, nil
}

func (r *tdsRepository) ListReturns(ctx context.Context, financialYear, tdsType string) ([]model.TDSReturn, error) {
	var rets []model.TDSReturn
	query := GetDB(ctx, r.db).Where("financial_year = ?", financialYear)
	if tdsType != "" {
		query = query.Where("tds_type = ?", tdsType)
	}
	if err := query.Order("quarter").Find(&rets).Error; err != nil {
		return nil, err
	}
	return rets, nil
}
