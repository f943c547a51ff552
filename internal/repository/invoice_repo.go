package repository

import (
	"context"
	"time"

	"gstbooks/internal/model"
	"gstbooks/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceFilter narrows invoice listings. Zero values are ignored.
type InvoiceFilter struct {
	InvoiceType string
	Status      string
	ClientID    *uuid.UUID
	VendorID    *uuid.UUID
	From        *time.Time
	To          *time.Time
}

// TDSInvoiceFilter selects TDS-applicable invoices in a date range.
type TDSInvoiceFilter struct {
	From        time.Time
	To          time.Time
	Types       []string
	Statuses    []string
	BranchID    *uuid.UUID
	OnlyPending bool // not referenced by a live challan
}

// GSTSummaryRow is one invoice type's tax totals.
type GSTSummaryRow struct {
	InvoiceType   string
	InvoiceCount  int64
	TaxableAmount decimal.Decimal
	CGSTAmount    decimal.Decimal
	SGSTAmount    decimal.Decimal
	IGSTAmount    decimal.Decimal
	CessAmount    decimal.Decimal
	TotalAmount   decimal.Decimal
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	Update(ctx context.Context, invoice *model.Invoice) error
	ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]model.Invoice, error)
	List(ctx context.Context, filter InvoiceFilter, page, limit int) ([]model.Invoice, int64, error)
	ListOverdueForUpdate(ctx context.Context, asOf time.Time) ([]model.Invoice, error)
	ListTDS(ctx context.Context, filter TDSInvoiceFilter) ([]model.Invoice, error)
	SetTDSChallan(ctx context.Context, ids []uuid.UUID, challanID *uuid.UUID) error
	GSTSummary(ctx context.Context, from, to time.Time) ([]GSTSummaryRow, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

// Update saves the invoice header. Items are managed by ReplaceItems.
func (r *invoiceRepository) Update(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Omit("Items").Save(invoice).Error
}

func (r *invoiceRepository) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("invoice_id = ?", invoiceID).Delete(&model.InvoiceItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ID = uuid.Nil
		items[i].InvoiceID = invoiceID
	}
	return db.Create(&items).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("serial_no") }).
		First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindByIDForUpdate locks the invoice row until the surrounding transaction ends.
func (r *invoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := GetDB(ctx, r.db).Where("invoice_id = ?", id).Order("serial_no").Find(&invoice.Items).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindByIDsForUpdate locks rows in id order so concurrent callers cannot deadlock.
func (r *invoiceRepository) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]model.Invoice, error) {
	var invoices []model.Invoice
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) applyFilter(query *gorm.DB, f InvoiceFilter) *gorm.DB {
	if f.InvoiceType != "" {
		query = query.Where("invoice_type = ?", f.InvoiceType)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.ClientID != nil {
		query = query.Where("client_id = ?", *f.ClientID)
	}
	if f.VendorID != nil {
		query = query.Where("vendor_id = ?", *f.VendorID)
	}
	if f.From != nil {
		query = query.Where("invoice_date >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("invoice_date <= ?", *f.To)
	}
	return query
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceFilter, page, limit int) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.applyFilter(db.Model(&model.Invoice{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := pagination.New(page, limit).Offset()
	if err := r.applyFilter(db, filter).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("serial_no") }).
		Order("invoice_date desc, invoice_number desc").
		Offset(offset).Limit(limit).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

func (r *invoiceRepository) ListOverdueForUpdate(ctx context.Context, asOf time.Time) ([]model.Invoice, error) {
	var invoices []model.Invoice
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status IN ?", []string{model.InvoiceSent, model.InvoicePartial}).
		Where("due_date IS NOT NULL AND due_date < ?", asOf).
		Order("id").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) ListTDS(ctx context.Context, f TDSInvoiceFilter) ([]model.Invoice, error) {
	var invoices []model.Invoice
	query := GetDB(ctx, r.db).
		Where("tds_applicable = ?", true).
		Where("invoice_date >= ? AND invoice_date <= ?", f.From, f.To)
	if len(f.Types) > 0 {
		query = query.Where("invoice_type IN ?", f.Types)
	}
	if len(f.Statuses) > 0 {
		query = query.Where("status IN ?", f.Statuses)
	}
	if f.BranchID != nil {
		query = query.Where("branch_id = ?", *f.BranchID)
	}
	if f.OnlyPending {
		query = query.Where("tds_challan_id IS NULL")
	}
	if err := query.Order("invoice_date, invoice_number").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) SetTDSChallan(ctx context.Context, ids []uuid.UUID, challanID *uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.Invoice{}).Where("id IN ?", ids).Update("tds_challan_id", challanID).Error
}

func (r *invoiceRepository) GSTSummary(ctx context.Context, from, to time.Time) ([]GSTSummaryRow, error) {
	var rows []GSTSummaryRow
	err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Select(`invoice_type,
			COUNT(*) AS invoice_count,
			COALESCE(SUM(taxable_amount), 0) AS taxable_amount,
			COALESCE(SUM(cgst_amount), 0) AS cgst_amount,
			COALESCE(SUM(sgst_amount), 0) AS sgst_amount,
			COALESCE(SUM(igst_amount), 0) AS igst_amount,
			COALESCE(SUM(cess_amount), 0) AS cess_amount,
			COALESCE(SUM(total_amount), 0) AS total_amount`).
		Where("status NOT IN ?", []string{model.InvoiceDraft, model.InvoiceCancelled}).
		Where("invoice_date >= ? AND invoice_date <= ?", from, to).
		Group("invoice_type").
		Order("invoice_type").
		Scan(&rows).Error
	return rows, err
}
