package repository

import (
	"context"

	"gstbooks/internal/model"
	"gstbooks/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	PaymentType string
	Status      string
	InvoiceID   *uuid.UUID
	ClientID    *uuid.UUID
	VendorID    *uuid.UUID
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	Update(ctx context.Context, payment *model.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	List(ctx context.Context, filter PaymentFilter, page, limit int) ([]model.Payment, int64, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Save(payment).Error
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := GetDB(ctx, r.db).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) List(ctx context.Context, filter PaymentFilter, page, limit int) ([]model.Payment, int64, error) {
	var payments []model.Payment
	var total int64

	scoped := func(query *gorm.DB) *gorm.DB {
		if filter.PaymentType != "" {
			query = query.Where("payment_type = ?", filter.PaymentType)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.InvoiceID != nil {
			query = query.Where("invoice_id = ?", *filter.InvoiceID)
		}
		if filter.ClientID != nil {
			query = query.Where("client_id = ?", *filter.ClientID)
		}
		if filter.VendorID != nil {
			query = query.Where("vendor_id = ?", *filter.VendorID)
		}
		return query
	}

	db := GetDB(ctx, r.db)
	if err := scoped(db.Model(&model.Payment{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := pagination.New(page, limit).Offset()
	if err := scoped(db).Order("payment_date desc, payment_number desc").Offset(offset).Limit(limit).Find(&payments).Error; err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}
