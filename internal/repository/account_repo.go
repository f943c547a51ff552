package repository

import (
	"context"

	"gstbooks/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountFilter narrows account listings.
type AccountFilter struct {
	AccountType string
	ActiveOnly  bool
}

type AccountRepository interface {
	Create(ctx context.Context, account *model.ChartOfAccount) error
	Update(ctx context.Context, account *model.ChartOfAccount) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ChartOfAccount, error)
	FindByCode(ctx context.Context, code string) (*model.ChartOfAccount, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.ChartOfAccount, error)
	List(ctx context.Context, filter AccountFilter) ([]model.ChartOfAccount, error)
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *model.ChartOfAccount) error {
	return GetDB(ctx, r.db).Create(account).Error
}

func (r *accountRepository) Update(ctx context.Context, account *model.ChartOfAccount) error {
	return GetDB(ctx, r.db).Omit("Children").Save(account).Error
}

func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Delete(&model.ChartOfAccount{}, "id = ?", id).Error
}

func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ChartOfAccount, error) {
	var account model.ChartOfAccount
	if err := GetDB(ctx, r.db).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByCode(ctx context.Context, code string) (*model.ChartOfAccount, error) {
	var account model.ChartOfAccount
	if err := GetDB(ctx, r.db).First(&account, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.ChartOfAccount, error) {
	var accounts []model.ChartOfAccount
	if len(ids) == 0 {
		return accounts, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) List(ctx context.Context, filter AccountFilter) ([]model.ChartOfAccount, error) {
	var accounts []model.ChartOfAccount
	query := GetDB(ctx, r.db)
	if filter.AccountType != "" {
		query = query.Where("account_type = ?", filter.AccountType)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("code").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
