package model

import (
	"time"

	"github.com/google/uuid"
)

// LedgerPostingOn enum constants
const (
	PostOnCreate = "ON_CREATE"
	PostOnSent   = "ON_SENT"
)

// CompanySettings is a single-row table holding posting configuration.
type CompanySettings struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyName     string    `gorm:"type:varchar(200)" json:"company_name"`
	GSTIN           string    `gorm:"column:gstin;type:varchar(15)" json:"gstin"`
	StateCode       string    `gorm:"type:varchar(2)" json:"state_code"`
	LedgerPostingOn string    `gorm:"type:varchar(20);not null;default:'ON_SENT'" json:"ledger_posting_on"`
	EnableTDS       bool      `gorm:"column:enable_tds;not null" json:"enable_tds"`
	EnableTCS       bool      `gorm:"column:enable_tcs;not null" json:"enable_tcs"`

	DefaultSalesAccountID         *uuid.UUID `gorm:"type:uuid" json:"default_sales_account_id"`
	DefaultPurchaseAccountID      *uuid.UUID `gorm:"type:uuid" json:"default_purchase_account_id"`
	DefaultReceivableAccountID    *uuid.UUID `gorm:"type:uuid" json:"default_receivable_account_id"`
	DefaultPayableAccountID       *uuid.UUID `gorm:"type:uuid" json:"default_payable_account_id"`
	DefaultCashAccountID          *uuid.UUID `gorm:"type:uuid" json:"default_cash_account_id"`
	DefaultBankAccountID          *uuid.UUID `gorm:"type:uuid" json:"default_bank_account_id"`
	DefaultCGSTOutputAccountID    *uuid.UUID `gorm:"column:default_cgst_output_account_id;type:uuid" json:"default_cgst_output_account_id"`
	DefaultSGSTOutputAccountID    *uuid.UUID `gorm:"column:default_sgst_output_account_id;type:uuid" json:"default_sgst_output_account_id"`
	DefaultIGSTOutputAccountID    *uuid.UUID `gorm:"column:default_igst_output_account_id;type:uuid" json:"default_igst_output_account_id"`
	DefaultCessOutputAccountID    *uuid.UUID `gorm:"type:uuid" json:"default_cess_output_account_id"`
	DefaultCGSTInputAccountID     *uuid.UUID `gorm:"column:default_cgst_input_account_id;type:uuid" json:"default_cgst_input_account_id"`
	DefaultSGSTInputAccountID     *uuid.UUID `gorm:"column:default_sgst_input_account_id;type:uuid" json:"default_sgst_input_account_id"`
	DefaultIGSTInputAccountID     *uuid.UUID `gorm:"column:default_igst_input_account_id;type:uuid" json:"default_igst_input_account_id"`
	DefaultCessInputAccountID     *uuid.UUID `gorm:"type:uuid" json:"default_cess_input_account_id"`
	DefaultTDSReceivableAccountID *uuid.UUID `gorm:"column:default_tds_receivable_account_id;type:uuid" json:"default_tds_receivable_account_id"`
	DefaultTDSPayableAccountID    *uuid.UUID `gorm:"column:default_tds_payable_account_id;type:uuid" json:"default_tds_payable_account_id"`
	DefaultTCSReceivableAccountID *uuid.UUID `gorm:"column:default_tcs_receivable_account_id;type:uuid" json:"default_tcs_receivable_account_id"`
	DefaultTCSPayableAccountID    *uuid.UUID `gorm:"column:default_tcs_payable_account_id;type:uuid" json:"default_tcs_payable_account_id"`
	DefaultRoundOffAccountID      *uuid.UUID `gorm:"type:uuid" json:"default_round_off_account_id"`

	UpdatedAt time.Time `json:"updated_at"`
}
