package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enum constants
const (
	AccountAsset     = "ASSET"
	AccountLiability = "LIABILITY"
	AccountEquity    = "EQUITY"
	AccountRevenue   = "REVENUE"
	AccountExpense   = "EXPENSE"
)

// LedgerReferenceType enum constants
const (
	LedgerRefInvoice = "INVOICE"
	LedgerRefPayment = "PAYMENT"
	LedgerRefJournal = "JOURNAL"
	LedgerRefOpening = "OPENING"
)

// Voucher prefixes
const (
	VoucherPrefixInvoice = "INV"
	VoucherPrefixPayment = "PAY"
	VoucherPrefixJournal = "JRN"
	VoucherPrefixOpening = "OPN"
)

// ChartOfAccount is a node in the account tree. A child always shares its parent's type.
type ChartOfAccount struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code         string           `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"`
	Name         string           `gorm:"type:varchar(200);not null" json:"name"`
	AccountType  string           `gorm:"type:varchar(20);not null;index" json:"account_type"`
	AccountGroup string           `gorm:"type:varchar(100)" json:"account_group"`
	ParentID     *uuid.UUID       `gorm:"type:uuid;index" json:"parent_id"`
	Children     []ChartOfAccount `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	Description  string           `gorm:"type:text" json:"description"`
	IsActive     bool             `gorm:"not null;default:true" json:"is_active"`
	IsSystem     bool             `gorm:"not null;default:false" json:"is_system"` // seeded; code/type/parent locked
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// LedgerEntry is one journal line. Rows are append-only.
type LedgerEntry struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VoucherNumber string          `gorm:"type:varchar(50);not null;index" json:"voucher_number"`
	LineNo        int             `gorm:"not null" json:"line_no"`
	EntryDate     time.Time       `gorm:"type:date;not null;index" json:"entry_date"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"account_id"`
	Account       *ChartOfAccount `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Debit         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"debit"`
	Credit        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"credit"`
	ReferenceType string          `gorm:"type:varchar(20);not null;index:idx_ledger_reference" json:"reference_type"`
	ReferenceID   *uuid.UUID      `gorm:"type:uuid;index:idx_ledger_reference" json:"reference_id"`
	Narration     string          `gorm:"type:text" json:"narration"`
	ClientID      *uuid.UUID      `gorm:"type:uuid;index" json:"client_id"`
	VendorID      *uuid.UUID      `gorm:"type:uuid;index" json:"vendor_id"`
	BranchID      *uuid.UUID      `gorm:"type:uuid;index" json:"branch_id"`
	FinancialYear string          `gorm:"type:varchar(7);not null;index" json:"financial_year"`
	CreatedAt     time.Time       `json:"created_at"`
}

// VoucherSequence holds the last number issued per (prefix, financial year).
type VoucherSequence struct {
	Prefix        string `gorm:"type:varchar(10);primaryKey" json:"prefix"`
	FinancialYear string `gorm:"type:varchar(7);primaryKey" json:"financial_year"`
	LastNumber    int    `gorm:"not null;default:0" json:"last_number"`
}
