package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TDSType enum constants
const (
	TDSPayable    = "PAYABLE"    // deducted by us on purchases
	TDSReceivable = "RECEIVABLE" // deducted by clients on sales
)

// TDSReturnStatus enum constants
const (
	ReturnDraft   = "DRAFT"
	ReturnFiled   = "FILED"
	ReturnRevised = "REVISED"
)

// DefaultTDSSection applies when an invoice does not name one.
const DefaultTDSSection = "194C"

// TDSChallan is a tax deposit covering one month of deductions.
type TDSChallan struct {
	ID            uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ChallanNumber string            `gorm:"type:varchar(50);not null;index" json:"challan_number"`
	BSRCode       string            `gorm:"column:bsr_code;type:varchar(20);not null" json:"bsr_code"`
	FinancialYear string            `gorm:"type:varchar(7);not null;index:idx_challan_period" json:"financial_year"`
	Month         int               `gorm:"not null;index:idx_challan_period" json:"month"`
	Quarter       int               `gorm:"not null" json:"quarter"`
	TDSType       string            `gorm:"column:tds_type;type:varchar(20);not null;index:idx_challan_period" json:"tds_type"`
	BranchID      *uuid.UUID        `gorm:"type:uuid;index" json:"branch_id"`
	PaymentDate   time.Time         `gorm:"type:date;not null" json:"payment_date"`
	TransactionID string            `gorm:"type:varchar(100)" json:"transaction_id"`
	TDSAmount     decimal.Decimal   `gorm:"column:tds_amount;type:decimal(18,2);not null;default:0" json:"tds_amount"`
	Penalty       decimal.Decimal   `gorm:"type:decimal(18,2);not null;default:0" json:"penalty"`
	Interest      decimal.Decimal   `gorm:"type:decimal(18,2);not null;default:0" json:"interest"`
	TotalAmount   decimal.Decimal   `gorm:"type:decimal(18,2);not null;default:0" json:"total_amount"` // tds + penalty + interest
	Notes         string            `gorm:"type:text" json:"notes"`
	SupersededAt  *time.Time        `gorm:"index" json:"superseded_at"`
	Entries       []TDSChallanEntry `gorm:"foreignKey:ChallanID" json:"entries"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TDSChallanEntry copies the TDS figures of one invoice into a challan.
// The partial unique index keeps an invoice in at most one live entry per (financial year, tds type).
type TDSChallanEntry struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ChallanID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"challan_id"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_challan_entry_invoice,where:superseded = false" json:"invoice_id"`
	FinancialYear string          `gorm:"type:varchar(7);not null;uniqueIndex:idx_challan_entry_invoice,where:superseded = false" json:"financial_year"`
	TDSType       string          `gorm:"column:tds_type;type:varchar(20);not null;uniqueIndex:idx_challan_entry_invoice,where:superseded = false" json:"tds_type"`
	InvoiceNumber string          `gorm:"type:varchar(50)" json:"invoice_number"`
	InvoiceDate   time.Time       `gorm:"type:date" json:"invoice_date"`
	PartyID       *uuid.UUID      `gorm:"type:uuid" json:"party_id"`
	BaseAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"base_amount"`
	TDSRate       decimal.Decimal `gorm:"column:tds_rate;type:decimal(5,2);not null" json:"tds_rate"`
	TDSSection    string          `gorm:"column:tds_section;type:varchar(20)" json:"tds_section"`
	TDSAmount     decimal.Decimal `gorm:"column:tds_amount;type:decimal(18,2);not null" json:"tds_amount"`
	Penalty       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"penalty"`
	Interest      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"interest"`
	Superseded    bool            `gorm:"not null;default:false" json:"superseded"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TDSReturn tracks the quarterly filing. A nil BranchID covers every branch.
type TDSReturn struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FinancialYear        string     `gorm:"type:varchar(7);not null;index:idx_tds_return_period" json:"financial_year"`
	Quarter              int        `gorm:"not null;index:idx_tds_return_period" json:"quarter"`
	TDSType              string     `gorm:"column:tds_type;type:varchar(20);not null;index:idx_tds_return_period" json:"tds_type"`
	BranchID             *uuid.UUID `gorm:"type:uuid;index" json:"branch_id"`
	Status               string     `gorm:"type:varchar(20);not null;default:'DRAFT'" json:"status"`
	FiledDate            *time.Time `gorm:"type:date" json:"filed_date"`
	AcknowledgmentNumber string     `gorm:"type:varchar(50)" json:"acknowledgment_number"`
	RevisionCount        int        `gorm:"not null;default:0" json:"revision_count"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsLocked reports whether challans of this return are frozen.
func (r *TDSReturn) IsLocked() bool {
	return r.Status == ReturnFiled || r.Status == ReturnRevised
}
