package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentType enum constants
const (
	PaymentTypeReceipt = "RECEIPT" // money in from a client
	PaymentTypePayment = "PAYMENT" // money out to a vendor
)

// PaymentStatus enum constants
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentCancelled = "CANCELLED"
)

// PaymentMode enum constants
const (
	PaymentModeCash         = "CASH"
	PaymentModeBankTransfer = "BANK_TRANSFER"
	PaymentModeCheque       = "CHEQUE"
	PaymentModeUPI          = "UPI"
	PaymentModeCard         = "CARD"
	PaymentModeNEFT         = "NEFT"
	PaymentModeRTGS         = "RTGS"
	PaymentModeIMPS         = "IMPS"
)

type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PaymentNumber   string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"payment_number"`
	PaymentType     string          `gorm:"type:varchar(20);not null;index" json:"payment_type"`
	PaymentDate     time.Time       `gorm:"type:date;not null;index" json:"payment_date"`
	ClientID        *uuid.UUID      `gorm:"type:uuid;index" json:"client_id"`
	VendorID        *uuid.UUID      `gorm:"type:uuid;index" json:"vendor_id"`
	InvoiceID       *uuid.UUID      `gorm:"type:uuid;index" json:"invoice_id"`
	BranchID        *uuid.UUID      `gorm:"type:uuid;index" json:"branch_id"`
	GrossAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"gross_amount"`
	TDSAmount       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"tds_amount"`
	TCSAmount       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"tcs_amount"`
	NetAmount       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net_amount"` // gross − tds + tcs
	PaymentMode     string          `gorm:"type:varchar(20);not null" json:"payment_mode"`
	ReferenceNumber string          `gorm:"type:varchar(100)" json:"reference_number"` // UTR, cheque no.
	Status          string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	IsPosted        bool            `gorm:"not null;default:false" json:"is_posted"`
	PostedVoucher   string          `gorm:"type:varchar(50)" json:"posted_voucher"`
	ReversalVoucher string          `gorm:"type:varchar(50)" json:"reversal_voucher"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
