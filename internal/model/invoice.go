package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceType enum constants
const (
	InvoiceTypeSales      = "SALES"
	InvoiceTypePurchase   = "PURCHASE"
	InvoiceTypeCreditNote = "CREDIT_NOTE"
	InvoiceTypeDebitNote  = "DEBIT_NOTE"
)

// InvoiceStatus enum constants
const (
	InvoiceDraft     = "DRAFT"
	InvoiceSent      = "SENT"
	InvoicePartial   = "PARTIAL"
	InvoicePaid      = "PAID"
	InvoiceOverdue   = "OVERDUE"
	InvoiceCancelled = "CANCELLED"
)

// IsClientSide reports whether the invoice type is billed to a client.
func IsClientSide(invoiceType string) bool {
	return invoiceType == InvoiceTypeSales || invoiceType == InvoiceTypeCreditNote
}

// Invoice is a GST document. Amount columns are derived by the tax engine while DRAFT
// and frozen once the invoice is posted.
type Invoice struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceNumber string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"invoice_number"`
	InvoiceType   string     `gorm:"type:varchar(20);not null;index" json:"invoice_type"`
	InvoiceDate   time.Time  `gorm:"type:date;not null;index" json:"invoice_date"`
	DueDate       *time.Time `gorm:"type:date" json:"due_date"`
	ClientID      *uuid.UUID `gorm:"type:uuid;index" json:"client_id"` // SALES, CREDIT_NOTE
	VendorID      *uuid.UUID `gorm:"type:uuid;index" json:"vendor_id"` // PURCHASE, DEBIT_NOTE
	BranchID      *uuid.UUID `gorm:"type:uuid;index" json:"branch_id"`

	PlaceOfSupply     string `gorm:"type:varchar(100)" json:"place_of_supply"`
	PlaceOfSupplyCode string `gorm:"type:varchar(2)" json:"place_of_supply_code"`
	IsIGST            bool   `gorm:"not null;default:false" json:"is_igst"`
	ReverseCharge     bool   `gorm:"not null;default:false" json:"reverse_charge"`

	Subtotal        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"subtotal"`         // Σ item amount
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount_percent"`  // document level, informational
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"discount_amount"`  // subtotal × discount_percent
	ItemDiscount    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"item_discount"`    // Σ item discount
	TaxableAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"taxable_amount"`   // Σ item taxable
	CGSTAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cgst_amount"`
	SGSTAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"sgst_amount"`
	IGSTAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"igst_amount"`
	CessAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cess_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_amount"` // taxable + gst + cess

	TDSApplicable bool            `gorm:"not null;default:false;index" json:"tds_applicable"`
	TDSSection    string          `gorm:"type:varchar(20)" json:"tds_section"`
	TDSRate       decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tds_rate"`
	TDSAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"tds_amount"`
	TDSChallanID  *uuid.UUID      `gorm:"type:uuid;index" json:"tds_challan_id"` // set while included in a live challan

	TCSApplicable bool            `gorm:"not null;default:false" json:"tcs_applicable"`
	TCSRate       decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tcs_rate"`
	TCSAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"tcs_amount"`

	NetAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"net_amount"` // total − tds + tcs
	RoundOff   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"round_off"`
	GrandTotal decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"grand_total"` // net + round_off, whole rupees
	AmountPaid decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"amount_paid"`
	AmountDue  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"amount_due"`

	// e-invoice fields are passed through untouched
	IRN       string     `gorm:"type:varchar(100)" json:"irn"`
	AckNumber string     `gorm:"type:varchar(50)" json:"ack_number"`
	AckDate   *time.Time `json:"ack_date"`

	Status          string     `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	IsPosted        bool       `gorm:"not null;default:false" json:"is_posted"`
	PostedVoucher   string     `gorm:"type:varchar(50)" json:"posted_voucher"`
	ReversalVoucher string     `gorm:"type:varchar(50)" json:"reversal_voucher"`
	CancelledAt     *time.Time `json:"cancelled_at"`
	CancelReason    string     `gorm:"type:text" json:"cancel_reason"`

	Notes     string        `gorm:"type:text" json:"notes"`
	Items     []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PartyID returns the client or vendor id, whichever the invoice carries.
func (i *Invoice) PartyID() *uuid.UUID {
	if i.ClientID != nil {
		return i.ClientID
	}
	return i.VendorID
}

// InvoiceItem is a single line of an invoice. Amount columns are derived.
type InvoiceItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceID       uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_invoice_item_serial" json:"invoice_id"`
	SerialNo        int             `gorm:"not null;uniqueIndex:idx_invoice_item_serial" json:"serial_no"`
	Description     string          `gorm:"type:varchar(500);not null" json:"description"`
	HSNSAC          string          `gorm:"column:hsn_sac;type:varchar(20)" json:"hsn_sac"`
	Unit            string          `gorm:"type:varchar(20)" json:"unit"`
	Quantity        decimal.Decimal `gorm:"type:decimal(15,3);not null" json:"quantity"`
	Rate            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"rate"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount_percent"`
	GSTRate         decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"gst_rate"`
	CessRate        decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"cess_rate"`

	Amount         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"discount_amount"`
	TaxableAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"taxable_amount"`
	CGSTAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cgst_amount"`
	SGSTAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"sgst_amount"`
	IGSTAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"igst_amount"`
	CessAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cess_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_amount"`
}
