package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateInvoice  = "CREATE_INVOICE"
	ActionUpdateInvoice  = "UPDATE_INVOICE"
	ActionPostInvoice    = "POST_INVOICE"
	ActionCancelInvoice  = "CANCEL_INVOICE"
	ActionOverdueInvoice = "MARK_INVOICE_OVERDUE"

	ActionCreatePayment   = "CREATE_PAYMENT"
	ActionCompletePayment = "COMPLETE_PAYMENT"
	ActionCancelPayment   = "CANCEL_PAYMENT"

	ActionCreateJournal = "CREATE_JOURNAL"

	ActionCreateAccount     = "CREATE_ACCOUNT"
	ActionUpdateAccount     = "UPDATE_ACCOUNT"
	ActionDeactivateAccount = "DEACTIVATE_ACCOUNT"
	ActionDeleteAccount     = "DELETE_ACCOUNT"
	ActionSeedAccounts      = "SEED_ACCOUNTS"

	// TDS workflow actions
	ActionGenerateChallan = "GENERATE_CHALLAN"
	ActionUpdateChallan   = "UPDATE_CHALLAN"
	ActionDeleteChallan   = "DELETE_CHALLAN"
	ActionFileReturn      = "FILE_TDS_RETURN"
	ActionReviseReturn    = "REVISE_TDS_RETURN"

	ActionUpdateSettings = "UPDATE_SETTINGS"
)

// AuditLog tracks Who, What, and When for critical ledger changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system actions
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(30);index" json:"entity_type"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // invoice / voucher / challan number
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
