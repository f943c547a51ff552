package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gstbooks/internal/apperror"
	"gstbooks/internal/fiscal"
	"gstbooks/internal/ledger"
	"gstbooks/internal/lock"
	"gstbooks/internal/logger"
	"gstbooks/internal/model"
	"gstbooks/internal/repository"
	"gstbooks/internal/taxengine"
	"gstbooks/internal/websocket"
	"gstbooks/pkg/pagination"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// invoiceNumberPrefixes number documents per type and financial year, e.g. SI/2024-25/0001.
var invoiceNumberPrefixes = map[string]string{
	model.InvoiceTypeSales:      "SI",
	model.InvoiceTypePurchase:   "PI",
	model.InvoiceTypeCreditNote: "CN",
	model.InvoiceTypeDebitNote:  "DN",
}

// --- DTOs ---

type InvoiceItemRequest struct {
	SerialNo        int    `json:"serial_no"`
	Description     string `json:"description" binding:"required"`
	HSNSAC          string `json:"hsn_sac"`
	Unit            string `json:"unit"`
	Quantity        string `json:"quantity" binding:"required"`
	Rate            string `json:"rate" binding:"required"`
	DiscountPercent string `json:"discount_percent"`
	GSTRate         string `json:"gst_rate"`
	CessRate        string `json:"cess_rate"`
}

// InvoiceRequest is shared by create, update and preview.
type InvoiceRequest struct {
	InvoiceNumber     string               `json:"invoice_number"` // generated when empty
	InvoiceType       string               `json:"invoice_type" binding:"required,oneof=SALES PURCHASE CREDIT_NOTE DEBIT_NOTE"`
	InvoiceDate       string               `json:"invoice_date" binding:"required"`
	DueDate           *string              `json:"due_date"`
	ClientID          *string              `json:"client_id"`
	VendorID          *string              `json:"vendor_id"`
	BranchID          *string              `json:"branch_id"`
	PlaceOfSupply     string               `json:"place_of_supply"`
	PlaceOfSupplyCode string               `json:"place_of_supply_code"`
	IsIGST            bool                 `json:"is_igst"`
	ReverseCharge     bool                 `json:"reverse_charge"`
	DiscountPercent   string               `json:"discount_percent"`
	TDSApplicable     bool                 `json:"tds_applicable"`
	TDSSection        string               `json:"tds_section"`
	TDSRate           string               `json:"tds_rate"`
	TCSApplicable     bool                 `json:"tcs_applicable"`
	TCSRate           string               `json:"tcs_rate"`
	IRN               string               `json:"irn"`
	AckNumber         string               `json:"ack_number"`
	AckDate           *string              `json:"ack_date"`
	Notes             string               `json:"notes"`
	Items             []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
}

type CancelInvoiceRequest struct {
	CancelDate string `json:"cancel_date"` // defaults to today
	Reason     string `json:"reason" binding:"required"`
}

type MarkOverdueRequest struct {
	AsOf string `json:"as_of" binding:"required"`
}

type MarkOverdueResponse struct {
	Count          int      `json:"count"`
	InvoiceNumbers []string `json:"invoice_numbers"`
}

type ListInvoicesFilter struct {
	InvoiceType string
	Status      string
	ClientID    string
	VendorID    string
	From        string
	To          string
	Page        int
	Limit       int
}

type InvoiceItemResponse struct {
	ID              string `json:"id"`
	SerialNo        int    `json:"serial_no"`
	Description     string `json:"description"`
	HSNSAC          string `json:"hsn_sac"`
	Unit            string `json:"unit"`
	Quantity        string `json:"quantity"`
	Rate            string `json:"rate"`
	DiscountPercent string `json:"discount_percent"`
	GSTRate         string `json:"gst_rate"`
	CessRate        string `json:"cess_rate"`
	Amount          string `json:"amount"`
	DiscountAmount  string `json:"discount_amount"`
	TaxableAmount   string `json:"taxable_amount"`
	CGSTAmount      string `json:"cgst_amount"`
	SGSTAmount      string `json:"sgst_amount"`
	IGSTAmount      string `json:"igst_amount"`
	CessAmount      string `json:"cess_amount"`
	TotalAmount     string `json:"total_amount"`
}

type InvoiceResponse struct {
	ID                string                `json:"id"`
	InvoiceNumber     string                `json:"invoice_number"`
	InvoiceType       string                `json:"invoice_type"`
	InvoiceDate       string                `json:"invoice_date"`
	DueDate           *string               `json:"due_date"`
	FinancialYear     string                `json:"financial_year"`
	ClientID          *string               `json:"client_id"`
	VendorID          *string               `json:"vendor_id"`
	BranchID          *string               `json:"branch_id"`
	PlaceOfSupply     string                `json:"place_of_supply"`
	PlaceOfSupplyCode string                `json:"place_of_supply_code"`
	IsIGST            bool                  `json:"is_igst"`
	ReverseCharge     bool                  `json:"reverse_charge"`
	Subtotal          string                `json:"subtotal"`
	DiscountPercent   string                `json:"discount_percent"`
	DiscountAmount    string                `json:"discount_amount"`
	ItemDiscount      string                `json:"item_discount"`
	TaxableAmount     string                `json:"taxable_amount"`
	CGSTAmount        string                `json:"cgst_amount"`
	SGSTAmount        string                `json:"sgst_amount"`
	IGSTAmount        string                `json:"igst_amount"`
	CessAmount        string                `json:"cess_amount"`
	TotalAmount       string                `json:"total_amount"`
	TDSApplicable     bool                  `json:"tds_applicable"`
	TDSSection        string                `json:"tds_section"`
	TDSRate           string                `json:"tds_rate"`
	TDSAmount         string                `json:"tds_amount"`
	TDSChallanID      *string               `json:"tds_challan_id"`
	TCSApplicable     bool                  `json:"tcs_applicable"`
	TCSRate           string                `json:"tcs_rate"`
	TCSAmount         string                `json:"tcs_amount"`
	NetAmount         string                `json:"net_amount"`
	RoundOff          string                `json:"round_off"`
	GrandTotal        string                `json:"grand_total"`
	AmountPaid        string                `json:"amount_paid"`
	AmountDue         string                `json:"amount_due"`
	AmountInWords     string                `json:"amount_in_words"`
	IRN               string                `json:"irn"`
	AckNumber         string                `json:"ack_number"`
	AckDate           *string               `json:"ack_date"`
	Status            string                `json:"status"`
	IsPosted          bool                  `json:"is_posted"`
	PostedVoucher     string                `json:"posted_voucher"`
	ReversalVoucher   string                `json:"reversal_voucher"`
	CancelledAt       *string               `json:"cancelled_at"`
	CancelReason      string                `json:"cancel_reason"`
	Notes             string                `json:"notes"`
	Items             []InvoiceItemResponse `json:"items"`
	CreatedAt         string                `json:"created_at"`
	UpdatedAt         string                `json:"updated_at"`
}

type TotalsResponse struct {
	Items          []InvoiceItemResponse `json:"items"`
	Subtotal       string                `json:"subtotal"`
	ItemDiscount   string                `json:"item_discount"`
	DiscountAmount string                `json:"discount_amount"`
	TaxableAmount  string                `json:"taxable_amount"`
	CGSTAmount     string                `json:"cgst_amount"`
	SGSTAmount     string                `json:"sgst_amount"`
	IGSTAmount     string                `json:"igst_amount"`
	CessAmount     string                `json:"cess_amount"`
	TotalTax       string                `json:"total_tax"`
	TotalAmount    string                `json:"total_amount"`
	TDSAmount      string                `json:"tds_amount"`
	TCSAmount      string                `json:"tcs_amount"`
	NetAmount      string                `json:"net_amount"`
	RoundOff       string                `json:"round_off"`
	GrandTotal     string                `json:"grand_total"`
	AmountInWords  string                `json:"amount_in_words"`
}

// --- Interface ---

type InvoiceService interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest, userID string) (InvoiceResponse, error)
	UpdateInvoice(ctx context.Context, id string, req InvoiceRequest, userID string) (InvoiceResponse, error)
	PreviewTotals(ctx context.Context, req InvoiceRequest) (TotalsResponse, error)
	SendInvoice(ctx context.Context, id string, userID string) (InvoiceResponse, error)
	CancelInvoice(ctx context.Context, id string, req CancelInvoiceRequest, userID string) (InvoiceResponse, error)
	MarkOverdue(ctx context.Context, req MarkOverdueRequest, userID string) (MarkOverdueResponse, error)
	GetInvoice(ctx context.Context, id string) (InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter ListInvoicesFilter) ([]InvoiceResponse, int64, error)
}

type invoiceService struct {
	invoiceRepo  repository.InvoiceRepository
	ledgerRepo   repository.LedgerRepository
	settingsRepo repository.SettingsRepository
	txManager    repository.TransactionManager
	engine       *taxengine.Engine
	poster       *ledgerPoster
	locker       lock.Locker
	events       EventPublisher
	audit        auditTrail
	log          zerolog.Logger
	now          func() time.Time
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	ledgerRepo repository.LedgerRepository,
	settingsRepo repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	engine *taxengine.Engine,
	locker lock.Locker,
	events EventPublisher,
) InvoiceService {
	log := logger.WithComponent("invoices")
	return &invoiceService{
		invoiceRepo:  invoiceRepo,
		ledgerRepo:   ledgerRepo,
		settingsRepo: settingsRepo,
		txManager:    txManager,
		engine:       engine,
		poster:       &ledgerPoster{ledgerRepo: ledgerRepo, log: log},
		locker:       locker,
		events:       events,
		audit:        auditTrail{repo: auditRepo, txManager: txManager, log: log},
		log:          log,
		now:          time.Now,
	}
}

// --- Implementation ---

func (s *invoiceService) CreateInvoice(ctx context.Context, req InvoiceRequest, userID string) (InvoiceResponse, error) {
	const op = "CreateInvoice"

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to load settings: %w", err)
	}

	invoice, err := buildInvoice(op, req, settings)
	if err != nil {
		return InvoiceResponse{}, err
	}
	if err := s.recompute(invoice, settings); err != nil {
		return InvoiceResponse{}, err
	}
	invoice.ID = uuid.New()
	invoice.Status = model.InvoiceDraft

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if invoice.InvoiceNumber == "" {
			number, err := s.nextInvoiceNumber(txCtx, invoice)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = number
		}
		if err := s.invoiceRepo.Create(txCtx, invoice); err != nil {
			return saveErr(op, "invoice", err)
		}
		s.audit.record(txCtx, userID, model.ActionCreateInvoice, "invoice", invoice.ID.String(), invoice.InvoiceNumber,
			map[string]interface{}{"invoice_type": invoice.InvoiceType, "grand_total": money(invoice.GrandTotal)})

		if settings.LedgerPostingOn == model.PostOnCreate {
			return s.issue(txCtx, invoice, settings, userID)
		}
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	if invoice.IsPosted {
		publish(s.events, websocket.EventInvoicePosted, invoiceEvent(invoice))
	}
	return s.reload(ctx, invoice.ID)
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, id string, req InvoiceRequest, userID string) (InvoiceResponse, error) {
	const op = "UpdateInvoice"

	invoiceID, err := parseID(op, "id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to load settings: %w", err)
	}

	updated, err := buildInvoice(op, req, settings)
	if err != nil {
		return InvoiceResponse{}, err
	}
	if err := s.recompute(updated, settings); err != nil {
		return InvoiceResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			return loadErr(op, "invoice", err)
		}
		if current.Status != model.InvoiceDraft {
			return apperror.NewValidationError(op, "status", fmt.Sprintf("only DRAFT invoices can be edited, invoice is %s", current.Status))
		}

		updated.ID = current.ID
		updated.Status = model.InvoiceDraft
		updated.CreatedAt = current.CreatedAt
		if updated.InvoiceNumber == "" {
			updated.InvoiceNumber = current.InvoiceNumber
		}

		if err := s.invoiceRepo.Update(txCtx, updated); err != nil {
			return saveErr(op, "invoice", err)
		}
		if err := s.invoiceRepo.ReplaceItems(txCtx, updated.ID, updated.Items); err != nil {
			return fmt.Errorf("failed to replace invoice items: %w", err)
		}
		s.audit.record(txCtx, userID, model.ActionUpdateInvoice, "invoice", updated.ID.String(), updated.InvoiceNumber,
			map[string]interface{}{"grand_total": money(updated.GrandTotal), "items": len(updated.Items)})
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	return s.reload(ctx, invoiceID)
}

func (s *invoiceService) PreviewTotals(ctx context.Context, req InvoiceRequest) (TotalsResponse, error) {
	const op = "PreviewTotals"

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return TotalsResponse{}, fmt.Errorf("failed to load settings: %w", err)
	}
	invoice, err := buildInvoice(op, req, settings)
	if err != nil {
		return TotalsResponse{}, err
	}
	totals, err := s.engineFor(settings).Compute(invoice)
	if err != nil {
		return TotalsResponse{}, err
	}
	taxengine.Apply(invoice, totals)
	return toTotalsResponse(invoice, totals), nil
}

func (s *invoiceService) SendInvoice(ctx context.Context, id string, userID string) (InvoiceResponse, error) {
	const op = "SendInvoice"

	invoiceID, err := parseID(op, "id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}

	release := s.locker.Acquire(ctx, "invoice:"+invoiceID.String())
	defer release()

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			return loadErr(op, "invoice", err)
		}
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		return s.issue(txCtx, invoice, settings, userID)
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	publish(s.events, websocket.EventInvoicePosted, invoiceEvent(invoice))
	return s.reload(ctx, invoiceID)
}

func (s *invoiceService) CancelInvoice(ctx context.Context, id string, req CancelInvoiceRequest, userID string) (InvoiceResponse, error) {
	const op = "CancelInvoice"

	invoiceID, err := parseID(op, "id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	cancelDate := s.today()
	if strings.TrimSpace(req.CancelDate) != "" {
		if cancelDate, err = parseDate(op, "cancel_date", req.CancelDate); err != nil {
			return InvoiceResponse{}, err
		}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return InvoiceResponse{}, apperror.NewValidationError(op, "reason", "is required")
	}

	release := s.locker.Acquire(ctx, "invoice:"+invoiceID.String())
	defer release()

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			return loadErr(op, "invoice", err)
		}

		switch invoice.Status {
		case model.InvoiceDraft, model.InvoiceSent, model.InvoicePartial:
		default:
			return apperror.NewPostingError(op, fmt.Sprintf("a %s invoice cannot be cancelled", invoice.Status))
		}
		if invoice.TDSChallanID != nil {
			return apperror.NewValidationError(op, "tds_challan_id", "invoice is included in a TDS challan; delete the challan first")
		}
		if cancelDate.Before(invoice.InvoiceDate) {
			return apperror.NewValidationError(op, "cancel_date", "cannot be before the invoice date")
		}

		if invoice.IsPosted && invoice.PostedVoucher != "" {
			narration := fmt.Sprintf("Reversal of %s (%s cancelled: %s)", invoice.PostedVoucher, invoice.InvoiceNumber, req.Reason)
			number, err := s.poster.reverse(txCtx, op, invoice.PostedVoucher, cancelDate, model.LedgerRefInvoice, invoice.ID, narration)
			if err != nil {
				return err
			}
			invoice.ReversalVoucher = number
		}

		invoice.Status = model.InvoiceCancelled
		invoice.CancelledAt = &cancelDate
		invoice.CancelReason = req.Reason
		invoice.AmountDue = decimal.Zero
		if err := s.invoiceRepo.Update(txCtx, invoice); err != nil {
			return saveErr(op, "invoice", err)
		}

		s.audit.record(txCtx, userID, model.ActionCancelInvoice, "invoice", invoice.ID.String(), invoice.InvoiceNumber,
			map[string]interface{}{"reason": req.Reason, "reversal_voucher": invoice.ReversalVoucher})
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	s.log.Info().Str("invoice_id", invoice.ID.String()).Str("reversal", invoice.ReversalVoucher).Msg("invoice cancelled")
	publish(s.events, websocket.EventInvoiceCancelled, invoiceEvent(invoice))
	return s.reload(ctx, invoiceID)
}

func (s *invoiceService) MarkOverdue(ctx context.Context, req MarkOverdueRequest, userID string) (MarkOverdueResponse, error) {
	const op = "MarkOverdue"

	asOf, err := parseDate(op, "as_of", req.AsOf)
	if err != nil {
		return MarkOverdueResponse{}, err
	}

	res := MarkOverdueResponse{InvoiceNumbers: []string{}}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		res = MarkOverdueResponse{InvoiceNumbers: []string{}}
		invoices, err := s.invoiceRepo.ListOverdueForUpdate(txCtx, asOf)
		if err != nil {
			return fmt.Errorf("failed to fetch overdue invoices: %w", err)
		}
		for i := range invoices {
			inv := &invoices[i]
			inv.Status = model.InvoiceOverdue
			if err := s.invoiceRepo.Update(txCtx, inv); err != nil {
				return saveErr(op, "invoice", err)
			}
			s.audit.record(txCtx, userID, model.ActionOverdueInvoice, "invoice", inv.ID.String(), inv.InvoiceNumber,
				map[string]interface{}{"as_of": formatDate(asOf), "amount_due": money(inv.AmountDue)})
			res.InvoiceNumbers = append(res.InvoiceNumbers, inv.InvoiceNumber)
		}
		res.Count = len(res.InvoiceNumbers)
		return nil
	})
	if err != nil {
		return MarkOverdueResponse{}, err
	}

	s.log.Info().Int("count", res.Count).Str("as_of", formatDate(asOf)).Msg("invoices marked overdue")
	return res, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (InvoiceResponse, error) {
	invoiceID, err := parseID("GetInvoice", "id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	return s.reload(ctx, invoiceID)
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter ListInvoicesFilter) ([]InvoiceResponse, int64, error) {
	const op = "ListInvoices"

	p := pagination.New(filter.Page, filter.Limit)
	f := repository.InvoiceFilter{InvoiceType: filter.InvoiceType, Status: filter.Status}

	var err error
	if f.ClientID, err = parseOptionalID(op, "client_id", &filter.ClientID); err != nil {
		return nil, 0, err
	}
	if f.VendorID, err = parseOptionalID(op, "vendor_id", &filter.VendorID); err != nil {
		return nil, 0, err
	}
	if f.From, err = parseOptionalDate(op, "from", &filter.From); err != nil {
		return nil, 0, err
	}
	if f.To, err = parseOptionalDate(op, "to", &filter.To); err != nil {
		return nil, 0, err
	}

	invoices, total, err := s.invoiceRepo.List(ctx, f, p.Page, p.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	res := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		res = append(res, toInvoiceResponse(inv))
	}
	return res, total, nil
}

// --- Helpers ---

// issue moves a DRAFT invoice to SENT and posts it. Totals are recomputed first so the
// posted figures always come from the engine.
func (s *invoiceService) issue(ctx context.Context, invoice *model.Invoice, settings *model.CompanySettings, userID string) error {
	const op = "PostInvoice"

	if invoice.IsPosted {
		return apperror.NewPostingError(op, fmt.Sprintf("invoice %s is already posted", invoice.InvoiceNumber))
	}
	if invoice.Status != model.InvoiceDraft {
		return apperror.NewPostingError(op, fmt.Sprintf("only DRAFT invoices can be sent, invoice is %s", invoice.Status))
	}
	if err := s.recompute(invoice, settings); err != nil {
		return err
	}

	if err := s.poster.postInvoice(ctx, invoice, ledger.AccountsFromSettings(settings)); err != nil {
		return err
	}
	invoice.Status = model.InvoiceSent

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return saveErr(op, "invoice", err)
	}
	if err := s.invoiceRepo.ReplaceItems(ctx, invoice.ID, invoice.Items); err != nil {
		return fmt.Errorf("failed to save invoice items: %w", err)
	}

	s.audit.record(ctx, userID, model.ActionPostInvoice, "invoice", invoice.ID.String(), invoice.InvoiceNumber,
		map[string]interface{}{"voucher": invoice.PostedVoucher, "grand_total": money(invoice.GrandTotal)})
	return nil
}

func (s *invoiceService) engineFor(settings *model.CompanySettings) *taxengine.Engine {
	return s.engine.WithOptions(taxengine.Options{EnableTDS: settings.EnableTDS, EnableTCS: settings.EnableTCS})
}

func (s *invoiceService) recompute(invoice *model.Invoice, settings *model.CompanySettings) error {
	totals, err := s.engineFor(settings).Compute(invoice)
	if err != nil {
		return err
	}
	taxengine.Apply(invoice, totals)
	return nil
}

func (s *invoiceService) nextInvoiceNumber(ctx context.Context, invoice *model.Invoice) (string, error) {
	prefix := invoiceNumberPrefixes[invoice.InvoiceType]
	fy := fiscal.FinancialYear(invoice.InvoiceDate)
	seq, err := s.ledgerRepo.NextSequence(ctx, prefix, fy)
	if err != nil {
		return "", fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	return ledger.FormatNumber(prefix, fy, seq), nil
}

func (s *invoiceService) reload(ctx context.Context, id uuid.UUID) (InvoiceResponse, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return InvoiceResponse{}, loadErr("GetInvoice", "invoice", err)
	}
	return toInvoiceResponse(*invoice), nil
}

func (s *invoiceService) today() time.Time {
	return startOfDay(s.now())
}

// buildInvoice converts a request into an unsaved invoice. Amounts are left for the engine.
func buildInvoice(op string, req InvoiceRequest, settings *model.CompanySettings) (*model.Invoice, error) {
	if _, ok := invoiceNumberPrefixes[req.InvoiceType]; !ok {
		return nil, apperror.NewValidationError(op, "invoice_type", "must be one of SALES PURCHASE CREDIT_NOTE DEBIT_NOTE")
	}

	inv := &model.Invoice{
		InvoiceNumber:     strings.TrimSpace(req.InvoiceNumber),
		InvoiceType:       req.InvoiceType,
		PlaceOfSupply:     req.PlaceOfSupply,
		PlaceOfSupplyCode: req.PlaceOfSupplyCode,
		IsIGST:            req.IsIGST,
		ReverseCharge:     req.ReverseCharge,
		TDSApplicable:     req.TDSApplicable,
		TDSSection:        strings.TrimSpace(req.TDSSection),
		TCSApplicable:     req.TCSApplicable,
		IRN:               req.IRN,
		AckNumber:         req.AckNumber,
		Notes:             req.Notes,
		AmountPaid:        decimal.Zero,
	}

	var err error
	if inv.InvoiceDate, err = parseDate(op, "invoice_date", req.InvoiceDate); err != nil {
		return nil, err
	}
	if inv.DueDate, err = parseOptionalDate(op, "due_date", req.DueDate); err != nil {
		return nil, err
	}
	if inv.DueDate != nil && inv.DueDate.Before(inv.InvoiceDate) {
		return nil, apperror.NewValidationError(op, "due_date", "cannot be before the invoice date")
	}
	if inv.AckDate, err = parseOptionalDate(op, "ack_date", req.AckDate); err != nil {
		return nil, err
	}
	if inv.ClientID, err = parseOptionalID(op, "client_id", req.ClientID); err != nil {
		return nil, err
	}
	if inv.VendorID, err = parseOptionalID(op, "vendor_id", req.VendorID); err != nil {
		return nil, err
	}
	if inv.BranchID, err = parseOptionalID(op, "branch_id", req.BranchID); err != nil {
		return nil, err
	}
	if inv.DiscountPercent, err = parseAmount(op, "discount_percent", req.DiscountPercent); err != nil {
		return nil, err
	}
	if inv.TDSRate, err = parseAmount(op, "tds_rate", req.TDSRate); err != nil {
		return nil, err
	}
	if inv.TCSRate, err = parseAmount(op, "tcs_rate", req.TCSRate); err != nil {
		return nil, err
	}
	if inv.TDSApplicable && inv.TDSSection == "" {
		inv.TDSSection = model.DefaultTDSSection
	}

	// inter-state supply follows from the state codes when both are known
	if inv.PlaceOfSupplyCode != "" && settings.StateCode != "" {
		inv.IsIGST = inv.PlaceOfSupplyCode != settings.StateCode
	}

	inv.Items = make([]model.InvoiceItem, 0, len(req.Items))
	allUnnumbered := true
	for _, it := range req.Items {
		if it.SerialNo != 0 {
			allUnnumbered = false
		}
	}
	for i, it := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		item := model.InvoiceItem{
			SerialNo:    it.SerialNo,
			Description: strings.TrimSpace(it.Description),
			HSNSAC:      it.HSNSAC,
			Unit:        it.Unit,
		}
		if allUnnumbered {
			item.SerialNo = i + 1
		}
		if item.Quantity, err = parseAmount(op, field+".quantity", it.Quantity); err != nil {
			return nil, err
		}
		if item.Rate, err = parseAmount(op, field+".rate", it.Rate); err != nil {
			return nil, err
		}
		if item.DiscountPercent, err = parseAmount(op, field+".discount_percent", it.DiscountPercent); err != nil {
			return nil, err
		}
		if item.GSTRate, err = parseAmount(op, field+".gst_rate", it.GSTRate); err != nil {
			return nil, err
		}
		if item.CessRate, err = parseAmount(op, field+".cess_rate", it.CessRate); err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, item)
	}

	return inv, nil
}

func invoiceEvent(inv *model.Invoice) map[string]interface{} {
	return map[string]interface{}{
		"id":               inv.ID.String(),
		"invoice_number":   inv.InvoiceNumber,
		"invoice_type":     inv.InvoiceType,
		"status":           inv.Status,
		"grand_total":      money(inv.GrandTotal),
		"posted_voucher":   inv.PostedVoucher,
		"reversal_voucher": inv.ReversalVoucher,
	}
}

// --- Mapping ---

func toInvoiceItemResponse(it model.InvoiceItem) InvoiceItemResponse {
	resp := InvoiceItemResponse{
		SerialNo:        it.SerialNo,
		Description:     it.Description,
		HSNSAC:          it.HSNSAC,
		Unit:            it.Unit,
		Quantity:        it.Quantity.StringFixed(3),
		Rate:            money(it.Rate),
		DiscountPercent: money(it.DiscountPercent),
		GSTRate:         money(it.GSTRate),
		CessRate:        money(it.CessRate),
		Amount:          money(it.Amount),
		DiscountAmount:  money(it.DiscountAmount),
		TaxableAmount:   money(it.TaxableAmount),
		CGSTAmount:      money(it.CGSTAmount),
		SGSTAmount:      money(it.SGSTAmount),
		IGSTAmount:      money(it.IGSTAmount),
		CessAmount:      money(it.CessAmount),
		TotalAmount:     money(it.TotalAmount),
	}
	if it.ID != uuid.Nil {
		resp.ID = it.ID.String()
	}
	return resp
}

func toInvoiceResponse(inv model.Invoice) InvoiceResponse {
	items := make([]InvoiceItemResponse, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, toInvoiceItemResponse(it))
	}

	var cancelledAt *string
	if inv.CancelledAt != nil {
		s := inv.CancelledAt.Format(time.RFC3339)
		cancelledAt = &s
	}

	return InvoiceResponse{
		ID:                inv.ID.String(),
		InvoiceNumber:     inv.InvoiceNumber,
		InvoiceType:       inv.InvoiceType,
		InvoiceDate:       formatDate(inv.InvoiceDate),
		DueDate:           formatOptionalDate(inv.DueDate),
		FinancialYear:     fiscal.FinancialYear(inv.InvoiceDate),
		ClientID:          idString(inv.ClientID),
		VendorID:          idString(inv.VendorID),
		BranchID:          idString(inv.BranchID),
		PlaceOfSupply:     inv.PlaceOfSupply,
		PlaceOfSupplyCode: inv.PlaceOfSupplyCode,
		IsIGST:            inv.IsIGST,
		ReverseCharge:     inv.ReverseCharge,
		Subtotal:          money(inv.Subtotal),
		DiscountPercent:   money(inv.DiscountPercent),
		DiscountAmount:    money(inv.DiscountAmount),
		ItemDiscount:      money(inv.ItemDiscount),
		TaxableAmount:     money(inv.TaxableAmount),
		CGSTAmount:        money(inv.CGSTAmount),
		SGSTAmount:        money(inv.SGSTAmount),
		IGSTAmount:        money(inv.IGSTAmount),
		CessAmount:        money(inv.CessAmount),
		TotalAmount:       money(inv.TotalAmount),
		TDSApplicable:     inv.TDSApplicable,
		TDSSection:        inv.TDSSection,
		TDSRate:           money(inv.TDSRate),
		TDSAmount:         money(inv.TDSAmount),
		TDSChallanID:      idString(inv.TDSChallanID),
		TCSApplicable:     inv.TCSApplicable,
		TCSRate:           money(inv.TCSRate),
		TCSAmount:         money(inv.TCSAmount),
		NetAmount:         money(inv.NetAmount),
		RoundOff:          money(inv.RoundOff),
		GrandTotal:        money(inv.GrandTotal),
		AmountPaid:        money(inv.AmountPaid),
		AmountDue:         money(inv.AmountDue),
		AmountInWords:     amountInWords(inv.GrandTotal),
		IRN:               inv.IRN,
		AckNumber:         inv.AckNumber,
		AckDate:           formatOptionalDate(inv.AckDate),
		Status:            inv.Status,
		IsPosted:          inv.IsPosted,
		PostedVoucher:     inv.PostedVoucher,
		ReversalVoucher:   inv.ReversalVoucher,
		CancelledAt:       cancelledAt,
		CancelReason:      inv.CancelReason,
		Notes:             inv.Notes,
		Items:             items,
		CreatedAt:         inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         inv.UpdatedAt.Format(time.RFC3339),
	}
}

func toTotalsResponse(inv *model.Invoice, t taxengine.Totals) TotalsResponse {
	items := make([]InvoiceItemResponse, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, toInvoiceItemResponse(it))
	}
	return TotalsResponse{
		Items:          items,
		Subtotal:       money(t.Subtotal),
		ItemDiscount:   money(t.ItemDiscount),
		DiscountAmount: money(t.DiscountAmount),
		TaxableAmount:  money(t.TaxableAmount),
		CGSTAmount:     money(t.CGSTAmount),
		SGSTAmount:     money(t.SGSTAmount),
		IGSTAmount:     money(t.IGSTAmount),
		CessAmount:     money(t.CessAmount),
		TotalTax:       money(t.TotalTax),
		TotalAmount:    money(t.TotalAmount),
		TDSAmount:      money(t.TDSAmount),
		TCSAmount:      money(t.TCSAmount),
		NetAmount:      money(t.NetAmount),
		RoundOff:       money(t.RoundOff),
		GrandTotal:     money(t.GrandTotal),
		AmountInWords:  amountInWords(t.GrandTotal),
	}
}
