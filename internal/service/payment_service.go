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
	"gstbooks/internal/websocket"
	"gstbooks/pkg/pagination"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var paymentNumberPrefixes = map[string]string{
	model.PaymentTypeReceipt: "RCT",
	model.PaymentTypePayment: "PMT",
}

var paymentModes = map[string]bool{
	model.PaymentModeCash:         true,
	model.PaymentModeBankTransfer: true,
	model.PaymentModeCheque:       true,
	model.PaymentModeUPI:          true,
	model.PaymentModeCard:         true,
	model.PaymentModeNEFT:         true,
	model.PaymentModeRTGS:         true,
	model.PaymentModeIMPS:         true,
}

// --- DTOs ---

type CreatePaymentRequest struct {
	PaymentType     string  `json:"payment_type" binding:"required,oneof=RECEIPT PAYMENT"`
	PaymentDate     string  `json:"payment_date" binding:"required"`
	ClientID        *string `json:"client_id"`
	VendorID        *string `json:"vendor_id"`
	InvoiceID       *string `json:"invoice_id"`
	BranchID        *string `json:"branch_id"`
	GrossAmount     string  `json:"gross_amount" binding:"required"`
	TDSAmount       string  `json:"tds_amount"`
	TCSAmount       string  `json:"tcs_amount"`
	PaymentMode     string  `json:"payment_mode" binding:"required"`
	ReferenceNumber string  `json:"reference_number"`
	Status          string  `json:"status" binding:"omitempty,oneof=PENDING COMPLETED"`
	Notes           string  `json:"notes"`
}

type CancelPaymentRequest struct {
	CancelDate string `json:"cancel_date"`
	Reason     string `json:"reason"`
}

type ListPaymentsFilter struct {
	PaymentType string
	Status      string
	InvoiceID   string
	ClientID    string
	VendorID    string
	Page        int
	Limit       int
}

type PaymentResponse struct {
	ID              string  `json:"id"`
	PaymentNumber   string  `json:"payment_number"`
	PaymentType     string  `json:"payment_type"`
	PaymentDate     string  `json:"payment_date"`
	FinancialYear   string  `json:"financial_year"`
	ClientID        *string `json:"client_id"`
	VendorID        *string `json:"vendor_id"`
	InvoiceID       *string `json:"invoice_id"`
	BranchID        *string `json:"branch_id"`
	GrossAmount     string  `json:"gross_amount"`
	TDSAmount       string  `json:"tds_amount"`
	TCSAmount       string  `json:"tcs_amount"`
	NetAmount       string  `json:"net_amount"`
	PaymentMode     string  `json:"payment_mode"`
	ReferenceNumber string  `json:"reference_number"`
	Status          string  `json:"status"`
	IsPosted        bool    `json:"is_posted"`
	PostedVoucher   string  `json:"posted_voucher"`
	ReversalVoucher string  `json:"reversal_voucher"`
	Notes           string  `json:"notes"`
	CreatedAt       string  `json:"created_at"`
}

// --- Interface ---

type PaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest, userID string) (PaymentResponse, error)
	CompletePayment(ctx context.Context, id string, userID string) (PaymentResponse, error)
	CancelPayment(ctx context.Context, id string, req CancelPaymentRequest, userID string) (PaymentResponse, error)
	GetPayment(ctx context.Context, id string) (PaymentResponse, error)
	ListPayments(ctx context.Context, filter ListPaymentsFilter) ([]PaymentResponse, int64, error)
}

type paymentService struct {
	paymentRepo  repository.PaymentRepository
	invoiceRepo  repository.InvoiceRepository
	ledgerRepo   repository.LedgerRepository
	settingsRepo repository.SettingsRepository
	txManager    repository.TransactionManager
	poster       *ledgerPoster
	locker       lock.Locker
	events       EventPublisher
	audit        auditTrail
	log          zerolog.Logger
	now          func() time.Time
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	invoiceRepo repository.InvoiceRepository,
	ledgerRepo repository.LedgerRepository,
	settingsRepo repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	locker lock.Locker,
	events EventPublisher,
) PaymentService {
	log := logger.WithComponent("payments")
	return &paymentService{
		paymentRepo:  paymentRepo,
		invoiceRepo:  invoiceRepo,
		ledgerRepo:   ledgerRepo,
		settingsRepo: settingsRepo,
		txManager:    txManager,
		poster:       &ledgerPoster{ledgerRepo: ledgerRepo, log: log},
		locker:       locker,
		events:       events,
		audit:        auditTrail{repo: auditRepo, txManager: txManager, log: log},
		log:          log,
		now:          time.Now,
	}
}

// --- Implementation ---

func (s *paymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest, userID string) (PaymentResponse, error) {
	const op = "CreatePayment"

	payment, err := buildPayment(op, req)
	if err != nil {
		return PaymentResponse{}, err
	}
	complete := req.Status == model.PaymentCompleted
	payment.ID = uuid.New()
	payment.Status = model.PaymentPending

	if payment.InvoiceID != nil {
		release := s.locker.Acquire(ctx, "invoice:"+payment.InvoiceID.String())
		defer release()
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if payment.InvoiceID != nil {
			invoice, err := s.invoiceRepo.FindByIDForUpdate(txCtx, *payment.InvoiceID)
			if err != nil {
				return loadErr(op, "invoice", err)
			}
			if err := checkPaymentInvoice(op, payment, invoice); err != nil {
				return err
			}
		}

		prefix := paymentNumberPrefixes[payment.PaymentType]
		fy := fiscal.FinancialYear(payment.PaymentDate)
		seq, err := s.ledgerRepo.NextSequence(txCtx, prefix, fy)
		if err != nil {
			return fmt.Errorf("failed to allocate payment number: %w", err)
		}
		payment.PaymentNumber = ledger.FormatNumber(prefix, fy, seq)

		if err := s.paymentRepo.Create(txCtx, payment); err != nil {
			return saveErr(op, "payment", err)
		}
		s.audit.record(txCtx, userID, model.ActionCreatePayment, "payment", payment.ID.String(), payment.PaymentNumber,
			map[string]interface{}{"gross_amount": money(payment.GrossAmount), "net_amount": money(payment.NetAmount)})

		if complete {
			return s.complete(txCtx, payment, userID)
		}
		return nil
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	if payment.IsPosted {
		publish(s.events, websocket.EventPaymentPosted, paymentEvent(payment))
	}
	return toPaymentResponse(*payment), nil
}

func (s *paymentService) CompletePayment(ctx context.Context, id string, userID string) (PaymentResponse, error) {
	const op = "CompletePayment"

	paymentID, err := parseID(op, "id", id)
	if err != nil {
		return PaymentResponse{}, err
	}

	release := s.locker.Acquire(ctx, "payment:"+paymentID.String())
	defer release()

	var payment *model.Payment
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		payment, err = s.paymentRepo.FindByIDForUpdate(txCtx, paymentID)
		if err != nil {
			return loadErr(op, "payment", err)
		}
		if payment.Status != model.PaymentPending {
			return apperror.NewPostingError(op, fmt.Sprintf("only PENDING payments can be completed, payment is %s", payment.Status))
		}
		return s.complete(txCtx, payment, userID)
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	publish(s.events, websocket.EventPaymentPosted, paymentEvent(payment))
	return toPaymentResponse(*payment), nil
}

func (s *paymentService) CancelPayment(ctx context.Context, id string, req CancelPaymentRequest, userID string) (PaymentResponse, error) {
	const op = "CancelPayment"

	paymentID, err := parseID(op, "id", id)
	if err != nil {
		return PaymentResponse{}, err
	}
	cancelDate := s.today()
	if strings.TrimSpace(req.CancelDate) != "" {
		if cancelDate, err = parseDate(op, "cancel_date", req.CancelDate); err != nil {
			return PaymentResponse{}, err
		}
	}

	release := s.locker.Acquire(ctx, "payment:"+paymentID.String())
	defer release()

	var payment *model.Payment
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		payment, err = s.paymentRepo.FindByIDForUpdate(txCtx, paymentID)
		if err != nil {
			return loadErr(op, "payment", err)
		}
		if payment.Status == model.PaymentCancelled {
			return apperror.NewPostingError(op, fmt.Sprintf("payment %s is already cancelled", payment.PaymentNumber))
		}

		if payment.IsPosted && payment.PostedVoucher != "" {
			if cancelDate.Before(payment.PaymentDate) {
				return apperror.NewValidationError(op, "cancel_date", "cannot be before the payment date")
			}
			narration := fmt.Sprintf("Reversal of %s (%s cancelled)", payment.PostedVoucher, payment.PaymentNumber)
			if req.Reason != "" {
				narration += ": " + req.Reason
			}
			number, err := s.poster.reverse(txCtx, op, payment.PostedVoucher, cancelDate, model.LedgerRefPayment, payment.ID, narration)
			if err != nil {
				return err
			}
			payment.ReversalVoucher = number

			if payment.InvoiceID != nil {
				if err := s.unapply(txCtx, payment); err != nil {
					return err
				}
			}
		}

		payment.Status = model.PaymentCancelled
		if err := s.paymentRepo.Update(txCtx, payment); err != nil {
			return saveErr(op, "payment", err)
		}
		s.audit.record(txCtx, userID, model.ActionCancelPayment, "payment", payment.ID.String(), payment.PaymentNumber,
			map[string]interface{}{"reason": req.Reason, "reversal_voucher": payment.ReversalVoucher})
		return nil
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	s.log.Info().Str("payment_id", payment.ID.String()).Str("reversal", payment.ReversalVoucher).Msg("payment cancelled")
	return toPaymentResponse(*payment), nil
}

func (s *paymentService) GetPayment(ctx context.Context, id string) (PaymentResponse, error) {
	const op = "GetPayment"
	paymentID, err := parseID(op, "id", id)
	if err != nil {
		return PaymentResponse{}, err
	}
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return PaymentResponse{}, loadErr(op, "payment", err)
	}
	return toPaymentResponse(*payment), nil
}

func (s *paymentService) ListPayments(ctx context.Context, filter ListPaymentsFilter) ([]PaymentResponse, int64, error) {
	const op = "ListPayments"

	p := pagination.New(filter.Page, filter.Limit)
	f := repository.PaymentFilter{PaymentType: filter.PaymentType, Status: filter.Status}

	var err error
	if f.InvoiceID, err = parseOptionalID(op, "invoice_id", &filter.InvoiceID); err != nil {
		return nil, 0, err
	}
	if f.ClientID, err = parseOptionalID(op, "client_id", &filter.ClientID); err != nil {
		return nil, 0, err
	}
	if f.VendorID, err = parseOptionalID(op, "vendor_id", &filter.VendorID); err != nil {
		return nil, 0, err
	}

	payments, total, err := s.paymentRepo.List(ctx, f, p.Page, p.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payments: %w", err)
	}
	res := make([]PaymentResponse, 0, len(payments))
	for _, pay := range payments {
		res = append(res, toPaymentResponse(pay))
	}
	return res, total, nil
}

// --- Helpers ---

// complete posts the payment and applies it to its invoice.
func (s *paymentService) complete(ctx context.Context, payment *model.Payment, userID string) error {
	const op = "CompletePayment"

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err := s.poster.postPayment(ctx, payment, ledger.AccountsFromSettings(settings)); err != nil {
		return err
	}
	payment.Status = model.PaymentCompleted

	if payment.InvoiceID != nil {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, *payment.InvoiceID)
		if err != nil {
			return loadErr(op, "invoice", err)
		}
		if err := checkPaymentInvoice(op, payment, invoice); err != nil {
			return err
		}
		invoice.AmountPaid = invoice.AmountPaid.Add(payment.GrossAmount)
		invoice.AmountDue = invoice.GrandTotal.Sub(invoice.AmountPaid)
		if invoice.AmountPaid.GreaterThanOrEqual(invoice.GrandTotal) {
			invoice.Status = model.InvoicePaid
		} else if invoice.Status != model.InvoiceOverdue {
			invoice.Status = model.InvoicePartial
		}
		if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
			return saveErr(op, "invoice", err)
		}
	}

	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return saveErr(op, "payment", err)
	}
	s.audit.record(ctx, userID, model.ActionCompletePayment, "payment", payment.ID.String(), payment.PaymentNumber,
		map[string]interface{}{"voucher": payment.PostedVoucher})
	return nil
}

// unapply rolls a cancelled payment back out of its invoice.
func (s *paymentService) unapply(ctx context.Context, payment *model.Payment) error {
	const op = "CancelPayment"

	invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, *payment.InvoiceID)
	if err != nil {
		return loadErr(op, "invoice", err)
	}
	if invoice.Status == model.InvoiceCancelled {
		return nil
	}

	invoice.AmountPaid = decimal.Max(decimal.Zero, invoice.AmountPaid.Sub(payment.GrossAmount))
	invoice.AmountDue = invoice.GrandTotal.Sub(invoice.AmountPaid)
	switch {
	case invoice.Status == model.InvoiceOverdue:
	case invoice.AmountPaid.IsZero():
		invoice.Status = model.InvoiceSent
	case invoice.AmountPaid.LessThan(invoice.GrandTotal):
		invoice.Status = model.InvoicePartial
	}
	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return saveErr(op, "invoice", err)
	}
	return nil
}

func (s *paymentService) today() time.Time {
	return startOfDay(s.now())
}

// checkPaymentInvoice requires the invoice to belong to the payment's party and still be open.
func checkPaymentInvoice(op string, payment *model.Payment, invoice *model.Invoice) error {
	switch invoice.Status {
	case model.InvoiceSent, model.InvoicePartial, model.InvoiceOverdue:
	default:
		return apperror.NewValidationError(op, "invoice_id", fmt.Sprintf("invoice %s is %s and cannot take payments", invoice.InvoiceNumber, invoice.Status))
	}
	if payment.PaymentType == model.PaymentTypeReceipt {
		if !model.IsClientSide(invoice.InvoiceType) || invoice.ClientID == nil || *invoice.ClientID != *payment.ClientID {
			return apperror.NewPartyMismatchError(op, fmt.Sprintf("invoice %s does not belong to the receipt's client", invoice.InvoiceNumber))
		}
		return nil
	}
	if model.IsClientSide(invoice.InvoiceType) || invoice.VendorID == nil || *invoice.VendorID != *payment.VendorID {
		return apperror.NewPartyMismatchError(op, fmt.Sprintf("invoice %s does not belong to the payment's vendor", invoice.InvoiceNumber))
	}
	return nil
}

func buildPayment(op string, req CreatePaymentRequest) (*model.Payment, error) {
	prefix, ok := paymentNumberPrefixes[req.PaymentType]
	if !ok || prefix == "" {
		return nil, apperror.NewValidationError(op, "payment_type", "must be RECEIPT or PAYMENT")
	}
	if !paymentModes[req.PaymentMode] {
		return nil, apperror.NewValidationError(op, "payment_mode", "is not a supported payment mode")
	}
	if req.Status != "" && req.Status != model.PaymentPending && req.Status != model.PaymentCompleted {
		return nil, apperror.NewValidationError(op, "status", "must be PENDING or COMPLETED")
	}

	p := &model.Payment{
		PaymentType:     req.PaymentType,
		PaymentMode:     req.PaymentMode,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
	}

	var err error
	if p.PaymentDate, err = parseDate(op, "payment_date", req.PaymentDate); err != nil {
		return nil, err
	}
	if p.ClientID, err = parseOptionalID(op, "client_id", req.ClientID); err != nil {
		return nil, err
	}
	if p.VendorID, err = parseOptionalID(op, "vendor_id", req.VendorID); err != nil {
		return nil, err
	}
	if p.InvoiceID, err = parseOptionalID(op, "invoice_id", req.InvoiceID); err != nil {
		return nil, err
	}
	if p.BranchID, err = parseOptionalID(op, "branch_id", req.BranchID); err != nil {
		return nil, err
	}
	if p.GrossAmount, err = parseAmount(op, "gross_amount", req.GrossAmount); err != nil {
		return nil, err
	}
	if p.TDSAmount, err = parseAmount(op, "tds_amount", req.TDSAmount); err != nil {
		return nil, err
	}
	if p.TCSAmount, err = parseAmount(op, "tcs_amount", req.TCSAmount); err != nil {
		return nil, err
	}

	if !p.GrossAmount.IsPositive() {
		return nil, apperror.NewValidationError(op, "gross_amount", "must be greater than 0")
	}
	if p.TDSAmount.IsNegative() {
		return nil, apperror.NewValidationError(op, "tds_amount", "must not be negative")
	}
	if p.TCSAmount.IsNegative() {
		return nil, apperror.NewValidationError(op, "tcs_amount", "must not be negative")
	}
	p.GrossAmount = p.GrossAmount.Round(2)
	p.TDSAmount = p.TDSAmount.Round(2)
	p.TCSAmount = p.TCSAmount.Round(2)
	p.NetAmount = p.GrossAmount.Sub(p.TDSAmount).Add(p.TCSAmount)
	if !p.NetAmount.IsPositive() {
		return nil, apperror.NewValidationError(op, "tds_amount", "net amount must be greater than 0")
	}

	if err := checkPaymentParty(op, p); err != nil {
		return nil, err
	}
	return p, nil
}

func checkPaymentParty(op string, p *model.Payment) error {
	if p.ClientID != nil && p.VendorID != nil {
		return apperror.NewPartyMismatchError(op, "payment must reference exactly one of client or vendor")
	}
	if p.PaymentType == model.PaymentTypeReceipt {
		if p.VendorID != nil {
			return apperror.NewPartyMismatchError(op, "RECEIPT requires a client, got a vendor")
		}
		if p.ClientID == nil {
			return apperror.NewValidationError(op, "client_id", "is required")
		}
		return nil
	}
	if p.ClientID != nil {
		return apperror.NewPartyMismatchError(op, "PAYMENT requires a vendor, got a client")
	}
	if p.VendorID == nil {
		return apperror.NewValidationError(op, "vendor_id", "is required")
	}
	return nil
}

func paymentEvent(p *model.Payment) map[string]interface{} {
	return map[string]interface{}{
		"id":             p.ID.String(),
		"payment_number": p.PaymentNumber,
		"payment_type":   p.PaymentType,
		"net_amount":     money(p.NetAmount),
		"voucher":        p.PostedVoucher,
	}
}

// --- Mapping ---

func toPaymentResponse(p model.Payment) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID.String(),
		PaymentNumber:   p.PaymentNumber,
		PaymentType:     p.PaymentType,
		PaymentDate:     formatDate(p.PaymentDate),
		FinancialYear:   fiscal.FinancialYear(p.PaymentDate),
		ClientID:        idString(p.ClientID),
		VendorID:        idString(p.VendorID),
		InvoiceID:       idString(p.InvoiceID),
		BranchID:        idString(p.BranchID),
		GrossAmount:     money(p.GrossAmount),
		TDSAmount:       money(p.TDSAmount),
		TCSAmount:       money(p.TCSAmount),
		NetAmount:       money(p.NetAmount),
		PaymentMode:     p.PaymentMode,
		ReferenceNumber: p.ReferenceNumber,
		Status:          p.Status,
		IsPosted:        p.IsPosted,
		PostedVoucher:   p.PostedVoucher,
		ReversalVoucher: p.ReversalVoucher,
		Notes:           p.Notes,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}
