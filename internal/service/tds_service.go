package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gstbooks/internal/apperror"
	"gstbooks/internal/fiscal"
	"gstbooks/internal/lock"
	"gstbooks/internal/logger"
	"gstbooks/internal/model"
	"gstbooks/internal/repository"
	"gstbooks/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReturnNotCreated is the sheet status of a quarter without a return row.
const ReturnNotCreated = "NOT_CREATED"

// tdsInvoiceTypes maps a TDS type to the invoices it deducts on. Notes never carry TDS.
var tdsInvoiceTypes = map[string]string{
	model.TDSPayable:    model.InvoiceTypePurchase,
	model.TDSReceivable: model.InvoiceTypeSales,
}

// tdsPendingStatuses are the issued states whose deduction is due for deposit.
var tdsPendingStatuses = []string{model.InvoiceSent, model.InvoicePartial, model.InvoicePaid, model.InvoiceOverdue}

// --- DTOs ---

type PendingTDSQuery struct {
	FinancialYear string `form:"financial_year" binding:"required"`
	Month         int    `form:"month" binding:"required,min=1,max=12"`
	TDSType       string `form:"tds_type" binding:"required,oneof=PAYABLE RECEIVABLE"`
	BranchID      string `form:"branch_id"`
}

type TDSInvoiceResponse struct {
	InvoiceID     string  `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number"`
	InvoiceType   string  `json:"invoice_type"`
	InvoiceDate   string  `json:"invoice_date"`
	PartyID       *string `json:"party_id"`
	BranchID      *string `json:"branch_id"`
	Status        string  `json:"status"`
	BaseAmount    string  `json:"base_amount"`
	TDSSection    string  `json:"tds_section"`
	TDSRate       string  `json:"tds_rate"`
	TDSAmount     string  `json:"tds_amount"`
}

type PendingTDSResponse struct {
	FinancialYear string               `json:"financial_year"`
	Month         int                  `json:"month"`
	Quarter       int                  `json:"quarter"`
	TDSType       string               `json:"tds_type"`
	Invoices      []TDSInvoiceResponse `json:"invoices"`
	TotalTDS      string               `json:"total_tds"`
}

type ChallanEntryAdjustment struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
	Penalty   string `json:"penalty"`
	Interest  string `json:"interest"`
}

type GenerateChallanRequest struct {
	InvoiceIDs    []string                 `json:"invoice_ids" binding:"required"`
	ChallanNumber string                   `json:"challan_number" binding:"required"`
	BSRCode       string                   `json:"bsr_code" binding:"required"`
	PaymentDate   string                   `json:"payment_date" binding:"required"`
	FinancialYear string                   `json:"financial_year" binding:"required"`
	Month         int                      `json:"month" binding:"required,min=1,max=12"`
	TDSType       string                   `json:"tds_type" binding:"required,oneof=PAYABLE RECEIVABLE"`
	BranchID      *string                  `json:"branch_id"`
	TransactionID string                   `json:"transaction_id"`
	Notes         string                   `json:"notes"`
	Adjustments   []ChallanEntryAdjustment `json:"adjustments"`
}

type UpdateChallanRequest struct {
	ChallanNumber *string                  `json:"challan_number"`
	BSRCode       *string                  `json:"bsr_code"`
	PaymentDate   *string                  `json:"payment_date"`
	TransactionID *string                  `json:"transaction_id"`
	Notes         *string                  `json:"notes"`
	Adjustments   []ChallanEntryAdjustment `json:"adjustments"`
}

type ChallanQuery struct {
	FinancialYear     string `form:"financial_year"`
	TDSType           string `form:"tds_type"`
	Month             int    `form:"month"`
	Quarter           int    `form:"quarter"`
	BranchID          string `form:"branch_id"`
	IncludeSuperseded bool   `form:"include_superseded"`
}

type ChallanEntryResponse struct {
	ID            string  `json:"id"`
	InvoiceID     string  `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number"`
	InvoiceDate   string  `json:"invoice_date"`
	PartyID       *string `json:"party_id"`
	BaseAmount    string  `json:"base_amount"`
	TDSRate       string  `json:"tds_rate"`
	TDSSection    string  `json:"tds_section"`
	TDSAmount     string  `json:"tds_amount"`
	Penalty       string  `json:"penalty"`
	Interest      string  `json:"interest"`
	Superseded    bool    `json:"superseded"`
}

type ChallanResponse struct {
	ID            string                 `json:"id"`
	ChallanNumber string                 `json:"challan_number"`
	BSRCode       string                 `json:"bsr_code"`
	FinancialYear string                 `json:"financial_year"`
	Month         int                    `json:"month"`
	Quarter       int                    `json:"quarter"`
	TDSType       string                 `json:"tds_type"`
	BranchID      *string                `json:"branch_id"`
	PaymentDate   string                 `json:"payment_date"`
	TransactionID string                 `json:"transaction_id"`
	TDSAmount     string                 `json:"tds_amount"`
	Penalty       string                 `json:"penalty"`
	Interest      string                 `json:"interest"`
	TotalAmount   string                 `json:"total_amount"`
	Notes         string                 `json:"notes"`
	SupersededAt  *string                `json:"superseded_at"`
	Entries       []ChallanEntryResponse `json:"entries"`
	CreatedAt     string                 `json:"created_at"`
}

type TDSSheetQuery struct {
	FinancialYear string `form:"financial_year" binding:"required"`
	TDSType       string `form:"tds_type" binding:"required,oneof=PAYABLE RECEIVABLE"`
	BranchID      string `form:"branch_id"`
}

type TDSSheetMonth struct {
	Month        int    `json:"month"`
	Year         int    `json:"year"`
	Quarter      int    `json:"quarter"`
	TDSPayable   string `json:"tds_payable"`
	TDSPaid      string `json:"tds_paid"`
	Penalty      string `json:"penalty"`
	Interest     string `json:"interest"`
	ChallanCount int    `json:"challan_count"`
	TDSDeducted  string `json:"tds_deducted"`
	HasPending   bool   `json:"has_pending"`
}

type TDSSheetQuarter struct {
	Quarter      int     `json:"quarter"`
	ReturnID     *string `json:"return_id"`
	ReturnStatus string  `json:"return_status"`
}

type TDSSheetResponse struct {
	FinancialYear    string            `json:"financial_year"`
	TDSType          string            `json:"tds_type"`
	Months           []TDSSheetMonth   `json:"months"`
	Quarters         []TDSSheetQuarter `json:"quarters"`
	TotalTDSPayable  string            `json:"total_tds_payable"`
	TotalTDSPaid     string            `json:"total_tds_paid"`
	TotalPenalty     string            `json:"total_penalty"`
	TotalInterest    string            `json:"total_interest"`
	TotalTDSDeducted string            `json:"total_tds_deducted"`
}

type TDSReturnQuery struct {
	FinancialYear string `form:"financial_year" binding:"required"`
	Quarter       int    `form:"quarter" binding:"required,min=1,max=4"`
	TDSType       string `form:"tds_type" binding:"required,oneof=PAYABLE RECEIVABLE"`
	BranchID      string `form:"branch_id"`
}

type FileReturnRequest struct {
	FiledDate            string `json:"filed_date" binding:"required"`
	AcknowledgmentNumber string `json:"acknowledgment_number"`
}

type TDSReturnResponse struct {
	ID                   string            `json:"id"`
	FinancialYear        string            `json:"financial_year"`
	Quarter              int               `json:"quarter"`
	TDSType              string            `json:"tds_type"`
	BranchID             *string           `json:"branch_id"`
	Status               string            `json:"status"`
	FiledDate            *string           `json:"filed_date"`
	AcknowledgmentNumber string            `json:"acknowledgment_number"`
	RevisionCount        int               `json:"revision_count"`
	Challans             []ChallanResponse `json:"challans"`
	EntryCount           int               `json:"entry_count"`
	TDSAmount            string            `json:"tds_amount"`
	Penalty              string            `json:"penalty"`
	Interest             string            `json:"interest"`
	TotalAmount          string            `json:"total_amount"`
	UpdatedAt            string            `json:"updated_at"`
}

// --- Interface ---

type TDSService interface {
	PendingInvoices(ctx context.Context, q PendingTDSQuery) (PendingTDSResponse, error)
	GenerateChallan(ctx context.Context, req GenerateChallanRequest, userID string) (ChallanResponse, error)
	UpdateChallan(ctx context.Context, id string, req UpdateChallanRequest, userID string) (ChallanResponse, error)
	DeleteChallan(ctx context.Context, id string, userID string) error
	ListChallans(ctx context.Context, q ChallanQuery) ([]ChallanResponse, error)
	Sheet(ctx context.Context, q TDSSheetQuery) (TDSSheetResponse, error)
	GetReturn(ctx context.Context, q TDSReturnQuery) (TDSReturnResponse, error)
	FileReturn(ctx context.Context, id string, req FileReturnRequest, userID string) (TDSReturnResponse, error)
	ReviseReturn(ctx context.Context, id string, req FileReturnRequest, userID string) (TDSReturnResponse, error)
}

type tdsService struct {
	tdsRepo      repository.TDSRepository
	invoiceRepo  repository.InvoiceRepository
	settingsRepo repository.SettingsRepository
	txManager    repository.TransactionManager
	locker       lock.Locker
	events       EventPublisher
	audit        auditTrail
	log          zerolog.Logger
	now          func() time.Time
}

func NewTDSService(
	tdsRepo repository.TDSRepository,
	invoiceRepo repository.InvoiceRepository,
	settingsRepo repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	locker lock.Locker,
	events EventPublisher,
) TDSService {
	log := logger.WithComponent("tds")
	return &tdsService{
		tdsRepo:      tdsRepo,
		invoiceRepo:  invoiceRepo,
		settingsRepo: settingsRepo,
		txManager:    txManager,
		locker:       locker,
		events:       events,
		audit:        auditTrail{repo: auditRepo, txManager: txManager, log: log},
		log:          log,
		now:          time.Now,
	}
}

// --- Implementation ---

func (s *tdsService) PendingInvoices(ctx context.Context, q PendingTDSQuery) (PendingTDSResponse, error) {
	const op = "PendingInvoices"

	fy, err := parseFinancialYear(op, q.FinancialYear)
	if err != nil {
		return PendingTDSResponse{}, err
	}
	invoiceType, err := invoiceTypeFor(op, q.TDSType)
	if err != nil {
		return PendingTDSResponse{}, err
	}
	from, to, err := fiscal.MonthRange(fy, time.Month(q.Month))
	if err != nil {
		return PendingTDSResponse{}, apperror.NewValidationError(op, "month", err.Error())
	}
	branchID, err := parseOptionalID(op, "branch_id", &q.BranchID)
	if err != nil {
		return PendingTDSResponse{}, err
	}

	invoices, err := s.invoiceRepo.ListTDS(ctx, repository.TDSInvoiceFilter{
		From:        from,
		To:          to,
		Types:       []string{invoiceType},
		Statuses:    tdsPendingStatuses,
		BranchID:    branchID,
		OnlyPending: true,
	})
	if err != nil {
		return PendingTDSResponse{}, fmt.Errorf("failed to fetch pending TDS invoices: %w", err)
	}

	res := PendingTDSResponse{
		FinancialYear: fy,
		Month:         q.Month,
		Quarter:       fiscal.Quarter(time.Month(q.Month)),
		TDSType:       q.TDSType,
		Invoices:      make([]TDSInvoiceResponse, 0, len(invoices)),
	}
	total := decimal.Zero
	for _, inv := range invoices {
		res.Invoices = append(res.Invoices, toTDSInvoiceResponse(inv))
		total = total.Add(inv.TDSAmount)
	}
	res.TotalTDS = money(total)
	return res, nil
}

// GenerateChallan verifies and claims the selected invoices under row locks in one transaction.
// An invoice already claimed by a live challan fails the whole request with AlreadyIncludedError.
func (s *tdsService) GenerateChallan(ctx context.Context, req GenerateChallanRequest, userID string) (ChallanResponse, error) {
	const op = "GenerateChallan"

	challan, invoiceIDs, adjustments, err := s.buildChallan(op, req)
	if err != nil {
		return ChallanResponse{}, err
	}
	invoiceType := tdsInvoiceTypes[challan.TDSType]

	release := s.locker.Acquire(ctx, periodLockKey(challan.FinancialYear, challan.TDSType))
	defer release()

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if !settings.EnableTDS {
			return apperror.NewValidationError(op, "tds_type", "TDS is disabled in settings")
		}

		if err := s.checkPeriodOpen(txCtx, op, challan); err != nil {
			return err
		}

		invoices, err := s.invoiceRepo.FindByIDsForUpdate(txCtx, invoiceIDs)
		if err != nil {
			return fmt.Errorf("failed to lock invoices: %w", err)
		}
		if len(invoices) != len(invoiceIDs) {
			return apperror.NewNotFoundError(op, "one or more selected invoices do not exist")
		}

		from, to, _ := fiscal.MonthRange(challan.FinancialYear, time.Month(challan.Month))
		for _, inv := range invoices {
			if inv.TDSChallanID != nil {
				return apperror.NewAlreadyIncludedError(op,
					fmt.Sprintf("invoice %s is already included in challan %s", inv.InvoiceNumber, inv.TDSChallanID.String()))
			}
			if err := checkTDSEligible(op, &inv, invoiceType, challan.BranchID, from, to); err != nil {
				return err
			}
			entry := model.TDSChallanEntry{
				ChallanID:     challan.ID,
				InvoiceID:     inv.ID,
				FinancialYear: challan.FinancialYear,
				TDSType:       challan.TDSType,
				InvoiceNumber: inv.InvoiceNumber,
				InvoiceDate:   inv.InvoiceDate,
				PartyID:       inv.PartyID(),
				BaseAmount:    inv.TaxableAmount,
				TDSRate:       inv.TDSRate,
				TDSSection:    inv.TDSSection,
				TDSAmount:     inv.TDSAmount,
				Penalty:       decimal.Zero,
				Interest:      decimal.Zero,
			}
			if adj, ok := adjustments[inv.ID]; ok {
				entry.Penalty = adj.penalty
				entry.Interest = adj.interest
			}
			challan.Entries = append(challan.Entries, entry)
		}
		sumChallan(challan)

		if err := s.tdsRepo.CreateChallan(txCtx, challan); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.NewAlreadyIncludedError(op, "a selected invoice was included in another challan concurrently")
			}
			return fmt.Errorf("failed to create challan: %w", err)
		}
		if err := s.invoiceRepo.SetTDSChallan(txCtx, invoiceIDs, &challan.ID); err != nil {
			return fmt.Errorf("failed to mark invoices as deposited: %w", err)
		}

		s.audit.record(txCtx, userID, model.ActionGenerateChallan, "tds_challan", challan.ID.String(), challan.ChallanNumber,
			map[string]interface{}{"invoices": len(invoiceIDs), "tds_amount": money(challan.TDSAmount), "month": challan.Month})
		return nil
	})
	if err != nil {
		return ChallanResponse{}, err
	}

	s.log.Info().Str("challan_id", challan.ID.String()).Str("challan_number", challan.ChallanNumber).
		Int("invoices", len(invoiceIDs)).Str("tds_amount", money(challan.TDSAmount)).Msg("challan generated")
	publish(s.events, websocket.EventChallanGenerated, map[string]interface{}{
		"id":             challan.ID.String(),
		"challan_number": challan.ChallanNumber,
		"financial_year": challan.FinancialYear,
		"month":          challan.Month,
		"tds_type":       challan.TDSType,
		"tds_amount":     money(challan.TDSAmount),
	})
	return toChallanResponse(*challan), nil
}

func (s *tdsService) UpdateChallan(ctx context.Context, id string, req UpdateChallanRequest, userID string) (ChallanResponse, error) {
	const op = "UpdateChallan"

	challanID, err := parseID(op, "id", id)
	if err != nil {
		return ChallanResponse{}, err
	}
	adjustments, err := parseAdjustments(op, req.Adjustments)
	if err != nil {
		return ChallanResponse{}, err
	}

	release, err := s.lockChallanPeriod(ctx, op, challanID)
	if err != nil {
		return ChallanResponse{}, err
	}
	defer release()

	var challan *model.TDSChallan
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		challan, err = s.loadLiveChallan(txCtx, op, challanID)
		if err != nil {
			return err
		}
		if err := s.checkPeriodOpen(txCtx, op, challan); err != nil {
			return err
		}

		if req.ChallanNumber != nil {
			if strings.TrimSpace(*req.ChallanNumber) == "" {
				return apperror.NewValidationError(op, "challan_number", "must not be empty")
			}
			challan.ChallanNumber = strings.TrimSpace(*req.ChallanNumber)
		}
		if req.BSRCode != nil {
			if strings.TrimSpace(*req.BSRCode) == "" {
				return apperror.NewValidationError(op, "bsr_code", "must not be empty")
			}
			challan.BSRCode = strings.TrimSpace(*req.BSRCode)
		}
		if req.PaymentDate != nil {
			if challan.PaymentDate, err = parseDate(op, "payment_date", *req.PaymentDate); err != nil {
				return err
			}
		}
		if req.TransactionID != nil {
			challan.TransactionID = *req.TransactionID
		}
		if req.Notes != nil {
			challan.Notes = *req.Notes
		}

		matched := 0
		for i := range challan.Entries {
			entry := &challan.Entries[i]
			adj, ok := adjustments[entry.InvoiceID]
			if !ok {
				continue
			}
			matched++
			entry.Penalty = adj.penalty
			entry.Interest = adj.interest
			if err := s.tdsRepo.UpdateEntry(txCtx, entry); err != nil {
				return fmt.Errorf("failed to update challan entry: %w", err)
			}
		}
		if matched != len(adjustments) {
			return apperror.NewValidationError(op, "adjustments", "every adjusted invoice must belong to the challan")
		}

		sumChallan(challan)
		if err := s.tdsRepo.UpdateChallan(txCtx, challan); err != nil {
			return fmt.Errorf("failed to update challan: %w", err)
		}
		s.audit.record(txCtx, userID, model.ActionUpdateChallan, "tds_challan", challan.ID.String(), challan.ChallanNumber,
			map[string]interface{}{"total_amount": money(challan.TotalAmount)})
		return nil
	})
	if err != nil {
		return ChallanResponse{}, err
	}

	s.log.Info().Str("challan_id", challan.ID.String()).Str("total_amount", money(challan.TotalAmount)).Msg("challan updated")
	return toChallanResponse(*challan), nil
}

// DeleteChallan supersedes the challan and returns its invoices to the pending set.
func (s *tdsService) DeleteChallan(ctx context.Context, id string, userID string) error {
	const op = "DeleteChallan"

	challanID, err := parseID(op, "id", id)
	if err != nil {
		return err
	}

	release, err := s.lockChallanPeriod(ctx, op, challanID)
	if err != nil {
		return err
	}
	defer release()

	var challan *model.TDSChallan
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		challan, err = s.loadLiveChallan(txCtx, op, challanID)
		if err != nil {
			return err
		}
		if err := s.checkPeriodOpen(txCtx, op, challan); err != nil {
			return err
		}

		if err := s.tdsRepo.SupersedeChallan(txCtx, challan.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to supersede challan: %w", err)
		}
		invoiceIDs := make([]uuid.UUID, 0, len(challan.Entries))
		for _, e := range challan.Entries {
			invoiceIDs = append(invoiceIDs, e.InvoiceID)
		}
		if err := s.invoiceRepo.SetTDSChallan(txCtx, invoiceIDs, nil); err != nil {
			return fmt.Errorf("failed to release invoices: %w", err)
		}

		s.audit.record(txCtx, userID, model.ActionDeleteChallan, "tds_challan", challan.ID.String(), challan.ChallanNumber,
			map[string]interface{}{"released_invoices": len(invoiceIDs)})
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("challan_id", challan.ID.String()).Str("challan_number", challan.ChallanNumber).Msg("challan superseded")
	return nil
}

func (s *tdsService) ListChallans(ctx context.Context, q ChallanQuery) ([]ChallanResponse, error) {
	const op = "ListChallans"

	filter := repository.ChallanFilter{
		TDSType:           q.TDSType,
		Month:             q.Month,
		Quarter:           q.Quarter,
		IncludeSuperseded: q.IncludeSuperseded,
	}
	if q.FinancialYear != "" {
		fy, err := parseFinancialYear(op, q.FinancialYear)
		if err != nil {
			return nil, err
		}
		filter.FinancialYear = fy
	}
	var err error
	if filter.BranchID, err = parseOptionalID(op, "branch_id", &q.BranchID); err != nil {
		return nil, err
	}

	challans, err := s.tdsRepo.ListChallans(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challans: %w", err)
	}
	res := make([]ChallanResponse, 0, len(challans))
	for _, c := range challans {
		res = append(res, toChallanResponse(c))
	}
	return res, nil
}

// Sheet summarizes a financial year month by month, April first.
func (s *tdsService) Sheet(ctx context.Context, q TDSSheetQuery) (TDSSheetResponse, error) {
	const op = "TDSSheet"

	fy, err := parseFinancialYear(op, q.FinancialYear)
	if err != nil {
		return TDSSheetResponse{}, err
	}
	invoiceType, err := invoiceTypeFor(op, q.TDSType)
	if err != nil {
		return TDSSheetResponse{}, err
	}
	branchID, err := parseOptionalID(op, "branch_id", &q.BranchID)
	if err != nil {
		return TDSSheetResponse{}, err
	}
	from, to, _ := fiscal.YearRange(fy)
	startYear, _ := fiscal.Parse(fy)

	var (
		challans []model.TDSChallan
		invoices []model.Invoice
		returns  []model.TDSReturn
	)
	err = s.txManager.RunInSnapshot(ctx, func(txCtx context.Context) error {
		var err error
		challans, err = s.tdsRepo.ListChallans(txCtx, repository.ChallanFilter{FinancialYear: fy, TDSType: q.TDSType, BranchID: branchID})
		if err != nil {
			return fmt.Errorf("failed to fetch challans: %w", err)
		}
		invoices, err = s.invoiceRepo.ListTDS(txCtx, repository.TDSInvoiceFilter{
			From:     from,
			To:       to,
			Types:    []string{invoiceType},
			Statuses: tdsPendingStatuses,
			BranchID: branchID,
		})
		if err != nil {
			return fmt.Errorf("failed to fetch TDS invoices: %w", err)
		}
		returns, err = s.tdsRepo.ListReturns(txCtx, fy, q.TDSType)
		if err != nil {
			return fmt.Errorf("failed to fetch returns: %w", err)
		}
		return nil
	})
	if err != nil {
		return TDSSheetResponse{}, err
	}

	type bucket struct {
		payable, paid, penalty, interest, deducted decimal.Decimal
		challans                                   int
		pending                                    bool
	}
	buckets := make(map[time.Month]*bucket, 12)
	for _, m := range fiscal.Months() {
		buckets[m] = &bucket{payable: decimal.Zero, paid: decimal.Zero, penalty: decimal.Zero, interest: decimal.Zero, deducted: decimal.Zero}
	}
	for _, c := range challans {
		b := buckets[time.Month(c.Month)]
		if b == nil {
			continue
		}
		b.payable = b.payable.Add(c.TDSAmount)
		b.paid = b.paid.Add(c.TotalAmount)
		b.penalty = b.penalty.Add(c.Penalty)
		b.interest = b.interest.Add(c.Interest)
		b.challans++
	}
	for _, inv := range invoices {
		b := buckets[inv.InvoiceDate.Month()]
		b.deducted = b.deducted.Add(inv.TDSAmount)
		if inv.TDSChallanID == nil {
			b.pending = true
		}
	}

	res := TDSSheetResponse{FinancialYear: fy, TDSType: q.TDSType}
	totalPayable, totalPaid, totalPenalty, totalInterest, totalDeducted := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, m := range fiscal.Months() {
		b := buckets[m]
		res.Months = append(res.Months, TDSSheetMonth{
			Month:        int(m),
			Year:         fiscal.CalendarYear(startYear, m),
			Quarter:      fiscal.Quarter(m),
			TDSPayable:   money(b.payable),
			TDSPaid:      money(b.paid),
			Penalty:      money(b.penalty),
			Interest:     money(b.interest),
			ChallanCount: b.challans,
			TDSDeducted:  money(b.deducted),
			HasPending:   b.pending,
		})
		totalPayable = totalPayable.Add(b.payable)
		totalPaid = totalPaid.Add(b.paid)
		totalPenalty = totalPenalty.Add(b.penalty)
		totalInterest = totalInterest.Add(b.interest)
		totalDeducted = totalDeducted.Add(b.deducted)
	}
	for quarter := 1; quarter <= 4; quarter++ {
		row := TDSSheetQuarter{Quarter: quarter, ReturnStatus: ReturnNotCreated}
		for _, r := range returns {
			if r.Quarter == quarter && sameBranch(r.BranchID, branchID) {
				row.ReturnID = idString(&r.ID)
				row.ReturnStatus = r.Status
				break
			}
		}
		res.Quarters = append(res.Quarters, row)
	}
	res.TotalTDSPayable = money(totalPayable)
	res.TotalTDSPaid = money(totalPaid)
	res.TotalPenalty = money(totalPenalty)
	res.TotalInterest = money(totalInterest)
	res.TotalTDSDeducted = money(totalDeducted)
	return res, nil
}

// GetReturn loads the quarter's return, creating a DRAFT the first time it is asked for.
func (s *tdsService) GetReturn(ctx context.Context, q TDSReturnQuery) (TDSReturnResponse, error) {
	const op = "GetReturn"

	fy, err := parseFinancialYear(op, q.FinancialYear)
	if err != nil {
		return TDSReturnResponse{}, err
	}
	if _, err := invoiceTypeFor(op, q.TDSType); err != nil {
		return TDSReturnResponse{}, err
	}
	if q.Quarter < 1 || q.Quarter > 4 {
		return TDSReturnResponse{}, apperror.NewValidationError(op, "quarter", "must be between 1 and 4")
	}
	branchID, err := parseOptionalID(op, "branch_id", &q.BranchID)
	if err != nil {
		return TDSReturnResponse{}, err
	}

	release := s.locker.Acquire(ctx, periodLockKey(fy, q.TDSType))
	defer release()

	var ret *model.TDSReturn
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		ret, err = s.tdsRepo.FindReturn(txCtx, fy, q.Quarter, q.TDSType, branchID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load return: %w", err)
		}
		ret = &model.TDSReturn{
			FinancialYear: fy,
			Quarter:       q.Quarter,
			TDSType:       q.TDSType,
			BranchID:      branchID,
			Status:        model.ReturnDraft,
		}
		if err := s.tdsRepo.CreateReturn(txCtx, ret); err != nil {
			return saveErr(op, "return", err)
		}
		return nil
	})
	if err != nil {
		return TDSReturnResponse{}, err
	}
	return s.returnResponse(ctx, ret)
}

func (s *tdsService) FileReturn(ctx context.Context, id string, req FileReturnRequest, userID string) (TDSReturnResponse, error) {
	const op = "FileReturn"
	return s.transitionReturn(ctx, op, id, req, userID, func(ret *model.TDSReturn) error {
		if ret.Status != model.ReturnDraft {
			return apperror.NewImmutableReturnError(op, fmt.Sprintf("return for %s Q%d is already %s", ret.FinancialYear, ret.Quarter, ret.Status))
		}
		ret.Status = model.ReturnFiled
		return nil
	})
}

func (s *tdsService) ReviseReturn(ctx context.Context, id string, req FileReturnRequest, userID string) (TDSReturnResponse, error) {
	const op = "ReviseReturn"
	return s.transitionReturn(ctx, op, id, req, userID, func(ret *model.TDSReturn) error {
		if !ret.IsLocked() {
			return apperror.NewValidationError(op, "status", "only a FILED or REVISED return can be revised")
		}
		ret.Status = model.ReturnRevised
		ret.RevisionCount++
		return nil
	})
}

// --- Helpers ---

func (s *tdsService) transitionReturn(ctx context.Context, op, id string, req FileReturnRequest, userID string, apply func(*model.TDSReturn) error) (TDSReturnResponse, error) {
	returnID, err := parseID(op, "id", id)
	if err != nil {
		return TDSReturnResponse{}, err
	}
	filedDate, err := parseDate(op, "filed_date", req.FiledDate)
	if err != nil {
		return TDSReturnResponse{}, err
	}

	var ret *model.TDSReturn
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		ret, err = s.tdsRepo.FindReturnForUpdate(txCtx, returnID)
		if err != nil {
			return loadErr(op, "return", err)
		}
		if err := apply(ret); err != nil {
			return err
		}
		ret.FiledDate = &filedDate
		if req.AcknowledgmentNumber != "" {
			ret.AcknowledgmentNumber = req.AcknowledgmentNumber
		}
		if err := s.tdsRepo.UpdateReturn(txCtx, ret); err != nil {
			return fmt.Errorf("failed to update return: %w", err)
		}

		action := model.ActionFileReturn
		if ret.Status == model.ReturnRevised {
			action = model.ActionReviseReturn
		}
		s.audit.record(txCtx, userID, action, "tds_return", ret.ID.String(), fmt.Sprintf("%s Q%d %s", ret.FinancialYear, ret.Quarter, ret.TDSType),
			map[string]interface{}{"status": ret.Status, "filed_date": formatDate(filedDate), "acknowledgment_number": ret.AcknowledgmentNumber})
		return nil
	})
	if err != nil {
		return TDSReturnResponse{}, err
	}

	s.log.Info().Str("return_id", ret.ID.String()).Str("status", ret.Status).Int("revision", ret.RevisionCount).Msg("tds return transitioned")
	publish(s.events, websocket.EventReturnFiled, map[string]interface{}{
		"id":             ret.ID.String(),
		"financial_year": ret.FinancialYear,
		"quarter":        ret.Quarter,
		"tds_type":       ret.TDSType,
		"status":         ret.Status,
	})
	return s.returnResponse(ctx, ret)
}

func (s *tdsService) returnResponse(ctx context.Context, ret *model.TDSReturn) (TDSReturnResponse, error) {
	challans, err := s.tdsRepo.ListChallans(ctx, repository.ChallanFilter{
		FinancialYear: ret.FinancialYear,
		TDSType:       ret.TDSType,
		Quarter:       ret.Quarter,
		BranchID:      ret.BranchID,
	})
	if err != nil {
		return TDSReturnResponse{}, fmt.Errorf("failed to fetch challans: %w", err)
	}
	return toTDSReturnResponse(ret, challans), nil
}

func periodLockKey(financialYear, tdsType string) string {
	return "tds:" + financialYear + ":" + tdsType
}

// lockChallanPeriod takes the period lock of an existing challan. The period of a
// challan never changes, so it is read before the transaction.
func (s *tdsService) lockChallanPeriod(ctx context.Context, op string, id uuid.UUID) (func(), error) {
	challan, err := s.tdsRepo.FindChallanByID(ctx, id)
	if err != nil {
		return nil, loadErr(op, "challan", err)
	}
	return s.locker.Acquire(ctx, periodLockKey(challan.FinancialYear, challan.TDSType)), nil
}

func (s *tdsService) loadLiveChallan(ctx context.Context, op string, id uuid.UUID) (*model.TDSChallan, error) {
	challan, err := s.tdsRepo.FindChallanForUpdate(ctx, id)
	if err != nil {
		return nil, loadErr(op, "challan", err)
	}
	if challan.SupersededAt != nil {
		return nil, apperror.NewNotFoundError(op, fmt.Sprintf("challan %s has been deleted", challan.ChallanNumber))
	}
	return challan, nil
}

// checkPeriodOpen fails when a FILED or REVISED return covers the challan's quarter and branch.
func (s *tdsService) checkPeriodOpen(ctx context.Context, op string, challan *model.TDSChallan) error {
	returns, err := s.tdsRepo.ListReturnsForPeriod(ctx, challan.FinancialYear, challan.Quarter, challan.TDSType)
	if err != nil {
		return fmt.Errorf("failed to load returns: %w", err)
	}
	for _, r := range returns {
		if r.IsLocked() && returnCovers(&r, challan.BranchID) {
			return apperror.NewImmutableReturnError(op,
				fmt.Sprintf("the %s Q%d %s return is %s", r.FinancialYear, r.Quarter, r.TDSType, r.Status))
		}
	}
	return nil
}

type entryAdjustment struct {
	penalty, interest decimal.Decimal
}

func (s *tdsService) buildChallan(op string, req GenerateChallanRequest) (*model.TDSChallan, []uuid.UUID, map[uuid.UUID]entryAdjustment, error) {
	if strings.TrimSpace(req.ChallanNumber) == "" {
		return nil, nil, nil, apperror.NewValidationError(op, "challan_number", "is required")
	}
	if strings.TrimSpace(req.BSRCode) == "" {
		return nil, nil, nil, apperror.NewValidationError(op, "bsr_code", "is required")
	}
	if len(req.InvoiceIDs) == 0 {
		return nil, nil, nil, apperror.NewValidationError(op, "invoice_ids", "select at least one invoice")
	}
	fy, err := parseFinancialYear(op, req.FinancialYear)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := invoiceTypeFor(op, req.TDSType); err != nil {
		return nil, nil, nil, err
	}
	if req.Month < 1 || req.Month > 12 {
		return nil, nil, nil, apperror.NewValidationError(op, "month", "must be between 1 and 12")
	}
	paymentDate, err := parseDate(op, "payment_date", req.PaymentDate)
	if err != nil {
		return nil, nil, nil, err
	}
	branchID, err := parseOptionalID(op, "branch_id", req.BranchID)
	if err != nil {
		return nil, nil, nil, err
	}

	seen := make(map[uuid.UUID]bool, len(req.InvoiceIDs))
	ids := make([]uuid.UUID, 0, len(req.InvoiceIDs))
	for i, raw := range req.InvoiceIDs {
		id, err := parseID(op, fmt.Sprintf("invoice_ids[%d]", i), raw)
		if err != nil {
			return nil, nil, nil, err
		}
		if seen[id] {
			return nil, nil, nil, apperror.NewValidationError(op, fmt.Sprintf("invoice_ids[%d]", i), "invoice is selected twice")
		}
		seen[id] = true
		ids = append(ids, id)
	}

	adjustments, err := parseAdjustments(op, req.Adjustments)
	if err != nil {
		return nil, nil, nil, err
	}
	for id := range adjustments {
		if !seen[id] {
			return nil, nil, nil, apperror.NewValidationError(op, "adjustments", "every adjusted invoice must be selected")
		}
	}

	challan := &model.TDSChallan{
		ID:            uuid.New(),
		ChallanNumber: strings.TrimSpace(req.ChallanNumber),
		BSRCode:       strings.TrimSpace(req.BSRCode),
		FinancialYear: fy,
		Month:         req.Month,
		Quarter:       fiscal.Quarter(time.Month(req.Month)),
		TDSType:       req.TDSType,
		BranchID:      branchID,
		PaymentDate:   paymentDate,
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
	}
	return challan, ids, adjustments, nil
}

func parseAdjustments(op string, raw []ChallanEntryAdjustment) (map[uuid.UUID]entryAdjustment, error) {
	out := make(map[uuid.UUID]entryAdjustment, len(raw))
	for i, a := range raw {
		field := fmt.Sprintf("adjustments[%d]", i)
		id, err := parseID(op, field+".invoice_id", a.InvoiceID)
		if err != nil {
			return nil, err
		}
		if _, dup := out[id]; dup {
			return nil, apperror.NewValidationError(op, field+".invoice_id", "invoice is adjusted twice")
		}
		penalty, err := parseAmount(op, field+".penalty", a.Penalty)
		if err != nil {
			return nil, err
		}
		interest, err := parseAmount(op, field+".interest", a.Interest)
		if err != nil {
			return nil, err
		}
		if penalty.IsNegative() || interest.IsNegative() {
			return nil, apperror.NewValidationError(op, field, "penalty and interest must not be negative")
		}
		out[id] = entryAdjustment{penalty: penalty.Round(2), interest: interest.Round(2)}
	}
	return out, nil
}

// checkTDSEligible verifies an invoice belongs to the challan's pending set.
func checkTDSEligible(op string, inv *model.Invoice, invoiceType string, branchID *uuid.UUID, from, to time.Time) error {
	field := "invoice_ids"
	switch {
	case !inv.TDSApplicable || !inv.TDSAmount.IsPositive():
		return apperror.NewValidationError(op, field, fmt.Sprintf("invoice %s has no TDS to deposit", inv.InvoiceNumber))
	case inv.InvoiceType != invoiceType:
		return apperror.NewValidationError(op, field, fmt.Sprintf("invoice %s is a %s invoice", inv.InvoiceNumber, inv.InvoiceType))
	case !isPendingStatus(inv.Status):
		return apperror.NewValidationError(op, field, fmt.Sprintf("invoice %s is %s", inv.InvoiceNumber, inv.Status))
	case inv.InvoiceDate.Before(from) || inv.InvoiceDate.After(to):
		return apperror.NewValidationError(op, field, fmt.Sprintf("invoice %s is dated outside the challan month", inv.InvoiceNumber))
	case branchID != nil && !sameBranch(inv.BranchID, branchID):
		return apperror.NewValidationError(op, field, fmt.Sprintf("invoice %s belongs to another branch", inv.InvoiceNumber))
	}
	return nil
}

func isPendingStatus(status string) bool {
	for _, st := range tdsPendingStatuses {
		if st == status {
			return true
		}
	}
	return false
}

// sumChallan recomputes header totals from the live entries.
func sumChallan(c *model.TDSChallan) {
	c.TDSAmount, c.Penalty, c.Interest = decimal.Zero, decimal.Zero, decimal.Zero
	for _, e := range c.Entries {
		if e.Superseded {
			continue
		}
		c.TDSAmount = c.TDSAmount.Add(e.TDSAmount)
		c.Penalty = c.Penalty.Add(e.Penalty)
		c.Interest = c.Interest.Add(e.Interest)
	}
	c.TotalAmount = c.TDSAmount.Add(c.Penalty).Add(c.Interest)
}

// returnCovers reports whether ret governs challans of branchID. A return without a branch covers all.
func returnCovers(ret *model.TDSReturn, branchID *uuid.UUID) bool {
	return ret.BranchID == nil || (branchID != nil && *ret.BranchID == *branchID)
}

func sameBranch(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func parseFinancialYear(op, raw string) (string, error) {
	fy, err := fiscal.Normalize(raw)
	if err != nil {
		return "", apperror.NewValidationError(op, "financial_year", "must look like 2024-25")
	}
	return fy, nil
}

func invoiceTypeFor(op, tdsType string) (string, error) {
	invoiceType, ok := tdsInvoiceTypes[tdsType]
	if !ok {
		return "", apperror.NewValidationError(op, "tds_type", "must be PAYABLE or RECEIVABLE")
	}
	return invoiceType, nil
}

// --- Mapping ---

func toTDSInvoiceResponse(inv model.Invoice) TDSInvoiceResponse {
	return TDSInvoiceResponse{
		InvoiceID:     inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceType:   inv.InvoiceType,
		InvoiceDate:   formatDate(inv.InvoiceDate),
		PartyID:       idString(inv.PartyID()),
		BranchID:      idString(inv.BranchID),
		Status:        inv.Status,
		BaseAmount:    money(inv.TaxableAmount),
		TDSSection:    inv.TDSSection,
		TDSRate:       money(inv.TDSRate),
		TDSAmount:     money(inv.TDSAmount),
	}
}

func toChallanResponse(c model.TDSChallan) ChallanResponse {
	entries := make([]ChallanEntryResponse, 0, len(c.Entries))
	for _, e := range c.Entries {
		entries = append(entries, ChallanEntryResponse{
			ID:            e.ID.String(),
			InvoiceID:     e.InvoiceID.String(),
			InvoiceNumber: e.InvoiceNumber,
			InvoiceDate:   formatDate(e.InvoiceDate),
			PartyID:       idString(e.PartyID),
			BaseAmount:    money(e.BaseAmount),
			TDSRate:       money(e.TDSRate),
			TDSSection:    e.TDSSection,
			TDSAmount:     money(e.TDSAmount),
			Penalty:       money(e.Penalty),
			Interest:      money(e.Interest),
			Superseded:    e.Superseded,
		})
	}
	var superseded *string
	if c.SupersededAt != nil {
		at := c.SupersededAt.Format(time.RFC3339)
		superseded = &at
	}
	return ChallanResponse{
		ID:            c.ID.String(),
		ChallanNumber: c.ChallanNumber,
		BSRCode:       c.BSRCode,
		FinancialYear: c.FinancialYear,
		Month:         c.Month,
		Quarter:       c.Quarter,
		TDSType:       c.TDSType,
		BranchID:      idString(c.BranchID),
		PaymentDate:   formatDate(c.PaymentDate),
		TransactionID: c.TransactionID,
		TDSAmount:     money(c.TDSAmount),
		Penalty:       money(c.Penalty),
		Interest:      money(c.Interest),
		TotalAmount:   money(c.TotalAmount),
		Notes:         c.Notes,
		SupersededAt:  superseded,
		Entries:       entries,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
}

func toTDSReturnResponse(ret *model.TDSReturn, challans []model.TDSChallan) TDSReturnResponse {
	res := TDSReturnResponse{
		ID:                   ret.ID.String(),
		FinancialYear:        ret.FinancialYear,
		Quarter:              ret.Quarter,
		TDSType:              ret.TDSType,
		BranchID:             idString(ret.BranchID),
		Status:               ret.Status,
		FiledDate:            formatOptionalDate(ret.FiledDate),
		AcknowledgmentNumber: ret.AcknowledgmentNumber,
		RevisionCount:        ret.RevisionCount,
		Challans:             make([]ChallanResponse, 0, len(challans)),
		UpdatedAt:            ret.UpdatedAt.Format(time.RFC3339),
	}
	tds, penalty, interest, total := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, c := range challans {
		res.Challans = append(res.Challans, toChallanResponse(c))
		res.EntryCount += len(c.Entries)
		tds = tds.Add(c.TDSAmount)
		penalty = penalty.Add(c.Penalty)
		interest = interest.Add(c.Interest)
		total = total.Add(c.TotalAmount)
	}
	res.TDSAmount = money(tds)
	res.Penalty = money(penalty)
	res.Interest = money(interest)
	res.TotalAmount = money(total)
	return res
}
