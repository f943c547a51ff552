package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gstbooks/internal/apperror"
	"gstbooks/internal/ledger"
	"gstbooks/internal/logger"
	"gstbooks/internal/model"
	"gstbooks/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Party types accepted by PartyStatement
const (
	PartyClient = "client"
	PartyVendor = "vendor"
)

// --- DTOs ---

type PartyStatementQuery struct {
	PartyType string `form:"party_type" binding:"required,oneof=client vendor"`
	PartyID   string `form:"party_id" binding:"required"`
	From      string `form:"from" binding:"required"`
	To        string `form:"to" binding:"required"`
	BranchID  string `form:"branch_id"`
}

type AccountStatementQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

type BalanceResponse struct {
	Amount string `json:"amount"`
	Side   string `json:"side"`
}

type StatementLineResponse struct {
	Date          string          `json:"date"`
	VoucherNumber string          `json:"voucher_number"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   *string         `json:"reference_id"`
	Narration     string          `json:"narration"`
	Debit         string          `json:"debit"`
	Credit        string          `json:"credit"`
	Balance       BalanceResponse `json:"balance"`
}

type StatementResponse struct {
	PartyType      string                  `json:"party_type,omitempty"`
	PartyID        string                  `json:"party_id,omitempty"`
	AccountID      string                  `json:"account_id"`
	AccountCode    string                  `json:"account_code"`
	AccountName    string                  `json:"account_name"`
	From           string                  `json:"from"`
	To             string                  `json:"to"`
	OpeningBalance BalanceResponse         `json:"opening_balance"`
	Transactions   []StatementLineResponse `json:"transactions"`
	TotalDebit     string                  `json:"total_debit"`
	TotalCredit    string                  `json:"total_credit"`
	ClosingBalance BalanceResponse         `json:"closing_balance"`
}

type TrialBalanceRow struct {
	AccountID   string          `json:"account_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	AccountType string          `json:"account_type"`
	Debit       string          `json:"debit"`
	Credit      string          `json:"credit"`
	Balance     BalanceResponse `json:"balance"`
}

type TrialBalanceResponse struct {
	AsOf        string            `json:"as_of"`
	Accounts    []TrialBalanceRow `json:"accounts"`
	TotalDebit  string            `json:"total_debit"`
	TotalCredit string            `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

type JournalLineRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	Narration string `json:"narration"`
}

type CreateJournalRequest struct {
	Date      string               `json:"date" binding:"required"`
	Narration string               `json:"narration" binding:"required"`
	ClientID  *string              `json:"client_id"`
	VendorID  *string              `json:"vendor_id"`
	BranchID  *string              `json:"branch_id"`
	Opening   bool                 `json:"opening"`
	Lines     []JournalLineRequest `json:"lines" binding:"required,dive"`
}

type VoucherLineResponse struct {
	LineNo      int    `json:"line_no"`
	AccountID   string `json:"account_id"`
	AccountCode string `json:"account_code,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Narration   string `json:"narration"`
}

type VoucherResponse struct {
	VoucherNumber string                `json:"voucher_number"`
	Date          string                `json:"date"`
	FinancialYear string                `json:"financial_year"`
	ReferenceType string                `json:"reference_type"`
	ReferenceID   *string               `json:"reference_id"`
	ClientID      *string               `json:"client_id"`
	VendorID      *string               `json:"vendor_id"`
	BranchID      *string               `json:"branch_id"`
	Lines         []VoucherLineResponse `json:"lines"`
	TotalDebit    string                `json:"total_debit"`
	TotalCredit   string                `json:"total_credit"`
}

type GSTSummaryRow struct {
	InvoiceType   string `json:"invoice_type"`
	InvoiceCount  int64  `json:"invoice_count"`
	TaxableAmount string `json:"taxable_amount"`
	CGSTAmount    string `json:"cgst_amount"`
	SGSTAmount    string `json:"sgst_amount"`
	IGSTAmount    string `json:"igst_amount"`
	CessAmount    string `json:"cess_amount"`
	TotalAmount   string `json:"total_amount"`
}

type GSTSummaryResponse struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Rows []GSTSummaryRow `json:"rows"`
}

// --- Interface ---

type LedgerService interface {
	PartyStatement(ctx context.Context, q PartyStatementQuery) (StatementResponse, error)
	AccountStatement(ctx context.Context, accountID string, q AccountStatementQuery) (StatementResponse, error)
	TrialBalance(ctx context.Context, asOf string) (TrialBalanceResponse, error)
	CreateJournal(ctx context.Context, req CreateJournalRequest, userID string) (VoucherResponse, error)
	GetVoucher(ctx context.Context, number string) (VoucherResponse, error)
	GSTSummary(ctx context.Context, from, to string) (GSTSummaryResponse, error)
}

type ledgerService struct {
	ledgerRepo   repository.LedgerRepository
	accountRepo  repository.AccountRepository
	invoiceRepo  repository.InvoiceRepository
	settingsRepo repository.SettingsRepository
	txManager    repository.TransactionManager
	poster       *ledgerPoster
	audit        auditTrail
	log          zerolog.Logger
	now          func() time.Time
}

func NewLedgerService(
	ledgerRepo repository.LedgerRepository,
	accountRepo repository.AccountRepository,
	invoiceRepo repository.InvoiceRepository,
	settingsRepo repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) LedgerService {
	log := logger.WithComponent("ledger")
	return &ledgerService{
		ledgerRepo:   ledgerRepo,
		accountRepo:  accountRepo,
		invoiceRepo:  invoiceRepo,
		settingsRepo: settingsRepo,
		txManager:    txManager,
		poster:       &ledgerPoster{ledgerRepo: ledgerRepo, log: log},
		audit:        auditTrail{repo: auditRepo, txManager: txManager, log: log},
		log:          log,
		now:          time.Now,
	}
}

// --- Implementation ---

// PartyStatement projects the party's receivable (clients) or payable (vendors) control account.
func (s *ledgerService) PartyStatement(ctx context.Context, q PartyStatementQuery) (StatementResponse, error) {
	const op = "PartyStatement"

	partyID, err := parseID(op, "party_id", q.PartyID)
	if err != nil {
		return StatementResponse{}, err
	}
	from, to, err := parseRange(op, q.From, q.To)
	if err != nil {
		return StatementResponse{}, err
	}
	branchID, err := parseOptionalID(op, "branch_id", &q.BranchID)
	if err != nil {
		return StatementResponse{}, err
	}

	// Get may insert the settings row, so it runs before the read-only snapshot.
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return StatementResponse{}, fmt.Errorf("failed to load settings: %w", err)
	}

	var res StatementResponse
	err = s.txManager.RunInSnapshot(ctx, func(txCtx context.Context) error {
		filter := repository.LedgerFilter{BranchID: branchID}
		var accountID *uuid.UUID
		switch q.PartyType {
		case PartyClient:
			accountID = settings.DefaultReceivableAccountID
			filter.ClientID = &partyID
		case PartyVendor:
			accountID = settings.DefaultPayableAccountID
			filter.VendorID = &partyID
		default:
			return apperror.NewValidationError(op, "party_type", "must be client or vendor")
		}
		if accountID == nil {
			return apperror.NewValidationError(op, "party_type", "no default "+q.PartyType+" control account is configured")
		}
		filter.AccountID = accountID

		account, err := s.accountRepo.FindByID(txCtx, *accountID)
		if err != nil {
			return loadErr(op, "account", err)
		}
		st, err := s.project(txCtx, filter, from, to)
		if err != nil {
			return err
		}
		res = toStatementResponse(account, from, to, st)
		return nil
	})
	if err != nil {
		return StatementResponse{}, err
	}

	res.PartyType = q.PartyType
	res.PartyID = partyID.String()
	return res, nil
}

func (s *ledgerService) AccountStatement(ctx context.Context, accountID string, q AccountStatementQuery) (StatementResponse, error) {
	const op = "AccountStatement"

	id, err := parseID(op, "id", accountID)
	if err != nil {
		return StatementResponse{}, err
	}
	from, to, err := parseRange(op, q.From, q.To)
	if err != nil {
		return StatementResponse{}, err
	}

	var res StatementResponse
	err = s.txManager.RunInSnapshot(ctx, func(txCtx context.Context) error {
		account, err := s.accountRepo.FindByID(txCtx, id)
		if err != nil {
			return loadErr(op, "account", err)
		}
		st, err := s.project(txCtx, repository.LedgerFilter{AccountID: &id}, from, to)
		if err != nil {
			return err
		}
		res = toStatementResponse(account, from, to, st)
		return nil
	})
	return res, err
}

func (s *ledgerService) TrialBalance(ctx context.Context, asOf string) (TrialBalanceResponse, error) {
	const op = "TrialBalance"

	date := s.today()
	if strings.TrimSpace(asOf) != "" {
		var err error
		if date, err = parseDate(op, "as_of", asOf); err != nil {
			return TrialBalanceResponse{}, err
		}
	}

	var rows []repository.AccountTotal
	err := s.txManager.RunInSnapshot(ctx, func(txCtx context.Context) error {
		var err error
		rows, err = s.ledgerRepo.TrialBalance(txCtx, date)
		return err
	})
	if err != nil {
		return TrialBalanceResponse{}, fmt.Errorf("failed to compute trial balance: %w", err)
	}

	res := TrialBalanceResponse{AsOf: formatDate(date), Accounts: make([]TrialBalanceRow, 0, len(rows))}
	debit, credit := decimal.Zero, decimal.Zero
	for _, r := range rows {
		debit = debit.Add(r.Debit)
		credit = credit.Add(r.Credit)
		res.Accounts = append(res.Accounts, TrialBalanceRow{
			AccountID:   r.AccountID.String(),
			Code:        r.Code,
			Name:        r.Name,
			AccountType: r.AccountType,
			Debit:       money(r.Debit),
			Credit:      money(r.Credit),
			Balance:     toBalanceResponse(r.Debit.Sub(r.Credit)),
		})
	}
	res.TotalDebit = money(debit)
	res.TotalCredit = money(credit)
	res.Balanced = debit.Equal(credit)
	return res, nil
}

func (s *ledgerService) CreateJournal(ctx context.Context, req CreateJournalRequest, userID string) (VoucherResponse, error) {
	const op = "CreateJournal"

	date, err := parseDate(op, "date", req.Date)
	if err != nil {
		return VoucherResponse{}, err
	}
	if strings.TrimSpace(req.Narration) == "" {
		return VoucherResponse{}, apperror.NewValidationError(op, "narration", "is required")
	}
	if len(req.Lines) < 2 {
		return VoucherResponse{}, apperror.NewValidationError(op, "lines", "a journal needs at least two lines")
	}

	v := ledger.Voucher{
		Date:          date,
		ReferenceType: model.LedgerRefJournal,
		Narration:     req.Narration,
		Lines:         make([]ledger.Line, 0, len(req.Lines)),
	}
	prefix := model.VoucherPrefixJournal
	if req.Opening {
		v.ReferenceType = model.LedgerRefOpening
		prefix = model.VoucherPrefixOpening
	}
	if v.ClientID, err = parseOptionalID(op, "client_id", req.ClientID); err != nil {
		return VoucherResponse{}, err
	}
	if v.VendorID, err = parseOptionalID(op, "vendor_id", req.VendorID); err != nil {
		return VoucherResponse{}, err
	}
	if v.BranchID, err = parseOptionalID(op, "branch_id", req.BranchID); err != nil {
		return VoucherResponse{}, err
	}

	accountIDs := make([]uuid.UUID, 0, len(req.Lines))
	for i, l := range req.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		id, err := parseID(op, field+".account_id", l.AccountID)
		if err != nil {
			return VoucherResponse{}, err
		}
		debit, err := parseAmount(op, field+".debit", l.Debit)
		if err != nil {
			return VoucherResponse{}, err
		}
		credit, err := parseAmount(op, field+".credit", l.Credit)
		if err != nil {
			return VoucherResponse{}, err
		}
		if debit.IsNegative() || credit.IsNegative() {
			return VoucherResponse{}, apperror.NewValidationError(op, field, "amounts must not be negative")
		}
		if debit.IsZero() == credit.IsZero() {
			return VoucherResponse{}, apperror.NewValidationError(op, field, "exactly one of debit or credit must be nonzero")
		}
		v.Lines = append(v.Lines, ledger.Line{AccountID: id, Debit: debit.Round(2), Credit: credit.Round(2), Narration: l.Narration})
		accountIDs = append(accountIDs, id)
	}
	if debit, credit := ledger.Totals(v.Lines); !debit.Equal(credit) {
		return VoucherResponse{}, apperror.NewValidationError(op, "lines",
			fmt.Sprintf("debits %s and credits %s do not balance", money(debit), money(credit)))
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		accounts, err := s.accountRepo.FindByIDs(txCtx, accountIDs)
		if err != nil {
			return fmt.Errorf("failed to load accounts: %w", err)
		}
		active := make(map[uuid.UUID]bool, len(accounts))
		for _, a := range accounts {
			active[a.ID] = a.IsActive
		}
		for i, id := range accountIDs {
			isActive, ok := active[id]
			if !ok {
				return apperror.NewValidationError(op, fmt.Sprintf("lines[%d].account_id", i), "account does not exist")
			}
			if !isActive {
				return apperror.NewValidationError(op, fmt.Sprintf("lines[%d].account_id", i), "account is inactive")
			}
		}

		v.Number, err = s.poster.writeVoucher(txCtx, op, prefix, v)
		if err != nil {
			return err
		}
		s.audit.record(txCtx, userID, model.ActionCreateJournal, "voucher", v.Number, v.Number,
			map[string]interface{}{"narration": v.Narration, "lines": len(v.Lines)})
		return nil
	})
	if err != nil {
		return VoucherResponse{}, err
	}

	s.log.Info().Str("voucher", v.Number).Int("lines", len(v.Lines)).Msg("journal posted")
	return s.GetVoucher(ctx, v.Number)
}

func (s *ledgerService) GetVoucher(ctx context.Context, number string) (VoucherResponse, error) {
	const op = "GetVoucher"

	entries, err := s.ledgerRepo.FindByVoucher(ctx, number)
	if err != nil {
		return VoucherResponse{}, fmt.Errorf("failed to load voucher: %w", err)
	}
	if len(entries) == 0 {
		return VoucherResponse{}, apperror.NewNotFoundError(op, "voucher "+number+" not found")
	}
	return toVoucherResponse(entries), nil
}

func (s *ledgerService) GSTSummary(ctx context.Context, from, to string) (GSTSummaryResponse, error) {
	const op = "GSTSummary"

	start, end, err := parseRange(op, from, to)
	if err != nil {
		return GSTSummaryResponse{}, err
	}
	rows, err := s.invoiceRepo.GSTSummary(ctx, start, end)
	if err != nil {
		return GSTSummaryResponse{}, fmt.Errorf("failed to summarize GST: %w", err)
	}

	res := GSTSummaryResponse{From: formatDate(start), To: formatDate(end), Rows: make([]GSTSummaryRow, 0, len(rows))}
	for _, r := range rows {
		res.Rows = append(res.Rows, GSTSummaryRow{
			InvoiceType:   r.InvoiceType,
			InvoiceCount:  r.InvoiceCount,
			TaxableAmount: money(r.TaxableAmount),
			CGSTAmount:    money(r.CGSTAmount),
			SGSTAmount:    money(r.SGSTAmount),
			IGSTAmount:    money(r.IGSTAmount),
			CessAmount:    money(r.CessAmount),
			TotalAmount:   money(r.TotalAmount),
		})
	}
	return res, nil
}

// --- Helpers ---

func (s *ledgerService) project(ctx context.Context, filter repository.LedgerFilter, from, to time.Time) (ledger.Statement, error) {
	opening, err := s.ledgerRepo.SumBefore(ctx, filter, from)
	if err != nil {
		return ledger.Statement{}, fmt.Errorf("failed to compute opening balance: %w", err)
	}
	entries, err := s.ledgerRepo.ListRange(ctx, filter, from, to)
	if err != nil {
		return ledger.Statement{}, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	return ledger.Project(opening, entries), nil
}

func (s *ledgerService) today() time.Time {
	return startOfDay(s.now())
}

func parseRange(op, from, to string) (time.Time, time.Time, error) {
	start, err := parseDate(op, "from", from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(op, "to", to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, apperror.NewValidationError(op, "to", "must not be before from")
	}
	return start, end, nil
}

// --- Mapping ---

func toBalanceResponse(signed decimal.Decimal) BalanceResponse {
	b := ledger.Present(signed)
	return BalanceResponse{Amount: money(b.Amount), Side: b.Side}
}

func toStatementResponse(account *model.ChartOfAccount, from, to time.Time, st ledger.Statement) StatementResponse {
	lines := make([]StatementLineResponse, 0, len(st.Lines))
	for _, l := range st.Lines {
		lines = append(lines, StatementLineResponse{
			Date:          formatDate(l.Entry.EntryDate),
			VoucherNumber: l.Entry.VoucherNumber,
			ReferenceType: l.Entry.ReferenceType,
			ReferenceID:   idString(l.Entry.ReferenceID),
			Narration:     l.Entry.Narration,
			Debit:         money(l.Entry.Debit),
			Credit:        money(l.Entry.Credit),
			Balance:       toBalanceResponse(l.Balance),
		})
	}
	return StatementResponse{
		AccountID:      account.ID.String(),
		AccountCode:    account.Code,
		AccountName:    account.Name,
		From:           formatDate(from),
		To:             formatDate(to),
		OpeningBalance: toBalanceResponse(st.Opening),
		Transactions:   lines,
		TotalDebit:     money(st.TotalDebit),
		TotalCredit:    money(st.TotalCredit),
		ClosingBalance: toBalanceResponse(st.Closing),
	}
}

func toVoucherResponse(entries []model.LedgerEntry) VoucherResponse {
	first := entries[0]
	res := VoucherResponse{
		VoucherNumber: first.VoucherNumber,
		Date:          formatDate(first.EntryDate),
		FinancialYear: first.FinancialYear,
		ReferenceType: first.ReferenceType,
		ReferenceID:   idString(first.ReferenceID),
		ClientID:      idString(first.ClientID),
		VendorID:      idString(first.VendorID),
		BranchID:      idString(first.BranchID),
		Lines:         make([]VoucherLineResponse, 0, len(entries)),
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range entries {
		line := VoucherLineResponse{
			LineNo:    e.LineNo,
			AccountID: e.AccountID.String(),
			Debit:     money(e.Debit),
			Credit:    money(e.Credit),
			Narration: e.Narration,
		}
		if e.Account != nil {
			line.AccountCode = e.Account.Code
			line.AccountName = e.Account.Name
		}
		res.Lines = append(res.Lines, line)
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	res.TotalDebit = money(debit)
	res.TotalCredit = money(credit)
	return res
}
