// Package ledger builds balanced double-entry vouchers and projects statements
// from posted journal lines. It does no I/O.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"gstbooks/internal/apperror"
	"gstbooks/internal/fiscal"
	"gstbooks/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnbalanced is returned when a voucher's debits and credits differ.
var ErrUnbalanced = errors.New("voucher is not balanced")

// Line is one side of a voucher before it is persisted.
type Line struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Narration string
}

// Voucher groups the lines of a single posting event.
type Voucher struct {
	Number        string
	Date          time.Time
	ReferenceType string
	ReferenceID   *uuid.UUID
	ClientID      *uuid.UUID
	VendorID      *uuid.UUID
	BranchID      *uuid.UUID
	Narration     string
	Lines         []Line
}

// FormatNumber renders a voucher number such as INV/2024-25/0001.
func FormatNumber(prefix, financialYear string, seq int) string {
	return fmt.Sprintf("%s/%s/%04d", prefix, financialYear, seq)
}

// Accounts are the configured default account ids used for automatic postings.
type Accounts struct {
	Sales, Purchase                                *uuid.UUID
	Receivable, Payable                            *uuid.UUID
	Cash, Bank                                     *uuid.UUID
	CGSTOutput, SGSTOutput, IGSTOutput, CessOutput *uuid.UUID
	CGSTInput, SGSTInput, IGSTInput, CessInput     *uuid.UUID
	TDSReceivable, TDSPayable                      *uuid.UUID
	TCSReceivable, TCSPayable                      *uuid.UUID
	RoundOff                                       *uuid.UUID
}

func AccountsFromSettings(s *model.CompanySettings) Accounts {
	return Accounts{
		Sales:         s.DefaultSalesAccountID,
		Purchase:      s.DefaultPurchaseAccountID,
		Receivable:    s.DefaultReceivableAccountID,
		Payable:       s.DefaultPayableAccountID,
		Cash:          s.DefaultCashAccountID,
		Bank:          s.DefaultBankAccountID,
		CGSTOutput:    s.DefaultCGSTOutputAccountID,
		SGSTOutput:    s.DefaultSGSTOutputAccountID,
		IGSTOutput:    s.DefaultIGSTOutputAccountID,
		CessOutput:    s.DefaultCessOutputAccountID,
		CGSTInput:     s.DefaultCGSTInputAccountID,
		SGSTInput:     s.DefaultSGSTInputAccountID,
		IGSTInput:     s.DefaultIGSTInputAccountID,
		CessInput:     s.DefaultCessInputAccountID,
		TDSReceivable: s.DefaultTDSReceivableAccountID,
		TDSPayable:    s.DefaultTDSPayableAccountID,
		TCSReceivable: s.DefaultTCSReceivableAccountID,
		TCSPayable:    s.DefaultTCSPayableAccountID,
		RoundOff:      s.DefaultRoundOffAccountID,
	}
}

// builder collects lines and the first configuration error.
type builder struct {
	op    string
	lines []Line
	err   error
}

func (b *builder) add(setting string, account *uuid.UUID, debit, credit decimal.Decimal, narration string) {
	if b.err != nil || (debit.IsZero() && credit.IsZero()) {
		return
	}
	if account == nil {
		b.err = apperror.NewPostingError(b.op, setting+" is not configured")
		return
	}
	b.lines = append(b.lines, Line{AccountID: *account, Debit: debit, Credit: credit, Narration: narration})
}

func (b *builder) debit(setting string, account *uuid.UUID, amount decimal.Decimal, narration string) {
	b.add(setting, account, amount, decimal.Zero, narration)
}

func (b *builder) credit(setting string, account *uuid.UUID, amount decimal.Decimal, narration string) {
	b.add(setting, account, decimal.Zero, amount, narration)
}

// signedDebit debits a positive amount and credits the absolute value of a negative one.
func (b *builder) signedDebit(setting string, account *uuid.UUID, amount decimal.Decimal, narration string) {
	if amount.IsNegative() {
		b.credit(setting, account, amount.Neg(), narration)
		return
	}
	b.debit(setting, account, amount, narration)
}

func (b *builder) signedCredit(setting string, account *uuid.UUID, amount decimal.Decimal, narration string) {
	b.signedDebit(setting, account, amount.Neg(), narration)
}

// InvoiceLines returns the posting lines for an invoice's stored totals.
// Credit and debit notes use the sales and purchase layouts with sides swapped.
func InvoiceLines(inv *model.Invoice, accts Accounts) ([]Line, error) {
	b := &builder{op: "PostInvoice"}
	switch inv.InvoiceType {
	case model.InvoiceTypeSales, model.InvoiceTypeCreditNote:
		salesLines(b, inv, accts)
	case model.InvoiceTypePurchase, model.InvoiceTypeDebitNote:
		purchaseLines(b, inv, accts)
	default:
		return nil, apperror.NewPostingError(b.op, "unknown invoice type "+inv.InvoiceType)
	}
	if b.err != nil {
		return nil, b.err
	}
	lines := b.lines
	if len(lines) == 0 {
		// zero-value document, nothing to post
		return nil, nil
	}
	if inv.InvoiceType == model.InvoiceTypeCreditNote || inv.InvoiceType == model.InvoiceTypeDebitNote {
		lines = Swap(lines)
	}
	if err := CheckBalanced(lines); err != nil {
		return nil, apperror.NewPostingError(b.op, err.Error())
	}
	return lines, nil
}

func salesLines(b *builder, inv *model.Invoice, a Accounts) {
	ref := inv.InvoiceNumber
	b.debit("default_receivable_account_id", a.Receivable, inv.GrandTotal, "Receivable against "+ref)
	b.debit("default_tds_receivable_account_id", a.TDSReceivable, inv.TDSAmount, "TDS deducted by client on "+ref)
	b.credit("default_sales_account_id", a.Sales, inv.TaxableAmount, "Sales "+ref)
	b.credit("default_cgst_output_account_id", a.CGSTOutput, inv.CGSTAmount, "CGST output "+ref)
	b.credit("default_sgst_output_account_id", a.SGSTOutput, inv.SGSTAmount, "SGST output "+ref)
	b.credit("default_igst_output_account_id", a.IGSTOutput, inv.IGSTAmount, "IGST output "+ref)
	b.credit("default_cess_output_account_id", a.CessOutput, inv.CessAmount, "Cess output "+ref)
	b.credit("default_tcs_payable_account_id", a.TCSPayable, inv.TCSAmount, "TCS collected on "+ref)
	b.signedCredit("default_round_off_account_id", a.RoundOff, inv.RoundOff, "Round off "+ref)
}

func purchaseLines(b *builder, inv *model.Invoice, a Accounts) {
	ref := inv.InvoiceNumber
	b.debit("default_purchase_account_id", a.Purchase, inv.TaxableAmount, "Purchase "+ref)
	b.debit("default_cgst_input_account_id", a.CGSTInput, inv.CGSTAmount, "CGST input "+ref)
	b.debit("default_sgst_input_account_id", a.SGSTInput, inv.SGSTAmount, "SGST input "+ref)
	b.debit("default_igst_input_account_id", a.IGSTInput, inv.IGSTAmount, "IGST input "+ref)
	b.debit("default_cess_input_account_id", a.CessInput, inv.CessAmount, "Cess input "+ref)
	b.debit("default_tcs_receivable_account_id", a.TCSReceivable, inv.TCSAmount, "TCS paid on "+ref)
	b.signedDebit("default_round_off_account_id", a.RoundOff, inv.RoundOff, "Round off "+ref)
	b.credit("default_payable_account_id", a.Payable, inv.GrandTotal, "Payable against "+ref)
	b.credit("default_tds_payable_account_id", a.TDSPayable, inv.TDSAmount, "TDS deducted on "+ref)
}

// PaymentLines returns the posting lines for a completed payment.
func PaymentLines(p *model.Payment, a Accounts) ([]Line, error) {
	b := &builder{op: "PostPayment"}
	settlementSetting, settlement := "default_bank_account_id", a.Bank
	if p.PaymentMode == model.PaymentModeCash {
		settlementSetting, settlement = "default_cash_account_id", a.Cash
	}
	ref := p.PaymentNumber

	switch p.PaymentType {
	case model.PaymentTypeReceipt:
		b.debit(settlementSetting, settlement, p.NetAmount, "Receipt "+ref)
		b.debit("default_tds_receivable_account_id", a.TDSReceivable, p.TDSAmount, "TDS deducted by client on "+ref)
		b.credit("default_receivable_account_id", a.Receivable, p.GrossAmount, "Receipt "+ref)
		b.credit("default_tcs_payable_account_id", a.TCSPayable, p.TCSAmount, "TCS collected on "+ref)
	case model.PaymentTypePayment:
		b.debit("default_payable_account_id", a.Payable, p.GrossAmount, "Payment "+ref)
		b.debit("default_tcs_receivable_account_id", a.TCSReceivable, p.TCSAmount, "TCS paid on "+ref)
		b.credit(settlementSetting, settlement, p.NetAmount, "Payment "+ref)
		b.credit("default_tds_payable_account_id", a.TDSPayable, p.TDSAmount, "TDS deducted on "+ref)
	default:
		return nil, apperror.NewPostingError(b.op, "unknown payment type "+p.PaymentType)
	}
	if b.err != nil {
		return nil, b.err
	}
	if err := CheckBalanced(b.lines); err != nil {
		return nil, apperror.NewPostingError(b.op, err.Error())
	}
	return b.lines, nil
}

// Swap exchanges the debit and credit side of every line.
func Swap(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = Line{AccountID: l.AccountID, Debit: l.Credit, Credit: l.Debit, Narration: l.Narration}
	}
	return out
}

// Reverse mirrors posted entries line for line.
func Reverse(entries []model.LedgerEntry, narration string) []Line {
	out := make([]Line, len(entries))
	for i, e := range entries {
		out[i] = Line{AccountID: e.AccountID, Debit: e.Credit, Credit: e.Debit, Narration: narration}
	}
	return out
}

// CheckBalanced verifies that there are at least two lines, that every line has exactly one
// positive side, and that total debits equal total credits.
func CheckBalanced(lines []Line) error {
	if len(lines) < 2 {
		return fmt.Errorf("voucher needs at least two lines, got %d", len(lines))
	}
	debit, credit := Totals(lines)
	for i, l := range lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fmt.Errorf("line %d has a negative amount", i+1)
		}
		if l.Debit.IsZero() == l.Credit.IsZero() {
			return fmt.Errorf("line %d must have exactly one of debit or credit", i+1)
		}
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s, credit %s", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// Totals sums both sides of a set of lines.
func Totals(lines []Line) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Entries converts a voucher into persistable journal rows.
func Entries(v Voucher) []model.LedgerEntry {
	fy := fiscal.FinancialYear(v.Date)
	out := make([]model.LedgerEntry, 0, len(v.Lines))
	for i, l := range v.Lines {
		narration := l.Narration
		if narration == "" {
			narration = v.Narration
		}
		out = append(out, model.LedgerEntry{
			VoucherNumber: v.Number,
			LineNo:        i + 1,
			EntryDate:     v.Date,
			AccountID:     l.AccountID,
			Debit:         l.Debit,
			Credit:        l.Credit,
			ReferenceType: v.ReferenceType,
			ReferenceID:   v.ReferenceID,
			Narration:     narration,
			ClientID:      v.ClientID,
			VendorID:      v.VendorID,
			BranchID:      v.BranchID,
			FinancialYear: fy,
		})
	}
	return out
}
