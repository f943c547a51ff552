package ledger

import (
	"sort"

	"gstbooks/internal/model"

	"github.com/shopspring/decimal"
)

// Balance sides
const (
	SideDebit  = "Dr"
	SideCredit = "Cr"
)

// Balance is a signed amount presented as an absolute value with a Dr/Cr side.
type Balance struct {
	Amount decimal.Decimal
	Side   string
}

// Present labels non-negative balances Dr and negative balances Cr.
func Present(signed decimal.Decimal) Balance {
	if signed.IsNegative() {
		return Balance{Amount: signed.Abs(), Side: SideCredit}
	}
	return Balance{Amount: signed, Side: SideDebit}
}

// StatementLine is a journal row with the running balance after it.
type StatementLine struct {
	Entry   model.LedgerEntry
	Balance decimal.Decimal
}

// Statement is the projection of a range of journal rows.
type Statement struct {
	Opening     decimal.Decimal
	Lines       []StatementLine
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Closing     decimal.Decimal
}

// SortEntries orders rows by entry date, voucher number, then line number.
func SortEntries(entries []model.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		if a.VoucherNumber != b.VoucherNumber {
			return a.VoucherNumber < b.VoucherNumber
		}
		return a.LineNo < b.LineNo
	})
}

// Project computes running balances (debit positive) starting from opening.
// entries are sorted in place.
func Project(opening decimal.Decimal, entries []model.LedgerEntry) Statement {
	SortEntries(entries)

	st := Statement{
		Opening:     opening,
		Lines:       make([]StatementLine, 0, len(entries)),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	running := opening
	for _, e := range entries {
		running = running.Add(e.Debit).Sub(e.Credit)
		st.TotalDebit = st.TotalDebit.Add(e.Debit)
		st.TotalCredit = st.TotalCredit.Add(e.Credit)
		st.Lines = append(st.Lines, StatementLine{Entry: e, Balance: running})
	}
	st.Closing = opening.Add(st.TotalDebit).Sub(st.TotalCredit)
	return st
}
