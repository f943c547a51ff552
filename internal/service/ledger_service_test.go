package service

import (
	"context"
	"errors"
	"testing"

	"gstbooks/internal/apperror"
	"gstbooks/internal/ledger"
	"gstbooks/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartyStatementOpeningAndClosing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clientID := uuid.New()

	env.sentInvoice(t, salesRequest(clientID, "2024-05-05"))
	june := env.sentInvoice(t, salesRequest(clientID, "2024-06-10"))
	env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-12"))
	_, err := env.payments.CreatePayment(ctx, receipt(clientID, june.ID, "1000"), "")
	require.NoError(t, err)

	st, err := env.ledger.PartyStatement(ctx, PartyStatementQuery{
		PartyType: PartyClient,
		PartyID:   clientID.String(),
		From:      "2024-06-01",
		To:        "2024-06-30",
	})
	require.NoError(t, err)

	assert.Equal(t, "1100", st.AccountCode)
	assert.Equal(t, clientID.String(), st.PartyID)
	assert.Equal(t, BalanceResponse{Amount: "2360.00", Side: ledger.SideDebit}, st.OpeningBalance)
	require.Len(t, st.Transactions, 2)
	assert.Equal(t, "2024-06-10", st.Transactions[0].Date)
	assert.Equal(t, "2360.00", st.Transactions[0].Debit)
	assert.Equal(t, BalanceResponse{Amount: "4720.00", Side: ledger.SideDebit}, st.Transactions[0].Balance)
	assert.Equal(t, "1000.00", st.Transactions[1].Credit)
	assert.Equal(t, "2360.00", st.TotalDebit)
	assert.Equal(t, "1000.00", st.TotalCredit)
	assert.Equal(t, BalanceResponse{Amount: "3720.00", Side: ledger.SideDebit}, st.ClosingBalance)
	assert.Equal(t, st.Transactions[1].Balance, st.ClosingBalance)
}

func TestPartyStatementForVendorShowsCreditBalance(t *testing.T) {
	env := newTestEnv(t)
	vendorID := uuid.New()

	env.sentInvoice(t, purchaseRequest(vendorID, "2024-06-10"))

	st, err := env.ledger.PartyStatement(context.Background(), PartyStatementQuery{
		PartyType: PartyVendor,
		PartyID:   vendorID.String(),
		From:      "2024-04-01",
		To:        "2025-03-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "2100", st.AccountCode)
	assert.Equal(t, BalanceResponse{Amount: "0.00", Side: ledger.SideDebit}, st.OpeningBalance)
	assert.Equal(t, BalanceResponse{Amount: "11600.00", Side: ledger.SideCredit}, st.ClosingBalance)
}

func TestPartyStatementValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.PartyStatement(ctx, PartyStatementQuery{PartyType: PartyClient, PartyID: uuid.NewString(), From: "2024-06-30", To: "2024-06-01"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = env.ledger.PartyStatement(ctx, PartyStatementQuery{PartyType: "branch", PartyID: uuid.NewString(), From: "2024-06-01", To: "2024-06-30"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = env.ledger.PartyStatement(ctx, PartyStatementQuery{PartyType: PartyClient, PartyID: "abc", From: "2024-06-01", To: "2024-06-30"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestAccountStatement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-10"))
	env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-11"))
	sales := env.accRepo.byCode("4000")

	st, err := env.ledger.AccountStatement(ctx, sales.ID.String(), AccountStatementQuery{From: "2024-06-01", To: "2024-06-30"})
	require.NoError(t, err)
	assert.Equal(t, "Sales", st.AccountName)
	require.Len(t, st.Transactions, 2)
	assert.Equal(t, BalanceResponse{Amount: "4000.00", Side: ledger.SideCredit}, st.ClosingBalance)

	_, err = env.ledger.AccountStatement(ctx, uuid.NewString(), AccountStatementQuery{From: "2024-06-01", To: "2024-06-30"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestTrialBalanceIsBalanced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clientID := uuid.New()

	inv := env.sentInvoice(t, salesRequest(clientID, "2024-06-10"))
	env.sentInvoice(t, purchaseRequest(uuid.New(), "2024-06-11"))
	_, err := env.payments.CreatePayment(ctx, receipt(clientID, inv.ID, "2000"), "")
	require.NoError(t, err)
	_, err = env.invoices.CancelInvoice(ctx, env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-12")).ID,
		CancelInvoiceRequest{Reason: "wrong rate"}, "")
	require.NoError(t, err)

	tb, err := env.ledger.TrialBalance(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-30", tb.AsOf)
	assert.True(t, tb.Balanced)
	assert.Equal(t, tb.TotalDebit, tb.TotalCredit)
	require.NotEmpty(t, tb.Accounts)
	assert.Equal(t, "1010", tb.Accounts[0].Code)

	early, err := env.ledger.TrialBalance(ctx, "2024-06-10")
	require.NoError(t, err)
	assert.True(t, early.Balanced)
	assert.Equal(t, "2360.00", early.TotalDebit)
}

func TestCreateJournal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cash := env.accRepo.byCode("1000")
	capital := env.accRepo.byCode("3000")

	v, err := env.ledger.CreateJournal(ctx, CreateJournalRequest{
		Date:      "2024-04-01",
		Narration: "Opening capital",
		Opening:   true,
		Lines: []JournalLineRequest{
			{AccountID: cash.ID.String(), Debit: "50000"},
			{AccountID: capital.ID.String(), Credit: "50000"},
		},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "OPN/2024-25/0001", v.VoucherNumber)
	assert.Equal(t, model.LedgerRefOpening, v.ReferenceType)
	assert.Equal(t, "50000.00", v.TotalDebit)
	assert.Equal(t, "50000.00", v.TotalCredit)
	require.Len(t, v.Lines, 2)
	assert.Equal(t, "1000", v.Lines[0].AccountCode)
	assert.Equal(t, "50000.00", env.balance("1000").StringFixed(2))
	assert.Contains(t, env.auditRepo.actions(), model.ActionCreateJournal)

	again, err := env.ledger.GetVoucher(ctx, v.VoucherNumber)
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestCreateJournalValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cash := env.accRepo.byCode("1000").ID.String()
	capital := env.accRepo.byCode("3000").ID.String()

	dormant, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "6000", Name: "Dormant", AccountType: model.AccountExpense}, "")
	require.NoError(t, err)
	_, err = env.accounts.DeactivateAccount(ctx, dormant.ID, "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		lines []JournalLineRequest
	}{
		{"single line", []JournalLineRequest{{AccountID: cash, Debit: "10"}}},
		{"unbalanced", []JournalLineRequest{{AccountID: cash, Debit: "10"}, {AccountID: capital, Credit: "9"}}},
		{"both sides", []JournalLineRequest{{AccountID: cash, Debit: "10", Credit: "10"}, {AccountID: capital, Credit: "0"}}},
		{"negative", []JournalLineRequest{{AccountID: cash, Debit: "-10"}, {AccountID: capital, Credit: "-10"}}},
		{"unknown account", []JournalLineRequest{{AccountID: uuid.NewString(), Debit: "10"}, {AccountID: capital, Credit: "10"}}},
		{"inactive account", []JournalLineRequest{{AccountID: dormant.ID, Debit: "10"}, {AccountID: capital, Credit: "10"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.CreateJournal(ctx, CreateJournalRequest{Date: "2024-06-01", Narration: "adj", Lines: tt.lines}, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation), err.Error())
		})
	}
	assert.Empty(t, env.store.entries)
}

func TestGetVoucherNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.GetVoucher(context.Background(), "JRN/2024-25/0099")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestGSTSummarySkipsDraftAndCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-10"))
	env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-11"))
	env.sentInvoice(t, purchaseRequest(uuid.New(), "2024-06-12"))
	_, err := env.invoices.CreateInvoice(ctx, salesRequest(uuid.New(), "2024-06-13"), "")
	require.NoError(t, err)
	cancelled := env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-14"))
	_, err = env.invoices.CancelInvoice(ctx, cancelled.ID, CancelInvoiceRequest{Reason: "void"}, "")
	require.NoError(t, err)

	sum, err := env.ledger.GSTSummary(ctx, "2024-06-01", "2024-06-30")
	require.NoError(t, err)
	require.Len(t, sum.Rows, 2)
	assert.Equal(t, model.InvoiceTypePurchase, sum.Rows[0].InvoiceType)
	assert.Equal(t, "900.00", sum.Rows[0].CGSTAmount)
	assert.Equal(t, model.InvoiceTypeSales, sum.Rows[1].InvoiceType)
	assert.EqualValues(t, 2, sum.Rows[1].InvoiceCount)
	assert.Equal(t, "4000.00", sum.Rows[1].TaxableAmount)
	assert.Equal(t, "360.00", sum.Rows[1].SGSTAmount)
}
