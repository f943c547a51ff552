package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gstbooks/internal/apperror"
	"gstbooks/internal/model"
	"gstbooks/internal/websocket"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoiceComputesTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.CreateInvoice(ctx, salesRequest(uuid.New(), "2024-06-10"), "")
	require.NoError(t, err)

	assert.Equal(t, "SI/2024-25/0001", inv.InvoiceNumber)
	assert.Equal(t, "2024-25", inv.FinancialYear)
	assert.Equal(t, model.InvoiceDraft, inv.Status)
	assert.False(t, inv.IsPosted)
	assert.False(t, inv.IsIGST)
	assert.Equal(t, "2000.00", inv.Subtotal)
	assert.Equal(t, "2000.00", inv.TaxableAmount)
	assert.Equal(t, "180.00", inv.CGSTAmount)
	assert.Equal(t, "180.00", inv.SGSTAmount)
	assert.Equal(t, "0.00", inv.IGSTAmount)
	assert.Equal(t, "2360.00", inv.TotalAmount)
	assert.Equal(t, "0.00", inv.RoundOff)
	assert.Equal(t, "2360.00", inv.GrandTotal)
	assert.Equal(t, "2360.00", inv.AmountDue)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, 1, inv.Items[0].SerialNo)
	assert.Equal(t, "2360.00", inv.Items[0].TotalAmount)

	assert.Empty(t, env.store.entries, "drafts are not posted under ON_SENT")
}

func TestCreateInvoiceDerivesIGSTFromPlaceOfSupply(t *testing.T) {
	env := newTestEnv(t)

	req := salesRequest(uuid.New(), "2024-06-10")
	req.PlaceOfSupplyCode = "29"
	inv, err := env.invoices.CreateInvoice(context.Background(), req, "")
	require.NoError(t, err)

	assert.True(t, inv.IsIGST)
	assert.Equal(t, "360.00", inv.IGSTAmount)
	assert.Equal(t, "0.00", inv.CGSTAmount)
	assert.Equal(t, "0.00", inv.SGSTAmount)
}

func TestCreateInvoiceRejectsWrongParty(t *testing.T) {
	env := newTestEnv(t)

	req := salesRequest(uuid.New(), "2024-06-10")
	req.ClientID = nil
	req.VendorID = strPtr(uuid.New().String())

	_, err := env.invoices.CreateInvoice(context.Background(), req, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrPartyMismatch))
	assert.Empty(t, env.store.invoices)
}

func TestCreateInvoiceRejectsDuplicateNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := salesRequest(uuid.New(), "2024-06-10")
	req.InvoiceNumber = "MANUAL-1"
	_, err := env.invoices.CreateInvoice(ctx, req, "")
	require.NoError(t, err)

	_, err = env.invoices.CreateInvoice(ctx, req, "")
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestSendInvoicePostsBalancedVoucher(t *testing.T) {
	env := newTestEnv(t)

	inv := env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-10"))

	assert.Equal(t, model.InvoiceSent, inv.Status)
	assert.True(t, inv.IsPosted)
	assert.Equal(t, "INV/2024-25/0001", inv.PostedVoucher)

	entries := env.ledRepo.voucher(inv.PostedVoucher)
	require.Len(t, entries, 4)
	assert.Equal(t, "2360.00", env.balance("1100").StringFixed(2))
	assert.Equal(t, "-2000.00", env.balance("4000").StringFixed(2))
	assert.Equal(t, "-180.00", env.balance("2200").StringFixed(2))
	assert.Equal(t, "-180.00", env.balance("2210").StringFixed(2))
	assert.Equal(t, 1, env.events.count(websocket.EventInvoicePosted))
	assert.Contains(t, env.auditRepo.actions(), model.ActionPostInvoice)
}

func TestSendInvoiceTwiceFails(t *testing.T) {
	env := newTestEnv(t)

	inv := env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-10"))

	_, err := env.invoices.SendInvoice(context.Background(), inv.ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrPosting))
	assert.Len(t, env.store.entries, 4)
}

func TestSendInvoiceConcurrentlyPostsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.invoices.CreateInvoice(ctx, salesRequest(uuid.New(), "2024-06-10"), "")
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		posting   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.invoices.SendInvoice(ctx, created.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperror.ErrPosting):
				posting++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, posting)
	assert.Len(t, env.store.entries, 4)
}

func TestOnCreatePostingIssuesImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mode := model.PostOnCreate
	_, err := env.settings.UpdateSettings(ctx, UpdateSettingsRequest{LedgerPostingOn: &mode}, "")
	require.NoError(t, err)

	inv, err := env.invoices.CreateInvoice(ctx, salesRequest(uuid.New(), "2024-06-10"), "")
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceSent, inv.Status)
	assert.True(t, inv.IsPosted)
	assert.Equal(t, "INV/2024-25/0001", inv.PostedVoucher)
}

func TestUpdateInvoiceOnlyWhileDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clientID := uuid.New()

	created, err := env.invoices.CreateInvoice(ctx, salesRequest(clientID, "2024-06-10"), "")
	require.NoError(t, err)

	req := salesRequest(clientID, "2024-06-10")
	req.Items[0].Quantity = "3"
	updated, err := env.invoices.UpdateInvoice(ctx, created.ID, req, "")
	require.NoError(t, err)
	assert.Equal(t, created.InvoiceNumber, updated.InvoiceNumber)
	assert.Equal(t, "3540.00", updated.GrandTotal)

	_, err = env.invoices.SendInvoice(ctx, created.ID, "")
	require.NoError(t, err)

	_, err = env.invoices.UpdateInvoice(ctx, created.ID, req, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestCancelSentInvoiceReversesVoucher(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-10"))

	cancelled, err := env.invoices.CancelInvoice(ctx, inv.ID, CancelInvoiceRequest{CancelDate: "2024-06-20", Reason: "raised twice"}, "")
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceCancelled, cancelled.Status)
	assert.Equal(t, "JRN/2024-25/0001", cancelled.ReversalVoucher)
	assert.Equal(t, inv.PostedVoucher, cancelled.PostedVoucher)
	assert.Equal(t, "0.00", cancelled.AmountDue)

	original := env.ledRepo.voucher(inv.PostedVoucher)
	reversal := env.ledRepo.voucher(cancelled.ReversalVoucher)
	require.Len(t, reversal, len(original))
	for i := range original {
		assert.Equal(t, original[i].AccountID, reversal[i].AccountID)
		assert.True(t, original[i].Debit.Equal(reversal[i].Credit))
		assert.True(t, original[i].Credit.Equal(reversal[i].Debit))
		assert.Equal(t, "2024-06-20", formatDate(reversal[i].EntryDate))
	}
	for _, code := range []string{"1100", "4000", "2200", "2210"} {
		assert.True(t, env.balance(code).IsZero(), code)
	}
	assert.Equal(t, 1, env.events.count(websocket.EventInvoiceCancelled))
}

func TestCancelDraftHasNoLedgerEffect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.invoices.CreateInvoice(ctx, salesRequest(uuid.New(), "2024-06-10"), "")
	require.NoError(t, err)

	cancelled, err := env.invoices.CancelInvoice(ctx, created.ID, CancelInvoiceRequest{Reason: "not needed"}, "")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceCancelled, cancelled.Status)
	assert.Empty(t, cancelled.ReversalVoucher)
	assert.Empty(t, env.store.entries)

	_, err = env.invoices.CancelInvoice(ctx, created.ID, CancelInvoiceRequest{Reason: "again"}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrPosting))
}

func TestCancelInvoiceValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-10"))

	_, err := env.invoices.CancelInvoice(ctx, inv.ID, CancelInvoiceRequest{CancelDate: "2024-06-20"}, "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = env.invoices.CancelInvoice(ctx, inv.ID, CancelInvoiceRequest{CancelDate: "2024-06-01", Reason: "early"}, "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = env.invoices.CancelInvoice(ctx, uuid.NewString(), CancelInvoiceRequest{Reason: "missing"}, "")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	assert.Len(t, env.store.entries, 4)
}

func TestMarkOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	late := salesRequest(uuid.New(), "2024-06-01")
	late.DueDate = strPtr("2024-06-15")
	lateInv := env.sentInvoice(t, late)

	notDue := salesRequest(uuid.New(), "2024-06-01")
	notDue.DueDate = strPtr("2024-07-15")
	env.sentInvoice(t, notDue)

	draft := salesRequest(uuid.New(), "2024-06-01")
	draft.DueDate = strPtr("2024-06-10")
	_, err := env.invoices.CreateInvoice(ctx, draft, "")
	require.NoError(t, err)

	res, err := env.invoices.MarkOverdue(ctx, MarkOverdueRequest{AsOf: "2024-06-30"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []string{lateInv.InvoiceNumber}, res.InvoiceNumbers)

	got, err := env.invoices.GetInvoice(ctx, lateInv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceOverdue, got.Status)
}

func TestPreviewTotalsDoesNotPersist(t *testing.T) {
	env := newTestEnv(t)

	req := purchaseRequest(uuid.New(), "2024-06-10")
	totals, err := env.invoices.PreviewTotals(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "10000.00", totals.TaxableAmount)
	assert.Equal(t, "1800.00", totals.TotalTax)
	assert.Equal(t, "11800.00", totals.TotalAmount)
	assert.Equal(t, "200.00", totals.TDSAmount)
	assert.Equal(t, "11600.00", totals.NetAmount)
	assert.Equal(t, "11600.00", totals.GrandTotal)
	assert.Empty(t, env.store.invoices)
}

func TestListInvoicesFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clientID := uuid.New()

	env.sentInvoice(t, salesRequest(clientID, "2024-06-10"))
	_, err := env.invoices.CreateInvoice(ctx, salesRequest(uuid.New(), "2024-06-11"), "")
	require.NoError(t, err)
	_, err = env.invoices.CreateInvoice(ctx, purchaseRequest(uuid.New(), "2024-06-12"), "")
	require.NoError(t, err)

	all, total, err := env.invoices.ListInvoices(ctx, ListInvoicesFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-06-12", all[0].InvoiceDate)

	sales, total, err := env.invoices.ListInvoices(ctx, ListInvoicesFilter{InvoiceType: model.InvoiceTypeSales, ClientID: clientID.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.InvoiceSent, sales[0].Status)

	_, _, err = env.invoices.ListInvoices(ctx, ListInvoicesFilter{From: "10-06-2024"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
