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

func TestSeedDefaultAccountsIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.accounts.SeedDefaultAccounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, len(ledger.DefaultAccounts), res.Existing)
	assert.Equal(t, 0, res.SettingsUpdated)

	settings, err := env.settings.GetSettings(ctx)
	require.NoError(t, err)
	receivable := env.accRepo.byCode("1100")
	require.NotNil(t, settings.DefaultAccounts["default_receivable_account_id"])
	assert.Equal(t, receivable.ID.String(), *settings.DefaultAccounts["default_receivable_account_id"])
	assert.Equal(t, "27", settings.StateCode)
}

func TestCreateAccountUnderParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bank := env.accRepo.byCode("1010")

	child, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{
		Code:        "1011",
		Name:        "HDFC Current",
		AccountType: model.AccountAsset,
		ParentID:    strPtr(bank.ID.String()),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, bank.ID.String(), *child.ParentID)
	assert.False(t, child.IsSystem)

	_, err = env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "1011", Name: "Dup", AccountType: model.AccountAsset}, "")
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = env.accounts.CreateAccount(ctx, CreateAccountRequest{
		Code:        "4010",
		Name:        "Wrong type",
		AccountType: model.AccountRevenue,
		ParentID:    strPtr(bank.ID.String()),
	}, "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	tree, err := env.accounts.AccountTree(ctx)
	require.NoError(t, err)
	var found bool
	for _, root := range tree {
		if root.Code == "1010" {
			require.Len(t, root.Children, 1)
			assert.Equal(t, "1011", root.Children[0].Code)
			found = true
		}
	}
	assert.True(t, found)
}

func TestUpdateAccountRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sales := env.accRepo.byCode("4000")

	_, err := env.accounts.UpdateAccount(ctx, sales.ID.String(), UpdateAccountRequest{Code: strPtr("4001")}, "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	renamed, err := env.accounts.UpdateAccount(ctx, sales.ID.String(), UpdateAccountRequest{Name: strPtr("Domestic Sales")}, "")
	require.NoError(t, err)
	assert.Equal(t, "Domestic Sales", renamed.Name)

	parent, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "5200", Name: "Overheads", AccountType: model.AccountExpense}, "")
	require.NoError(t, err)
	child, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "5210", Name: "Rent", AccountType: model.AccountExpense, ParentID: strPtr(parent.ID)}, "")
	require.NoError(t, err)

	_, err = env.accounts.UpdateAccount(ctx, parent.ID, UpdateAccountRequest{ParentID: strPtr(child.ID)}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestDeleteAccountRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.accounts.DeleteAccount(ctx, env.accRepo.byCode("1000").ID.String(), "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	misc, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "5300", Name: "Misc", AccountType: model.AccountExpense}, "")
	require.NoError(t, err)
	_, err = env.ledger.CreateJournal(ctx, CreateJournalRequest{
		Date:      "2024-06-01",
		Narration: "Misc spend",
		Lines: []JournalLineRequest{
			{AccountID: misc.ID, Debit: "100"},
			{AccountID: env.accRepo.byCode("1000").ID.String(), Credit: "100"},
		},
	}, "")
	require.NoError(t, err)

	err = env.accounts.DeleteAccount(ctx, misc.ID, "")
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	parent, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "5400", Name: "Travel", AccountType: model.AccountExpense}, "")
	require.NoError(t, err)
	_, err = env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "5410", Name: "Air", AccountType: model.AccountExpense, ParentID: strPtr(parent.ID)}, "")
	require.NoError(t, err)
	err = env.accounts.DeleteAccount(ctx, parent.ID, "")
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	unused, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "5500", Name: "Unused", AccountType: model.AccountExpense}, "")
	require.NoError(t, err)
	require.NoError(t, env.accounts.DeleteAccount(ctx, unused.ID, ""))

	err = env.accounts.DeleteAccount(ctx, unused.ID, "")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestListAccountsFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	revenue, err := env.accounts.ListAccounts(ctx, model.AccountRevenue, false)
	require.NoError(t, err)
	require.Len(t, revenue, 2)
	assert.Equal(t, "4000", revenue[0].Code)

	_, err = env.accounts.DeactivateAccount(ctx, env.accRepo.byCode("4100").ID.String(), "")
	require.NoError(t, err)
	active, err := env.accounts.ListAccounts(ctx, model.AccountRevenue, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestUpdateSettingsDefaultAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.settings.UpdateSettings(ctx, UpdateSettingsRequest{DefaultAccounts: map[string]string{"default_unknown": uuid.NewString()}}, "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = env.settings.UpdateSettings(ctx, UpdateSettingsRequest{DefaultAccounts: map[string]string{"default_sales_account_id": uuid.NewString()}}, "")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	res, err := env.settings.UpdateSettings(ctx, UpdateSettingsRequest{DefaultAccounts: map[string]string{"default_sales_account_id": ""}}, "")
	require.NoError(t, err)
	assert.Nil(t, res.DefaultAccounts["default_sales_account_id"])

	inv, err := env.invoices.CreateInvoice(ctx, salesRequest(uuid.New(), "2024-06-10"), "")
	require.NoError(t, err)
	_, err = env.invoices.SendInvoice(ctx, inv.ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrPosting))
	assert.Empty(t, env.store.entries)
}

func TestAuditLogListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.sentInvoice(t, salesRequest(uuid.New(), "2024-06-10"))

	logs, total, err := env.audit.ListAuditLogs(ctx, AuditLogFilter{EntityType: "invoice", EntityID: inv.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionPostInvoice, logs[0].Action)
	assert.Equal(t, "system", logs[0].UserID)
	assert.JSONEq(t, `{"voucher":"INV/2024-25/0001","grand_total":"2360.00"}`, string(logs[0].Details))
}
