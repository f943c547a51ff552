package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"gstbooks/internal/lock"
	"gstbooks/internal/model"
	"gstbooks/internal/repository"
	"gstbooks/internal/taxengine"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memStore is an in-memory database shared by the fake repositories.
type memStore struct {
	mu        sync.Mutex
	invoices  map[uuid.UUID]model.Invoice
	payments  map[uuid.UUID]model.Payment
	accounts  map[uuid.UUID]model.ChartOfAccount
	entries   []model.LedgerEntry
	sequences map[string]int
	settings  *model.CompanySettings
	audits    []model.AuditLog
	challans  map[uuid.UUID]model.TDSChallan
	returns   map[uuid.UUID]model.TDSReturn
}

func newMemStore() *memStore {
	return &memStore{
		invoices:  map[uuid.UUID]model.Invoice{},
		payments:  map[uuid.UUID]model.Payment{},
		accounts:  map[uuid.UUID]model.ChartOfAccount{},
		sequences: map[string]int{},
		challans:  map[uuid.UUID]model.TDSChallan{},
		returns:   map[uuid.UUID]model.TDSReturn{},
	}
}

func cloneInvoice(inv model.Invoice) model.Invoice {
	inv.Items = append([]model.InvoiceItem(nil), inv.Items...)
	return inv
}

func cloneChallan(c model.TDSChallan) model.TDSChallan {
	c.Entries = append([]model.TDSChallanEntry(nil), c.Entries...)
	return c
}

func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := newMemStore()
	for k, v := range s.invoices {
		snap.invoices[k] = cloneInvoice(v)
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	snap.entries = append([]model.LedgerEntry(nil), s.entries...)
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	if s.settings != nil {
		cp := *s.settings
		snap.settings = &cp
	}
	snap.audits = append([]model.AuditLog(nil), s.audits...)
	for k, v := range s.challans {
		snap.challans[k] = cloneChallan(v)
	}
	for k, v := range s.returns {
		snap.returns[k] = v
	}
	return snap
}

func (s *memStore) restore(snap *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = snap.invoices
	s.payments = snap.payments
	s.accounts = snap.accounts
	s.entries = snap.entries
	s.sequences = snap.sequences
	s.settings = snap.settings
	s.audits = snap.audits
	s.challans = snap.challans
	s.returns = snap.returns
}

// --- Transactions ---

type fakeTxKey struct{}

// fakeTxManager runs one transaction at a time, which stands in for row locks, and
// restores the store when fn fails. Nested calls behave like savepoints.
type fakeTxManager struct {
	store *memStore
	mu    sync.Mutex
}

func (m *fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return m.savepoint(ctx, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savepoint(context.WithValue(ctx, fakeTxKey{}, true), fn)
}

func (m *fakeTxManager) RunInSnapshot(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(context.WithValue(ctx, fakeTxKey{}, true))
}

func (m *fakeTxManager) savepoint(ctx context.Context, fn func(txCtx context.Context) error) error {
	snap := m.store.snapshot()
	if err := fn(ctx); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// --- Events ---

type recordedEvent struct {
	Type string
	Data interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(eventType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Data: data})
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// --- Locks ---

var _ lock.Locker = (*recordingLocker)(nil)

// recordingLocker never blocks and remembers every key it was asked for.
type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) Acquire(_ context.Context, key string) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return func() {}
}

func (l *recordingLocker) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = nil
}

func (l *recordingLocker) acquired() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

// --- Invoices ---

type fakeInvoiceRepo struct{ s *memStore }

func sortItems(items []model.InvoiceItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].SerialNo < items[j].SerialNo })
}

func (r *fakeInvoiceRepo) Create(_ context.Context, inv *model.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	for i := range inv.Items {
		inv.Items[i].ID = uuid.New()
		inv.Items[i].InvoiceID = inv.ID
	}
	now := time.Now()
	inv.CreatedAt, inv.UpdatedAt = now, now
	r.s.invoices[inv.ID] = cloneInvoice(*inv)
	return nil
}

func (r *fakeInvoiceRepo) Update(_ context.Context, inv *model.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[inv.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	updated := *inv
	updated.Items = stored.Items
	updated.UpdatedAt = time.Now()
	r.s.invoices[inv.ID] = updated
	return nil
}

func (r *fakeInvoiceRepo) ReplaceItems(_ context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[invoiceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].InvoiceID = invoiceID
	}
	stored.Items = append([]model.InvoiceItem(nil), items...)
	r.s.invoices[invoiceID] = stored
	return nil
}

func (r *fakeInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := cloneInvoice(inv)
	sortItems(cp.Items)
	return &cp, nil
}

func (r *fakeInvoiceRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeInvoiceRepo) FindByIDsForUpdate(_ context.Context, ids []uuid.UUID) ([]model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Invoice
	for _, id := range ids {
		if inv, ok := r.s.invoices[id]; ok {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *fakeInvoiceRepo) List(_ context.Context, f repository.InvoiceFilter, page, limit int) ([]model.Invoice, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Invoice
	for _, inv := range r.s.invoices {
		switch {
		case f.InvoiceType != "" && inv.InvoiceType != f.InvoiceType,
			f.Status != "" && inv.Status != f.Status,
			f.ClientID != nil && (inv.ClientID == nil || *inv.ClientID != *f.ClientID),
			f.VendorID != nil && (inv.VendorID == nil || *inv.VendorID != *f.VendorID),
			f.From != nil && inv.InvoiceDate.Before(*f.From),
			f.To != nil && inv.InvoiceDate.After(*f.To):
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvoiceDate.Equal(out[j].InvoiceDate) {
			return out[i].InvoiceDate.After(out[j].InvoiceDate)
		}
		return out[i].InvoiceNumber > out[j].InvoiceNumber
	})
	total := int64(len(out))
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *fakeInvoiceRepo) ListOverdueForUpdate(_ context.Context, asOf time.Time) ([]model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Invoice
	for _, inv := range r.s.invoices {
		if (inv.Status == model.InvoiceSent || inv.Status == model.InvoicePartial) && inv.DueDate != nil && inv.DueDate.Before(asOf) {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *fakeInvoiceRepo) ListTDS(_ context.Context, f repository.TDSInvoiceFilter) ([]model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	contains := func(list []string, v string) bool {
		if len(list) == 0 {
			return true
		}
		for _, x := range list {
			if x == v {
				return true
			}
		}
		return false
	}
	var out []model.Invoice
	for _, inv := range r.s.invoices {
		switch {
		case !inv.TDSApplicable,
			inv.InvoiceDate.Before(f.From) || inv.InvoiceDate.After(f.To),
			!contains(f.Types, inv.InvoiceType),
			!contains(f.Statuses, inv.Status),
			f.BranchID != nil && (inv.BranchID == nil || *inv.BranchID != *f.BranchID),
			f.OnlyPending && inv.TDSChallanID != nil:
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvoiceDate.Equal(out[j].InvoiceDate) {
			return out[i].InvoiceDate.Before(out[j].InvoiceDate)
		}
		return out[i].InvoiceNumber < out[j].InvoiceNumber
	})
	return out, nil
}

func (r *fakeInvoiceRepo) SetTDSChallan(_ context.Context, ids []uuid.UUID, challanID *uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		inv, ok := r.s.invoices[id]
		if !ok {
			continue
		}
		if challanID == nil {
			inv.TDSChallanID = nil
		} else {
			cid := *challanID
			inv.TDSChallanID = &cid
		}
		r.s.invoices[id] = inv
	}
	return nil
}

func (r *fakeInvoiceRepo) GSTSummary(_ context.Context, from, to time.Time) ([]repository.GSTSummaryRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := map[string]*repository.GSTSummaryRow{}
	for _, inv := range r.s.invoices {
		if inv.Status == model.InvoiceDraft || inv.Status == model.InvoiceCancelled {
			continue
		}
		if inv.InvoiceDate.Before(from) || inv.InvoiceDate.After(to) {
			continue
		}
		row, ok := rows[inv.InvoiceType]
		if !ok {
			row = &repository.GSTSummaryRow{InvoiceType: inv.InvoiceType}
			rows[inv.InvoiceType] = row
		}
		row.InvoiceCount++
		row.TaxableAmount = row.TaxableAmount.Add(inv.TaxableAmount)
		row.CGSTAmount = row.CGSTAmount.Add(inv.CGSTAmount)
		row.SGSTAmount = row.SGSTAmount.Add(inv.SGSTAmount)
		row.IGSTAmount = row.IGSTAmount.Add(inv.IGSTAmount)
		row.CessAmount = row.CessAmount.Add(inv.CessAmount)
		row.TotalAmount = row.TotalAmount.Add(inv.TotalAmount)
	}
	out := make([]repository.GSTSummaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceType < out[j].InvoiceType })
	return out, nil
}

// --- Ledger ---

type fakeLedgerRepo struct{ s *memStore }

func (r *fakeLedgerRepo) CreateEntries(_ context.Context, entries []model.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range entries {
		entries[i].ID = uuid.New()
		entries[i].CreatedAt = time.Now()
		r.s.entries = append(r.s.entries, entries[i])
	}
	return nil
}

func (r *fakeLedgerRepo) FindByVoucher(_ context.Context, voucherNumber string) ([]model.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range r.s.entries {
		if e.VoucherNumber != voucherNumber {
			continue
		}
		if acct, ok := r.s.accounts[e.AccountID]; ok {
			e.Account = &acct
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNo < out[j].LineNo })
	return out, nil
}

func matchesLedger(e model.LedgerEntry, f repository.LedgerFilter) bool {
	switch {
	case f.AccountID != nil && e.AccountID != *f.AccountID,
		f.ClientID != nil && (e.ClientID == nil || *e.ClientID != *f.ClientID),
		f.VendorID != nil && (e.VendorID == nil || *e.VendorID != *f.VendorID),
		f.BranchID != nil && (e.BranchID == nil || *e.BranchID != *f.BranchID):
		return false
	}
	return true
}

func (r *fakeLedgerRepo) SumBefore(_ context.Context, f repository.LedgerFilter, before time.Time) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	for _, e := range r.s.entries {
		if matchesLedger(e, f) && e.EntryDate.Before(before) {
			sum = sum.Add(e.Debit).Sub(e.Credit)
		}
	}
	return sum, nil
}

func (r *fakeLedgerRepo) ListRange(_ context.Context, f repository.LedgerFilter, from, to time.Time) ([]model.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range r.s.entries {
		if matchesLedger(e, f) && !e.EntryDate.Before(from) && !e.EntryDate.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) TrialBalance(_ context.Context, asOf time.Time) ([]repository.AccountTotal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	totals := map[uuid.UUID]*repository.AccountTotal{}
	for _, e := range r.s.entries {
		if e.EntryDate.After(asOf) {
			continue
		}
		t, ok := totals[e.AccountID]
		if !ok {
			acct := r.s.accounts[e.AccountID]
			t = &repository.AccountTotal{AccountID: e.AccountID, Code: acct.Code, Name: acct.Name, AccountType: acct.AccountType}
			totals[e.AccountID] = t
		}
		t.Debit = t.Debit.Add(e.Debit)
		t.Credit = t.Credit.Add(e.Credit)
	}
	out := make([]repository.AccountTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *fakeLedgerRepo) CountByAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.entries {
		if e.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (r *fakeLedgerRepo) NextSequence(_ context.Context, prefix, financialYear string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := prefix + "|" + financialYear
	r.s.sequences[key]++
	return r.s.sequences[key], nil
}

func (r *fakeLedgerRepo) voucher(number string) []model.LedgerEntry {
	entries, _ := r.FindByVoucher(context.Background(), number)
	return entries
}

// --- Accounts ---

type fakeAccountRepo struct{ s *memStore }

func (r *fakeAccountRepo) Create(_ context.Context, a *model.ChartOfAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if existing.Code == a.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *fakeAccountRepo) Update(_ context.Context, a *model.ChartOfAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *a
	cp.Children = nil
	cp.UpdatedAt = time.Now()
	r.s.accounts[a.ID] = cp
	return nil
}

func (r *fakeAccountRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.accounts, id)
	return nil
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id uuid.UUID) (*model.ChartOfAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (r *fakeAccountRepo) FindByCode(_ context.Context, code string) (*model.ChartOfAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Code == code {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAccountRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.ChartOfAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ChartOfAccount
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		if a, ok := r.s.accounts[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) List(_ context.Context, f repository.AccountFilter) ([]model.ChartOfAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ChartOfAccount
	for _, a := range r.s.accounts {
		if f.AccountType != "" && a.AccountType != f.AccountType {
			continue
		}
		if f.ActiveOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *fakeAccountRepo) byCode(code string) model.ChartOfAccount {
	a, _ := r.FindByCode(context.Background(), code)
	if a == nil {
		return model.ChartOfAccount{}
	}
	return *a
}

// --- Payments ---

type fakePaymentRepo struct{ s *memStore }

func (r *fakePaymentRepo) Create(_ context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.payments {
		if existing.PaymentNumber == p.PaymentNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.payments[p.ID] = *p
	return nil
}

func (r *fakePaymentRepo) Update(_ context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[p.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	p.UpdatedAt = time.Now()
	r.s.payments[p.ID] = *p
	return nil
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *fakePaymentRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r *fakePaymentRepo) List(_ context.Context, f repository.PaymentFilter, page, limit int) ([]model.Payment, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Payment
	for _, p := range r.s.payments {
		switch {
		case f.PaymentType != "" && p.PaymentType != f.PaymentType,
			f.Status != "" && p.Status != f.Status,
			f.InvoiceID != nil && (p.InvoiceID == nil || *p.InvoiceID != *f.InvoiceID),
			f.ClientID != nil && (p.ClientID == nil || *p.ClientID != *f.ClientID),
			f.VendorID != nil && (p.VendorID == nil || *p.VendorID != *f.VendorID):
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentNumber > out[j].PaymentNumber })
	total := int64(len(out))
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

// --- Settings ---

type fakeSettingsRepo struct{ s *memStore }

func (r *fakeSettingsRepo) Get(_ context.Context) (*model.CompanySettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settings == nil {
		r.s.settings = &model.CompanySettings{
			ID:              uuid.New(),
			LedgerPostingOn: model.PostOnSent,
			EnableTDS:       true,
			EnableTCS:       true,
		}
	}
	cp := *r.s.settings
	return &cp, nil
}

func (r *fakeSettingsRepo) Save(_ context.Context, settings *model.CompanySettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *settings
	cp.UpdatedAt = time.Now()
	r.s.settings = &cp
	return nil
}

// --- Audit ---

type fakeAuditRepo struct{ s *memStore }

func (r *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r *fakeAuditRepo) List(_ context.Context, f repository.AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.AuditLog
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		l := r.s.audits[i]
		if (f.EntityType != "" && l.EntityType != f.EntityType) ||
			(f.EntityID != "" && l.EntityID != f.EntityID) ||
			(f.Action != "" && l.Action != f.Action) {
			continue
		}
		out = append(out, l)
	}
	total := int64(len(out))
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *fakeAuditRepo) actions() []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]string, 0, len(r.s.audits))
	for _, l := range r.s.audits {
		out = append(out, l.Action)
	}
	return out
}

// --- TDS ---

type fakeTDSRepo struct{ s *memStore }

func (r *fakeTDSRepo) CreateChallan(_ context.Context, c *model.TDSChallan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// partial unique index on live entries
	for _, existing := range r.s.challans {
		for _, e := range existing.Entries {
			if e.Superseded {
				continue
			}
			for _, n := range c.Entries {
				if e.InvoiceID == n.InvoiceID && e.FinancialYear == n.FinancialYear && e.TDSType == n.TDSType {
					return gorm.ErrDuplicatedKey
				}
			}
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	for i := range c.Entries {
		c.Entries[i].ID = uuid.New()
		c.Entries[i].ChallanID = c.ID
		c.Entries[i].CreatedAt = now
	}
	r.s.challans[c.ID] = cloneChallan(*c)
	return nil
}

func (r *fakeTDSRepo) UpdateChallan(_ context.Context, c *model.TDSChallan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.challans[c.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	updated := *c
	updated.Entries = stored.Entries
	updated.UpdatedAt = time.Now()
	r.s.challans[c.ID] = updated
	return nil
}

func (r *fakeTDSRepo) UpdateEntry(_ context.Context, entry *model.TDSChallanEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challans[entry.ChallanID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c = cloneChallan(c)
	for i := range c.Entries {
		if c.Entries[i].ID == entry.ID {
			c.Entries[i] = *entry
		}
	}
	r.s.challans[c.ID] = c
	return nil
}

func sortEntries(entries []model.TDSChallanEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].InvoiceDate.Equal(entries[j].InvoiceDate) {
			return entries[i].InvoiceDate.Before(entries[j].InvoiceDate)
		}
		return entries[i].InvoiceNumber < entries[j].InvoiceNumber
	})
}

func (r *fakeTDSRepo) FindChallanByID(_ context.Context, id uuid.UUID) (*model.TDSChallan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := cloneChallan(c)
	sortEntries(cp.Entries)
	return &cp, nil
}

func (r *fakeTDSRepo) FindChallanForUpdate(ctx context.Context, id uuid.UUID) (*model.TDSChallan, error) {
	return r.FindChallanByID(ctx, id)
}

func (r *fakeTDSRepo) ListChallans(_ context.Context, f repository.ChallanFilter) ([]model.TDSChallan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.TDSChallan
	for _, c := range r.s.challans {
		switch {
		case f.FinancialYear != "" && c.FinancialYear != f.FinancialYear,
			f.TDSType != "" && c.TDSType != f.TDSType,
			f.Month != 0 && c.Month != f.Month,
			f.Quarter != 0 && c.Quarter != f.Quarter,
			f.BranchID != nil && (c.BranchID == nil || *c.BranchID != *f.BranchID),
			!f.IncludeSuperseded && c.SupersededAt != nil:
			continue
		}
		cp := cloneChallan(c)
		sortEntries(cp.Entries)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.Before(out[j].PaymentDate)
		}
		return out[i].ChallanNumber < out[j].ChallanNumber
	})
	return out, nil
}

func (r *fakeTDSRepo) SupersedeChallan(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challans[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c = cloneChallan(c)
	c.SupersededAt = &at
	for i := range c.Entries {
		c.Entries[i].Superseded = true
	}
	r.s.challans[id] = c
	return nil
}

func (r *fakeTDSRepo) CreateReturn(_ context.Context, ret *model.TDSReturn) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	now := time.Now()
	ret.CreatedAt, ret.UpdatedAt = now, now
	r.s.returns[ret.ID] = *ret
	return nil
}

func (r *fakeTDSRepo) UpdateReturn(_ context.Context, ret *model.TDSReturn) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.returns[ret.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	ret.UpdatedAt = time.Now()
	r.s.returns[ret.ID] = *ret
	return nil
}

func (r *fakeTDSRepo) FindReturn(_ context.Context, fy string, quarter int, tdsType string, branchID *uuid.UUID) (*model.TDSReturn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ret := range r.s.returns {
		if ret.FinancialYear == fy && ret.Quarter == quarter && ret.TDSType == tdsType && sameBranch(ret.BranchID, branchID) {
			cp := ret
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTDSRepo) FindReturnForUpdate(_ context.Context, id uuid.UUID) (*model.TDSReturn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ret, ok := r.s.returns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &ret, nil
}

func (r *fakeTDSRepo) ListReturnsForPeriod(_ context.Context, fy string, quarter int, tdsType string) ([]model.TDSReturn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.TDSReturn
	for _, ret := range r.s.returns {
		if ret.FinancialYear == fy && ret.Quarter == quarter && ret.TDSType == tdsType {
			out = append(out, ret)
		}
	}
	return out, nil
}

func (r *fakeTDSRepo) ListReturns(_ context.Context, fy, tdsType string) ([]model.TDSReturn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.TDSReturn
	for _, ret := range r.s.returns {
		if ret.FinancialYear == fy && (tdsType == "" || ret.TDSType == tdsType) {
			out = append(out, ret)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quarter < out[j].Quarter })
	return out, nil
}

// --- Environment ---

var testNow = time.Date(2024, time.June, 30, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *memStore
	invoices  InvoiceService
	payments  PaymentService
	ledger    LedgerService
	tds       TDSService
	accounts  AccountService
	settings  SettingsService
	audit     AuditService
	events    *recordingPublisher
	locks     *recordingLocker
	invRepo   *fakeInvoiceRepo
	ledRepo   *fakeLedgerRepo
	accRepo   *fakeAccountRepo
	payRepo   *fakePaymentRepo
	tdsRepo   *fakeTDSRepo
	auditRepo *fakeAuditRepo
}

// newTestEnv wires every service over one in-memory store with the default chart
// seeded and the company registered in Maharashtra (27).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	tx := &fakeTxManager{store: store}
	env := &testEnv{
		store:     store,
		events:    &recordingPublisher{},
		locks:     &recordingLocker{},
		invRepo:   &fakeInvoiceRepo{s: store},
		ledRepo:   &fakeLedgerRepo{s: store},
		accRepo:   &fakeAccountRepo{s: store},
		payRepo:   &fakePaymentRepo{s: store},
		tdsRepo:   &fakeTDSRepo{s: store},
		auditRepo: &fakeAuditRepo{s: store},
	}
	settingsRepo := &fakeSettingsRepo{s: store}
	engine := taxengine.New(taxengine.Options{EnableTDS: true, EnableTCS: true})

	env.invoices = NewInvoiceService(env.invRepo, env.ledRepo, settingsRepo, env.auditRepo, tx, engine, env.locks, env.events)
	env.payments = NewPaymentService(env.payRepo, env.invRepo, env.ledRepo, settingsRepo, env.auditRepo, tx, env.locks, env.events)
	env.ledger = NewLedgerService(env.ledRepo, env.accRepo, env.invRepo, settingsRepo, env.auditRepo, tx)
	env.tds = NewTDSService(env.tdsRepo, env.invRepo, settingsRepo, env.auditRepo, tx, env.locks, env.events)
	env.accounts = NewAccountService(env.accRepo, env.ledRepo, settingsRepo, env.auditRepo, tx)
	env.settings = NewSettingsService(settingsRepo, env.accRepo, env.auditRepo, tx)
	env.audit = NewAuditService(env.auditRepo)

	clock := func() time.Time { return testNow }
	env.invoices.(*invoiceService).now = clock
	env.payments.(*paymentService).now = clock
	env.ledger.(*ledgerService).now = clock
	env.tds.(*tdsService).now = clock

	_, err := env.accounts.SeedDefaultAccounts(context.Background(), "")
	require.NoError(t, err)

	state := "27"
	_, err = env.settings.UpdateSettings(context.Background(), UpdateSettingsRequest{StateCode: &state}, "")
	require.NoError(t, err)
	return env
}

func strPtr(s string) *string { return &s }

// salesRequest is a two-unit, 1000 per unit, 18% intra-state sale.
func salesRequest(clientID uuid.UUID, date string) InvoiceRequest {
	return InvoiceRequest{
		InvoiceType:       model.InvoiceTypeSales,
		InvoiceDate:       date,
		ClientID:          strPtr(clientID.String()),
		PlaceOfSupplyCode: "27",
		Items: []InvoiceItemRequest{
			{Description: "Consulting", HSNSAC: "998311", Quantity: "2", Rate: "1000", GSTRate: "18"},
		},
	}
}

// purchaseRequest is a 10000 purchase at 18% with 2% TDS under 194C.
func purchaseRequest(vendorID uuid.UUID, date string) InvoiceRequest {
	return InvoiceRequest{
		InvoiceType:       model.InvoiceTypePurchase,
		InvoiceDate:       date,
		VendorID:          strPtr(vendorID.String()),
		PlaceOfSupplyCode: "27",
		TDSApplicable:     true,
		TDSRate:           "2",
		Items: []InvoiceItemRequest{
			{Description: "Transport", Quantity: "1", Rate: "10000", GSTRate: "18"},
		},
	}
}

// sentInvoice creates and sends req.
func (env *testEnv) sentInvoice(t *testing.T, req InvoiceRequest) InvoiceResponse {
	t.Helper()
	ctx := context.Background()
	created, err := env.invoices.CreateInvoice(ctx, req, "")
	require.NoError(t, err)
	sent, err := env.invoices.SendInvoice(ctx, created.ID, "")
	require.NoError(t, err)
	return sent
}

// balance returns the signed debit-minus-credit total of the account with code.
func (env *testEnv) balance(code string) decimal.Decimal {
	acct := env.accRepo.byCode(code)
	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	sum := decimal.Zero
	for _, e := range env.store.entries {
		if e.AccountID == acct.ID {
			sum = sum.Add(e.Debit).Sub(e.Credit)
		}
	}
	return sum
}
