package ledger

import (
	"sort"

	"gstbooks/internal/model"

	"github.com/google/uuid"
)

// DefaultAccount describes a seeded system account and the setting it backs.
type DefaultAccount struct {
	Code    string
	Name    string
	Type    string
	Group   string
	Setting string
}

// DefaultAccounts is the seeded chart of accounts.
var DefaultAccounts = []DefaultAccount{
	{"1000", "Cash", model.AccountAsset, "Current Assets", "default_cash_account_id"},
	{"1010", "Bank", model.AccountAsset, "Current Assets", "default_bank_account_id"},
	{"1100", "Accounts Receivable", model.AccountAsset, "Current Assets", "default_receivable_account_id"},
	{"1200", "CGST Input", model.AccountAsset, "Duties & Taxes", "default_cgst_input_account_id"},
	{"1210", "SGST Input", model.AccountAsset, "Duties & Taxes", "default_sgst_input_account_id"},
	{"1220", "IGST Input", model.AccountAsset, "Duties & Taxes", "default_igst_input_account_id"},
	{"1230", "Cess Input", model.AccountAsset, "Duties & Taxes", "default_cess_input_account_id"},
	{"1300", "TDS Receivable", model.AccountAsset, "Duties & Taxes", "default_tds_receivable_account_id"},
	{"1310", "TCS Receivable", model.AccountAsset, "Duties & Taxes", "default_tcs_receivable_account_id"},
	{"2100", "Accounts Payable", model.AccountLiability, "Current Liabilities", "default_payable_account_id"},
	{"2200", "CGST Output", model.AccountLiability, "Duties & Taxes", "default_cgst_output_account_id"},
	{"2210", "SGST Output", model.AccountLiability, "Duties & Taxes", "default_sgst_output_account_id"},
	{"2220", "IGST Output", model.AccountLiability, "Duties & Taxes", "default_igst_output_account_id"},
	{"2230", "Cess Output", model.AccountLiability, "Duties & Taxes", "default_cess_output_account_id"},
	{"2300", "TDS Payable", model.AccountLiability, "Duties & Taxes", "default_tds_payable_account_id"},
	{"2310", "TCS Payable", model.AccountLiability, "Duties & Taxes", "default_tcs_payable_account_id"},
	{"3000", "Capital", model.AccountEquity, "Capital", ""},
	{"3100", "Retained Earnings", model.AccountEquity, "Reserves & Surplus", ""},
	{"4000", "Sales", model.AccountRevenue, "Sales", "default_sales_account_id"},
	{"4100", "Other Income", model.AccountRevenue, "Indirect Income", ""},
	{"5000", "Purchases", model.AccountExpense, "Purchases", "default_purchase_account_id"},
	{"5100", "Direct Expenses", model.AccountExpense, "Direct Expenses", ""},
	{"5900", "Round Off", model.AccountExpense, "Indirect Expenses", "default_round_off_account_id"},
}

// IsAccountType reports whether t is a known account type.
func IsAccountType(t string) bool {
	switch t {
	case model.AccountAsset, model.AccountLiability, model.AccountEquity, model.AccountRevenue, model.AccountExpense:
		return true
	}
	return false
}

// SettingSlot returns the settings field backing a default account setting name.
func SettingSlot(s *model.CompanySettings, setting string) **uuid.UUID {
	switch setting {
	case "default_sales_account_id":
		return &s.DefaultSalesAccountID
	case "default_purchase_account_id":
		return &s.DefaultPurchaseAccountID
	case "default_receivable_account_id":
		return &s.DefaultReceivableAccountID
	case "default_payable_account_id":
		return &s.DefaultPayableAccountID
	case "default_cash_account_id":
		return &s.DefaultCashAccountID
	case "default_bank_account_id":
		return &s.DefaultBankAccountID
	case "default_cgst_output_account_id":
		return &s.DefaultCGSTOutputAccountID
	case "default_sgst_output_account_id":
		return &s.DefaultSGSTOutputAccountID
	case "default_igst_output_account_id":
		return &s.DefaultIGSTOutputAccountID
	case "default_cess_output_account_id":
		return &s.DefaultCessOutputAccountID
	case "default_cgst_input_account_id":
		return &s.DefaultCGSTInputAccountID
	case "default_sgst_input_account_id":
		return &s.DefaultSGSTInputAccountID
	case "default_igst_input_account_id":
		return &s.DefaultIGSTInputAccountID
	case "default_cess_input_account_id":
		return &s.DefaultCessInputAccountID
	case "default_tds_receivable_account_id":
		return &s.DefaultTDSReceivableAccountID
	case "default_tds_payable_account_id":
		return &s.DefaultTDSPayableAccountID
	case "default_tcs_receivable_account_id":
		return &s.DefaultTCSReceivableAccountID
	case "default_tcs_payable_account_id":
		return &s.DefaultTCSPayableAccountID
	case "default_round_off_account_id":
		return &s.DefaultRoundOffAccountID
	}
	return nil
}

// CreatesCycle reports whether attaching id under newParent would loop back to id.
// parents maps each account to its current parent.
func CreatesCycle(parents map[uuid.UUID]*uuid.UUID, id, newParent uuid.UUID) bool {
	seen := map[uuid.UUID]bool{}
	cur := &newParent
	for cur != nil {
		if *cur == id {
			return true
		}
		if seen[*cur] {
			return true
		}
		seen[*cur] = true
		cur = parents[*cur]
	}
	return false
}

// Node is an account with its children, ordered by code.
type Node struct {
	Account  model.ChartOfAccount
	Children []*Node
}

// BuildTree arranges a flat account list into roots ordered by code.
// Accounts whose parent is missing from the list become roots.
func BuildTree(accounts []model.ChartOfAccount) []*Node {
	nodes := make(map[uuid.UUID]*Node, len(accounts))
	for _, a := range accounts {
		a.Children = nil
		nodes[a.ID] = &Node{Account: a}
	}
	var roots []*Node
	for _, a := range accounts {
		n := nodes[a.ID]
		if a.ParentID != nil {
			if parent, ok := nodes[*a.ParentID]; ok && *a.ParentID != a.ID {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Account.Code < nodes[j].Account.Code })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}
