package taxengine

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gstbooks/internal/apperror"
	"gstbooks/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// documentRules is the structural shape checked before any arithmetic.
type documentRules struct {
	InvoiceType     string          `json:"invoice_type" validate:"required,oneof=SALES PURCHASE CREDIT_NOTE DEBIT_NOTE"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"dgte=0,dlte=100"`
	TDSRate         decimal.Decimal `json:"tds_rate" validate:"dgte=0,dlte=100"`
	TCSRate         decimal.Decimal `json:"tcs_rate" validate:"dgte=0,dlte=100"`
	Items           []itemRules     `json:"items" validate:"required,min=1,dive"`
}

type itemRules struct {
	Quantity        decimal.Decimal `json:"quantity" validate:"dgt=0"`
	Rate            decimal.Decimal `json:"rate" validate:"dgte=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"dgte=0,dlte=100"`
	GSTRate         decimal.Decimal `json:"gst_rate" validate:"dgte=0,dlte=100"`
	CessRate        decimal.Decimal `json:"cess_rate" validate:"dgte=0,dlte=100"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// decimals reach the d* rules as their exact string form
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("dgt", decimalRule(func(c int) bool { return c > 0 }))
	_ = v.RegisterValidation("dgte", decimalRule(func(c int) bool { return c >= 0 }))
	_ = v.RegisterValidation("dlte", decimalRule(func(c int) bool { return c <= 0 }))
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decimalRule compares the field with the tag parameter without leaving decimal arithmetic.
func decimalRule(accept func(cmp int) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return accept(value.Cmp(bound))
	}
}

func rulesFor(inv *model.Invoice) documentRules {
	doc := documentRules{
		InvoiceType:     inv.InvoiceType,
		DiscountPercent: inv.DiscountPercent,
		TDSRate:         inv.TDSRate,
		TCSRate:         inv.TCSRate,
	}
	if inv.Items != nil {
		doc.Items = make([]itemRules, 0, len(inv.Items))
	}
	for _, it := range inv.Items {
		doc.Items = append(doc.Items, itemRules{
			Quantity:        it.Quantity,
			Rate:            it.Rate,
			DiscountPercent: it.DiscountPercent,
			GSTRate:         it.GSTRate,
			CessRate:        it.CessRate,
		})
	}
	return doc
}

// validateDocument runs structural, party and serial-number checks in that order.
func (e *Engine) validateDocument(inv *model.Invoice) error {
	if err := e.validate.Struct(rulesFor(inv)); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperror.NewValidationError(opCompute, fieldPath(fe), describe(fe))
		}
		return apperror.NewValidationError(opCompute, "", err.Error())
	}
	if err := CheckParty(inv.InvoiceType, inv.ClientID != nil, inv.VendorID != nil); err != nil {
		return err
	}
	return checkSerials(inv.Items)
}

// CheckParty enforces that client-side documents carry only a client and
// vendor-side documents carry only a vendor.
func CheckParty(invoiceType string, hasClient, hasVendor bool) error {
	if hasClient && hasVendor {
		return apperror.NewPartyMismatchError(opCompute, "document must reference exactly one of client or vendor")
	}
	if model.IsClientSide(invoiceType) {
		if hasVendor {
			return apperror.NewPartyMismatchError(opCompute, fmt.Sprintf("%s requires a client, got a vendor", invoiceType))
		}
		if !hasClient {
			return apperror.NewValidationError(opCompute, "client_id", "is required")
		}
		return nil
	}
	if hasClient {
		return apperror.NewPartyMismatchError(opCompute, fmt.Sprintf("%s requires a vendor, got a client", invoiceType))
	}
	if !hasVendor {
		return apperror.NewValidationError(opCompute, "vendor_id", "is required")
	}
	return nil
}

// checkSerials requires serial numbers to be exactly 1..n.
func checkSerials(items []model.InvoiceItem) error {
	serials := make([]int, len(items))
	for i, it := range items {
		serials[i] = it.SerialNo
	}
	sort.Ints(serials)
	for i, s := range serials {
		if s != i+1 {
			return apperror.NewValidationError(opCompute, "items.serial_no",
				fmt.Sprintf("serial numbers must be unique and run 1..%d", len(items)))
		}
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s entry", fe.Param())
	case "dgt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "dgte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "dlte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return "is invalid"
}
