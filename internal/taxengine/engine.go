// Package taxengine computes GST document totals: item discounts, CGST/SGST/IGST split,
// cess, TDS, TCS and the whole-rupee round off. It has no side effects.
package taxengine

import (
	"gstbooks/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const opCompute = "Compute"

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Options toggles the withholding taxes company-wide.
type Options struct {
	EnableTDS bool
	EnableTCS bool
}

// ItemTotals holds the derived amounts of one line.
type ItemTotals struct {
	SerialNo       int
	Amount         decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxableAmount  decimal.Decimal
	CGSTAmount     decimal.Decimal
	SGSTAmount     decimal.Decimal
	IGSTAmount     decimal.Decimal
	CessAmount     decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Totals is the full computation result for a document.
type Totals struct {
	Items []ItemTotals

	Subtotal       decimal.Decimal
	ItemDiscount   decimal.Decimal
	DiscountAmount decimal.Decimal // document level, not deducted from the tax base
	TaxableAmount  decimal.Decimal
	CGSTAmount     decimal.Decimal
	SGSTAmount     decimal.Decimal
	IGSTAmount     decimal.Decimal
	CessAmount     decimal.Decimal
	TotalTax       decimal.Decimal
	TotalAmount    decimal.Decimal

	TDSAmount  decimal.Decimal
	TCSAmount  decimal.Decimal
	NetAmount  decimal.Decimal
	RoundOff   decimal.Decimal
	GrandTotal decimal.Decimal
}

// Engine is safe for concurrent use.
type Engine struct {
	opts     Options
	validate *validator.Validate
}

func New(opts Options) *Engine {
	return &Engine{opts: opts, validate: newValidator()}
}

// Options returns the toggles the engine was built with.
func (e *Engine) Options() Options {
	return e.opts
}

// WithOptions returns an engine using opts that shares e's validator.
func (e *Engine) WithOptions(opts Options) *Engine {
	return &Engine{opts: opts, validate: e.validate}
}

// Compute derives all amounts from the document inputs. It never mutates inv.
func (e *Engine) Compute(inv *model.Invoice) (Totals, error) {
	if err := e.validateDocument(inv); err != nil {
		return Totals{}, err
	}

	t := Totals{
		Items:          make([]ItemTotals, 0, len(inv.Items)),
		Subtotal:       decimal.Zero,
		ItemDiscount:   decimal.Zero,
		TaxableAmount:  decimal.Zero,
		CGSTAmount:     decimal.Zero,
		SGSTAmount:     decimal.Zero,
		IGSTAmount:     decimal.Zero,
		CessAmount:     decimal.Zero,
		TDSAmount:      decimal.Zero,
		TCSAmount:      decimal.Zero,
		DiscountAmount: decimal.Zero,
	}

	for _, it := range inv.Items {
		line := computeItem(it, inv.IsIGST)
		t.Items = append(t.Items, line)

		t.Subtotal = t.Subtotal.Add(line.Amount)
		t.ItemDiscount = t.ItemDiscount.Add(line.DiscountAmount)
		t.TaxableAmount = t.TaxableAmount.Add(line.TaxableAmount)
		t.CGSTAmount = t.CGSTAmount.Add(line.CGSTAmount)
		t.SGSTAmount = t.SGSTAmount.Add(line.SGSTAmount)
		t.IGSTAmount = t.IGSTAmount.Add(line.IGSTAmount)
		t.CessAmount = t.CessAmount.Add(line.CessAmount)
	}

	t.DiscountAmount = percentOf(t.Subtotal, inv.DiscountPercent)
	t.TotalTax = t.CGSTAmount.Add(t.SGSTAmount).Add(t.IGSTAmount)
	t.TotalAmount = t.TaxableAmount.Add(t.TotalTax).Add(t.CessAmount)

	if inv.TDSApplicable && e.opts.EnableTDS {
		t.TDSAmount = percentOf(t.TaxableAmount, inv.TDSRate)
	}
	if inv.TCSApplicable && e.opts.EnableTCS {
		t.TCSAmount = percentOf(t.TotalAmount, inv.TCSRate)
	}

	t.NetAmount = t.TotalAmount.Sub(t.TDSAmount).Add(t.TCSAmount)
	t.RoundOff = t.NetAmount.Round(0).Sub(t.NetAmount)
	t.GrandTotal = t.NetAmount.Add(t.RoundOff)
	return t, nil
}

// computeItem applies the fixed per-line order: amount, discount, taxable, gst split, cess, total.
func computeItem(it model.InvoiceItem, isIGST bool) ItemTotals {
	amount := it.Quantity.Mul(it.Rate).Round(2)
	discount := percentOf(amount, it.DiscountPercent)
	taxable := amount.Sub(discount)
	gst := percentOf(taxable, it.GSTRate)

	line := ItemTotals{
		SerialNo:       it.SerialNo,
		Amount:         amount,
		DiscountAmount: discount,
		TaxableAmount:  taxable,
		CGSTAmount:     decimal.Zero,
		SGSTAmount:     decimal.Zero,
		IGSTAmount:     decimal.Zero,
		CessAmount:     percentOf(taxable, it.CessRate),
	}
	if isIGST {
		line.IGSTAmount = gst
	} else {
		// odd paise land on SGST so the halves always sum to gst
		line.CGSTAmount = gst.Div(two).Round(2)
		line.SGSTAmount = gst.Sub(line.CGSTAmount)
	}
	line.TotalAmount = taxable.Add(gst).Add(line.CessAmount)
	return line
}

// percentOf returns base × pct / 100 rounded to paise.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred).Round(2)
}

// Apply copies computed totals onto the invoice and its items.
// Items are matched by serial number.
func Apply(inv *model.Invoice, t Totals) {
	bySerial := make(map[int]ItemTotals, len(t.Items))
	for _, it := range t.Items {
		bySerial[it.SerialNo] = it
	}
	for i := range inv.Items {
		line, ok := bySerial[inv.Items[i].SerialNo]
		if !ok {
			continue
		}
		item := &inv.Items[i]
		item.Amount = line.Amount
		item.DiscountAmount = line.DiscountAmount
		item.TaxableAmount = line.TaxableAmount
		item.CGSTAmount = line.CGSTAmount
		item.SGSTAmount = line.SGSTAmount
		item.IGSTAmount = line.IGSTAmount
		item.CessAmount = line.CessAmount
		item.TotalAmount = line.TotalAmount
	}

	inv.Subtotal = t.Subtotal
	inv.ItemDiscount = t.ItemDiscount
	inv.DiscountAmount = t.DiscountAmount
	inv.TaxableAmount = t.TaxableAmount
	inv.CGSTAmount = t.CGSTAmount
	inv.SGSTAmount = t.SGSTAmount
	inv.IGSTAmount = t.IGSTAmount
	inv.CessAmount = t.CessAmount
	inv.TotalAmount = t.TotalAmount
	inv.TDSAmount = t.TDSAmount
	inv.TCSAmount = t.TCSAmount
	inv.NetAmount = t.NetAmount
	inv.RoundOff = t.RoundOff
	inv.GrandTotal = t.GrandTotal
	inv.AmountDue = t.GrandTotal.Sub(inv.AmountPaid)
}
