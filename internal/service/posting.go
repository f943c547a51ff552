package service

import (
	"context"
	"fmt"
	"time"

	"gstbooks/internal/apperror"
	"gstbooks/internal/fiscal"
	"gstbooks/internal/ledger"
	"gstbooks/internal/model"
	"gstbooks/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ledgerPoster writes balanced vouchers. Callers must already hold the row lock on
// the document being posted and run inside a transaction.
type ledgerPoster struct {
	ledgerRepo repository.LedgerRepository
	log        zerolog.Logger
}

// writeVoucher numbers and persists v. It refuses unbalanced lines.
func (p *ledgerPoster) writeVoucher(ctx context.Context, op, prefix string, v ledger.Voucher) (string, error) {
	if err := ledger.CheckBalanced(v.Lines); err != nil {
		return "", apperror.NewPostingError(op, err.Error())
	}

	fy := fiscal.FinancialYear(v.Date)
	seq, err := p.ledgerRepo.NextSequence(ctx, prefix, fy)
	if err != nil {
		return "", fmt.Errorf("failed to allocate voucher number: %w", err)
	}
	v.Number = ledger.FormatNumber(prefix, fy, seq)

	if err := p.ledgerRepo.CreateEntries(ctx, ledger.Entries(v)); err != nil {
		return "", fmt.Errorf("failed to write ledger entries: %w", err)
	}
	return v.Number, nil
}

// postInvoice posts an issued invoice once. A document whose every amount is zero is
// marked posted without a voucher.
func (p *ledgerPoster) postInvoice(ctx context.Context, inv *model.Invoice, accts ledger.Accounts) error {
	const op = "PostInvoice"
	if inv.IsPosted {
		return apperror.NewPostingError(op, fmt.Sprintf("invoice %s is already posted", inv.InvoiceNumber))
	}

	lines, err := ledger.InvoiceLines(inv, accts)
	if err != nil {
		return err
	}

	if len(lines) > 0 {
		number, err := p.writeVoucher(ctx, op, model.VoucherPrefixInvoice, ledger.Voucher{
			Date:          inv.InvoiceDate,
			ReferenceType: model.LedgerRefInvoice,
			ReferenceID:   &inv.ID,
			ClientID:      inv.ClientID,
			VendorID:      inv.VendorID,
			BranchID:      inv.BranchID,
			Narration:     fmt.Sprintf("%s %s", inv.InvoiceType, inv.InvoiceNumber),
			Lines:         lines,
		})
		if err != nil {
			return err
		}
		inv.PostedVoucher = number
	}

	inv.IsPosted = true
	p.log.Info().Str("invoice_id", inv.ID.String()).Str("invoice_number", inv.InvoiceNumber).
		Str("voucher", inv.PostedVoucher).Msg("invoice posted")
	return nil
}

// reverse mirrors a posted voucher into a new journal voucher dated on. The original
// rows are left untouched.
func (p *ledgerPoster) reverse(ctx context.Context, op, voucherNumber string, on time.Time, refType string, refID uuid.UUID, narration string) (string, error) {
	entries, err := p.ledgerRepo.FindByVoucher(ctx, voucherNumber)
	if err != nil {
		return "", fmt.Errorf("failed to load voucher %s: %w", voucherNumber, err)
	}
	if len(entries) == 0 {
		return "", apperror.NewPostingError(op, fmt.Sprintf("voucher %s has no entries", voucherNumber))
	}

	number, err := p.writeVoucher(ctx, op, model.VoucherPrefixJournal, ledger.Voucher{
		Date:          on,
		ReferenceType: refType,
		ReferenceID:   &refID,
		ClientID:      entries[0].ClientID,
		VendorID:      entries[0].VendorID,
		BranchID:      entries[0].BranchID,
		Narration:     narration,
		Lines:         ledger.Reverse(entries, narration),
	})
	if err != nil {
		return "", err
	}

	p.log.Info().Str("original", voucherNumber).Str("reversal", number).Msg("voucher reversed")
	return number, nil
}

func (p *ledgerPoster) postPayment(ctx context.Context, pay *model.Payment, accts ledger.Accounts) error {
	const op = "PostPayment"
	if pay.IsPosted {
		return apperror.NewPostingError(op, fmt.Sprintf("payment %s is already posted", pay.PaymentNumber))
	}

	lines, err := ledger.PaymentLines(pay, accts)
	if err != nil {
		return err
	}

	number, err := p.writeVoucher(ctx, op, model.VoucherPrefixPayment, ledger.Voucher{
		Date:          pay.PaymentDate,
		ReferenceType: model.LedgerRefPayment,
		ReferenceID:   &pay.ID,
		ClientID:      pay.ClientID,
		VendorID:      pay.VendorID,
		BranchID:      pay.BranchID,
		Narration:     fmt.Sprintf("%s %s", pay.PaymentType, pay.PaymentNumber),
		Lines:         lines,
	})
	if err != nil {
		return err
	}

	pay.IsPosted = true
	pay.PostedVoucher = number
	p.log.Info().Str("payment_id", pay.ID.String()).Str("voucher", number).Msg("payment posted")
	return nil
}
