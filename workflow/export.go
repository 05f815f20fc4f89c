package workflow

import (
	"context"
	"fmt"
	"io"

	"github.com/warp/ap-engine/ap"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of the exports.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// =============================================================================
// SPREADSHEET EXPORTS
// =============================================================================

// ExportBatch writes a payment batch as a workbook: one row per invoice and a
// total row.
func (s *Service) ExportBatch(ctx context.Context, batchID string, w io.Writer) error {
	invoices, err := s.store.ListInvoices(ctx, ap.InvoiceFilter{PaymentBatchID: batchID})
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		return &ap.NotFoundError{Entity: "payment batch", Key: batchID}
	}

	rows := make([][]any, 0, len(invoices)+1)
	var total float64
	for i := range invoices {
		inv := &invoices[i]
		amount := InvoiceTotal(inv).InexactFloat64()
		total += amount
		rows = append(rows, []any{
			inv.InvoiceID, inv.VendorName, inv.InvoiceDate.String(), inv.DueDate.String(),
			amount, string(inv.Status), inv.PaidDate.String(),
		})
	}
	rows = append(rows, []any{"TOTAL", "", "", "", total, "", ""})

	return writeSheet(w, "Batch "+batchID,
		[]string{"Invoice", "Vendor", "Invoice Date", "Due Date", "Amount", "Status", "Paid Date"}, rows)
}

// ExportReviewQueue writes every invoice awaiting review with its category
// and root-cause failure.
func (s *Service) ExportReviewQueue(ctx context.Context, w io.Writer) error {
	invoices, err := s.store.ListInvoices(ctx, ap.InvoiceFilter{Statuses: []ap.Status{ap.StatusNeedsReview}})
	if err != nil {
		return err
	}
	rows := make([][]any, 0, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		reason := ""
		if f, ok := inv.MatchTrace.FirstFailure(); ok {
			reason = f.Step + ": " + f.Message
		}
		rows = append(rows, []any{
			inv.ID, inv.InvoiceID, inv.VendorName, string(inv.ReviewCategory), reason,
			InvoiceTotal(inv).InexactFloat64(), inv.DueDate.String(),
		})
	}
	return writeSheet(w, "Review Queue",
		[]string{"Row ID", "Invoice", "Vendor", "Category", "First Failure", "Amount", "Due Date"}, rows)
}

// writeSheet renders a single bold-header sheet. Sheet names are cut to the
// 31 characters a workbook allows.
func writeSheet(w io.Writer, title string, headers []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := title
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
