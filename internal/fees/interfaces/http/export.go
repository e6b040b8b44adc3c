package http

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"coaching-fees/internal/audit"
	fees "coaching-fees/internal/fees/domain"
	ledgerapp "coaching-fees/internal/ledger/application"
	"coaching-fees/internal/observability/metrics"
)

const (
	formatPDF  = "pdf"
	formatXLSX = "xlsx"
)

// maxCSVRows bounds one audit CSV export.
const maxCSVRows = 10000

func (h *Handler) handleLedgerExport(w http.ResponseWriter, r *http.Request, coachingID, memberID, format string) {
	start := time.Now()
	profile, err := h.svc.Ledger.MemberFeeProfile(r.Context(), coachingID, memberID)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		h.respondError(w, r, err)
		return
	}
	var (
		data        []byte
		contentType string
	)
	switch format {
	case formatPDF:
		data, err = BuildLedgerPDF(profile.Member, profile.Ledger)
		contentType = "application/pdf"
	default:
		data, err = BuildLedgerXLSX(profile.Member, profile.Ledger)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		h.respondError(w, r, err)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
	filename := fmt.Sprintf("ledger-%s-%s.%s", memberID, dayStamp(h.clock.Now()), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// BuildLedgerPDF renders a one-member ledger statement.
func BuildLedgerPDF(member fees.Member, ledger ledgerapp.Ledger) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Student Fee Ledger")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Student: %s (%s)", member.Name, member.ID))
	pdf.Ln(5)
	if member.Batch != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Batch: %s", member.Batch))
		pdf.Ln(5)
	}
	summary := ledger.Summary
	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total Charged: %s", summary.TotalCharged.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Paid: %s", summary.TotalPaid.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Refunded: %s", summary.TotalRefunded.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Waived: %s", summary.TotalWaived.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Balance: %s", summary.Balance.StringFixed(2)))
	pdf.Ln(5)
	if summary.NextDueDate != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Next Due: %s on %s", summary.NextDueAmount.StringFixed(2), summary.NextDueDate.Format("2006-01-02")))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(24, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(76, 6, "Description", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Balance", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, e := range ledger.Timeline {
		pdf.CellFormat(24, 6, e.Date.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, string(e.Type), "1", 0, "C", false, 0, "")
		pdf.CellFormat(76, 6, e.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, e.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, e.RunningBalance.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildLedgerXLSX renders the ledger as a summary sheet and a timeline sheet.
func BuildLedgerXLSX(member fees.Member, ledger ledgerapp.Ledger) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	timelineSheet := "timeline"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(timelineSheet); err != nil {
		return nil, err
	}

	summary := ledger.Summary
	rows := [][]any{
		{"Student Fee Ledger"},
		{},
		{"Student", member.Name},
		{"Member ID", member.ID},
		{"Batch", member.Batch},
		{"Total Charged", summary.TotalCharged.InexactFloat64()},
		{"Total Paid", summary.TotalPaid.InexactFloat64()},
		{"Total Refunded", summary.TotalRefunded.InexactFloat64()},
		{"Total Waived", summary.TotalWaived.InexactFloat64()},
		{"Balance", summary.Balance.InexactFloat64()},
	}
	if summary.NextDueDate != nil {
		rows = append(rows,
			[]any{"Next Due Date", summary.NextDueDate.Format("2006-01-02")},
			[]any{"Next Due Amount", summary.NextDueAmount.InexactFloat64()},
		)
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	header := []any{"Date", "Type", "Description", "Amount", "Running Balance", "Record", "Reference", "Mode"}
	if err := f.SetSheetRow(timelineSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, e := range ledger.Timeline {
		row := []any{
			e.Date.Format("2006-01-02"),
			string(e.Type),
			e.Label,
			e.Amount.InexactFloat64(),
			e.RunningBalance.InexactFloat64(),
			e.RecordID,
			e.Ref,
			e.Mode,
		}
		if err := f.SetSheetRow(timelineSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// handleAuditCSV writes one row per rendered change; entries without changes get one bare row.
func (h *Handler) handleAuditCSV(w http.ResponseWriter, r *http.Request, coachingID string) {
	start := time.Now()
	q, err := h.auditQuery(r, coachingID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	q.Page = 1
	q.Limit = audit.MaxLimit
	var entries []audit.Entry
	for len(entries) < maxCSVRows {
		page, total, err := h.svc.AuditLog.List(r.Context(), q)
		if err != nil {
			metrics.ObserveExport("csv", metrics.ResultError, time.Since(start))
			h.respondError(w, r, err)
			return
		}
		entries = append(entries, page...)
		if len(page) < q.Limit || len(entries) >= total {
			break
		}
		q.Page++
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("audit-%s-%s.csv", coachingID, dayStamp(h.clock.Now()))))
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"created_at", "event", "entity_type", "entity_id", "member_id", "actor_id", "actor_type", "field", "label", "old", "new"})
	for _, e := range entries {
		rendered := h.differ.Render(e)
		base := []string{
			e.CreatedAt.UTC().Format(timeLayout),
			string(e.Event),
			e.EntityType,
			e.EntityID,
			e.MemberID,
			e.ActorID,
			e.ActorType,
		}
		if len(rendered.Changes) == 0 {
			_ = writer.Write(append(base, "", "", "", ""))
			continue
		}
		for _, c := range rendered.Changes {
			row := append(append([]string(nil), base...), c.Field, c.Label, c.OldText, c.NewText)
			_ = writer.Write(row)
		}
	}
	writer.Flush()
	metrics.ObserveExport("csv", metrics.ResultSuccess, time.Since(start))
}
