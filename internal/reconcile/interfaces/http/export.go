package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"energy-ledger/internal/observability/metrics"
	"energy-ledger/internal/reconcile/application"
	"energy-ledger/internal/statistics/domain"
)

const (
	formatPDF  = "pdf"
	formatXLSX = "xlsx"
)

// BuildDailyPDF renders the daily statistics of a device as a PDF table.
func BuildDailyPDF(deviceID string, summary statistics.Summary, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Energy Ledger Daily Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", deviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Entries: %d valid of %d", summary.ValidEntries, summary.TotalEntries))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Charged (kWh): %.4f", summary.TotalChargeEnergy))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Discharged (kWh): %.4f", summary.TotalDischargeEnergy))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Net profit: %.4f", summary.TotalProfit))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Savings: %.4f", summary.TotalSavings))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Charged (kWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Discharged (kWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Profit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Savings", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Flags", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range summary.Daily {
		pdf.CellFormat(30, 6, day.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.4f", day.TotalChargeEnergy), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.4f", day.TotalDischargeEnergy), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.4f", day.TotalProfit), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.4f", day.TotalSavings), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", auditFlags(day.AuditInfo)), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDailyXLSX renders the summary and one row per day.
func BuildDailyXLSX(deviceID string, summary statistics.Summary, generated time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	daysSheet := "days"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	rows := [][2]any{
		{"Device", deviceID},
		{"Generated", generated.Format(time.RFC3339)},
		{"Total entries", summary.TotalEntries},
		{"Valid entries", summary.ValidEntries},
		{"Charged (kWh)", summary.TotalChargeEnergy},
		{"Discharged (kWh)", summary.TotalDischargeEnergy},
		{"Net profit", summary.TotalProfit},
		{"Savings", summary.TotalSavings},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Energy Ledger Daily Report")
	for i, row := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}
	if summary.AveragePrice != nil {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", len(rows)+3), "Average price")
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", len(rows)+3), *summary.AveragePrice)
	}

	headers := []string{"Day", "Charged (kWh)", "Discharged (kWh)", "Profit", "Savings", "Validation failures", "Unpriced entries"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(daysSheet, cell, h)
	}
	for i, day := range summary.Daily {
		row := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", row), day.Date)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", row), day.TotalChargeEnergy)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", row), day.TotalDischargeEnergy)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("D%d", row), day.TotalProfit)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("E%d", row), day.TotalSavings)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("F%d", row), day.AuditInfo.ValidationFailures)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("G%d", row), day.AuditInfo.UnpricedEntries)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func auditFlags(info statistics.AuditInfo) int {
	return info.ValidationFailures + info.PrecisionLosses + info.OutliersDetected + info.RecoveryActions
}

// ExportHandler serves /api/v1/exports/daily.pdf and daily.xlsx.
type ExportHandler struct {
	service *application.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportHandler constructs an export handler.
func NewExportHandler(service *application.Service, logger *zap.Logger) (*ExportHandler, error) {
	if service == nil {
		return nil, errors.New("export handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{service: service, logger: logger, now: time.Now}, nil
}

// ServeHTTP renders the export named by the path suffix.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	format := strings.TrimPrefix(r.URL.Path, "/api/v1/exports/daily.")
	if format != formatPDF && format != formatXLSX {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	deviceID, err := deviceFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	start := time.Now()
	result := metrics.ResultSuccess
	defer func() { metrics.ObserveExport(format, result, time.Since(start)) }()

	summary, err := h.service.Summary(r.Context(), deviceID)
	if err != nil {
		result = metrics.ResultError
		respondError(w, err)
		return
	}

	var (
		data        []byte
		contentType string
	)
	generated := h.now().UTC()
	switch format {
	case formatPDF:
		data, err = BuildDailyPDF(deviceID, summary.Summary, generated)
		contentType = "application/pdf"
	default:
		data, err = BuildDailyXLSX(deviceID, summary.Summary, generated)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Error("export render failed", zap.String("format", format), zap.String("device_id", deviceID), zap.Error(err))
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s-daily-%s.%s", deviceID, generated.Format("20060102"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
