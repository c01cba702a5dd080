package exporter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"enrichdash/internal/config"
	"enrichdash/pkg/contracts/domain"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for formats other than csv and xlsx
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat validates a format name, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

const companiesSheet = "Companies"

// CompanyHeaders are the columns of a companies export
var CompanyHeaders = []string{
	"ID",
	"Name",
	"Domain",
	"VMS",
	"Report Ready",
	"Status",
	"Status Message",
	"Created At",
}

// CompanyRecords converts companies into export rows, in CompanyHeaders order
func CompanyRecords(companies []domain.Company) [][]string {
	records := make([][]string, 0, len(companies))
	for _, c := range companies {
		records = append(records, []string{
			c.ID,
			c.Name,
			c.Domain,
			c.VMSLabel(),
			formatReady(c),
			c.StatusLabel(),
			formatOptional(c.StatusMessage),
			formatTime(c.CreatedAt),
		})
	}
	return records
}

// CompanyExporter writes job companies to the exports directory
type CompanyExporter struct {
	paths *config.Paths
	csv   *CSVWriter
}

// NewCompanyExporter creates an exporter writing under paths.ExportsDir
func NewCompanyExporter(paths *config.Paths) *CompanyExporter {
	return &CompanyExporter{paths: paths, csv: NewCSVWriter(paths)}
}

// Export writes companies of jobID in the given format and returns the file path
func (e *CompanyExporter) Export(jobID string, format Format, companies []domain.Company) (string, error) {
	switch format {
	case FormatCSV:
		return e.ExportCSV(jobID, companies)
	case FormatXLSX:
		return e.ExportXLSX(jobID, companies)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ExportCSV writes a CSV file with a UTF-8 BOM
func (e *CompanyExporter) ExportCSV(jobID string, companies []domain.Company) (string, error) {
	return e.csv.WriteCSV(e.paths.GetExportPath(jobID, string(FormatCSV)), WriteOptions{
		Headers:   CompanyHeaders,
		Records:   CompanyRecords(companies),
		BOMPrefix: true,
	})
}

// ExportXLSX writes a single-sheet workbook
func (e *CompanyExporter) ExportXLSX(jobID string, companies []domain.Company) (string, error) {
	start := time.Now()
	path := e.paths.GetExportPath(jobID, string(FormatXLSX))

	f, err := BuildWorkbook(companies)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("Exported companies workbook",
		slog.String("job_id", jobID),
		slog.String("path", path),
		slog.Int("rows", len(companies)),
		slog.Duration("elapsed", time.Since(start)))
	return path, nil
}

// BuildWorkbook lays companies out on a Companies sheet with a bold, frozen header row
func BuildWorkbook(companies []domain.Company) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), companiesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(CompanyHeaders))
	for i, h := range CompanyHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(companiesSheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, record := range CompanyRecords(companies) {
		row := make([]interface{}, len(record))
		for j, v := range record {
			row[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(companiesSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(companiesSheet, 1, 1, style)
	}
	_ = f.SetPanes(companiesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	// Widen a few columns
	_ = f.SetColWidth(companiesSheet, "A", "A", 14) // id
	_ = f.SetColWidth(companiesSheet, "B", "C", 28) // name, domain
	_ = f.SetColWidth(companiesSheet, "G", "G", 48) // status message
	_ = f.SetColWidth(companiesSheet, "H", "H", 22) // created at
	return f, nil
}
