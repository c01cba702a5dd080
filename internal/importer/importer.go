package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"enrichdash/pkg/contracts/domain"
)

// Format is the encoding of an uploaded company list
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	// ErrNoCompanies is returned when a file holds no data rows
	ErrNoCompanies = errors.New("file contains no companies")

	// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrUnsupportedJobType is returned for job types that cannot be created from a file
	ErrUnsupportedJobType = errors.New("unsupported job type")
)

// RowError reports an invalid data row. Row is the 1-based record number.
type RowError struct {
	Row     int
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// FormatFromName picks the format from a file extension
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// ReadFile parses the company list at path for the given job type
func ReadFile(path string, jobType domain.JobType) ([]domain.CompanyInput, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return Parse(f, format, jobType)
}

// Parse reads a company list in the given format
func Parse(r io.Reader, format Format, jobType domain.JobType) ([]domain.CompanyInput, error) {
	if jobType != domain.JobTypeCompanyLookup && jobType != domain.JobTypeVMSCheck {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedJobType, jobType)
	}

	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatXLSX:
		rows, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	companies, err := toCompanies(rows, jobType)
	if err != nil {
		return nil, err
	}

	slog.Debug("Parsed company list",
		slog.String("format", string(format)),
		slog.String("job_type", string(jobType)),
		slog.Int("companies", len(companies)))
	return companies, nil
}

// numberedRow keeps the original line number for error messages
type numberedRow struct {
	line   int
	fields []string
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	// Excel writes a UTF-8 BOM in front of the header
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoCompanies
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func toCompanies(rows [][]string, jobType domain.JobType) ([]domain.CompanyInput, error) {
	var data []numberedRow
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		data = append(data, numberedRow{line: i + 1, fields: row})
	}
	if len(data) <= 1 {
		return nil, ErrNoCompanies
	}
	data = data[1:] // header

	companies := make([]domain.CompanyInput, 0, len(data))
	for _, row := range data {
		name := field(row.fields, 0)
		if name == "" {
			return nil, &RowError{Row: row.line, Message: "company name is required"}
		}

		if jobType == domain.JobTypeCompanyLookup {
			companies = append(companies, domain.CompanyInput{Name: name})
			continue
		}

		companyDomain := field(row.fields, 1)
		if companyDomain == "" {
			return nil, &RowError{Row: row.line, Message: "each row must contain both company name and domain"}
		}
		companies = append(companies, domain.CompanyInput{Name: name, Domain: &companyDomain})
	}
	return companies, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// NewLookupJobRequest builds the create request for a parsed company list
func NewLookupJobRequest(name string, jobType domain.JobType, companies []domain.CompanyInput) domain.CreateLookupJobRequest {
	return domain.CreateLookupJobRequest{
		Companies: companies,
		JobType:   jobType,
		Name:      strings.TrimSpace(name),
	}
}
