package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"enrichdash/internal/config"
	"enrichdash/internal/jobs"
)

// Source serves company reports and lookup job results
type Source interface {
	DownloadReport(ctx context.Context, companyID string) (*jobs.ReportDownload, error)
	DownloadResults(ctx context.Context, jobID string) (*jobs.ReportDownload, error)
	ReportContent(ctx context.Context, companyID string) (string, error)
}

// Service saves and renders company reports
type Service struct {
	source Source
	paths  *config.Paths
	logger *slog.Logger
}

// NewService creates a report service writing into paths.ReportsDir
func NewService(source Source, paths *config.Paths, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source: source,
		paths:  paths,
		logger: logger.With(slog.String("component", "report")),
	}
}

// Save downloads the report of companyID. An empty dest uses the reports directory;
// the extension follows the served file name or content type.
func (s *Service) Save(ctx context.Context, companyID, dest string) (string, int64, error) {
	download, err := s.source.DownloadReport(ctx, companyID)
	if err != nil {
		return "", 0, err
	}
	defer download.Body.Close()

	if dest == "" {
		dest = s.paths.GetReportPath(companyID, extension(download, ".pdf"))
	}
	n, err := writeFile(download.Body, dest)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write report: %w", err)
	}

	s.logger.InfoContext(ctx, "Report saved",
		slog.String("company_id", companyID),
		slog.String("path", dest),
		slog.Int64("bytes", n))
	return dest, n, nil
}

// SaveResults downloads the results of a finished lookup job. An empty dest
// saves them as results_<job> in the reports directory.
func (s *Service) SaveResults(ctx context.Context, jobID, dest string) (string, int64, error) {
	download, err := s.source.DownloadResults(ctx, jobID)
	if err != nil {
		return "", 0, err
	}
	defer download.Body.Close()

	if dest == "" {
		dest = s.paths.GetResultsPath(jobID, extension(download, ".csv"))
	}
	n, err := writeFile(download.Body, dest)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write results: %w", err)
	}

	s.logger.InfoContext(ctx, "Job results saved",
		slog.String("job_id", jobID),
		slog.String("path", dest),
		slog.Int64("bytes", n))
	return dest, n, nil
}

// writeFile copies body to dest through a temporary file in the same
// directory, so dest never holds a partial download.
func writeFile(body io.Reader, dest string) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("move into place: %w", err)
	}
	return n, nil
}

// Text fetches the inline report of companyID rendered as text
func (s *Service) Text(ctx context.Context, companyID string) (Document, error) {
	html, err := s.source.ReportContent(ctx, companyID)
	if err != nil {
		return Document{}, err
	}
	return Render(html)
}

func extension(d *jobs.ReportDownload, fallback string) string {
	if ext := filepath.Ext(d.FileName); ext != "" {
		return ext
	}
	if mt, _, err := mime.ParseMediaType(d.ContentType); err == nil {
		switch mt {
		case "application/pdf":
			return ".pdf"
		case "text/html":
			return ".html"
		case "text/csv":
			return ".csv"
		case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
			return ".xlsx"
		}
		if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
			return exts[0]
		}
	}
	return fallback
}
