package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains the directories the CLI writes into
type Paths struct {
	DataDir    string
	ReportsDir string
	ExportsDir string
}

// GetPaths resolves the output directories under the configured data directory.
// A relative data directory is taken from the working directory.
func (c *Config) GetPaths() (*Paths, error) {
	dataDir := c.Paths.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory %s: %w", dataDir, err)
	}
	return &Paths{
		DataDir:    abs,
		ReportsDir: filepath.Join(abs, DefaultReportsDir),
		ExportsDir: filepath.Join(abs, DefaultExportsDir),
	}, nil
}

// EnsureDirectories creates all output directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.ReportsDir, p.ExportsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// GetReportPath returns where the report of a company is saved
func (p *Paths) GetReportPath(companyID, ext string) string {
	if ext == "" {
		ext = ".pdf"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(p.ReportsDir, SafeFileName(companyID)+ext)
}

// GetResultsPath returns where the downloaded results of a lookup job are saved
func (p *Paths) GetResultsPath(jobID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(p.ReportsDir, "results_"+SafeFileName(jobID)+ext)
}

// GetExportPath returns where a job export in the given format is saved
func (p *Paths) GetExportPath(jobID, format string) string {
	return filepath.Join(p.ExportsDir, fmt.Sprintf("companies_%s.%s", SafeFileName(jobID), format))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SafeFileName replaces characters that are unsafe in file names
func SafeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
