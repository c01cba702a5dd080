// Package exporter writes the companies of a job to CSV or XLSX files.
//
// CSVWriter is the low-level writer with UTF-8 BOM support for Excel.
// CompanyExporter turns job companies into rows and writes them in either
// format under the configured exports directory.
//
// Example usage:
//
//	exp := exporter.NewCompanyExporter(paths)
//	path, err := exp.Export("job-1", exporter.FormatXLSX, companies)
package exporter
