// Package importer turns uploaded company lists into lookup job requests.
//
// CSV and XLSX files are accepted. The first non-blank row is a header and is
// dropped; blank rows are skipped. VMS checks need a name and a domain on every
// row, while company lookups read only the first column.
package importer
