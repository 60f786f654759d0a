// Package export renders a property version as a deal sheet in PDF or XLSX.
package export

import "errors"

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatPDF, "":
		return FormatPDF, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

type Request struct {
	PropertyID string
	Version    string
	Format     Format
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates no headless Chrome binary could be found.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
