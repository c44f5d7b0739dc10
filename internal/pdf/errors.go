package pdf

import (
	"errors"
	"fmt"
)

// Library names used in Error.Library
const (
	LibraryLedongthuc = "ledongthuc"
	LibraryPDFCPU     = "pdfcpu"
)

// Error reports a failure inside one of the underlying PDF libraries
type Error struct {
	Library string `json:"library"`
	Op      string `json:"operation"`
	Err     error  `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("PDF %s library error in %s: %v", e.Library, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common error variables
var (
	ErrDocumentClosed = errors.New("document is closed")
	ErrInvalidPage    = errors.New("invalid page number")
	ErrNotPDF         = errors.New("file is not a PDF")
	ErrEmptyFile      = errors.New("file is empty")
	ErrFileTooLarge   = errors.New("file too large")
)
