package pdf

import (
	"fmt"
	"os"
	"strings"
)

// Validator handles PDF file validation operations
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ValidateFileInfo performs basic validation on file info without opening the PDF
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if !IsPDFName(filePath) {
		return fmt.Errorf("%w: %s", ErrNotPDF, filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, filePath)
	}

	if v.maxFileSize > 0 && fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("%w: %d bytes (max: %d bytes)",
			ErrFileTooLarge, fileInfo.Size(), v.maxFileSize)
	}

	return nil
}

// IsPDFName checks if a file has a PDF extension
func IsPDFName(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}
