package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidateFileInfo(t *testing.T) {
	validator := NewValidator(1024 * 1024) // 1MB limit

	tempDir := t.TempDir()
	validPDFPath := filepath.Join(tempDir, "valid.pdf")
	largePDFPath := filepath.Join(tempDir, "large.pdf")
	emptyPDFPath := filepath.Join(tempDir, "empty.pdf")
	nonPDFPath := filepath.Join(tempDir, "document.txt")

	require.NoError(t, os.WriteFile(validPDFPath, make([]byte, 1024), 0o644))
	require.NoError(t, os.WriteFile(largePDFPath, make([]byte, 2*1024*1024), 0o644))
	require.NoError(t, os.WriteFile(emptyPDFPath, []byte{}, 0o644))
	require.NoError(t, os.WriteFile(nonPDFPath, []byte("not a pdf"), 0o644))

	tests := []struct {
		name     string
		filePath string
		sentinel error
		errorMsg string
	}{
		{name: "valid PDF file", filePath: validPDFPath},
		{name: "large PDF file", filePath: largePDFPath, sentinel: ErrFileTooLarge},
		{name: "empty PDF file", filePath: emptyPDFPath, sentinel: ErrEmptyFile},
		{name: "non-PDF file", filePath: nonPDFPath, sentinel: ErrNotPDF},
		{name: "directory instead of file", filePath: tempDir, errorMsg: "path is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fileInfo, err := os.Stat(tt.filePath)
			require.NoError(t, err)

			err = validator.ValidateFileInfo(tt.filePath, fileInfo)
			switch {
			case tt.sentinel != nil:
				assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			case tt.errorMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_NoSizeLimit(t *testing.T) {
	validator := NewValidator(0)
	path := filepath.Join(t.TempDir(), "big.pdf")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NoError(t, validator.ValidateFileInfo(path, info))
}

func TestIsPDFName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"題目1111生化.pdf", true},
		{"ANSWER.PDF", true},
		{"notes.txt", false},
		{"pdf", false},
		{"archive.pdf.zip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPDFName(tt.name))
		})
	}
}
