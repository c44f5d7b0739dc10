package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Search handles PDF discovery under a root directory
type Search struct {
	validator *Validator
}

// NewSearch creates a new PDF search handler with the specified constraints
func NewSearch(maxFileSize int64) *Search {
	return &Search{
		validator: NewValidator(maxFileSize),
	}
}

// FindPDFs walks directory and returns every valid PDF below it, sorted by path.
// Hidden directories are skipped. Files failing the cheap validation are
// skipped rather than reported.
func (s *Search) FindPDFs(directory string) ([]FileInfo, error) {
	if directory == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	if _, err := os.Stat(directory); os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", directory)
	}

	absDirectory, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory path: %w", err)
	}

	var pdfFiles []FileInfo
	err = filepath.WalkDir(absDirectory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Continue walking even if we encounter an error with a specific file
			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != absDirectory {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsPDFName(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if err := s.validator.ValidateFileInfo(path, info); err != nil {
			return nil
		}

		pdfFiles = append(pdfFiles, FileInfo{
			Path:         path,
			Name:         info.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	sort.Slice(pdfFiles, func(i, j int) bool { return pdfFiles[i].Path < pdfFiles[j].Path })
	return pdfFiles, nil
}

// WithinDirectory reports whether path resolves to a location inside
// directory. Symlinks are resolved on both sides when they exist.
func WithinDirectory(directory, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	absDir, err := filepath.Abs(directory)
	if err != nil {
		return false, fmt.Errorf("failed to resolve directory: %w", err)
	}

	realPath := filepath.Clean(absPath)
	if resolved, err := filepath.EvalSymlinks(realPath); err == nil {
		realPath = resolved
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to evaluate symlinks: %w", err)
	}

	realDir := filepath.Clean(absDir)
	if resolved, err := filepath.EvalSymlinks(realDir); err == nil {
		realDir = resolved
	}

	if realPath == realDir {
		return true, nil
	}
	if !strings.HasSuffix(realDir, string(filepath.Separator)) {
		realDir += string(filepath.Separator)
	}
	return strings.HasPrefix(realPath, realDir), nil
}
