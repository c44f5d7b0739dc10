package exam

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a3tai/mcp-exam-reader/internal/pdf"
	"go.uber.org/zap"
)

// Default booklet filename keywords
const (
	DefaultQuestionKeyword = "題目"
	DefaultAnswerKeyword   = "答案"
)

// ExamSet is a question booklet and its answer booklet found in one folder,
// usually <root>/<subject>/<year_period>/
type ExamSet struct {
	ID           string `json:"id"` // folder relative to the root, slash separated
	Subject      string `json:"subject"`
	Session      string `json:"session"`
	QuestionPath string `json:"question_path"`
	AnswerPath   string `json:"answer_path"`
}

// Job returns the processing job for the set
func (s ExamSet) Job() Job {
	return Job{ID: s.ID, QuestionPath: s.QuestionPath, AnswerPath: s.AnswerPath}
}

// SetOptions controls booklet discovery
type SetOptions struct {
	QuestionKeyword string
	AnswerKeyword   string
	MaxFileSize     int64
}

// FindExamSets walks root and pairs booklets per folder by filename keyword.
// Folders with a missing half are skipped with a warning; when a folder has
// several candidates the first in name order is used.
func FindExamSets(root string, opts SetOptions, logger *zap.Logger) ([]ExamSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QuestionKeyword == "" {
		opts.QuestionKeyword = DefaultQuestionKeyword
	}
	if opts.AnswerKeyword == "" {
		opts.AnswerKeyword = DefaultAnswerKeyword
	}

	files, err := pdf.NewSearch(opts.MaxFileSize).FindPDFs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	byDir := make(map[string][]pdf.FileInfo)
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(f.Path)
		if _, ok := byDir[dir]; !ok {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], f)
	}
	sort.Strings(dirs)

	var sets []ExamSet
	for _, dir := range dirs {
		var question, answer string
		for _, f := range byDir[dir] {
			switch {
			case strings.Contains(f.Name, opts.QuestionKeyword):
				if question != "" {
					logger.Warn("Multiple question booklets in folder, keeping the first",
						zap.String("dir", dir), zap.String("kept", filepath.Base(question)), zap.String("ignored", f.Name))
					continue
				}
				question = f.Path
			case strings.Contains(f.Name, opts.AnswerKeyword):
				if answer != "" {
					logger.Warn("Multiple answer booklets in folder, keeping the first",
						zap.String("dir", dir), zap.String("kept", filepath.Base(answer)), zap.String("ignored", f.Name))
					continue
				}
				answer = f.Path
			}
		}

		if question == "" || answer == "" {
			logger.Warn("Folder lacks a question or answer booklet",
				zap.String("dir", dir),
				zap.Bool("has_question", question != ""),
				zap.Bool("has_answer", answer != ""))
			continue
		}

		rel, err := filepath.Rel(absRoot, dir)
		if err != nil {
			rel = filepath.Base(dir)
		}
		rel = filepath.ToSlash(rel)
		set := ExamSet{
			ID:           rel,
			Session:      filepath.Base(dir),
			QuestionPath: question,
			AnswerPath:   answer,
		}
		if parent := filepath.Dir(dir); parent != absRoot && strings.HasPrefix(parent, absRoot) {
			set.Subject = filepath.Base(parent)
		}
		if rel == "." {
			set.ID = filepath.Base(dir)
		}
		sets = append(sets, set)
	}

	return sets, nil
}
