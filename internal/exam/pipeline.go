package exam

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/a3tai/mcp-exam-reader/internal/pdf"
	"go.uber.org/zap"
)

// Source is a paged document. *pdf.Document satisfies it.
type Source interface {
	PageCount() int
	Page(n int) (*pdf.Page, error)
	Close() error
}

// Opener opens a booklet
type Opener func(path string) (Source, error)

// Options configures a Processor
type Options struct {
	PDF         pdf.Options
	Grid        GridOptions
	MaxImageGap float64
	ModeRules   ModeRules
	OutputDir   string // image store root; images are skipped when empty
}

// DefaultOptions returns options with default thresholds and no output
// directory
func DefaultOptions() Options {
	return Options{
		PDF:         pdf.DefaultOptions(),
		Grid:        DefaultGridOptions(),
		MaxImageGap: DefaultMaxImageGap,
	}
}

// Job names the two booklets of one exam
type Job struct {
	ID           string // used for mode lookup; defaults to the question file stem
	QuestionPath string
	AnswerPath   string
	Mode         Mode // overrides ModeRules when set
}

// OutputStem names the files written for the job. Jobs found by
// FindExamSets carry their folder in ID, which keeps booklets that share a
// file name apart.
func (j Job) OutputStem() string {
	stem := Stem(j.QuestionPath)
	if j.ID == "" || j.ID == stem {
		return stem
	}
	return j.ID + "_" + stem
}

// Processor runs the extraction stages for one exam at a time
type Processor struct {
	opts   Options
	open   Opener
	logger *zap.Logger
}

// NewProcessor creates a Processor that reads booklets with internal/pdf
func NewProcessor(opts Options, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{opts: opts, logger: logger}
	p.open = func(path string) (Source, error) {
		pdfOpts := p.opts.PDF
		if p.opts.OutputDir == "" {
			pdfOpts.Images = false
		}
		doc, err := pdf.Open(path, pdfOpts)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
	return p
}

// WithOpener replaces the booklet opener
func (p *Processor) WithOpener(open Opener) *Processor {
	p.open = open
	return p
}

// Stem returns the file name of path without its extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Process extracts one exam. Only failures to open or read the booklets
// are returned as errors; everything else is logged and recorded in
// Result.Warnings.
func (p *Processor) Process(ctx context.Context, job Job) (*Result, error) {
	stem := job.OutputStem()
	id := job.ID
	if id == "" {
		id = Stem(job.QuestionPath)
	}
	mode := job.Mode
	if mode == "" {
		mode = p.opts.ModeRules.Resolve(id)
	}
	logger := p.logger.With(zap.String("exam", id))
	logger.Info("Processing exam",
		zap.String("question_pdf", job.QuestionPath),
		zap.String("answer_pdf", job.AnswerPath),
		zap.String("mode", string(mode)))

	pages, warnings, err := p.readPages(ctx, job.QuestionPath, logger)
	if err != nil {
		return nil, err
	}

	result := &Result{Warnings: warnings}
	result.QuestionPages = pageTexts(pages)
	result.Meta = ExtractMetadata(pages[0].Text, filepath.Base(job.QuestionPath))
	logMetadata(logger, result.Meta)

	segmenter := NewSegmenter(mode, logger)
	for _, page := range pages {
		segmenter.SetPage(page.Number)
		for _, line := range strings.Split(page.Text, "\n") {
			segmenter.Feed(line)
		}
	}
	questions := segmenter.Finish()
	logger.Info("Segmented questions", zap.Int("count", len(questions)))
	result.Warnings = append(result.Warnings, CheckNumbering(questions, result.Meta.QuestionCount, logger)...)

	if p.opts.OutputDir != "" {
		store := NewImageStore(p.opts.OutputDir, logger)
		associator := NewAssociator(store, stem, mode, p.opts.MaxImageGap, logger)
		attached := 0
		for _, page := range pages {
			if err := ctx.Err(); err != nil {
				return nil, &Error{Op: "associate_images", Path: job.QuestionPath, Err: err}
			}
			attached += associator.Attach(page, questions)
		}
		logger.Info("Associated images", zap.Int("questions_with_image", attached))
	}

	sheet, err := p.ExtractAnswers(ctx, job.AnswerPath)
	if err != nil {
		return nil, err
	}
	result.AnswerPages = sheet.Pages
	result.Warnings = append(result.Warnings, sheet.Warnings...)

	result.Questions = Combine(questions, sheet.Answers, sheet.Notes, logger)
	unresolved := 0
	for _, q := range result.Questions {
		if len(q.AnswerKey) == 1 && q.AnswerKey[0] == AnswerUnresolved {
			unresolved++
		}
	}
	if unresolved > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d questions have unresolved answers", unresolved))
	}
	logger.Info("Exam processed",
		zap.Int("questions", len(result.Questions)),
		zap.Int("unresolved", unresolved),
		zap.Int("warnings", len(result.Warnings)))

	return result, nil
}

// ExtractAnswers reads an answer booklet: the answer grid of every page,
// then the errata block, whose answers override the grid
func (p *Processor) ExtractAnswers(ctx context.Context, path string) (*AnswerSheet, error) {
	logger := p.logger.With(zap.String("answer_pdf", path))
	pages, warnings, err := p.readPages(ctx, path, logger)
	if err != nil {
		return nil, err
	}

	words := make([][]pdf.Word, len(pages))
	for i, page := range pages {
		words[i] = page.Words
	}
	answers := NewGridReader(p.opts.Grid, logger).Extract(words)
	logger.Info("Read answer grid", zap.Int("answers", len(answers)))

	texts := pageTexts(pages)
	errata := ParseErrata(strings.Join(texts, "\n"))
	for n, key := range errata.Answers {
		answers[n] = key
	}
	if len(errata.Entries) > 0 {
		logger.Info("Applied errata",
			zap.Int("notices", len(errata.Entries)),
			zap.Int("answer_overrides", len(errata.Answers)),
			zap.Int("notes", len(errata.Notes)))
	}

	return &AnswerSheet{Answers: answers, Notes: errata.Notes, Pages: texts, Warnings: warnings}, nil
}

// ReadMetadata reads the header of a question booklet from its first page
func (p *Processor) ReadMetadata(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, &Error{Op: "read", Path: path, Err: err}
	}
	src, err := p.open(path)
	if err != nil {
		return Metadata{}, &Error{Op: "open", Path: path, Err: err}
	}
	defer src.Close()

	if src.PageCount() == 0 {
		return Metadata{}, &Error{Op: "read", Path: path, Err: ErrNoPages}
	}
	page, err := src.Page(1)
	if err != nil {
		return Metadata{}, &Error{Op: "read", Path: path, Err: err}
	}
	meta := ExtractMetadata(page.Text, filepath.Base(path))
	logMetadata(p.logger.With(zap.String("question_pdf", path)), meta)
	return meta, nil
}

// readPages opens path and reads every page. Pages that fail are replaced
// by empty pages and reported as warnings.
func (p *Processor) readPages(ctx context.Context, path string, logger *zap.Logger) ([]*pdf.Page, []string, error) {
	src, err := p.open(path)
	if err != nil {
		return nil, nil, &Error{Op: "open", Path: path, Err: err}
	}
	defer src.Close()

	count := src.PageCount()
	if count == 0 {
		return nil, nil, &Error{Op: "read", Path: path, Err: ErrNoPages}
	}

	var warnings []string
	pages := make([]*pdf.Page, 0, count)
	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, &Error{Op: "read", Path: path, Err: err}
		}
		page, err := src.Page(n)
		if err != nil {
			msg := fmt.Sprintf("page %d of %s could not be read: %v", n, filepath.Base(path), err)
			logger.Warn("Failed to read page", zap.Int("page", n), zap.Error(err))
			warnings = append(warnings, msg)
			page = &pdf.Page{Number: n}
		}
		for _, issue := range page.Issues {
			logger.Warn("Page extraction issue", zap.Int("page", n), zap.String("issue", issue))
		}
		pages = append(pages, page)
	}
	return pages, warnings, nil
}

func pageTexts(pages []*pdf.Page) []string {
	texts := make([]string, len(pages))
	for i, page := range pages {
		texts[i] = page.Text
	}
	return texts
}

func logMetadata(logger *zap.Logger, meta Metadata) {
	var fields []zap.Field
	add := func(name string, s *string) {
		if s == nil {
			logger.Debug("Metadata field not found", zap.String("field", name))
			return
		}
		fields = append(fields, zap.String(name, *s))
	}
	add("exam_name", meta.ExamName)
	add("subject_name", meta.SubjectName)
	add("subject_code", meta.SubjectCode)
	add("subject_type", meta.SubjectType)
	if meta.Year != nil && meta.Period != nil {
		fields = append(fields, zap.Int("year", *meta.Year), zap.Int("period", *meta.Period))
	} else {
		logger.Debug("Metadata year or period not found")
	}
	if meta.QuestionCount != nil {
		fields = append(fields, zap.Int("question_count", *meta.QuestionCount))
	}
	logger.Debug("Extracted metadata", fields...)
}

// BatchFailure records one exam that could not be processed
type BatchFailure struct {
	Job Job
	Err error
}

// BatchReport summarizes a Batch run
type BatchReport struct {
	Processed int
	Failed    []BatchFailure
}

// Sink receives each processed exam, e.g. to write JSON or persist it
type Sink func(job Job, result *Result) error

// Batch processes jobs one after another. A failing exam is recorded and
// the batch continues; cancellation stops it.
func (p *Processor) Batch(ctx context.Context, jobs []Job, sink Sink) BatchReport {
	var report BatchReport
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			for _, skipped := range jobs[i:] {
				report.Failed = append(report.Failed, BatchFailure{Job: skipped, Err: err})
			}
			break
		}

		result, err := p.Process(ctx, job)
		if err == nil && sink != nil {
			err = sink(job, result)
		}
		if err != nil {
			p.logger.Error("Exam failed", zap.String("question_pdf", job.QuestionPath), zap.Error(err))
			report.Failed = append(report.Failed, BatchFailure{Job: job, Err: err})
			continue
		}
		report.Processed++
	}
	p.logger.Info("Batch complete",
		zap.Int("processed", report.Processed),
		zap.Int("failed", len(report.Failed)))
	return report
}
