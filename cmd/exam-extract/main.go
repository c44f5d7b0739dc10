package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/a3tai/mcp-exam-reader/internal/config"
	"github.com/a3tai/mcp-exam-reader/internal/exam"
	"github.com/a3tai/mcp-exam-reader/internal/logging"
	"github.com/a3tai/mcp-exam-reader/internal/store"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var version = "dev" // This will be set by build flags

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  exam-extract [OPTIONS] <question.pdf> <answer.pdf>")
	fmt.Fprintln(w, "  exam-extract [OPTIONS] --batch --dir=<exam root>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Without --output the parsed exam is printed to stdout.")
	fmt.Fprintln(w, "Batch mode pairs 題目/答案 booklets per <subject>/<year_period>/ folder")
	fmt.Fprintln(w, "and needs --output, --db or both.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  exam-extract 生化/111_1/題目.pdf 生化/111_1/答案.pdf")
	fmt.Fprintln(w, "  exam-extract --output=parsed --raw-text q.pdf a.pdf")
	fmt.Fprintln(w, "  exam-extract --batch --dir=exams --output=parsed --db=exams.db")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("exam-extract", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	batch := fs.Bool("batch", false, "Process every exam set found under --dir")
	fs.Usage = func() { printUsage(stderr, fs) }

	cfg, rest, err := config.Load(fs, args)
	switch {
	case errors.Is(err, config.ErrVersionRequested):
		fmt.Fprintf(stdout, "exam-extract %s\n", version)
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	logger, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer cleanup()

	var jobs []exam.Job
	if *batch {
		if len(rest) != 0 {
			fmt.Fprintf(stderr, "Error: --batch takes no file arguments\n\n")
			printUsage(stderr, fs)
			return 2
		}
		if cfg.OutputDirectory == "" && cfg.DatabasePath == "" {
			fmt.Fprintf(stderr, "Error: --batch needs --output or --db\n")
			return 2
		}
		sets, err := exam.FindExamSets(cfg.ExamDirectory, cfg.SetOptions(), logger)
		if err != nil {
			logger.Error("Failed to find exam sets", zap.String("dir", cfg.ExamDirectory), zap.Error(err))
			return 1
		}
		for _, set := range sets {
			jobs = append(jobs, set.Job())
		}
		logger.Info("Found exam sets", zap.Int("count", len(jobs)), zap.String("dir", cfg.ExamDirectory))
	} else {
		if len(rest) != 2 {
			fmt.Fprintf(stderr, "Error: a question PDF and an answer PDF are required\n\n")
			printUsage(stderr, fs)
			return 2
		}
		jobs = []exam.Job{{QuestionPath: rest[0], AnswerPath: rest[1]}}
	}

	var st *store.Store
	if cfg.DatabasePath != "" {
		st, err = store.Open(cfg.DatabasePath, logger)
		if err != nil {
			logger.Error("Failed to open database", zap.String("path", cfg.DatabasePath), zap.Error(err))
			return 1
		}
		defer st.Close()
	}

	processor := exam.NewProcessor(cfg.ProcessorOptions(), logger)
	report := processor.Batch(ctx, jobs, newSink(ctx, cfg, st, stdout, logger))

	if *batch {
		fmt.Fprintf(stderr, "Processed %d of %d exam(s)\n", report.Processed, len(jobs))
	}
	for _, failure := range report.Failed {
		fmt.Fprintf(stderr, "FAILED %s: %v\n", failure.Job.QuestionPath, failure.Err)
	}
	if len(report.Failed) > 0 {
		return 1
	}
	return 0
}

// newSink writes each processed exam to the output directory (or stdout
// when none is configured) and into the database when one is open.
// Incomplete metadata only skips the database write.
func newSink(ctx context.Context, cfg *config.Config, st *store.Store, stdout io.Writer, logger *zap.Logger) exam.Sink {
	return func(job exam.Job, result *exam.Result) error {
		stem := job.OutputStem()

		if cfg.OutputDirectory == "" {
			data, err := exam.Encode(map[string]any{"meta": result.Meta, "questions": nonNil(result.Questions)})
			if err != nil {
				return err
			}
			if _, err := stdout.Write(append(data, '\n')); err != nil {
				return err
			}
		} else {
			path, err := exam.WriteResult(cfg.OutputDirectory, stem, result)
			if err != nil {
				return err
			}
			logger.Info("Wrote parsed exam", zap.String("path", path), zap.Int("questions", len(result.Questions)))
			if cfg.DumpRawText {
				if path, err = exam.WriteRawText(cfg.OutputDirectory, stem, result); err != nil {
					return err
				}
				logger.Debug("Wrote raw text", zap.String("path", path))
			}
		}

		if st == nil {
			return nil
		}
		report, err := st.Persist(ctx, result)
		if errors.Is(err, store.ErrIncompleteMetadata) {
			logger.Warn("Exam not stored", zap.String("question_pdf", job.QuestionPath), zap.Error(err))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to store exam: %w", err)
		}
		for _, failed := range report.Failed {
			logger.Warn("Question not stored",
				zap.String("test_id", report.TestID),
				zap.Int("question", failed.Number),
				zap.String("error", failed.Error))
		}
		logger.Info("Stored exam",
			zap.String("test_id", report.TestID),
			zap.Int("inserted", report.Inserted),
			zap.Int("failed", len(report.Failed)))
		return nil
	}
}

func nonNil(qs []exam.Question) []exam.Question {
	if qs == nil {
		return []exam.Question{}
	}
	return qs
}
