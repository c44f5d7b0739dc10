package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a3tai/mcp-exam-reader/internal/config"
	"github.com/a3tai/mcp-exam-reader/internal/descriptions"
	"github.com/a3tai/mcp-exam-reader/internal/exam"
	"github.com/a3tai/mcp-exam-reader/internal/pdf"
	"github.com/a3tai/mcp-exam-reader/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	processor *exam.Processor
	store     *store.Store // nil when results are not persisted
	mcpServer *server.MCPServer
	logger    *zap.Logger

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance. st may be nil.
func NewServer(cfg *config.Config, processor *exam.Processor, st *store.Store, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		processor: processor,
		store:     st,
		mcpServer: mcpServer,
		logger:    logger,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	extractTool := mcp.NewTool(
		descriptions.ExamExtract,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ExamExtract)),
		mcp.WithString("question_path",
			mcp.Required(),
			mcp.Description("Question booklet PDF, absolute or relative to the exam directory"),
		),
		mcp.WithString("answer_path",
			mcp.Required(),
			mcp.Description("Answer-key booklet PDF, absolute or relative to the exam directory"),
		),
		mcp.WithString("mode",
			mcp.Enum(string(exam.ModeDefault), string(exam.ModeStrictStart)),
			mcp.Description("Question numbering mode; the configured parse_modes rules apply when omitted"),
		),
	)
	s.mcpServer.AddTool(extractTool, s.handleExamExtract)

	answersTool := mcp.NewTool(
		descriptions.ExamAnswers,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ExamAnswers)),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Answer-key booklet PDF"),
		),
	)
	s.mcpServer.AddTool(answersTool, s.handleExamAnswers)

	metadataTool := mcp.NewTool(
		descriptions.ExamMetadata,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ExamMetadata)),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Question booklet PDF"),
		),
	)
	s.mcpServer.AddTool(metadataTool, s.handleExamMetadata)

	findSetsTool := mcp.NewTool(
		descriptions.ExamFindSets,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ExamFindSets)),
		mcp.WithString("directory",
			mcp.Description("Directory to search (defaults to the exam directory)"),
		),
	)
	s.mcpServer.AddTool(findSetsTool, s.handleExamFindSets)
}

// resolvePath makes path absolute against the exam directory and rejects
// anything that escapes it
func (s *Server) resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.config.ExamDirectory, path)
	}
	inside, err := pdf.WithinDirectory(s.config.ExamDirectory, path)
	if err != nil {
		return "", err
	}
	if !inside {
		return "", fmt.Errorf("access denied: %s is outside the exam directory", path)
	}
	return filepath.Clean(path), nil
}

type extractResponse struct {
	Meta        exam.Metadata   `json:"meta"`
	Questions   []exam.Question `json:"questions"`
	Warnings    []string        `json:"warnings,omitempty"`
	OutputFile  string          `json:"output_file,omitempty"`
	RawTextFile string          `json:"raw_text_file,omitempty"`
	Stored      *store.Report   `json:"stored,omitempty"`
	StoreError  string          `json:"store_error,omitempty"`
}

func (s *Server) handleExamExtract(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	questionPath, err := request.RequireString("question_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answerPath, err := request.RequireString("answer_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job := exam.Job{}
	if job.QuestionPath, err = s.resolvePath(questionPath); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if job.AnswerPath, err = s.resolvePath(answerPath); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rel, err := filepath.Rel(s.config.ExamDirectory, filepath.Dir(job.QuestionPath)); err == nil && rel != "." {
		job.ID = filepath.ToSlash(rel)
	}

	args := request.GetArguments()
	if m, ok := args["mode"].(string); ok && m != "" {
		mode, err := exam.ParseMode(m)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		job.Mode = mode
	}

	result, err := s.processor.Process(ctx, job)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp := extractResponse{
		Meta:      result.Meta,
		Questions: result.Questions,
		Warnings:  result.Warnings,
	}
	if resp.Questions == nil {
		resp.Questions = []exam.Question{}
	}

	stem := job.OutputStem()
	if s.config.OutputDirectory != "" {
		if resp.OutputFile, err = exam.WriteResult(s.config.OutputDirectory, stem, result); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if s.config.DumpRawText {
			if resp.RawTextFile, err = exam.WriteRawText(s.config.OutputDirectory, stem, result); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
	}

	if s.store != nil {
		report, err := s.store.Persist(ctx, result)
		resp.Stored = report
		if err != nil {
			s.logger.Warn("Failed to store exam", zap.String("question_pdf", job.QuestionPath), zap.Error(err))
			resp.StoreError = err.Error()
		}
	}

	return jsonResult(resp)
}

type answersResponse struct {
	Answers  map[int][]string `json:"answers"`
	Notes    map[int]string   `json:"notes,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

func (s *Server) handleExamAnswers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path, err = s.resolvePath(path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sheet, err := s.processor.ExtractAnswers(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(answersResponse{Answers: sheet.Answers, Notes: sheet.Notes, Warnings: sheet.Warnings})
}

func (s *Server) handleExamMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path, err = s.resolvePath(path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	meta, err := s.processor.ReadMetadata(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(meta)
}

func (s *Server) handleExamFindSets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	directory := s.config.ExamDirectory // default
	if dir, ok := args["directory"].(string); ok && dir != "" {
		resolved, err := s.resolvePath(dir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		directory = resolved
	}

	sets, err := exam.FindExamSets(directory, s.config.SetOptions(), s.logger)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(sets) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No exam sets found in directory: %s", directory)), nil
	}
	return mcp.NewToolResultText(formatExamSets(directory, sets)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := exam.Encode(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func formatExamSets(directory string, sets []exam.ExamSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d exam set(s) in directory: %s\n\n", len(sets), directory)
	for i, set := range sets {
		fmt.Fprintf(&b, "%d. %s\n", i+1, set.ID)
		if set.Subject != "" {
			fmt.Fprintf(&b, "   Subject: %s\n", set.Subject)
		}
		if set.Session != "" {
			fmt.Fprintf(&b, "   Session: %s\n", set.Session)
		}
		fmt.Fprintf(&b, "   Questions: %s\n", set.QuestionPath)
		fmt.Fprintf(&b, "   Answers: %s\n", set.AnswerPath)
		if i < len(sets)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Run starts the MCP server in the configured mode and returns when ctx is
// cancelled or the transport stops
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.Debug("Starting exam MCP server in stdio mode",
		zap.String("exam_directory", s.config.ExamDirectory))

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	err := stdio.Listen(ctx, s.stdin, s.stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	s.logger.Info("Starting exam MCP server in HTTP mode",
		zap.String("address", addr),
		zap.String("exam_directory", s.config.ExamDirectory))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		s.logger.Info("HTTP server stopped")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve HTTP on %s: %w", addr, err)
		}
		return nil
	}
}
