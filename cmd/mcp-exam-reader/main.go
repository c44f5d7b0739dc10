package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/mcp-exam-reader/internal/config"
	"github.com/a3tai/mcp-exam-reader/internal/exam"
	"github.com/a3tai/mcp-exam-reader/internal/logging"
	"github.com/a3tai/mcp-exam-reader/internal/mcp"
	"github.com/a3tai/mcp-exam-reader/internal/store"
	"go.uber.org/zap"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// loggingOptions keeps the console quiet in stdio mode unless debugging;
// the MCP client owns stdout and usually shows stderr to the user
func loggingOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		Quiet: cfg.IsStdioMode() && !cfg.IsDebug(),
	}
}

// runServerMode handles server mode execution with signal handling
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server, logger *zap.Logger) error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		logger.Info("Received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()
		if err := <-serverErrCh; err != nil {
			return fmt.Errorf("server shutdown with error: %w", err)
		}
	case err := <-serverErrCh:
		if err != nil {
			return err
		}
	}

	logger.Info("Server stopped successfully")
	return nil
}

// runStdioMode handles stdio mode execution. The parent process controls
// our lifecycle: the server returns when stdin is closed.
func runStdioMode(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx)
}

func run() int {
	cfg, err := config.LoadFromFlags()
	if errors.Is(err, config.ErrVersionRequested) {
		printVersion()
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger, cleanup, err := logging.New(loggingOptions(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 1
	}
	defer cleanup()
	logger.Debug("Starting with configuration", zap.String("config", cfg.String()))

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
	server, err := mcp.NewServer(cfg, processor, st, logger)
	if err != nil {
		logger.Error("Failed to create MCP server", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsServerMode() {
		err = runServerMode(ctx, cancel, server, logger)
	} else {
		err = runStdioMode(ctx, server)
	}
	if err != nil {
		logger.Error("Server error", zap.Error(err))
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("MCP Exam Reader\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
