package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/a3tai/mcp-exam-reader/internal/exam"
	"github.com/a3tai/mcp-exam-reader/internal/pdf"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix prefixes every environment variable, e.g. MCP_EXAM_DIR
	EnvPrefix = "MCP_EXAM"
)

// ErrVersionRequested is returned by Load when --version is on the command line
var ErrVersionRequested = errors.New("version requested")

// Config holds all configuration for the exam reader
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Exam configuration
	ExamDirectory   string // root of <subject>/<year_period>/ folders
	OutputDirectory string // parsed JSON and images; empty disables file output
	DatabasePath    string // sqlite file; empty disables persistence
	DumpRawText     bool
	QuestionKeyword string
	AnswerKeyword   string

	// Extraction thresholds
	RowTolerance      float64
	MaxRowGap         float64
	MaxColumnDistance float64
	MaxImageGap       float64
	ParseModes        exam.ModeRules

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	LogFile     string
	MaxFileSize int64 // Maximum PDF file size in bytes
	ConfigFile  string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}
	grid := exam.DefaultGridOptions()

	return &Config{
		Mode:              ModeStdio, // Default to stdio mode for MCP compatibility
		Host:              DefaultHost,
		Port:              DefaultPort,
		ExamDirectory:     currentDir,
		QuestionKeyword:   exam.DefaultQuestionKeyword,
		AnswerKeyword:     exam.DefaultAnswerKeyword,
		RowTolerance:      grid.RowTolerance,
		MaxRowGap:         grid.MaxRowGap,
		MaxColumnDistance: grid.MaxColumnDistance,
		MaxImageGap:       exam.DefaultMaxImageGap,
		Version:           "1.0.0",
		ServerName:        "mcp-exam-reader",
		LogLevel:          DefaultLogLevel,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// LoadFromFlags parses the process command line and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg, _, err := Load(pflag.CommandLine, os.Args[1:])
	return cfg, err
}

// Load defines the configuration flags on fs, parses args and merges flags,
// MCP_EXAM_* environment variables and the optional --config file, in that
// order of precedence. It returns the positional arguments left over.
// Callers may define extra flags on fs before calling Load.
func Load(fs *pflag.FlagSet, args []string) (*Config, []string, error) {
	cfg := DefaultConfig()
	v := viper.New()

	setupViperEnvironment(v, cfg)
	defineCommandLineFlags(fs, cfg)
	bindFlagsToViper(v, fs)
	if fs == pflag.CommandLine {
		setupUsageMessage(fs)
	}

	if err := checkVersionFlag(args); err != nil {
		return nil, nil, err
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		cfg.ConfigFile = file
	}

	if err := populateConfigFromViper(v, cfg); err != nil {
		return nil, nil, err
	}

	for _, dir := range []*string{&cfg.ExamDirectory, &cfg.OutputDirectory} {
		if *dir == "" {
			continue
		}
		if abs, err := filepath.Abs(*dir); err == nil {
			*dir = abs
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, fs.Args(), nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("dir", cfg.ExamDirectory)
	v.SetDefault("output_dir", cfg.OutputDirectory)
	v.SetDefault("database", cfg.DatabasePath)
	v.SetDefault("raw_text", cfg.DumpRawText)
	v.SetDefault("question_keyword", cfg.QuestionKeyword)
	v.SetDefault("answer_keyword", cfg.AnswerKeyword)
	v.SetDefault("row_tolerance", cfg.RowTolerance)
	v.SetDefault("max_row_gap", cfg.MaxRowGap)
	v.SetDefault("max_column_distance", cfg.MaxColumnDistance)
	v.SetDefault("max_image_gap", cfg.MaxImageGap)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("max_file_size", cfg.MaxFileSize)
}

// flag name to viper key
var flagKeys = map[string]string{
	"mode":                "mode",
	"host":                "host",
	"port":                "port",
	"dir":                 "dir",
	"output":              "output_dir",
	"db":                  "database",
	"raw-text":            "raw_text",
	"question-keyword":    "question_keyword",
	"answer-keyword":      "answer_keyword",
	"row-tolerance":       "row_tolerance",
	"max-row-gap":         "max_row_gap",
	"max-column-distance": "max_column_distance",
	"max-image-gap":       "max_image_gap",
	"log-level":           "log_level",
	"log-file":            "log_file",
	"max-file-size":       "max_file_size",
	"config":              "config",
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	fs.String("host", cfg.Host, "Server host address (server mode only)")
	fs.Int("port", cfg.Port, "Server port (server mode only)")
	fs.String("dir", cfg.ExamDirectory, "Root directory of the exam booklets")
	fs.String("output", cfg.OutputDirectory, "Directory for parsed JSON and extracted images")
	fs.String("db", cfg.DatabasePath, "SQLite database to store processed exams in")
	fs.Bool("raw-text", cfg.DumpRawText, "Also write the page text of both booklets")
	fs.String("question-keyword", cfg.QuestionKeyword, "Filename keyword of question booklets")
	fs.String("answer-keyword", cfg.AnswerKeyword, "Filename keyword of answer booklets")
	fs.Float64("row-tolerance", cfg.RowTolerance, "Answer grid: vertical distance for words to share a row")
	fs.Float64("max-row-gap", cfg.MaxRowGap, "Answer grid: max distance from a number row to its answer row")
	fs.Float64("max-column-distance", cfg.MaxColumnDistance, "Answer grid: max horizontal offset of an answer")
	fs.Float64("max-image-gap", cfg.MaxImageGap, "Max vertical gap between a question stem and its figure")
	fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-file", cfg.LogFile, "Also write JSON logs to this file (rotated)")
	fs.Int64("max-file-size", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	fs.String("config", "", "Configuration file (YAML, JSON or TOML)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage(fs *pflag.FlagSet) {
	fs.Usage = func() {
		printUsage(os.Stderr, fs)
	}
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage of %s:\n", os.Args[0])
	fmt.Fprintf(w, "\nMCP Exam Reader - A Model Context Protocol server for exam booklet PDFs\n\n")
	fmt.Fprintf(w, "Options:\n")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  %s --dir=/path/to/exams                    # stdio mode\n", os.Args[0])
	fmt.Fprintf(w, "  %s --dir=/path/to/exams --output=./parsed  # also write JSON and images\n", os.Args[0])
	fmt.Fprintf(w, "  %s --config=exam-reader.yaml               # thresholds and parse modes from file\n", os.Args[0])
	fmt.Fprintf(w, "\nEnvironment Variables:\n")
	fmt.Fprintf(w, "  %s_DIR            Exam directory\n", EnvPrefix)
	fmt.Fprintf(w, "  %s_OUTPUT_DIR     Output directory\n", EnvPrefix)
	fmt.Fprintf(w, "  %s_DATABASE       SQLite database\n", EnvPrefix)
	fmt.Fprintf(w, "  %s_LOG_LEVEL      Log level\n", EnvPrefix)
	fmt.Fprintf(w, "  %s_MAX_FILE_SIZE  Maximum file size\n", EnvPrefix)
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag(args []string) error {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return ErrVersionRequested
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(v *viper.Viper, cfg *Config) error {
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.ExamDirectory = v.GetString("dir")
	cfg.OutputDirectory = v.GetString("output_dir")
	cfg.DatabasePath = v.GetString("database")
	cfg.DumpRawText = v.GetBool("raw_text")
	cfg.QuestionKeyword = v.GetString("question_keyword")
	cfg.AnswerKeyword = v.GetString("answer_keyword")
	cfg.RowTolerance = v.GetFloat64("row_tolerance")
	cfg.MaxRowGap = v.GetFloat64("max_row_gap")
	cfg.MaxColumnDistance = v.GetFloat64("max_column_distance")
	cfg.MaxImageGap = v.GetFloat64("max_image_gap")
	cfg.LogLevel = v.GetString("log_level")
	cfg.LogFile = v.GetString("log_file")
	cfg.MaxFileSize = v.GetInt64("max_file_size")

	if v.IsSet("parse_modes") {
		if err := v.UnmarshalKey("parse_modes", &cfg.ParseModes); err != nil {
			return fmt.Errorf("invalid parse_modes: %w", err)
		}
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.ExamDirectory == "" {
		return errors.New("exam directory cannot be empty")
	}
	if err := ensureDir(c.ExamDirectory); err != nil {
		return fmt.Errorf("exam directory: %w", err)
	}
	if c.OutputDirectory != "" {
		if err := ensureDir(c.OutputDirectory); err != nil {
			return fmt.Errorf("output directory: %w", err)
		}
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.QuestionKeyword == "" || c.AnswerKeyword == "" {
		return errors.New("booklet keywords cannot be empty")
	}
	if c.QuestionKeyword == c.AnswerKeyword {
		return errors.New("question and answer keywords must differ")
	}

	thresholds := []struct {
		name  string
		value float64
	}{
		{"row_tolerance", c.RowTolerance},
		{"max_row_gap", c.MaxRowGap},
		{"max_column_distance", c.MaxColumnDistance},
		{"max_image_gap", c.MaxImageGap},
	}
	for _, th := range thresholds {
		if th.value <= 0 {
			return fmt.Errorf("%s must be positive", th.name)
		}
	}

	return c.ParseModes.Validate()
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// ProcessorOptions returns the pipeline options for this configuration
func (c *Config) ProcessorOptions() exam.Options {
	opts := exam.DefaultOptions()
	opts.PDF.MaxFileSize = c.MaxFileSize
	opts.Grid = exam.GridOptions{
		RowTolerance:      c.RowTolerance,
		MaxRowGap:         c.MaxRowGap,
		MaxColumnDistance: c.MaxColumnDistance,
	}
	opts.MaxImageGap = c.MaxImageGap
	opts.ModeRules = c.ParseModes
	opts.OutputDir = c.OutputDirectory
	return opts
}

// SetOptions returns the booklet discovery options for this configuration
func (c *Config) SetOptions() exam.SetOptions {
	return exam.SetOptions{
		QuestionKeyword: c.QuestionKeyword,
		AnswerKeyword:   c.AnswerKeyword,
		MaxFileSize:     c.MaxFileSize,
	}
}

// PDFOptions returns the document options for this configuration
func (c *Config) PDFOptions() pdf.Options {
	opts := pdf.DefaultOptions()
	opts.MaxFileSize = c.MaxFileSize
	return opts
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, ExamDirectory: %s, OutputDirectory: %s, "+
		"DatabasePath: %s, LogLevel: %s, MaxFileSize: %d, ParseModes: %d}",
		c.Mode, c.Host, c.Port, c.ExamDirectory, c.OutputDirectory,
		c.DatabasePath, c.LogLevel, c.MaxFileSize, len(c.ParseModes))
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
