package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a3tai/mcp-exam-reader/internal/config"
	"github.com/a3tai/mcp-exam-reader/internal/exam"
	"github.com/a3tai/mcp-exam-reader/internal/pdf"
	"github.com/a3tai/mcp-exam-reader/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pages []*pdf.Page
}

func (f *fakeSource) PageCount() int { return len(f.pages) }

func (f *fakeSource) Page(n int) (*pdf.Page, error) {
	if n < 1 || n > len(f.pages) {
		return nil, pdf.ErrInvalidPage
	}
	return f.pages[n-1], nil
}

func (f *fakeSource) Close() error { return nil }

// booklets are looked up by file name so tests can use real temp paths
type fakeLibrary map[string]*fakeSource

func (l fakeLibrary) open(path string) (exam.Source, error) {
	src, ok := l[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("no such booklet: %s", path)
	}
	return src, nil
}

func cell(text string, x, y float64) pdf.Word {
	return pdf.Word{Text: text, Box: pdf.Rect{X0: x, Y0: y, X1: x + 10, Y1: y + 8}}
}

func testLibrary() fakeLibrary {
	questions := &fakeSource{pages: []*pdf.Page{{
		Number: 1,
		Height: 800,
		Text: strings.Join([]string{
			"111年第一次專門職業及技術人員高等考試",
			"科目名稱：生物化學",
			"題數：2",
			"1. 下列何者為必需胺基酸？",
			"(A) 甘胺酸",
			"(B) 離胺酸",
			"2. 何者為醣類？",
			"(A) 葡萄糖",
			"(B) 甘油",
		}, "\n"),
	}}}
	answers := &fakeSource{pages: []*pdf.Page{{
		Number: 1,
		Text:   "題號 1 2\n答案 B A",
		Words: []pdf.Word{
			cell("題號", 10, 100), cell("1", 50, 100), cell("2", 80, 100),
			cell("答案", 10, 110), cell("B", 50, 110), cell("A", 80, 110),
		},
	}}}
	return fakeLibrary{"題目.pdf": questions, "答案.pdf": answers}
}

// newTestServer lays out <dir>/生化/111_1/{題目,答案}.pdf on disk and serves
// their content from testLibrary
func newTestServer(t *testing.T, st *store.Store, mutate func(*config.Config)) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	session := filepath.Join(dir, "生化", "111_1")
	require.NoError(t, os.MkdirAll(session, 0o755))
	for _, name := range []string{"題目.pdf", "答案.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(session, name), make([]byte, 1024), 0o644))
	}

	cfg := config.DefaultConfig()
	cfg.ExamDirectory = dir
	cfg.Version = "1.0.0"
	cfg.ServerName = "test-server"
	if mutate != nil {
		mutate(cfg)
	}

	processor := exam.NewProcessor(cfg.ProcessorOptions(), nil).WithOpener(testLibrary().open)
	server, err := NewServer(cfg, processor, st, nil)
	require.NoError(t, err)
	return server, dir
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}
	return ""
}

func TestNewServer(t *testing.T) {
	cfg := config.DefaultConfig()
	processor := exam.NewProcessor(exam.DefaultOptions(), nil)

	server, err := NewServer(cfg, processor, nil, nil)
	require.NoError(t, err)
	assert.Same(t, cfg, server.config)
	assert.Same(t, processor, server.processor)
	assert.Nil(t, server.store)
	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.logger)

	_, err = NewServer(nil, processor, nil, nil)
	assert.Error(t, err)
	_, err = NewServer(cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestServer_ResolvePath(t *testing.T) {
	server, dir := newTestServer(t, nil, nil)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr string
	}{
		{"relative", "生化/111_1/題目.pdf", filepath.Join(dir, "生化", "111_1", "題目.pdf"), ""},
		{"absolute inside", filepath.Join(dir, "生化"), filepath.Join(dir, "生化"), ""},
		{"escape", "../secret.pdf", "", "outside the exam directory"},
		{"absolute outside", "/etc/passwd", "", "outside the exam directory"},
		{"empty", "  ", "", "path cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := server.resolvePath(tt.path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServer_HandleExamExtract(t *testing.T) {
	out := filepath.Join(t.TempDir(), "parsed")
	server, _ := newTestServer(t, nil, func(c *config.Config) {
		c.OutputDirectory = out
		c.DumpRawText = true
	})

	result, err := server.handleExamExtract(context.Background(), callRequest(map[string]any{
		"question_path": "生化/111_1/題目.pdf",
		"answer_path":   "生化/111_1/答案.pdf",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	var resp extractResponse
	require.NoError(t, json.Unmarshal([]byte(extractTextFromResult(result)), &resp))
	require.NotNil(t, resp.Meta.SubjectName)
	assert.Equal(t, "生物化學", *resp.Meta.SubjectName)
	require.Len(t, resp.Questions, 2)
	assert.Equal(t, []string{"B"}, resp.Questions[0].AnswerKey)
	assert.Equal(t, []string{"A"}, resp.Questions[1].AnswerKey)
	assert.Equal(t, map[string]string{"A": "葡萄糖", "B": "甘油"}, resp.Questions[1].Options)

	assert.Equal(t, filepath.Join(out, "生化_111_1_題目_parsed.json"), resp.OutputFile)
	assert.FileExists(t, resp.OutputFile)
	assert.Equal(t, filepath.Join(out, "生化_111_1_題目_rawtext.json"), resp.RawTextFile)
	assert.FileExists(t, resp.RawTextFile)
	assert.Nil(t, resp.Stored)
}

func TestServer_HandleExamExtractPersists(t *testing.T) {
	st, err := store.Open(store.MemoryPath, nil)
	require.NoError(t, err)
	defer st.Close()
	server, _ := newTestServer(t, st, nil)

	result, err := server.handleExamExtract(context.Background(), callRequest(map[string]any{
		"question_path": "生化/111_1/題目.pdf",
		"answer_path":   "生化/111_1/答案.pdf",
		"mode":          "strict_start",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	var resp extractResponse
	require.NoError(t, json.Unmarshal([]byte(extractTextFromResult(result)), &resp))
	require.NotNil(t, resp.Stored)
	assert.Empty(t, resp.StoreError)
	assert.Equal(t, 2, resp.Stored.Inserted)
	assert.Empty(t, resp.OutputFile)

	stored, err := st.Questions(context.Background(), resp.Stored.TestID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestServer_HandleExamExtractErrors(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing question", map[string]any{"answer_path": "a.pdf"}, "question_path"},
		{"missing answer", map[string]any{"question_path": "q.pdf"}, "answer_path"},
		{"outside directory", map[string]any{"question_path": "../q.pdf", "answer_path": "a.pdf"}, "outside the exam directory"},
		{"bad mode", map[string]any{"question_path": "q.pdf", "answer_path": "a.pdf", "mode": "fuzzy"}, "unknown parse mode"},
		{"unknown booklet", map[string]any{"question_path": "q.pdf", "answer_path": "a.pdf"}, "no such booklet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.handleExamExtract(context.Background(), callRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractTextFromResult(result), tt.want)
		})
	}
}

func TestServer_HandleExamAnswers(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	result, err := server.handleExamAnswers(context.Background(), callRequest(map[string]any{
		"path": "生化/111_1/答案.pdf",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	var resp answersResponse
	require.NoError(t, json.Unmarshal([]byte(extractTextFromResult(result)), &resp))
	assert.Equal(t, map[int][]string{1: {"B"}, 2: {"A"}}, resp.Answers)
}

func TestServer_HandleExamMetadata(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	result, err := server.handleExamMetadata(context.Background(), callRequest(map[string]any{
		"path": "生化/111_1/題目.pdf",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	var meta exam.Metadata
	require.NoError(t, json.Unmarshal([]byte(extractTextFromResult(result)), &meta))
	require.NotNil(t, meta.Year)
	assert.Equal(t, 111, *meta.Year)
	assert.Equal(t, 1, *meta.Period)
	assert.Equal(t, 2, *meta.QuestionCount)

	result, err = server.handleExamMetadata(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_HandleExamFindSets(t *testing.T) {
	server, dir := newTestServer(t, nil, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "藥理", "110_2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "藥理", "110_2", "題目.pdf"), make([]byte, 1024), 0o644))

	result, err := server.handleExamFindSets(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	text := extractTextFromResult(result)
	assert.Contains(t, text, "Found 1 exam set(s)")
	assert.Contains(t, text, "1. 生化/111_1")
	assert.Contains(t, text, "Subject: 生化")
	assert.NotContains(t, text, "藥理")

	result, err = server.handleExamFindSets(context.Background(), callRequest(map[string]any{"directory": "藥理"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "No exam sets found")

	result, err = server.handleExamFindSets(context.Background(), callRequest(map[string]any{"directory": "/"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
