package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ParsedFileName and RawTextFileName name the per-exam output files
func ParsedFileName(stem string) string  { return stem + "_parsed.json" }
func RawTextFileName(stem string) string { return stem + "_rawtext.json" }

// Encode renders result as indented JSON without HTML escaping
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteResult writes <root>/<stem>_parsed.json and returns its path
func WriteResult(root, stem string, result *Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}
	questions := result.Questions
	if questions == nil {
		questions = []Question{}
	}
	doc := struct {
		Meta      Metadata   `json:"meta"`
		Questions []Question `json:"questions"`
	}{Meta: result.Meta, Questions: questions}

	return writeJSON(filepath.Join(root, ParsedFileName(sanitizeStem(stem))), doc)
}

// WriteRawText writes the booklets' page text next to the parsed result
func WriteRawText(root, stem string, result *Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}
	doc := struct {
		QuestionPages []string `json:"question_text_pages"`
		AnswerPages   []string `json:"answer_text_pages"`
	}{QuestionPages: nonNil(result.QuestionPages), AnswerPages: nonNil(result.AnswerPages)}

	return writeJSON(filepath.Join(root, RawTextFileName(sanitizeStem(stem))), doc)
}

func writeJSON(target string, v any) (string, error) {
	data, err := Encode(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", filepath.Base(target), err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}
	return target, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
