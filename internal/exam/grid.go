package exam

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/a3tai/mcp-exam-reader/internal/pdf"
	"go.uber.org/zap"
)

// GridOptions holds the distance thresholds of answer grid reconstruction,
// in page units
type GridOptions struct {
	RowTolerance      float64 // words closer than this vertically share a row
	MaxRowGap         float64 // max distance from a number row down to its answer row
	MaxColumnDistance float64 // max horizontal offset between a number and its answer
}

// DefaultGridOptions returns thresholds calibrated on printed answer keys
func DefaultGridOptions() GridOptions {
	return GridOptions{
		RowTolerance:      5,
		MaxRowGap:         40,
		MaxColumnDistance: 25,
	}
}

type rowKind int

const (
	rowOther rowKind = iota
	rowNumbers
	rowAnswers
)

type gridEntry struct {
	number int      // for number rows
	values []string // for answer rows
	x      float64
	top    float64
}

type gridRow struct {
	index   int
	top     float64
	text    string
	kind    rowKind
	entries []gridEntry
	words   []pdf.Word
}

// GridReader rebuilds the printed answer table from word positions
type GridReader struct {
	opts   GridOptions
	logger *zap.Logger
}

// NewGridReader creates a GridReader. Zero thresholds fall back to defaults.
func NewGridReader(opts GridOptions, logger *zap.Logger) *GridReader {
	def := DefaultGridOptions()
	if opts.RowTolerance <= 0 {
		opts.RowTolerance = def.RowTolerance
	}
	if opts.MaxRowGap <= 0 {
		opts.MaxRowGap = def.MaxRowGap
	}
	if opts.MaxColumnDistance <= 0 {
		opts.MaxColumnDistance = def.MaxColumnDistance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GridReader{opts: opts, logger: logger}
}

// Extract reads every page's words and returns question number to answer key.
// pages[i] holds the words of page i+1.
func (g *GridReader) Extract(pages [][]pdf.Word) map[int][]string {
	answers := make(map[int][]string)
	for i, words := range pages {
		g.extractPage(i+1, words, answers)
	}
	return answers
}

func (g *GridReader) extractPage(page int, words []pdf.Word, answers map[int][]string) {
	rows := g.groupRows(words)

	var numberRows, answerRows []*gridRow
	for i := range rows {
		row := &rows[i]
		classifyRow(row)
		switch row.kind {
		case rowNumbers:
			numberRows = append(numberRows, row)
		case rowAnswers:
			answerRows = append(answerRows, row)
		}
	}

	used := make(map[int]bool, len(answerRows))
	for _, qRow := range numberRows {
		var best *gridRow
		bestGap := math.Inf(1)
		for _, aRow := range answerRows {
			if aRow.index <= qRow.index || used[aRow.index] {
				continue
			}
			gap := aRow.top - qRow.top
			if gap > 0 && gap < g.opts.MaxRowGap && gap < bestGap {
				best, bestGap = aRow, gap
			}
		}
		if best == nil {
			g.logger.Debug("Question number row without answer row",
				zap.Int("page", page), zap.Float64("y", qRow.top), zap.String("text", qRow.text))
			continue
		}
		used[best.index] = true

		for _, num := range qRow.entries {
			var match []string
			bestDist := math.Inf(1)
			for _, ans := range best.entries {
				dist := math.Abs(num.x - ans.x)
				if dist < g.opts.MaxColumnDistance && dist < bestDist {
					match, bestDist = ans.values, dist
				}
			}
			if match == nil {
				g.logger.Warn("No aligned answer found, marking unresolved",
					zap.Int("page", page),
					zap.Int("question", num.number),
					zap.Float64("x", num.x),
					zap.Float64("y", num.top),
					zap.Float64("answer_row_y", best.top))
				answers[num.number] = []string{AnswerUnresolved}
				continue
			}
			answers[num.number] = append([]string(nil), match...)
		}
	}
}

// groupRows clusters words into visual rows, top to bottom and left to right
func (g *GridReader) groupRows(words []pdf.Word) []gridRow {
	sorted := make([]pdf.Word, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w.Text) != "" {
			sorted = append(sorted, w)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.Y0 != sorted[j].Box.Y0 {
			return sorted[i].Box.Y0 < sorted[j].Box.Y0
		}
		return sorted[i].Box.X0 < sorted[j].Box.X0
	})

	var rows []gridRow
	var current []pdf.Word
	emit := func() {
		if len(current) == 0 {
			return
		}
		sort.SliceStable(current, func(i, j int) bool { return current[i].Box.X0 < current[j].Box.X0 })
		rows = append(rows, gridRow{
			index: len(rows),
			top:   current[0].Box.Y0,
			text:  wordText(current),
			words: current,
		})
		current = nil
	}
	for _, w := range sorted {
		if len(current) > 0 && math.Abs(w.Box.Y0-current[0].Box.Y0) >= g.opts.RowTolerance {
			emit()
		}
		current = append(current, w)
	}
	emit()
	return rows
}

func wordText(words []pdf.Word) string {
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	return strings.Join(texts, " ")
}

// classifyRow decides whether row is a number row or an answer row and
// collects its entries
func classifyRow(row *gridRow) {
	text := row.text
	switch {
	case (strings.Contains(text, "題號") || strings.Contains(text, "序")) && hasDigit(text):
		for _, w := range row.words {
			t := strings.TrimSpace(w.Text)
			if !isDigits(t) {
				continue
			}
			n, ok := parseNumber(t)
			if !ok || n <= 0 {
				continue
			}
			row.entries = append(row.entries, gridEntry{number: n, x: w.Box.MidX(), top: w.Box.Y0})
		}
		if len(row.entries) > 0 {
			row.kind = rowNumbers
		}
	case strings.Contains(text, "答案") && strings.IndexFunc(text, isAnswerRune) >= 0:
		for _, w := range row.words {
			values := answerValues(strings.TrimSpace(w.Text))
			if len(values) == 0 {
				continue
			}
			row.entries = append(row.entries, gridEntry{values: values, x: w.Box.MidX(), top: w.Box.Y0})
		}
		if len(row.entries) > 0 {
			row.kind = rowAnswers
		}
	}
	row.words = nil
}

// answerValues reads one answer cell: "C", "Ｃ", "#", "答案C", or a
// multi-answer token such as "AB", "A,B" or "A或B"
func answerValues(token string) []string {
	if token == "" {
		return nil
	}
	if utf8.RuneCountInString(token) == 3 && strings.HasPrefix(token, "答案") {
		token = strings.TrimPrefix(token, "答案")
	}
	token = narrowAlnum(token)

	var values []string
	seen := make(map[string]bool)
	expectLetter := true
	for _, r := range token {
		switch {
		case isAnswerRune(r) && expectLetter:
			v := string(r)
			if seen[v] {
				return nil
			}
			seen[v] = true
			values = append(values, v)
			// multi-letter tokens may be written without separators
			expectLetter = r != '#'
		case len(values) > 0 && strings.ContainsRune(",，、/或及和", r):
			expectLetter = true
		default:
			return nil
		}
	}
	if len(values) > 1 && seen[AnswerUnresolved] {
		return nil
	}
	return values
}
