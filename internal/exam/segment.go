package exam

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Mode selects how strictly a line is accepted as a question start
type Mode string

const (
	// ModeDefault accepts "12.3 mg ..." as question 12
	ModeDefault Mode = "default"
	// ModeStrictStart rejects a question marker followed directly by a digit
	ModeStrictStart Mode = "strict_start"
)

// ParseMode converts a configuration value to a Mode. Empty means ModeDefault.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.TrimSpace(s)) {
	case "", ModeDefault:
		return ModeDefault, nil
	case ModeStrictStart:
		return ModeStrictStart, nil
	}
	return "", fmt.Errorf("unknown parse mode %q (expected %q or %q)", s, ModeDefault, ModeStrictStart)
}

// State is the segmenter position within the booklet
type State int

const (
	StateExpectingQuestion State = iota
	StateQuestionContent
	StateOptionText
)

func (s State) String() string {
	switch s {
	case StateExpectingQuestion:
		return "expecting_question"
	case StateQuestionContent:
		return "question_content"
	case StateOptionText:
		return "option_text"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	questionMarkerRe = regexp.MustCompile(`^[ \t　]*([0-9０-９]+)[.．]([ \t　]*)(.*)$`)
	optionMarkerRe   = regexp.MustCompile(`^[ \t　]*(?:[(（]([A-ZＡ-Ｚ])[)）]|([A-ZＡ-Ｚ])[.．])[ \t　]*(.*)$`)
	pageFurnitureRe  = regexp.MustCompile(`^(?:[第共][ 　]*[0-9０-９]+[ 　]*頁[ 　,，、/]*)+$`)
)

// matchQuestion reports whether line opens a new question under mode
func matchQuestion(line string, mode Mode) (number int, rest string, ok bool) {
	m := questionMarkerRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	if mode == ModeStrictStart && m[2] == "" && m[3] != "" {
		if r, _ := utf8.DecodeRuneInString(m[3]); isDigitRune(r) {
			return 0, "", false
		}
	}
	// "0.5 公克" is a quantity, not question 0
	n, ok := parseNumber(m[1])
	if !ok || n <= 0 {
		return 0, "", false
	}
	return n, strings.TrimSpace(m[3]), true
}

type optionPart struct {
	key  string
	text string
}

// matchOptions splits an option line into its options. A line such as
// "(A)x (B)y (C)z" yields three parts; letters must follow in sequence.
func matchOptions(line string) ([]optionPart, bool) {
	m := optionMarkerRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	if m[1] == "" {
		return []optionPart{{key: narrowAlnum(m[2]), text: strings.TrimSpace(m[3])}}, true
	}

	key := narrowAlnum(m[1])
	rest := m[3]
	var parts []optionPart
	for key != "Z" {
		next := string(rune(key[0] + 1))
		i, size := findParenMarker(rest, next)
		if i < 0 {
			break
		}
		parts = append(parts, optionPart{key: key, text: strings.TrimSpace(rest[:i])})
		key = next
		rest = rest[i+size:]
	}
	parts = append(parts, optionPart{key: key, text: strings.TrimSpace(rest)})
	return parts, true
}

// findParenMarker locates "(X)" for letter in either width
func findParenMarker(s, letter string) (index, size int) {
	wide := string(rune(letter[0]) - 'A' + 'Ａ')
	best, bestSize := -1, 0
	for _, open := range []string{"(", "（"} {
		for _, l := range []string{letter, wide} {
			for _, closing := range []string{")", "）"} {
				marker := open + l + closing
				if i := strings.Index(s, marker); i >= 0 && (best < 0 || i < best) {
					best, bestSize = i, len(marker)
				}
			}
		}
	}
	return best, bestSize
}

func isPageFurniture(line string) bool {
	return pageFurnitureRe.MatchString(line)
}

// Segmenter is a line-driven state machine that cuts booklet text into
// questions and options. Feed lines in reading order, then call Finish.
type Segmenter struct {
	mode   Mode
	logger *zap.Logger

	state     State
	page      int
	current   *Question
	buffer    string
	optionKey string
	questions []Question
}

// NewSegmenter returns a segmenter in StateExpectingQuestion
func NewSegmenter(mode Mode, logger *zap.Logger) *Segmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = ModeDefault
	}
	return &Segmenter{mode: mode, logger: logger, page: 1}
}

// State returns the current state
func (s *Segmenter) State() State {
	return s.state
}

// SetPage sets the page number recorded on questions started from now on
func (s *Segmenter) SetPage(page int) {
	s.page = page
}

// Feed consumes one line of booklet text and returns the new state
func (s *Segmenter) Feed(line string) State {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || isPageFurniture(trimmed) {
		return s.state
	}

	if number, rest, ok := matchQuestion(line, s.mode); ok {
		s.flush()
		s.current = &Question{
			Number:     number,
			Options:    make(map[string]string),
			PageNumber: s.page,
		}
		s.buffer = rest
		s.optionKey = ""
		s.state = StateQuestionContent
		return s.state
	}

	if s.current == nil {
		// header text before the first question
		return s.state
	}

	if parts, ok := matchOptions(trimmed); ok {
		if dup := s.duplicateKey(parts); dup != "" {
			s.logger.Warn("Repeated option letter treated as text",
				zap.Int("question", s.current.Number),
				zap.String("option", dup),
				zap.Int("page", s.page))
			s.buffer = joinText(s.buffer, trimmed)
			return s.state
		}
		for _, part := range parts {
			s.commit()
			s.optionKey = part.key
			s.buffer = part.text
		}
		s.state = StateOptionText
		return s.state
	}

	s.buffer = joinText(s.buffer, trimmed)
	return s.state
}

// Finish commits the open buffer, flushes the last question and returns all
// questions in input order. The segmenter is reset afterwards.
func (s *Segmenter) Finish() []Question {
	s.flush()
	out := s.questions
	s.questions = nil
	s.state = StateExpectingQuestion
	return out
}

func (s *Segmenter) duplicateKey(parts []optionPart) string {
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if _, exists := s.current.Options[p.key]; exists || seen[p.key] {
			return p.key
		}
		seen[p.key] = true
	}
	return ""
}

// commit moves the active buffer into the current question
func (s *Segmenter) commit() {
	if s.current == nil {
		s.buffer = ""
		return
	}
	if s.optionKey == "" {
		s.current.Content = joinText(s.current.Content, s.buffer)
	} else {
		s.current.Options[s.optionKey] = joinText(s.current.Options[s.optionKey], s.buffer)
	}
	s.buffer = ""
}

func (s *Segmenter) flush() {
	s.commit()
	if s.current != nil {
		s.questions = append(s.questions, *s.current)
	}
	s.current = nil
	s.optionKey = ""
}

// Segment runs a fresh segmenter over text, attributing every question to page
func Segment(text string, mode Mode, page int, logger *zap.Logger) []Question {
	s := NewSegmenter(mode, logger)
	s.SetPage(page)
	for _, line := range strings.Split(text, "\n") {
		s.Feed(line)
	}
	return s.Finish()
}

// Gap thresholds for CheckNumbering
const (
	maxMissingRatio = 0.2
	maxGapRuns      = 5
)

// CheckNumbering logs and returns warnings about duplicate numbers, large
// gaps and a parsed count that differs from the declared one
func CheckNumbering(questions []Question, declared *int, logger *zap.Logger) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	var warnings []string
	warn := func(msg string, fields ...zap.Field) {
		logger.Warn(msg, fields...)
		warnings = append(warnings, msg)
	}

	counts := make(map[int]int, len(questions))
	maxNumber := 0
	for _, q := range questions {
		counts[q.Number]++
		if q.Number > maxNumber {
			maxNumber = q.Number
		}
	}

	var dups []int
	for n, c := range counts {
		if c > 1 {
			dups = append(dups, n)
		}
	}
	sort.Ints(dups)
	for _, n := range dups {
		warn(fmt.Sprintf("question %d appears %d times", n, counts[n]),
			zap.Int("question", n), zap.Int("count", counts[n]))
	}

	var missing []int
	runs := 0
	for n := 1; n <= maxNumber; n++ {
		if counts[n] == 0 {
			if len(missing) == 0 || missing[len(missing)-1] != n-1 {
				runs++
			}
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		if float64(len(missing)) > maxMissingRatio*float64(maxNumber) || runs > maxGapRuns {
			warn(fmt.Sprintf("question numbering has %d missing numbers in %d gaps", len(missing), runs),
				zap.Ints("missing", missing))
		} else {
			logger.Debug("Question numbering has small gaps", zap.Ints("missing", missing))
		}
	}

	if declared != nil && *declared != len(counts) {
		warn(fmt.Sprintf("declared question count %d but parsed %d", *declared, len(counts)),
			zap.Int("declared", *declared), zap.Int("parsed", len(counts)))
	}

	return warnings
}
