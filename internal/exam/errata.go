package exam

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Action is what an erratum does to the questions it names
type Action int

const (
	ActionNote Action = iota // annotate only
	ActionCorrect
	ActionFullCredit
)

func (a Action) String() string {
	switch a {
	case ActionCorrect:
		return "correct"
	case ActionFullCredit:
		return "full_credit"
	}
	return "note"
}

// Erratum is one notice from the 備註 section
type Erratum struct {
	Questions []int
	Action    Action
	Letters   []string // answer letters for ActionCorrect
	Note      string
}

// Errata is the combined effect of all notices
type Errata struct {
	Answers map[int][]string
	Notes   map[int]string
	Entries []Erratum
}

const errataSpace = `[ \t　]*`

var (
	errataHeadingRe = regexp.MustCompile(`^[\s　]*備[\s　]*註`)

	// 第5題, 第6、7題, 第6題、第7題, 第3至5題, 第10題等
	questionRefRe = regexp.MustCompile(`第` + errataSpace + `[0-9]+` +
		`(?:` + errataSpace + `題?` + errataSpace + `(?:[、,，及和與]|至|到|~|-)` + errataSpace + `第?` + errataSpace + `[0-9]+)*` +
		errataSpace + `題(?:等|各題)?`)

	refTokenRe = regexp.MustCompile(`[0-9]+|至|到|~|-`)

	correctionVerbRe = regexp.MustCompile(`^[^。；;]*?(?:更正為|修正為|更改為|改為|應為)`)
	optionPrefixRe   = regexp.MustCompile(`^(?:答案|選項|正確答案)?` + errataSpace + `(?:為|是)?` + errataSpace)
)

var creditPhrases = []string{"一律送分", "送分", "一律給分", "均給分", "皆給分", "都給分", "全部給分", "給分"}

// acceptance phrases that turn a letter list into a multi-answer key
var acceptPhrases = []string{"均給分", "皆給分", "都給分", "均可", "皆可", "給分"}

// maxRangeSpan bounds "第N至M題" expansion
const maxRangeSpan = 200

// ParseErrata finds the first 備註 block in text and interprets its notices.
// Notices that do not parse are skipped.
func ParseErrata(text string) Errata {
	errata := Errata{
		Answers: make(map[int][]string),
		Notes:   make(map[int]string),
	}
	block, ok := FindErrataBlock(text)
	if !ok {
		return errata
	}
	errata.Entries = interpretErrata(block)

	for _, e := range errata.Entries {
		for _, n := range e.Questions {
			switch e.Action {
			case ActionCorrect, ActionFullCredit:
				errata.Answers[n] = append([]string(nil), e.Letters...)
				errata.Notes[n] = e.Note
			case ActionNote:
				if _, exists := errata.Notes[n]; !exists {
					errata.Notes[n] = e.Note
				}
			}
		}
	}
	return errata
}

// FindErrataBlock returns the text from the first line starting with 備註
// to the end, with blank lines dropped and wrapped lines rejoined
func FindErrataBlock(text string) (string, bool) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	for i, line := range lines {
		if errataHeadingRe.MatchString(line) {
			return strings.Join(lines[i:], ""), true
		}
	}
	return "", false
}

// interpretErrata scans a block for question references and classifies the
// clause that follows each one. A clause runs to the end of its sentence, so
// references inside it, as in "參考第5題之圖", belong to the clause.
func interpretErrata(block string) []Erratum {
	norm := narrowAlnum(block)
	refs := questionRefRe.FindAllStringIndex(norm, -1)

	var out []Erratum
	consumed := 0
	for _, ref := range refs {
		if ref[0] < consumed {
			continue
		}
		numbers := refNumbers(norm[ref[0]:ref[1]])
		if len(numbers) == 0 {
			continue
		}

		clause, terminated := cutClause(norm[ref[1]:])
		consumed = ref[1] + len(clause)

		if e, ok := classifyClause(clause); ok {
			e.Questions = numbers
			out = append(out, e)
			continue
		}

		// free-text notes only for a single, properly ended sentence
		if len(numbers) != 1 || !terminated {
			continue
		}
		note := strings.Trim(clause, " \t　，,、：:")
		if note == "" || containsAny(note, creditPhrases) || correctionVerbRe.MatchString(note) {
			continue
		}
		out = append(out, Erratum{Questions: numbers, Action: ActionNote, Note: note})
	}
	return out
}

// refNumbers expands a matched reference into question numbers
func refNumbers(ref string) []int {
	tokens := refTokenRe.FindAllString(ref, -1)
	var numbers []int
	seen := make(map[int]bool)
	add := func(n int) {
		if n > 0 && !seen[n] {
			seen[n] = true
			numbers = append(numbers, n)
		}
	}
	for i := 0; i < len(tokens); i++ {
		n, ok := parseNumber(tokens[i])
		if !ok {
			continue
		}
		if i+2 < len(tokens) && isRangeToken(tokens[i+1]) {
			if m, ok := parseNumber(tokens[i+2]); ok && m > n && m-n <= maxRangeSpan {
				for k := n; k <= m; k++ {
					add(k)
				}
				i += 2
				continue
			}
		}
		add(n)
	}
	return numbers
}

func isRangeToken(s string) bool {
	switch s {
	case "至", "到", "~", "-":
		return true
	}
	return false
}

// cutClause returns s up to the first sentence terminator and whether one
// was found
func cutClause(s string) (string, bool) {
	if i := strings.IndexAny(s, "。；;"); i >= 0 {
		return s[:i], true
	}
	return s, false
}

// classifyClause recognises corrections, full-credit notices and lists of
// accepted answers
func classifyClause(clause string) (Erratum, bool) {
	c := strings.TrimLeft(clause, " \t　，,、：:")

	for _, p := range creditPhrases {
		if strings.HasPrefix(c, p) {
			return Erratum{Action: ActionFullCredit, Letters: []string{AnswerFullCredit}, Note: NoteFullCredit}, true
		}
	}

	if loc := correctionVerbRe.FindStringIndex(c); loc != nil {
		if letters, _ := leadingLetters(c[loc[1]:]); len(letters) > 0 {
			return correction(letters), true
		}
		return Erratum{}, false
	}

	rest := c
	if loc := optionPrefixRe.FindStringIndex(rest); loc != nil {
		rest = rest[loc[1]:]
	}
	if letters, tail := leadingLetters(rest); len(letters) > 0 {
		tail = strings.TrimLeft(tail, " \t　，,")
		for _, p := range acceptPhrases {
			if strings.HasPrefix(tail, p) {
				return correction(letters), true
			}
		}
	}
	return Erratum{}, false
}

func correction(letters []string) Erratum {
	return Erratum{
		Action:  ActionCorrect,
		Letters: letters,
		Note:    NoteCorrectedPrefix + strings.Join(letters, "、"),
	}
}

// leadingLetters reads answer letters at the start of s, e.g. "C", "(B)",
// "A或B", "A、C". It returns the letters and the unread tail.
func leadingLetters(s string) ([]string, string) {
	var letters []string
	seen := make(map[string]bool)
	rest := s
	for {
		r := strings.TrimLeft(rest, " \t　(（")
		ch, size := utf8.DecodeRuneInString(r)
		if size == 0 || !isAnswerRune(ch) {
			break
		}
		v := string(narrowRune(ch))
		if seen[v] {
			break
		}
		// a letter followed by another letter is a word, not an answer
		if next, _ := utf8.DecodeRuneInString(r[size:]); next >= 'a' && next <= 'z' {
			break
		}
		seen[v] = true
		letters = append(letters, v)
		r = strings.TrimLeft(r[size:], ")）")
		rest = r

		sep := strings.TrimLeft(r, " \t　")
		trimmed := strings.TrimLeft(sep, "、,，/或及和與")
		if trimmed == sep {
			// letters may also be written back to back: "AB"
			if n, _ := utf8.DecodeRuneInString(sep); !isAnswerRune(n) || n == '#' {
				break
			}
		}
		rest = trimmed
	}
	if len(letters) > 1 && seen[AnswerUnresolved] {
		return nil, s
	}
	return letters, rest
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
