package exam

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// narrowRune folds full-width digits, Latin letters and '＃' to ASCII.
// Other runes, CJK punctuation included, are returned unchanged.
func narrowRune(r rune) rune {
	switch {
	case r >= '０' && r <= '９', r >= 'Ａ' && r <= 'Ｚ', r >= 'ａ' && r <= 'ｚ', r == '＃':
		if n := width.LookupRune(r).Narrow(); n != 0 {
			return n
		}
	}
	return r
}

// narrowAlnum applies narrowRune to every rune of s
func narrowAlnum(s string) string {
	return strings.Map(narrowRune, s)
}

// parseNumber parses a run of ASCII or full-width digits
func parseNumber(s string) (int, bool) {
	n, err := strconv.Atoi(narrowAlnum(strings.TrimSpace(s)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigitRune(r rune) bool {
	r = narrowRune(r)
	return r >= '0' && r <= '9'
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, isDigitRune) >= 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigitRune(r) {
			return false
		}
	}
	return true
}

// isAnswerRune reports whether r is an answer letter or the '#' sentinel
func isAnswerRune(r rune) bool {
	r = narrowRune(r)
	return (r >= 'A' && r <= 'Z') || r == '#'
}

// isWide reports whether r occupies two columns in East Asian text
func isWide(r rune) bool {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return unicode.Is(unicode.Han, r)
}

// joinText appends b to a. Latin fragments are separated by a space, while
// wrapped CJK text is joined directly.
func joinText(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	last, _ := utf8.DecodeLastRuneInString(a)
	first, _ := utf8.DecodeRuneInString(b)
	if isWide(last) || isWide(first) {
		return a + b
	}
	return a + " " + b
}

var chineseDigits = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// parseChineseNumeral handles 一 to 九十九. ASCII digits are accepted too.
func parseChineseNumeral(s string) (int, bool) {
	if n, ok := parseNumber(s); ok {
		return n, true
	}
	runes := []rune(s)
	switch len(runes) {
	case 1:
		if runes[0] == '十' {
			return 10, true
		}
		n, ok := chineseDigits[runes[0]]
		return n, ok
	case 2:
		if runes[0] == '十' {
			n, ok := chineseDigits[runes[1]]
			return 10 + n, ok
		}
		if runes[1] == '十' {
			n, ok := chineseDigits[runes[0]]
			return n * 10, ok
		}
	case 3:
		tens, ok1 := chineseDigits[runes[0]]
		ones, ok2 := chineseDigits[runes[2]]
		if runes[1] == '十' && ok1 && ok2 {
			return tens*10 + ones, true
		}
	}
	return 0, false
}
