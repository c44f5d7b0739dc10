package exam

import (
	"regexp"
	"strings"
)

const (
	metaSpace = `[ \t　]`
	metaColon = `[：: \t　]*`
)

var (
	subjectCodeRe     = regexp.MustCompile(`代` + metaSpace + `*號` + metaColon + `([0-9]+)`)
	subjectTypeRe     = regexp.MustCompile(`類科名稱` + metaColon + `([^\t\n\r\f\v]+)`)
	subjectNameRe     = regexp.MustCompile(`科目名稱` + metaColon + `([^\t\n\r\f\v]+)`)
	questionCountRe   = regexp.MustCompile(`題` + metaSpace + `*數` + metaColon + `([0-9]+)`)
	yearPeriodRe      = regexp.MustCompile(`([0-9]{3,4})年[ _　]*第?([0-9]{1,2}|[一二三四五六七八九十]{1,3})次`)
	looseYearPeriodRe = regexp.MustCompile(`([0-9]{3,4})[ _-]?([1-4])`)
)

// labels that may share a header line with a captured value
var headerLabels = []string{"類科名稱", "科目名稱", "代號", "代 號", "考試時間", "題數", "座號"}

// ExtractMetadata reads the exam header from first-page text, falling back to
// the booklet filename for year and period
func ExtractMetadata(text, filename string) Metadata {
	var meta Metadata
	norm := narrowAlnum(text)

	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			meta.ExamName = stringPtr(line)
			break
		}
	}

	if m := subjectCodeRe.FindStringSubmatch(norm); m != nil {
		meta.SubjectCode = stringPtr(m[1])
	}
	if m := subjectTypeRe.FindStringSubmatch(norm); m != nil {
		if v := headerValue(m[1]); v != "" {
			meta.SubjectType = stringPtr(v)
		}
	}
	if m := subjectNameRe.FindStringSubmatch(norm); m != nil {
		if v := headerValue(m[1]); v != "" {
			meta.SubjectName = stringPtr(v)
		}
	}
	if m := questionCountRe.FindStringSubmatch(norm); m != nil {
		if n, ok := parseNumber(m[1]); ok {
			meta.QuestionCount = intPtr(n)
		}
	}

	year, period, ok := matchYearPeriod(norm)
	if !ok {
		year, period, ok = matchYearPeriod(narrowAlnum(filename))
	}
	if !ok {
		if m := looseYearPeriodRe.FindStringSubmatch(narrowAlnum(filename)); m != nil {
			year, _ = parseNumber(m[1])
			period, _ = parseNumber(m[2])
			ok = true
		}
	}
	if ok {
		meta.Year = intPtr(year)
		meta.Period = intPtr(period)
	}

	return meta
}

func matchYearPeriod(s string) (year, period int, ok bool) {
	m := yearPeriodRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	year, ok1 := parseNumber(m[1])
	period, ok2 := parseChineseNumeral(m[2])
	return year, period, ok1 && ok2
}

// headerValue trims a captured value and cuts it at the next header label
func headerValue(v string) string {
	cut := len(v)
	for _, label := range headerLabels {
		if i := strings.Index(v, label); i > 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(v[:cut])
}
