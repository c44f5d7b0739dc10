package exam

import (
	"sort"

	"go.uber.org/zap"
)

// Combine folds answers and notes into copies of questions. A question
// without an answer gets the unresolved sentinel. Unresolved answers carry
// NotePending unless an explicit note replaces it.
func Combine(questions []Question, answers map[int][]string, notes map[int]string, logger *zap.Logger) []Question {
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make([]Question, len(questions))
	seen := make(map[int]bool, len(questions))
	for i, q := range questions {
		seen[q.Number] = true

		key := answers[q.Number]
		if len(key) == 0 {
			logger.Warn("No answer found for question", zap.Int("question", q.Number))
			key = []string{AnswerUnresolved}
		}
		q.AnswerKey = append([]string(nil), key...)

		if len(key) == 1 && key[0] == AnswerUnresolved {
			note := NotePending
			if q.Notes != nil && *q.Notes != "" {
				note = *q.Notes + "；" + NotePending
			}
			q.Notes = stringPtr(note)
		}
		if note, ok := notes[q.Number]; ok && note != "" {
			q.Notes = stringPtr(note)
		}

		q.Options = copyOptions(q.Options)
		out[i] = q
	}

	var orphans []int
	for n := range answers {
		if !seen[n] {
			orphans = append(orphans, n)
		}
	}
	if len(orphans) > 0 {
		sort.Ints(orphans)
		logger.Debug("Answers without a matching question", zap.Ints("questions", orphans))
	}

	return out
}

func copyOptions(options map[string]string) map[string]string {
	out := make(map[string]string, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}
