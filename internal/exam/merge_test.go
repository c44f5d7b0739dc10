package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCombine(t *testing.T) {
	logger, logs := observedLogger(zap.WarnLevel)
	questions := []Question{
		{Number: 1, Content: "一", Options: map[string]string{"A": "甲"}},
		{Number: 2, Content: "二"},
		{Number: 3, Content: "三"},
		{Number: 4, Content: "四"},
	}
	answers := map[int][]string{
		1:  {"A"},
		3:  {AnswerUnresolved},
		4:  {AnswerFullCredit},
		99: {"C"},
	}
	notes := map[int]string{
		2: "題意不清",
		4: NoteFullCredit,
	}

	out := Combine(questions, answers, notes, logger)
	require.Len(t, out, 4)

	assert.Equal(t, []string{"A"}, out[0].AnswerKey)
	assert.Nil(t, out[0].Notes)

	// the explicit note replaces the pending marker
	assert.Equal(t, []string{AnswerUnresolved}, out[1].AnswerKey)
	require.NotNil(t, out[1].Notes)
	assert.Equal(t, "題意不清", *out[1].Notes)

	assert.Equal(t, []string{AnswerUnresolved}, out[2].AnswerKey)
	require.NotNil(t, out[2].Notes)
	assert.Equal(t, NotePending, *out[2].Notes)

	assert.Equal(t, []string{AnswerFullCredit}, out[3].AnswerKey)
	assert.Equal(t, NoteFullCredit, *out[3].Notes)

	assert.Equal(t, 1, logs.FilterMessage("No answer found for question").Len())
}

func TestCombine_KeepsInputUntouched(t *testing.T) {
	questions := []Question{{Number: 1, Options: map[string]string{"A": "甲"}}}
	answers := map[int][]string{1: {"B"}}

	out := Combine(questions, answers, nil, nil)
	out[0].Options["A"] = "changed"
	out[0].AnswerKey[0] = "Z"

	assert.Equal(t, "甲", questions[0].Options["A"])
	assert.Nil(t, questions[0].AnswerKey)
	assert.Equal(t, []string{"B"}, answers[1])
}

func TestCombine_AppendsPendingToExistingNote(t *testing.T) {
	questions := []Question{{Number: 7, Notes: stringPtr("附圖模糊")}}

	out := Combine(questions, nil, nil, nil)
	assert.Equal(t, "附圖模糊；"+NotePending, *out[0].Notes)
	assert.Equal(t, []string{AnswerUnresolved}, out[0].AnswerKey)
}
