package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/a3tai/mcp-exam-reader/internal/exam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func sampleResult() *exam.Result {
	return &exam.Result{
		Meta: exam.Metadata{
			ExamName:      strPtr("111年第二次專門職業及技術人員高等考試"),
			SubjectName:   strPtr("生物化學"),
			SubjectCode:   strPtr("1102"),
			Year:          intPtr(111),
			Period:        intPtr(2),
			QuestionCount: intPtr(2),
		},
		Questions: []exam.Question{
			{
				Number:     1,
				Content:    "下列何者為必需胺基酸？",
				Options:    map[string]string{"A": "甘胺酸", "B": "離胺酸"},
				AnswerKey:  []string{"B"},
				ImagePath:  strPtr("images/x/p1_img0.png"),
				PageNumber: 1,
			},
			{
				Number:     2,
				Content:    "關於酵素何者正確？",
				Options:    map[string]string{"A": "甲", "B": "乙"},
				AnswerKey:  []string{exam.AnswerUnresolved},
				Notes:      strPtr(exam.NotePending),
				PageNumber: 2,
			},
		},
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := openMemory(t)

	var fk int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var busy int
	require.NoError(t, s.DB().QueryRow("PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 10000, busy)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "exams.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopening applies the schema again without error
	s, err = Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open("", nil)
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Clinical Chemistry", "clinical-chemistry"},
		{"生物化學", "生物化學"},
		{"臨床 血液學.與 血庫學", "臨床-血液學-與-血庫學"},
		{"醫學(一)", "醫學一"},
		{"  --a..b--  ", "a-b"},
		{"（）！", DefaultSlug},
		{"", DefaultSlug},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestGetOrCreateSubject(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	first, err := s.GetOrCreateSubject(ctx, "生物化學")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "生物化學", first.Slug)

	again, err := s.GetOrCreateSubject(ctx, "生物化學")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := s.GetOrCreateSubject(ctx, "藥理學")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	_, err = s.GetOrCreateSubject(ctx, "")
	assert.Error(t, err)
}

func TestUpsertTest(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	subject, err := s.GetOrCreateSubject(ctx, "生物化學")
	require.NoError(t, err)

	in := TestInput{SubjectID: subject.ID, Name: "第一次考試", Year: 111, Period: 1, QuestionCount: intPtr(80)}
	id, err := s.UpsertTest(ctx, in)
	require.NoError(t, err)

	in.Name = "第一次考試（更名）"
	in.SubjectCode = strPtr("1101")
	in.QuestionCount = nil
	same, err := s.UpsertTest(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, id, same)

	var (
		name  string
		code  string
		count int
	)
	require.NoError(t, s.DB().QueryRow(
		`SELECT name, subject_code, question_count FROM tests WHERE id = ?`, id).Scan(&name, &code, &count))
	assert.Equal(t, "第一次考試（更名）", name)
	assert.Equal(t, "1101", code)
	assert.Equal(t, 80, count)

	in.Period = 2
	second, err := s.UpsertTest(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, id, second)

	_, err = s.UpsertTest(ctx, TestInput{Name: "x"})
	assert.Error(t, err)
}

func TestPersist(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	result := sampleResult()

	report, err := s.Persist(ctx, result)
	require.NoError(t, err)
	assert.NotEmpty(t, report.SubjectID)
	assert.NotEmpty(t, report.TestID)
	assert.Equal(t, 2, report.Inserted)
	assert.Empty(t, report.Failed)

	stored, err := s.Questions(ctx, report.TestID)
	require.NoError(t, err)
	assert.Equal(t, result.Questions, stored)

	// a rerun replaces rows instead of duplicating them
	result.Questions[0].AnswerKey = []string{"C"}
	rerun, err := s.Persist(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, report.TestID, rerun.TestID)

	stored, err = s.Questions(ctx, report.TestID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, []string{"C"}, stored[0].AnswerKey)
}

func TestPersist_FailedRows(t *testing.T) {
	s := openMemory(t)
	result := sampleResult()
	result.Questions = append(result.Questions,
		exam.Question{Number: 3, Content: "no key"},
		exam.Question{Number: 0, Content: "bad number", AnswerKey: []string{"A"}},
	)

	report, err := s.Persist(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, 3, report.Failed[0].Number)
	assert.Equal(t, 0, report.Failed[1].Number)
	assert.NotEmpty(t, report.Failed[0].Error)
}

func TestPersist_IncompleteMetadata(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	noSubject := sampleResult()
	noSubject.Meta.SubjectName = nil
	report, err := s.Persist(ctx, noSubject)
	assert.ErrorIs(t, err, ErrIncompleteMetadata)
	assert.Nil(t, report)

	var subjects int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM subjects`).Scan(&subjects))
	assert.Equal(t, 0, subjects)

	noYear := sampleResult()
	noYear.Meta.Year = nil
	report, err = s.Persist(ctx, noYear)
	assert.ErrorIs(t, err, ErrIncompleteMetadata)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.SubjectID)
	assert.Empty(t, report.TestID)

	var tests int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM tests`).Scan(&tests))
	assert.Equal(t, 0, tests)

	_, err = s.Persist(ctx, nil)
	assert.Error(t, err)
}
