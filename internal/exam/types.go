// Package exam turns the pages of a question booklet and its answer-key
// booklet into structured question records.
package exam

// Answer sentinels used in Question.AnswerKey
const (
	AnswerUnresolved = "#"
	AnswerFullCredit = "送分"
)

// Notes attached by the answer stages
const (
	NoteCorrectedPrefix = "答案更正為 "
	NoteFullCredit      = "送分"
	NotePending         = "答案待確認"
)

// Metadata is the exam header information found on the first page of a
// question booklet. Fields that could not be found stay nil.
type Metadata struct {
	ExamName      *string `json:"exam_name"`
	SubjectName   *string `json:"subject_name"`
	SubjectCode   *string `json:"subject_code"`
	SubjectType   *string `json:"subject_type"`
	Year          *int    `json:"year"`
	Period        *int    `json:"period"`
	QuestionCount *int    `json:"question_count"`
}

// Question is one multiple-choice question. AnswerKey and Notes are empty
// until Combine runs.
type Question struct {
	Number     int               `json:"question_number"`
	Content    string            `json:"content"`
	Options    map[string]string `json:"options"`
	AnswerKey  []string          `json:"correct_answer_key"`
	Notes      *string           `json:"notes"`
	ImagePath  *string           `json:"image_path"`
	PageNumber int               `json:"page_number"`
}

// Result is the processed form of one exam
type Result struct {
	Meta      Metadata   `json:"meta"`
	Questions []Question `json:"questions"`

	// raw page text, written separately by WriteRawText
	QuestionPages []string `json:"-"`
	AnswerPages   []string `json:"-"`

	// non-fatal problems found while processing
	Warnings []string `json:"-"`
}

// AnswerSheet is what the answer booklet yields: grid answers with errata
// overrides already applied, and per-question notes
type AnswerSheet struct {
	Answers  map[int][]string
	Notes    map[int]string
	Pages    []string
	Warnings []string
}

func stringPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
