package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/a3tai/mcp-exam-reader/internal/exam"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDuration is the exam duration stored for new tests
const DefaultDuration = 3600

// Subject is a row of the subjects table
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TestInput identifies a test and carries the header fields kept on it
type TestInput struct {
	SubjectID     string
	Name          string
	Year          int
	Period        int
	SubjectCode   *string
	SubjectType   *string
	QuestionCount *int
	Description   *string
}

// FailedQuestion is a question row the database rejected
type FailedQuestion struct {
	Number int    `json:"question_number"`
	Error  string `json:"error"`
}

// Report summarizes one Persist call
type Report struct {
	SubjectID string           `json:"subject_id"`
	TestID    string           `json:"test_id"`
	Inserted  int              `json:"inserted"`
	Failed    []FailedQuestion `json:"failed,omitempty"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// GetOrCreateSubject returns the subject named name, creating it with a slug
// when it does not exist
func (s *Store) GetOrCreateSubject(ctx context.Context, name string) (*Subject, error) {
	if name == "" {
		return nil, fmt.Errorf("subject name cannot be empty")
	}

	subject := Subject{Name: name}
	err := s.db.QueryRowContext(ctx, `SELECT id, slug FROM subjects WHERE name = ?`, name).
		Scan(&subject.ID, &subject.Slug)
	if err == nil {
		s.logger.Debug("Found existing subject", zap.String("subject", name), zap.String("id", subject.ID))
		return &subject, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query subject %q: %w", name, err)
	}

	subject.ID = uuid.NewString()
	subject.Slug = Slugify(name)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name, slug, created_at) VALUES (?, ?, ?, ?)`,
		subject.ID, subject.Name, subject.Slug, now()); err != nil {
		return nil, fmt.Errorf("create subject %q: %w", name, err)
	}
	s.logger.Info("Created subject",
		zap.String("subject", name), zap.String("slug", subject.Slug), zap.String("id", subject.ID))
	return &subject, nil
}

// UpsertTest returns the id of the test for (subject, year, period). An
// existing test gets its name and any provided header fields updated when
// they differ.
func (s *Store) UpsertTest(ctx context.Context, in TestInput) (string, error) {
	if in.SubjectID == "" || in.Name == "" {
		return "", fmt.Errorf("test needs a subject and a name")
	}
	logger := s.logger.With(zap.String("test", in.Name), zap.Int("year", in.Year), zap.Int("period", in.Period))

	var (
		id            string
		name          string
		subjectCode   sql.NullString
		subjectType   sql.NullString
		questionCount sql.NullInt64
		description   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, subject_code, subject_type, question_count, description
		   FROM tests WHERE subject_id = ? AND year = ? AND period = ?`,
		in.SubjectID, in.Year, in.Period).
		Scan(&id, &name, &subjectCode, &subjectType, &questionCount, &description)

	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.NewString()
		ts := now()
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO tests (id, subject_id, name, year, period, subject_code, subject_type,
			                    question_count, duration_in_seconds, description, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.SubjectID, in.Name, in.Year, in.Period, in.SubjectCode, in.SubjectType,
			in.QuestionCount, DefaultDuration, in.Description, ts, ts); err != nil {
			return "", fmt.Errorf("create test %q: %w", in.Name, err)
		}
		logger.Info("Created test", zap.String("id", id))
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("query test %q: %w", in.Name, err)
	}

	var changed []string
	if name != in.Name {
		logger.Warn("Test name differs from stored name, updating", zap.String("stored", name))
		name = in.Name
		changed = append(changed, "name")
	}
	if in.SubjectCode != nil && (!subjectCode.Valid || subjectCode.String != *in.SubjectCode) {
		subjectCode = sql.NullString{String: *in.SubjectCode, Valid: true}
		changed = append(changed, "subject_code")
	}
	if in.SubjectType != nil && (!subjectType.Valid || subjectType.String != *in.SubjectType) {
		subjectType = sql.NullString{String: *in.SubjectType, Valid: true}
		changed = append(changed, "subject_type")
	}
	if in.QuestionCount != nil && (!questionCount.Valid || questionCount.Int64 != int64(*in.QuestionCount)) {
		questionCount = sql.NullInt64{Int64: int64(*in.QuestionCount), Valid: true}
		changed = append(changed, "question_count")
	}
	if in.Description != nil && (!description.Valid || description.String != *in.Description) {
		description = sql.NullString{String: *in.Description, Valid: true}
		changed = append(changed, "description")
	}
	if len(changed) == 0 {
		logger.Debug("Test is up to date", zap.String("id", id))
		return id, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE tests SET name = ?, subject_code = ?, subject_type = ?, question_count = ?,
		                  description = ?, updated_at = ?
		  WHERE id = ?`,
		name, subjectCode, subjectType, questionCount, description, now(), id); err != nil {
		return "", fmt.Errorf("update test %s: %w", id, err)
	}
	logger.Info("Updated test", zap.String("id", id), zap.Strings("fields", changed))
	return id, nil
}

// InsertQuestions writes questions for testID one row at a time. Rows for a
// question number already stored are replaced. Rejected rows are returned,
// the rest are kept; only a cancelled context aborts the loop.
func (s *Store) InsertQuestions(ctx context.Context, testID string, questions []exam.Question) (int, []FailedQuestion, error) {
	var (
		inserted int
		failed   []FailedQuestion
	)
	fail := func(q exam.Question, err error) {
		s.logger.Error("Failed to store question",
			zap.String("test_id", testID), zap.Int("question", q.Number), zap.Error(err))
		failed = append(failed, FailedQuestion{Number: q.Number, Error: err.Error()})
	}

	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return inserted, failed, err
		}
		options, err := json.Marshal(nonNilOptions(q.Options))
		if err != nil {
			fail(q, fmt.Errorf("encode options: %w", err))
			continue
		}
		key, err := json.Marshal(nonNilKey(q.AnswerKey))
		if err != nil {
			fail(q, fmt.Errorf("encode answer key: %w", err))
			continue
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO questions (id, test_id, question_number, content, options, correct_answer_key,
			                        image_path, notes, page_number, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (test_id, question_number) DO UPDATE SET
			   content = excluded.content,
			   options = excluded.options,
			   correct_answer_key = excluded.correct_answer_key,
			   image_path = excluded.image_path,
			   notes = excluded.notes,
			   page_number = excluded.page_number`,
			uuid.NewString(), testID, q.Number, q.Content, string(options), string(key),
			q.ImagePath, q.Notes, q.PageNumber, now())
		if err != nil {
			fail(q, err)
			continue
		}
		inserted++
	}

	s.logger.Info("Stored questions",
		zap.String("test_id", testID), zap.Int("stored", inserted), zap.Int("failed", len(failed)))
	return inserted, failed, nil
}

// Questions returns the stored questions of testID ordered by number
func (s *Store) Questions(ctx context.Context, testID string) ([]exam.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_number, content, options, correct_answer_key, image_path, notes, page_number
		   FROM questions WHERE test_id = ? ORDER BY question_number`, testID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []exam.Question
	for rows.Next() {
		var (
			q                exam.Question
			options, key     string
			imagePath, notes sql.NullString
			page             sql.NullInt64
		)
		if err := rows.Scan(&q.Number, &q.Content, &options, &key, &imagePath, &notes, &page); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of question %d: %w", q.Number, err)
		}
		if err := json.Unmarshal([]byte(key), &q.AnswerKey); err != nil {
			return nil, fmt.Errorf("decode answer key of question %d: %w", q.Number, err)
		}
		if imagePath.Valid {
			q.ImagePath = &imagePath.String
		}
		if notes.Valid {
			q.Notes = &notes.String
		}
		q.PageNumber = int(page.Int64)
		out = append(out, q)
	}
	return out, rows.Err()
}

// Persist stores a processed exam. A missing subject name stops before
// anything is written; a missing exam name, year or period stops after the
// subject is recorded. Both return ErrIncompleteMetadata.
func (s *Store) Persist(ctx context.Context, result *exam.Result) (*Report, error) {
	if result == nil {
		return nil, fmt.Errorf("result cannot be nil")
	}
	meta := result.Meta
	if meta.SubjectName == nil || *meta.SubjectName == "" {
		s.logger.Error("Exam has no subject name, skipping database write")
		return nil, fmt.Errorf("%w: subject_name is missing", ErrIncompleteMetadata)
	}

	subject, err := s.GetOrCreateSubject(ctx, *meta.SubjectName)
	if err != nil {
		return nil, err
	}
	report := &Report{SubjectID: subject.ID}

	if meta.ExamName == nil || *meta.ExamName == "" || meta.Year == nil || meta.Period == nil {
		s.logger.Error("Exam lacks name, year or period, skipping test creation",
			zap.String("subject", subject.Name),
			zap.Bool("has_name", meta.ExamName != nil),
			zap.Bool("has_year", meta.Year != nil),
			zap.Bool("has_period", meta.Period != nil))
		return report, fmt.Errorf("%w: exam_name, year and period are required", ErrIncompleteMetadata)
	}

	testID, err := s.UpsertTest(ctx, TestInput{
		SubjectID:     subject.ID,
		Name:          *meta.ExamName,
		Year:          *meta.Year,
		Period:        *meta.Period,
		SubjectCode:   meta.SubjectCode,
		SubjectType:   meta.SubjectType,
		QuestionCount: meta.QuestionCount,
	})
	if err != nil {
		return report, err
	}
	report.TestID = testID

	if len(result.Questions) == 0 {
		s.logger.Info("Exam has no questions to store", zap.String("test_id", testID))
		return report, nil
	}
	report.Inserted, report.Failed, err = s.InsertQuestions(ctx, testID, result.Questions)
	return report, err
}

func nonNilOptions(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilKey(k []string) []string {
	if k == nil {
		return []string{}
	}
	return k
}
