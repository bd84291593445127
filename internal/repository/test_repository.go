package repository

import (
	"context"
	"fmt"

	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestRepository handles test and question data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

const selectTest = `
	SELECT id, title, department, semester, duration_minutes, start_time, is_active,
	       shuffle_questions, shuffle_options, require_camera, teacher_id,
	       created_at, updated_at
	FROM tests`

func scanTest(row pgx.Row) (*model.Test, error) {
	t := &model.Test{}
	err := row.Scan(&t.ID, &t.Title, &t.Department, &t.Semester, &t.DurationMinutes,
		&t.StartTime, &t.IsActive,
		&t.Settings.ShuffleQuestions, &t.Settings.ShuffleOptions, &t.Settings.RequireCamera,
		&t.TeacherID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a test row without its questions.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return scanTest(r.pool.QueryRow(ctx, selectTest+` WHERE id = $1`, id))
}

// GetWithQuestions retrieves a test together with its full question set,
// correct answers included, ordered by order_num.
func (r *TestRepository) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	questions, err := r.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	t.Questions = questions
	return t, nil
}

// ListQuestions retrieves all questions for a test, ordered by order_num.
func (r *TestRepository) ListQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_text, options, correct_answer, marks, is_compulsory, order_num
		 FROM questions WHERE test_id = $1
		 ORDER BY order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.QuestionText, &q.Options,
			&q.CorrectAnswer, &q.Marks, &q.IsCompulsory, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a test and its questions in one transaction.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO tests (title, department, semester, duration_minutes, start_time, is_active,
		                    shuffle_questions, shuffle_options, require_camera, teacher_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		t.Title, t.Department, t.Semester, t.DurationMinutes, t.StartTime, t.IsActive,
		t.Settings.ShuffleQuestions, t.Settings.ShuffleOptions, t.Settings.RequireCamera,
		t.TeacherID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}

	if err := insertQuestions(ctx, tx, t.ID, t.Questions); err != nil {
		return err
	}
	for i := range t.Questions {
		t.Questions[i].TestID = t.ID
	}

	return tx.Commit(ctx)
}

// Update rewrites a test row and, when questions is non-nil, replaces the
// whole question set.
func (r *TestRepository) Update(ctx context.Context, t *model.Test) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE tests
		 SET title = $1, department = $2, semester = $3, duration_minutes = $4,
		     start_time = $5, shuffle_questions = $6, shuffle_options = $7,
		     require_camera = $8, updated_at = NOW()
		 WHERE id = $9`,
		t.Title, t.Department, t.Semester, t.DurationMinutes, t.StartTime,
		t.Settings.ShuffleQuestions, t.Settings.ShuffleOptions, t.Settings.RequireCamera,
		t.ID)
	if err != nil {
		return fmt.Errorf("update test: %w", err)
	}

	if t.Questions != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE test_id = $1`, t.ID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		if err := insertQuestions(ctx, tx, t.ID, t.Questions); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertQuestions(ctx context.Context, tx pgx.Tx, testID uuid.UUID, questions []model.Question) error {
	for i := range questions {
		q := &questions[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (test_id, question_text, options, correct_answer, marks, is_compulsory, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			testID, q.QuestionText, q.Options, q.CorrectAnswer, q.Marks, q.IsCompulsory, i,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
		q.OrderNum = i
	}
	return nil
}

// SetActive flips the active flag.
func (r *TestRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	return err
}

// Delete removes a test; questions cascade, results do not.
func (r *TestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tests WHERE id = $1`, id)
	return err
}

// ListByTeacher retrieves all tests owned by a teacher, newest first, with a
// question count instead of the full question sets.
func (r *TestRepository) ListByTeacher(ctx context.Context, teacherID int) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx, selectTest+`
		 WHERE teacher_id = $1
		 ORDER BY created_at DESC`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTests(rows)
}

// ListActiveForStudent retrieves active tests matching a student's department
// and semester.
func (r *TestRepository) ListActiveForStudent(ctx context.Context, department, semester string) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx, selectTest+`
		 WHERE is_active AND department = $1 AND semester = $2
		 ORDER BY created_at DESC`, department, semester)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTests(rows)
}

func collectTests(rows pgx.Rows) ([]model.Test, error) {
	var tests []model.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, *t)
	}
	return tests, rows.Err()
}
