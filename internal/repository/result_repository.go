package repository

import (
	"context"
	"errors"

	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateResult is returned when a result already exists for the
// (test, student) pair. This is the single-attempt guarantee surfacing from
// the atomic create-if-absent insert.
var ErrDuplicateResult = errors.New("result already exists for this test and student")

// ResultRepository handles result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Create inserts a result. The UNIQUE (test_id, student_id) constraint plus
// ON CONFLICT DO NOTHING makes this the race-safe enforcement point of "one
// attempt per student per test": the losing writer gets no row back and
// receives ErrDuplicateResult.
func (r *ResultRepository) Create(ctx context.Context, res *model.Result) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO results (test_id, student_id, student_name, usn, department, semester,
		                      score, total_marks, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (test_id, student_id) DO NOTHING
		 RETURNING id, submitted_at`,
		res.TestID, res.StudentID, res.StudentName, res.USN, res.Department, res.Semester,
		res.Score, res.TotalMarks, res.Answers,
	).Scan(&res.ID, &res.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateResult
	}
	return err
}

const selectResult = `
	SELECT id, test_id, student_id, student_name, usn, department, semester,
	       score, total_marks, answers, submitted_at
	FROM results`

func scanResult(row pgx.Row) (*model.Result, error) {
	res := &model.Result{}
	err := row.Scan(&res.ID, &res.TestID, &res.StudentID, &res.StudentName, &res.USN,
		&res.Department, &res.Semester, &res.Score, &res.TotalMarks, &res.Answers,
		&res.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetByID retrieves a result by its ID.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	return scanResult(r.pool.QueryRow(ctx, selectResult+` WHERE id = $1`, id))
}

// Exists reports whether a result exists for the (test, student) pair.
func (r *ResultRepository) Exists(ctx context.Context, testID uuid.UUID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM results WHERE test_id = $1 AND student_id = $2)`,
		testID, studentID,
	).Scan(&exists)
	return exists, err
}

// ListByTest retrieves all results for a test, best score first.
func (r *ResultRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Result, error) {
	rows, err := r.pool.Query(ctx,
		selectResult+` WHERE test_id = $1 ORDER BY score DESC, submitted_at ASC`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectResults(rows)
}

// ListByStudent retrieves all of a student's results, newest first.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Result, error) {
	rows, err := r.pool.Query(ctx,
		selectResult+` WHERE student_id = $1 ORDER BY submitted_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectResults(rows)
}

// AttemptedTestIDs returns the set of test IDs this student has a result for.
func (r *ResultRepository) AttemptedTestIDs(ctx context.Context, studentID int) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT test_id FROM results WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempted := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		attempted[id] = true
	}
	return attempted, rows.Err()
}

func collectResults(rows pgx.Rows) ([]model.Result, error) {
	var results []model.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}
