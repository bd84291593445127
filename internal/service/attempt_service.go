package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/assessio/assessio-backend/internal/grading"
	"github.com/assessio/assessio-backend/internal/model"
	"github.com/assessio/assessio-backend/internal/repository"
	"github.com/assessio/assessio-backend/internal/shuffle"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Gatekeeper domain errors.
var (
	ErrTestNotFound     = errors.New("test not found")
	ErrTestInactive     = errors.New("test is not active")
	ErrAlreadySubmitted = errors.New("you have already submitted this test")
)

// NotYetOpenError is returned when a session is requested before the test's
// start time. The message carries the formatted start instant for the student.
type NotYetOpenError struct {
	StartsAt time.Time
}

func (e *NotYetOpenError) Error() string {
	return fmt.Sprintf("test has not started yet, starts at %s", e.StartsAt.Format(time.RFC1123))
}

// TestStore is the slice of test persistence the gatekeeper needs.
type TestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Test, error)
	ListQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
}

// ResultStore is the slice of result persistence the gatekeeper needs. Create
// must be an atomic create-if-absent returning repository.ErrDuplicateResult
// when a result already exists for the (test, student) pair.
type ResultStore interface {
	Create(ctx context.Context, res *model.Result) error
	Exists(ctx context.Context, testID uuid.UUID, studentID int) (bool, error)
}

// UserStore resolves student profiles for result denormalization.
type UserStore interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
}

// SubmissionReceipt is returned on an accepted submission.
type SubmissionReceipt struct {
	ResultID   uuid.UUID `json:"resultId"`
	Score      int       `json:"score"`
	TotalMarks int       `json:"totalMarks"`
}

// AttemptService is the attempt gatekeeper: it decides whether a session may
// start and whether a submission may be accepted, and owns serving (answer
// stripping plus randomization) and grading orchestration.
type AttemptService struct {
	tests   TestStore
	results ResultStore
	users   UserStore
	cache   *ServedCache // optional fast path, nil in tests
	rng     shuffle.Source
	log     zerolog.Logger
}

// NewAttemptService creates an AttemptService. cache may be nil.
func NewAttemptService(
	tests TestStore,
	results ResultStore,
	users UserStore,
	cache *ServedCache,
	rng shuffle.Source,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		tests:   tests,
		results: results,
		users:   users,
		cache:   cache,
		rng:     rng,
		log:     log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartSession checks whether studentID may begin testID and, if so, returns
// the served copy: correct answers stripped, question and option order
// randomized per the test's settings. Nothing is persisted here: the
// single-attempt guarantee is enforced atomically at submission time.
func (s *AttemptService) StartSession(ctx context.Context, testID uuid.UUID, studentID int) (*model.ServedTest, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}

	if !test.IsActive {
		return nil, ErrTestInactive
	}

	if test.StartTime != nil && time.Now().Before(*test.StartTime) {
		return nil, &NotYetOpenError{StartsAt: *test.StartTime}
	}

	submitted, err := s.results.Exists(ctx, testID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check existing result: %w", err)
	}
	if submitted {
		return nil, ErrAlreadySubmitted
	}

	questions, err := s.servedQuestions(ctx, testID)
	if err != nil {
		return nil, err
	}

	served := &model.ServedTest{
		ID:              test.ID,
		Title:           test.Title,
		Department:      test.Department,
		Semester:        test.Semester,
		DurationMinutes: test.DurationMinutes,
		Settings:        test.Settings,
		Questions:       questions,
	}

	if test.Settings.ShuffleQuestions {
		shuffle.Permute(s.rng, served.Questions)
	}
	if test.Settings.ShuffleOptions {
		for i := range served.Questions {
			shuffle.Permute(s.rng, served.Questions[i].Options)
		}
	}

	return served, nil
}

// servedQuestions returns the answer-stripped question payload, via the Redis
// cache when available. The cached copy is shared across students; each
// caller gets its own slices so per-request shuffling never leaks between
// sessions.
func (s *AttemptService) servedQuestions(ctx context.Context, testID uuid.UUID) ([]model.ServedQuestion, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, testID)
		if err != nil {
			s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Payload cache read failed")
		} else if cached != nil {
			return copyServed(cached), nil
		}
	}

	questions, err := s.tests.ListQuestions(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	served := make([]model.ServedQuestion, len(questions))
	for i, q := range questions {
		served[i] = model.ServedQuestion{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			Options:      append([]string(nil), q.Options...),
			Marks:        q.Marks,
			IsCompulsory: q.IsCompulsory,
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, testID, served); err != nil {
			s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Payload cache write failed")
		}
	}

	return copyServed(served), nil
}

func copyServed(questions []model.ServedQuestion) []model.ServedQuestion {
	out := make([]model.ServedQuestion, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// AcceptSubmission grades rawAnswers against the live question set and
// persists exactly one Result. The atomic create-if-absent in the result
// store is the true enforcement point of the single-attempt invariant: losing
// a race here yields ErrAlreadySubmitted, never a second Result.
func (s *AttemptService) AcceptSubmission(ctx context.Context, testID uuid.UUID, studentID int, rawAnswers []model.RawAnswer) (*SubmissionReceipt, error) {
	test, err := s.tests.GetWithQuestions(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}

	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}

	outcome := grading.Grade(test.Questions, rawAnswers)

	result := &model.Result{
		TestID:      testID,
		StudentID:   studentID,
		StudentName: student.Name,
		USN:         student.USN,
		Department:  student.Department,
		Semester:    student.Semester,
		Score:       outcome.Score,
		TotalMarks:  outcome.TotalMarks,
		Answers:     outcome.Answers,
	}

	if err := s.results.Create(ctx, result); err != nil {
		if errors.Is(err, repository.ErrDuplicateResult) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("create result: %w", err)
	}

	s.log.Info().
		Str("test_id", testID.String()).
		Int("student_id", studentID).
		Int("score", outcome.Score).
		Int("total_marks", outcome.TotalMarks).
		Msg("Submission accepted")

	return &SubmissionReceipt{
		ResultID:   result.ID,
		Score:      outcome.Score,
		TotalMarks: outcome.TotalMarks,
	}, nil
}
