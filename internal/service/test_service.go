package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/assessio/assessio-backend/internal/model"
	"github.com/assessio/assessio-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Test management domain errors.
var (
	ErrNotTestOwner       = errors.New("not the owner of this test")
	ErrCorrectNotAnOption = errors.New("correct answer must be one of the question's options")
)

// TestService handles test authoring business logic and payload cache
// maintenance.
type TestService struct {
	testRepo   *repository.TestRepository
	resultRepo *repository.ResultRepository
	cache      *ServedCache
	log        zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(
	testRepo *repository.TestRepository,
	resultRepo *repository.ResultRepository,
	cache *ServedCache,
	log zerolog.Logger,
) *TestService {
	return &TestService{
		testRepo:   testRepo,
		resultRepo: resultRepo,
		cache:      cache,
		log:        log.With().Str("component", "test_service").Logger(),
	}
}

// buildQuestions converts request questions, applying the marks default and
// the correct-answer-in-options rule that binding tags cannot express.
func buildQuestions(reqs []model.QuestionRequest) ([]model.Question, error) {
	questions := make([]model.Question, len(reqs))
	for i, qr := range reqs {
		if !slices.Contains(qr.Options, qr.CorrectAnswer) {
			return nil, fmt.Errorf("question %d: %w", i+1, ErrCorrectNotAnOption)
		}
		marks := qr.Marks
		if marks == 0 {
			marks = 1
		}
		questions[i] = model.Question{
			QuestionText:  qr.QuestionText,
			Options:       qr.Options,
			CorrectAnswer: qr.CorrectAnswer,
			Marks:         marks,
			IsCompulsory:  qr.IsCompulsory,
			OrderNum:      i,
		}
	}
	return questions, nil
}

// Create inserts a new test, inactive until the teacher toggles it.
func (s *TestService) Create(ctx context.Context, teacherID int, req *model.CreateTestRequest) (*model.Test, error) {
	questions, err := buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	test := &model.Test{
		Title:           req.Title,
		Department:      req.Department,
		Semester:        req.Semester,
		DurationMinutes: req.DurationMinutes,
		StartTime:       req.StartTime,
		IsActive:        false,
		Settings:        req.Settings,
		TeacherID:       teacherID,
		Questions:       questions,
	}

	if err := s.testRepo.Create(ctx, test); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}

	s.log.Info().Str("test_id", test.ID.String()).Int("teacher_id", teacherID).Msg("Test created")
	return test, nil
}

// getOwned loads a test and verifies ownership.
func (s *TestService) getOwned(ctx context.Context, id uuid.UUID, teacherID int) (*model.Test, error) {
	test, err := s.testRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	if test.TeacherID != teacherID {
		return nil, ErrNotTestOwner
	}
	return test, nil
}

// GetOwned retrieves a test with questions for its owning teacher.
func (s *TestService) GetOwned(ctx context.Context, id uuid.UUID, teacherID int) (*model.Test, error) {
	if _, err := s.getOwned(ctx, id, teacherID); err != nil {
		return nil, err
	}
	return s.testRepo.GetWithQuestions(ctx, id)
}

// Update modifies an owned test and invalidates its cached payload. Editing
// while students hold in-progress sessions regrades those sessions against
// the new question set at submission time.
func (s *TestService) Update(ctx context.Context, id uuid.UUID, teacherID int, req *model.UpdateTestRequest) (*model.Test, error) {
	test, err := s.getOwned(ctx, id, teacherID)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		test.Title = req.Title
	}
	if req.Department != "" {
		test.Department = req.Department
	}
	if req.Semester != "" {
		test.Semester = req.Semester
	}
	if req.DurationMinutes != 0 {
		test.DurationMinutes = req.DurationMinutes
	}
	if req.StartTime != nil {
		test.StartTime = req.StartTime
	}
	if req.Settings != nil {
		test.Settings = *req.Settings
	}
	if req.Questions != nil {
		questions, err := buildQuestions(req.Questions)
		if err != nil {
			return nil, err
		}
		test.Questions = questions
	}

	if err := s.testRepo.Update(ctx, test); err != nil {
		return nil, fmt.Errorf("update test: %w", err)
	}

	s.invalidateCache(ctx, id)
	return s.testRepo.GetWithQuestions(ctx, id)
}

// SetActive toggles the active flag and keeps the payload cache coherent:
// the cache is dropped on every toggle and lazily rebuilt on the next serve.
func (s *TestService) SetActive(ctx context.Context, id uuid.UUID, teacherID int, active bool) error {
	if _, err := s.getOwned(ctx, id, teacherID); err != nil {
		return err
	}
	if err := s.testRepo.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	s.invalidateCache(ctx, id)
	s.log.Info().Str("test_id", id.String()).Bool("active", active).Msg("Test active flag changed")
	return nil
}

// Delete removes an owned test. Existing results keep their (now dangling)
// test reference.
func (s *TestService) Delete(ctx context.Context, id uuid.UUID, teacherID int) error {
	if _, err := s.getOwned(ctx, id, teacherID); err != nil {
		return err
	}
	if err := s.testRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete test: %w", err)
	}

	s.invalidateCache(ctx, id)
	s.log.Info().Str("test_id", id.String()).Msg("Test deleted")
	return nil
}

// ListByTeacher retrieves the teacher's own tests.
func (s *TestService) ListByTeacher(ctx context.Context, teacherID int) ([]model.Test, error) {
	return s.testRepo.ListByTeacher(ctx, teacherID)
}

// StudentTest is a lobby entry: an available test with an attempted overlay.
type StudentTest struct {
	model.Test
	Attempted bool `json:"attempted"`
}

// ListForStudent retrieves active tests for the student's department and
// semester, marking those already attempted.
func (s *TestService) ListForStudent(ctx context.Context, studentID int, department, semester string) ([]StudentTest, error) {
	tests, err := s.testRepo.ListActiveForStudent(ctx, department, semester)
	if err != nil {
		return nil, fmt.Errorf("list active tests: %w", err)
	}

	attempted, err := s.resultRepo.AttemptedTestIDs(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempted tests: %w", err)
	}

	lobby := make([]StudentTest, 0, len(tests))
	for _, t := range tests {
		lobby = append(lobby, StudentTest{Test: t, Attempted: attempted[t.ID]})
	}
	return lobby, nil
}

// ListResults retrieves all results for an owned test.
func (s *TestService) ListResults(ctx context.Context, id uuid.UUID, teacherID int) ([]model.Result, error) {
	if _, err := s.getOwned(ctx, id, teacherID); err != nil {
		return nil, err
	}
	return s.resultRepo.ListByTest(ctx, id)
}

func (s *TestService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("test_id", id.String()).Msg("Payload cache invalidation failed")
	}
}
