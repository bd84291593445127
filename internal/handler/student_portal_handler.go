package handler

import (
	"errors"
	"net/http"

	"github.com/assessio/assessio-backend/internal/middleware"
	"github.com/assessio/assessio-backend/internal/model"
	"github.com/assessio/assessio-backend/internal/repository"
	"github.com/assessio/assessio-backend/internal/response"
	"github.com/assessio/assessio-backend/internal/service"
	"github.com/assessio/assessio-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StudentPortalHandler handles the student-facing test-taking endpoints.
type StudentPortalHandler struct {
	attemptService   *service.AttemptService
	testService      *service.TestService
	violationService *service.ViolationService
	users            *repository.UserRepository
	results          *repository.ResultRepository
	log              zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	attemptService *service.AttemptService,
	testService *service.TestService,
	violationService *service.ViolationService,
	users *repository.UserRepository,
	results *repository.ResultRepository,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService:   attemptService,
		testService:      testService,
		violationService: violationService,
		users:            users,
		results:          results,
		log:              log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetLobby godoc
// GET /api/v1/student/tests
// Lists the active tests for the student's department and semester, each
// flagged with whether the student has already attempted it.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)

	student, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	tests, err := h.testService.ListForStudent(c.Request.Context(), student.ID, student.Department, student.Semester)
	if err != nil {
		h.log.Error().Err(err).Msg("list student tests")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tests": tests})
}

// StartTest godoc
// GET /api/v1/student/tests/:test_id/start
// Returns the served copy of the test: answers stripped, order randomized
// per settings. Denials carry the reason the session cannot begin.
func (h *StudentPortalHandler) StartTest(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	served, err := h.attemptService.StartSession(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": served})
}

// SubmitTest godoc
// POST /api/v1/student/tests/:test_id/submit
// Grades and persists the attempt. Exactly one submission per student per
// test is accepted, no matter how the requests race.
func (h *StudentPortalHandler) SubmitTest(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	receipt, err := h.attemptService.AcceptSubmission(c.Request.Context(), testID, claims.UserID, req.Answers)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusCreated, receipt)
}

// ReportViolation godoc
// POST /api/v1/student/tests/:test_id/violations
// Records a proctoring event (tab hidden, fullscreen exit). Persistence is
// asynchronous through the violation queue.
func (h *StudentPortalHandler) ReportViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.violationService.Report(c.Request.Context(), testID, claims.UserID, req.Type); err != nil {
		h.log.Error().Err(err).Msg("report violation")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{})
}

// GetMyResults godoc
// GET /api/v1/student/results
// Lists the student's score cards, most recent first.
func (h *StudentPortalHandler) GetMyResults(c *gin.Context) {
	claims := middleware.GetClaims(c)

	results, err := h.results.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("list student results")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// GetMyResult godoc
// GET /api/v1/student/results/:result_id
// Returns one score card with its annotated answer transcript.
func (h *StudentPortalHandler) GetMyResult(c *gin.Context) {
	claims := middleware.GetClaims(c)

	resultID, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.results.GetByID(c.Request.Context(), resultID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if result.StudentID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// failAttempt maps gatekeeper errors onto the response envelope. The
// NotYetOpen message is passed through verbatim because it carries the
// formatted start instant.
func (h *StudentPortalHandler) failAttempt(c *gin.Context, err error) {
	var notYetOpen *service.NotYetOpenError
	switch {
	case errors.Is(err, service.ErrTestNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrTestInactive):
		response.Fail(c, http.StatusForbidden, response.ErrTestInactive)
	case errors.As(err, &notYetOpen):
		response.FailMsg(c, http.StatusForbidden, response.ErrTestNotStarted, notYetOpen.Error())
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	default:
		h.log.Error().Err(err).Msg("attempt operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
