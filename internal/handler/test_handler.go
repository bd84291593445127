package handler

import (
	"errors"
	"net/http"

	"github.com/assessio/assessio-backend/internal/middleware"
	"github.com/assessio/assessio-backend/internal/model"
	"github.com/assessio/assessio-backend/internal/response"
	"github.com/assessio/assessio-backend/internal/service"
	"github.com/assessio/assessio-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TestHandler handles the teacher-facing test management endpoints.
type TestHandler struct {
	testService *service.TestService
	log         zerolog.Logger
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService, log zerolog.Logger) *TestHandler {
	return &TestHandler{
		testService: testService,
		log:         log.With().Str("component", "test_handler").Logger(),
	}
}

// failTest maps test-service errors onto the response envelope.
func (h *TestHandler) failTest(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTestNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotTestOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotTestOwner)
	case errors.Is(err, service.ErrCorrectNotAnOption):
		response.Fail(c, http.StatusBadRequest, response.ErrAnswerNotAnOption)
	default:
		h.log.Error().Err(err).Msg("test operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// Create godoc
// POST /api/v1/teacher/tests
func (h *TestHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		h.failTest(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test": test})
}

// List godoc
// GET /api/v1/teacher/tests
func (h *TestHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)

	tests, err := h.testService.ListByTeacher(c.Request.Context(), claims.UserID)
	if err != nil {
		h.failTest(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tests": tests})
}

// Get godoc
// GET /api/v1/teacher/tests/:test_id
func (h *TestHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	test, err := h.testService.GetOwned(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		h.failTest(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// Update godoc
// PUT /api/v1/teacher/tests/:test_id
func (h *TestHandler) Update(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Update(c.Request.Context(), testID, claims.UserID, &req)
	if err != nil {
		h.failTest(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// SetActive godoc
// PATCH /api/v1/teacher/tests/:test_id/active
// Activates or deactivates a test for students.
func (h *TestHandler) SetActive(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetActiveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.testService.SetActive(c.Request.Context(), testID, claims.UserID, *req.IsActive); err != nil {
		h.failTest(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"active": *req.IsActive})
}

// Delete godoc
// DELETE /api/v1/teacher/tests/:test_id
// Removes a test and its questions. Existing results are kept.
func (h *TestHandler) Delete(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.testService.Delete(c.Request.Context(), testID, claims.UserID); err != nil {
		h.failTest(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListResults godoc
// GET /api/v1/teacher/tests/:test_id/results
// Returns every submitted result for a test the teacher owns.
func (h *TestHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	results, err := h.testService.ListResults(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		h.failTest(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}
