package model

import (
	"time"

	"github.com/google/uuid"
)

// TestSettings controls serve-time randomization and proctoring requirements.
type TestSettings struct {
	ShuffleQuestions bool `json:"shuffleQuestions"`
	ShuffleOptions   bool `json:"shuffleOptions"`
	RequireCamera    bool `json:"requireCamera"`
}

// Question represents a single-select multiple-choice question owned by a Test.
// CorrectAnswer holds the correct option's value, not its index: grading must
// survive option shuffling.
type Question struct {
	ID            uuid.UUID `json:"id"`
	TestID        uuid.UUID `json:"test_id"`
	QuestionText  string    `json:"question_text"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	Marks         int       `json:"marks"`
	IsCompulsory  bool      `json:"is_compulsory"`
	OrderNum      int       `json:"order_num"`
}

// Test represents an authored test with its question set.
type Test struct {
	ID              uuid.UUID    `json:"id"`
	Title           string       `json:"title"`
	Department      string       `json:"department"`
	Semester        string       `json:"semester"`
	DurationMinutes int          `json:"duration_minutes"`
	StartTime       *time.Time   `json:"start_time,omitempty"`
	IsActive        bool         `json:"is_active"`
	Settings        TestSettings `json:"settings"`
	TeacherID       int          `json:"teacher_id"`
	Questions       []Question   `json:"questions,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// QuestionRequest is the payload for a question inside a create/update test request.
type QuestionRequest struct {
	QuestionText  string   `json:"question_text" binding:"required,min=1,max=2000"`
	Options       []string `json:"options" binding:"required,min=2,dive,required,max=500"`
	CorrectAnswer string   `json:"correct_answer" binding:"required,max=500"`
	Marks         int      `json:"marks" binding:"omitempty,min=1,max=100"`
	IsCompulsory  bool     `json:"is_compulsory"`
}

// CreateTestRequest is the payload for creating a new test.
type CreateTestRequest struct {
	Title           string            `json:"title" binding:"required,min=3,max=255"`
	Department      string            `json:"department" binding:"required,min=2,max=100"`
	Semester        string            `json:"semester" binding:"required,max=10"`
	DurationMinutes int               `json:"duration_minutes" binding:"required,min=1,max=480"`
	StartTime       *time.Time        `json:"start_time" binding:"omitempty"`
	Settings        TestSettings      `json:"settings"`
	Questions       []QuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// UpdateTestRequest is the payload for updating an existing test.
// A nil Questions slice leaves the question set untouched.
type UpdateTestRequest struct {
	Title           string            `json:"title" binding:"omitempty,min=3,max=255"`
	Department      string            `json:"department" binding:"omitempty,min=2,max=100"`
	Semester        string            `json:"semester" binding:"omitempty,max=10"`
	DurationMinutes int               `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	StartTime       *time.Time        `json:"start_time" binding:"omitempty"`
	Settings        *TestSettings     `json:"settings" binding:"omitempty"`
	Questions       []QuestionRequest `json:"questions" binding:"omitempty,min=1,dive"`
}

// SetActiveRequest toggles a test's active flag.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}
