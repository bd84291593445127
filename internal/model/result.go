package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is one annotated line of a result transcript.
type AnswerRecord struct {
	QuestionID     uuid.UUID `json:"question_id"`
	QuestionText   string    `json:"question_text"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
}

// Result is the immutable record of one completed attempt. Student fields are
// denormalized at submission time so the score card survives later profile
// edits. TestID may dangle after the test is deleted.
type Result struct {
	ID          uuid.UUID      `json:"id"`
	TestID      uuid.UUID      `json:"test_id"`
	StudentID   int            `json:"student_id"`
	StudentName string         `json:"student_name"`
	USN         string         `json:"usn"`
	Department  string         `json:"department"`
	Semester    string         `json:"semester"`
	Score       int            `json:"score"`
	TotalMarks  int            `json:"total_marks"`
	Answers     []AnswerRecord `json:"answers"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// ViolationType enumerates the two monitored integrity signals.
type ViolationType string

const (
	ViolationTabHidden      ViolationType = "TAB_HIDDEN"
	ViolationFullscreenExit ViolationType = "FULLSCREEN_EXIT"
)

// ReportViolationRequest is the payload for a client-reported integrity event.
type ReportViolationRequest struct {
	Type ViolationType `json:"type" binding:"required,oneof=TAB_HIDDEN FULLSCREEN_EXIT"`
}
