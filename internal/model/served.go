package model

import "github.com/google/uuid"

// ServedQuestion is a question as handed to a student: correct answer stripped,
// options possibly reordered.
type ServedQuestion struct {
	ID           uuid.UUID `json:"id"`
	QuestionText string    `json:"questionText"`
	Options      []string  `json:"options"`
	Marks        int       `json:"marks"`
	IsCompulsory bool      `json:"isCompulsory"`
}

// ServedTest is the randomized, answer-stripped copy of a Test handed to a
// student when a session starts. The authoritative Test is never mutated.
type ServedTest struct {
	ID              uuid.UUID        `json:"id"`
	Title           string           `json:"title"`
	Department      string           `json:"department"`
	Semester        string           `json:"semester"`
	DurationMinutes int              `json:"duration"`
	Settings        TestSettings     `json:"settings"`
	Questions       []ServedQuestion `json:"questions"`
}

// RawAnswer is one entry of the submission wire format: the student's selected
// option value for a question. Unanswered questions simply have no entry.
type RawAnswer struct {
	QuestionID uuid.UUID `json:"questionId" binding:"required"`
	Value      string    `json:"value" binding:"required,max=500"`
}

// SubmitRequest is the payload for submitting an attempt.
type SubmitRequest struct {
	Answers []RawAnswer `json:"answers" binding:"dive"`
}
