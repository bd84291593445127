// Package grading implements the pure scoring function applied when an
// attempt is submitted.
package grading

import (
	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
)

// NotAttempted is the sentinel recorded for questions the student left
// unanswered.
const NotAttempted = "Not Attempted"

// Outcome is the result of grading one submission.
type Outcome struct {
	Score      int
	TotalMarks int
	Answers    []model.AnswerRecord
}

// Grade scores a submission against the authoritative question set.
//
// Answers are matched to questions by question ID, and a selected option is
// judged by value equality against the question's correct answer, never by
// index, since options may have been served in shuffled order. TotalMarks sums
// the marks of every question regardless of whether it was attempted.
// Identical input always yields identical output.
func Grade(questions []model.Question, answers []model.RawAnswer) Outcome {
	selected := make(map[uuid.UUID]string, len(answers))
	for _, a := range answers {
		selected[a.QuestionID] = a.Value
	}

	out := Outcome{Answers: make([]model.AnswerRecord, 0, len(questions))}

	for _, q := range questions {
		out.TotalMarks += q.Marks

		rec := model.AnswerRecord{
			QuestionID:   q.ID,
			QuestionText: q.QuestionText,
		}

		value, answered := selected[q.ID]
		if !answered {
			rec.SelectedOption = NotAttempted
		} else {
			rec.SelectedOption = value
			rec.IsCorrect = value == q.CorrectAnswer
		}

		if rec.IsCorrect {
			out.Score += q.Marks
		}

		out.Answers = append(out.Answers, rec)
	}

	return out
}
