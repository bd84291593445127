package grading

import (
	"reflect"
	"testing"

	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
)

func q(id uuid.UUID, text string, marks int, correct string, options ...string) model.Question {
	return model.Question{
		ID:            id,
		QuestionText:  text,
		Options:       options,
		CorrectAnswer: correct,
		Marks:         marks,
	}
}

func TestGrade(t *testing.T) {
	q1 := uuid.New()
	q2 := uuid.New()
	q3 := uuid.New()

	questions := []model.Question{
		q(q1, "2+2?", 1, "4", "3", "4", "5"),
		q(q2, "Capital of France?", 2, "Paris", "Paris", "Lyon"),
		q(q3, "Largest planet?", 3, "Jupiter", "Mars", "Jupiter"),
	}

	tests := []struct {
		name      string
		answers   []model.RawAnswer
		score     int
		attempted map[uuid.UUID]string // expected selected option per question
		correct   map[uuid.UUID]bool
	}{
		{
			name: "all correct",
			answers: []model.RawAnswer{
				{QuestionID: q1, Value: "4"},
				{QuestionID: q2, Value: "Paris"},
				{QuestionID: q3, Value: "Jupiter"},
			},
			score:   6,
			correct: map[uuid.UUID]bool{q1: true, q2: true, q3: true},
		},
		{
			name: "partially answered",
			answers: []model.RawAnswer{
				{QuestionID: q1, Value: "4"},
			},
			score:     1,
			attempted: map[uuid.UUID]string{q2: NotAttempted, q3: NotAttempted},
			correct:   map[uuid.UUID]bool{q1: true},
		},
		{
			name: "wrong answers score zero",
			answers: []model.RawAnswer{
				{QuestionID: q1, Value: "3"},
				{QuestionID: q2, Value: "Lyon"},
			},
			score:     0,
			attempted: map[uuid.UUID]string{q3: NotAttempted},
			correct:   map[uuid.UUID]bool{},
		},
		{
			name:      "no answers at all",
			answers:   nil,
			score:     0,
			attempted: map[uuid.UUID]string{q1: NotAttempted, q2: NotAttempted, q3: NotAttempted},
			correct:   map[uuid.UUID]bool{},
		},
		{
			name: "unknown question IDs are ignored",
			answers: []model.RawAnswer{
				{QuestionID: uuid.New(), Value: "4"},
				{QuestionID: q2, Value: "Paris"},
			},
			score:   2,
			correct: map[uuid.UUID]bool{q2: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Grade(questions, tc.answers)

			if out.TotalMarks != 6 {
				t.Errorf("TotalMarks = %d, want 6", out.TotalMarks)
			}
			if out.Score != tc.score {
				t.Errorf("Score = %d, want %d", out.Score, tc.score)
			}
			if out.Score > out.TotalMarks {
				t.Errorf("Score %d exceeds TotalMarks %d", out.Score, out.TotalMarks)
			}
			if len(out.Answers) != len(questions) {
				t.Fatalf("got %d answer records, want %d", len(out.Answers), len(questions))
			}
			for _, rec := range out.Answers {
				if want, ok := tc.attempted[rec.QuestionID]; ok && rec.SelectedOption != want {
					t.Errorf("question %s: SelectedOption = %q, want %q", rec.QuestionID, rec.SelectedOption, want)
				}
				if rec.IsCorrect != tc.correct[rec.QuestionID] {
					t.Errorf("question %s: IsCorrect = %v, want %v", rec.QuestionID, rec.IsCorrect, tc.correct[rec.QuestionID])
				}
			}
		})
	}
}

// Grading must resolve by option value, not index: a submission produced from
// a shuffled option order still grades correct.
func TestGrade_ByValueNotPosition(t *testing.T) {
	id := uuid.New()
	question := q(id, "Pick B", 1, "B", "A", "B", "C")

	// The student saw ["C", "A", "B"] and picked the third option.
	out := Grade([]model.Question{question}, []model.RawAnswer{{QuestionID: id, Value: "B"}})
	if out.Score != 1 || !out.Answers[0].IsCorrect {
		t.Fatalf("value-equal answer graded wrong: %+v", out)
	}

	// Same index as the correct option's stored position, different value.
	out = Grade([]model.Question{question}, []model.RawAnswer{{QuestionID: id, Value: "A"}})
	if out.Score != 0 || out.Answers[0].IsCorrect {
		t.Fatalf("value-unequal answer graded correct: %+v", out)
	}
}

func TestGrade_Deterministic(t *testing.T) {
	q1 := uuid.New()
	q2 := uuid.New()
	questions := []model.Question{
		q(q1, "one", 1, "a", "a", "b"),
		q(q2, "two", 2, "c", "c", "d"),
	}
	answers := []model.RawAnswer{{QuestionID: q1, Value: "a"}}

	first := Grade(questions, answers)
	for i := 0; i < 10; i++ {
		if got := Grade(questions, answers); !reflect.DeepEqual(got, first) {
			t.Fatalf("grading not deterministic: %+v vs %+v", got, first)
		}
	}
}

// Example scenario from the score-card contract: two questions with marks
// [1,2], Q1 answered correctly, Q2 untouched.
func TestGrade_ScoreCardScenario(t *testing.T) {
	q1 := uuid.New()
	q2 := uuid.New()
	questions := []model.Question{
		q(q1, "first", 1, "yes", "yes", "no"),
		q(q2, "second", 2, "left", "left", "right"),
	}

	out := Grade(questions, []model.RawAnswer{{QuestionID: q1, Value: "yes"}})

	if out.Score != 1 || out.TotalMarks != 3 {
		t.Fatalf("score=%d total=%d, want 1/3", out.Score, out.TotalMarks)
	}
	if !out.Answers[0].IsCorrect {
		t.Errorf("Q1 should be correct")
	}
	if out.Answers[1].SelectedOption != NotAttempted || out.Answers[1].IsCorrect {
		t.Errorf("Q2 record = %+v, want Not Attempted / incorrect", out.Answers[1])
	}
}
