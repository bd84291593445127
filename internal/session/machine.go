// Package session implements the client-side lifecycle of a proctored test
// attempt: a pure state machine (Machine) driven by a serializing event loop
// (Runner) that talks to the backend through the Gateway port.
package session

import (
	"time"

	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
)

// State names a phase of the attempt lifecycle.
type State string

const (
	StateNotStarted   State = "NOT_STARTED"
	StateInstructions State = "INSTRUCTIONS"
	StateRunning      State = "RUNNING"
	StateSubmitting   State = "SUBMITTING"
	StateSubmitted    State = "SUBMITTED"
	StateBlocked      State = "BLOCKED"
)

// MaxViolations is the proctoring strike limit. Reaching it forces
// submission of whatever answers exist.
const MaxViolations = 3

// Machine holds the full state of one attempt. It is not safe for concurrent
// use; Runner serializes all access through its event loop.
type Machine struct {
	state      State
	test       *model.ServedTest
	remaining  time.Duration
	violations int
	// warningPending is set when a violation was recorded but the student
	// has not dismissed the warning yet. Time and further violations keep
	// counting while it is up.
	warningPending bool
	// submitFailed is set when both the submission attempt and its
	// automatic retry failed. The attempt stays in SUBMITTING with the
	// answers retained until a manual retry succeeds.
	submitFailed bool
	// selected maps question ID to the chosen option value.
	selected map[uuid.UUID]string
}

// NewMachine returns a machine in NOT_STARTED with nothing loaded.
func NewMachine() *Machine {
	return &Machine{
		state:    StateNotStarted,
		selected: make(map[uuid.UUID]string),
	}
}

func (m *Machine) State() State    { return m.state }
func (m *Machine) Violations() int { return m.violations }
func (m *Machine) WarningPending() bool {
	return m.warningPending
}

// Remaining reports the time left on the attempt clock.
func (m *Machine) Remaining() time.Duration { return m.remaining }

// Test returns the served test, nil before Load.
func (m *Machine) Test() *model.ServedTest { return m.test }

// Block moves to the terminal BLOCKED state. Valid only before the test
// payload is loaded; a blocked attempt never leaves this state.
func (m *Machine) Block() {
	if m.state == StateNotStarted {
		m.state = StateBlocked
	}
}

// Load installs the served test payload and shows the instructions screen.
func (m *Machine) Load(test *model.ServedTest) {
	if m.state != StateNotStarted {
		return
	}
	m.test = test
	m.remaining = time.Duration(test.DurationMinutes) * time.Minute
	m.state = StateInstructions
}

// Begin starts the attempt clock. Only valid from INSTRUCTIONS.
func (m *Machine) Begin() bool {
	if m.state != StateInstructions {
		return false
	}
	m.state = StateRunning
	return true
}

// Tick advances the clock by one interval. It reports true when the clock
// just hit zero, which obliges the caller to submit.
func (m *Machine) Tick(interval time.Duration) (expired bool) {
	if m.state != StateRunning {
		return false
	}
	m.remaining -= interval
	if m.remaining <= 0 {
		m.remaining = 0
		return true
	}
	return false
}

// RecordViolation counts a proctoring strike and raises the warning overlay.
// It reports true when the strike limit is reached, which obliges the caller
// to submit. Strikes past the limit are ignored.
func (m *Machine) RecordViolation() (limitReached bool) {
	if m.state != StateRunning {
		return false
	}
	if m.violations >= MaxViolations {
		return false
	}
	m.violations++
	m.warningPending = true
	return m.violations >= MaxViolations
}

// AcknowledgeWarning dismisses the violation overlay.
func (m *Machine) AcknowledgeWarning() {
	m.warningPending = false
}

// Select records the chosen option for a question. Unknown question IDs are
// ignored so a stale client cannot smuggle answers in.
func (m *Machine) Select(questionID uuid.UUID, value string) bool {
	if m.state != StateRunning || m.test == nil {
		return false
	}
	for i := range m.test.Questions {
		if m.test.Questions[i].ID == questionID {
			m.selected[questionID] = value
			return true
		}
	}
	return false
}

// Clear removes the recorded answer for a question.
func (m *Machine) Clear(questionID uuid.UUID) {
	if m.state != StateRunning {
		return
	}
	delete(m.selected, questionID)
}

// Answers flattens the selections into wire form, one entry per answered
// question, in served order.
func (m *Machine) Answers() []model.RawAnswer {
	if m.test == nil {
		return nil
	}
	answers := make([]model.RawAnswer, 0, len(m.selected))
	for _, q := range m.test.Questions {
		if value, ok := m.selected[q.ID]; ok {
			answers = append(answers, model.RawAnswer{QuestionID: q.ID, Value: value})
		}
	}
	return answers
}

// UnansweredCompulsory returns the 1-based served positions of compulsory
// questions that have no recorded answer. A manual submit must be refused
// while this is non-empty.
func (m *Machine) UnansweredCompulsory() []int {
	if m.test == nil {
		return nil
	}
	var positions []int
	for i, q := range m.test.Questions {
		if q.IsCompulsory {
			if _, ok := m.selected[q.ID]; !ok {
				positions = append(positions, i+1)
			}
		}
	}
	return positions
}

// Finish moves to SUBMITTING. It succeeds only from RUNNING, which makes it
// the re-entrancy guard: a second submit trigger while one is in flight is
// refused here.
func (m *Machine) Finish() bool {
	if m.state != StateRunning {
		return false
	}
	m.state = StateSubmitting
	return true
}

// SubmissionAccepted moves to the terminal SUBMITTED state.
func (m *Machine) SubmissionAccepted() {
	if m.state == StateSubmitting {
		m.state = StateSubmitted
		m.submitFailed = false
	}
}

// SubmissionFailed marks the in-flight submission as failed. The state stays
// SUBMITTING so no timer or violation path can trigger a second submission;
// the answers are retained and only a manual retry clears the flag.
func (m *Machine) SubmissionFailed() {
	if m.state == StateSubmitting {
		m.submitFailed = true
	}
}

// SubmitFailed reports whether the last submission attempt exhausted its
// automatic retry and is waiting on a manual one.
func (m *Machine) SubmitFailed() bool { return m.submitFailed }

// RetrySubmit clears the failure flag for a manual retry. It reports whether
// there was a failed submission to retry.
func (m *Machine) RetrySubmit() bool {
	if m.state != StateSubmitting || !m.submitFailed {
		return false
	}
	m.submitFailed = false
	return true
}
