package session

import (
	"testing"
	"time"

	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
)

func servedFixture() *model.ServedTest {
	return &model.ServedTest{
		ID:              uuid.New(),
		Title:           "Operating Systems",
		DurationMinutes: 1,
		Questions: []model.ServedQuestion{
			{ID: uuid.New(), QuestionText: "Scheduler?", Options: []string{"FCFS", "RR"}, Marks: 1},
			{ID: uuid.New(), QuestionText: "Deadlock?", Options: []string{"yes", "no"}, Marks: 2, IsCompulsory: true},
			{ID: uuid.New(), QuestionText: "Paging?", Options: []string{"a", "b"}, Marks: 1, IsCompulsory: true},
		},
	}
}

func runningMachine(t *testing.T) (*Machine, *model.ServedTest) {
	t.Helper()
	m := NewMachine()
	test := servedFixture()
	m.Load(test)
	if !m.Begin() {
		t.Fatal("Begin failed from INSTRUCTIONS")
	}
	return m, test
}

func TestMachine_Lifecycle(t *testing.T) {
	m := NewMachine()
	if m.State() != StateNotStarted {
		t.Fatalf("initial state %s", m.State())
	}

	m.Load(servedFixture())
	if m.State() != StateInstructions {
		t.Fatalf("after Load state %s", m.State())
	}
	if m.Remaining() != time.Minute {
		t.Errorf("Remaining = %v, want 1m", m.Remaining())
	}

	// Blocking only applies before a payload exists.
	m.Block()
	if m.State() != StateInstructions {
		t.Errorf("Block after Load changed state to %s", m.State())
	}

	if !m.Begin() {
		t.Fatal("Begin failed")
	}
	if m.Begin() {
		t.Error("second Begin succeeded")
	}
}

func TestMachine_BlockedIsTerminal(t *testing.T) {
	m := NewMachine()
	m.Block()
	if m.State() != StateBlocked {
		t.Fatalf("state %s, want BLOCKED", m.State())
	}
	m.Load(servedFixture())
	if m.State() != StateBlocked {
		t.Errorf("Load escaped BLOCKED into %s", m.State())
	}
	if m.Begin() {
		t.Error("Begin succeeded from BLOCKED")
	}
}

func TestMachine_TickCountsDownAndExpires(t *testing.T) {
	m, _ := runningMachine(t)

	for i := 0; i < 59; i++ {
		if m.Tick(time.Second) {
			t.Fatalf("expired early at tick %d", i)
		}
	}
	if m.Remaining() != time.Second {
		t.Errorf("Remaining = %v, want 1s", m.Remaining())
	}
	if !m.Tick(time.Second) {
		t.Fatal("tick 60 did not expire")
	}
	if m.Remaining() != 0 {
		t.Errorf("Remaining = %v after expiry", m.Remaining())
	}
}

func TestMachine_TickIgnoredOutsideRunning(t *testing.T) {
	m := NewMachine()
	m.Load(servedFixture())
	if m.Tick(time.Second) {
		t.Error("tick expired in INSTRUCTIONS")
	}
	if m.Remaining() != time.Minute {
		t.Errorf("clock moved in INSTRUCTIONS: %v", m.Remaining())
	}
}

func TestMachine_ViolationEscalation(t *testing.T) {
	m, _ := runningMachine(t)

	if m.RecordViolation() {
		t.Fatal("first violation reached limit")
	}
	if !m.WarningPending() {
		t.Error("first violation raised no warning")
	}

	// Time keeps running while the warning is up.
	m.Tick(time.Second)
	if m.Remaining() != 59*time.Second {
		t.Errorf("clock paused during warning: %v", m.Remaining())
	}

	m.AcknowledgeWarning()
	if m.WarningPending() {
		t.Error("warning not dismissed")
	}

	if m.RecordViolation() {
		t.Fatal("second violation reached limit")
	}
	// Third strike hits the limit even with its warning unacknowledged.
	if !m.RecordViolation() {
		t.Fatal("third violation did not reach limit")
	}
	if m.Violations() != MaxViolations {
		t.Errorf("violations = %d, want %d", m.Violations(), MaxViolations)
	}

	// Further strikes do not grow the counter.
	if m.RecordViolation() {
		t.Error("fourth violation re-reported the limit")
	}
	if m.Violations() != MaxViolations {
		t.Errorf("violations grew past the limit: %d", m.Violations())
	}
}

func TestMachine_SelectClearAnswers(t *testing.T) {
	m, test := runningMachine(t)

	if !m.Select(test.Questions[0].ID, "RR") {
		t.Fatal("Select rejected a served question")
	}
	if m.Select(uuid.New(), "anything") {
		t.Error("Select accepted an unknown question ID")
	}

	// Overwrite keeps a single entry.
	m.Select(test.Questions[0].ID, "FCFS")
	answers := m.Answers()
	if len(answers) != 1 || answers[0].Value != "FCFS" {
		t.Fatalf("answers = %+v, want single FCFS", answers)
	}

	m.Clear(test.Questions[0].ID)
	if len(m.Answers()) != 0 {
		t.Error("Clear left an answer behind")
	}
}

func TestMachine_AnswersInServedOrder(t *testing.T) {
	m, test := runningMachine(t)
	m.Select(test.Questions[2].ID, "a")
	m.Select(test.Questions[0].ID, "RR")

	answers := m.Answers()
	if len(answers) != 2 {
		t.Fatalf("got %d answers", len(answers))
	}
	if answers[0].QuestionID != test.Questions[0].ID || answers[1].QuestionID != test.Questions[2].ID {
		t.Error("answers not in served order")
	}
}

func TestMachine_UnansweredCompulsory(t *testing.T) {
	m, test := runningMachine(t)

	if got := m.UnansweredCompulsory(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("positions = %v, want [2 3]", got)
	}

	m.Select(test.Questions[1].ID, "yes")
	if got := m.UnansweredCompulsory(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("positions = %v, want [3]", got)
	}

	m.Select(test.Questions[2].ID, "b")
	if got := m.UnansweredCompulsory(); len(got) != 0 {
		t.Fatalf("positions = %v, want none", got)
	}
}

func TestMachine_SubmittingGuard(t *testing.T) {
	m, _ := runningMachine(t)

	if !m.Finish() {
		t.Fatal("Finish failed from RUNNING")
	}
	if m.State() != StateSubmitting {
		t.Fatalf("state %s, want SUBMITTING", m.State())
	}

	// Every further trigger path is dead while submitting.
	if m.Finish() {
		t.Error("second Finish succeeded")
	}
	if m.Tick(time.Second) {
		t.Error("tick fired while SUBMITTING")
	}
	if m.RecordViolation() {
		t.Error("violation recorded while SUBMITTING")
	}

	m.SubmissionAccepted()
	if m.State() != StateSubmitted {
		t.Fatalf("state %s, want SUBMITTED", m.State())
	}
	if m.Finish() {
		t.Error("Finish succeeded from SUBMITTED")
	}
}

func TestMachine_FailedSubmissionRetainsAnswers(t *testing.T) {
	m, test := runningMachine(t)
	m.Select(test.Questions[0].ID, "RR")

	m.Finish()
	m.SubmissionFailed()

	if m.State() != StateSubmitting {
		t.Fatalf("state %s, want SUBMITTING after failure", m.State())
	}
	if !m.SubmitFailed() {
		t.Fatal("failure flag not set")
	}
	if len(m.Answers()) != 1 {
		t.Fatal("answers dropped on failed submission")
	}

	if !m.RetrySubmit() {
		t.Fatal("RetrySubmit refused")
	}
	if m.SubmitFailed() {
		t.Error("failure flag survived retry")
	}
	if m.RetrySubmit() {
		t.Error("RetrySubmit succeeded with no failure pending")
	}

	m.SubmissionAccepted()
	if m.State() != StateSubmitted {
		t.Fatalf("state %s, want SUBMITTED", m.State())
	}
}
