package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Receipt is what a successful submission hands back.
type Receipt struct {
	ResultID   uuid.UUID `json:"resultId"`
	Score      int       `json:"score"`
	TotalMarks int       `json:"totalMarks"`
}

// Gateway is the backend boundary of a session: start an attempt and hand in
// its answers. Implementations identify the student themselves (token, user
// record), the session only knows the test.
type Gateway interface {
	StartSession(ctx context.Context, testID uuid.UUID) (*model.ServedTest, error)
	AcceptSubmission(ctx context.Context, testID uuid.UUID, answers []model.RawAnswer) (*Receipt, error)
}

// Camera abstracts the proctoring capture device. Release must be safe to
// call more than once and without a prior successful Acquire.
type Camera interface {
	Acquire(ctx context.Context) error
	Release()
}

// Screen abstracts fullscreen control. Entering is best-effort; a session
// runs without it.
type Screen interface {
	EnterFullscreen() error
	ExitFullscreen()
}

// ErrCameraRequired is returned by Begin when the test demands a camera and
// acquisition failed. The session stays on the instructions screen so the
// student can fix the device and try again.
var ErrCameraRequired = errors.New("camera access is required for this test")

// ErrSessionOver is returned when an operation arrives after the session
// reached a terminal state.
var ErrSessionOver = errors.New("session is over")

// ErrNotRunning is returned for operations that only make sense while the
// attempt clock is running.
var ErrNotRunning = errors.New("session is not running")

// CompulsoryError rejects a manual finish while compulsory questions are
// unanswered. Positions are 1-based in served order.
type CompulsoryError struct {
	Positions []int
}

func (e *CompulsoryError) Error() string {
	return fmt.Sprintf("compulsory questions unanswered at positions %v", e.Positions)
}

// Snapshot is a point-in-time read of the session, safe from any goroutine.
type Snapshot struct {
	State          State
	Remaining      time.Duration
	Violations     int
	WarningPending bool
	SubmitFailed   bool
	BlockReason    string
	Receipt        *Receipt
}

type eventKind int

const (
	evBegin eventKind = iota
	evTick
	evVisibilityHidden
	evFullscreenExit
	evAcknowledge
	evSelect
	evClear
	evFinish
	evRetrySubmit
)

type event struct {
	kind       eventKind
	questionID uuid.UUID
	value      string
	reply      chan error
}

// Runner owns one attempt. All state lives in an embedded Machine mutated
// only by the run goroutine; external callers post events onto one queue so
// timer ticks, integrity monitors and student actions never interleave.
type Runner struct {
	testID  uuid.UUID
	gateway Gateway
	camera  Camera
	screen  Screen
	log     zerolog.Logger

	// tickInterval paces the one-second attempt clock. Production keeps
	// it at a real second; tests shrink it to fast-forward.
	tickInterval time.Duration

	// Owned by the run goroutine after Start.
	machine     *Machine
	receipt     *Receipt
	blockReason string

	events chan event
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	snapshot Snapshot
}

// Option tweaks a Runner.
type Option func(*Runner)

// WithTickInterval overrides the real-time pacing of the attempt clock. A
// tick still counts one second of attempt time.
func WithTickInterval(d time.Duration) Option {
	return func(r *Runner) { r.tickInterval = d }
}

// NewRunner builds a Runner for one attempt at testID. Start must be called
// before any other method.
func NewRunner(testID uuid.UUID, gateway Gateway, camera Camera, screen Screen, log zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		testID:       testID,
		gateway:      gateway,
		camera:       camera,
		screen:       screen,
		log:          log.With().Str("component", "session").Str("test_id", testID.String()).Logger(),
		tickInterval: time.Second,
		machine:      NewMachine(),
		events:       make(chan event, 64),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.publish()
	return r
}

// Start fetches the served test through the gateway. A denial blocks the
// session terminally with the denial message surfaced verbatim; on success
// the session shows instructions and the event loop starts.
func (r *Runner) Start(ctx context.Context) error {
	if r.machine.State() != StateNotStarted {
		return ErrSessionOver
	}

	served, err := r.gateway.StartSession(ctx, r.testID)
	if err != nil {
		r.machine.Block()
		r.blockReason = err.Error()
		r.publish()
		r.closeDone()
		r.log.Warn().Err(err).Msg("session blocked")
		return err
	}

	r.machine.Load(served)
	r.publish()
	go r.run(ctx)
	return nil
}

// Begin moves from the instructions screen into the running attempt. When
// the test requires a camera, acquisition must succeed first; fullscreen is
// attempted but never blocks entry.
func (r *Runner) Begin(ctx context.Context) error {
	return r.roundTrip(ctx, event{kind: evBegin})
}

// VisibilityHidden reports the page going hidden, one violation.
func (r *Runner) VisibilityHidden() { r.post(event{kind: evVisibilityHidden}) }

// FullscreenExited reports fullscreen being left mid-attempt, one violation.
func (r *Runner) FullscreenExited() { r.post(event{kind: evFullscreenExit}) }

// AcknowledgeWarning dismisses the current violation warning.
func (r *Runner) AcknowledgeWarning() { r.post(event{kind: evAcknowledge}) }

// Select records an answer for a question.
func (r *Runner) Select(ctx context.Context, questionID uuid.UUID, value string) error {
	return r.roundTrip(ctx, event{kind: evSelect, questionID: questionID, value: value})
}

// Clear removes the recorded answer for a question.
func (r *Runner) Clear(questionID uuid.UUID) { r.post(event{kind: evClear, questionID: questionID}) }

// Finish requests a manual submit. It fails with *CompulsoryError when
// compulsory questions are unanswered, listing their 1-based positions.
func (r *Runner) Finish(ctx context.Context) error {
	return r.roundTrip(ctx, event{kind: evFinish})
}

// RetrySubmit manually retries a submission whose automatic retry failed.
func (r *Runner) RetrySubmit() { r.post(event{kind: evRetrySubmit}) }

// Snapshot returns the latest published session state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// Done closes when the session reaches a terminal state or is closed.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Close tears the session down. The camera is released and fullscreen exited
// regardless of how far the attempt got.
func (r *Runner) Close() {
	r.closeDone()
}

// run is the event loop. It is the only goroutine that touches the machine
// once started.
func (r *Runner) run(ctx context.Context) {
	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			r.closeDone()
			return
		case ev := <-r.events:
			r.handle(ctx, ev)
			r.publish()
		}
	}
}

func (r *Runner) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evBegin:
		ev.reply <- r.begin(ctx)

	case evTick:
		// Each tick is one second of attempt time no matter how fast the
		// ticker fires.
		if r.machine.Tick(time.Second) {
			r.log.Info().Msg("time expired, submitting")
			r.submit(ctx)
		}

	case evVisibilityHidden, evFullscreenExit:
		if r.machine.RecordViolation() {
			r.log.Warn().Int("violations", r.machine.Violations()).Msg("violation limit reached, submitting")
			r.submit(ctx)
		} else if r.machine.State() == StateRunning {
			r.log.Warn().Int("violations", r.machine.Violations()).Msg("violation recorded")
		}

	case evAcknowledge:
		r.machine.AcknowledgeWarning()

	case evSelect:
		if r.machine.State() != StateRunning {
			ev.reply <- ErrNotRunning
			return
		}
		r.machine.Select(ev.questionID, ev.value)
		ev.reply <- nil

	case evClear:
		r.machine.Clear(ev.questionID)

	case evFinish:
		if r.machine.State() != StateRunning {
			ev.reply <- ErrNotRunning
			return
		}
		if missing := r.machine.UnansweredCompulsory(); len(missing) > 0 {
			ev.reply <- &CompulsoryError{Positions: missing}
			return
		}
		// Reply before submitting: a successful submit ends the session,
		// and the caller must not mistake that for the session being gone.
		ev.reply <- nil
		r.submit(ctx)

	case evRetrySubmit:
		if r.machine.RetrySubmit() {
			r.deliver(ctx)
		}
	}
}

func (r *Runner) begin(ctx context.Context) error {
	test := r.machine.Test()
	if test == nil || r.machine.State() != StateInstructions {
		return ErrSessionOver
	}

	if test.Settings.RequireCamera {
		if err := r.camera.Acquire(ctx); err != nil {
			r.log.Warn().Err(err).Msg("camera acquisition failed")
			return fmt.Errorf("%w: %s", ErrCameraRequired, err)
		}
	}
	if err := r.screen.EnterFullscreen(); err != nil {
		// Best effort. The attempt runs windowed.
		r.log.Warn().Err(err).Msg("fullscreen entry failed")
	}

	r.machine.Begin()
	go r.runClock()
	return nil
}

// runClock posts one tick per interval until the session ends.
func (r *Runner) runClock() {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if !r.post(event{kind: evTick}) {
				return
			}
		}
	}
}

// submit funnels every trigger path through the one-shot SUBMITTING guard.
// Whichever of timeout, third violation or manual finish gets here first
// wins; the rest are no-ops.
func (r *Runner) submit(ctx context.Context) {
	if !r.machine.Finish() {
		return
	}
	// Capture stops before anything goes over the wire.
	r.camera.Release()
	r.deliver(ctx)
}

// deliver performs the submission network call with one automatic retry.
// Answers stay in the machine until a success response is observed.
func (r *Runner) deliver(ctx context.Context) {
	answers := r.machine.Answers()

	receipt, err := r.gateway.AcceptSubmission(ctx, r.testID, answers)
	if err != nil {
		r.log.Warn().Err(err).Msg("submission failed, retrying")
		receipt, err = r.gateway.AcceptSubmission(ctx, r.testID, answers)
	}
	if err != nil {
		r.log.Error().Err(err).Msg("submission retry failed")
		r.machine.SubmissionFailed()
		return
	}

	r.receipt = receipt
	r.machine.SubmissionAccepted()
	r.log.Info().Str("result_id", receipt.ResultID.String()).Int("score", receipt.Score).Msg("submission accepted")
	r.publish()
	r.closeDone()
}

func (r *Runner) post(ev event) bool {
	select {
	case <-r.done:
		return false
	case r.events <- ev:
		return true
	}
}

// roundTrip posts an event carrying a reply channel and waits for the loop
// to answer it.
func (r *Runner) roundTrip(ctx context.Context, ev event) error {
	ev.reply = make(chan error, 1)
	if !r.post(ev) {
		return ErrSessionOver
	}
	select {
	case err := <-ev.reply:
		return err
	case <-r.done:
		// The loop may have answered and then closed done in the same
		// handler; prefer the answer when it is already there.
		select {
		case err := <-ev.reply:
			return err
		default:
			return ErrSessionOver
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) closeDone() {
	r.once.Do(func() {
		close(r.done)
		r.camera.Release()
		r.screen.ExitFullscreen()
	})
}

func (r *Runner) publish() {
	s := Snapshot{
		State:          r.machine.State(),
		Remaining:      r.machine.Remaining(),
		Violations:     r.machine.Violations(),
		WarningPending: r.machine.WarningPending(),
		SubmitFailed:   r.machine.SubmitFailed(),
		BlockReason:    r.blockReason,
		Receipt:        r.receipt,
	}
	r.mu.Lock()
	r.snapshot = s
	r.mu.Unlock()
}
