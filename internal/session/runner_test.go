package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeGateway struct {
	mu          sync.Mutex
	startErr    error
	served      *model.ServedTest
	submitFails int // number of AcceptSubmission calls to fail before succeeding
	submits     int
	lastAnswers []model.RawAnswer
}

func (g *fakeGateway) StartSession(_ context.Context, _ uuid.UUID) (*model.ServedTest, error) {
	if g.startErr != nil {
		return nil, g.startErr
	}
	return g.served, nil
}

func (g *fakeGateway) AcceptSubmission(_ context.Context, _ uuid.UUID, answers []model.RawAnswer) (*Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits++
	g.lastAnswers = answers
	if g.submits <= g.submitFails {
		return nil, errors.New("connection reset")
	}
	return &Receipt{ResultID: uuid.New(), Score: 1, TotalMarks: 3}, nil
}

func (g *fakeGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submits
}

type fakeCamera struct {
	denied   bool
	acquires atomic.Int32
	releases atomic.Int32
}

func (c *fakeCamera) Acquire(context.Context) error {
	if c.denied {
		return errors.New("permission denied")
	}
	c.acquires.Add(1)
	return nil
}

func (c *fakeCamera) Release() { c.releases.Add(1) }

type fakeScreen struct {
	enterErr error
	enters   atomic.Int32
	exits    atomic.Int32
}

func (s *fakeScreen) EnterFullscreen() error {
	s.enters.Add(1)
	return s.enterErr
}

func (s *fakeScreen) ExitFullscreen() { s.exits.Add(1) }

func newTestRunner(t *testing.T, gw *fakeGateway, cam *fakeCamera, scr *fakeScreen) *Runner {
	t.Helper()
	if gw.served == nil && gw.startErr == nil {
		gw.served = servedFixture()
	}
	r := NewRunner(uuid.New(), gw, cam, scr, zerolog.Nop(), WithTickInterval(2*time.Millisecond))
	t.Cleanup(r.Close)
	return r
}

// waitFor polls the snapshot until cond holds or the deadline passes.
func waitFor(t *testing.T, r *Runner, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := r.Snapshot(); cond(s) {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached, last snapshot: %+v", r.Snapshot())
	return Snapshot{}
}

func TestRunner_DeniedStartBlocks(t *testing.T) {
	gw := &fakeGateway{startErr: errors.New("you have already submitted this test")}
	cam := &fakeCamera{}
	r := newTestRunner(t, gw, cam, &fakeScreen{})

	err := r.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded against a denial")
	}

	s := r.Snapshot()
	if s.State != StateBlocked {
		t.Fatalf("state %s, want BLOCKED", s.State)
	}
	// The denial message is surfaced verbatim.
	if s.BlockReason != "you have already submitted this test" {
		t.Errorf("BlockReason = %q", s.BlockReason)
	}
	select {
	case <-r.Done():
	default:
		t.Error("Done not closed after block")
	}
	if cam.releases.Load() == 0 {
		t.Error("camera not released on blocked exit")
	}
}

func TestRunner_CameraDenialKeepsInstructions(t *testing.T) {
	gw := &fakeGateway{served: servedFixture()}
	gw.served.Settings.RequireCamera = true
	cam := &fakeCamera{denied: true}
	r := newTestRunner(t, gw, cam, &fakeScreen{})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := r.Begin(context.Background())
	if !errors.Is(err, ErrCameraRequired) {
		t.Fatalf("Begin err = %v, want ErrCameraRequired", err)
	}
	if s := r.Snapshot(); s.State != StateInstructions {
		t.Fatalf("state %s, want INSTRUCTIONS after camera denial", s.State)
	}

	// Granting access lets the same session proceed.
	cam.denied = false
	if err := r.Begin(context.Background()); err != nil {
		t.Fatalf("Begin after grant: %v", err)
	}
	if s := r.Snapshot(); s.State != StateRunning {
		t.Fatalf("state %s, want RUNNING", s.State)
	}
}

func TestRunner_FullscreenFailureDoesNotBlock(t *testing.T) {
	gw := &fakeGateway{}
	scr := &fakeScreen{enterErr: errors.New("not allowed")}
	r := newTestRunner(t, gw, &fakeCamera{}, scr)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if s := r.Snapshot(); s.State != StateRunning {
		t.Fatalf("state %s, want RUNNING despite fullscreen failure", s.State)
	}
	if scr.enters.Load() != 1 {
		t.Error("fullscreen entry not attempted")
	}
}

func TestRunner_TimeoutAutoSubmits(t *testing.T) {
	gw := &fakeGateway{}
	cam := &fakeCamera{}
	r := newTestRunner(t, gw, cam, &fakeScreen{})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Fixture duration is one minute, paced at 2ms a second.
	s := waitFor(t, r, func(s Snapshot) bool { return s.State == StateSubmitted })
	if s.Receipt == nil {
		t.Fatal("no receipt after auto-submit")
	}
	if gw.submitCount() != 1 {
		t.Fatalf("%d submissions, want exactly 1", gw.submitCount())
	}
	// Zero answers is a valid submission.
	if len(gw.lastAnswers) != 0 {
		t.Errorf("answers = %+v, want none", gw.lastAnswers)
	}
	if cam.releases.Load() == 0 {
		t.Error("camera not released on submit")
	}
}

func TestRunner_ThirdViolationAutoSubmits(t *testing.T) {
	gw := &fakeGateway{}
	r := newTestRunner(t, gw, &fakeCamera{}, &fakeScreen{})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// A mix of both monitored events counts on one ladder.
	r.VisibilityHidden()
	waitFor(t, r, func(s Snapshot) bool { return s.Violations == 1 })
	r.AcknowledgeWarning()
	r.FullscreenExited()
	waitFor(t, r, func(s Snapshot) bool { return s.Violations == 2 })
	if s := r.Snapshot(); s.State != StateRunning {
		t.Fatalf("state %s after two violations, want RUNNING", s.State)
	}

	// Third strike submits without waiting for an acknowledgement.
	r.VisibilityHidden()
	waitFor(t, r, func(s Snapshot) bool { return s.State == StateSubmitted })
	if gw.submitCount() != 1 {
		t.Fatalf("%d submissions, want exactly 1", gw.submitCount())
	}
}

func TestRunner_CompulsoryGatesManualFinish(t *testing.T) {
	gw := &fakeGateway{served: servedFixture()}
	served := gw.served
	r := newTestRunner(t, gw, &fakeCamera{}, &fakeScreen{})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	err := r.Finish(ctx)
	var ce *CompulsoryError
	if !errors.As(err, &ce) {
		t.Fatalf("Finish err = %v, want *CompulsoryError", err)
	}
	if len(ce.Positions) != 2 || ce.Positions[0] != 2 || ce.Positions[1] != 3 {
		t.Fatalf("positions = %v, want [2 3]", ce.Positions)
	}

	if err := r.Select(ctx, served.Questions[1].ID, "yes"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := r.Select(ctx, served.Questions[2].ID, "a"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	// The same request goes through once the compulsory set is answered.
	if err := r.Finish(ctx); err != nil {
		t.Fatalf("Finish after answering: %v", err)
	}
	s := waitFor(t, r, func(s Snapshot) bool { return s.State == StateSubmitted })
	if s.Receipt == nil {
		t.Fatal("no receipt")
	}
	if len(gw.lastAnswers) != 2 {
		t.Fatalf("submitted %d answers, want 2", len(gw.lastAnswers))
	}
}

func TestRunner_AutomaticRetryRecoversOneFailure(t *testing.T) {
	gw := &fakeGateway{submitFails: 1}
	r := newTestRunner(t, gw, &fakeCamera{}, &fakeScreen{})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	answerEverything(t, ctx, r, gw.served)

	if err := r.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	s := waitFor(t, r, func(s Snapshot) bool { return s.State == StateSubmitted })
	if s.SubmitFailed {
		t.Error("failure flag set after recovered retry")
	}
	if gw.submitCount() != 2 {
		t.Fatalf("%d submission calls, want 2 (one failure, one retry)", gw.submitCount())
	}
}

func TestRunner_ExhaustedRetrySurfacesErrorAndKeepsAnswers(t *testing.T) {
	gw := &fakeGateway{submitFails: 2}
	r := newTestRunner(t, gw, &fakeCamera{}, &fakeScreen{})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	answerEverything(t, ctx, r, gw.served)

	if err := r.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	s := waitFor(t, r, func(s Snapshot) bool { return s.SubmitFailed })
	if s.State != StateSubmitting {
		t.Fatalf("state %s, want SUBMITTING in persistent-error state", s.State)
	}
	if gw.submitCount() != 2 {
		t.Fatalf("%d submission calls before manual retry, want 2", gw.submitCount())
	}

	// No trigger path may fire another submission while waiting.
	r.VisibilityHidden()
	r.FullscreenExited()
	time.Sleep(20 * time.Millisecond)
	if gw.submitCount() != 2 {
		t.Fatalf("background events triggered extra submissions: %d", gw.submitCount())
	}

	// The manual retry delivers the retained answers.
	r.RetrySubmit()
	s = waitFor(t, r, func(s Snapshot) bool { return s.State == StateSubmitted })
	if s.Receipt == nil {
		t.Fatal("no receipt after manual retry")
	}
	if len(gw.lastAnswers) != len(gw.served.Questions) {
		t.Fatalf("retry submitted %d answers, want %d", len(gw.lastAnswers), len(gw.served.Questions))
	}
}

func TestRunner_CloseReleasesResources(t *testing.T) {
	gw := &fakeGateway{served: servedFixture()}
	gw.served.Settings.RequireCamera = true
	cam := &fakeCamera{}
	scr := &fakeScreen{}
	r := newTestRunner(t, gw, cam, scr)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Abrupt navigation away mid-attempt.
	r.Close()
	if cam.releases.Load() == 0 {
		t.Error("camera not released on Close")
	}
	if scr.exits.Load() == 0 {
		t.Error("fullscreen not exited on Close")
	}
	if err := r.Finish(ctx); !errors.Is(err, ErrSessionOver) {
		t.Errorf("Finish after Close = %v, want ErrSessionOver", err)
	}
}

func answerEverything(t *testing.T, ctx context.Context, r *Runner, served *model.ServedTest) {
	t.Helper()
	for _, q := range served.Questions {
		if err := r.Select(ctx, q.ID, q.Options[0]); err != nil {
			t.Fatalf("Select %s: %v", q.ID, err)
		}
	}
}
