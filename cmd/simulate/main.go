// Command simulate drives full student sessions against a running server:
// register, start, answer, tick down and submit, with a configurable number
// of concurrent students. Useful for exercising the single-attempt guarantee
// and the violation pipeline under load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/assessio/assessio-backend/internal/logger"
	"github.com/assessio/assessio-backend/internal/model"
	"github.com/assessio/assessio-backend/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	var (
		baseURL  = flag.String("base-url", "http://localhost:8080", "Server base URL")
		testID   = flag.String("test-id", "", "Test to attempt (uuid, required)")
		students = flag.Int("students", 5, "Number of concurrent students")
		logLevel = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	log := logger.Setup(*logLevel, "console")

	id, err := uuid.Parse(*testID)
	if err != nil {
		log.Fatal().Msg("a valid -test-id is required")
	}

	ctx := context.Background()
	run := rand.Int31()

	var wg sync.WaitGroup
	for i := 0; i < *students; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := simulateStudent(ctx, *baseURL, id, run, n, log); err != nil {
				log.Error().Err(err).Int("student", n).Msg("simulation failed")
			}
		}(i)
	}
	wg.Wait()
}

func simulateStudent(ctx context.Context, baseURL string, testID uuid.UUID, run int32, n int, log zerolog.Logger) error {
	gw := &httpGateway{baseURL: baseURL, client: &http.Client{Timeout: 10 * time.Second}}

	if err := gw.register(ctx, run, n); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	r := session.NewRunner(testID, gw, noopCamera{}, noopScreen{}, log,
		session.WithTickInterval(50*time.Millisecond))
	defer r.Close()

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := r.Begin(ctx); err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	// Answer every question with a random option, report one violation on
	// the way to exercise the proctoring pipeline. StartSession has no
	// side effects, so fetching the paper again is safe.
	test, err := gw.StartSession(ctx, testID)
	if err == nil {
		for _, q := range test.Questions {
			_ = r.Select(ctx, q.ID, q.Options[rand.Intn(len(q.Options))])
		}
	}
	gw.reportViolation(ctx, testID)

	if err := r.Finish(ctx); err != nil {
		return fmt.Errorf("finish: %w", err)
	}

	<-r.Done()
	snap := r.Snapshot()
	if snap.Receipt != nil {
		log.Info().Int("student", n).Int("score", snap.Receipt.Score).Int("total", snap.Receipt.TotalMarks).Msg("submitted")
	}
	return nil
}

// httpGateway implements session.Gateway over the student HTTP API.
type httpGateway struct {
	baseURL string
	client  *http.Client
	token   string
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *httpGateway) register(ctx context.Context, run int32, n int) error {
	body := map[string]any{
		"name":       fmt.Sprintf("Sim Student %d", n),
		"email":      fmt.Sprintf("sim-%d-%d@example.com", run, n),
		"password":   "simulate123",
		"role":       "student",
		"department": "CSE",
		"usn":        fmt.Sprintf("SIM%d%04d", run%1000, n),
		"semester":   "5",
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := g.do(ctx, http.MethodPost, "/api/v1/auth/register", body, &resp); err != nil {
		return err
	}
	g.token = resp.Token
	return nil
}

func (g *httpGateway) StartSession(ctx context.Context, testID uuid.UUID) (*model.ServedTest, error) {
	var resp struct {
		Test *model.ServedTest `json:"test"`
	}
	path := fmt.Sprintf("/api/v1/student/tests/%s/start", testID)
	if err := g.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Test, nil
}

func (g *httpGateway) AcceptSubmission(ctx context.Context, testID uuid.UUID, answers []model.RawAnswer) (*session.Receipt, error) {
	var receipt session.Receipt
	path := fmt.Sprintf("/api/v1/student/tests/%s/submit", testID)
	if err := g.do(ctx, http.MethodPost, path, model.SubmitRequest{Answers: answers}, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (g *httpGateway) reportViolation(ctx context.Context, testID uuid.UUID) {
	path := fmt.Sprintf("/api/v1/student/tests/%s/violations", testID)
	_ = g.do(ctx, http.MethodPost, path, model.ReportViolationRequest{Type: model.ViolationTabHidden}, nil)
}

func (g *httpGateway) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	if env.Error != nil {
		return fmt.Errorf("%s %s: %s", method, path, env.Error.Message)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

type noopCamera struct{}

func (noopCamera) Acquire(context.Context) error { return nil }
func (noopCamera) Release()                      {}

type noopScreen struct{}

func (noopScreen) EnterFullscreen() error { return nil }
func (noopScreen) ExitFullscreen()        {}
