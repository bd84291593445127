package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/assessio/assessio-backend/internal/config"
	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ViolationEvent is the queued form of a client-reported integrity event.
// The worker drains these into PostgreSQL in batches; the monitor channel
// receives them live.
type ViolationEvent struct {
	TestID     uuid.UUID           `json:"test_id"`
	StudentID  int                 `json:"student_id"`
	Type       model.ViolationType `json:"type"`
	RecordedAt time.Time           `json:"recorded_at"`
}

// ViolationService fans a reported violation out to the persistence queue
// and the live monitor channel.
type ViolationService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewViolationService creates a ViolationService.
func NewViolationService(rdb *redis.Client, log zerolog.Logger) *ViolationService {
	return &ViolationService{
		rdb: rdb,
		log: log.With().Str("component", "violation_service").Logger(),
	}
}

// Report enqueues one violation. Persistence is asynchronous; the call
// returns as soon as the event is queued.
func (s *ViolationService) Report(ctx context.Context, testID uuid.UUID, studentID int, vtype model.ViolationType) error {
	event := ViolationEvent{
		TestID:     testID,
		StudentID:  studentID,
		Type:       vtype,
		RecordedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal violation event: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue violation event: %w", err)
	}

	// Live monitors are best-effort; a missed publish only delays the
	// teacher's view, the queued event is still persisted.
	channel := config.CacheKey.TestMonitorChannel(testID.String())
	if err := s.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("monitor publish failed")
	}
	return nil
}
