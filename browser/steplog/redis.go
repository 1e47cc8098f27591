package steplog

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/testflow/internal/cache"
	"github.com/BaSui01/testflow/internal/ctxkeys"
)

// StreamStore is the subset of the redis manager used by RedisSink.
type StreamStore interface {
	Append(ctx context.Context, stream string, fields map[string]any) (string, error)
	Range(ctx context.Context, stream string, count int64) ([]cache.Entry, error)
	Length(ctx context.Context, stream string) (int64, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisSink publishes step events to a per-session redis stream and keeps a
// snapshot of the latest step of each session.
type RedisSink struct {
	store  StreamStore
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSink creates a sink writing to "<prefix>:steps:<session>" streams.
func NewRedisSink(store StreamStore, prefix string, logger *zap.Logger) *RedisSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "testflow"
	}
	return &RedisSink{
		store:  store,
		prefix: prefix,
		logger: logger.With(zap.String("component", "steplog_redis")),
	}
}

// WithTTL sets the expiry of latest-step snapshots. Zero uses the store default.
func (r *RedisSink) WithTTL(ttl time.Duration) *RedisSink {
	r.ttl = ttl
	return r
}

// StreamKey returns the stream holding events of a session.
func (r *RedisSink) StreamKey(sessionID string) string {
	if sessionID == "" {
		sessionID = "default"
	}
	return r.prefix + ":steps:" + sessionID
}

// LatestKey returns the snapshot key of the latest step of a session.
func (r *RedisSink) LatestKey(sessionID string) string {
	if sessionID == "" {
		sessionID = "default"
	}
	return r.prefix + ":latest:" + sessionID
}

func (r *RedisSink) StartStep(ctx context.Context, step Step) {
	r.publish(ctx, step.SessionID, map[string]any{
		"event":      string(EventStart),
		"step_id":    step.ID,
		"action":     step.Action,
		"message":    step.Message,
		"started_at": step.StartedAt.UTC().Format(time.RFC3339Nano),
	})
	r.snapshot(ctx, step)
}

func (r *RedisSink) EndStep(ctx context.Context, step Step) {
	r.publish(ctx, step.SessionID, map[string]any{
		"event":       string(EventEnd),
		"step_id":     step.ID,
		"action":      step.Action,
		"outcome":     string(step.Outcome),
		"error":       step.Error,
		"duration_ms": strconv.FormatInt(step.Duration().Milliseconds(), 10),
	})
	r.snapshot(ctx, step)
}

func (r *RedisSink) File(ctx context.Context, path string, kind LogType) {
	sessionID, _ := ctxkeys.SessionID(ctx)
	stepID, _ := ctxkeys.StepID(ctx)
	r.publish(ctx, sessionID, map[string]any{
		"event":   string(EventFile),
		"step_id": stepID,
		"path":    path,
		"type":    string(kind),
	})
}

func (r *RedisSink) publish(ctx context.Context, sessionID string, fields map[string]any) {
	if _, err := r.store.Append(ctx, r.StreamKey(sessionID), fields); err != nil {
		r.logger.Warn("failed to publish step event",
			zap.String("session_id", sessionID),
			zap.Any("event", fields["event"]),
			zap.Error(err),
		)
	}
}

func (r *RedisSink) snapshot(ctx context.Context, step Step) {
	if err := r.store.SetJSON(ctx, r.LatestKey(step.SessionID), step, r.ttl); err != nil {
		r.logger.Warn("failed to store step snapshot", zap.String("step_id", step.ID), zap.Error(err))
	}
}

// =============================================================================
// 读取
// =============================================================================

// History returns up to count events of a session, oldest first.
// count <= 0 returns the whole stream.
func (r *RedisSink) History(ctx context.Context, sessionID string, count int64) ([]cache.Entry, error) {
	return r.store.Range(ctx, r.StreamKey(sessionID), count)
}

// Count returns the number of events recorded for a session.
func (r *RedisSink) Count(ctx context.Context, sessionID string) (int64, error) {
	return r.store.Length(ctx, r.StreamKey(sessionID))
}

// Latest returns the snapshot of the most recent step of a session.
// ok is false when no snapshot exists or it has expired.
func (r *RedisSink) Latest(ctx context.Context, sessionID string) (step Step, ok bool, err error) {
	if err := r.store.GetJSON(ctx, r.LatestKey(sessionID), &step); err != nil {
		if cache.IsCacheMiss(err) {
			return Step{}, false, nil
		}
		return Step{}, false, err
	}
	return step, true, nil
}

// Clear removes the event stream and the latest snapshot of a session.
func (r *RedisSink) Clear(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, r.StreamKey(sessionID), r.LatestKey(sessionID))
}
