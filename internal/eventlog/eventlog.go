// Package eventlog appends bet events to a Redis stream so other services
// can consume the lifecycle without polling the API.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/metrics"
)

const (
	// DefaultStream is the stream key events are appended to.
	DefaultStream = "socialbets.events"

	// DefaultMaxLen caps the stream (approximately) so Redis memory stays bounded.
	DefaultMaxLen = 100_000

	sinkName = "redis"
)

// StreamAdder is the part of a redis client the log needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Log publishes events with XADD.
type Log struct {
	client StreamAdder
	stream string
	maxLen int64
	logger *slog.Logger
}

// New creates an event log writing to DefaultStream.
func New(client StreamAdder, logger *slog.Logger) *Log {
	return &Log{client: client, stream: DefaultStream, maxLen: DefaultMaxLen, logger: logger}
}

// WithStream overrides the stream key.
func (l *Log) WithStream(stream string) *Log {
	l.stream = stream
	return l
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Publish implements bets.EventSink. Failures are logged and counted; the
// bet change they describe has already committed.
func (l *Log) Publish(ctx context.Context, events []bets.Event) {
	for _, e := range events {
		id, err := l.append(ctx, e)
		if err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(sinkName, "error").Inc()
			l.logger.Warn("failed to append event to stream",
				"stream", l.stream, "betId", e.BetID.Hex(), "kind", e.Kind, "error", err)
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(sinkName, "ok").Inc()
		l.logger.Debug("event appended", "stream", l.stream, "id", id, "kind", e.Kind)
	}
}

func (l *Log) append(ctx context.Context, e bets.Event) (string, error) {
	data, err := json.Marshal(bets.NewEventResponse(e))
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":  string(e.Kind),
			"betId": e.BetID.Hex(),
			"data":  data,
		},
	}).Result()
}

var _ bets.EventSink = (*Log)(nil)
