// Package broadcast publishes per-job progress events on named realtime
// channels. Delivery is best-effort and at-most-once: a subscriber that
// attaches late simply misses earlier events. The final result reaches
// durable storage separately.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smeltapp/smeltd/internal/domain/model"
)

// Publisher is the port onto the realtime channel provider.
type Publisher interface {
	// Ready blocks until the provider can accept publishes, or ctx ends.
	Ready(ctx context.Context) error
	// Publish sends one payload on the named channel.
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher implements Publisher over a Redis pub/sub connection.
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher wraps a Redis client as a Publisher.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Ready pings the Redis server.
func (p *RedisPublisher) Ready(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish sends payload on channel. Subscriber count is not checked:
// delivery is fire-and-forget.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// eventEnvelope is the wire shape subscribers decode: a type tag plus the
// event payload.
type eventEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type failedPayload struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type completedPayload struct {
	Results []model.Result `json:"results"`
}

// Broadcaster opens per-job channels.
type Broadcaster struct {
	pub         Publisher
	openTimeout time.Duration
	logger      *slog.Logger
}

// Config configures a Broadcaster.
type Config struct {
	Publisher   Publisher
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// New constructs a Broadcaster.
func New(cfg Config) *Broadcaster {
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{pub: cfg.Publisher, openTimeout: openTimeout, logger: logger}
}

// ChannelName returns the realtime channel name for a job. This is part of
// the wire contract: subscribers join "job:<id>".
func ChannelName(jobID string) string {
	return "job:" + jobID
}

// Open establishes the job's publish channel, blocking until the provider is
// ready to accept publishes within a bounded wait. Failure to become ready in
// time is a fatal setup error for the job.
func (b *Broadcaster) Open(ctx context.Context, jobID string) (*Channel, error) {
	readyCtx, cancel := context.WithTimeout(ctx, b.openTimeout)
	defer cancel()

	if err := b.pub.Ready(readyCtx); err != nil {
		return nil, fmt.Errorf("broadcast channel for job %s not ready: %w", jobID, err)
	}

	return &Channel{
		pub:    b.pub,
		name:   ChannelName(jobID),
		jobID:  jobID,
		logger: b.logger,
	}, nil
}

// Channel is one job's publish handle. It is owned exclusively by the job's
// orchestration task and must be closed exactly once; Close is idempotent so
// a deferred release is always safe.
type Channel struct {
	pub    Publisher
	name   string
	jobID  string
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	lastPct int
}

// Progress publishes a progress event. Percentage is clamped so the stream a
// subscriber sees is monotonically non-decreasing even if a caller computes a
// locally lower value.
func (c *Channel) Progress(ctx context.Context, event model.ProgressEvent) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("broadcast channel %s is closed", c.name)
	}
	if event.Percentage < c.lastPct {
		event.Percentage = c.lastPct
	}
	c.lastPct = event.Percentage
	c.mu.Unlock()

	return c.publish(ctx, eventEnvelope{Type: "progress", Data: event})
}

// Completed publishes the terminal success event carrying the generated
// documents.
func (c *Channel) Completed(ctx context.Context, results []model.Result) error {
	if results == nil {
		results = []model.Result{}
	}
	return c.publish(ctx, eventEnvelope{Type: "completed", Data: completedPayload{Results: results}})
}

// Failed publishes the terminal failure event. Exactly one failed event is
// published per failed job; code is a taxonomy kind and message is
// display-safe.
func (c *Channel) Failed(ctx context.Context, code, message string) error {
	return c.publish(ctx, eventEnvelope{Type: "failed", Data: failedPayload{
		ErrorCode:    code,
		ErrorMessage: message,
	}})
}

func (c *Channel) publish(ctx context.Context, env eventEnvelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("broadcast channel %s is closed", c.name)
	}
	c.mu.Unlock()

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", env.Type, err)
	}
	if err := c.pub.Publish(ctx, c.name, payload); err != nil {
		return fmt.Errorf("publish %s event on %s: %w", env.Type, c.name, err)
	}
	return nil
}

// Close releases the channel. Idempotent: only the first call has effect.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.logger.Debug("broadcast channel released", "channel", c.name)
}
