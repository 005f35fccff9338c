// Package publish fans pipeline events out to other processes over Redis
// pub/sub.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/pipeline"
)

// ErrConnection is returned when Redis cannot be reached.
var ErrConnection = errors.New("publish: connection failed")

// Config holds the Redis connection and channel settings.
type Config struct {
	// Addr is the Redis server in host:port form.
	Addr     string
	Password string
	DB       int

	// Channel prefixes every published channel and key.
	Channel string

	// QueueSize bounds events waiting to be published.
	QueueSize int

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a configuration for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Channel:      "abhinaya",
		QueueSize:    256,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// EventChannel returns the pub/sub channel for an event kind.
func EventChannel(prefix string, kind pipeline.EventKind) string {
	return prefix + ":" + string(kind)
}

// LatestReportKey returns the key holding the newest calibration report.
func LatestReportKey(prefix string) string {
	return prefix + ":latest-report"
}

// Publisher is a pipeline observer that publishes every event as JSON on
// EventChannel(prefix, kind). Calibration reports are also stored under
// LatestReportKey. OnEvent never blocks; events beyond the queue are
// dropped.
type Publisher struct {
	client *redis.Client
	config Config

	queue   chan pipeline.Event
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
	dropped atomic.Int64
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Publisher, error) {
	def := DefaultConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return &Publisher{
		client: client,
		config: cfg,
		queue:  make(chan pipeline.Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}, nil
}

// Client returns the underlying Redis client.
func (p *Publisher) Client() *redis.Client {
	return p.client
}

// Start launches the publishing goroutine. It exits when ctx is cancelled
// or Close is called.
func (p *Publisher) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

// OnEvent queues an event for publishing.
func (p *Publisher) OnEvent(e pipeline.Event) {
	select {
	case p.queue <- e:
	default:
		if n := p.dropped.Add(1); n%100 == 1 {
			log.Warn("publish queue full, dropping events", "dropped", n)
		}
	}
}

// Dropped returns how many events were discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Publish sends one event synchronously.
func (p *Publisher) Publish(ctx context.Context, e pipeline.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Kind, err)
	}

	if e.Kind == pipeline.KindCalibrationCompleted && e.Report != nil {
		report, err := json.Marshal(e.Report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		if err := p.client.Set(ctx, LatestReportKey(p.config.Channel), report, 0).Err(); err != nil {
			return fmt.Errorf("store latest report: %w", err)
		}
	}

	return p.client.Publish(ctx, EventChannel(p.config.Channel, e.Kind), data).Err()
}

// Close stops publishing and closes the connection.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.done) })
	return p.client.Close()
}

func (p *Publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case e := <-p.queue:
			pctx, cancel := context.WithTimeout(ctx, p.config.WriteTimeout)
			if err := p.Publish(pctx, e); err != nil {
				log.Error("failed to publish event", "kind", e.Kind, "error", err)
			}
			cancel()
		}
	}
}
