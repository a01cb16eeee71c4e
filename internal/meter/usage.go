package meter

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// UsageRecord is one billable call. Created once per served request (cache
// hit or miss), append-only, never mutated after creation.
type UsageRecord struct {
	CredentialID   string    `json:"credentialId"`
	Chain          string    `json:"chain"`
	Network        string    `json:"network"`
	Method         string    `json:"method"`
	ComputeUnits   int       `json:"computeUnits"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	StatusCode     int       `json:"statusCode"`
	Timestamp      time.Time `json:"timestamp"`
}

// UsageSink receives records for the billing subsystem. Persistence and
// aggregation live behind this boundary.
type UsageSink interface {
	Append(ctx context.Context, rec UsageRecord) error
	Close() error
}

// Recorder hands usage records to the sink off the response path. Records
// are buffered and drained by a background writer; when the buffer is full
// the record is dropped and counted rather than blocking a response.
type Recorder struct {
	ch      chan UsageRecord
	sink    UsageSink
	dropped atomic.Uint64
	done    chan struct{}
	logger  zerolog.Logger
}

// NewRecorder starts the drain goroutine
func NewRecorder(sink UsageSink, buffer int, logger zerolog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &Recorder{
		ch:     make(chan UsageRecord, buffer),
		sink:   sink,
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "usage").Logger(),
	}
	go r.drain()
	return r
}

// Record enqueues a usage record without blocking
func (r *Recorder) Record(rec UsageRecord) {
	select {
	case r.ch <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many records were lost to a full buffer
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close flushes remaining records and stops the writer
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
	if err := r.sink.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("error closing usage sink")
	}
}

func (r *Recorder) drain() {
	defer close(r.done)

	// Detached from request contexts: usage persistence outlives client
	// cancellation so billing stays accurate.
	ctx := context.Background()

	for rec := range r.ch {
		if err := r.sink.Append(ctx, rec); err != nil {
			r.logger.Warn().
				Err(err).
				Str("credential", rec.CredentialID).
				Str("method", rec.Method).
				Msg("failed to append usage record")
		}
	}
}

// LogSink writes usage records to the structured log. The default when no
// billing store is configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "billing").Logger()}
}

// Append logs the record
func (s *LogSink) Append(_ context.Context, rec UsageRecord) error {
	s.logger.Info().
		Str("credential", rec.CredentialID).
		Str("chain", rec.Chain).
		Str("network", rec.Network).
		Str("method", rec.Method).
		Int("computeUnits", rec.ComputeUnits).
		Int64("responseTimeMs", rec.ResponseTimeMs).
		Int("statusCode", rec.StatusCode).
		Msg("usage")
	return nil
}

// Close does nothing
func (s *LogSink) Close() error { return nil }

// RedisSink appends records to a Redis list the billing worker drains.
const redisUsageKey = "usage:records"

type RedisSink struct {
	client *redis.Client
}

// NewRedisSink wraps an existing Redis client
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// Append pushes the serialized record onto the usage list
func (s *RedisSink) Append(ctx context.Context, rec UsageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, redisUsageKey, data).Err()
}

// Close does nothing; the client is shared and closed by its owner
func (s *RedisSink) Close() error { return nil }
