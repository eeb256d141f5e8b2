// Package outbox delivers roster events from the in-memory queue to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/signup/internal/domain"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// SchemaRegistrar resolves the schema id used to frame records.
type SchemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// DispatcherConfig contains tunables for the Dispatcher.
type DispatcherConfig struct {
	Topic        string
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Option configures optional behaviour for the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the logger used to report delivery failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher drains the Queue and delivers events to Kafka using Schema Registry metadata.
type Dispatcher struct {
	queue            *Queue
	producer         messageWriter
	registry         SchemaRegistrar
	topic            string
	subject          string
	pollInterval     time.Duration
	batchSize        int
	maxAttempts      int
	pending          []pendingEvent
	schemaIDCache    sync.Map
	logger           zerolog.Logger
	shutdownComplete chan struct{}
}

type pendingEvent struct {
	event    domain.RosterEvent
	attempts int
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(queue *Queue, producer messageWriter, registry SchemaRegistrar, cfg DispatcherConfig, opts ...Option) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	d := &Dispatcher{
		queue:            queue,
		producer:         producer,
		registry:         registry,
		topic:            cfg.Topic,
		subject:          SubjectForTopic(cfg.Topic),
		pollInterval:     cfg.PollInterval,
		batchSize:        cfg.BatchSize,
		maxAttempts:      cfg.MaxAttempts,
		logger:           zerolog.Nop(),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled, then makes one final
// delivery attempt for anything still buffered. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("outbox dispatcher error")
		}

		select {
		case <-ctx.Done():
			d.flush()
			return nil
		case <-ticker.C:
		}
	}
}

// Wait waits until the dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) flush() {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for d.queue.Len() > 0 || len(d.pending) > 0 {
		if err := d.processBatch(flushCtx); err != nil {
			d.logger.Error().Err(err).
				Int("buffered", d.queue.Len()).
				Int("pending", len(d.pending)).
				Msg("outbox flush abandoned")
			return
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	batch := d.pending
	d.pending = nil
	if room := d.batchSize - len(batch); room > 0 {
		for _, event := range d.queue.drain(room) {
			batch = append(batch, pendingEvent{event: event})
		}
	}
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, batch); err != nil {
		failedCounter.Add(float64(len(batch)))
		d.retryLater(batch, err)
		return fmt.Errorf("deliver roster events: %w", err)
	}

	deliveredCounter.Add(float64(len(batch)))
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, batch []pendingEvent) error {
	schemaID, err := d.schemaID(ctx)
	if err != nil {
		return err
	}

	records := make([]kafka.Message, 0, len(batch))
	for _, item := range batch {
		payload, err := json.Marshal(item.event)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", item.event.EventID, err)
		}
		records = append(records, kafka.Message{
			Key:   []byte(item.event.Activity),
			Value: encodeWireFormat(schemaID, payload),
			Time:  item.event.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(item.event.EventType)},
				{Key: "event_id", Value: []byte(item.event.EventID)},
				{Key: "schema_subject", Value: []byte(d.subject)},
			},
		})
	}

	return d.producer.WriteMessages(ctx, d.topic, records...)
}

func (d *Dispatcher) schemaID(ctx context.Context) (int, error) {
	if cached, ok := d.schemaIDCache.Load(d.subject); ok {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, d.subject, rosterEventSchema)
	if err != nil {
		return 0, fmt.Errorf("ensure schema %s: %w", d.subject, err)
	}
	d.schemaIDCache.Store(d.subject, id)
	return id, nil
}

func (d *Dispatcher) retryLater(batch []pendingEvent, cause error) {
	for _, item := range batch {
		item.attempts++
		if item.attempts >= d.maxAttempts {
			droppedCounter.WithLabelValues(dropAttemptsExhausted).Inc()
			d.logger.Error().Err(cause).
				Str("event_id", item.event.EventID).
				Str("event_type", item.event.EventType).
				Str("activity", item.event.Activity).
				Int("attempts", item.attempts).
				Msg("dropping roster event after repeated delivery failures")
			continue
		}
		d.pending = append(d.pending, item)
	}
}

// SubjectForTopic returns the Schema Registry subject for a topic's record values.
func SubjectForTopic(topic string) string {
	return topic + "-value"
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
