package consumer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func framed(schemaID uint32, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)
	return value
}

func rosterMessage(offset int64, payload []byte) kafka.Message {
	return kafka.Message{
		Topic:     "roster_events",
		Partition: 0,
		Offset:    offset,
		Time:      time.Now().UTC(),
		Key:       []byte("Chess Club"),
		Value:     framed(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("participant.signed_up")},
			{Key: "event_id", Value: []byte("evt-1")},
			{Key: "schema_subject", Value: []byte("roster_events-value")},
		},
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"event_id":"evt-1","activity":"Chess Club"}`)
	reader := &stubReader{
		messages: []kafka.Message{rosterMessage(10, payload)},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	before := testutil.ToFloat64(rosterEventsCounter.WithLabelValues("participant.signed_up", sinkOther))
	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "participant.signed_up", handler.last.EventType)
	require.Equal(t, "evt-1", handler.last.EventID)
	require.Equal(t, "Chess Club", handler.last.Key)
	require.Equal(t, "roster_events-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
	require.InDelta(t, before+1, testutil.ToFloat64(rosterEventsCounter.WithLabelValues("participant.signed_up", sinkOther)), 0.0001)
}

func TestProcessorLeavesFailedMessageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{rosterMessage(20, []byte(`{"event_id":"evt-2"}`))},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom"), sink: sinkPostgres}

	beforeFailures := testutil.ToFloat64(rosterFailuresCounter.WithLabelValues("participant.signed_up", sinkPostgres))
	beforeAbandoned := testutil.ToFloat64(abandonedCounter.WithLabelValues("participant.signed_up", sinkPostgres))
	processor := NewProcessor(reader, handler,
		WithLogger(testLogger(t)),
		WithRetryBackoff(time.Millisecond),
		WithHandlerAttempts(2),
	)

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 2, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
	require.InDelta(t, beforeFailures+2, testutil.ToFloat64(rosterFailuresCounter.WithLabelValues("participant.signed_up", sinkPostgres)), 0.0001)
	require.InDelta(t, beforeAbandoned+1, testutil.ToFloat64(abandonedCounter.WithLabelValues("participant.signed_up", sinkPostgres)), 0.0001)
}

func TestProcessorRetriesHandlerBeforeMovingOn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := rosterMessage(21, []byte(`{"event_id":"evt-21"}`))
	second := rosterMessage(22, []byte(`{"event_id":"evt-22"}`))
	reader := &stubReader{
		messages: []kafka.Message{first, second},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("db unavailable"), failures: 1, sink: sinkLog}

	before := testutil.ToFloat64(rosterEventsCounter.WithLabelValues("participant.signed_up", sinkLog))
	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)), WithRetryBackoff(time.Millisecond))

	require.ErrorIs(t, processor.Run(ctx), context.Canceled)

	// The first message is handled twice, so it is committed before the second.
	require.Equal(t, []int64{21, 21, 22}, handler.offsets)
	require.Equal(t, 2, reader.commitCalls)
	require.InDelta(t, before+2, testutil.ToFloat64(rosterEventsCounter.WithLabelValues("participant.signed_up", sinkLog)), 0.0001)
}

func TestProcessorStopsRetryingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{rosterMessage(23, []byte(`{"event_id":"evt-23"}`))},
	}
	handler := &stubHandler{err: errors.New("boom"), onCall: cancel}

	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)), WithRetryBackoff(time.Hour))

	require.ErrorIs(t, processor.Run(ctx), context.Canceled)
	require.Equal(t, 1, handler.calls)
	require.Zero(t, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	missingHeader := rosterMessage(30, []byte(`{}`))
	missingHeader.Headers = nil
	badMagic := rosterMessage(31, []byte(`{}`))
	badMagic.Value[0] = 1
	short := rosterMessage(32, nil)
	short.Value = []byte{0, 1}
	notJSON := rosterMessage(33, []byte(`{not json`))

	reader := &stubReader{
		messages: []kafka.Message{missingHeader, badMagic, short, notJSON},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	before := testutil.ToFloat64(malformedCounter.WithLabelValues("roster_events"))
	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)))

	require.ErrorIs(t, processor.Run(ctx), context.Canceled)
	require.Zero(t, handler.calls)
	require.Equal(t, 4, reader.commitCalls)
	require.InDelta(t, before+4, testutil.ToFloat64(malformedCounter.WithLabelValues("roster_events")), 0.0001)
}

func TestProcessorBacksOffAfterFetchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		fetchErrs: []error{errors.New("broker gone")},
		messages:  []kafka.Message{rosterMessage(40, []byte(`{"event_id":"evt-4"}`))},
		after:     contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)), WithRetryBackoff(time.Millisecond))

	require.ErrorIs(t, processor.Run(ctx), context.Canceled)
	require.Equal(t, 1, handler.calls)
}

type stubReader struct {
	fetchErrs   []error
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

func TestSinkOfDefaultsToOther(t *testing.T) {
	require.Equal(t, sinkOther, sinkOf(&stubHandler{}))
	require.Equal(t, sinkPostgres, sinkOf(&stubHandler{sink: sinkPostgres}))
	require.Equal(t, sinkLog, sinkOf(NewLogHandler(zerolog.Nop())))
	require.Equal(t, sinkPostgres, sinkOf(NewPersistenceHandler(nil)))
}

// stubHandler fails the first failures calls with err, or every call when
// failures is zero.
type stubHandler struct {
	calls    int
	err      error
	failures int
	sink     string
	last     Message
	offsets  []int64
	onCall   func()
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	h.offsets = append(h.offsets, msg.Offset)
	if h.onCall != nil {
		h.onCall()
	}
	if h.err != nil && (h.failures == 0 || h.calls <= h.failures) {
		return h.err
	}
	return nil
}

func (h *stubHandler) Sink() string {
	if h.sink == "" {
		return sinkOther
	}
	return h.sink
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(testWriter{t})
}
