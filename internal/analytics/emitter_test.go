package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/contractor-booking/internal/observability/metrics"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Track(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func fixedNow() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestEmitter_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, Config{Logger: logging.New("error"), Now: fixedNow})

	hook := e.Hook("biz_1", "sess_1")
	hook(wizard.NavEvent{Step: wizard.StepZipCheck, Action: wizard.ActionView})
	hook(wizard.NavEvent{Step: wizard.StepZipCheck, Action: wizard.ActionNext})
	hook(wizard.NavEvent{Step: wizard.StepCategory, Action: wizard.ActionView})

	require.NoError(t, e.Close(context.Background()))

	got := sink.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, Event{Step: "zip_check", Action: "view", BusinessID: "biz_1", SessionID: "sess_1", Timestamp: fixedNow()}, got[0])
	assert.Equal(t, "next", got[1].Action)
	assert.Equal(t, "category", got[2].Step)
}

func TestEmitter_SinkFailuresAreSwallowed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWizardMetrics(reg)
	sink := &recordingSink{err: errors.New("collector down")}
	e := NewEmitter(sink, Config{Logger: logging.New("error"), Metrics: m})

	e.Emit(Event{Step: "review", Action: "view"})
	require.NoError(t, e.Close(context.Background()))
	assert.Len(t, sink.snapshot(), 1)
}

func TestEmitter_NeverBlocksWhenSinkStalls(t *testing.T) {
	release := make(chan struct{})
	stalled := SinkFunc(func(ctx context.Context, ev Event) error {
		<-release
		return nil
	})
	e := NewEmitter(stalled, Config{Buffer: 1, Logger: logging.New("error")})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			e.Emit(Event{Step: "zip_check", Action: "view"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a stalled sink")
	}
	close(release)
	require.NoError(t, e.Close(context.Background()))
}

func TestEmitter_EmitAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, Config{Logger: logging.New("error")})
	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()))

	e.Emit(Event{Step: "zip_check", Action: "view"})
	assert.Empty(t, sink.snapshot())

	var nilEmitter *Emitter
	nilEmitter.Emit(Event{})
}

func TestHTTPSink(t *testing.T) {
	var got Event
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	sink := NewHTTPSink(ts.URL, nil)
	require.NoError(t, sink.Track(context.Background(), Event{Step: "contact", Action: "back", BusinessID: "biz_1"}))
	assert.Equal(t, "contact", got.Step)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	require.Error(t, NewHTTPSink(failing.URL, nil).Track(context.Background(), Event{}))
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSSink(t *testing.T) {
	client := &fakeSQS{}
	sink := NewSQSSink(client, "https://sqs.local/queue")
	require.NoError(t, sink.Track(context.Background(), Event{Step: "details", Action: "next", BusinessID: "biz_1"}))

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "https://sqs.local/queue", *client.inputs[0].QueueUrl)
	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[0].MessageBody), &decoded))
	assert.Equal(t, "details", decoded.Step)

	client.err = errors.New("throttled")
	require.Error(t, sink.Track(context.Background(), Event{}))
}

func TestPostgresSink(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ts := fixedNow()
	mock.ExpectExec("INSERT INTO wizard_events").
		WithArgs("biz_1", "sess_1", "review", "view", ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sink := NewPostgresSink(mock)
	require.NoError(t, sink.Track(context.Background(), Event{Step: "review", Action: "view", BusinessID: "biz_1", SessionID: "sess_1", Timestamp: ts}))
	require.NoError(t, mock.ExpectationsWereMet())
}
