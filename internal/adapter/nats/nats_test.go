package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/logger"
	"github.com/Strob0t/tenantdesk/internal/port/messagequeue"
)

var _ messagequeue.Publisher = (*Queue)(nil)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(q.Close)
	return q
}

func switchedEvent(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(session.TenantEvent{
		EventID:    uuid.NewString(),
		Principal:  "p-" + t.Name(),
		TenantID:   "t-1",
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestEventID(t *testing.T) {
	if got := eventID([]byte(`{"event_id":"e-1","tenant_id":"t"}`)); got != "e-1" {
		t.Fatalf("expected e-1, got %q", got)
	}
	if got := eventID([]byte(`not json`)); got != "" {
		t.Fatalf("expected empty id for invalid json, got %q", got)
	}
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	data := switchedEvent(t)

	var (
		mu       sync.Mutex
		received []byte
		done     = make(chan struct{})
		once     sync.Once
	)
	stop, err := q.Subscribe(context.Background(), messagequeue.SubjectTenantSwitched, func(_ context.Context, _ string, d []byte) error {
		mu.Lock()
		received = d
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), messagequeue.SubjectTenantSwitched, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(data) {
		t.Errorf("got %s, want %s", received, data)
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	const wantReqID = "req-abc-123"

	var (
		mu       sync.Mutex
		gotReqID string
		done     = make(chan struct{})
		once     sync.Once
	)
	stop, err := q.Subscribe(context.Background(), messagequeue.SubjectTenantCreated, func(ctx context.Context, _ string, _ []byte) error {
		mu.Lock()
		gotReqID = logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, messagequeue.SubjectTenantCreated, switchedEvent(t)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotReqID != wantReqID {
		t.Errorf("request ID = %q, want %q", gotReqID, wantReqID)
	}
}

func TestQueue_PublishRejectsInvalidPayload(t *testing.T) {
	q := testConnect(t)
	if err := q.Publish(context.Background(), messagequeue.SubjectTenantSwitched, []byte(`{"tenant_id":"x"}`)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Fatal("expected connected")
	}
}

func TestQueue_DuplicateEventDeliveredOnce(t *testing.T) {
	q := testConnect(t)
	data := switchedEvent(t)

	var (
		mu    sync.Mutex
		count int
	)
	stop, err := q.Subscribe(context.Background(), messagequeue.SubjectTenantUpdated, func(_ context.Context, _ string, d []byte) error {
		if string(d) == string(data) {
			mu.Lock()
			count++
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	for range 2 {
		if err := q.Publish(context.Background(), messagequeue.SubjectTenantUpdated, data); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	time.Sleep(time.Second)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected the event id to dedupe, got %d deliveries", count)
	}
}
