package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"wallet-core/internal/domain"
)

func testNotification(owner string) domain.Notification {
	return domain.Notification{
		ID:       uuid.New(),
		OwnerID:  owner,
		Title:    "Deposit confirmed",
		Body:     "Your main wallet was credited 10.00. New balance: 10.00.",
		Severity: domain.SeverityLow,
	}
}

func TestWebhookSinkPosts(t *testing.T) {
	received := make(chan domain.Notification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		var n domain.Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- n
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	want := testNotification("hook-owner")
	if err := sink.Notify(context.Background(), want); err != nil {
		t.Fatal(err)
	}
	got := <-received
	if got.ID != want.ID || got.OwnerID != want.OwnerID {
		t.Fatalf("received %+v, want %+v", got, want)
	}
}

func TestWebhookSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	if err := sink.Notify(context.Background(), testNotification("o")); err == nil {
		t.Fatal("non-2xx response should be an error")
	}
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &CaptureSink{}
	var mu sync.Mutex
	statuses := map[string]int{}
	d := NewDispatcher(sink, 2, 16, nil, func(status string) {
		mu.Lock()
		statuses[status]++
		mu.Unlock()
	})

	const count = 10
	for i := 0; i < count; i++ {
		d.Enqueue(testNotification("dispatch-owner"))
	}

	deadline := time.Now().Add(5 * time.Second)
	for sink.Count() < count {
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d of %d before timeout", sink.Count(), count)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if statuses["sent"] != count {
		t.Fatalf("sent = %d, want %d", statuses["sent"], count)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	slow := sinkFunc(func(ctx context.Context, n domain.Notification) error {
		<-block
		return nil
	})

	var mu sync.Mutex
	dropped := 0
	d := NewDispatcher(slow, 1, 1, nil, func(status string) {
		if status == "dropped" {
			mu.Lock()
			dropped++
			mu.Unlock()
		}
	})

	// One in flight, one queued, the rest must drop without blocking.
	for i := 0; i < 10; i++ {
		d.Enqueue(testNotification("full-owner"))
	}
	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if dropped == 0 {
		t.Fatal("expected at least one dropped notification")
	}
}

type sinkFunc func(ctx context.Context, n domain.Notification) error

func (f sinkFunc) Notify(ctx context.Context, n domain.Notification) error { return f(ctx, n) }
