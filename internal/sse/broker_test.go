package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("s1")
	other := b.Subscribe("s2")
	if b.ClientCount("s1") != 1 || b.ClientCount("") != 2 {
		t.Fatalf("unexpected client counts")
	}
	b.Unsubscribe(ch)
	b.Unsubscribe(other)
	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDeliversToTopicOnly(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	mine := b.Subscribe("s1")
	defer b.Unsubscribe(mine)
	theirs := b.Subscribe("s2")
	defer b.Unsubscribe(theirs)

	b.Publish(Event{Topic: "s1", Type: TypeConvertDone, Data: map[string]int{"cards": 3}})

	select {
	case msg := <-mine:
		s := string(msg)
		if !strings.Contains(s, "event: convert.done") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"cards":3`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	// One send reaches every subscriber, so s2 would have it by now.
	select {
	case msg := <-theirs:
		t.Errorf("other topic received %q", msg)
	default:
	}
}

func TestPublishProgress_Throttle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("s1")
	defer b.Unsubscribe(ch)

	b.PublishProgress("s1", 1, 4)
	b.PublishProgress("s1", 2, 4)
	b.PublishProgress("s1", 3, 4)
	b.PublishProgress("s1", 4, 4)

	time.Sleep(50 * time.Millisecond)
	var got []string
loop:
	for {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		default:
			break loop
		}
	}

	if len(got) != 2 {
		t.Fatalf("progress events = %d, want 2 (first and final): %q", len(got), got)
	}
	if !strings.Contains(got[0], `"done":1`) || !strings.Contains(got[1], `"done":4`) {
		t.Errorf("events = %q", got)
	}
}

type flushRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Body.String()
}

func TestServeTopic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeTopic(w, req, "s1")
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount("s1") != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Topic: "s1", Type: TypeCardUpdated, Data: map[string]int{"index": 0}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if body := w.body(); !strings.Contains(body, "event: card.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount("") != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("s1")
	defer b.Unsubscribe(ch)

	for i := 0; i < 70; i++ {
		b.Publish(Event{Topic: "s1", Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("s1")
	if b.ClientCount("s1") != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount("s1") != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Topic: "s1", Type: TypeCardUpdated})
	b.PublishProgress("s1", 1, 1)
}
