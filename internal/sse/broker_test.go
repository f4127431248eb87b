package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// drain collects whatever is buffered on ch after a short pause.
func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func countType(msgs []string, typ string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, "event: "+typ+"\n") {
			n++
		}
	}
	return n
}

// serve runs the handler until fn returns, then returns the body.
func serve(t *testing.T, b *Broker, lastEventID string, fn func()) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	fn()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	return w.Body.String()
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishBackup(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishBackup("zettenote-backup-20260101T000000Z.json")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: 1\nevent: backup.created\n") {
			t.Errorf("unexpected frame %q", s)
		}
		if !strings.Contains(s, `"name":"zettenote-backup-20260101T000000Z.json"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishNoteEvent_Kinds(t *testing.T) {
	b := NewBroker(WithGraphThrottle(time.Hour))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "a")
	b.PublishNoteEvent("updated", "a")
	b.PublishNoteEvent("deleted", "a")
	b.PublishNoteEvent("imported", "")
	// Unknown kinds are dropped without touching the throttle.
	b.PublishNoteEvent("renamed", "c")

	msgs := drain(ch)
	for _, typ := range []string{TypeNoteCreated, TypeNoteUpdated, TypeNoteDeleted, TypeNotesImported} {
		if countType(msgs, typ) != 1 {
			t.Errorf("%s events = %d, want 1", typ, countType(msgs, typ))
		}
	}
	if countType(msgs, TypeGraphUpdated) != 1 {
		t.Errorf("graph events = %d, want 1 (throttled)", countType(msgs, TypeGraphUpdated))
	}
	if !strings.Contains(msgs[0], `"id":"a"`) {
		t.Errorf("first frame = %q", msgs[0])
	}
	if len(msgs) != 5 {
		t.Errorf("frames = %d, want 5", len(msgs))
	}
}

func TestPublishNoteEvent_GraphThrottleExpires(t *testing.T) {
	b := NewBroker(WithGraphThrottle(30 * time.Millisecond))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "a")
	time.Sleep(60 * time.Millisecond)
	b.PublishNoteEvent("updated", "a")

	if n := countType(drain(ch), TypeGraphUpdated); n != 2 {
		t.Errorf("graph events = %d, want 2", n)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(WithHeartbeat(0))
	defer b.Close()

	body := serve(t, b, "", func() {
		if b.ClientCount() != 1 {
			t.Fatalf("expected 1 client from handler")
		}
		b.PublishNoteEvent("deleted", "x")
	})

	if !strings.Contains(body, "event: note.deleted") || !strings.Contains(body, `"id":"x"`) {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_ReplaysAfterLastEventID(t *testing.T) {
	b := NewBroker(WithHeartbeat(0), WithGraphThrottle(time.Hour))
	defer b.Close()

	// Events 1..3 happen while nobody listens.
	b.PublishNoteEvent("created", "a") // id 1, graph id 2
	b.PublishNoteEvent("updated", "a") // id 3
	time.Sleep(20 * time.Millisecond)

	body := serve(t, b, "2", func() {})
	if strings.Contains(body, "id: 1\n") || strings.Contains(body, "id: 2\n") {
		t.Errorf("replayed events already seen: %q", body)
	}
	if !strings.Contains(body, "id: 3\nevent: note.updated") {
		t.Errorf("missing replayed event: %q", body)
	}
}

func TestReplayHistoryIsBounded(t *testing.T) {
	b := NewBroker(WithHeartbeat(0), WithReplay(2))
	defer b.Close()
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	time.Sleep(20 * time.Millisecond)

	body := serve(t, b, "1", func() {})
	if strings.Count(body, "event: test") != 2 || !strings.Contains(body, "id: 5\n") {
		t.Errorf("replay = %q, want only the last two events", body)
	}
}

func TestSSEHandler_Heartbeat(t *testing.T) {
	b := NewBroker(WithHeartbeat(10 * time.Millisecond))
	defer b.Close()

	body := serve(t, b, "", func() { time.Sleep(40 * time.Millisecond) })
	if !strings.Contains(body, ": keepalive\n\n") {
		t.Errorf("no keepalive in %q", body)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// One more than the client buffer must not block the broker.
	for i := 0; i <= clientBuffer; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	if got := len(drain(ch)); got != clientBuffer {
		t.Errorf("delivered = %d, want %d", got, clientBuffer)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
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

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Safe no-ops after close.
	b.Publish(Event{Type: TypeNoteUpdated, Data: map[string]string{"id": "x"}})
	b.PublishNoteEvent("updated", "x")
	b.Close()
}
