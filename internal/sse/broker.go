// Package sse implements a Server-Sent Events broker that pushes note,
// import and backup changes to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string
	Data any
}

// Note event types sent to clients.
const (
	TypeNoteCreated   = "note.created"
	TypeNoteUpdated   = "note.updated"
	TypeNoteDeleted   = "note.deleted"
	TypeNotesImported = "notes.imported"
	TypeGraphUpdated  = "graph.updated"
	TypeBackupCreated = "backup.created"
)

const clientBuffer = 64

// frame is an encoded event with its stream position.
type frame struct {
	seq uint64
	raw []byte
}

type subscribeReq struct {
	ch      chan []byte
	lastSeq uint64
}

type noteEventReq struct {
	kind string
	id   string
}

// Option configures a Broker.
type Option func(*Broker)

// WithGraphThrottle sets the minimum gap between graph.updated events.
func WithGraphThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.graphMin = d
		}
	}
}

// WithHeartbeat sets how often idle streams get a keepalive comment.
// Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// WithReplay sets how many recent events are kept for clients that
// reconnect with Last-Event-ID.
func WithReplay(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.replay = n
		}
	}
}

// Broker fans events out to SSE clients.
//
// One goroutine owns the client set, the replay history, the sequence
// counter and the graph throttle; the public methods talk to it over
// channels.
type Broker struct {
	graphMin  time.Duration
	heartbeat time.Duration
	replay    int

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	noteEventCh   chan noteEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates and starts a broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		graphMin:      2 * time.Second,
		heartbeat:     30 * time.Second,
		replay:        128,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		noteEventCh:   make(chan noteEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	history := make([]frame, 0, b.replay)
	var seq uint64
	var lastGraph time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{seq: seq, raw: encode(seq, event.Type, payload)}
		if b.replay > 0 {
			if len(history) == b.replay {
				history = append(history[:0], history[1:]...)
			}
			history = append(history, f)
		}
		for ch := range clients {
			select {
			case ch <- f.raw:
			default:
				// Slow client; it can catch up via Last-Event-ID.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			if req.lastSeq > 0 {
				for _, f := range history {
					if f.seq <= req.lastSeq {
						continue
					}
					select {
					case req.ch <- f.raw:
					default:
					}
				}
			}
			clients[req.ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.noteEventCh:
			typ, data, ok := noteEvent(req)
			if !ok {
				continue
			}
			broadcast(Event{Type: typ, Data: data})

			if now := time.Now(); now.Sub(lastGraph) >= b.graphMin {
				lastGraph = now
				broadcast(Event{Type: TypeGraphUpdated, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func noteEvent(req noteEventReq) (string, any, bool) {
	switch req.kind {
	case "created":
		return TypeNoteCreated, map[string]string{"id": req.id}, true
	case "updated":
		return TypeNoteUpdated, map[string]string{"id": req.id}, true
	case "deleted":
		return TypeNoteDeleted, map[string]string{"id": req.id}, true
	case "imported":
		return TypeNotesImported, struct{}{}, true
	}
	return "", nil, false
}

func encode(seq uint64, typ string, payload []byte) []byte {
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, typ, payload))
}

// Close stops the broker loop and closes every client channel. It is
// safe to call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribeFrom(0)
}

// subscribeFrom adds a client that first receives the retained events
// after lastSeq.
func (b *Broker) subscribeFrom(lastSeq uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, lastSeq: lastSeq}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes a note change followed by a throttled
// graph.updated event. kind is one of created, updated, deleted or
// imported; other kinds are dropped.
func (b *Broker) PublishNoteEvent(kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- noteEventReq{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// PublishBackup announces a new archived backup.
func (b *Broker) PublishBackup(name string) {
	b.Publish(Event{Type: TypeBackupCreated, Data: map[string]string{"name": name}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A client that
// sends Last-Event-ID first receives the retained events it missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lastSeq, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.subscribeFrom(lastSeq)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
