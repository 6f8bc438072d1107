// Package sse implements a Server-Sent Events broker with per-topic
// delivery. Each browser session listens on its own topic.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeConvertProgress = "convert.progress"
	TypeConvertDone     = "convert.done"
	TypeConvertFailed   = "convert.failed"
	TypeCardUpdated     = "card.updated"
	TypeUploadReplaced  = "upload.replaced"
)

// heartbeatInterval spaces the comment lines that keep idle streams open
// through proxies.
const heartbeatInterval = 15 * time.Second

// Event represents an SSE event for one topic.
type Event struct {
	Topic string `json:"-"`
	Type  string `json:"type"`
	Data  any    `json:"data"`
}

// Progress is the payload of a convert.progress event.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

type subscription struct {
	topic string
	ch    chan []byte
}

type progressReq struct {
	topic string
	p     Progress
}

// Broker manages SSE client connections and delivers events to the
// subscribers of the event's topic.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + per-topic progress throttle timestamps). Public methods communicate
// with this loop through channels, so no mutexes are required.
type Broker struct {
	progressMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	progressCh    chan progressReq
	countReqCh    chan countReq

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

type countReq struct {
	topic string
	resp  chan int
}

// NewBroker creates a new SSE broker. Progress events of one topic are sent
// at most once per progressThrottle, except the final one.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 250 * time.Millisecond
	}

	b := &Broker{
		progressMin:   progressThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		progressCh:    make(chan progressReq, 256),
		countReqCh:    make(chan countReq),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastProgress := make(map[string]time.Time)

	send := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch, topic := range clients {
			if topic != event.Topic {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
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

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.topic

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			if event.Type == TypeConvertDone || event.Type == TypeConvertFailed {
				delete(lastProgress, event.Topic)
			}
			send(event)

		case req := <-b.progressCh:
			now := time.Now()
			final := req.p.Done >= req.p.Total
			if !final && now.Sub(lastProgress[req.topic]) < b.progressMin {
				continue
			}
			lastProgress[req.topic] = now
			send(Event{Topic: req.topic, Type: TypeConvertProgress, Data: req.p})

		case req := <-b.countReqCh:
			n := 0
			for _, topic := range clients {
				if req.topic == "" || topic == req.topic {
					n++
				}
			}
			req.resp <- n
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client for topic and returns its channel.
func (b *Broker) Subscribe(topic string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{topic: topic, ch: ch}:
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

// ClientCount returns the number of clients on topic, or on all topics
// when topic is empty.
func (b *Broker) ClientCount(topic string) int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- countReq{topic: topic, resp: resp}:
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

// Publish sends an event to the subscribers of its topic.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishProgress publishes a throttled convert.progress event.
func (b *Broker) PublishProgress(topic string, done, total int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.progressCh <- progressReq{topic: topic, p: Progress{Done: done, Total: total}}:
	case <-b.stopped:
	}
}

// ServeTopic streams the events of topic until the client disconnects.
func (b *Broker) ServeTopic(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(topic)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(heartbeatInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
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
