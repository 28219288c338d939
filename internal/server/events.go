package server

import (
	"sync"

	"github.com/ppiankov/applytrail/internal/model"
)

const subscriberBuffer = 64

// broadcaster fans the progress stream of one run out to any number of SSE
// clients and keeps the full history for late joiners.
type broadcaster struct {
	mu      sync.Mutex
	history []model.Event
	subs    map[chan model.Event]struct{}
	closed  bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan model.Event]struct{})}
}

// pump forwards events from the orchestrator until the stream is closed
func (b *broadcaster) pump(events <-chan model.Event) {
	for ev := range events {
		b.publish(ev)
	}
	b.close()
}

func (b *broadcaster) publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, ev)
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// slow client; it reconnects and replays from history
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// subscribe returns events with Seq > after seen so far, and a channel for
// the rest. The channel is nil when the run already ended.
func (b *broadcaster) subscribe(after int) ([]model.Event, <-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var replay []model.Event
	for _, ev := range b.history {
		if ev.Seq > after {
			replay = append(replay, ev)
		}
	}
	if b.closed {
		return replay, nil, func() {}
	}

	ch := make(chan model.Event, subscriberBuffer)
	b.subs[ch] = struct{}{}
	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
	return replay, ch, unsubscribe
}
