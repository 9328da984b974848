package web

import "sync"

// broker fans out front-end events, such as reload notices, to the connected
// event streams.
type broker struct {
	mu     sync.Mutex
	subs   map[chan string]struct{}
	closed bool
}

func newBroker() *broker {
	return &broker{subs: map[chan string]struct{}{}}
}

// subscribe returns a channel of events. The channel is closed by unsubscribe
// or when the broker closes. ok is false if the broker is already closed.
func (b *broker) subscribe() (ch chan string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch = make(chan string, 4)
	b.subs[ch] = struct{}{}
	return ch, true
}

func (b *broker) unsubscribe(ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// publish sends event to every subscriber, dropping it for subscribers which
// are not keeping up.
func (b *broker) publish(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// close ends every subscription.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// subscribers is the number of connected streams.
func (b *broker) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
