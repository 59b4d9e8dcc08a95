package invalidate

import (
	"context"
	"sync"
)

// Recorder keeps the events it receives in memory. It backs the single-process
// deployment and the tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Invalidate(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Has reports whether an event for domain and id was received.
func (r *Recorder) Has(d Domain, id string) bool {
	for _, ev := range r.Events() {
		if ev.Domain == d && ev.ID == id {
			return true
		}
	}
	return false
}
