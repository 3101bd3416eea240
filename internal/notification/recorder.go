package notification

import (
	"context"
	"sync"
)

// Recorder is an in-memory Dispatcher that keeps every request.
type Recorder struct {
	mu       sync.Mutex
	requests []Request
}

func (r *Recorder) Notify(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return nil
}

// Requests returns a copy of the recorded requests.
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

// ByEvent returns the recorded requests of one event.
func (r *Recorder) ByEvent(event Event) []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Request
	for _, req := range r.requests {
		if req.Event == event {
			out = append(out, req)
		}
	}
	return out
}

// Reset forgets all recorded requests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}
