package steplog

import (
	"context"
	"sync"
)

// EventKind identifies a recorded event.
type EventKind string

const (
	EventStart EventKind = "start"
	EventEnd   EventKind = "end"
	EventFile  EventKind = "file"
)

// Event is one call observed by a Recorder.
type Event struct {
	Kind EventKind
	Step Step
	Path string
	Type LogType
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) StartStep(ctx context.Context, step Step) {
	r.add(Event{Kind: EventStart, Step: step})
}

func (r *Recorder) EndStep(ctx context.Context, step Step) {
	r.add(Event{Kind: EventEnd, Step: step})
}

func (r *Recorder) File(ctx context.Context, path string, kind LogType) {
	r.add(Event{Kind: EventFile, Path: path, Type: kind})
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Ended returns the closed steps in order.
func (r *Recorder) Ended() []Step {
	var out []Step
	for _, e := range r.Events() {
		if e.Kind == EventEnd {
			out = append(out, e.Step)
		}
	}
	return out
}

// Files returns attached file paths in order.
func (r *Recorder) Files() []string {
	var out []string
	for _, e := range r.Events() {
		if e.Kind == EventFile {
			out = append(out, e.Path)
		}
	}
	return out
}

// Open returns the ids of steps started but not yet ended.
func (r *Recorder) Open() []string {
	open := make(map[string]bool)
	var order []string
	for _, e := range r.Events() {
		switch e.Kind {
		case EventStart:
			open[e.Step.ID] = true
			order = append(order, e.Step.ID)
		case EventEnd:
			delete(open, e.Step.ID)
		}
	}
	var out []string
	for _, id := range order {
		if open[id] {
			out = append(out, id)
		}
	}
	return out
}

// Balanced reports whether every start has exactly one matching end and no
// end arrives without a start.
func (r *Recorder) Balanced() bool {
	state := make(map[string]int)
	for _, e := range r.Events() {
		switch e.Kind {
		case EventStart:
			if state[e.Step.ID] != 0 {
				return false
			}
			state[e.Step.ID] = 1
		case EventEnd:
			if state[e.Step.ID] != 1 {
				return false
			}
			state[e.Step.ID] = 2
		}
	}
	for _, s := range state {
		if s != 2 {
			return false
		}
	}
	return true
}

// Reset drops all events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
