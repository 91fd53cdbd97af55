package events

// Event represents a structured state change emitted by the escrow host.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers,
// monitoring pipelines). Emitters never mutate escrow state.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// Recorder accumulates events in order of emission. It backs tests and feeds
// the off-chain indexing collaborator.
type Recorder struct {
	events []*Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt *Event) {
	if evt == nil {
		return
	}
	r.events = append(r.events, evt)
}

// Events returns the emitted events in order.
func (r *Recorder) Events() []*Event {
	return r.events
}

// Reset clears the recorded events.
func (r *Recorder) Reset() {
	r.events = nil
}
