package events

// Event represents a structured state change emitted by a component.
type Event interface {
	EventType() string
}

// Emitter collects events for publication once the emitting unit of work
// commits.
type Emitter interface {
	Emit(Event)
}
