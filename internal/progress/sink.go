package progress

// Sink consumes progress events. Implementations must tolerate concurrent
// calls and should never block for long; slow sinks cause events to drop.
type Sink interface {
	Consume(evt Event)
}

// Emitter publishes individual events; Hub satisfies this interface so the
// pipeline can remain agnostic about buffering and fan-out.
type Emitter interface {
	Emit(evt Event)
}

// Nop is an Emitter that discards everything.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}
