// Package progress maps phase-local progress counters into job-level 0-100
// percentages and forwards them as structured events.
package progress

// Range is the fixed [start, end] percentage band a pipeline phase occupies in
// the job's overall progress.
type Range struct {
	Start float64
	End   float64
}

// At interpolates a phase-local (current, total) pair into the range. A zero
// total yields Start; results are clamped to [Start, End] so a miscounting
// producer can never move the job backwards past the phase boundary.
func (r Range) At(current, total int) float64 {
	if total <= 0 {
		return r.Start
	}
	value := r.Start + float64(current)/float64(total)*(r.End-r.Start)
	if value < r.Start {
		return r.Start
	}
	if value > r.End {
		return r.End
	}
	return value
}

// AtPartial is At with a fractional share of the unit currently in flight, so
// a long-running unit can move the percentage before it completes. The
// fraction is clamped to [0, 1].
func (r Range) AtPartial(current, total int, fraction float64) float64 {
	if total <= 0 {
		return r.Start
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	value := r.Start + (float64(current)+fraction)/float64(total)*(r.End-r.Start)
	if value < r.Start {
		return r.Start
	}
	if value > r.End {
		return r.End
	}
	return value
}

// Event is one progress report from a pipeline phase.
type Event struct {
	Phase   string
	Message string
	Current int
	Total   int
	Percent float64
	// Payload carries an optional phase-specific partial result, such as an
	// extracted track or a finished download.
	Payload any
}

// Sink receives progress events. Implementations must be non-blocking and safe
// to call from the pipeline's worker goroutine; forwarding into the job store
// happens through the executor's hand-off, never by direct mutation here.
type Sink func(Event)

// Emitter scales one phase's counters into job-level percentages and pushes
// them to a sink.
type Emitter struct {
	phase string
	rng   Range
	sink  Sink
}

// NewEmitter constructs an emitter for a named phase. A nil sink is valid and
// discards events.
func NewEmitter(phase string, rng Range, sink Sink) *Emitter {
	return &Emitter{phase: phase, rng: rng, sink: sink}
}

// Emit publishes one unit of work's progress.
func (e *Emitter) Emit(current, total int, message string, payload any) {
	if e == nil || e.sink == nil {
		return
	}
	e.sink(Event{
		Phase:   e.phase,
		Message: message,
		Current: current,
		Total:   total,
		Percent: e.rng.At(current, total),
		Payload: payload,
	})
}

// EmitPartial publishes progress partway through one unit of work. Current
// counts only the units already finished; the in-flight unit contributes its
// fraction to the percentage alone.
func (e *Emitter) EmitPartial(current, total int, fraction float64, message string) {
	if e == nil || e.sink == nil {
		return
	}
	e.sink(Event{
		Phase:   e.phase,
		Message: message,
		Current: current,
		Total:   total,
		Percent: e.rng.AtPartial(current, total, fraction),
	})
}

// Done publishes the phase's end percentage.
func (e *Emitter) Done(message string) {
	if e == nil || e.sink == nil {
		return
	}
	e.sink(Event{
		Phase:   e.phase,
		Message: message,
		Percent: e.rng.End,
	})
}
