// Package agent implements the agent side of the relay1 protocol: the
// measurement agent that streams telemetry to the relay and the actuation
// agent that applies forwarded commands and acknowledges them.
//
// Hardware access is abstracted behind small provider interfaces; this
// package ships simulated implementations only.
package agent

import (
	"math/rand"
	"sync"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/spec"
)

// VoltageReader reads one voltage sample from the measurement hardware.
type VoltageReader interface {
	// Read returns the sampled voltage and its quality flag.
	Read() (float64, model.Status)
}

// Actuator applies a commanded voltage on the actuation hardware.
type Actuator interface {
	// Apply sets the output voltage and returns the voltage actually set.
	// A junk status must drive the output to the safe state (0 V).
	Apply(voltage float64, status model.Status) float64
}

// PositionProvider returns the most recent position fix, or nil when no fix
// is available. It is polled on its own cadence, never inside the relay
// cycle.
type PositionProvider interface {
	Current() *model.Position
}

// SimulatedReader is a VoltageReader that produces a bounded random walk
// in [0, VRef]. Samples at or below the junk threshold report StatusJunk,
// mimicking a disconnected probe.
type SimulatedReader struct {
	rnd  *rand.Rand
	last float64
}

// junkThreshold is the voltage floor under which a probe is considered
// disconnected.
const junkThreshold = 0.1

// NewSimulatedReader returns a SimulatedReader seeded with seed.
func NewSimulatedReader(seed int64) *SimulatedReader {
	return &SimulatedReader{
		rnd:  rand.New(rand.NewSource(seed)),
		last: spec.VRef / 2,
	}
}

// Read returns the next sample of the random walk.
func (r *SimulatedReader) Read() (float64, model.Status) {
	r.last += (r.rnd.Float64() - 0.5) * 0.2
	if r.last < 0 {
		r.last = 0
	}
	if r.last > spec.VRef {
		r.last = spec.VRef
	}
	if r.last <= junkThreshold {
		return r.last, model.StatusJunk
	}
	return r.last, model.StatusProper
}

// SimulatedActuator is an Actuator that remembers the last voltage it set.
type SimulatedActuator struct {
	mu    sync.Mutex
	value float64
}

// NewSimulatedActuator returns a SimulatedActuator with its output at 0 V.
func NewSimulatedActuator() *SimulatedActuator {
	return &SimulatedActuator{}
}

// Apply sets the output. Junk commands drive the output to 0 V; proper
// commands are clamped to [0, VRef].
func (a *SimulatedActuator) Apply(voltage float64, status model.Status) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if status != model.StatusProper {
		a.value = 0
		return 0
	}
	if voltage < 0 {
		voltage = 0
	}
	if voltage > spec.VRef {
		voltage = spec.VRef
	}
	a.value = voltage
	return voltage
}

// Value returns the last voltage set on the output.
func (a *SimulatedActuator) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// FixedPosition is a PositionProvider that always reports the same fix.
type FixedPosition struct {
	Pos model.Position
}

// Current returns the fixed position.
func (f FixedPosition) Current() *model.Position {
	pos := f.Pos
	return &pos
}

// NoPosition is a PositionProvider without a fix.
type NoPosition struct{}

// Current returns nil.
func (NoPosition) Current() *model.Position {
	return nil
}
