// Package spec contains constants for the relay1 protocol.
package spec

import "time"

const (
	// MeasurementPath is the endpoint where the measurement agent connects.
	MeasurementPath = "/v2v/v1/measurement"
	// ActuationPath is the endpoint where the actuation agent connects.
	ActuationPath = "/v2v/v1/actuation"

	// SessionStartPath arms a new logging session.
	SessionStartPath = "/v2v/v1/session/start"
	// SessionStopPath finalizes the active logging session.
	SessionStopPath = "/v2v/v1/session/stop"
	// StatusPath returns a JSON snapshot of the relay state.
	StatusPath = "/v2v/v1/status"

	// SecWebSocketProtocol is the value of the Sec-WebSocket-Protocol header.
	SecWebSocketProtocol = "net.v2v.relay.v1"

	// AckDeadline is how long the relay waits for the acknowledgement of a
	// forwarded command before skipping the cycle.
	AckDeadline = 2000 * time.Millisecond

	// HandshakeTimeout is how long the relay waits for a peer's hello
	// message after the WebSocket upgrade.
	HandshakeTimeout = 5 * time.Second

	// TelemetryInterval is the measurement agent's send cadence.
	TelemetryInterval = 500 * time.Millisecond

	// ReconnectInterval is how long agents wait before redialing the relay
	// after a connection failure.
	ReconnectInterval = 5 * time.Second

	// MinPositionInterval is the minimum interval between position polls on
	// an agent.
	MinPositionInterval = 1 * time.Second
	// AvgPositionInterval is the average interval between position polls.
	AvgPositionInterval = 3 * time.Second
	// MaxPositionInterval is the maximum interval between position polls.
	MaxPositionInterval = 6 * time.Second

	// PositionTTL is how long a last-known position is reported before it
	// is considered stale.
	PositionTTL = 30 * time.Second

	// VRef is the actuator's reference voltage. Commands are clamped to
	// [0, VRef] before being applied.
	VRef = 3.3
)
