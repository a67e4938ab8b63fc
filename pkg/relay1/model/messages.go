// Package model contains the relay1 wire messages and archival data
// structures.
package model

// Role identifies which peer slot a connection occupies.
type Role string

const (
	// RoleMeasurement is the telemetry-producing peer.
	RoleMeasurement = Role("measurement")
	// RoleActuation is the command-consuming peer.
	RoleActuation = Role("actuation")
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleMeasurement || r == RoleActuation
}

// Status is the quality flag attached to a voltage sample.
type Status string

const (
	// StatusProper marks a sample read from a live voltage source.
	StatusProper = Status("Proper")
	// StatusJunk marks a sample from a disconnected or failing source.
	StatusJunk = Status("Junk")
)

// Position is a latitude/longitude fix.
type Position struct {
	Lat float64
	Lon float64
}

// Hello is the identification message a peer sends immediately after
// connecting. The role must match the endpoint the peer connected to.
type Hello struct {
	// AgentID is a free-form identifier for the agent (e.g. "sensor-pi").
	AgentID string
	// Role is the peer slot this connection wants to occupy.
	Role Role
}

// TelemetryPacket is one measurement sample sent by the measurement peer.
type TelemetryPacket struct {
	// Voltage is the sampled sensor voltage.
	Voltage float64
	// Status says whether Voltage came from a live source.
	Status Status
	// Position is the sender's last-known fix, if any.
	Position *Position `json:",omitempty"`
	// SendTime is the sender's wall clock at send time, in Unix seconds.
	// This is the t1 of the cycle's latency computation.
	SendTime float64
}

// Command is the instruction the relay derives from a TelemetryPacket and
// forwards to the actuation peer.
type Command struct {
	// Seq is the relay-assigned identifier for this command. The
	// acknowledgement must echo it.
	Seq int64
	// Voltage is the voltage to apply.
	Voltage float64
	// Status says whether Voltage is trustworthy. Junk commands drive the
	// actuator to its safe state.
	Status Status
}

// Acknowledgement is the actuation peer's report of what it did with a
// Command.
type Acknowledgement struct {
	// Seq echoes the Seq of the Command this acknowledges.
	Seq int64
	// ReceiptTime is the actuation peer's wall clock when the command was
	// received (t2), in Unix seconds on the peer's own clock.
	ReceiptTime float64
	// ReplySendTime is the actuation peer's wall clock just before this
	// acknowledgement was sent (t3).
	ReplySendTime float64
	// AppliedVoltage is the voltage actually set on the actuator.
	AppliedVoltage float64
	// Position is the sender's last-known fix, if any.
	Position *Position `json:",omitempty"`
}
