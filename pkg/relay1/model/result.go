package model

import "time"

// LatencyRecord is one completed relay cycle. Records are appended to the
// session log only when the acknowledgement arrived within the deadline;
// sequence numbers are therefore dense.
type LatencyRecord struct {
	// Sequence is the record's position in the session log, starting at 1.
	Sequence int
	// CommandSeq is the wire identifier of the command this cycle sent.
	// Cycles that time out consume a command identifier but no Sequence.
	CommandSeq int64

	// SendTime is t1: the measurement peer's send timestamp (Unix seconds).
	SendTime float64
	// CorrectedReceiptTime is t2 corrected by the estimated clock offset,
	// i.e. the actuation peer's receipt time expressed on the measurement
	// peer's clock.
	CorrectedReceiptTime float64
	// Offset is the estimated clock offset between the two peers (seconds).
	Offset float64
	// DelayMs is the corrected one-way delay in milliseconds. Negative
	// values are preserved: they mean the transit-symmetry assumption did
	// not hold for this cycle.
	DelayMs float64

	// Voltage is the sampled sensor voltage.
	Voltage float64
	// Status is the sample's quality flag.
	Status Status
	// AppliedVoltage is the voltage the actuation peer reports having set.
	AppliedVoltage float64
	// Position is the measurement peer's fix at send time, if any.
	Position *Position `json:",omitempty"`
}

// SessionArchive is the archival data format for a finalized session.
type SessionArchive struct {
	// GitShortCommit is the Git commit (short form) of the running server
	// code.
	GitShortCommit string
	// ID is the unique identifier for this session.
	ID string

	// StartTime is the session's start time.
	StartTime time.Time
	// EndTime is the session's end time.
	EndTime time.Time
	// StopReason says what finalized the session: the external stop command
	// or a peer disconnect.
	StopReason string

	// MeasurementAgent is the measurement peer's agent ID, if one was
	// connected when the session started.
	MeasurementAgent string
	// ActuationAgent is the actuation peer's agent ID.
	ActuationAgent string
	// ActuationAddr is the actuation peer's ip:port pair.
	ActuationAddr string

	// Records is the ordered list of completed relay cycles.
	Records []LatencyRecord

	// CyclesAttempted counts every command sent, including timed-out ones.
	CyclesAttempted int64
	// MeanDelayMs is the mean of the corrected one-way delays.
	MeanDelayMs float64
	// MinDelayMs is the smallest corrected delay.
	MinDelayMs float64
	// MaxDelayMs is the largest corrected delay.
	MaxDelayMs float64
}

// Summary is the session summary returned by the status endpoint.
type Summary struct {
	// ID is the unique identifier for this session.
	ID string
	// Active says whether the session is still accumulating records.
	Active bool
	// StartTime is the session's start time.
	StartTime time.Time
	// RecordCount is the number of completed relay cycles so far.
	RecordCount int
	// CyclesAttempted counts every command sent, including timed-out ones.
	CyclesAttempted int64
	// MeanDelayMs is the running mean of the corrected one-way delays.
	MeanDelayMs float64
}
