// Package session implements the session-scoped log of completed relay
// cycles.
package session

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/go/prometheusx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_sessions_started_total",
		Help: "Sessions armed via the start command.",
	})
	sessionsStopped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_sessions_stopped_total",
		Help: "Sessions finalized, by stop reason.",
	}, []string{"reason"})
)

// Log accumulates LatencyRecords for the active session. It is written by
// the relay loop and read by status consumers, so every method takes the
// internal lock.
type Log struct {
	mu sync.Mutex

	id        string
	active    bool
	startTime time.Time

	measurementAgent string
	actuationAgent   string
	actuationAddr    string

	records  []model.LatencyRecord
	delaysMs []float64
	attempts int64
}

// New returns an inactive, empty Log.
func New() *Log {
	return &Log{}
}

// Start discards any prior records and raw delay samples and arms the log.
// The agent arguments are recorded for the final report's connection
// details. It returns the new session's ID.
func (l *Log) Start(measurementAgent, actuationAgent, actuationAddr string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.id = uuid.NewString()
	l.active = true
	l.startTime = time.Now()
	l.measurementAgent = measurementAgent
	l.actuationAgent = actuationAgent
	l.actuationAddr = actuationAddr
	l.records = nil
	l.delaysMs = nil
	l.attempts = 0

	sessionsStarted.Inc()
	log.Info("session started", "id", l.id)
	return l.id
}

// Active reports whether the log is armed.
func (l *Log) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// CycleAttempted counts one forwarded command, whether or not it will be
// acknowledged in time.
func (l *Log) CycleAttempted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
}

// Append adds a completed cycle to the log, assigning the next dense
// sequence number, and returns it. It returns 0 if the log is inactive: a
// cycle that completes after the session was finalized is not recorded.
func (l *Log) Append(record model.LatencyRecord) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return 0
	}
	record.Sequence = len(l.records) + 1
	l.records = append(l.records, record)
	l.delaysMs = append(l.delaysMs, record.DelayMs)
	return record.Sequence
}

// Stop disarms the log and returns the finalized archive. Stopping an
// already-inactive log is a no-op and returns (nil, false).
func (l *Log) Stop(reason string) (*model.SessionArchive, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return nil, false
	}
	l.active = false

	archive := &model.SessionArchive{
		GitShortCommit:   prometheusx.GitShortCommit,
		ID:               l.id,
		StartTime:        l.startTime,
		EndTime:          time.Now(),
		StopReason:       reason,
		MeasurementAgent: l.measurementAgent,
		ActuationAgent:   l.actuationAgent,
		ActuationAddr:    l.actuationAddr,
		Records:          l.records,
		CyclesAttempted:  l.attempts,
	}
	archive.MeanDelayMs, archive.MinDelayMs, archive.MaxDelayMs = summarize(l.delaysMs)

	sessionsStopped.WithLabelValues(reason).Inc()
	log.Info("session stopped", "id", l.id, "reason", reason,
		"records", len(l.records), "mean_delay_ms", archive.MeanDelayMs)
	return archive, true
}

// Summary returns the running state of the log for the status endpoint.
func (l *Log) Summary() model.Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	mean, _, _ := summarize(l.delaysMs)
	return model.Summary{
		ID:              l.id,
		Active:          l.active,
		StartTime:       l.startTime,
		RecordCount:     len(l.records),
		CyclesAttempted: l.attempts,
		MeanDelayMs:     mean,
	}
}

// summarize computes mean, min and max of the delay samples. All zeroes for
// an empty slice.
func summarize(delays []float64) (mean, min, max float64) {
	if len(delays) == 0 {
		return 0, 0, 0
	}
	min = delays[0]
	max = delays[0]
	sum := 0.0
	for _, d := range delays {
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return sum / float64(len(delays)), min, max
}
