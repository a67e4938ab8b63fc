// Package correlator matches acknowledgements from the actuation peer to the
// commands that caused them.
//
// Correlation is identifier-based: every command carries a sequence number
// and the acknowledgement echoes it. The actuation reader publishes each
// parsed acknowledgement; the relay loop waits on the slot it registered
// before sending the command. Publishing never blocks and waiting never
// spins: the hand-off is a buffered channel per pending command.
package correlator

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
)

var staleAcks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "relay_stale_acknowledgements_total",
	Help: "Acknowledgements that matched no pending command.",
})

// ErrTimeout is returned by Wait when no acknowledgement arrives within the
// deadline.
var ErrTimeout = errors.New("timed out waiting for acknowledgement")

// ErrNotPending is returned by Wait for a sequence number that was never
// registered or was already forgotten.
var ErrNotPending = errors.New("sequence number is not pending")

// Correlator routes acknowledgements to pending command slots.
//
// The relay loop is single-flight by construction, so normally at most one
// slot is pending, but the map keeps correlation correct even if that
// invariant is ever broken upstream.
type Correlator struct {
	mu      sync.Mutex
	pending map[int64]chan model.Acknowledgement
}

// New returns an empty Correlator.
func New() *Correlator {
	return &Correlator{
		pending: make(map[int64]chan model.Acknowledgement),
	}
}

// Register arms a pending slot for seq. It must be called before the command
// is sent, so an acknowledgement can never race the registration.
func (c *Correlator) Register(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Buffered so Publish never blocks on a slot whose waiter is gone.
	c.pending[seq] = make(chan model.Acknowledgement, 1)
}

// Publish routes ack to the slot registered for its sequence number. It
// never blocks. It returns false if no such slot exists: a stale or unknown
// acknowledgement, which is dropped.
func (c *Correlator) Publish(ack model.Acknowledgement) bool {
	c.mu.Lock()
	ch, ok := c.pending[ack.Seq]
	if !ok {
		c.mu.Unlock()
		staleAcks.Inc()
		log.Debug("dropping stale acknowledgement", "seq", ack.Seq)
		return false
	}
	// The send happens under the lock: once Publish reports true, the slot
	// was still pending, so the waiter is guaranteed to receive the
	// acknowledgement even if its deadline fires concurrently.
	select {
	case ch <- ack:
		c.mu.Unlock()
		return true
	default:
		c.mu.Unlock()
		// Duplicate acknowledgement for a slot that already holds one.
		staleAcks.Inc()
		log.Debug("dropping duplicate acknowledgement", "seq", ack.Seq)
		return false
	}
}

// Wait blocks until the acknowledgement for seq arrives or the deadline
// elapses. On timeout, the slot is forgotten so a late acknowledgement is
// treated as stale instead of being matched to a future wait.
func (c *Correlator) Wait(seq int64, deadline time.Duration) (model.Acknowledgement, error) {
	c.mu.Lock()
	ch, ok := c.pending[seq]
	c.mu.Unlock()
	if !ok {
		return model.Acknowledgement{}, ErrNotPending
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case ack := <-ch:
		c.Forget(seq)
		return ack, nil
	case <-timer.C:
		// Discard the slot and drain it under the same lock Publish sends
		// under, so an acknowledgement that won the race is preferred over
		// a timeout and one that lost it is counted as stale.
		c.mu.Lock()
		delete(c.pending, seq)
		select {
		case ack := <-ch:
			c.mu.Unlock()
			return ack, nil
		default:
			c.mu.Unlock()
			return model.Acknowledgement{}, ErrTimeout
		}
	}
}

// Forget discards the pending slot for seq, if any.
func (c *Correlator) Forget(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, seq)
}

// Pending returns the number of armed slots. Used by tests and diagnostics.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
