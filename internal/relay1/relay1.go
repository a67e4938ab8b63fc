// Package relay1 implements the relay side of the relay1 protocol: it
// accepts one measurement peer and one actuation peer over WebSocket,
// forwards each telemetry-derived command from the former to the latter,
// correlates the acknowledgement back to the command, and logs the
// clock-offset-corrected one-way latency of every completed cycle.
package relay1

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Rachana904/v2vcommunication/internal/correlator"
	"github.com/Rachana904/v2vcommunication/internal/geo"
	"github.com/Rachana904/v2vcommunication/internal/netx"
	"github.com/Rachana904/v2vcommunication/internal/offset"
	"github.com/Rachana904/v2vcommunication/internal/persistence"
	"github.com/Rachana904/v2vcommunication/internal/registry"
	"github.com/Rachana904/v2vcommunication/internal/session"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/spec"
)

var relayCycles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_cycles_total",
	Help: "Telemetry packets processed, by outcome.",
}, []string{"outcome"})

var reportWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "relay_report_write_failures_total",
	Help: "Session archives that could not be written to disk.",
})

var (
	errBadHello  = errors.New("malformed hello message")
	errWrongRole = errors.New("hello role does not match endpoint")
)

// Handler hosts the relay1 endpoints for both peer roles and the session
// control endpoints.
type Handler struct {
	dataDir string

	registry   *registry.Registry
	correlator *correlator.Correlator
	sessionLog *session.Log
	tracker    *geo.Tracker

	// cmdSeq numbers every forwarded command. It never resets, so a stale
	// acknowledgement can never collide with a later command.
	cmdSeq atomic.Int64
}

// NewHandler returns a Handler that archives finalized sessions under
// dataDir.
func NewHandler(dataDir string) *Handler {
	h := &Handler{
		dataDir:    dataDir,
		correlator: correlator.New(),
		sessionLog: session.New(),
		tracker:    geo.New(spec.PositionTTL),
	}
	h.registry = registry.New(func(role model.Role) {
		log.Info("peer registry changed", "role", role,
			"connected", h.registry.Status(role).Connected)
	})
	return h
}

// Upgrade takes an HTTP request and upgrades the connection to WebSocket.
// Returns a websocket Conn if the upgrade succeeded, and an error otherwise.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	// We expect WebSocket's subprotocol to be relay1's. The same subprotocol
	// is added as a header on the response.
	if r.Header.Get("Sec-WebSocket-Protocol") != spec.SecWebSocketProtocol {
		w.WriteHeader(http.StatusBadRequest)
		return nil, errors.New("missing Sec-WebSocket-Protocol header")
	}
	h := http.Header{}
	h.Add("Sec-WebSocket-Protocol", spec.SecWebSocketProtocol)
	u := websocket.Upgrader{
		// Allow cross-origin resource sharing.
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return u.Upgrade(w, r, h)
}

// Measurement is the HTTP handler for the measurement peer endpoint.
func (h *Handler) Measurement(rw http.ResponseWriter, req *http.Request) {
	h.upgradeAndServe(model.RoleMeasurement, rw, req)
}

// Actuation is the HTTP handler for the actuation peer endpoint.
func (h *Handler) Actuation(rw http.ResponseWriter, req *http.Request) {
	h.upgradeAndServe(model.RoleActuation, rw, req)
}

func (h *Handler) upgradeAndServe(role model.Role, rw http.ResponseWriter,
	req *http.Request) {
	// Once upgraded, the underlying TCP connection is hijacked and the
	// relay1 code takes care of closing it.
	wsConn, err := Upgrade(rw, req)
	if err != nil {
		log.Info("websocket upgrade failed", "source", req.RemoteAddr,
			"error", err)
		return
	}

	hello, err := readHello(wsConn, role)
	if err != nil {
		log.Info("handshake failed", "role", role,
			"source", req.RemoteAddr, "error", err)
		wsConn.Close()
		return
	}

	// The connection UUID is saved into the request context by the
	// server's ConnContext. When the handler runs behind a plain listener
	// (e.g. in tests), fall back to a random one.
	connUUID := netx.UUIDFromContext(req.Context())
	if connUUID == "" {
		connUUID = uuid.NewString()
	}

	peer := &registry.Peer{
		Role:        role,
		AgentID:     hello.AgentID,
		UUID:        connUUID,
		RemoteAddr:  wsConn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		Conn:        wsConn,
	}
	h.registry.Register(peer)
	log.Info("peer connected", "role", role, "agent", hello.AgentID,
		"addr", peer.RemoteAddr, "uuid", connUUID)

	switch role {
	case model.RoleMeasurement:
		err = h.measurementLoop(wsConn)
	case model.RoleActuation:
		err = h.actuationLoop(wsConn)
	}

	// Transport and parse failures terminate only this connection. If this
	// peer still owns its registry slot, its loss also finalizes the active
	// session; if it was already replaced, the replacement's traffic must
	// not be disturbed.
	wsConn.Close()
	if h.registry.Clear(peer) {
		log.Info("peer disconnected", "role", role, "agent", hello.AgentID,
			"error", err)
		h.finalizeSession("peer_disconnect")
	}
}

// readHello reads and validates the peer's identification message. The peer
// must send it within the handshake timeout and its role must match the
// endpoint it connected to.
func readHello(wsConn *websocket.Conn, want model.Role) (model.Hello, error) {
	var hello model.Hello
	wsConn.SetReadDeadline(time.Now().Add(spec.HandshakeTimeout))
	defer wsConn.SetReadDeadline(time.Time{})
	if err := wsConn.ReadJSON(&hello); err != nil {
		return hello, err
	}
	if hello.AgentID == "" || !hello.Role.Valid() {
		return hello, errBadHello
	}
	if hello.Role != want {
		return hello, errWrongRole
	}
	return hello, nil
}

// measurementLoop reads telemetry packets until the connection fails and
// runs one relay cycle per packet. Cycles are strictly sequential: the next
// packet is not read until the current cycle is correlated or timed out.
func (h *Handler) measurementLoop(wsConn *websocket.Conn) error {
	for {
		var pkt model.TelemetryPacket
		if err := wsConn.ReadJSON(&pkt); err != nil {
			return err
		}
		h.relayCycle(pkt)
	}
}

// actuationLoop reads acknowledgements until the connection fails and hands
// each one to the correlator. It never blocks on the relay loop.
func (h *Handler) actuationLoop(wsConn *websocket.Conn) error {
	for {
		var ack model.Acknowledgement
		if err := wsConn.ReadJSON(&ack); err != nil {
			return err
		}
		h.tracker.Update(model.RoleActuation, ack.Position)
		h.correlator.Publish(ack)
	}
}

// relayCycle processes one telemetry packet: Idle -> Forwarded ->
// {Correlated, TimedOut}.
func (h *Handler) relayCycle(pkt model.TelemetryPacket) {
	// The packet always updates the live position/status view, session or
	// not.
	h.tracker.Update(model.RoleMeasurement, pkt.Position)

	if !h.sessionLog.Active() {
		relayCycles.WithLabelValues("idle").Inc()
		log.Debug("telemetry observed outside session", "voltage", pkt.Voltage,
			"status", pkt.Status)
		return
	}
	actuator := h.registry.Current(model.RoleActuation)
	if actuator == nil {
		relayCycles.WithLabelValues("no_actuator").Inc()
		log.Debug("no actuation peer, telemetry not relayed")
		return
	}

	seq := h.cmdSeq.Add(1)
	// Arm the pending slot before sending, so the acknowledgement cannot
	// race the registration.
	h.correlator.Register(seq)
	cmd := model.Command{
		Seq:     seq,
		Voltage: pkt.Voltage,
		Status:  pkt.Status,
	}
	if err := actuator.WriteJSON(cmd); err != nil {
		h.correlator.Forget(seq)
		relayCycles.WithLabelValues("send_error").Inc()
		log.Warn("failed to forward command", "seq", seq, "error", err)
		return
	}
	h.sessionLog.CycleAttempted()

	ack, err := h.correlator.Wait(seq, spec.AckDeadline)
	if err != nil {
		// The only expected failure mode in the steady state: skip this
		// cycle's log row and keep going.
		relayCycles.WithLabelValues("timeout").Inc()
		log.Warn("timed out waiting for acknowledgement", "seq", seq)
		return
	}
	// t4 is the wall-clock time at which the acknowledgement was retrieved.
	t4 := unixNow()

	est := offset.Compute(pkt.SendTime, ack.ReceiptTime, ack.ReplySendTime, t4)
	record := model.LatencyRecord{
		CommandSeq:           seq,
		SendTime:             pkt.SendTime,
		CorrectedReceiptTime: est.CorrectedT2,
		Offset:               est.Offset,
		DelayMs:              est.Delay * 1000,
		Voltage:              pkt.Voltage,
		Status:               pkt.Status,
		AppliedVoltage:       ack.AppliedVoltage,
		Position:             pkt.Position,
	}
	if n := h.sessionLog.Append(record); n == 0 {
		// The session was finalized while this cycle was in flight.
		relayCycles.WithLabelValues("late").Inc()
		log.Debug("cycle completed after session stop", "seq", seq)
		return
	}
	relayCycles.WithLabelValues("relayed").Inc()
	log.Debug("cycle relayed", "seq", seq, "delay_ms", record.DelayMs,
		"offset_s", record.Offset)
}

// finalizeSession stops the session log, if active, and hands the archive
// to the report sink. Sink failures are logged and never escalate.
func (h *Handler) finalizeSession(reason string) {
	archive, ok := h.sessionLog.Stop(reason)
	if !ok {
		return
	}
	_, err := persistence.WriteDataFile(h.dataDir, "relay1", "session",
		archive.ID, archive)
	if err != nil {
		reportWriteFailures.Inc()
		log.Error("failed to write session archive", "id", archive.ID,
			"error", err)
	}
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
