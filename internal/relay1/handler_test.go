package relay1_test

import (
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-lab/go/rtx"

	"github.com/Rachana904/v2vcommunication/internal/netx"
	"github.com/Rachana904/v2vcommunication/internal/relay1"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/spec"
)

func TestNewHandler(t *testing.T) {
	h := relay1.NewHandler(t.TempDir())
	if h == nil {
		t.Errorf("NewHandler returned nil")
	}
}

func setupTestServer(h *relay1.Handler) *httptest.Server {
	tcpl, err := net.ListenTCP("tcp", nil)
	rtx.Must(err, "cannot listen")
	mux := http.NewServeMux()
	mux.Handle(spec.MeasurementPath, http.HandlerFunc(h.Measurement))
	mux.Handle(spec.ActuationPath, http.HandlerFunc(h.Actuation))
	server := httptest.NewUnstartedServer(mux)
	server.Listener = netx.NewListener(tcpl)
	server.Start()
	return server
}

func setupTestWSDialer(u *url.URL) *websocket.Dialer {
	return &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := net.Dial("tcp", u.Host)
			if err != nil {
				return nil, err
			}
			return netx.FromTCPConn(conn.(*net.TCPConn)), nil
		},
	}
}

// dialPeer connects to the given peer endpoint and completes the hello
// handshake for role.
func dialPeer(t *testing.T, server *httptest.Server, path string,
	role model.Role, agentID string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(server.URL)
	rtx.Must(err, "cannot get server URL")
	u.Scheme = "ws"
	u.Path = path

	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", spec.SecWebSocketProtocol)
	conn, _, err := setupTestWSDialer(u).Dial(u.String(), headers)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	err = conn.WriteJSON(model.Hello{AgentID: agentID, Role: role})
	if err != nil {
		t.Fatalf("cannot send hello: %v", err)
	}
	return conn
}

func getStatus(t *testing.T, h *relay1.Handler) relay1.Status {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, spec.StatusPath, nil))
	var status relay1.Status
	err := json.Unmarshal(rec.Body.Bytes(), &status)
	if err != nil {
		t.Fatalf("cannot decode status: %v", err)
	}
	return status
}

func startSession(t *testing.T, h *relay1.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.SessionStart(rec, httptest.NewRequest(http.MethodPost, spec.SessionStartPath, nil))
	return rec
}

func stopSession(t *testing.T, h *relay1.Handler) bool {
	t.Helper()
	rec := httptest.NewRecorder()
	h.SessionStop(rec, httptest.NewRequest(http.MethodPost, spec.SessionStopPath, nil))
	var body map[string]bool
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	if err != nil {
		t.Fatalf("cannot decode stop response: %v", err)
	}
	return body["Stopped"]
}

// waitFor polls cond every 10ms until it returns true or the timeout
// expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// archiveFiles returns the session archive files written under dir.
func archiveFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})
	rtx.Must(err, "cannot walk data dir")
	return files
}

func readArchive(t *testing.T, path string) model.SessionArchive {
	t.Helper()
	b, err := os.ReadFile(path)
	rtx.Must(err, "cannot read archive")
	var archive model.SessionArchive
	err = json.Unmarshal(b, &archive)
	if err != nil {
		t.Fatalf("cannot decode archive: %v", err)
	}
	return archive
}

// serveAcks reads commands from the actuation connection and acknowledges
// each one immediately, echoing its sequence number.
func serveAcks(conn *websocket.Conn, pos *model.Position) {
	for {
		var cmd model.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		t2 := float64(time.Now().UnixNano()) / 1e9
		ack := model.Acknowledgement{
			Seq:            cmd.Seq,
			ReceiptTime:    t2,
			ReplySendTime:  t2,
			AppliedVoltage: cmd.Voltage,
			Position:       pos,
		}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}

func TestHandler_RelayCycle(t *testing.T) {
	tempDir := t.TempDir()
	h := relay1.NewHandler(tempDir)
	server := setupTestServer(h)
	defer server.Close()

	measurement := dialPeer(t, server, spec.MeasurementPath,
		model.RoleMeasurement, "sensor-test")
	defer measurement.Close()
	actuation := dialPeer(t, server, spec.ActuationPath,
		model.RoleActuation, "actuator-test")
	defer actuation.Close()

	waitFor(t, time.Second, "both peers registered", func() bool {
		s := getStatus(t, h)
		return s.Measurement.Connected && s.Actuation.Connected
	})

	rec := startSession(t, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("session start failed: %d %s", rec.Code, rec.Body.String())
	}

	go serveAcks(actuation, &model.Position{Lat: 13.08, Lon: 80.27})

	pkt := model.TelemetryPacket{
		Voltage:  1.65,
		Status:   model.StatusProper,
		Position: &model.Position{Lat: 13.07, Lon: 80.26},
		SendTime: float64(time.Now().UnixNano()) / 1e9,
	}
	if err := measurement.WriteJSON(pkt); err != nil {
		t.Fatalf("cannot send telemetry: %v", err)
	}

	waitFor(t, 2*time.Second, "cycle logged", func() bool {
		return getStatus(t, h).Session.RecordCount == 1
	})
	status := getStatus(t, h)
	if status.Session.CyclesAttempted != 1 {
		t.Errorf("CyclesAttempted: expected 1, got %d", status.Session.CyclesAttempted)
	}
	if _, ok := status.Positions[model.RoleMeasurement]; !ok {
		t.Errorf("measurement position missing from status")
	}

	if !stopSession(t, h) {
		t.Fatalf("stop reported no active session")
	}
	files := archiveFiles(t, tempDir)
	if len(files) != 1 {
		t.Fatalf("expected 1 archive file, got %d", len(files))
	}
	archive := readArchive(t, files[0])
	if archive.StopReason != "command" {
		t.Errorf("StopReason: expected command, got %s", archive.StopReason)
	}
	if len(archive.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(archive.Records))
	}
	record := archive.Records[0]
	if record.Sequence != 1 {
		t.Errorf("Sequence: expected 1, got %d", record.Sequence)
	}
	if record.Voltage != pkt.Voltage || record.AppliedVoltage != pkt.Voltage {
		t.Errorf("unexpected voltages in record: %+v", record)
	}
}

func TestHandler_AckTimeoutSkipsRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full acknowledgement deadline")
	}
	tempDir := t.TempDir()
	h := relay1.NewHandler(tempDir)
	server := setupTestServer(h)
	defer server.Close()

	measurement := dialPeer(t, server, spec.MeasurementPath,
		model.RoleMeasurement, "sensor-test")
	defer measurement.Close()
	actuation := dialPeer(t, server, spec.ActuationPath,
		model.RoleActuation, "actuator-test")
	defer actuation.Close()

	waitFor(t, time.Second, "both peers registered", func() bool {
		s := getStatus(t, h)
		return s.Measurement.Connected && s.Actuation.Connected
	})
	if rec := startSession(t, h); rec.Code != http.StatusOK {
		t.Fatalf("session start failed: %d", rec.Code)
	}

	// Read the forwarded command but never acknowledge it.
	go func() {
		var cmd model.Command
		actuation.ReadJSON(&cmd)
	}()

	pkt := model.TelemetryPacket{
		Voltage:  2.5,
		Status:   model.StatusProper,
		SendTime: float64(time.Now().UnixNano()) / 1e9,
	}
	if err := measurement.WriteJSON(pkt); err != nil {
		t.Fatalf("cannot send telemetry: %v", err)
	}

	waitFor(t, spec.AckDeadline+time.Second, "cycle attempted", func() bool {
		return getStatus(t, h).Session.CyclesAttempted == 1
	})
	// Give the deadline time to expire, then verify no record was logged.
	time.Sleep(spec.AckDeadline + 200*time.Millisecond)
	if !stopSession(t, h) {
		t.Fatalf("stop reported no active session")
	}

	files := archiveFiles(t, tempDir)
	if len(files) != 1 {
		t.Fatalf("expected 1 archive file, got %d", len(files))
	}
	archive := readArchive(t, files[0])
	if archive.CyclesAttempted != 1 {
		t.Errorf("CyclesAttempted: expected 1, got %d", archive.CyclesAttempted)
	}
	if len(archive.Records) != 0 {
		t.Errorf("expected no records, got %d", len(archive.Records))
	}
}

func TestHandler_PeerDisconnectFinalizes(t *testing.T) {
	tempDir := t.TempDir()
	h := relay1.NewHandler(tempDir)
	server := setupTestServer(h)
	defer server.Close()

	measurement := dialPeer(t, server, spec.MeasurementPath,
		model.RoleMeasurement, "sensor-test")
	actuation := dialPeer(t, server, spec.ActuationPath,
		model.RoleActuation, "actuator-test")
	defer actuation.Close()

	waitFor(t, time.Second, "both peers registered", func() bool {
		s := getStatus(t, h)
		return s.Measurement.Connected && s.Actuation.Connected
	})
	if rec := startSession(t, h); rec.Code != http.StatusOK {
		t.Fatalf("session start failed: %d", rec.Code)
	}

	measurement.Close()

	waitFor(t, 2*time.Second, "archive written", func() bool {
		return len(archiveFiles(t, tempDir)) == 1
	})
	if getStatus(t, h).Session.Active {
		t.Errorf("session still active after disconnect")
	}
	files := archiveFiles(t, tempDir)
	if got := readArchive(t, files[0]).StopReason; got != "peer_disconnect" {
		t.Errorf("StopReason: expected peer_disconnect, got %s", got)
	}
}

func TestHandler_IdleTelemetry(t *testing.T) {
	h := relay1.NewHandler(t.TempDir())
	server := setupTestServer(h)
	defer server.Close()

	measurement := dialPeer(t, server, spec.MeasurementPath,
		model.RoleMeasurement, "sensor-test")
	defer measurement.Close()
	waitFor(t, time.Second, "peer registered", func() bool {
		return getStatus(t, h).Measurement.Connected
	})

	// Telemetry with no active session is not relayed, but it still feeds
	// the live position view.
	pkt := model.TelemetryPacket{
		Voltage:  1.0,
		Status:   model.StatusProper,
		Position: &model.Position{Lat: 45.0, Lon: 9.0},
		SendTime: float64(time.Now().UnixNano()) / 1e9,
	}
	if err := measurement.WriteJSON(pkt); err != nil {
		t.Fatalf("cannot send telemetry: %v", err)
	}

	waitFor(t, time.Second, "position tracked", func() bool {
		_, ok := getStatus(t, h).Positions[model.RoleMeasurement]
		return ok
	})
	s := getStatus(t, h).Session
	if s.Active || s.RecordCount != 0 || s.CyclesAttempted != 0 {
		t.Errorf("idle telemetry touched the session log: %+v", s)
	}
}

func TestHandler_SessionStartRequiresPeers(t *testing.T) {
	h := relay1.NewHandler(t.TempDir())
	rec := startSession(t, h)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestHandler_SessionStopInactive(t *testing.T) {
	tempDir := t.TempDir()
	h := relay1.NewHandler(tempDir)
	if stopSession(t, h) {
		t.Errorf("stop reported an active session")
	}
	if files := archiveFiles(t, tempDir); len(files) != 0 {
		t.Errorf("expected no archive files, got %d", len(files))
	}
}

func TestHandler_ControlMethodNotAllowed(t *testing.T) {
	h := relay1.NewHandler(t.TempDir())
	rec := httptest.NewRecorder()
	h.SessionStart(rec, httptest.NewRequest(http.MethodGet, spec.SessionStartPath, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("start: expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
	rec = httptest.NewRecorder()
	h.SessionStop(rec, httptest.NewRequest(http.MethodGet, spec.SessionStopPath, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("stop: expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestHandler_MissingSubprotocol(t *testing.T) {
	h := relay1.NewHandler(t.TempDir())
	server := setupTestServer(h)
	defer server.Close()

	u, err := url.Parse(server.URL)
	rtx.Must(err, "cannot get server URL")
	u.Scheme = "ws"
	u.Path = spec.MeasurementPath

	_, _, err = setupTestWSDialer(u).Dial(u.String(), nil)
	if err == nil {
		t.Fatalf("expected dial to fail without the subprotocol header")
	}
}

// A frame that does not parse terminates the reader like a disconnect: the
// registry slot clears and the active session is finalized and archived.
func TestHandler_MalformedTelemetry(t *testing.T) {
	tempDir := t.TempDir()
	h := relay1.NewHandler(tempDir)
	server := setupTestServer(h)
	defer server.Close()

	measurement := dialPeer(t, server, spec.MeasurementPath,
		model.RoleMeasurement, "sensor-test")
	defer measurement.Close()
	actuation := dialPeer(t, server, spec.ActuationPath,
		model.RoleActuation, "actuator-test")
	defer actuation.Close()

	waitFor(t, time.Second, "both peers registered", func() bool {
		s := getStatus(t, h)
		return s.Measurement.Connected && s.Actuation.Connected
	})
	if rec := startSession(t, h); rec.Code != http.StatusOK {
		t.Fatalf("session start failed: %d", rec.Code)
	}

	err := measurement.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if err != nil {
		t.Fatalf("cannot send frame: %v", err)
	}

	waitFor(t, 2*time.Second, "archive written", func() bool {
		return len(archiveFiles(t, tempDir)) == 1
	})
	status := getStatus(t, h)
	if status.Measurement.Connected {
		t.Errorf("registry slot not cleared after malformed frame")
	}
	if status.Session.Active {
		t.Errorf("session still active after malformed frame")
	}
	files := archiveFiles(t, tempDir)
	if got := readArchive(t, files[0]).StopReason; got != "peer_disconnect" {
		t.Errorf("StopReason: expected peer_disconnect, got %s", got)
	}
}

func TestHandler_MalformedHello(t *testing.T) {
	h := relay1.NewHandler(t.TempDir())
	server := setupTestServer(h)
	defer server.Close()

	u, err := url.Parse(server.URL)
	rtx.Must(err, "cannot get server URL")
	u.Scheme = "ws"
	u.Path = spec.MeasurementPath

	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", spec.SecWebSocketProtocol)
	conn, _, err := setupTestWSDialer(u).Dial(u.String(), headers)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	err = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if err != nil {
		t.Fatalf("cannot send frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the relay to close the connection")
	}
	if getStatus(t, h).Measurement.Connected {
		t.Errorf("rejected peer was registered")
	}
}

func TestHandler_WrongRoleHello(t *testing.T) {
	h := relay1.NewHandler(t.TempDir())
	server := setupTestServer(h)
	defer server.Close()

	// Connect to the measurement endpoint but identify as the actuation
	// peer: the relay must drop the connection without registering it.
	conn := dialPeer(t, server, spec.MeasurementPath, model.RoleActuation,
		"actuator-test")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the relay to close the connection")
	}
	if getStatus(t, h).Measurement.Connected {
		t.Errorf("rejected peer was registered")
	}
}

func TestHandler_PeerReplacement(t *testing.T) {
	h := relay1.NewHandler(t.TempDir())
	server := setupTestServer(h)
	defer server.Close()

	first := dialPeer(t, server, spec.MeasurementPath,
		model.RoleMeasurement, "sensor-old")
	defer first.Close()
	waitFor(t, time.Second, "first peer registered", func() bool {
		return getStatus(t, h).Measurement.Connected
	})

	second := dialPeer(t, server, spec.MeasurementPath,
		model.RoleMeasurement, "sensor-new")
	defer second.Close()

	// The replacement takes over the slot and the old connection is closed
	// without clearing it.
	waitFor(t, time.Second, "replacement registered", func() bool {
		s := getStatus(t, h)
		return s.Measurement.Connected && s.Measurement.AgentID == "sensor-new"
	})
	first.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatalf("expected the replaced connection to be closed")
	}
	if got := getStatus(t, h).Measurement.AgentID; got != "sensor-new" {
		t.Errorf("AgentID: expected sensor-new, got %s", got)
	}
}
