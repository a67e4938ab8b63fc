package agent

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/m-lab/go/memoryless"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/spec"
)

// Measurement is the telemetry-producing agent. It samples its
// VoltageReader on a fixed cadence and sends one telemetry packet per
// sample, stamped with its own wall clock.
type Measurement struct {
	cfg      Config
	reader   VoltageReader
	position PositionProvider

	lastFix atomic.Pointer[model.Position]
}

// NewMeasurement returns a Measurement agent.
func NewMeasurement(cfg Config, reader VoltageReader, position PositionProvider) *Measurement {
	return &Measurement{
		cfg:      cfg,
		reader:   reader,
		position: position,
	}
}

// Run connects to the relay and streams telemetry until ctx is canceled.
// With Reconnect set, connection failures trigger a redial after
// spec.ReconnectInterval.
func (m *Measurement) Run(ctx context.Context) error {
	go m.pollPosition(ctx)

	for {
		err := m.runConn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.cfg.Reconnect {
			return err
		}
		log.Warn("connection to relay lost, reconnecting",
			"error", err, "in", spec.ReconnectInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(spec.ReconnectInterval):
		}
	}
}

// pollPosition refreshes the last-known fix on a randomized cadence,
// independently of the telemetry cadence.
func (m *Measurement) pollPosition(ctx context.Context) {
	memoryless.Run(ctx, func() {
		m.lastFix.Store(m.position.Current())
	}, memoryless.Config{
		Min:      spec.MinPositionInterval,
		Expected: spec.AvgPositionInterval,
		Max:      spec.MaxPositionInterval,
	})
}

func (m *Measurement) runConn(ctx context.Context) error {
	conn, err := dial(ctx, m.cfg, spec.MeasurementPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(model.Hello{
		AgentID: m.cfg.AgentID,
		Role:    model.RoleMeasurement,
	}); err != nil {
		return err
	}
	log.Info("connected to relay", "server", m.cfg.Server,
		"agent", m.cfg.AgentID)

	ticker := time.NewTicker(m.cfg.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			voltage, status := m.reader.Read()
			pkt := model.TelemetryPacket{
				Voltage:  voltage,
				Status:   status,
				Position: m.lastFix.Load(),
				SendTime: unixNow(),
			}
			if err := conn.WriteJSON(pkt); err != nil {
				return err
			}
			log.Debug("telemetry sent", "voltage", voltage, "status", status)
		}
	}
}

// dial opens the WebSocket connection for one agent role.
func dial(ctx context.Context, cfg Config, path string) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: spec.HandshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.NoVerify,
		},
	}
	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", spec.SecWebSocketProtocol)
	conn, _, err := dialer.DialContext(ctx, cfg.endpoint(path), headers)
	return conn, err
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
