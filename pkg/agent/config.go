package agent

import (
	"net/url"
	"time"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/spec"
)

// Config is the configuration shared by both agents.
type Config struct {
	// Server is the relay's host:port pair for this agent's role.
	Server string

	// Scheme is the WebSocket scheme used to connect to the relay (ws or
	// wss).
	Scheme string

	// AgentID identifies this agent in the hello handshake.
	AgentID string

	// Interval is the telemetry send cadence (measurement agent only). The
	// zero value means spec.TelemetryInterval.
	Interval time.Duration

	// NoVerify disables the TLS certificate verification.
	NoVerify bool

	// Reconnect makes Run redial after a connection failure instead of
	// returning the error.
	Reconnect bool
}

func (c Config) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return spec.TelemetryInterval
}

func (c Config) endpoint(path string) string {
	u := url.URL{
		Scheme: c.Scheme,
		Host:   c.Server,
		Path:   path,
	}
	return u.String()
}
