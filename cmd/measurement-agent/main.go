package main

import (
	"context"
	"flag"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/rtx"

	"github.com/Rachana904/v2vcommunication/pkg/agent"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/spec"
)

var (
	flagServer   = flag.String("server", "localhost:65430", "Relay host:port for the measurement endpoint")
	flagScheme   = flag.String("scheme", "ws", "WebSocket scheme (ws or wss)")
	flagAgentID  = flag.String("agent-id", "sensor-pi", "Agent identifier sent in the hello message")
	flagInterval = flag.Duration("interval", spec.TelemetryInterval, "Telemetry send interval")
	flagNoVerify = flag.Bool("no-verify", false, "Skip TLS certificate verification")
	flagLat      = flag.Float64("lat", 0, "Fixed position latitude")
	flagLon      = flag.Float64("lon", 0, "Fixed position longitude")
	flagSeed     = flag.Int64("seed", time.Now().UnixNano(), "Seed for the simulated voltage reader")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log.SetReportTimestamp(true)
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}

	var position agent.PositionProvider = agent.NoPosition{}
	if *flagLat != 0 || *flagLon != 0 {
		position = agent.FixedPosition{
			Pos: model.Position{Lat: *flagLat, Lon: *flagLon},
		}
	}

	m := agent.NewMeasurement(agent.Config{
		Server:    *flagServer,
		Scheme:    *flagScheme,
		AgentID:   *flagAgentID,
		Interval:  *flagInterval,
		NoVerify:  *flagNoVerify,
		Reconnect: true,
	}, agent.NewSimulatedReader(*flagSeed), position)

	rtx.Must(m.Run(context.Background()), "measurement agent terminated")
}
