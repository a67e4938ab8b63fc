package main

import (
	"context"
	"flag"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/rtx"

	"github.com/Rachana904/v2vcommunication/pkg/agent"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
)

var (
	flagServer   = flag.String("server", "localhost:65431", "Relay host:port for the actuation endpoint")
	flagScheme   = flag.String("scheme", "ws", "WebSocket scheme (ws or wss)")
	flagAgentID  = flag.String("agent-id", "actuator-pi", "Agent identifier sent in the hello message")
	flagNoVerify = flag.Bool("no-verify", false, "Skip TLS certificate verification")
	flagLat      = flag.Float64("lat", 0, "Fixed position latitude")
	flagLon      = flag.Float64("lon", 0, "Fixed position longitude")
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

	a := agent.NewActuation(agent.Config{
		Server:    *flagServer,
		Scheme:    *flagScheme,
		AgentID:   *flagAgentID,
		NoVerify:  *flagNoVerify,
		Reconnect: true,
	}, agent.NewSimulatedActuator(), position)

	rtx.Must(a.Run(context.Background()), "actuation agent terminated")
}
