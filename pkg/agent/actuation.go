package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/memoryless"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/spec"
)

// Actuation is the command-consuming agent. For every command it records
// its receipt time (t2), applies the voltage, and acknowledges with its
// reply-send time (t3) so the relay can estimate the clock offset.
type Actuation struct {
	cfg      Config
	actuator Actuator
	position PositionProvider

	lastFix atomic.Pointer[model.Position]
}

// NewActuation returns an Actuation agent.
func NewActuation(cfg Config, actuator Actuator, position PositionProvider) *Actuation {
	return &Actuation{
		cfg:      cfg,
		actuator: actuator,
		position: position,
	}
}

// Run connects to the relay and serves commands until ctx is canceled.
// Whenever the connection is lost the actuator is driven to its safe state.
func (a *Actuation) Run(ctx context.Context) error {
	go a.pollPosition(ctx)

	for {
		err := a.runConn(ctx)
		// The link is gone: fail safe until commands flow again.
		a.actuator.Apply(0, model.StatusJunk)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !a.cfg.Reconnect {
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

func (a *Actuation) pollPosition(ctx context.Context) {
	memoryless.Run(ctx, func() {
		a.lastFix.Store(a.position.Current())
	}, memoryless.Config{
		Min:      spec.MinPositionInterval,
		Expected: spec.AvgPositionInterval,
		Max:      spec.MaxPositionInterval,
	})
}

func (a *Actuation) runConn(ctx context.Context) error {
	conn, err := dial(ctx, a.cfg, spec.ActuationPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(model.Hello{
		AgentID: a.cfg.AgentID,
		Role:    model.RoleActuation,
	}); err != nil {
		return err
	}
	log.Info("connected to relay", "server", a.cfg.Server,
		"agent", a.cfg.AgentID)

	for {
		var cmd model.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return err
		}
		// t2 is recorded as soon as possible after the read, to keep the
		// receipt timestamp honest.
		t2 := unixNow()
		applied := a.actuator.Apply(cmd.Voltage, cmd.Status)
		t3 := unixNow()

		ack := model.Acknowledgement{
			Seq:            cmd.Seq,
			ReceiptTime:    t2,
			ReplySendTime:  t3,
			AppliedVoltage: applied,
			Position:       a.lastFix.Load(),
		}
		if err := conn.WriteJSON(ack); err != nil {
			return err
		}
		log.Debug("command acknowledged", "seq", cmd.Seq,
			"applied", applied, "status", cmd.Status)
	}
}
