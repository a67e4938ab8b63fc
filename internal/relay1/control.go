package relay1

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/Rachana904/v2vcommunication/internal/registry"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
)

// Status is the JSON snapshot returned by the status endpoint. It is the
// read-only view consumed by dashboard, map and video observers.
type Status struct {
	// Measurement is the measurement peer slot's state.
	Measurement registry.PeerStatus
	// Actuation is the actuation peer slot's state.
	Actuation registry.PeerStatus
	// Session is the session log's running state.
	Session model.Summary
	// Positions holds the last-known unexpired fix per role.
	Positions map[model.Role]model.Position
}

// SessionStart arms a new session. Both peers must be connected; otherwise
// it responds 409. Starting over an active session discards its records, as
// a (re)start always begins from an empty log.
func (h *Handler) SessionStart(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	measurement := h.registry.Current(model.RoleMeasurement)
	actuation := h.registry.Current(model.RoleActuation)
	if measurement == nil || actuation == nil {
		log.Info("session start refused: peer missing",
			"measurement", measurement != nil, "actuation", actuation != nil)
		writeJSON(rw, http.StatusConflict, map[string]string{
			"Error": "both peers must be connected to start a session",
		})
		return
	}

	id := h.sessionLog.Start(measurement.AgentID, actuation.AgentID,
		actuation.RemoteAddr)
	writeJSON(rw, http.StatusOK, map[string]string{"ID": id})
}

// SessionStop finalizes the active session and writes its archive. Stopping
// an inactive session is a no-op.
func (h *Handler) SessionStop(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	active := h.sessionLog.Active()
	h.finalizeSession("command")
	writeJSON(rw, http.StatusOK, map[string]bool{"Stopped": active})
}

// Status responds with the current relay state.
func (h *Handler) Status(rw http.ResponseWriter, req *http.Request) {
	status := Status{
		Measurement: h.registry.Status(model.RoleMeasurement),
		Actuation:   h.registry.Status(model.RoleActuation),
		Session:     h.sessionLog.Summary(),
		Positions:   h.tracker.Snapshot(),
	}
	writeJSON(rw, http.StatusOK, status)
}

func writeJSON(rw http.ResponseWriter, code int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Error("failed to write response", "error", err)
	}
}
