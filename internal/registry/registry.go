// Package registry tracks the single live peer connection per role.
package registry

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
)

var peerConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "relay_peer_connected",
	Help: "Whether a peer is currently registered for the role (0 or 1).",
}, []string{"role"})

// Conn is the subset of a peer connection used through the registry:
// sending one JSON message and shutting down a replaced handle.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Peer is one live peer connection.
type Peer struct {
	// Role is the slot this connection occupies.
	Role model.Role
	// AgentID is the identifier the peer sent in its hello message.
	AgentID string
	// UUID is the underlying connection's unique identifier.
	UUID string
	// RemoteAddr is the peer's ip:port pair.
	RemoteAddr string
	// ConnectedAt is when the connection was registered.
	ConnectedAt time.Time

	// Conn is the connection handle. The registry closes it when the peer
	// is replaced. Senders must go through WriteJSON.
	Conn Conn

	// writeMu serializes writes to Conn: the websocket connection supports
	// a single concurrent writer, and a replaced reader's in-flight cycle
	// can still be sending while its replacement relays its own packet.
	writeMu sync.Mutex
}

// WriteJSON sends v on the peer's connection, one sender at a time.
func (p *Peer) WriteJSON(v interface{}) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.Conn.WriteJSON(v)
}

// PeerStatus is a read-only snapshot of one role's slot for status
// consumers.
type PeerStatus struct {
	Connected   bool
	AgentID     string    `json:",omitempty"`
	UUID        string    `json:",omitempty"`
	RemoteAddr  string    `json:",omitempty"`
	ConnectedAt time.Time `json:",omitempty"`
}

// Registry holds at most one live peer per role. Register and Clear are
// called by the accept/reader goroutines; Current and Status may be called
// from any goroutine.
type Registry struct {
	mu    sync.RWMutex
	peers map[model.Role]*Peer

	// onChange, if set, is invoked after every registry mutation with the
	// affected role. It is called without the registry lock held.
	onChange func(model.Role)
}

// New returns an empty Registry. onChange may be nil.
func New(onChange func(model.Role)) *Registry {
	return &Registry{
		peers:    make(map[model.Role]*Peer),
		onChange: onChange,
	}
}

// Register installs peer as the live connection for its role, replacing any
// prior one. The replaced connection is closed so its reader fails fast
// instead of leaking a socket.
func (r *Registry) Register(peer *Peer) {
	r.mu.Lock()
	old := r.peers[peer.Role]
	r.peers[peer.Role] = peer
	r.mu.Unlock()

	if old != nil {
		log.Info("replacing peer connection",
			"role", peer.Role, "old", old.RemoteAddr, "new", peer.RemoteAddr)
		old.Conn.Close()
	}
	peerConnected.WithLabelValues(string(peer.Role)).Set(1)
	r.notify(peer.Role)
}

// Current returns the live peer for role, or nil if the slot is empty.
func (r *Registry) Current(role model.Role) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers[role]
}

// Clear removes peer from its role's slot. It is a no-op if the slot holds a
// different connection: a stale reader exiting after its peer was replaced
// must not unregister the replacement. It reports whether the slot was
// cleared.
func (r *Registry) Clear(peer *Peer) bool {
	r.mu.Lock()
	if r.peers[peer.Role] != peer {
		r.mu.Unlock()
		return false
	}
	delete(r.peers, peer.Role)
	r.mu.Unlock()

	peerConnected.WithLabelValues(string(peer.Role)).Set(0)
	r.notify(peer.Role)
	return true
}

// Status returns a snapshot of role's slot.
func (r *Registry) Status(role model.Role) PeerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.peers[role]
	if p == nil {
		return PeerStatus{}
	}
	return PeerStatus{
		Connected:   true,
		AgentID:     p.AgentID,
		UUID:        p.UUID,
		RemoteAddr:  p.RemoteAddr,
		ConnectedAt: p.ConnectedAt,
	}
}

func (r *Registry) notify(role model.Role) {
	if r.onChange != nil {
		r.onChange(role)
	}
}
