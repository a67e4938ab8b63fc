// Package netx extends net.TCPListener and net.Conn with connection
// bookkeeping: accept time, read/written byte counters and a unique
// connection identifier.
package netx

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	guuid "github.com/google/uuid"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/uuid"
)

type contextKey string

// uuidKey is the context key under which SaveUUID stores the connection
// UUID.
const uuidKey = contextKey("netx-conn-uuid")

// ConnInfo provides operations on a connection's bookkeeping data.
type ConnInfo interface {
	ByteCounters() (uint64, uint64)
	AcceptTime() time.Time
	UUID() (string, error)
	SaveUUID(context.Context) context.Context
}

// ToConnInfo is a helper function to convert a net.Conn into a netx.ConnInfo.
// It panics if netConn does not contain a type supporting ConnInfo.
func ToConnInfo(netConn net.Conn) ConnInfo {
	switch t := netConn.(type) {
	case *Conn:
		return t
	case *tls.Conn:
		return t.NetConn().(*Conn)
	default:
		panic(fmt.Sprintf("unsupported connection type: %T", t))
	}
}

// Conn is an extended net.Conn that stores its accept time and counters for
// read/written bytes.
type Conn struct {
	net.Conn

	tcpConn      *net.TCPConn
	acceptTime   time.Time
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// FromTCPConn wraps a *net.TCPConn into a netx.Conn, recording the current
// time as the accept time.
func FromTCPConn(tcpConn *net.TCPConn) *Conn {
	return &Conn{
		Conn:       tcpConn,
		tcpConn:    tcpConn,
		acceptTime: time.Now(),
	}
}

// Read reads from the underlying net.Conn and updates the read bytes counter.
func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.bytesRead.Add(uint64(n))
	return n, err
}

// Write writes to the underlying net.Conn and updates the written bytes
// counter.
func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.bytesWritten.Add(uint64(n))
	return n, err
}

// ByteCounters returns the read and written byte counters, in this order.
func (c *Conn) ByteCounters() (uint64, uint64) {
	return c.bytesRead.Load(), c.bytesWritten.Load()
}

// AcceptTime returns this connection's accept time.
func (c *Conn) AcceptTime() time.Time {
	return c.acceptTime
}

// UUID returns an M-Lab UUID. On platforms not supporting SO_COOKIE, it
// returns a google/uuid as a fallback. If the fallback fails, it panics.
func (c *Conn) UUID() (string, error) {
	id, err := uuid.FromTCPConn(c.tcpConn)
	if err != nil {
		// fallback: use google/uuid if the platform does not support
		// SO_COOKIE.
		gid, err := guuid.NewUUID()
		// NOTE: this could only fail when guuid.GetTime() fails.
		rtx.Must(err, "unable to fall back to uuid")
		id = gid.String()
	}
	return id, nil
}

// SaveUUID stores this connection's UUID into ctx. Intended for use from
// http.Server.ConnContext.
func (c *Conn) SaveUUID(ctx context.Context) context.Context {
	id, err := c.UUID()
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, uuidKey, id)
}

// UUIDFromContext returns the connection UUID saved by SaveUUID, or the
// empty string.
func UUIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(uuidKey).(string); ok {
		return id
	}
	return ""
}
