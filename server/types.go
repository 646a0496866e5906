package server

import (
	"time"
)

const (
	// ShutdownTimeout is how long Stop waits for rooms to flush
	ShutdownTimeout = 30 * time.Second

	// roomInboxSize bounds queued commands per graph
	roomInboxSize = 256

	// loadTimeout bounds a single storage read when a room opens
	loadTimeout = 10 * time.Second
)

// ServerState represents the server lifecycle state
type ServerState int32

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
