package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across trellis.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldSessionID = "session_id"
	FieldUserID    = "user_id"
	FieldGraphID   = "graph_id"
	FieldGraphKey  = "graph_key"
	FieldNodeID    = "node_id"
	FieldEdgeID    = "edge_id"
	FieldParentID  = "parent_id"

	// Components
	FieldComponent = "component"
	FieldBackend   = "backend"

	// Operations
	FieldOperation = "operation"
	FieldMessage   = "message_type"
	FieldVersion   = "version"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldAttempt    = "attempt"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts and sizes
	FieldCount    = "count"
	FieldSize     = "size_bytes"
	FieldSessions = "sessions"
	FieldNodes    = "nodes"
	FieldEdges    = "edges"

	// Network
	FieldAddress = "address"
	FieldPort    = "port"
	FieldRemote  = "remote_addr"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Hub struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewHub() *Hub {
//	    return &Hub{logger: logger.ComponentLogger("hub")}
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	roomLogger := logger.ChildLogger(baseLogger, logger.FieldGraphKey, key)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
