package server

import (
	"encoding/json"
	"time"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/ops"
)

// Client to server message types
const (
	MsgSubscribe = "SUBSCRIBE"
	MsgOperation = "OPERATION"
	MsgSync      = "SYNC"
	MsgPing      = "PING"
)

// Server to client message types
const (
	MsgConnectionEstablished = "CONNECTION_ESTABLISHED"
	MsgGraphState            = "GRAPH_STATE"
	MsgOperationApplied      = "OPERATION_APPLIED"
	MsgSyncResponse          = "SYNC_RESPONSE"
	MsgError                 = "ERROR"
	MsgPong                  = "PONG"
)

// InboundMessage is any message a client sends. Fields not used by Type are
// ignored.
type InboundMessage struct {
	Type    string          `json:"type"`
	GraphID string          `json:"graphId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConnectionEstablished is sent once after the upgrade.
type ConnectionEstablished struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Version   string `json:"version"`
	Protocol  int    `json:"protocol"`
}

// GraphMessage carries a full graph (GRAPH_STATE, SYNC_RESPONSE).
type GraphMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// OperationApplied is broadcast to every subscriber after an operation.
type OperationApplied struct {
	Type      string        `json:"type"`
	Payload   ops.Operation `json:"payload"`
	UserID    string        `json:"userId"`
	SessionID string        `json:"sessionId"`
	Timestamp int64         `json:"timestamp"`
}

// ErrorMessage reports a rejected message to its sender only.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type pongMessage struct {
	Type string `json:"type"`
}

func newErrorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: MsgError, Message: err.Error(), Code: errors.Code(err)}
}

func newOperationApplied(op ops.Operation, userID, sessionID string, at time.Time) OperationApplied {
	return OperationApplied{
		Type:      MsgOperationApplied,
		Payload:   op,
		UserID:    userID,
		SessionID: sessionID,
		Timestamp: at.UnixMilli(),
	}
}
