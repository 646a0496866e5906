package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/ops"
)

// Client is one WebSocket session.
type Client struct {
	id        string
	server    *Server
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter

	// owned by readPump
	room    *room
	userID  string
	graphID string
}

func newClient(s *Server, conn *websocket.Conn, id string) *Client {
	limit, burst := s.opsLimit()
	return &Client{
		id:      id,
		server:  s,
		conn:    conn,
		send:    make(chan []byte, s.clientQueueSize()),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// close ends the session. Safe to call from any goroutine, any number of
// times; the write pump closes the connection.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue hands data to the write pump without blocking. A full queue drops
// the session. It reports whether the message was queued.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.server.hub.removeSlowClient(c)
		return false
	}
}

// sendJSON queues msg for this session only.
func (c *Client) sendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.server.logger.Errorw("Failed to encode message",
			logger.FieldSessionID, c.id,
			logger.FieldError, err,
		)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(err error) {
	c.server.logger.Debugw("Rejected client message",
		logger.FieldSessionID, c.id,
		logger.FieldErrorCode, errors.Code(err),
		logger.FieldError, err,
	)
	c.sendJSON(newErrorMessage(err))
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		if c.room != nil {
			c.server.hub.release(c.room, c)
			c.room = nil
		}
		c.server.hub.unregister(c)
		c.close()
	}()

	pongWait := c.server.config().PongWait()
	c.conn.SetReadLimit(c.server.config().Server.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		// any frame counts as liveness
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if logger.ShouldOutput(int(c.server.verbosity.Load()), logger.OutputDataDump) {
			c.server.logger.Debugw("Received WebSocket message",
				logger.FieldSessionID, c.id,
				logger.FieldSize, len(data),
			)
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(errors.WrapInvalidRequest(err, "failed to decode message"))
			continue
		}
		c.routeMessage(&msg)
	}
}

// handleReadError logs unexpected WebSocket read errors.
// Expected closure codes (going away, abnormal, no status) are silently ignored.
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
		websocket.CloseNormalClosure,
	) {
		c.server.logger.Warnw("WebSocket read error",
			logger.FieldSessionID, c.id,
			logger.FieldError, err,
		)
	}
}

func (c *Client) routeMessage(msg *InboundMessage) {
	switch msg.Type {
	case MsgSubscribe:
		c.handleSubscribe(msg)
	case MsgOperation:
		c.handleOperation(msg)
	case MsgSync:
		c.handleSync()
	case MsgPing:
		c.sendJSON(pongMessage{Type: MsgPong})
	default:
		c.sendError(errors.NewInvalidRequestError("unknown message type %q", msg.Type))
	}
}

func (c *Client) handleSubscribe(msg *InboundMessage) {
	if msg.GraphID == "" || msg.UserID == "" {
		c.sendError(errors.NewInvalidRequestError("SUBSCRIBE requires graphId and userId"))
		return
	}

	if c.room != nil {
		c.server.hub.release(c.room, c)
		c.room = nil
	}
	r, err := c.server.hub.acquire(msg.UserID, msg.GraphID)
	if err != nil {
		c.sendError(err)
		return
	}
	c.room, c.userID, c.graphID = r, msg.UserID, msg.GraphID

	c.server.logger.Infow("Client subscribed",
		logger.FieldSessionID, c.id,
		logger.FieldUserID, c.userID,
		logger.FieldGraphID, c.graphID,
	)
	r.send(command{kind: cmdSubscribe, client: c})
}

func (c *Client) handleOperation(msg *InboundMessage) {
	if c.room == nil {
		c.sendError(errors.Wrap(errors.ErrNotSubscribed, "OPERATION before SUBSCRIBE"))
		return
	}
	var op ops.Operation
	if len(msg.Payload) == 0 {
		c.sendError(errors.NewInvalidRequestError("OPERATION requires a payload"))
		return
	}
	if err := json.Unmarshal(msg.Payload, &op); err != nil {
		c.sendError(errors.WrapInvalidRequest(err, "failed to decode operation"))
		return
	}
	if !c.limiter.Allow() {
		operationsTotal.WithLabelValues(string(op.Type), "rate_limited").Inc()
		c.sendError(errors.Wrapf(errors.ErrRateLimited, "%s", op.Type))
		return
	}
	c.room.send(command{kind: cmdOperation, client: c, op: op})
}

func (c *Client) handleSync() {
	if c.room == nil {
		c.sendError(errors.Wrap(errors.ErrNotSubscribed, "SYNC before SUBSCRIBE"))
		return
	}
	c.room.send(command{kind: cmdSync, client: c})
}

// writePump writes queued messages and keepalive pings to the connection
func (c *Client) writePump() {
	writeWait := c.server.config().WriteWait()
	// must be less than pongWait
	pingPeriod := (c.server.config().PongWait() * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.server.logger.Debugw("Message write error",
					logger.FieldSessionID, c.id,
					logger.FieldError, err,
				)
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
