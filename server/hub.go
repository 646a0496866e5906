package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/ops"
	"github.com/teranos/trellis/progress"
	"github.com/teranos/trellis/storage"
)

// roomDeps are the collaborators every room shares.
type roomDeps struct {
	store     storage.Store
	router    *ops.Router
	policy    progress.ResetPolicy
	retries   int
	now       func() time.Time
	verbosity *atomic.Int32
	logger    *zap.SugaredLogger
}

// Hub tracks connected sessions and the live room of every subscribed graph.
// Rooms are created on first subscribe and evicted when their last member
// leaves; a room re-created for the same key waits for the evicted room to
// finish flushing before it loads.
type Hub struct {
	deps roomDeps

	mu         sync.Mutex
	sessions   map[string]*Client
	rooms      map[string]*room
	evicted    map[string]<-chan struct{}
	maxClients int
	closed     bool

	logger *zap.SugaredLogger
}

func newHub(maxClients int, deps roomDeps) *Hub {
	return &Hub{
		deps:       deps,
		sessions:   make(map[string]*Client),
		rooms:      make(map[string]*room),
		evicted:    make(map[string]<-chan struct{}),
		maxClients: maxClients,
		logger:     logger.ComponentLogger("hub"),
	}
}

// register adds a session. It reports false when the hub is full or shut
// down.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	// Defensive: Check client limit
	if h.maxClients > 0 && len(h.sessions) >= h.maxClients {
		limit := h.maxClients
		h.mu.Unlock()
		h.logger.Warnw("Max clients reached, rejecting connection",
			logger.FieldSessionID, c.id,
			"max_clients", limit,
		)
		return false
	}
	h.sessions[c.id] = c
	total := len(h.sessions)
	h.mu.Unlock()

	sessionsGauge.Set(float64(total))
	h.logger.Infow("Client connected",
		logger.FieldSessionID, c.id,
		logger.FieldSessions, total,
	)
	return true
}

// unregister removes a session. Leaving its room is the caller's job.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.sessions[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, c.id)
	total := len(h.sessions)
	h.mu.Unlock()

	sessionsGauge.Set(float64(total))
	h.logger.Infow("Client disconnected",
		logger.FieldSessionID, c.id,
		logger.FieldSessions, total,
	)
}

// removeSlowClient drops a session that cannot keep up with broadcasts.
// Called from room actors; the read pump finishes the cleanup.
func (h *Hub) removeSlowClient(c *Client) {
	broadcastDrops.Inc()
	h.logger.Warnw("Client send channel full, removing client",
		logger.FieldSessionID, c.id,
		"queue_size", cap(c.send),
	)
	c.close()
}

// acquire returns the live room for a user's graph, creating it if needed,
// and takes a reference on it.
func (h *Hub) acquire(userID, graphID string) (*room, error) {
	key := storage.Key(userID, graphID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.WrapUnavailable(errors.New("server is shutting down"), "subscribe")
	}
	if r, ok := h.rooms[key]; ok {
		r.refs++
		return r, nil
	}

	prev := h.evicted[key]
	delete(h.evicted, key)
	r := newRoom(key, userID, graphID, prev, &h.deps)
	r.refs = 1
	h.rooms[key] = r
	roomsGauge.Set(float64(len(h.rooms)))
	go func() {
		r.run()
		h.forget(key, r.done)
	}()

	h.logger.Debugw("Room opened", logger.FieldGraphKey, key)
	return r, nil
}

// release drops a reference taken by acquire. When c is non-nil it also
// leaves the room's member set. The last release evicts the room.
func (h *Hub) release(r *room, c *Client) {
	if c != nil {
		r.send(command{kind: cmdLeave, client: c})
	}

	h.mu.Lock()
	if h.rooms[r.key] != r {
		h.mu.Unlock()
		return
	}
	r.refs--
	if r.refs > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, r.key)
	h.evicted[r.key] = r.done
	roomsGauge.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	r.send(command{kind: cmdStop})
	h.logger.Debugw("Room evicted", logger.FieldGraphKey, r.key)
}

// forget drops the eviction marker once the room has flushed.
func (h *Hub) forget(key string, done <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.evicted[key] == done {
		delete(h.evicted, key)
	}
}

// inspect returns the encoded graph of a live room. ok is false when no
// room is open for the key.
func (h *Hub) inspect(ctx context.Context, userID, graphID string) (blob []byte, ok bool, err error) {
	key := storage.Key(userID, graphID)

	h.mu.Lock()
	r, live := h.rooms[key]
	if live {
		r.refs++
	}
	h.mu.Unlock()
	if !live {
		return nil, false, nil
	}
	defer h.release(r, nil)

	reply := make(chan inspectResult, 1)
	if !r.send(command{kind: cmdInspect, reply: reply}) {
		return nil, false, nil
	}
	select {
	case res := <-reply:
		return res.blob, true, res.err
	case <-r.done:
		return nil, false, nil
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}
}

// each calls fn for every connected session.
func (h *Hub) each(fn func(c *Client)) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.sessions))
	for _, c := range h.sessions {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		fn(c)
	}
}

func (h *Hub) setMaxClients(n int) {
	h.mu.Lock()
	h.maxClients = n
	h.mu.Unlock()
}

// counts returns the number of connected sessions and live rooms.
func (h *Hub) counts() (sessions, rooms int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions), len(h.rooms)
}

// shutdown closes every session and flushes every room, evicted ones
// included, in parallel.
func (h *Hub) shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.sessions))
	for _, c := range h.sessions {
		clients = append(clients, c)
	}
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	pending := make(map[string]<-chan struct{}, len(h.evicted))
	for key, done := range h.evicted {
		pending[key] = done
	}
	h.rooms = make(map[string]*room)
	h.mu.Unlock()
	roomsGauge.Set(0)

	for _, c := range clients {
		c.close()
	}

	h.logger.Infow("Flushing rooms",
		logger.FieldCount, len(rooms)+len(pending),
		logger.FieldSessions, len(clients),
	)

	g, ctx := errgroup.WithContext(ctx)
	wait := func(key string, done <-chan struct{}) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "room %s did not flush", key)
		}
	}
	for _, r := range rooms {
		g.Go(func() error {
			r.send(command{kind: cmdStop})
			return wait(r.key, r.done)
		})
	}
	for key, done := range pending {
		g.Go(func() error {
			return wait(key, done)
		})
	}
	return g.Wait()
}
