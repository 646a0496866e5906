// Package server is the WebSocket sync server. Each subscribed graph lives
// in a room whose goroutine is the only writer of that graph; sessions talk
// to rooms through the Hub.
package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/analytics"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/ops"
	"github.com/teranos/trellis/progress"
	"github.com/teranos/trellis/storage"
)

// Server serves the sync protocol and its HTTP diagnostics.
type Server struct {
	hub      *Hub
	store    storage.Store
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu  sync.RWMutex
	cfg *am.Config

	state      atomic.Int32
	verbosity  atomic.Int32
	httpServer *http.Server

	// now is the clock used for timestamps and reset checks
	now func() time.Time
}

// New creates a server over store. tracker receives progress events and may
// be nil.
func New(cfg *am.Config, store storage.Store, tracker analytics.Tracker) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server requires a configuration")
	}
	if store == nil {
		return nil, errors.New("server requires a storage backend")
	}

	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: logger.ComponentLogger("server"),
		now:    time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
	s.hub = newHub(cfg.Server.MaxClients, roomDeps{
		store:     store,
		router:    ops.NewRouter(tracker),
		policy:    progress.NewResetPolicy(cfg.Location()),
		retries:   cfg.Storage.PersistRetries,
		now:       func() time.Time { return s.now() },
		verbosity: &s.verbosity,
		logger:    logger.ComponentLogger("room"),
	})
	s.state.Store(int32(ServerStateRunning))
	return s, nil
}

func (s *Server) config() *am.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// opsLimit returns the per-session operation rate. Zero means unlimited.
func (s *Server) opsLimit() (rate.Limit, int) {
	cfg := s.config().Server
	if cfg.OpsPerSecond <= 0 {
		return rate.Inf, 0
	}
	burst := cfg.OpsBurst
	if burst < 1 {
		burst = 1
	}
	return rate.Limit(cfg.OpsPerSecond), burst
}

func (s *Server) clientQueueSize() int {
	if n := s.config().Server.ClientQueueSize; n > 0 {
		return n
	}
	return 256
}

// ApplyConfig swaps in a reloaded configuration. Allowed origins, the
// session limit and the operation rate take effect immediately; ports,
// timeouts and backends need a restart.
func (s *Server) ApplyConfig(cfg *am.Config) error {
	if cfg == nil {
		return errors.New("nil configuration")
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.hub.setMaxClients(cfg.Server.MaxClients)
	limit, burst := s.opsLimit()
	s.hub.each(func(c *Client) {
		c.limiter.SetLimit(limit)
		c.limiter.SetBurst(burst)
	})

	s.logger.Infow("Configuration applied",
		"allowed_origins", cfg.GetServerAllowedOrigins(),
		"max_clients", cfg.Server.MaxClients,
		"ops_per_second", cfg.Server.OpsPerSecond,
	)
	return nil
}

// SetVerbosity sets the -v level that gates per-message debug output
func (s *Server) SetVerbosity(v int) {
	s.verbosity.Store(int32(v))
}

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", newState.String())
}
