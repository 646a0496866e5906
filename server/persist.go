package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/storage"
)

const (
	persistBaseDelay = 100 * time.Millisecond
	persistMaxDelay  = 5 * time.Second
	persistTimeout   = 10 * time.Second
)

// snapshot is an encoded graph taken inside a room's actor.
type snapshot struct {
	version int64
	blob    []byte
}

// persister writes a room's snapshots in order on its own goroutine. Only
// the newest unwritten snapshot is kept, so a slow store coalesces writes
// but never writes an older version after a newer one.
type persister struct {
	store   storage.Store
	key     string
	retries int
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	pending *snapshot
	written int64

	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}
}

func newPersister(store storage.Store, key string, retries int, log *zap.SugaredLogger) *persister {
	if retries < 0 {
		retries = 0
	}
	p := &persister{
		store:   store,
		key:     key,
		retries: retries,
		logger:  log,
		signal:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// submit queues snap, replacing any older pending snapshot. It never blocks.
func (p *persister) submit(snap snapshot) {
	p.mu.Lock()
	if p.pending == nil || snap.version > p.pending.version {
		p.pending = &snap
	}
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// close flushes the pending snapshot and stops the writer. The returned
// channel is closed once the final write attempt has finished.
func (p *persister) close() <-chan struct{} {
	select {
	case <-p.quit:
	default:
		close(p.quit)
	}
	return p.done
}

func (p *persister) take() *snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.pending
	p.pending = nil
	return snap
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.signal:
			if snap := p.take(); snap != nil {
				p.write(snap)
			}
		case <-p.quit:
			if snap := p.take(); snap != nil {
				p.write(snap)
			}
			return
		}
	}
}

// write stores snap, retrying with exponential backoff. A failed write is
// logged and dropped; the next snapshot carries the full graph anyway.
func (p *persister) write(snap *snapshot) {
	delay := persistBaseDelay
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := p.store.Set(ctx, p.key, snap.blob)
		cancel()
		if err == nil {
			p.mu.Lock()
			p.written = snap.version
			p.mu.Unlock()
			persistTotal.WithLabelValues("ok").Inc()
			p.logger.Debugw("Graph persisted",
				logger.FieldGraphKey, p.key,
				logger.FieldVersion, snap.version,
				logger.FieldSize, len(snap.blob),
			)
			return
		}

		if attempt >= p.retries {
			persistTotal.WithLabelValues("failed").Inc()
			p.logger.Errorw("Failed to persist graph, giving up on this version",
				logger.FieldGraphKey, p.key,
				logger.FieldVersion, snap.version,
				logger.FieldAttempt, attempt+1,
				logger.FieldError, err,
			)
			return
		}
		persistTotal.WithLabelValues("retry").Inc()
		p.logger.Warnw("Failed to persist graph, retrying",
			logger.FieldGraphKey, p.key,
			logger.FieldAttempt, attempt+1,
			logger.FieldError, err,
		)

		// a newer snapshot supersedes this one; retry with that instead
		if newer := p.take(); newer != nil {
			snap = newer
		}
		select {
		case <-time.After(delay):
		case <-p.quit:
			// keep retrying during the final flush, without waiting
		}
		if delay *= 2; delay > persistMaxDelay {
			delay = persistMaxDelay
		}
	}
}

// lastWritten returns the newest version known to be stored.
func (p *persister) lastWritten() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}
