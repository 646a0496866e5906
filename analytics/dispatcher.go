package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/teranos/trellis/logger"
)

// DefaultQueueSize is used when NewDispatcher is given a non-positive size.
const DefaultQueueSize = 1024

// sinkWriteTimeout bounds a single Sink.Write.
const sinkWriteTimeout = 5 * time.Second

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trellis",
	Subsystem: "analytics",
	Name:      "events_total",
	Help:      "Progress events by outcome.",
}, []string{"result"})

// Dispatcher is an asynchronous Tracker. Events are queued on a bounded
// channel and written to the sink by a single goroutine; when the queue is
// full the event is dropped.
type Dispatcher struct {
	sink   Sink
	queue  chan ProgressEvent
	logger *zap.SugaredLogger

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewDispatcher starts a dispatcher writing to sink.
func NewDispatcher(sink Sink, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		sink:   sink,
		queue:  make(chan ProgressEvent, queueSize),
		logger: logger.ComponentLogger("analytics"),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// TrackProgressUpdate enqueues event without blocking.
func (d *Dispatcher) TrackProgressUpdate(_ context.Context, event ProgressEvent) {
	select {
	case <-d.closed:
		d.drop()
		return
	default:
	}
	select {
	case d.queue <- event:
	default:
		d.drop()
	}
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	eventsTotal.WithLabelValues("dropped").Inc()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.write(event)
		case <-d.closed:
			// drain what was queued before Close
			for {
				select {
				case event := <-d.queue:
					d.write(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(event ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()
	if err := d.sink.Write(ctx, event); err != nil {
		d.failed.Add(1)
		eventsTotal.WithLabelValues("failed").Inc()
		d.logger.Debugw("Progress event not recorded",
			logger.FieldNodeID, event.NodeID,
			logger.FieldGraphID, event.GraphID,
			logger.FieldError, err,
		)
		return
	}
	d.sent.Add(1)
	eventsTotal.WithLabelValues("sent").Inc()
}

// Close stops accepting events, flushes the queue and closes the sink. It
// returns ctx.Err() if the flush does not finish in time.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { close(d.closed) })
	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return d.sink.Close()
}

// Stats returns counts of events sent, dropped and failed.
func (d *Dispatcher) Stats() (sent, dropped, failed int64) {
	return d.sent.Load(), d.dropped.Load(), d.failed.Load()
}
