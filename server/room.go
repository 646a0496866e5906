package server

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/ops"
	"github.com/teranos/trellis/progress"
	"github.com/teranos/trellis/storage"
)

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdOperation
	cmdSync
	cmdLeave
	cmdInspect
	cmdStop
)

type command struct {
	kind   commandKind
	client *Client
	op     ops.Operation
	reply  chan inspectResult
}

type inspectResult struct {
	blob []byte
	err  error
}

// room owns one graph. Every read and write of the graph, its index and
// the member set happens on the room's goroutine, in inbox order.
type room struct {
	key     string
	userID  string
	graphID string

	inbox chan command
	done  chan struct{}
	prev  <-chan struct{}
	refs  int // guarded by Hub.mu

	deps      *roomDeps
	graph     *graph.Graph
	index     *graph.Index
	members   map[*Client]struct{}
	persister *persister
	logger    *zap.SugaredLogger
}

func newRoom(key, userID, graphID string, prev <-chan struct{}, deps *roomDeps) *room {
	log := logger.ChildLogger(deps.logger, logger.FieldGraphKey, key)
	return &room{
		key:       key,
		userID:    userID,
		graphID:   graphID,
		inbox:     make(chan command, roomInboxSize),
		done:      make(chan struct{}),
		prev:      prev,
		deps:      deps,
		members:   make(map[*Client]struct{}),
		persister: newPersister(deps.store, key, deps.retries, log),
		logger:    log,
	}
}

// send queues cmd. It reports false when the room has already stopped.
func (r *room) send(cmd command) bool {
	select {
	case r.inbox <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *room) run() {
	defer close(r.done)
	if r.prev != nil {
		<-r.prev
	}

	for cmd := range r.inbox {
		switch cmd.kind {
		case cmdSubscribe:
			r.handleSubscribe(cmd.client)
		case cmdOperation:
			r.handleOperation(cmd.client, cmd.op)
		case cmdSync:
			r.handleSync(cmd.client)
		case cmdLeave:
			delete(r.members, cmd.client)
		case cmdInspect:
			cmd.reply <- r.handleInspect()
		case cmdStop:
			<-r.persister.close()
			r.logger.Debugw("Room stopped", logger.FieldVersion, r.persister.lastWritten())
			return
		}
	}
}

// load reads the graph from storage on first use. A failed load is retried
// by the next command.
func (r *room) load() error {
	if r.graph != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	start := time.Now()
	g, err := storage.LoadGraph(ctx, r.deps.store, r.key)
	if err != nil {
		r.logger.Errorw("Failed to load graph", logger.FieldError, err)
		return err
	}
	r.graph = g
	r.index = graph.BuildIndex(g)
	progress.RecalculateAll(g, r.index)

	r.logger.Infow("Graph loaded",
		logger.FieldNodes, r.index.Len(),
		logger.FieldEdges, len(g.Edges),
		logger.FieldVersion, g.Version,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

func (r *room) handleSubscribe(c *Client) {
	if err := r.load(); err != nil {
		r.reply(c, newErrorMessage(err))
		return
	}

	if r.deps.policy.ApplyIfDue(r.graph, r.deps.now()) {
		r.graph.Version++
		r.persist()
		resetsTotal.Inc()
		r.logger.Infow("Progress reset applied",
			logger.FieldVersion, r.graph.Version,
			"frequency", r.graph.Settings.ProgressReset.Frequency,
		)
		// existing members hold pre-reset progress
		r.broadcast(r.graphMessage(MsgSyncResponse))
	}
	r.members[c] = struct{}{}
	r.reply(c, r.graphMessage(MsgGraphState))
}

func (r *room) handleOperation(c *Client, op ops.Operation) {
	if !r.isMember(c) {
		operationsTotal.WithLabelValues(string(op.Type), "rejected").Inc()
		r.reply(c, newErrorMessage(errors.ErrNotSubscribed))
		return
	}
	if err := r.load(); err != nil {
		operationsTotal.WithLabelValues(string(op.Type), "unavailable").Inc()
		r.reply(c, newErrorMessage(err))
		return
	}

	target := &ops.Target{
		Graph:   r.graph,
		Index:   r.index,
		UserID:  r.userID,
		GraphID: r.graphID,
	}
	applied, err := r.deps.router.Apply(context.Background(), target, op)
	if err != nil {
		operationsTotal.WithLabelValues(string(op.Type), "rejected").Inc()
		r.logger.Debugw("Operation rejected",
			logger.FieldSessionID, c.id,
			logger.FieldOperation, op.Type,
			logger.FieldError, err,
		)
		r.reply(c, newErrorMessage(err))
		return
	}
	operationsTotal.WithLabelValues(string(op.Type), "applied").Inc()

	r.persist()
	r.broadcast(newOperationApplied(applied, r.userID, c.id, r.deps.now()))
}

func (r *room) handleSync(c *Client) {
	if !r.isMember(c) {
		r.reply(c, newErrorMessage(errors.ErrNotSubscribed))
		return
	}
	if err := r.load(); err != nil {
		r.reply(c, newErrorMessage(err))
		return
	}
	r.reply(c, r.graphMessage(MsgSyncResponse))
}

func (r *room) handleInspect() inspectResult {
	if err := r.load(); err != nil {
		return inspectResult{err: err}
	}
	blob, err := graph.Encode(r.graph)
	return inspectResult{blob: blob, err: err}
}

func (r *room) isMember(c *Client) bool {
	_, ok := r.members[c]
	return ok
}

// persist hands the current graph to the writer. Storage failures never
// hold back state or broadcasts.
func (r *room) persist() {
	blob, err := graph.Encode(r.graph)
	if err != nil {
		r.logger.Errorw("Failed to encode graph", logger.FieldError, err)
		return
	}
	r.persister.submit(snapshot{version: r.graph.Version, blob: blob})
}

func (r *room) graphMessage(typ string) any {
	blob, err := graph.Encode(r.graph)
	if err != nil {
		return newErrorMessage(err)
	}
	return GraphMessage{Type: typ, Payload: blob}
}

// reply sends msg to one member.
func (r *room) reply(c *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Errorw("Failed to encode message", logger.FieldError, err)
		return
	}
	if !c.enqueue(data) {
		delete(r.members, c)
	}
}

// broadcast sends msg to every member in the order the room produced it.
func (r *room) broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Errorw("Failed to encode message", logger.FieldError, err)
		return
	}
	for c := range r.members {
		if !c.enqueue(data) {
			delete(r.members, c)
		}
	}
	if logger.ShouldOutput(int(r.deps.verbosity.Load()), logger.OutputBroadcast) {
		r.logger.Debugw("Broadcast",
			logger.FieldSessions, len(r.members),
			logger.FieldSize, len(data),
		)
	}
}
