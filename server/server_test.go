package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/storage"
	"github.com/teranos/trellis/version"
)

const readTimeout = 5 * time.Second

// frame is the union of every server message field the tests inspect.
type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	Message   string          `json:"message"`
	Code      string          `json:"code"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

type testServer struct {
	*Server
	http  *httptest.Server
	store *storage.MemoryStore
}

func testConfig(t *testing.T) *am.Config {
	t.Helper()
	cfg, err := am.DefaultConfig()
	require.NoError(t, err)
	cfg.Server.OpsPerSecond = 0
	cfg.Progress.Timezone = "UTC"
	return cfg
}

func newTestServer(t *testing.T, cfg *am.Config, store storage.Store) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	mem, _ := store.(*storage.MemoryStore)
	if store == nil {
		mem = storage.NewMemoryStore()
		store = mem
	}
	s, err := New(cfg, store, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
		ts.Close()
	})
	return &testServer{Server: s, http: ts, store: mem}
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
}

// dial connects and consumes CONNECTION_ESTABLISHED, returning the session id.
func (ts *testServer) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f := read(t, conn)
	require.Equal(t, MsgConnectionEstablished, f.Type)
	require.NotEmpty(t, f.SessionID)
	return conn, f.SessionID
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func write(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func subscribe(t *testing.T, conn *websocket.Conn, userID, graphID string) *graph.Graph {
	t.Helper()
	write(t, conn, map[string]string{"type": MsgSubscribe, "userId": userID, "graphId": graphID})
	f := read(t, conn)
	require.Equal(t, MsgGraphState, f.Type, "message: %s", f.Message)
	g, err := graph.Decode(f.Payload)
	require.NoError(t, err)
	return g
}

func operation(opType string, payload string) map[string]any {
	return map[string]any{
		"type": MsgOperation,
		"payload": map[string]any{
			"type":    opType,
			"payload": json.RawMessage(payload),
		},
	}
}

func addTask(id string) map[string]any {
	return operation("ADD_NODE", `{"node":{"id":"`+id+`","title":"`+id+`","nodeType":"task","nodeSubtype":"simple","requiredCompletions":2}}`)
}

// ping round-trips a PING so the caller knows no other frame is queued ahead.
func ping(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	write(t, conn, map[string]string{"type": MsgPing})
	assert.Equal(t, MsgPong, read(t, conn).Type)
}

func TestConnectionEstablished(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	_, a := ts.dial(t)
	_, b := ts.dial(t)
	assert.NotEqual(t, a, b)

	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()
	var hello struct {
		Type     string `json:"type"`
		Version  string `json:"version"`
		Protocol int    `json:"protocol"`
	}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, MsgConnectionEstablished, hello.Type)
	assert.Equal(t, version.Get().Short(), hello.Version)
	assert.Equal(t, version.Protocol, hello.Protocol)
}

func TestSubscribeEmptyGraph(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)

	g := subscribe(t, conn, "u1", "g1")
	assert.Empty(t, g.Nodes)
	assert.Equal(t, 1.0, g.Viewport.Zoom)
}

func TestSubscribeRequiresIDs(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)

	write(t, conn, map[string]string{"type": MsgSubscribe, "graphId": "g1"})
	f := read(t, conn)
	assert.Equal(t, MsgError, f.Type)
	assert.Equal(t, errors.CodeMalformed, f.Code)
}

func TestOperationBroadcastToEverySession(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	sender, senderID := ts.dial(t)
	other, _ := ts.dial(t)
	subscribe(t, sender, "u1", "g1")
	subscribe(t, other, "u1", "g1")

	write(t, sender, addTask("n1"))

	for _, conn := range []*websocket.Conn{sender, other} {
		f := read(t, conn)
		require.Equal(t, MsgOperationApplied, f.Type, "message: %s", f.Message)
		assert.Equal(t, senderID, f.SessionID)
		assert.Equal(t, "u1", f.UserID)
		assert.NotZero(t, f.Timestamp)

		var op struct {
			Type    string `json:"type"`
			Version int64  `json:"version"`
		}
		require.NoError(t, json.Unmarshal(f.Payload, &op))
		assert.Equal(t, "ADD_NODE", op.Type)
		assert.Equal(t, int64(1), op.Version)

		// exactly one OPERATION_APPLIED per session
		ping(t, conn)
	}
}

func TestOtherGraphsAreIsolated(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	a, _ := ts.dial(t)
	b, _ := ts.dial(t)
	subscribe(t, a, "u1", "g1")
	subscribe(t, b, "u1", "g2")

	write(t, a, addTask("n1"))
	assert.Equal(t, MsgOperationApplied, read(t, a).Type)
	ping(t, b)
}

func TestOperationBeforeSubscribe(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)

	write(t, conn, addTask("n1"))
	f := read(t, conn)
	assert.Equal(t, MsgError, f.Type)
	assert.Equal(t, errors.CodeNotSubscribed, f.Code)

	write(t, conn, map[string]string{"type": MsgSync})
	assert.Equal(t, errors.CodeNotSubscribed, read(t, conn).Code)
}

func TestMalformedMessagesKeepSessionAlive(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := read(t, conn)
	assert.Equal(t, MsgError, f.Type)
	assert.Equal(t, errors.CodeMalformed, f.Code)

	write(t, conn, map[string]string{"type": "SHOUT"})
	assert.Equal(t, errors.CodeMalformed, read(t, conn).Code)

	ping(t, conn)
}

func TestRejectedOperationGoesToSenderOnly(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	sender, _ := ts.dial(t)
	other, _ := ts.dial(t)
	subscribe(t, sender, "u1", "g1")
	subscribe(t, other, "u1", "g1")

	write(t, sender, operation("DELETE_NODE", `{"id":"missing"}`))
	f := read(t, sender)
	assert.Equal(t, MsgError, f.Type)
	assert.Equal(t, errors.CodeNotFound, f.Code)

	write(t, sender, operation("REORDER", `{}`))
	assert.Equal(t, errors.CodeMalformed, read(t, sender).Code)

	ping(t, other)

	write(t, sender, map[string]string{"type": MsgSync})
	f = read(t, sender)
	require.Equal(t, MsgSyncResponse, f.Type)
	g, err := graph.Decode(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(0), g.Version)
}

func TestSyncReturnsCurrentGraph(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)
	subscribe(t, conn, "u1", "g1")

	write(t, conn, addTask("n1"))
	require.Equal(t, MsgOperationApplied, read(t, conn).Type)

	write(t, conn, map[string]string{"type": MsgSync})
	f := read(t, conn)
	require.Equal(t, MsgSyncResponse, f.Type)
	g, err := graph.Decode(f.Payload)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "n1", g.Nodes[0].ID)
	assert.Equal(t, int64(1), g.Version)
}

func TestOperationsArePersisted(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)
	subscribe(t, conn, "u1", "g1")

	write(t, conn, addTask("n1"))
	require.Equal(t, MsgOperationApplied, read(t, conn).Type)

	key := storage.Key("u1", "g1")
	require.Eventually(t, func() bool {
		g, err := storage.LoadGraph(context.Background(), ts.store, key)
		return err == nil && len(g.Nodes) == 1
	}, readTimeout, 10*time.Millisecond)
}

func TestResubscribeReloadsFromStorage(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)
	subscribe(t, conn, "u1", "g1")
	write(t, conn, addTask("n1"))
	require.Equal(t, MsgOperationApplied, read(t, conn).Type)

	// leaving g1 evicts its room; coming back must see the flushed state
	subscribe(t, conn, "u1", "g2")
	g := subscribe(t, conn, "u1", "g1")
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, int64(1), g.Version)
}

func TestProgressResetOnSubscribe(t *testing.T) {
	store := storage.NewMemoryStore()
	seed := graph.New()
	seed.Settings.ProgressReset = graph.ProgressReset{
		Enabled:           true,
		Frequency:         graph.ResetDaily,
		LastProgressReset: "2026-10-13",
	}
	seed.Nodes = []*graph.Node{{
		ID:                  "n1",
		Title:               "Stretch",
		NodeType:            graph.NodeTypeTask,
		NodeSubtype:         graph.SubtypeSimple,
		IsDone:              true,
		CurrentCompletions:  1,
		RequiredCompletions: 1,
		CalculatedProgress:  1,
	}}
	require.NoError(t, storage.SaveGraph(context.Background(), store, storage.Key("u1", "g1"), seed))

	ts := newTestServer(t, nil, store)
	ts.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }

	conn, _ := ts.dial(t)
	g := subscribe(t, conn, "u1", "g1")
	require.Len(t, g.Nodes, 1)
	assert.False(t, g.Nodes[0].IsDone)
	assert.Equal(t, 0, g.Nodes[0].CurrentCompletions)
	assert.Equal(t, 0.0, g.Nodes[0].CalculatedProgress)
	assert.Equal(t, "2026-10-14", g.Settings.ProgressReset.LastProgressReset)

	// same day: no second reset
	other, _ := ts.dial(t)
	g = subscribe(t, other, "u1", "g1")
	assert.Equal(t, "2026-10-14", g.Settings.ProgressReset.LastProgressReset)
	ping(t, conn)
}

func TestRateLimitedOperations(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.OpsPerSecond = 0.001
	cfg.Server.OpsBurst = 1
	ts := newTestServer(t, cfg, nil)

	conn, _ := ts.dial(t)
	subscribe(t, conn, "u1", "g1")

	write(t, conn, addTask("n1"))
	assert.Equal(t, MsgOperationApplied, read(t, conn).Type)

	write(t, conn, addTask("n2"))
	f := read(t, conn)
	assert.Equal(t, MsgError, f.Type)
	assert.Equal(t, errors.CodeRateLimited, f.Code)

	// lifting the limit applies to live sessions
	relaxed := testConfig(t)
	require.NoError(t, ts.ApplyConfig(relaxed))
	write(t, conn, addTask("n3"))
	assert.Equal(t, MsgOperationApplied, read(t, conn).Type)
}

func TestMaxClients(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.MaxClients = 1
	ts := newTestServer(t, cfg, nil)
	ts.dial(t)

	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestCheckOrigin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.AllowedOrigins = []string{"http://localhost"}
	ts := newTestServer(t, cfg, nil)

	header := http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(), header)
	require.NoError(t, err)
	conn.Close()

	header = http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)
	subscribe(t, conn, "u1", "g1")

	resp, err := http.Get(ts.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status   string `json:"status"`
		Protocol int    `json:"protocol"`
		Sessions int    `json:"sessions"`
		Rooms    int    `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, version.Protocol, body.Protocol)
	assert.Equal(t, 1, body.Sessions)
	assert.Equal(t, 1, body.Rooms)
}

func TestGraphEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)
	subscribe(t, conn, "u1", "g1")
	write(t, conn, addTask("n1"))
	require.Equal(t, MsgOperationApplied, read(t, conn).Type)

	t.Run("live room", func(t *testing.T) {
		resp, err := http.Get(ts.http.URL + "/api/graphs/u1/g1")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var g graph.Graph
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
		require.Len(t, g.Nodes, 1)
	})

	t.Run("not loaded", func(t *testing.T) {
		resp, err := http.Get(ts.http.URL + "/api/graphs/u2/g9")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var g graph.Graph
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
		assert.Empty(t, g.Nodes)
	})

	t.Run("bad path", func(t *testing.T) {
		resp, err := http.Get(ts.http.URL + "/api/graphs/u1")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("method", func(t *testing.T) {
		resp, err := http.Post(ts.http.URL+"/api/graphs/u1/g1", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestStopFlushesRooms(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	conn, _ := ts.dial(t)
	subscribe(t, conn, "u1", "g1")
	write(t, conn, addTask("n1"))
	require.Equal(t, MsgOperationApplied, read(t, conn).Type)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.Stop(ctx))
	assert.Equal(t, ServerStateStopped, ts.getState())

	g, err := storage.LoadGraph(context.Background(), ts.store, storage.Key("u1", "g1"))
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 1)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStorageUnavailableOnSubscribe(t *testing.T) {
	ts := newTestServer(t, nil, failingStore{})
	conn, _ := ts.dial(t)

	write(t, conn, map[string]string{"type": MsgSubscribe, "userId": "u1", "graphId": "g1"})
	f := read(t, conn)
	assert.Equal(t, MsgError, f.Type)
	assert.Equal(t, errors.CodeUnavailable, f.Code)
}

func TestWriteFailuresDoNotBlockBroadcast(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.PersistRetries = 0
	ts := newTestServer(t, cfg, &flakyStore{MemoryStore: storage.NewMemoryStore(), failures: 1 << 30})
	sender, _ := ts.dial(t)
	other, _ := ts.dial(t)
	subscribe(t, sender, "u1", "g1")
	subscribe(t, other, "u1", "g1")

	write(t, sender, addTask("n1"))
	assert.Equal(t, MsgOperationApplied, read(t, sender).Type)
	assert.Equal(t, MsgOperationApplied, read(t, other).Type)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, storage.NewMemoryStore(), nil)
	assert.Error(t, err)
	_, err = New(testConfig(t), nil, nil)
	assert.Error(t, err)
}

func TestConcurrentOperationsShareOneOrder(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	a, aID := ts.dial(t)
	b, bID := ts.dial(t)
	subscribe(t, a, "u1", "g1")
	subscribe(t, b, "u1", "g1")

	write(t, a, addTask("shared"))
	require.Equal(t, MsgOperationApplied, read(t, a).Type)
	require.Equal(t, MsgOperationApplied, read(t, b).Type)

	const perSession = 5
	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < perSession; i++ {
			if err := a.WriteJSON(addTask(fmt.Sprintf("a%d", i))); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < perSession; i++ {
			update := operation("UPDATE_NODE", fmt.Sprintf(`{"id":"shared","updates":{"title":"b%d"}}`, i))
			if err := b.WriteJSON(update); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	type applied struct {
		version int64
		session string
	}
	receive := func(conn *websocket.Conn) []applied {
		var seen []applied
		for i := 0; i < 2*perSession; i++ {
			f := read(t, conn)
			require.Equal(t, MsgOperationApplied, f.Type, "message: %s", f.Message)
			var op struct {
				Version int64 `json:"version"`
			}
			require.NoError(t, json.Unmarshal(f.Payload, &op))
			seen = append(seen, applied{version: op.Version, session: f.SessionID})
		}
		return seen
	}
	fromA, fromB := receive(a), receive(b)

	assert.Equal(t, fromA, fromB)
	senders := map[string]int{}
	for i, op := range fromA {
		assert.Equal(t, int64(i+2), op.version, "versions have no gaps")
		senders[op.session]++
	}
	assert.Equal(t, map[string]int{aID: perSession, bID: perSession}, senders)
}

func TestProgressResetRefreshesExistingMembers(t *testing.T) {
	store := storage.NewMemoryStore()
	seed := graph.New()
	seed.Settings.ProgressReset = graph.ProgressReset{
		Enabled:           true,
		Frequency:         graph.ResetDaily,
		LastProgressReset: "2026-10-14",
	}
	seed.Nodes = []*graph.Node{{
		ID:                  "n1",
		Title:               "Stretch",
		NodeType:            graph.NodeTypeTask,
		NodeSubtype:         graph.SubtypeSimple,
		IsDone:              true,
		CurrentCompletions:  1,
		RequiredCompletions: 1,
	}}
	require.NoError(t, storage.SaveGraph(context.Background(), store, storage.Key("u1", "g1"), seed))

	var day atomic.Int32
	day.Store(14)
	ts := newTestServer(t, nil, store)
	ts.now = func() time.Time { return time.Date(2026, 10, int(day.Load()), 9, 0, 0, 0, time.UTC) }

	early, _ := ts.dial(t)
	g := subscribe(t, early, "u1", "g1")
	require.True(t, g.Nodes[0].IsDone)

	day.Store(15)
	late, _ := ts.dial(t)
	g = subscribe(t, late, "u1", "g1")
	assert.False(t, g.Nodes[0].IsDone)
	assert.Equal(t, int64(1), g.Version)

	f := read(t, early)
	require.Equal(t, MsgSyncResponse, f.Type)
	refreshed, err := graph.Decode(f.Payload)
	require.NoError(t, err)
	assert.False(t, refreshed.Nodes[0].IsDone)
	assert.Equal(t, "2026-10-15", refreshed.Settings.ProgressReset.LastProgressReset)

	ping(t, late)
}

// unreachableOnceStore fails the first read and then behaves normally.
type unreachableOnceStore struct {
	*storage.MemoryStore
	failed atomic.Bool
}

func (s *unreachableOnceStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.failed.CompareAndSwap(false, true) {
		return nil, errors.WrapUnavailable(errors.New("connection reset"), "get")
	}
	return s.MemoryStore.Get(ctx, key)
}

func TestFailedSubscribeDoesNotJoinRoom(t *testing.T) {
	ts := newTestServer(t, nil, &unreachableOnceStore{MemoryStore: storage.NewMemoryStore()})
	failed, _ := ts.dial(t)
	joined, _ := ts.dial(t)

	write(t, failed, map[string]string{"type": MsgSubscribe, "userId": "u1", "graphId": "g1"})
	require.Equal(t, errors.CodeUnavailable, read(t, failed).Code)
	subscribe(t, joined, "u1", "g1")

	write(t, joined, addTask("n1"))
	require.Equal(t, MsgOperationApplied, read(t, joined).Type)

	// no OPERATION_APPLIED without a GRAPH_STATE first
	ping(t, failed)
	write(t, failed, addTask("n2"))
	assert.Equal(t, errors.CodeNotSubscribed, read(t, failed).Code)

	// subscribing again succeeds now that storage answers
	g := subscribe(t, failed, "u1", "g1")
	require.Len(t, g.Nodes, 1)
}
