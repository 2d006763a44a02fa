package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patrickwarner/embedpool/internal/config"
	"github.com/patrickwarner/embedpool/internal/embed/sim"
	"github.com/patrickwarner/embedpool/internal/eventloop"
	"github.com/patrickwarner/embedpool/internal/logic/editstate"
	"github.com/patrickwarner/embedpool/internal/logic/pool"
	"github.com/patrickwarner/embedpool/internal/logic/ratelimit"
	"github.com/patrickwarner/embedpool/internal/logic/scheduler"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/observability"
	"github.com/patrickwarner/embedpool/internal/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	metrics *observability.RecordingRegistry
	doc     *page.Document
}

func newTestServer(t *testing.T, limit ratelimit.Config) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewRecordingRegistry()

	doc := page.NewDocument(models.Viewport{Height: 900, Width: 1280})
	var elements []page.SlotElement
	for i := 0; i < 6; i++ {
		el := page.NewElement(fmt.Sprintf("demo%d", i+1), page.SlotClass)
		el.OffsetTop = float64(i) * 1000
		el.OffsetHeight = 400
		el.SetAttr(page.AttrSource, fmt.Sprintf("https://play.example/embed/?scene=s%d.yaml", i+1))
		require.NoError(t, doc.Append(el))
		elements = append(elements, el)
	}

	loop := eventloop.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		loop.Stop()
	})

	store := editstate.New(editstate.AttributeBackend{}, loop, logger, editstate.WithMetrics(metrics))
	p, err := pool.New(pool.Deps{
		Layout:   doc,
		Elements: elements,
		Store:    store,
		Factory:  sim.Factory(sim.Options{Manual: true}),
		Logger:   logger,
		Metrics:  metrics,
	}, pool.Config{Size: 2, EditorHeight: 400})
	require.NoError(t, err)

	sched := scheduler.New(ctx, p, loop, scheduler.Options{Interval: time.Hour, Logger: logger, Metrics: metrics})
	t.Cleanup(sched.Stop)
	require.NoError(t, sched.Start(ctx, doc.Viewport()))

	srv := NewServer(logger, p, loop, sched, doc, ratelimit.NewClientLimiter(limit, metrics), metrics, config.Config{})
	return &testEnv{srv: srv, handler: srv.Router(), metrics: metrics, doc: doc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.1.1.1:4000"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) state(t *testing.T) models.PoolSnapshot {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.PoolSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func TestHealthHandler(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})
	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","frames":2,"attached":2,"passes":1}`, rec.Body.String())
	assert.Equal(t, 1, env.metrics.Count("requests/health/200"))
}

func TestHealthHandlerLoopStopped(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})
	env.srv.Loop.(*eventloop.Loop).Stop()

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, env.metrics.Count("requests/health/503"))
}

func TestStateHandlerReportsInitialPass(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})
	snap := env.state(t)

	assert.Equal(t, []string{"demo1", "demo2"}, snap.AttachedSlots())
	assert.Len(t, snap.Frames, 2)
	assert.Equal(t, uint64(1), snap.Passes)
}

func TestScrollHandlerReconciles(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})

	rec := env.do(t, http.MethodPost, "/api/scroll", ScrollRequest{ScrollTop: 3750})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ScrollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(ratelimit.Immediate), resp.Decision)
	assert.Equal(t, 3750.0, resp.Viewport.ScrollTop)

	// center 4200 sits on demo5; demo4 and demo6 tie, document order wins
	assert.Equal(t, []string{"demo4", "demo5"}, env.state(t).AttachedSlots())

	rec = env.do(t, http.MethodPost, "/api/scroll", ScrollRequest{ScrollTop: 0})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(ratelimit.Deferred), resp.Decision)
}

func TestScrollHandlerResizes(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})

	rec := env.do(t, http.MethodPost, "/api/scroll", ScrollRequest{ScrollTop: 0, Height: 500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500.0, env.doc.Viewport().Height)
}

func TestScrollHandlerRejectsBadInput(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/scroll", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/scroll", ScrollRequest{Height: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotTextRoundTrip(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})

	rec := env.do(t, http.MethodPut, "/api/slots/demo6/text", SlotText{Text: "edited offscreen"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/slots/demo6/text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got SlotText
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, SlotText{Slot: "demo6", Text: "edited offscreen", Live: false}, got)

	var slot6 models.SlotState
	for _, s := range env.state(t).Slots {
		if s.Name == "demo6" {
			slot6 = s
		}
	}
	assert.True(t, slot6.HasPayload)

	rec = env.do(t, http.MethodDelete, "/api/slots/demo6/payload", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/slots/demo6/text", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Text)
}

func TestSlotTextUnknownSlot(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/slots/nope/text", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/api/slots/nope/text", SlotText{Text: "x"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/slots/nope/payload", nil).Code)
}

func TestMutatingRoutesAreRateLimited(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{Capacity: 2, RefillRate: 0, Enabled: true})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scroll", ScrollRequest{}).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scroll", ScrollRequest{}).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/api/scroll", ScrollRequest{}).Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/state", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/ratelimit", nil)
	var stats map[string]ratelimit.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats["10.1.1.1"].Hits)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t, ratelimit.Config{})
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
