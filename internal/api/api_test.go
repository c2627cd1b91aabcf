package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offlineq/internal/analytics"
	"github.com/roach88/offlineq/internal/mutation"
	"github.com/roach88/offlineq/internal/netstate"
	"github.com/roach88/offlineq/internal/offline"
	"github.com/roach88/offlineq/internal/store"
	"github.com/roach88/offlineq/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	srv    *Server
	router *gin.Engine
	net    *netstate.Manual
	q      *offline.Queue
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	kv := store.NewKV(store.NewMemory(), testutil.DiscardLogger())
	net := netstate.NewManual(netstate.StateOf(online, "manual"))
	q := offline.New(kv, net,
		offline.WithIDGenerator(mutation.NewFixedGenerator("m-1", "m-2", "m-3")),
		offline.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, q.Initialize(context.Background()))
	t.Cleanup(q.Destroy)

	a := analytics.New(&countingProvider{}, analytics.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, a.Initialize(context.Background()))

	srv := &Server{Queue: q, Manual: net, Analytics: a, Logger: testutil.DiscardLogger()}
	return &harness{srv: srv, router: srv.Router(), net: net, q: q}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

type countingProvider struct {
	tracked []analytics.Event
}

func (p *countingProvider) Initialize(context.Context) error { return nil }
func (p *countingProvider) Track(_ context.Context, e analytics.Event, _ analytics.Properties) {
	p.tracked = append(p.tracked, e)
}
func (p *countingProvider) Screen(context.Context, string, analytics.Properties) {}
func (p *countingProvider) Identify(context.Context, string, *analytics.UserProperties) {}
func (p *countingProvider) Reset(context.Context) {}

func TestHealthz(t *testing.T) {
	h := newHarness(t, true)
	rec := h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestEnqueueListStatusDequeue(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/mutations", `{"type":"update_profile","payload":{"name":"New Name"},"userId":"u-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"id":"m-1","status":"accepted"}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pendingCount":1,"isOnline":false,"hasPendingMutations":true}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/mutations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []mutation.Mutation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "update_profile", list[0].Type)
	assert.Equal(t, "u-1", list[0].UserID)

	rec = h.do(t, http.MethodDelete, "/mutations/m-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/mutations", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestEnqueueValidation(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/mutations", `{"payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/mutations", `{"type":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/mutations", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueBeforeInitialize(t *testing.T) {
	kv := store.NewKV(store.NewMemory(), testutil.DiscardLogger())
	q := offline.New(kv, netstate.NewManual(netstate.State{}), offline.WithLogger(testutil.DiscardLogger()))
	srv := &Server{Queue: q}
	h := &harness{srv: srv, router: srv.Router()}

	rec := h.do(t, http.MethodPost, "/mutations", `{"type":"create_order"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSetNetworkTriggersProcessing(t *testing.T) {
	h := newHarness(t, false)

	done := make(chan struct{}, 1)
	h.q.RegisterHandler(mutation.TypeCancelOrder, func(context.Context, json.RawMessage) error {
		done <- struct{}{}
		return nil
	})

	rec := h.do(t, http.MethodPost, "/mutations", `{"type":"cancel_order","payload":{"order":"o-1"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(t, http.MethodPut, "/network", `{"isConnected":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isConnected":true,"isOnline":true}`, rec.Body.String())

	h.q.Wait()
	assert.Len(t, done, 1)
	assert.False(t, h.q.HasPendingMutations())

	rec = h.do(t, http.MethodPut, "/network", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetNetworkWithoutManualSource(t *testing.T) {
	h := newHarness(t, true)
	h.srv.Manual = nil
	router := h.srv.Router()

	req := httptest.NewRequest(http.MethodPut, "/network", strings.NewReader(`{"isConnected":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTrackEvent(t *testing.T) {
	h := newHarness(t, true)
	provider := h.srv.Analytics.Provider().(*countingProvider)

	rec := h.do(t, http.MethodPost, "/events", `{"event":"product_search","properties":{"q":"desk"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []analytics.Event{analytics.EventAppOpen, analytics.EventProductSearch}, provider.tracked)

	rec = h.do(t, http.MethodPost, "/events", `{"event":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.srv.Analytics = nil
	rec = httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"event":"share"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
