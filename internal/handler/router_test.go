package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storesync/internal/app/realtime"
	"storesync/internal/app/store"
	"storesync/internal/configs"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	api := store.NewClient("http://localhost:0", "", time.Second)
	service := realtime.NewService(api, realtime.NewWebSocketTransport(), "ws://localhost:0/ws", time.Second)

	cfg := &configs.AppConfig{Environment: "development"}
	return Router(service, cfg)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Code int `json:"code"`
		Data struct {
			Status    string `json:"status"`
			Service   string `json:"service"`
			Connected bool   `json:"connected"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "ok", body.Data.Status)
	assert.Equal(t, "storesync", body.Data.Service)
	assert.False(t, body.Data.Connected)
}

func TestStateEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Code int               `json:"code"`
		Data realtime.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.False(t, body.Data.Connected)
	assert.True(t, body.Data.Identity.Zero())
}

func TestUnknownRouteReturns404(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
