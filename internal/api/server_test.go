package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adguardmon/internal/adguard"
	"adguardmon/internal/coordinator"
	"adguardmon/internal/instances"
)

func newTestServer(t *testing.T) (*Server, *adguard.MockClient, *coordinator.Coordinator) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	mock := adguard.NewMockClient()
	mock.StatusData = adguard.ServerStatus{
		Running:           true,
		ProtectionEnabled: true,
		Version:           "v0.107.68",
	}
	mock.StatsData = adguard.Stats{DNSQueries: 1000, BlockedFiltering: 100}
	mock.BlockedIDs = []string{"facebook"}
	mock.ServicesCatalog = []adguard.BlockedService{
		{ID: "facebook", Name: "Facebook"},
		{ID: "tiktok", Name: "TikTok"},
	}
	mock.ClientsData = []adguard.ClientConfig{
		{Name: "Kids Tablet", UseGlobalSettings: true},
	}

	coord := coordinator.New(coordinator.Config{
		InstanceID:    "home",
		Host:          "192.168.1.2",
		Interval:      time.Minute,
		QueryLogLimit: 100,
	}, mock, logger)
	require.NoError(t, coord.Setup(context.Background()))

	registry := instances.NewRegistry()
	require.NoError(t, registry.Add(coord))

	server := NewServer(registry, logger, 0, "#44739e")
	return server, mock, coord
}

func doRequest(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := doRequest(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestServer_Instances(t *testing.T) {
	server, _, coord := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/instances", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, "home", result[0]["id"])
	assert.Equal(t, "AdGuard Home (192.168.1.2)", result[0]["name"])
	// No snapshot yet, so the instance is not healthy.
	assert.Equal(t, false, result[0]["healthy"])

	require.NoError(t, coord.Refresh(context.Background()))
	rec = doRequest(t, server, http.MethodGet, "/api/instances", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, true, result[0]["healthy"])
}

func TestServer_Snapshot(t *testing.T) {
	server, _, coord := newTestServer(t)

	t.Run("unknown instance", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/api/instances/nope/snapshot", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no snapshot yet", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/api/instances/home/snapshot", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("after refresh", func(t *testing.T) {
		require.NoError(t, coord.Refresh(context.Background()))
		rec := doRequest(t, server, http.MethodGet, "/api/instances/home/snapshot", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var snap map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		status, ok := snap["status"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, status["protection_enabled"])
	})
}

func TestServer_Summary(t *testing.T) {
	server, _, coord := newTestServer(t)
	require.NoError(t, coord.Refresh(context.Background()))

	rec := doRequest(t, server, http.MethodGet, "/api/instances/home/summary?top=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, float64(1000), summary["total_queries"])
	assert.Equal(t, float64(100), summary["blocked_total"])
	assert.Equal(t, float64(10), summary["blocked_percent"])

	t.Run("bad top parameter", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/api/instances/home/summary?top=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Services(t *testing.T) {
	server, _, coord := newTestServer(t)
	require.NoError(t, coord.Refresh(context.Background()))

	rec := doRequest(t, server, http.MethodGet, "/api/instances/home/services", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var services []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &services))
	require.Len(t, services, 2)
	assert.Equal(t, "facebook", services[0]["id"])
	assert.Equal(t, true, services[0]["blocked"])
	assert.Equal(t, "tiktok", services[1]["id"])
	assert.Equal(t, false, services[1]["blocked"])
}

func TestServer_Refresh(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := doRequest(t, server, http.MethodPost, "/api/instances/home/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_Protection(t *testing.T) {
	server, mock, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/api/instances/home/protection",
		`{"enabled": false, "duration_ms": 60000}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	calls := mock.Calls()
	var found bool
	for _, call := range calls {
		if call.Method == "SetProtection" {
			found = true
			assert.Equal(t, false, call.Args["enabled"])
			assert.Equal(t, int64(60000), call.Args["duration_ms"])
		}
	}
	assert.True(t, found)

	t.Run("bad body", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/api/instances/home/protection", `not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("auth failure maps to 401", func(t *testing.T) {
		mock.SetError("SetProtection", &adguard.AuthError{StatusCode: 401})
		rec := doRequest(t, server, http.MethodPost, "/api/instances/home/protection", `{"enabled": true}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("connectivity failure maps to 502", func(t *testing.T) {
		mock.SetError("SetProtection", &adguard.ConnError{Message: "down"})
		rec := doRequest(t, server, http.MethodPost, "/api/instances/home/protection", `{"enabled": true}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestServer_Toggles(t *testing.T) {
	server, mock, _ := newTestServer(t)

	for _, path := range []string{"safebrowsing", "parental", "safesearch"} {
		rec := doRequest(t, server, http.MethodPost, "/api/instances/home/"+path, `{"enabled": true}`)
		assert.Equal(t, http.StatusAccepted, rec.Code, path)
	}

	assert.Equal(t, 1, mock.CallCount("SetSafeBrowsing"))
	assert.Equal(t, 1, mock.CallCount("SetParental"))
	assert.Equal(t, 1, mock.CallCount("SetSafeSearch"))
}

func TestServer_Filters(t *testing.T) {
	server, mock, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/api/instances/home/filters",
		`{"name": "Base", "url": "https://filters.example/list.txt"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, mock.CallCount("AddFilterURL"))

	rec = doRequest(t, server, http.MethodDelete, "/api/instances/home/filters",
		`{"url": "https://filters.example/list.txt"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, mock.CallCount("RemoveFilterURL"))

	rec = doRequest(t, server, http.MethodPost, "/api/instances/home/filters/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, mock.CallCount("RefreshFilters"))

	t.Run("missing url", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/api/instances/home/filters", `{"name": "Base"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_BlockUnblockService(t *testing.T) {
	server, mock, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/api/instances/home/services/tiktok/block", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"facebook", "tiktok"}, mock.BlockedIDs)

	rec = doRequest(t, server, http.MethodPost, "/api/instances/home/services/facebook/unblock", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"tiktok"}, mock.BlockedIDs)
}

func TestServer_Rewrites(t *testing.T) {
	server, mock, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/api/instances/home/rewrites",
		`{"domain": "nas.lan", "answer": "192.168.1.5"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, mock.CallCount("AddRewrite"))

	rec = doRequest(t, server, http.MethodDelete, "/api/instances/home/rewrites",
		`{"domain": "nas.lan", "answer": "192.168.1.5"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, mock.CallCount("DeleteRewrite"))

	t.Run("missing fields", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/api/instances/home/rewrites", `{"domain": "nas.lan"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_ClientFlag(t *testing.T) {
	server, mock, coord := newTestServer(t)
	require.NoError(t, coord.Refresh(context.Background()))

	rec := doRequest(t, server, http.MethodPost, "/api/instances/home/clients/Kids%20Tablet/flags",
		`{"flag": "parental", "enabled": true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, mock.CallCount("UpdateClient"))
}

func TestServer_CheckHost(t *testing.T) {
	server, mock, _ := newTestServer(t)
	mock.CheckHostData = map[string]any{"reason": "FilteredBlackList"}

	rec := doRequest(t, server, http.MethodGet, "/api/instances/home/check_host?name=ads.example", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "FilteredBlackList", result["reason"])

	t.Run("missing name", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/api/instances/home/check_host", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_WebSocketPush(t *testing.T) {
	server, _, coord := newTestServer(t)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler a moment to finish registering the connection.
	time.Sleep(100 * time.Millisecond)

	// Every published snapshot is pushed to connected clients.
	require.NoError(t, coord.Refresh(context.Background()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "home", msg["instance_id"])
	assert.NotNil(t, msg["snapshot"])
}
