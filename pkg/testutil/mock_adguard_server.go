// Package testutil provides a stateful fake AdGuard Home server for
// integration tests. The fake keeps real mutable state: toggles flip,
// blocked services persist, rewrites accumulate, so tests can drive the
// full write-then-poll cycle against it.
package testutil

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockAdGuardServer simulates the AdGuard Home control API.
type MockAdGuardServer struct {
	mu sync.Mutex

	// Credentials; empty means no auth required.
	Username string
	Password string

	Version          string
	Protection       bool
	SafeBrowsing     bool
	Parental         bool
	SafeSearch       map[string]any
	FilteringEnabled bool
	FilterInterval   int
	Filters          []map[string]any
	UserRules        []string

	Catalog    []map[string]any
	BlockedIDs []string

	Rewrites []map[string]any
	Clients  []map[string]any

	Queries int64
	Blocked int64

	QueryLogEntries []map[string]any

	// FailStatus forces an HTTP status for a path; 0 means serve normally.
	FailStatus map[string]int

	requests []string
	server   *httptest.Server
}

// NewMockAdGuardServer creates and starts a fake server with sensible state.
func NewMockAdGuardServer() *MockAdGuardServer {
	s := &MockAdGuardServer{
		Version:          "v0.107.68",
		Protection:       true,
		FilteringEnabled: true,
		FilterInterval:   24,
		SafeSearch: map[string]any{
			"enabled": false, "bing": true, "duckduckgo": true, "ecosia": true,
			"google": true, "pixabay": true, "yandex": true, "youtube": true,
		},
		Catalog: []map[string]any{
			{"id": "facebook", "name": "Facebook", "icon_svg": ""},
			{"id": "tiktok", "name": "TikTok", "icon_svg": ""},
			{"id": "youtube", "name": "YouTube", "icon_svg": ""},
		},
		BlockedIDs: []string{},
		Queries:    10000,
		Blocked:    1200,
		FailStatus: make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Close shuts the fake server down.
func (s *MockAdGuardServer) Close() {
	s.server.Close()
}

// HostPort returns the listen address split for client construction.
func (s *MockAdGuardServer) HostPort() (string, int) {
	host, portStr, _ := net.SplitHostPort(s.server.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Requests returns the paths of every request received so far.
func (s *MockAdGuardServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *MockAdGuardServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, r.URL.Path)

	if code, ok := s.FailStatus[r.URL.Path]; ok && code != 0 {
		w.WriteHeader(code)
		return
	}

	if s.Username != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var body map[string]any
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	switch r.URL.Path {
	case "/control/status":
		s.reply(w, map[string]any{
			"protection_enabled":   s.Protection,
			"running":              true,
			"safebrowsing_enabled": s.SafeBrowsing,
			"parental_enabled":     s.Parental,
			"safesearch":           s.SafeSearch,
			"dns_port":             53,
			"http_port":            3000,
			"version":              s.Version,
			"language":             "en",
		})
	case "/control/protection":
		if enabled, ok := body["enabled"].(bool); ok {
			s.Protection = enabled
		}
	case "/control/stats":
		s.reply(w, map[string]any{
			"num_dns_queries":       s.Queries,
			"num_blocked_filtering": s.Blocked,
			"avg_processing_time":   0.012,
			"top_queried_domains":   []any{map[string]any{"example.org": 500}},
			"top_blocked_domains":   []any{map[string]any{"ads.example": 400}},
			"top_clients":           []any{map[string]any{"192.168.1.10": 900}},
			"time_units":            "hours",
		})
	case "/control/stats_reset":
		s.Queries = 0
		s.Blocked = 0
	case "/control/stats/config":
		s.reply(w, map[string]any{"enabled": true, "interval": 86400000})
	case "/control/querylog":
		s.reply(w, map[string]any{"data": s.QueryLogEntries, "oldest": ""})
	case "/control/querylog_clear":
		s.QueryLogEntries = nil
	case "/control/querylog/config":
		s.reply(w, map[string]any{"enabled": true, "interval": 2160000000})
	case "/control/safebrowsing/enable":
		s.SafeBrowsing = true
	case "/control/safebrowsing/disable":
		s.SafeBrowsing = false
	case "/control/parental/enable":
		s.Parental = true
	case "/control/parental/disable":
		s.Parental = false
	case "/control/safesearch/status":
		s.reply(w, s.SafeSearch)
	case "/control/safesearch/settings":
		for key, value := range body {
			s.SafeSearch[key] = value
		}
	case "/control/filtering/status":
		s.reply(w, map[string]any{
			"enabled":    s.FilteringEnabled,
			"interval":   s.FilterInterval,
			"filters":    s.Filters,
			"user_rules": s.UserRules,
		})
	case "/control/filtering/config":
		if enabled, ok := body["enabled"].(bool); ok {
			s.FilteringEnabled = enabled
		}
		if interval, ok := body["interval"].(float64); ok {
			s.FilterInterval = int(interval)
		}
	case "/control/filtering/add_url":
		s.Filters = append(s.Filters, map[string]any{
			"name":    body["name"],
			"url":     body["url"],
			"enabled": true,
		})
	case "/control/filtering/remove_url":
		kept := s.Filters[:0]
		for _, f := range s.Filters {
			if f["url"] != body["url"] {
				kept = append(kept, f)
			}
		}
		s.Filters = kept
	case "/control/filtering/refresh":
		s.reply(w, map[string]any{"updated": 0})
	case "/control/filtering/check_host":
		s.reply(w, map[string]any{"reason": "NotFilteredNotFound"})
	case "/control/clients":
		s.reply(w, map[string]any{"clients": s.Clients, "auto_clients": []any{}})
	case "/control/clients/update":
		name, _ := body["name"].(string)
		data, _ := body["data"].(map[string]any)
		for idx, c := range s.Clients {
			if c["name"] == name {
				s.Clients[idx] = data
			}
		}
	case "/control/blocked_services/all":
		s.reply(w, map[string]any{"blocked_services": s.Catalog})
	case "/control/blocked_services/list", "/control/blocked_services/get":
		ids := make([]any, 0, len(s.BlockedIDs))
		for _, id := range s.BlockedIDs {
			ids = append(ids, id)
		}
		s.reply(w, map[string]any{"ids": ids, "schedule": map[string]any{"time_zone": "Local"}})
	case "/control/blocked_services/set", "/control/blocked_services/update":
		raw, _ := body["ids"].([]any)
		ids := make([]string, 0, len(raw))
		for _, item := range raw {
			if id, ok := item.(string); ok {
				ids = append(ids, id)
			}
		}
		s.BlockedIDs = ids
	case "/control/rewrite/list":
		list := s.Rewrites
		if list == nil {
			list = []map[string]any{}
		}
		s.reply(w, list)
	case "/control/rewrite/add":
		s.Rewrites = append(s.Rewrites, map[string]any{
			"domain": body["domain"],
			"answer": body["answer"],
		})
	case "/control/rewrite/update":
		target, _ := body["target"].(map[string]any)
		update, _ := body["update"].(map[string]any)
		for idx, rw := range s.Rewrites {
			if rw["domain"] == target["domain"] && rw["answer"] == target["answer"] {
				s.Rewrites[idx] = update
			}
		}
	case "/control/rewrite/delete":
		kept := s.Rewrites[:0]
		for _, rw := range s.Rewrites {
			if rw["domain"] != body["domain"] || rw["answer"] != body["answer"] {
				kept = append(kept, rw)
			}
		}
		s.Rewrites = kept
	case "/control/dhcp/status":
		s.reply(w, map[string]any{"enabled": false})
	case "/control/dns_info":
		s.reply(w, map[string]any{
			"cache_enabled": true,
			"cache_size":    4194304,
			"upstream_dns":  []any{"https://dns10.quad9.net/dns-query"},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *MockAdGuardServer) reply(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
