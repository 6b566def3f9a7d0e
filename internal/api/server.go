// Package api exposes the aggregated AdGuard Home state over a local HTTP
// and WebSocket interface: read endpoints for snapshots and summaries,
// action endpoints for the server toggles and list management, and a push
// stream that delivers every fresh snapshot.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"adguardmon/internal/coordinator"
	"adguardmon/internal/icons"
	"adguardmon/internal/instances"
)

// Server provides the HTTP API over the instance registry.
type Server struct {
	registry      *instances.Registry
	logger        *zap.Logger
	server        *http.Server
	hub           *hub
	iconFillColor string
}

// NewServer creates the API server and subscribes it to snapshot updates
// from every registered coordinator.
func NewServer(registry *instances.Registry, logger *zap.Logger, port int, iconFillColor string) *Server {
	s := &Server{
		registry:      registry,
		logger:        logger,
		hub:           newHub(logger),
		iconFillColor: iconFillColor,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/instances", s.handleInstances)
	mux.HandleFunc("GET /api/instances/{id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/instances/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /api/instances/{id}/services", s.handleServices)
	mux.HandleFunc("GET /api/instances/{id}/check_host", s.handleCheckHost)
	mux.HandleFunc("POST /api/instances/{id}/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/instances/{id}/protection", s.handleProtection)
	mux.HandleFunc("POST /api/instances/{id}/safebrowsing", s.handleToggle("safebrowsing"))
	mux.HandleFunc("POST /api/instances/{id}/parental", s.handleToggle("parental"))
	mux.HandleFunc("POST /api/instances/{id}/safesearch", s.handleToggle("safesearch"))
	mux.HandleFunc("POST /api/instances/{id}/filtering", s.handleFiltering)
	mux.HandleFunc("POST /api/instances/{id}/filters", s.handleAddFilter)
	mux.HandleFunc("DELETE /api/instances/{id}/filters", s.handleRemoveFilter)
	mux.HandleFunc("POST /api/instances/{id}/filters/refresh", s.handleRefreshFilters)
	mux.HandleFunc("POST /api/instances/{id}/services/{service}/block", s.handleBlockService)
	mux.HandleFunc("POST /api/instances/{id}/services/{service}/unblock", s.handleUnblockService)
	mux.HandleFunc("POST /api/instances/{id}/rewrites", s.handleAddRewrite)
	mux.HandleFunc("DELETE /api/instances/{id}/rewrites", s.handleDeleteRewrite)
	mux.HandleFunc("POST /api/instances/{id}/clients/{name}/flags", s.handleClientFlag)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	for _, coord := range registry.All() {
		coord.AddListener(s.pushSnapshot)
	}

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("API server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.closeAll()
	return s.server.Shutdown(ctx)
}

// pushSnapshot is the coordinator listener feeding the WebSocket stream.
func (s *Server) pushSnapshot(instanceID string, snap *coordinator.Snapshot) {
	s.hub.broadcast(map[string]any{
		"instance_id": instanceID,
		"snapshot":    snap,
	})
}

func (s *Server) coordinatorFor(w http.ResponseWriter, r *http.Request) *coordinator.Coordinator {
	id := r.PathValue("id")
	coord := s.registry.Get(id)
	if coord == nil {
		http.Error(w, fmt.Sprintf("unknown instance %q", id), http.StatusNotFound)
		return nil
	}
	return coord
}

func (s *Server) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeActionError maps coordinator failures to HTTP statuses: auth
// failures to 401, everything else to 502.
func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, coordinator.ErrAuthFailed) {
		status = http.StatusUnauthorized
	}
	http.Error(w, err.Error(), status)
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var body T
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return body, false
	}
	return body, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type instanceInfo struct {
	coordinator.DeviceInfo
	Healthy   bool   `json:"healthy"`
	LastError string `json:"last_error,omitempty"`
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	result := make([]instanceInfo, 0, s.registry.Len())
	for _, coord := range s.registry.All() {
		info := instanceInfo{DeviceInfo: coord.DeviceInfo()}
		if err := coord.LastError(); err != nil {
			info.LastError = err.Error()
		} else {
			info.Healthy = coord.Snapshot() != nil
		}
		result = append(result, info)
	}
	s.writeJSON(w, result)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	snap := coord.Snapshot()
	if snap == nil {
		http.Error(w, "no snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, snap)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	topLimit := 10
	if raw := r.URL.Query().Get("top"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &topLimit); err != nil {
			http.Error(w, "invalid top parameter", http.StatusBadRequest)
			return
		}
	}
	summary := coordinator.Summarize(coord.Snapshot(), topLimit)
	if summary == nil {
		http.Error(w, "no snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, summary)
}

type serviceEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Blocked bool   `json:"blocked"`
	Icon    string `json:"icon,omitempty"`
}

// handleServices returns the blocked-service catalog with normalized,
// theme-colored icons and each service's current blocked state.
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	blocked := make(map[string]bool)
	if snap := coord.Snapshot(); snap != nil {
		for _, id := range snap.BlockedServices {
			blocked[id] = true
		}
	}
	catalog := coord.AvailableServices()
	result := make([]serviceEntry, 0, len(catalog))
	for _, svc := range catalog {
		result = append(result, serviceEntry{
			ID:      svc.ID,
			Name:    svc.Name,
			Blocked: blocked[svc.ID],
			Icon:    icons.ProcessSVGIcon(svc.IconSVG, s.iconFillColor),
		})
	}
	s.writeJSON(w, result)
}

func (s *Server) handleCheckHost(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name parameter is required", http.StatusBadRequest)
		return
	}
	client := r.URL.Query().Get("client")
	qtype := r.URL.Query().Get("qtype")
	// client/qtype only work on servers that support them; drop them
	// silently on older servers instead of sending unknown parameters.
	if !coord.ServerVersion().SupportsCheckHostParams() {
		client = ""
		qtype = ""
	}
	result, err := coord.Client().CheckHost(r.Context(), name, client, qtype)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	coord.RequestRefresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleProtection(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	body, ok := decodeBody[struct {
		Enabled    bool  `json:"enabled"`
		DurationMS int64 `json:"duration_ms"`
	}](w, r)
	if !ok {
		return
	}
	if err := coord.SetProtection(r.Context(), body.Enabled, body.DurationMS); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleToggle serves the three plain enable/disable toggles.
func (s *Server) handleToggle(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coord := s.coordinatorFor(w, r)
		if coord == nil {
			return
		}
		body, ok := decodeBody[struct {
			Enabled bool `json:"enabled"`
		}](w, r)
		if !ok {
			return
		}
		var err error
		switch kind {
		case "safebrowsing":
			err = coord.SetSafeBrowsing(r.Context(), body.Enabled)
		case "parental":
			err = coord.SetParental(r.Context(), body.Enabled)
		case "safesearch":
			err = coord.SetSafeSearch(r.Context(), body.Enabled)
		}
		if err != nil {
			s.writeActionError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleFiltering(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	body, ok := decodeBody[struct {
		Enabled  bool `json:"enabled"`
		Interval int  `json:"interval"`
	}](w, r)
	if !ok {
		return
	}
	if body.Interval == 0 {
		body.Interval = 24
	}
	if err := coord.SetFiltering(r.Context(), body.Enabled, body.Interval); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAddFilter(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	body, ok := decodeBody[struct {
		Name      string `json:"name"`
		URL       string `json:"url"`
		Whitelist bool   `json:"whitelist"`
	}](w, r)
	if !ok {
		return
	}
	if body.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	if err := coord.AddFilterURL(r.Context(), body.Name, body.URL, body.Whitelist); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRemoveFilter(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	body, ok := decodeBody[struct {
		URL       string `json:"url"`
		Whitelist bool   `json:"whitelist"`
	}](w, r)
	if !ok {
		return
	}
	if body.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	if err := coord.RemoveFilterURL(r.Context(), body.URL, body.Whitelist); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRefreshFilters(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	if err := coord.RefreshFilters(r.Context(), false); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleBlockService(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	if err := coord.BlockService(r.Context(), r.PathValue("service")); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUnblockService(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	if err := coord.UnblockService(r.Context(), r.PathValue("service")); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAddRewrite(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	body, ok := decodeBody[struct {
		Domain string `json:"domain"`
		Answer string `json:"answer"`
	}](w, r)
	if !ok {
		return
	}
	if body.Domain == "" || body.Answer == "" {
		http.Error(w, "domain and answer are required", http.StatusBadRequest)
		return
	}
	if err := coord.AddRewrite(r.Context(), body.Domain, body.Answer); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeleteRewrite(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	body, ok := decodeBody[struct {
		Domain string `json:"domain"`
		Answer string `json:"answer"`
	}](w, r)
	if !ok {
		return
	}
	if body.Domain == "" || body.Answer == "" {
		http.Error(w, "domain and answer are required", http.StatusBadRequest)
		return
	}
	if err := coord.DeleteRewrite(r.Context(), body.Domain, body.Answer); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleClientFlag(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinatorFor(w, r)
	if coord == nil {
		return
	}
	body, ok := decodeBody[struct {
		Flag    string `json:"flag"`
		Enabled bool   `json:"enabled"`
	}](w, r)
	if !ok {
		return
	}
	if body.Flag == "" {
		http.Error(w, "flag is required", http.StatusBadRequest)
		return
	}
	if err := coord.SetClientFlag(r.Context(), r.PathValue("name"), body.Flag, body.Enabled); err != nil {
		s.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.add(conn)
	s.logger.Debug("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))
}
