package adguard

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// Control API endpoint paths. All paths sit under /control and require
// Basic Auth when the server has credentials configured.
const (
	apiStatus = "/control/status"

	apiProtection = "/control/protection"

	apiStats             = "/control/stats"
	apiStatsConfig       = "/control/stats/config"
	apiStatsConfigUpdate = "/control/stats/config/update"
	apiStatsReset        = "/control/stats_reset"

	apiQueryLog             = "/control/querylog"
	apiQueryLogConfig       = "/control/querylog/config"
	apiQueryLogConfigUpdate = "/control/querylog/config/update"
	apiQueryLogClear        = "/control/querylog_clear"

	apiSafeBrowsingEnable  = "/control/safebrowsing/enable"
	apiSafeBrowsingDisable = "/control/safebrowsing/disable"

	apiParentalEnable  = "/control/parental/enable"
	apiParentalDisable = "/control/parental/disable"

	apiSafeSearchStatus   = "/control/safesearch/status"
	apiSafeSearchSettings = "/control/safesearch/settings"

	apiFilteringStatus    = "/control/filtering/status"
	apiFilteringConfig    = "/control/filtering/config"
	apiFilteringAddURL    = "/control/filtering/add_url"
	apiFilteringRemoveURL = "/control/filtering/remove_url"
	apiFilteringSetURL    = "/control/filtering/set_url"
	apiFilteringRefresh   = "/control/filtering/refresh"
	apiCheckHost          = "/control/filtering/check_host"

	apiClients       = "/control/clients"
	apiClientsAdd    = "/control/clients/add"
	apiClientsUpdate = "/control/clients/update"
	apiClientsDelete = "/control/clients/delete"
	apiClientsSearch = "/control/clients/search"

	apiBlockedServicesAll    = "/control/blocked_services/all"
	apiBlockedServicesList   = "/control/blocked_services/list"
	apiBlockedServicesSet    = "/control/blocked_services/set"
	apiBlockedServicesUpdate = "/control/blocked_services/update"

	apiRewriteList   = "/control/rewrite/list"
	apiRewriteAdd    = "/control/rewrite/add"
	apiRewriteDelete = "/control/rewrite/delete"
	apiRewriteUpdate = "/control/rewrite/update"

	apiDHCPStatus = "/control/dhcp/status"

	apiDNSInfo   = "/control/dns_info"
	apiDNSConfig = "/control/dns_config"
)

// QueryLogRequest carries the pagination and filter parameters for a query
// log page fetch. Parameters are forwarded verbatim; no client-side
// re-paging or re-clamping happens here.
type QueryLogRequest struct {
	Limit          int
	Offset         int
	Search         string
	ResponseStatus string
}

// API is the typed surface of the AdGuard Home control API consumed by the
// coordinator and the action layer.
type API interface {
	Status(ctx context.Context) (*ServerStatus, error)
	Stats(ctx context.Context) (*Stats, error)

	SetProtection(ctx context.Context, enabled bool, durationMS int64) error
	SetSafeBrowsing(ctx context.Context, enabled bool) error
	SetParental(ctx context.Context, enabled bool) error
	SafeSearchSettings(ctx context.Context) (*SafeSearchSettings, error)
	SetSafeSearchSettings(ctx context.Context, settings SafeSearchSettings) error
	SetSafeSearch(ctx context.Context, enabled bool) error

	FilteringStatus(ctx context.Context) (*FilteringStatus, error)
	SetFiltering(ctx context.Context, enabled bool, intervalHours int) error
	AddFilterURL(ctx context.Context, name, filterURL string, whitelist bool) error
	RemoveFilterURL(ctx context.Context, filterURL string, whitelist bool) error
	SetFilterEnabled(ctx context.Context, filterURL string, enabled, whitelist bool) error
	RefreshFilters(ctx context.Context, whitelist bool) error
	CheckHost(ctx context.Context, name, client, qtype string) (map[string]any, error)

	Clients(ctx context.Context) ([]ClientConfig, error)
	AddClient(ctx context.Context, client ClientConfig) error
	UpdateClient(ctx context.Context, name string, client ClientConfig) error
	DeleteClient(ctx context.Context, name string) error
	SearchClients(ctx context.Context, ids []string) ([]map[string]any, error)

	AvailableServices(ctx context.Context) ([]BlockedService, error)
	BlockedServices(ctx context.Context) ([]string, error)
	BlockedServicesWithSchedule(ctx context.Context) (map[string]any, error)
	SetBlockedServices(ctx context.Context, ids []string) error
	SetBlockedServicesWithSchedule(ctx context.Context, ids []string, schedule map[string]any) error

	Rewrites(ctx context.Context) ([]DNSRewrite, error)
	AddRewrite(ctx context.Context, domain, answer string) error
	DeleteRewrite(ctx context.Context, domain, answer string) error
	UpdateRewrite(ctx context.Context, old, updated DNSRewrite) error
	SetRewriteEnabled(ctx context.Context, domain, answer string, enabled bool) error

	QueryLog(ctx context.Context, req QueryLogRequest) ([]map[string]any, error)
	ClearQueryLog(ctx context.Context) error

	DHCPStatus(ctx context.Context) (*DHCPStatus, error)

	DNSInfo(ctx context.Context) (*DNSInfo, error)
	SetDNSConfig(ctx context.Context, config map[string]any) error

	StatsConfig(ctx context.Context) (map[string]any, error)
	SetStatsConfig(ctx context.Context, config map[string]any) error
	ResetStats(ctx context.Context) error

	QueryLogConfig(ctx context.Context) (map[string]any, error)
	SetQueryLogConfig(ctx context.Context, config map[string]any) error

	TestConnection(ctx context.Context) bool
}

// Client talks to one AdGuard Home server. The HTTP session is injected;
// the client never constructs its own transport or TLS policy.
type Client struct {
	host     string
	port     int
	username string
	password string
	baseURL  string
	session  *http.Client
	logger   *zap.Logger
}

var _ API = (*Client)(nil)

// NewClient creates a client for the server at host:port. A nil session
// makes every call fail fast with a ConnError.
func NewClient(host string, port int, username, password string, useTLS bool, session *http.Client, logger *zap.Logger) *Client {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		baseURL:  fmt.Sprintf("%s://%s:%d", scheme, host, port),
		session:  session,
		logger:   logger,
	}
}

// Host returns the configured server host.
func (c *Client) Host() string {
	return c.host
}

// BaseURL returns the scheme://host:port prefix used for every request.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) authHeader() string {
	if c.username == "" || c.password == "" {
		return ""
	}
	credentials := c.username + ":" + c.password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

// request performs one HTTP call and returns the decoded JSON payload, or
// nil for an empty 2xx body. 401/403 map to AuthError, everything else that
// goes wrong maps to ConnError.
func (c *Client) request(ctx context.Context, method, path string, body any) (any, error) {
	if c.session == nil {
		return nil, newConnError("no session available", nil)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, newConnError("failed to encode request body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, newConnError("failed to build request", err)
	}
	// Servers since v0.107.15 reject bodyless POSTs that carry a
	// Content-Type header, so only set it when a body is present.
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := c.authHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, newConnError(fmt.Sprintf("request to %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "invalid credentials"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newConnError(fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, path), nil)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newConnError("failed to read response body", err)
	}
	if len(content) == 0 {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(content, &decoded); err != nil {
		return nil, newConnError(fmt.Sprintf("failed to decode response from %s", path), err)
	}
	return decoded, nil
}

func (c *Client) get(ctx context.Context, path string) (any, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	_, err := c.request(ctx, http.MethodPost, path, body)
	return err
}

func (c *Client) put(ctx context.Context, path string, body any) error {
	_, err := c.request(ctx, http.MethodPut, path, body)
	return err
}

// getMap fetches a payload that is expected to be a JSON object. Any other
// shape decodes to an empty map.
func (c *Client) getMap(ctx context.Context, path string) (map[string]any, error) {
	data, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if m, ok := data.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{}, nil
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (*ServerStatus, error) {
	data, err := c.getMap(ctx, apiStatus)
	if err != nil {
		return nil, err
	}
	status := ServerStatusFromPayload(data)
	return &status, nil
}

// Stats fetches the aggregate query statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	data, err := c.getMap(ctx, apiStats)
	if err != nil {
		return nil, err
	}
	stats := StatsFromPayload(data)
	return &stats, nil
}

// SetProtection toggles DNS protection. When disabling, a positive
// durationMS asks the server to auto-resume after that many milliseconds.
func (c *Client) SetProtection(ctx context.Context, enabled bool, durationMS int64) error {
	body := map[string]any{"enabled": enabled}
	if !enabled && durationMS > 0 {
		body["duration"] = durationMS
	}
	return c.post(ctx, apiProtection, body)
}

// SetSafeBrowsing toggles the safe browsing filter.
func (c *Client) SetSafeBrowsing(ctx context.Context, enabled bool) error {
	if enabled {
		return c.post(ctx, apiSafeBrowsingEnable, nil)
	}
	return c.post(ctx, apiSafeBrowsingDisable, nil)
}

// SetParental toggles parental control.
func (c *Client) SetParental(ctx context.Context, enabled bool) error {
	if enabled {
		return c.post(ctx, apiParentalEnable, nil)
	}
	return c.post(ctx, apiParentalDisable, nil)
}

// SafeSearchSettings fetches the per-engine safe search configuration.
func (c *Client) SafeSearchSettings(ctx context.Context) (*SafeSearchSettings, error) {
	data, err := c.getMap(ctx, apiSafeSearchStatus)
	if err != nil {
		return nil, err
	}
	settings := SafeSearchSettingsFromPayload(data)
	return &settings, nil
}

// SetSafeSearchSettings writes the per-engine safe search configuration.
func (c *Client) SetSafeSearchSettings(ctx context.Context, settings SafeSearchSettings) error {
	return c.put(ctx, apiSafeSearchSettings, settings.toPayload())
}

// SetSafeSearch toggles safe search while preserving the per-engine flags
// by reading the current settings first.
func (c *Client) SetSafeSearch(ctx context.Context, enabled bool) error {
	settings, err := c.SafeSearchSettings(ctx)
	if err != nil {
		return err
	}
	settings.Enabled = enabled
	return c.SetSafeSearchSettings(ctx, *settings)
}

// FilteringStatus fetches the filter-list configuration and user rules.
func (c *Client) FilteringStatus(ctx context.Context) (*FilteringStatus, error) {
	data, err := c.getMap(ctx, apiFilteringStatus)
	if err != nil {
		return nil, err
	}
	status := FilteringStatusFromPayload(data)
	return &status, nil
}

// SetFiltering toggles filtering and sets the list refresh interval (hours).
func (c *Client) SetFiltering(ctx context.Context, enabled bool, intervalHours int) error {
	return c.post(ctx, apiFilteringConfig, map[string]any{
		"enabled":  enabled,
		"interval": intervalHours,
	})
}

// AddFilterURL subscribes the server to a new filter list.
func (c *Client) AddFilterURL(ctx context.Context, name, filterURL string, whitelist bool) error {
	return c.post(ctx, apiFilteringAddURL, map[string]any{
		"name":      name,
		"url":       filterURL,
		"whitelist": whitelist,
	})
}

// RemoveFilterURL unsubscribes the server from a filter list.
func (c *Client) RemoveFilterURL(ctx context.Context, filterURL string, whitelist bool) error {
	return c.post(ctx, apiFilteringRemoveURL, map[string]any{
		"url":       filterURL,
		"whitelist": whitelist,
	})
}

// SetFilterEnabled enables or disables one subscribed filter list.
func (c *Client) SetFilterEnabled(ctx context.Context, filterURL string, enabled, whitelist bool) error {
	return c.post(ctx, apiFilteringSetURL, map[string]any{
		"url": filterURL,
		"data": map[string]any{
			"enabled": enabled,
			"url":     filterURL,
		},
		"whitelist": whitelist,
	})
}

// RefreshFilters asks the server to re-download filter lists.
func (c *Client) RefreshFilters(ctx context.Context, whitelist bool) error {
	return c.post(ctx, apiFilteringRefresh, map[string]any{"whitelist": whitelist})
}

// CheckHost asks the filtering engine how a hypothetical query for name
// would be handled. client and qtype are only meaningful on servers that
// support them; version gating is the caller's concern.
func (c *Client) CheckHost(ctx context.Context, name, client, qtype string) (map[string]any, error) {
	params := url.Values{}
	params.Set("name", name)
	if client != "" {
		params.Set("client", client)
	}
	if qtype != "" {
		params.Set("qtype", qtype)
	}
	return c.getMap(ctx, apiCheckHost+"?"+params.Encode())
}

// Clients fetches every configured client.
func (c *Client) Clients(ctx context.Context) ([]ClientConfig, error) {
	data, err := c.getMap(ctx, apiClients)
	if err != nil {
		return nil, err
	}
	raw := asMapSlice(data, "clients")
	clients := make([]ClientConfig, 0, len(raw))
	for _, entry := range raw {
		clients = append(clients, ClientConfigFromPayload(entry))
	}
	return clients, nil
}

// AddClient creates a new client configuration.
func (c *Client) AddClient(ctx context.Context, client ClientConfig) error {
	return c.post(ctx, apiClientsAdd, client.toPayload())
}

// UpdateClient replaces the client currently named name.
func (c *Client) UpdateClient(ctx context.Context, name string, client ClientConfig) error {
	return c.post(ctx, apiClientsUpdate, map[string]any{
		"name": name,
		"data": client.toPayload(),
	})
}

// DeleteClient removes a client by name.
func (c *Client) DeleteClient(ctx context.Context, name string) error {
	return c.post(ctx, apiClientsDelete, map[string]any{"name": name})
}

// SearchClients looks up clients by identifier (IP, MAC or name) using the
// clients/search API (v0.107.56+).
func (c *Client) SearchClients(ctx context.Context, ids []string) ([]map[string]any, error) {
	lookups := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		lookups = append(lookups, map[string]any{"id": id})
	}
	data, err := c.request(ctx, http.MethodPost, apiClientsSearch, map[string]any{"clients": lookups})
	if err != nil {
		return nil, err
	}
	raw, ok := data.([]any)
	if !ok {
		return nil, nil
	}
	results := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if entry, ok := item.(map[string]any); ok {
			results = append(results, entry)
		}
	}
	return results, nil
}

// AvailableServices fetches the full blocked-service catalog.
func (c *Client) AvailableServices(ctx context.Context) ([]BlockedService, error) {
	data, err := c.getMap(ctx, apiBlockedServicesAll)
	if err != nil {
		return nil, err
	}
	raw := asMapSlice(data, "blocked_services")
	services := make([]BlockedService, 0, len(raw))
	for _, entry := range raw {
		services = append(services, BlockedServiceFromPayload(entry))
	}
	return services, nil
}

// BlockedServices returns the currently blocked service ids, normalizing
// the legacy bare-list and the current {ids, schedule} response shapes.
func (c *Client) BlockedServices(ctx context.Context) ([]string, error) {
	data, err := c.get(ctx, apiBlockedServicesList)
	if err != nil {
		return nil, err
	}
	return normalizeServiceIDs(data), nil
}

// BlockedServicesWithSchedule returns the full {ids, schedule} payload,
// wrapping legacy bare-list responses into the current shape.
func (c *Client) BlockedServicesWithSchedule(ctx context.Context) (map[string]any, error) {
	data, err := c.get(ctx, apiBlockedServicesList)
	if err != nil {
		return nil, err
	}
	if m, ok := data.(map[string]any); ok {
		return m, nil
	}
	ids := make([]any, 0)
	if list, ok := data.([]any); ok {
		ids = list
	}
	return map[string]any{"ids": ids, "schedule": map[string]any{}}, nil
}

func normalizeServiceIDs(data any) []string {
	var raw []any
	switch v := data.(type) {
	case map[string]any:
		raw, _ = v["ids"].([]any)
	case []any:
		raw = v
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		if id, ok := item.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetBlockedServices replaces the blocked service id set. Writes always use
// the current {ids: [...]} shape.
func (c *Client) SetBlockedServices(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return c.post(ctx, apiBlockedServicesSet, map[string]any{"ids": ids})
}

// SetBlockedServicesWithSchedule replaces the blocked service set together
// with its pause schedule (v0.107.56+). Version gating is the caller's
// concern.
func (c *Client) SetBlockedServicesWithSchedule(ctx context.Context, ids []string, schedule map[string]any) error {
	if ids == nil {
		ids = []string{}
	}
	if schedule == nil {
		schedule = map[string]any{}
	}
	return c.put(ctx, apiBlockedServicesUpdate, map[string]any{
		"ids":      ids,
		"schedule": schedule,
	})
}

// Rewrites fetches every DNS rewrite rule.
func (c *Client) Rewrites(ctx context.Context) ([]DNSRewrite, error) {
	data, err := c.get(ctx, apiRewriteList)
	if err != nil {
		return nil, err
	}
	raw, _ := data.([]any)
	rewrites := make([]DNSRewrite, 0, len(raw))
	for _, item := range raw {
		if entry, ok := item.(map[string]any); ok {
			rewrites = append(rewrites, DNSRewriteFromPayload(entry))
		}
	}
	return rewrites, nil
}

// AddRewrite creates a DNS rewrite rule.
func (c *Client) AddRewrite(ctx context.Context, domain, answer string) error {
	return c.post(ctx, apiRewriteAdd, map[string]any{"domain": domain, "answer": answer})
}

// DeleteRewrite removes the rewrite identified by its (domain, answer) pair.
func (c *Client) DeleteRewrite(ctx context.Context, domain, answer string) error {
	return c.post(ctx, apiRewriteDelete, map[string]any{"domain": domain, "answer": answer})
}

// UpdateRewrite replaces the rule identified by old with updated
// (v0.107.68+). The enabled flag is always written; on older rules it is
// the defaulted true from the read path.
func (c *Client) UpdateRewrite(ctx context.Context, old, updated DNSRewrite) error {
	return c.put(ctx, apiRewriteUpdate, map[string]any{
		"target": map[string]any{"domain": old.Domain, "answer": old.Answer},
		"update": map[string]any{
			"domain":  updated.Domain,
			"answer":  updated.Answer,
			"enabled": updated.Enabled,
		},
	})
}

// SetRewriteEnabled toggles one rewrite rule in place (v0.107.68+).
func (c *Client) SetRewriteEnabled(ctx context.Context, domain, answer string, enabled bool) error {
	rule := DNSRewrite{Domain: domain, Answer: answer, Enabled: enabled}
	return c.UpdateRewrite(ctx, DNSRewrite{Domain: domain, Answer: answer}, rule)
}

// QueryLog fetches one page of query log entries. Pagination and filter
// parameters are forwarded verbatim in the request query string.
func (c *Client) QueryLog(ctx context.Context, req QueryLogRequest) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(req.Limit))
	params.Set("offset", strconv.Itoa(req.Offset))
	if req.Search != "" {
		params.Set("search", req.Search)
	}
	if req.ResponseStatus != "" {
		params.Set("response_status", req.ResponseStatus)
	}
	data, err := c.getMap(ctx, apiQueryLog+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return asMapSlice(data, "data"), nil
}

// ClearQueryLog removes every query log entry.
func (c *Client) ClearQueryLog(ctx context.Context) error {
	return c.post(ctx, apiQueryLogClear, map[string]any{})
}

// DHCPStatus fetches the DHCP server state and lease tables.
func (c *Client) DHCPStatus(ctx context.Context) (*DHCPStatus, error) {
	data, err := c.getMap(ctx, apiDHCPStatus)
	if err != nil {
		return nil, err
	}
	status := DHCPStatusFromPayload(data)
	return &status, nil
}

// DNSInfo fetches the DNS server configuration.
func (c *Client) DNSInfo(ctx context.Context) (*DNSInfo, error) {
	data, err := c.getMap(ctx, apiDNSInfo)
	if err != nil {
		return nil, err
	}
	info := DNSInfoFromPayload(data)
	return &info, nil
}

// SetDNSConfig writes DNS server configuration fields (cache, DNSSEC,
// EDNS client subnet, rate limit, blocking mode).
func (c *Client) SetDNSConfig(ctx context.Context, config map[string]any) error {
	return c.post(ctx, apiDNSConfig, config)
}

// StatsConfig fetches the statistics retention configuration (v0.107.30+).
func (c *Client) StatsConfig(ctx context.Context) (map[string]any, error) {
	return c.getMap(ctx, apiStatsConfig)
}

// SetStatsConfig updates the statistics retention configuration (v0.107.30+).
func (c *Client) SetStatsConfig(ctx context.Context, config map[string]any) error {
	if len(config) == 0 {
		return nil
	}
	return c.put(ctx, apiStatsConfigUpdate, config)
}

// ResetStats clears all statistics counters.
func (c *Client) ResetStats(ctx context.Context) error {
	return c.post(ctx, apiStatsReset, map[string]any{})
}

// QueryLogConfig fetches the query log configuration (v0.107.30+).
func (c *Client) QueryLogConfig(ctx context.Context) (map[string]any, error) {
	return c.getMap(ctx, apiQueryLogConfig)
}

// SetQueryLogConfig updates the query log configuration (v0.107.30+).
func (c *Client) SetQueryLogConfig(ctx context.Context, config map[string]any) error {
	if len(config) == 0 {
		return nil
	}
	return c.put(ctx, apiQueryLogConfigUpdate, config)
}

// TestConnection attempts a status fetch and reports success. Only the
// client's own error kinds are swallowed.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err == nil {
		return true
	}
	switch err.(type) {
	case *AuthError, *ConnError:
		if c.logger != nil {
			c.logger.Debug("Connection test failed", zap.Error(err))
		}
	default:
		if c.logger != nil {
			c.logger.Warn("Connection test failed with unexpected error", zap.Error(err))
		}
	}
	return false
}
