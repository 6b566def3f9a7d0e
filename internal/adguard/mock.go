package adguard

import (
	"context"
	"sync"
)

// MockClient implements the API interface for testing. Responses are canned
// per resource, and per-method errors can be injected to simulate auth or
// connectivity failures. Every call is recorded for assertions.
type MockClient struct {
	mu sync.Mutex

	StatusData          ServerStatus
	StatsData           Stats
	FilteringData       FilteringStatus
	ClientsData         []ClientConfig
	ServicesCatalog     []BlockedService
	BlockedIDs          []string
	BlockedSchedule     map[string]any
	RewritesData        []DNSRewrite
	QueryLogData        []map[string]any
	DHCPData            DHCPStatus
	DNSInfoData         DNSInfo
	SafeSearchData      SafeSearchSettings
	StatsConfigData     map[string]any
	QueryLogConfigData  map[string]any
	CheckHostData       map[string]any
	SearchClientsData   []map[string]any

	// Errors maps a method name to the error it should return.
	Errors map[string]error

	calls []RecordedCall
}

// RecordedCall captures one method invocation and its arguments.
type RecordedCall struct {
	Method string
	Args   map[string]any
}

var _ API = (*MockClient)(nil)

// NewMockClient creates a mock with empty canned data.
func NewMockClient() *MockClient {
	return &MockClient{Errors: make(map[string]error)}
}

// SetError injects an error for the named method; nil clears it.
func (m *MockClient) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errors, method)
		return
	}
	m.Errors[method] = err
}

// Calls returns a copy of every recorded call.
func (m *MockClient) Calls() []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedCall(nil), m.calls...)
}

// CallCount returns how many times the named method was invoked.
func (m *MockClient) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

func (m *MockClient) record(method string, args map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, RecordedCall{Method: method, Args: args})
	return m.Errors[method]
}

func (m *MockClient) Status(ctx context.Context) (*ServerStatus, error) {
	if err := m.record("Status", nil); err != nil {
		return nil, err
	}
	status := m.StatusData
	return &status, nil
}

func (m *MockClient) Stats(ctx context.Context) (*Stats, error) {
	if err := m.record("Stats", nil); err != nil {
		return nil, err
	}
	stats := m.StatsData
	return &stats, nil
}

func (m *MockClient) SetProtection(ctx context.Context, enabled bool, durationMS int64) error {
	return m.record("SetProtection", map[string]any{"enabled": enabled, "duration_ms": durationMS})
}

func (m *MockClient) SetSafeBrowsing(ctx context.Context, enabled bool) error {
	return m.record("SetSafeBrowsing", map[string]any{"enabled": enabled})
}

func (m *MockClient) SetParental(ctx context.Context, enabled bool) error {
	return m.record("SetParental", map[string]any{"enabled": enabled})
}

func (m *MockClient) SafeSearchSettings(ctx context.Context) (*SafeSearchSettings, error) {
	if err := m.record("SafeSearchSettings", nil); err != nil {
		return nil, err
	}
	settings := m.SafeSearchData
	return &settings, nil
}

func (m *MockClient) SetSafeSearchSettings(ctx context.Context, settings SafeSearchSettings) error {
	return m.record("SetSafeSearchSettings", map[string]any{"enabled": settings.Enabled})
}

func (m *MockClient) SetSafeSearch(ctx context.Context, enabled bool) error {
	return m.record("SetSafeSearch", map[string]any{"enabled": enabled})
}

func (m *MockClient) FilteringStatus(ctx context.Context) (*FilteringStatus, error) {
	if err := m.record("FilteringStatus", nil); err != nil {
		return nil, err
	}
	status := m.FilteringData
	return &status, nil
}

func (m *MockClient) SetFiltering(ctx context.Context, enabled bool, intervalHours int) error {
	return m.record("SetFiltering", map[string]any{"enabled": enabled, "interval": intervalHours})
}

func (m *MockClient) AddFilterURL(ctx context.Context, name, filterURL string, whitelist bool) error {
	return m.record("AddFilterURL", map[string]any{"name": name, "url": filterURL, "whitelist": whitelist})
}

func (m *MockClient) RemoveFilterURL(ctx context.Context, filterURL string, whitelist bool) error {
	return m.record("RemoveFilterURL", map[string]any{"url": filterURL, "whitelist": whitelist})
}

func (m *MockClient) SetFilterEnabled(ctx context.Context, filterURL string, enabled, whitelist bool) error {
	return m.record("SetFilterEnabled", map[string]any{"url": filterURL, "enabled": enabled, "whitelist": whitelist})
}

func (m *MockClient) RefreshFilters(ctx context.Context, whitelist bool) error {
	return m.record("RefreshFilters", map[string]any{"whitelist": whitelist})
}

func (m *MockClient) CheckHost(ctx context.Context, name, client, qtype string) (map[string]any, error) {
	if err := m.record("CheckHost", map[string]any{"name": name, "client": client, "qtype": qtype}); err != nil {
		return nil, err
	}
	return m.CheckHostData, nil
}

func (m *MockClient) Clients(ctx context.Context) ([]ClientConfig, error) {
	if err := m.record("Clients", nil); err != nil {
		return nil, err
	}
	return append([]ClientConfig(nil), m.ClientsData...), nil
}

func (m *MockClient) AddClient(ctx context.Context, client ClientConfig) error {
	return m.record("AddClient", map[string]any{"name": client.Name})
}

func (m *MockClient) UpdateClient(ctx context.Context, name string, client ClientConfig) error {
	return m.record("UpdateClient", map[string]any{"name": name, "new_name": client.Name})
}

func (m *MockClient) DeleteClient(ctx context.Context, name string) error {
	return m.record("DeleteClient", map[string]any{"name": name})
}

func (m *MockClient) SearchClients(ctx context.Context, ids []string) ([]map[string]any, error) {
	if err := m.record("SearchClients", map[string]any{"ids": ids}); err != nil {
		return nil, err
	}
	return m.SearchClientsData, nil
}

func (m *MockClient) AvailableServices(ctx context.Context) ([]BlockedService, error) {
	if err := m.record("AvailableServices", nil); err != nil {
		return nil, err
	}
	return append([]BlockedService(nil), m.ServicesCatalog...), nil
}

func (m *MockClient) BlockedServices(ctx context.Context) ([]string, error) {
	if err := m.record("BlockedServices", nil); err != nil {
		return nil, err
	}
	return append([]string(nil), m.BlockedIDs...), nil
}

func (m *MockClient) BlockedServicesWithSchedule(ctx context.Context) (map[string]any, error) {
	if err := m.record("BlockedServicesWithSchedule", nil); err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(m.BlockedIDs))
	for _, id := range m.BlockedIDs {
		ids = append(ids, id)
	}
	schedule := m.BlockedSchedule
	if schedule == nil {
		schedule = map[string]any{}
	}
	return map[string]any{"ids": ids, "schedule": schedule}, nil
}

func (m *MockClient) SetBlockedServices(ctx context.Context, ids []string) error {
	if err := m.record("SetBlockedServices", map[string]any{"ids": ids}); err != nil {
		return err
	}
	m.mu.Lock()
	m.BlockedIDs = append([]string(nil), ids...)
	m.mu.Unlock()
	return nil
}

func (m *MockClient) SetBlockedServicesWithSchedule(ctx context.Context, ids []string, schedule map[string]any) error {
	if err := m.record("SetBlockedServicesWithSchedule", map[string]any{"ids": ids, "schedule": schedule}); err != nil {
		return err
	}
	m.mu.Lock()
	m.BlockedIDs = append([]string(nil), ids...)
	m.BlockedSchedule = schedule
	m.mu.Unlock()
	return nil
}

func (m *MockClient) Rewrites(ctx context.Context) ([]DNSRewrite, error) {
	if err := m.record("Rewrites", nil); err != nil {
		return nil, err
	}
	return append([]DNSRewrite(nil), m.RewritesData...), nil
}

func (m *MockClient) AddRewrite(ctx context.Context, domain, answer string) error {
	return m.record("AddRewrite", map[string]any{"domain": domain, "answer": answer})
}

func (m *MockClient) DeleteRewrite(ctx context.Context, domain, answer string) error {
	return m.record("DeleteRewrite", map[string]any{"domain": domain, "answer": answer})
}

func (m *MockClient) UpdateRewrite(ctx context.Context, old, updated DNSRewrite) error {
	return m.record("UpdateRewrite", map[string]any{
		"old_domain": old.Domain, "old_answer": old.Answer,
		"domain": updated.Domain, "answer": updated.Answer, "enabled": updated.Enabled,
	})
}

func (m *MockClient) SetRewriteEnabled(ctx context.Context, domain, answer string, enabled bool) error {
	return m.record("SetRewriteEnabled", map[string]any{"domain": domain, "answer": answer, "enabled": enabled})
}

func (m *MockClient) QueryLog(ctx context.Context, req QueryLogRequest) ([]map[string]any, error) {
	if err := m.record("QueryLog", map[string]any{"limit": req.Limit, "offset": req.Offset, "search": req.Search}); err != nil {
		return nil, err
	}
	return append([]map[string]any(nil), m.QueryLogData...), nil
}

func (m *MockClient) ClearQueryLog(ctx context.Context) error {
	return m.record("ClearQueryLog", nil)
}

func (m *MockClient) DHCPStatus(ctx context.Context) (*DHCPStatus, error) {
	if err := m.record("DHCPStatus", nil); err != nil {
		return nil, err
	}
	status := m.DHCPData
	return &status, nil
}

func (m *MockClient) DNSInfo(ctx context.Context) (*DNSInfo, error) {
	if err := m.record("DNSInfo", nil); err != nil {
		return nil, err
	}
	info := m.DNSInfoData
	return &info, nil
}

func (m *MockClient) SetDNSConfig(ctx context.Context, config map[string]any) error {
	return m.record("SetDNSConfig", map[string]any{"config": config})
}

func (m *MockClient) StatsConfig(ctx context.Context) (map[string]any, error) {
	if err := m.record("StatsConfig", nil); err != nil {
		return nil, err
	}
	return m.StatsConfigData, nil
}

func (m *MockClient) SetStatsConfig(ctx context.Context, config map[string]any) error {
	return m.record("SetStatsConfig", map[string]any{"config": config})
}

func (m *MockClient) ResetStats(ctx context.Context) error {
	return m.record("ResetStats", nil)
}

func (m *MockClient) QueryLogConfig(ctx context.Context) (map[string]any, error) {
	if err := m.record("QueryLogConfig", nil); err != nil {
		return nil, err
	}
	return m.QueryLogConfigData, nil
}

func (m *MockClient) SetQueryLogConfig(ctx context.Context, config map[string]any) error {
	return m.record("SetQueryLogConfig", map[string]any{"config": config})
}

func (m *MockClient) TestConnection(ctx context.Context) bool {
	_, err := m.Status(ctx)
	return err == nil
}
