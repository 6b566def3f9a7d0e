package adguard

// Response models for the AdGuard Home control API. Each model has a
// FromPayload factory that is total over arbitrary payloads: missing keys,
// wrong-shaped values, and extra keys all decode to per-field defaults.
// Shape variance between server versions (safe search as bool vs object,
// rewrite enabled flag only on newer servers) is resolved here, never by
// callers.

// ServerStatus represents the /control/status response.
type ServerStatus struct {
	ProtectionEnabled   bool     `json:"protection_enabled"`
	Running             bool     `json:"running"`
	SafeBrowsingEnabled bool     `json:"safebrowsing_enabled"`
	ParentalEnabled     bool     `json:"parental_enabled"`
	SafeSearchEnabled   bool     `json:"safesearch_enabled"`
	DNSAddresses        []string `json:"dns_addresses"`
	DNSPort             int      `json:"dns_port"`
	HTTPPort            int      `json:"http_port"`
	Version             string   `json:"version"`
	Language            string   `json:"language"`
	DHCPAvailable       bool     `json:"dhcp_available"`
}

// safeSearchEnabled normalizes the two safe search payload shapes: legacy
// servers report a bare boolean, current ones an object with per-engine
// flags plus an "enabled" key.
func safeSearchEnabled(m map[string]any) bool {
	switch v := m["safesearch"].(type) {
	case bool:
		return v
	case map[string]any:
		return asBool(v, "enabled", false)
	}
	return asBool(m, "safesearch_enabled", false)
}

// ServerStatusFromPayload builds a ServerStatus from an untyped payload.
func ServerStatusFromPayload(m map[string]any) ServerStatus {
	if m == nil {
		m = map[string]any{}
	}
	return ServerStatus{
		ProtectionEnabled:   asBool(m, "protection_enabled", false),
		Running:             asBool(m, "running", false),
		SafeBrowsingEnabled: asBool(m, "safebrowsing_enabled", false),
		ParentalEnabled:     asBool(m, "parental_enabled", false),
		SafeSearchEnabled:   safeSearchEnabled(m),
		DNSAddresses:        asStringSlice(m, "dns_addresses"),
		DNSPort:             asInt(m, "dns_port", 53),
		HTTPPort:            asInt(m, "http_port", 3000),
		Version:             asString(m, "version", ""),
		Language:            asString(m, "language", "en"),
		DHCPAvailable:       asBool(m, "dhcp_available", false),
	}
}

// TopEntry is one ranked entry from a stats top list. Slice order is rank
// order and must be preserved.
type TopEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// TopTime is one ranked entry from the upstream average-time list.
type TopTime struct {
	Key     string  `json:"key"`
	Seconds float64 `json:"seconds"`
}

func topEntries(m map[string]any, key string) []TopEntry {
	entries := asMapSlice(m, key)
	out := make([]TopEntry, 0, len(entries))
	for _, entry := range entries {
		for k, v := range entry {
			count, ok := v.(float64)
			if !ok {
				continue
			}
			out = append(out, TopEntry{Key: k, Count: int64(count)})
		}
	}
	return out
}

func topTimes(m map[string]any, key string) []TopTime {
	entries := asMapSlice(m, key)
	out := make([]TopTime, 0, len(entries))
	for _, entry := range entries {
		for k, v := range entry {
			secs, ok := v.(float64)
			if !ok {
				continue
			}
			out = append(out, TopTime{Key: k, Seconds: secs})
		}
	}
	return out
}

// Stats represents the /control/stats response.
type Stats struct {
	DNSQueries           int64   `json:"dns_queries"`
	BlockedFiltering     int64   `json:"blocked_filtering"`
	ReplacedSafeBrowsing int64   `json:"replaced_safebrowsing"`
	ReplacedParental     int64   `json:"replaced_parental"`
	ReplacedSafeSearch   int64   `json:"replaced_safesearch"`
	AvgProcessingTime    float64 `json:"avg_processing_time"`

	TopQueriedDomains []TopEntry `json:"top_queried_domains"`
	TopBlockedDomains []TopEntry `json:"top_blocked_domains"`
	TopClients        []TopEntry `json:"top_clients"`

	TopUpstreamsResponses []TopEntry `json:"top_upstreams_responses"`
	TopUpstreamsAvgTime   []TopTime  `json:"top_upstreams_avg_time"`

	TimeUnits string `json:"time_units"`
}

// StatsFromPayload builds a Stats from an untyped payload.
func StatsFromPayload(m map[string]any) Stats {
	return Stats{
		DNSQueries:           int64(asFloat(m, "num_dns_queries", 0)),
		BlockedFiltering:     int64(asFloat(m, "num_blocked_filtering", 0)),
		ReplacedSafeBrowsing: int64(asFloat(m, "num_replaced_safebrowsing", 0)),
		ReplacedParental:     int64(asFloat(m, "num_replaced_parental", 0)),
		ReplacedSafeSearch:   int64(asFloat(m, "num_replaced_safesearch", 0)),
		AvgProcessingTime:    asFloat(m, "avg_processing_time", 0),

		TopQueriedDomains: topEntries(m, "top_queried_domains"),
		TopBlockedDomains: topEntries(m, "top_blocked_domains"),
		TopClients:        topEntries(m, "top_clients"),

		TopUpstreamsResponses: topEntries(m, "top_upstreams_responses"),
		TopUpstreamsAvgTime:   topTimes(m, "top_upstreams_avg_time"),

		TimeUnits: asString(m, "time_units", "hours"),
	}
}

// FilteringStatus represents the /control/filtering/status response. Filter
// list descriptors are kept as raw mappings; the API only guarantees url,
// name, enabled, rules_count and id keys.
type FilteringStatus struct {
	Enabled          bool             `json:"enabled"`
	Interval         int              `json:"interval"`
	Filters          []map[string]any `json:"filters"`
	WhitelistFilters []map[string]any `json:"whitelist_filters"`
	UserRules        []string         `json:"user_rules"`
}

// FilteringStatusFromPayload builds a FilteringStatus from an untyped payload.
func FilteringStatusFromPayload(m map[string]any) FilteringStatus {
	return FilteringStatus{
		Enabled:          asBool(m, "enabled", false),
		Interval:         asInt(m, "interval", 24),
		Filters:          asMapSlice(m, "filters"),
		WhitelistFilters: asMapSlice(m, "whitelist_filters"),
		UserRules:        asStringSlice(m, "user_rules"),
	}
}

// ClientConfig represents one entry of the /control/clients response. The
// name is the server-side identity key and must match exactly.
type ClientConfig struct {
	Name                     string   `json:"name"`
	IDs                      []string `json:"ids"`
	UID                      string   `json:"uid"`
	UseGlobalSettings        bool     `json:"use_global_settings"`
	FilteringEnabled         bool     `json:"filtering_enabled"`
	ParentalEnabled          bool     `json:"parental_enabled"`
	SafeBrowsingEnabled      bool     `json:"safebrowsing_enabled"`
	SafeSearchEnabled        bool     `json:"safesearch_enabled"`
	UseGlobalBlockedServices bool     `json:"use_global_blocked_services"`
	BlockedServices          []string `json:"blocked_services"`
	Tags                     []string `json:"tags"`
	UpstreamsCacheEnabled    bool     `json:"upstreams_cache_enabled"`
	UpstreamsCacheSize       int      `json:"upstreams_cache_size"`
}

// ClientConfigFromPayload builds a ClientConfig from an untyped payload.
func ClientConfigFromPayload(m map[string]any) ClientConfig {
	return ClientConfig{
		Name:                     asString(m, "name", ""),
		IDs:                      asStringSlice(m, "ids"),
		UID:                      asString(m, "uid", ""),
		UseGlobalSettings:        asBool(m, "use_global_settings", true),
		FilteringEnabled:         asBool(m, "filtering_enabled", true),
		ParentalEnabled:          asBool(m, "parental_enabled", false),
		SafeBrowsingEnabled:      asBool(m, "safebrowsing_enabled", false),
		SafeSearchEnabled:        safeSearchEnabled(m),
		UseGlobalBlockedServices: asBool(m, "use_global_blocked_services", true),
		BlockedServices:          asStringSlice(m, "blocked_services"),
		Tags:                     asStringSlice(m, "tags"),
		UpstreamsCacheEnabled:    asBool(m, "upstreams_cache_enabled", true),
		UpstreamsCacheSize:       asInt(m, "upstreams_cache_size", 0),
	}
}

// toPayload converts the client config into the write shape expected by the
// clients/add and clients/update endpoints.
func (c ClientConfig) toPayload() map[string]any {
	blocked := c.BlockedServices
	if blocked == nil {
		blocked = []string{}
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	ids := c.IDs
	if ids == nil {
		ids = []string{}
	}
	data := map[string]any{
		"name":                        c.Name,
		"ids":                         ids,
		"use_global_settings":         c.UseGlobalSettings,
		"filtering_enabled":           c.FilteringEnabled,
		"parental_enabled":            c.ParentalEnabled,
		"safebrowsing_enabled":        c.SafeBrowsingEnabled,
		"safesearch_enabled":          c.SafeSearchEnabled,
		"use_global_blocked_services": c.UseGlobalBlockedServices,
		"blocked_services":            blocked,
		"tags":                        tags,
	}
	if !c.UseGlobalBlockedServices {
		// Newer servers require a schedule when per-client services are used.
		data["blocked_services_schedule"] = map[string]any{"time_zone": "Local"}
	}
	return data
}

// BlockedService is one entry of the blocked-services catalog.
type BlockedService struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	IconSVG string   `json:"icon_svg"`
	Rules   []string `json:"rules"`
	GroupID string   `json:"group_id"`
}

// BlockedServiceFromPayload builds a BlockedService from an untyped payload.
func BlockedServiceFromPayload(m map[string]any) BlockedService {
	return BlockedService{
		ID:      asString(m, "id", ""),
		Name:    asString(m, "name", ""),
		IconSVG: asString(m, "icon_svg", ""),
		Rules:   asStringSlice(m, "rules"),
		GroupID: asString(m, "group_id", ""),
	}
}

// DNSRewrite is one DNS override rule. The server has no rewrite id; the
// (domain, answer) pair is the identity used for delete and compare.
type DNSRewrite struct {
	Domain  string `json:"domain"`
	Answer  string `json:"answer"`
	Enabled bool   `json:"enabled"`
}

// DNSRewriteFromPayload builds a DNSRewrite from an untyped payload. The
// enabled flag only exists on v0.107.68+ servers and defaults to true so
// older servers behave unchanged.
func DNSRewriteFromPayload(m map[string]any) DNSRewrite {
	return DNSRewrite{
		Domain:  asString(m, "domain", ""),
		Answer:  asString(m, "answer", ""),
		Enabled: asBool(m, "enabled", true),
	}
}

// SafeSearchSettings is the per-engine safe search configuration.
type SafeSearchSettings struct {
	Enabled    bool `json:"enabled"`
	Bing       bool `json:"bing"`
	DuckDuckGo bool `json:"duckduckgo"`
	Ecosia     bool `json:"ecosia"`
	Google     bool `json:"google"`
	Pixabay    bool `json:"pixabay"`
	Yandex     bool `json:"yandex"`
	YouTube    bool `json:"youtube"`
}

// SafeSearchSettingsFromPayload builds SafeSearchSettings from an untyped payload.
func SafeSearchSettingsFromPayload(m map[string]any) SafeSearchSettings {
	return SafeSearchSettings{
		Enabled:    asBool(m, "enabled", false),
		Bing:       asBool(m, "bing", true),
		DuckDuckGo: asBool(m, "duckduckgo", true),
		Ecosia:     asBool(m, "ecosia", true),
		Google:     asBool(m, "google", true),
		Pixabay:    asBool(m, "pixabay", true),
		Yandex:     asBool(m, "yandex", true),
		YouTube:    asBool(m, "youtube", true),
	}
}

func (s SafeSearchSettings) toPayload() map[string]any {
	return map[string]any{
		"enabled":    s.Enabled,
		"bing":       s.Bing,
		"duckduckgo": s.DuckDuckGo,
		"ecosia":     s.Ecosia,
		"google":     s.Google,
		"pixabay":    s.Pixabay,
		"yandex":     s.Yandex,
		"youtube":    s.YouTube,
	}
}

// DNSInfo represents the /control/dns_info response. cache_enabled only
// exists on v0.107.65+; older servers are inferred from cache_size > 0.
type DNSInfo struct {
	CacheEnabled  bool     `json:"cache_enabled"`
	CacheSize     int      `json:"cache_size"`
	CacheTTLMin   int      `json:"cache_ttl_min"`
	CacheTTLMax   int      `json:"cache_ttl_max"`
	UpstreamDNS   []string `json:"upstream_dns"`
	BootstrapDNS  []string `json:"bootstrap_dns"`
	RateLimit     int      `json:"rate_limit"`
	BlockingMode  string   `json:"blocking_mode"`
	EDNSCSEnabled bool     `json:"edns_cs_enabled"`
	DNSSECEnabled bool     `json:"dnssec_enabled"`
}

// DNSInfoFromPayload builds a DNSInfo from an untyped payload.
func DNSInfoFromPayload(m map[string]any) DNSInfo {
	cacheSize := asInt(m, "cache_size", 4194304)
	return DNSInfo{
		CacheEnabled:  asBool(m, "cache_enabled", cacheSize > 0),
		CacheSize:     cacheSize,
		CacheTTLMin:   asInt(m, "cache_ttl_min", 0),
		CacheTTLMax:   asInt(m, "cache_ttl_max", 0),
		UpstreamDNS:   asStringSlice(m, "upstream_dns"),
		BootstrapDNS:  asStringSlice(m, "bootstrap_dns"),
		RateLimit:     asInt(m, "rate_limit", 20),
		BlockingMode:  asString(m, "blocking_mode", "default"),
		EDNSCSEnabled: asBool(m, "edns_cs_enabled", false),
		DNSSECEnabled: asBool(m, "dnssec_enabled", false),
	}
}

// DHCPLease is one DHCP lease (dynamic or static).
type DHCPLease struct {
	MAC      string `json:"mac"`
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	Expires  string `json:"expires"`
}

// DHCPLeaseFromPayload builds a DHCPLease from an untyped payload.
func DHCPLeaseFromPayload(m map[string]any) DHCPLease {
	return DHCPLease{
		MAC:      asString(m, "mac", ""),
		IP:       asString(m, "ip", ""),
		Hostname: asString(m, "hostname", ""),
		Expires:  asString(m, "expires", ""),
	}
}

// DHCPV4Config is the DHCP server's IPv4 range configuration.
type DHCPV4Config struct {
	GatewayIP     string `json:"gateway_ip"`
	SubnetMask    string `json:"subnet_mask"`
	RangeStart    string `json:"range_start"`
	RangeEnd      string `json:"range_end"`
	LeaseDuration int    `json:"lease_duration"`
}

// DHCPV4ConfigFromPayload builds a DHCPV4Config from an untyped payload.
func DHCPV4ConfigFromPayload(m map[string]any) DHCPV4Config {
	return DHCPV4Config{
		GatewayIP:     asString(m, "gateway_ip", ""),
		SubnetMask:    asString(m, "subnet_mask", ""),
		RangeStart:    asString(m, "range_start", ""),
		RangeEnd:      asString(m, "range_end", ""),
		LeaseDuration: asInt(m, "lease_duration", 0),
	}
}

// DHCPV6Config is the DHCP server's IPv6 range configuration.
type DHCPV6Config struct {
	RangeStart    string `json:"range_start"`
	LeaseDuration int    `json:"lease_duration"`
}

// DHCPV6ConfigFromPayload builds a DHCPV6Config from an untyped payload.
func DHCPV6ConfigFromPayload(m map[string]any) DHCPV6Config {
	return DHCPV6Config{
		RangeStart:    asString(m, "range_start", ""),
		LeaseDuration: asInt(m, "lease_duration", 0),
	}
}

// DHCPStatus represents the /control/dhcp/status response.
type DHCPStatus struct {
	Enabled       bool          `json:"enabled"`
	InterfaceName string        `json:"interface_name"`
	V4            *DHCPV4Config `json:"v4,omitempty"`
	V6            *DHCPV6Config `json:"v6,omitempty"`
	Leases        []DHCPLease   `json:"leases"`
	StaticLeases  []DHCPLease   `json:"static_leases"`
}

// DHCPStatusFromPayload builds a DHCPStatus from an untyped payload.
func DHCPStatusFromPayload(m map[string]any) DHCPStatus {
	status := DHCPStatus{
		Enabled:       asBool(m, "enabled", false),
		InterfaceName: asString(m, "interface_name", ""),
	}
	if v4 := asMap(m, "v4"); v4 != nil {
		cfg := DHCPV4ConfigFromPayload(v4)
		status.V4 = &cfg
	}
	if v6 := asMap(m, "v6"); v6 != nil {
		cfg := DHCPV6ConfigFromPayload(v6)
		status.V6 = &cfg
	}
	for _, lease := range asMapSlice(m, "leases") {
		status.Leases = append(status.Leases, DHCPLeaseFromPayload(lease))
	}
	for _, lease := range asMapSlice(m, "static_leases") {
		status.StaticLeases = append(status.StaticLeases, DHCPLeaseFromPayload(lease))
	}
	return status
}
