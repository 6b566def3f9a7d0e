package coordinator

import (
	"time"

	"adguardmon/internal/adguard"
)

// Snapshot is one complete aggregated result of a polling cycle. Status and
// stats are required: a snapshot only exists when both fetched. Every other
// field is optional and left nil/empty when its fetch failed that cycle.
// Snapshots are never mutated after construction; each cycle builds a fresh
// one and swaps it in atomically.
type Snapshot struct {
	Status *adguard.ServerStatus `json:"status"`
	Stats  *adguard.Stats        `json:"stats"`

	Filtering *adguard.FilteringStatus `json:"filtering,omitempty"`
	DNSInfo   *adguard.DNSInfo         `json:"dns_info,omitempty"`

	BlockedServices         []string                 `json:"blocked_services,omitempty"`
	BlockedServicesSchedule map[string]any           `json:"blocked_services_schedule,omitempty"`
	AvailableServices       []adguard.BlockedService `json:"available_services,omitempty"`

	Clients  []adguard.ClientConfig `json:"clients,omitempty"`
	DHCP     *adguard.DHCPStatus    `json:"dhcp,omitempty"`
	Rewrites []adguard.DNSRewrite   `json:"rewrites,omitempty"`
	QueryLog []map[string]any       `json:"query_log,omitempty"`

	StatsConfig    map[string]any `json:"stats_config,omitempty"`
	QueryLogConfig map[string]any `json:"querylog_config,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Version returns the server version parsed from the snapshot's status.
func (s *Snapshot) Version() adguard.Version {
	if s == nil || s.Status == nil {
		return adguard.ParseVersion("")
	}
	return adguard.ParseVersion(s.Status.Version)
}

// Summary is a condensed, display-oriented view of a snapshot.
type Summary struct {
	TotalQueries   int64              `json:"total_queries"`
	BlockedTotal   int64              `json:"blocked_total"`
	BlockedPercent float64            `json:"blocked_percent"`
	AvgLatencyMS   float64            `json:"avg_latency_ms"`
	TopQueried     []adguard.TopEntry `json:"top_queried"`
	TopBlocked     []adguard.TopEntry `json:"top_blocked"`
	TopClients     []adguard.TopEntry `json:"top_clients"`
	Protection     bool               `json:"protection_enabled"`
	Version        string             `json:"version"`
}

// Summarize condenses a snapshot for dashboard consumers. Top lists are
// truncated to topLimit entries, preserving their original rank order.
func Summarize(snap *Snapshot, topLimit int) *Summary {
	if snap == nil || snap.Stats == nil {
		return nil
	}
	stats := snap.Stats
	blocked := stats.BlockedFiltering + stats.ReplacedSafeBrowsing +
		stats.ReplacedParental + stats.ReplacedSafeSearch
	percent := 0.0
	if stats.DNSQueries > 0 {
		percent = float64(blocked) / float64(stats.DNSQueries) * 100
	}
	summary := &Summary{
		TotalQueries:   stats.DNSQueries,
		BlockedTotal:   blocked,
		BlockedPercent: percent,
		AvgLatencyMS:   stats.AvgProcessingTime * 1000,
		TopQueried:     truncate(stats.TopQueriedDomains, topLimit),
		TopBlocked:     truncate(stats.TopBlockedDomains, topLimit),
		TopClients:     truncate(stats.TopClients, topLimit),
		Version:        snap.Version().String(),
	}
	if snap.Status != nil {
		summary.Protection = snap.Status.ProtectionEnabled
	}
	return summary
}

func truncate(entries []adguard.TopEntry, limit int) []adguard.TopEntry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[:limit]
}
