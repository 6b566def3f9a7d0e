package adguard

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is a parsed AdGuard Home server version. The zero value means
// "unknown/oldest" and gates off every version-dependent feature, so a
// malformed version string can never enable an API the server lacks.
//
// Known feature thresholds:
//   - 0.107.30: stats and query log configuration APIs
//   - 0.107.52: Ecosia safe search engine
//   - 0.107.56: blocked-services schedules, client search API
//   - 0.107.58: check_host client/qtype parameters
//   - 0.107.65: dns_info cache_enabled field
//   - 0.107.68: query log response_status filter, rewrite enabled field
type Version struct {
	Raw        string `json:"raw"`
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
}

// Accepts v0.107.43, 0.107.43 and 0.107.43-beta.1 style strings.
var versionPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([a-zA-Z0-9.-]+))?`)

// ParseVersion parses a free-form version string. Unparseable or empty
// input yields the zero version instead of an error.
func ParseVersion(raw string) Version {
	v := Version{Raw: raw}
	match := versionPattern.FindStringSubmatch(raw)
	if match == nil {
		return v
	}
	v.Major, _ = strconv.Atoi(match[1])
	v.Minor, _ = strconv.Atoi(match[2])
	v.Patch, _ = strconv.Atoi(match[3])
	v.Prerelease = match[4]
	return v
}

// String returns the raw version string, or "unknown" when none was parsed.
func (v Version) String() string {
	if v.Raw == "" {
		return "unknown"
	}
	return v.Raw
}

// IsZero reports whether the version is the unknown/oldest sentinel.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

// Compare orders two versions by their numeric (major, minor, patch)
// triples. The prerelease suffix is informational and never compared.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return sign(v.Major - other.Major)
	}
	if v.Minor != other.Minor {
		return sign(v.Minor - other.Minor)
	}
	return sign(v.Patch - other.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// AtLeast reports whether the version is at or above the given triple.
func (v Version) AtLeast(major, minor, patch int) bool {
	return v.Compare(Version{Major: major, Minor: minor, Patch: patch}) >= 0
}

// Equals reports whether two versions share the same numeric triple.
func (v Version) Equals(other Version) bool {
	return v.Compare(other) == 0
}

// Triple returns the numeric triple formatted as MAJOR.MINOR.PATCH.
func (v Version) Triple() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// SupportsStatsConfig reports stats configuration API availability (0.107.30+).
func (v Version) SupportsStatsConfig() bool {
	return v.AtLeast(0, 107, 30)
}

// SupportsQuerylogConfig reports query log configuration API availability (0.107.30+).
func (v Version) SupportsQuerylogConfig() bool {
	return v.AtLeast(0, 107, 30)
}

// SupportsEcosiaSafeSearch reports Ecosia safe search support (0.107.52+).
func (v Version) SupportsEcosiaSafeSearch() bool {
	return v.AtLeast(0, 107, 52)
}

// SupportsBlockedServicesSchedule reports blocked-services scheduling (0.107.56+).
func (v Version) SupportsBlockedServicesSchedule() bool {
	return v.AtLeast(0, 107, 56)
}

// SupportsClientSearch reports the clients/search API (0.107.56+).
func (v Version) SupportsClientSearch() bool {
	return v.AtLeast(0, 107, 56)
}

// SupportsCheckHostParams reports check_host client/qtype parameters (0.107.58+).
func (v Version) SupportsCheckHostParams() bool {
	return v.AtLeast(0, 107, 58)
}

// SupportsCacheEnabled reports the dns_info cache_enabled field (0.107.65+).
func (v Version) SupportsCacheEnabled() bool {
	return v.AtLeast(0, 107, 65)
}

// SupportsQuerylogResponseStatus reports the query log response_status filter (0.107.68+).
func (v Version) SupportsQuerylogResponseStatus() bool {
	return v.AtLeast(0, 107, 68)
}

// SupportsRewriteEnabled reports the rewrite enabled field (0.107.68+).
func (v Version) SupportsRewriteEnabled() bool {
	return v.AtLeast(0, 107, 68)
}

// FeatureSummary lists every feature flag for diagnostics output.
func (v Version) FeatureSummary() map[string]bool {
	return map[string]bool{
		"stats_config":              v.SupportsStatsConfig(),
		"querylog_config":           v.SupportsQuerylogConfig(),
		"ecosia_safesearch":         v.SupportsEcosiaSafeSearch(),
		"blocked_services_schedule": v.SupportsBlockedServicesSchedule(),
		"client_search":             v.SupportsClientSearch(),
		"check_host_params":         v.SupportsCheckHostParams(),
		"cache_enabled":             v.SupportsCacheEnabled(),
		"querylog_response_status":  v.SupportsQuerylogResponseStatus(),
		"rewrite_enabled":           v.SupportsRewriteEnabled(),
	}
}
