package adguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		v := ParseVersion("0.107.43")
		assert.Equal(t, 0, v.Major)
		assert.Equal(t, 107, v.Minor)
		assert.Equal(t, 43, v.Patch)
		assert.Empty(t, v.Prerelease)
	})

	t.Run("v prefix", func(t *testing.T) {
		v := ParseVersion("v0.107.43")
		assert.Equal(t, "0.107.43", v.Triple())
	})

	t.Run("prerelease suffix", func(t *testing.T) {
		v := ParseVersion("0.108.0-b.1")
		assert.Equal(t, 108, v.Minor)
		assert.Equal(t, "b.1", v.Prerelease)
	})

	t.Run("garbage yields zero", func(t *testing.T) {
		v := ParseVersion("not a version")
		assert.True(t, v.IsZero())
		assert.Equal(t, "not a version", v.Raw)
	})

	t.Run("empty yields zero", func(t *testing.T) {
		v := ParseVersion("")
		assert.True(t, v.IsZero())
		assert.Equal(t, "unknown", v.String())
	})
}

func TestVersion_Compare(t *testing.T) {
	older := ParseVersion("0.107.43")
	newer := ParseVersion("0.107.52")

	assert.Equal(t, -1, older.Compare(newer))
	assert.Equal(t, 1, newer.Compare(older))
	assert.Equal(t, 0, older.Compare(ParseVersion("v0.107.43")))

	// Prerelease suffixes never affect ordering.
	assert.True(t, ParseVersion("0.108.0-b.1").Equals(ParseVersion("0.108.0")))
}

func TestVersion_AtLeast(t *testing.T) {
	v := ParseVersion("0.107.52")
	assert.True(t, v.AtLeast(0, 107, 52))
	assert.True(t, v.AtLeast(0, 107, 30))
	assert.False(t, v.AtLeast(0, 107, 56))
	assert.False(t, v.AtLeast(1, 0, 0))

	// The zero version sits below every threshold.
	assert.False(t, Version{}.AtLeast(0, 0, 1))
	assert.True(t, Version{}.AtLeast(0, 0, 0))
}

func TestVersion_FeatureGates(t *testing.T) {
	tests := []struct {
		version string
		feature string
		want    bool
	}{
		{"0.107.29", "stats_config", false},
		{"0.107.30", "stats_config", true},
		{"0.107.30", "querylog_config", true},
		{"0.107.51", "ecosia_safesearch", false},
		{"0.107.52", "ecosia_safesearch", true},
		{"0.107.55", "blocked_services_schedule", false},
		{"0.107.56", "blocked_services_schedule", true},
		{"0.107.56", "client_search", true},
		{"0.107.57", "check_host_params", false},
		{"0.107.58", "check_host_params", true},
		{"0.107.64", "cache_enabled", false},
		{"0.107.65", "cache_enabled", true},
		{"0.107.67", "querylog_response_status", false},
		{"0.107.68", "querylog_response_status", true},
		{"0.107.68", "rewrite_enabled", true},
		{"garbage", "rewrite_enabled", false},
	}

	for _, tt := range tests {
		summary := ParseVersion(tt.version).FeatureSummary()
		assert.Equal(t, tt.want, summary[tt.feature],
			"version %s feature %s", tt.version, tt.feature)
	}
}
