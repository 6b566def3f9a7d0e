package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adguardmon/internal/adguard"
)

func TestSummarize(t *testing.T) {
	snap := &Snapshot{
		Status: &adguard.ServerStatus{ProtectionEnabled: true, Version: "v0.107.43"},
		Stats: &adguard.Stats{
			DNSQueries:           10000,
			BlockedFiltering:     1000,
			ReplacedSafeBrowsing: 100,
			ReplacedParental:     50,
			ReplacedSafeSearch:   50,
			AvgProcessingTime:    0.0123,
			TopQueriedDomains: []adguard.TopEntry{
				{Key: "a.example", Count: 5},
				{Key: "b.example", Count: 4},
				{Key: "c.example", Count: 3},
			},
		},
	}

	summary := Summarize(snap, 2)
	require.NotNil(t, summary)
	assert.Equal(t, int64(10000), summary.TotalQueries)
	assert.Equal(t, int64(1200), summary.BlockedTotal)
	assert.InDelta(t, 12.0, summary.BlockedPercent, 0.001)
	assert.InDelta(t, 12.3, summary.AvgLatencyMS, 0.001)
	assert.True(t, summary.Protection)
	assert.Equal(t, "v0.107.43", summary.Version)

	// Truncation keeps rank order.
	require.Len(t, summary.TopQueried, 2)
	assert.Equal(t, "a.example", summary.TopQueried[0].Key)
	assert.Equal(t, "b.example", summary.TopQueried[1].Key)

	t.Run("zero queries avoid division by zero", func(t *testing.T) {
		summary := Summarize(&Snapshot{Stats: &adguard.Stats{}}, 10)
		require.NotNil(t, summary)
		assert.Zero(t, summary.BlockedPercent)
	})

	t.Run("nil snapshot", func(t *testing.T) {
		assert.Nil(t, Summarize(nil, 10))
	})

	t.Run("zero limit keeps everything", func(t *testing.T) {
		summary := Summarize(snap, 0)
		require.NotNil(t, summary)
		assert.Len(t, summary.TopQueried, 3)
	})
}

func TestSnapshot_Version(t *testing.T) {
	var nilSnap *Snapshot
	assert.True(t, nilSnap.Version().IsZero())

	snap := &Snapshot{Status: &adguard.ServerStatus{Version: "v0.107.52"}}
	assert.Equal(t, "0.107.52", snap.Version().Triple())
	assert.True(t, snap.Version().SupportsEcosiaSafeSearch())
}
