package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adguardmon/internal/adguard"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *adguard.MockClient) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	mock := adguard.NewMockClient()
	mock.StatusData = adguard.ServerStatus{
		Running:           true,
		ProtectionEnabled: true,
		Version:           "v0.107.43",
	}
	mock.StatsData = adguard.Stats{DNSQueries: 1000, BlockedFiltering: 100}
	mock.BlockedIDs = []string{"facebook", "tiktok"}
	mock.ServicesCatalog = []adguard.BlockedService{
		{ID: "facebook", Name: "Facebook"},
		{ID: "tiktok", Name: "TikTok"},
		{ID: "youtube", Name: "YouTube"},
	}
	mock.ClientsData = []adguard.ClientConfig{
		{Name: "Kids Tablet", IDs: []string{"192.168.1.20"}, UseGlobalSettings: true},
	}

	coord := New(Config{
		InstanceID:    "home",
		Host:          "192.168.1.2",
		Interval:      30 * time.Second,
		QueryLogLimit: 100,
	}, mock, logger)
	return coord, mock
}

func TestCoordinator_Setup(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	require.NoError(t, coord.Setup(context.Background()))
	assert.Equal(t, "0.107.43", coord.ServerVersion().Triple())
	assert.Len(t, coord.AvailableServices(), 3)

	t.Run("auth failure", func(t *testing.T) {
		coord, mock := newTestCoordinator(t)
		mock.SetError("Status", &adguard.AuthError{StatusCode: 401, Message: "invalid credentials"})
		err := coord.Setup(context.Background())
		assert.ErrorIs(t, err, ErrAuthFailed)
	})
}

func TestCoordinator_Refresh(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	require.NoError(t, coord.Setup(context.Background()))

	require.NoError(t, coord.Refresh(context.Background()))

	snap := coord.Snapshot()
	require.NotNil(t, snap)
	require.NotNil(t, snap.Status)
	assert.True(t, snap.Status.ProtectionEnabled)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, int64(1000), snap.Stats.DNSQueries)
	assert.Equal(t, []string{"facebook", "tiktok"}, snap.BlockedServices)
	assert.Len(t, snap.Clients, 1)
	assert.Nil(t, coord.LastError())
	assert.False(t, snap.UpdatedAt.IsZero())

	// Query log fetch uses the configured page size.
	for _, call := range mock.Calls() {
		if call.Method == "QueryLog" {
			assert.Equal(t, 100, call.Args["limit"])
		}
	}
}

func TestCoordinator_RefreshRequiredFailure(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	require.NoError(t, coord.Setup(context.Background()))
	require.NoError(t, coord.Refresh(context.Background()))
	previous := coord.Snapshot()

	mock.SetError("Stats", &adguard.ConnError{Message: "connection refused"})
	err := coord.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.ErrorIs(t, coord.LastError(), ErrUpdateFailed)

	// The previous snapshot stays visible through the outage.
	assert.Same(t, previous, coord.Snapshot())

	// Recovery clears the error and publishes a fresh snapshot.
	mock.SetError("Stats", nil)
	require.NoError(t, coord.Refresh(context.Background()))
	assert.Nil(t, coord.LastError())
	assert.NotSame(t, previous, coord.Snapshot())
}

func TestCoordinator_RefreshOptionalFailure(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	require.NoError(t, coord.Setup(context.Background()))

	// DHCP down must not fail the cycle, only leave its field empty.
	mock.SetError("DHCPStatus", &adguard.ConnError{Message: "dhcp unavailable"})
	require.NoError(t, coord.Refresh(context.Background()))

	snap := coord.Snapshot()
	require.NotNil(t, snap)
	assert.Nil(t, snap.DHCP)
	assert.NotNil(t, snap.Status)
	assert.NotNil(t, snap.Filtering)
	assert.Equal(t, []string{"facebook", "tiktok"}, snap.BlockedServices)
	assert.Nil(t, coord.LastError())
}

func TestCoordinator_RefreshAuthFailureSkipsOptionalFetches(t *testing.T) {
	coord, mock := newTestCoordinator(t)

	mock.SetError("Status", &adguard.AuthError{StatusCode: 401, Message: "invalid credentials"})
	err := coord.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)

	// A required-fetch auth failure aborts before any optional fetch runs.
	assert.Zero(t, mock.CallCount("FilteringStatus"))
	assert.Zero(t, mock.CallCount("DNSInfo"))
	assert.Zero(t, mock.CallCount("Clients"))
	assert.Zero(t, mock.CallCount("DHCPStatus"))
	assert.Zero(t, mock.CallCount("QueryLog"))
}

func TestCoordinator_RefreshRecoversServiceCatalog(t *testing.T) {
	coord, mock := newTestCoordinator(t)

	// Setup fails on the catalog fetch; the poll loop must fill it in.
	mock.SetError("AvailableServices", &adguard.ConnError{Message: "connection refused"})
	err := coord.Setup(context.Background())
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.Empty(t, coord.AvailableServices())

	// Catalog still unreachable: the cycle succeeds without one.
	require.NoError(t, coord.Refresh(context.Background()))
	assert.Empty(t, coord.Snapshot().AvailableServices)

	// Once reachable the next cycle caches it for good.
	mock.SetError("AvailableServices", nil)
	require.NoError(t, coord.Refresh(context.Background()))
	assert.Len(t, coord.AvailableServices(), 3)
	assert.Len(t, coord.Snapshot().AvailableServices, 3)

	// Cached catalogs are not re-fetched on later cycles.
	calls := mock.CallCount("AvailableServices")
	require.NoError(t, coord.Refresh(context.Background()))
	assert.Equal(t, calls, mock.CallCount("AvailableServices"))
}

func TestCoordinator_RefreshOptionalAuthFailureAborts(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	require.NoError(t, coord.Setup(context.Background()))

	// Auth failure on any fetch means the credentials are bad; the whole
	// cycle aborts instead of publishing a partial snapshot.
	mock.SetError("Clients", &adguard.AuthError{StatusCode: 403, Message: "forbidden"})
	err := coord.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Nil(t, coord.Snapshot())
}

func TestCoordinator_BlockService(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coord.BlockService(ctx, "youtube"))
	assert.Equal(t, []string{"facebook", "tiktok", "youtube"}, mock.BlockedIDs)

	t.Run("already blocked is a no-op", func(t *testing.T) {
		before := mock.CallCount("SetBlockedServices")
		require.NoError(t, coord.BlockService(ctx, "facebook"))
		assert.Equal(t, before, mock.CallCount("SetBlockedServices"))
	})
}

func TestCoordinator_UnblockService(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coord.UnblockService(ctx, "facebook"))
	assert.Equal(t, []string{"tiktok"}, mock.BlockedIDs)

	t.Run("not blocked is a no-op", func(t *testing.T) {
		before := mock.CallCount("SetBlockedServices")
		require.NoError(t, coord.UnblockService(ctx, "netflix"))
		assert.Equal(t, before, mock.CallCount("SetBlockedServices"))
	})
}

func TestCoordinator_Actions(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coord.SetProtection(ctx, false, 60000))
	require.NoError(t, coord.SetSafeBrowsing(ctx, true))
	require.NoError(t, coord.SetParental(ctx, true))
	require.NoError(t, coord.SetFiltering(ctx, true, 24))
	require.NoError(t, coord.AddRewrite(ctx, "nas.lan", "192.168.1.5"))

	assert.Equal(t, 1, mock.CallCount("SetProtection"))
	assert.Equal(t, 1, mock.CallCount("SetSafeBrowsing"))
	assert.Equal(t, 1, mock.CallCount("AddRewrite"))

	t.Run("failures are classified", func(t *testing.T) {
		mock.SetError("SetProtection", &adguard.AuthError{StatusCode: 401})
		assert.ErrorIs(t, coord.SetProtection(ctx, true, 0), ErrAuthFailed)

		mock.SetError("SetProtection", &adguard.ConnError{Message: "down"})
		assert.ErrorIs(t, coord.SetProtection(ctx, true, 0), ErrUpdateFailed)
	})
}

func TestCoordinator_SetClientFlag(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, coord.Setup(ctx))
	require.NoError(t, coord.Refresh(ctx))

	require.NoError(t, coord.SetClientFlag(ctx, "Kids Tablet", "parental", true))
	assert.Equal(t, 1, mock.CallCount("UpdateClient"))

	t.Run("unknown client", func(t *testing.T) {
		err := coord.SetClientFlag(ctx, "kids tablet", "parental", true)
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("unknown flag", func(t *testing.T) {
		err := coord.SetClientFlag(ctx, "Kids Tablet", "bogus", true)
		assert.ErrorContains(t, err, "unknown client flag")
	})

	t.Run("no snapshot yet", func(t *testing.T) {
		coord, _ := newTestCoordinator(t)
		err := coord.SetClientFlag(ctx, "Kids Tablet", "parental", true)
		assert.ErrorIs(t, err, ErrUpdateFailed)
	})
}

func TestCoordinator_Listeners(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	require.NoError(t, coord.Setup(context.Background()))

	var gotID string
	var gotSnap *Snapshot
	coord.AddListener(func(instanceID string, snap *Snapshot) {
		gotID = instanceID
		gotSnap = snap
	})

	require.NoError(t, coord.Refresh(context.Background()))
	assert.Equal(t, "home", gotID)
	assert.Same(t, coord.Snapshot(), gotSnap)
}

func TestCoordinator_RequestRefreshCoalesces(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	// Multiple pending requests collapse into one; none of them block.
	coord.RequestRefresh()
	coord.RequestRefresh()
	coord.RequestRefresh()

	select {
	case <-coord.refreshCh:
	default:
		t.Fatal("expected a pending refresh request")
	}
	select {
	case <-coord.refreshCh:
		t.Fatal("expected requests to coalesce into one")
	default:
	}
}

func TestCoordinator_DeviceInfo(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	info := coord.DeviceInfo()
	assert.Equal(t, "home", info.ID)
	assert.Equal(t, "AdGuard Home (192.168.1.2)", info.Name)
	assert.Equal(t, "AdGuard", info.Manufacturer)
	assert.Equal(t, "unknown", info.SWVersion)

	require.NoError(t, coord.Setup(context.Background()))
	require.NoError(t, coord.Refresh(context.Background()))
	assert.Equal(t, "v0.107.43", coord.DeviceInfo().SWVersion)
}

func TestCoordinator_Run(t *testing.T) {
	coord, mock := newTestCoordinator(t)
	require.NoError(t, coord.Setup(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	// The first cycle runs immediately.
	require.Eventually(t, func() bool {
		return coord.Snapshot() != nil
	}, time.Second, 10*time.Millisecond)

	// An out-of-band request triggers another cycle without waiting for
	// the 30s ticker.
	before := mock.CallCount("Stats")
	coord.RequestRefresh()
	require.Eventually(t, func() bool {
		return mock.CallCount("Stats") > before
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
