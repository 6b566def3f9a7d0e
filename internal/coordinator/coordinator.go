// Package coordinator runs the polling loop for one AdGuard Home instance.
// Each cycle fetches the required resources (status, stats) followed by the
// optional resource groups, assembles them into an immutable Snapshot and
// swaps it in atomically. Optional fetch failures are isolated to their own
// snapshot field; required failures surface as ErrUpdateFailed or
// ErrAuthFailed and leave the previous snapshot in place.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"adguardmon/internal/adguard"
)

var (
	// ErrAuthFailed wraps authentication failures on a required fetch.
	// The host must treat it as "needs new credentials", never retry it.
	ErrAuthFailed = errors.New("adguard home authentication failed")

	// ErrUpdateFailed wraps connectivity or decode failures on a required
	// fetch. The cycle failed; the previous snapshot stays visible.
	ErrUpdateFailed = errors.New("adguard home update failed")
)

// DeviceInfo describes the monitored server for host-facing metadata.
type DeviceInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SWVersion    string `json:"sw_version"`
}

// Listener receives each freshly published snapshot.
type Listener func(instanceID string, snap *Snapshot)

// Coordinator polls one server on a fixed interval. It is driven by a
// single Run goroutine, so poll cycles never overlap; mutating actions
// request an out-of-band refresh instead of waiting for the next tick.
type Coordinator struct {
	instanceID    string
	host          string
	client        adguard.API
	logger        *zap.Logger
	interval      time.Duration
	queryLogLimit int

	mu            sync.RWMutex
	snapshot      *Snapshot
	lastErr       error
	serverVersion adguard.Version
	catalog       []adguard.BlockedService

	listenersMu sync.RWMutex
	listeners   []Listener

	refreshCh chan struct{}
}

// Config carries the per-instance coordinator settings. Validation (minimum
// interval, query log limit bounds) happens at config-load time, not here.
type Config struct {
	InstanceID    string
	Host          string
	Interval      time.Duration
	QueryLogLimit int
}

// New creates a coordinator for one server instance.
func New(cfg Config, client adguard.API, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		instanceID:    cfg.InstanceID,
		host:          cfg.Host,
		client:        client,
		logger:        logger,
		interval:      cfg.Interval,
		queryLogLimit: cfg.QueryLogLimit,
		refreshCh:     make(chan struct{}, 1),
	}
}

// InstanceID returns the configured instance identifier.
func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

// Client exposes the underlying API client for action handlers.
func (c *Coordinator) Client() adguard.API {
	return c.client
}

// Setup performs one-time initialization: detects the server version and
// caches the blocked-service catalog. When Setup fails the poll loop
// re-fetches the catalog each cycle until one attempt succeeds.
func (c *Coordinator) Setup(ctx context.Context) error {
	status, err := c.client.Status(ctx)
	if err != nil {
		return c.classify(err)
	}
	version := adguard.ParseVersion(status.Version)

	catalog, err := c.client.AvailableServices(ctx)
	if err != nil {
		return c.classify(err)
	}

	c.mu.Lock()
	c.serverVersion = version
	c.catalog = catalog
	c.mu.Unlock()

	c.logger.Info("Coordinator initialized",
		zap.String("instance", c.instanceID),
		zap.String("server_version", version.String()),
		zap.Int("available_services", len(catalog)))
	return nil
}

// classify maps client errors onto the coordinator's two failure signals.
func (c *Coordinator) classify(err error) error {
	var authErr *adguard.AuthError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
}

// Refresh runs one full poll cycle. On success or partial success the new
// snapshot replaces the previous one and listeners are notified; on a
// required-fetch failure the previous snapshot is left untouched.
func (c *Coordinator) Refresh(ctx context.Context) error {
	snap, err := c.fetch(ctx)
	if err != nil {
		classified := c.classify(err)
		c.mu.Lock()
		c.lastErr = classified
		c.mu.Unlock()
		return classified
	}

	c.mu.Lock()
	c.snapshot = snap
	c.lastErr = nil
	// Keep the detected version current; the server may have been
	// upgraded underneath us.
	if parsed := snap.Version(); !parsed.IsZero() {
		c.serverVersion = parsed
	}
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// fetch runs the sequential required-then-optional fetch order. Optional
// group failures are logged and leave their field absent.
func (c *Coordinator) fetch(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	status, err := c.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	snap.Status = status

	stats, err := c.client.Stats(ctx)
	if err != nil {
		return nil, err
	}
	snap.Stats = stats

	if filtering, err := c.client.FilteringStatus(ctx); err == nil {
		snap.Filtering = filtering
	} else if err = c.absorb("filtering status", err); err != nil {
		return nil, err
	}

	if info, err := c.client.DNSInfo(ctx); err == nil {
		snap.DNSInfo = info
	} else if err = c.absorb("dns info", err); err != nil {
		return nil, err
	}

	// Setup may have failed before the catalog was cached; re-fetch it
	// during the cycle until it sticks.
	c.mu.RLock()
	catalog := c.catalog
	c.mu.RUnlock()
	if catalog == nil {
		if fetched, err := c.client.AvailableServices(ctx); err == nil {
			catalog = fetched
			c.mu.Lock()
			c.catalog = fetched
			c.mu.Unlock()
		} else if err = c.absorb("service catalog", err); err != nil {
			return nil, err
		}
	}

	if blocked, err := c.client.BlockedServicesWithSchedule(ctx); err == nil {
		snap.BlockedServices = serviceIDs(blocked)
		if schedule, ok := blocked["schedule"].(map[string]any); ok {
			snap.BlockedServicesSchedule = schedule
		}
		snap.AvailableServices = catalog
	} else if err = c.absorb("blocked services", err); err != nil {
		return nil, err
	}

	if clients, err := c.client.Clients(ctx); err == nil {
		snap.Clients = clients
	} else if err = c.absorb("clients", err); err != nil {
		return nil, err
	}

	if dhcp, err := c.client.DHCPStatus(ctx); err == nil {
		snap.DHCP = dhcp
	} else if err = c.absorb("dhcp status", err); err != nil {
		return nil, err
	}

	if rewrites, err := c.client.Rewrites(ctx); err == nil {
		snap.Rewrites = rewrites
	} else if err = c.absorb("dns rewrites", err); err != nil {
		return nil, err
	}

	if entries, err := c.client.QueryLog(ctx, adguard.QueryLogRequest{Limit: c.queryLogLimit}); err == nil {
		snap.QueryLog = entries
	} else if err = c.absorb("query log", err); err != nil {
		return nil, err
	}

	version := adguard.ParseVersion(status.Version)
	if version.SupportsStatsConfig() {
		if cfg, err := c.client.StatsConfig(ctx); err == nil {
			snap.StatsConfig = cfg
		} else if err = c.absorb("stats config", err); err != nil {
			return nil, err
		}
	}
	if version.SupportsQuerylogConfig() {
		if cfg, err := c.client.QueryLogConfig(ctx); err == nil {
			snap.QueryLogConfig = cfg
		} else if err = c.absorb("query log config", err); err != nil {
			return nil, err
		}
	}

	snap.UpdatedAt = time.Now().UTC()
	return snap, nil
}

func serviceIDs(payload map[string]any) []string {
	raw, _ := payload["ids"].([]any)
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		if id, ok := item.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// absorb handles an optional-group failure. Connectivity failures are
// logged and leave the field absent; auth failures are returned unchanged
// so they abort the cycle.
func (c *Coordinator) absorb(resource string, err error) error {
	var authErr *adguard.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	c.logger.Debug("Optional resource fetch failed",
		zap.String("instance", c.instanceID),
		zap.String("resource", resource),
		zap.Error(err))
	return nil
}

// Run drives the polling loop until the context is cancelled. The first
// cycle runs immediately; afterwards cycles fire on the interval ticker or
// when RequestRefresh is called. All cycles run on this single goroutine,
// so no two cycles ever overlap.
func (c *Coordinator) Run(ctx context.Context) {
	c.runCycle(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCycle(ctx)
		case <-c.refreshCh:
			c.runCycle(ctx)
		}
	}
}

func (c *Coordinator) runCycle(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		if errors.Is(err, ErrAuthFailed) {
			c.logger.Error("Poll cycle failed: re-authentication required",
				zap.String("instance", c.instanceID),
				zap.Error(err))
			return
		}
		c.logger.Warn("Poll cycle failed",
			zap.String("instance", c.instanceID),
			zap.Error(err))
	}
}

// RequestRefresh schedules an out-of-band poll cycle. It never blocks; if a
// refresh is already pending the request coalesces into it.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the latest published snapshot, or nil before the first
// successful cycle.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastError returns the failure of the most recent cycle, or nil if it
// succeeded.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// ServerVersion returns the detected server version; the zero version means
// unknown and disables all version-gated features.
func (c *Coordinator) ServerVersion() adguard.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion
}

// AvailableServices returns the cached blocked-service catalog.
func (c *Coordinator) AvailableServices() []adguard.BlockedService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// DeviceInfo describes the monitored server, falling back to "unknown" when
// no status has been fetched yet.
func (c *Coordinator) DeviceInfo() DeviceInfo {
	version := "unknown"
	if snap := c.Snapshot(); snap != nil && snap.Status != nil && snap.Status.Version != "" {
		version = snap.Status.Version
	}
	return DeviceInfo{
		ID:           c.instanceID,
		Name:         fmt.Sprintf("AdGuard Home (%s)", c.host),
		Manufacturer: "AdGuard",
		Model:        "AdGuard Home",
		SWVersion:    version,
	}
}

// AddListener registers a callback invoked after every published snapshot.
func (c *Coordinator) AddListener(listener Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *Coordinator) notify(snap *Snapshot) {
	c.listenersMu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(c.instanceID, snap)
	}
}
