package coordinator

import (
	"context"
	"fmt"
)

// Mutating actions are fire-and-confirm: issue the write, then request an
// immediate out-of-band poll so the next snapshot reflects the change
// without waiting for the timer tick. Failures propagate unchanged; no
// action swallows its own error.

// SetProtection toggles DNS protection, optionally pausing with auto-resume.
func (c *Coordinator) SetProtection(ctx context.Context, enabled bool, durationMS int64) error {
	if err := c.client.SetProtection(ctx, enabled, durationMS); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// SetSafeBrowsing toggles the safe browsing filter.
func (c *Coordinator) SetSafeBrowsing(ctx context.Context, enabled bool) error {
	if err := c.client.SetSafeBrowsing(ctx, enabled); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// SetParental toggles parental control.
func (c *Coordinator) SetParental(ctx context.Context, enabled bool) error {
	if err := c.client.SetParental(ctx, enabled); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// SetSafeSearch toggles safe search, preserving per-engine settings.
func (c *Coordinator) SetSafeSearch(ctx context.Context, enabled bool) error {
	if err := c.client.SetSafeSearch(ctx, enabled); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// SetFiltering toggles filtering with the given list refresh interval.
func (c *Coordinator) SetFiltering(ctx context.Context, enabled bool, intervalHours int) error {
	if err := c.client.SetFiltering(ctx, enabled, intervalHours); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// AddFilterURL subscribes a new filter list.
func (c *Coordinator) AddFilterURL(ctx context.Context, name, url string, whitelist bool) error {
	if err := c.client.AddFilterURL(ctx, name, url, whitelist); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// RemoveFilterURL unsubscribes a filter list.
func (c *Coordinator) RemoveFilterURL(ctx context.Context, url string, whitelist bool) error {
	if err := c.client.RemoveFilterURL(ctx, url, whitelist); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// SetFilterEnabled enables or disables one subscribed filter list.
func (c *Coordinator) SetFilterEnabled(ctx context.Context, url string, enabled, whitelist bool) error {
	if err := c.client.SetFilterEnabled(ctx, url, enabled, whitelist); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// RefreshFilters asks the server to re-download its filter lists.
func (c *Coordinator) RefreshFilters(ctx context.Context, whitelist bool) error {
	if err := c.client.RefreshFilters(ctx, whitelist); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// BlockService adds one service id to the blocked set. The current set is
// read back from the server first so concurrent edits are not clobbered
// beyond last-write-wins on the full set.
func (c *Coordinator) BlockService(ctx context.Context, serviceID string) error {
	current, err := c.client.BlockedServices(ctx)
	if err != nil {
		return c.classify(err)
	}
	for _, id := range current {
		if id == serviceID {
			return nil
		}
	}
	if err := c.client.SetBlockedServices(ctx, append(current, serviceID)); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// UnblockService removes one service id from the blocked set.
func (c *Coordinator) UnblockService(ctx context.Context, serviceID string) error {
	current, err := c.client.BlockedServices(ctx)
	if err != nil {
		return c.classify(err)
	}
	next := make([]string, 0, len(current))
	for _, id := range current {
		if id != serviceID {
			next = append(next, id)
		}
	}
	if len(next) == len(current) {
		return nil
	}
	if err := c.client.SetBlockedServices(ctx, next); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// SetBlockedServices replaces the entire blocked-service id set.
func (c *Coordinator) SetBlockedServices(ctx context.Context, ids []string) error {
	if err := c.client.SetBlockedServices(ctx, ids); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// AddRewrite creates a DNS rewrite rule.
func (c *Coordinator) AddRewrite(ctx context.Context, domain, answer string) error {
	if err := c.client.AddRewrite(ctx, domain, answer); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// DeleteRewrite removes the rewrite identified by (domain, answer).
func (c *Coordinator) DeleteRewrite(ctx context.Context, domain, answer string) error {
	if err := c.client.DeleteRewrite(ctx, domain, answer); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// SetClientFlag updates one capability flag on a named client. The client
// configuration is read from the latest snapshot; name matching is exact
// and case-sensitive.
func (c *Coordinator) SetClientFlag(ctx context.Context, clientName, flag string, enabled bool) error {
	snap := c.Snapshot()
	if snap == nil {
		return fmt.Errorf("%w: no snapshot available yet", ErrUpdateFailed)
	}
	for _, cfg := range snap.Clients {
		if cfg.Name != clientName {
			continue
		}
		switch flag {
		case "filtering":
			cfg.FilteringEnabled = enabled
		case "parental":
			cfg.ParentalEnabled = enabled
		case "safebrowsing":
			cfg.SafeBrowsingEnabled = enabled
		case "safesearch":
			cfg.SafeSearchEnabled = enabled
		case "use_global_settings":
			cfg.UseGlobalSettings = enabled
		case "use_global_blocked_services":
			cfg.UseGlobalBlockedServices = enabled
		default:
			return fmt.Errorf("unknown client flag %q", flag)
		}
		if err := c.client.UpdateClient(ctx, clientName, cfg); err != nil {
			return c.classify(err)
		}
		c.RequestRefresh()
		return nil
	}
	return fmt.Errorf("client %q not found", clientName)
}

// ClearQueryLog removes every query log entry.
func (c *Coordinator) ClearQueryLog(ctx context.Context) error {
	if err := c.client.ClearQueryLog(ctx); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}

// ResetStats clears all statistics counters.
func (c *Coordinator) ResetStats(ctx context.Context) error {
	if err := c.client.ResetStats(ctx); err != nil {
		return c.classify(err)
	}
	c.RequestRefresh()
	return nil
}
