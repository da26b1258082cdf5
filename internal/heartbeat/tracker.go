// Package heartbeat keeps subscription liveness fresh and expires subscriptions
// whose browsers stopped reporting.
package heartbeat

import (
	"context"
	"errors"
	"time"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/sites"
)

// SiteResolver resolves public site tokens.
type SiteResolver interface {
	GetByToken(ctx context.Context, token string) (*domain.Site, error)
}

// Registry is the part of the subscription registry the tracker needs.
type Registry interface {
	Heartbeat(ctx context.Context, site *domain.Site, ref string, reactivate bool) error
	DeactivateStale(ctx context.Context, before time.Time, limit int) (int64, error)
}

// Tracker records liveness signals from subscriber browsers.
type Tracker struct {
	sites    SiteResolver
	registry Registry
}

// NewTracker creates a new heartbeat tracker.
func NewTracker(sites SiteResolver, registry Registry) *Tracker {
	return &Tracker{sites: sites, registry: registry}
}

// Beat refreshes last_seen of the subscription identified by ref on the site
// with the given public token. Unknown sites and subscriptions are acknowledged
// silently so that probing reveals nothing.
func (t *Tracker) Beat(ctx context.Context, siteToken, ref string, reactivate bool) error {
	site, err := t.sites.GetByToken(ctx, siteToken)
	if err != nil {
		if errors.Is(err, sites.ErrSiteNotFound) {
			recordHeartbeat("unknown_site")
			return nil
		}
		return err
	}

	if err := t.registry.Heartbeat(ctx, site, ref, reactivate); err != nil {
		recordHeartbeat("error")
		return err
	}

	if reactivate {
		recordHeartbeat("reactivate")
	} else {
		recordHeartbeat("ok")
	}
	return nil
}
