// Package dispatch fans one notification out to every active subscription of a site.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/keyvault"
	"github.com/bissquit/push-relay/internal/pkg/ctxlog"
	"github.com/bissquit/push-relay/internal/sites"
)

// SiteResolver resolves sites on behalf of an owner.
type SiteResolver interface {
	GetOwned(ctx context.Context, owner domain.Owner, siteID string) (*domain.Site, error)
}

// Registry is the part of the subscription registry the engine needs.
type Registry interface {
	CountActive(ctx context.Context, siteID string) (int, error)
	ListActive(ctx context.Context, siteID string, subset []string) ([]domain.Subscription, error)
	DeactivateByID(ctx context.Context, id string) error
}

// KeyStore returns site signing keys.
type KeyStore interface {
	GetKeypair(ctx context.Context, siteID string) (*domain.Keypair, error)
}

// Ledger records notifications and their outcomes.
type Ledger interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	Finalize(ctx context.Context, id string, sent, failed int, status domain.NotificationStatus) error
	RecordEvents(ctx context.Context, events []domain.DeliveryEvent) error
	RecordDispatchLog(ctx context.Context, log *domain.DispatchLog) error
}

// Config contains engine configuration.
type Config struct {
	// MaxConcurrency bounds in-flight attempts per notification.
	MaxConcurrency int
	// AttemptTimeout bounds one push service round trip.
	AttemptTimeout time.Duration
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 100,
		AttemptTimeout: 10 * time.Second,
	}
}

// SendInput describes a notification to send.
// SubscriptionIDs restricts the audience to a subset of active subscriptions.
type SendInput struct {
	SiteID          string
	Title           string
	Body            string
	URL             string
	SubscriptionIDs []string
}

// Result summarizes a dispatch. Sent + Failed == Total.
type Result struct {
	NotificationID string `json:"notification_id"`
	Sent           int    `json:"sent"`
	Failed         int    `json:"failed"`
	Total          int    `json:"total"`
	Pruned         int    `json:"pruned"`
	NoSubscribers  bool   `json:"no_subscribers"`
}

// Engine is the dispatch engine.
type Engine struct {
	config    Config
	sites     SiteResolver
	registry  Registry
	keys      KeyStore
	ledger    Ledger
	transport Transport
	renderer  *Renderer
	now       func() time.Time
}

// NewEngine creates a new dispatch engine.
func NewEngine(config Config, sites SiteResolver, registry Registry, keys KeyStore, ledger Ledger, transport Transport, renderer *Renderer) *Engine {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	return &Engine{
		config:    config,
		sites:     sites,
		registry:  registry,
		keys:      keys,
		ledger:    ledger,
		transport: transport,
		renderer:  renderer,
		now:       time.Now,
	}
}

type attempt struct {
	sub      domain.Subscription
	outcome  Outcome
	status   int
	err      error
	finished time.Time
}

// Send dispatches a notification and blocks until every attempt has settled.
//
// Engine-level failures (unknown or suspended site, missing keypair) are returned
// as errors. Per-subscription failures never are: they show up in Result and in
// the ledger. Once the fan-out has started, cancelling ctx does not abort it.
func (e *Engine) Send(ctx context.Context, owner domain.Owner, input SendInput) (*Result, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	site, err := e.sites.GetOwned(ctx, owner, input.SiteID)
	if err != nil {
		return nil, err
	}
	if !site.IsActive() {
		return nil, sites.ErrSiteSuspended
	}

	n := &domain.Notification{
		SiteID: site.ID,
		Title:  input.Title,
		Body:   input.Body,
		URL:    input.URL,
	}
	if err := e.renderer.Check(n); err != nil {
		return nil, err
	}
	if err := e.ledger.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	ctx, log := ctxlog.With(ctx, "site_id", site.ID, "notification_id", n.ID)

	count, err := e.registry.CountActive(ctx, site.ID)
	if err != nil {
		e.fail(ctx, log, n.ID)
		return nil, fmt.Errorf("count active subscriptions: %w", err)
	}
	if count == 0 {
		return e.noSubscribers(ctx, log, n.ID), nil
	}

	keypair, err := e.keys.GetKeypair(ctx, site.ID)
	if err != nil {
		e.fail(ctx, log, n.ID)
		if errors.Is(err, keyvault.ErrNotConfigured) {
			log.Error("site has no signing keypair")
		}
		return nil, err
	}

	targets, err := e.registry.ListActive(ctx, site.ID, input.SubscriptionIDs)
	if err != nil {
		e.fail(ctx, log, n.ID)
		return nil, err
	}
	if len(targets) == 0 {
		return e.noSubscribers(ctx, log, n.ID), nil
	}

	payload, err := e.renderer.Render(n)
	if err != nil {
		e.fail(ctx, log, n.ID)
		return nil, err
	}

	// From here on the request context only carries values.
	ctx = context.WithoutCancel(ctx)

	start := e.now()
	attempts := e.fanOut(ctx, targets, Message{Payload: payload, Keypair: keypair})
	duration := e.now().Sub(start)

	result := &Result{NotificationID: n.ID, Total: len(attempts)}
	events := make([]domain.DeliveryEvent, 0, len(attempts))
	for _, a := range attempts {
		event := domain.DeliveryEvent{
			NotificationID: n.ID,
			SubscriptionID: a.sub.ID,
			StatusCode:     a.status,
			CreatedAt:      a.finished,
		}

		switch a.outcome {
		case OutcomeSuccess:
			result.Sent++
			event.Outcome = domain.DeliveryOutcomeSent
		case OutcomePermanent:
			result.Failed++
			event.Outcome = domain.DeliveryOutcomeFailed
			event.Error = describeFailure(a)
			if err := e.registry.DeactivateByID(ctx, a.sub.ID); err != nil {
				log.Error("failed to prune subscription", "subscription_id", a.sub.ID, "error", err)
			} else {
				result.Pruned++
			}
		default:
			result.Failed++
			event.Outcome = domain.DeliveryOutcomeFailed
			event.Error = describeFailure(a)
		}
		events = append(events, event)
	}

	if err := e.ledger.RecordEvents(ctx, events); err != nil {
		log.Error("failed to record delivery events", "error", err)
	}

	if err := e.ledger.Finalize(ctx, n.ID, result.Sent, result.Failed, domain.NotificationStatusSent); err != nil {
		log.Error("failed to finalize notification", "error", err)
	}

	dispatchLog := &domain.DispatchLog{
		NotificationID: n.ID,
		SiteID:         site.ID,
		Attempted:      result.Total,
		Succeeded:      result.Sent,
		Failed:         result.Failed,
		Pruned:         result.Pruned,
		Duration:       duration,
	}
	if err := e.ledger.RecordDispatchLog(ctx, dispatchLog); err != nil {
		log.Error("failed to record dispatch log", "error", err)
	}

	recordFanout(duration, result.Pruned)
	recordNotification("sent")
	log.Info("notification dispatched",
		"attempted", result.Total,
		"succeeded", result.Sent,
		"failed", result.Failed,
		"pruned", result.Pruned,
		"duration", duration,
	)

	return result, nil
}

// fanOut sends msg to every target, at most MaxConcurrency at a time, and waits
// for all attempts to settle. The returned slice is in target order.
func (e *Engine) fanOut(ctx context.Context, targets []domain.Subscription, msg Message) []attempt {
	attempts := make([]attempt, len(targets))
	sem := make(chan struct{}, e.config.MaxConcurrency)

	var wg sync.WaitGroup
	for i := range targets {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			m := msg
			m.Subscription = targets[i].Payload
			attempts[i] = e.attempt(ctx, targets[i], m)
		}(i)
	}
	wg.Wait()

	return attempts
}

func (e *Engine) attempt(ctx context.Context, sub domain.Subscription, msg Message) (a attempt) {
	a.sub = sub
	start := e.now()

	defer func() {
		if r := recover(); r != nil {
			a.outcome = OutcomeTransient
			a.err = fmt.Errorf("transport panic: %v", r)
			ctxlog.FromContext(ctx).Error("push transport panicked", "subscription_id", sub.ID, "panic", r)
		}
		a.finished = e.now()
		recordAttempt(a.outcome, a.finished.Sub(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, e.config.AttemptTimeout)
	defer cancel()

	a.status, a.err = e.transport.Send(ctx, msg)
	a.outcome = Classify(a.status, a.err)
	return a
}

func describeFailure(a attempt) string {
	te := &TransportError{
		StatusCode: a.status,
		Permanent:  a.outcome == OutcomePermanent,
		Err:        a.err,
	}
	return te.Error()
}

// noSubscribers finalizes a notification that had nobody to go to.
func (e *Engine) noSubscribers(ctx context.Context, log *slog.Logger, id string) *Result {
	if err := e.ledger.Finalize(ctx, id, 0, 0, domain.NotificationStatusFailed); err != nil {
		log.Error("failed to finalize notification", "error", err)
	}
	recordNotification("no_subscribers")
	log.Info("notification has no subscribers")
	return &Result{NotificationID: id, NoSubscribers: true}
}

// fail finalizes a notification that could not be dispatched at all.
func (e *Engine) fail(ctx context.Context, log *slog.Logger, id string) {
	if err := e.ledger.Finalize(context.WithoutCancel(ctx), id, 0, 0, domain.NotificationStatusFailed); err != nil {
		log.Error("failed to finalize notification", "error", err)
	}
	recordNotification("failed")
}
