// Package notify delivers subscription changes to listeners. Delivery is best
// effort: callers log failures and never undo the change that triggered them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"walletwise_backend/pkg/subscription"

	"github.com/redis/go-redis/v9"
)

const EventSubscriptionUpdated = "subscription:updated"

type Payload struct {
	Tier     subscription.Tier `json:"tier"`
	IsActive bool              `json:"isActive"`
	EndDate  *time.Time        `json:"endDate,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, userID uint, event string, payload Payload) error
}

// Channel is the per-user pub/sub channel realtime gateways subscribe to.
func Channel(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

type message struct {
	Event string  `json:"event"`
	Data  Payload `json:"data"`
}

// RedisNotifier publishes events on the user's channel.
type RedisNotifier struct {
	client redis.UniversalClient
}

func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// NewRedisClient parses a redis:// URL the way REDIS_URL is configured.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func EncodeMessage(event string, payload Payload) ([]byte, error) {
	return json.Marshal(message{Event: event, Data: payload})
}

func (n *RedisNotifier) Notify(ctx context.Context, userID uint, event string, payload Payload) error {
	body, err := EncodeMessage(event, payload)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, Channel(userID), body).Err()
}

// UserLookup resolves the address an email notification goes to.
type UserLookup func(ctx context.Context, userID uint) (email, name string, err error)

type activationMailer interface {
	SendSubscriptionActivatedEmail(ctx context.Context, email, name, planName string, isTrial bool, expiresAt *time.Time) error
}

// EmailNotifier mails the user when a subscription becomes active.
type EmailNotifier struct {
	mailer activationMailer
	lookup UserLookup
}

func NewEmailNotifier(mailer activationMailer, lookup UserLookup) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, lookup: lookup}
}

func (n *EmailNotifier) Notify(ctx context.Context, userID uint, event string, payload Payload) error {
	if event != EventSubscriptionUpdated || !payload.IsActive || payload.Tier == subscription.FreeTier {
		return nil
	}
	email, name, err := n.lookup(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user %d: %w", userID, err)
	}
	planName := subscription.GetPlanLimits(payload.Tier).Name
	return n.mailer.SendSubscriptionActivatedEmail(ctx, email, name, planName, payload.Tier == subscription.ProTrialTier, payload.EndDate)
}

// MultiNotifier fans an event out to every notifier. One failing listener
// does not stop the others.
type MultiNotifier struct {
	notifiers []Notifier
	log       *slog.Logger
}

func NewMultiNotifier(log *slog.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, log: log}
}

func (m *MultiNotifier) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

func (m *MultiNotifier) Notify(ctx context.Context, userID uint, event string, payload Payload) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, userID, event, payload); err != nil {
			m.log.Warn("notification failed",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("event", event),
				slog.String("notifier", fmt.Sprintf("%T", n)),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncNotifier hands events to the wrapped notifier in the background so a
// slow listener never holds up the request that triggered it. Each delivery
// runs on a context detached from the request and bounded by timeout.
type AsyncNotifier struct {
	next    Notifier
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewAsyncNotifier(next Notifier, timeout time.Duration, log *slog.Logger) *AsyncNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &AsyncNotifier{next: next, timeout: timeout, log: log}
}

// Notify returns immediately. Delivery errors are logged, not returned.
func (a *AsyncNotifier) Notify(ctx context.Context, userID uint, event string, payload Payload) error {
	detached := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, userID, event, payload); err != nil {
			a.log.Warn("async notification failed",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("event", event),
				slog.Any("error", err))
		}
	}()
	return nil
}

// Wait blocks until every pending delivery has finished.
func (a *AsyncNotifier) Wait() {
	a.wg.Wait()
}
