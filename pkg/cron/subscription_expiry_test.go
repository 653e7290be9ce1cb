package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"walletwise_backend/internal/model"
	"walletwise_backend/pkg/logger"
	"walletwise_backend/pkg/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	from, to time.Time
}

type fakeRepository struct {
	subs     []model.Subscription
	listErr  error
	windows  []window
	expired  int64
	sweptAt  time.Time
	sweepErr error
}

func (r *fakeRepository) ListSubscriptionsEndingBetween(ctx context.Context, from, to time.Time) ([]model.Subscription, error) {
	r.windows = append(r.windows, window{from: from, to: to})
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.Subscription
	for _, sub := range r.subs {
		if sub.EndDate != nil && !sub.EndDate.Before(from) && sub.EndDate.Before(to) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *fakeRepository) ExpireStalePayments(ctx context.Context, now time.Time) (int64, error) {
	r.sweptAt = now
	return r.expired, r.sweepErr
}

type warning struct {
	email    string
	planName string
	daysLeft int
}

type fakeMailer struct {
	mu       sync.Mutex
	warnings []warning
	err      error
}

func (m *fakeMailer) SendSubscriptionExpiryWarning(ctx context.Context, email, name, planName string, expiryDate time.Time, daysLeft int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.warnings = append(m.warnings, warning{email: email, planName: planName, daysLeft: daysLeft})
	return nil
}

func newTestScheduler(repo *fakeRepository, mailer expiryMailer, now time.Time) *Scheduler {
	s := NewScheduler(repo, mailer, logger.Discard())
	s.now = func() time.Time { return now }
	return s
}

func endingOn(t time.Time, tier subscription.Tier, email string) model.Subscription {
	return model.Subscription{
		UserID:   1,
		Tier:     tier,
		IsActive: true,
		EndDate:  &t,
		User:     &model.User{Email: email, Name: "Test"},
	}
}

func TestCheckExpiringSubscriptions(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{subs: []model.Subscription{
		endingOn(time.Date(2026, 3, 17, 15, 30, 0, 0, time.UTC), subscription.ProTier, "seven@example.com"),
		endingOn(time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), subscription.ProPlusTier, "three@example.com"),
		endingOn(time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC), subscription.ProTrialTier, "trial@example.com"),
		endingOn(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), subscription.ProTier, "five@example.com"),
	}}
	mailer := &fakeMailer{}

	sent := newTestScheduler(repo, mailer, now).CheckExpiringSubscriptions(context.Background())

	assert.Equal(t, 3, sent)
	assert.Equal(t, []warning{
		{email: "seven@example.com", planName: "Pro", daysLeft: 7},
		{email: "three@example.com", planName: "Pro+", daysLeft: 3},
		{email: "trial@example.com", planName: "Pro Trial", daysLeft: 3},
	}, mailer.warnings)

	require.Len(t, repo.windows, 2)
	assert.Equal(t, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), repo.windows[0].from)
	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), repo.windows[0].to)
}

func TestCheckExpiringSubscriptionsSkipsTrialAtSevenDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{subs: []model.Subscription{
		endingOn(now.AddDate(0, 0, 7), subscription.ProTrialTier, "trial@example.com"),
	}}
	mailer := &fakeMailer{}

	sent := newTestScheduler(repo, mailer, now).CheckExpiringSubscriptions(context.Background())
	assert.Zero(t, sent)
	assert.Empty(t, mailer.warnings)
}

func TestCheckExpiringSubscriptionsKeepsGoingOnErrors(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	repo := &fakeRepository{listErr: errors.New("db down")}
	sent := newTestScheduler(repo, &fakeMailer{}, now).CheckExpiringSubscriptions(context.Background())
	assert.Zero(t, sent)
	assert.Len(t, repo.windows, 2)

	repo = &fakeRepository{subs: []model.Subscription{
		endingOn(now.AddDate(0, 0, 3), subscription.ProTier, "a@example.com"),
	}}
	sent = newTestScheduler(repo, &fakeMailer{err: errors.New("resend down")}, now).CheckExpiringSubscriptions(context.Background())
	assert.Zero(t, sent)

	sent = newTestScheduler(repo, nil, now).CheckExpiringSubscriptions(context.Background())
	assert.Zero(t, sent)
}

func TestExpireStalePayments(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	repo := &fakeRepository{expired: 4}

	n, err := newTestScheduler(repo, nil, now).ExpireStalePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, now, repo.sweptAt)

	repo.sweepErr = errors.New("db down")
	_, err = newTestScheduler(repo, nil, now).ExpireStalePayments(context.Background())
	assert.Error(t, err)
}

func TestSchedulerStartAndStop(t *testing.T) {
	s := newTestScheduler(&fakeRepository{}, nil, time.Now())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	<-s.Stop().Done()
}
