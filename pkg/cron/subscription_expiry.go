package cron

import (
	"context"
	"log/slog"
	"time"

	"walletwise_backend/internal/model"
	"walletwise_backend/pkg/subscription"

	"github.com/robfig/cron/v3"
)

const (
	expiryWarningSchedule = "0 9 * * *"
	paymentSweepSchedule  = "@every 15m"
	jobTimeout            = 5 * time.Minute
)

// Days before the end date on which users get a warning.
var warningDays = []int{7, 3}

type jobRepository interface {
	ListSubscriptionsEndingBetween(ctx context.Context, from, to time.Time) ([]model.Subscription, error)
	ExpireStalePayments(ctx context.Context, now time.Time) (int64, error)
}

type expiryMailer interface {
	SendSubscriptionExpiryWarning(ctx context.Context, email, name, planName string, expiryDate time.Time, daysLeft int) error
}

// Scheduler runs the periodic subscription and payment housekeeping.
type Scheduler struct {
	cron   *cron.Cron
	repo   jobRepository
	mailer expiryMailer
	log    *slog.Logger
	now    func() time.Time
}

func NewScheduler(repo jobRepository, mailer expiryMailer, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		repo:   repo,
		mailer: mailer,
		log:    log.With("component", "cron"),
		now:    time.Now,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(expiryWarningSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		s.CheckExpiringSubscriptions(ctx)
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(paymentSweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if _, err := s.ExpireStalePayments(ctx); err != nil {
			s.log.Error("payment sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("cron jobs scheduled", "expiry_warning", expiryWarningSchedule, "payment_sweep", paymentSweepSchedule)
	return nil
}

// Stop halts scheduling and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// CheckExpiringSubscriptions mails every user whose paid plan or trial ends in
// one of the warning windows and returns how many warnings went out.
func (s *Scheduler) CheckExpiringSubscriptions(ctx context.Context) int {
	if s.mailer == nil {
		s.log.Debug("expiry warnings skipped, no mailer configured")
		return 0
	}

	sent := 0
	today := startOfDay(s.now())
	for _, days := range warningDays {
		from := today.AddDate(0, 0, days)
		subs, err := s.repo.ListSubscriptionsEndingBetween(ctx, from, from.AddDate(0, 0, 1))
		if err != nil {
			s.log.Error("fetch expiring subscriptions", "days", days, "error", err)
			continue
		}

		s.log.Info("expiring subscriptions found", "days", days, "count", len(subs))
		for _, sub := range subs {
			// A trial is shorter than the first window.
			if sub.Tier == subscription.ProTrialTier && days >= subscription.TrialDays {
				continue
			}
			if sub.User == nil || sub.EndDate == nil {
				continue
			}

			planName := subscription.GetPlanLimits(sub.Tier).Name
			if err := s.mailer.SendSubscriptionExpiryWarning(ctx, sub.User.Email, sub.User.Name, planName, *sub.EndDate, days); err != nil {
				s.log.Error("send expiry warning", "user_id", sub.UserID, "days", days, "error", err)
				continue
			}
			sent++
			s.log.Info("expiry warning sent", "user_id", sub.UserID, "days", days)
		}
	}
	return sent
}

// ExpireStalePayments closes pending payments whose checkout window has passed.
func (s *Scheduler) ExpireStalePayments(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStalePayments(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("stale payments expired", "count", n)
	}
	return n, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
