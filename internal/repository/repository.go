package repository

import (
	"context"
	"errors"
	"time"

	"walletwise_backend/internal/model"
	"walletwise_backend/pkg/subscription"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Repository provides the DB operations used by the services.
type Repository interface {
	CreateUserWithSubscription(ctx context.Context, user *model.User, now time.Time) error
	FindUserByID(ctx context.Context, id uint) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)

	GetOrCreateSubscription(ctx context.Context, userID uint, now time.Time) (*model.Subscription, error)
	ActivateTrial(ctx context.Context, userID uint, version int64, start, end time.Time) (bool, error)
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	ListSubscriptionsEndingBetween(ctx context.Context, from, to time.Time) ([]model.Subscription, error)

	CreatePaymentIfNotExists(ctx context.Context, payment *model.Payment) (bool, *model.Payment, error)
	FindPaymentByRef(ctx context.Context, gatewayRef string) (*model.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID uint, limit int) ([]model.Payment, error)
	MarkPaymentPaid(ctx context.Context, gatewayRef string, rawWebhook datatypes.JSON, at time.Time) (bool, error)
	ClosePendingPayment(ctx context.Context, gatewayRef, status string, rawWebhook datatypes.JSON, at time.Time) (bool, error)
	ExpireStalePayments(ctx context.Context, now time.Time) (int64, error)

	CountWallets(ctx context.Context, userID uint) (int64, error)
	WalletNameExists(ctx context.Context, userID uint, name string) (bool, error)
	CreateWallet(ctx context.Context, wallet *model.Wallet) error
	ListWallets(ctx context.Context, userID uint) ([]model.Wallet, error)
	SummarizeWallets(ctx context.Context, userID uint) (*model.WalletSummary, error)

	// Transaction runs fn against a repository bound to one DB transaction.
	Transaction(ctx context.Context, fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateUserWithSubscription(ctx context.Context, user *model.User, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		sub := model.NewFreeSubscription(user.ID, now)
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		user.Subscription = sub
		return nil
	})
}

func (r *gormRepository) FindUserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *gormRepository) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetOrCreateSubscription returns the user's subscription, creating the free
// row for users registered before subscriptions existed.
func (r *gormRepository) GetOrCreateSubscription(ctx context.Context, userID uint, now time.Time) (*model.Subscription, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(model.NewFreeSubscription(userID, now)).Error; err != nil {
		return nil, err
	}

	var sub model.Subscription
	if err := db.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// ActivateTrial moves a free subscription to pro_trial. The write only applies
// when the row still has the version the caller read and the trial was never
// used, so it reports false when another write won.
func (r *gormRepository) ActivateTrial(ctx context.Context, userID uint, version int64, start, end time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("user_id = ? AND version = ? AND tier = ? AND has_used_trial = ?", userID, version, subscription.FreeTier, false).
		Updates(map[string]interface{}{
			"tier":           subscription.ProTrialTier,
			"is_active":      true,
			"start_date":     start,
			"end_date":       end,
			"has_used_trial": true,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     start,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// UpsertSubscription writes tier, activity and dates unconditionally. The trial
// marker of an existing row is preserved and its version bumped.
func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"tier":       gorm.Expr("excluded.tier"),
			"is_active":  gorm.Expr("excluded.is_active"),
			"start_date": gorm.Expr("excluded.start_date"),
			"end_date":   gorm.Expr("excluded.end_date"),
			"version":    gorm.Expr("subscriptions.version + 1"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	var stored model.Subscription
	if err := db.Where("user_id = ?", sub.UserID).First(&stored).Error; err != nil {
		return notFound(err)
	}
	*sub = stored
	return nil
}

func (r *gormRepository) ListSubscriptionsEndingBetween(ctx context.Context, from, to time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("is_active = ? AND tier <> ? AND end_date >= ? AND end_date < ?", true, subscription.FreeTier, from, to).
		Find(&subs).Error
	return subs, err
}

// CreatePaymentIfNotExists inserts payment unless its gateway ref is already
// recorded, and returns whatever row the ledger holds for that ref.
func (r *gormRepository) CreatePaymentIfNotExists(ctx context.Context, payment *model.Payment) (bool, *model.Payment, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_ref"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored model.Payment
	if err := db.Where("gateway_ref = ?", payment.GatewayRef).First(&stored).Error; err != nil {
		return false, nil, notFound(err)
	}
	return created, &stored, nil
}

func (r *gormRepository) FindPaymentByRef(ctx context.Context, gatewayRef string) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("gateway_ref = ?", gatewayRef).First(&payment).Error; err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (r *gormRepository) ListPaymentsByUser(ctx context.Context, userID uint, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&payments).Error
	return payments, err
}

// MarkPaymentPaid flips a payment to paid unless it already is. It reports
// false when no row changed, which covers both unknown refs and lost races.
func (r *gormRepository) MarkPaymentPaid(ctx context.Context, gatewayRef string, rawWebhook datatypes.JSON, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("gateway_ref = ? AND status <> ?", gatewayRef, model.PaymentPaid).
		Updates(map[string]interface{}{
			"status":      model.PaymentPaid,
			"raw_webhook": rawWebhook,
			"updated_at":  at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ClosePendingPayment moves a pending payment to failed or expired.
func (r *gormRepository) ClosePendingPayment(ctx context.Context, gatewayRef, status string, rawWebhook datatypes.JSON, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": at,
	}
	if len(rawWebhook) > 0 {
		updates["raw_webhook"] = rawWebhook
	}
	tx := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("gateway_ref = ? AND status = ?", gatewayRef, model.PaymentPending).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ExpireStalePayments(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.PaymentPending, now).
		Updates(map[string]interface{}{
			"status":     model.PaymentExpired,
			"updated_at": now,
		})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) CountWallets(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Wallet{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *gormRepository) WalletNameExists(ctx context.Context, userID uint, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Wallet{}).Where("user_id = ? AND name = ?", userID, name).Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) CreateWallet(ctx context.Context, wallet *model.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *gormRepository) ListWallets(ctx context.Context, userID uint) ([]model.Wallet, error) {
	var wallets []model.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&wallets).Error
	return wallets, err
}

func (r *gormRepository) SummarizeWallets(ctx context.Context, userID uint) (*model.WalletSummary, error) {
	var wallets []model.Wallet
	if err := r.db.WithContext(ctx).Select("balance").Where("user_id = ?", userID).Find(&wallets).Error; err != nil {
		return nil, err
	}
	summary := &model.WalletSummary{Wallets: int64(len(wallets))}
	for _, w := range wallets {
		summary.TotalBalance = summary.TotalBalance.Add(w.Balance)
	}
	return summary, nil
}
