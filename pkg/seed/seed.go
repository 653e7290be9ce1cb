package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"walletwise_backend/internal/repository"
	"walletwise_backend/internal/model"

	"golang.org/x/crypto/bcrypt"
)

type userRepository interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUserWithSubscription(ctx context.Context, user *model.User, now time.Time) error
}

// SeedDemoUser creates a free-tier account for local development. An existing
// account with the same email is left untouched.
func SeedDemoUser(ctx context.Context, repo userRepository, email, password string, log *slog.Logger) (*model.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, false, fmt.Errorf("demo user needs an email and a password")
	}
	if log == nil {
		log = slog.Default()
	}

	existing, err := repo.FindUserByEmail(ctx, email)
	if err == nil {
		log.Debug("demo user already seeded", "user_id", existing.ID)
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, err
	}

	user := &model.User{Email: email, Password: string(hash), Name: "Demo"}
	if err := repo.CreateUserWithSubscription(ctx, user, time.Now()); err != nil {
		return nil, false, err
	}

	log.Info("demo user seeded", "user_id", user.ID, "email", email)
	return user, true, nil
}
