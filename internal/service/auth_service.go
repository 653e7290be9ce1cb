package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/model"
	"walletwise_backend/internal/repository"
	"walletwise_backend/pkg/utils/jwt"

	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResult struct {
	Token string                 `json:"token"`
	User  map[string]interface{} `json:"user"`
}

type welcomeMailer interface {
	SendWelcomeEmail(ctx context.Context, email, name string) error
}

type AuthService struct {
	repo   repository.Repository
	tokens *jwt.Manager
	mailer welcomeMailer
	log    *slog.Logger
	now    func() time.Time
}

// NewAuthService creates the auth service. mailer may be nil.
func NewAuthService(repo repository.Repository, tokens *jwt.Manager, mailer welcomeMailer, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{repo: repo, tokens: tokens, mailer: mailer, log: log, now: time.Now}
}

// Register creates the user together with its free subscription.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
		return nil, apperror.New(apperror.ErrConflict, "Email already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:    email,
		Password: string(hashedPassword),
		Name:     strings.TrimSpace(in.Name),
	}
	if err := s.repo.CreateUserWithSubscription(ctx, user, s.now().UTC()); err != nil {
		return nil, err
	}
	s.log.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))

	if s.mailer != nil {
		if err := s.mailer.SendWelcomeEmail(ctx, user.Email, user.Name); err != nil {
			s.log.Warn("welcome email failed", slog.Uint64("user_id", uint64(user.ID)), slog.Any("error", err))
		}
	}

	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	user, err := s.repo.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.New(apperror.ErrUnauthorized, "Invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, apperror.New(apperror.ErrUnauthorized, "Invalid credentials")
	}
	return s.issue(user)
}

// Me returns the user with its subscription attached.
func (s *AuthService) Me(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("user")
		}
		return nil, err
	}
	sub, err := s.repo.GetOrCreateSubscription(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	user.Subscription = sub
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user.GetPublicProfile()}, nil
}
