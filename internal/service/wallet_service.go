package service

import (
	"context"
	"strings"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/model"
	"walletwise_backend/internal/repository"

	"github.com/shopspring/decimal"
)

type CreateWalletInput struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
	Balance  decimal.Decimal `json:"balance"`
}

// WalletService is the small slice of wallet management the tier limits
// apply to.
type WalletService struct {
	repo         repository.Repository
	entitlements *EntitlementService
}

func NewWalletService(repo repository.Repository, entitlements *EntitlementService) *WalletService {
	return &WalletService{repo: repo, entitlements: entitlements}
}

// Create enforces the wallet limit before inserting.
func (s *WalletService) Create(ctx context.Context, userID uint, in CreateWalletInput) (*model.Wallet, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.Validation("wallet name is required")
	}
	if err := s.entitlements.CheckWalletLimit(ctx, userID); err != nil {
		return nil, err
	}

	exists, err := s.repo.WalletNameExists(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.New(apperror.ErrConflict, "A wallet with this name already exists")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}
	wallet := &model.Wallet{
		UserID:   userID,
		Name:     name,
		Balance:  in.Balance,
		Currency: currency,
	}
	if err := s.repo.CreateWallet(ctx, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *WalletService) List(ctx context.Context, userID uint) ([]model.Wallet, error) {
	return s.repo.ListWallets(ctx, userID)
}

func (s *WalletService) Summary(ctx context.Context, userID uint) (*model.WalletSummary, error) {
	return s.repo.SummarizeWallets(ctx, userID)
}
