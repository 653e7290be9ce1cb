package controller

import (
	"walletwise_backend/internal/middleware"
	"walletwise_backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type WalletController struct {
	wallets *service.WalletService
}

func NewWalletController(wallets *service.WalletService) *WalletController {
	return &WalletController{wallets: wallets}
}

func (wc *WalletController) Create(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	input := new(service.CreateWalletInput)
	if err := parseBody(c, input); err != nil {
		return err
	}

	wallet, err := wc.wallets.Create(c.UserContext(), userID, *input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    wallet,
	})
}

func (wc *WalletController) List(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	wallets, err := wc.wallets.List(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"wallets": wallets})
}

// Summary backs the analytics endpoint, which is gated to Pro+.
func (wc *WalletController) Summary(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	summary, err := wc.wallets.Summary(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return ok(c, summary)
}
