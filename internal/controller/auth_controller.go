package controller

import (
	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/middleware"
	"walletwise_backend/internal/service"
	"walletwise_backend/pkg/utils/validation"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	auth *service.AuthService
}

func NewAuthController(auth *service.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	input := new(service.RegisterInput)
	if err := parseBody(c, input); err != nil {
		return err
	}

	result, err := ac.auth.Register(c.UserContext(), *input)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Registration successful",
		"data":    result,
	})
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	input := new(service.LoginInput)
	if err := parseBody(c, input); err != nil {
		return err
	}

	result, err := ac.auth.Login(c.UserContext(), *input)
	if err != nil {
		return err
	}
	return ok(c, result)
}

// GetMe returns the signed-in user with its subscription.
func (ac *AuthController) GetMe(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	user, err := ac.auth.Me(c.UserContext(), userID)
	if err != nil {
		return err
	}

	profile := user.GetPublicProfile()
	profile["created_at"] = user.CreatedAt
	profile["subscription"] = user.Subscription
	return ok(c, fiber.Map{"user": profile})
}

// parseBody decodes the JSON body into dst and validates it.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Validation("Invalid input")
	}
	return validation.Struct(dst)
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}
