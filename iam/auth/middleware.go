package auth

import (
	"strconv"
	"strings"

	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware autentica la API de gestión. Acepta dos identidades: el
// header x-user-id que manda el gateway interno, o un Bearer JWT cuyo
// subject es el id externo de la cuenta.
type AuthMiddleware struct {
	tokenService TokenService
}

// NewAuthMiddleware crea un nuevo middleware de autenticación
func NewAuthMiddleware(tokenService TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate middleware que resuelve la identidad del request
func (am *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Header x-user-id del gateway
		if userIDHeader := c.Get("x-user-id"); userIDHeader != "" {
			accountID, err := strconv.ParseInt(userIDHeader, 10, 64)
			if err != nil || accountID <= 0 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": ErrInvalidUserIDHeader().Error(),
				})
			}

			c.Locals("auth", &kernel.AuthContext{AccountID: accountID})
			return c.Next()
		}

		// 2. Bearer JWT
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": ErrMissingIdentity().Error(),
			})
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": ErrMissingIdentity().Error(),
			})
		}

		claims, err := am.tokenService.ValidateAccessToken(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals("auth", &kernel.AuthContext{
			AccountID: claims.AccountID,
			BrandID:   claims.BrandID,
			Email:     claims.Email,
			Name:      claims.Name,
		})

		return c.Next()
	}
}

// GetAuthContext helper para extraer el contexto de autenticación de Fiber
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	authContext, ok := c.Locals("auth").(*kernel.AuthContext)
	return authContext, ok && authContext != nil && authContext.IsValid()
}
