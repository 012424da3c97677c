package auth

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/craftable/errx"
)

// ============================================================================
// Token Types
// ============================================================================

// TokenClaims representa los claims de un JWT
type TokenClaims struct {
	AccountID int64     `json:"account_id"`
	BrandID   int64     `json:"brand_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// ============================================================================
// Service Interfaces
// ============================================================================

// TokenService firma y valida los tokens de acceso de la API de gestión. El
// subject del token es el id externo de la cuenta; el gateway que no usa JWT
// manda ese mismo id en el header x-user-id.
type TokenService interface {
	GenerateAccessToken(accountID, brandID int64, claims map[string]any) (string, error)
	ValidateAccessToken(tokenString string) (*TokenClaims, error)
}

// ============================================================================
// Error Registry - Errores específicos de Auth
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

// Códigos de error
var (
	CodeMissingIdentity       = ErrRegistry.Register("MISSING_IDENTITY", errx.TypeAuthorization, http.StatusUnauthorized, "Missing x-user-id header or bearer token")
	CodeInvalidUserIDHeader   = ErrRegistry.Register("INVALID_USER_ID_HEADER", errx.TypeAuthorization, http.StatusUnauthorized, "x-user-id header is not a valid account id")
	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Error al generar token")
	CodeTokenValidationFailed = ErrRegistry.Register("TOKEN_VALIDATION_FAILED", errx.TypeAuthorization, http.StatusUnauthorized, "Error al validar token")
)

// Helper functions para crear errores
func ErrMissingIdentity() *errx.Error {
	return ErrRegistry.New(CodeMissingIdentity)
}

func ErrInvalidUserIDHeader() *errx.Error {
	return ErrRegistry.New(CodeInvalidUserIDHeader)
}

func ErrTokenGenerationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenGenerationFailed)
}

func ErrTokenValidationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenValidationFailed)
}
