package kernel

// ============================================================================
// Context Types - Tipos para context.Context
// ============================================================================

// AuthContext es el contexto de autenticación que se inyecta en cada request.
// AccountID es el usuario de la plataforma (header x-user-id o JWT subject),
// no el usuario final que conversa con un flujo.
type AuthContext struct {
	AccountID int64  `json:"account_id"`
	BrandID   int64  `json:"brand_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// IsValid verifica si el AuthContext es válido
func (a *AuthContext) IsValid() bool {
	return a.AccountID > 0
}

// ============================================================================
// Context Keys - Claves para context.Context
// ============================================================================

type ContextKey string

const (
	// AuthContextKey es la clave para almacenar AuthContext en context.Context
	AuthContextKey ContextKey = "auth_context"

	// AccountContextKey es la clave para almacenar el account id de la petición
	AccountContextKey ContextKey = "account_id"

	// BrandContextKey es la clave para almacenar el brand id de la petición
	BrandContextKey ContextKey = "brand_id"

	// RequestIDKey es la clave para almacenar el ID de la petición
	RequestIDKey ContextKey = "request_id"
)
