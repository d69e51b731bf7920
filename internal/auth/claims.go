package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// The token carries just enough to re-resolve the AdminUser per request;
// permissions are never embedded, they are derived from the catalog.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	TenantType string    `json:"tenant_type,omitempty"`
	TokenType  TokenType `json:"token_type"`
}
