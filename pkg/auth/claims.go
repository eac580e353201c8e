package auth

import (
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	Role          enums.UserRole
	ActiveStoreID *uuid.UUID
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID        uuid.UUID      `json:"user_id"`
	Role          enums.UserRole `json:"role"`
	ActiveStoreID *uuid.UUID     `json:"active_store_id,omitempty"`
	jwt.RegisteredClaims
}
