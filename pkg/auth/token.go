package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var signingMethod = jwt.SigningMethodHS256

var (
	ErrSecretRequired = errors.New("jwt secret is required")
	// ErrStoreScope is returned when the store claim does not fit the role:
	// seller tokens are scoped to the store they sell from, buyer tokens to none.
	ErrStoreScope = errors.New("store claim does not match role")
)

// MintAccessToken signs a token for the payload, valid for cfg.ExpirationMinutes from now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrSecretRequired
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.UserID == uuid.Nil:
		return "", errors.New("user id is required")
	}
	if err := checkRoleScope(payload.Role, payload.ActiveStoreID); err != nil {
		return "", err
	}

	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		UserID:        payload.UserID,
		Role:          payload.Role,
		ActiveStoreID: payload.ActiveStoreID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks the
// role and store claims still agree.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretRequired
	}

	claims := &AccessTokenClaims{}
	keyFunc := func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil }
	if _, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	); err != nil {
		return nil, err
	}
	if claims.Subject != claims.UserID.String() {
		return nil, errors.New("subject does not match user_id")
	}
	if err := checkRoleScope(claims.Role, claims.ActiveStoreID); err != nil {
		return nil, err
	}
	return claims, nil
}

func checkRoleScope(role enums.UserRole, storeID *uuid.UUID) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid user role %q", role)
	}
	hasStore := storeID != nil && *storeID != uuid.Nil
	switch role {
	case enums.UserRoleSeller:
		if !hasStore {
			return fmt.Errorf("%w: seller token needs an active store", ErrStoreScope)
		}
	case enums.UserRoleBuyer:
		if hasStore {
			return fmt.Errorf("%w: buyer token cannot carry a store", ErrStoreScope)
		}
	}
	return nil
}
