package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "bazaar", ExpirationMinutes: 30}

func TestMintAndParseSellerToken(t *testing.T) {
	now := time.Now().UTC()
	userID, storeID := uuid.New(), uuid.New()

	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{
		UserID:        userID,
		Role:          enums.UserRoleSeller,
		ActiveStoreID: &storeID,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, enums.UserRoleSeller, claims.Role)
	require.NotNil(t, claims.ActiveStoreID)
	assert.Equal(t, storeID, *claims.ActiveStoreID)
	assert.Equal(t, "bazaar", claims.Issuer)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseRejectsTamperedOrForeignTokens(t *testing.T) {
	token, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, token+"x")
	assert.Error(t, err)

	other := testCfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	_, err = ParseAccessToken(config.JWTConfig{}, token)
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := testCfg
	cfg.ExpirationMinutes = 15
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestStoreClaimMustFitRole(t *testing.T) {
	storeID := uuid.New()

	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleSeller})
	assert.ErrorIs(t, err, ErrStoreScope)

	_, err = MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer, ActiveStoreID: &storeID})
	assert.ErrorIs(t, err, ErrStoreScope)

	_, err = MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin, ActiveStoreID: &storeID})
	assert.NoError(t, err)

	// a correctly signed seller token without a store is still refused
	forged := signRaw(t, AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.UserRoleSeller,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	_, err = ParseAccessToken(testCfg, forged)
	assert.Error(t, err)
}

func TestMintRejectsBadPayload(t *testing.T) {
	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: ""})
	assert.ErrorContains(t, err, "invalid user role")

	_, err = MintAccessToken(testCfg, time.Now(), AccessTokenPayload{Role: enums.UserRoleBuyer})
	assert.ErrorContains(t, err, "user id is required")
}

func signRaw(t *testing.T, claims AccessTokenClaims) string {
	t.Helper()
	if claims.Subject == "" {
		claims.Subject = claims.UserID.String()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)
	return signed
}
