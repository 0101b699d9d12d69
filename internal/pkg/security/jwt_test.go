package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken(42, []string{"user"})
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, []string{"user"}, claims.Roles)
	assert.Equal(t, JWTIssuer, claims.Issuer)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	SetSecret("secret-a")
	token, err := GenerateToken(1, nil)
	require.NoError(t, err)

	SetSecret("secret-b")
	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateToken_Expired(t *testing.T) {
	SetSecret("test-secret")
	claims := &UserClaims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateToken_NoUser(t *testing.T) {
	SetSecret("test-secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &UserClaims{}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestBearerAndSignature(t *testing.T) {
	_, err := BearerToken("")
	assert.ErrorIs(t, err, ErrTokenMissing)
	_, err = BearerToken("Basic abc")
	assert.ErrorIs(t, err, ErrTokenMissing)

	tok, err := BearerToken("Bearer a.b.c")
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", tok)

	sig, err := ExtractSignature(tok)
	require.NoError(t, err)
	assert.Equal(t, "c", sig)

	_, err = ExtractSignature("a.b")
	assert.ErrorIs(t, err, ErrTokenMissing)
}
