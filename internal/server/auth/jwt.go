// Package auth implements the credential hasher and the signed-token codec:
// HS256 JWTs for access tokens and email-verification tokens, bcrypt for
// passwords, and verification of external identity assertions.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yerakh/cloudvault/internal/common"
)

// VerificationTokenType is the type claim carried by email-verification tokens.
const VerificationTokenType = "email_verification"

// VerificationTokenValidity is how long an email-verification link stays usable.
const VerificationTokenValidity = 24 * time.Hour

// Claims are the claims carried by CloudVault tokens. Access tokens set
// Subject, Email, ExpiresAt and ID (jti); verification tokens set Subject,
// Type and ExpiresAt.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Type  string `json:"type,omitempty"`
}

// GenerateAccessToken mints a signed access token for userID.
func GenerateAccessToken(userID, email string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			ID:        uuid.NewString(),
		},
		Email: email,
	})

	return token.SignedString(secretKey)
}

// GenerateVerificationToken mints the signed token embedded in an email
// verification link.
func GenerateVerificationToken(userID string, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(VerificationTokenValidity)),
		},
		Type: VerificationTokenType,
	})

	return token.SignedString(secretKey)
}

// DecodeToken parses and verifies a signed token. It distinguishes three
// outcomes: valid claims with a nil error, common.ErrTokenExpired when the
// signature is good but the clock is past exp, and common.ErrTokenInvalid
// for any signature or format failure. Callers surface different user-facing
// codes for expired vs invalid, so the distinction must survive this layer.
func DecodeToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrTokenInvalid
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrTokenInvalid
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrTokenInvalid
	}

	return claims, nil
}
