package githubapp

import (
	"crypto/rsa"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// GitHub rejects app JWTs that live longer than ten minutes.
	appJWTLifetime = 9 * time.Minute
	// Backdate iat to tolerate clock drift between us and GitHub.
	appJWTClockSkew = 60 * time.Second
)

// AppSigner mints the short-lived JWTs a GitHub App uses to authenticate
// as itself.
type AppSigner struct {
	AppID int64
	Key   *rsa.PrivateKey
	Now   func() time.Time
}

// NewAppSigner parses a PEM encoded RSA private key as downloaded from the
// GitHub App settings page.
func NewAppSigner(appID int64, privateKeyPEM []byte) (*AppSigner, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("github app ID must be positive")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse github app private key: %w", err)
	}
	return &AppSigner{AppID: appID, Key: key, Now: time.Now}, nil
}

// AppJWT returns a signed RS256 token valid for appJWTLifetime.
func (s *AppSigner) AppJWT() (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	issuedAt := now().Add(-appJWTClockSkew)

	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(s.AppID, 10),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(appJWTClockSkew + appJWTLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("sign github app jwt: %w", err)
	}
	return signed, nil
}
