package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims identifies a dashboard session. The same bearer token is forwarded upstream
// on every resource call, so only the fields the BFF needs are decoded here.
type Claims struct {
	SessionID string   `json:"sid"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

type TokenValidator interface {
	Validate(token string) (*Claims, error)
}

type JWTValidator struct {
	secret    []byte
	publicKey *rsa.PublicKey
	now       func() time.Time
}

// NewJWTValidator builds a validator. When publicKeyPEM is set RS256 is required,
// otherwise tokens must be HS256-signed with secret.
func NewJWTValidator(secret, publicKeyPEM string) (*JWTValidator, error) {
	v := &JWTValidator{
		secret: []byte(strings.TrimSpace(secret)),
		now:    time.Now,
	}
	if pem := strings.TrimSpace(publicKeyPEM); pem != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		v.publicKey = key
	}
	if v.publicKey == nil && len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: jwt key not configured", ErrInvalidToken)
	}
	return v, nil
}

func (v *JWTValidator) Validate(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	parsedToken, err := jwt.ParseWithClaims(token, claims, v.keyFunc, jwt.WithLeeway(5*time.Second), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsedToken.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	// sessions without an explicit sid fall back to jti, then to subject+expiry
	if claims.SessionID == "" {
		claims.SessionID = claims.ID
	}
	if claims.SessionID == "" {
		if claims.ExpiresAt != nil {
			claims.SessionID = fmt.Sprintf("%s:%d", claims.Subject, claims.ExpiresAt.Unix())
		} else {
			claims.SessionID = claims.Subject
		}
	}
	return claims, nil
}

func (v *JWTValidator) keyFunc(t *jwt.Token) (interface{}, error) {
	if v.publicKey != nil {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v, expected RS256", t.Header["alg"])
		}
		return v.publicKey, nil
	}
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return v.secret, nil
}

var _ TokenValidator = (*JWTValidator)(nil)
