package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCuratorIssuer is the issuer expected on curator tokens unless configured otherwise.
const DefaultCuratorIssuer = "tauth"

const bearerPrefix = "Bearer "

var (
	ErrMissingSigningKey   = errors.New("curator validator: signing key required")
	ErrMissingIssuer       = errors.New("curator validator: issuer required")
	ErrMissingCuratorToken = errors.New("curator validator: token required")
	ErrInvalidCuratorToken = errors.New("curator validator: invalid token")
	ErrExpiredCuratorToken = errors.New("curator validator: token expired")
	ErrMissingCuratorID    = errors.New("curator validator: curator id required")
)

// CuratorClaims is the JWT payload identifying a curator.
type CuratorClaims struct {
	CuratorID   string   `json:"curator_id"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// CuratorValidatorConfig describes how to validate curator JWTs.
type CuratorValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	Clock         func() time.Time
}

// CuratorValidator validates HS256 curator JWTs presented as bearer tokens.
type CuratorValidator struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewCuratorValidator constructs a validator with the provided configuration.
func NewCuratorValidator(cfg CuratorValidatorConfig) (*CuratorValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CuratorValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		clock:         clock,
	}, nil
}

// ValidateToken validates the supplied JWT string and returns the parsed claims.
func (v *CuratorValidator) ValidateToken(tokenString string) (CuratorClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return CuratorClaims{}, ErrMissingCuratorToken
	}

	claims := &CuratorClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidCuratorToken, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return CuratorClaims{}, ErrExpiredCuratorToken
		}
		return CuratorClaims{}, fmt.Errorf("%w: %v", ErrInvalidCuratorToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return CuratorClaims{}, ErrInvalidCuratorToken
	}
	if strings.TrimSpace(claims.CuratorID) == "" {
		claims.CuratorID = strings.TrimSpace(claims.Subject)
	}
	if claims.CuratorID == "" {
		return CuratorClaims{}, ErrMissingCuratorID
	}
	return *claims, nil
}

// ValidateRequest extracts the bearer token from the Authorization header and validates it.
func (v *CuratorValidator) ValidateRequest(r *http.Request) (CuratorClaims, error) {
	if r == nil {
		return CuratorClaims{}, ErrMissingCuratorToken
	}
	token, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return CuratorClaims{}, ErrMissingCuratorToken
	}
	return v.ValidateToken(token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
