package agenttoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenDuration is the access_token lifetime when the caller
// does not request a different one (spec §4.4: "default 3600").
const DefaultTokenDuration = time.Hour

// TokenPrincipal is the decoded, verified identity behind a bearer
// token, as returned to the router's auth gate.
type TokenPrincipal struct {
	ClientID       string
	AllowedTargets []string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

type tokenClaims struct {
	ClientID       string   `json:"clientId"`
	AllowedTargets []string `json:"allowedTargets"`
	jwt.RegisteredClaims
}

// Service mints and verifies opaque, signed agent-to-agent tokens.
// HS256 was picked as the concrete signature scheme the spec leaves
// open ("implementation-chosen... HMAC-SHA256 recommended").
type Service struct {
	secret   []byte
	duration time.Duration
}

// NewService builds a Service signing with secret. duration<=0 falls
// back to DefaultTokenDuration.
func NewService(secret string, duration time.Duration) *Service {
	if duration <= 0 {
		duration = DefaultTokenDuration
	}
	return &Service{secret: []byte(secret), duration: duration}
}

// Mint signs a new token encoding {clientId, allowedTargets, iat, exp}
// and returns it along with its lifetime in seconds.
func (s *Service) Mint(clientID string, allowedTargets []string) (accessToken string, expiresIn int, err error) {
	now := time.Now()
	exp := now.Add(s.duration)
	claims := tokenClaims{
		ClientID:       clientID,
		AllowedTargets: allowedTargets,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("agenttoken: sign: %w", err)
	}
	return signed, int(s.duration.Seconds()), nil
}

// Verify decodes and validates a bearer token, rejecting bad
// signatures and expired tokens (spec §4.4 "Verify").
func (s *Service) Verify(accessToken string) (*TokenPrincipal, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(accessToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid_token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid_token")
	}

	principal := &TokenPrincipal{
		ClientID:       claims.ClientID,
		AllowedTargets: claims.AllowedTargets,
	}
	if claims.IssuedAt != nil {
		principal.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, nil
}
