package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skourtis/boomtown/internal/domain"
)

// Claims are the bearer-token payload. Rotating the signing secret
// invalidates every active session.
type Claims struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id,omitempty"`
	Role      string `json:"role"`
	IsMobile  bool   `json:"is_mobile"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies session tokens with a shared secret.
type TokenManager struct {
	secret    []byte
	webTTL    time.Duration
	mobileTTL time.Duration
}

// NewTokenManager creates a token manager. Web tokens are short-lived;
// mobile tokens last much longer.
func NewTokenManager(secret string, webTTL, mobileTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:    []byte(secret),
		webTTL:    webTTL,
		mobileTTL: mobileTTL,
	}
}

// TTL returns the session lifetime for a client class.
func (tm *TokenManager) TTL(isMobile bool) time.Duration {
	if isMobile {
		return tm.mobileTTL
	}
	return tm.webTTL
}

// Issue signs a token for one session.
func (tm *TokenManager) Issue(userID, companyID, role, sessionID string, isMobile bool, now time.Time) (string, int64, error) {
	expires := now.Add(tm.TTL(isMobile))
	claims := Claims{
		UserID:    userID,
		CompanyID: companyID,
		Role:      role,
		IsMobile:  isMobile,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires.Unix(), nil
}

// Parse verifies a token's signature and expiry.
func (tm *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, domain.E(domain.KindUnauthenticated, "invalid or expired token")
	}
	return claims, nil
}
