// Package auth resolves the optional signed-in user from an HS256 bearer
// token. Requests without a token are guests; operator routes additionally
// require the admin role claim.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
)

const (
	userIDKey = "auth.user_id"
	roleKey   = "auth.role"
)

// RoleAdmin is the role operator routes require.
const RoleAdmin = "admin"

var (
	ErrInvalidToken = apperr.New(apperr.Unauthorized, "UNAUTHORIZED", "invalid or expired token")
	ErrAuthRequired = apperr.New(apperr.Unauthorized, "UNAUTHORIZED", "authentication required")
	ErrForbidden    = apperr.New(apperr.Forbidden, "FORBIDDEN", "insufficient permissions")
)

// Claims carries the user id in the standard subject claim and an optional
// role.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for userID. Used by the operator CLI and tests.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	return v.IssueRole(userID, "", ttl)
}

// IssueRole signs a token for userID carrying role.
func (v *Verifier) IssueRole(userID, role string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// UserID validates tokenString and returns its subject.
func (v *Verifier) UserID(tokenString string) (string, error) {
	claims, err := v.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Parse validates tokenString and returns its claims. A token without a
// subject is invalid.
func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !token.Valid {
		return nil, apperr.WithCause(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, apperr.WithCause(ErrInvalidToken, errors.New("token has no subject"))
	}
	return claims, nil
}

// Middleware stores the bearer token's user id on the context. A missing
// header is a guest; a bad token is rejected. A nil verifier (no secret
// configured) treats everyone as a guest.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if v == nil || header == "" {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			_ = c.Error(ErrInvalidToken)
			c.Abort()
			return
		}
		claims, err := v.Parse(strings.TrimSpace(raw))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(userIDKey, claims.Subject)
		if claims.Role != "" {
			c.Set(roleKey, claims.Role)
		}
		c.Next()
	}
}

// RequireRole rejects guests with 401 and signed-in callers without role
// with 403. It runs after Middleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch {
		case UserID(c) == "":
			_ = c.Error(ErrAuthRequired)
		case Role(c) != role:
			_ = c.Error(ErrForbidden)
		default:
			c.Next()
			return
		}
		c.Abort()
	}
}

// UserID returns the authenticated user id, or "" for guests.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// Role returns the caller's role claim, or "".
func Role(c *gin.Context) string {
	return c.GetString(roleKey)
}
