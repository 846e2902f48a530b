package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rosterly/rosterly-backend/pkg/actor"
	"github.com/rosterly/rosterly-backend/pkg/config"
	apperrors "github.com/rosterly/rosterly-backend/pkg/errors"
)

// Claims represents the JWT claims
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
}

// Actor converts the claims into the request actor
func (c *Claims) Actor() *actor.Actor {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return &actor.Actor{ID: id, Role: c.Role, Email: c.Email}
}

// Manager verifies HS256 access tokens. Issue exists for tests and the CLI;
// production tokens come from the identity service.
type Manager struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewManager creates a new JWT manager
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{config: cfg, now: time.Now}
}

// Issue signs an access token for userID with the given role
func (m *Manager) Issue(userID, role string) (string, error) {
	now := m.now()
	expiry := m.config.AccessExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID: userID,
		Role:   role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.Secret))
}

// ValidateAccessToken validates an access token and returns the claims
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.config.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.TokenInvalid()
	}
	if claims.UserID == "" && claims.Subject == "" {
		return nil, apperrors.TokenInvalid()
	}

	return claims, nil
}

// Verify resolves a bearer token into an actor
func (m *Manager) Verify(tokenString string) (*actor.Actor, error) {
	claims, err := m.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != actor.RoleEmployee && claims.Role != actor.RoleManager {
		return nil, apperrors.Forbidden("unsupported role")
	}
	return claims.Actor(), nil
}
