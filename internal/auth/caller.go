package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RolePatient       Role = "patient"
	RolePhysician     Role = "physician"
	RoleAdministrator Role = "administrator"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RolePhysician, RoleAdministrator:
		return true
	}
	return false
}

// Caller is the already authenticated identity every service call receives.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdministrator
}

// Is reports whether the caller acts as the given user in the given role.
func (c Caller) Is(role Role, id uuid.UUID) bool {
	return c.Role == role && c.ID == id
}

func (c Caller) String() string {
	return fmt.Sprintf("%s:%s", c.Role, c.ID)
}

// System is used by background jobs such as the stale appointment sweep.
var System = Caller{ID: uuid.Nil, Role: RoleAdministrator}

var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload the API accepts.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates an HMAC signed token and returns the caller it names.
func ParseToken(tokenString, secret string) (Caller, error) {
	if secret == "" {
		return Caller{}, fmt.Errorf("%w: signing secret not configured", ErrInvalidToken)
	}

	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: subject must be a UUID", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return Caller{ID: id, Role: claims.Role}, nil
}

// SignToken issues a token for the caller. Used by the seed and simulate
// tools; real tokens come from the identity provider.
func SignToken(c Caller, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
