package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the participant role a connection acts as inside a session.
type Role string

const (
	RoleTherapist Role = "therapist"
	RoleStudent   Role = "student"
)

// Valid reports whether r is one of the two participant roles.
func (r Role) Valid() bool {
	return r == RoleTherapist || r == RoleStudent
}

// Other returns the opposite participant role.
func (r Role) Other() Role {
	if r == RoleTherapist {
		return RoleStudent
	}
	return RoleTherapist
}

// UserClaims are JWT claims presented by a connecting client
type UserClaims struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated principal attached to a connection
type Identity struct {
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
	// TokenID is the jti of the presented token, empty for tokens without one
	TokenID string `json:"-"`
}
