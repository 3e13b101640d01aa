package models

import (
	"strings"
	"time"
)

// Role is the privilege level supplied by the credential collaborator.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUser     Role = "user"
	RoleDispatch Role = "dispatch"
)

// ParseRole maps a claim value to a Role; unknown values are plain users.
// dispatchAlias is the configured claim value for the message-center role.
func ParseRole(v, dispatchAlias string) Role {
	s := strings.ToLower(strings.TrimSpace(v))
	switch {
	case s == string(RoleAdmin) || s == "administrator":
		return RoleAdmin
	case s == string(RoleDispatch) || (dispatchAlias != "" && s == strings.ToLower(dispatchAlias)):
		return RoleDispatch
	}
	return RoleUser
}

// User represents an application user (mapped from identity claims)
type User struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	Sub        string    `bson:"sub" json:"sub"` // OIDC subject
	Email      string    `bson:"email" json:"email"`
	Name       string    `bson:"name" json:"name"`
	Department string    `bson:"department" json:"department"`
	Role       Role      `bson:"role" json:"role"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Principal is the acting identity attached to every transition call.
type Principal struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	Department  string `json:"department"`
	DisplayName string `json:"displayName"`
}

func (p Principal) IsAdmin() bool    { return p.Role == RoleAdmin }
func (p Principal) IsDispatch() bool { return p.Role == RoleDispatch }

// Principal returns the acting identity for u.
func (u *User) Principal() Principal {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return Principal{ID: u.Sub, Role: u.Role, Department: u.Department, DisplayName: name}
}
