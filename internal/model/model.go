package model

import (
	"encoding/json"
	"golang.org/x/exp/slices"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleSchool  Role = "school"
	RoleShop    Role = "shop"
	RoleStudent Role = "student"
	RoleUser    Role = "user"
)

// Roles is the closed set of roles the backend hands out.
var Roles = []Role{RoleAdmin, RoleSchool, RoleShop, RoleStudent, RoleUser}

func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

func (r Role) String() string {
	return string(r)
}

// User is the user record exactly as the backend returns it. Only the id and
// the role are interpreted here, everything else is passed through.
type User map[string]any

func (u User) ID() string {
	for _, key := range []string{"_id", "id"} {
		switch v := u[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			b, _ := json.Marshal(v)
			return string(b)
		}
	}
	return ""
}

func (u User) Role() Role {
	r, _ := u["role"].(string)
	return Role(r)
}

func (u User) Clone() User {
	if u == nil {
		return nil
	}
	out := make(User, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Merge returns a copy of u with fields layered on top. Nested objects are
// replaced, not merged.
func (u User) Merge(fields User) User {
	out := u.Clone()
	if out == nil {
		out = make(User, len(fields))
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Credentials is what an authenticator hands back. RefreshToken is empty
// when the authenticator cannot renew sessions.
type Credentials struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         User   `json:"user"`
}
