package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	// RoleUser is held by every authenticated user, stored or not.
	RoleUser = "ROLE_USER"
	// RoleAdmin grants catalog administration.
	RoleAdmin = "ROLE_ADMIN"
)

// User represents an API account. Every user is a digest recipient unless
// Newsletter has been switched off.
type User struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	Email        string                      `gorm:"size:180;uniqueIndex;not null" json:"email"`
	PasswordHash string                      `gorm:"size:255;not null" json:"-"`
	Roles        datatypes.JSONSlice[string] `gorm:"not null" json:"roles"`
	Newsletter   bool                        `gorm:"not null;index" json:"newsletter"`
	CreatedAt    time.Time                   `json:"-"`
	UpdatedAt    time.Time                   `json:"-"`
}

// EffectiveRoles returns the stored roles plus RoleUser, without duplicates.
func (u *User) EffectiveRoles() []string {
	seen := make(map[string]bool, len(u.Roles)+1)
	roles := make([]string, 0, len(u.Roles)+1)
	for _, r := range append([]string(u.Roles), RoleUser) {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	return roles
}

// MarshalJSON renders the effective roles, so RoleUser always appears.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		plain
		Roles []string `json:"roles"`
	}{plain(u), u.EffectiveRoles()})
}

// HasRole reports whether the user effectively holds role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.EffectiveRoles() {
		if r == role {
			return true
		}
	}
	return false
}
