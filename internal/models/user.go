package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account. What it may do inside a tenant lives on TenantMember.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPublic is the account as /auth responses show it.
type UserPublic struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		DisplayName: DisplayName(u.FullName, u.Email),
		CreatedAt:   u.CreatedAt,
	}
}

// DisplayName is the full name, or the local part of the email when no name was given.
func DisplayName(fullName, email string) string {
	if n := strings.TrimSpace(fullName); n != "" {
		return n
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}
