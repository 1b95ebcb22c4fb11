package domain

import (
	"errors"
	"time"
)

// Roles a user can hold
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrEmailTaken is returned when registering an email that already has a user.
var ErrEmailTaken = errors.New("email already registered")

// User Model
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`                       // Primary key
	Name      string    `gorm:"size:128;not null" json:"name"`              // Display name
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"` // Unique email, notification address
	Password  string    `gorm:"not null" json:"-"`                          // Hashed password
	Role      string    `gorm:"size:16;default:user" json:"role"`           // Role: user or admin
	CreatedAt time.Time `json:"created_at"`                                 // Registration time
	Account   *Account  `gorm:"foreignKey:UserID" json:"account,omitempty"` // One-to-one relationship with Account
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
