package auth

import "time"

// User is an operator account (cashier, manager) allowed to call the API.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanLogin reports whether the account may authenticate.
func (u User) CanLogin() bool {
	return u.IsActive
}
