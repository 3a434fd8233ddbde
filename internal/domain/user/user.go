// Package user describes the account records the identity provider resolves
// request credentials to.
package user

import "context"

// Role is the coarse permission level of an account.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// User is a registered account.
type User struct {
	ID       int64
	Username string
	Email    string
	Role     Role
}

// Repository looks up users. GetByID returns an error matching
// apperr.ErrNotFound for unknown ids.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}
