package accounts

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already exists")
)

// Account is an owner identity. The password hash never leaves this
// package.
type Account struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`

	passwordHash string
}

// Principal is the authenticated identity placed in the request context
// by the RequireAuth middleware.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
