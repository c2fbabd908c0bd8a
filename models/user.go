package models

import "time"

// User represents a row in the "users" table.
// Fields map 1-to-1 with columns; no automatic relation loading.
// HashedPassword never leaves the process.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	FullName       *string   `json:"full_name"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateUserParams holds the fields required to create a new user.
// Keeping input types separate from the domain model prevents accidental
// mass-assignment and makes API contracts explicit.
type CreateUserParams struct {
	Email          string
	HashedPassword string
	FullName       *string
}

// UpdateUserParams holds fields that can be updated. Each field is wrapped
// in Optional so the repository can distinguish "leave unchanged" from
// "set this value" — including "set full_name to NULL", which a plain
// pointer cannot express alongside "untouched".
type UpdateUserParams struct {
	ID             int64
	Email          Optional[string]
	HashedPassword Optional[string]
	FullName       Optional[*string]
	IsActive       Optional[bool]
}

// Empty reports whether no field is marked for update.
func (p UpdateUserParams) Empty() bool {
	return !p.Email.Set && !p.HashedPassword.Set && !p.FullName.Set && !p.IsActive.Set
}
