package domain

import "time"

// User is the local projection of an identity resolved by the external
// identity service. Rows are upserted whenever the identity is seen.
type User struct {
	ID        string
	Username  string
	IsStaff   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
