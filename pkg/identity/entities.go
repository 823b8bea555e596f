package identity

import "time"

// User is the primary identity record. The Id is assigned by the store on
// Create and is immutable afterwards. ConcurrencyStamp is mutated only by
// the store and is checked as an optimistic-lock precondition on every
// Update and Delete.
type User struct {
	Id                   string
	UserName             string
	NormalizedUserName   string
	Email                string
	NormalizedEmail      string
	EmailConfirmed       bool
	PasswordHash         string
	SecurityStamp        string
	PhoneNumber          string
	PhoneNumberConfirmed bool
	TwoFactorEnabled     bool
	LockoutEnd           *time.Time
	LockoutEnabled       bool
	AccessFailedCount    int
	ConcurrencyStamp     string
}

// Role is a named grouping of users.
type Role struct {
	Id               string
	Name             string
	NormalizedName   string
	ConcurrencyStamp string
}

// Claim is a type/value pair attached to a user or a role.
type Claim struct {
	Type  string
	Value string
}

// UserLogin links a user to an external identity. The LoginProvider and
// ProviderKey pair is unique system-wide.
type UserLogin struct {
	LoginProvider       string
	ProviderKey         string
	ProviderDisplayName string
}

// UserToken is a named token issued by an external provider for a user.
type UserToken struct {
	LoginProvider string
	Name          string
	Value         string
}

// UserRole records membership of a user in a role; existence of the pair
// implies membership.
type UserRole struct {
	UserID string
	RoleID string
}
