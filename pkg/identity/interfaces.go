package identity

import "context"

// UserStore defines persistence operations for users and their claim,
// login, token, and role-membership side collections.
// Lookups return a nil entity (and a nil error) when nothing matches.
// Mutations report expected failures such as version conflicts through the
// returned Result; errors are reserved for argument, disposed, and
// transport faults.
type UserStore interface {
	// Create inserts the user and assigns its server-generated Id and
	// initial ConcurrencyStamp.
	Create(ctx context.Context, user *User) (Result, error)

	// Update writes the user under its current ConcurrencyStamp as an
	// optimistic-lock precondition. A stale stamp yields a
	// concurrency-failure Result and leaves the stored entity unchanged.
	Update(ctx context.Context, user *User) (Result, error)

	// Delete removes the user under the same precondition discipline as
	// Update. Side-collection rows are not cascaded.
	Delete(ctx context.Context, user *User) (Result, error)

	// FindByID resolves a user by its Id.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByName resolves a user by normalized user name.
	FindByName(ctx context.Context, normalizedUserName string) (*User, error)

	// FindByEmail resolves a user by normalized email.
	FindByEmail(ctx context.Context, normalizedEmail string) (*User, error)

	// GetClaims returns all claims held by the user.
	GetClaims(ctx context.Context, user *User) ([]Claim, error)

	// AddClaims attaches the given claims to the user and maintains the
	// claim-value lookup index.
	AddClaims(ctx context.Context, user *User, claims []Claim) error

	// ReplaceClaim swaps one claim for another on the user.
	ReplaceClaim(ctx context.Context, user *User, claim, newClaim Claim) error

	// RemoveClaims detaches the given claims from the user.
	RemoveClaims(ctx context.Context, user *User, claims []Claim) error

	// GetUsersForClaim returns every user holding the claim. Dangling
	// index entries for since-removed users are skipped.
	GetUsersForClaim(ctx context.Context, claim Claim) ([]*User, error)

	// GetLogins returns the user's external logins.
	GetLogins(ctx context.Context, user *User) ([]UserLogin, error)

	// AddLogin attaches an external login and updates the reverse
	// provider/key index used by FindByLogin.
	AddLogin(ctx context.Context, user *User, login UserLogin) error

	// RemoveLogin detaches an external login and its reverse-index entry.
	RemoveLogin(ctx context.Context, user *User, loginProvider, providerKey string) error

	// FindByLogin resolves the user owning the provider/key pair via the
	// reverse index; a point lookup, not a scan.
	FindByLogin(ctx context.Context, loginProvider, providerKey string) (*User, error)

	// GetTokens returns the user's full token set.
	GetTokens(ctx context.Context, user *User) ([]UserToken, error)

	// SaveTokens replaces the user's entire token set.
	SaveTokens(ctx context.Context, user *User, tokens []UserToken) error

	// AddToRole adds the user to the role with the given normalized name.
	// Returns ErrRoleNotFound when no such role exists.
	AddToRole(ctx context.Context, user *User, normalizedRoleName string) error

	// RemoveFromRole removes the user from the named role.
	RemoveFromRole(ctx context.Context, user *User, normalizedRoleName string) error

	// IsInRole reports whether the user is a member of the named role.
	IsInRole(ctx context.Context, user *User, normalizedRoleName string) (bool, error)

	// GetRoles returns the names of the roles the user belongs to.
	GetRoles(ctx context.Context, user *User) ([]string, error)

	// GetUsersInRole returns every member of the named role.
	GetUsersInRole(ctx context.Context, normalizedRoleName string) ([]*User, error)

	// Close transitions the store to its terminal disposed state; every
	// later operation fails with ErrDisposed.
	Close() error
}

// RoleStore defines persistence operations for roles and role claims.
type RoleStore interface {
	// Create inserts the role and assigns its server-generated Id and
	// initial ConcurrencyStamp.
	Create(ctx context.Context, role *Role) (Result, error)

	// Update writes the role under its ConcurrencyStamp precondition.
	Update(ctx context.Context, role *Role) (Result, error)

	// Delete removes the role under the same precondition discipline.
	Delete(ctx context.Context, role *Role) (Result, error)

	// FindByID resolves a role by its Id.
	FindByID(ctx context.Context, id string) (*Role, error)

	// FindByName resolves a role by normalized name.
	FindByName(ctx context.Context, normalizedName string) (*Role, error)

	// GetClaims returns all claims held by the role.
	GetClaims(ctx context.Context, role *Role) ([]Claim, error)

	// AddClaim attaches a claim to the role.
	AddClaim(ctx context.Context, role *Role, claim Claim) error

	// RemoveClaim detaches a claim from the role.
	RemoveClaim(ctx context.Context, role *Role, claim Claim) error

	// Close transitions the store to its terminal disposed state.
	Close() error
}
