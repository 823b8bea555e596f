// Package treestore implements the user and role persistence contracts on
// the JSON-tree realtime database.
//
// Entities live in flat collections addressed by path; list-like side data
// (claims, logins, tokens) is kept as blobs keyed by the owning user id,
// with manually maintained reverse indexes for claim-value and
// provider/key lookups. Multi-step mutations here fan out as independent
// calls without a shared transaction, so a crash between the primary write
// and its index write can strand an index entry; lookups resolve ids
// through FindByID and skip dangling entries.
package treestore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/treeauth/identitystore/pkg/clients/treedb"
	"github.com/treeauth/identitystore/pkg/identity"
)

const (
	usersCollection      = "users"
	rolesCollection      = "roles"
	userClaimsCollection = "userClaims"
	claimIndexCollection = "claimIndexes"
	userLoginsCollection = "userLogins"
	loginIndexCollection = "loginIndexes"
	userTokensCollection = "userTokens"
	userRolesCollection  = "userRoles"
	roleClaimsCollection = "roleClaims"
)

// Store bundles the tree-backed sub-stores.
type Store struct {
	Users *UserStore
	Roles *RoleStore
}

// New creates a Store on the given database.
func New(db treedb.Database) *Store {
	roles := &RoleStore{db: db}
	users := &UserStore{
		db:         db,
		membership: &membership{db: db, roles: roles},
	}
	return &Store{Users: users, Roles: roles}
}

// Compile-time interface compliance checks
var (
	_ identity.UserStore = (*UserStore)(nil)
	_ identity.RoleStore = (*RoleStore)(nil)
)

// queryList runs an equality query against a collection, installing the
// covering index and retrying exactly once when the database reports it
// missing. A second failure propagates unmodified.
func queryList(ctx context.Context, db treedb.Database, collection string,
	q *treedb.Query, indexFields ...string) ([]treedb.KeyedItem, error) {

	var raw json.RawMessage
	_, err := db.Get(ctx, collection, q, &raw)
	if treedb.IsMissingIndex(err) {
		if ensureErr := db.EnsureIndex(ctx, collection, indexFields...); ensureErr != nil {
			return nil, ensureErr
		}
		_, err = db.Get(ctx, collection, q, &raw)
	}
	if errors.Is(err, treedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return treedb.DecodeKeyedList(raw)
}
