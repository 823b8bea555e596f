// Package docstore implements the user and role persistence contracts on
// the document-collection database.
//
// Unlike the tree backing, entity update and delete run inside a database
// transaction that re-reads the document and verifies its stored
// ConcurrencyStamp field before committing (read-verify-write). Side
// collections are one row per item and are served by native field-equality
// queries, so no manually maintained reverse indexes exist here. Side-table
// fan-out (token replacement, multi-claim writes) still loops one call at
// a time outside any transaction.
package docstore

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/treeauth/identitystore/pkg/clients/docdb"
	"github.com/treeauth/identitystore/pkg/identity"
	"github.com/treeauth/identitystore/pkg/logger"
)

const (
	usersCollection      = "users"
	rolesCollection      = "roles"
	userClaimsCollection = "userClaims"
	userLoginsCollection = "userLogins"
	userTokensCollection = "userTokens"
	userRolesCollection  = "userRoles"
	roleClaimsCollection = "roleClaims"
)

const resolveConcurrency = 8

// errStaleStamp aborts a transaction whose read-verify step found a
// concurrency stamp mismatch; it is translated to a concurrency-failure
// Result and never escapes the package.
var errStaleStamp = errors.New("docstore: concurrency stamp is stale")

// Store bundles the collection-backed sub-stores.
type Store struct {
	Users *UserStore
	Roles *RoleStore
}

// New creates a Store on the given client.
func New(client docdb.Client) *Store {
	roles := &RoleStore{client: client}
	users := &UserStore{
		client:     client,
		membership: &membership{client: client, roles: roles},
	}
	return &Store{Users: users, Roles: roles}
}

// Compile-time interface compliance checks
var (
	_ identity.UserStore = (*UserStore)(nil)
	_ identity.RoleStore = (*RoleStore)(nil)
)

// isConcurrencyConflict folds the two ways a transactional write loses the
// version race: the in-transaction stamp verification and the commit-time
// read-version precondition.
func isConcurrencyConflict(err error) bool {
	return errors.Is(err, errStaleStamp) || docdb.IsConflict(err)
}

func resolveUsers(ctx context.Context, find func(context.Context, string) (*identity.User, error),
	ids []string) ([]*identity.User, error) {

	resolved := make([]*identity.User, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			user, err := find(gctx, id)
			if err != nil {
				return err
			}
			resolved[i] = user
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	users := make([]*identity.User, 0, len(resolved))
	for i, user := range resolved {
		if user == nil {
			logger.Logger(ctx).WithField("userID", ids[i]).Debug("skipping removed user")
			continue
		}
		users = append(users, user)
	}
	return users, nil
}
