package treestore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/treeauth/identitystore/pkg/clients/treedb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
	"github.com/treeauth/identitystore/pkg/logger"
)

// UserStore persists users and their side collections on the tree
// database.
type UserStore struct {
	db         treedb.Database
	membership *membership
	closed     atomic.Bool
}

func (s *UserStore) checkOpen() error {
	if s.closed.Load() {
		return identity.ErrDisposed
	}
	return nil
}

// Close implements identity.UserStore. Disposal is terminal.
func (s *UserStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Create implements identity.UserStore.
func (s *UserStore) Create(ctx context.Context, user *identity.User) (identity.Result, error) {
	if err := s.checkOpen(); err != nil {
		return identity.Result{}, err
	}
	if user == nil {
		return identity.Result{}, identity.RequiredError("user")
	}

	id, etag, err := s.db.Create(ctx, usersCollection, fieldmap.UserToWire(user))
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to create user: %w", err)
	}
	user.Id = id
	user.ConcurrencyStamp = userStamp(user, etag)

	logger.Logger(ctx).WithField("userID", id).Debug("user created")
	return identity.OK(), nil
}

// Update implements identity.UserStore.
func (s *UserStore) Update(ctx context.Context, user *identity.User) (identity.Result, error) {
	if err := s.checkOpen(); err != nil {
		return identity.Result{}, err
	}
	if user == nil {
		return identity.Result{}, identity.RequiredError("user")
	}
	if user.Id == "" {
		return identity.Result{}, identity.RequiredError("user.Id")
	}

	etag, err := s.db.Put(ctx, usersCollection+"/"+user.Id,
		fieldmap.UserToWire(user), stampETag(user.ConcurrencyStamp))
	if treedb.IsPreconditionFailed(err) {
		logger.Logger(ctx).WithField("userID", user.Id).Debug("user update lost the version race")
		return identity.ConcurrencyFailure(), nil
	}
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to update user %s: %w", user.Id, err)
	}
	user.ConcurrencyStamp = userStamp(user, etag)
	return identity.OK(), nil
}

// Delete implements identity.UserStore. Claim, login, and token side rows
// are not cascaded; callers remove them separately if desired.
func (s *UserStore) Delete(ctx context.Context, user *identity.User) (identity.Result, error) {
	if err := s.checkOpen(); err != nil {
		return identity.Result{}, err
	}
	if user == nil {
		return identity.Result{}, identity.RequiredError("user")
	}
	if user.Id == "" {
		return identity.Result{}, identity.RequiredError("user.Id")
	}

	err := s.db.Delete(ctx, usersCollection+"/"+user.Id, stampETag(user.ConcurrencyStamp))
	if treedb.IsPreconditionFailed(err) {
		return identity.ConcurrencyFailure(), nil
	}
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to delete user %s: %w", user.Id, err)
	}
	return identity.OK(), nil
}

// FindByID implements identity.UserStore.
func (s *UserStore) FindByID(ctx context.Context, id string) (*identity.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, identity.RequiredError("id")
	}

	var wire fieldmap.Wire
	etag, err := s.db.Get(ctx, usersCollection+"/"+id, nil, &wire)
	if errors.Is(err, treedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}

	user := fieldmap.UserFromWire(wire)
	user.Id = id
	user.ConcurrencyStamp = userStamp(user, etag)
	return user, nil
}

// FindByName implements identity.UserStore. The equality query resolves
// the document key, then the point lookup supplies the version token.
func (s *UserStore) FindByName(ctx context.Context, normalizedUserName string) (*identity.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if normalizedUserName == "" {
		return nil, identity.RequiredError("normalizedUserName")
	}
	return s.findByField(ctx, "NormalizedUserName", normalizedUserName)
}

// FindByEmail implements identity.UserStore.
func (s *UserStore) FindByEmail(ctx context.Context, normalizedEmail string) (*identity.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if normalizedEmail == "" {
		return nil, identity.RequiredError("normalizedEmail")
	}
	return s.findByField(ctx, "NormalizedEmail", normalizedEmail)
}

func (s *UserStore) findByField(ctx context.Context, field, value string) (*identity.User, error) {
	items, err := queryList(ctx, s.db, usersCollection,
		&treedb.Query{OrderBy: field, EqualTo: value},
		"NormalizedUserName", "NormalizedEmail")
	if err != nil {
		return nil, fmt.Errorf("failed to query users by %s: %w", field, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return s.FindByID(ctx, items[0].Key)
}

// AddToRole implements identity.UserStore.
func (s *UserStore) AddToRole(ctx context.Context, user *identity.User, normalizedRoleName string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}
	if normalizedRoleName == "" {
		return identity.RequiredError("normalizedRoleName")
	}
	return s.membership.addToRole(ctx, user.Id, normalizedRoleName)
}

// RemoveFromRole implements identity.UserStore.
func (s *UserStore) RemoveFromRole(ctx context.Context, user *identity.User, normalizedRoleName string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}
	if normalizedRoleName == "" {
		return identity.RequiredError("normalizedRoleName")
	}
	return s.membership.removeFromRole(ctx, user.Id, normalizedRoleName)
}

// IsInRole implements identity.UserStore.
func (s *UserStore) IsInRole(ctx context.Context, user *identity.User, normalizedRoleName string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if user == nil {
		return false, identity.RequiredError("user")
	}
	if normalizedRoleName == "" {
		return false, identity.RequiredError("normalizedRoleName")
	}
	return s.membership.isInRole(ctx, user.Id, normalizedRoleName)
}

// GetRoles implements identity.UserStore.
func (s *UserStore) GetRoles(ctx context.Context, user *identity.User) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identity.RequiredError("user")
	}
	return s.membership.roleNamesForUser(ctx, user.Id)
}

// GetUsersInRole implements identity.UserStore.
func (s *UserStore) GetUsersInRole(ctx context.Context, normalizedRoleName string) ([]*identity.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if normalizedRoleName == "" {
		return nil, identity.RequiredError("normalizedRoleName")
	}

	ids, err := s.membership.userIDsInRole(ctx, normalizedRoleName)
	if err != nil {
		return nil, err
	}
	return s.resolveUsers(ctx, ids)
}
