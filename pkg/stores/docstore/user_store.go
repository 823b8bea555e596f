package docstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/treeauth/identitystore/pkg/clients/docdb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
	"github.com/treeauth/identitystore/pkg/logger"
)

// UserStore persists users and their side collections on the
// document-collection database.
type UserStore struct {
	client     docdb.Client
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

	user.ConcurrencyStamp = uuid.NewString()
	id, err := s.client.AddDoc(ctx, usersCollection, fieldmap.UserToWire(user))
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to create user: %w", err)
	}
	user.Id = id

	logger.Logger(ctx).WithField("userID", id).Debug("user created")
	return identity.OK(), nil
}

// Update implements identity.UserStore. The write runs in a transaction
// that re-reads the document and verifies the stored concurrency stamp
// before committing.
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

	newStamp := uuid.NewString()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx docdb.Tx) error {
		doc, err := tx.Get(ctx, usersCollection, user.Id)
		if err != nil {
			return err
		}
		if doc == nil || doc.Fields["ConcurrencyStamp"] != user.ConcurrencyStamp {
			return errStaleStamp
		}
		fields := fieldmap.UserToWire(user)
		fields["ConcurrencyStamp"] = newStamp
		tx.Set(usersCollection, user.Id, fields)
		return nil
	})
	if isConcurrencyConflict(err) {
		logger.Logger(ctx).WithField("userID", user.Id).Debug("user update lost the version race")
		return identity.ConcurrencyFailure(), nil
	}
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to update user %s: %w", user.Id, err)
	}
	user.ConcurrencyStamp = newStamp
	return identity.OK(), nil
}

// Delete implements identity.UserStore. Claim, login, and token rows are
// not cascaded; callers remove them separately if desired.
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

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx docdb.Tx) error {
		doc, err := tx.Get(ctx, usersCollection, user.Id)
		if err != nil {
			return err
		}
		if doc == nil || doc.Fields["ConcurrencyStamp"] != user.ConcurrencyStamp {
			return errStaleStamp
		}
		tx.Delete(usersCollection, user.Id)
		return nil
	})
	if isConcurrencyConflict(err) {
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

	doc, err := s.client.GetDoc(ctx, usersCollection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	user := fieldmap.UserFromWire(doc.Fields)
	user.Id = doc.ID
	return user, nil
}

// FindByName implements identity.UserStore.
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
	docs, err := s.client.Query(ctx, usersCollection, []docdb.Filter{{Field: field, Value: value}})
	if err != nil {
		return nil, fmt.Errorf("failed to query users by %s: %w", field, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	user := fieldmap.UserFromWire(docs[0].Fields)
	user.Id = docs[0].ID
	return user, nil
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
	return resolveUsers(ctx, s.FindByID, ids)
}
