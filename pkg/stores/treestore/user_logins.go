package treestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/treeauth/identitystore/pkg/clients/treedb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
)

// External logins are stored as a list blob per user with a global reverse
// index loginIndexes/<key(provider,providerKey)> = userId, so FindByLogin
// is a point lookup. The index slot is a single value: if duplicate
// provider/key pairs ever exist, the last indexed write wins and lookups
// return that match.

// GetLogins implements identity.UserStore.
func (s *UserStore) GetLogins(ctx context.Context, user *identity.User) ([]identity.UserLogin, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identity.RequiredError("user")
	}
	return s.readLogins(ctx, user.Id)
}

func (s *UserStore) readLogins(ctx context.Context, userID string) ([]identity.UserLogin, error) {
	var rows []fieldmap.Wire
	_, err := s.db.Get(ctx, userLoginsCollection+"/"+userID, nil, &rows)
	if errors.Is(err, treedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load logins for user %s: %w", userID, err)
	}

	logins := make([]identity.UserLogin, 0, len(rows))
	for _, row := range rows {
		logins = append(logins, fieldmap.LoginFromWire(row))
	}
	return logins, nil
}

func (s *UserStore) writeLogins(ctx context.Context, userID string, logins []identity.UserLogin) error {
	path := userLoginsCollection + "/" + userID
	if len(logins) == 0 {
		if err := s.db.Delete(ctx, path, ""); err != nil {
			return fmt.Errorf("failed to clear logins for user %s: %w", userID, err)
		}
		return nil
	}

	rows := make([]fieldmap.Wire, 0, len(logins))
	for _, login := range logins {
		rows = append(rows, fieldmap.Wire{
			"LoginProvider":       login.LoginProvider,
			"ProviderKey":         login.ProviderKey,
			"ProviderDisplayName": login.ProviderDisplayName,
		})
	}
	if _, err := s.db.Put(ctx, path, rows, ""); err != nil {
		return fmt.Errorf("failed to write logins for user %s: %w", userID, err)
	}
	return nil
}

// AddLogin implements identity.UserStore.
func (s *UserStore) AddLogin(ctx context.Context, user *identity.User, login identity.UserLogin) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}
	if login.LoginProvider == "" {
		return identity.RequiredError("login.LoginProvider")
	}
	if login.ProviderKey == "" {
		return identity.RequiredError("login.ProviderKey")
	}

	logins, err := s.readLogins(ctx, user.Id)
	if err != nil {
		return err
	}
	if err := s.writeLogins(ctx, user.Id, append(logins, login)); err != nil {
		return err
	}

	indexPath := loginIndexCollection + "/" + indexKey(login.LoginProvider, login.ProviderKey)
	if _, err := s.db.Put(ctx, indexPath, user.Id, ""); err != nil {
		return fmt.Errorf("failed to index login for user %s: %w", user.Id, err)
	}
	return nil
}

// RemoveLogin implements identity.UserStore.
func (s *UserStore) RemoveLogin(ctx context.Context, user *identity.User, loginProvider, providerKey string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}
	if loginProvider == "" {
		return identity.RequiredError("loginProvider")
	}
	if providerKey == "" {
		return identity.RequiredError("providerKey")
	}

	logins, err := s.readLogins(ctx, user.Id)
	if err != nil {
		return err
	}
	remaining := logins[:0]
	for _, login := range logins {
		if login.LoginProvider == loginProvider && login.ProviderKey == providerKey {
			continue
		}
		remaining = append(remaining, login)
	}
	if err := s.writeLogins(ctx, user.Id, remaining); err != nil {
		return err
	}

	indexPath := loginIndexCollection + "/" + indexKey(loginProvider, providerKey)
	if err := s.db.Delete(ctx, indexPath, ""); err != nil {
		return fmt.Errorf("failed to unindex login for user %s: %w", user.Id, err)
	}
	return nil
}

// FindByLogin implements identity.UserStore.
func (s *UserStore) FindByLogin(ctx context.Context, loginProvider, providerKey string) (*identity.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if loginProvider == "" {
		return nil, identity.RequiredError("loginProvider")
	}
	if providerKey == "" {
		return nil, identity.RequiredError("providerKey")
	}

	var userID string
	_, err := s.db.Get(ctx, loginIndexCollection+"/"+indexKey(loginProvider, providerKey), nil, &userID)
	if errors.Is(err, treedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load login index: %w", err)
	}
	return s.FindByID(ctx, userID)
}

// GetTokens implements identity.UserStore.
func (s *UserStore) GetTokens(ctx context.Context, user *identity.User) ([]identity.UserToken, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identity.RequiredError("user")
	}

	var rows []fieldmap.Wire
	_, err := s.db.Get(ctx, userTokensCollection+"/"+user.Id, nil, &rows)
	if errors.Is(err, treedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens for user %s: %w", user.Id, err)
	}

	tokens := make([]identity.UserToken, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, fieldmap.TokenFromWire(row))
	}
	return tokens, nil
}

// SaveTokens implements identity.UserStore. The single blob write replaces
// the user's entire token set atomically.
func (s *UserStore) SaveTokens(ctx context.Context, user *identity.User, tokens []identity.UserToken) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}

	path := userTokensCollection + "/" + user.Id
	if len(tokens) == 0 {
		if err := s.db.Delete(ctx, path, ""); err != nil {
			return fmt.Errorf("failed to clear tokens for user %s: %w", user.Id, err)
		}
		return nil
	}

	rows := make([]fieldmap.Wire, 0, len(tokens))
	for _, token := range tokens {
		rows = append(rows, fieldmap.Wire{
			"LoginProvider": token.LoginProvider,
			"Name":          token.Name,
			"Value":         token.Value,
		})
	}
	if _, err := s.db.Put(ctx, path, rows, ""); err != nil {
		return fmt.Errorf("failed to write tokens for user %s: %w", user.Id, err)
	}
	return nil
}
