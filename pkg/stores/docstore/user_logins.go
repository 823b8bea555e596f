package docstore

import (
	"context"
	"fmt"

	"github.com/treeauth/identitystore/pkg/clients/docdb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
	"github.com/treeauth/identitystore/pkg/logger"
)

// GetLogins implements identity.UserStore.
func (s *UserStore) GetLogins(ctx context.Context, user *identity.User) ([]identity.UserLogin, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identity.RequiredError("user")
	}

	docs, err := s.client.Query(ctx, userLoginsCollection,
		[]docdb.Filter{{Field: "UserId", Value: user.Id}})
	if err != nil {
		return nil, fmt.Errorf("failed to query logins for user %s: %w", user.Id, err)
	}
	logins := make([]identity.UserLogin, 0, len(docs))
	for _, doc := range docs {
		logins = append(logins, fieldmap.LoginFromWire(doc.Fields))
	}
	return logins, nil
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

	wire := fieldmap.LoginToWire(user.Id, login)
	if _, err := s.client.AddDoc(ctx, userLoginsCollection, wire); err != nil {
		return fmt.Errorf("failed to add login for user %s: %w", user.Id, err)
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

	docs, err := s.client.Query(ctx, userLoginsCollection, []docdb.Filter{
		{Field: "UserId", Value: user.Id},
		{Field: "LoginProvider", Value: loginProvider},
		{Field: "ProviderKey", Value: providerKey},
	})
	if err != nil {
		return fmt.Errorf("failed to query login rows for user %s: %w", user.Id, err)
	}
	for _, doc := range docs {
		if err := s.client.DeleteDoc(ctx, userLoginsCollection, doc.ID); err != nil {
			return fmt.Errorf("failed to remove login for user %s: %w", user.Id, err)
		}
	}
	return nil
}

// FindByLogin implements identity.UserStore. Provider/key pairs are unique
// system-wide; if duplicates accidentally exist the first match wins.
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

	docs, err := s.client.Query(ctx, userLoginsCollection, []docdb.Filter{
		{Field: "LoginProvider", Value: loginProvider},
		{Field: "ProviderKey", Value: providerKey},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query login %s/%s: %w", loginProvider, providerKey, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	userID, _ := docs[0].Fields["UserId"].(string)
	if userID == "" {
		return nil, nil
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

	docs, err := s.client.Query(ctx, userTokensCollection,
		[]docdb.Filter{{Field: "UserId", Value: user.Id}})
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens for user %s: %w", user.Id, err)
	}
	tokens := make([]identity.UserToken, 0, len(docs))
	for _, doc := range docs {
		tokens = append(tokens, fieldmap.TokenFromWire(doc.Fields))
	}
	return tokens, nil
}

// SaveTokens implements identity.UserStore. The replacement loops one
// delete and one insert at a time without a transaction, so a crash
// mid-save can leave a partial token set; the next save converges.
func (s *UserStore) SaveTokens(ctx context.Context, user *identity.User, tokens []identity.UserToken) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}

	existing, err := s.client.Query(ctx, userTokensCollection,
		[]docdb.Filter{{Field: "UserId", Value: user.Id}})
	if err != nil {
		return fmt.Errorf("failed to query tokens for user %s: %w", user.Id, err)
	}
	for _, doc := range existing {
		if err := s.client.DeleteDoc(ctx, userTokensCollection, doc.ID); err != nil {
			return fmt.Errorf("failed to clear token for user %s: %w", user.Id, err)
		}
	}
	for _, token := range tokens {
		wire := fieldmap.TokenToWire(user.Id, token)
		if _, err := s.client.AddDoc(ctx, userTokensCollection, wire); err != nil {
			return fmt.Errorf("failed to save token for user %s: %w", user.Id, err)
		}
	}

	logger.Logger(ctx).WithField("userID", user.Id).
		WithField("count", len(tokens)).Debug("token set replaced")
	return nil
}
