package treestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/treeauth/identitystore/pkg/clients/treedb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
	"github.com/treeauth/identitystore/pkg/logger"
)

// resolveConcurrency bounds the FindByID fan-out when expanding an index
// entry into user entities.
const resolveConcurrency = 8

// Claims for a user are stored as a single list blob keyed by the user id.
// A reverse index claimIndexes/<key(type,value)>/<userId>=true is kept in
// step so GetUsersForClaim is a point lookup rather than a scan. The blob
// write and the index writes are independent calls, not a transaction.

// GetClaims implements identity.UserStore.
func (s *UserStore) GetClaims(ctx context.Context, user *identity.User) ([]identity.Claim, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identity.RequiredError("user")
	}
	return s.readClaims(ctx, user.Id)
}

func (s *UserStore) readClaims(ctx context.Context, userID string) ([]identity.Claim, error) {
	var rows []fieldmap.Wire
	_, err := s.db.Get(ctx, userClaimsCollection+"/"+userID, nil, &rows)
	if errors.Is(err, treedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claims for user %s: %w", userID, err)
	}

	claims := make([]identity.Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, fieldmap.ClaimFromWire(row))
	}
	return claims, nil
}

func (s *UserStore) writeClaims(ctx context.Context, userID string, claims []identity.Claim) error {
	path := userClaimsCollection + "/" + userID
	if len(claims) == 0 {
		if err := s.db.Delete(ctx, path, ""); err != nil {
			return fmt.Errorf("failed to clear claims for user %s: %w", userID, err)
		}
		return nil
	}

	rows := make([]fieldmap.Wire, 0, len(claims))
	for _, claim := range claims {
		rows = append(rows, fieldmap.Wire{"ClaimType": claim.Type, "ClaimValue": claim.Value})
	}
	if _, err := s.db.Put(ctx, path, rows, ""); err != nil {
		return fmt.Errorf("failed to write claims for user %s: %w", userID, err)
	}
	return nil
}

// AddClaims implements identity.UserStore.
func (s *UserStore) AddClaims(ctx context.Context, user *identity.User, claims []identity.Claim) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}
	if len(claims) == 0 {
		return nil
	}

	existing, err := s.readClaims(ctx, user.Id)
	if err != nil {
		return err
	}
	if err := s.writeClaims(ctx, user.Id, append(existing, claims...)); err != nil {
		return err
	}

	for _, claim := range claims {
		if err := s.indexClaim(ctx, user.Id, claim); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceClaim implements identity.UserStore.
func (s *UserStore) ReplaceClaim(ctx context.Context, user *identity.User, claim, newClaim identity.Claim) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}

	existing, err := s.readClaims(ctx, user.Id)
	if err != nil {
		return err
	}
	replaced := false
	for i, c := range existing {
		if c == claim {
			existing[i] = newClaim
			replaced = true
		}
	}
	if !replaced {
		return nil
	}
	if err := s.writeClaims(ctx, user.Id, existing); err != nil {
		return err
	}
	if err := s.unindexClaim(ctx, user.Id, claim); err != nil {
		return err
	}
	return s.indexClaim(ctx, user.Id, newClaim)
}

// RemoveClaims implements identity.UserStore.
func (s *UserStore) RemoveClaims(ctx context.Context, user *identity.User, claims []identity.Claim) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}
	if len(claims) == 0 {
		return nil
	}

	existing, err := s.readClaims(ctx, user.Id)
	if err != nil {
		return err
	}

	removing := make(map[identity.Claim]bool, len(claims))
	for _, claim := range claims {
		removing[claim] = true
	}
	remaining := existing[:0]
	for _, claim := range existing {
		if !removing[claim] {
			remaining = append(remaining, claim)
		}
	}
	if err := s.writeClaims(ctx, user.Id, remaining); err != nil {
		return err
	}

	for _, claim := range claims {
		if err := s.unindexClaim(ctx, user.Id, claim); err != nil {
			return err
		}
	}
	return nil
}

// GetUsersForClaim implements identity.UserStore. The index entry holds
// the member ids; each id resolves through FindByID and users deleted
// since the entry was written are silently skipped.
func (s *UserStore) GetUsersForClaim(ctx context.Context, claim identity.Claim) ([]*identity.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if claim.Type == "" {
		return nil, identity.RequiredError("claim.Type")
	}

	var members map[string]any
	_, err := s.db.Get(ctx, claimIndexCollection+"/"+indexKey(claim.Type, claim.Value), nil, &members)
	if errors.Is(err, treedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claim index: %w", err)
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return s.resolveUsers(ctx, ids)
}

func (s *UserStore) resolveUsers(ctx context.Context, ids []string) ([]*identity.User, error) {
	resolved := make([]*identity.User, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			user, err := s.FindByID(gctx, id)
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
			logger.Logger(ctx).WithField("userID", ids[i]).Debug("skipping dangling index entry")
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *UserStore) indexClaim(ctx context.Context, userID string, claim identity.Claim) error {
	path := claimIndexCollection + "/" + indexKey(claim.Type, claim.Value)
	if err := s.db.Patch(ctx, path, fieldmap.Wire{userID: true}); err != nil {
		return fmt.Errorf("failed to index claim for user %s: %w", userID, err)
	}
	return nil
}

func (s *UserStore) unindexClaim(ctx context.Context, userID string, claim identity.Claim) error {
	path := claimIndexCollection + "/" + indexKey(claim.Type, claim.Value) + "/" + userID
	if err := s.db.Delete(ctx, path, ""); err != nil {
		return fmt.Errorf("failed to unindex claim for user %s: %w", userID, err)
	}
	return nil
}
