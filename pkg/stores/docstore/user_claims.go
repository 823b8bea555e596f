package docstore

import (
	"context"
	"fmt"

	"github.com/treeauth/identitystore/pkg/clients/docdb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
)

// Claims are one row per claim in the userClaims collection. Equality
// queries over (ClaimType, ClaimValue) serve GetUsersForClaim directly, so
// no manual index is maintained in this backing.

// GetClaims implements identity.UserStore.
func (s *UserStore) GetClaims(ctx context.Context, user *identity.User) ([]identity.Claim, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identity.RequiredError("user")
	}

	docs, err := s.client.Query(ctx, userClaimsCollection,
		[]docdb.Filter{{Field: "UserId", Value: user.Id}})
	if err != nil {
		return nil, fmt.Errorf("failed to query claims for user %s: %w", user.Id, err)
	}
	claims := make([]identity.Claim, 0, len(docs))
	for _, doc := range docs {
		claims = append(claims, fieldmap.ClaimFromWire(doc.Fields))
	}
	return claims, nil
}

// AddClaims implements identity.UserStore. Rows are inserted one call at a
// time; a failure mid-loop leaves the earlier rows in place.
func (s *UserStore) AddClaims(ctx context.Context, user *identity.User, claims []identity.Claim) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}

	for _, claim := range claims {
		wire := fieldmap.ClaimToWire("UserId", user.Id, claim)
		if _, err := s.client.AddDoc(ctx, userClaimsCollection, wire); err != nil {
			return fmt.Errorf("failed to add claim for user %s: %w", user.Id, err)
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

	docs, err := s.claimRows(ctx, user.Id, claim)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		wire := fieldmap.ClaimToWire("UserId", user.Id, newClaim)
		if err := s.client.SetDoc(ctx, userClaimsCollection, doc.ID, wire); err != nil {
			return fmt.Errorf("failed to replace claim for user %s: %w", user.Id, err)
		}
	}
	return nil
}

// RemoveClaims implements identity.UserStore.
func (s *UserStore) RemoveClaims(ctx context.Context, user *identity.User, claims []identity.Claim) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if user == nil {
		return identity.RequiredError("user")
	}

	for _, claim := range claims {
		docs, err := s.claimRows(ctx, user.Id, claim)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := s.client.DeleteDoc(ctx, userClaimsCollection, doc.ID); err != nil {
				return fmt.Errorf("failed to remove claim for user %s: %w", user.Id, err)
			}
		}
	}
	return nil
}

// GetUsersForClaim implements identity.UserStore.
func (s *UserStore) GetUsersForClaim(ctx context.Context, claim identity.Claim) ([]*identity.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if claim.Type == "" {
		return nil, identity.RequiredError("claim.Type")
	}

	docs, err := s.client.Query(ctx, userClaimsCollection, []docdb.Filter{
		{Field: "ClaimType", Value: claim.Type},
		{Field: "ClaimValue", Value: claim.Value},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query users for claim: %w", err)
	}

	seen := map[string]bool{}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc.Fields["UserId"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return resolveUsers(ctx, s.FindByID, ids)
}

func (s *UserStore) claimRows(ctx context.Context, userID string, claim identity.Claim) ([]*docdb.Document, error) {
	docs, err := s.client.Query(ctx, userClaimsCollection, []docdb.Filter{
		{Field: "UserId", Value: userID},
		{Field: "ClaimType", Value: claim.Type},
		{Field: "ClaimValue", Value: claim.Value},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query claim rows for user %s: %w", userID, err)
	}
	return docs, nil
}
