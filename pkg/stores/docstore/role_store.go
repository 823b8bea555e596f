package docstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/treeauth/identitystore/pkg/clients/docdb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
)

// RoleStore persists roles and role claims on the document-collection
// database. The concurrency stamp is a dedicated stored field verified
// inside a transaction on update and delete.
type RoleStore struct {
	client docdb.Client
	closed atomic.Bool
}

func (s *RoleStore) checkOpen() error {
	if s.closed.Load() {
		return identity.ErrDisposed
	}
	return nil
}

// Close implements identity.RoleStore. Disposal is terminal.
func (s *RoleStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Create implements identity.RoleStore.
func (s *RoleStore) Create(ctx context.Context, role *identity.Role) (identity.Result, error) {
	if err := s.checkOpen(); err != nil {
		return identity.Result{}, err
	}
	if role == nil {
		return identity.Result{}, identity.RequiredError("role")
	}

	role.ConcurrencyStamp = uuid.NewString()
	id, err := s.client.AddDoc(ctx, rolesCollection, fieldmap.RoleToWire(role))
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to create role: %w", err)
	}
	role.Id = id
	return identity.OK(), nil
}

// Update implements identity.RoleStore.
func (s *RoleStore) Update(ctx context.Context, role *identity.Role) (identity.Result, error) {
	if err := s.checkOpen(); err != nil {
		return identity.Result{}, err
	}
	if role == nil {
		return identity.Result{}, identity.RequiredError("role")
	}
	if role.Id == "" {
		return identity.Result{}, identity.RequiredError("role.Id")
	}

	newStamp := uuid.NewString()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx docdb.Tx) error {
		doc, err := tx.Get(ctx, rolesCollection, role.Id)
		if err != nil {
			return err
		}
		if doc == nil || doc.Fields["ConcurrencyStamp"] != role.ConcurrencyStamp {
			return errStaleStamp
		}
		fields := fieldmap.RoleToWire(role)
		fields["ConcurrencyStamp"] = newStamp
		tx.Set(rolesCollection, role.Id, fields)
		return nil
	})
	if isConcurrencyConflict(err) {
		return identity.ConcurrencyFailure(), nil
	}
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to update role %s: %w", role.Id, err)
	}
	role.ConcurrencyStamp = newStamp
	return identity.OK(), nil
}

// Delete implements identity.RoleStore.
func (s *RoleStore) Delete(ctx context.Context, role *identity.Role) (identity.Result, error) {
	if err := s.checkOpen(); err != nil {
		return identity.Result{}, err
	}
	if role == nil {
		return identity.Result{}, identity.RequiredError("role")
	}
	if role.Id == "" {
		return identity.Result{}, identity.RequiredError("role.Id")
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx docdb.Tx) error {
		doc, err := tx.Get(ctx, rolesCollection, role.Id)
		if err != nil {
			return err
		}
		if doc == nil || doc.Fields["ConcurrencyStamp"] != role.ConcurrencyStamp {
			return errStaleStamp
		}
		tx.Delete(rolesCollection, role.Id)
		return nil
	})
	if isConcurrencyConflict(err) {
		return identity.ConcurrencyFailure(), nil
	}
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to delete role %s: %w", role.Id, err)
	}
	return identity.OK(), nil
}

// FindByID implements identity.RoleStore.
func (s *RoleStore) FindByID(ctx context.Context, id string) (*identity.Role, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, identity.RequiredError("id")
	}

	doc, err := s.client.GetDoc(ctx, rolesCollection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load role %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	role := fieldmap.RoleFromWire(doc.Fields)
	role.Id = doc.ID
	return role, nil
}

// FindByName implements identity.RoleStore.
func (s *RoleStore) FindByName(ctx context.Context, normalizedName string) (*identity.Role, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if normalizedName == "" {
		return nil, identity.RequiredError("normalizedName")
	}

	docs, err := s.client.Query(ctx, rolesCollection,
		[]docdb.Filter{{Field: "NormalizedName", Value: normalizedName}})
	if err != nil {
		return nil, fmt.Errorf("failed to query roles by name: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	role := fieldmap.RoleFromWire(docs[0].Fields)
	role.Id = docs[0].ID
	return role, nil
}

// GetClaims implements identity.RoleStore.
func (s *RoleStore) GetClaims(ctx context.Context, role *identity.Role) ([]identity.Claim, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if role == nil {
		return nil, identity.RequiredError("role")
	}

	docs, err := s.client.Query(ctx, roleClaimsCollection,
		[]docdb.Filter{{Field: "RoleId", Value: role.Id}})
	if err != nil {
		return nil, fmt.Errorf("failed to query claims for role %s: %w", role.Id, err)
	}
	claims := make([]identity.Claim, 0, len(docs))
	for _, doc := range docs {
		claims = append(claims, fieldmap.ClaimFromWire(doc.Fields))
	}
	return claims, nil
}

// AddClaim implements identity.RoleStore.
func (s *RoleStore) AddClaim(ctx context.Context, role *identity.Role, claim identity.Claim) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if role == nil {
		return identity.RequiredError("role")
	}
	if claim.Type == "" {
		return identity.RequiredError("claim.Type")
	}

	wire := fieldmap.ClaimToWire("RoleId", role.Id, claim)
	if _, err := s.client.AddDoc(ctx, roleClaimsCollection, wire); err != nil {
		return fmt.Errorf("failed to add claim to role %s: %w", role.Id, err)
	}
	return nil
}

// RemoveClaim implements identity.RoleStore.
func (s *RoleStore) RemoveClaim(ctx context.Context, role *identity.Role, claim identity.Claim) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if role == nil {
		return identity.RequiredError("role")
	}

	docs, err := s.client.Query(ctx, roleClaimsCollection, []docdb.Filter{
		{Field: "RoleId", Value: role.Id},
		{Field: "ClaimType", Value: claim.Type},
		{Field: "ClaimValue", Value: claim.Value},
	})
	if err != nil {
		return fmt.Errorf("failed to query claim rows for role %s: %w", role.Id, err)
	}
	for _, doc := range docs {
		if err := s.client.DeleteDoc(ctx, roleClaimsCollection, doc.ID); err != nil {
			return fmt.Errorf("failed to remove claim from role %s: %w", role.Id, err)
		}
	}
	return nil
}
