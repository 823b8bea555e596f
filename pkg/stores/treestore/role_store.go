package treestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/treeauth/identitystore/pkg/clients/treedb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
)

// RoleStore persists roles and role claims on the tree database. Role
// concurrency stamps are the raw server version token.
type RoleStore struct {
	db     treedb.Database
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

	id, etag, err := s.db.Create(ctx, rolesCollection, fieldmap.RoleToWire(role))
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to create role: %w", err)
	}
	role.Id = id
	role.ConcurrencyStamp = etag
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

	etag, err := s.db.Put(ctx, rolesCollection+"/"+role.Id,
		fieldmap.RoleToWire(role), role.ConcurrencyStamp)
	if treedb.IsPreconditionFailed(err) {
		return identity.ConcurrencyFailure(), nil
	}
	if err != nil {
		return identity.Result{}, fmt.Errorf("failed to update role %s: %w", role.Id, err)
	}
	role.ConcurrencyStamp = etag
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

	err := s.db.Delete(ctx, rolesCollection+"/"+role.Id, role.ConcurrencyStamp)
	if treedb.IsPreconditionFailed(err) {
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

	var wire fieldmap.Wire
	etag, err := s.db.Get(ctx, rolesCollection+"/"+id, nil, &wire)
	if errors.Is(err, treedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load role %s: %w", id, err)
	}

	role := fieldmap.RoleFromWire(wire)
	role.Id = id
	role.ConcurrencyStamp = etag
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

	items, err := queryList(ctx, s.db, rolesCollection,
		&treedb.Query{OrderBy: "NormalizedName", EqualTo: normalizedName},
		"NormalizedName")
	if err != nil {
		return nil, fmt.Errorf("failed to query roles by name: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return s.FindByID(ctx, items[0].Key)
}

// Role claims are one row per claim in the roleClaims collection, keyed by
// the owning role id.

// GetClaims implements identity.RoleStore.
func (s *RoleStore) GetClaims(ctx context.Context, role *identity.Role) ([]identity.Claim, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if role == nil {
		return nil, identity.RequiredError("role")
	}

	items, err := s.claimRows(ctx, role.Id)
	if err != nil {
		return nil, err
	}
	claims := make([]identity.Claim, 0, len(items))
	for _, item := range items {
		var row fieldmap.Wire
		if err := json.Unmarshal(item.Raw, &row); err != nil {
			return nil, fmt.Errorf("failed to decode role claim %s: %w", item.Key, err)
		}
		claims = append(claims, fieldmap.ClaimFromWire(row))
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
	if _, _, err := s.db.Create(ctx, roleClaimsCollection, wire); err != nil {
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

	items, err := s.claimRows(ctx, role.Id)
	if err != nil {
		return err
	}
	for _, item := range items {
		var row fieldmap.Wire
		if err := json.Unmarshal(item.Raw, &row); err != nil {
			return fmt.Errorf("failed to decode role claim %s: %w", item.Key, err)
		}
		if fieldmap.ClaimFromWire(row) != claim {
			continue
		}
		if err := s.db.Delete(ctx, roleClaimsCollection+"/"+item.Key, ""); err != nil {
			return fmt.Errorf("failed to remove claim from role %s: %w", role.Id, err)
		}
	}
	return nil
}

func (s *RoleStore) claimRows(ctx context.Context, roleID string) ([]treedb.KeyedItem, error) {
	items, err := queryList(ctx, s.db, roleClaimsCollection,
		&treedb.Query{OrderBy: "RoleId", EqualTo: roleID},
		"RoleId")
	if err != nil {
		return nil, fmt.Errorf("failed to query claims for role %s: %w", roleID, err)
	}
	return items, nil
}
