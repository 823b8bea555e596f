package treestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/treeauth/identitystore/pkg/clients/treedb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
)

// membership manages the user/role association rows. Every operation
// resolves the role id from its normalized name first, then works the
// userRoles collection by compound (UserId, RoleId) match. It is a thin
// component the UserStore delegates to rather than a public store.
type membership struct {
	db    treedb.Database
	roles *RoleStore
}

func (m *membership) resolveRole(ctx context.Context, normalizedRoleName string) (*identity.Role, error) {
	return m.roles.FindByName(ctx, normalizedRoleName)
}

func (m *membership) rowsFor(ctx context.Context, field, value string) ([]treedb.KeyedItem, error) {
	items, err := queryList(ctx, m.db, userRolesCollection,
		&treedb.Query{OrderBy: field, EqualTo: value},
		"UserId", "RoleId")
	if err != nil {
		return nil, fmt.Errorf("failed to query role memberships by %s: %w", field, err)
	}
	return items, nil
}

// findRow returns the key of the (userID, roleID) association row, or ""
// when the user is not a member.
func (m *membership) findRow(ctx context.Context, userID, roleID string) (string, error) {
	items, err := m.rowsFor(ctx, "UserId", userID)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		var row fieldmap.Wire
		if err := json.Unmarshal(item.Raw, &row); err != nil {
			return "", fmt.Errorf("failed to decode membership row %s: %w", item.Key, err)
		}
		if fieldmap.UserRoleFromWire(row).RoleID == roleID {
			return item.Key, nil
		}
	}
	return "", nil
}

func (m *membership) addToRole(ctx context.Context, userID, normalizedRoleName string) error {
	role, err := m.resolveRole(ctx, normalizedRoleName)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("%w: %s", identity.ErrRoleNotFound, normalizedRoleName)
	}

	wire := fieldmap.UserRoleToWire(identity.UserRole{UserID: userID, RoleID: role.Id})
	if _, _, err := m.db.Create(ctx, userRolesCollection, wire); err != nil {
		return fmt.Errorf("failed to add user %s to role %s: %w", userID, role.Id, err)
	}
	return nil
}

func (m *membership) removeFromRole(ctx context.Context, userID, normalizedRoleName string) error {
	role, err := m.resolveRole(ctx, normalizedRoleName)
	if err != nil {
		return err
	}
	if role == nil {
		return nil
	}

	key, err := m.findRow(ctx, userID, role.Id)
	if err != nil || key == "" {
		return err
	}
	if err := m.db.Delete(ctx, userRolesCollection+"/"+key, ""); err != nil {
		return fmt.Errorf("failed to remove user %s from role %s: %w", userID, role.Id, err)
	}
	return nil
}

func (m *membership) isInRole(ctx context.Context, userID, normalizedRoleName string) (bool, error) {
	role, err := m.resolveRole(ctx, normalizedRoleName)
	if err != nil || role == nil {
		return false, err
	}
	key, err := m.findRow(ctx, userID, role.Id)
	return key != "", err
}

func (m *membership) roleNamesForUser(ctx context.Context, userID string) ([]string, error) {
	items, err := m.rowsFor(ctx, "UserId", userID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		var row fieldmap.Wire
		if err := json.Unmarshal(item.Raw, &row); err != nil {
			return nil, fmt.Errorf("failed to decode membership row %s: %w", item.Key, err)
		}
		role, err := m.roles.FindByID(ctx, fieldmap.UserRoleFromWire(row).RoleID)
		if err != nil {
			return nil, err
		}
		if role == nil {
			// The role was deleted after the membership row was written.
			continue
		}
		names = append(names, role.Name)
	}
	return names, nil
}

func (m *membership) userIDsInRole(ctx context.Context, normalizedRoleName string) ([]string, error) {
	role, err := m.resolveRole(ctx, normalizedRoleName)
	if err != nil || role == nil {
		return nil, err
	}

	items, err := m.rowsFor(ctx, "RoleId", role.Id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		var row fieldmap.Wire
		if err := json.Unmarshal(item.Raw, &row); err != nil {
			return nil, fmt.Errorf("failed to decode membership row %s: %w", item.Key, err)
		}
		ids = append(ids, fieldmap.UserRoleFromWire(row).UserID)
	}
	return ids, nil
}
