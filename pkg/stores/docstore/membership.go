package docstore

import (
	"context"
	"fmt"

	"github.com/treeauth/identitystore/pkg/clients/docdb"
	"github.com/treeauth/identitystore/pkg/fieldmap"
	"github.com/treeauth/identitystore/pkg/identity"
)

// membership manages user/role association rows in the userRoles
// collection, resolving role ids from normalized names first.
type membership struct {
	client docdb.Client
	roles  *RoleStore
}

func (m *membership) resolveRole(ctx context.Context, normalizedRoleName string) (*identity.Role, error) {
	return m.roles.FindByName(ctx, normalizedRoleName)
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
	if _, err := m.client.AddDoc(ctx, userRolesCollection, wire); err != nil {
		return fmt.Errorf("failed to add user %s to role %s: %w", userID, role.Id, err)
	}
	return nil
}

func (m *membership) removeFromRole(ctx context.Context, userID, normalizedRoleName string) error {
	role, err := m.resolveRole(ctx, normalizedRoleName)
	if err != nil || role == nil {
		return err
	}

	docs, err := m.pairRows(ctx, userID, role.Id)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := m.client.DeleteDoc(ctx, userRolesCollection, doc.ID); err != nil {
			return fmt.Errorf("failed to remove user %s from role %s: %w", userID, role.Id, err)
		}
	}
	return nil
}

func (m *membership) isInRole(ctx context.Context, userID, normalizedRoleName string) (bool, error) {
	role, err := m.resolveRole(ctx, normalizedRoleName)
	if err != nil || role == nil {
		return false, err
	}
	docs, err := m.pairRows(ctx, userID, role.Id)
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

func (m *membership) roleNamesForUser(ctx context.Context, userID string) ([]string, error) {
	docs, err := m.client.Query(ctx, userRolesCollection,
		[]docdb.Filter{{Field: "UserId", Value: userID}})
	if err != nil {
		return nil, fmt.Errorf("failed to query roles for user %s: %w", userID, err)
	}

	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		role, err := m.roles.FindByID(ctx, fieldmap.UserRoleFromWire(doc.Fields).RoleID)
		if err != nil {
			return nil, err
		}
		if role == nil {
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

	docs, err := m.client.Query(ctx, userRolesCollection,
		[]docdb.Filter{{Field: "RoleId", Value: role.Id}})
	if err != nil {
		return nil, fmt.Errorf("failed to query members of role %s: %w", role.Id, err)
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, fieldmap.UserRoleFromWire(doc.Fields).UserID)
	}
	return ids, nil
}

func (m *membership) pairRows(ctx context.Context, userID, roleID string) ([]*docdb.Document, error) {
	docs, err := m.client.Query(ctx, userRolesCollection, []docdb.Filter{
		{Field: "UserId", Value: userID},
		{Field: "RoleId", Value: roleID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query membership (%s, %s): %w", userID, roleID, err)
	}
	return docs, nil
}
