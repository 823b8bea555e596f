// Package fieldmap converts between typed identity entities and the untyped
// key/value maps the document databases speak. The mapping is explicit per
// entity type: every field is named once here, checked at compile time,
// instead of being discovered through runtime reflection.
package fieldmap

import (
	"github.com/treeauth/identitystore/pkg/identity"
)

// Wire is the flat key/value shape a document takes on the wire. Only
// scalar-typed fields are carried; nested structures live in their own
// side collections.
type Wire = map[string]any

// UserToWire flattens a user into its wire shape. Timestamps are encoded
// as epoch milliseconds; nil timestamps are omitted.
func UserToWire(u *identity.User) Wire {
	w := Wire{
		"UserName":             u.UserName,
		"NormalizedUserName":   u.NormalizedUserName,
		"Email":                u.Email,
		"NormalizedEmail":      u.NormalizedEmail,
		"EmailConfirmed":       u.EmailConfirmed,
		"PasswordHash":         u.PasswordHash,
		"SecurityStamp":        u.SecurityStamp,
		"PhoneNumber":          u.PhoneNumber,
		"PhoneNumberConfirmed": u.PhoneNumberConfirmed,
		"TwoFactorEnabled":     u.TwoFactorEnabled,
		"LockoutEnabled":       u.LockoutEnabled,
		"AccessFailedCount":    u.AccessFailedCount,
		"ConcurrencyStamp":     u.ConcurrencyStamp,
	}
	if u.LockoutEnd != nil {
		w["LockoutEnd"] = toMillis(*u.LockoutEnd)
	}
	return w
}

// UserFromWire builds a user from its wire shape. Unknown wire fields are
// ignored; missing fields leave the zero defaults.
func UserFromWire(w Wire) *identity.User {
	u := &identity.User{
		UserName:             stringField(w, "UserName"),
		NormalizedUserName:   stringField(w, "NormalizedUserName"),
		Email:                stringField(w, "Email"),
		NormalizedEmail:      stringField(w, "NormalizedEmail"),
		EmailConfirmed:       boolField(w, "EmailConfirmed"),
		PasswordHash:         stringField(w, "PasswordHash"),
		SecurityStamp:        stringField(w, "SecurityStamp"),
		PhoneNumber:          stringField(w, "PhoneNumber"),
		PhoneNumberConfirmed: boolField(w, "PhoneNumberConfirmed"),
		TwoFactorEnabled:     boolField(w, "TwoFactorEnabled"),
		LockoutEnabled:       boolField(w, "LockoutEnabled"),
		AccessFailedCount:    intField(w, "AccessFailedCount"),
		ConcurrencyStamp:     stringField(w, "ConcurrencyStamp"),
	}
	if t, ok := timeField(w, "LockoutEnd"); ok {
		u.LockoutEnd = &t
	}
	return u
}

// RoleToWire flattens a role into its wire shape.
func RoleToWire(r *identity.Role) Wire {
	return Wire{
		"Name":             r.Name,
		"NormalizedName":   r.NormalizedName,
		"ConcurrencyStamp": r.ConcurrencyStamp,
	}
}

// RoleFromWire builds a role from its wire shape.
func RoleFromWire(w Wire) *identity.Role {
	return &identity.Role{
		Name:             stringField(w, "Name"),
		NormalizedName:   stringField(w, "NormalizedName"),
		ConcurrencyStamp: stringField(w, "ConcurrencyStamp"),
	}
}

// ClaimToWire flattens a claim row owned by ownerField/ownerID.
func ClaimToWire(ownerField, ownerID string, c identity.Claim) Wire {
	return Wire{
		ownerField:   ownerID,
		"ClaimType":  c.Type,
		"ClaimValue": c.Value,
	}
}

// ClaimFromWire builds a claim from a claim row.
func ClaimFromWire(w Wire) identity.Claim {
	return identity.Claim{
		Type:  stringField(w, "ClaimType"),
		Value: stringField(w, "ClaimValue"),
	}
}

// LoginToWire flattens an external login row for the given user.
func LoginToWire(userID string, l identity.UserLogin) Wire {
	return Wire{
		"UserId":              userID,
		"LoginProvider":       l.LoginProvider,
		"ProviderKey":         l.ProviderKey,
		"ProviderDisplayName": l.ProviderDisplayName,
	}
}

// LoginFromWire builds an external login from a login row.
func LoginFromWire(w Wire) identity.UserLogin {
	return identity.UserLogin{
		LoginProvider:       stringField(w, "LoginProvider"),
		ProviderKey:         stringField(w, "ProviderKey"),
		ProviderDisplayName: stringField(w, "ProviderDisplayName"),
	}
}

// TokenToWire flattens a token row for the given user.
func TokenToWire(userID string, t identity.UserToken) Wire {
	return Wire{
		"UserId":        userID,
		"LoginProvider": t.LoginProvider,
		"Name":          t.Name,
		"Value":         t.Value,
	}
}

// TokenFromWire builds a token from a token row.
func TokenFromWire(w Wire) identity.UserToken {
	return identity.UserToken{
		LoginProvider: stringField(w, "LoginProvider"),
		Name:          stringField(w, "Name"),
		Value:         stringField(w, "Value"),
	}
}

// UserRoleToWire flattens a membership row.
func UserRoleToWire(ur identity.UserRole) Wire {
	return Wire{
		"UserId": ur.UserID,
		"RoleId": ur.RoleID,
	}
}

// UserRoleFromWire builds a membership pair from a membership row.
func UserRoleFromWire(w Wire) identity.UserRole {
	return identity.UserRole{
		UserID: stringField(w, "UserId"),
		RoleID: stringField(w, "RoleId"),
	}
}
