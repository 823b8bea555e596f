package treestore

import (
	"encoding/base64"
	"strings"

	"github.com/treeauth/identitystore/pkg/identity"
)

const stampSeparator = ";"

// userStamp composes the user's concurrency stamp from its identity fields
// and the server version token. Folding the normalized name and email into
// the stamp means a stale stamp that predates an identity change fails the
// precondition even if the version token alone would still match.
func userStamp(u *identity.User, etag string) string {
	return strings.Join([]string{u.NormalizedUserName, u.NormalizedEmail, etag}, stampSeparator)
}

// stampETag extracts the server version token from a composed stamp.
func stampETag(stamp string) string {
	parts := strings.Split(stamp, stampSeparator)
	return parts[len(parts)-1]
}

// indexKey derives a path-safe child key for a reverse-index entry from
// its component values.
func indexKey(parts ...string) string {
	joined := strings.Join(parts, "\x1f")
	return base64.RawURLEncoding.EncodeToString([]byte(joined))
}
