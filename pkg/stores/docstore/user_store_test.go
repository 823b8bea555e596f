package docstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeauth/identitystore/pkg/identity"
)

func newTestStore(t *testing.T) (*Store, *fakeClient) {
	t.Helper()
	client := newFakeClient()
	return New(client), client
}

func seedUser(t *testing.T, store *Store, userName, email string) *identity.User {
	t.Helper()
	user := &identity.User{
		UserName:           userName,
		NormalizedUserName: normalize(userName),
		Email:              email,
		NormalizedEmail:    normalize(email),
	}
	result, err := store.Users.Create(context.Background(), user)
	require.NoError(t, err)
	require.True(t, result.Succeeded)
	return user
}

func normalize(s string) string {
	upper := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	return string(upper)
}

func TestCreateAssignsStamp(t *testing.T) {
	store, client := newTestStore(t)

	user := seedUser(t, store, "alice", "alice@x.com")

	assert.Equal(t, "doc1", user.Id)
	_, err := uuid.Parse(user.ConcurrencyStamp)
	assert.NoError(t, err)

	// The stamp is persisted as a document field, not derived from the
	// storage version.
	stored := client.collections[usersCollection][user.Id]
	require.NotNil(t, stored)
	assert.Equal(t, user.ConcurrencyStamp, stored.Fields["ConcurrencyStamp"])
}

func TestFindByIDRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	created := seedUser(t, store, "alice", "alice@x.com")

	found, err := store.Users.FindByID(context.Background(), created.Id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.Id, found.Id)
	assert.Equal(t, "alice", found.UserName)
	assert.Equal(t, created.ConcurrencyStamp, found.ConcurrencyStamp)
}

func TestUpdateRotatesStamp(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "alice", "alice@x.com")
	original := user.ConcurrencyStamp

	user.PhoneNumber = "111"
	result, err := store.Users.Update(ctx, user)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.NotEqual(t, original, user.ConcurrencyStamp)

	stored := client.collections[usersCollection][user.Id]
	assert.Equal(t, user.ConcurrencyStamp, stored.Fields["ConcurrencyStamp"])
	assert.Equal(t, "111", stored.Fields["PhoneNumber"])
}

func TestUpdateOneWinnerPerStamp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "alice@x.com")

	first, err := store.Users.FindByID(ctx, "doc1")
	require.NoError(t, err)
	second, err := store.Users.FindByID(ctx, "doc1")
	require.NoError(t, err)

	first.PhoneNumber = "111"
	result, err := store.Users.Update(ctx, first)
	require.NoError(t, err)
	require.True(t, result.Succeeded)

	// The loser's stamp no longer matches the stored field; the failure
	// is a Result value, not an error.
	second.PhoneNumber = "222"
	result, err = store.Users.Update(ctx, second)
	require.NoError(t, err)
	assert.True(t, result.IsConcurrencyFailure())

	found, err := store.Users.FindByID(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "111", found.PhoneNumber)
}

func TestUpdateCommitConflict(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "alice", "alice@x.com")

	// The stamp check passes but the commit itself loses the race.
	client.conflictOnCommit = true
	result, err := store.Users.Update(ctx, user)
	require.NoError(t, err)
	assert.True(t, result.IsConcurrencyFailure())
}

func TestDeleteRequiresCurrentStamp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "alice", "alice@x.com")

	stale := *user
	result, err := store.Users.Update(ctx, user)
	require.NoError(t, err)
	require.True(t, result.Succeeded)

	result, err = store.Users.Delete(ctx, &stale)
	require.NoError(t, err)
	assert.True(t, result.IsConcurrencyFailure())

	result, err = store.Users.Delete(ctx, user)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)

	found, err := store.Users.FindByID(ctx, user.Id)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindByNameAndEmail(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "alice@x.com")
	seedUser(t, store, "bob", "bob@x.com")

	found, err := store.Users.FindByName(ctx, "BOB")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "bob", found.UserName)

	found, err = store.Users.FindByEmail(ctx, "ALICE@X.COM")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice", found.UserName)

	found, err = store.Users.FindByName(ctx, "CAROL")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestClaimsLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "alice", "alice@x.com")

	claims := []identity.Claim{
		{Type: "dept", Value: "eng"},
		{Type: "plan", Value: "pro"},
	}
	require.NoError(t, store.Users.AddClaims(ctx, user, claims))

	got, err := store.Users.GetClaims(ctx, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, claims, got)

	require.NoError(t, store.Users.ReplaceClaim(ctx, user,
		identity.Claim{Type: "plan", Value: "pro"},
		identity.Claim{Type: "plan", Value: "team"}))

	got, err = store.Users.GetClaims(ctx, user)
	require.NoError(t, err)
	assert.Contains(t, got, identity.Claim{Type: "plan", Value: "team"})
	assert.NotContains(t, got, identity.Claim{Type: "plan", Value: "pro"})

	require.NoError(t, store.Users.RemoveClaims(ctx, user, []identity.Claim{
		{Type: "dept", Value: "eng"},
		{Type: "plan", Value: "team"},
	}))

	got, err = store.Users.GetClaims(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetUsersForClaim(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, store, "alice", "alice@x.com")
	bob := seedUser(t, store, "bob", "bob@x.com")

	claim := identity.Claim{Type: "dept", Value: "eng"}
	require.NoError(t, store.Users.AddClaims(ctx, alice, []identity.Claim{claim}))
	require.NoError(t, store.Users.AddClaims(ctx, bob, []identity.Claim{claim}))
	// A duplicate row for the same holder does not duplicate the result.
	require.NoError(t, store.Users.AddClaims(ctx, bob, []identity.Claim{claim}))

	holders, err := store.Users.GetUsersForClaim(ctx, claim)
	require.NoError(t, err)
	ids := make([]string, 0, len(holders))
	for _, holder := range holders {
		ids = append(ids, holder.Id)
	}
	assert.ElementsMatch(t, []string{alice.Id, bob.Id}, ids)

	// Claim rows of a removed user resolve to nothing and are skipped.
	result, err := store.Users.Delete(ctx, bob)
	require.NoError(t, err)
	require.True(t, result.Succeeded)

	holders, err = store.Users.GetUsersForClaim(ctx, claim)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, alice.Id, holders[0].Id)
}

func TestLoginsLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "alice", "alice@x.com")

	login := identity.UserLogin{
		LoginProvider:       "github",
		ProviderKey:         "gh-1",
		ProviderDisplayName: "GitHub",
	}
	require.NoError(t, store.Users.AddLogin(ctx, user, login))

	logins, err := store.Users.GetLogins(ctx, user)
	require.NoError(t, err)
	require.Len(t, logins, 1)
	assert.Equal(t, login, logins[0])

	found, err := store.Users.FindByLogin(ctx, "github", "gh-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.Id, found.Id)

	require.NoError(t, store.Users.RemoveLogin(ctx, user, "github", "gh-1"))

	logins, err = store.Users.GetLogins(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, logins)

	found, err = store.Users.FindByLogin(ctx, "github", "gh-1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSaveTokensReplacesSet(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "alice", "alice@x.com")

	require.NoError(t, store.Users.SaveTokens(ctx, user, []identity.UserToken{
		{LoginProvider: "github", Name: "refresh", Value: "r1"},
		{LoginProvider: "github", Name: "access", Value: "a1"},
	}))

	tokens, err := store.Users.GetTokens(ctx, user)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	require.NoError(t, store.Users.SaveTokens(ctx, user, []identity.UserToken{
		{LoginProvider: "github", Name: "refresh", Value: "r2"},
	}))

	tokens, err = store.Users.GetTokens(ctx, user)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "r2", tokens[0].Value)

	// The old rows were deleted, not orphaned.
	assert.Len(t, client.collections[userTokensCollection], 1)

	require.NoError(t, store.Users.SaveTokens(ctx, user, nil))

	tokens, err = store.Users.GetTokens(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestUserArgumentValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Users.Create(ctx, nil)
	assert.True(t, identity.IsArgumentError(err))

	_, err = store.Users.Update(ctx, &identity.User{})
	assert.True(t, identity.IsArgumentError(err))

	_, err = store.Users.FindByID(ctx, "")
	assert.True(t, identity.IsArgumentError(err))

	err = store.Users.AddLogin(ctx, &identity.User{Id: "u1"}, identity.UserLogin{LoginProvider: "github"})
	assert.True(t, identity.IsArgumentError(err))

	_, err = store.Users.GetUsersForClaim(ctx, identity.Claim{})
	assert.True(t, identity.IsArgumentError(err))
}

func TestUserStoreDisposed(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "alice", "alice@x.com")

	require.NoError(t, store.Users.Close())

	_, err := store.Users.FindByID(ctx, user.Id)
	assert.ErrorIs(t, err, identity.ErrDisposed)

	_, err = store.Users.Update(ctx, user)
	assert.ErrorIs(t, err, identity.ErrDisposed)

	err = store.Users.SaveTokens(ctx, user, nil)
	assert.ErrorIs(t, err, identity.ErrDisposed)
}
