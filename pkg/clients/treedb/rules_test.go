package treedb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureIndexMergesWithoutClobbering(t *testing.T) {
	existing := `{
		"rules": {
			"posts": {".indexOn": ["title"]},
			"users": {".read": "auth != null", ".indexOn": "NormalizedUserName"}
		}
	}`
	var written map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/.settings/rules.json", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(existing))
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &written))
			_, _ = w.Write([]byte(`{}`))
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Options{BaseURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, client.EnsureIndex(context.Background(), "users",
		"NormalizedUserName", "NormalizedEmail"))

	rules := written["rules"].(map[string]any)

	// Unrelated collection rules survive the read-modify-write.
	assert.Equal(t, map[string]any{".indexOn": []any{"title"}}, rules["posts"])

	users := rules["users"].(map[string]any)
	// Non-index keys of the touched collection survive too.
	assert.Equal(t, "auth != null", users[".read"])
	// The single-string form is folded into the merged list.
	assert.Equal(t, []any{"NormalizedUserName", "NormalizedEmail"}, users[indexOnKey])
}

func TestEnsureIndexCreatesRulesDocument(t *testing.T) {
	var written map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`null`))
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &written))
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Options{BaseURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, client.EnsureIndex(context.Background(), "userRoles", "UserId", "RoleId"))

	rules := written["rules"].(map[string]any)
	entry := rules["userRoles"].(map[string]any)
	assert.Equal(t, []any{"UserId", "RoleId"}, entry[indexOnKey])
}

func TestMergeIndexFields(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, mergeIndexFields(nil, []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, mergeIndexFields("a", []string{"b", "a"}))
	assert.Equal(t, []string{"a", "b", "c"}, mergeIndexFields([]any{"a", "b"}, []string{"c", "b"}))
}
