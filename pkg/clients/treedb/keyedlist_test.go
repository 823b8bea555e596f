package treedb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeyedListObject(t *testing.T) {
	raw := json.RawMessage(`{
		"-Nb2": {"UserId": "u2", "Nested": {"a": [1, 2]}},
		"-Na1": {"UserId": "u1"}
	}`)

	items, err := DecodeKeyedList(raw)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Ordered by generated key.
	assert.Equal(t, "-Na1", items[0].Key)
	assert.Equal(t, "-Nb2", items[1].Key)

	// Per-item structure passes through untouched, nesting intact.
	assert.JSONEq(t, `{"UserId": "u2", "Nested": {"a": [1, 2]}}`, string(items[1].Raw))
}

func TestDecodeKeyedListArray(t *testing.T) {
	raw := json.RawMessage(`[{"UserId":"u0"}, null, {"UserId":"u2"}]`)

	items, err := DecodeKeyedList(raw)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Null holes in sparse arrays are dropped, original positions kept
	// as keys.
	assert.Equal(t, "0", items[0].Key)
	assert.Equal(t, "2", items[1].Key)
}

func TestDecodeKeyedListEmpty(t *testing.T) {
	items, err := DecodeKeyedList(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = DecodeKeyedList(json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDecodeKeyedListRejectsScalars(t *testing.T) {
	_, err := DecodeKeyedList(json.RawMessage(`42`))
	assert.Error(t, err)
}
