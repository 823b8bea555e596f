/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package treedb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// KeyedItem is one element of a reshaped collection result: the generated
// child key and the item's raw document, nested structure intact.
type KeyedItem struct {
	Key string
	Raw json.RawMessage
}

// DecodeKeyedList reshapes a collection GET result into an ordered
// sequence. The tree database returns list-like data either as a JSON
// array (dense integer keys, possibly sparse with null holes) or as an
// object keyed by generated ids; both shapes are normalized here. Only the
// outer envelope is touched — each item's fields pass through untouched.
func DecodeKeyedList(raw json.RawMessage) ([]KeyedItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, fmt.Errorf("treedb: failed to decode keyed collection: %w", err)
		}
		keys := make([]string, 0, len(keyed))
		for key := range keyed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		items := make([]KeyedItem, 0, len(keys))
		for _, key := range keys {
			items = append(items, KeyedItem{Key: key, Raw: keyed[key]})
		}
		return items, nil
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("treedb: failed to decode collection array: %w", err)
		}
		items := make([]KeyedItem, 0, len(list))
		for i, item := range list {
			if isJSONNull(item) {
				// Sparse arrays carry null holes for deleted keys.
				continue
			}
			items = append(items, KeyedItem{Key: strconv.Itoa(i), Raw: item})
		}
		return items, nil
	default:
		return nil, fmt.Errorf("treedb: collection result is neither object nor array: %s", trimmed)
	}
}
