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
	"context"
	"errors"
	"fmt"

	"github.com/treeauth/identitystore/pkg/logger"
)

const indexOnKey = ".indexOn"

// EnsureIndex implements Database. It performs a read-modify-write of the
// rules document: the index fields are merged into the collection's
// .indexOn entry without clobbering rules of unrelated collections.
func (c *Client) EnsureIndex(ctx context.Context, collection string, fields ...string) error {
	log := logger.Logger(ctx).WithField("collection", collection)
	log.WithField("fields", fields).Info("installing missing query index")

	doc := map[string]any{}
	if _, err := c.Get(ctx, c.rulesPath, nil, &doc); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("treedb: failed to read rules document: %w", err)
	}

	rules, ok := doc["rules"].(map[string]any)
	if !ok {
		rules = map[string]any{}
	}
	entry, ok := rules[collection].(map[string]any)
	if !ok {
		entry = map[string]any{}
	}

	entry[indexOnKey] = mergeIndexFields(entry[indexOnKey], fields)
	rules[collection] = entry
	doc["rules"] = rules

	if _, err := c.Put(ctx, c.rulesPath, doc, ""); err != nil {
		return fmt.Errorf("treedb: failed to write rules document: %w", err)
	}
	log.Info("query index installed")
	return nil
}

// mergeIndexFields unions the requested fields into the existing .indexOn
// value, which the database accepts as either a single string or a list.
func mergeIndexFields(existing any, fields []string) []string {
	merged := make([]string, 0, len(fields))
	seen := map[string]bool{}

	appendField := func(field string) {
		if field == "" || seen[field] {
			return
		}
		seen[field] = true
		merged = append(merged, field)
	}

	switch current := existing.(type) {
	case string:
		appendField(current)
	case []any:
		for _, v := range current {
			if s, ok := v.(string); ok {
				appendField(s)
			}
		}
	case []string:
		for _, s := range current {
			appendField(s)
		}
	}
	for _, field := range fields {
		appendField(field)
	}
	return merged
}
