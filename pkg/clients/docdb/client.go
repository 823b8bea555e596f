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

// Package docdb is a client for a flat document-collection store with
// per-document CRUD, field-equality queries, and an explicit
// begin/commit transaction API enforcing read-version preconditions.
package docdb

import "context"

// Document is a stored record: server-assigned id, flat field map, and an
// opaque version token bumped on every write.
type Document struct {
	ID      string         `json:"id"`
	Fields  map[string]any `json:"fields"`
	Version string         `json:"version"`
}

// Filter is a field-equality predicate; multiple filters compose with AND.
type Filter struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Tx buffers writes inside RunTransaction. Reads through Tx record the
// observed document versions; at commit each recorded version is sent as
// a precondition, so a document changed after it was read aborts the
// transaction with a conflict.
type Tx interface {
	// Get reads a document and records its version as a commit
	// precondition. A nil document (with recorded absence) is returned
	// when the id does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Set buffers a full write of the document's fields.
	Set(collection, id string, fields map[string]any)

	// Delete buffers removal of the document.
	Delete(collection, id string)
}

// Client is the document-store surface the stores program against; tests
// substitute an in-memory implementation.
type Client interface {
	// GetDoc reads one document; nil when the id does not exist.
	GetDoc(ctx context.Context, collection, id string) (*Document, error)

	// AddDoc inserts a document under a server-generated id.
	AddDoc(ctx context.Context, collection string, fields map[string]any) (id string, err error)

	// SetDoc writes the full field map of the document.
	SetDoc(ctx context.Context, collection, id string, fields map[string]any) error

	// DeleteDoc removes the document; removing an absent id is a no-op.
	DeleteDoc(ctx context.Context, collection, id string) error

	// Query returns every document matching all filters.
	Query(ctx context.Context, collection string, filters []Filter) ([]*Document, error)

	// RunTransaction executes fn against a transaction and commits its
	// buffered writes under the recorded read preconditions. An error
	// from fn aborts the transaction and is returned unwrapped; a commit
	// precondition mismatch surfaces as an error for which IsConflict
	// reports true.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
