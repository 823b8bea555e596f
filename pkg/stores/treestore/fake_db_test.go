package treestore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/treeauth/identitystore/pkg/clients/treedb"
)

// fakeDB is an in-memory treedb.Database. It keeps the tree as nested
// maps, hands out sequential version tokens, enforces If-Match
// preconditions, and rejects equality queries until EnsureIndex has
// registered the ordered field, the way the real database does.
type fakeDB struct {
	mu          sync.Mutex
	root        map[string]any
	etags       map[string]string
	etagSeq     int
	idSeq       int
	indexes     map[string]map[string]bool
	ensureCalls int
}

var _ treedb.Database = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	return &fakeDB{
		root:    map[string]any{},
		etags:   map[string]string{},
		indexes: map[string]map[string]bool{},
	}
}

func (f *fakeDB) nextETag() string {
	f.etagSeq++
	return fmt.Sprintf("etag%d", f.etagSeq)
}

// toGeneric round-trips a value through JSON, matching what the wire
// would do to it.
func toGeneric(body any) (any, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

func segments(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// parent walks to the map holding the path's final segment, creating
// intermediate maps when create is set.
func (f *fakeDB) parent(path string, create bool) (map[string]any, string, bool) {
	segs := segments(path)
	node := f.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			if !create {
				return nil, "", false
			}
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	return node, segs[len(segs)-1], true
}

func (f *fakeDB) lookup(path string) (any, bool) {
	parent, key, ok := f.parent(path, false)
	if !ok {
		return nil, false
	}
	value, ok := parent[key]
	return value, ok
}

func (f *fakeDB) store(path string, value any) string {
	parent, key, _ := f.parent(path, true)
	parent[key] = value
	etag := f.nextETag()
	f.etags[path] = etag
	return etag
}

func preconditionError(currentETag string) error {
	return &treedb.RequestError{
		StatusCode: http.StatusPreconditionFailed,
		Reason:     "412 Precondition Failed",
		Body:       `{"error":"precondition failed"}`,
		ETag:       currentETag,
	}
}

func (f *fakeDB) Create(_ context.Context, path string, body any) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	generic, err := toGeneric(body)
	if err != nil {
		return "", "", err
	}
	f.idSeq++
	id := fmt.Sprintf("key%d", f.idSeq)
	etag := f.store(path+"/"+id, generic)
	return id, etag, nil
}

func (f *fakeDB) Put(_ context.Context, path string, body any, expectedETag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if expectedETag != "" && f.etags[path] != expectedETag {
		return "", preconditionError(f.etags[path])
	}
	generic, err := toGeneric(body)
	if err != nil {
		return "", err
	}
	return f.store(path, generic), nil
}

func (f *fakeDB) Patch(_ context.Context, path string, body any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	generic, err := toGeneric(body)
	if err != nil {
		return err
	}
	fields, ok := generic.(map[string]any)
	if !ok {
		return fmt.Errorf("fakeDB: patch body must be an object")
	}

	parent, key, _ := f.parent(path, true)
	node, ok := parent[key].(map[string]any)
	if !ok {
		node = map[string]any{}
		parent[key] = node
	}
	for k, v := range fields {
		node[k] = v
	}
	f.etags[path] = f.nextETag()
	return nil
}

func (f *fakeDB) Delete(_ context.Context, path, expectedETag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if expectedETag != "" && f.etags[path] != expectedETag {
		return preconditionError(f.etags[path])
	}
	if parent, key, ok := f.parent(path, false); ok {
		delete(parent, key)
	}
	delete(f.etags, path)
	return nil
}

func (f *fakeDB) Get(_ context.Context, path string, q *treedb.Query, out any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if q != nil {
		return f.query(path, q, out)
	}

	value, ok := f.lookup(path)
	if !ok {
		return "", treedb.ErrNotFound
	}
	if err := assign(value, out); err != nil {
		return "", err
	}
	return f.etags[path], nil
}

func (f *fakeDB) query(collection string, q *treedb.Query, out any) (string, error) {
	if !f.indexes[collection][q.OrderBy] {
		return "", &treedb.RequestError{
			StatusCode: http.StatusBadRequest,
			Reason:     "400 Bad Request",
			Body:       fmt.Sprintf(`{"error":"Index not defined, add \".indexOn\": \"%s\""}`, q.OrderBy),
		}
	}

	matches := map[string]any{}
	if node, ok := f.lookup(collection); ok {
		children, _ := node.(map[string]any)
		want, _ := json.Marshal(q.EqualTo)
		for key, child := range children {
			fields, ok := child.(map[string]any)
			if !ok {
				continue
			}
			got, _ := json.Marshal(fields[q.OrderBy])
			if string(got) == string(want) {
				matches[key] = child
			}
		}
	}
	return "", assign(matches, out)
}

func assign(value, out any) error {
	if out == nil {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

func (f *fakeDB) EnsureIndex(_ context.Context, collection string, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ensureCalls++
	indexed := f.indexes[collection]
	if indexed == nil {
		indexed = map[string]bool{}
		f.indexes[collection] = indexed
	}
	for _, field := range fields {
		indexed[field] = true
	}
	return nil
}
