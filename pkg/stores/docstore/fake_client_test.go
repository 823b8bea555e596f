package docstore

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/treeauth/identitystore/pkg/clients/docdb"
)

// fakeClient is an in-memory docdb.Client. Documents carry sequential
// version tokens; transactions record the versions observed by their
// reads and the commit fails with a conflict when any of them moved.
type fakeClient struct {
	mu          sync.Mutex
	collections map[string]map[string]*docdb.Document
	idSeq       int
	verSeq      int

	// conflictOnCommit forces the next commit to fail the way a lost
	// commit-time precondition does.
	conflictOnCommit bool
}

var _ docdb.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{collections: map[string]map[string]*docdb.Document{}}
}

func conflictError() error {
	return &docdb.RequestError{
		StatusCode: http.StatusConflict,
		Reason:     "409 Conflict",
		Body:       `{"error":"precondition mismatch"}`,
	}
}

func (f *fakeClient) nextVersion() string {
	f.verSeq++
	return fmt.Sprintf("v%d", f.verSeq)
}

func (f *fakeClient) coll(name string) map[string]*docdb.Document {
	docs := f.collections[name]
	if docs == nil {
		docs = map[string]*docdb.Document{}
		f.collections[name] = docs
	}
	return docs
}

func copyDoc(doc *docdb.Document) *docdb.Document {
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	return &docdb.Document{ID: doc.ID, Fields: fields, Version: doc.Version}
}

func (f *fakeClient) GetDoc(_ context.Context, collection, id string) (*docdb.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.coll(collection)[id]
	if !ok {
		return nil, nil
	}
	return copyDoc(doc), nil
}

func (f *fakeClient) AddDoc(_ context.Context, collection string, fields map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.idSeq++
	id := fmt.Sprintf("doc%d", f.idSeq)
	doc := &docdb.Document{ID: id, Fields: fields, Version: f.nextVersion()}
	f.coll(collection)[id] = copyDoc(doc)
	return id, nil
}

func (f *fakeClient) SetDoc(_ context.Context, collection, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := &docdb.Document{ID: id, Fields: fields, Version: f.nextVersion()}
	f.coll(collection)[id] = copyDoc(doc)
	return nil
}

func (f *fakeClient) DeleteDoc(_ context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.coll(collection), id)
	return nil
}

func (f *fakeClient) Query(_ context.Context, collection string, filters []docdb.Filter) ([]*docdb.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matches []*docdb.Document
	for _, doc := range f.coll(collection) {
		matched := true
		for _, filter := range filters {
			if doc.Fields[filter.Field] != filter.Value {
				matched = false
				break
			}
		}
		if matched {
			matches = append(matches, copyDoc(doc))
		}
	}
	return matches, nil
}

type fakeTx struct {
	client *fakeClient
	reads  map[string]string // collection/id -> observed version, "" for absent
	writes []func()
	checks []func() bool
}

var _ docdb.Tx = (*fakeTx)(nil)

func (t *fakeTx) Get(ctx context.Context, collection, id string) (*docdb.Document, error) {
	doc, err := t.client.GetDoc(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	version := ""
	if doc != nil {
		version = doc.Version
	}
	t.reads[collection+"/"+id] = version
	t.checks = append(t.checks, func() bool {
		current, ok := t.client.coll(collection)[id]
		if !ok {
			return version == ""
		}
		return current.Version == version
	})
	return doc, nil
}

func (t *fakeTx) Set(collection, id string, fields map[string]any) {
	t.writes = append(t.writes, func() {
		doc := &docdb.Document{ID: id, Fields: fields, Version: t.client.nextVersion()}
		t.client.coll(collection)[id] = copyDoc(doc)
	})
}

func (t *fakeTx) Delete(collection, id string) {
	t.writes = append(t.writes, func() {
		delete(t.client.coll(collection), id)
	})
}

func (f *fakeClient) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docdb.Tx) error) error {
	tx := &fakeTx{client: f, reads: map[string]string{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conflictOnCommit {
		f.conflictOnCommit = false
		return conflictError()
	}
	for _, ok := range tx.checks {
		if !ok() {
			return conflictError()
		}
	}
	for _, apply := range tx.writes {
		apply()
	}
	return nil
}
