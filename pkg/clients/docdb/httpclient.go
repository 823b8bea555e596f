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

package docdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/treeauth/identitystore/pkg/logger"
)

// CredentialProvider supplies the bearer token attached to every outbound
// call. treedb.TokenClient satisfies this interface.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	ParamName() string
}

// Options configures an HTTPClient. BaseURL is required; there is no
// default service endpoint.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	RetryCount  int
	Credentials CredentialProvider
}

// HTTPClient implements Client over the store's REST API.
type HTTPClient struct {
	baseURL string
	http    *httpclient.Client
	creds   CredentialProvider
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds an HTTPClient with a retrying transport.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("docdb: BaseURL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	backoff := heimdall.NewConstantBackoff(500*time.Millisecond, 100*time.Millisecond)
	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(opts.Timeout),
		httpclient.WithRetryCount(opts.RetryCount),
		httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
	)

	return &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    client,
		creds:   opts.Credentials,
	}, nil
}

// GetDoc implements Client.
func (c *HTTPClient) GetDoc(ctx context.Context, collection, id string) (*Document, error) {
	return c.getDoc(ctx, collection, id, "")
}

func (c *HTTPClient) getDoc(ctx context.Context, collection, id, transaction string) (*Document, error) {
	var query url.Values
	if transaction != "" {
		query = url.Values{"transaction": {transaction}}
	}
	body, status, err := c.do(ctx, http.MethodGet, "/v1/"+collection+"/"+id, query, nil)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	doc := &Document{}
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("docdb: failed to decode document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// AddDoc implements Client.
func (c *HTTPClient) AddDoc(ctx context.Context, collection string, fields map[string]any) (string, error) {
	body, _, err := c.do(ctx, http.MethodPost, "/v1/"+collection, nil, map[string]any{"fields": fields})
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("docdb: failed to decode create response: %w", err)
	}
	return created.ID, nil
}

// SetDoc implements Client.
func (c *HTTPClient) SetDoc(ctx context.Context, collection, id string, fields map[string]any) error {
	_, _, err := c.do(ctx, http.MethodPut, "/v1/"+collection+"/"+id, nil, map[string]any{"fields": fields})
	return err
}

// DeleteDoc implements Client.
func (c *HTTPClient) DeleteDoc(ctx context.Context, collection, id string) error {
	_, _, err := c.do(ctx, http.MethodDelete, "/v1/"+collection+"/"+id, nil, nil)
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// Query implements Client.
func (c *HTTPClient) Query(ctx context.Context, collection string, filters []Filter) ([]*Document, error) {
	body, _, err := c.do(ctx, http.MethodPost, "/v1/"+collection+":query", nil,
		map[string]any{"filters": filters})
	if err != nil {
		return nil, err
	}
	var result struct {
		Documents []*Document `json:"documents"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("docdb: failed to decode query response: %w", err)
	}
	return result.Documents, nil
}

// RunTransaction implements Client.
func (c *HTTPClient) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	body, _, err := c.do(ctx, http.MethodPost, "/v1:beginTransaction", nil, nil)
	if err != nil {
		return err
	}
	var begun struct {
		Transaction string `json:"transaction"`
	}
	if err := json.Unmarshal(body, &begun); err != nil {
		return fmt.Errorf("docdb: failed to decode beginTransaction response: %w", err)
	}

	tx := &httpTx{client: c, id: begun.Transaction, reads: map[string]txRead{}}
	if err := fn(ctx, tx); err != nil {
		// Abandoned transactions expire server side; the error from fn
		// propagates untouched.
		return err
	}
	return tx.commit(ctx)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values,
	body any) ([]byte, int, error) {

	endpoint := c.baseURL + path
	if query == nil {
		query = url.Values{}
	}
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("docdb: failed to acquire credential: %w", err)
		}
		if token != "" {
			query.Set(c.creds.ParamName(), token)
		}
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("docdb: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("docdb: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("docdb: %s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("docdb: failed to read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		reqErr := newRequestError(resp.StatusCode, resp.Status, respBody)
		logger.Logger(ctx).WithError(reqErr).WithField("path", path).Debug("docdb request failed")
		return nil, resp.StatusCode, reqErr
	}
	return respBody, resp.StatusCode, nil
}

type txRead struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	// Version is empty when the read observed an absent document; the
	// commit precondition then requires the document to still be absent.
	Version string `json:"version"`
}

type txWrite struct {
	Op         string         `json:"op"`
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields,omitempty"`
}

type httpTx struct {
	client *HTTPClient
	id     string
	reads  map[string]txRead
	writes []txWrite
}

var _ Tx = (*httpTx)(nil)

func (t *httpTx) Get(ctx context.Context, collection, id string) (*Document, error) {
	doc, err := t.client.getDoc(ctx, collection, id, t.id)
	if err != nil {
		return nil, err
	}
	read := txRead{Collection: collection, ID: id}
	if doc != nil {
		read.Version = doc.Version
	}
	t.reads[collection+"/"+id] = read
	return doc, nil
}

func (t *httpTx) Set(collection, id string, fields map[string]any) {
	t.writes = append(t.writes, txWrite{Op: "set", Collection: collection, ID: id, Fields: fields})
}

func (t *httpTx) Delete(collection, id string) {
	t.writes = append(t.writes, txWrite{Op: "delete", Collection: collection, ID: id})
}

func (t *httpTx) commit(ctx context.Context) error {
	preconditions := make([]txRead, 0, len(t.reads))
	for _, read := range t.reads {
		preconditions = append(preconditions, read)
	}
	_, _, err := t.client.do(ctx, http.MethodPost, "/v1:commit", nil, map[string]any{
		"transaction":   t.id,
		"writes":        t.writes,
		"preconditions": preconditions,
	})
	return err
}
