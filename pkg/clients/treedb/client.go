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

// Package treedb is a client for a JSON-tree realtime database spoken over
// REST: resource paths carry a .json suffix, documents are versioned with
// ETags, and list queries are expressed as orderBy/equalTo filter pairs.
package treedb

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

const jsonSuffix = ".json"

// NormalizePath trims path separators and ensures the canonical .json
// resource suffix exactly once; applying it twice is a no-op.
func NormalizePath(path string) string {
	path = strings.Trim(path, "/")
	if strings.HasSuffix(path, jsonSuffix) {
		return path
	}
	return path + jsonSuffix
}

// Query is an equality filter over a single indexed field.
type Query struct {
	OrderBy string
	EqualTo any
}

func (q *Query) apply(values url.Values) {
	if q.OrderBy != "" {
		quoted, _ := json.Marshal(q.OrderBy)
		values.Set("orderBy", string(quoted))
	}
	if q.EqualTo != nil {
		encoded, _ := json.Marshal(q.EqualTo)
		values.Set("equalTo", string(encoded))
	}
}

// Database is the surface the stores program against. It exists so tests
// can substitute an in-memory implementation.
type Database interface {
	// Create POSTs the body under path and returns the server-generated
	// child id together with the new node's version token.
	Create(ctx context.Context, path string, body any) (id, etag string, err error)

	// Put writes the node at path. When expectedETag is non-empty it is
	// sent as an If-Match precondition; a mismatch surfaces as a
	// RequestError for which IsPreconditionFailed reports true. The new
	// version token is returned.
	Put(ctx context.Context, path string, body any, expectedETag string) (etag string, err error)

	// Patch merges the partial body into the node at path.
	Patch(ctx context.Context, path string, body any) error

	// Delete removes the node at path, optionally under an If-Match
	// precondition.
	Delete(ctx context.Context, path, expectedETag string) error

	// Get reads the node at path into out and returns its version token.
	// ErrNotFound is returned when the node does not exist.
	Get(ctx context.Context, path string, q *Query, out any) (etag string, err error)

	// EnsureIndex merges an index over the given fields into the rules
	// document entry for collection, preserving unrelated entries.
	EnsureIndex(ctx context.Context, collection string, fields ...string) error
}

// Options configures a Client. BaseURL is required; there is no default
// service endpoint.
type Options struct {
	BaseURL     string
	RulesPath   string
	Timeout     time.Duration
	RetryCount  int
	Credentials CredentialProvider
}

// Client talks to the tree database over HTTP.
type Client struct {
	baseURL   string
	rulesPath string
	http      *httpclient.Client
	creds     CredentialProvider
}

var _ Database = (*Client)(nil)

// NewClient builds a Client with a retrying HTTP transport.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("treedb: BaseURL is required")
	}
	if opts.RulesPath == "" {
		opts.RulesPath = ".settings/rules"
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

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		rulesPath: opts.RulesPath,
		http:      client,
		creds:     opts.Credentials,
	}, nil
}

// Create implements Database.
func (c *Client) Create(ctx context.Context, path string, body any) (string, string, error) {
	respBody, etag, err := c.do(ctx, http.MethodPost, path, nil, body, "")
	if err != nil {
		return "", "", err
	}
	var created struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", "", fmt.Errorf("treedb: failed to decode create response: %w", err)
	}
	return created.Name, etag, nil
}

// Put implements Database.
func (c *Client) Put(ctx context.Context, path string, body any, expectedETag string) (string, error) {
	_, etag, err := c.do(ctx, http.MethodPut, path, nil, body, expectedETag)
	return etag, err
}

// Patch implements Database.
func (c *Client) Patch(ctx context.Context, path string, body any) error {
	_, _, err := c.do(ctx, http.MethodPatch, path, nil, body, "")
	return err
}

// Delete implements Database.
func (c *Client) Delete(ctx context.Context, path, expectedETag string) error {
	_, _, err := c.do(ctx, http.MethodDelete, path, nil, nil, expectedETag)
	return err
}

// Get implements Database. The database answers 200 with a literal null
// body for absent nodes, which is mapped to ErrNotFound.
func (c *Client) Get(ctx context.Context, path string, q *Query, out any) (string, error) {
	respBody, etag, err := c.do(ctx, http.MethodGet, path, q, nil, "")
	if err != nil {
		return etag, err
	}
	if isJSONNull(respBody) {
		return etag, ErrNotFound
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return etag, fmt.Errorf("treedb: failed to decode %s: %w", path, err)
		}
	}
	return etag, nil
}

func (c *Client) do(ctx context.Context, method, path string, q *Query, body any,
	expectedETag string) ([]byte, string, error) {

	endpoint := c.baseURL + "/" + NormalizePath(path)
	values := url.Values{}
	if q != nil {
		q.apply(values)
	}
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("treedb: failed to acquire credential: %w", err)
		}
		if token != "" {
			values.Set(c.creds.ParamName(), token)
		}
	}
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("treedb: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, "", fmt.Errorf("treedb: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Request the version token on every call so callers can thread it
	// into the next precondition.
	req.Header.Set("X-Firebase-ETag", "true")
	if expectedETag != "" {
		req.Header.Set("If-Match", expectedETag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("treedb: %s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("treedb: failed to read response body: %w", err)
	}

	etag := resp.Header.Get("ETag")
	if resp.StatusCode >= http.StatusBadRequest {
		reqErr := newRequestError(resp.StatusCode, resp.Status, respBody, etag)
		logger.Logger(ctx).WithError(reqErr).WithField("path", path).Debug("treedb request failed")
		return nil, etag, reqErr
	}
	return respBody, etag, nil
}

func isJSONNull(body []byte) bool {
	return len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null"))
}
