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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"
	gocache "github.com/patrickmn/go-cache"
	"github.com/treeauth/identitystore/pkg/logger"
)

// CredentialProvider supplies the bearer token attached to every outbound
// database call, and the query parameter name it travels under.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	ParamName() string
}

// TokenOptions configures a TokenClient. TokenURL is required; there is no
// default sign-in endpoint.
type TokenOptions struct {
	TokenURL     string
	APIKey       string
	RefreshToken string
	// ParamName is "auth" or "access_token" depending on credential type.
	ParamName string
	// RefreshMargin is subtracted from the reported token lifetime when
	// computing the cache deadline.
	RefreshMargin time.Duration
	Timeout       time.Duration
}

// TokenClient exchanges a refresh token for a short-lived bearer token and
// caches it until near expiry. Concurrent readers are safe; the refresh
// path holds a lock, giving a best-effort single-refresh guarantee.
type TokenClient struct {
	http *httpclient.Client
	opts TokenOptions

	mu    sync.Mutex
	cache *gocache.Cache
}

const tokenCacheKey = "bearer"

var _ CredentialProvider = (*TokenClient)(nil)

// NewTokenClient builds a TokenClient.
func NewTokenClient(opts TokenOptions) (*TokenClient, error) {
	if opts.TokenURL == "" {
		return nil, errors.New("treedb: TokenURL is required")
	}
	if opts.ParamName == "" {
		opts.ParamName = "auth"
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &TokenClient{
		http:  httpclient.NewClient(httpclient.WithHTTPTimeout(opts.Timeout)),
		opts:  opts,
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}, nil
}

// ParamName implements CredentialProvider.
func (t *TokenClient) ParamName() string {
	return t.opts.ParamName
}

// Token implements CredentialProvider. The cached value is served while it
// is at least RefreshMargin away from expiry; otherwise a remote refresh
// runs under the lock and repopulates the cache.
func (t *TokenClient) Token(ctx context.Context) (string, error) {
	if cached, ok := t.cache.Get(tokenCacheKey); ok {
		return cached.(string), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Another caller may have refreshed while we waited on the lock.
	if cached, ok := t.cache.Get(tokenCacheKey); ok {
		return cached.(string), nil
	}
	return t.refresh(ctx)
}

func (t *TokenClient) refresh(ctx context.Context) (string, error) {
	log := logger.Logger(ctx)
	log.Debug("refreshing bearer token")

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": t.opts.RefreshToken,
	})
	if err != nil {
		return "", fmt.Errorf("treedb: failed to encode token request: %w", err)
	}

	endpoint := t.opts.TokenURL
	if t.opts.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(t.opts.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("treedb: failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("treedb: token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("treedb: failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", newRequestError(resp.StatusCode, resp.Status, body, "")
	}

	var granted struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &granted); err != nil {
		return "", fmt.Errorf("treedb: failed to decode token response: %w", err)
	}
	if granted.AccessToken == "" {
		return "", errors.New("treedb: token response carried no access_token")
	}

	lifetimeSeconds, err := granted.ExpiresIn.Int64()
	if err != nil {
		return "", fmt.Errorf("treedb: invalid expires_in %q: %w", granted.ExpiresIn, err)
	}
	ttl := time.Duration(lifetimeSeconds)*time.Second - t.opts.RefreshMargin
	if ttl > 0 {
		t.cache.Set(tokenCacheKey, granted.AccessToken, ttl)
	}

	log.WithField("lifetime_seconds", lifetimeSeconds).Debug("bearer token refreshed")
	return granted.AccessToken, nil
}

// StaticCredential is a fixed token, useful for server-side secrets and in
// tests.
type StaticCredential struct {
	Value string
	Param string
}

// Token implements CredentialProvider.
func (s StaticCredential) Token(context.Context) (string, error) {
	return s.Value, nil
}

// ParamName implements CredentialProvider.
func (s StaticCredential) ParamName() string {
	if s.Param == "" {
		return "auth"
	}
	return s.Param
}
