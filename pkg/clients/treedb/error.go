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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound is returned by Get when the addressed node does not exist.
var ErrNotFound = errors.New("treedb: resource not found")

// RequestError is the typed failure for any non-success response. It
// carries enough for callers to pattern-match the concurrency and
// missing-index conditions without re-reading the response.
type RequestError struct {
	StatusCode int
	Reason     string
	Body       string
	ETag       string
}

func newRequestError(statusCode int, reason string, body []byte, etag string) *RequestError {
	return &RequestError{
		StatusCode: statusCode,
		Reason:     reason,
		Body:       string(body),
		ETag:       etag,
	}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("treedb: request failed: %s: %s", e.Reason, e.Body)
}

// IsPreconditionFailed reports whether the request was rejected because
// the If-Match version token no longer matches the stored version.
func (e *RequestError) IsPreconditionFailed() bool {
	return e.StatusCode == http.StatusPreconditionFailed
}

// IsMissingIndex reports whether the database rejected a query because no
// index covers the ordered field. The error body is a single-field JSON
// object whose message starts with "Index".
func (e *RequestError) IsMissingIndex() bool {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err != nil {
		return false
	}
	return strings.HasPrefix(payload.Error, "Index")
}

// IsPreconditionFailed reports whether err is a RequestError caused by a
// version precondition mismatch.
func IsPreconditionFailed(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.IsPreconditionFailed()
}

// IsMissingIndex reports whether err is a RequestError caused by a query
// without a covering index.
func IsMissingIndex(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.IsMissingIndex()
}
