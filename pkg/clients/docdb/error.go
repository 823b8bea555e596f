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
	"errors"
	"fmt"
	"net/http"
)

// RequestError is the typed failure for any non-success response from the
// collection store.
type RequestError struct {
	StatusCode int
	Reason     string
	Body       string
}

func newRequestError(statusCode int, reason string, body []byte) *RequestError {
	return &RequestError{
		StatusCode: statusCode,
		Reason:     reason,
		Body:       string(body),
	}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("docdb: request failed: %s: %s", e.Reason, e.Body)
}

// IsConflict reports whether the error is a transaction-commit rejection
// caused by a read-version precondition mismatch.
func IsConflict(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusConflict
}
