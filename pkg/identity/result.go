package identity

import "strings"

// Result is the outcome of a mutation. Expected failures such as version
// conflicts are reported here rather than as errors, so callers can reload
// and retry without unwinding the call chain.
type Result struct {
	Succeeded bool
	Errors    []ResultError
}

// ResultError describes one failure inside an unsuccessful Result.
type ResultError struct {
	Code        string
	Description string
}

const concurrencyFailureCode = "ConcurrencyFailure"

// OK returns a successful Result.
func OK() Result {
	return Result{Succeeded: true}
}

// Fail returns a failed Result carrying the given error descriptor.
func Fail(code, description string) Result {
	return Result{Errors: []ResultError{{Code: code, Description: description}}}
}

// ConcurrencyFailure returns the Result reported when an optimistic
// concurrency precondition was not met.
func ConcurrencyFailure() Result {
	return Fail(concurrencyFailureCode,
		"the entity was modified by another request, reload and retry")
}

// IsConcurrencyFailure reports whether the Result failed on a version
// precondition.
func (r Result) IsConcurrencyFailure() bool {
	for _, e := range r.Errors {
		if e.Code == concurrencyFailureCode {
			return true
		}
	}
	return false
}

func (r Result) String() string {
	if r.Succeeded {
		return "succeeded"
	}
	codes := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}
	return "failed: " + strings.Join(codes, ", ")
}
