package fieldmap

import (
	"strconv"
	"time"
)

// JSON decoding hands every number back as float64 and may widen or narrow
// other scalars depending on the source store, so each accessor coerces the
// standard representations instead of type-asserting a single shape.

func stringField(w Wire, key string) string {
	v, ok := w[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func boolField(w Wire, key string) bool {
	v, ok := w[key]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}

func intField(w Wire, key string) int {
	v, ok := w[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func int64Field(w Wire, key string) (int64, bool) {
	v, ok := w[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// timeField reads a store-native epoch-milliseconds value into a time.Time.
func timeField(w Wire, key string) (time.Time, bool) {
	millis, ok := int64Field(w, key)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}
