package shared

import (
	"sort"
	"strings"
)

// ValidationResult maps a field name to the reason it was rejected. It is
// resolved before any save attempt and returned to callers as data.
type ValidationResult map[string]string

// Add records a failure for field unless one is already present.
func (v ValidationResult) Add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// OK reports whether no field failed.
func (v ValidationResult) OK() bool { return len(v) == 0 }

// Err returns a *ValidationError for a failed result, nil otherwise.
func (v ValidationResult) Err() error {
	if v.OK() {
		return nil
	}
	return &ValidationError{Fields: v}
}

// ValidationError wraps a failed ValidationResult. It matches ErrInvalidInput.
type ValidationError struct {
	Fields ValidationResult
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrInvalidInput) hold for validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
