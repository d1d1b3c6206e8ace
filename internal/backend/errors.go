package backend

import (
	"fmt"
	"strings"
)

// APIError is a non-2xx reply from the recruiting API, carrying the
// server-provided detail so skills can translate it into friendly text.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend http %d", e.Status)
	}
	return fmt.Sprintf("backend http %d: %s", e.Status, e.Detail)
}

// IsDuplicateEmail reports whether the failure is the duplicate-email
// constraint on candidate creation.
func (e *APIError) IsDuplicateEmail() bool {
	return e.Status == 400 && strings.Contains(strings.ToLower(e.Detail), "email")
}

// ConflictError is the scheduling-conflict reply from interview creation.
// Conflicts holds the human-readable windows the server found occupied.
type ConflictError struct {
	Detail    string
	Conflicts []string
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return e.Detail
	}
	return e.Detail + " (" + strings.Join(e.Conflicts, "; ") + ")"
}
