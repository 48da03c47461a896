package pubmed

import (
	"errors"
	"fmt"
)

// ErrInvalidID marks identifiers that fail the PMID format rule
// (digits only, 1-20 characters).
var ErrInvalidID = errors.New("invalid pmid: must be 1-20 digits")

// APIError wraps a non-200 answer from the E-utilities API.
type APIError struct {
	StatusCode int
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pubmed %s returned status %d", e.Endpoint, e.StatusCode)
}

// IsUpstream reports whether err is a PubMed API failure with a status code.
func IsUpstream(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
