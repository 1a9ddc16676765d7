package tenantapi

import (
	"fmt"
	"strings"
)

// NetworkError means the request never produced an API response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("tenant api %s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError means the API answered with success=false or an HTTP error status.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Details    map[string]any
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("tenant api %s: %d: %s", e.Op, e.StatusCode, msg)
}
