// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a client-side required-field or format check failed
// before any request was dispatched. Wrap it with the offending field:
//
//	fmt.Errorf("%w: slug is required", domain.ErrValidation)
var ErrValidation = errors.New("validation failed")
