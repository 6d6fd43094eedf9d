// Package ipamclient defines the collaborator contract handlers use to talk
// to the remote IPAM server, plus an illustrative reference HTTP
// implementation used by integration tests. The contract itself — method
// shapes and error kinds — is the specified surface; the HTTP wiring is
// scaffolding, not part of the reconciliation contract.
package ipamclient

import (
	"context"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
)

// Client is the handler-facing surface every IPAM handler depends on.
type Client interface {
	Create(ctx context.Context, objectType, path string, body map[string]any) (map[string]any, error)
	UpdateByID(ctx context.Context, id int64, typeName string, body map[string]any) error
	DeleteByID(ctx context.Context, id int64, typeName string, allowDangerous bool) error
	LookupByNaturalKey(ctx context.Context, objectType string, key map[string]string) (map[string]any, error)
}

// NewAlreadyExistsError is a convenience constructor handlers use on 409
// responses.
func NewAlreadyExistsError(objectType string) error {
	return recerr.New(recerr.KindResourceExists, "resource already exists: "+objectType)
}

// NewNotFoundError is a convenience constructor handlers use on 404
// responses.
func NewNotFoundError(objectType string) error {
	return recerr.New(recerr.KindResourceNotFound, "resource not found: "+objectType)
}

// RateLimitError carries the server's retry-after hint.
type RateLimitError struct {
	RetryAfterSeconds float64
}

func (e *RateLimitError) Error() string {
	return "rate limited by IPAM server"
}
