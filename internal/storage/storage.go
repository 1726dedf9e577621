// Package storage holds helpers shared by the key-value store backends.
// Backends live in sub-packages (memory, local, gcs, postgres) and all satisfy
// validation.KeyValueStore.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// Namespace scopes every key of an underlying store under a prefix.
type Namespace struct {
	inner  validation.KeyValueStore
	prefix string
}

// NewNamespace wraps inner so keys are stored as "<prefix>/<key>".
func NewNamespace(inner validation.KeyValueStore, prefix string) (*Namespace, error) {
	if inner == nil {
		return nil, fmt.Errorf("key-value store is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, fmt.Errorf("namespace prefix is required")
	}
	return &Namespace{inner: inner, prefix: prefix}, nil
}

// InvocationPrefix returns the namespace used for one serve-mode invocation.
func InvocationPrefix(invocationID string) string {
	return "invocations/" + invocationID
}

// Key returns the fully qualified key.
func (n *Namespace) Key(key string) string {
	return n.prefix + "/" + key
}

// Get reads a record from the namespace.
func (n *Namespace) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.Key(key))
}

// Set writes a record into the namespace.
func (n *Namespace) Set(ctx context.Context, key string, data []byte) error {
	return n.inner.Set(ctx, n.Key(key), data)
}
