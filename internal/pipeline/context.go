// Package pipeline runs the synchronous staged harvest: discovery, mining,
// aggregation, scoring and cleanup sharing one execution context.
package pipeline

import (
	"fmt"
	"sync"
)

// Well-known execution context keys.
const (
	KeyLogin           = "github_login"
	KeyUserID          = "user_id"
	KeyToken           = "github_token"
	KeyDiscoveredRepos = "discovered_repos"
)

// ExecutionContext is the shared state stages read and write. It is safe
// for concurrent use, although stages run sequentially within one run.
type ExecutionContext struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewExecutionContext creates an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{values: make(map[string]any)}
}

// Set stores a value under a key.
func (ec *ExecutionContext) Set(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.values[key] = value
}

// Get returns the value for a key.
func (ec *ExecutionContext) Get(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.values[key]
	return v, ok
}

// Delete removes a key. Used by cleanup to drop token material.
func (ec *ExecutionContext) Delete(key string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	delete(ec.values, key)
}

// Has reports whether a key is present.
func (ec *ExecutionContext) Has(key string) bool {
	_, ok := ec.Get(key)
	return ok
}

// RequireString returns the string stored under key. The error names the
// missing or mistyped key so precondition failures are diagnosable.
func (ec *ExecutionContext) RequireString(key string) (string, error) {
	v, ok := ec.Get(key)
	if !ok {
		return "", fmt.Errorf("required context key %q is missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("context key %q holds %T, expected string", key, v)
	}
	return s, nil
}

// RequireInt64 returns the int64 stored under key.
func (ec *ExecutionContext) RequireInt64(key string) (int64, error) {
	v, ok := ec.Get(key)
	if !ok {
		return 0, fmt.Errorf("required context key %q is missing", key)
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("context key %q holds %T, expected int64", key, v)
	}
	return n, nil
}

// RequireStrings returns the string slice stored under key.
func (ec *ExecutionContext) RequireStrings(key string) ([]string, error) {
	v, ok := ec.Get(key)
	if !ok {
		return nil, fmt.Errorf("required context key %q is missing", key)
	}
	s, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("context key %q holds %T, expected []string", key, v)
	}
	return s, nil
}
