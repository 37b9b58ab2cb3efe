package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// PlaceholderKeys are reserved for commands provided by external
// collaborators (mail delivery, library browsing, paging, message
// authoring and removal).  Until replaced they behave exactly like an
// unknown command.
var PlaceholderKeys = []string{"mail", "library", "page", "write", "amend", "remove"}

// noop is the handler behind every placeholder key.
var noop = HandlerFunc(func(context.Context, Responder, []string) error { return nil })

// Registry is the open registration table for non-built-in commands.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry holding the placeholder commands.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, key := range PlaceholderKeys {
		r.handlers[key] = noop
	}
	return r
}

// Register adds h under key.  Keys are case-insensitive.  It fails with
// [ErrInvalidCommand] or [ErrDuplicateCommand]; use [Registry.Replace]
// to take over a placeholder.
func (r *Registry) Register(key string, h Handler) error {
	key, err := checkKey(key, h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateCommand, key)
	}
	r.handlers[key] = h
	return nil
}

// Replace installs h under key whether or not the key is taken.
// Built-in keys and the quit keyword still cannot be replaced.
func (r *Registry) Replace(key string, h Handler) error {
	key, err := checkKey(key, h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.handlers[key] = h
	r.mu.Unlock()
	return nil
}

// Lookup returns the handler registered under key.
func (r *Registry) Lookup(key string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(key)]
	return h, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func checkKey(key string, h Handler) (string, error) {
	key = strings.ToLower(key)
	switch {
	case h == nil:
		return "", fmt.Errorf("%w: nil handler for %q", ErrInvalidCommand, key)
	case key == "" || strings.IndexFunc(key, unicode.IsSpace) >= 0:
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, key)
	case key == QuitKeyword:
		return "", fmt.Errorf("%w: %q is handled by the session", ErrInvalidCommand, key)
	}
	if _, ok := LookupBuiltin(key); ok {
		return "", fmt.Errorf("%w: %q is built in", ErrDuplicateCommand, key)
	}
	return key, nil
}
