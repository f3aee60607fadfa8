// Package storeregistry links packet store backends into a binary at build
// time. A backend registers itself from init() and is enabled by importing its
// package, usually as a blank import.
package storeregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"xdao.co/aincraft/storage"
)

// OpenFunc opens a store from key/value settings. The close function is optional.
type OpenFunc func(settings map[string]string) (storage.Store, func() error, error)

type Backend struct {
	Name        string
	Description string
	Usage       Usage
	// Settings documents the keys Open understands, e.g. "localfs-dir".
	Settings []string
	Open     OpenFunc
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("storeregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("storeregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("storeregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("storeregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Open opens the named backend. Settings it does not declare are rejected.
func Open(name string, usage Usage, settings map[string]string) (storage.Store, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("storeregistry: unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("storeregistry: backend %q not supported in this binary", name)
	}
	for k := range settings {
		if !contains(b.Settings, k) {
			return nil, nil, fmt.Errorf("storeregistry: backend %q has no setting %q (known: %s)",
				name, k, strings.Join(b.Settings, ", "))
		}
	}
	return b.Open(settings)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
