// Package storeconfig opens a node's packet store from JSON configuration.
//
// Backends are looked up in storeregistry, so the binary must link them with
// blank imports. With more than one backend the write policy decides the
// composition:
//
//	"first" (default)  writes go to the first backend; reads fall back in order
//	"all"              writes go to every backend (storage.ReplicatingStore)
//
// Example:
//
//	{
//	  "write_policy": "all",
//	  "backends": [
//	    {"name": "memory"},
//	    {"name": "localfs", "config": {"localfs-dir": "/var/lib/aincraft"}}
//	  ]
//	}
package storeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/storage/storeregistry"
)

const (
	WriteFirst = "first"
	WriteAll   = "all"
)

type Config struct {
	WritePolicy string          `json:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name selects the storeregistry backend.
	Name string `json:"name"`
	// ID distinguishes two instances of one backend. Defaults to Name.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// Memory is a single in-memory backend.
func Memory() Config {
	return Single("memory", nil)
}

// Single is a configuration with one backend.
func Single(backend string, settings map[string]string) Config {
	return Config{Backends: []BackendConfig{{Name: backend, Config: settings}}}
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("storeconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("storeconfig: at least one backend is required")
	}
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("storeconfig: backend name is required")
		}
		if seen[b.id()] {
			return fmt.Errorf("storeconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = true
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens every backend and composes them. The returned close function
// closes them in reverse order and reports every failure.
func (c Config) Open(usage storeregistry.Usage) (storage.Store, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		named   []storage.NamedStore
		closers []func() error
	)
	closeAll := func() error {
		var result *multierror.Error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}

	for _, b := range c.Backends {
		s, closeFn, err := storeregistry.Open(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("storeconfig: backend %q: %w", b.id(), err)
		}
		named = append(named, storage.NamedStore{Name: b.id(), Store: s})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}
	if c.WritePolicy == WriteAll {
		return storage.ReplicatingStore{Backends: named}, closeAll, nil
	}
	stores := make([]storage.Store, len(named))
	for i, n := range named {
		stores[i] = n.Store
	}
	return storage.MultiStore{Stores: stores}, closeAll, nil
}
