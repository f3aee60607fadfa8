// Package config holds the JSON configuration of a sync node.
//
// Example:
//
//	{
//	  "listen": "127.0.0.1:7777",
//	  "peers": ["127.0.0.1:7778"],
//	  "algorithm": "ed25519",
//	  "announce_interval": "30s",
//	  "trusted_certs": ["<base64 certificate>"],
//	  "storage": {"backends": [{"name": "memory"}]}
//	}
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage/storeconfig"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	// Listen is the gRPC listen address of the daemon.
	Listen string `json:"listen,omitempty"`
	// Peers are gRPC targets dialed at startup.
	Peers []string `json:"peers,omitempty"`
	// RPCTimeout bounds each outgoing RPC. Zero means no bound.
	RPCTimeout Duration `json:"rpc_timeout,omitempty"`

	SyncPrefix       string   `json:"sync_prefix,omitempty"`
	Freshness        Duration `json:"freshness,omitempty"`
	AnnounceInterval Duration `json:"announce_interval,omitempty"`

	// Algorithm is "ed25519" or "dilithium3".
	Algorithm    string   `json:"algorithm,omitempty"`
	KeyID        string   `json:"key_id,omitempty"`
	CertValidity Duration `json:"cert_validity,omitempty"`
	// TrustedCerts are base64 peer certificates imported at startup.
	TrustedCerts []string `json:"trusted_certs,omitempty"`

	LogLevel string `json:"log_level,omitempty"`

	Storage storeconfig.Config `json:"storage"`
}

func Default() Config {
	return Config{
		Listen:           "127.0.0.1:7777",
		RPCTimeout:       Duration(10 * time.Second),
		SyncPrefix:       "/aincraft/sync",
		Freshness:        Duration(60 * time.Second),
		AnnounceInterval: Duration(30 * time.Second),
		Algorithm:        "ed25519",
		KeyID:            "1",
		CertValidity:     Duration(100 * time.Hour),
		LogLevel:         "info",
		Storage:          storeconfig.Memory(),
	}
}

// LoadFile reads path over Default and validates the result.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("config: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := c.SigType(); err != nil {
		return err
	}
	if _, err := c.Prefix(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Freshness < 0 || c.AnnounceInterval < 0 || c.RPCTimeout < 0 || c.CertValidity < 0 {
		return errors.New("config: durations cannot be negative")
	}
	for i, p := range c.Peers {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("config: peer %d is empty", i)
		}
	}
	return c.Storage.Validate()
}

// SigType maps Algorithm to a signature type. Empty selects Ed25519.
func (c Config) SigType() (packet.SigType, error) {
	switch strings.ToLower(c.Algorithm) {
	case "", "ed25519":
		return packet.SigEd25519, nil
	case "dilithium3":
		return packet.SigDilithium3, nil
	default:
		return packet.SigNone, fmt.Errorf("config: unknown algorithm %q", c.Algorithm)
	}
}

// Prefix parses SyncPrefix. Empty yields an empty name.
func (c Config) Prefix() (name.Name, error) {
	if c.SyncPrefix == "" {
		return nil, nil
	}
	n, err := name.Parse(c.SyncPrefix)
	if err != nil {
		return nil, fmt.Errorf("config: sync_prefix: %w", err)
	}
	if len(n) == 0 {
		return nil, errors.New("config: sync_prefix cannot be the root name")
	}
	return n, nil
}

// Level parses LogLevel. Empty selects info.
func (c Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}
