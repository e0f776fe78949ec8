// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gcs

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gomlx/hlo/types/status"
)

// Config of a FileSystem and its block cache.
type Config struct {
	// BlockSize of the reads issued to GCS. 0 disables the cache.
	BlockSize int `yaml:"block_size" validate:"min=0"`

	// MaxBytes held by the cache. 0 disables the cache.
	MaxBytes int64 `yaml:"max_bytes" validate:"min=0"`

	// MaxStaleness of a cached file. 0 means cached files never expire.
	MaxStaleness time.Duration `yaml:"max_staleness" validate:"min=0"`

	// CredentialsFile is a service account key. If empty, the application default credentials are used.
	CredentialsFile string `yaml:"credentials_file" validate:"omitempty,file"`
}

var configValidate = validator.New()

// DefaultConfig caches up to 256MiB in blocks of 16MiB, without expiration.
func DefaultConfig() Config {
	return Config{
		BlockSize: 16 << 20,
		MaxBytes:  256 << 20,
	}
}

// Validate checks the configuration. Errors are InvalidArgument.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return status.InvalidArgumentf("invalid GCS configuration: %v", err)
	}
	return nil
}

// ParseConfig parses a yaml configuration. Fields not given take their values from DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, status.InvalidArgumentf("parsing GCS configuration: %v", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads the configuration from a yaml file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), errors.Wrapf(err, "reading GCS configuration from %q", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return cfg, errors.WithMessagef(err, "GCS configuration in %q", path)
	}
	return cfg, nil
}
