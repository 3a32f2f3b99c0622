// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

const (
	speculosAddressEnv = "LEDGER_SPECULOS_ADDRESS"
	hidDeviceIndexEnv  = "LEDGER_HID_DEVICE_INDEX"

	// DefaultSS58AddressType is the generic substrate address prefix.
	DefaultSS58AddressType = 42
)

// Config describes how to reach the device and which keys to use.
type Config struct {
	LogLevel string         `toml:"log_level"`
	HID      HIDConfig      `toml:"hid"`
	Speculos SpeculosConfig `toml:"speculos"`
	Account  AccountConfig  `toml:"account"`
}

type HIDConfig struct {
	DeviceIndex int `toml:"device_index"`
}

// SpeculosConfig enables the emulator transport when Address is set.
type SpeculosConfig struct {
	Address string `toml:"address"`
}

type AccountConfig struct {
	Slip44          uint32 `toml:"slip44"`
	Scheme          string `toml:"scheme"`
	SS58AddressType uint16 `toml:"ss58_address_type"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Account: AccountConfig{
			Slip44:          354,
			Scheme:          SchemeEd25519.String(),
			SS58AddressType: DefaultSS58AddressType,
		},
	}
}

// DefaultConfigPath returns ~/.ledger/config.toml when the home directory is known.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".ledger", "config.toml")
	}
	return ""
}

// LoadConfig reads the TOML file at path on top of the defaults and applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(speculosAddressEnv); v != "" {
		c.Speculos.Address = v
	}
	if v := os.Getenv(hidDeviceIndexEnv); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", hidDeviceIndexEnv, err)
		}
		c.HID.DeviceIndex = i
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if c.HID.DeviceIndex < 0 {
		err = multierr.Append(err, fmt.Errorf("hid.device_index: must not be negative, got %d", c.HID.DeviceIndex))
	}
	if _, perr := ParseScheme(c.Account.Scheme); perr != nil {
		err = multierr.Append(err, fmt.Errorf("account.scheme: %w", perr))
	}
	return err
}

// LedgerOptions turns the account section into GenericLedger options.
func (c Config) LedgerOptions() []GenericOption {
	scheme, _ := ParseScheme(c.Account.Scheme)
	return []GenericOption{
		WithScheme(scheme),
		WithSS58AddressType(c.Account.SS58AddressType),
	}
}
