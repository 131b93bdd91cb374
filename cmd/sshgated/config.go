// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/aox/sshgate/ssh"
	"github.com/spf13/viper"
)

// CryptoFileConfig mirrors ssh.CryptoConfig's fields for config-file
// loading; empty slices fall back to the package defaults.
type CryptoFileConfig struct {
	KeyExchanges []string `mapstructure:"kex"`
	Ciphers      []string `mapstructure:"ciphers"`
	MACs         []string `mapstructure:"macs"`
}

func (c CryptoFileConfig) toCryptoConfig() ssh.CryptoConfig {
	return ssh.CryptoConfig{
		KeyExchanges: c.KeyExchanges,
		Ciphers:      c.Ciphers,
		MACs:         c.MACs,
	}
}

// RedisFileConfig configures the optional auth-attempt throttle.
type RedisFileConfig struct {
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	WindowSecs  int    `mapstructure:"window_seconds"`
}

// UserFileConfig is one entry in the users section of the config
// file: a plain-text password and/or a set of authorized public
// keys, each in the "algo base64blob" ssh-keygen wire format.
type UserFileConfig struct {
	Password       string   `mapstructure:"password"`
	AuthorizedKeys []string `mapstructure:"authorized_keys"`
}

// ServeFileConfig is the top-level shape of `sshgated serve --config`.
type ServeFileConfig struct {
	Listen        string                    `mapstructure:"listen"`
	MetricsListen string                    `mapstructure:"metrics_listen"`
	HostKeyPath   string                    `mapstructure:"host_key"`
	Crypto        CryptoFileConfig          `mapstructure:"crypto"`
	Redis         *RedisFileConfig          `mapstructure:"redis"`
	Users         map[string]UserFileConfig `mapstructure:"users"`
}

func readServeConfig() (*ServeFileConfig, error) {
	var cfg ServeFileConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Listen == "" {
		return nil, fmt.Errorf("missing required 'listen' address")
	}
	if cfg.HostKeyPath == "" {
		return nil, fmt.Errorf("missing required 'host_key' path")
	}
	return &cfg, nil
}

func (c *ServeFileConfig) loadHostKey() (ssh.PrivateKey, error) {
	b, err := os.ReadFile(c.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading host key: %w", err)
	}
	return ssh.ParsePrivateKey(b)
}
