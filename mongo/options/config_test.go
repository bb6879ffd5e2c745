// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig(viper.New(), nil, filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		if diff := cmp.Diff(NewConfig(), cfg); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("precedence", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "mongorx.yaml")
		require.NoError(t, os.WriteFile(file, []byte("uri: mongodb://file:27017\nexecutor-pool-size: 8\nlog-level: warn\n"), 0o600))
		envFile := filepath.Join(dir, "test.env")
		require.NoError(t, os.WriteFile(envFile, []byte("MONGORX_EXECUTOR_POOL_SIZE=16\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("MONGORX_EXECUTOR_POOL_SIZE") })
		t.Setenv("MONGORX_TIMEOUT", "5s")

		cfg := NewConfig()
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		cfg.AddFlags(flags)
		require.NoError(t, flags.Parse([]string{"--log-level=debug"}))

		v := viper.New()
		v.SetConfigFile(file)
		loaded, err := LoadConfig(v, flags, envFile)
		require.NoError(t, err)

		assert.Equal(t, "mongodb://file:27017", loaded.URI)
		assert.Equal(t, 16, loaded.ExecutorPoolSize)
		assert.Equal(t, 5*time.Second, loaded.Timeout)
		assert.Equal(t, "debug", loaded.LogLevel)
		assert.Equal(t, NewConfig().AppName, loaded.AppName)
	})
	t.Run("invalid", func(t *testing.T) {
		t.Setenv("MONGORX_READ_PREFERENCE", "sometimes")
		_, err := LoadConfig(viper.New(), nil, filepath.Join(t.TempDir(), "missing.env"))
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty uri", func(c *Config) { c.URI = "" }},
		{"pool sizes", func(c *Config) { c.MinPoolSize = 200 }},
		{"executor pool size", func(c *Config) { c.ExecutorPoolSize = -1 }},
		{"read preference", func(c *Config) { c.ReadPreference = "closest" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"driver log level", func(c *Config) { c.DriverLogLevel = "trace" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, NewConfig().Validate())
}

func TestConfigClientOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.ReadPreference = "secondaryPreferred"
	cfg.ExecutorPoolSize = 4
	cfg.Timeout = time.Second
	cfg.DriverLogLevel = "debug"
	cfg.LogFormat = "json"

	opts, err := cfg.ClientOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, *opts.PoolSize)
	assert.Equal(t, mongoopts.LogLevelDebug, *opts.DriverLogLevel)
	assert.Equal(t, readpref.SecondaryPreferredMode, opts.Driver.ReadPreference.Mode())
	assert.Equal(t, time.Second, *opts.Driver.Timeout)
	assert.Equal(t, []string{"localhost:27017"}, opts.Driver.Hosts)
	require.NotNil(t, opts.Logger)
	assert.IsType(t, &logrus.JSONFormatter{}, opts.Logger.Formatter)
}
