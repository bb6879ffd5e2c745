// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// EnvPrefix prefixes the environment variables read by LoadConfig, so that
// the key max-pool-size is read from MONGORX_MAX_POOL_SIZE.
const EnvPrefix = "MONGORX"

// Config is the flat, serializable form of ClientOptions.
type Config struct {
	URI                    string        `json:"uri" mapstructure:"uri"`
	AppName                string        `json:"app-name" mapstructure:"app-name"`
	MaxPoolSize            uint64        `json:"max-pool-size" mapstructure:"max-pool-size"`
	MinPoolSize            uint64        `json:"min-pool-size" mapstructure:"min-pool-size"`
	ConnectTimeout         time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ServerSelectionTimeout time.Duration `json:"server-selection-timeout" mapstructure:"server-selection-timeout"`
	Timeout                time.Duration `json:"timeout" mapstructure:"timeout"`
	ReadPreference         string        `json:"read-preference" mapstructure:"read-preference"`

	ExecutorPoolSize    int           `json:"executor-pool-size" mapstructure:"executor-pool-size"`
	ExecutorExpiry      time.Duration `json:"executor-expiry" mapstructure:"executor-expiry"`
	ExecutorNonblocking bool          `json:"executor-nonblocking" mapstructure:"executor-nonblocking"`

	LogLevel          string `json:"log-level" mapstructure:"log-level"`
	LogFormat         string `json:"log-format" mapstructure:"log-format"`
	DriverLogLevel    string `json:"driver-log-level" mapstructure:"driver-log-level"`
	CommandMonitoring bool   `json:"command-monitoring" mapstructure:"command-monitoring"`
}

// NewConfig returns a Config holding the default values.
func NewConfig() *Config {
	return &Config{
		URI:                    "mongodb://localhost:27017",
		AppName:                "mongorx",
		MaxPoolSize:            100,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 30 * time.Second,
		ReadPreference:         readpref.PrimaryMode.String(),
		ExecutorPoolSize:       DefaultPoolSize,
		ExecutorExpiry:         10 * time.Second,
		LogLevel:               logrus.InfoLevel.String(),
		LogFormat:              "text",
	}
}

// AddFlags adds a flag for every field of c to fs, using the current values as defaults.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.URI, "uri", c.URI, "MongoDB connection string.")
	fs.StringVar(&c.AppName, "app-name", c.AppName, "Application name sent to the server.")
	fs.Uint64Var(&c.MaxPoolSize, "max-pool-size", c.MaxPoolSize, "Maximum number of connections per server.")
	fs.Uint64Var(&c.MinPoolSize, "min-pool-size", c.MinPoolSize, "Minimum number of connections per server.")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", c.ConnectTimeout, "Timeout for establishing a connection.")
	fs.DurationVar(&c.ServerSelectionTimeout, "server-selection-timeout", c.ServerSelectionTimeout, "Timeout for selecting a server.")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Timeout for every operation, 0 for none.")
	fs.StringVar(&c.ReadPreference, "read-preference", c.ReadPreference, "Read preference mode.")
	fs.IntVar(&c.ExecutorPoolSize, "executor-pool-size", c.ExecutorPoolSize, "Maximum number of operations running at once.")
	fs.DurationVar(&c.ExecutorExpiry, "executor-expiry", c.ExecutorExpiry, "How long an idle executor goroutine is kept.")
	fs.BoolVar(&c.ExecutorNonblocking, "executor-nonblocking", c.ExecutorNonblocking, "Fail operations instead of waiting when the executor is saturated.")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (trace, debug, info, warn, error).")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format (text or json).")
	fs.StringVar(&c.DriverLogLevel, "driver-log-level", c.DriverLogLevel, "Route driver logs at this level (info or debug), empty to disable.")
	fs.BoolVar(&c.CommandMonitoring, "command-monitoring", c.CommandMonitoring, "Log failed commands and record command durations.")
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.URI == "" {
		return errors.New("uri must be set")
	}
	if c.MinPoolSize > c.MaxPoolSize && c.MaxPoolSize != 0 {
		return errors.Errorf("min-pool-size %d exceeds max-pool-size %d", c.MinPoolSize, c.MaxPoolSize)
	}
	if c.ExecutorPoolSize < 0 {
		return errors.Errorf("executor-pool-size must not be negative, got %d", c.ExecutorPoolSize)
	}
	if _, err := readpref.ModeFromString(c.ReadPreference); err != nil {
		return errors.Wrap(err, "read-preference")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log-level")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.Errorf("log-format must be text or json, got %q", c.LogFormat)
	}
	if _, err := parseDriverLogLevel(c.DriverLogLevel); err != nil {
		return err
	}
	return nil
}

// NewLogger returns a logger configured with the level and format of c.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "log-level")
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// ClientOptions returns the ClientOptions described by c, logging to logger.
// A nil logger is replaced by one built with NewLogger.
func (c *Config) ClientOptions(logger *logrus.Logger) (*ClientOptions, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		var err error
		if logger, err = c.NewLogger(); err != nil {
			return nil, err
		}
	}

	mode, _ := readpref.ModeFromString(c.ReadPreference)
	rp, err := readpref.New(mode)
	if err != nil {
		return nil, errors.Wrap(err, "read-preference")
	}

	driver := mongoopts.Client().
		ApplyURI(c.URI).
		SetAppName(c.AppName).
		SetMaxPoolSize(c.MaxPoolSize).
		SetMinPoolSize(c.MinPoolSize).
		SetConnectTimeout(c.ConnectTimeout).
		SetServerSelectionTimeout(c.ServerSelectionTimeout).
		SetReadPreference(rp)
	if c.Timeout > 0 {
		driver.SetTimeout(c.Timeout)
	}

	opts := Client().
		SetDriverOptions(driver).
		SetLogger(logger).
		SetCommandMonitoring(c.CommandMonitoring).
		SetPoolSize(c.ExecutorPoolSize).
		SetPoolExpiry(c.ExecutorExpiry).
		SetNonblocking(c.ExecutorNonblocking)

	level, _ := parseDriverLogLevel(c.DriverLogLevel)
	if level != nil {
		opts.SetDriverLogLevel(*level)
	}
	return opts, opts.Validate()
}

func parseDriverLogLevel(s string) (*mongoopts.LogLevel, error) {
	var level mongoopts.LogLevel
	switch strings.ToLower(s) {
	case "", "off":
		return nil, nil
	case "info":
		level = mongoopts.LogLevelInfo
	case "debug":
		level = mongoopts.LogLevelDebug
	default:
		return nil, errors.Errorf("driver-log-level must be info, debug or off, got %q", s)
	}
	return &level, nil
}

// LoadConfig reads the configuration in order of increasing precedence from
// the defaults, the config file set on v, the environment and the changed
// flags of flags. Environment variables are first loaded from envFiles, or
// from .env when none are given; missing files are ignored.
func LoadConfig(v *viper.Viper, flags *pflag.FlagSet, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	setDefaults(v, NewConfig())

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errors.Wrap(err, "binding flags")
		}
	}
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", v.ConfigFileUsed())
		}
	}

	cfg := NewConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// Variables already in the environment take precedence.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, "loading %s", f)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("uri", c.URI)
	v.SetDefault("app-name", c.AppName)
	v.SetDefault("max-pool-size", c.MaxPoolSize)
	v.SetDefault("min-pool-size", c.MinPoolSize)
	v.SetDefault("connect-timeout", c.ConnectTimeout)
	v.SetDefault("server-selection-timeout", c.ServerSelectionTimeout)
	v.SetDefault("timeout", c.Timeout)
	v.SetDefault("read-preference", c.ReadPreference)
	v.SetDefault("executor-pool-size", c.ExecutorPoolSize)
	v.SetDefault("executor-expiry", c.ExecutorExpiry)
	v.SetDefault("executor-nonblocking", c.ExecutorNonblocking)
	v.SetDefault("log-level", c.LogLevel)
	v.SetDefault("log-format", c.LogFormat)
	v.SetDefault("driver-log-level", c.DriverLogLevel)
	v.SetDefault("command-monitoring", c.CommandMonitoring)
}
