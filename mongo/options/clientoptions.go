// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package options defines the options used to configure a reactive client and
// the file, environment and flag configuration they can be loaded from.
//
// Options for individual operations are the driver's own, from
// go.mongodb.org/mongo-driver/mongo/options.
package options

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/bombsimon/logrusr/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ikmak/mongo-rx-driver/reactive"
)

// DefaultPoolSize is the number of operations a client runs at once unless
// configured otherwise.
const DefaultPoolSize = 256

// ClientOptions represents options that can be used to configure a reactive Client.
type ClientOptions struct {
	// Driver holds the options of the wrapped driver client, such as its
	// connection string, pool sizes and timeouts.
	Driver *mongoopts.ClientOptions

	// ObservableAdapter is applied to every Observable returned by the client
	// and the databases, collections and buckets derived from it. The default
	// is nil, which returns observables unchanged.
	ObservableAdapter reactive.Adapter

	// Logger receives the logs of the client. The default is the logrus
	// standard logger.
	Logger *logrus.Logger

	// Metrics receives the executor and command metrics. The default is a new
	// set private to the client.
	Metrics *metrics.Set

	// DriverLogLevel routes the logs of the wrapped driver to Logger at the
	// given level. The default is nil, which leaves driver logging untouched.
	DriverLogLevel *mongoopts.LogLevel

	// CommandMonitoring logs failed commands and records command durations.
	// The default is false.
	CommandMonitoring *bool

	// PoolSize is the maximum number of operations executed at once. The
	// default is DefaultPoolSize.
	PoolSize *int

	// PoolExpiry is how long an idle executor goroutine is kept. The default
	// is 10 seconds.
	PoolExpiry *time.Duration

	// Nonblocking makes operations fail immediately when PoolSize operations
	// are already running instead of waiting for one to finish. The default is false.
	Nonblocking *bool

	// MaxBlockingTasks bounds the number of operations waiting for a free
	// slot. The default is 0, which means no limit.
	MaxBlockingTasks *int

	// ReleaseTimeout bounds how long closing a client waits for running
	// operations. The default is 10 seconds.
	ReleaseTimeout *time.Duration
}

// Client creates a new ClientOptions instance.
func Client() *ClientOptions {
	return &ClientOptions{Driver: mongoopts.Client()}
}

// ApplyURI parses uri and sets the driver options it specifies. Parsing errors
// are reported by Validate.
func (c *ClientOptions) ApplyURI(uri string) *ClientOptions {
	c.driver().ApplyURI(uri)
	return c
}

// SetDriverOptions sets the value for the Driver field.
func (c *ClientOptions) SetDriverOptions(opts *mongoopts.ClientOptions) *ClientOptions {
	c.Driver = opts
	return c
}

// SetObservableAdapter sets the value for the ObservableAdapter field.
func (c *ClientOptions) SetObservableAdapter(a reactive.Adapter) *ClientOptions {
	c.ObservableAdapter = a
	return c
}

// SetLogger sets the value for the Logger field.
func (c *ClientOptions) SetLogger(l *logrus.Logger) *ClientOptions {
	c.Logger = l
	return c
}

// SetMetrics sets the value for the Metrics field.
func (c *ClientOptions) SetMetrics(s *metrics.Set) *ClientOptions {
	c.Metrics = s
	return c
}

// SetDriverLogLevel sets the value for the DriverLogLevel field.
func (c *ClientOptions) SetDriverLogLevel(level mongoopts.LogLevel) *ClientOptions {
	c.DriverLogLevel = &level
	return c
}

// SetCommandMonitoring sets the value for the CommandMonitoring field.
func (c *ClientOptions) SetCommandMonitoring(b bool) *ClientOptions {
	c.CommandMonitoring = &b
	return c
}

// SetPoolSize sets the value for the PoolSize field.
func (c *ClientOptions) SetPoolSize(n int) *ClientOptions {
	c.PoolSize = &n
	return c
}

// SetPoolExpiry sets the value for the PoolExpiry field.
func (c *ClientOptions) SetPoolExpiry(d time.Duration) *ClientOptions {
	c.PoolExpiry = &d
	return c
}

// SetNonblocking sets the value for the Nonblocking field.
func (c *ClientOptions) SetNonblocking(b bool) *ClientOptions {
	c.Nonblocking = &b
	return c
}

// SetMaxBlockingTasks sets the value for the MaxBlockingTasks field.
func (c *ClientOptions) SetMaxBlockingTasks(n int) *ClientOptions {
	c.MaxBlockingTasks = &n
	return c
}

// SetReleaseTimeout sets the value for the ReleaseTimeout field.
func (c *ClientOptions) SetReleaseTimeout(d time.Duration) *ClientOptions {
	c.ReleaseTimeout = &d
	return c
}

// Validate checks the options for errors, including errors in the connection
// string applied with ApplyURI.
func (c *ClientOptions) Validate() error {
	if c.Driver != nil {
		if err := c.Driver.Validate(); err != nil {
			return errors.Wrap(err, "invalid driver options")
		}
	}
	if c.PoolSize != nil && *c.PoolSize < 0 {
		return errors.Errorf("pool size must not be negative, got %d", *c.PoolSize)
	}
	if c.MaxBlockingTasks != nil && *c.MaxBlockingTasks < 0 {
		return errors.Errorf("max blocking tasks must not be negative, got %d", *c.MaxBlockingTasks)
	}
	return nil
}

// DriverOptions returns the options to create the wrapped driver client with.
// The returned value is a copy, so the driver logger can be attached without
// modifying c.Driver.
func (c *ClientOptions) DriverOptions() *mongoopts.ClientOptions {
	opts := *c.driver()
	if c.DriverLogLevel != nil {
		sink := logrusr.New(c.logger()).GetSink()
		opts.SetLoggerOptions(mongoopts.Logger().
			SetSink(sink).
			SetComponentLevel(mongoopts.LogComponentAll, *c.DriverLogLevel))
	}
	return &opts
}

// LoggerOrDefault returns Logger, or the logrus standard logger when it is not set.
func (c *ClientOptions) LoggerOrDefault() *logrus.Logger {
	return c.logger()
}

func (c *ClientOptions) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *ClientOptions) driver() *mongoopts.ClientOptions {
	if c.Driver == nil {
		c.Driver = mongoopts.Client()
	}
	return c.Driver
}

// MergeClientOptions combines the given ClientOptions instances into a single
// ClientOptions in a last-one-wins fashion. Driver options are merged field by
// field.
func MergeClientOptions(opts ...*ClientOptions) *ClientOptions {
	c := Client()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if opt.Driver != nil {
			c.Driver = mongoopts.MergeClientOptions(c.Driver, opt.Driver)
		}
		if opt.ObservableAdapter != nil {
			c.ObservableAdapter = opt.ObservableAdapter
		}
		if opt.Logger != nil {
			c.Logger = opt.Logger
		}
		if opt.Metrics != nil {
			c.Metrics = opt.Metrics
		}
		if opt.DriverLogLevel != nil {
			c.DriverLogLevel = opt.DriverLogLevel
		}
		if opt.CommandMonitoring != nil {
			c.CommandMonitoring = opt.CommandMonitoring
		}
		if opt.PoolSize != nil {
			c.PoolSize = opt.PoolSize
		}
		if opt.PoolExpiry != nil {
			c.PoolExpiry = opt.PoolExpiry
		}
		if opt.Nonblocking != nil {
			c.Nonblocking = opt.Nonblocking
		}
		if opt.MaxBlockingTasks != nil {
			c.MaxBlockingTasks = opt.MaxBlockingTasks
		}
		if opt.ReleaseTimeout != nil {
			c.ReleaseTimeout = opt.ReleaseTimeout
		}
	}
	return c
}
