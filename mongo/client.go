// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"io"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ikmak/mongo-rx-driver/internal/executor"
	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/mongo/options"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// Client is a handle representing a pool of connections to a MongoDB
// deployment whose operations are exposed as observables. It is safe for
// concurrent use by multiple goroutines.
//
// Operations do not start when a method returns but when the returned
// observable is subscribed to and items are requested.
type Client struct {
	client   *driver.Client
	settings *options.ClientOptions
	target   target
	metrics  *metrics.Set

	closeOnce sync.Once
	closeErr  error
}

// Connect creates a new driver client with the given options, connects it and
// wraps it in a Client. Options are merged in a last-one-wins fashion.
func Connect(ctx context.Context, opts ...*options.ClientOptions) (*Client, error) {
	settings := options.MergeClientOptions(opts...)
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	set := metricsSet(settings)
	log := settings.LoggerOrDefault().WithField("component", "client")
	driverOpts := settings.DriverOptions()
	if settings.CommandMonitoring != nil && *settings.CommandMonitoring {
		driverOpts.SetMonitor(newCommandMonitor(log, set, driverOpts.Monitor))
	}

	dc, err := driver.Connect(ctx, driverOpts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting")
	}
	c, err := newClient(dc, settings, set)
	if err != nil {
		_ = dc.Disconnect(ctx)
		return nil, err
	}
	return c, nil
}

// NewClient wraps an already configured driver client. The driver options in
// opts are ignored; the other options apply as they do for Connect. Closing the
// returned Client disconnects dc.
func NewClient(dc *driver.Client, opts ...*options.ClientOptions) (*Client, error) {
	if dc == nil {
		return nil, errors.New("mongo: driver client is nil")
	}
	settings := options.MergeClientOptions(opts...)
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return newClient(dc, settings, metricsSet(settings))
}

func newClient(dc *driver.Client, settings *options.ClientOptions, set *metrics.Set) (*Client, error) {
	ex, err := executor.New(executorConfig(settings, set))
	if err != nil {
		return nil, err
	}
	return newClientWithExecutor(dc, settings, set, ex), nil
}

func newClientWithExecutor(dc *driver.Client, settings *options.ClientOptions, set *metrics.Set, ex executor.OperationExecutor) *Client {
	registry := bson.DefaultRegistry
	if settings.Driver != nil && settings.Driver.Registry != nil {
		registry = settings.Driver.Registry
	}
	return &Client{
		client:   dc,
		settings: settings,
		metrics:  set,
		target: target{
			executor: ex,
			registry: registry,
			adapter:  settings.ObservableAdapter,
			log:      settings.LoggerOrDefault().WithField("component", "mongorx"),
		},
	}
}

func metricsSet(settings *options.ClientOptions) *metrics.Set {
	if settings.Metrics != nil {
		return settings.Metrics
	}
	return metrics.NewSet()
}

func executorConfig(settings *options.ClientOptions, set *metrics.Set) *executor.Config {
	cfg := executor.DefaultConfig()
	cfg.Logger = settings.LoggerOrDefault()
	cfg.Metrics = set
	if settings.PoolSize != nil {
		cfg.PoolSize = *settings.PoolSize
	}
	if settings.PoolExpiry != nil {
		cfg.ExpiryDuration = *settings.PoolExpiry
	}
	if settings.Nonblocking != nil {
		cfg.Nonblocking = *settings.Nonblocking
	}
	if settings.MaxBlockingTasks != nil {
		cfg.MaxBlockingTasks = *settings.MaxBlockingTasks
	}
	if settings.ReleaseTimeout != nil {
		cfg.ReleaseTimeout = *settings.ReleaseTimeout
	}
	return cfg
}

// Settings returns the options the client was created with.
func (c *Client) Settings() *options.ClientOptions {
	return c.settings
}

// Driver returns the wrapped driver client.
func (c *Client) Driver() *driver.Client {
	return c.client
}

// ObservableAdapter returns the adapter applied to the observables of the client.
func (c *Client) ObservableAdapter() reactive.Adapter {
	return c.target.adapter
}

// WritePrometheus writes the metrics of the client in Prometheus text format.
func (c *Client) WritePrometheus(w io.Writer) {
	c.metrics.WritePrometheus(w)
}

// Database returns a handle for the database with the given name.
func (c *Client) Database(name string, opts ...*mongoopts.DatabaseOptions) *Database {
	return newDatabase(c, name, opts...)
}

// ListDatabaseNames returns an Observable emitting the name of every database.
func (c *Client) ListDatabaseNames() reactive.Observable[string] {
	o := ListDatabasesAs[bson.Raw](c).NameOnly(true).observable()
	return adapt(c.target, reactive.Map(o, databaseName))
}

func databaseName(doc bson.Raw) (string, error) {
	name, ok := doc.Lookup("name").StringValueOK()
	if !ok {
		return "", errors.New("mongo: listDatabases returned a database without a name")
	}
	return name, nil
}

// ListDatabases returns an Observable emitting a document describing every database.
func (c *Client) ListDatabases() *ListDatabasesObservable[bson.D] {
	return ListDatabasesAs[bson.D](c)
}

// ListDatabasesAs is ListDatabases decoding the database documents into T.
func ListDatabasesAs[T any](c *Client) *ListDatabasesObservable[T] {
	return &ListDatabasesObservable[T]{client: c, op: operation.ListDatabases{Client: c.client}}
}

// Close closes the client: it waits for running operations to finish, up to
// the configured release timeout, and disconnects the driver client. Calls
// after the first return the first result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if err := c.target.executor.Close(); err != nil {
			c.target.log.WithError(err).Warn("closing executor")
		}
		if c.client != nil {
			c.closeErr = c.client.Disconnect(ctx)
		}
	})
	return c.closeErr
}
