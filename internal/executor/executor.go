// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package executor runs operation descriptors asynchronously and reports their
// outcome through callbacks.
package executor

import (
	"context"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ikmak/mongo-rx-driver/internal/operation"
)

// ErrClosed is reported for operations submitted after Close.
var ErrClosed = errors.New("executor: closed")

// Callback receives the outcome of an operation. It is called exactly once:
// on its own goroutine once the operation has run, or from the submitting
// goroutine when the operation could not be started.
type Callback func(result interface{}, err error)

// OperationExecutor executes read and write operations asynchronously.
type OperationExecutor interface {
	ExecuteRead(ctx context.Context, op operation.ReadOperation, rp *readpref.ReadPref, callback Callback)
	ExecuteWrite(ctx context.Context, op operation.WriteOperation, callback Callback)
	Close() error
}

// Config configures an Executor.
type Config struct {
	// PoolSize is the maximum number of operations running at once.
	PoolSize int
	// ExpiryDuration is how long an idle worker goroutine is kept.
	ExpiryDuration time.Duration
	// Nonblocking makes submissions fail instead of waiting when the pool is full.
	Nonblocking bool
	// MaxBlockingTasks bounds the submissions waiting for a worker. Zero means no limit.
	MaxBlockingTasks int
	// ReleaseTimeout bounds how long Close waits for running operations.
	ReleaseTimeout time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.Set
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		PoolSize:       256,
		ExpiryDuration: 10 * time.Second,
		ReleaseTimeout: 10 * time.Second,
	}
}

// Executor is an OperationExecutor backed by a bounded worker pool.
type Executor struct {
	pool           *ants.Pool
	log            *logrus.Entry
	metrics        *poolMetrics
	releaseTimeout time.Duration
}

var _ OperationExecutor = (*Executor)(nil)

// New creates an Executor.
func New(cfg *Config) (*Executor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	set := cfg.Metrics
	if set == nil {
		set = metrics.NewSet()
	}

	e := &Executor{
		log:            logger.WithField("component", "executor"),
		releaseTimeout: cfg.ReleaseTimeout,
	}
	if e.releaseTimeout <= 0 {
		e.releaseTimeout = DefaultConfig().ReleaseTimeout
	}

	pool, err := ants.NewPool(cfg.PoolSize,
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithNonblocking(cfg.Nonblocking),
		ants.WithMaxBlockingTasks(cfg.MaxBlockingTasks),
		ants.WithLogger(e.log),
		ants.WithPanicHandler(func(p interface{}) {
			e.log.WithField("panic", p).Error("worker panicked")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating worker pool")
	}
	e.pool = pool
	e.metrics = newPoolMetrics(set, pool)
	return e, nil
}

// ExecuteRead implements OperationExecutor.
func (e *Executor) ExecuteRead(ctx context.Context, op operation.ReadOperation, rp *readpref.ReadPref, callback Callback) {
	e.submit(ctx, op.Name(), func(ctx context.Context) (interface{}, error) {
		return op.ExecuteRead(ctx, rp)
	}, callback)
}

// ExecuteWrite implements OperationExecutor.
func (e *Executor) ExecuteWrite(ctx context.Context, op operation.WriteOperation, callback Callback) {
	e.submit(ctx, op.Name(), op.ExecuteWrite, callback)
}

// Close stops accepting operations and waits for running ones to finish.
func (e *Executor) Close() error {
	if e.pool.IsClosed() {
		return nil
	}
	if err := e.pool.ReleaseTimeout(e.releaseTimeout); err != nil {
		return errors.Wrap(err, "releasing worker pool")
	}
	return nil
}

// WritePrometheus writes the executor metrics in Prometheus text format.
func (e *Executor) WritePrometheus(w io.Writer) {
	e.metrics.set.WritePrometheus(w)
}

func (e *Executor) submit(ctx context.Context, name string, run func(context.Context) (interface{}, error), callback Callback) {
	if err := ctx.Err(); err != nil {
		callback(nil, err)
		return
	}
	if e.pool.IsClosed() {
		callback(nil, ErrClosed)
		return
	}

	e.metrics.submitted(name)
	start := time.Now()
	err := e.pool.Submit(func() {
		result, err := e.run(ctx, name, run)
		e.metrics.finished(name, start, err)
		// Callbacks usually submit the next operation of their stream; running
		// them off the worker keeps a saturated pool from waiting on itself.
		go callback(result, err)
	})
	if err != nil {
		e.metrics.rejected.Inc()
		e.log.WithError(err).WithField("operation", name).Warn("operation rejected")
		if errors.Is(err, ants.ErrPoolClosed) {
			err = ErrClosed
		}
		callback(nil, errors.Wrapf(err, "submitting %s", name))
	}
}

func (e *Executor) run(ctx context.Context, name string, fn func(context.Context) (interface{}, error)) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("operation", name).WithField("panic", r).Error("operation panicked")
			err = errors.Errorf("operation %s panicked: %v", name, r)
		}
	}()

	result, err = fn(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		e.log.WithError(err).WithField("operation", name).Debug("operation failed")
	}
	return result, err
}

// Read executes op and passes its result to callback as a T.
func Read[T any](ctx context.Context, ex OperationExecutor, op operation.ReadOperation, rp *readpref.ReadPref, callback func(T, error)) {
	ex.ExecuteRead(ctx, op, rp, typed(op, callback))
}

// Write executes op and passes its result to callback as a T.
func Write[T any](ctx context.Context, ex OperationExecutor, op operation.WriteOperation, callback func(T, error)) {
	ex.ExecuteWrite(ctx, op, typed(op, callback))
}

func typed[T any](op operation.Operation, callback func(T, error)) Callback {
	return func(result interface{}, err error) {
		var zero T
		if err != nil {
			callback(zero, err)
			return
		}
		if result == nil {
			callback(zero, nil)
			return
		}
		v, ok := result.(T)
		if !ok {
			callback(zero, errors.Errorf("%s returned %T, expected %T", op.Name(), result, zero))
			return
		}
		callback(v, nil)
	}
}
