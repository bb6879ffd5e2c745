// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package executor

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type fakeOp struct {
	name string
	fn   func(ctx context.Context) (interface{}, error)
	rp   chan *readpref.ReadPref
}

func (f *fakeOp) Name() string { return f.name }

func (f *fakeOp) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	if f.rp != nil {
		f.rp <- rp
	}
	return f.fn(ctx)
}

func (f *fakeOp) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return f.fn(ctx)
}

type outcome struct {
	result interface{}
	err    error
}

func capture() (Callback, <-chan outcome) {
	ch := make(chan outcome, 1)
	return func(result interface{}, err error) {
		ch <- outcome{result: result, err: err}
	}, ch
}

func wait(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not called")
		return outcome{}
	}
}

func newTestExecutor(t *testing.T, cfg *Config) *Executor {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestExecutor(t *testing.T) {
	t.Run("read passes the read preference", func(t *testing.T) {
		e := newTestExecutor(t, nil)
		op := &fakeOp{
			name: "find",
			fn:   func(context.Context) (interface{}, error) { return "result", nil },
			rp:   make(chan *readpref.ReadPref, 1),
		}
		cb, ch := capture()
		e.ExecuteRead(context.Background(), op, readpref.Secondary(), cb)

		o := wait(t, ch)
		require.NoError(t, o.err)
		assert.Equal(t, "result", o.result)
		assert.Equal(t, readpref.SecondaryMode, (<-op.rp).Mode())
	})
	t.Run("write error", func(t *testing.T) {
		e := newTestExecutor(t, nil)
		boom := errors.New("boom")
		cb, ch := capture()
		e.ExecuteWrite(context.Background(), &fakeOp{
			name: "insert",
			fn:   func(context.Context) (interface{}, error) { return nil, boom },
		}, cb)
		assert.ErrorIs(t, wait(t, ch).err, boom)
	})
	t.Run("panic becomes an error", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		e := newTestExecutor(t, &Config{PoolSize: 1, Logger: logger})
		cb, ch := capture()
		e.ExecuteWrite(context.Background(), &fakeOp{
			name: "insert",
			fn:   func(context.Context) (interface{}, error) { panic("kaboom") },
		}, cb)

		o := wait(t, ch)
		require.Error(t, o.err)
		assert.Contains(t, o.err.Error(), "kaboom")
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	})
	t.Run("cancelled context is not submitted", func(t *testing.T) {
		e := newTestExecutor(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ran := false
		cb, ch := capture()
		e.ExecuteRead(ctx, &fakeOp{
			name: "find",
			fn: func(context.Context) (interface{}, error) {
				ran = true
				return nil, nil
			},
		}, nil, cb)
		assert.ErrorIs(t, wait(t, ch).err, context.Canceled)
		assert.False(t, ran)
	})
	t.Run("closed", func(t *testing.T) {
		e, err := New(nil)
		require.NoError(t, err)
		require.NoError(t, e.Close())
		require.NoError(t, e.Close())

		cb, ch := capture()
		e.ExecuteWrite(context.Background(), &fakeOp{
			name: "insert",
			fn:   func(context.Context) (interface{}, error) { return nil, nil },
		}, cb)
		assert.ErrorIs(t, wait(t, ch).err, ErrClosed)
	})
	t.Run("nonblocking pool rejects when full", func(t *testing.T) {
		e := newTestExecutor(t, &Config{PoolSize: 1, Nonblocking: true})
		release := make(chan struct{})
		blocker := &fakeOp{
			name: "find",
			fn: func(context.Context) (interface{}, error) {
				<-release
				return nil, nil
			},
		}
		first, firstCh := capture()
		e.ExecuteRead(context.Background(), blocker, nil, first)

		second, secondCh := capture()
		e.ExecuteRead(context.Background(), blocker, nil, second)
		assert.Error(t, wait(t, secondCh).err)

		close(release)
		assert.NoError(t, wait(t, firstCh).err)
	})
	t.Run("callback may submit from a saturated pool", func(t *testing.T) {
		e := newTestExecutor(t, &Config{PoolSize: 1})
		op := &fakeOp{
			name: "getMore",
			fn:   func(context.Context) (interface{}, error) { return 1, nil },
		}
		done := make(chan int, 1)
		var next func(n int) Callback
		next = func(n int) Callback {
			return func(interface{}, error) {
				if n == 3 {
					done <- n
					return
				}
				e.ExecuteRead(context.Background(), op, nil, next(n+1))
			}
		}
		e.ExecuteRead(context.Background(), op, nil, next(0))

		select {
		case n := <-done:
			assert.Equal(t, 3, n)
		case <-time.After(5 * time.Second):
			t.Fatal("chained operations did not finish")
		}
	})
}

func TestTyped(t *testing.T) {
	e := newTestExecutor(t, nil)

	got := make(chan int64, 1)
	Read[int64](context.Background(), e, &fakeOp{
		name: "count",
		fn:   func(context.Context) (interface{}, error) { return int64(7), nil },
	}, nil, func(n int64, err error) {
		assert.NoError(t, err)
		got <- n
	})
	assert.Equal(t, int64(7), <-got)

	errs := make(chan error, 1)
	Write[string](context.Background(), e, &fakeOp{
		name: "insert",
		fn:   func(context.Context) (interface{}, error) { return 7, nil },
	}, func(_ string, err error) {
		errs <- err
	})
	err := <-errs
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert returned int")

	Write[string](context.Background(), e, &fakeOp{
		name: "drop",
		fn:   func(context.Context) (interface{}, error) { return nil, nil },
	}, func(s string, err error) {
		assert.Empty(t, s)
		errs <- err
	})
	assert.NoError(t, <-errs)
}

func TestMetrics(t *testing.T) {
	set := metrics.NewSet()
	e := newTestExecutor(t, &Config{PoolSize: 2, Metrics: set})

	cb, ch := capture()
	e.ExecuteRead(context.Background(), &fakeOp{
		name: "find",
		fn:   func(context.Context) (interface{}, error) { return nil, nil },
	}, nil, cb)
	wait(t, ch)

	cb, ch = capture()
	e.ExecuteWrite(context.Background(), &fakeOp{
		name: "insert",
		fn:   func(context.Context) (interface{}, error) { return nil, errors.New("boom") },
	}, cb)
	wait(t, ch)

	var buf bytes.Buffer
	e.WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `mongorx_operations_submitted_total{operation="find"} 1`)
	assert.Contains(t, out, `mongorx_operations_completed_total{operation="find"} 1`)
	assert.Contains(t, out, `mongorx_operations_failed_total{operation="insert"} 1`)
	assert.Contains(t, out, `mongorx_executor_running_workers`)
}
