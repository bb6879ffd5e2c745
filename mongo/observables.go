// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ikmak/mongo-rx-driver/internal/executor"
	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// killCursorTimeout bounds closing a server cursor once its subscription is over.
const killCursorTimeout = 10 * time.Second

// target carries what every operation issued by a client, database,
// collection or bucket needs.
type target struct {
	executor executor.OperationExecutor
	registry *bsoncodec.Registry
	adapter  reactive.Adapter
	log      *logrus.Entry
}

func readResult[T any](t target, op operation.ReadOperation, rp *readpref.ReadPref) reactive.Observable[T] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[T]) {
		executor.Read[T](ctx, t.executor, op, rp, callback)
	})
}

func writeResult[T any](t target, op operation.WriteOperation) reactive.Observable[T] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[T]) {
		executor.Write[T](ctx, t.executor, op, callback)
	})
}

func writeSuccess(t target, op operation.WriteOperation) reactive.Observable[Success] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[Success]) {
		t.executor.ExecuteWrite(ctx, op, func(_ interface{}, err error) {
			callback(Success{}, err)
		})
	})
}

// readDocument runs op, which results in a single document, and decodes it.
// A missing document completes the stream without an item.
func readDocument[T any](t target, op operation.ReadOperation, rp *readpref.ReadPref) reactive.Observable[T] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[T]) {
		executor.Read[bson.Raw](ctx, t.executor, op, rp, decodeInto(t.registry, callback))
	})
}

func writeDocument[T any](t target, op operation.WriteOperation) reactive.Observable[T] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[T]) {
		executor.Write[bson.Raw](ctx, t.executor, op, decodeInto(t.registry, callback))
	})
}

func decodeInto[T any](reg *bsoncodec.Registry, callback reactive.SingleResultCallback[T]) func(bson.Raw, error) {
	return func(raw bson.Raw, err error) {
		var zero T
		switch {
		case errors.Is(err, errNoDocuments):
			callback(zero, reactive.ErrNoItems)
		case err != nil:
			callback(zero, err)
		default:
			callback(decode[T](reg, raw))
		}
	}
}

func decode[T any](reg *bsoncodec.Registry, raw bson.Raw) (T, error) {
	var v T
	if r, ok := any(&v).(*bson.Raw); ok {
		*r = raw
		return v, nil
	}
	if err := bson.UnmarshalWithRegistry(reg, raw, &v); err != nil {
		return v, errors.Wrapf(err, "decoding %T", v)
	}
	return v, nil
}

// cursorResults runs op, which results in an operation.Cursor, and emits the
// decoded documents of the cursor against demand.
func cursorResults[T any](t target, op operation.ReadOperation, rp *readpref.ReadPref) reactive.Observable[T] {
	return reactive.FromBatchCursor(func(ctx context.Context, callback reactive.SingleResultCallback[reactive.BatchCursor[T]]) {
		openCursor(ctx, t, op, rp, callback)
	})
}

func openCursor[T any](ctx context.Context, t target, op operation.ReadOperation, rp *readpref.ReadPref, callback reactive.SingleResultCallback[reactive.BatchCursor[T]]) {
	executor.Read[operation.Cursor](ctx, t.executor, op, rp, func(cur operation.Cursor, err error) {
		if err != nil {
			callback(nil, err)
			return
		}
		callback(&batchCursor[T]{target: t, cursor: cur}, nil)
	})
}

// sliceResults runs op, which results in a []T, and emits its elements.
func sliceResults[T any](t target, op operation.ReadOperation, rp *readpref.ReadPref) reactive.Observable[T] {
	return reactive.FromBatchCursor(func(ctx context.Context, callback reactive.SingleResultCallback[reactive.BatchCursor[T]]) {
		executor.Read[[]T](ctx, t.executor, op, rp, func(items []T, err error) {
			if err != nil {
				callback(nil, err)
				return
			}
			callback(reactive.NewSliceCursor(items), nil)
		})
	})
}

func writeSliceResults[T any](t target, op operation.WriteOperation) reactive.Observable[T] {
	return reactive.FromBatchCursor(func(ctx context.Context, callback reactive.SingleResultCallback[reactive.BatchCursor[T]]) {
		executor.Write[[]T](ctx, t.executor, op, func(items []T, err error) {
			if err != nil {
				callback(nil, err)
				return
			}
			callback(reactive.NewSliceCursor(items), nil)
		})
	})
}

// batchCursor adapts an operation.Cursor to reactive.BatchCursor, running
// every fetch through the executor. The driver cursor is not safe for
// concurrent use, so closing waits for an outstanding fetch to finish.
type batchCursor[T any] struct {
	target
	cursor operation.Cursor

	mu       sync.Mutex
	fetching bool
	closing  bool
	closed   bool
}

func (c *batchCursor[T]) Next(ctx context.Context, callback func([]T, error)) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		callback(nil, ErrCursorClosed)
		return
	}
	c.fetching = true
	c.mu.Unlock()

	executor.Read[[]bson.Raw](ctx, c.executor, &operation.GetMore{Cursor: c.cursor}, nil, func(batch []bson.Raw, err error) {
		c.mu.Lock()
		c.fetching = false
		closeNow := c.closing && !c.closed
		c.closed = c.closed || closeNow
		c.mu.Unlock()
		if closeNow {
			c.kill()
		}

		if err != nil {
			callback(nil, err)
			return
		}
		docs := make([]T, 0, len(batch))
		for _, raw := range batch {
			doc, err := decode[T](c.registry, raw)
			if err != nil {
				callback(nil, err)
				return
			}
			docs = append(docs, doc)
		}
		callback(docs, nil)
	})
}

func (c *batchCursor[T]) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	closeNow := !c.fetching
	c.closed = closeNow
	c.mu.Unlock()

	if closeNow {
		c.kill()
	}
}

func (c *batchCursor[T]) kill() {
	ctx, cancel := context.WithTimeout(context.Background(), killCursorTimeout)
	c.executor.ExecuteWrite(ctx, &operation.KillCursor{Cursor: c.cursor}, func(_ interface{}, err error) {
		defer cancel()
		if errors.Is(err, executor.ErrClosed) {
			err = c.cursor.Close(ctx)
		}
		if err != nil {
			c.log.WithError(err).Debug("closing cursor")
		}
	})
}

// failed returns an Observable signalling err, used when the arguments of an
// operation are rejected before anything is sent to the server.
func failed[T any](err error) reactive.Observable[T] {
	return reactive.Error[T](err)
}

func adapt[T any](t target, o reactive.Observable[T]) reactive.Observable[T] {
	return reactive.Adapt(t.adapter, o)
}
