// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import (
	"context"
	"io"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Cursor returns query results one server batch at a time.
type Cursor interface {
	// NextBatch returns the next batch of documents, or io.EOF once the cursor
	// is exhausted.
	NextBatch(ctx context.Context) ([]bson.Raw, error)
	Close(ctx context.Context) error
}

type driverCursor struct {
	cur *mongo.Cursor
}

// NewDriverCursor returns a Cursor reading from a driver cursor.
func NewDriverCursor(cur *mongo.Cursor) Cursor {
	return &driverCursor{cur: cur}
}

func (c *driverCursor) NextBatch(ctx context.Context) ([]bson.Raw, error) {
	if !c.cur.Next(ctx) {
		if err := c.cur.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	batch := make([]bson.Raw, 0, c.cur.RemainingBatchLength()+1)
	batch = append(batch, cloneRaw(c.cur.Current))
	for c.cur.RemainingBatchLength() > 0 && c.cur.Next(ctx) {
		batch = append(batch, cloneRaw(c.cur.Current))
	}
	return batch, c.cur.Err()
}

func (c *driverCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

func cloneRaw(r bson.Raw) bson.Raw {
	return append(bson.Raw(nil), r...)
}

type sliceCursor struct {
	mu      sync.Mutex
	batches [][]bson.Raw
}

// NewSliceCursor returns a Cursor over documents that are already in memory.
func NewSliceCursor(batches ...[]bson.Raw) Cursor {
	return &sliceCursor{batches: batches}
}

func (c *sliceCursor) NextBatch(context.Context) ([]bson.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil, io.EOF
	}
	batch := c.batches[0]
	c.batches = c.batches[1:]
	return batch, nil
}

func (c *sliceCursor) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = nil
	return nil
}

// GetMore fetches the next batch of an open cursor.
type GetMore struct {
	Cursor Cursor
}

// Name implements Operation.
func (*GetMore) Name() string { return "getMore" }

// ExecuteRead implements ReadOperation.
func (g *GetMore) ExecuteRead(ctx context.Context, _ *readpref.ReadPref) (interface{}, error) {
	return g.Cursor.NextBatch(ctx)
}

func (*GetMore) handle() {}

// KillCursor closes an open cursor.
type KillCursor struct {
	Cursor Cursor
}

// Name implements Operation.
func (*KillCursor) Name() string { return "killCursors" }

// ExecuteWrite implements WriteOperation.
func (k *KillCursor) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return nil, k.Cursor.Close(ctx)
}

func (*KillCursor) handle() {}
