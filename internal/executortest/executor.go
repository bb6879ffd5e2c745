// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package executortest provides an operation executor for unit tests that
// records the operations it is given and answers them with canned responses.
package executortest

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ikmak/mongo-rx-driver/internal/executor"
	"github.com/ikmak/mongo-rx-driver/internal/operation"
)

// Executor records every operation and completes it with the next canned
// response. A response that is an error is reported as the operation's error.
//
// Operations on handles, such as fetching the next batch of a cursor, are
// executed for real since their handles are test doubles themselves.
type Executor struct {
	mu        sync.Mutex
	responses []interface{}
	reads     []operation.ReadOperation
	writes    []operation.WriteOperation
	prefs     []*readpref.ReadPref
	queued    bool
	pending   []func()
	closed    bool
}

var _ executor.OperationExecutor = (*Executor)(nil)

// New returns an Executor answering operations with responses, in order.
// Once the responses run out operations complete with a nil result.
func New(responses ...interface{}) *Executor {
	return &Executor{responses: responses}
}

// NewQueued returns an Executor that holds callbacks until Release is called.
func NewQueued(responses ...interface{}) *Executor {
	return &Executor{responses: responses, queued: true}
}

// ExecuteRead implements executor.OperationExecutor.
func (e *Executor) ExecuteRead(ctx context.Context, op operation.ReadOperation, rp *readpref.ReadPref, callback executor.Callback) {
	if _, ok := op.(operation.HandleOperation); ok {
		e.complete(func() { callback(op.ExecuteRead(ctx, rp)) })
		return
	}

	e.mu.Lock()
	e.reads = append(e.reads, op)
	e.prefs = append(e.prefs, rp)
	result, err := e.next()
	e.mu.Unlock()
	e.complete(func() { callback(result, err) })
}

// ExecuteWrite implements executor.OperationExecutor.
func (e *Executor) ExecuteWrite(ctx context.Context, op operation.WriteOperation, callback executor.Callback) {
	if _, ok := op.(operation.HandleOperation); ok {
		e.complete(func() { callback(op.ExecuteWrite(ctx)) })
		return
	}

	e.mu.Lock()
	e.writes = append(e.writes, op)
	result, err := e.next()
	e.mu.Unlock()
	e.complete(func() { callback(result, err) })
}

// Close implements executor.OperationExecutor.
func (e *Executor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (e *Executor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Release runs the callbacks held back by a queued Executor and returns how
// many ran.
func (e *Executor) Release() int {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// Pending returns the number of callbacks a queued Executor is holding.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// ReadOperation removes and returns the oldest recorded read operation.
func (e *Executor) ReadOperation() operation.ReadOperation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.reads) == 0 {
		return nil
	}
	op := e.reads[0]
	e.reads = e.reads[1:]
	return op
}

// ReadPreference removes and returns the read preference of the oldest
// recorded read operation.
func (e *Executor) ReadPreference() *readpref.ReadPref {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prefs) == 0 {
		return nil
	}
	rp := e.prefs[0]
	e.prefs = e.prefs[1:]
	return rp
}

// WriteOperation removes and returns the oldest recorded write operation.
func (e *Executor) WriteOperation() operation.WriteOperation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.writes) == 0 {
		return nil
	}
	op := e.writes[0]
	e.writes = e.writes[1:]
	return op
}

// next must be called with e.mu held.
func (e *Executor) next() (interface{}, error) {
	if len(e.responses) == 0 {
		return nil, nil
	}
	resp := e.responses[0]
	e.responses = e.responses[1:]
	if err, ok := resp.(error); ok {
		return nil, err
	}
	return resp, nil
}

func (e *Executor) complete(fn func()) {
	e.mu.Lock()
	if e.queued {
		e.pending = append(e.pending, fn)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	fn()
}
