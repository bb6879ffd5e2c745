// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ikmak/mongo-rx-driver/internal/executor"
	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// streamState serializes the operations of a GridFS stream. Only one
// operation may be in progress at a time, and none may start once the stream
// is closed.
type streamState struct {
	mu     sync.Mutex
	idle   *sync.Cond
	busy   bool
	closed bool
}

func (s *streamState) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrStreamClosed
	case s.busy:
		return ErrConcurrentOperation
	}
	s.busy = true
	return nil
}

// acquireWhenIdle is acquire waiting for an operation in progress to finish
// instead of failing. Cleanup uses it after a cancelled transfer.
func (s *streamState) acquireWhenIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.busy && !s.closed {
		s.cond().Wait()
	}
	if s.closed {
		return ErrStreamClosed
	}
	s.busy = true
	return nil
}

func (s *streamState) release(closed bool) {
	s.mu.Lock()
	s.busy = false
	s.closed = s.closed || closed
	s.cond().Broadcast()
	s.mu.Unlock()
}

// cond must be called with s.mu held.
func (s *streamState) cond() *sync.Cond {
	if s.idle == nil {
		s.idle = sync.NewCond(&s.mu)
	}
	return s.idle
}

// take acquires the state, waiting for the operation in progress when wait is set.
func (s *streamState) take(wait bool) error {
	if wait {
		return s.acquireWhenIdle()
	}
	return s.acquire()
}

// GridFSUploadStream writes a new file to a bucket. The file is created when
// the first write is subscribed to and becomes visible once Close completes.
// Operations on the stream must not overlap: one started while another is in
// progress fails with ErrConcurrentOperation.
type GridFSUploadStream struct {
	bucket   *GridFSBucket
	id       interface{}
	filename string
	opts     *mongoopts.UploadOptions

	state  streamState
	stream operation.UploadStream
}

// ID returns the id of the file.
func (u *GridFSUploadStream) ID() interface{} {
	return u.id
}

// ObjectID returns the id of the file and whether it is an ObjectID.
func (u *GridFSUploadStream) ObjectID() (primitive.ObjectID, bool) {
	oid, ok := u.id.(primitive.ObjectID)
	return oid, ok
}

// Write returns an Observable writing p to the file and emitting the number
// of bytes written. p is copied when Write is called.
func (u *GridFSUploadStream) Write(p []byte) reactive.Observable[int] {
	return adapt(u.bucket.target, u.write(p))
}

// Close returns an Observable flushing the remaining data and writing the
// files collection document.
func (u *GridFSUploadStream) Close() reactive.Observable[Success] {
	return adapt(u.bucket.target, u.close())
}

// Abort returns an Observable closing the stream and deleting the chunks
// written so far.
func (u *GridFSUploadStream) Abort() reactive.Observable[Success] {
	return adapt(u.bucket.target, u.abort(false))
}

func (u *GridFSUploadStream) write(p []byte) reactive.Observable[int] {
	data := append([]byte(nil), p...)
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[int]) {
		if err := u.state.acquire(); err != nil {
			callback(0, err)
			return
		}
		u.withStream(ctx, func(stream operation.UploadStream, err error) {
			if err != nil {
				u.state.release(false)
				callback(0, err)
				return
			}
			executor.Write[int](ctx, u.bucket.target.executor, &operation.GridFSWrite{Stream: stream, Data: data}, func(n int, err error) {
				u.state.release(false)
				callback(n, err)
			})
		})
	})
}

func (u *GridFSUploadStream) close() reactive.Observable[Success] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[Success]) {
		if err := u.state.acquire(); err != nil {
			callback(Success{}, err)
			return
		}
		u.withStream(ctx, func(stream operation.UploadStream, err error) {
			if err != nil {
				u.state.release(false)
				callback(Success{}, err)
				return
			}
			u.bucket.target.executor.ExecuteWrite(ctx, &operation.GridFSCloseUpload{Stream: stream}, func(_ interface{}, err error) {
				u.state.release(true)
				callback(Success{}, err)
			})
		})
	})
}

// abort aborts the upload. With wait set it first waits for an operation in
// progress instead of failing with ErrConcurrentOperation.
func (u *GridFSUploadStream) abort(wait bool) reactive.Observable[Success] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[Success]) {
		if err := u.state.take(wait); err != nil {
			callback(Success{}, err)
			return
		}
		if u.stream == nil {
			u.state.release(true)
			callback(Success{}, nil)
			return
		}
		u.bucket.target.executor.ExecuteWrite(ctx, &operation.GridFSAbort{Stream: u.stream}, func(_ interface{}, err error) {
			u.state.release(true)
			callback(Success{}, err)
		})
	})
}

// withStream opens the driver stream on first use. The caller holds the stream state.
func (u *GridFSUploadStream) withStream(ctx context.Context, fn func(operation.UploadStream, error)) {
	if u.stream != nil {
		fn(u.stream, nil)
		return
	}
	op := &operation.GridFSOpenUpload{
		Bucket:   u.bucket.bucket(),
		FileID:   u.id,
		Filename: u.filename,
		Options:  u.opts,
	}
	executor.Write[operation.UploadStream](ctx, u.bucket.target.executor, op, func(stream operation.UploadStream, err error) {
		if err == nil && stream == nil {
			err = errStreamNotOpened
		}
		if err != nil {
			fn(nil, err)
			return
		}
		u.stream = stream
		fn(stream, nil)
	})
}

func (u *GridFSUploadStream) sink() AsyncOutputStream {
	return uploadSink{u}
}

// uploadSink exposes an upload stream to transfer without the observable adapter.
type uploadSink struct {
	u *GridFSUploadStream
}

func (s uploadSink) Write(p []byte) reactive.Observable[int] { return s.u.write(p) }
func (s uploadSink) Close() reactive.Observable[Success]     { return s.u.close() }
