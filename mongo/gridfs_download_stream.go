// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/ikmak/mongo-rx-driver/internal/executor"
	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// GridFSDownloadStream reads a file from a bucket. The file is looked up when
// the first operation is subscribed to; a missing file is signalled as
// ErrFileNotFound. Operations on the stream must not overlap.
type GridFSDownloadStream struct {
	bucket *GridFSBucket
	open   *operation.GridFSOpenDownload

	state  streamState
	stream operation.DownloadStream
}

// GridFSFile returns an Observable emitting the files collection document of the file.
func (d *GridFSDownloadStream) GridFSFile() reactive.Observable[*GridFSFile] {
	return adapt(d.bucket.target, d.file())
}

// Read returns an Observable reading up to len(p) bytes into p and emitting
// the number of bytes read, or EndOfStream once the whole file has been read.
// p must not be touched until the Observable terminates.
func (d *GridFSDownloadStream) Read(p []byte) reactive.Observable[int] {
	return adapt(d.bucket.target, d.read(p))
}

// Close returns an Observable closing the stream.
func (d *GridFSDownloadStream) Close() reactive.Observable[Success] {
	return adapt(d.bucket.target, d.close(false))
}

func (d *GridFSDownloadStream) file() reactive.Observable[*GridFSFile] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[*GridFSFile]) {
		if err := d.state.acquire(); err != nil {
			callback(nil, err)
			return
		}
		d.withStream(ctx, func(stream operation.DownloadStream, err error) {
			d.state.release(false)
			if err != nil {
				callback(nil, err)
				return
			}
			callback(fileFromDriver(stream.GetFile()), nil)
		})
	})
}

func (d *GridFSDownloadStream) read(p []byte) reactive.Observable[int] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[int]) {
		if err := d.state.acquire(); err != nil {
			callback(0, err)
			return
		}
		d.withStream(ctx, func(stream operation.DownloadStream, err error) {
			if err != nil {
				d.state.release(false)
				callback(0, err)
				return
			}
			executor.Read[int](ctx, d.bucket.target.executor, &operation.GridFSRead{Stream: stream, Buffer: p}, nil, func(n int, err error) {
				d.state.release(false)
				switch {
				case n > 0:
					callback(n, nil)
				case errors.Is(err, io.EOF):
					callback(EndOfStream, nil)
				default:
					callback(n, err)
				}
			})
		})
	})
}

// close closes the stream. With wait set it first waits for an operation in
// progress instead of failing with ErrConcurrentOperation.
func (d *GridFSDownloadStream) close(wait bool) reactive.Observable[Success] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[Success]) {
		if err := d.state.take(wait); err != nil {
			callback(Success{}, err)
			return
		}
		if d.stream == nil {
			d.state.release(true)
			callback(Success{}, nil)
			return
		}
		d.bucket.target.executor.ExecuteWrite(ctx, &operation.GridFSCloseDownload{Stream: d.stream}, func(_ interface{}, err error) {
			d.state.release(true)
			callback(Success{}, err)
		})
	})
}

// withStream opens the driver stream on first use. The caller holds the stream state.
func (d *GridFSDownloadStream) withStream(ctx context.Context, fn func(operation.DownloadStream, error)) {
	if d.stream != nil {
		fn(d.stream, nil)
		return
	}
	executor.Read[operation.DownloadStream](ctx, d.bucket.target.executor, d.open, d.bucket.ReadPreference(), func(stream operation.DownloadStream, err error) {
		if err == nil && stream == nil {
			err = errStreamNotOpened
		}
		if err != nil {
			fn(nil, gridfsError(err))
			return
		}
		d.stream = stream
		fn(stream, nil)
	})
}

func (d *GridFSDownloadStream) source() AsyncInputStream {
	return downloadSource{d}
}

// downloadSource exposes a download stream to transfer without the observable adapter.
type downloadSource struct {
	d *GridFSDownloadStream
}

func (s downloadSource) Read(p []byte) reactive.Observable[int] { return s.d.read(p) }
func (s downloadSource) Close() reactive.Observable[Success]    { return s.d.close(false) }
