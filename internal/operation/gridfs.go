// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// UploadStream is the driver's GridFS upload stream.
type UploadStream interface {
	Write(p []byte) (int, error)
	Close() error
	Abort() error
	SetWriteDeadline(t time.Time) error
}

// DownloadStream is the driver's GridFS download stream.
type DownloadStream interface {
	Read(p []byte) (int, error)
	Close() error
	GetFile() *gridfs.File
	SetReadDeadline(t time.Time) error
}

var (
	_ UploadStream   = (*gridfs.UploadStream)(nil)
	_ DownloadStream = (*gridfs.DownloadStream)(nil)
)

// GridFSBucket identifies a GridFS bucket. A fresh driver bucket is created for
// every operation because driver buckets keep per-call buffers and deadlines.
type GridFSBucket struct {
	Database *mongo.Database
	Options  *options.BucketOptions
}

func (b GridFSBucket) open(rp *readpref.ReadPref) (*gridfs.Bucket, error) {
	opts := b.Options
	if rp != nil {
		copied := options.BucketOptions{}
		if b.Options != nil {
			copied = *b.Options
		}
		copied.ReadPreference = rp
		opts = &copied
	}
	bucket, err := gridfs.NewBucket(b.Database, opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening GridFS bucket")
	}
	return bucket, nil
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}

// GridFSOpenUpload opens an upload stream for a new file.
type GridFSOpenUpload struct {
	Bucket   GridFSBucket
	FileID   interface{}
	Filename string
	Options  *options.UploadOptions
}

// Name implements Operation.
func (*GridFSOpenUpload) Name() string { return "gridfsOpenUpload" }

// ExecuteWrite implements WriteOperation.
func (o *GridFSOpenUpload) ExecuteWrite(ctx context.Context) (interface{}, error) {
	bucket, err := o.Bucket.open(nil)
	if err != nil {
		return nil, err
	}
	if err := bucket.SetWriteDeadline(deadline(ctx)); err != nil {
		return nil, err
	}
	stream, err := bucket.OpenUploadStreamWithID(o.FileID, o.Filename, o.Options)
	if err != nil {
		return nil, err
	}
	return UploadStream(stream), nil
}

// GridFSWrite writes to an open upload stream.
type GridFSWrite struct {
	Stream UploadStream
	Data   []byte
}

// Name implements Operation.
func (*GridFSWrite) Name() string { return "gridfsWrite" }

// ExecuteWrite implements WriteOperation.
func (w *GridFSWrite) ExecuteWrite(ctx context.Context) (interface{}, error) {
	if err := w.Stream.SetWriteDeadline(deadline(ctx)); err != nil {
		return nil, err
	}
	return w.Stream.Write(w.Data)
}

func (*GridFSWrite) handle() {}

// GridFSCloseUpload flushes and closes an upload stream, writing the files document.
type GridFSCloseUpload struct {
	Stream UploadStream
}

// Name implements Operation.
func (*GridFSCloseUpload) Name() string { return "gridfsCloseUpload" }

// ExecuteWrite implements WriteOperation.
func (c *GridFSCloseUpload) ExecuteWrite(ctx context.Context) (interface{}, error) {
	if err := c.Stream.SetWriteDeadline(deadline(ctx)); err != nil {
		return nil, err
	}
	return nil, c.Stream.Close()
}

func (*GridFSCloseUpload) handle() {}

// GridFSAbort aborts an upload stream, removing the chunks written so far.
type GridFSAbort struct {
	Stream UploadStream
}

// Name implements Operation.
func (*GridFSAbort) Name() string { return "gridfsAbort" }

// ExecuteWrite implements WriteOperation.
func (a *GridFSAbort) ExecuteWrite(ctx context.Context) (interface{}, error) {
	if err := a.Stream.SetWriteDeadline(deadline(ctx)); err != nil {
		return nil, err
	}
	return nil, a.Stream.Abort()
}

func (*GridFSAbort) handle() {}

// GridFSOpenDownload opens a download stream by file id or, when ByName is set,
// by filename and revision.
type GridFSOpenDownload struct {
	Bucket   GridFSBucket
	FileID   interface{}
	Filename string
	ByName   bool
	Options  *options.NameOptions
}

// Name implements Operation.
func (*GridFSOpenDownload) Name() string { return "gridfsOpenDownload" }

// ExecuteRead implements ReadOperation.
func (o *GridFSOpenDownload) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	bucket, err := o.Bucket.open(rp)
	if err != nil {
		return nil, err
	}
	if err := bucket.SetReadDeadline(deadline(ctx)); err != nil {
		return nil, err
	}

	var stream *gridfs.DownloadStream
	if o.ByName {
		stream, err = bucket.OpenDownloadStreamByName(o.Filename, o.Options)
	} else {
		stream, err = bucket.OpenDownloadStream(o.FileID)
	}
	if err != nil {
		return nil, err
	}
	return DownloadStream(stream), nil
}

// GridFSRead reads from an open download stream. It reports io.EOF once the
// file has been read completely.
type GridFSRead struct {
	Stream DownloadStream
	Buffer []byte
}

// Name implements Operation.
func (*GridFSRead) Name() string { return "gridfsRead" }

// ExecuteRead implements ReadOperation.
func (r *GridFSRead) ExecuteRead(ctx context.Context, _ *readpref.ReadPref) (interface{}, error) {
	if err := r.Stream.SetReadDeadline(deadline(ctx)); err != nil {
		return nil, err
	}
	return r.Stream.Read(r.Buffer)
}

func (*GridFSRead) handle() {}

// GridFSCloseDownload closes a download stream.
type GridFSCloseDownload struct {
	Stream DownloadStream
}

// Name implements Operation.
func (*GridFSCloseDownload) Name() string { return "gridfsCloseDownload" }

// ExecuteWrite implements WriteOperation.
func (c *GridFSCloseDownload) ExecuteWrite(context.Context) (interface{}, error) {
	return nil, c.Stream.Close()
}

func (*GridFSCloseDownload) handle() {}

// GridFSFind queries the files collection of a bucket.
type GridFSFind struct {
	Bucket  GridFSBucket
	Filter  interface{}
	Options *options.GridFSFindOptions
}

// Name implements Operation.
func (*GridFSFind) Name() string { return "gridfsFind" }

// ExecuteRead implements ReadOperation.
func (f *GridFSFind) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	bucket, err := f.Bucket.open(rp)
	if err != nil {
		return nil, err
	}
	cur, err := bucket.FindContext(ctx, f.Filter, f.Options)
	if err != nil {
		return nil, err
	}
	return NewDriverCursor(cur), nil
}

// GridFSDelete removes a file and its chunks.
type GridFSDelete struct {
	Bucket GridFSBucket
	FileID interface{}
}

// Name implements Operation.
func (*GridFSDelete) Name() string { return "gridfsDelete" }

// ExecuteWrite implements WriteOperation.
func (d *GridFSDelete) ExecuteWrite(ctx context.Context) (interface{}, error) {
	bucket, err := d.Bucket.open(nil)
	if err != nil {
		return nil, err
	}
	return nil, bucket.DeleteContext(ctx, d.FileID)
}

// GridFSRename renames a file.
type GridFSRename struct {
	Bucket      GridFSBucket
	FileID      interface{}
	NewFilename string
}

// Name implements Operation.
func (*GridFSRename) Name() string { return "gridfsRename" }

// ExecuteWrite implements WriteOperation.
func (r *GridFSRename) ExecuteWrite(ctx context.Context) (interface{}, error) {
	bucket, err := r.Bucket.open(nil)
	if err != nil {
		return nil, err
	}
	return nil, bucket.RenameContext(ctx, r.FileID, r.NewFilename)
}

// GridFSDrop drops the files and chunks collections of a bucket.
type GridFSDrop struct {
	Bucket GridFSBucket
}

// Name implements Operation.
func (*GridFSDrop) Name() string { return "gridfsDrop" }

// ExecuteWrite implements WriteOperation.
func (d *GridFSDrop) ExecuteWrite(ctx context.Context) (interface{}, error) {
	bucket, err := d.Bucket.open(nil)
	if err != nil {
		return nil, err
	}
	return nil, bucket.DropContext(ctx)
}
