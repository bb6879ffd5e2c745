// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

const (
	// DefaultGridFSBucketName is the name of a bucket created without one.
	DefaultGridFSBucketName = "fs"

	// DefaultGridFSChunkSize is the default size of each file chunk.
	DefaultGridFSChunkSize int32 = 255 * 1024 // 255 KiB
)

// GridFSFile is the files collection document describing a stored file.
type GridFSFile struct {
	ID         interface{} `bson:"_id"`
	Filename   string      `bson:"filename"`
	Length     int64       `bson:"length"`
	ChunkSize  int32       `bson:"chunkSize"`
	UploadDate time.Time   `bson:"uploadDate"`
	Metadata   bson.Raw    `bson:"metadata,omitempty"`
}

func fileFromDriver(f *gridfs.File) *GridFSFile {
	return &GridFSFile{
		ID:         f.ID,
		Filename:   f.Name,
		Length:     f.Length,
		ChunkSize:  f.ChunkSize,
		UploadDate: f.UploadDate,
		Metadata:   f.Metadata,
	}
}

// GridFSBucket is a handle to a GridFS bucket, a pair of files and chunks
// collections storing files of any size. The With methods return modified
// copies.
type GridFSBucket struct {
	database *Database
	opts     mongoopts.BucketOptions
	target   target
}

func newGridFSBucket(d *Database, opts ...*mongoopts.BucketOptions) *GridFSBucket {
	merged := mongoopts.GridFSBucket().
		SetName(DefaultGridFSBucketName).
		SetChunkSizeBytes(DefaultGridFSChunkSize).
		SetReadPreference(d.ReadPreference()).
		SetReadConcern(d.ReadConcern()).
		SetWriteConcern(d.WriteConcern())
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Name != nil {
			merged.SetName(*o.Name)
		}
		if o.ChunkSizeBytes != nil {
			merged.SetChunkSizeBytes(*o.ChunkSizeBytes)
		}
		if o.ReadPreference != nil {
			merged.SetReadPreference(o.ReadPreference)
		}
		if o.ReadConcern != nil {
			merged.SetReadConcern(o.ReadConcern)
		}
		if o.WriteConcern != nil {
			merged.SetWriteConcern(o.WriteConcern)
		}
	}

	t := d.target
	t.log = t.log.WithField("bucket", *merged.Name)
	return &GridFSBucket{database: d, opts: *merged, target: t}
}

// BucketName returns the name of the bucket.
func (b *GridFSBucket) BucketName() string {
	return *b.opts.Name
}

// ChunkSizeBytes returns the chunk size used for new files.
func (b *GridFSBucket) ChunkSizeBytes() int32 {
	return *b.opts.ChunkSizeBytes
}

// ReadPreference returns the read preference of the bucket.
func (b *GridFSBucket) ReadPreference() *readpref.ReadPref {
	return b.opts.ReadPreference
}

// ReadConcern returns the read concern of the bucket.
func (b *GridFSBucket) ReadConcern() *readconcern.ReadConcern {
	return b.opts.ReadConcern
}

// WriteConcern returns the write concern of the bucket.
func (b *GridFSBucket) WriteConcern() *writeconcern.WriteConcern {
	return b.opts.WriteConcern
}

// ObservableAdapter returns the adapter applied to the observables of the bucket.
func (b *GridFSBucket) ObservableAdapter() reactive.Adapter {
	return b.target.adapter
}

// WithChunkSizeBytes returns a copy of the bucket using n byte chunks for new files.
func (b *GridFSBucket) WithChunkSizeBytes(n int32) *GridFSBucket {
	cp := *b
	cp.opts.ChunkSizeBytes = &n
	return &cp
}

// WithReadPreference returns a copy of the bucket using rp.
func (b *GridFSBucket) WithReadPreference(rp *readpref.ReadPref) *GridFSBucket {
	cp := *b
	cp.opts.ReadPreference = rp
	return &cp
}

// WithReadConcern returns a copy of the bucket using rc.
func (b *GridFSBucket) WithReadConcern(rc *readconcern.ReadConcern) *GridFSBucket {
	cp := *b
	cp.opts.ReadConcern = rc
	return &cp
}

// WithWriteConcern returns a copy of the bucket using wc.
func (b *GridFSBucket) WithWriteConcern(wc *writeconcern.WriteConcern) *GridFSBucket {
	cp := *b
	cp.opts.WriteConcern = wc
	return &cp
}

// WithObservableAdapter returns a copy of the bucket using a.
func (b *GridFSBucket) WithObservableAdapter(a reactive.Adapter) *GridFSBucket {
	cp := *b
	cp.target.adapter = a
	return &cp
}

func (b *GridFSBucket) bucket() operation.GridFSBucket {
	opts := b.opts
	return operation.GridFSBucket{Database: b.database.db, Options: &opts}
}

// OpenUploadStream returns a stream for writing a new file. The id of the
// file is generated when the stream is created.
func (b *GridFSBucket) OpenUploadStream(filename string, opts ...*mongoopts.UploadOptions) *GridFSUploadStream {
	return b.OpenUploadStreamWithID(primitive.NewObjectID(), filename, opts...)
}

// OpenUploadStreamWithID returns a stream for writing a new file with the given id.
func (b *GridFSBucket) OpenUploadStreamWithID(id interface{}, filename string, opts ...*mongoopts.UploadOptions) *GridFSUploadStream {
	return &GridFSUploadStream{
		bucket:   b,
		id:       id,
		filename: filename,
		opts:     b.uploadOptions(opts...),
	}
}

func (b *GridFSBucket) uploadOptions(opts ...*mongoopts.UploadOptions) *mongoopts.UploadOptions {
	merged := mongoopts.GridFSUpload().SetChunkSizeBytes(b.ChunkSizeBytes())
	merged.Registry = b.target.registry
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.ChunkSizeBytes != nil {
			merged.SetChunkSizeBytes(*o.ChunkSizeBytes)
		}
		if o.Metadata != nil {
			merged.SetMetadata(o.Metadata)
		}
		if o.Registry != nil {
			merged.Registry = o.Registry
		}
	}
	return merged
}

// UploadFromStream returns an Observable reading source to its end into a new
// file and emitting the generated id of the file. source is not closed.
func (b *GridFSBucket) UploadFromStream(filename string, source AsyncInputStream, opts ...*mongoopts.UploadOptions) reactive.Observable[primitive.ObjectID] {
	id := primitive.NewObjectID()
	o := reactive.Map(b.uploadFrom(id, filename, source, opts), func(Success) (primitive.ObjectID, error) {
		return id, nil
	})
	return adapt(b.target, o)
}

// UploadFromStreamWithID is UploadFromStream storing the file under id.
func (b *GridFSBucket) UploadFromStreamWithID(id interface{}, filename string, source AsyncInputStream, opts ...*mongoopts.UploadOptions) reactive.Observable[Success] {
	return adapt(b.target, b.uploadFrom(id, filename, source, opts))
}

func (b *GridFSBucket) uploadFrom(id interface{}, filename string, source AsyncInputStream, opts []*mongoopts.UploadOptions) reactive.Observable[Success] {
	if source == nil {
		return failed[Success](errors.New("mongo: upload source is nil"))
	}
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[Success]) {
		upload := b.OpenUploadStreamWithID(id, filename, opts...)
		go func() {
			_, err := transfer(ctx, source, upload.sink(), int(*upload.opts.ChunkSizeBytes))
			if err != nil {
				if _, abortErr := reactive.First(context.Background(), upload.abort(true)); abortErr != nil {
					b.target.log.WithError(abortErr).Warn("aborting upload")
				}
				callback(Success{}, err)
				return
			}
			_, err = reactive.First(ctx, upload.close())
			callback(Success{}, err)
		}()
	})
}

// OpenDownloadStream returns a stream reading the file with the given id.
func (b *GridFSBucket) OpenDownloadStream(id interface{}) *GridFSDownloadStream {
	return &GridFSDownloadStream{
		bucket: b,
		open:   &operation.GridFSOpenDownload{Bucket: b.bucket(), FileID: id},
	}
}

// OpenDownloadStreamByName returns a stream reading the file with the given
// filename. Without a revision in opts the most recent revision is read.
func (b *GridFSBucket) OpenDownloadStreamByName(filename string, opts ...*mongoopts.NameOptions) *GridFSDownloadStream {
	nameOpts := mongoopts.GridFSName()
	for _, o := range opts {
		if o != nil && o.Revision != nil {
			nameOpts.SetRevision(*o.Revision)
		}
	}
	return &GridFSDownloadStream{
		bucket: b,
		open: &operation.GridFSOpenDownload{
			Bucket:   b.bucket(),
			Filename: filename,
			ByName:   true,
			Options:  nameOpts,
		},
	}
}

// DownloadToStream returns an Observable writing the contents of the file
// with the given id to dest and emitting the number of bytes written. dest is
// not closed.
func (b *GridFSBucket) DownloadToStream(id interface{}, dest AsyncOutputStream) reactive.Observable[int64] {
	return adapt(b.target, b.downloadTo(func() *GridFSDownloadStream { return b.OpenDownloadStream(id) }, dest))
}

// DownloadToStreamByName is DownloadToStream selecting the file by name.
func (b *GridFSBucket) DownloadToStreamByName(filename string, dest AsyncOutputStream, opts ...*mongoopts.NameOptions) reactive.Observable[int64] {
	return adapt(b.target, b.downloadTo(func() *GridFSDownloadStream {
		return b.OpenDownloadStreamByName(filename, opts...)
	}, dest))
}

func (b *GridFSBucket) downloadTo(open func() *GridFSDownloadStream, dest AsyncOutputStream) reactive.Observable[int64] {
	if dest == nil {
		return failed[int64](errors.New("mongo: download destination is nil"))
	}
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[int64]) {
		download := open()
		go func() {
			file, err := reactive.First(ctx, download.file())
			if err != nil {
				callback(0, err)
				return
			}
			size := int(file.ChunkSize)
			if size <= 0 {
				size = int(DefaultGridFSChunkSize)
			}
			n, err := transfer(ctx, download.source(), dest, size)
			if _, closeErr := reactive.First(context.Background(), download.close(true)); closeErr != nil && err == nil {
				err = closeErr
			}
			callback(n, err)
		}()
	})
}

// Find returns an Observable emitting the files documents of the bucket.
func (b *GridFSBucket) Find() *GridFSFindObservable {
	return &GridFSFindObservable{bucket: b, filter: bson.D{}, opts: mongoopts.GridFSFind()}
}

// Delete returns an Observable removing the file with the given id and its chunks.
func (b *GridFSBucket) Delete(id interface{}) reactive.Observable[Success] {
	return adapt(b.target, gridfsWrite(b.target, &operation.GridFSDelete{Bucket: b.bucket(), FileID: id}))
}

// Rename returns an Observable renaming the file with the given id.
func (b *GridFSBucket) Rename(id interface{}, newFilename string) reactive.Observable[Success] {
	return adapt(b.target, gridfsWrite(b.target, &operation.GridFSRename{
		Bucket:      b.bucket(),
		FileID:      id,
		NewFilename: newFilename,
	}))
}

// Drop returns an Observable dropping the files and chunks collections of the bucket.
func (b *GridFSBucket) Drop() reactive.Observable[Success] {
	return adapt(b.target, writeSuccess(b.target, &operation.GridFSDrop{Bucket: b.bucket()}))
}

// gridfsWrite is writeSuccess reporting the driver's file not found error as
// ErrFileNotFound.
func gridfsWrite(t target, op operation.WriteOperation) reactive.Observable[Success] {
	return reactive.FromSingleResult(func(ctx context.Context, callback reactive.SingleResultCallback[Success]) {
		t.executor.ExecuteWrite(ctx, op, func(_ interface{}, err error) {
			callback(Success{}, gridfsError(err))
		})
	})
}

func gridfsError(err error) error {
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return ErrFileNotFound
	}
	return err
}
