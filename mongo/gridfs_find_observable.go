// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"time"

	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// GridFSFindObservable is an Observable of the files documents of a bucket.
type GridFSFindObservable struct {
	bucket *GridFSBucket
	filter interface{}
	opts   *mongoopts.GridFSFindOptions
	err    error
}

// Filter sets the query filter. A nil filter is signalled as ErrNilDocument.
func (f *GridFSFindObservable) Filter(filter interface{}) *GridFSFindObservable {
	if filter == nil {
		f.err = ErrNilDocument
		return f
	}
	f.filter = filter
	return f
}

// Limit sets the maximum number of files to return.
func (f *GridFSFindObservable) Limit(n int32) *GridFSFindObservable {
	f.opts.SetLimit(n)
	return f
}

// Skip sets the number of files to skip.
func (f *GridFSFindObservable) Skip(n int32) *GridFSFindObservable {
	f.opts.SetSkip(n)
	return f
}

// Sort sets the order of the returned files.
func (f *GridFSFindObservable) Sort(sort interface{}) *GridFSFindObservable {
	f.opts.SetSort(sort)
	return f
}

// BatchSize sets the number of files per batch.
func (f *GridFSFindObservable) BatchSize(n int32) *GridFSFindObservable {
	f.opts.SetBatchSize(n)
	return f
}

// MaxTime sets the maximum server execution time of the query.
func (f *GridFSFindObservable) MaxTime(d time.Duration) *GridFSFindObservable {
	f.opts.SetMaxTime(d)
	return f
}

// NoCursorTimeout keeps the server from timing out an idle cursor.
func (f *GridFSFindObservable) NoCursorTimeout(b bool) *GridFSFindObservable {
	f.opts.SetNoCursorTimeout(b)
	return f
}

// First returns an Observable emitting the first matching file, or
// completing empty when nothing matches.
func (f *GridFSFindObservable) First() reactive.Observable[*GridFSFile] {
	opts := *f.opts
	opts.SetLimit(-1)
	return adapt(f.bucket.target, f.find(&opts))
}

// Subscribe implements reactive.Observable.
func (f *GridFSFindObservable) Subscribe(ctx context.Context, s reactive.Subscriber[*GridFSFile]) {
	opts := *f.opts
	adapt(f.bucket.target, f.find(&opts)).Subscribe(ctx, s)
}

func (f *GridFSFindObservable) find(opts *mongoopts.GridFSFindOptions) reactive.Observable[*GridFSFile] {
	if f.err != nil {
		return failed[*GridFSFile](f.err)
	}
	b := f.bucket
	return cursorResults[*GridFSFile](b.target, &operation.GridFSFind{
		Bucket:  b.bucket(),
		Filter:  f.filter,
		Options: opts,
	}, b.ReadPreference())
}
