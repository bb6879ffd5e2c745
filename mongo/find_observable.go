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

// FindObservable is an Observable of the documents matching a query. Its
// methods refine the query and return the receiver; they must not be called
// concurrently with each other or with Subscribe. Every subscription runs the
// query as configured at the time of subscribing.
type FindObservable[T any] struct {
	collection *Collection
	filter     interface{}
	opts       *mongoopts.FindOptions
	err        error
}

// Filter sets the query filter. A nil filter is signalled as ErrNilDocument.
func (f *FindObservable[T]) Filter(filter interface{}) *FindObservable[T] {
	if filter == nil {
		f.err = ErrNilDocument
		return f
	}
	f.filter = filter
	return f
}

// Limit sets the maximum number of documents to return. Zero means no limit.
func (f *FindObservable[T]) Limit(n int64) *FindObservable[T] {
	f.opts.SetLimit(n)
	return f
}

// Skip sets the number of documents to skip.
func (f *FindObservable[T]) Skip(n int64) *FindObservable[T] {
	f.opts.SetSkip(n)
	return f
}

// MaxTime sets the maximum server execution time of the query.
func (f *FindObservable[T]) MaxTime(d time.Duration) *FindObservable[T] {
	f.opts.SetMaxTime(d)
	return f
}

// MaxAwaitTime sets how long the server waits for new documents on a
// tailable await cursor.
func (f *FindObservable[T]) MaxAwaitTime(d time.Duration) *FindObservable[T] {
	f.opts.SetMaxAwaitTime(d)
	return f
}

// Projection limits the fields of the returned documents.
func (f *FindObservable[T]) Projection(projection interface{}) *FindObservable[T] {
	f.opts.SetProjection(projection)
	return f
}

// Sort sets the order of the returned documents.
func (f *FindObservable[T]) Sort(sort interface{}) *FindObservable[T] {
	f.opts.SetSort(sort)
	return f
}

// NoCursorTimeout keeps the server from timing out an idle cursor.
func (f *FindObservable[T]) NoCursorTimeout(b bool) *FindObservable[T] {
	f.opts.SetNoCursorTimeout(b)
	return f
}

// OplogReplay is for internal replication use only.
func (f *FindObservable[T]) OplogReplay(b bool) *FindObservable[T] {
	f.opts.SetOplogReplay(b) //nolint:staticcheck
	return f
}

// Partial returns partial results instead of an error when some shards are down.
func (f *FindObservable[T]) Partial(b bool) *FindObservable[T] {
	f.opts.SetAllowPartialResults(b)
	return f
}

// CursorType sets the type of cursor, such as tailable.
func (f *FindObservable[T]) CursorType(ct mongoopts.CursorType) *FindObservable[T] {
	f.opts.SetCursorType(ct)
	return f
}

// Collation sets the collation of the query.
func (f *FindObservable[T]) Collation(c *mongoopts.Collation) *FindObservable[T] {
	f.opts.SetCollation(c)
	return f
}

// Comment attaches a comment to the query, visible in profiler output and logs.
func (f *FindObservable[T]) Comment(comment string) *FindObservable[T] {
	f.opts.SetComment(comment)
	return f
}

// Hint sets the index to use, as an index name or specification document.
func (f *FindObservable[T]) Hint(hint interface{}) *FindObservable[T] {
	f.opts.SetHint(hint)
	return f
}

// Max sets the exclusive upper bound for a specific index.
func (f *FindObservable[T]) Max(max interface{}) *FindObservable[T] {
	f.opts.SetMax(max)
	return f
}

// Min sets the inclusive lower bound for a specific index.
func (f *FindObservable[T]) Min(min interface{}) *FindObservable[T] {
	f.opts.SetMin(min)
	return f
}

// ReturnKey returns only the index keys in the resulting documents.
func (f *FindObservable[T]) ReturnKey(b bool) *FindObservable[T] {
	f.opts.SetReturnKey(b)
	return f
}

// ShowRecordID adds a $recordId field to the returned documents.
func (f *FindObservable[T]) ShowRecordID(b bool) *FindObservable[T] {
	f.opts.SetShowRecordID(b)
	return f
}

// BatchSize sets the number of documents per batch.
func (f *FindObservable[T]) BatchSize(n int32) *FindObservable[T] {
	f.opts.SetBatchSize(n)
	return f
}

// First returns an Observable emitting the first matching document, or
// completing empty when nothing matches.
func (f *FindObservable[T]) First() reactive.Observable[T] {
	opts := *f.opts
	opts.SetLimit(-1)
	return adapt(f.collection.target, f.find(&opts))
}

// Subscribe implements reactive.Observable.
func (f *FindObservable[T]) Subscribe(ctx context.Context, s reactive.Subscriber[T]) {
	adapt(f.collection.target, f.observable()).Subscribe(ctx, s)
}

func (f *FindObservable[T]) observable() reactive.Observable[T] {
	opts := *f.opts
	return f.find(&opts)
}

func (f *FindObservable[T]) find(opts *mongoopts.FindOptions) reactive.Observable[T] {
	if f.err != nil {
		return failed[T](f.err)
	}
	c := f.collection
	return cursorResults[T](c.target, &operation.Find{
		Collection: c.coll,
		Filter:     f.filter,
		Options:    opts,
	}, c.ReadPreference())
}
