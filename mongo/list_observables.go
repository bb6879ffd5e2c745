// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// ListCollectionsObservable is an Observable of the collection specifications
// of a database.
type ListCollectionsObservable[T any] struct {
	database *Database
	op       operation.ListCollections
	err      error
}

// Filter restricts the collections listed. A nil filter is signalled as ErrNilDocument.
func (l *ListCollectionsObservable[T]) Filter(filter interface{}) *ListCollectionsObservable[T] {
	if filter == nil {
		l.err = ErrNilDocument
		return l
	}
	l.op.Filter = filter
	return l
}

// MaxTime bounds the time spent running the command.
func (l *ListCollectionsObservable[T]) MaxTime(d time.Duration) *ListCollectionsObservable[T] {
	l.op.MaxTime = d
	return l
}

// NameOnly returns only the name and type of each collection.
func (l *ListCollectionsObservable[T]) NameOnly(b bool) *ListCollectionsObservable[T] {
	l.op.Options.SetNameOnly(b)
	return l
}

// BatchSize sets the number of specifications per batch.
func (l *ListCollectionsObservable[T]) BatchSize(n int32) *ListCollectionsObservable[T] {
	l.op.Options.SetBatchSize(n)
	return l
}

// Subscribe implements reactive.Observable.
func (l *ListCollectionsObservable[T]) Subscribe(ctx context.Context, s reactive.Subscriber[T]) {
	adapt(l.database.target, l.observable()).Subscribe(ctx, s)
}

func (l *ListCollectionsObservable[T]) observable() reactive.Observable[T] {
	if l.err != nil {
		return failed[T](l.err)
	}
	op := l.op
	opts := *l.op.Options
	op.Options = &opts
	return cursorResults[T](l.database.target, &op, readpref.Primary())
}

// ListDatabasesObservable is an Observable of the databases of a deployment.
type ListDatabasesObservable[T any] struct {
	client *Client
	op     operation.ListDatabases
	err    error
}

// Filter restricts the databases listed. A nil filter is signalled as ErrNilDocument.
func (l *ListDatabasesObservable[T]) Filter(filter interface{}) *ListDatabasesObservable[T] {
	if filter == nil {
		l.err = ErrNilDocument
		return l
	}
	l.op.Filter = filter
	return l
}

// MaxTime sets the maximum server execution time of the command.
func (l *ListDatabasesObservable[T]) MaxTime(d time.Duration) *ListDatabasesObservable[T] {
	l.op.MaxTime = d
	return l
}

// NameOnly returns only the name of each database.
func (l *ListDatabasesObservable[T]) NameOnly(b bool) *ListDatabasesObservable[T] {
	l.op.NameOnly = &b
	return l
}

// AuthorizedDatabases lists only the databases the user may act on when the
// user lacks the listDatabases privilege.
func (l *ListDatabasesObservable[T]) AuthorizedDatabases(b bool) *ListDatabasesObservable[T] {
	l.op.AuthorizedDatabases = &b
	return l
}

// Subscribe implements reactive.Observable.
func (l *ListDatabasesObservable[T]) Subscribe(ctx context.Context, s reactive.Subscriber[T]) {
	adapt(l.client.target, l.observable()).Subscribe(ctx, s)
}

func (l *ListDatabasesObservable[T]) observable() reactive.Observable[T] {
	if l.err != nil {
		return failed[T](l.err)
	}
	op := l.op
	return cursorResults[T](l.client.target, &op, readpref.Primary())
}
