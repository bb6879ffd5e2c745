// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// AggregateObservable is an Observable of the results of an aggregation
// pipeline. Its methods configure the aggregation and return the receiver.
//
// When the pipeline ends with an $out or $merge stage writing to a collection
// of the same database, subscribing runs the aggregation and then emits the
// documents of the output collection.
type AggregateObservable[T any] struct {
	collection *Collection
	pipeline   interface{}
	opts       *mongoopts.AggregateOptions
	err        error
}

// AllowDiskUse lets aggregation stages write to temporary files.
func (a *AggregateObservable[T]) AllowDiskUse(b bool) *AggregateObservable[T] {
	a.opts.SetAllowDiskUse(b)
	return a
}

// MaxTime sets the maximum server execution time of the aggregation.
func (a *AggregateObservable[T]) MaxTime(d time.Duration) *AggregateObservable[T] {
	a.opts.SetMaxTime(d)
	return a
}

// BypassDocumentValidation skips document validation for $out and $merge.
func (a *AggregateObservable[T]) BypassDocumentValidation(b bool) *AggregateObservable[T] {
	a.opts.SetBypassDocumentValidation(b)
	return a
}

// BatchSize sets the number of documents per batch.
func (a *AggregateObservable[T]) BatchSize(n int32) *AggregateObservable[T] {
	a.opts.SetBatchSize(n)
	return a
}

// Collation sets the collation of the aggregation.
func (a *AggregateObservable[T]) Collation(c *mongoopts.Collation) *AggregateObservable[T] {
	a.opts.SetCollation(c)
	return a
}

// Comment attaches a comment to the aggregation.
func (a *AggregateObservable[T]) Comment(comment string) *AggregateObservable[T] {
	a.opts.SetComment(comment)
	return a
}

// Hint sets the index to use.
func (a *AggregateObservable[T]) Hint(hint interface{}) *AggregateObservable[T] {
	a.opts.SetHint(hint)
	return a
}

// ToCollection returns an Observable running the aggregation for its side
// effect only. The pipeline must end with an $out or $merge stage.
func (a *AggregateObservable[T]) ToCollection() reactive.Observable[Success] {
	c := a.collection
	if a.err != nil {
		return adapt(c.target, failed[Success](a.err))
	}
	if err := operation.ValidateOutStage(a.pipeline); err != nil {
		return adapt(c.target, failed[Success](err))
	}
	return adapt(c.target, writeSuccess(c.target, a.toCollection()))
}

// Subscribe implements reactive.Observable.
func (a *AggregateObservable[T]) Subscribe(ctx context.Context, s reactive.Subscriber[T]) {
	adapt(a.collection.target, a.observable()).Subscribe(ctx, s)
}

func (a *AggregateObservable[T]) observable() reactive.Observable[T] {
	if a.err != nil {
		return failed[T](a.err)
	}
	c := a.collection
	if name, ok := outCollection(a.pipeline, c.database.Name()); ok {
		return a.outResults(name)
	}
	opts := *a.opts
	return cursorResults[T](c.target, &operation.Aggregate{
		Collection: c.coll,
		Pipeline:   a.pipeline,
		Options:    &opts,
	}, c.ReadPreference())
}

func (a *AggregateObservable[T]) toCollection() *operation.AggregateToCollection {
	opts := *a.opts
	return &operation.AggregateToCollection{
		Collection: a.collection.coll,
		Pipeline:   a.pipeline,
		Options:    &opts,
	}
}

// outResults runs the aggregation and then opens a cursor on the output collection.
func (a *AggregateObservable[T]) outResults(name string) reactive.Observable[T] {
	c := a.collection
	agg := a.toCollection()
	find := &operation.Find{
		Collection: c.database.db.Collection(name),
		Filter:     bson.D{},
		Options:    mongoopts.Find(),
	}
	if agg.Options.BatchSize != nil {
		find.Options.SetBatchSize(*agg.Options.BatchSize)
	}
	return reactive.FromBatchCursor(func(ctx context.Context, callback reactive.SingleResultCallback[reactive.BatchCursor[T]]) {
		c.target.executor.ExecuteWrite(ctx, agg, func(_ interface{}, err error) {
			if err != nil {
				callback(nil, err)
				return
			}
			openCursor(ctx, c.target, find, c.ReadPreference(), callback)
		})
	})
}

// outCollection returns the collection written by the final $out or $merge
// stage of pipeline, if that collection is in database db.
func outCollection(pipeline interface{}, db string) (string, bool) {
	var stages []bson.D
	switch p := pipeline.(type) {
	case driver.Pipeline:
		stages = p
	case []bson.D:
		stages = p
	default:
		return "", false
	}
	if len(stages) == 0 || len(stages[len(stages)-1]) == 0 {
		return "", false
	}

	stage := stages[len(stages)-1][0]
	switch stage.Key {
	case "$out":
		return namespaceTarget(stage.Value, db)
	case "$merge":
		if name, ok := stage.Value.(string); ok {
			return name, true
		}
		spec, ok := stage.Value.(bson.D)
		if !ok {
			return "", false
		}
		for _, e := range spec {
			if e.Key == "into" {
				return namespaceTarget(e.Value, db)
			}
		}
	}
	return "", false
}

// namespaceTarget reads either a collection name or a {db, coll} document.
func namespaceTarget(v interface{}, db string) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bson.D:
		var name string
		in := db
		for _, e := range t {
			s, _ := e.Value.(string)
			switch e.Key {
			case "coll":
				name = s
			case "db":
				in = s
			}
		}
		if name == "" || in != db {
			return "", false
		}
		return name, true
	}
	return "", false
}
