// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	driver "go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// Collection is a handle to a MongoDB collection. It is safe for concurrent
// use by multiple goroutines. The With methods return modified copies.
//
// Documents are emitted as bson.D unless a generic function such as FindAs
// selects another type.
type Collection struct {
	database *Database
	coll     *driver.Collection
	target   target

	rp *readpref.ReadPref
	rc *readconcern.ReadConcern
	wc *writeconcern.WriteConcern
}

func newCollection(db *Database, name string, opts ...*mongoopts.CollectionOptions) *Collection {
	collOpts := mongoopts.MergeCollectionOptions(opts...)
	t := db.target
	if collOpts.Registry != nil {
		t.registry = collOpts.Registry
	}
	t.log = t.log.WithField("collection", name)

	c := &Collection{
		database: db,
		coll:     db.db.Collection(name, collOpts),
		target:   t,
		rp:       db.ReadPreference(),
		rc:       db.ReadConcern(),
		wc:       db.WriteConcern(),
	}
	if collOpts.ReadPreference != nil {
		c.rp = collOpts.ReadPreference
	}
	if collOpts.ReadConcern != nil {
		c.rc = collOpts.ReadConcern
	}
	if collOpts.WriteConcern != nil {
		c.wc = collOpts.WriteConcern
	}
	return c
}

// Database returns the Database the collection was created from.
func (c *Collection) Database() *Database {
	return c.database
}

// Name returns the name of the collection.
func (c *Collection) Name() string {
	return c.coll.Name()
}

// Namespace returns the namespace of the collection, "<database>.<collection>".
func (c *Collection) Namespace() string {
	return c.database.Name() + "." + c.coll.Name()
}

// Driver returns the wrapped driver collection.
func (c *Collection) Driver() *driver.Collection {
	return c.coll
}

// ObservableAdapter returns the adapter applied to the observables of the collection.
func (c *Collection) ObservableAdapter() reactive.Adapter {
	return c.target.adapter
}

// Registry returns the registry used to encode and decode documents.
func (c *Collection) Registry() *bsoncodec.Registry {
	return c.target.registry
}

// ReadPreference returns the read preference of the collection.
func (c *Collection) ReadPreference() *readpref.ReadPref {
	return c.rp
}

// ReadConcern returns the read concern of the collection.
func (c *Collection) ReadConcern() *readconcern.ReadConcern {
	return c.rc
}

// WriteConcern returns the write concern of the collection.
func (c *Collection) WriteConcern() *writeconcern.WriteConcern {
	return c.wc
}

// WithObservableAdapter returns a copy of the collection using a.
func (c *Collection) WithObservableAdapter(a reactive.Adapter) *Collection {
	cp := *c
	cp.target.adapter = a
	return &cp
}

// WithRegistry returns a copy of the collection using reg. A nil registry is ignored.
func (c *Collection) WithRegistry(reg *bsoncodec.Registry) *Collection {
	return c.with(func(o *mongoopts.CollectionOptions) {
		if reg != nil {
			o.SetRegistry(reg)
		}
	})
}

// WithReadPreference returns a copy of the collection using rp.
func (c *Collection) WithReadPreference(rp *readpref.ReadPref) *Collection {
	return c.with(func(o *mongoopts.CollectionOptions) { o.SetReadPreference(rp) })
}

// WithReadConcern returns a copy of the collection using rc.
func (c *Collection) WithReadConcern(rc *readconcern.ReadConcern) *Collection {
	return c.with(func(o *mongoopts.CollectionOptions) { o.SetReadConcern(rc) })
}

// WithWriteConcern returns a copy of the collection using wc.
func (c *Collection) WithWriteConcern(wc *writeconcern.WriteConcern) *Collection {
	return c.with(func(o *mongoopts.CollectionOptions) { o.SetWriteConcern(wc) })
}

func (c *Collection) with(fn func(*mongoopts.CollectionOptions)) *Collection {
	opts := mongoopts.Collection().
		SetReadPreference(c.rp).
		SetReadConcern(c.rc).
		SetWriteConcern(c.wc).
		SetRegistry(c.target.registry)
	fn(opts)

	cp := *c
	cp.coll = c.database.db.Collection(c.coll.Name(), opts)
	cp.target.registry = opts.Registry
	cp.rp, cp.rc, cp.wc = opts.ReadPreference, opts.ReadConcern, opts.WriteConcern
	return &cp
}

// Count returns an Observable emitting the number of documents matching
// filter. A nil filter matches every document.
func (c *Collection) Count(filter interface{}, opts ...*mongoopts.CountOptions) reactive.Observable[int64] {
	return adapt(c.target, readResult[int64](c.target, &operation.Count{
		Collection: c.coll,
		Filter:     orEmpty(filter),
		Options:    mongoopts.MergeCountOptions(opts...),
	}, c.ReadPreference()))
}

// EstimatedCount returns an Observable emitting the number of documents in
// the collection according to its metadata.
func (c *Collection) EstimatedCount(opts ...*mongoopts.EstimatedDocumentCountOptions) reactive.Observable[int64] {
	return adapt(c.target, readResult[int64](c.target, &operation.EstimatedCount{
		Collection: c.coll,
		Options:    mongoopts.MergeEstimatedDocumentCountOptions(opts...),
	}, c.ReadPreference()))
}

// Distinct returns an Observable emitting the distinct values of fieldName
// among the documents matching filter. A nil filter matches every document.
func (c *Collection) Distinct(fieldName string, filter interface{}, opts ...*mongoopts.DistinctOptions) reactive.Observable[interface{}] {
	return adapt(c.target, sliceResults[interface{}](c.target, &operation.Distinct{
		Collection: c.coll,
		FieldName:  fieldName,
		Filter:     orEmpty(filter),
		Options:    mongoopts.MergeDistinctOptions(opts...),
	}, c.ReadPreference()))
}

// Find returns an Observable emitting every document of the collection. Use
// the methods of the returned FindObservable to narrow the query.
func (c *Collection) Find() *FindObservable[bson.D] {
	return FindAs[bson.D](c)
}

// FindAs is Find decoding the documents into T.
func FindAs[T any](c *Collection) *FindObservable[T] {
	return &FindObservable[T]{collection: c, filter: bson.D{}, opts: mongoopts.Find()}
}

// Aggregate returns an Observable emitting the results of pipeline.
func (c *Collection) Aggregate(pipeline interface{}) *AggregateObservable[bson.D] {
	return AggregateAs[bson.D](c, pipeline)
}

// AggregateAs is Aggregate decoding the results into T.
func AggregateAs[T any](c *Collection, pipeline interface{}) *AggregateObservable[T] {
	a := &AggregateObservable[T]{collection: c, pipeline: pipeline, opts: mongoopts.Aggregate()}
	if pipeline == nil {
		a.err = ErrNilDocument
	}
	return a
}

// InsertOne returns an Observable inserting document.
func (c *Collection) InsertOne(document interface{}, opts ...*mongoopts.InsertOneOptions) reactive.Observable[*driver.InsertOneResult] {
	if document == nil {
		return adapt(c.target, failed[*driver.InsertOneResult](ErrNilDocument))
	}
	return adapt(c.target, writeResult[*driver.InsertOneResult](c.target, &operation.InsertOne{
		Collection: c.coll,
		Document:   document,
		Options:    mongoopts.MergeInsertOneOptions(opts...),
	}))
}

// InsertMany returns an Observable inserting documents.
func (c *Collection) InsertMany(documents []interface{}, opts ...*mongoopts.InsertManyOptions) reactive.Observable[*driver.InsertManyResult] {
	if err := checkDocuments(documents); err != nil {
		return adapt(c.target, failed[*driver.InsertManyResult](err))
	}
	return adapt(c.target, writeResult[*driver.InsertManyResult](c.target, &operation.InsertMany{
		Collection: c.coll,
		Documents:  documents,
		Options:    mongoopts.MergeInsertManyOptions(opts...),
	}))
}

// DeleteOne returns an Observable removing at most one document matching filter.
func (c *Collection) DeleteOne(filter interface{}, opts ...*mongoopts.DeleteOptions) reactive.Observable[*driver.DeleteResult] {
	return c.delete(filter, false, opts)
}

// DeleteMany returns an Observable removing every document matching filter.
func (c *Collection) DeleteMany(filter interface{}, opts ...*mongoopts.DeleteOptions) reactive.Observable[*driver.DeleteResult] {
	return c.delete(filter, true, opts)
}

func (c *Collection) delete(filter interface{}, many bool, opts []*mongoopts.DeleteOptions) reactive.Observable[*driver.DeleteResult] {
	if filter == nil {
		return adapt(c.target, failed[*driver.DeleteResult](ErrNilDocument))
	}
	return adapt(c.target, writeResult[*driver.DeleteResult](c.target, &operation.Delete{
		Collection: c.coll,
		Filter:     filter,
		Many:       many,
		Options:    mongoopts.MergeDeleteOptions(opts...),
	}))
}

// UpdateOne returns an Observable applying update to at most one document matching filter.
func (c *Collection) UpdateOne(filter, update interface{}, opts ...*mongoopts.UpdateOptions) reactive.Observable[*driver.UpdateResult] {
	return c.update(filter, update, false, opts)
}

// UpdateMany returns an Observable applying update to every document matching filter.
func (c *Collection) UpdateMany(filter, update interface{}, opts ...*mongoopts.UpdateOptions) reactive.Observable[*driver.UpdateResult] {
	return c.update(filter, update, true, opts)
}

func (c *Collection) update(filter, update interface{}, many bool, opts []*mongoopts.UpdateOptions) reactive.Observable[*driver.UpdateResult] {
	if filter == nil || update == nil {
		return adapt(c.target, failed[*driver.UpdateResult](ErrNilDocument))
	}
	return adapt(c.target, writeResult[*driver.UpdateResult](c.target, &operation.Update{
		Collection: c.coll,
		Filter:     filter,
		Update:     update,
		Many:       many,
		Options:    mongoopts.MergeUpdateOptions(opts...),
	}))
}

// ReplaceOne returns an Observable replacing at most one document matching filter.
func (c *Collection) ReplaceOne(filter, replacement interface{}, opts ...*mongoopts.ReplaceOptions) reactive.Observable[*driver.UpdateResult] {
	if filter == nil || replacement == nil {
		return adapt(c.target, failed[*driver.UpdateResult](ErrNilDocument))
	}
	return adapt(c.target, writeResult[*driver.UpdateResult](c.target, &operation.Replace{
		Collection:  c.coll,
		Filter:      filter,
		Replacement: replacement,
		Options:     mongoopts.MergeReplaceOptions(opts...),
	}))
}

// FindOneAndDelete returns an Observable removing a document matching filter
// and emitting it. The stream completes empty when nothing matches.
func (c *Collection) FindOneAndDelete(filter interface{}, opts ...*mongoopts.FindOneAndDeleteOptions) reactive.Observable[bson.D] {
	if filter == nil {
		return adapt(c.target, failed[bson.D](ErrNilDocument))
	}
	return adapt(c.target, writeDocument[bson.D](c.target, &operation.FindOneAndDelete{
		Collection: c.coll,
		Filter:     filter,
		Options:    mongoopts.MergeFindOneAndDeleteOptions(opts...),
	}))
}

// FindOneAndReplace returns an Observable replacing a document matching filter
// and emitting either the original or the replacement, depending on opts. The
// stream completes empty when nothing matches.
func (c *Collection) FindOneAndReplace(filter, replacement interface{}, opts ...*mongoopts.FindOneAndReplaceOptions) reactive.Observable[bson.D] {
	if filter == nil || replacement == nil {
		return adapt(c.target, failed[bson.D](ErrNilDocument))
	}
	return adapt(c.target, writeDocument[bson.D](c.target, &operation.FindOneAndReplace{
		Collection:  c.coll,
		Filter:      filter,
		Replacement: replacement,
		Options:     mongoopts.MergeFindOneAndReplaceOptions(opts...),
	}))
}

// FindOneAndUpdate returns an Observable updating a document matching filter
// and emitting either the original or the updated document, depending on
// opts. The stream completes empty when nothing matches.
func (c *Collection) FindOneAndUpdate(filter, update interface{}, opts ...*mongoopts.FindOneAndUpdateOptions) reactive.Observable[bson.D] {
	if filter == nil || update == nil {
		return adapt(c.target, failed[bson.D](ErrNilDocument))
	}
	return adapt(c.target, writeDocument[bson.D](c.target, &operation.FindOneAndUpdate{
		Collection: c.coll,
		Filter:     filter,
		Update:     update,
		Options:    mongoopts.MergeFindOneAndUpdateOptions(opts...),
	}))
}

// BulkWrite returns an Observable running models as a single bulk write.
func (c *Collection) BulkWrite(models []driver.WriteModel, opts ...*mongoopts.BulkWriteOptions) reactive.Observable[*driver.BulkWriteResult] {
	if len(models) == 0 {
		return adapt(c.target, failed[*driver.BulkWriteResult](ErrEmptySlice))
	}
	for _, m := range models {
		if m == nil {
			return adapt(c.target, failed[*driver.BulkWriteResult](ErrNilDocument))
		}
	}
	return adapt(c.target, writeResult[*driver.BulkWriteResult](c.target, &operation.BulkWrite{
		Collection: c.coll,
		Models:     models,
		Options:    mongoopts.MergeBulkWriteOptions(opts...),
	}))
}

// CreateIndex returns an Observable creating an index on keys and emitting its name.
func (c *Collection) CreateIndex(keys interface{}, opts ...*mongoopts.IndexOptions) reactive.Observable[string] {
	if keys == nil {
		return adapt(c.target, failed[string](ErrNilDocument))
	}
	model := driver.IndexModel{Keys: keys}
	if len(opts) > 0 {
		model.Options = opts[len(opts)-1]
	}
	return c.CreateIndexes([]driver.IndexModel{model})
}

// CreateIndexes returns an Observable creating the given indexes and emitting their names.
func (c *Collection) CreateIndexes(models []driver.IndexModel, opts ...*mongoopts.CreateIndexesOptions) reactive.Observable[string] {
	if len(models) == 0 {
		return adapt(c.target, failed[string](ErrEmptySlice))
	}
	return adapt(c.target, writeSliceResults[string](c.target, &operation.CreateIndexes{
		Collection: c.coll,
		Models:     models,
		Options:    mongoopts.MergeCreateIndexesOptions(opts...),
	}))
}

// ListIndexes returns an Observable emitting the specification of every index.
func (c *Collection) ListIndexes(opts ...*mongoopts.ListIndexesOptions) reactive.Observable[bson.D] {
	return adapt(c.target, cursorResults[bson.D](c.target, &operation.ListIndexes{
		Collection: c.coll,
		Options:    mongoopts.MergeListIndexesOptions(opts...),
	}, c.ReadPreference()))
}

// DropIndex returns an Observable dropping the index with the given name.
func (c *Collection) DropIndex(name string, opts ...*mongoopts.DropIndexesOptions) reactive.Observable[Success] {
	return adapt(c.target, writeSuccess(c.target, &operation.DropIndex{
		Collection: c.coll,
		IndexName:  name,
		Options:    mongoopts.MergeDropIndexesOptions(opts...),
	}))
}

// DropIndexes returns an Observable dropping every index but the one on _id.
func (c *Collection) DropIndexes(opts ...*mongoopts.DropIndexesOptions) reactive.Observable[Success] {
	return c.DropIndex("*", opts...)
}

// Drop returns an Observable dropping the collection.
func (c *Collection) Drop() reactive.Observable[Success] {
	return adapt(c.target, writeSuccess(c.target, &operation.DropCollection{Collection: c.coll}))
}

func orEmpty(filter interface{}) interface{} {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

func checkDocuments(documents []interface{}) error {
	if len(documents) == 0 {
		return ErrEmptySlice
	}
	for _, doc := range documents {
		if doc == nil {
			return ErrNilDocument
		}
	}
	return nil
}
