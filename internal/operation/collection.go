// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ErrOutStageRequired is returned when an aggregation meant to write to a
// collection does not end with an $out or $merge stage.
var ErrOutStageRequired = errors.New("the last stage of the aggregation pipeline must be $out or $merge")

// Find queries a collection.
type Find struct {
	Collection *mongo.Collection
	Filter     interface{}
	Options    *options.FindOptions
}

// Name implements Operation.
func (*Find) Name() string { return "find" }

// ExecuteRead implements ReadOperation.
func (f *Find) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	coll, err := collectionFor(f.Collection, rp)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, f.Filter, f.Options)
	if err != nil {
		return nil, err
	}
	return NewDriverCursor(cur), nil
}

// Aggregate runs an aggregation pipeline and returns a cursor over its results.
type Aggregate struct {
	Collection *mongo.Collection
	Pipeline   interface{}
	Options    *options.AggregateOptions
}

// Name implements Operation.
func (*Aggregate) Name() string { return "aggregate" }

// ExecuteRead implements ReadOperation.
func (a *Aggregate) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	coll, err := collectionFor(a.Collection, rp)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Aggregate(ctx, a.Pipeline, a.Options)
	if err != nil {
		return nil, err
	}
	return NewDriverCursor(cur), nil
}

// AggregateToCollection runs a pipeline ending in $out or $merge.
type AggregateToCollection struct {
	Collection *mongo.Collection
	Pipeline   interface{}
	Options    *options.AggregateOptions
}

// Name implements Operation.
func (*AggregateToCollection) Name() string { return "aggregate" }

// ExecuteWrite implements WriteOperation.
func (a *AggregateToCollection) ExecuteWrite(ctx context.Context) (interface{}, error) {
	if err := ValidateOutStage(a.Pipeline); err != nil {
		return nil, err
	}
	cur, err := a.Collection.Aggregate(ctx, a.Pipeline, a.Options)
	if err != nil {
		return nil, err
	}
	return nil, cur.Close(ctx)
}

// ValidateOutStage checks that pipeline ends in $out or $merge. Pipelines of a
// type it cannot inspect are left to the server to reject.
func ValidateOutStage(pipeline interface{}) error {
	var stages []bson.D
	switch p := pipeline.(type) {
	case mongo.Pipeline:
		stages = p
	case []bson.D:
		stages = p
	default:
		return nil
	}
	if len(stages) == 0 {
		return ErrOutStageRequired
	}
	last := stages[len(stages)-1]
	if len(last) == 0 || (last[0].Key != "$out" && last[0].Key != "$merge") {
		return ErrOutStageRequired
	}
	return nil
}

// Count counts the documents matching a filter.
type Count struct {
	Collection *mongo.Collection
	Filter     interface{}
	Options    *options.CountOptions
}

// Name implements Operation.
func (*Count) Name() string { return "count" }

// ExecuteRead implements ReadOperation.
func (c *Count) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	coll, err := collectionFor(c.Collection, rp)
	if err != nil {
		return nil, err
	}
	return coll.CountDocuments(ctx, c.Filter, c.Options)
}

// EstimatedCount estimates the number of documents from collection metadata.
type EstimatedCount struct {
	Collection *mongo.Collection
	Options    *options.EstimatedDocumentCountOptions
}

// Name implements Operation.
func (*EstimatedCount) Name() string { return "estimatedCount" }

// ExecuteRead implements ReadOperation.
func (c *EstimatedCount) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	coll, err := collectionFor(c.Collection, rp)
	if err != nil {
		return nil, err
	}
	return coll.EstimatedDocumentCount(ctx, c.Options)
}

// Distinct finds the distinct values of a field.
type Distinct struct {
	Collection *mongo.Collection
	FieldName  string
	Filter     interface{}
	Options    *options.DistinctOptions
}

// Name implements Operation.
func (*Distinct) Name() string { return "distinct" }

// ExecuteRead implements ReadOperation.
func (d *Distinct) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	coll, err := collectionFor(d.Collection, rp)
	if err != nil {
		return nil, err
	}
	return coll.Distinct(ctx, d.FieldName, d.Filter, d.Options)
}

// ListIndexes lists the indexes of a collection.
type ListIndexes struct {
	Collection *mongo.Collection
	Options    *options.ListIndexesOptions
}

// Name implements Operation.
func (*ListIndexes) Name() string { return "listIndexes" }

// ExecuteRead implements ReadOperation.
func (l *ListIndexes) ExecuteRead(ctx context.Context, _ *readpref.ReadPref) (interface{}, error) {
	cur, err := l.Collection.Indexes().List(ctx, l.Options)
	if err != nil {
		return nil, err
	}
	return NewDriverCursor(cur), nil
}

// InsertOne inserts a single document.
type InsertOne struct {
	Collection *mongo.Collection
	Document   interface{}
	Options    *options.InsertOneOptions
}

// Name implements Operation.
func (*InsertOne) Name() string { return "insert" }

// ExecuteWrite implements WriteOperation.
func (i *InsertOne) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return i.Collection.InsertOne(ctx, i.Document, i.Options)
}

// InsertMany inserts several documents.
type InsertMany struct {
	Collection *mongo.Collection
	Documents  []interface{}
	Options    *options.InsertManyOptions
}

// Name implements Operation.
func (*InsertMany) Name() string { return "insert" }

// ExecuteWrite implements WriteOperation.
func (i *InsertMany) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return i.Collection.InsertMany(ctx, i.Documents, i.Options)
}

// Delete removes one or all documents matching a filter.
type Delete struct {
	Collection *mongo.Collection
	Filter     interface{}
	Many       bool
	Options    *options.DeleteOptions
}

// Name implements Operation.
func (*Delete) Name() string { return "delete" }

// ExecuteWrite implements WriteOperation.
func (d *Delete) ExecuteWrite(ctx context.Context) (interface{}, error) {
	if d.Many {
		return d.Collection.DeleteMany(ctx, d.Filter, d.Options)
	}
	return d.Collection.DeleteOne(ctx, d.Filter, d.Options)
}

// Update applies an update to one or all documents matching a filter.
type Update struct {
	Collection *mongo.Collection
	Filter     interface{}
	Update     interface{}
	Many       bool
	Options    *options.UpdateOptions
}

// Name implements Operation.
func (*Update) Name() string { return "update" }

// ExecuteWrite implements WriteOperation.
func (u *Update) ExecuteWrite(ctx context.Context) (interface{}, error) {
	if u.Many {
		return u.Collection.UpdateMany(ctx, u.Filter, u.Update, u.Options)
	}
	return u.Collection.UpdateOne(ctx, u.Filter, u.Update, u.Options)
}

// Replace replaces a single document.
type Replace struct {
	Collection  *mongo.Collection
	Filter      interface{}
	Replacement interface{}
	Options     *options.ReplaceOptions
}

// Name implements Operation.
func (*Replace) Name() string { return "update" }

// ExecuteWrite implements WriteOperation.
func (r *Replace) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return r.Collection.ReplaceOne(ctx, r.Filter, r.Replacement, r.Options)
}

// FindOneAndDelete atomically finds and removes a document. The result is the
// removed document, or mongo.ErrNoDocuments.
type FindOneAndDelete struct {
	Collection *mongo.Collection
	Filter     interface{}
	Options    *options.FindOneAndDeleteOptions
}

// Name implements Operation.
func (*FindOneAndDelete) Name() string { return "findAndModify" }

// ExecuteWrite implements WriteOperation.
func (f *FindOneAndDelete) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return f.Collection.FindOneAndDelete(ctx, f.Filter, f.Options).Raw()
}

// FindOneAndReplace atomically finds and replaces a document.
type FindOneAndReplace struct {
	Collection  *mongo.Collection
	Filter      interface{}
	Replacement interface{}
	Options     *options.FindOneAndReplaceOptions
}

// Name implements Operation.
func (*FindOneAndReplace) Name() string { return "findAndModify" }

// ExecuteWrite implements WriteOperation.
func (f *FindOneAndReplace) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return f.Collection.FindOneAndReplace(ctx, f.Filter, f.Replacement, f.Options).Raw()
}

// FindOneAndUpdate atomically finds and updates a document.
type FindOneAndUpdate struct {
	Collection *mongo.Collection
	Filter     interface{}
	Update     interface{}
	Options    *options.FindOneAndUpdateOptions
}

// Name implements Operation.
func (*FindOneAndUpdate) Name() string { return "findAndModify" }

// ExecuteWrite implements WriteOperation.
func (f *FindOneAndUpdate) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return f.Collection.FindOneAndUpdate(ctx, f.Filter, f.Update, f.Options).Raw()
}

// BulkWrite runs a batch of write models.
type BulkWrite struct {
	Collection *mongo.Collection
	Models     []mongo.WriteModel
	Options    *options.BulkWriteOptions
}

// Name implements Operation.
func (*BulkWrite) Name() string { return "bulkWrite" }

// ExecuteWrite implements WriteOperation.
func (b *BulkWrite) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return b.Collection.BulkWrite(ctx, b.Models, b.Options)
}

// CreateIndexes creates one or more indexes and returns their names.
type CreateIndexes struct {
	Collection *mongo.Collection
	Models     []mongo.IndexModel
	Options    *options.CreateIndexesOptions
}

// Name implements Operation.
func (*CreateIndexes) Name() string { return "createIndexes" }

// ExecuteWrite implements WriteOperation.
func (c *CreateIndexes) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return c.Collection.Indexes().CreateMany(ctx, c.Models, c.Options)
}

// DropIndex drops the named index, or every index but _id when IndexName is "*".
type DropIndex struct {
	Collection *mongo.Collection
	IndexName  string
	Options    *options.DropIndexesOptions
}

// Name implements Operation.
func (*DropIndex) Name() string { return "dropIndexes" }

// ExecuteWrite implements WriteOperation.
func (d *DropIndex) ExecuteWrite(ctx context.Context) (interface{}, error) {
	if d.IndexName == "*" {
		_, err := d.Collection.Indexes().DropAll(ctx, d.Options)
		return nil, err
	}
	_, err := d.Collection.Indexes().DropOne(ctx, d.IndexName, d.Options)
	return nil, err
}

// DropCollection drops a collection.
type DropCollection struct {
	Collection *mongo.Collection
}

// Name implements Operation.
func (*DropCollection) Name() string { return "drop" }

// ExecuteWrite implements WriteOperation.
func (d *DropCollection) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return nil, d.Collection.Drop(ctx)
}
