// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/ikmak/mongo-rx-driver/internal/executortest"
	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

type closeTrackingCursor struct {
	operation.Cursor
	once   sync.Once
	closed chan struct{}
}

func trackClose(c operation.Cursor) *closeTrackingCursor {
	return &closeTrackingCursor{Cursor: c, closed: make(chan struct{})}
}

func (c *closeTrackingCursor) Close(ctx context.Context) error {
	c.once.Do(func() { close(c.closed) })
	return c.Cursor.Close(ctx)
}

func (c *closeTrackingCursor) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("cursor was not closed")
	}
}

func testCollection(t *testing.T, ex *executortest.Executor) *Collection {
	return newTestClient(t, ex).Database("db").Collection("coll")
}

func TestCollectionFind(t *testing.T) {
	ctx := context.Background()

	t.Run("emits every batch", func(t *testing.T) {
		cur := trackClose(operation.NewSliceCursor(
			[]bson.Raw{rawDoc(t, bson.D{{"_id", 1}})},
			[]bson.Raw{rawDoc(t, bson.D{{"_id", 2}}), rawDoc(t, bson.D{{"_id", 3}})},
		))
		ex := executortest.New(cur)
		coll := testCollection(t, ex)

		docs, err := reactive.Collect[bson.D](ctx, coll.Find().
			Filter(bson.D{{"x", 1}}).
			Limit(5).
			Skip(1).
			Sort(bson.D{{"_id", 1}}).
			Projection(bson.D{{"_id", 1}}).
			BatchSize(2).
			Comment("test"))
		require.NoError(t, err)
		assert.Equal(t, []bson.D{{{"_id", int32(1)}}, {{"_id", int32(2)}}, {{"_id", int32(3)}}}, docs)
		cur.wait(t)

		op, ok := ex.ReadOperation().(*operation.Find)
		require.True(t, ok)
		assert.Equal(t, bson.D{{"x", 1}}, op.Filter)
		assert.Equal(t, int64(5), *op.Options.Limit)
		assert.Equal(t, int64(1), *op.Options.Skip)
		assert.Equal(t, int32(2), *op.Options.BatchSize)
		assert.Equal(t, bson.D{{"_id", 1}}, op.Options.Sort)
		assert.Equal(t, readpref.PrimaryMode, ex.ReadPreference().Mode())
	})
	t.Run("match all by default", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor())
		docs, err := reactive.Collect[bson.D](ctx, testCollection(t, ex).Find())
		require.NoError(t, err)
		assert.Empty(t, docs)
		assert.Equal(t, bson.D{}, ex.ReadOperation().(*operation.Find).Filter)
	})
	t.Run("nil filter", func(t *testing.T) {
		ex := executortest.New()
		_, err := reactive.Collect[bson.D](ctx, testCollection(t, ex).Find().Filter(nil))
		assert.ErrorIs(t, err, ErrNilDocument)
		assert.Nil(t, ex.ReadOperation())
	})
	t.Run("first", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"_id", 1}})}))
		find := testCollection(t, ex).Find().Limit(10)

		doc, err := reactive.First[bson.D](ctx, find.First())
		require.NoError(t, err)
		assert.Equal(t, bson.D{{"_id", int32(1)}}, doc)
		assert.Equal(t, int64(-1), *ex.ReadOperation().(*operation.Find).Options.Limit)
		assert.Equal(t, int64(10), *find.opts.Limit)
	})
	t.Run("first of nothing", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor())
		docs, err := reactive.Collect[bson.D](ctx, testCollection(t, ex).Find().First())
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
	t.Run("cancel kills the cursor", func(t *testing.T) {
		cur := trackClose(operation.NewSliceCursor(
			[]bson.Raw{rawDoc(t, bson.D{{"_id", 1}})},
			[]bson.Raw{rawDoc(t, bson.D{{"_id", 2}})},
		))
		ex := executortest.New(cur)
		_, err := reactive.First[bson.D](ctx, testCollection(t, ex).Find())
		require.NoError(t, err)
		cur.wait(t)
	})
	t.Run("typed", func(t *testing.T) {
		type item struct {
			ID   int32  `bson:"_id"`
			Name string `bson:"name"`
		}
		ex := executortest.New(operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"_id", 7}, {"name", "seven"}})}))
		items, err := reactive.Collect[item](ctx, FindAs[item](testCollection(t, ex)))
		require.NoError(t, err)
		assert.Equal(t, []item{{ID: 7, Name: "seven"}}, items)
	})
	t.Run("decode failure", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"_id", "not a number"}})}))
		type numbered struct {
			ID int32 `bson:"_id"`
		}
		_, err := reactive.Collect[numbered](ctx, FindAs[numbered](testCollection(t, ex)))
		assert.Error(t, err)
	})
}

func TestCollectionAggregate(t *testing.T) {
	ctx := context.Background()
	pipeline := driver.Pipeline{{{"$match", bson.D{{"x", 1}}}}}

	t.Run("cursor", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"x", 1}})}))
		docs, err := reactive.Collect[bson.D](ctx, testCollection(t, ex).Aggregate(pipeline).AllowDiskUse(true).BatchSize(10))
		require.NoError(t, err)
		assert.Equal(t, []bson.D{{{"x", int32(1)}}}, docs)

		op, ok := ex.ReadOperation().(*operation.Aggregate)
		require.True(t, ok)
		assert.True(t, *op.Options.AllowDiskUse)
		assert.Equal(t, int32(10), *op.Options.BatchSize)
	})
	t.Run("out stage reads the output collection", func(t *testing.T) {
		out := append(driver.Pipeline{}, pipeline[0], bson.D{{"$out", "results"}})
		ex := executortest.New(nil, operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"x", 1}})}))
		docs, err := reactive.Collect[bson.D](ctx, testCollection(t, ex).Aggregate(out))
		require.NoError(t, err)
		assert.Equal(t, []bson.D{{{"x", int32(1)}}}, docs)

		_, ok := ex.WriteOperation().(*operation.AggregateToCollection)
		assert.True(t, ok)
		find, ok := ex.ReadOperation().(*operation.Find)
		require.True(t, ok)
		assert.Equal(t, "results", find.Collection.Name())
	})
	t.Run("out stage failure", func(t *testing.T) {
		out := driver.Pipeline{{{"$out", "results"}}}
		ex := executortest.New(assert.AnError)
		_, err := reactive.Collect[bson.D](ctx, testCollection(t, ex).Aggregate(out))
		assert.ErrorIs(t, err, assert.AnError)
		assert.Nil(t, ex.ReadOperation())
	})
	t.Run("to collection", func(t *testing.T) {
		out := driver.Pipeline{{{"$merge", bson.D{{"into", "results"}}}}}
		ex := executortest.New()
		_, err := reactive.First[Success](ctx, testCollection(t, ex).Aggregate(out).BypassDocumentValidation(true).ToCollection())
		require.NoError(t, err)
		op := ex.WriteOperation().(*operation.AggregateToCollection)
		assert.True(t, *op.Options.BypassDocumentValidation)
	})
	t.Run("to collection requires an out stage", func(t *testing.T) {
		ex := executortest.New()
		_, err := reactive.First[Success](ctx, testCollection(t, ex).Aggregate(pipeline).ToCollection())
		assert.ErrorIs(t, err, operation.ErrOutStageRequired)
		assert.Nil(t, ex.WriteOperation())
	})
	t.Run("nil pipeline", func(t *testing.T) {
		ex := executortest.New()
		_, err := reactive.Collect[bson.D](ctx, testCollection(t, ex).Aggregate(nil))
		assert.ErrorIs(t, err, ErrNilDocument)
	})
}

func TestOutCollection(t *testing.T) {
	tests := []struct {
		name     string
		pipeline interface{}
		want     string
		ok       bool
	}{
		{"no stages", driver.Pipeline{}, "", false},
		{"match only", driver.Pipeline{{{"$match", bson.D{}}}}, "", false},
		{"out name", []bson.D{{{"$out", "a"}}}, "a", true},
		{"out same database", []bson.D{{{"$out", bson.D{{"db", "db"}, {"coll", "a"}}}}}, "a", true},
		{"out other database", []bson.D{{{"$out", bson.D{{"db", "other"}, {"coll", "a"}}}}}, "", false},
		{"merge name", []bson.D{{{"$merge", "b"}}}, "b", true},
		{"merge into", []bson.D{{{"$merge", bson.D{{"into", bson.D{{"coll", "c"}}}}}}}, "c", true},
		{"unknown pipeline type", bson.A{}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := outCollection(tc.pipeline, "db")
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestCollectionReads(t *testing.T) {
	ctx := context.Background()

	t.Run("count", func(t *testing.T) {
		ex := executortest.New(int64(3))
		n, err := reactive.First(ctx, testCollection(t, ex).Count(nil))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.Equal(t, bson.D{}, ex.ReadOperation().(*operation.Count).Filter)
	})
	t.Run("estimated count", func(t *testing.T) {
		ex := executortest.New(int64(42))
		n, err := reactive.First(ctx, testCollection(t, ex).EstimatedCount())
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
	})
	t.Run("distinct", func(t *testing.T) {
		ex := executortest.New([]interface{}{"a", "b"})
		values, err := reactive.Collect(ctx, testCollection(t, ex).Distinct("name", bson.D{{"x", 1}}))
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"a", "b"}, values)
		assert.Equal(t, "name", ex.ReadOperation().(*operation.Distinct).FieldName)
	})
	t.Run("list indexes", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"name", "_id_"}})}))
		indexes, err := reactive.Collect(ctx, testCollection(t, ex).ListIndexes())
		require.NoError(t, err)
		assert.Equal(t, []bson.D{{{"name", "_id_"}}}, indexes)
	})
	t.Run("read preference", func(t *testing.T) {
		ex := executortest.New(int64(1))
		coll := testCollection(t, ex)
		secondary := coll.WithReadPreference(readpref.SecondaryPreferred())

		_, err := reactive.First(ctx, secondary.Count(nil))
		require.NoError(t, err)
		assert.Equal(t, readpref.SecondaryPreferredMode, ex.ReadPreference().Mode())
		assert.Equal(t, readpref.PrimaryMode, coll.ReadPreference().Mode())
	})
	t.Run("operation failure", func(t *testing.T) {
		ex := executortest.New(assert.AnError)
		_, err := reactive.First(ctx, testCollection(t, ex).Count(nil))
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestCollectionWrites(t *testing.T) {
	ctx := context.Background()

	t.Run("insert one", func(t *testing.T) {
		ex := executortest.New(&driver.InsertOneResult{InsertedID: 1})
		res, err := reactive.First(ctx, testCollection(t, ex).InsertOne(bson.D{{"_id", 1}}))
		require.NoError(t, err)
		assert.Equal(t, 1, res.InsertedID)
		assert.Equal(t, bson.D{{"_id", 1}}, ex.WriteOperation().(*operation.InsertOne).Document)
	})
	t.Run("insert many", func(t *testing.T) {
		ex := executortest.New(&driver.InsertManyResult{InsertedIDs: []interface{}{1, 2}})
		res, err := reactive.First(ctx, testCollection(t, ex).InsertMany([]interface{}{bson.D{{"_id", 1}}, bson.D{{"_id", 2}}}))
		require.NoError(t, err)
		assert.Len(t, res.InsertedIDs, 2)
	})
	t.Run("update many", func(t *testing.T) {
		ex := executortest.New(&driver.UpdateResult{MatchedCount: 2, ModifiedCount: 2})
		res, err := reactive.First(ctx, testCollection(t, ex).UpdateMany(bson.D{}, bson.D{{"$set", bson.D{{"x", 1}}}}))
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.ModifiedCount)
		assert.True(t, ex.WriteOperation().(*operation.Update).Many)
	})
	t.Run("delete one", func(t *testing.T) {
		ex := executortest.New(&driver.DeleteResult{DeletedCount: 1})
		res, err := reactive.First(ctx, testCollection(t, ex).DeleteOne(bson.D{{"_id", 1}}))
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.DeletedCount)
		assert.False(t, ex.WriteOperation().(*operation.Delete).Many)
	})
	t.Run("find one and update", func(t *testing.T) {
		ex := executortest.New(rawDoc(t, bson.D{{"_id", 1}, {"x", 2}}))
		doc, err := reactive.First(ctx, testCollection(t, ex).FindOneAndUpdate(bson.D{{"_id", 1}}, bson.D{{"$inc", bson.D{{"x", 1}}}},
			mongoopts.FindOneAndUpdate().SetReturnDocument(mongoopts.After)))
		require.NoError(t, err)
		assert.Equal(t, bson.D{{"_id", int32(1)}, {"x", int32(2)}}, doc)
	})
	t.Run("find one and delete of nothing", func(t *testing.T) {
		ex := executortest.New(driver.ErrNoDocuments)
		docs, err := reactive.Collect(ctx, testCollection(t, ex).FindOneAndDelete(bson.D{{"_id", 1}}))
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
	t.Run("create index", func(t *testing.T) {
		ex := executortest.New([]string{"x_1"})
		name, err := reactive.First(ctx, testCollection(t, ex).CreateIndex(bson.D{{"x", 1}}, mongoopts.Index().SetUnique(true)))
		require.NoError(t, err)
		assert.Equal(t, "x_1", name)

		op := ex.WriteOperation().(*operation.CreateIndexes)
		require.Len(t, op.Models, 1)
		assert.True(t, *op.Models[0].Options.Unique)
	})
	t.Run("drop indexes", func(t *testing.T) {
		ex := executortest.New()
		_, err := reactive.First(ctx, testCollection(t, ex).DropIndexes())
		require.NoError(t, err)
		assert.Equal(t, "*", ex.WriteOperation().(*operation.DropIndex).IndexName)
	})
	t.Run("drop", func(t *testing.T) {
		ex := executortest.New()
		s, err := reactive.First(ctx, testCollection(t, ex).Drop())
		require.NoError(t, err)
		assert.Equal(t, "SUCCESS", s.String())
	})
	t.Run("write failure", func(t *testing.T) {
		ex := executortest.New(assert.AnError)
		_, err := reactive.First(ctx, testCollection(t, ex).InsertOne(bson.D{}))
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestCollectionRejectsArguments(t *testing.T) {
	ctx := context.Background()
	ex := executortest.New()
	coll := testCollection(t, ex)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"insert one nil", func() error { _, err := reactive.First(ctx, coll.InsertOne(nil)); return err }, ErrNilDocument},
		{"insert many empty", func() error { _, err := reactive.First(ctx, coll.InsertMany(nil)); return err }, ErrEmptySlice},
		{"insert many nil element", func() error {
			_, err := reactive.First(ctx, coll.InsertMany([]interface{}{bson.D{}, nil}))
			return err
		}, ErrNilDocument},
		{"delete nil filter", func() error { _, err := reactive.First(ctx, coll.DeleteMany(nil)); return err }, ErrNilDocument},
		{"update nil update", func() error { _, err := reactive.First(ctx, coll.UpdateOne(bson.D{}, nil)); return err }, ErrNilDocument},
		{"replace nil replacement", func() error { _, err := reactive.First(ctx, coll.ReplaceOne(bson.D{}, nil)); return err }, ErrNilDocument},
		{"find one and replace nil filter", func() error {
			_, err := reactive.First(ctx, coll.FindOneAndReplace(nil, bson.D{}))
			return err
		}, ErrNilDocument},
		{"bulk write empty", func() error { _, err := reactive.First(ctx, coll.BulkWrite(nil)); return err }, ErrEmptySlice},
		{"create indexes empty", func() error { _, err := reactive.First(ctx, coll.CreateIndexes(nil)); return err }, ErrEmptySlice},
		{"create index nil keys", func() error { _, err := reactive.First(ctx, coll.CreateIndex(nil)); return err }, ErrNilDocument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.run(), tc.want)
		})
	}
	assert.Nil(t, ex.WriteOperation())
}

func TestCollectionAccessors(t *testing.T) {
	coll := testCollection(t, executortest.New())
	assert.Equal(t, "coll", coll.Name())
	assert.Equal(t, "db.coll", coll.Namespace())
	assert.Equal(t, "db", coll.Database().Name())

	reg := bson.NewRegistry()
	withReg := coll.WithRegistry(reg)
	assert.Same(t, reg, withReg.Registry())
	assert.NotSame(t, reg, coll.Registry())
	assert.Same(t, reg, withReg.WithRegistry(nil).Registry())
}

func TestCollectionInheritsDatabaseSettings(t *testing.T) {
	wc := writeconcern.Majority()
	rc := readconcern.Local()
	db := newTestClient(t, executortest.New()).Database("db").
		WithReadPreference(readpref.Secondary()).
		WithReadConcern(rc).
		WithWriteConcern(wc)

	inherited := db.Collection("coll")
	assert.Equal(t, readpref.SecondaryMode, inherited.ReadPreference().Mode())
	assert.Equal(t, rc, inherited.ReadConcern())
	assert.Equal(t, wc, inherited.WriteConcern())

	overridden := db.Collection("coll", mongoopts.Collection().SetReadPreference(readpref.Nearest()))
	assert.Equal(t, readpref.NearestMode, overridden.ReadPreference().Mode())
	assert.Equal(t, wc, overridden.WriteConcern())

	copied := overridden.WithWriteConcern(writeconcern.W1())
	assert.Equal(t, readpref.NearestMode, copied.ReadPreference().Mode())
	assert.Equal(t, rc, copied.ReadConcern())
	assert.Equal(t, writeconcern.W1(), copied.WriteConcern())
	assert.Equal(t, wc, overridden.WriteConcern())
}
