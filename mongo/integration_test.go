// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/ikmak/mongo-rx-driver/internal/testutil"
	"github.com/ikmak/mongo-rx-driver/mongo"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

type item struct {
	ID   int    `bson:"_id"`
	Name string `bson:"name"`
}

func TestIntegrationCRUD(t *testing.T) {
	coll := testutil.Collection(t)
	ctx := context.Background()

	testutil.Insert(t, coll, item{1, "a"}, item{2, "b"}, item{3, "c"})

	count, err := reactive.First(ctx, coll.Count(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	items, err := reactive.Collect[item](ctx, mongo.FindAs[item](coll).Sort(testutil.Doc("_id", -1)).BatchSize(1))
	require.NoError(t, err)
	assert.Equal(t, []item{{3, "c"}, {2, "b"}, {1, "a"}}, items)

	updated, err := reactive.First(ctx, coll.FindOneAndUpdate(
		testutil.Doc("_id", 2),
		testutil.Doc("$set", testutil.Doc("name", "z")),
		mongoopts.FindOneAndUpdate().SetReturnDocument(mongoopts.After),
	))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{"_id", int32(2)}, {"name", "z"}}, updated)

	_, err = reactive.First(ctx, coll.FindOneAndDelete(testutil.Doc("_id", 42)))
	assert.ErrorIs(t, err, reactive.ErrNoItems)

	res, err := reactive.First(ctx, coll.DeleteMany(testutil.Doc("_id", testutil.Doc("$gte", 2))))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.DeletedCount)
}

func TestIntegrationAggregateOut(t *testing.T) {
	coll := testutil.Collection(t)
	ctx := context.Background()
	testutil.Insert(t, coll, item{1, "a"}, item{2, "b"})

	out := testutil.ColName(t) + "_out"
	pipeline := []bson.D{
		testutil.Doc("$match", testutil.Doc("_id", 2)),
		testutil.Doc("$out", out),
	}
	items, err := reactive.Collect[item](ctx, mongo.AggregateAs[item](coll, pipeline))
	require.NoError(t, err)
	assert.Equal(t, []item{{2, "b"}}, items)

	names, err := reactive.Collect(ctx, coll.Database().ListCollectionNames())
	require.NoError(t, err)
	assert.Contains(t, names, out)
}

func TestIntegrationGridFS(t *testing.T) {
	client := testutil.Client(t)
	ctx := context.Background()
	bucket := client.Database(testutil.DBName(t)).
		GridFSBucket(mongoopts.GridFSBucket().SetName(strings.ToLower(testutil.ColName(t)))).
		WithChunkSizeBytes(4)
	_, err := reactive.First(ctx, bucket.Drop())
	require.NoError(t, err)

	contents := make(map[string]string)
	for i := 0; i < 8; i++ {
		contents[fmt.Sprintf("file-%d", i)] = strings.Repeat(fmt.Sprint(i), 10+i)
	}

	names := make([]string, 0, len(contents))
	for name := range contents {
		names = append(names, name)
	}
	uploaded := make([]primitive.ObjectID, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			id, err := reactive.First(gctx, bucket.UploadFromStream(name, mongo.NewAsyncInputStream(strings.NewReader(contents[name]))))
			uploaded[i] = id
			return err
		})
	}
	require.NoError(t, g.Wait())
	ids := make(map[string]primitive.ObjectID, len(names))
	for i, name := range names {
		ids[name] = uploaded[i]
	}

	files, err := reactive.Collect[*mongo.GridFSFile](ctx, bucket.Find().Sort(testutil.Doc("filename", 1)))
	require.NoError(t, err)
	require.Len(t, files, len(contents))
	assert.Equal(t, "file-0", files[0].Filename)
	assert.Equal(t, int32(4), files[0].ChunkSize)

	for name, content := range contents {
		var buf bytes.Buffer
		n, err := reactive.First(ctx, bucket.DownloadToStream(ids[name], mongo.NewAsyncOutputStream(&buf)))
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), n)
		assert.Equal(t, content, buf.String())
	}

	_, err = reactive.First(ctx, bucket.Rename(ids["file-0"], "renamed"))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = reactive.First(ctx, bucket.DownloadToStreamByName("renamed", mongo.NewAsyncOutputStream(&buf)))
	require.NoError(t, err)
	assert.Equal(t, contents["file-0"], buf.String())

	_, err = reactive.First(ctx, bucket.Delete(ids["file-0"]))
	require.NoError(t, err)
	_, err = reactive.First(ctx, bucket.Delete(ids["file-0"]))
	assert.ErrorIs(t, err, mongo.ErrFileNotFound)
}
