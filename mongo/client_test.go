// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ikmak/mongo-rx-driver/internal/executortest"
	"github.com/ikmak/mongo-rx-driver/internal/operation"
	"github.com/ikmak/mongo-rx-driver/mongo/options"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// newTestClient returns a Client whose operations are answered by ex. The
// driver client is never connected.
func newTestClient(t *testing.T, ex *executortest.Executor, opts ...*options.ClientOptions) *Client {
	t.Helper()
	dc, err := driver.NewClient(mongoopts.Client().ApplyURI("mongodb://localhost:27017")) //nolint:staticcheck
	require.NoError(t, err)
	return newClientWithExecutor(dc, options.MergeClientOptions(opts...), metrics.NewSet(), ex)
}

func rawDoc(t *testing.T, v interface{}) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestClientListDatabases(t *testing.T) {
	ctx := context.Background()

	t.Run("names", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor([]bson.Raw{
			rawDoc(t, bson.D{{"name", "admin"}}),
			rawDoc(t, bson.D{{"name", "test"}}),
		}))
		names, err := reactive.Collect[string](ctx, newTestClient(t, ex).ListDatabaseNames())
		require.NoError(t, err)
		assert.Equal(t, []string{"admin", "test"}, names)

		op, ok := ex.ReadOperation().(*operation.ListDatabases)
		require.True(t, ok)
		require.NotNil(t, op.NameOnly)
		assert.True(t, *op.NameOnly)
	})
	t.Run("entry without a name", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"sizeOnDisk", 1}})}))
		_, err := reactive.Collect[string](ctx, newTestClient(t, ex).ListDatabaseNames())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "without a name")
	})
	t.Run("options", func(t *testing.T) {
		ex := executortest.New(operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"name", "test"}, {"empty", false}})}))
		c := newTestClient(t, ex)
		dbs, err := reactive.Collect[bson.D](ctx, c.ListDatabases().
			Filter(bson.D{{"name", "test"}}).
			AuthorizedDatabases(true).
			MaxTime(2*time.Second))
		require.NoError(t, err)
		assert.Equal(t, []bson.D{{{"name", "test"}, {"empty", false}}}, dbs)

		op := ex.ReadOperation().(*operation.ListDatabases)
		assert.Equal(t, bson.D{
			{"listDatabases", 1},
			{"filter", bson.D{{"name", "test"}}},
			{"authorizedDatabases", true},
			{"maxTimeMS", int64(2000)},
		}, op.Command())
		assert.Equal(t, "primary", ex.ReadPreference().Mode().String())
	})
	t.Run("nil filter", func(t *testing.T) {
		ex := executortest.New()
		_, err := reactive.Collect[bson.D](ctx, newTestClient(t, ex).ListDatabases().Filter(nil))
		assert.ErrorIs(t, err, ErrNilDocument)
		assert.Nil(t, ex.ReadOperation())
	})
}

func TestClientAdapter(t *testing.T) {
	subscriptions := 0
	adapter := reactive.AdapterFunc(func(o reactive.Observable[any]) reactive.Observable[any] {
		return reactive.ObservableFunc[any](func(ctx context.Context, s reactive.Subscriber[any]) {
			subscriptions++
			o.Subscribe(ctx, s)
		})
	})

	ex := executortest.New(int64(1), int64(2), operation.NewSliceCursor([]bson.Raw{rawDoc(t, bson.D{{"_id", 1}})}))
	c := newTestClient(t, ex, options.Client().SetObservableAdapter(adapter))
	coll := c.Database("db").Collection("coll")
	ctx := context.Background()

	_, err := reactive.First(ctx, coll.Count(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, subscriptions)

	_, err = reactive.First(ctx, coll.WithObservableAdapter(reactive.NoopAdapter{}).Count(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, subscriptions)

	_, err = reactive.First[bson.D](ctx, coll.Find())
	require.NoError(t, err)
	assert.Equal(t, 2, subscriptions)
}

func TestClientClose(t *testing.T) {
	ex := executortest.New()
	c := newTestClient(t, ex)
	ctx := context.Background()

	first := c.Close(ctx)
	assert.True(t, ex.Closed())
	assert.Equal(t, first, c.Close(ctx))
}

func TestClientWritePrometheus(t *testing.T) {
	set := metrics.NewSet()
	set.GetOrCreateCounter(`mongorx_test_total`).Inc()
	c := newTestClient(t, executortest.New())
	c.metrics = set

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), "mongorx_test_total 1")
}

func TestNewClientRejectsNil(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)
}
