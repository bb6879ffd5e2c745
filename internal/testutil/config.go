// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testutil connects integration tests to the deployment named by the
// MONGODB_URI environment variable.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ikmak/mongo-rx-driver/mongo"
	"github.com/ikmak/mongo-rx-driver/mongo/options"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

// connectTimeout bounds the initial ping; a deployment that does not answer in
// time makes the integration tests skip.
const connectTimeout = 5 * time.Second

var (
	liveClient     *mongo.Client
	liveClientOnce sync.Once
	liveClientErr  error
)

// AddOptionsToURI appends connection string options to a URI.
func AddOptionsToURI(uri string, opts ...string) string {
	if !strings.ContainsRune(uri, '?') {
		if uri[len(uri)-1] != '/' {
			uri += "/"
		}

		uri += "?"
	} else {
		uri += "&"
	}

	for _, opt := range opts {
		uri += opt
	}

	return uri
}

// AddTLSConfigToURI checks for the environmental variable indicating that the tests are being run
// on an SSL-enabled server, and if so, returns a new URI with the necessary configuration.
func AddTLSConfigToURI(uri string) string {
	caFile := os.Getenv("MONGORX_CA_FILE")
	if len(caFile) == 0 {
		return uri
	}

	return AddOptionsToURI(uri, "tls=true&tlsCAFile=", caFile)
}

// URI returns the connection string of the test deployment.
func URI() string {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	return AddTLSConfigToURI(uri)
}

// Integration should be called at the beginning of integration tests to ensure
// that they are skipped if integration testing is turned off.
func Integration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// Client returns a client connected to the test deployment, shared by every
// test of the package. The test is skipped when the deployment cannot be
// reached. The test database is dropped when the client is first created.
func Client(t *testing.T) *mongo.Client {
	t.Helper()
	Integration(t)

	liveClientOnce.Do(func() {
		liveClient, liveClientErr = connect(t)
	})
	if liveClientErr != nil {
		t.Skipf("no deployment available at %s: %v", URI(), liveClientErr)
	}
	return liveClient
}

func connect(t *testing.T) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	opts := options.Client().
		ApplyURI(URI()).
		SetLogger(logger).
		SetCommandMonitoring(true)
	opts.Driver.SetServerSelectionTimeout(connectTimeout)

	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Driver().Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	if _, err := reactive.First(ctx, c.Database(DBName(t)).Drop()); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

// DBName gets the globally configured database name.
func DBName(t *testing.T) string {
	if db := os.Getenv("MONGORX_TEST_DB"); db != "" {
		return db
	}
	return fmt.Sprintf("mongorx-%d", os.Getpid())
}

// ColName gets a collection name that should be unique to the currently
// executing test.
func ColName(t *testing.T) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
}

// Collection returns an empty collection for the currently executing test.
func Collection(t *testing.T) *mongo.Collection {
	t.Helper()
	coll := Client(t).Database(DBName(t)).Collection(ColName(t))
	if _, err := reactive.First(context.Background(), coll.Drop()); err != nil {
		t.Fatalf("dropping %s: %v", coll.Namespace(), err)
	}
	return coll
}

// Insert inserts docs into coll and fails the test on error.
func Insert(t *testing.T, coll *mongo.Collection, docs ...interface{}) {
	t.Helper()
	if _, err := reactive.First(context.Background(), coll.InsertMany(docs)); err != nil {
		t.Fatalf("inserting into %s: %v", coll.Namespace(), err)
	}
}

// Doc is shorthand for a single element bson.D.
func Doc(key string, value interface{}) bson.D {
	return bson.D{{Key: key, Value: value}}
}
