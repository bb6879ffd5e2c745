// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongo exposes the MongoDB Go driver through observables.
//
// Usage starts with connecting a Client:
//
//	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
//	if err != nil { log.Fatal(err) }
//	defer client.Close(ctx)
//
// Every operation returns a cold reactive.Observable. Nothing is sent to the
// server until the observable is subscribed to and items are requested:
//
//	coll := client.Database("baz").Collection("qux")
//	docs, err := reactive.Collect(ctx, coll.Find().Filter(bson.D{{"x", 1}}).Limit(10))
//
// Cursors are read in batches as demand arrives, and cancelling a
// subscription kills the server cursor. The blocking driver calls run on a
// bounded goroutine pool owned by the client; a subscriber is never called
// concurrently with itself.
//
// Documents are decoded as bson.D unless a generic function such as FindAs or
// AggregateAs selects another type. Operations with no result emit Success.
//
// Files larger than the document size limit are stored with GridFSBucket,
// using AsyncInputStream and AsyncOutputStream to move data in and out.
package mongo
