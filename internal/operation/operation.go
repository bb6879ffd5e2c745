// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package operation contains the descriptors of the read and write operations
// handed to an operation executor. Each descriptor carries everything needed to
// run one blocking call against the driver.
package operation

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Operation is implemented by every descriptor.
type Operation interface {
	// Name identifies the operation in logs and metrics.
	Name() string
}

// ReadOperation reads from the server, honouring the given read preference
// where the underlying command supports one. A nil read preference keeps the
// preference the target was configured with.
type ReadOperation interface {
	Operation
	ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error)
}

// WriteOperation modifies server state.
type WriteOperation interface {
	Operation
	ExecuteWrite(ctx context.Context) (interface{}, error)
}

// HandleOperation is implemented by operations that act on a handle returned by
// an earlier operation, such as a cursor or a GridFS stream, rather than
// starting new work on the server.
type HandleOperation interface {
	Operation
	handle()
}

func collectionFor(coll *mongo.Collection, rp *readpref.ReadPref) (*mongo.Collection, error) {
	if rp == nil {
		return coll, nil
	}
	return coll.Clone(options.Collection().SetReadPreference(rp))
}
