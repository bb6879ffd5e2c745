// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// RunCommand runs an arbitrary command against a database.
type RunCommand struct {
	Database *mongo.Database
	Command  interface{}
}

// Name implements Operation.
func (*RunCommand) Name() string { return "runCommand" }

// ExecuteRead implements ReadOperation.
func (r *RunCommand) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	opts := options.RunCmd()
	if rp != nil {
		opts.SetReadPreference(rp)
	}
	return r.Database.RunCommand(ctx, r.Command, opts).Raw()
}

// ListCollections lists the collections of a database.
type ListCollections struct {
	Database *mongo.Database
	Filter   interface{}
	Options  *options.ListCollectionsOptions
	MaxTime  time.Duration
}

// Name implements Operation.
func (*ListCollections) Name() string { return "listCollections" }

// ExecuteRead implements ReadOperation. The listCollections command always
// runs on the primary.
func (l *ListCollections) ExecuteRead(ctx context.Context, _ *readpref.ReadPref) (interface{}, error) {
	if l.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.MaxTime)
		defer cancel()
	}

	filter := l.Filter
	if filter == nil {
		filter = bson.D{}
	}
	cur, err := l.Database.ListCollections(ctx, filter, l.Options)
	if err != nil {
		return nil, err
	}
	return NewDriverCursor(cur), nil
}

// ListDatabases lists the databases of a deployment. It runs the listDatabases
// command directly so the reply documents reach the caller unmodified.
type ListDatabases struct {
	Client              *mongo.Client
	Filter              interface{}
	NameOnly            *bool
	AuthorizedDatabases *bool
	MaxTime             time.Duration
}

// Name implements Operation.
func (*ListDatabases) Name() string { return "listDatabases" }

// Command returns the listDatabases command document.
func (l *ListDatabases) Command() bson.D {
	cmd := bson.D{{Key: "listDatabases", Value: 1}}
	if l.Filter != nil {
		cmd = append(cmd, bson.E{Key: "filter", Value: l.Filter})
	}
	if l.NameOnly != nil {
		cmd = append(cmd, bson.E{Key: "nameOnly", Value: *l.NameOnly})
	}
	if l.AuthorizedDatabases != nil {
		cmd = append(cmd, bson.E{Key: "authorizedDatabases", Value: *l.AuthorizedDatabases})
	}
	if l.MaxTime > 0 {
		cmd = append(cmd, bson.E{Key: "maxTimeMS", Value: l.MaxTime.Milliseconds()})
	}
	return cmd
}

// ExecuteRead implements ReadOperation.
func (l *ListDatabases) ExecuteRead(ctx context.Context, rp *readpref.ReadPref) (interface{}, error) {
	opts := options.RunCmd()
	if rp != nil {
		opts.SetReadPreference(rp)
	}
	reply, err := l.Client.Database("admin").RunCommand(ctx, l.Command(), opts).Raw()
	if err != nil {
		return nil, err
	}

	val, err := reply.LookupErr("databases")
	if err != nil {
		return nil, errors.Wrap(err, "listDatabases reply")
	}
	arr, ok := val.ArrayOK()
	if !ok {
		return nil, errors.Errorf("listDatabases reply: databases is a %s, not an array", val.Type)
	}
	values, err := arr.Values()
	if err != nil {
		return nil, errors.Wrap(err, "listDatabases reply")
	}

	docs := make([]bson.Raw, 0, len(values))
	for _, v := range values {
		doc, ok := v.DocumentOK()
		if !ok {
			return nil, errors.Errorf("listDatabases reply: database entry is a %s, not a document", v.Type)
		}
		docs = append(docs, cloneRaw(doc))
	}
	return NewSliceCursor(docs), nil
}

// DropDatabase drops a database.
type DropDatabase struct {
	Database *mongo.Database
}

// Name implements Operation.
func (*DropDatabase) Name() string { return "dropDatabase" }

// ExecuteWrite implements WriteOperation.
func (d *DropDatabase) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return nil, d.Database.Drop(ctx)
}

// CreateCollection creates a collection explicitly.
type CreateCollection struct {
	Database       *mongo.Database
	CollectionName string
	Options        *options.CreateCollectionOptions
}

// Name implements Operation.
func (*CreateCollection) Name() string { return "create" }

// ExecuteWrite implements WriteOperation.
func (c *CreateCollection) ExecuteWrite(ctx context.Context) (interface{}, error) {
	return nil, c.Database.CreateCollection(ctx, c.CollectionName, c.Options)
}
