// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"github.com/pkg/errors"
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

// Database is a handle to a MongoDB database. It is safe for concurrent use by
// multiple goroutines. The With methods return modified copies.
type Database struct {
	client *Client
	db     *driver.Database
	target target
}

func newDatabase(client *Client, name string, opts ...*mongoopts.DatabaseOptions) *Database {
	dbOpts := mongoopts.MergeDatabaseOptions(opts...)
	t := client.target
	if dbOpts.Registry != nil {
		t.registry = dbOpts.Registry
	}
	t.log = t.log.WithField("database", name)
	return &Database{
		client: client,
		db:     client.client.Database(name, dbOpts),
		target: t,
	}
}

// Client returns the Client the database was created from.
func (d *Database) Client() *Client {
	return d.client
}

// Name returns the name of the database.
func (d *Database) Name() string {
	return d.db.Name()
}

// Driver returns the wrapped driver database.
func (d *Database) Driver() *driver.Database {
	return d.db
}

// ObservableAdapter returns the adapter applied to the observables of the database.
func (d *Database) ObservableAdapter() reactive.Adapter {
	return d.target.adapter
}

// Registry returns the registry used to encode and decode documents.
func (d *Database) Registry() *bsoncodec.Registry {
	return d.target.registry
}

// ReadPreference returns the read preference of the database.
func (d *Database) ReadPreference() *readpref.ReadPref {
	return d.db.ReadPreference()
}

// ReadConcern returns the read concern of the database.
func (d *Database) ReadConcern() *readconcern.ReadConcern {
	return d.db.ReadConcern()
}

// WriteConcern returns the write concern of the database.
func (d *Database) WriteConcern() *writeconcern.WriteConcern {
	return d.db.WriteConcern()
}

// WithObservableAdapter returns a copy of the database using a.
func (d *Database) WithObservableAdapter(a reactive.Adapter) *Database {
	cp := *d
	cp.target.adapter = a
	return &cp
}

// WithRegistry returns a copy of the database using reg. A nil registry is ignored.
func (d *Database) WithRegistry(reg *bsoncodec.Registry) *Database {
	return d.with(func(o *mongoopts.DatabaseOptions) {
		if reg != nil {
			o.SetRegistry(reg)
		}
	})
}

// WithReadPreference returns a copy of the database using rp.
func (d *Database) WithReadPreference(rp *readpref.ReadPref) *Database {
	return d.with(func(o *mongoopts.DatabaseOptions) { o.SetReadPreference(rp) })
}

// WithReadConcern returns a copy of the database using rc.
func (d *Database) WithReadConcern(rc *readconcern.ReadConcern) *Database {
	return d.with(func(o *mongoopts.DatabaseOptions) { o.SetReadConcern(rc) })
}

// WithWriteConcern returns a copy of the database using wc.
func (d *Database) WithWriteConcern(wc *writeconcern.WriteConcern) *Database {
	return d.with(func(o *mongoopts.DatabaseOptions) { o.SetWriteConcern(wc) })
}

func (d *Database) with(fn func(*mongoopts.DatabaseOptions)) *Database {
	opts := mongoopts.Database().
		SetReadPreference(d.db.ReadPreference()).
		SetReadConcern(d.db.ReadConcern()).
		SetWriteConcern(d.db.WriteConcern()).
		SetRegistry(d.target.registry)
	fn(opts)

	cp := *d
	cp.db = d.client.client.Database(d.Name(), opts)
	cp.target.registry = opts.Registry
	return &cp
}

// Collection returns a handle for the collection with the given name.
func (d *Database) Collection(name string, opts ...*mongoopts.CollectionOptions) *Collection {
	return newCollection(d, name, opts...)
}

// RunCommand returns an Observable running cmd on the primary and emitting its reply.
func (d *Database) RunCommand(cmd interface{}) reactive.Observable[bson.D] {
	return RunCommandAs[bson.D](d, cmd, nil)
}

// RunCommandWithReadPreference returns an Observable running cmd on a server
// selected with rp and emitting its reply.
func (d *Database) RunCommandWithReadPreference(cmd interface{}, rp *readpref.ReadPref) reactive.Observable[bson.D] {
	return RunCommandAs[bson.D](d, cmd, rp)
}

// RunCommandAs is RunCommandWithReadPreference decoding the reply into T. A
// nil rp selects the primary.
func RunCommandAs[T any](d *Database, cmd interface{}, rp *readpref.ReadPref) reactive.Observable[T] {
	if cmd == nil {
		return adapt(d.target, failed[T](ErrNilDocument))
	}
	if rp == nil {
		rp = readpref.Primary()
	}
	return adapt(d.target, readDocument[T](d.target, &operation.RunCommand{Database: d.db, Command: cmd}, rp))
}

// Drop returns an Observable dropping the database.
func (d *Database) Drop() reactive.Observable[Success] {
	return adapt(d.target, writeSuccess(d.target, &operation.DropDatabase{Database: d.db}))
}

// ListCollectionNames returns an Observable emitting the name of every collection.
func (d *Database) ListCollectionNames() reactive.Observable[string] {
	o := ListCollectionsAs[bson.Raw](d).NameOnly(true).observable()
	return adapt(d.target, reactive.Map(o, collectionName))
}

func collectionName(doc bson.Raw) (string, error) {
	name, ok := doc.Lookup("name").StringValueOK()
	if !ok {
		return "", errors.New("mongo: listCollections returned a collection without a name")
	}
	return name, nil
}

// ListCollections returns an Observable emitting the specification of every collection.
func (d *Database) ListCollections() *ListCollectionsObservable[bson.D] {
	return ListCollectionsAs[bson.D](d)
}

// ListCollectionsAs is ListCollections decoding the collection specifications into T.
func ListCollectionsAs[T any](d *Database) *ListCollectionsObservable[T] {
	return &ListCollectionsObservable[T]{
		database: d,
		op:       operation.ListCollections{Database: d.db, Options: mongoopts.ListCollections()},
	}
}

// CreateCollection returns an Observable creating a collection explicitly, as
// needed for capped collections or collections with validation rules.
func (d *Database) CreateCollection(name string, opts ...*mongoopts.CreateCollectionOptions) reactive.Observable[Success] {
	return adapt(d.target, writeSuccess(d.target, &operation.CreateCollection{
		Database:       d.db,
		CollectionName: name,
		Options:        mongoopts.MergeCreateCollectionOptions(opts...),
	}))
}

// GridFSBucket returns a handle for a GridFS bucket in the database.
func (d *Database) GridFSBucket(opts ...*mongoopts.BucketOptions) *GridFSBucket {
	return newGridFSBucket(d, opts...)
}
