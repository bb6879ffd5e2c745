// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"github.com/pkg/errors"
	driver "go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNilDocument is signalled by operations given a nil filter, document,
	// pipeline or update where one is required.
	ErrNilDocument = errors.New("mongo: document is nil")

	// ErrEmptySlice is signalled by operations given an empty slice of
	// documents, write models or index models.
	ErrEmptySlice = errors.New("mongo: must provide at least one element")

	// ErrCursorClosed is reported when a batch is requested from a closed cursor.
	ErrCursorClosed = errors.New("mongo: cursor is closed")

	// ErrConcurrentOperation is signalled when a GridFS stream is used while a
	// previous operation on it is still in progress.
	ErrConcurrentOperation = errors.New("mongo: the stream has an operation in progress")

	// ErrStreamClosed is signalled by operations on a GridFS stream that has
	// been closed or aborted.
	ErrStreamClosed = errors.New("mongo: the stream is closed")

	// ErrFileNotFound is signalled when no GridFS file matches the requested id or name.
	ErrFileNotFound = errors.New("mongo: file not found")
)

var (
	errNoDocuments     = driver.ErrNoDocuments
	errStreamNotOpened = errors.New("mongo: GridFS stream could not be opened")
)

// Success is emitted by operations that complete without a result.
type Success struct{}

func (Success) String() string { return "SUCCESS" }
