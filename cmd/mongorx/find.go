// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ikmak/mongo-rx-driver/mongo"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

type findOptions struct {
	filter     string
	sort       string
	projection string
	limit      int64
	skip       int64
	batchSize  int32
}

func newFindCommand(c *cli) *cobra.Command {
	var opts findOptions

	cmd := &cobra.Command{
		Use:   "find DATABASE COLLECTION",
		Short: "Print the documents of a collection matching a filter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			find, err := opts.build()
			if err != nil {
				return err
			}
			client, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			coll := client.Database(args[0]).Collection(args[1])
			return reactive.ForEach[bson.D](cmd.Context(), find(coll), func(doc bson.D) error {
				return c.printJSON(doc)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.filter, "filter", "", "Query filter as extended JSON.")
	flags.StringVar(&opts.sort, "sort", "", "Sort document as extended JSON.")
	flags.StringVar(&opts.projection, "projection", "", "Projection document as extended JSON.")
	flags.Int64Var(&opts.limit, "limit", 0, "Maximum number of documents, 0 for all.")
	flags.Int64Var(&opts.skip, "skip", 0, "Number of documents to skip.")
	flags.Int32Var(&opts.batchSize, "batch-size", 0, "Documents per batch, 0 for the server default.")
	return cmd
}

// build parses the options and returns a function applying them to a find on
// a collection.
func (o findOptions) build() (func(*mongo.Collection) *mongo.FindObservable[bson.D], error) {
	filter, err := parseDocument("filter", o.filter)
	if err != nil {
		return nil, err
	}
	sort, err := parseDocument("sort", o.sort)
	if err != nil {
		return nil, err
	}
	projection, err := parseDocument("projection", o.projection)
	if err != nil {
		return nil, err
	}

	return func(coll *mongo.Collection) *mongo.FindObservable[bson.D] {
		find := coll.Find().Filter(filter)
		if len(sort) > 0 {
			find.Sort(sort)
		}
		if len(projection) > 0 {
			find.Projection(projection)
		}
		if o.limit > 0 {
			find.Limit(o.limit)
		}
		if o.skip > 0 {
			find.Skip(o.skip)
		}
		if o.batchSize > 0 {
			find.BatchSize(o.batchSize)
		}
		return find
	}, nil
}
