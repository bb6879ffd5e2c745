// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/ikmak/mongo-rx-driver/mongo"
	"github.com/ikmak/mongo-rx-driver/reactive"
)

type gridfsOptions struct {
	bucket    string
	chunkSize int32
}

func newGridFSCommand(c *cli) *cobra.Command {
	opts := &gridfsOptions{}

	cmd := &cobra.Command{
		Use:   "gridfs",
		Short: "Manage the files of a GridFS bucket",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.bucket, "bucket", mongo.DefaultGridFSBucketName, "Bucket name.")
	flags.Int32Var(&opts.chunkSize, "chunk-size", mongo.DefaultGridFSChunkSize, "Chunk size of uploaded files in bytes.")

	cmd.AddCommand(
		newGridFSPutCommand(c, opts),
		newGridFSGetCommand(c, opts),
		newGridFSListCommand(c, opts),
		newGridFSRemoveCommand(c, opts),
	)
	return cmd
}

func (c *cli) bucket(ctx context.Context, db string, opts *gridfsOptions) (*mongo.GridFSBucket, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	bucketOpts := mongoopts.GridFSBucket().SetName(opts.bucket).SetChunkSizeBytes(opts.chunkSize)
	return client.Database(db).GridFSBucket(bucketOpts), nil
}

func newGridFSPutCommand(c *cli, opts *gridfsOptions) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "put DATABASE FILE...",
		Short: "Upload local files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := c.bucket(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return c.upload(cmd.Context(), bucket, args[1:], parallel)
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 4, "Number of files uploaded at once.")
	return cmd
}

// upload uploads every path, at most parallel at a time, and prints the id of
// each file once it is stored.
func (c *cli) upload(ctx context.Context, bucket *mongo.GridFSBucket, paths []string, parallel int) error {
	ids := make([]primitive.ObjectID, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			name := filepath.Base(path)
			id, err := reactive.First(ctx, bucket.UploadFromStream(name, mongo.NewAsyncInputStream(f)))
			if err != nil {
				return errors.Wrapf(err, "uploading %s", path)
			}
			c.logger.WithFields(logrus.Fields{"file": name, "id": id.Hex()}).Debug("Uploaded file")
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, path := range paths {
		c.println(ids[i].Hex(), filepath.Base(path))
	}
	return nil
}

func newGridFSGetCommand(c *cli, opts *gridfsOptions) *cobra.Command {
	var (
		output   string
		revision int32
	)

	cmd := &cobra.Command{
		Use:   "get DATABASE FILENAME",
		Short: "Download a file by name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := c.bucket(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			var w io.Writer = c.out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			nameOpts := mongoopts.GridFSName().SetRevision(revision)
			n, err := reactive.First(cmd.Context(), bucket.DownloadToStreamByName(args[1], mongo.NewAsyncOutputStream(w), nameOpts))
			if err != nil {
				return errors.Wrapf(err, "downloading %s", args[1])
			}
			c.logger.WithField("bytes", n).Debug("Downloaded file")
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of standard output.")
	cmd.Flags().Int32Var(&revision, "revision", -1, "Revision to download: 0 is the first, -1 the most recent.")
	return cmd
}

func newGridFSListCommand(c *cli, opts *gridfsOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:     "ls DATABASE",
		Aliases: []string{"list"},
		Short:   "List the files of the bucket",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseDocument("filter", filter)
			if err != nil {
				return err
			}
			bucket, err := c.bucket(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			files := bucket.Find().Filter(doc).Sort(bson.D{{Key: "filename", Value: 1}})
			return reactive.ForEach[*mongo.GridFSFile](cmd.Context(), files, func(f *mongo.GridFSFile) error {
				return c.printJSON(f)
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Filter on the files collection as extended JSON.")
	return cmd
}

func newGridFSRemoveCommand(c *cli, opts *gridfsOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm DATABASE ID...",
		Aliases: []string{"remove"},
		Short:   "Delete files by id",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := c.bucket(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			var failed bool
			for _, arg := range args[1:] {
				if _, err := reactive.First(cmd.Context(), bucket.Delete(fileID(arg))); err != nil {
					c.logger.WithError(err).WithField("id", arg).Error("Deleting file")
					failed = true
					continue
				}
				c.println(arg)
			}
			if failed {
				return errors.New("some files could not be deleted")
			}
			return nil
		},
	}
}

// fileID interprets s as an ObjectID when it is one and as a string otherwise.
func fileID(s string) interface{} {
	if id, err := primitive.ObjectIDFromHex(s); err == nil {
		return id
	}
	return s
}
