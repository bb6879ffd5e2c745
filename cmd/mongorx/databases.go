// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/ikmak/mongo-rx-driver/reactive"
)

func newDatabasesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "dbs",
		Aliases: []string{"databases"},
		Short:   "List database names",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			return reactive.ForEach(cmd.Context(), client.ListDatabaseNames(), func(name string) error {
				c.println(name)
				return nil
			})
		},
	}
}

func newCollectionsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "collections DATABASE",
		Short: "List the collection names of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			names := client.Database(args[0]).ListCollectionNames()
			return reactive.ForEach(cmd.Context(), names, func(name string) error {
				c.println(name)
				return nil
			})
		},
	}
}
