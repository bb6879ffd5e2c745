// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ikmak/mongo-rx-driver/mongo"
	"github.com/ikmak/mongo-rx-driver/mongo/options"
)

// cli holds the state shared by the subcommands.
type cli struct {
	out    io.Writer
	errOut io.Writer

	v          *viper.Viper
	configFile string
	envFiles   []string
	color      bool

	cfg    *options.Config
	logger *logrus.Logger
	client *mongo.Client
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut, v: viper.New()}

	cmd := &cobra.Command{
		Use:           "mongorx",
		Short:         "Query a MongoDB deployment through the reactive driver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd.Flags())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.close(cmd.Context())
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	options.NewConfig().AddFlags(flags)
	flags.StringVar(&c.configFile, "config", "", "Config file (json, yaml or toml).")
	flags.StringSliceVar(&c.envFiles, "env-file", nil, "Environment files to load, .env by default.")
	flags.BoolVar(&c.color, "color", false, "Colorize JSON output.")

	cmd.AddCommand(
		newDatabasesCommand(c),
		newCollectionsCommand(c),
		newFindCommand(c),
		newGridFSCommand(c),
	)
	return cmd
}

// load reads the configuration. The client is connected on first use.
func (c *cli) load(flags *pflag.FlagSet) error {
	if c.configFile != "" {
		c.v.SetConfigFile(c.configFile)
	}
	cfg, err := options.LoadConfig(c.v, flags, c.envFiles...)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	logger.SetOutput(c.errOut)
	c.cfg, c.logger = cfg, logger
	return nil
}

func (c *cli) connect(ctx context.Context) (*mongo.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	opts, err := c.cfg.ClientOptions(c.logger)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", c.cfg.URI)
	}
	c.client = client
	return client, nil
}

func (c *cli) close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close(ctx)
	c.client = nil
	return err
}
