// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ikmak/mongo-rx-driver/mongo/options"
)

func TestParseDocument(t *testing.T) {
	doc, err := parseDocument("filter", "")
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, doc)

	doc, err = parseDocument("filter", `{"a": {"$gt": 1}, "b": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{"a", bson.D{{"$gt", int32(1)}}}, {"b", "x"}}, doc)

	_, err = parseDocument("sort", `{"a":`)
	assert.ErrorContains(t, err, "parsing --sort")
}

func TestFileID(t *testing.T) {
	id := primitive.NewObjectID()
	assert.Equal(t, id, fileID(id.Hex()))
	assert.Equal(t, "report.pdf", fileID("report.pdf"))
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	c := &cli{out: &out}
	require.NoError(t, c.printJSON(bson.D{{"name", "a"}, {"n", 1}}))
	assert.Equal(t, "{\n  \"name\": \"a\",\n  \"n\": 1\n}\n", out.String())

	out.Reset()
	c.color = true
	require.NoError(t, c.printJSON(bson.D{{"n", 1}}))
	assert.Contains(t, out.String(), "\x1b[")
}

func TestFindRejectsInvalidFilter(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCommand(&out, &errOut)
	cmd.SetArgs([]string{"find", "db", "coll", "--filter", "{not json", "--env-file", filepath.Join(t.TempDir(), "missing.env")})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "parsing --filter")
	assert.Empty(t, out.String())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("MONGORX_APP_NAME=from-env\n"), 0o600))
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("log-level: debug\nuri: mongodb://db.example:27017\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MONGORX_APP_NAME") })

	var out bytes.Buffer
	c := &cli{out: &out, errOut: &out, v: viper.New(), configFile: configFile, envFiles: []string{envFile}}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	options.NewConfig().AddFlags(flags)
	require.NoError(t, flags.Parse([]string{"--executor-pool-size", "8"}))

	require.NoError(t, c.load(flags))
	assert.Equal(t, "mongodb://db.example:27017", c.cfg.URI)
	assert.Equal(t, "from-env", c.cfg.AppName)
	assert.Equal(t, 8, c.cfg.ExecutorPoolSize)
	assert.Equal(t, logrus.DebugLevel, c.logger.GetLevel())
	assert.NoError(t, c.close(context.Background()))
}
