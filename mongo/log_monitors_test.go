// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/event"
)

func TestCommandMonitor(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	set := metrics.NewSet()

	var forwarded []string
	next := &event.CommandMonitor{
		Started:   func(context.Context, *event.CommandStartedEvent) { forwarded = append(forwarded, "started") },
		Succeeded: func(context.Context, *event.CommandSucceededEvent) { forwarded = append(forwarded, "succeeded") },
		Failed:    func(context.Context, *event.CommandFailedEvent) { forwarded = append(forwarded, "failed") },
	}
	mon := newCommandMonitor(logrus.NewEntry(logger), set, next)
	ctx := context.Background()

	mon.Started(ctx, &event.CommandStartedEvent{DatabaseName: "db", CommandName: "find", RequestID: 1})
	mon.Succeeded(ctx, &event.CommandSucceededEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{CommandName: "find", RequestID: 1, Duration: 2 * time.Millisecond},
	})
	mon.Failed(ctx, &event.CommandFailedEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{CommandName: "insert", RequestID: 2, Duration: time.Millisecond},
		Failure:              "duplicate key",
	})

	assert.Equal(t, []string{"started", "succeeded", "failed"}, forwarded)

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.TraceLevel, entries[0].Level)
	assert.Equal(t, "command", entries[0].Data["component"])
	assert.Equal(t, logrus.DebugLevel, entries[1].Level)
	assert.Equal(t, logrus.WarnLevel, entries[2].Level)
	assert.Equal(t, "Command failed", entries[2].Message)
	assert.Equal(t, "insert", entries[2].Data["commandName"])

	var buf bytes.Buffer
	set.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `mongorx_command_duration_seconds_count{command="find"} 1`)
	assert.Contains(t, buf.String(), `mongorx_commands_failed_total{command="insert"} 1`)
}

func TestCommandMonitorWithoutNext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mon := newCommandMonitor(logrus.NewEntry(logger), metrics.NewSet(), nil)
	assert.NotPanics(t, func() {
		mon.Started(context.Background(), &event.CommandStartedEvent{CommandName: "ping"})
		mon.Failed(context.Background(), &event.CommandFailedEvent{})
	})
}
