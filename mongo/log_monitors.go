// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/event"
)

// newCommandMonitor returns a monitor that logs commands, records their
// durations in set and forwards every event to next.
func newCommandMonitor(l *logrus.Entry, set *metrics.Set, next *event.CommandMonitor) *event.CommandMonitor {
	l = l.WithField("component", "command")
	return &event.CommandMonitor{
		Started: func(ctx context.Context, cse *event.CommandStartedEvent) {
			l.WithFields(logrus.Fields{
				"databaseName":       cse.DatabaseName,
				"commandName":        cse.CommandName,
				"requestId":          cse.RequestID,
				"driverConnectionId": cse.ConnectionID,
			}).Trace("Command started")
			if next != nil && next.Started != nil {
				next.Started(ctx, cse)
			}
		},
		Succeeded: func(ctx context.Context, cse *event.CommandSucceededEvent) {
			set.GetOrCreateHistogram(commandMetric("mongorx_command_duration_seconds", cse.CommandName)).
				Update(cse.Duration.Seconds())
			l.WithFields(logrus.Fields{
				"commandName":        cse.CommandName,
				"requestId":          cse.RequestID,
				"driverConnectionId": cse.ConnectionID,
				"duration":           cse.Duration,
			}).Debug("Command succeeded")
			if next != nil && next.Succeeded != nil {
				next.Succeeded(ctx, cse)
			}
		},
		Failed: func(ctx context.Context, cfe *event.CommandFailedEvent) {
			set.GetOrCreateHistogram(commandMetric("mongorx_command_duration_seconds", cfe.CommandName)).
				Update(cfe.Duration.Seconds())
			set.GetOrCreateCounter(commandMetric("mongorx_commands_failed_total", cfe.CommandName)).Inc()
			l.WithFields(logrus.Fields{
				"commandName":        cfe.CommandName,
				"requestId":          cfe.RequestID,
				"driverConnectionId": cfe.ConnectionID,
				"duration":           cfe.Duration,
				"failure":            cfe.Failure,
			}).Warn("Command failed")
			if next != nil && next.Failed != nil {
				next.Failed(ctx, cfe)
			}
		},
	}
}

func commandMetric(name, command string) string {
	return fmt.Sprintf(`%s{command=%q}`, name, command)
}
