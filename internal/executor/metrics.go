// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package executor

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

type poolMetrics struct {
	set      *metrics.Set
	rejected *metrics.Counter
}

func newPoolMetrics(set *metrics.Set, pool *ants.Pool) *poolMetrics {
	set.GetOrCreateGauge(`mongorx_executor_running_workers`, func() float64 {
		return float64(pool.Running())
	})
	set.GetOrCreateGauge(`mongorx_executor_waiting_tasks`, func() float64 {
		return float64(pool.Waiting())
	})
	return &poolMetrics{
		set:      set,
		rejected: set.GetOrCreateCounter(`mongorx_operations_rejected_total`),
	}
}

func (m *poolMetrics) submitted(name string) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`mongorx_operations_submitted_total{operation=%q}`, name)).Inc()
}

func (m *poolMetrics) finished(name string, start time.Time, err error) {
	m.set.GetOrCreateHistogram(fmt.Sprintf(`mongorx_operation_duration_seconds{operation=%q}`, name)).UpdateDuration(start)
	if err != nil && !errors.Is(err, io.EOF) {
		m.set.GetOrCreateCounter(fmt.Sprintf(`mongorx_operations_failed_total{operation=%q}`, name)).Inc()
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`mongorx_operations_completed_total{operation=%q}`, name)).Inc()
}
