// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package reactive

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// BatchCursor is an asynchronous cursor returning results in batches.
type BatchCursor[T any] interface {
	// Next fetches the next batch and reports it through callback. The callback
	// receives io.EOF once the cursor is exhausted. A batch may be empty when the
	// cursor is still alive but had nothing to return.
	Next(ctx context.Context, callback func(batch []T, err error))

	// Close releases the cursor. It must be safe to call more than once.
	Close()
}

// FromBatchCursor returns an Observable that opens a cursor with open on the
// first positive request and emits its results as they are requested.
//
// Batches are fetched one at a time and only while there is outstanding demand
// and no buffered results left, so a slow subscriber never causes more than one
// batch to be held in memory.
func FromBatchCursor[T any](open func(ctx context.Context, callback SingleResultCallback[BatchCursor[T]])) Observable[T] {
	return ObservableFunc[T](func(ctx context.Context, subscriber Subscriber[T]) {
		sub := &cursorSubscription[T]{subscriber: subscriber, open: open}
		sub.lifecycle = newLifecycle(ctx, sub.Cancel)
		subscriber.OnSubscribe(sub)
	})
}

type cursorSubscription[T any] struct {
	lifecycle
	subscriber Subscriber[T]
	open       func(context.Context, SingleResultCallback[BatchCursor[T]])

	mu         sync.Mutex
	cursor     BatchCursor[T]
	buffer     []T
	demand     int64
	err        error
	exhausted  bool
	pending    bool // an open or next call is in flight
	draining   bool // a goroutine is delivering signals
	cancelled  bool
	terminated bool
}

func (s *cursorSubscription[T]) Request(n int64) {
	if n == 0 {
		return
	}

	s.mu.Lock()
	if s.cancelled || s.terminated {
		s.mu.Unlock()
		return
	}
	if n < 0 {
		s.err = ErrInvalidDemand
		s.buffer = nil
	} else {
		s.demand = addDemand(s.demand, n)
	}
	s.mu.Unlock()

	s.drain()
}

func (s *cursorSubscription[T]) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.buffer = nil
	cursor := s.cursor
	s.cursor = nil
	s.mu.Unlock()

	if cursor != nil {
		cursor.Close()
	}
	s.release()
}

func (s *cursorSubscription[T]) onOpen(cursor BatchCursor[T], err error) {
	s.mu.Lock()
	s.pending = false
	if err == nil && (s.cancelled || s.terminated) {
		s.mu.Unlock()
		cursor.Close()
		return
	}
	if err != nil {
		s.err = err
	} else {
		s.cursor = cursor
	}
	s.mu.Unlock()

	s.drain()
}

func (s *cursorSubscription[T]) onBatch(batch []T, err error) {
	s.mu.Lock()
	s.pending = false
	switch {
	case errors.Is(err, io.EOF):
		s.exhausted = true
	case err != nil:
		s.err = err
		s.buffer = nil
	case !s.cancelled:
		s.buffer = append(s.buffer, batch...)
	}
	s.mu.Unlock()

	s.drain()
}

// drain delivers buffered items against outstanding demand, signals termination
// and starts the next fetch. Only one goroutine drains at a time; callers that
// find a drain in progress return immediately and the draining goroutine picks
// up their state change when it re-acquires the lock.
func (s *cursorSubscription[T]) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true

	for {
		if s.cancelled || s.terminated {
			s.draining = false
			s.mu.Unlock()
			return
		}

		for s.demand > 0 && len(s.buffer) > 0 {
			var zero T
			item := s.buffer[0]
			s.buffer[0] = zero
			s.buffer = s.buffer[1:]
			if s.demand != Unbounded {
				s.demand--
			}

			s.mu.Unlock()
			s.subscriber.OnNext(item)
			s.mu.Lock()

			if s.cancelled {
				s.draining = false
				s.mu.Unlock()
				return
			}
		}

		if len(s.buffer) == 0 && (s.err != nil || s.exhausted) {
			s.terminated = true
			s.draining = false
			err := s.err
			cursor := s.cursor
			s.cursor = nil
			s.mu.Unlock()

			if cursor != nil {
				cursor.Close()
			}
			s.release()
			if err != nil {
				s.subscriber.OnError(err)
			} else {
				s.subscriber.OnComplete()
			}
			return
		}

		if s.demand > 0 && len(s.buffer) == 0 && !s.pending {
			s.pending = true
			cursor := s.cursor
			s.mu.Unlock()

			if cursor == nil {
				s.open(s.ctx, s.onOpen)
			} else {
				cursor.Next(s.ctx, s.onBatch)
			}

			s.mu.Lock()
			continue
		}

		s.draining = false
		s.mu.Unlock()
		return
	}
}
