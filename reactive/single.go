// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package reactive

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// SingleResultCallback receives the outcome of an asynchronous operation.
type SingleResultCallback[T any] func(result T, err error)

// lifecycle ties a subscription to the context it was subscribed with.
type lifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

func newLifecycle(parent context.Context, onDone func()) lifecycle {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return lifecycle{
		ctx:    ctx,
		cancel: cancel,
		stop:   context.AfterFunc(parent, onDone),
	}
}

func (l lifecycle) release() {
	l.stop()
	l.cancel()
}

// FromSingleResult returns an Observable that starts fn on the first positive
// request and emits the value fn reports through its callback, followed by
// completion. An error is signalled with OnError, except ErrNoItems which
// completes the stream without an item.
//
// fn may invoke the callback synchronously or from another goroutine. The
// context handed to fn is cancelled when the subscription ends.
func FromSingleResult[T any](fn func(ctx context.Context, callback SingleResultCallback[T])) Observable[T] {
	return ObservableFunc[T](func(ctx context.Context, subscriber Subscriber[T]) {
		sub := &singleResultSubscription[T]{subscriber: subscriber, fn: fn}
		sub.lifecycle = newLifecycle(ctx, sub.Cancel)
		subscriber.OnSubscribe(sub)
	})
}

type singleResultSubscription[T any] struct {
	lifecycle
	subscriber Subscriber[T]
	fn         func(context.Context, SingleResultCallback[T])

	mu        sync.Mutex
	started   bool
	done      bool
	cancelled bool
}

func (s *singleResultSubscription[T]) Request(n int64) {
	if n == 0 {
		return
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	if n < 0 {
		s.done = true
		s.mu.Unlock()
		s.release()
		s.subscriber.OnError(ErrInvalidDemand)
		return
	}
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.fn(s.ctx, s.onResult)
}

func (s *singleResultSubscription[T]) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.done = true
	s.mu.Unlock()
	s.release()
}

func (s *singleResultSubscription[T]) onResult(result T, err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.release()

	switch {
	case errors.Is(err, ErrNoItems):
		s.subscriber.OnComplete()
	case err != nil:
		s.subscriber.OnError(err)
	default:
		s.subscriber.OnNext(result)
		s.mu.Lock()
		cancelled := s.cancelled
		s.mu.Unlock()
		if !cancelled {
			s.subscriber.OnComplete()
		}
	}
}
