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

// Just returns an Observable emitting items in order, respecting demand.
func Just[T any](items ...T) Observable[T] {
	return FromBatchCursor[T](func(_ context.Context, callback SingleResultCallback[BatchCursor[T]]) {
		callback(&sliceCursor[T]{batches: [][]T{items}}, nil)
	})
}

// Empty returns an Observable that completes without emitting.
func Empty[T any]() Observable[T] {
	return FromSingleResult[T](func(_ context.Context, callback SingleResultCallback[T]) {
		var zero T
		callback(zero, ErrNoItems)
	})
}

// Error returns an Observable that fails with err once requested.
func Error[T any](err error) Observable[T] {
	return FromSingleResult[T](func(_ context.Context, callback SingleResultCallback[T]) {
		var zero T
		callback(zero, err)
	})
}

// NewSliceCursor returns a BatchCursor over the given batches.
func NewSliceCursor[T any](batches ...[]T) BatchCursor[T] {
	return &sliceCursor[T]{batches: batches}
}

type sliceCursor[T any] struct {
	mu      sync.Mutex
	batches [][]T
	closed  bool
}

func (c *sliceCursor[T]) Next(_ context.Context, callback func([]T, error)) {
	c.mu.Lock()
	if c.closed || len(c.batches) == 0 {
		c.mu.Unlock()
		callback(nil, io.EOF)
		return
	}
	batch := c.batches[0]
	c.batches = c.batches[1:]
	c.mu.Unlock()
	callback(batch, nil)
}

func (c *sliceCursor[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.batches = nil
	c.mu.Unlock()
}

// Map returns an Observable emitting fn applied to every item of o. An error
// from fn cancels o and fails the stream.
func Map[T, U any](o Observable[T], fn func(T) (U, error)) Observable[U] {
	return ObservableFunc[U](func(ctx context.Context, s Subscriber[U]) {
		o.Subscribe(ctx, &mapSubscriber[T, U]{s: s, fn: fn})
	})
}

type mapSubscriber[T, U any] struct {
	s  Subscriber[U]
	fn func(T) (U, error)

	mu   sync.Mutex
	sub  Subscription
	done bool
}

func (m *mapSubscriber[T, U]) OnSubscribe(sub Subscription) {
	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
	m.s.OnSubscribe(sub)
}

func (m *mapSubscriber[T, U]) OnNext(item T) {
	if m.isDone() {
		return
	}
	v, err := m.fn(item)
	if err != nil {
		m.mu.Lock()
		m.done = true
		sub := m.sub
		m.mu.Unlock()
		sub.Cancel()
		m.s.OnError(err)
		return
	}
	m.s.OnNext(v)
}

func (m *mapSubscriber[T, U]) OnError(err error) {
	if m.isDone() {
		return
	}
	m.s.OnError(err)
}

func (m *mapSubscriber[T, U]) OnComplete() {
	if m.isDone() {
		return
	}
	m.s.OnComplete()
}

func (m *mapSubscriber[T, U]) isDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Emitter hands items to the subscriber of an Observable built with Create.
type Emitter[T any] interface {
	// Emit delivers item once the subscriber has requested it. It blocks while
	// there is no outstanding demand and returns an error once the subscription
	// has been cancelled.
	Emit(item T) error
}

// Create returns an Observable running fn on its own goroutine after the first
// positive request. The stream completes when fn returns nil and fails with the
// error fn returns otherwise. fn should stop once Emit reports an error.
func Create[T any](fn func(ctx context.Context, e Emitter[T]) error) Observable[T] {
	return ObservableFunc[T](func(ctx context.Context, s Subscriber[T]) {
		sub := &emitterSubscription[T]{subscriber: s, fn: fn}
		sub.cond = sync.NewCond(&sub.mu)
		sub.lifecycle = newLifecycle(ctx, sub.Cancel)
		s.OnSubscribe(sub)
	})
}

type emitterSubscription[T any] struct {
	lifecycle
	subscriber Subscriber[T]
	fn         func(context.Context, Emitter[T]) error

	mu       sync.Mutex
	cond     *sync.Cond
	demand   int64
	started  bool
	done     bool
	emitting bool

	// pending is an error signalled while OnNext was running; Emit delivers it.
	pending error
}

func (e *emitterSubscription[T]) Request(n int64) {
	if n == 0 {
		return
	}

	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	if n < 0 {
		e.done = true
		e.cond.Broadcast()
		emitting := e.emitting
		if emitting {
			e.pending = ErrInvalidDemand
		}
		e.mu.Unlock()
		e.release()
		if !emitting {
			e.subscriber.OnError(ErrInvalidDemand)
		}
		return
	}
	e.demand = addDemand(e.demand, n)
	e.cond.Broadcast()
	start := !e.started
	e.started = true
	e.mu.Unlock()

	if start {
		go e.run()
	}
}

func (e *emitterSubscription[T]) Cancel() {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	e.done = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.release()
}

func (e *emitterSubscription[T]) Emit(item T) error {
	e.mu.Lock()
	for e.demand == 0 && !e.done {
		e.cond.Wait()
	}
	if e.done {
		e.mu.Unlock()
		return context.Canceled
	}
	if e.demand != Unbounded {
		e.demand--
	}
	e.emitting = true
	e.mu.Unlock()

	e.subscriber.OnNext(item)

	e.mu.Lock()
	e.emitting = false
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	if pending != nil {
		e.subscriber.OnError(pending)
		return pending
	}
	return nil
}

func (e *emitterSubscription[T]) run() {
	err := e.fn(e.ctx, e)

	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	e.done = true
	e.mu.Unlock()
	e.release()

	if err != nil && !errors.Is(err, io.EOF) {
		e.subscriber.OnError(err)
		return
	}
	e.subscriber.OnComplete()
}
