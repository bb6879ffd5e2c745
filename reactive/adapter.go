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

// Adapter transforms every Observable handed out by a client, database,
// collection or GridFS bucket. It can be used to attach logging, switch the
// goroutine signals are delivered on, or add retries.
type Adapter interface {
	Adapt(o Observable[any]) Observable[any]
}

// AdapterFunc implements Adapter with a function.
type AdapterFunc func(Observable[any]) Observable[any]

// Adapt calls f.
func (f AdapterFunc) Adapt(o Observable[any]) Observable[any] {
	return f(o)
}

// NoopAdapter returns observables unchanged.
type NoopAdapter struct{}

// Adapt returns o.
func (NoopAdapter) Adapt(o Observable[any]) Observable[any] {
	return o
}

// Adapt applies a to o. Items produced by the adapted observable that are not
// of type T fail the stream.
func Adapt[T any](a Adapter, o Observable[T]) Observable[T] {
	if a == nil {
		return o
	}
	if _, ok := a.(NoopAdapter); ok {
		return o
	}
	adapted := a.Adapt(erased[T]{o})
	if e, ok := adapted.(erased[T]); ok {
		return e.o
	}
	return ObservableFunc[T](func(ctx context.Context, s Subscriber[T]) {
		adapted.Subscribe(ctx, &typedSubscriber[T]{s: s})
	})
}

type erased[T any] struct {
	o Observable[T]
}

func (e erased[T]) Subscribe(ctx context.Context, s Subscriber[any]) {
	e.o.Subscribe(ctx, SubscriberParts[T]{
		OnSubscribe: s.OnSubscribe,
		OnNext:      func(item T) { s.OnNext(item) },
		OnError:     s.OnError,
		OnComplete:  s.OnComplete,
	}.Build())
}

type typedSubscriber[T any] struct {
	s Subscriber[T]

	mu     sync.Mutex
	sub    Subscription
	failed bool
}

func (t *typedSubscriber[T]) OnSubscribe(sub Subscription) {
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	t.s.OnSubscribe(sub)
}

func (t *typedSubscriber[T]) OnNext(item any) {
	t.mu.Lock()
	if t.failed {
		t.mu.Unlock()
		return
	}
	v, ok := item.(T)
	if !ok && item == nil {
		var zero T
		v, ok = zero, true
	}
	if !ok {
		t.failed = true
		sub := t.sub
		t.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		var zero T
		t.s.OnError(errors.Errorf("reactive: adapter emitted %T, expected %T", item, zero))
		return
	}
	t.mu.Unlock()
	t.s.OnNext(v)
}

func (t *typedSubscriber[T]) OnError(err error) {
	if t.isFailed() {
		return
	}
	t.s.OnError(err)
}

func (t *typedSubscriber[T]) OnComplete() {
	if t.isFailed() {
		return
	}
	t.s.OnComplete()
}

func (t *typedSubscriber[T]) isFailed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}
