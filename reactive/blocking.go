// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package reactive

import (
	"context"
	"sync"
)

// Collect subscribes to o with unbounded demand and blocks until the stream
// terminates or ctx is done, returning every emitted item.
func Collect[T any](ctx context.Context, o Observable[T]) ([]T, error) {
	var items []T
	err := await(ctx, o, Unbounded, func(item T) (bool, error) {
		items = append(items, item)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// First requests a single item from o and cancels the subscription once it
// arrives. It returns ErrNoItems if o completes without emitting.
func First[T any](ctx context.Context, o Observable[T]) (T, error) {
	var (
		first T
		found bool
	)
	err := await(ctx, o, 1, func(item T) (bool, error) {
		first, found = item, true
		return false, nil
	})
	if err == nil && !found {
		err = ErrNoItems
	}
	return first, err
}

// ForEach calls fn for every item of o, requesting one item at a time. It stops
// and returns the error if fn fails.
func ForEach[T any](ctx context.Context, o Observable[T], fn func(T) error) error {
	return await(ctx, o, 1, func(item T) (bool, error) {
		if err := fn(item); err != nil {
			return false, err
		}
		return true, nil
	})
}

func await[T any](ctx context.Context, o Observable[T], batch int64, onNext func(T) (bool, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := &blockingSubscriber[T]{
		batch:  batch,
		onNext: onNext,
		done:   make(chan struct{}),
	}
	o.Subscribe(ctx, b)

	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

type blockingSubscriber[T any] struct {
	batch  int64
	onNext func(T) (bool, error)
	done   chan struct{}
	once   sync.Once
	err    error

	mu  sync.Mutex
	sub Subscription
}

func (b *blockingSubscriber[T]) OnSubscribe(s Subscription) {
	b.mu.Lock()
	b.sub = s
	b.mu.Unlock()
	s.Request(b.batch)
}

func (b *blockingSubscriber[T]) OnNext(item T) {
	select {
	case <-b.done:
		return
	default:
	}

	more, err := b.onNext(item)
	if err != nil || !more {
		b.cancel()
		b.finish(err)
		return
	}
	if b.batch != Unbounded {
		b.mu.Lock()
		s := b.sub
		b.mu.Unlock()
		s.Request(b.batch)
	}
}

func (b *blockingSubscriber[T]) OnError(err error) { b.finish(err) }

func (b *blockingSubscriber[T]) OnComplete() { b.finish(nil) }

func (b *blockingSubscriber[T]) cancel() {
	b.mu.Lock()
	s := b.sub
	b.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

func (b *blockingSubscriber[T]) finish(err error) {
	b.once.Do(func() {
		b.err = err
		close(b.done)
	})
}
