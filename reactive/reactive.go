// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package reactive provides demand-driven observable streams and the adapters
// that turn callback-based asynchronous results into them.
//
// The model follows Reactive Streams: an Observable is subscribed to by a
// Subscriber, which receives a Subscription through OnSubscribe and signals
// how many items it is ready to receive with Request. Items are delivered with
// OnNext, and the stream ends with exactly one of OnError or OnComplete, unless
// the subscription is cancelled first.
package reactive

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Unbounded is the demand that disables flow control for a subscription.
const Unbounded int64 = math.MaxInt64

var (
	// ErrInvalidDemand is signalled when a subscriber requests a negative number of items.
	ErrInvalidDemand = errors.New("reactive: number requested must be positive")

	// ErrNoItems is returned by First when a stream completes without emitting. A single result
	// callback reporting ErrNoItems completes its observable without emitting.
	ErrNoItems = errors.New("reactive: stream completed without items")
)

// Observable is a source of a sequence of items of type T.
//
// Subscribe may be called any number of times; each call starts an independent
// subscription. OnSubscribe is always called before Subscribe returns. Cancelling
// ctx cancels the subscription.
type Observable[T any] interface {
	Subscribe(ctx context.Context, s Subscriber[T])
}

// Subscriber receives the signals of a single subscription.
//
// Signals are never delivered concurrently, but may arrive on any goroutine.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(item T)
	OnError(err error)
	OnComplete()
}

// Subscription is the link between one Subscriber and the Observable it subscribed to.
type Subscription interface {
	// Request adds n to the number of items the subscriber is prepared to receive.
	// A request of zero is ignored, a negative request fails the subscription.
	Request(n int64)

	// Cancel stops the delivery of further signals and releases resources. It is
	// safe to call more than once.
	Cancel()
}

// ObservableFunc implements Observable with a function.
type ObservableFunc[T any] func(ctx context.Context, s Subscriber[T])

// Subscribe calls f.
func (f ObservableFunc[T]) Subscribe(ctx context.Context, s Subscriber[T]) {
	f(ctx, s)
}

// SubscriberParts assembles a Subscriber from functions. Missing parts are
// filled in by Build.
type SubscriberParts[T any] struct {
	OnSubscribe func(Subscription)
	OnNext      func(T)
	OnError     func(error)
	OnComplete  func()
}

// Build returns a Subscriber calling the configured parts. A missing OnSubscribe
// requests Unbounded items and a missing OnError logs the error.
func (p SubscriberParts[T]) Build() Subscriber[T] {
	if p.OnSubscribe == nil {
		p.OnSubscribe = func(s Subscription) { s.Request(Unbounded) }
	}
	if p.OnNext == nil {
		p.OnNext = func(T) {}
	}
	if p.OnError == nil {
		p.OnError = func(err error) {
			logrus.WithError(err).Warn("unhandled error in observable stream")
		}
	}
	if p.OnComplete == nil {
		p.OnComplete = func() {}
	}
	return &assembledSubscriber[T]{parts: p}
}

type assembledSubscriber[T any] struct {
	parts SubscriberParts[T]
}

func (as *assembledSubscriber[T]) OnSubscribe(s Subscription) { as.parts.OnSubscribe(s) }
func (as *assembledSubscriber[T]) OnNext(item T)              { as.parts.OnNext(item) }
func (as *assembledSubscriber[T]) OnError(err error)          { as.parts.OnError(err) }
func (as *assembledSubscriber[T]) OnComplete()                { as.parts.OnComplete() }

// addDemand adds n to current, saturating at Unbounded.
func addDemand(current, n int64) int64 {
	if current == Unbounded || n >= Unbounded-current {
		return Unbounded
	}
	return current + n
}
