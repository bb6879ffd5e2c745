// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"io"
	"sync"

	"github.com/ikmak/mongo-rx-driver/reactive"
)

// EndOfStream is emitted by AsyncInputStream.Read once the stream is exhausted.
const EndOfStream = -1

// AsyncInputStream is a source of bytes read through observables.
type AsyncInputStream interface {
	// Read reads up to len(p) bytes into p and emits the number of bytes
	// read, or EndOfStream. p must not be touched until the Observable
	// terminates.
	Read(p []byte) reactive.Observable[int]

	Close() reactive.Observable[Success]
}

// AsyncOutputStream is a sink of bytes written through observables.
type AsyncOutputStream interface {
	// Write writes p and emits the number of bytes written.
	Write(p []byte) reactive.Observable[int]

	Close() reactive.Observable[Success]
}

// NewAsyncInputStream returns an AsyncInputStream reading from r. Each read
// runs on its own goroutine. Close closes r if it is an io.Closer.
func NewAsyncInputStream(r io.Reader) AsyncInputStream {
	return &readerStream{r: r}
}

// NewAsyncOutputStream returns an AsyncOutputStream writing to w. Each write
// runs on its own goroutine. Close closes w if it is an io.Closer.
func NewAsyncOutputStream(w io.Writer) AsyncOutputStream {
	return &writerStream{w: w}
}

type readerStream struct {
	mu  sync.Mutex
	r   io.Reader
	eof bool
}

func (s *readerStream) Read(p []byte) reactive.Observable[int] {
	return reactive.FromSingleResult(func(_ context.Context, callback reactive.SingleResultCallback[int]) {
		go func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.eof {
				callback(EndOfStream, nil)
				return
			}
			n, err := s.r.Read(p)
			switch {
			case n > 0:
				s.eof = err == io.EOF
				callback(n, nil)
			case err == io.EOF:
				s.eof = true
				callback(EndOfStream, nil)
			case err != nil:
				callback(0, err)
			default:
				callback(0, nil)
			}
		}()
	})
}

func (s *readerStream) Close() reactive.Observable[Success] {
	return closeObservable(s.r)
}

type writerStream struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *writerStream) Write(p []byte) reactive.Observable[int] {
	return reactive.FromSingleResult(func(_ context.Context, callback reactive.SingleResultCallback[int]) {
		go func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			callback(s.w.Write(p))
		}()
	})
}

func (s *writerStream) Close() reactive.Observable[Success] {
	return closeObservable(s.w)
}

func closeObservable(v interface{}) reactive.Observable[Success] {
	return reactive.FromSingleResult(func(_ context.Context, callback reactive.SingleResultCallback[Success]) {
		if c, ok := v.(io.Closer); ok {
			callback(Success{}, c.Close())
			return
		}
		callback(Success{}, nil)
	})
}

// transfer copies src to dst chunk by chunk until src reports EndOfStream
// and returns the number of bytes copied. It blocks and is meant to run on
// its own goroutine.
func transfer(ctx context.Context, src AsyncInputStream, dst AsyncOutputStream, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, err := reactive.First(ctx, src.Read(buf))
		if err != nil {
			return total, err
		}
		if n == EndOfStream {
			return total, nil
		}
		for off := 0; off < n; {
			w, err := reactive.First(ctx, dst.Write(buf[off:n]))
			if err != nil {
				return total, err
			}
			if w <= 0 {
				return total, io.ErrShortWrite
			}
			off += w
			total += int64(w)
		}
	}
}
