// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"
	"sync"
)

// Protocol is implemented by every concrete ledger protocol built on
// BaseLedger.
type Protocol[A any] interface {
	// GetApp returns the app session, creating it only when none is cached.
	GetApp(ctx context.Context) (A, error)
	// MappingError translates a raw device error into a normalized one.
	MappingError(err error) error
}

// BaseLedger holds what all protocols share: the coin type, the transport
// manager and the cached app session.
type BaseLedger[A any] struct {
	slip44     uint32
	transports *TransportManager
	protocol   Protocol[A]

	mu      sync.Mutex
	app     A
	hasApp  bool
	gen     uint64
	release func()
}

func NewBaseLedger[A any](slip44 uint32, transports *TransportManager, protocol Protocol[A]) *BaseLedger[A] {
	return &BaseLedger[A]{
		slip44:     slip44,
		transports: transports,
		protocol:   protocol,
	}
}

func (b *BaseLedger[A]) Slip44() uint32 {
	return b.slip44
}

func (b *BaseLedger[A]) Transports() *TransportManager {
	return b.transports
}

// App returns the cached app session.
func (b *BaseLedger[A]) App() (A, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.app, b.hasApp
}

// SetApp caches app and returns its generation, see ClearAppIf. A session
// it replaces is released.
func (b *BaseLedger[A]) SetApp(app A) uint64 {
	b.mu.Lock()
	release := b.release
	b.gen++
	b.app = app
	b.hasApp = true
	b.release = nil
	gen := b.gen
	b.mu.Unlock()

	if release != nil {
		release()
	}
	return gen
}

// BindRelease attaches release to session gen; it runs once that session is
// cleared or replaced. If gen is no longer cached release runs immediately.
func (b *BaseLedger[A]) BindRelease(gen uint64, release func()) {
	b.mu.Lock()
	if b.hasApp && b.gen == gen {
		b.release = release
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	release()
}

// ClearApp drops the cached session so the next call acquires a new one.
func (b *BaseLedger[A]) ClearApp() {
	b.mu.Lock()
	release := b.clearLocked()
	b.mu.Unlock()

	if release != nil {
		release()
	}
}

// ClearAppIf drops the cached session only if it is still generation gen.
func (b *BaseLedger[A]) ClearAppIf(gen uint64) {
	var release func()
	b.mu.Lock()
	if b.hasApp && b.gen == gen {
		release = b.clearLocked()
	}
	b.mu.Unlock()

	if release != nil {
		release()
	}
}

func (b *BaseLedger[A]) clearLocked() func() {
	var zero A
	release := b.release
	b.app = zero
	b.hasApp = false
	b.release = nil
	return release
}

// WithApp runs fn with the app session. Any failure, from acquiring the
// session or from fn, clears the cached session before it is returned.
func WithApp[A, T any](b *BaseLedger[A], ctx context.Context, fn func(ctx context.Context, app A) (T, error)) (T, error) {
	var zero T

	app, err := b.protocol.GetApp(ctx)
	if err != nil {
		b.ClearApp()
		return zero, err
	}

	v, err := fn(ctx, app)
	if err != nil {
		b.ClearApp()
		return zero, err
	}
	return v, nil
}

// WrapError runs call and races it against a disconnect of the open
// transport and the cancellation of ctx. The first to happen decides the
// outcome; a call that loses keeps running against a cancelled context and
// its result is dropped. Errors are passed through MappingError.
func WrapError[A, T any](b *BaseLedger[A], ctx context.Context, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	disconnected := make(chan struct{})
	stop := b.transports.OnTransportDisconnect(func() {
		close(disconnected)
	})
	defer stop()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return zero, b.protocol.MappingError(r.err)
		}
		return r.v, nil
	case <-disconnected:
		return zero, b.protocol.MappingError(ErrTransportDisconnected)
	case <-ctx.Done():
		return zero, b.protocol.MappingError(ctx.Err())
	}
}

// Disconnect closes the shared transport. It runs through WithApp so a
// failure clears the session like any other operation; the session is
// dropped on success too since it cannot outlive its transport.
func (b *BaseLedger[A]) Disconnect(ctx context.Context) error {
	_, err := WithApp(b, ctx, func(context.Context, A) (struct{}, error) {
		return struct{}{}, b.transports.CloseTransport()
	})
	if err == nil {
		b.ClearApp()
	}
	return err
}
