// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

type fakeTransport struct {
	id        int
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newFakeTransport(id int) *fakeTransport {
	return &fakeTransport{id: id, done: make(chan struct{})}
}

func (f *fakeTransport) Exchange(command []byte) ([]byte, error) {
	return []byte{0x90, 0x00}, nil
}

func (f *fakeTransport) Done() <-chan struct{} {
	return f.done
}

// unplug simulates a device initiated disconnect.
func (f *fakeTransport) unplug() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	f.unplug()
	return nil
}

// fakeTransports counts and records every transport it creates.
type fakeTransports struct {
	mu      sync.Mutex
	created []*fakeTransport
}

func (f *fakeTransports) create(context.Context) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newFakeTransport(len(f.created) + 1)
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeTransports) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeTransports) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[len(f.created)-1]
}

func newTestManager(t *testing.T, transports *fakeTransports) *TransportManager {
	return NewTransportManager(
		WithCapabilities(Capability{Kind: KindHID, Supported: func() bool { return true }}),
		WithRegistry(Factory{Kind: KindHID, Create: transports.create}),
		WithLogger(zaptest.NewLogger(t).Sugar()),
	)
}

// fakeApp is a scriptable device app. Unset hooks answer with zero values.
type fakeApp struct {
	transport Transport

	version       *AppVersion
	address       *AppAddress
	signature     []byte
	rawSignature  []byte
	err           error
	block         chan struct{}
	lastPath      string
	lastPrefix    uint16
	lastConfirm   bool
	lastMessage   []byte
	lastTx        []byte
	lastMetadata  []byte
	calledEd25519 bool
	calledECDSA   bool
}

func (a *fakeApp) wait(ctx context.Context) error {
	if a.block == nil {
		return a.err
	}
	select {
	case <-a.block:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *fakeApp) GetVersion(ctx context.Context) (*AppVersion, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.version, nil
}

func (a *fakeApp) GetAddressEd25519(ctx context.Context, path string, ss58Prefix uint16, showAddress bool) (*AppAddress, error) {
	a.calledEd25519 = true
	a.lastPath, a.lastPrefix, a.lastConfirm = path, ss58Prefix, showAddress
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.address, nil
}

func (a *fakeApp) GetAddressECDSA(ctx context.Context, path string, showAddress bool) (*AppAddress, error) {
	a.calledECDSA = true
	a.lastPath, a.lastConfirm = path, showAddress
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.address, nil
}

func (a *fakeApp) SignEd25519(ctx context.Context, path string, tx, metadata []byte) (*AppSignature, error) {
	a.calledEd25519 = true
	a.lastPath, a.lastTx, a.lastMetadata = path, tx, metadata
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return &AppSignature{Signature: a.signature}, nil
}

func (a *fakeApp) SignECDSA(ctx context.Context, path string, tx, metadata []byte) (*AppSignature, error) {
	a.calledECDSA = true
	a.lastPath, a.lastTx, a.lastMetadata = path, tx, metadata
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return &AppSignature{Signature: a.signature}, nil
}

func (a *fakeApp) SignRawEd25519(ctx context.Context, path string, message []byte) (*AppSignature, error) {
	a.calledEd25519 = true
	a.lastPath, a.lastMessage = path, message
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return &AppSignature{Signature: a.rawSignature}, nil
}

func (a *fakeApp) SignRawECDSA(ctx context.Context, path string, message []byte) (*AppSignature, error) {
	a.calledECDSA = true
	a.lastPath, a.lastMessage = path, message
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return &AppSignature{Signature: a.rawSignature}, nil
}

// appFactory hands out the prepared app and counts constructions.
type appFactory struct {
	mu    sync.Mutex
	app   *fakeApp
	built int
	err   error
}

func (f *appFactory) newApp(t Transport) (App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.built++
	f.app.transport = t
	return f.app, nil
}

func (f *appFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built
}
