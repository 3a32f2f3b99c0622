// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransportKind names a way of reaching the device.
type TransportKind string

const (
	KindHID      TransportKind = "hid"
	KindSpeculos TransportKind = "speculos"
)

// Capability is a host feature check. Checks are tried in order and the
// first supported kind wins.
type Capability struct {
	Kind      TransportKind
	Supported func() bool
}

// Factory creates a transport of one kind.
type Factory struct {
	Kind   TransportKind
	Create func(ctx context.Context) (Transport, error)
}

// DefaultCapabilities checks HID first and falls back to Speculos when an
// emulator address is configured.
func DefaultCapabilities(cfg Config) []Capability {
	return []Capability{
		{Kind: KindHID, Supported: hidSupported},
		{Kind: KindSpeculos, Supported: func() bool { return cfg.Speculos.Address != "" }},
	}
}

// DefaultRegistry returns factories for the HID and Speculos transports.
func DefaultRegistry(cfg Config) []Factory {
	return []Factory{
		{
			Kind: KindHID,
			Create: func(context.Context) (Transport, error) {
				return NewLedgerAdmin().Connect(cfg.HID.DeviceIndex)
			},
		},
		{
			Kind: KindSpeculos,
			Create: func(ctx context.Context) (Transport, error) {
				return DialSpeculos(ctx, cfg.Speculos.Address)
			},
		},
	}
}

// openTransport is the bookkeeping of the transport currently in use.
type openTransport struct {
	id        string
	kind      TransportKind
	transport Transport
	listeners map[uint64]func()
	closing   bool
}

// TransportManager owns the single transport of the process: it opens it on
// first use, hands out the same instance until it is closed or the device goes
// away, and tells listeners when that happens.
type TransportManager struct {
	capabilities []Capability
	registry     []Factory
	log          *zap.SugaredLogger

	mu         sync.Mutex
	current    *openTransport
	listenerID uint64
}

// ManagerOption configures a TransportManager.
type ManagerOption func(*TransportManager)

// WithCapabilities sets the ordered capability checks.
func WithCapabilities(caps ...Capability) ManagerOption {
	return func(m *TransportManager) {
		m.capabilities = caps
	}
}

// WithRegistry sets the transport factories.
func WithRegistry(factories ...Factory) ManagerOption {
	return func(m *TransportManager) {
		m.registry = factories
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *zap.SugaredLogger) ManagerOption {
	return func(m *TransportManager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewTransportManager creates a manager. Without options it checks and
// creates the default transports for a zero Config.
func NewTransportManager(opts ...ManagerOption) *TransportManager {
	m := &TransportManager{
		capabilities: DefaultCapabilities(Config{}),
		registry:     DefaultRegistry(Config{}),
		log:          Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewTransportManagerFromConfig creates a manager wired to the transports
// described by cfg.
func NewTransportManagerFromConfig(cfg Config, opts ...ManagerOption) *TransportManager {
	base := []ManagerOption{
		WithCapabilities(DefaultCapabilities(cfg)...),
		WithRegistry(DefaultRegistry(cfg)...),
	}
	return NewTransportManager(append(base, opts...)...)
}

// GetTransport returns the open transport, opening one if needed.
func (m *TransportManager) GetTransport(ctx context.Context) (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current.transport, nil
	}

	kind, ok := m.detect()
	if !ok {
		return nil, ErrNoSupportedTransport
	}

	factory, ok := m.factory(kind)
	if !ok {
		return nil, fmt.Errorf("%w: no factory for %q", ErrTransportCreationFailed, kind)
	}

	t, err := factory.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s transport: %w", kind, err)
	}

	ot := &openTransport{
		id:        uuid.NewString(),
		kind:      kind,
		transport: t,
		listeners: make(map[uint64]func()),
	}
	m.current = ot
	m.log.Debugw("ledger transport opened", "kind", kind, "session", ot.id)

	go m.watch(ot)

	return t, nil
}

func (m *TransportManager) detect() (TransportKind, bool) {
	for _, c := range m.capabilities {
		if c.Supported != nil && c.Supported() {
			return c.Kind, true
		}
	}
	return "", false
}

func (m *TransportManager) factory(kind TransportKind) (Factory, bool) {
	for _, f := range m.registry {
		if f.Kind == kind && f.Create != nil {
			return f, true
		}
	}
	return Factory{}, false
}

// watch waits for the transport to go away, drops it from the cache if it is
// still current and fires its listeners.
func (m *TransportManager) watch(ot *openTransport) {
	<-ot.transport.Done()

	m.mu.Lock()
	if m.current == ot {
		m.current = nil
	}
	if !ot.closing {
		m.log.Warnw("ledger transport disconnected", "kind", ot.kind, "session", ot.id)
	}
	listeners := ot.listeners
	ot.listeners = nil
	m.mu.Unlock()

	for _, cb := range listeners {
		cb()
	}
}

// CloseTransport closes the open transport, if any.
func (m *TransportManager) CloseTransport() error {
	m.mu.Lock()
	ot := m.current
	m.current = nil
	if ot != nil {
		ot.closing = true
	}
	m.mu.Unlock()

	if ot == nil {
		return nil
	}

	m.log.Debugw("closing ledger transport", "kind", ot.kind, "session", ot.id)
	if err := ot.transport.Close(); err != nil {
		return fmt.Errorf("close %s transport: %w", ot.kind, err)
	}
	return nil
}

// OnTransportDisconnect registers a one-shot callback fired when the currently
// open transport goes away. Nothing is registered when no transport is open;
// callers must register again after reconnecting. The returned func removes
// the callback.
func (m *TransportManager) OnTransportDisconnect(cb func()) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ot := m.current
	if ot == nil {
		return func() {}
	}

	m.listenerID++
	id := m.listenerID
	ot.listeners[id] = cb

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(ot.listeners, id)
	}
}

// Kind returns the kind of the open transport, empty when none is open.
func (m *TransportManager) Kind() TransportKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.kind
}
