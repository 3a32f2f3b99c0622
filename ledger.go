// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledger

import "context"

// LedgerAdmin defines the interface for managing Ledger devices.
type LedgerAdmin interface {
	CountDevices() int
	ListDevices() ([]string, error)
	Connect(deviceIndex int) (Transport, error)
}

// Transport is the physical channel to a Ledger device.
//
// Done is closed once the channel is gone, either because the device went
// away or because Close was called.
type Transport interface {
	Exchange(command []byte) ([]byte, error)
	Close() error
	Done() <-chan struct{}
}

// AppVersion is the version report of the on-device application.
type AppVersion struct {
	Major        uint32
	Minor        uint32
	Patch        uint32
	DeviceLocked bool
	TestMode     bool
}

// AppAddress is an address as reported by the device. Ed25519 apps report an
// SS58 string, ECDSA apps report the H160 address as hex.
type AppAddress struct {
	Address string
	PubKey  string
}

// AppSignature carries the raw signature bytes returned by the device.
type AppSignature struct {
	Signature []byte
}

// App is an open application on the device. Implementations own the
// device command encoding and are expected to serialize their commands.
type App interface {
	GetVersion(ctx context.Context) (*AppVersion, error)
	GetAddressEd25519(ctx context.Context, path string, ss58Prefix uint16, showAddress bool) (*AppAddress, error)
	GetAddressECDSA(ctx context.Context, path string, showAddress bool) (*AppAddress, error)
	SignEd25519(ctx context.Context, path string, tx, metadata []byte) (*AppSignature, error)
	SignECDSA(ctx context.Context, path string, tx, metadata []byte) (*AppSignature, error)
	SignRawEd25519(ctx context.Context, path string, message []byte) (*AppSignature, error)
	SignRawECDSA(ctx context.Context, path string, message []byte) (*AppSignature, error)
}

// AppFactory opens an application session on top of a transport.
type AppFactory func(t Transport) (App, error)
