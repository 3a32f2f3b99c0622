// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Scheme is the signature scheme of the accounts handled by a GenericLedger.
type Scheme int

const (
	SchemeEd25519 Scheme = iota
	SchemeECDSA
)

func (s Scheme) String() string {
	switch s {
	case SchemeECDSA:
		return "ecdsa"
	default:
		return "ed25519"
	}
}

// ParseScheme accepts "ed25519" and "ecdsa", case insensitive. Empty means ed25519.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ed25519":
		return SchemeEd25519, nil
	case "ecdsa":
		return SchemeECDSA, nil
	default:
		return SchemeEd25519, fmt.Errorf("unknown scheme %q", name)
	}
}

var errEmptyResponse = errors.New("empty response from ledger app")

var (
	bytesPrefix = []byte("<Bytes>")
	bytesSuffix = []byte("</Bytes>")
)

// WrapBytes puts message inside the <Bytes></Bytes> envelope used for raw
// message signing. Already wrapped messages are returned as is.
func WrapBytes(message []byte) []byte {
	if bytes.HasPrefix(message, bytesPrefix) && bytes.HasSuffix(message, bytesSuffix) &&
		len(message) >= len(bytesPrefix)+len(bytesSuffix) {
		return message
	}
	wrapped := make([]byte, 0, len(bytesPrefix)+len(message)+len(bytesSuffix))
	wrapped = append(wrapped, bytesPrefix...)
	wrapped = append(wrapped, message...)
	return append(wrapped, bytesSuffix...)
}

// addHexPrefix prepends 0x unless s already has it.
func addHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// commandSet is the device command family of one scheme.
type commandSet struct {
	getAddress func(ctx context.Context, app App, path string, ss58Prefix uint16, confirm bool) (*AppAddress, error)
	sign       func(ctx context.Context, app App, path string, tx, metadata []byte) (*AppSignature, error)
	signRaw    func(ctx context.Context, app App, path string, message []byte) (*AppSignature, error)

	// normalizeAddress turns the device address into the reported form
	normalizeAddress func(address string) string
	// rawSignature post-processes a raw message signature
	rawSignature func(sig []byte) []byte
}

var schemeCommands = map[Scheme]commandSet{
	SchemeEd25519: {
		getAddress: func(ctx context.Context, app App, path string, ss58Prefix uint16, confirm bool) (*AppAddress, error) {
			return app.GetAddressEd25519(ctx, path, ss58Prefix, confirm)
		},
		sign: func(ctx context.Context, app App, path string, tx, metadata []byte) (*AppSignature, error) {
			return app.SignEd25519(ctx, path, tx, metadata)
		},
		signRaw: func(ctx context.Context, app App, path string, message []byte) (*AppSignature, error) {
			return app.SignRawEd25519(ctx, path, message)
		},
		// SS58 addresses are reported as they come
		normalizeAddress: func(address string) string { return address },
		// the device prepends a 0x00 type byte to ed25519 raw signatures
		rawSignature: func(sig []byte) []byte {
			if len(sig) > 0 && sig[0] == 0x00 {
				return sig[1:]
			}
			return sig
		},
	},
	SchemeECDSA: {
		getAddress: func(ctx context.Context, app App, path string, _ uint16, confirm bool) (*AppAddress, error) {
			return app.GetAddressECDSA(ctx, path, confirm)
		},
		sign: func(ctx context.Context, app App, path string, tx, metadata []byte) (*AppSignature, error) {
			return app.SignECDSA(ctx, path, tx, metadata)
		},
		signRaw: func(ctx context.Context, app App, path string, message []byte) (*AppSignature, error) {
			return app.SignRawECDSA(ctx, path, message)
		},
		normalizeAddress: addHexPrefix,
		rawSignature:     func(sig []byte) []byte { return sig },
	},
}

// Version is the firmware report of the app.
type Version struct {
	IsLocked   bool
	IsTestMode bool
	Version    [3]uint32
}

type Address struct {
	Address   string
	PublicKey string
}

type Signature struct {
	Signature string
}

// GenericLedger speaks the generic signing app for one coin type and scheme.
type GenericLedger struct {
	*BaseLedger[App]

	scheme          Scheme
	ss58AddressType uint16
	newApp          AppFactory
	log             *zap.SugaredLogger

	acquire singleflight.Group
}

// GenericOption configures a GenericLedger.
type GenericOption func(*GenericLedger)

func WithScheme(scheme Scheme) GenericOption {
	return func(l *GenericLedger) {
		l.scheme = scheme
	}
}

func WithSS58AddressType(addressType uint16) GenericOption {
	return func(l *GenericLedger) {
		l.ss58AddressType = addressType
	}
}

func WithLedgerLogger(log *zap.SugaredLogger) GenericOption {
	return func(l *GenericLedger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewGenericLedger creates a ledger for coin type slip44. Apps are opened
// with newApp on the transport provided by transports.
func NewGenericLedger(transports *TransportManager, newApp AppFactory, slip44 uint32, opts ...GenericOption) *GenericLedger {
	l := &GenericLedger{
		scheme:          SchemeEd25519,
		ss58AddressType: DefaultSS58AddressType,
		newApp:          newApp,
		log:             Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if _, ok := schemeCommands[l.scheme]; !ok {
		l.scheme = SchemeEd25519
	}
	l.BaseLedger = NewBaseLedger[App](slip44, transports, l)
	return l
}

func (l *GenericLedger) Scheme() Scheme {
	return l.scheme
}

func (l *GenericLedger) SS58AddressType() uint16 {
	return l.ss58AddressType
}

func (l *GenericLedger) commands() commandSet {
	return schemeCommands[l.scheme]
}

// SerializePath returns the derivation path for the given offsets.
func (l *GenericLedger) SerializePath(accountOffset, addressOffset uint32, opts *AccountOptions) string {
	return SerializePath(l.Slip44(), accountOffset, addressOffset, opts)
}

// GetApp returns the cached app or opens one. Concurrent callers share a
// single open.
func (l *GenericLedger) GetApp(ctx context.Context) (App, error) {
	if app, ok := l.App(); ok {
		return app, nil
	}

	v, err, _ := l.acquire.Do("app", func() (interface{}, error) {
		if app, ok := l.App(); ok {
			return app, nil
		}

		// shared by every waiting caller, so one cancelled caller must not fail the rest
		t, err := l.Transports().GetTransport(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		app, err := l.newApp(t)
		if err != nil {
			return nil, fmt.Errorf("open ledger app: %w", err)
		}
		if app == nil {
			return nil, errors.New("open ledger app: factory returned no app")
		}

		gen := l.SetApp(app)
		l.BindRelease(gen, l.Transports().OnTransportDisconnect(func() {
			l.ClearAppIf(gen)
		}))
		l.log.Debugw("ledger app session opened", "slip44", l.Slip44(), "scheme", l.scheme)
		return app, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(App), nil
}

// MappingError classifies raw device errors, see ClassifyError.
func (l *GenericLedger) MappingError(err error) error {
	mapped := ClassifyError(err)
	if mapped != nil {
		l.log.Debugw("ledger operation failed", "kind", KindOf(mapped), "err", err)
	}
	return mapped
}

// GetVersion reads the app version and the lock and test mode flags.
func (l *GenericLedger) GetVersion(ctx context.Context) (*Version, error) {
	return WithApp(l.BaseLedger, ctx, func(ctx context.Context, app App) (*Version, error) {
		res, err := WrapError(l.BaseLedger, ctx, app.GetVersion)
		if err != nil {
			return nil, err
		}
		if res == nil {
			res = &AppVersion{}
		}
		return &Version{
			IsLocked:   res.DeviceLocked,
			IsTestMode: res.TestMode,
			Version:    [3]uint32{res.Major, res.Minor, res.Patch},
		}, nil
	})
}

// GetAddress derives the address at the given offsets, optionally asking the
// user to confirm it on the device.
func (l *GenericLedger) GetAddress(ctx context.Context, confirm bool, accountOffset, addressOffset uint32, opts *AccountOptions) (*Address, error) {
	return WithApp(l.BaseLedger, ctx, func(ctx context.Context, app App) (*Address, error) {
		path := l.SerializePath(accountOffset, addressOffset, opts)
		cmds := l.commands()

		res, err := WrapError(l.BaseLedger, ctx, func(ctx context.Context) (*AppAddress, error) {
			return cmds.getAddress(ctx, app, path, l.ss58AddressType, confirm)
		})
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, l.MappingError(errEmptyResponse)
		}
		return &Address{
			Address:   cmds.normalizeAddress(res.Address),
			PublicKey: addHexPrefix(res.PubKey),
		}, nil
	})
}

// SignTransaction signs an unsigned transaction. metadata lets the device
// render the transaction for approval.
func (l *GenericLedger) SignTransaction(ctx context.Context, tx, metadata []byte, accountOffset, addressOffset uint32, opts *AccountOptions) (*Signature, error) {
	return WithApp(l.BaseLedger, ctx, func(ctx context.Context, app App) (*Signature, error) {
		path := l.SerializePath(accountOffset, addressOffset, opts)
		cmds := l.commands()

		res, err := WrapError(l.BaseLedger, ctx, func(ctx context.Context) (*AppSignature, error) {
			return cmds.sign(ctx, app, path, tx, metadata)
		})
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, l.MappingError(errEmptyResponse)
		}
		return &Signature{Signature: hexutil.Encode(res.Signature)}, nil
	})
}

// SignMessage signs message wrapped in the <Bytes> envelope.
func (l *GenericLedger) SignMessage(ctx context.Context, message []byte, accountOffset, addressOffset uint32, opts *AccountOptions) (*Signature, error) {
	return WithApp(l.BaseLedger, ctx, func(ctx context.Context, app App) (*Signature, error) {
		path := l.SerializePath(accountOffset, addressOffset, opts)
		cmds := l.commands()
		payload := WrapBytes(message)

		res, err := WrapError(l.BaseLedger, ctx, func(ctx context.Context) (*AppSignature, error) {
			return cmds.signRaw(ctx, app, path, payload)
		})
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, l.MappingError(errEmptyResponse)
		}
		return &Signature{Signature: hexutil.Encode(cmds.rawSignature(res.Signature))}, nil
	})
}
