//go:build ledger_mock
// +build ledger_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"errors"
	"sync"
)

type LedgerAdminMock struct{}

// LedgerDeviceMock answers every command with the success status word.
type LedgerDeviceMock struct {
	done      chan struct{}
	closeOnce sync.Once
}

func NewLedgerAdmin() LedgerAdmin {
	return &LedgerAdminMock{}
}

func hidSupported() bool {
	return true
}

func (admin *LedgerAdminMock) CountDevices() int {
	return 1
}

func (admin *LedgerAdminMock) ListDevices() ([]string, error) {
	return []string{"mock"}, nil
}

func (admin *LedgerAdminMock) Connect(deviceIndex int) (Transport, error) {
	if deviceIndex != 0 {
		return nil, errors.New("device not found")
	}
	return &LedgerDeviceMock{done: make(chan struct{})}, nil
}

func (ledger *LedgerDeviceMock) Exchange(command []byte) ([]byte, error) {
	select {
	case <-ledger.done:
		return nil, ErrTransportDisconnected
	default:
	}
	return []byte{0x90, 0x00}, nil
}

func (ledger *LedgerDeviceMock) Done() <-chan struct{} {
	return ledger.done
}

func (ledger *LedgerDeviceMock) Close() error {
	ledger.closeOnce.Do(func() {
		close(ledger.done)
	})
	return nil
}
