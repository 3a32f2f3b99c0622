//go:build !ledger_mock
// +build !ledger_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/hid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHIDDevice serves queued reports; closing reports makes Read fail.
type fakeHIDDevice struct {
	reports  chan []byte
	writeErr error

	mu      sync.Mutex
	written [][]byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeHIDDevice(reports ...[]byte) *fakeHIDDevice {
	d := &fakeHIDDevice{
		reports: make(chan []byte, len(reports)+1),
		closed:  make(chan struct{}),
	}
	for _, r := range reports {
		d.reports <- r
	}
	return d
}

func (d *fakeHIDDevice) Read(b []byte) (int, error) {
	select {
	case r, ok := <-d.reports:
		if !ok {
			return 0, io.EOF
		}
		return copy(b, r), nil
	case <-d.closed:
		return 0, errors.New("device closed")
	}
}

func (d *fakeHIDDevice) Write(b []byte) (int, error) {
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, append([]byte(nil), b...))
	return len(b), nil
}

func (d *fakeHIDDevice) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

func (d *fakeHIDDevice) writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

var getVersionAPDU = []byte{0xe0, 0x00, 0x00, 0x00, 0x00}

func TestIsLedgerDevice(t *testing.T) {
	testCases := []struct {
		name string
		info hid.DeviceInfo
		want bool
	}{
		{"usage page", hid.DeviceInfo{UsagePage: UsagePageLedgerNanoS}, true},
		{"nano x interface 0", hid.DeviceInfo{ProductID: 0x4011, Interface: 0}, true},
		{"nano s plus interface 0", hid.DeviceInfo{ProductID: 0x5011, Interface: 0}, true},
		{"other interface", hid.DeviceInfo{ProductID: 0x4011, Interface: 1}, false},
		{"unknown product", hid.DeviceInfo{ProductID: 0x9911, Interface: 0}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isLedgerDevice(tc.info))
		})
	}
}

func TestConnectOutOfRange(t *testing.T) {
	admin := NewLedgerAdmin()
	_, err := admin.Connect(admin.CountDevices() + 1)
	assert.ErrorIs(t, err, errDeviceNotFound)
}

func TestHIDExchange(t *testing.T) {
	response := []byte{0x01, 0x02, 0x03, 0x90, 0x00}
	reports, err := WrapCommandAPDU(Channel, response, PacketSize)
	require.NoError(t, err)

	device := newFakeHIDDevice(reports...)
	ledger := newLedgerDeviceHID(device)
	defer ledger.Close()

	got, err := ledger.Exchange(getVersionAPDU)
	require.NoError(t, err)
	assert.Equal(t, response, got)

	want, err := WrapCommandAPDU(Channel, getVersionAPDU, PacketSize)
	require.NoError(t, err)
	assert.Equal(t, want, device.writes())
}

func TestHIDReadErrorClosesDone(t *testing.T) {
	device := newFakeHIDDevice()
	ledger := newLedgerDeviceHID(device)
	defer ledger.Close()

	// nothing was exchanged yet, the reader still notices the unplug
	close(device.reports)
	waitClosed(t, ledger.Done())

	_, err := ledger.Exchange(getVersionAPDU)
	assert.ErrorIs(t, err, ErrTransportDisconnected)
	assert.Empty(t, device.writes())
}

func TestHIDWriteErrorDisconnects(t *testing.T) {
	device := newFakeHIDDevice()
	device.writeErr = errors.New("hidapi: write failed")
	ledger := newLedgerDeviceHID(device)
	defer ledger.Close()

	_, err := ledger.Exchange(getVersionAPDU)
	require.ErrorIs(t, err, ErrTransportDisconnected)
	assert.Contains(t, err.Error(), "hidapi: write failed")
	waitClosed(t, ledger.Done())
}

func TestHIDCloseReleasesPendingExchange(t *testing.T) {
	device := newFakeHIDDevice()
	ledger := newLedgerDeviceHID(device)

	result := make(chan error, 1)
	go func() {
		_, err := ledger.Exchange(getVersionAPDU)
		result <- err
	}()

	require.Eventually(t, func() bool { return len(device.writes()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, ledger.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrTransportDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("exchange still pending after close")
	}
}

func TestHIDRejectsShortCommand(t *testing.T) {
	ledger := newLedgerDeviceHID(newFakeHIDDevice())
	defer ledger.Close()

	_, err := ledger.Exchange([]byte{0xe0, 0x01})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransportDisconnected)
}
