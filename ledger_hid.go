//go:build !ledger_mock
// +build !ledger_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/hid"
)

const (
	VendorLedger         = 0x2c97
	UsagePageLedgerNanoS = 0xffa0
	Channel              = 0x0101
	PacketSize           = 64
)

var errDeviceNotFound = errors.New("device not found")

type LedgerAdminHID struct{}

// hidDevice is the part of *hid.Device the transport uses.
type hidDevice interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

type LedgerDeviceHID struct {
	device      hidDevice
	readChannel chan []byte

	// exchange serializes commands, the device handles one at a time
	exchange sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// list of supported product ids as well as their corresponding interfaces
// based on https://github.com/LedgerHQ/ledger-live/blob/develop/libs/ledgerjs/packages/devices/src/index.ts
var supportedLedgerProductID = map[uint8]int{
	0x40: 0, // Ledger Nano X
	0x10: 0, // Ledger Nano S
	0x50: 0, // Ledger Nano S Plus
	0x60: 0, // Ledger Stax
	0x70: 0, // Ledger Flex
}

func NewLedgerAdmin() LedgerAdmin {
	return &LedgerAdminHID{}
}

// hidSupported reports whether the host can talk HID at all.
func hidSupported() bool {
	return hid.Supported()
}

func ledgerDevices() []hid.DeviceInfo {
	var found []hid.DeviceInfo
	for _, d := range hid.Enumerate(0, 0) {
		if d.VendorID == VendorLedger && isLedgerDevice(d) {
			found = append(found, d)
		}
	}
	return found
}

func (admin *LedgerAdminHID) ListDevices() ([]string, error) {
	devices := ledgerDevices()
	if len(devices) == 0 {
		Logger().Debug("No devices. Ledger LOCKED OR Other Program/Web Browser may have control of device.")
	}

	paths := make([]string, 0, len(devices))
	for _, d := range devices {
		logDeviceInfo(d)
		paths = append(paths, d.Path)
	}

	return paths, nil
}

func logDeviceInfo(d hid.DeviceInfo) {
	Logger().Debugw("ledger hid device",
		"path", d.Path,
		"vendorID", fmt.Sprintf("%x", d.VendorID),
		"productID", fmt.Sprintf("%x", d.ProductID),
		"release", fmt.Sprintf("%x", d.Release),
		"serial", d.Serial,
		"manufacturer", d.Manufacturer,
		"product", d.Product,
		"usagePage", fmt.Sprintf("%x", d.UsagePage),
		"usage", fmt.Sprintf("%x", d.Usage),
	)
}

func isLedgerDevice(d hid.DeviceInfo) bool {
	deviceFound := d.UsagePage == UsagePageLedgerNanoS

	// Workarounds for possible empty usage pages
	productIDMM := uint8(d.ProductID >> 8)
	if interfaceID, supported := supportedLedgerProductID[productIDMM]; deviceFound || (supported && (interfaceID == d.Interface)) {
		return true
	}

	return false
}

func (admin *LedgerAdminHID) CountDevices() int {
	return len(ledgerDevices())
}

func (admin *LedgerAdminHID) Connect(deviceIndex int) (Transport, error) {
	devices := ledgerDevices()
	if deviceIndex < 0 || deviceIndex >= len(devices) {
		return nil, fmt.Errorf("%w: index %d of %d", errDeviceNotFound, deviceIndex, len(devices))
	}

	device, err := devices[deviceIndex].Open()
	if err != nil {
		return nil, err
	}
	return newLedgerDeviceHID(device), nil
}

// newLedgerDeviceHID starts reading right away so an unplug is noticed even
// before the first command.
func newLedgerDeviceHID(device hidDevice) *LedgerDeviceHID {
	ledger := &LedgerDeviceHID{
		device:      device,
		readChannel: make(chan []byte),
		done:        make(chan struct{}),
	}
	go ledger.readThread()
	return ledger
}

func (ledger *LedgerDeviceHID) write(buffer []byte) (int, error) {
	totalBytes := len(buffer)
	totalWrittenBytes := 0
	for totalBytes > totalWrittenBytes {
		writtenBytes, err := ledger.device.Write(buffer[totalWrittenBytes:])
		if err != nil {
			return totalWrittenBytes, err
		}
		totalWrittenBytes += writtenBytes
	}
	return totalWrittenBytes, nil
}

func (ledger *LedgerDeviceHID) Read() <-chan []byte {
	return ledger.readChannel
}

// readThread owns the device reads. A failed read means the device is gone.
func (ledger *LedgerDeviceHID) readThread() {
	defer close(ledger.readChannel)
	for {
		buffer := make([]byte, PacketSize)
		readBytes, err := ledger.device.Read(buffer)
		if err != nil {
			select {
			case <-ledger.done:
			default:
				Logger().Debugw("hid read failed", "err", err)
			}
			ledger.markDone()
			return
		}
		select {
		case ledger.readChannel <- buffer[:readBytes]:
		case <-ledger.done:
			return
		}
	}
}

func (ledger *LedgerDeviceHID) Exchange(command []byte) ([]byte, error) {
	if len(command) < 5 {
		return nil, errors.New("APDU commands should not be smaller than 5")
	}

	ledger.exchange.Lock()
	defer ledger.exchange.Unlock()

	select {
	case <-ledger.done:
		return nil, ErrTransportDisconnected
	default:
	}

	chunks, err := WrapCommandAPDU(Channel, command, PacketSize)
	if err != nil {
		return nil, err
	}

	Logger().Debugf("[HID] => %x", command)

	// write all the packets
	for _, chunk := range chunks {
		if _, err := ledger.write(chunk); err != nil {
			return nil, ledger.fail(err)
		}
	}

	return ledger.getResponse()
}

// fail marks the device gone after an I/O error.
func (ledger *LedgerDeviceHID) fail(err error) error {
	ledger.markDone()
	return fmt.Errorf("%w: %v", ErrTransportDisconnected, err)
}

// getResponse waits for the full response without a deadline: the device may
// hold the answer until the user confirms on screen.
func (ledger *LedgerDeviceHID) getResponse() ([]byte, error) {
	readChannel := ledger.Read()
	assembler := newResponseAssembler(Channel)

	for {
		select {
		case buffer, ok := <-readChannel:
			if !ok {
				return nil, ErrTransportDisconnected
			}
			complete, err := assembler.add(buffer)
			if err != nil {
				return nil, err
			}
			if !complete {
				continue
			}
		case <-ledger.done:
			return nil, ErrTransportDisconnected
		}

		response := assembler.response()
		Logger().Debugf("[HID] <= %x", response)

		if len(response) < 2 {
			return nil, fmt.Errorf("response too short: %d bytes", len(response))
		}
		return response, nil
	}
}

func (ledger *LedgerDeviceHID) Done() <-chan struct{} {
	return ledger.done
}

func (ledger *LedgerDeviceHID) markDone() {
	ledger.closeOnce.Do(func() {
		close(ledger.done)
	})
}

func (ledger *LedgerDeviceHID) Close() error {
	ledger.markDone()
	return ledger.device.Close()
}
