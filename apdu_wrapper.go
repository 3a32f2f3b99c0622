// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const tagAPDU = 0x05

var (
	errPacketTooShort   = errors.New("hid packet too short")
	errChannelMismatch  = errors.New("hid packet on unexpected channel")
	errTagMismatch      = errors.New("hid packet has unexpected tag")
	errSequenceMismatch = errors.New("hid packet out of sequence")
)

// WrapCommandAPDU turns the command into a sequence of packetSize byte HID reports.
// Every report starts with channel, tag and sequence index; the first one also
// carries the total command length.
func WrapCommandAPDU(channel uint16, command []byte, packetSize int) ([][]byte, error) {
	if packetSize < 8 {
		return nil, errors.New("packet size must be at least 8")
	}
	if len(command) > 0xffff {
		return nil, fmt.Errorf("command too long: %d bytes", len(command))
	}

	payload := make([]byte, 2+len(command))
	binary.BigEndian.PutUint16(payload[0:2], uint16(len(command)))
	copy(payload[2:], command)

	var chunks [][]byte
	seq := uint16(0)
	for offset := 0; offset < len(payload); seq++ {
		packet := make([]byte, packetSize)
		binary.BigEndian.PutUint16(packet[0:2], channel)
		packet[2] = tagAPDU
		binary.BigEndian.PutUint16(packet[3:5], seq)
		offset += copy(packet[5:], payload[offset:])
		chunks = append(chunks, packet)
	}

	return chunks, nil
}

// UnwrapResponseAPDU checks the header of one HID report and returns its
// payload. For the first report (seq 0) total is the announced response
// length, otherwise it is -1.
func UnwrapResponseAPDU(channel uint16, packet []byte, seq uint16) (payload []byte, total int, err error) {
	if len(packet) < 5 {
		return nil, -1, errPacketTooShort
	}
	if binary.BigEndian.Uint16(packet[0:2]) != channel {
		return nil, -1, errChannelMismatch
	}
	if packet[2] != tagAPDU {
		return nil, -1, errTagMismatch
	}
	if got := binary.BigEndian.Uint16(packet[3:5]); got != seq {
		return nil, -1, fmt.Errorf("%w: want %d, got %d", errSequenceMismatch, seq, got)
	}

	if seq != 0 {
		return packet[5:], -1, nil
	}
	if len(packet) < 7 {
		return nil, -1, errPacketTooShort
	}
	return packet[7:], int(binary.BigEndian.Uint16(packet[5:7])), nil
}

// responseAssembler accumulates HID reports until the announced length is read.
type responseAssembler struct {
	channel uint16
	seq     uint16
	total   int
	data    []byte
}

func newResponseAssembler(channel uint16) *responseAssembler {
	return &responseAssembler{channel: channel, total: -1}
}

// add consumes one report and reports whether the response is complete.
func (r *responseAssembler) add(packet []byte) (bool, error) {
	payload, total, err := UnwrapResponseAPDU(r.channel, packet, r.seq)
	if err != nil {
		return false, err
	}
	if r.seq == 0 {
		r.total = total
		r.data = make([]byte, 0, total)
	}
	r.seq++

	remaining := r.total - len(r.data)
	if len(payload) > remaining {
		payload = payload[:remaining]
	}
	r.data = append(r.data, payload...)

	return len(r.data) == r.total, nil
}

func (r *responseAssembler) response() []byte {
	return r.data
}
