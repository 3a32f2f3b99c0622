// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// speculosTransport talks to the APDU port of the Speculos emulator.
// Commands go out as a 4 byte big endian length plus the APDU; answers come
// back as a 4 byte length, that many data bytes and the 2 byte status word.
type speculosTransport struct {
	conn net.Conn

	exchange sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// DialSpeculos connects to a Speculos APDU server.
func DialSpeculos(ctx context.Context, address string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial speculos %s: %w", address, err)
	}
	return newSpeculosTransport(conn), nil
}

func newSpeculosTransport(conn net.Conn) *speculosTransport {
	return &speculosTransport{conn: conn, done: make(chan struct{})}
}

func (s *speculosTransport) Exchange(command []byte) ([]byte, error) {
	s.exchange.Lock()
	defer s.exchange.Unlock()

	select {
	case <-s.done:
		return nil, ErrTransportDisconnected
	default:
	}

	Logger().Debugf("[TCP] => %x", command)

	request := make([]byte, 4+len(command))
	binary.BigEndian.PutUint32(request[0:4], uint32(len(command)))
	copy(request[4:], command)
	if _, err := s.conn.Write(request); err != nil {
		return nil, s.fail(err)
	}

	var header [4]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return nil, s.fail(err)
	}
	response := make([]byte, binary.BigEndian.Uint32(header[:])+2)
	if _, err := io.ReadFull(s.conn, response); err != nil {
		return nil, s.fail(err)
	}

	Logger().Debugf("[TCP] <= %x", response)
	return response, nil
}

// fail marks the transport gone after an I/O error on the connection.
func (s *speculosTransport) fail(err error) error {
	s.closeConn()
	return fmt.Errorf("%w: %v", ErrTransportDisconnected, err)
}

func (s *speculosTransport) closeConn() error {
	err := net.ErrClosed
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *speculosTransport) Done() <-chan struct{} {
	return s.done
}

func (s *speculosTransport) Close() error {
	return s.closeConn()
}
