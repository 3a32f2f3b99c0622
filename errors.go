// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"errors"
	"strings"
)

var (
	// ErrNoSupportedTransport means the host offers none of the known transports.
	ErrNoSupportedTransport = errors.New("no supported ledger transport on this host")

	// ErrTransportCreationFailed means the detected transport kind has no registry entry.
	ErrTransportCreationFailed = errors.New("ledger transport could not be created")

	// ErrTransportDisconnected aborts an operation whose device went away mid-call.
	ErrTransportDisconnected = errors.New("ledger transport disconnected")

	// ErrLocked matches errors of kind ErrorKindLocked.
	ErrLocked = errors.New("ledger device is locked")

	// ErrAppNotOpen matches errors of kind ErrorKindAppNotOpen.
	ErrAppNotOpen = errors.New("ledger app is not open")
)

// ErrorKind is the normalized category of a device or transport failure.
type ErrorKind int

const (
	ErrorKindOther ErrorKind = iota
	ErrorKindLocked
	ErrorKindAppNotOpen
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindLocked:
		return "locked"
	case ErrorKindAppNotOpen:
		return "app not open"
	default:
		return "other"
	}
}

// Error is a normalized device error. Message keeps the raw error text.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrorKindLocked:
		return ErrLocked.Error() + ": " + e.Message
	case ErrorKindAppNotOpen:
		return ErrAppNotOpen.Error() + ": " + e.Message
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrLocked:
		return e.Kind == ErrorKindLocked
	case ErrAppNotOpen:
		return e.Kind == ErrorKindAppNotOpen
	}
	return false
}

// errorClassifications maps substrings of raw device errors to a kind.
// Codes are the decimal status words the apps report (0x6E00, 0x5515).
// The list is known to be incomplete across firmware versions.
var errorClassifications = []struct {
	substring string
	kind      ErrorKind
}{
	{"28160", ErrorKindAppNotOpen},
	{"CLA Not Supported", ErrorKindAppNotOpen},
	{"21781", ErrorKindLocked},
	{"Device Locked", ErrorKindLocked},
}

// ClassifyError normalizes err into an *Error. Already normalized errors
// are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var normalized *Error
	if errors.As(err, &normalized) {
		return err
	}

	msg := err.Error()
	for _, c := range errorClassifications {
		if strings.Contains(msg, c.substring) {
			return &Error{Kind: c.kind, Message: msg, Err: err}
		}
	}
	return &Error{Kind: ErrorKindOther, Message: msg, Err: err}
}

// KindOf reports the kind of err, ErrorKindOther when it is not normalized.
func KindOf(err error) ErrorKind {
	var normalized *Error
	if errors.As(err, &normalized) {
		return normalized.Kind
	}
	return ErrorKindOther
}
