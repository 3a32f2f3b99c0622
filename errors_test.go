// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		raw  string
		kind ErrorKind
	}{
		{"Unknown Status Code: 28160", ErrorKindAppNotOpen},
		{"TransportStatusError: CLA Not Supported", ErrorKindAppNotOpen},
		{"Ledger device: UNKNOWN_ERROR (0x5515) 21781", ErrorKindLocked},
		{"Device Locked", ErrorKindLocked},
		{"Transaction rejected", ErrorKindOther},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			raw := errors.New(tc.raw)
			err := ClassifyError(raw)

			var normalized *Error
			require.ErrorAs(t, err, &normalized)
			assert.Equal(t, tc.kind, normalized.Kind)
			assert.Equal(t, tc.raw, normalized.Message)
			assert.ErrorIs(t, err, raw)
			assert.Equal(t, tc.kind, KindOf(err))
		})
	}
}

func TestClassifyErrorOtherKeepsMessage(t *testing.T) {
	err := ClassifyError(errors.New("Transaction rejected"))
	assert.EqualError(t, err, "Transaction rejected")
	assert.NotErrorIs(t, err, ErrLocked)
	assert.NotErrorIs(t, err, ErrAppNotOpen)
}

func TestClassifyErrorSentinels(t *testing.T) {
	assert.ErrorIs(t, ClassifyError(errors.New("Device Locked")), ErrLocked)
	assert.ErrorIs(t, ClassifyError(errors.New("CLA Not Supported")), ErrAppNotOpen)
	assert.EqualError(t, ClassifyError(errors.New("Device Locked")), "ledger device is locked: Device Locked")
}

func TestClassifyErrorKeepsWrappedCause(t *testing.T) {
	err := ClassifyError(fmt.Errorf("exchange: %w", ErrTransportDisconnected))
	assert.ErrorIs(t, err, ErrTransportDisconnected)
	assert.Equal(t, ErrorKindOther, KindOf(err))
}

func TestClassifyErrorIdempotent(t *testing.T) {
	assert.NoError(t, ClassifyError(nil))

	once := ClassifyError(errors.New("21781"))
	assert.Same(t, once, ClassifyError(once))
}

func TestKindOfRawError(t *testing.T) {
	assert.Equal(t, ErrorKindOther, KindOf(errors.New("Device Locked")))
	assert.Equal(t, "locked", ErrorKindLocked.String())
	assert.Equal(t, "app not open", ErrorKindAppNotOpen.String())
	assert.Equal(t, "other", ErrorKindOther.String())
}
