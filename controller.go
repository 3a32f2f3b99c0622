// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"
	"errors"
	"sync"
)

const (
	lockedGuidance     = "Please unlock your Ledger device"
	appNotOpenGuidance = "Please open the app on your Ledger device"
)

// Guidance returns the text to show a user for err.
func Guidance(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocked):
		return lockedGuidance
	case errors.Is(err, ErrAppNotOpen):
		return appNotOpenGuidance
	default:
		return err.Error()
	}
}

// State is what a wallet screen shows about the device.
type State struct {
	Address   string
	IsLocked  bool
	IsLoading bool
	Err       error
	Warning   string
}

// Controller binds a GenericLedger to one account selection and tracks the
// state of the last refresh. It never retries on its own.
type Controller struct {
	ledger        *GenericLedger
	accountOffset uint32
	addressOffset uint32
	opts          *AccountOptions

	mu    sync.RWMutex
	state State
}

func NewController(ledger *GenericLedger, accountOffset, addressOffset uint32, opts *AccountOptions) *Controller {
	return &Controller{
		ledger:        ledger,
		accountOffset: accountOffset,
		addressOffset: addressOffset,
		opts:          opts,
	}
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Refresh drops the app session and reads the address again.
func (c *Controller) Refresh(ctx context.Context) State {
	c.mu.Lock()
	c.state.IsLoading = true
	c.mu.Unlock()

	c.ledger.ClearApp()
	addr, err := c.ledger.GetAddress(ctx, false, c.accountOffset, c.addressOffset, c.opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{
		Err:      err,
		Warning:  Guidance(err),
		IsLocked: errors.Is(err, ErrLocked),
	}
	if err == nil {
		c.state.Address = addr.Address
	}
	return c.state
}

func (c *Controller) GetAddress(ctx context.Context, confirm bool) (*Address, error) {
	return c.ledger.GetAddress(ctx, confirm, c.accountOffset, c.addressOffset, c.opts)
}

func (c *Controller) SignTransaction(ctx context.Context, tx, metadata []byte) (*Signature, error) {
	return c.ledger.SignTransaction(ctx, tx, metadata, c.accountOffset, c.addressOffset, c.opts)
}

func (c *Controller) SignMessage(ctx context.Context, message []byte) (*Signature, error) {
	return c.ledger.SignMessage(ctx, message, c.accountOffset, c.addressOffset, c.opts)
}

func (c *Controller) GetVersion(ctx context.Context) (*Version, error) {
	return c.ledger.GetVersion(ctx)
}

func (c *Controller) Disconnect(ctx context.Context) error {
	err := c.ledger.Disconnect(ctx)

	c.mu.Lock()
	c.state.Address = ""
	c.mu.Unlock()
	return err
}
