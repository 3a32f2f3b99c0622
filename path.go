// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import "fmt"

// AccountOptions selects the account, change and address index of a path.
// Offsets passed alongside are added to Account and AddressIndex.
type AccountOptions struct {
	Account      uint32
	Change       uint32
	AddressIndex uint32
}

// SerializePath returns the fully hardened BIP44 path
// m/44'/slip44'/account'/change'/addressIndex'.
func SerializePath(slip44, accountOffset, addressOffset uint32, opts *AccountOptions) string {
	var o AccountOptions
	if opts != nil {
		o = *opts
	}

	account := o.Account + accountOffset
	addressIndex := o.AddressIndex + addressOffset

	return fmt.Sprintf("m/44'/%d'/%d'/%d'/%d'", slip44, account, o.Change, addressIndex)
}
