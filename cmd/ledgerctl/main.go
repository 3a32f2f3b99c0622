// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	ledger "github.com/luxfi/ledger-generic"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect and talk to a Ledger device",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", ledger.DefaultConfigPath(), "path to the TOML config file")

	cmd.AddCommand(
		newDevicesCmd(),
		newPathCmd(flags),
		newExchangeCmd(flags),
		newWatchCmd(flags),
	)
	return cmd
}

func loadConfig(flags *rootFlags) (ledger.Config, error) {
	cfg, err := ledger.LoadConfig(flags.configPath)
	if err != nil {
		return cfg, err
	}
	ledger.SetLogger(ledger.NewLogger(cfg.LogLevel))
	return cfg, nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List connected Ledger HID devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ledger.NewLedgerAdmin().ListDevices()
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no ledger devices found")
				return nil
			}
			for i, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, p)
			}
			return nil
		},
	}
}

func newPathCmd(flags *rootFlags) *cobra.Command {
	var (
		accountOffset uint32
		addressOffset uint32
		opts          ledger.AccountOptions
		slip44        uint32
	)

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the derivation path for an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("slip44") {
				slip44 = cfg.Account.Slip44
			}
			fmt.Fprintln(cmd.OutOrStdout(), ledger.SerializePath(slip44, accountOffset, addressOffset, &opts))
			return nil
		},
	}
	cmd.Flags().Uint32Var(&slip44, "slip44", 0, "coin type, defaults to the configured one")
	cmd.Flags().Uint32Var(&accountOffset, "account-offset", 0, "added to the account")
	cmd.Flags().Uint32Var(&addressOffset, "address-offset", 0, "added to the address index")
	cmd.Flags().Uint32Var(&opts.Account, "account", 0, "account")
	cmd.Flags().Uint32Var(&opts.Change, "change", 0, "change")
	cmd.Flags().Uint32Var(&opts.AddressIndex, "index", 0, "address index")
	return cmd
}

func newExchangeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exchange <apdu-hex>",
		Short: "Send a raw APDU and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			command, err := hexutil.Decode(ensurePrefix(args[0]))
			if err != nil {
				return fmt.Errorf("decode apdu: %w", err)
			}

			manager := ledger.NewTransportManagerFromConfig(cfg)
			defer manager.CloseTransport()

			t, err := manager.GetTransport(cmd.Context())
			if err != nil {
				return err
			}
			response, err := t.Exchange(command)
			if err != nil {
				return ledger.ClassifyError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(response))
			return nil
		},
	}
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the device transport and wait until it disconnects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager := ledger.NewTransportManagerFromConfig(cfg)
			defer manager.CloseTransport()

			if _, err := manager.GetTransport(ctx); err != nil {
				return err
			}
			gone := make(chan struct{})
			manager.OnTransportDisconnect(func() { close(gone) })
			fmt.Fprintf(cmd.OutOrStdout(), "connected over %s\n", manager.Kind())

			select {
			case <-gone:
				fmt.Fprintln(cmd.OutOrStdout(), "device disconnected")
			case <-ctx.Done():
			}
			return nil
		},
	}
}

func ensurePrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s
	}
	return "0x" + s
}
