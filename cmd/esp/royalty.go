// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/royalty"
)

func (a *app) royaltyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "royalty",
		Short: "Inspect and collect royalties",
	}
	cmd.AddCommand(
		a.royaltyBalanceCommand(),
		a.royaltyOwedCommand(),
		a.royaltyQuoteCommand(),
		a.royaltyCollectCommand(),
		a.royaltyTransferCommand(),
	)
	return cmd
}

func (a *app) royaltyBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [publisher]",
		Short: "Print a publisher's collectable balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			publisher := a.identity()
			if len(args) == 1 {
				publisher = identity.Parse(args[0])
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			balance, err := e.Ledger.RoyaltyBalance(cmd.Context(), publisher)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, balance)
			return nil
		},
	}
}

func (a *app) royaltyOwedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "owed <address>",
		Short: "Show the registration of a chunk and the royalty it carries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := contentstore.ParseAddress(args[0])
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			registration, err := e.Ledger.Registration(cmd.Context(), address)
			if err != nil {
				return err
			}
			owed, err := e.Ledger.RoyaltyOwed(cmd.Context(), address)
			if err != nil {
				return err
			}
			printFields(a.stdout,
				field{"Address", registration.Address},
				field{"Publisher", registration.Publisher},
				field{"Size", registration.Size},
				field{"Cost", registration.Cost},
				field{"Royalty", owed},
				field{"Registered", registration.CreatedAt.Format(time.RFC3339)},
			)
			return nil
		},
	}
}

func (a *app) royaltyQuoteCommand() *cobra.Command {
	var publisher string
	cmd := &cobra.Command{
		Use:   "quote <file|->",
		Short: "Estimate what publishing a file would cost",
		Long: `Split the file the way put would and price every chunk: first-write
cost for chunks nobody has registered yet, and the royalty payment put
needs for chunks other publishers registered first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			caller := a.identity()
			target := caller
			if cmd.Flags().Changed("publisher") {
				target = identity.Parse(publisher)
			}
			quote, err := e.Quote(cmd.Context(), caller, target, data)
			if err != nil {
				return err
			}
			printFields(a.stdout,
				field{"Chunks", quote.Chunks},
				field{"New chunks", quote.New},
				field{"Write cost", quote.Cost},
				field{"Royalty", quote.Royalty},
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&publisher, "publisher", "", "publisher of record for new chunks (default the caller)")
	return cmd
}

func (a *app) royaltyCollectCommand() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "collect <amount>",
		Short: "Withdraw from the caller's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			caller := a.identity()
			recipient := caller
			if cmd.Flags().Changed("to") {
				recipient = identity.Parse(to)
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			withdrawal, err := e.Ledger.CollectRoyalties(cmd.Context(), caller, royalty.Amount(amount), recipient)
			if err != nil {
				return err
			}
			printFields(a.stdout,
				field{"Withdrawal", withdrawal.ID},
				field{"To", withdrawal.To},
				field{"Amount", withdrawal.Amount},
				field{"Remaining", withdrawal.Remaining},
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient of the transfer (default the caller)")
	return cmd
}

func (a *app) royaltyTransferCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <address> <publisher>",
		Short: "Hand a chunk's future royalties to another publisher",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := contentstore.ParseAddress(args[0])
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Ledger.UpdatePublisherAddress(cmd.Context(), a.identity(), address, identity.Parse(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "publisher of %s is now %s\n", address.Short(), args[1])
			return nil
		},
	}
}
