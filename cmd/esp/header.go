// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechnicallyWeb3/esp/lib/catalog"
	"github.com/TechnicallyWeb3/esp/lib/codec"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

func (a *app) headerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header",
		Short: "Manage header records",
		Long: `Header records carry delivery configuration (allowed methods, cache
lifetime, redirects) and are shared by reference between resources.`,
	}
	cmd.AddCommand(
		a.headerCreateCommand(),
		a.headerUpdateCommand(),
		a.headerDefaultCommand(),
		a.headerSetCommand(),
		a.headerShowCommand(),
	)
	return cmd
}

// headerFlags binds the flags shared by commands that write a header
// record.
type headerFlags struct {
	methods      string
	maxAge       uint32
	immutable    bool
	redirectCode int
	location     string
}

func (f *headerFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.methods, "methods", "HEAD,GET,OPTIONS,LOCATE", `comma-separated allowed methods, or "*"`)
	flags.Uint32Var(&f.maxAge, "max-age", 0, "cache lifetime in seconds")
	flags.BoolVar(&f.immutable, "immutable", false, "mark the content immutable")
	flags.IntVar(&f.redirectCode, "redirect-code", 0, "redirect status (301, 302, 307 or 308)")
	flags.StringVar(&f.location, "location", "", "redirect target")
}

func (f *headerFlags) record() (catalog.HeaderRecord, error) {
	methods, err := catalog.ParseMethodSet(f.methods)
	if err != nil {
		return catalog.HeaderRecord{}, err
	}
	header := catalog.HeaderRecord{
		CORSMethods:      methods,
		CacheMaxAge:      f.maxAge,
		Immutable:        f.immutable,
		RedirectCode:     status.Status(f.redirectCode),
		RedirectLocation: f.location,
	}
	return header, header.Validate()
}

func (a *app) headerCreateCommand() *cobra.Command {
	var flags headerFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a header record and print its reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			header, err := flags.record()
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			ref, err := e.Catalog.CreateHeader(cmd.Context(), a.identity(), header)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, ref)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func (a *app) headerUpdateCommand() *cobra.Command {
	var flags headerFlags
	cmd := &cobra.Command{
		Use:   "update <ref>",
		Short: "Replace the record stored under a reference",
		Long: `Replace the record stored under ref. Every resource pointing at ref
sees the new record; the reference itself does not change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := contentstore.ParseAddress(args[0])
			if err != nil {
				return err
			}
			header, err := flags.record()
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			return e.Catalog.UpdateHeader(cmd.Context(), a.identity(), ref, header)
		},
	}
	flags.bind(cmd)
	return cmd
}

func (a *app) headerDefaultCommand() *cobra.Command {
	var flags headerFlags
	cmd := &cobra.Command{
		Use:   "default",
		Short: "Set the header used by resources without one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			header, err := flags.record()
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			return e.Catalog.SetDefaultHeader(cmd.Context(), a.identity(), header)
		},
	}
	flags.bind(cmd)
	return cmd
}

func (a *app) headerSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <path> <ref>",
		Short: "Point a resource at a header record",
		Long: `Point the resource at path to the header record ref, keeping its
other properties. A ref of "default" clears the reference.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ref catalog.HeaderRef
			if args[1] != "default" {
				var err error
				if ref, err = contentstore.ParseAddress(args[1]); err != nil {
					return err
				}
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			metadata, err := e.Catalog.Metadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			properties := metadata.Properties
			properties.Header = ref
			_, err = e.Catalog.UpdateMetadata(cmd.Context(), a.identity(), args[0], properties)
			return err
		},
	}
}

func (a *app) headerShowCommand() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "show <path|ref>",
		Short: "Show the effective header of a resource, or a stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			var header catalog.HeaderRecord
			if ref, parseErr := contentstore.ParseAddress(args[0]); parseErr == nil {
				header, err = e.Catalog.Header(cmd.Context(), ref)
			} else {
				header, err = e.Catalog.ReadHeader(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if debug {
				encoded, err := codec.Marshal(header)
				if err != nil {
					return err
				}
				diagnostic, err := codec.Diagnose(encoded)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, diagnostic)
				return nil
			}
			fields := []field{
				{"Methods", header.CORSMethods},
				{"Cache max age", header.CacheMaxAge},
				{"Immutable", header.Immutable},
			}
			if header.RedirectCode != 0 {
				fields = append(fields, field{"Redirect", fmt.Sprintf("%d %s", header.RedirectCode.Code(), header.RedirectLocation)})
			}
			printFields(a.stdout, fields...)
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "print the stored CBOR encoding in diagnostic notation")
	return cmd
}
