// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TechnicallyWeb3/esp/lib/assembler"
	"github.com/TechnicallyWeb3/esp/lib/catalog"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/engine"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/royalty"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

func (a *app) addressCommand() *cobra.Command {
	var chunks bool
	cmd := &cobra.Command{
		Use:   "address <file|->",
		Short: "Print the content address of a file",
		Long: `Print the content address the store would assign to the file as one
record. With --chunks, split it the way put would and print every chunk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			if !chunks {
				fmt.Fprintln(a.stdout, contentstore.CalculateAddress(data))
				return nil
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			splitter, err := catalog.ParseSplitter(cfg.Limits.Splitter, min(cfg.Limits.RecommendedChunkSize, cfg.Limits.MaxChunkSize))
			if err != nil {
				return err
			}
			for i, piece := range catalog.Split(data, splitter) {
				fmt.Fprintf(a.stdout, "%d\t%s\t%d\n", i, contentstore.CalculateAddress(piece), len(piece))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&chunks, "chunks", false, "split the file and print each chunk address")
	return cmd
}

func (a *app) putCommand() *cobra.Command {
	var (
		publisher  string
		payment    uint64
		properties catalog.Properties
	)
	cmd := &cobra.Command{
		Use:   "put <path> <file|->",
		Short: "Publish a file at a resource path",
		Long: `Split the file into chunks, register each chunk, and replace the
resource at path with the result in one transaction. Chunks another
publisher registered first owe a royalty; pass --payment to cover it
(see "esp royalty quote").`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readInput(args[1])
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			caller := a.identity()
			upload := engine.Upload{
				Caller:    caller,
				Path:      args[0],
				Data:      data,
				Publisher: caller,
				Payment:   royalty.Amount(payment),
			}
			if cmd.Flags().Changed("publisher") {
				upload.Publisher = identity.Parse(publisher)
			}
			if propertiesChanged(cmd) {
				// The header reference survives a property change.
				existing, err := e.Catalog.Metadata(cmd.Context(), args[0])
				if err == nil {
					properties.Header = existing.Properties.Header
				} else if !errors.Is(err, catalog.ErrNotFound) {
					return err
				}
				upload.Properties = &properties
			}
			result, err := e.Publish(cmd.Context(), upload)
			if err != nil {
				return err
			}
			printFields(a.stdout,
				field{"Path", result.Metadata.Path},
				field{"Size", result.Metadata.Size},
				field{"Chunks", result.Metadata.ChunkCount},
				field{"Version", result.Metadata.Version},
				field{"Royalty paid", result.Owed},
				field{"Refund", result.Refund},
			)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&publisher, "publisher", "", "publisher of record for new chunks (default the caller; empty waives royalties)")
	flags.Uint64Var(&payment, "payment", 0, "royalty payment for chunks registered by others")
	flags.StringVar(&properties.ContentType, "content-type", "", "content type")
	flags.StringVar(&properties.Charset, "charset", "", "character set")
	flags.StringVar(&properties.Encoding, "encoding", "", "content encoding")
	flags.StringVar(&properties.Language, "language", "", "content language")
	return cmd
}

func propertiesChanged(cmd *cobra.Command) bool {
	for _, name := range []string{"content-type", "charset", "encoding", "language"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func (a *app) getCommand() *cobra.Command {
	var (
		byteRange   string
		chunkRange  string
		output      string
		ifNoneMatch string
	)
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read a resource or a byte range of it",
		Long: `Assemble the resource from its chunks and write it to stdout or
--output. --range takes inclusive start:end offsets; negative offsets
count from the end, and an omitted end means the last byte. --chunks
narrows the read to a chunk index range first; --range then counts
from the first selected chunk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(byteRange)
			if err != nil {
				return err
			}
			firstChunk, lastChunk, err := parseRange(chunkRange)
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			response, err := e.Assembler.Resolve(cmd.Context(), assembler.Request{
				Caller:      a.identity(),
				Path:        args[0],
				Chunks:      catalog.ChunkRange{Start: int(firstChunk), End: int(lastChunk)},
				Range:       assembler.ByteRange{Start: start, End: end},
				IfNoneMatch: ifNoneMatch,
			})
			if err != nil {
				return err
			}
			if response.Status.IsRedirect() {
				fmt.Fprintf(a.stderr, "%d %s: %s\n", response.Status.Code(), response.Status, response.Location)
				return nil
			}
			if response.Status == status.NotModified {
				fmt.Fprintf(a.stderr, "%d %s\n", response.Status.Code(), response.Status)
				return nil
			}

			if output != "" {
				return os.WriteFile(output, response.Content, 0644)
			}
			if file, ok := a.stdout.(*os.File); ok && term.IsTerminal(int(file.Fd())) && !utf8.Valid(response.Content) {
				return fmt.Errorf("refusing to write %d bytes of binary content to a terminal; use --output", len(response.Content))
			}
			_, err = a.stdout.Write(response.Content)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&byteRange, "range", "r", "", "inclusive byte range start:end")
	flags.StringVar(&chunkRange, "chunks", "", "inclusive chunk index range start:end")
	flags.StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	flags.StringVar(&ifNoneMatch, "if-none-match", "", "skip the body when the ETag or content fingerprint matches")
	return cmd
}

func (a *app) headCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "head <path>",
		Short: "Show resource metadata, header and ETag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			response, err := e.Assembler.Head(cmd.Context(), a.identity(), args[0])
			if err != nil {
				return err
			}
			metadata := response.Metadata
			fields := []field{
				{"Path", metadata.Path},
				{"Status", fmt.Sprintf("%d %s", response.Status.Code(), response.Status)},
				{"Size", metadata.Size},
				{"Chunks", metadata.ChunkCount},
				{"Version", metadata.Version},
				{"Last modified", metadata.LastModified.Format(time.RFC3339)},
				{"ETag", response.ETag},
				{"Fingerprint", metadata.Fingerprint},
				{"Content type", metadata.Properties.ContentType},
				{"Methods", response.Header.CORSMethods},
				{"Cache max age", response.Header.CacheMaxAge},
				{"Immutable", response.Header.Immutable},
			}
			if metadata.Properties.Charset != "" {
				fields = append(fields, field{"Charset", metadata.Properties.Charset})
			}
			if metadata.Properties.Encoding != "" {
				fields = append(fields, field{"Encoding", metadata.Properties.Encoding})
			}
			if metadata.Properties.Language != "" {
				fields = append(fields, field{"Language", metadata.Properties.Language})
			}
			if !metadata.Properties.Header.IsZero() {
				fields = append(fields, field{"Header", metadata.Properties.Header})
			}
			if response.Header.RedirectCode != 0 {
				fields = append(fields, field{"Redirect", fmt.Sprintf("%d %s", response.Header.RedirectCode.Code(), response.Header.RedirectLocation)})
			}
			printFields(a.stdout, fields...)
			return nil
		},
	}
}

func (a *app) rmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a resource",
		Long: `Delete the resource's chunk list and metadata. The chunk content and
its royalty registrations stay in the store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Catalog.DeleteResource(cmd.Context(), a.identity(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
			return nil
		},
	}
}

func (a *app) chunksCommand() *cobra.Command {
	var chunkRange string
	cmd := &cobra.Command{
		Use:   "chunks <path>",
		Short: "List the chunks of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(chunkRange)
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			resource, err := e.Catalog.ReadResource(cmd.Context(), args[0], catalog.ChunkRange{Start: int(start), End: int(end)})
			if err != nil {
				return err
			}
			rows := make([][]string, len(resource.Chunks))
			for i, chunk := range resource.Chunks {
				rows[i] = []string{strconv.Itoa(chunk.Index), chunk.Address.String(), strconv.FormatInt(chunk.Size, 10)}
			}
			printTable(a.stdout, []string{"INDEX", "ADDRESS", "SIZE"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&chunkRange, "range", "r", "", "inclusive chunk index range start:end")
	return cmd
}

// parseRange parses "start:end" with either side optional. An empty
// string selects everything.
func parseRange(text string) (start, end int64, err error) {
	if text == "" {
		return 0, 0, nil
	}
	startText, endText, found := strings.Cut(text, ":")
	if !found {
		return 0, 0, fmt.Errorf("range %q: want start:end", text)
	}
	if startText != "" {
		if start, err = strconv.ParseInt(startText, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("range start: %w", err)
		}
	}
	end = -1
	if endText != "" {
		if end, err = strconv.ParseInt(endText, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("range end: %w", err)
		}
	}
	return start, end, nil
}
