// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechnicallyWeb3/esp/lib/authz"
	"github.com/TechnicallyWeb3/esp/lib/clock"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/events"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/kv/memkv"
	"github.com/TechnicallyWeb3/esp/lib/metrics"
	"github.com/TechnicallyWeb3/esp/lib/royalty"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

const (
	publisherOne identity.ID = "P1"
	publisherTwo identity.ID = "P2"
	visitor      identity.ID = "visitor"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testCatalog struct {
	*Catalog
	ledger *royalty.Ledger
	clock  *clock.FakeClock
	events []events.Event
}

func newTestCatalog(t *testing.T, cfg Config) *testCatalog {
	t.Helper()
	ctx := context.Background()
	content, err := contentstore.New(ctx, contentstore.Config{Backend: memkv.New()})
	require.NoError(t, err)

	harness := &testCatalog{clock: clock.Fake(epoch)}
	bus := events.NewBus()
	_, err = bus.Subscribe(func(event events.Event) {
		harness.events = append(harness.events, event)
	})
	require.NoError(t, err)
	emitter := events.NewEmitter(bus, harness.clock, nil)

	harness.ledger, err = royalty.New(royalty.Config{
		Content: content,
		Pricing: royalty.DefaultPricing(),
		Events:  emitter,
		Clock:   harness.clock,
	})
	require.NoError(t, err)

	cfg.Ledger = harness.ledger
	cfg.Events = emitter
	cfg.Clock = harness.clock
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	harness.Catalog, err = New(cfg)
	require.NoError(t, err)
	return harness
}

// eventsFor returns the recorded events with the given operation.
func (h *testCatalog) eventsFor(operation string) []events.Event {
	var matched []events.Event
	for _, event := range h.events {
		if event.Operation == operation {
			matched = append(matched, event)
		}
	}
	return matched
}

func (h *testCatalog) write(t *testing.T, path string, index int, data string) ChunkResult {
	t.Helper()
	result, err := h.CreateOrAppendChunk(context.Background(), ChunkWrite{
		Caller:    publisherOne,
		Path:      path,
		Data:      []byte(data),
		Publisher: publisherOne,
		Index:     index,
	})
	require.NoError(t, err)
	return result
}

func TestNewRequiresLedger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestMetadataNotFound(t *testing.T) {
	catalog := newTestCatalog(t, Config{})
	_, err := catalog.Metadata(context.Background(), "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, status.NotFound, status.FromError(err))
}

func TestInvalidPath(t *testing.T) {
	catalog := newTestCatalog(t, Config{})
	ctx := context.Background()

	for _, path := range []string{"", "relative", "/nul\x00byte"} {
		_, err := catalog.Metadata(ctx, path)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", path)

		_, err = catalog.CreateOrAppendChunk(ctx, ChunkWrite{Caller: publisherOne, Path: path, Data: []byte("x")})
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", path)
	}
}

func TestUpdateMetadata(t *testing.T) {
	catalog := newTestCatalog(t, Config{})
	ctx := context.Background()
	catalog.write(t, "/index.html", 0, "<html></html>")

	catalog.clock.Advance(time.Minute)
	metadata, err := catalog.UpdateMetadata(ctx, publisherOne, "/index.html", Properties{
		ContentType: "text/html",
		Charset:     "utf-8",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), metadata.Version)
	assert.Equal(t, epoch.Add(time.Minute), metadata.LastModified)

	read, err := catalog.Metadata(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, metadata, read)
	assert.Equal(t, "text/html", read.Properties.ContentType)
	assert.Equal(t, int64(len("<html></html>")), read.Size)

	_, err = catalog.UpdateMetadata(ctx, publisherOne, "/missing", Properties{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = catalog.UpdateMetadata(ctx, publisherOne, "/index.html", Properties{Header: contentstore.CalculateAddress([]byte("nope"))})
	assert.ErrorIs(t, err, ErrHeaderNotFound)

	updates := catalog.eventsFor(OperationUpdateMetadata)
	require.Len(t, updates, 3)
	assert.Equal(t, status.OK.String(), updates[0].Outcome)
	assert.Equal(t, status.NotFound.String(), updates[1].Outcome)
}

func TestUpdateMetadataStats(t *testing.T) {
	catalog := newTestCatalog(t, Config{})
	ctx := context.Background()
	first := catalog.write(t, "/a", 0, "a")
	assert.Equal(t, uint64(1), first.Metadata.Version)
	assert.Equal(t, epoch, first.Metadata.LastModified)

	catalog.clock.Advance(time.Hour)
	metadata, err := catalog.UpdateMetadataStats(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), metadata.Version)
	assert.Equal(t, epoch.Add(time.Hour), metadata.LastModified)
	assert.Equal(t, first.Metadata.Size, metadata.Size)

	_, err = catalog.UpdateMetadataStats(ctx, "/b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHeaders(t *testing.T) {
	catalog := newTestCatalog(t, Config{})
	ctx := context.Background()
	catalog.write(t, "/page", 0, "page")

	header, err := catalog.ReadHeader(ctx, "/page")
	require.NoError(t, err)
	assert.Equal(t, DefaultHeader(), header)

	fallback := HeaderRecord{CORSMethods: Methods(MethodGet), CacheMaxAge: 60}
	require.NoError(t, catalog.SetDefaultHeader(ctx, publisherOne, fallback))
	header, err = catalog.ReadHeader(ctx, "/page")
	require.NoError(t, err)
	assert.Equal(t, fallback, header)

	// Paths without a resource get the default as well.
	header, err = catalog.ReadHeader(ctx, "/not-yet")
	require.NoError(t, err)
	assert.Equal(t, fallback, header)

	immutable := HeaderRecord{
		CORSMethods: Methods(MethodHead, MethodGet, MethodOptions),
		CacheMaxAge: 31536000,
		Immutable:   true,
	}
	immutable.Origins[MethodGet] = "https://example.org"
	ref, err := catalog.CreateHeader(ctx, publisherOne, immutable)
	require.NoError(t, err)
	assert.False(t, ref.IsZero())

	again, err := catalog.CreateHeader(ctx, publisherOne, immutable)
	require.NoError(t, err)
	assert.Equal(t, ref, again)

	_, err = catalog.UpdateMetadata(ctx, publisherOne, "/page", Properties{Header: ref})
	require.NoError(t, err)
	header, err = catalog.ReadHeader(ctx, "/page")
	require.NoError(t, err)
	assert.Equal(t, immutable, header)

	changed := immutable
	changed.CacheMaxAge = 10
	require.NoError(t, catalog.UpdateHeader(ctx, publisherOne, ref, changed))
	header, err = catalog.Header(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), header.CacheMaxAge)

	err = catalog.UpdateHeader(ctx, publisherOne, contentstore.CalculateAddress([]byte("unknown")), changed)
	assert.ErrorIs(t, err, ErrHeaderNotFound)

	created := catalog.eventsFor(OperationCreateHeader)
	require.Len(t, created, 2)
	assert.Equal(t, "true", created[0].Detail["created"])
	assert.Equal(t, "false", created[1].Detail["created"])
}

func TestHeaderValidation(t *testing.T) {
	catalog := newTestCatalog(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name   string
		header HeaderRecord
	}{
		{"unknown method bits", HeaderRecord{CORSMethods: 1 << 12}},
		{"location without code", HeaderRecord{RedirectLocation: "/elsewhere"}},
		{"code without location", HeaderRecord{RedirectCode: status.Found}},
		{"not a redirect", HeaderRecord{RedirectCode: status.NotModified, RedirectLocation: "/x"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := catalog.CreateHeader(ctx, publisherOne, test.header)
			assert.ErrorIs(t, err, ErrInvalidHeader)
			assert.ErrorIs(t, catalog.SetDefaultHeader(ctx, publisherOne, test.header), ErrInvalidHeader)
		})
	}

	redirect := HeaderRecord{RedirectCode: status.MovedPermanently, RedirectLocation: "/new"}
	assert.NoError(t, redirect.Validate())
}

func TestDefineRequiresAuthorization(t *testing.T) {
	checker := authz.Func(func(_ context.Context, caller identity.ID, _ string, op authz.Operation) bool {
		return op != authz.OpDefine || caller == publisherOne
	})
	catalog := newTestCatalog(t, Config{Authorizer: checker})
	ctx := context.Background()
	catalog.write(t, "/page", 0, "page")

	_, err := catalog.CreateHeader(ctx, visitor, DefaultHeader())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, catalog.SetDefaultHeader(ctx, visitor, DefaultHeader()), ErrForbidden)
	_, err = catalog.UpdateMetadata(ctx, visitor, "/page", Properties{ContentType: "text/plain"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, status.Forbidden, status.FromError(err))

	metadata, err := catalog.Metadata(ctx, "/page")
	require.NoError(t, err)
	assert.Empty(t, metadata.Properties.ContentType)

	_, err = catalog.CreateHeader(ctx, publisherOne, DefaultHeader())
	assert.NoError(t, err)
}
