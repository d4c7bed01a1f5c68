// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors the engine reports
// into. A nil *Metrics is valid and records nothing, so components can
// take one unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "esp"

// Metrics is the set of engine collectors.
type Metrics struct {
	// Operations counts top-level engine operations by name and
	// outcome, the status text such as "OK" or "Not Found".
	Operations *prometheus.CounterVec

	// ContentWrites counts newly stored content records by the
	// at-rest compression chosen for them.
	ContentWrites *prometheus.CounterVec

	// ContentCache counts content read-cache lookups by result
	// ("hit" or "miss").
	ContentCache *prometheus.CounterVec

	// ChunkReads counts chunk payloads fetched by the assembler.
	ChunkReads prometheus.Counter

	// BytesAssembled counts bytes returned by range assembly.
	BytesAssembled prometheus.Counter

	// RoyaltiesPaid counts royalty units paid on re-registration,
	// split by recipient ("publisher" or "protocol").
	RoyaltiesPaid *prometheus.CounterVec

	// Withdrawals counts royalty units withdrawn.
	Withdrawals prometheus.Counter
}

// New creates the collectors and registers them with registry. A nil
// registry uses a private registry, which keeps repeated construction
// in tests from colliding on the default one.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ContentWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "writes_total",
			Help:      "New content records by at-rest compression.",
		}, []string{"compression"}),
		ContentCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "cache_lookups_total",
			Help:      "Content read-cache lookups by result.",
		}, []string{"result"}),
		ChunkReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assembler",
			Name:      "chunk_reads_total",
			Help:      "Chunk payloads fetched during range assembly.",
		}),
		BytesAssembled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assembler",
			Name:      "bytes_total",
			Help:      "Bytes returned by range assembly.",
		}),
		RoyaltiesPaid: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "royalty",
			Name:      "paid_units_total",
			Help:      "Royalty units paid on re-registration by recipient.",
		}, []string{"recipient"}),
		Withdrawals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "royalty",
			Name:      "withdrawn_units_total",
			Help:      "Royalty units withdrawn by publishers.",
		}),
	}
}

// Operation records one completed operation.
func (m *Metrics) Operation(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// ContentWritten records a newly stored content record.
func (m *Metrics) ContentWritten(compression string) {
	if m == nil {
		return
	}
	m.ContentWrites.WithLabelValues(compression).Inc()
}

// CacheLookup records a content cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ContentCache.WithLabelValues(result).Inc()
}

// Assembled records one assembled response.
func (m *Metrics) Assembled(chunkReads int, bytes int) {
	if m == nil {
		return
	}
	m.ChunkReads.Add(float64(chunkReads))
	m.BytesAssembled.Add(float64(bytes))
}

// RoyaltyPaid records a royalty split.
func (m *Metrics) RoyaltyPaid(publisherShare, protocolShare uint64) {
	if m == nil {
		return
	}
	m.RoyaltiesPaid.WithLabelValues("publisher").Add(float64(publisherShare))
	m.RoyaltiesPaid.WithLabelValues("protocol").Add(float64(protocolShare))
}

// Withdrawn records a royalty withdrawal.
func (m *Metrics) Withdrawn(amount uint64) {
	if m == nil {
		return
	}
	m.Withdrawals.Add(float64(amount))
}
