// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package authz is the capability check the engine consults before
// every mutating catalog or ledger call and before locating a
// resource. The engine never embeds policy: it asks a [Checker] one
// boolean question and maps a "no" onto its own denial error.
//
// Implementations: [AllowAll], [Func], the glob grant/denial
// [Policy], and [CEL] for expression policies.
package authz

import (
	"context"

	"github.com/TechnicallyWeb3/esp/lib/identity"
)

// Operation names the capability being exercised. Resource
// operations reuse the method names the catalog's headers carry.
type Operation string

const (
	OpHead    Operation = "HEAD"
	OpGet     Operation = "GET"
	OpPost    Operation = "POST"
	OpPut     Operation = "PUT"
	OpPatch   Operation = "PATCH"
	OpDelete  Operation = "DELETE"
	OpOptions Operation = "OPTIONS"
	OpLocate  Operation = "LOCATE"
	OpDefine  Operation = "DEFINE"

	// OpRegister registers content directly with the ledger. The
	// path is the content address.
	OpRegister Operation = "REGISTER"

	// OpCollect withdraws royalties. The path is empty.
	OpCollect Operation = "COLLECT"

	// OpTransfer reassigns the publisher of an address. The path is
	// the content address.
	OpTransfer Operation = "TRANSFER"
)

// Checker decides whether caller may perform op on path.
type Checker interface {
	CanInvoke(ctx context.Context, caller identity.ID, path string, op Operation) bool
}

// AllowAll permits everything.
type AllowAll struct{}

// CanInvoke always returns true.
func (AllowAll) CanInvoke(context.Context, identity.ID, string, Operation) bool { return true }

// Func adapts a function to Checker.
type Func func(ctx context.Context, caller identity.ID, path string, op Operation) bool

// CanInvoke calls f.
func (f Func) CanInvoke(ctx context.Context, caller identity.ID, path string, op Operation) bool {
	return f(ctx, caller, path, op)
}

// OrAllow returns checker, or AllowAll when checker is nil.
func OrAllow(checker Checker) Checker {
	if checker == nil {
		return AllowAll{}
	}
	return checker
}
