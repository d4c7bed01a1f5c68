// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TechnicallyWeb3/esp/lib/authz"
	"github.com/TechnicallyWeb3/esp/lib/codec"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/events"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/kv"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

// Method is one of the nine resource methods a header configures.
// The order is fixed: it defines bit positions in MethodSet and
// indices into HeaderRecord.Origins.
type Method uint8

const (
	MethodHead Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodPatch
	MethodDelete
	MethodOptions
	MethodLocate
	MethodDefine

	// NumMethods is the number of methods.
	NumMethods = 9
)

var methodNames = [NumMethods]string{
	"HEAD", "GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "LOCATE", "DEFINE",
}

// String returns the upper-case method name.
func (m Method) String() string {
	if int(m) < NumMethods {
		return methodNames[m]
	}
	return fmt.Sprintf("method(%d)", uint8(m))
}

// Operation returns the authorization operation for m.
func (m Method) Operation() authz.Operation {
	return authz.Operation(m.String())
}

// ParseMethod parses a method name, case-insensitively.
func ParseMethod(name string) (Method, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, candidate := range methodNames {
		if candidate == upper {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("unknown method %q", name)
}

// MethodSet is a bitmask over methods; bit i is Method(i).
type MethodSet uint16

// AllMethods has every method bit set.
const AllMethods MethodSet = 1<<NumMethods - 1

// Methods returns the set containing methods.
func Methods(methods ...Method) MethodSet {
	var set MethodSet
	for _, method := range methods {
		set |= 1 << method
	}
	return set
}

// Has reports whether m is in the set.
func (s MethodSet) Has(m Method) bool {
	return int(m) < NumMethods && s&(1<<m) != 0
}

// List returns the members in method order.
func (s MethodSet) List() []Method {
	var methods []Method
	for i := range NumMethods {
		if s.Has(Method(i)) {
			methods = append(methods, Method(i))
		}
	}
	return methods
}

// String returns the members joined by commas, e.g. "GET,HEAD".
func (s MethodSet) String() string {
	names := make([]string, 0, NumMethods)
	for _, method := range s.List() {
		names = append(names, method.String())
	}
	return strings.Join(names, ",")
}

// ParseMethodSet parses a comma-separated method list. "*" is every
// method.
func ParseMethodSet(list string) (MethodSet, error) {
	if strings.TrimSpace(list) == "*" {
		return AllMethods, nil
	}
	var set MethodSet
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		method, err := ParseMethod(name)
		if err != nil {
			return 0, err
		}
		set |= Methods(method)
	}
	return set, nil
}

// HeaderRef identifies a header record: the content address of its
// encoding when it was created. The zero ref means "use the default
// header".
type HeaderRef = contentstore.Address

// HeaderRecord is delivery configuration shared by any number of
// resources.
type HeaderRecord struct {
	// CORSMethods is the set of methods the resource accepts.
	CORSMethods MethodSet `json:"cors_methods"`

	// Origins holds, per method, the capability reference of who may
	// invoke it. An empty entry means "any origin".
	Origins [NumMethods]string `json:"origins"`

	// CacheMaxAge is the cache lifetime in seconds.
	CacheMaxAge uint32 `json:"cache_max_age"`

	Immutable bool `json:"immutable"`

	// RedirectCode, when non-zero, turns the resource into a redirect
	// to RedirectLocation.
	RedirectCode     status.Status `json:"redirect_code,omitempty"`
	RedirectLocation string        `json:"redirect_location,omitempty"`
}

// DefaultHeader is used when neither the resource nor the catalog
// names a header: read-side methods only, no caching, no redirect.
func DefaultHeader() HeaderRecord {
	return HeaderRecord{
		CORSMethods: Methods(MethodHead, MethodGet, MethodOptions, MethodLocate),
	}
}

// Validate checks internal consistency.
func (h HeaderRecord) Validate() error {
	if h.CORSMethods&^AllMethods != 0 {
		return fmt.Errorf("%w: method mask %#x has unknown bits", ErrInvalidHeader, uint16(h.CORSMethods))
	}
	if h.RedirectCode == 0 {
		if h.RedirectLocation != "" {
			return fmt.Errorf("%w: redirect location without redirect code", ErrInvalidHeader)
		}
		return nil
	}
	if !h.RedirectCode.IsRedirect() {
		return fmt.Errorf("%w: %d is not a redirect code", ErrInvalidHeader, h.RedirectCode.Code())
	}
	if h.RedirectLocation == "" {
		return fmt.Errorf("%w: redirect code %d without a location", ErrInvalidHeader, h.RedirectCode.Code())
	}
	return nil
}

// Allows reports whether method is in CORSMethods.
func (h HeaderRecord) Allows(method Method) bool {
	return h.CORSMethods.Has(method)
}

// CreateHeader stores header and returns its ref, the content address
// of its encoding. Creating a header whose ref already exists returns
// that ref and leaves the stored record alone, even if it has been
// updated since.
func (c *Catalog) CreateHeader(ctx context.Context, caller identity.ID, header HeaderRecord) (HeaderRef, error) {
	if !c.authorizer.CanInvoke(ctx, caller, "", authz.OpDefine) {
		c.emitFailure(ctx, OperationCreateHeader, caller, "", ErrForbidden)
		return HeaderRef{}, ErrForbidden
	}
	if err := header.Validate(); err != nil {
		return HeaderRef{}, err
	}
	encoded, err := codec.Marshal(header)
	if err != nil {
		return HeaderRef{}, fmt.Errorf("encoding header: %w", err)
	}
	ref := contentstore.CalculateAddress(encoded)

	created := false
	err = c.backend.Update(ctx, func(txn kv.Txn) error {
		exists, err := txn.Has(kv.Key(headerNamespace, ref[:]))
		if err != nil || exists {
			return err
		}
		created = true
		return txn.Set(kv.Key(headerNamespace, ref[:]), encoded)
	})
	if err != nil {
		c.emitFailure(ctx, OperationCreateHeader, caller, "", err)
		return HeaderRef{}, err
	}

	c.metrics.Operation(OperationCreateHeader, status.OK.String())
	if created {
		c.logger.Info("header created", "ref", ref.Short(), "methods", header.CORSMethods.String())
	}
	c.events.Emit(ctx, events.Event{
		Operation: OperationCreateHeader,
		Address:   ref.String(),
		Actor:     caller,
		Outcome:   status.OK.String(),
		Detail:    map[string]string{"created": fmt.Sprint(created)},
	})
	return ref, nil
}

// UpdateHeader replaces the record stored under an existing ref. Every
// resource referencing it sees the change.
func (c *Catalog) UpdateHeader(ctx context.Context, caller identity.ID, ref HeaderRef, header HeaderRecord) error {
	if !c.authorizer.CanInvoke(ctx, caller, "", authz.OpDefine) {
		c.emitFailure(ctx, OperationUpdateHeader, caller, "", ErrForbidden)
		return ErrForbidden
	}
	if err := header.Validate(); err != nil {
		return err
	}
	encoded, err := codec.Marshal(header)
	if err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	err = c.backend.Update(ctx, func(txn kv.Txn) error {
		if _, err := headerTx(txn, ref); err != nil {
			return err
		}
		return txn.Set(kv.Key(headerNamespace, ref[:]), encoded)
	})
	if err != nil {
		c.emitFailure(ctx, OperationUpdateHeader, caller, "", err)
		return err
	}

	c.metrics.Operation(OperationUpdateHeader, status.OK.String())
	c.logger.Info("header updated", "ref", ref.Short(), "methods", header.CORSMethods.String())
	c.events.Emit(ctx, events.Event{
		Operation: OperationUpdateHeader,
		Address:   ref.String(),
		Actor:     caller,
		Outcome:   status.OK.String(),
	})
	return nil
}

// SetDefaultHeader sets the header used by resources without one.
func (c *Catalog) SetDefaultHeader(ctx context.Context, caller identity.ID, header HeaderRecord) error {
	if !c.authorizer.CanInvoke(ctx, caller, "", authz.OpDefine) {
		c.emitFailure(ctx, OperationSetDefaultHeader, caller, "", ErrForbidden)
		return ErrForbidden
	}
	if err := header.Validate(); err != nil {
		return err
	}
	encoded, err := codec.Marshal(header)
	if err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	err = c.backend.Update(ctx, func(txn kv.Txn) error {
		return txn.Set([]byte(defaultHeaderKey), encoded)
	})
	if err != nil {
		c.emitFailure(ctx, OperationSetDefaultHeader, caller, "", err)
		return err
	}

	c.metrics.Operation(OperationSetDefaultHeader, status.OK.String())
	c.logger.Info("default header set", "methods", header.CORSMethods.String())
	c.events.Emit(ctx, events.Event{
		Operation: OperationSetDefaultHeader,
		Actor:     caller,
		Outcome:   status.OK.String(),
	})
	return nil
}

// Header returns the record stored under ref.
func (c *Catalog) Header(ctx context.Context, ref HeaderRef) (HeaderRecord, error) {
	var header HeaderRecord
	err := c.backend.View(ctx, func(r kv.Reader) error {
		var err error
		header, err = headerTx(r, ref)
		return err
	})
	return header, err
}

// ReadHeader returns the header in effect for path: the one its
// metadata names, else the catalog default, else DefaultHeader. A
// path with no resource gets the default too.
func (c *Catalog) ReadHeader(ctx context.Context, path string) (HeaderRecord, error) {
	if err := validatePath(path); err != nil {
		return HeaderRecord{}, err
	}
	var header HeaderRecord
	err := c.backend.View(ctx, func(r kv.Reader) error {
		metadata, _, err := metadataTx(r, path)
		if err != nil {
			return err
		}
		header, err = effectiveHeaderTx(r, metadata.Properties.Header)
		return err
	})
	return header, err
}

func effectiveHeaderTx(r kv.Reader, ref HeaderRef) (HeaderRecord, error) {
	if !ref.IsZero() {
		return headerTx(r, ref)
	}
	value, err := r.Get([]byte(defaultHeaderKey))
	if errors.Is(err, kv.ErrNotFound) {
		return DefaultHeader(), nil
	}
	if err != nil {
		return HeaderRecord{}, err
	}
	var header HeaderRecord
	if err := codec.Unmarshal(value, &header); err != nil {
		return HeaderRecord{}, fmt.Errorf("decoding default header: %w", err)
	}
	return header, nil
}

func headerTx(r kv.Reader, ref HeaderRef) (HeaderRecord, error) {
	value, err := r.Get(kv.Key(headerNamespace, ref[:]))
	if errors.Is(err, kv.ErrNotFound) {
		return HeaderRecord{}, fmt.Errorf("%w: %s", ErrHeaderNotFound, ref.Short())
	}
	if err != nil {
		return HeaderRecord{}, err
	}
	var header HeaderRecord
	if err := codec.Unmarshal(value, &header); err != nil {
		return HeaderRecord{}, fmt.Errorf("decoding header %s: %w", ref.Short(), err)
	}
	return header, nil
}
