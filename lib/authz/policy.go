// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"context"
	"time"

	"github.com/TechnicallyWeb3/esp/lib/clock"
	"github.com/TechnicallyWeb3/esp/lib/identity"
)

// Rule matches callers, paths and operations by glob. An empty
// Callers list matches every caller, including the null one; empty
// Paths or Operations lists match nothing.
type Rule struct {
	Callers    []string  `yaml:"callers"`
	Paths      []string  `yaml:"paths"`
	Operations []string  `yaml:"operations"`
	ExpiresAt  time.Time `yaml:"expires_at,omitempty"`
}

func (r Rule) matches(caller identity.ID, path string, op Operation, now time.Time) bool {
	if !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt) {
		return false
	}
	if len(r.Callers) > 0 && !MatchAny(r.Callers, string(caller)) {
		return false
	}
	return MatchAny(r.Paths, path) && MatchAny(r.Operations, string(op))
}

// Policy allows an operation when some grant matches and no denial
// does. Everything else is denied.
type Policy struct {
	Grants  []Rule `yaml:"grants"`
	Denials []Rule `yaml:"denials"`

	// Clock evaluates rule expiry. Nil uses the real clock.
	Clock clock.Clock `yaml:"-"`
}

// CanInvoke evaluates denials first, then grants.
func (p *Policy) CanInvoke(_ context.Context, caller identity.ID, path string, op Operation) bool {
	now := p.now()
	for _, denial := range p.Denials {
		if denial.matches(caller, path, op, now) {
			return false
		}
	}
	for _, grant := range p.Grants {
		if grant.matches(caller, path, op, now) {
			return true
		}
	}
	return false
}

func (p *Policy) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock.Now()
}
