// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechnicallyWeb3/esp/lib/clock"
	"github.com/TechnicallyWeb3/esp/lib/identity"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"/site/index.html", "/site/index.html", true},
		{"/site/index.html", "/site/other.html", false},
		{"/site/*", "/site/a.css", true},
		{"/site/*", "/site/css/a.css", false},
		{"/site/**", "/site", true},
		{"/site/**", "/site/css/a.css", true},
		{"/site/**", "/other/a", false},
		{"/**/*.css", "/a.css", true},
		{"/**/*.css", "/x/y/a.css", true},
		{"/**/*.css", "/x/y/a.js", false},
		{"/a/**/z", "/a/z", true},
		{"/a/**/z", "/a/b/c/z", true},
		{"/a/**/z", "/a//z", false},
		{"**", "", true},
		{"**", "anything/at/all", true},
		{"user-?", "user-1", true},
		{"user-?", "user-10", false},
		{"[", "[", false},
		{"GET", "GET", true},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, Match(test.pattern, test.value), "Match(%q, %q)", test.pattern, test.value)
	}
	assert.False(t, MatchAny(nil, "x"))
}

func TestPolicy(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.Fake(now)
	policy := &Policy{
		Grants: []Rule{
			{Paths: []string{"**"}, Operations: []string{"GET", "HEAD", "LOCATE", "OPTIONS"}},
			{Callers: []string{"alice"}, Paths: []string{"/alice/**"}, Operations: []string{"**"}},
			{Callers: []string{"bob"}, Paths: []string{"/shared/**"}, Operations: []string{"PUT", "PATCH"}, ExpiresAt: now.Add(time.Hour)},
		},
		Denials: []Rule{
			{Callers: []string{"mallory"}, Paths: []string{"**"}, Operations: []string{"**"}},
		},
		Clock: fake,
	}
	ctx := context.Background()

	assert.True(t, policy.CanInvoke(ctx, identity.Null, "/alice/a.txt", OpGet))
	assert.True(t, policy.CanInvoke(ctx, "alice", "/alice/a.txt", OpDelete))
	assert.False(t, policy.CanInvoke(ctx, "bob", "/alice/a.txt", OpDelete))
	assert.True(t, policy.CanInvoke(ctx, "bob", "/shared/x", OpPatch))
	assert.False(t, policy.CanInvoke(ctx, "mallory", "/alice/a.txt", OpGet))

	fake.Advance(2 * time.Hour)
	assert.False(t, policy.CanInvoke(ctx, "bob", "/shared/x", OpPatch))
}

func TestAllowAllAndFunc(t *testing.T) {
	ctx := context.Background()
	assert.True(t, AllowAll{}.CanInvoke(ctx, identity.Null, "/", OpDelete))
	assert.True(t, OrAllow(nil).CanInvoke(ctx, "x", "/", OpPut))

	onlyReads := Func(func(_ context.Context, _ identity.ID, _ string, op Operation) bool {
		return op == OpGet
	})
	assert.True(t, OrAllow(onlyReads).CanInvoke(ctx, "x", "/", OpGet))
	assert.False(t, onlyReads.CanInvoke(ctx, "x", "/", OpPut))
}

func TestCEL(t *testing.T) {
	checker, err := NewCEL(`operation in ["GET", "HEAD", "LOCATE"] || (caller != "" && path.startsWith("/users/" + caller + "/"))`)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, checker.CanInvoke(ctx, identity.Null, "/users/alice/a", OpGet))
	assert.True(t, checker.CanInvoke(ctx, "alice", "/users/alice/a", OpPut))
	assert.False(t, checker.CanInvoke(ctx, "bob", "/users/alice/a", OpPut))
	assert.False(t, checker.CanInvoke(ctx, identity.Null, "/users//a", OpPut))
	assert.Contains(t, checker.String(), "startsWith")
}

func TestCELRejectsBadExpressions(t *testing.T) {
	_, err := NewCEL(`caller +`)
	assert.Error(t, err)

	_, err = NewCEL(`path`)
	assert.Error(t, err)

	_, err = NewCEL(`unknown == "x"`)
	assert.Error(t, err)
}
