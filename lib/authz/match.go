// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"path"
	"strings"
)

// Match reports whether value matches a "/"-hierarchical glob:
//
//	"/site/index.html"  exact
//	"/site/*"           one segment under /site
//	"/site/**"          /site and everything below it
//	"/**/*.css"         any .css file at any depth
//	"**"                anything, including the empty string
//
// "*" and "?" never cross a "/", as in path.Match. "**" consumes zero
// or more non-empty segments. A malformed pattern matches nothing.
func Match(pattern, value string) bool {
	if pattern == "**" {
		return true
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(value, "/"))
}

// MatchAny reports whether value matches any pattern. An empty list
// matches nothing.
func MatchAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if Match(pattern, value) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, value []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for consumed := 0; consumed <= len(value); consumed++ {
				if matchSegments(rest, value[consumed:]) {
					return true
				}
				if consumed < len(value) && value[consumed] == "" {
					return false
				}
			}
			return false
		}
		if len(value) == 0 {
			return false
		}
		matched, err := path.Match(pattern[0], value[0])
		if err != nil || !matched {
			return false
		}
		pattern, value = pattern[1:], value[1:]
	}
	return len(value) == 0
}
