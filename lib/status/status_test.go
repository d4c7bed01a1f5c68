// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	// The adapter contract fixes these values.
	codes := map[Status]int{
		OK: 200, Created: 201, PartialContent: 206, NotModified: 304,
		BadRequest: 400, Forbidden: 403, NotFound: 404, MethodNotAllowed: 405,
		Gone: 410, RangeNotSatisfiable: 416, InternalError: 500,
	}
	for status, code := range codes {
		assert.Equal(t, code, status.Code(), "%s", status)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "Partial Content", PartialContent.String())
	assert.Equal(t, "status(299)", Status(299).String())
}

func TestIsRedirect(t *testing.T) {
	assert.True(t, MovedPermanently.IsRedirect())
	assert.True(t, PermanentRedirect.IsRedirect())
	assert.False(t, NotModified.IsRedirect())
	assert.False(t, OK.IsRedirect())
}

type shortfall struct{}

func (shortfall) Error() string { return "short" }
func (shortfall) StatusCode() Status { return PaymentRequired }

func TestFromError(t *testing.T) {
	errMissing := NewError(NotFound, "missing")

	assert.Equal(t, OK, FromError(nil))
	assert.Equal(t, NotFound, FromError(errMissing))
	assert.Equal(t, NotFound, FromError(fmt.Errorf("reading /a: %w", errMissing)))
	assert.Equal(t, PaymentRequired, FromError(fmt.Errorf("wrapped: %w", shortfall{})))
	assert.Equal(t, InternalError, FromError(errors.New("disk on fire")))
}
