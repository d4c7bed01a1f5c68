// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package status defines the outcome codes the engine reports to a
// web-facing adapter, and the error type that carries them.
//
// Every sentinel error in the engine is a *Error so an adapter can
// map any failure to a code with [FromError] without importing the
// package that produced it.
package status

import (
	"errors"
	"fmt"
)

// Status is an outcome code. Values match their HTTP counterparts.
type Status int

const (
	OK                  Status = 200
	Created             Status = 201
	PartialContent      Status = 206
	MovedPermanently    Status = 301
	Found               Status = 302
	NotModified         Status = 304
	TemporaryRedirect   Status = 307
	PermanentRedirect   Status = 308
	BadRequest          Status = 400
	PaymentRequired     Status = 402
	Forbidden           Status = 403
	NotFound            Status = 404
	MethodNotAllowed    Status = 405
	Gone                Status = 410
	PayloadTooLarge     Status = 413
	RangeNotSatisfiable Status = 416
	InternalError       Status = 500
)

var statusText = map[Status]string{
	OK:                  "OK",
	Created:             "Created",
	PartialContent:      "Partial Content",
	MovedPermanently:    "Moved Permanently",
	Found:               "Found",
	NotModified:         "Not Modified",
	TemporaryRedirect:   "Temporary Redirect",
	PermanentRedirect:   "Permanent Redirect",
	BadRequest:          "Bad Request",
	PaymentRequired:     "Payment Required",
	Forbidden:           "Forbidden",
	NotFound:            "Not Found",
	MethodNotAllowed:    "Method Not Allowed",
	Gone:                "Gone",
	PayloadTooLarge:     "Payload Too Large",
	RangeNotSatisfiable: "Range Not Satisfiable",
	InternalError:       "Internal Error",
}

// String returns the reason phrase, e.g. "Partial Content".
func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Code returns the numeric code.
func (s Status) Code() int { return int(s) }

// IsRedirect reports whether s is a 3xx redirect that carries a
// location (304 is excluded).
func (s Status) IsRedirect() bool {
	return s >= 300 && s < 400 && s != NotModified
}

// Error is an engine error with an associated outcome code. Sentinel
// errors are compared by identity with errors.Is.
type Error struct {
	Status  Status
	Message string
}

// NewError creates a sentinel error with the given code.
func NewError(code Status, message string) *Error {
	return &Error{Status: code, Message: message}
}

func (e *Error) Error() string { return e.Message }

// Coded is implemented by error types that carry their own outcome
// code (typed errors with payload, such as the royalty shortfall).
type Coded interface {
	StatusCode() Status
}

// StatusCode implements Coded.
func (e *Error) StatusCode() Status { return e.Status }

// FromError maps err to an outcome code. nil maps to OK; errors that
// carry no code map to InternalError.
func FromError(err error) Status {
	if err == nil {
		return OK
	}
	var coded Coded
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	return InternalError
}
