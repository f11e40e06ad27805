// Copyright 2017 Fortio Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metronerr defines the small set of error kinds shared across
// Metron's core packages (plan validation, transport, RPC boundary
// translation). Kinds are sentinel-wrapped errors rather than plain strings
// so callers can use errors.Is/errors.As instead of matching text.
package metronerr // import "metron.dev/metron/internal/metronerr"

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the error handling design.
type Kind int

const (
	// InvalidArgument means a malformed Plan (zero rate, empty targets, bad
	// URL, mismatched rate/duration counts). Refused at the boundary, never
	// locally recovered.
	InvalidArgument Kind = iota
	// Transport means a network, TLS, DNS, or connection pool error. Tallied
	// per-request, optionally fatal via StopOnError.
	Transport
	// HTTPStatus means a response outside 2xx. Tallied per-request,
	// optionally fatal via StopOnNon2xx.
	HTTPStatus
	// AlreadyStarted means a Signaller was started more than once.
	AlreadyStarted
	// ChannelClosed means the consumer side of a pipeline exited before the
	// producer finished feeding it.
	ChannelClosed
	// RunnerFailed means a remote runner reported a fatal error to a
	// Controller.
	RunnerFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case Transport:
		return "transport"
	case HTTPStatus:
		return "http_status"
	case AlreadyStarted:
		return "already_started"
	case ChannelClosed:
		return "channel_closed"
	case RunnerFailed:
		return "runner_failed"
	default:
		return "unknown"
	}
}

// Error is a Metron error tagged with its Kind, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, metronerr.ErrInvalidArgument) style checks by
// comparing Kind whenever the target is itself a *Error; the target's
// Message and Cause are not compared.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds a new *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a new *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// sentinels usable with errors.Is(err, metronerr.ErrInvalidArgument).
var (
	ErrInvalidArgument = &Error{Kind: InvalidArgument}
	ErrTransport       = &Error{Kind: Transport}
	ErrHTTPStatus      = &Error{Kind: HTTPStatus}
	ErrAlreadyStarted  = &Error{Kind: AlreadyStarted}
	ErrChannelClosed   = &Error{Kind: ChannelClosed}
	ErrRunnerFailed    = &Error{Kind: RunnerFailed}
)
