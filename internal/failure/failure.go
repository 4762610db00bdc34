// Copyright 2026 Google LLC. All Rights Reserved.
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

// Package failure holds the tagged failures reported by a boot attempt.
//
// Every backend, the container loader and the source selector report problems
// as *Error values carrying a Kind, so that the boot sequence can decide
// whether the attempt must halt without knowing which component failed.
package failure

import (
	"errors"
	"fmt"
)

// Kind tags a failure.
type Kind int

const (
	// Unknown is never produced deliberately; it is what KindOf returns for
	// errors which did not come from this package.
	Unknown Kind = iota
	// SourceUnavailable means the boot source could not be brought up at all:
	// a mount failure, or a mode value with no backend bound to it.
	SourceUnavailable
	// OpenFailed means the boot image could not be opened on the source.
	OpenFailed
	// ReadFailed means the source failed part way through a transfer.
	ReadFailed
	// VerifyMismatch means two samples of the same data differed.
	VerifyMismatch
	// TimeoutExhausted means a device or peer never became ready within the
	// bounded number of polls or retries.
	TimeoutExhausted
	// ProtocolError means the peer sent an error or a malformed packet.
	ProtocolError
	// CapacityExceeded means the image does not fit in the staging buffer.
	CapacityExceeded
	// FormatInvalid means the staged bytes are not a loadable container.
	FormatInvalid
)

var kindNames = map[Kind]string{
	Unknown:           "unknown",
	SourceUnavailable: "source-unavailable",
	OpenFailed:        "open-failed",
	ReadFailed:        "read-failed",
	VerifyMismatch:    "verify-mismatch",
	TimeoutExhausted:  "timeout-exhausted",
	ProtocolError:     "protocol-error",
	CapacityExceeded:  "capacity-exceeded",
	FormatInvalid:     "format-invalid",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Class groups kinds the way they are reported to the operator.
type Class string

const (
	ClassSourceUnavailable Class = "source-unavailable"
	ClassTransfer          Class = "transfer-failure"
	ClassIntegrity         Class = "integrity-failure"
	ClassCapacity          Class = "capacity-exceeded"
	ClassFormat            Class = "format-invalid"
)

// Class returns the reporting class of k.
func (k Kind) Class() Class {
	switch k {
	case SourceUnavailable, OpenFailed:
		return ClassSourceUnavailable
	case VerifyMismatch:
		return ClassIntegrity
	case CapacityExceeded:
		return ClassCapacity
	case FormatInvalid:
		return ClassFormat
	default:
		return ClassTransfer
	}
}

// Fatal reports whether a failure of this kind must end the boot attempt.
// Integrity failures are logged and the transfer carries on.
func (k Kind) Fatal() bool {
	return k != VerifyMismatch
}

// Error is a tagged failure.
type Error struct {
	Kind Kind
	// Op names the step which failed, e.g. "mount" or "block 07".
	Op  string
	Err error
}

// New returns a new tagged failure.
// err may be nil when there's no underlying cause to wrap.
func New(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Errorf returns a new tagged failure wrapping a formatted error.
func Errorf(k Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, failure.Sentinel(kind)) style checks: a target
// *Error with no Op and no Err matches any failure of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinel returns a value usable as the target of errors.Is for kind k.
func Sentinel(k Kind) error {
	return &Error{Kind: k}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
