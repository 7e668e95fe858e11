// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies failures so callers can decide between aborting the
// run, reporting and continuing, or retrying with different parameters.
type ErrorCode string

const (
	// ErrCodeConfig indicates invalid or incomplete run configuration,
	// such as a missing scripts root or a missing control-plane address.
	// Always fatal to the run.
	ErrCodeConfig ErrorCode = "CONFIG"
	// ErrCodeInventory indicates the host inventory could not be obtained
	// at all. Always fatal to the run.
	ErrCodeInventory ErrorCode = "INVENTORY"
	// ErrCodeFiltered indicates the inventory was non-empty but filtering
	// removed every host. Recoverable; the caller decides.
	ErrCodeFiltered ErrorCode = "ALL_FILTERED"
	// ErrCodeConflict indicates a second fan-out run was attempted while
	// one was already in flight.
	ErrCodeConflict ErrorCode = "RUN_IN_PROGRESS"
	// ErrCodeExec indicates a remote execution failure.
	ErrCodeExec ErrorCode = "EXEC"
	// ErrCodePublish indicates an artifact publish failure.
	ErrCodePublish ErrorCode = "PUBLISH"
)

// StructuredError carries an error code for programmatic handling, a
// human-readable message, the underlying cause, and optional context.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{Code: code, Message: message, Cause: cause}
}

// WithContext attaches debugging context to the error and returns it.
func (e *StructuredError) WithContext(ctx map[string]any) *StructuredError {
	e.Context = ctx
	return e
}

// CodeOf returns the code of err if it is (or wraps) a StructuredError.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}
