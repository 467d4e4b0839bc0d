// errors.go: structured error handling for concur
//
// This file provides structured error types using the go-errors library
// for contract violations and resource exhaustion. Structural refusals
// (a FIFO is full, a CAS missed, a key is absent) are plain bool returns
// elsewhere in the package and never appear here.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package concur

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for concur operations.
const (
	// Registration errors
	ErrCodeAllocationFailed errors.ErrorCode = "CONCUR_ALLOCATION_FAILED"
	ErrCodeNotRegistered    errors.ErrorCode = "CONCUR_THREAD_NOT_REGISTERED"
	ErrCodeAlreadyOffline   errors.ErrorCode = "CONCUR_ALREADY_OFFLINE"
	ErrCodeAlreadyRegistered errors.ErrorCode = "CONCUR_ALREADY_REGISTERED"

	// Contract violations
	ErrCodeDoubleConsumer  errors.ErrorCode = "CONCUR_DOUBLE_CONSUMER"
	ErrCodeUseAfterRetire  errors.ErrorCode = "CONCUR_USE_AFTER_RETIRE"

	// Resource exhaustion
	ErrCodeHazardExhausted errors.ErrorCode = "CONCUR_HAZARD_SLOTS_EXHAUSTED"
	ErrCodeTableExhausted errors.ErrorCode = "CONCUR_TABLE_REPROBE_EXHAUSTED"

	// Internal errors
	ErrCodeInternal       errors.ErrorCode = "CONCUR_INTERNAL_ERROR"
	ErrCodePanicRecovered errors.ErrorCode = "CONCUR_PANIC_RECOVERED"
)

const (
	msgAllocationFailed  = "failed to allocate a thread registration record"
	msgNotRegistered     = "thread is not registered with this collector"
	msgAlreadyOffline    = "thread is already offline"
	msgAlreadyRegistered = "thread state is already registered with a collector"
	msgDoubleConsumer   = "a second concurrent consumer called Pop on a single-consumer queue"
	msgHazardExhausted  = "no free hazard-pointer record available"
	msgUseAfterRetire   = "pointer dereferenced after being retired"
	msgTableExhausted   = "reprobe limit exceeded without finding a free or matching slot"
	msgInternalError    = "internal error"
	msgPanicRecovered   = "panic recovered during an operation"
)

// NewErrAllocationFailed reports a resource-exhaustion failure registering
// a new thread with a Collector or HazardDomain.
func NewErrAllocationFailed(cause error) error {
	return errors.Wrap(cause, ErrCodeAllocationFailed, msgAllocationFailed).
		AsRetryable()
}

// NewErrNotRegistered reports a contract violation: an operation was
// attempted on behalf of a thread that never called RegisterThread.
func NewErrNotRegistered(op string) error {
	return errors.NewWithField(ErrCodeNotRegistered, msgNotRegistered, "operation", op).
		WithSeverity("critical")
}

// NewErrAlreadyOffline reports a contract violation: Offline was called
// twice without an intervening Online.
func NewErrAlreadyOffline(op string) error {
	return errors.NewWithField(ErrCodeAlreadyOffline, msgAlreadyOffline, "operation", op).
		WithSeverity("critical")
}

// NewErrAlreadyRegistered reports a contract violation: RegisterThread was
// called twice on the same ThreadState without an intervening
// DeregisterThread.
func NewErrAlreadyRegistered() error {
	return errors.New(ErrCodeAlreadyRegistered, msgAlreadyRegistered).
		WithSeverity("critical")
}

// NewErrDoubleConsumer reports a contract violation: two goroutines called
// Pop concurrently on an MPSCFifo.
func NewErrDoubleConsumer() error {
	return errors.New(ErrCodeDoubleConsumer, msgDoubleConsumer).
		WithSeverity("critical")
}

// NewErrHazardExhausted reports resource exhaustion acquiring a hazard
// record: every record in the domain is claimed by a live thread.
func NewErrHazardExhausted(threads int) error {
	return errors.NewWithField(ErrCodeHazardExhausted, msgHazardExhausted, "registered_threads", threads).
		AsRetryable()
}

// NewErrTableExhausted reports resource exhaustion: an NWFMap probe
// sequence exceeded its reprobe limit without a resize resolving it.
func NewErrTableExhausted(capacity, reprobeLimit int) error {
	return errors.NewWithContext(ErrCodeTableExhausted, msgTableExhausted, map[string]interface{}{
		"capacity":      capacity,
		"reprobe_limit": reprobeLimit,
	}).AsRetryable()
}

// NewErrInternal creates a generic internal error.
func NewErrInternal(operation string, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInternal, msgInternalError).
			WithContext("operation", operation).
			WithSeverity("warning")
	}
	return errors.NewWithField(ErrCodeInternal, msgInternalError, "operation", operation).
		WithSeverity("warning")
}

// NewErrPanicRecovered creates an error when a panic is recovered.
func NewErrPanicRecovered(operation string, panicValue interface{}) error {
	return errors.NewWithContext(ErrCodePanicRecovered, msgPanicRecovered, map[string]interface{}{
		"operation":   operation,
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// IsContractViolation checks whether err represents a misuse of the API
// contract (double consumer, unregistered thread) rather than a transient
// resource limit.
func IsContractViolation(err error) bool {
	if err == nil {
		return false
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		switch coder.ErrorCode() {
		case ErrCodeDoubleConsumer, ErrCodeNotRegistered, ErrCodeAlreadyOffline, ErrCodeUseAfterRetire, ErrCodeAlreadyRegistered:
			return true
		}
	}
	return false
}

// IsRetryable checks if the error can be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts context from an error.
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var concurErr *errors.Error
	if goerrors.As(err, &concurErr) {
		return concurErr.Context
	}
	return nil
}
