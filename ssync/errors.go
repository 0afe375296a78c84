// Package ssync is the SSYNC streaming-replication receiver: the
// request-initializer, missing-check, updates, and response-framer state
// machine described by the wire protocol this daemon serves. It is the
// hardest engineering in this module and carries the protocol's entire
// correctness surface.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ssync

import "fmt"

// ReadError is returned by LineReader on timeout or premature EOF, carrying
// the label of the read it interrupted (spec §4.1: "so that failures can be
// reported with the phase they interrupted").
type ReadError struct {
	Label   string
	Timeout bool // true => Timeout, false => EarlyTermination
	cause   error
}

func (e *ReadError) Error() string {
	kind := "early termination"
	if e.Timeout {
		kind = "timeout"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s reading %s: %v", kind, e.Label, e.cause)
	}
	return fmt.Sprintf("%s reading %s", kind, e.Label)
}

func (e *ReadError) Unwrap() error { return e.cause }

// Code returns the in-band :ERROR: numeral spec §7 assigns: 408 for
// timeouts, 0 for generic read/parse errors.
func (e *ReadError) Code() int {
	if e.Timeout {
		return 408
	}
	return 0
}

func timeoutErr(label string, cause error) *ReadError {
	return &ReadError{Label: label, Timeout: true, cause: cause}
}

func earlyTerminationErr(label string, cause error) *ReadError {
	return &ReadError{Label: label, Timeout: false, cause: cause}
}

// InitError is returned by the request initializer. Most steps fail before
// any response framing is committed, so they map directly to an HTTP-level
// status with no framing emitted (spec §4.2, §7 kind 1). The one exception is
// a replication-lock timeout (spec §4.2 step 6): the original always answers
// 200 and reports the timeout as an in-band ":ERROR:" line, so that case sets
// InBand and Code instead of an HTTP error status.
type InitError struct {
	Status  int
	Message string
	InBand  bool
	Code    int
}

func (e *InitError) Error() string { return e.Message }

func newInitError(status int, format string, args ...interface{}) *InitError {
	return &InitError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// newLockTimeoutError renders the lock-acquire timeout as an in-band error:
// the request initializer still answers 200, writes the framer's opening
// sequence, and terminates on a single ":ERROR: 0 '<msg>'" line.
func newLockTimeoutError(msg string) *InitError {
	return &InitError{InBand: true, Code: 0, Message: msg}
}
