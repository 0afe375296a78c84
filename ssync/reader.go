/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ssync

import (
	"bufio"
	"io"
	"time"
)

// LineReader reads CRLF-terminated lines and fixed-length bodies from a
// single request's body stream, bounded by a client_timeout on every read
// (spec §4.1). There is no concurrent use of a LineReader: one session owns
// it exclusively for its lifetime (spec §9 "Ownership").
type LineReader struct {
	raw     io.Reader // the reader passed to NewLineReader, pre-bufio.Reader wrap
	br      *bufio.Reader
	timeout time.Duration
}

func NewLineReader(r io.Reader, timeout time.Duration) *LineReader {
	return &LineReader{raw: r, br: bufio.NewReader(r), timeout: timeout}
}

// deadliner is implemented by net.Conn and http-body wrappers that expose a
// per-read deadline; when the underlying reader doesn't implement it, reads
// are simply run to completion without a hard per-read timeout enforced at
// this layer (the HTTP server's own read timeout still applies).
type deadliner interface {
	SetReadDeadline(time.Time) error
}

// setDeadline must type-assert the raw reader passed into NewLineReader, not
// the bufio.Reader wrapping it: bufio.Reader never implements SetReadDeadline,
// so asserting against lr.br would always be a no-op and client_timeout would
// never actually be enforced.
func (lr *LineReader) setDeadline() {
	if d, ok := lr.raw.(deadliner); ok {
		d.SetReadDeadline(time.Now().Add(lr.timeout))
	}
}

// ReadLine returns the next line without its CRLF terminator. label
// identifies the phase for error reporting (spec §4.1).
func (lr *LineReader) ReadLine(label string) ([]byte, error) {
	lr.setDeadline()
	line, err := lr.br.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			if len(line) == 0 {
				return nil, earlyTerminationErr(label, err)
			}
			return nil, earlyTerminationErr(label, err)
		}
		if isTimeout(err) {
			return nil, timeoutErr(label, err)
		}
		return nil, earlyTerminationErr(label, err)
	}
	line = trimCRLF(line)
	return line, nil
}

// ReadBody returns exactly n bytes. Same failure modes as ReadLine. Callers
// MUST call ReadBody (or Discard) for the full declared length even after a
// sub-request has already failed (spec §4.1, §4.4: correctness requirement,
// not an optimization).
func (lr *LineReader) ReadBody(label string, n int64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	lr.setDeadline()
	buf := make([]byte, n)
	_, err := io.ReadFull(lr.br, buf)
	if err != nil {
		if isTimeout(err) {
			return nil, timeoutErr(label, err)
		}
		return nil, earlyTerminationErr(label, err)
	}
	return buf, nil
}

// Discard reads and discards exactly n bytes, used to drain an unread body
// after a sub-request has already failed.
func (lr *LineReader) Discard(label string, n int64) error {
	if n == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, lr.br, n)
	if err != nil {
		if isTimeout(err) {
			return timeoutErr(label, err)
		}
		return earlyTerminationErr(label, err)
	}
	return nil
}

func trimCRLF(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r') {
		n--
	}
	return b[:n]
}

type timeouter interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}
