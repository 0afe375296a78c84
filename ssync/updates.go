/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ssync

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

const (
	labelUpdatesStart = "updates start"
	labelUpdatesLine  = "updates line"
)

// subRequest is one parsed PUT/POST/DELETE embedded in the updates stream
// (spec §4.4).
type subRequest struct {
	method  string
	path    string
	headers map[string]string // lowercased names
	length  int64
	hasCL   bool
	err     string // structural validation failure, if any
}

// runUpdates implements spec §4.4: parse and dispatch sub-requests in wire
// order until ":UPDATES: END" or a structural error or the abort-ratio policy
// trips. The returned bool reports whether the phase was aborted (in which
// case the caller must not also write the END marker: the abort already
// closed the stream with an in-band :ERROR: line).
func runUpdates(sess *session) (aborted bool, err error) {
	if _, err := sess.lr.ReadLine(labelUpdatesStart); err != nil {
		return false, err
	}
	for {
		line, err := sess.lr.ReadLine(labelUpdatesLine)
		if err != nil {
			return false, err
		}
		if string(line) == markerUpdatesEnd {
			return false, nil
		}

		sub, parseErr := parseRequestLine(line)
		if parseErr != nil {
			return false, parseErr
		}

		ok, structErr := readSubRequestHeaders(sess, sub)
		if structErr != nil {
			return false, structErr
		}
		if !ok {
			// A structurally invalid sub-request is fatal: the original
			// raises and ends the session on a single :ERROR: line, it does
			// not count toward the failure-ratio abort policy.
			if err := sess.fr.errorLine(0, sub.err); err != nil {
				return false, err
			}
			return true, nil
		}

		success, dispatchErr := dispatchSubRequest(sess, sub)
		if dispatchErr != nil {
			return false, dispatchErr
		}
		if success {
			sess.successCount++
		} else {
			sess.failureCount++
		}
		if abortIfNeeded(sess) {
			return true, nil
		}
	}
}

// wrapEarlyTermination renders spec §4.4's exact message for a body that
// ends before its declared Content-Length is satisfied, while preserving
// the read error's code for the in-band :ERROR: line.
func wrapEarlyTermination(err error, sub *subRequest) error {
	re, ok := err.(*ReadError)
	if !ok || re.Timeout {
		return err
	}
	return &ReadError{Label: re.Label, Timeout: false, cause: fmt.Errorf("Early termination for %s %s", sub.method, sub.path)}
}

func parseRequestLine(line []byte) (*subRequest, error) {
	fields := strings.SplitN(string(line), " ", 2)
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed updates request line %q", line)
	}
	return &subRequest{method: fields[0], path: fields[1], headers: map[string]string{}}, nil
}

// readSubRequestHeaders reads the header block up to and including the
// terminating blank line, validating the structural rules spec §4.4 lists.
// A false ok return means the sub-request is structurally invalid; the
// caller treats that as fatal, but the stream must still be left in a
// consistent state first — if a Content-Length was already parsed off of
// this sub-request's own header block (e.g. a DELETE carrying one), that
// declared body is still out on the wire and must be drained before
// readSubRequestHeaders returns, even though nothing downstream will read it.
func readSubRequestHeaders(sess *session, sub *subRequest) (ok bool, err error) {
	sawHeader := false
	for {
		line, rerr := sess.lr.ReadLine(labelUpdatesLine)
		if rerr != nil {
			return false, rerr
		}
		if len(line) == 0 {
			break
		}
		sawHeader = true
		idx := bytes.IndexByte(line, ':')
		if idx < 0 {
			return false, fmt.Errorf("UNPACK_ERR: %q", line)
		}
		name := strings.ToLower(strings.TrimSpace(string(line[:idx])))
		value := strings.TrimSpace(string(line[idx+1:]))
		sub.headers[name] = value
	}
	if !sawHeader {
		sub.err = fmt.Sprintf("Got no headers for %s %s", sub.method, sub.path)
		return false, nil
	}

	if cl, present := sub.headers["content-length"]; present {
		n, perr := strconv.ParseInt(cl, 10, 64)
		if perr != nil {
			sub.err = perr.Error()
			return false, nil
		}
		sub.length = n
		sub.hasCL = true
	}

	switch sub.method {
	case "PUT":
		if !sub.hasCL {
			sub.err = fmt.Sprintf("No content-length sent for %s", sub.path)
			return false, nil
		}
	case "DELETE":
		if sub.hasCL {
			sub.err = fmt.Sprintf("DELETE subrequest with content-length %s", sub.path)
			return drainDeclaredBody(sess, sub)
		}
	case "POST":
		// Content-Length optional for POST (metadata-only overlay).
	default:
		sub.err = fmt.Sprintf("Invalid subrequest method %s", sub.method)
		return false, nil
	}
	return true, nil
}

// drainDeclaredBody discards the sub-request's declared Content-Length body
// before reporting a structural error, so the stream stays byte-aligned even
// though the session is about to terminate on this sub-request.
func drainDeclaredBody(sess *session, sub *subRequest) (bool, error) {
	if derr := sess.lr.Discard(labelUpdatesLine, sub.length); derr != nil {
		return false, derr
	}
	return false, nil
}

// dispatchSubRequest reads the declared body (if any), rewrites headers,
// and invokes the Dispatcher, always draining exactly the declared length
// regardless of outcome (spec invariant 4, §4.4, §7 kind 5).
func dispatchSubRequest(sess *session, sub *subRequest) (success bool, err error) {
	var body []byte
	if sub.length > 0 {
		body, err = sess.lr.ReadBody(labelUpdatesLine, sub.length)
		if err != nil {
			return false, wrapEarlyTermination(err, sub)
		}
	}

	rewritten := rewriteHeaders(sess, sub.headers)
	status, dispErr := sess.dsp.Dispatch(sub.method, sub.path, rewritten, bytes.NewReader(body), sub.length)
	if dispErr != nil {
		glog.Warningf("ssync %s/%s: %s %s failed: %v", sess.device, sess.partition, sub.method, sub.path, dispErr)
		return false, nil
	}
	if status < 200 || status >= 300 {
		glog.Warningf("ssync %s/%s: %s %s -> %d", sess.device, sess.partition, sub.method, sub.path, status)
		return false, nil
	}
	if sess.stats != nil && sub.length > 0 {
		sess.stats.AddBytes(sess.device, sess.partition, sub.length)
	}
	return true, nil
}

// rewriteHeaders implements spec §4.4's header-rewriting rules before
// dispatch: inject policy/replication/frag-index headers, and compose
// X-Backend-Replication-Headers from everything else the peer sent.
func rewriteHeaders(sess *session, incoming map[string]string) map[string]string {
	excluded := map[string]bool{
		"etag":                  true,
		"x-backend-no-commit":   true,
		strings.ToLower(hdrPolicyIndex): true,
		strings.ToLower(hdrReplication): true,
		strings.ToLower(hdrFragIndex):   true,
	}

	var names []string
	out := make(map[string]string, len(incoming)+3)
	for k, v := range incoming {
		out[k] = v
		if !excluded[k] {
			names = append(names, k)
		}
	}

	out[strings.ToLower(hdrPolicyIndex)] = strconv.Itoa(sess.policy.Index)
	out[strings.ToLower(hdrReplication)] = "True"
	if sess.fragIndex != noFragIndex {
		out[strings.ToLower(hdrFragIndex)] = strconv.Itoa(sess.fragIndex)
	}
	out[strings.ToLower(hdrReplicationHdr)] = strings.Join(names, " ")
	return out
}

// abortIfNeeded evaluates the failure-ratio abort policy after each
// sub-request (spec §4.4, §8): fires iff failure_count >= threshold AND
// failure_count > ratio * success_count.
func abortIfNeeded(sess *session) bool {
	f, s := sess.failureCount, sess.successCount
	if f < sess.cfg.FailureThreshold {
		return false
	}
	if float64(f) <= sess.cfg.FailureRatio*float64(s) {
		return false
	}
	sess.fr.errorLine(0, fmt.Sprintf("Too many %d failures to %d successes", f, s))
	return true
}
