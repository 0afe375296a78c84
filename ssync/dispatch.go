/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ssync

import (
	"io"
	"net/http"
	"strings"

	"github.com/ais-oss/ssyncd/cmn"
	"github.com/ais-oss/ssyncd/policy"
	"github.com/ais-oss/ssyncd/store"
)

// Dispatcher is the "local object server's internal handlers" collaborator
// spec §4.4/§9 describes: given a parsed sub-request, apply it and report an
// HTTP-shaped outcome. Rather than replaying the sub-request as a new HTTP
// request against a loopback socket, the default implementation constructs
// the call directly against the store (spec §9 "Sub-request dispatch").
type Dispatcher interface {
	Dispatch(method, path string, headers map[string]string, body io.Reader, length int64) (statusCode int, err error)
}

// storeDispatcher is the default Dispatcher, translating PUT/POST/DELETE
// sub-requests directly into store.Store calls. The sub-request path is
// "/<device>/<partition>/<account>/<container>/<object>" (spec scenario 5);
// only the trailing a/c/o triple is hashed, the device/partition prefix
// having already been consumed by the request initializer.
type storeDispatcher struct {
	store     store.Store
	policy    policy.Policy
	fragIndex int
}

func (d *storeDispatcher) Dispatch(method, path string, headers map[string]string, body io.Reader, length int64) (int, error) {
	objectHash := hashSubRequestPath(path)
	ts, err := cmn.ParseTimestamp(headers["x-timestamp"])
	if err != nil {
		return http.StatusBadRequest, err
	}

	switch method {
	case http.MethodPut:
		if err := d.store.WritePut(objectHash, ts, d.fragIndex, headers, body, length); err != nil {
			return http.StatusInternalServerError, err
		}
		return http.StatusCreated, nil
	case http.MethodPost:
		if err := d.store.ApplyPost(objectHash, ts, headers); err != nil {
			return http.StatusInternalServerError, err
		}
		return http.StatusAccepted, nil
	case http.MethodDelete:
		if err := d.store.ApplyDelete(objectHash, ts); err != nil {
			return http.StatusInternalServerError, err
		}
		return http.StatusNoContent, nil
	default:
		return http.StatusBadRequest, errInvalidMethod(method)
	}
}

func hashSubRequestPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	n := len(parts)
	return cmn.ObjectHash(parts[n-3], parts[n-2], parts[n-1])
}

type invalidMethodError string

func (e invalidMethodError) Error() string { return "Invalid subrequest method " + string(e) }

func errInvalidMethod(m string) error { return invalidMethodError(m) }
