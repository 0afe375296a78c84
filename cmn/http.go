/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"net/http"
	"strings"
)

// InvalidHandlerDetailed writes a plain-text error body and status code,
// defaulting to 400. Grounded on the teacher's invalmsghdlr/InvalidHandler
// convention (tomzhang-aistore/ais/httpcommon.go): the last error-handling
// call made by any HTTP handler.
func InvalidHandlerDetailed(w http.ResponseWriter, r *http.Request, msg string, errCode ...int) {
	status := http.StatusBadRequest
	if len(errCode) > 0 && errCode[0] != 0 {
		status = errCode[0]
	}
	http.Error(w, msg, status)
}

// MatchRESTItems splits an URL path into exactly itemsAfter non-empty
// segments following a fixed prefix depth, failing otherwise. Used by the
// request initializer to enforce the "/<device>/<partition>" path shape.
func MatchRESTItems(path string, itemsAfter int, splitAfter bool, prefix ...string) ([]string, error) {
	split := strings.Split(strings.Trim(path, "/"), "/")
	if len(split) < len(prefix) {
		return nil, fmt.Errorf("invalid path %q", path)
	}
	for i, p := range prefix {
		if split[i] != p {
			return nil, fmt.Errorf("invalid path %q: expected %q at position %d", path, p, i)
		}
	}
	rest := split[len(prefix):]
	if splitAfter && len(rest) != itemsAfter {
		return nil, fmt.Errorf("invalid path %q: expected %d item(s), got %d", path, itemsAfter, len(rest))
	}
	return rest, nil
}
