// admin client: tiny HTTP GET + jsoniter decode helper, the same pattern
// the teacher's cli/commands use against the cluster's own API (api.Get*
// calls in show_hdlr.go), scoped down to ssyncd's two admin endpoints.
/*
 * Copyright (c) 2019, NVIDIA CORPORATION. All rights reserved.
 */
package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func getJSON(baseURL, path string, query url.Values, out interface{}) error {
	u := baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := httpClient.Get(u)
	if err != nil {
		return fmt.Errorf("ssyncctl: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ssyncctl: %s: status %d", u, resp.StatusCode)
	}
	dec := jsoniter.NewDecoder(resp.Body)
	return dec.Decode(out)
}
