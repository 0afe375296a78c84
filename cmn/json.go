/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal marshals v and panics on error; used only for values whose
// shape is controlled entirely by this module (no user input).
func MustMarshal(v interface{}) []byte {
	b, err := jsonAPI.Marshal(v)
	AssertNoErr(err)
	return b
}

func Marshal(v interface{}) ([]byte, error) { return jsonAPI.Marshal(v) }

func Unmarshal(data []byte, v interface{}) error { return jsonAPI.Unmarshal(data, v) }

func NewDecoder(r io.Reader) *jsoniter.Decoder { return jsonAPI.NewDecoder(r) }
