/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "github.com/OneOfOne/xxhash"

// ObjectHash computes the fixed-width hex object_hash spec §3 keys fragments
// by, from the (account, container, object) tuple. Grounded on the teacher's
// xxhash.ChecksumString32S usage for its own daemon-identity hash
// (ais/httpcommon.go).
func ObjectHash(account, container, object string) string {
	h := xxhash.New64()
	h.WriteString(account)
	h.WriteString("/")
	h.WriteString(container)
	h.WriteString("/")
	h.WriteString(object)
	return toHex16(h.Sum64())
}

func toHex16(v uint64) string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexdigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
