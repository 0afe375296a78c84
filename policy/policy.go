// Package policy provides the minimal storage-policy registry the receiver
// needs: whether a policy index names a replicated or erasure-coded layout.
// A full ring/placement implementation is out of scope (spec §1); this is
// just enough to drive the asymmetric EC "wanted" semantics of §4.3.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package policy

import "fmt"

// LegacyDefault is the policy index assumed when a peer omits
// X-Backend-Storage-Policy-Index entirely (spec §4.2 step 2).
const LegacyDefault = 0

type Policy struct {
	Index int
	Name  string
	EC    bool
}

type Registry struct {
	byIndex map[int]Policy
}

// NewRegistry builds a registry seeded with the legacy replicated default at
// index 0; callers add erasure-coded policies via Register.
func NewRegistry() *Registry {
	r := &Registry{byIndex: make(map[int]Policy)}
	r.Register(Policy{Index: LegacyDefault, Name: "legacy", EC: false})
	return r
}

func (r *Registry) Register(p Policy) { r.byIndex[p.Index] = p }

// Lookup returns the policy for index, or an error suitable for a 503
// response (spec §4.2 step 2: "No policy with index N").
func (r *Registry) Lookup(index int) (Policy, error) {
	p, ok := r.byIndex[index]
	if !ok {
		return Policy{}, fmt.Errorf("No policy with index %d", index)
	}
	return p, nil
}
