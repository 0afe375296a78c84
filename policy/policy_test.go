/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package policy

import "testing"

func TestNewRegistrySeedsLegacyDefault(t *testing.T) {
	r := NewRegistry()
	p, err := r.Lookup(LegacyDefault)
	if err != nil {
		t.Fatalf("Lookup(LegacyDefault): %v", err)
	}
	if p.EC {
		t.Error("legacy default policy must not be erasure-coded")
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(Policy{Index: 1, Name: "ec-default", EC: true})

	p, err := r.Lookup(1)
	if err != nil {
		t.Fatalf("Lookup(1): %v", err)
	}
	if !p.EC || p.Name != "ec-default" {
		t.Errorf("unexpected policy: %+v", p)
	}
}

func TestLookupUnknownIndex(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup(99); err == nil {
		t.Error("expected error looking up an unregistered policy index")
	}
}
