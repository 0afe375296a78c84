/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"strconv"
	"strings"
)

// Timestamp is a strictly monotonic 64-bit rational (whole seconds plus a
// fixed-point fraction) with an auxiliary offset tiebreaker, matching the
// three-timestamp data model in spec §3 (ts_data, ts_meta, ts_ctype).
// Offsets are never normalized away: two timestamps with equal Secs but
// different Offset are distinct, and the later offset wins strict comparison.
type Timestamp struct {
	Secs   int64  // whole seconds since epoch
	Frac   int64  // fractional part, fixed at 1e5 resolution (Swift-compatible "%.5f")
	Offset uint64 // tiebreaker, carried through encode/decode unchanged
}

const fracScale = 100000 // 5 decimal digits, as in "1364456113.00003"

// ParseTimestamp parses the canonical decimal form, optionally suffixed with
// "+<hexoffset>" (the on-the-wire representation used outside the
// missing-check row's compact delta encoding).
func ParseTimestamp(s string) (Timestamp, error) {
	var offsetHex string
	if i := strings.IndexByte(s, '+'); i >= 0 {
		offsetHex = s[i+1:]
		s = s[:i]
	}
	secsPart := s
	fracPart := "0"
	if i := strings.IndexByte(s, '.'); i >= 0 {
		secsPart = s[:i]
		fracPart = s[i+1:]
	}
	secs, err := strconv.ParseInt(secsPart, 10, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %v", s, err)
	}
	for len(fracPart) < 5 {
		fracPart += "0"
	}
	frac, err := strconv.ParseInt(fracPart[:5], 10, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %v", s, err)
	}
	var offset uint64
	if offsetHex != "" {
		offset, err = strconv.ParseUint(offsetHex, 16, 64)
		if err != nil {
			return Timestamp{}, fmt.Errorf("invalid timestamp offset %q: %v", offsetHex, err)
		}
	}
	return Timestamp{Secs: secs, Frac: frac, Offset: offset}, nil
}

// String renders the canonical form; the offset suffix is only emitted when
// non-zero, matching the wire contract's tolerance for omitted offsets.
func (t Timestamp) String() string {
	s := fmt.Sprintf("%d.%05d", t.Secs, t.Frac)
	if t.Offset != 0 {
		s += fmt.Sprintf("+%x", t.Offset)
	}
	return s
}

// ticks returns the same value normalized into a single comparable int64
// of "ticks" (1e5 per second). Used by Add, Delta and the comparisons below.
func (t Timestamp) ticks() int64 { return t.Secs*fracScale + t.Frac }

// Add returns t shifted forward by a non-negative hex-delta number of ticks,
// as used to decode the missing-check row's "m:<hexΔ>" / "t:<hexΔ>" subparts.
// The result carries base's Offset, not any distinct offset the original
// value had: decode(encode(x)) == x does not hold when x.TsMeta/TsCtype carry
// an Offset different from x.TsData's, since the compact delta encoding has
// no room for a second offset.
func (t Timestamp) Add(deltaTicks int64) Timestamp {
	total := t.ticks() + deltaTicks
	return Timestamp{Secs: total / fracScale, Frac: total % fracScale, Offset: t.Offset}
}

// Delta returns the tick difference (t - base), for encoding; the result is
// negative when t precedes base.
func (t Timestamp) Delta(base Timestamp) int64 {
	return t.ticks() - base.ticks()
}

// Before reports whether t strictly precedes o: whole value first, offset
// breaks ties (a later offset at equal value wins).
func (t Timestamp) Before(o Timestamp) bool {
	if t.ticks() != o.ticks() {
		return t.ticks() < o.ticks()
	}
	return t.Offset < o.Offset
}

// Equal reports exact equality, offset included.
func (t Timestamp) Equal(o Timestamp) bool {
	return t.ticks() == o.ticks() && t.Offset == o.Offset
}

// After is the strict complement of Before/Equal.
func (t Timestamp) After(o Timestamp) bool {
	return !t.Before(o) && !t.Equal(o)
}

// GreaterEqual reports t >= o.
func (t Timestamp) GreaterEqual(o Timestamp) bool {
	return !t.Before(o)
}

func (t Timestamp) IsZero() bool {
	return t.Secs == 0 && t.Frac == 0 && t.Offset == 0
}
