/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ssync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ais-oss/ssyncd/cmn"
)

const (
	markerMissingStart = ":MISSING_CHECK: START"
	markerMissingEnd   = ":MISSING_CHECK: END"
	markerUpdatesStart = ":UPDATES: START"
	markerUpdatesEnd   = ":UPDATES: END"
)

// missingRow is one decoded line of the missing-check phase: spec §4.3's
// "<hash> <ts_data>[ <delta-list>][ <ignored-extras...>]".
type missingRow struct {
	Hash    string
	TsData  cmn.Timestamp
	TsMeta  cmn.Timestamp
	TsCtype cmn.Timestamp
	Durable bool
}

// decodeMissingRow parses one announced row. Unknown delta-list subparts and
// trailing whitespace-separated tokens are tolerated (spec §4.3, §9
// "Forward-compatible rows") — this must never be tightened.
func decodeMissingRow(line []byte) (missingRow, error) {
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return missingRow{}, fmt.Errorf("malformed missing-check row %q", line)
	}
	hash := fields[0]
	tsData, err := cmn.ParseTimestamp(fields[1])
	if err != nil {
		return missingRow{}, fmt.Errorf("malformed missing-check row %q: %v", line, err)
	}
	row := missingRow{Hash: hash, TsData: tsData, TsMeta: tsData, TsCtype: tsData, Durable: true}
	if len(fields) >= 3 {
		for _, part := range strings.Split(fields[2], ",") {
			kv := strings.SplitN(part, ":", 2)
			if len(kv) != 2 {
				continue // unknown subpart shape, tolerated
			}
			switch kv[0] {
			case "m":
				delta, err := strconv.ParseInt(kv[1], 16, 64)
				if err != nil {
					return missingRow{}, fmt.Errorf("malformed m: delta in row %q: %v", line, err)
				}
				row.TsMeta = tsData.Add(delta)
			case "t":
				delta, err := strconv.ParseInt(kv[1], 16, 64)
				if err != nil {
					return missingRow{}, fmt.Errorf("malformed t: delta in row %q: %v", line, err)
				}
				row.TsCtype = tsData.Add(delta)
			case "durable":
				switch kv[1] {
				case "yes", "true", "True":
					row.Durable = true
				case "no", "false", "False":
					row.Durable = false
				default:
					// unknown value, tolerated per forward-compatibility
				}
			default:
				// unknown subpart, tolerated
			}
		}
	}
	return row, nil
}

// encodeMissingRow is the inverse of decodeMissingRow, used by tests to
// assert the round-trip law (spec §8). Encoding is canonical: "m:" appears
// iff ts_meta > ts_data, "t:" iff ts_ctype > ts_data, "durable:no" iff the
// fragment is not durable.
func encodeMissingRow(row missingRow) string {
	var parts []string
	if row.TsMeta.After(row.TsData) {
		parts = append(parts, fmt.Sprintf("m:%x", row.TsMeta.Delta(row.TsData)))
	}
	if row.TsCtype.After(row.TsData) {
		parts = append(parts, fmt.Sprintf("t:%x", row.TsCtype.Delta(row.TsData)))
	}
	if !row.Durable {
		parts = append(parts, "durable:no")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s %s", row.Hash, row.TsData)
	}
	return fmt.Sprintf("%s %s %s", row.Hash, row.TsData, strings.Join(parts, ","))
}
