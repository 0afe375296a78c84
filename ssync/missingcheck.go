/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ssync

import (
	"github.com/golang/glog"

	"github.com/ais-oss/ssyncd/cmn"
	"github.com/ais-oss/ssyncd/store"
)

const (
	labelMissingCheckStart = "missing_check start"
	labelMissingCheckLine  = "missing_check line"
)

// runMissingCheck implements spec §4.3: consume the peer's START marker and
// rows until ":MISSING_CHECK: END", comparing each row to local state and
// emitting a "wanted" reply per the reconciliation table, with opportunistic
// non-durable-to-durable promotion.
func runMissingCheck(sess *session) error {
	if _, err := sess.lr.ReadLine(labelMissingCheckStart); err != nil {
		return err
	}
	for {
		line, err := sess.lr.ReadLine(labelMissingCheckLine)
		if err != nil {
			return err
		}
		if string(line) == markerMissingEnd {
			return nil
		}
		row, err := decodeMissingRow(line)
		if err != nil {
			return err
		}
		wanted := reconcile(sess, row)
		if wanted != "" {
			if err := sess.fr.replyRow(row.Hash, wanted); err != nil {
				return err
			}
		}
	}
}

// reconcile is a pure function of the peer's announced tuple and the local
// record (spec invariant 2); it returns the wanted code or "" for no reply.
func reconcile(sess *session, row missingRow) string {
	local, ok, err := sess.store.Lookup(row.Hash)
	if err != nil {
		glog.Warningf("ssync %s/%s: lookup %s: %v", sess.device, sess.partition, row.Hash, err)
		return "dm"
	}
	if !ok {
		return "dm"
	}

	if local.TsData.Before(row.TsData) {
		return "dm"
	}
	if local.TsData.After(row.TsData) {
		return "" // local data newer than remote (data or tombstone): no reply
	}

	// local.TsData == row.TsData
	if !local.Durable && row.Durable {
		if promoteDurable(sess, local, row) {
			return ""
		}
		return "dm"
	}
	if local.TsMeta.Before(row.TsMeta) {
		return "m"
	}
	return ""
}

// promoteDurable implements spec §4.3's idempotent promotion rule and the
// commit-failure downgrade: on error the row is reported "dm" instead and
// the exception is logged, without aborting the session.
func promoteDurable(sess *session, local store.FragmentRecord, row missingRow) bool {
	if err := sess.store.MarkDurable(row.Hash, row.TsData, local.FragIndex); err != nil {
		glog.Errorf("ssync %s/%s: mark-durable %s: %v", sess.device, sess.partition, row.Hash, err)
		return false
	}
	return true
}
