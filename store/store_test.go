/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package store

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/ais-oss/ssyncd/cmn"
)

func newTestDisk(t *testing.T) (*Disk, string) {
	t.Helper()
	root, err := ioutil.TempDir("", "ssync-store-test-")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })
	d, err := NewDisk(root)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return d, root
}

func ts(secs int64) cmn.Timestamp { return cmn.Timestamp{Secs: secs} }

func TestWritePutThenLookup(t *testing.T) {
	d, _ := newTestDisk(t)
	body := []byte("hello world")
	err := d.WritePut("objhash1", ts(100), -1, map[string]string{"content-type": "text/plain"}, bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("WritePut: %v", err)
	}

	rec, ok, err := d.Lookup("objhash1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected record to be found after WritePut")
	}
	if !rec.TsData.Equal(ts(100)) {
		t.Errorf("unexpected ts_data: %s", rec.TsData)
	}
	if !rec.Durable {
		t.Error("a non-EC (fragIndex < 0) PUT must be recorded durable immediately")
	}
	if rec.Length != int64(len(body)) {
		t.Errorf("length mismatch: got %d want %d", rec.Length, len(body))
	}
}

func TestWritePutECFragmentStartsNonDurable(t *testing.T) {
	d, _ := newTestDisk(t)
	body := []byte("frag")
	if err := d.WritePut("objhash2", ts(100), 3, nil, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}
	rec, _, _ := d.Lookup("objhash2")
	if rec.Durable {
		t.Error("an EC fragment write must start non-durable")
	}
	if rec.FragIndex != 3 {
		t.Errorf("expected frag index 3, got %d", rec.FragIndex)
	}
}

func TestMarkDurablePromotion(t *testing.T) {
	d, _ := newTestDisk(t)
	body := []byte("frag")
	if err := d.WritePut("objhash3", ts(100), 2, nil, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}
	if err := d.MarkDurable("objhash3", ts(100), 2); err != nil {
		t.Fatalf("MarkDurable: %v", err)
	}
	rec, _, _ := d.Lookup("objhash3")
	if !rec.Durable {
		t.Error("expected fragment to be durable after MarkDurable")
	}
}

func TestMarkDurableIsIdempotent(t *testing.T) {
	d, _ := newTestDisk(t)
	body := []byte("frag")
	if err := d.WritePut("objhash4", ts(100), 1, nil, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}
	if err := d.MarkDurable("objhash4", ts(100), 1); err != nil {
		t.Fatalf("first MarkDurable: %v", err)
	}
	if err := d.MarkDurable("objhash4", ts(100), 1); err != nil {
		t.Fatalf("second MarkDurable should be a no-op, got error: %v", err)
	}
}

func TestMarkDurableRejectsMismatch(t *testing.T) {
	d, _ := newTestDisk(t)
	body := []byte("frag")
	if err := d.WritePut("objhash5", ts(100), 1, nil, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}
	if err := d.MarkDurable("objhash5", ts(200), 1); err == nil {
		t.Error("expected error marking durable with a mismatched ts_data")
	}
	if err := d.MarkDurable("objhash5", ts(100), 9); err == nil {
		t.Error("expected error marking durable with a mismatched frag_index")
	}
}

func TestApplyPostUpdatesMetaTimestamps(t *testing.T) {
	d, _ := newTestDisk(t)
	body := []byte("data")
	if err := d.WritePut("objhash6", ts(100), -1, map[string]string{"x-custom": "v1"}, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}
	if err := d.ApplyPost("objhash6", ts(150), map[string]string{"content-type": "application/json"}); err != nil {
		t.Fatalf("ApplyPost: %v", err)
	}
	rec, _, _ := d.Lookup("objhash6")
	if !rec.TsMeta.Equal(ts(150)) {
		t.Errorf("expected ts_meta advanced to 150, got %s", rec.TsMeta)
	}
	if !rec.TsCtype.Equal(ts(150)) {
		t.Errorf("expected ts_ctype advanced when content-type present, got %s", rec.TsCtype)
	}
	if rec.Meta["x-custom"] != "v1" {
		t.Error("ApplyPost must not drop pre-existing metadata")
	}
}

func TestApplyDeleteWritesTombstone(t *testing.T) {
	d, root := newTestDisk(t)
	body := []byte("data")
	if err := d.WritePut("objhash7", ts(100), -1, nil, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}
	if err := d.ApplyDelete("objhash7", ts(200)); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}
	rec, ok, _ := d.Lookup("objhash7")
	if !ok || !rec.Tombstone {
		t.Error("expected a tombstone record after ApplyDelete")
	}
	if _, err := os.Stat(filepath.Join(root, "obj", "objhash7")); !os.IsNotExist(err) {
		t.Error("expected data file to be removed after delete")
	}
}

func TestApplyDeleteIgnoresOlderTombstone(t *testing.T) {
	d, _ := newTestDisk(t)
	body := []byte("data")
	if err := d.WritePut("objhash8", ts(200), -1, nil, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}
	if err := d.ApplyDelete("objhash8", ts(100)); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}
	rec, _, _ := d.Lookup("objhash8")
	if rec.Tombstone {
		t.Error("a delete older than the current data must be ignored")
	}
}

func TestLoadAllRecoversStateFromDisk(t *testing.T) {
	d, root := newTestDisk(t)
	body := []byte("data")
	if err := d.WritePut("objhash9", ts(100), -1, nil, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}

	reopened, err := NewDisk(root)
	if err != nil {
		t.Fatalf("reopening disk: %v", err)
	}
	rec, ok, err := reopened.Lookup("objhash9")
	if err != nil {
		t.Fatalf("Lookup after reopen: %v", err)
	}
	if !ok {
		t.Fatal("expected record to survive a reopen via loadAll")
	}
	if !rec.TsData.Equal(ts(100)) {
		t.Errorf("unexpected ts_data after reopen: %s", rec.TsData)
	}
}

func TestWritePutShortWriteFails(t *testing.T) {
	d, _ := newTestDisk(t)
	body := []byte("short")
	err := d.WritePut("objhash10", ts(100), -1, nil, bytes.NewReader(body), int64(len(body))+10)
	if err == nil {
		t.Error("expected error when declared length exceeds actual body length")
	}
	if _, ok, _ := d.Lookup("objhash10"); ok {
		t.Error("a failed WritePut must not leave a visible record")
	}
}

func TestFragSuffix(t *testing.T) {
	if got := FragSuffix(-1); got != "" {
		t.Errorf("expected empty suffix for -1, got %q", got)
	}
	if got := FragSuffix(4); got != ".4" {
		t.Errorf("expected \".4\", got %q", got)
	}
}

func TestFragmentStale(t *testing.T) {
	d, root := newTestDisk(t)
	body := []byte("data")
	if err := d.WritePut("objhash11", ts(100), 1, nil, bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("WritePut: %v", err)
	}
	metaPath := filepath.Join(root, "meta", "objhash11.meta")

	stale, err := FragmentStale(metaPath, 0)
	if err != nil {
		t.Fatalf("FragmentStale: %v", err)
	}
	if !stale {
		t.Error("a non-durable fragment past a zero grace period must be stale")
	}

	if err := d.MarkDurable("objhash11", ts(100), 1); err != nil {
		t.Fatalf("MarkDurable: %v", err)
	}
	stale, err = FragmentStale(metaPath, 0)
	if err != nil {
		t.Fatalf("FragmentStale after promotion: %v", err)
	}
	if stale {
		t.Error("a durable fragment must never be reported stale")
	}
}
