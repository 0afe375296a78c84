// Package store is the on-disk fragment subsystem that the receiver treats
// as an external collaborator (spec §6, "DiskFile subsystem"): lookup,
// write-for-PUT, apply-POST, apply-DELETE, and mark-durable, all backed by
// the teacher's /obj/ + /meta/ directory convention (ec/ec.go) with a
// /tombstone/ subdirectory added for deletions.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package store

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/ais-oss/ssyncd/cmn"
)

// FragmentRecord is the receiver-visible view of one object's on-disk state,
// exactly the fields spec §3 names plus the path bookkeeping needed to
// commit atomically.
type FragmentRecord struct {
	ObjectHash string
	TsData     cmn.Timestamp
	TsMeta     cmn.Timestamp
	TsCtype    cmn.Timestamp
	Durable    bool
	FragIndex  int // -1 when not EC
	Length     int64
	Meta       map[string]string

	Tombstone bool // true when the current record is a deletion marker
}

// fragmentMeta is the on-disk JSON sidecar at /meta/<hash>.meta describing
// the data file under /obj/.
type fragmentMeta struct {
	TsData    string            `json:"ts_data"`
	TsMeta    string            `json:"ts_meta"`
	TsCtype   string            `json:"ts_ctype"`
	Durable   bool              `json:"durable"`
	FragIndex int               `json:"frag_index"`
	Length    int64             `json:"length"`
	Meta      map[string]string `json:"meta"`
	Tombstone bool              `json:"tombstone"`
}

// Store is the collaborator interface spec §6 describes: lookup, apply the
// three sub-request kinds, and promote durability. A *Disk implements it
// directly on a mountpath/partition directory tree.
type Store interface {
	Lookup(objectHash string) (FragmentRecord, bool, error)
	WritePut(objectHash string, ts cmn.Timestamp, fragIndex int, headers map[string]string, body io.Reader, length int64) error
	ApplyPost(objectHash string, ts cmn.Timestamp, headers map[string]string) error
	ApplyDelete(objectHash string, ts cmn.Timestamp) error
	MarkDurable(objectHash string, ts cmn.Timestamp, fragIndex int) error
}

// Disk is the concrete, filesystem-backed Store. One Disk instance serves
// exactly one (device, partition) pair; callers hold the partition lock
// (package lock) for the whole of a session's mutating calls, matching
// spec invariant 4 (sub-requests are strictly ordered).
type Disk struct {
	root string // <mountpath>/<device>/<partition>

	mu      sync.Mutex
	records map[string]*FragmentRecord // in-memory cache of sidecar metadata
}

func NewDisk(root string) (*Disk, error) {
	for _, sub := range []string{"obj", "meta", "tombstone"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %v", sub, err)
		}
	}
	d := &Disk{root: root, records: make(map[string]*FragmentRecord)}
	if err := d.loadAll(); err != nil {
		return nil, err
	}
	return d, nil
}

// objPath keys the data file by hash plus FragSuffix: under an EC policy a
// node can briefly hold two fragments of the same object hash across a
// frag_index reassignment, and the suffix keeps them from colliding.
func (d *Disk) objPath(hash string, fragIndex int) string {
	return filepath.Join(d.root, "obj", hash+FragSuffix(fragIndex))
}
func (d *Disk) metaPath(hash string) string      { return filepath.Join(d.root, "meta", hash+".meta") }
func (d *Disk) tombstonePath(hash string) string { return filepath.Join(d.root, "tombstone", hash) }

func (d *Disk) loadAll() error {
	metaDir := filepath.Join(d.root, "meta")
	entries, err := ioutil.ReadDir(metaDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		hash := e.Name()
		hash = hash[:len(hash)-len(".meta")]
		rec, err := d.readMeta(hash)
		if err != nil {
			return err
		}
		d.records[hash] = rec
	}
	return nil
}

func (d *Disk) readMeta(hash string) (*FragmentRecord, error) {
	b, err := ioutil.ReadFile(d.metaPath(hash))
	if err != nil {
		return nil, err
	}
	var fm fragmentMeta
	if err := cmn.Unmarshal(b, &fm); err != nil {
		return nil, err
	}
	rec := &FragmentRecord{ObjectHash: hash, Durable: fm.Durable, FragIndex: fm.FragIndex, Length: fm.Length, Meta: fm.Meta, Tombstone: fm.Tombstone}
	if rec.TsData, err = cmn.ParseTimestamp(fm.TsData); err != nil {
		return nil, err
	}
	if fm.TsMeta != "" {
		if rec.TsMeta, err = cmn.ParseTimestamp(fm.TsMeta); err != nil {
			return nil, err
		}
	} else {
		rec.TsMeta = rec.TsData
	}
	if fm.TsCtype != "" {
		if rec.TsCtype, err = cmn.ParseTimestamp(fm.TsCtype); err != nil {
			return nil, err
		}
	} else {
		rec.TsCtype = rec.TsData
	}
	return rec, nil
}

func (d *Disk) writeMeta(rec *FragmentRecord) error {
	fm := fragmentMeta{
		TsData:    rec.TsData.String(),
		TsMeta:    rec.TsMeta.String(),
		TsCtype:   rec.TsCtype.String(),
		Durable:   rec.Durable,
		FragIndex: rec.FragIndex,
		Length:    rec.Length,
		Meta:      rec.Meta,
		Tombstone: rec.Tombstone,
	}
	b, err := cmn.Marshal(&fm)
	if err != nil {
		return err
	}
	tmp := d.metaPath(rec.ObjectHash) + ".tmp"
	if err := ioutil.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, d.metaPath(rec.ObjectHash))
}

func (d *Disk) Lookup(objectHash string) (FragmentRecord, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[objectHash]
	if !ok {
		return FragmentRecord{}, false, nil
	}
	return *rec, true, nil
}

// WritePut streams body into a temp file under /obj/, then renames it into
// place and updates the sidecar, mirroring the atomic-rename discipline
// spec §5 requires of the disk subsystem ("MUST NOT leave a partially
// written durable marker").
func (d *Disk) WritePut(objectHash string, ts cmn.Timestamp, fragIndex int, headers map[string]string, body io.Reader, length int64) error {
	tmp := d.objPath(objectHash, fragIndex) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		if cmn.IsIOError(err) {
			glog.Errorf("store: %s looks like a failing mountpath: %v", d.root, err)
		}
		return err
	}
	n, err := io.Copy(f, body)
	closeErr := f.Close()
	if err != nil {
		if cmn.IsIOError(err) {
			glog.Errorf("store: %s looks like a failing mountpath: %v", d.root, err)
		}
		os.Remove(tmp)
		return err
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	if n != length {
		os.Remove(tmp)
		return fmt.Errorf("store: short write for %s: wrote %d of %d bytes", objectHash, n, length)
	}
	if err := os.Rename(tmp, d.objPath(objectHash, fragIndex)); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.records[objectHash]; ok && prev.FragIndex != fragIndex {
		os.Remove(d.objPath(objectHash, prev.FragIndex))
	}
	rec := &FragmentRecord{
		ObjectHash: objectHash,
		TsData:     ts,
		TsMeta:     ts,
		TsCtype:    ts,
		Durable:    fragIndex < 0, // replicated policies: always durable
		FragIndex:  fragIndex,
		Length:     length,
		Meta:       cloneHeaders(headers),
	}
	if err := d.writeMeta(rec); err != nil {
		return err
	}
	d.records[objectHash] = rec
	// a fresh PUT supersedes any prior tombstone
	os.Remove(d.tombstonePath(objectHash))
	return nil
}

// ApplyPost updates metadata in place without touching the data file,
// advancing ts_meta (and ts_ctype when Content-Type is among the headers).
func (d *Disk) ApplyPost(objectHash string, ts cmn.Timestamp, headers map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[objectHash]
	if !ok {
		return fmt.Errorf("store: POST for unknown object %s", objectHash)
	}
	rec.TsMeta = ts
	if _, hasCtype := headers["content-type"]; hasCtype {
		rec.TsCtype = ts
	}
	for k, v := range headers {
		rec.Meta[k] = v
	}
	return d.writeMeta(rec)
}

// ApplyDelete writes a zero-length tombstone record, competing with any
// existing data record by timestamp order (spec GLOSSARY: "Tombstone").
func (d *Disk) ApplyDelete(objectHash string, ts cmn.Timestamp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, hadRecord := d.records[objectHash]
	if hadRecord && existing.TsData.After(ts) {
		// local data newer than remote tombstone: no-op (spec §4.3 table)
		return nil
	}
	if err := ioutil.WriteFile(d.tombstonePath(objectHash), nil, 0644); err != nil {
		return err
	}
	fragIndex := -1
	if hadRecord {
		fragIndex = existing.FragIndex
	}
	os.Remove(d.objPath(objectHash, fragIndex))
	rec := &FragmentRecord{ObjectHash: objectHash, TsData: ts, TsMeta: ts, TsCtype: ts, Durable: true, FragIndex: -1, Tombstone: true}
	if err := d.writeMeta(rec); err != nil {
		return err
	}
	d.records[objectHash] = rec
	return nil
}

// MarkDurable implements spec §4.3's promotion rule: idempotent, and only
// valid when (ts_data, frag_index) still match what's on disk.
func (d *Disk) MarkDurable(objectHash string, ts cmn.Timestamp, fragIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[objectHash]
	if !ok {
		return fmt.Errorf("store: mark-durable for unknown object %s", objectHash)
	}
	if !rec.TsData.Equal(ts) || rec.FragIndex != fragIndex {
		return fmt.Errorf("store: mark-durable mismatch for %s: have ts=%s frag=%d, want ts=%s frag=%d",
			objectHash, rec.TsData, rec.FragIndex, ts, fragIndex)
	}
	if rec.Durable {
		return nil // idempotent
	}
	rec.Durable = true
	return d.writeMeta(rec)
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// FragSuffix renders a non-negative frag_index as the path suffix the
// teacher's EC layout uses ("-1" sentinel means "no suffix", i.e. replicated).
func FragSuffix(fragIndex int) string {
	if fragIndex < 0 {
		return ""
	}
	return "." + strconv.Itoa(fragIndex)
}

// FragmentStale reports whether the sidecar at metaPath describes a
// non-durable, non-tombstone fragment whose meta file hasn't been touched
// in at least grace. Used by the mirror package's background sweep
// (SPEC_FULL §4.8); it reads the file directly rather than through a Disk
// instance since the sweep walks mountpaths a session may not have open.
func FragmentStale(metaPath string, grace time.Duration) (bool, error) {
	fi, err := os.Stat(metaPath)
	if err != nil {
		return false, err
	}
	if time.Since(fi.ModTime()) < grace {
		return false, nil
	}
	b, err := ioutil.ReadFile(metaPath)
	if err != nil {
		return false, err
	}
	var fm fragmentMeta
	if err := cmn.Unmarshal(b, &fm); err != nil {
		return false, err
	}
	return !fm.Durable && !fm.Tombstone, nil
}
