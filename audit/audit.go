// Package audit implements SPEC_FULL §4.9's session audit: every SSYNC
// session that aborts via the failure-ratio policy, or that ends with a
// non-zero failure count, is persisted so an operator can inspect recent
// replication failures without log-scraping. Adapted from the teacher's
// downloaderDB (downloader/db.go): same sdomino/scribble-backed driver plus
// an in-memory cache, generalized from per-download-job errors/tasks to
// per-(device,partition) session records.
/*
 * Copyright (c) 2019, NVIDIA CORPORATION. All rights reserved.
 */
package audit

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/sdomino/scribble"
)

const (
	collection = "sessions"

	// cacheSize bounds in-memory records per (device, partition) key before
	// they're flushed to disk, mirroring downloaderDB's errCacheSize.
	cacheSize = 100
)

// Record is one persisted session outcome.
type Record struct {
	Device       string    `json:"device"`
	Partition    string    `json:"partition"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Message      string    `json:"message"`
	Aborted      bool      `json:"aborted"`
	Timestamp    time.Time `json:"timestamp"`
}

// DB is the embedded document store of recent session failures.
type DB struct {
	mtx    sync.RWMutex
	driver *scribble.Driver
	cache  map[string][]Record
}

func NewDB(confdir string) (*DB, error) {
	driver, err := scribble.New(filepath.Join(confdir, "ssync_sessions.db"), nil)
	if err != nil {
		return nil, err
	}
	return &DB{driver: driver, cache: make(map[string][]Record, 10)}, nil
}

func key(device, partition string) string { return device + "/" + partition }

// Record appends rec to the in-memory cache for its (device, partition),
// flushing to disk once the cache for that key grows past cacheSize.
func (db *DB) Record(rec Record) {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	k := key(rec.Device, rec.Partition)
	if len(db.cache[k]) < cacheSize {
		db.cache[k] = append(db.cache[k], rec)
		return
	}

	all, err := db.recordsLocked(k)
	if err != nil {
		glog.Error(err)
		return
	}
	all = append(all, rec)
	if err := db.driver.Write(collection, k, all); err != nil {
		glog.Error(err)
		return
	}
	db.cache[k] = db.cache[k][:0]
}

func (db *DB) recordsLocked(k string) (recs []Record, err error) {
	if err := db.driver.Read(collection, k, &recs); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return append(recs, db.cache[k]...), nil
	}
	return append(recs, db.cache[k]...), nil
}

// Records returns every persisted and cached record for (device, partition).
func (db *DB) Records(device, partition string) ([]Record, error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.recordsLocked(key(device, partition))
}

// Flush writes the in-memory cache for (device, partition) to disk.
func (db *DB) Flush(device, partition string) error {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	k := key(device, partition)
	if len(db.cache[k]) == 0 {
		return nil
	}
	all, err := db.recordsLocked(k)
	if err != nil {
		return err
	}
	if err := db.driver.Write(collection, k, all); err != nil {
		return err
	}
	db.cache[k] = db.cache[k][:0]
	return nil
}
