// Package mirror runs the durability sweep (SPEC_FULL §4.8): a low-priority
// background walker, adapted from the teacher's XactDirPromote directory
// walk (dpromote.go), that looks for fragments which have sat non-durable
// past a grace period and logs them for operator attention. It never
// promotes anything itself — that remains the missing-check phase's job
// (spec §4.3); this is a second line of defense for fragments no peer ever
// re-announces.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package mirror

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/ais-oss/ssyncd/fs"
)

// Sweeper periodically walks every configured mountpath's meta directory
// looking for non-durable fragments older than Grace.
type Sweeper struct {
	MFS      *fs.MountedFS
	Grace    time.Duration
	Interval time.Duration
	IsStale  func(metaPath string, grace time.Duration) (stale bool, err error)

	stopCh chan struct{}
}

func NewSweeper(mfs *fs.MountedFS, grace, interval time.Duration, isStale func(string, time.Duration) (bool, error)) *Sweeper {
	return &Sweeper{MFS: mfs, Grace: grace, Interval: interval, IsStale: isStale, stopCh: make(chan struct{})}
}

// Run blocks, sweeping every Interval until Stop is called.
func (s *Sweeper) Run() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) Stop() { close(s.stopCh) }

func (s *Sweeper) sweepOnce() {
	available, _ := s.MFS.Get()
	for _, mpi := range available {
		if err := s.walk(mpi.Path); err != nil {
			glog.Errorf("mirror: sweep %s: %v", mpi.Path, err)
		}
	}
}

func (s *Sweeper) walk(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".meta") {
			return nil
		}
		stale, err := s.IsStale(path, s.Grace)
		if err != nil {
			glog.Warningf("mirror: %s: %v", path, err)
			return nil
		}
		if stale {
			glog.Warningf("mirror: non-durable fragment past grace period: %s", path)
		}
		return nil
	})
}
