// Package fs manages the set of mounted devices the daemon serves, and the
// directory layout used to validate the request initializer's mount check
// (spec §4.2 step 5).
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

type MountpathInfo struct {
	Path     string
	FsID     uint64
	disabled bool
}

// MountedFS tracks the mountpaths (devices) a target is configured to serve.
// Adapted from the teacher's fs.MountedFS (only its test, mountfs_test.go,
// survived retrieval; this file restores the implementation it exercises).
type MountedFS struct {
	mu            sync.RWMutex
	available     map[string]*MountpathInfo
	disabled      map[string]*MountpathInfo
	checkFsIDOnce bool
}

func NewMountedFS() *MountedFS {
	return &MountedFS{
		available:     make(map[string]*MountpathInfo),
		disabled:      make(map[string]*MountpathInfo),
		checkFsIDOnce: true,
	}
}

// DisableFsIDCheck turns off the "distinct mountpaths must live on distinct
// filesystems" guard; used by tests that add several mountpaths under /tmp.
func (mfs *MountedFS) DisableFsIDCheck() { mfs.checkFsIDOnce = false }

func (mfs *MountedFS) Add(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("mountpath %q is not absolute", path)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("mountpath %q does not exist: %v", path, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("mountpath %q is not a directory", path)
	}
	fsid := fsIDOf(fi)

	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	if _, ok := mfs.available[path]; ok {
		return fmt.Errorf("mountpath %q already added", path)
	}
	if _, ok := mfs.disabled[path]; ok {
		return fmt.Errorf("mountpath %q already added (disabled)", path)
	}
	if mfs.checkFsIDOnce {
		for _, mpi := range mfs.available {
			if mpi.FsID == fsid {
				return fmt.Errorf("mountpath %q shares filesystem with %q", path, mpi.Path)
			}
		}
	}
	mfs.available[path] = &MountpathInfo{Path: path, FsID: fsid}
	return nil
}

func (mfs *MountedFS) Remove(path string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	if _, ok := mfs.available[path]; ok {
		delete(mfs.available, path)
		return nil
	}
	if _, ok := mfs.disabled[path]; ok {
		delete(mfs.disabled, path)
		return nil
	}
	return fmt.Errorf("mountpath %q not found", path)
}

// Disable moves path from available to disabled; returns changed=false if it
// was already disabled, and an error if path is unknown entirely.
func (mfs *MountedFS) Disable(path string) (changed bool, err error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	if _, ok := mfs.disabled[path]; ok {
		return false, nil
	}
	mpi, ok := mfs.available[path]
	if !ok {
		return false, fmt.Errorf("mountpath %q not found", path)
	}
	delete(mfs.available, path)
	mpi.disabled = true
	mfs.disabled[path] = mpi
	return true, nil
}

func (mfs *MountedFS) Enable(path string) (changed bool, err error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	if _, ok := mfs.available[path]; ok {
		return false, nil
	}
	mpi, ok := mfs.disabled[path]
	if !ok {
		return false, fmt.Errorf("mountpath %q not found", path)
	}
	delete(mfs.disabled, path)
	mpi.disabled = false
	mfs.available[path] = mpi
	return true, nil
}

func (mfs *MountedFS) Get() (available, disabled map[string]*MountpathInfo) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	available = make(map[string]*MountpathInfo, len(mfs.available))
	disabled = make(map[string]*MountpathInfo, len(mfs.disabled))
	for k, v := range mfs.available {
		available[k] = v
	}
	for k, v := range mfs.disabled {
		disabled[k] = v
	}
	return
}

// IsMountPoint reports whether path is itself a mount point (has a different
// device number than its parent), used when the request initializer's mount
// check is enabled (spec §4.2 step 5).
func IsMountPoint(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	parent, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return false, err
	}
	return fsIDOf(fi) != fsIDOf(parent), nil
}

func fsIDOf(fi os.FileInfo) uint64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev)
	}
	return 0
}
