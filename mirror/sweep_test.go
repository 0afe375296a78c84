/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package mirror

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ais-oss/ssyncd/fs"
)

func newTestMFS(t *testing.T) (*fs.MountedFS, string) {
	t.Helper()
	root, err := ioutil.TempDir("", "ssync-mirror-test-")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })

	mfs := fs.NewMountedFS()
	mfs.DisableFsIDCheck()
	if err := mfs.Add(root); err != nil {
		t.Fatalf("adding mountpath: %v", err)
	}
	return mfs, root
}

func TestSweepOnceVisitsMetaFiles(t *testing.T) {
	mfs, root := newTestMFS(t)
	metaDir := filepath.Join(root, "meta")
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stale := filepath.Join(metaDir, "a.meta")
	if err := ioutil.WriteFile(stale, []byte("{}"), 0644); err != nil {
		t.Fatalf("writing meta file: %v", err)
	}
	other := filepath.Join(metaDir, "not-meta.txt")
	if err := ioutil.WriteFile(other, []byte("irrelevant"), 0644); err != nil {
		t.Fatalf("writing other file: %v", err)
	}

	var visited []string
	s := NewSweeper(mfs, time.Minute, time.Hour, func(path string, grace time.Duration) (bool, error) {
		visited = append(visited, path)
		return true, nil
	})
	s.sweepOnce()

	if len(visited) != 1 || visited[0] != stale {
		t.Errorf("expected exactly the .meta file to be visited, got %v", visited)
	}
}

func TestSweepOnceToleratesIsStaleError(t *testing.T) {
	mfs, root := newTestMFS(t)
	metaDir := filepath.Join(root, "meta")
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := ioutil.WriteFile(filepath.Join(metaDir, "a.meta"), []byte("{}"), 0644); err != nil {
		t.Fatalf("writing meta file: %v", err)
	}

	called := false
	s := NewSweeper(mfs, time.Minute, time.Hour, func(path string, grace time.Duration) (bool, error) {
		called = true
		return false, os.ErrPermission
	})

	// sweepOnce must not panic or abort the whole walk when IsStale errors.
	s.sweepOnce()
	if !called {
		t.Error("expected IsStale to be invoked despite returning an error")
	}
}

func TestRunStopsCleanly(t *testing.T) {
	mfs, _ := newTestMFS(t)
	s := NewSweeper(mfs, time.Minute, time.Millisecond, func(string, time.Duration) (bool, error) {
		return false, nil
	})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
