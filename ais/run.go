// Run is the daemon entrypoint, the ais.Run counterpart the teacher's
// ais/setup/aisnode.go calls directly. It wires every collaborator spec §6
// names into a single Receiver and blocks serving HTTP until a terminating
// signal arrives, at which point it drains in-flight sessions before
// exiting (teacher's own graceful-shutdown idiom, ais/httpcommon.go).
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ais

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/golang/glog"

	"github.com/ais-oss/ssyncd/audit"
	"github.com/ais-oss/ssyncd/cmn"
	"github.com/ais-oss/ssyncd/fs"
	"github.com/ais-oss/ssyncd/health"
	"github.com/ais-oss/ssyncd/lock"
	"github.com/ais-oss/ssyncd/mirror"
	"github.com/ais-oss/ssyncd/policy"
	"github.com/ais-oss/ssyncd/ssync"
	"github.com/ais-oss/ssyncd/stats"
	"github.com/ais-oss/ssyncd/store"
)

// Run loads configuration, builds every collaborator, and serves until
// signaled. version/build are logged once at startup for support purposes;
// neither is otherwise interpreted.
func Run(version, build string) {
	defer glog.Flush()
	glog.Infof("ssyncd %s (build %s)", version, build)

	confPath := os.Getenv("SSYNCD_CONF")
	cfg := cmn.DefaultConfig()
	if confPath != "" {
		loaded, err := cmn.LoadConfig(confPath)
		if err != nil {
			glog.Fatalf("loading config %s: %v", confPath, err)
		}
		cfg = loaded
	}
	update := cmn.GCO.BeginUpdate()
	*update = *cfg
	cmn.GCO.CommitUpdate(update)

	mfs := fs.NewMountedFS()
	for _, p := range cfg.FS.Paths {
		if err := mfs.Add(p); err != nil {
			glog.Fatalf("adding mountpath %s: %v", p, err)
		}
	}

	policies := policy.NewRegistry()
	policies.Register(policy.Policy{Index: 1, Name: "ec-default", EC: true})

	locks := lock.NewManager(cfg.Ssync.ConcurrencyPerDevice, cfg.Ssync.LockIdle)
	go locks.Run()
	defer locks.Stop()

	sema := cmn.NewDynSemaphore(cfg.Ssync.Concurrency)
	capacity := health.NewCapacityChecker(mfs, cfg.Ssync.MountCheck)
	registry := stats.NewRegistry()

	var auditDB *audit.DB
	if cfg.Confdir != "" {
		db, err := audit.NewDB(cfg.Confdir)
		if err != nil {
			glog.Warningf("session audit disabled: %v", err)
		} else {
			auditDB = db
		}
	}

	storeFactory := func(device, partition string) (store.Store, error) {
		available, _ := mfs.Get()
		mpi, ok := available[device]
		if !ok {
			return nil, fmt.Errorf("device %q is not a configured mountpath", device)
		}
		return store.NewDisk(filepath.Join(mpi.Path, partition))
	}

	receiver := &ssync.Receiver{
		Policies:   policies,
		Locks:      locks,
		Sema:       sema,
		Stores:     storeFactory,
		MountCheck: capacity.Check,
		Audit:      auditDB,
		Stats:      registry,
	}

	sweeper := mirror.NewSweeper(mfs, 24*cfg.Timeout.CplaneOperation, cfg.Ssync.LockIdle, store.FragmentStale)
	go sweeper.Run()
	defer sweeper.Stop()

	runner := newHTTPRunner(cfg.Net.Listen, receiver, registry)

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stopCh
		glog.Infof("ssyncd: shutting down")
		runner.Shutdown()
	}()

	if err := runner.ListenAndServe(); err != nil {
		glog.Fatalf("ssyncd: %v", err)
	}
}
