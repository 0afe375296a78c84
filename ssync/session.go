/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ssync

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/ais-oss/ssyncd/audit"
	"github.com/ais-oss/ssyncd/cmn"
	"github.com/ais-oss/ssyncd/lock"
	"github.com/ais-oss/ssyncd/policy"
	"github.com/ais-oss/ssyncd/stats"
	"github.com/ais-oss/ssyncd/store"
)

const (
	hdrPolicyIndex    = "X-Backend-Storage-Policy-Index"
	hdrFragIndex      = "X-Backend-Ssync-Frag-Index"
	hdrNodeIndexOld   = "X-Backend-Ssync-Node-Index"
	hdrReplication    = "X-Backend-Replication"
	hdrReplicationHdr = "X-Backend-Replication-Headers"
	noFragIndex       = -1
)

// StoreFactory resolves a (device, partition) pair to the disk subsystem
// collaborator spec §6 names; ais wires this to a store.Disk rooted under
// the configured mountpath.
type StoreFactory func(device, partition string) (store.Store, error)

// MountChecker reports whether device is acceptable per the configured
// mount-check policy (spec §4.2 step 5): either "is a mount point" or,
// when mount checking is disabled, merely "is a directory".
type MountChecker func(device string) (bool, error)

// Receiver is the long-lived, process-wide object that turns inbound SSYNC
// HTTP requests into sessions. One Receiver serves every (device,
// partition); per-session exclusivity is enforced by Locks (spec invariant
// 5: "At-most-one SSYNC per (device, partition) active across the process").
type Receiver struct {
	Policies   *policy.Registry
	Locks      *lock.Manager
	Sema       *cmn.DynSemaphore
	Stores     StoreFactory
	MountCheck MountChecker
	Dispatcher Dispatcher // nil uses the default store-backed dispatcher
	Audit      *audit.DB  // nil disables session audit persistence
	Stats      *stats.Registry
}

// session is the per-request mutable state spec §3 calls "Session state":
// lifetime is exactly one SSYNC request.
type session struct {
	device    string
	partition string
	policy    policy.Policy
	fragIndex int // noFragIndex when absent

	successCount int
	failureCount int
	aborted      bool

	cfg   *cmn.SsyncConf
	store store.Store
	dsp   Dispatcher
	lr    *LineReader
	fr    *framer

	stats *stats.Registry
}

// ServeHTTP implements the SSYNC method handler: request initializer, then
// (on success) missing-check and updates phases, then the response framer's
// closing sequence. ais routes the custom SSYNC method here directly.
func (rv *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, initErr := rv.initialize(w, r)
	if initErr != nil {
		glog.Warningf("ssync init failed for %s: %v", r.URL.Path, initErr)
		if initErr.InBand {
			w.WriteHeader(http.StatusOK)
			fr := newFramer(w)
			fr.errorLine(initErr.Code, initErr.Message)
			return
		}
		cmn.InvalidHandlerDetailed(w, r, initErr.Message, initErr.Status)
		return
	}
	defer sess.release()
	if rv.Stats != nil {
		rv.Stats.Begin(sess.device, sess.partition)
		defer func() {
			rv.Stats.End(sess.device, sess.partition, sess.successCount, sess.failureCount, sess.aborted)
		}()
	}

	w.WriteHeader(http.StatusOK)
	sess.fr = newFramer(w)

	if err := sess.fr.missingCheckStart(); err != nil {
		glog.Errorf("ssync %s/%s: %v", sess.device, sess.partition, err)
		return
	}
	if err := runMissingCheck(sess); err != nil {
		reportStreamErr(sess.fr, err)
		return
	}
	if err := sess.fr.missingCheckEnd(); err != nil {
		glog.Errorf("ssync %s/%s: %v", sess.device, sess.partition, err)
		return
	}

	if err := sess.fr.updatesStart(); err != nil {
		glog.Errorf("ssync %s/%s: %v", sess.device, sess.partition, err)
		return
	}
	aborted, err := runUpdates(sess)
	if err != nil {
		reportStreamErr(sess.fr, err)
		return
	}
	if aborted {
		sess.aborted = true
		rv.recordAudit(sess, true, "aborted: "+finalDiagnostic(sess))
		return // abort policy already emitted its :ERROR: line and stopped
	}
	if err := sess.fr.updatesEnd(); err != nil {
		glog.Errorf("ssync %s/%s: %v", sess.device, sess.partition, err)
		return
	}

	if sess.failureCount > 0 {
		sess.fr.errorLine(500, finalDiagnostic(sess))
		rv.recordAudit(sess, false, finalDiagnostic(sess))
	}
}

func (rv *Receiver) recordAudit(sess *session, aborted bool, msg string) {
	if rv.Audit == nil {
		return
	}
	rv.Audit.Record(audit.Record{
		Device: sess.device, Partition: sess.partition,
		SuccessCount: sess.successCount, FailureCount: sess.failureCount,
		Message: msg, Aborted: aborted, Timestamp: time.Now(),
	})
}

func reportStreamErr(fr *framer, err error) {
	if re, ok := err.(*ReadError); ok {
		fr.errorLine(re.Code(), re.Error())
		return
	}
	fr.errorLine(0, err.Error())
}

func finalDiagnostic(sess *session) string {
	return "replication completed with " + strconv.Itoa(sess.failureCount) + " failure(s) of " +
		strconv.Itoa(sess.successCount+sess.failureCount) + " sub-request(s)"
}

type sessionHandle struct {
	*session
	release func()
}

// initialize is the Request Initializer (spec §4.2). Every step here either
// succeeds in full or returns an *InitError with no side effects left
// pending (semaphore/lock acquisitions are unwound before returning).
func (rv *Receiver) initialize(w http.ResponseWriter, r *http.Request) (*sessionHandle, *InitError) {
	items, err := cmn.MatchRESTItems(r.URL.Path, 2, true)
	if err != nil {
		return nil, newInitError(http.StatusBadRequest, "Invalid path")
	}
	device, partition := items[0], items[1]

	policyIdx := policy.LegacyDefault
	if v := r.Header.Get(hdrPolicyIndex); v != "" {
		policyIdx, err = strconv.Atoi(v)
		if err != nil {
			return nil, newInitError(http.StatusBadRequest, "Invalid %s '%s'", hdrPolicyIndex, v)
		}
	}
	pol, err := rv.Policies.Lookup(policyIdx)
	if err != nil {
		return nil, newInitError(http.StatusServiceUnavailable, err.Error())
	}

	fragIndex := noFragIndex
	if v := r.Header.Get(hdrFragIndex); v != "" {
		fragIndex, err = strconv.Atoi(v)
		if err != nil || fragIndex < 0 {
			return nil, newInitError(http.StatusBadRequest, "Invalid %s '%s'", hdrFragIndex, v)
		}
	}
	// Legacy vestigial pathway (spec §4.2 step 3, §9 open question): when
	// only Node-Index is present it is NOT interpreted as a frag index.
	_ = r.Header.Get(hdrNodeIndexOld)

	if !rv.Sema.TryAcquire() {
		return nil, newInitError(http.StatusServiceUnavailable, "Service Unavailable")
	}
	semaAcquired := true
	defer func() {
		if semaAcquired {
			rv.Sema.Release()
		}
	}()

	cfg := cmn.GCO.Get()
	ok, mcErr := rv.MountCheck(device)
	if mcErr != nil || !ok {
		return nil, newInitError(http.StatusInsufficientStorage, "Insufficient Storage")
	}

	release, lockErr := rv.Locks.Acquire(device, partition, cfg.Ssync.LockTimeout)
	if lockErr != nil {
		return nil, newLockTimeoutError(lockErr.Error())
	}

	st, err := rv.Stores(device, partition)
	if err != nil {
		release()
		return nil, newInitError(http.StatusInsufficientStorage, err.Error())
	}

	dsp := rv.Dispatcher
	if dsp == nil {
		dsp = &storeDispatcher{store: st, policy: pol, fragIndex: fragIndex}
	}

	semaAcquired = false // ownership transferred to the session handle below
	sess := &session{
		device: device, partition: partition, policy: pol, fragIndex: fragIndex,
		cfg: &cfg.Ssync, store: st, dsp: dsp,
		lr:    NewLineReader(r.Body, cfg.Ssync.ClientTimeout),
		stats: rv.Stats,
	}
	return &sessionHandle{session: sess, release: func() {
		release()
		rv.Sema.Release()
	}}, nil
}
