// Package reb is the decision layer a target needs around SSYNC (SPEC_FULL
// §1): given a partition and a set of candidate peer devices, decide
// whether and from whom to pull, serialized per-partition. It is not the
// wire sender - that, and everything peer-side, remains a Non-goal. The
// precheck/broadcast idiom (ping every candidate before committing to one,
// then act only on the candidates that answered) is adapted from the teacher's
// globalRebPrecheck/bcast (reb/global.go, reb/bcast.go); the pointless
// cluster/Smap/xaction machinery those called into has no analog here and
// is not carried over.
/*
 * Copyright (c) 2019, NVIDIA CORPORATION. All rights reserved.
 */
package reb

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/ais-oss/ssyncd/lock"
)

// Dialer is the peer-side collaborator a real deployment would implement to
// actually speak SSYNC to a remote target. No implementation ships: peer
// behavior is out of scope (spec Non-goals), so Manager only ever reaches
// this interface, never a concrete transport.
type Dialer interface {
	// Ping reports whether peer is reachable and willing to serve an SSYNC
	// pull for (device, partition).
	Ping(ctx context.Context, peer, device, partition string) error
	// Pull performs the SSYNC HTTP round-trip against peer for
	// (device, partition), returning once the peer's response stream closes.
	Pull(ctx context.Context, peer, device, partition string) error
}

// Manager decides, for a local (device, partition) believed to need
// replication, which of a set of candidate peers to pull from. Exactly one
// decision is in flight per partition at a time (spec invariant 5, reused
// here via the same lock.Manager the receiver uses for incoming sessions,
// under a distinct "pull:" partition namespace to avoid colliding with an
// in-flight inbound session on the same partition).
type Manager struct {
	Locks       *lock.Manager
	Dialer      Dialer
	PingTimeout time.Duration
}

func NewManager(locks *lock.Manager, dialer Dialer, pingTimeout time.Duration) *Manager {
	return &Manager{Locks: locks, Dialer: dialer, PingTimeout: pingTimeout}
}

// Decide runs the precheck (ping every candidate) then pulls from the
// first candidate that answered, scoped to one partition instead of the
// whole cluster. Candidates that fail the ping are skipped, not treated as
// a reason to give up. It returns the peer pulled from, or an error if no
// candidate answered or the pull itself failed.
func (m *Manager) Decide(ctx context.Context, device, partition string, candidates []string) (peer string, err error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("reb: no candidates for %s/%s", device, partition)
	}

	release, lerr := m.Locks.Acquire("pull:"+device, partition, m.PingTimeout)
	if lerr != nil {
		return "", fmt.Errorf("reb: %s/%s already being pulled: %v", device, partition, lerr)
	}
	defer release()

	alive := m.precheck(ctx, device, partition, candidates)
	if len(alive) == 0 {
		return "", fmt.Errorf("reb: no reachable peer for %s/%s (tried %d)", device, partition, len(candidates))
	}

	peer = alive[0]
	if err := m.Dialer.Pull(ctx, peer, device, partition); err != nil {
		return "", fmt.Errorf("reb: pull from %s for %s/%s: %v", peer, device, partition, err)
	}
	glog.Infof("reb: %s/%s pulled from %s", device, partition, peer)
	return peer, nil
}

// precheck pings every candidate with PingTimeout and returns the ones that
// answered, preserving candidate order.
func (m *Manager) precheck(ctx context.Context, device, partition string, candidates []string) []string {
	alive := make([]string, 0, len(candidates))
	for _, c := range candidates {
		pctx, cancel := context.WithTimeout(ctx, m.PingTimeout)
		err := m.Dialer.Ping(pctx, c, device, partition)
		cancel()
		if err != nil {
			glog.Warningf("reb: ping %s for %s/%s failed: %v", c, device, partition, err)
			continue
		}
		alive = append(alive, c)
	}
	return alive
}
