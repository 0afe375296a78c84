// Package lock implements the per-partition replication lock and per-device
// concurrency limiter spec §4.2 step 6 and §5 describe. The idle-eviction
// half of the table is a min-heap ticker adapted from the teacher's stream
// collector (transport/collect.go), repurposed from stream-GC to lock-table
// GC so a long-lived daemon doesn't accumulate one entry per partition ever
// seen.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package lock

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/ais-oss/ssyncd/cmn"
)

const tickUnit = 10 * time.Second

type entry struct {
	device    string
	partition string
	ch        chan struct{} // binary semaphore; buffered(1), full == unlocked
	ticks     int
	index     int // heap index, maintained by container/heap callbacks
	inUse     int // active holders; entry is never evicted while > 0
}

func newEntry(device, partition string) *entry {
	e := &entry{device: device, partition: partition, ch: make(chan struct{}, 1)}
	e.ch <- struct{}{}
	return e
}

// Manager owns the (device, partition) -> entry table plus one DynSemaphore
// per device bounding how many partitions on that device may be locked
// concurrently (spec §5: "replication_concurrency_per_device").
type Manager struct {
	mu        sync.Mutex
	entries   map[string]*entry
	idleHeap  entryHeap
	idleTicks int

	perDevice      map[string]*cmn.DynSemaphore
	perDeviceLimit int

	stopCh chan struct{}
}

func NewManager(perDeviceLimit int, idle time.Duration) *Manager {
	m := &Manager{
		entries:        make(map[string]*entry),
		idleHeap:       make(entryHeap, 0, 16),
		idleTicks:      int(idle / tickUnit),
		perDevice:      make(map[string]*cmn.DynSemaphore),
		perDeviceLimit: perDeviceLimit,
		stopCh:         make(chan struct{}),
	}
	if m.idleTicks <= 0 {
		m.idleTicks = 1
	}
	heap.Init(&m.idleHeap)
	return m
}

// Run evicts idle, unheld entries on a ticker until Stop is called. Intended
// to run as a daemon goroutine for the lifetime of the process.
func (m *Manager) Run() {
	ticker := time.NewTicker(tickUnit)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) Stop() { close(m.stopCh) }

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.idleHeap {
		if e.inUse > 0 {
			continue
		}
		e.ticks--
	}
	heap.Init(&m.idleHeap)
	for len(m.idleHeap) > 0 && m.idleHeap[0].ticks <= 0 && m.idleHeap[0].inUse == 0 {
		e := heap.Pop(&m.idleHeap).(*entry)
		delete(m.entries, key(e.device, e.partition))
		glog.V(4).Infof("lock: evicted idle entry %s/%s", e.device, e.partition)
	}
}

func key(device, partition string) string { return device + "/" + partition }

func (m *Manager) deviceSema(device string) *cmn.DynSemaphore {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.perDevice[device]
	if !ok {
		s = cmn.NewDynSemaphore(m.perDeviceLimit)
		m.perDevice[device] = s
	}
	return s
}

func (m *Manager) getOrCreate(device, partition string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(device, partition)
	e, ok := m.entries[k]
	if !ok {
		e = newEntry(device, partition)
		m.entries[k] = e
		heap.Push(&m.idleHeap, e)
	}
	e.ticks = m.idleTicks
	if e.index >= 0 && e.index < len(m.idleHeap) {
		heap.Fix(&m.idleHeap, e.index)
	}
	return e
}

// Release is returned by Acquire; calling it releases both the partition
// lock and the per-device concurrency slot.
type Release func()

// Acquire implements spec §4.2 step 6: acquire a per-device concurrency slot
// then the per-partition lock, both bounded by timeout. On timeout it
// returns a non-nil error describing elapsed seconds and path, matching the
// in-band ":ERROR: 0 '<secs> seconds: <path>'" the request initializer emits.
func (m *Manager) Acquire(device, partition string, timeout time.Duration) (Release, error) {
	deadline := time.Now().Add(timeout)
	sema := m.deviceSema(device)

	if !acquireSemaWithDeadline(sema, deadline) {
		return nil, fmt.Errorf("%v seconds: /%s/%s", timeout.Seconds(), device, partition)
	}

	e := m.getOrCreate(device, partition)
	m.mu.Lock()
	e.inUse++
	m.mu.Unlock()

	remaining := time.Until(deadline)
	select {
	case <-e.ch:
		released := false
		return func() {
			if released {
				return
			}
			released = true
			e.ch <- struct{}{}
			m.mu.Lock()
			e.inUse--
			e.ticks = m.idleTicks
			m.mu.Unlock()
			sema.Release()
		}, nil
	case <-time.After(remaining):
		m.mu.Lock()
		e.inUse--
		m.mu.Unlock()
		sema.Release()
		return nil, fmt.Errorf("%v seconds: /%s/%s", timeout.Seconds(), device, partition)
	}
}

func acquireSemaWithDeadline(s *cmn.DynSemaphore, deadline time.Time) bool {
	for {
		if s.TryAcquire() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// entryHeap is a min-heap over *entry ordered by idle ticks remaining,
// exactly the shape of transport/collect.go's stream heap.
type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].ticks < h[j].ticks }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
