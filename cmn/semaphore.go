/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

// DynSemaphore is a counting semaphore whose capacity can be resized at
// runtime (e.g. when the number of reachable mountpaths changes). It backs
// both the process-wide replication semaphore and the per-device
// concurrency limiter described in spec §5.
type DynSemaphore struct {
	ch chan struct{}
}

func NewDynSemaphore(size int) *DynSemaphore {
	AssertMsg(size > 0, "semaphore size must be positive")
	return &DynSemaphore{ch: make(chan struct{}, size)}
}

// Acquire blocks until a slot is available.
func (s *DynSemaphore) Acquire() {
	s.ch <- struct{}{}
}

// TryAcquire acquires a slot without blocking; returns false if none is free.
func (s *DynSemaphore) TryAcquire() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *DynSemaphore) Release() {
	select {
	case <-s.ch:
	default:
		AssertMsg(false, "release of unacquired semaphore")
	}
}

func (s *DynSemaphore) Size() int { return cap(s.ch) }

// SetSize grows or shrinks the semaphore's capacity. Shrinking only takes
// effect as outstanding holders release their slots.
func (s *DynSemaphore) SetSize(n int) {
	AssertMsg(n > 0, "semaphore size must be positive")
	nch := make(chan struct{}, n)
	for {
		select {
		case v := <-s.ch:
			select {
			case nch <- v:
			default:
			}
			continue
		default:
		}
		break
	}
	s.ch = nch
}
