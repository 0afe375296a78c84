/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "time"

// MinDur returns the smaller of two durations.
func MinDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// MaxDur returns the larger of two durations.
func MaxDur(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
