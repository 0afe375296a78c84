// Package health answers the request initializer's mount-check and
// disk-capacity questions (spec §4.2 step 5) with real system stats rather
// than a bare stat() call, adapted from the teacher's soak-test sysinfo
// report (bench/soaktest/stats/sysinfo.go), whose cmn.SysInfo/cmn.FSInfo
// report types this module does not carry forward.
/*
 * Copyright (c) 2019, NVIDIA CORPORATION. All rights reserved.
 */
package health

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"

	"github.com/ais-oss/ssyncd/fs"
)

// CapacityChecker answers "is this device safe to accept replicated
// writes" (spec §4.2 step 5, 507 path): mount-point validity plus a
// disk-free headroom check.
type CapacityChecker struct {
	MFS           *fs.MountedFS
	MountCheck    bool    // spec §4.2 step 5: enabled -> must be a mount point
	MinFreePctOOS float64 // below this, treat as out of space (507)
}

func NewCapacityChecker(mfs *fs.MountedFS, mountCheck bool) *CapacityChecker {
	return &CapacityChecker{MFS: mfs, MountCheck: mountCheck, MinFreePctOOS: 2.0}
}

// Check implements ssync.MountChecker: true when the device directory is
// acceptable and has enough headroom; false (with a descriptive error)
// otherwise, which the request initializer maps to 507.
func (c *CapacityChecker) Check(device string) (bool, error) {
	available, _ := c.MFS.Get()
	mpi, ok := available[device]
	if !ok {
		return false, fmt.Errorf("device %q is not a configured mountpath", device)
	}

	if c.MountCheck {
		isMount, err := fs.IsMountPoint(mpi.Path)
		if err != nil {
			return false, err
		}
		if !isMount {
			return false, fmt.Errorf("%q is not a mount point", mpi.Path)
		}
	}

	usage, err := disk.Usage(mpi.Path)
	if err != nil {
		return false, err
	}
	freePct := 100 - usage.UsedPercent
	if freePct < c.MinFreePctOOS {
		return false, fmt.Errorf("%q has only %.2f%% free space", mpi.Path, freePct)
	}
	return true, nil
}
