// Package commands provides the set of CLI commands used to query a running
// ssyncd daemon's admin surface. This file holds the flags and constants
// shared by the subcommands, generalized from the teacher's common.go
// (command/flag name constants, "show" subcommand naming convention).
/*
 * Copyright (c) 2019, NVIDIA CORPORATION. All rights reserved.
 */
package commands

import (
	"time"

	"github.com/urfave/cli"
)

const (
	commandShow = "show"

	subcmdSessions = "sessions"
	subcmdAudit    = "audit"

	refreshRateDefault = time.Second
)

var (
	daemonURLFlag = cli.StringFlag{
		Name:   "url",
		Usage:  "ssyncd admin base URL, e.g. http://localhost:51090",
		EnvVar: "SSYNCCTL_URL",
		Value:  "http://localhost:51090",
	}
	jsonFlag      = cli.BoolFlag{Name: "json,j", Usage: "json output"}
	refreshFlag   = cli.DurationFlag{Name: "refresh", Usage: "refresh period for repeated polling; 0 means show once", Value: 0}
	deviceFlag    = cli.StringFlag{Name: "device", Usage: "device name, e.g. sdb"}
	partitionFlag = cli.StringFlag{Name: "partition", Usage: "partition name, e.g. 1042"}
)
