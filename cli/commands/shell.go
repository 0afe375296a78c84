// RunCLI builds and runs the ssyncctl urfave/cli App, the same bootstrap
// shape as the teacher's shell.go (minus bash-completion helpers, which had
// no analog without a bucket/daemon-ID namespace to complete against).
/*
 * Copyright (c) 2019, NVIDIA CORPORATION. All rights reserved.
 */
package commands

import (
	"github.com/urfave/cli"
)

// Version is set by the caller (cmd/ssyncctl/main.go) at build time.
var Version = "dev"

func RunCLI(args []string) error {
	app := cli.NewApp()
	app.Name = "ssyncctl"
	app.Usage = "inspect a running ssyncd daemon's replication session state"
	app.Version = Version
	app.Commands = showCmds
	app.EnableBashCompletion = true
	return app.Run(args)
}
