// This file is used to start the ssyncctl CLI.
/*
 * Copyright (c) 2019, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/ais-oss/ssyncd/cli/commands"
)

var version string

func main() {
	if version != "" {
		commands.Version = version
	}
	if err := commands.RunCLI(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
