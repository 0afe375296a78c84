// This file implements the top-level `show` command: sessions (the
// process-wide stats.Registry snapshot) and audit (one (device, partition)'s
// persisted failure history), the SSYNC-admin analogs of the teacher's
// `show xaction`/`show rebalance` handlers (show_hdlr.go).
/*
 * Copyright (c) 2019, NVIDIA CORPORATION. All rights reserved.
 */
package commands

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli"

	"github.com/ais-oss/ssyncd/audit"
	"github.com/ais-oss/ssyncd/stats"
)

var showCmds = []cli.Command{
	{
		Name:  commandShow,
		Usage: "query a running ssyncd daemon's session state",
		Subcommands: []cli.Command{
			{
				Name:      subcmdSessions,
				Usage:     "show every tracked (device, partition) session's counters",
				ArgsUsage: " ",
				Flags:     []cli.Flag{daemonURLFlag, jsonFlag, refreshFlag},
				Action:    showSessionsHandler,
			},
			{
				Name:      subcmdAudit,
				Usage:     "show the persisted failure history for one (device, partition)",
				ArgsUsage: " ",
				Flags:     []cli.Flag{daemonURLFlag, jsonFlag, deviceFlag, partitionFlag},
				Action:    showAuditHandler,
			},
		},
	},
}

func showSessionsHandler(c *cli.Context) error {
	baseURL := c.String(daemonURLFlag.Name)
	for {
		var sessions []stats.SessionStats
		if err := getJSON(baseURL, "/_/sessions", nil, &sessions); err != nil {
			return err
		}
		if c.Bool(jsonFlag.Name) {
			b, err := jsoniter.MarshalIndent(sessions, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		} else {
			printSessionsTable(sessions)
		}

		refresh := c.Duration(refreshFlag.Name)
		if refresh == 0 {
			return nil
		}
		time.Sleep(refresh)
	}
}

func printSessionsTable(sessions []stats.SessionStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tPARTITION\tSUCCESS\tFAILURE\tBYTES\tRUNNING\tABORTED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%v\t%v\n",
			s.Device, s.Partition, s.SuccessCount, s.FailureCount, s.BytesCount(), s.Running(), s.Aborted())
	}
	w.Flush()
}

func showAuditHandler(c *cli.Context) error {
	baseURL := c.String(daemonURLFlag.Name)
	device, partition := c.String(deviceFlag.Name), c.String(partitionFlag.Name)
	if device == "" || partition == "" {
		return fmt.Errorf("--device and --partition are both required")
	}

	var records []audit.Record
	q := url.Values{"device": {device}, "partition": {partition}}
	if err := getJSON(baseURL, "/_/audit", q, &records); err != nil {
		return err
	}
	if c.Bool(jsonFlag.Name) {
		b, err := jsoniter.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tSUCCESS\tFAILURE\tABORTED\tMESSAGE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%s\n",
			r.Timestamp.Format(time.RFC3339), r.SuccessCount, r.FailureCount, r.Aborted, r.Message)
	}
	w.Flush()
	return nil
}
