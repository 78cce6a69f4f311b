// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/greenline/pkg/capture"
	"github.com/Thermoquad/greenline/pkg/lineproto"
	"github.com/Thermoquad/greenline/pkg/session"
)

var replayDump bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture.cbor>",
	Short: "Run a capture through the deployment's thresholds offline",
	Long: `Feed every received frame of a capture file to the deployment's threshold
controllers and print the commands they would send. Nothing is sent anywhere.

Use this to try a new threshold or vocabulary against recorded traffic:

  greenline raw_log --capture today.cbor
  greenline replay --config candidate.yaml today.cbor

With --dump the capture is printed record by record instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayDump, "dump", false, "Print capture records without replaying")
	replayCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print commands and errors")
}

// dryRunSender accepts any valid payload and writes nothing
type dryRunSender struct {
	maxFrameSize int
}

func (d dryRunSender) Send(payload []byte) error {
	return lineproto.ValidatePayload(payload, d.maxFrameSize)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	if replayDump {
		records, err := capture.ReadAll(f)
		for _, r := range records {
			fmt.Print(r.String())
		}
		return err
	}

	dep, err := loadDeployment()
	if err != nil {
		return err
	}
	controllers, err := dep.Controllers()
	if err != nil {
		return err
	}

	fmt.Printf("Greenline - Replay\n")
	fmt.Printf("Capture: %s\n", args[0])
	fmt.Printf("Deployment: %s\n", dep.Name)
	for _, c := range controllers {
		fmt.Printf("Policy: %s\n", c.Policy())
	}
	fmt.Println()

	stats := lineproto.NewStatistics()
	observer := session.MultiObserver{session.RecordStats(stats), textPrinter(!quiet)}
	dispatcher := session.NewDispatcher(capture.NewReader(f), dryRunSender{maxFrameSize: dep.FrameSize()}, controllers, observer)

	runErr := dispatcher.Run(context.Background())

	fmt.Println()
	fmt.Print(stats.String())
	return runErr
}
