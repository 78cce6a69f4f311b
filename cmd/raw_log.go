// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/greenline/pkg/lineproto"
)

var rawCapturePath string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display received frames without acting on them",
	Long: `Continuously decode and display gateway frames as they arrive.

No timers run and no thresholds are applied, so nothing is ever sent to the
gateway. Use this to watch a live mesh, or with --capture to record traffic
for "greenline replay".

Supports TCP, serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawCapturePath, "capture", "", "Record frames to a CBOR capture file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	dep, err := loadDeployment()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx, dep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	recorder, captureFile, err := openCapture(rawCapturePath)
	if err != nil {
		return err
	}
	if captureFile != nil {
		defer captureFile.Close()
	}

	// Unblock Receive on Ctrl+C
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Printf("Greenline - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	channel := lineproto.NewChannelSize(conn, dep.FrameSize())
	stats := lineproto.NewStatistics()

	for {
		frame, err := channel.Receive()
		if err != nil {
			if errors.Is(err, lineproto.ErrFrameTooLong) {
				stats.RecordOversize()
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.Printf("Read error: %v", err)
			} else {
				log.Printf("Connection closed")
			}
			break
		}

		stats.RecordFrame()
		fmt.Print(lineproto.FormatFrame(frame))
		if recorder != nil {
			if err := recorder.WriteFrame(frame); err != nil {
				return err
			}
		}
	}

	fmt.Println()
	fmt.Print(stats.String())
	if recorder != nil {
		fmt.Printf("Captured %d records to %s\n", recorder.Count(), rawCapturePath)
	}
	return nil
}
