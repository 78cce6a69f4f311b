// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/greenline/pkg/capture"
	"github.com/Thermoquad/greenline/pkg/session"
)

var (
	statsInterval int
	capturePath   string
	quiet         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a gateway session in text mode",
	Long: `Connect to the gateway and run the deployment until the gateway closes the
connection or greenline is interrupted.

Every periodic timer sends its command on its own schedule. Every sensor
reading is checked against the deployment's thresholds and may trigger a
command. Received frames and sent commands are printed as they happen, with
a statistics summary at a configurable interval.

When started by systemd with Type=notify, greenline reports READY once the
session is running and STOPPING when it ends.

Exit codes:
  0 - Gateway closed the connection or interrupted
  1 - Session failed (read or write error)
  2 - Connection error`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&statsInterval, "stats-interval", 60, "Statistics interval in seconds (0 to disable)")
	runCmd.Flags().StringVar(&capturePath, "capture", "", "Record traffic to a CBOR capture file")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print commands and errors")
}

// textPrinter prints session events as log lines
func textPrinter(showFrames bool) session.Observer {
	var mu sync.Mutex
	return session.ObserverFunc(func(e session.Event) {
		var line string
		switch e.Kind {
		case session.EventFrame:
			if !showFrames {
				return
			}
			line = session.FormatEvent(e)
		case session.EventCommand:
			line = fmt.Sprintf("\033[1;32m%s\033[0m", session.FormatEvent(e))
		case session.EventMalformed:
			if !showFrames {
				return
			}
			line = fmt.Sprintf("\033[1;33m%s\033[0m", session.FormatEvent(e))
		case session.EventOversize:
			line = fmt.Sprintf("\033[1;33m%s\033[0m", session.FormatEvent(e))
		case session.EventSendError:
			line = fmt.Sprintf("\033[1;31m%s\033[0m", session.FormatEvent(e))
		case session.EventClosed:
			line = session.FormatEvent(e)
		default:
			return
		}

		mu.Lock()
		defer mu.Unlock()
		fmt.Print(line)
	})
}

// openCapture creates the capture file, or returns nils when path is empty
func openCapture(path string) (*capture.Writer, *os.File, error) {
	if path == "" {
		return nil, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	return capture.NewWriter(f), f, nil
}

func sdnotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("sdnotify: %v", err)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	dep, err := loadDeployment()
	if err != nil {
		return err
	}
	cfg, err := dep.SessionConfig()
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

	recorder, captureFile, err := openCapture(capturePath)
	if err != nil {
		conn.Close()
		return err
	}
	if captureFile != nil {
		defer captureFile.Close()
	}

	observers := session.MultiObserver{textPrinter(!quiet)}
	if recorder != nil {
		observers = append(observers, recorder)
	}
	cfg.Observer = observers
	cfg.Logger = log.New(os.Stderr, "", log.LstdFlags)

	sess, err := session.New(conn, cfg)
	if err != nil {
		conn.Close()
		return err
	}

	fmt.Printf("Greenline - Gateway Session\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Deployment: %s\n", dep.Name)
	fmt.Printf("Session: %s\n", sess.ID())
	if capturePath != "" {
		fmt.Printf("Capture: %s\n", capturePath)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if statsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fmt.Println()
					fmt.Print(sess.Stats().String())
					fmt.Println()
				}
			}
		}()
	}

	sdnotify(daemon.SdNotifyReady)
	runErr := sess.Run(ctx)
	sdnotify(daemon.SdNotifyStopping)

	fmt.Println()
	fmt.Print(sess.Stats().String())

	if recorder != nil {
		fmt.Printf("Captured %d records to %s\n", recorder.Count(), capturePath)
		if err := recorder.Err(); err != nil && runErr == nil {
			return err
		}
	}
	return runErr
}
