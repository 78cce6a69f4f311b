// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/greenline/pkg/session"
)

var (
	monitorCapturePath string
	monitorShowFrames  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run a gateway session with a live terminal UI",
	Long: `Run the deployment exactly like "greenline run", but show a live dashboard:
statistics, the latest reading per sensor, when each command was last sent,
and a scrolling event log.

Type a command name from the deployment vocabulary and press Enter to send
it on behalf of the operator. Press Esc or Ctrl+C to quit.

Requires an interactive terminal; use "greenline run" under systemd or when
piping output.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorCapturePath, "capture", "", "Record traffic to a CBOR capture file")
	monitorCmd.Flags().BoolVar(&monitorShowFrames, "show-frames", false, "Log every received frame")
}

// tuiLogWriter forwards session log lines into the event log
type tuiLogWriter func(line string)

func (w tuiLogWriter) Write(b []byte) (int, error) {
	w(strings.TrimRight(string(b), "\n"))
	return len(b), nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("monitor needs an interactive terminal; use \"greenline run\" instead")
	}

	dep, err := loadDeployment()
	if err != nil {
		return err
	}
	cfg, err := dep.SessionConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx, dep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	recorder, captureFile, err := openCapture(monitorCapturePath)
	if err != nil {
		conn.Close()
		return err
	}
	if captureFile != nil {
		defer captureFile.Close()
	}

	// The program is created below; events only flow once the session runs
	var p *tea.Program
	observers := session.MultiObserver{session.ObserverFunc(func(e session.Event) {
		p.Send(eventMsg(e))
	})}
	if recorder != nil {
		observers = append(observers, recorder)
	}
	cfg.Observer = observers
	cfg.Logger = log.New(tuiLogWriter(func(line string) {
		p.Send(logLineMsg(line))
	}), "", 0)

	sess, err := session.New(conn, cfg)
	if err != nil {
		conn.Close()
		return err
	}

	m := initialMonitorModel(connInfo, dep.Name, sess.ID(), dep.Policies, dep.Commands,
		sess.Stats(), sess.SendCommand, monitorShowFrames)
	p = tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := sess.Run(ctx)
		p.Send(sessionEndedMsg{err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("TUI error: %v", err)
	}

	cancel()
	runErr := <-done

	fmt.Print(sess.Stats().String())
	if recorder != nil {
		fmt.Printf("Captured %d records to %s\n", recorder.Count(), monitorCapturePath)
	}
	return runErr
}
