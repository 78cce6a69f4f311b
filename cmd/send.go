// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
)

var sendRaw bool

var sendCmd = &cobra.Command{
	Use:   "send <command> [command...]",
	Short: "Send one-shot commands to the gateway",
	Long: `Open a connection, send each command once in order, and disconnect.

Commands are names from the deployment vocabulary (see "greenline config"),
for example:

  greenline send water
  greenline send --variant split lights_off

With --raw the arguments are sent as literal payloads instead.

Exit codes:
  0 - All commands sent
  1 - Unknown command or write error
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendRaw, "raw", false, "Send arguments as literal payloads")
}

// resolveCommands maps arguments to commands before anything is sent
func resolveCommands(vocab control.Vocabulary, args []string, raw bool, maxFrameSize int) ([]control.Command, error) {
	commands := make([]control.Command, 0, len(args))
	for _, arg := range args {
		if raw {
			if err := lineproto.ValidatePayload([]byte(arg), maxFrameSize); err != nil {
				return nil, fmt.Errorf("payload %q: %w", arg, err)
			}
			commands = append(commands, control.Command{Name: "raw", Payload: arg})
			continue
		}
		cmd, err := vocab.Command(control.CommandName(arg))
		if err != nil {
			return nil, fmt.Errorf("%w (known: %v)", err, vocab.Names())
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	dep, err := loadDeployment()
	if err != nil {
		return err
	}
	commands, err := resolveCommands(dep.Commands, args, sendRaw, dep.FrameSize())
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(context.Background(), dep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Connection: %s\n", connInfo)

	channel := lineproto.NewChannelSize(conn, dep.FrameSize())
	for _, c := range commands {
		if err := channel.Send(c.Frame()); err != nil {
			return fmt.Errorf("send %s: %w", c.Name, err)
		}
		fmt.Print(lineproto.FormatCommand(time.Now(), string(c.Name), c.Frame()))
	}
	return nil
}
