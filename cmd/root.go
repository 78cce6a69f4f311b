// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// TCP connection flags
	gatewayHost string
	gatewayPort int

	// Serial connection flags
	serialDevice string
	baudRate     int

	// WebSocket connection flags
	wsURL string

	// Deployment flags
	configPath  string
	variantName string
)

var rootCmd = &cobra.Command{
	Use:   "greenline",
	Short: "Sensor mesh gateway client",
	Long: `Greenline - A client for sensor mesh gateways that speak a newline-delimited
text protocol.

Greenline keeps one connection to the gateway open, sends periodic actuator
commands (watering, power) on independent timers, and answers sensor readings
with threshold-triggered commands (lights on, lights off).

Connection modes:
  TCP:       --host localhost --port 60001 (default)
  Serial:    --serial /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path

Deployments:
  Built-in:  --variant greenhouse | split
  File:      --config deployment.yaml

Command spellings, timers and thresholds all come from the deployment. Use
"greenline config" to print the effective deployment as a starting point for
a YAML file.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	// TCP connection flags
	rootCmd.PersistentFlags().StringVarP(&gatewayHost, "host", "H", "", "Gateway host (TCP)")
	rootCmd.PersistentFlags().IntVarP(&gatewayPort, "port", "p", 0, "Gateway port (TCP)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&serialDevice, "serial", "s", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")

	// Deployment flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Deployment YAML file")
	rootCmd.PersistentFlags().StringVar(&variantName, "variant", "greenhouse", "Built-in deployment (ignored with --config)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
