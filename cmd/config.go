// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/greenline/pkg/deployment"
)

var listVariants bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective deployment as YAML",
	Long: `Print the deployment greenline would run with, after applying --config or
--variant and the connection flags.

The output is valid input for --config:

  greenline config --variant split > shed.yaml
  greenline run --config shed.yaml`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&listVariants, "list", false, "List built-in deployments and exit")
}

// loadDeployment returns the deployment selected by --config or --variant
func loadDeployment() (*deployment.Config, error) {
	if configPath != "" {
		dep, err := deployment.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", configPath, err)
		}
		return dep, nil
	}
	return deployment.Builtin(variantName)
}

func runConfig(cmd *cobra.Command, args []string) error {
	if listVariants {
		for _, name := range deployment.Variants() {
			dep, _ := deployment.Builtin(name)
			policies := make([]string, 0, len(dep.Policies))
			for _, p := range dep.Policies {
				policies = append(policies, p.String())
			}
			fmt.Printf("%-12s %s\n", name, strings.Join(policies, "; "))
		}
		return nil
	}

	dep, err := loadDeployment()
	if err != nil {
		return err
	}
	dep.Gateway = resolveGateway(dep)

	data, err := dep.Marshal()
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
