// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Greenline - Sensor Mesh Gateway Client
//

package main

import (
	"os"

	"github.com/Thermoquad/greenline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
