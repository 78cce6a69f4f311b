// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deployment

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
)

var ErrUnknownVariant = errors.New("deployment: unknown variant")

const DefaultVariant = "greenhouse"

// LightThreshold is the light sensor level separating dark from bright
const LightThreshold = 400

var builtins = map[string]func() *Config{
	// Watering timer plus lights on in the dark. Nothing happens when bright.
	"greenhouse": func() *Config {
		cfg := defaults()
		cfg.Name = "greenhouse"
		cfg.Commands = control.Vocabulary{
			control.CommandWater:    "WATER",
			control.CommandLightsOn: "LIGHTBULBS",
		}
		cfg.Timers = []TimerConfig{
			{Command: control.CommandWater, InitialDelay: time.Second, Interval: 100 * time.Second},
		}
		cfg.Policies = []control.Policy{{
			Tag:       lineproto.TagLightSensor,
			Threshold: LightThreshold,
			Boundary:  control.SideAbove,
			Below:     control.CommandLightsOn,
		}}
		return cfg
	},
	// Power timer plus explicit lights on and off around the threshold
	"split": func() *Config {
		cfg := defaults()
		cfg.Name = "split"
		cfg.Commands = control.Vocabulary{
			control.CommandPowerOn:   "POWERON",
			control.CommandLightsOn:  "LIGHTSON",
			control.CommandLightsOff: "LIGHTSOFF",
		}
		cfg.Timers = []TimerConfig{
			{Command: control.CommandPowerOn, InitialDelay: time.Second, Interval: 60 * time.Second},
		}
		cfg.Policies = []control.Policy{{
			Tag:       lineproto.TagLightSensor,
			Threshold: LightThreshold,
			Boundary:  control.SideBelow,
			Above:     control.CommandLightsOff,
			Below:     control.CommandLightsOn,
		}}
		return cfg
	},
}

// Builtin returns a fresh copy of a built-in deployment
func Builtin(name string) (*Config, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownVariant, name, Variants())
	}
	return build(), nil
}

// Variants lists the built-in deployment names
func Variants() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
