// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package deployment describes one gateway installation: where the gateway is,
// the command spellings its motes accept, the periodic timers and the
// threshold policies. Deployments load from YAML or come from the built-in
// variants.
package deployment

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
	"github.com/Thermoquad/greenline/pkg/session"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 60001
	DefaultBaud = 115200
)

var ErrNoGateway = errors.New("deployment: no gateway address")

// Config is a complete deployment
type Config struct {
	Name         string             `yaml:"name"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	MaxFrameSize int                `yaml:"max_frame_size"`
	Commands     control.Vocabulary `yaml:"commands"`
	Timers       []TimerConfig      `yaml:"timers"`
	Policies     []control.Policy   `yaml:"policies"`
}

// GatewayConfig locates the gateway. Serial and URL take precedence over TCP.
type GatewayConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Serial string `yaml:"serial,omitempty"`
	Baud   int    `yaml:"baud,omitempty"`
	URL    string `yaml:"url,omitempty"`
}

// TimerConfig sends Command once after InitialDelay and then every Interval
type TimerConfig struct {
	Command      control.CommandName `yaml:"command"`
	InitialDelay time.Duration       `yaml:"initial_delay"`
	Interval     time.Duration       `yaml:"interval"`
}

// Address returns host:port for TCP gateways
func (g GatewayConfig) Address() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

func defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
			Baud: DefaultBaud,
		},
		MaxFrameSize: lineproto.DefaultMaxFrameSize,
	}
}

// Load reads a deployment from a YAML file. Unset gateway fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a YAML deployment
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse deployment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every command fits in a frame and that every timer and
// policy refers to a known command. A zero max_frame_size means the default.
func (c *Config) Validate() error {
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("deployment %s: negative max_frame_size %d", c.Name, c.MaxFrameSize)
	}
	if err := c.Commands.Validate(c.FrameSize()); err != nil {
		return fmt.Errorf("deployment %s: %w", c.Name, err)
	}
	if c.Gateway.Serial == "" && c.Gateway.URL == "" && (c.Gateway.Host == "" || c.Gateway.Port <= 0) {
		return fmt.Errorf("deployment %s: %w", c.Name, ErrNoGateway)
	}
	for i, t := range c.Timers {
		if _, err := c.Commands.Command(t.Command); err != nil {
			return fmt.Errorf("deployment %s: timer %d: %w", c.Name, i, err)
		}
		if t.Interval <= 0 {
			return fmt.Errorf("deployment %s: timer %d: %w", c.Name, i, session.ErrInvalidInterval)
		}
		if t.InitialDelay < 0 {
			return fmt.Errorf("deployment %s: timer %d: negative initial delay", c.Name, i)
		}
	}
	for i, p := range c.Policies {
		if err := p.Validate(c.Commands); err != nil {
			return fmt.Errorf("deployment %s: policy %d: %w", c.Name, i, err)
		}
	}
	return nil
}

// FrameSize returns the effective frame size limit
func (c *Config) FrameSize() int {
	if c.MaxFrameSize == 0 {
		return lineproto.DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// Emitters resolves the timers into session emitters
func (c *Config) Emitters() ([]session.Emitter, error) {
	emitters := make([]session.Emitter, 0, len(c.Timers))
	for _, t := range c.Timers {
		cmd, err := c.Commands.Command(t.Command)
		if err != nil {
			return nil, err
		}
		emitters = append(emitters, session.Emitter{
			Command:      cmd,
			InitialDelay: t.InitialDelay,
			Interval:     t.Interval,
		})
	}
	return emitters, nil
}

// Controllers builds one controller per policy
func (c *Config) Controllers() ([]*control.Controller, error) {
	controllers := make([]*control.Controller, 0, len(c.Policies))
	for _, p := range c.Policies {
		ctrl, err := control.NewController(p, c.Commands)
		if err != nil {
			return nil, err
		}
		controllers = append(controllers, ctrl)
	}
	return controllers, nil
}

// SessionConfig assembles everything a session needs except the logger and
// observer
func (c *Config) SessionConfig() (session.Config, error) {
	if err := c.Validate(); err != nil {
		return session.Config{}, err
	}
	emitters, err := c.Emitters()
	if err != nil {
		return session.Config{}, err
	}
	controllers, err := c.Controllers()
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		Emitters:     emitters,
		Controllers:  controllers,
		Vocabulary:   c.Commands,
		MaxFrameSize: c.FrameSize(),
	}, nil
}

// Marshal renders the deployment as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
