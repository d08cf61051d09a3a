package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAtoms       = 64
	DefaultTemperature = 300.0
	DefaultIterations  = 1000
	DefaultDm          = 0.1
	DefaultDamping     = 8e-3
	DefaultDt          = 1e-3
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Atoms int `yaml:"atoms"`
	// Neighbors is a neighbour-list file; a ring of Atoms sites is used
	// when empty.
	Neighbors   string  `yaml:"neighbors,omitempty"`
	Seed        int64   `yaml:"seed"`
	Temperature float64 `yaml:"temperature"`
	Iterations  int     `yaml:"iterations"`
	// Thermalize sweeps run before the statistics are reset.
	Thermalize int     `yaml:"thermalize"`
	Threads    int     `yaml:"threads"`
	Lambda     float64 `yaml:"lambda"`
	Debug      bool    `yaml:"debug,omitempty"`

	Exchange     []ExchangeConfig    `yaml:"exchange"`
	Landau       []LandauConfig      `yaml:"landau,omitempty"`
	Proposal     ProposalConfig      `yaml:"proposal"`
	Metadynamics *MetadynamicsConfig `yaml:"metadynamics,omitempty"`
	Dynamics     DynamicsConfig      `yaml:"dynamics"`
	Minimize     MinimizeConfig      `yaml:"minimize"`
	Scan         ScanConfig          `yaml:"scan"`
}

// ExchangeConfig couples every pair of a neighbour shell.
type ExchangeConfig struct {
	Channel int     `yaml:"channel"`
	Degree  int     `yaml:"degree"`
	Shell   int     `yaml:"shell"`
	J       float64 `yaml:"j"`
}

type LandauConfig struct {
	Channel int     `yaml:"channel"`
	Degree  int     `yaml:"degree"`
	Coeff   float64 `yaml:"coeff"`
}

type ProposalConfig struct {
	Dm   float64 `yaml:"dm"`
	Dphi float64 `yaml:"dphi"`
}

type MetadynamicsConfig struct {
	MaxRange        float64 `yaml:"max_range"`
	EnergyIncrement float64 `yaml:"energy_increment"`
	LengthScale     float64 `yaml:"length_scale"`
	Bins            int     `yaml:"bins"`
	Cutoff          float64 `yaml:"cutoff"`
	DoubleSided     bool    `yaml:"double_sided"`
	UseDerivative   bool    `yaml:"use_derivative"`
}

type DynamicsConfig struct {
	Enabled bool    `yaml:"enabled"`
	Damping float64 `yaml:"damping"`
	Dt      float64 `yaml:"dt"`
	Rescale bool    `yaml:"rescale"`
}

type MinimizeConfig struct {
	Iterations int     `yaml:"iterations"`
	Step       float64 `yaml:"step"`
	Decrement  float64 `yaml:"decrement"`
	Tolerance  float64 `yaml:"tolerance"`
}

// ScanConfig controls thermodynamic-integration and temperature scans.
type ScanConfig struct {
	Points  int `yaml:"points"`
	Workers int `yaml:"workers"`
}

func DefaultConfig() *Config {
	return &Config{
		Atoms:       DefaultAtoms,
		Seed:        1,
		Temperature: DefaultTemperature,
		Iterations:  DefaultIterations,
		Thermalize:  DefaultIterations / 10,
		Threads:     1,
		Exchange:    []ExchangeConfig{{Channel: 0, Degree: 1, J: 0.01}},
		Proposal:    ProposalConfig{Dm: DefaultDm},
		Dynamics:    DynamicsConfig{Damping: DefaultDamping, Dt: DefaultDt},
		Minimize:    MinimizeConfig{Iterations: 1000, Step: 0.1, Decrement: 0.001, Tolerance: 1e-8},
		Scan:        ScanConfig{Points: 11, Workers: 4},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, ErrInvalidConfig)...)
	}
	switch {
	case c.Atoms < 1 && c.Neighbors == "":
		return fail("atoms must be positive, got %d", c.Atoms)
	case c.Temperature < 0:
		return fail("temperature must not be negative, got %g", c.Temperature)
	case c.Iterations < 0 || c.Thermalize < 0:
		return fail("iterations must not be negative")
	case c.Lambda < 0 || c.Lambda > 1:
		return fail("lambda must lie in [0, 1], got %g", c.Lambda)
	case c.Dynamics.Enabled && c.Dynamics.Dt <= 0:
		return fail("dynamics dt must be positive, got %g", c.Dynamics.Dt)
	case c.Scan.Points == 1:
		return fail("a scan needs at least 2 points")
	}
	for _, x := range c.Exchange {
		if x.Channel < 0 || x.Channel > 1 {
			return fail("exchange channel %d", x.Channel)
		}
	}
	for _, l := range c.Landau {
		if l.Channel < 0 || l.Channel > 1 {
			return fail("landau channel %d", l.Channel)
		}
	}
	return nil
}
