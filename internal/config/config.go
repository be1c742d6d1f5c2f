package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTEnd   = 10.0
	DefaultPoints = 200
)

// Config is one CLI run: which demo problem to solve, over what time
// span, and the raw solver options forwarded to the solver layer for
// validation there.
type Config struct {
	Problem string  `yaml:"problem"`
	TStart  float64 `yaml:"t_start"`
	TEnd    float64 `yaml:"t_end"`

	// Points is the size of the uniform interpolation grid; 0 keeps the
	// adaptive internal steps instead.
	Points int `yaml:"points"`

	// Inputs overrides the problem's default parameter sets; one row per
	// batch entry.
	Inputs [][]float64 `yaml:"inputs"`

	// Plot selects the state index drawn by the run command.
	Plot int `yaml:"plot"`

	Options map[string]any `yaml:"options"`
}

func DefaultConfig() *Config {
	return &Config{
		Problem: "decay",
		TEnd:    DefaultTEnd,
		Points:  DefaultPoints,
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
	if err := cfg.Validate(); err != nil {
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
	if c.Problem == "" {
		return fmt.Errorf("config: problem name is empty")
	}
	if c.TEnd <= c.TStart {
		return fmt.Errorf("config: t_end %g must exceed t_start %g", c.TEnd, c.TStart)
	}
	if c.Points < 0 {
		return fmt.Errorf("config: points = %d", c.Points)
	}
	if c.Plot < 0 {
		return fmt.Errorf("config: plot index = %d", c.Plot)
	}
	return nil
}

// Grid returns the uniform interpolation grid, or nil in adaptive mode.
func (c *Config) Grid() []float64 {
	if c.Points == 0 {
		return nil
	}
	if c.Points == 1 {
		return []float64{c.TEnd}
	}
	grid := make([]float64, c.Points)
	for i := range grid {
		grid[i] = c.TStart + (c.TEnd-c.TStart)*float64(i)/float64(c.Points-1)
	}
	grid[len(grid)-1] = c.TEnd
	return grid
}
