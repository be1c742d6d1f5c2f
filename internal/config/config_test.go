package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Problem != "decay" {
		t.Errorf("problem = %q", cfg.Problem)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	src := `problem: robertson
t_end: 0.5
points: 50
inputs:
  - [0.04, 10000.0, 30000000.0]
options:
  jacobian: sparse
  num_solvers: 2
  hermite_interpolation: true
`
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Problem != "robertson" || cfg.TEnd != 0.5 || cfg.Points != 50 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.Inputs) != 1 || len(cfg.Inputs[0]) != 3 {
		t.Errorf("inputs = %v", cfg.Inputs)
	}
	if v, ok := cfg.Options["num_solvers"]; !ok || v != 2 {
		t.Errorf("options num_solvers = %v", cfg.Options["num_solvers"])
	}
	if grid := cfg.Grid(); len(grid) != 50 || grid[0] != 0 || grid[49] != 0.5 {
		t.Errorf("grid endpoints: %v .. %v (%d points)", grid[0], grid[len(grid)-1], len(grid))
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty problem": func(c *Config) { c.Problem = "" },
		"bad span":      func(c *Config) { c.TEnd = c.TStart },
		"neg points":    func(c *Config) { c.Points = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("no error")
			}
		})
	}
}

func TestGetPreset(t *testing.T) {
	if cfg := GetPreset("robertson"); cfg == nil || cfg.TEnd != 0.1 {
		t.Fatalf("robertson preset = %+v", cfg)
	}
	if cfg := GetPreset("nope"); cfg != nil {
		t.Errorf("unknown preset = %+v", cfg)
	}
}
