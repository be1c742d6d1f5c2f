package config

// GetPreset returns a ready-to-run configuration for a named demo
// problem, or nil for an unknown name.
func GetPreset(problem string) *Config {
	cfg := DefaultConfig()
	cfg.Problem = problem
	switch problem {
	case "decay":
		cfg.TEnd = 5
	case "decay-event":
		cfg.TEnd = 5
		cfg.Points = 0 // keep the adaptive steps so the crossing is visible
	case "robertson":
		cfg.TEnd = 0.1
		cfg.Plot = 1
		cfg.Options = map[string]any{
			"suppress_algebraic_error": true,
		}
	default:
		return nil
	}
	return cfg
}
