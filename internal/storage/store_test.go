package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/daekit/internal/ida"
	"github.com/san-kum/daekit/internal/solver"
)

func sampleSolution() solver.Solution {
	return solver.Solution{
		T: []float64{0, 0.5, 1},
		Y: [][]float64{
			{1.0, 0.0},
			{0.6, -0.4},
			{0.37, -0.6},
		},
		Flag:  solver.FlagSuccess,
		Stats: ida.Stats{Steps: 12, ResEvals: 40, JacSetups: 12},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save("decay", 0, []float64{0.3}, sampleSolution())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Problem != "decay" {
		t.Errorf("expected problem 'decay', got '%s'", meta.Problem)
	}
	if meta.Steps != 12 {
		t.Errorf("expected 12 steps, got %d", meta.Steps)
	}
	if len(meta.Inputs) != 1 || meta.Inputs[0] != 0.3 {
		t.Errorf("inputs = %v", meta.Inputs)
	}

	times, states, err := st.LoadTrajectory(runID)
	if err != nil {
		t.Fatalf("load trajectory failed: %v", err)
	}
	if len(times) != 3 || len(states) != 3 {
		t.Fatalf("expected 3 rows, got %d times / %d states", len(times), len(states))
	}
	if states[1][0] != 0.6 {
		t.Errorf("states[1][0] = %v", states[1][0])
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if _, err := st.Save("decay", 0, []float64{1}, sampleSolution()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save("decay", 2, []float64{1}, sampleSolution())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(dir, runID)
	if _, err := os.Stat(filepath.Join(runDir, "metadata.json")); os.IsNotExist(err) {
		t.Error("metadata.json not created")
	}
	if _, err := os.Stat(filepath.Join(runDir, "trajectory.csv")); os.IsNotExist(err) {
		t.Error("trajectory.csv not created")
	}
}
