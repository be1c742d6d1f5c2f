package main

import (
	"fmt"
	"os"

	"github.com/san-kum/daekit/internal/config"
	"github.com/san-kum/daekit/internal/solver"
	"github.com/san-kum/daekit/internal/storage"
	"github.com/spf13/cobra"
)

var (
	configFile string
	tEnd       float64
	points     int
	plotCol    int
	saveDir    string
	runsDir    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "daekit",
		Short: "batched DAE solving toolkit",
	}

	runCmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "solve a built-in problem and plot the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProblem,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "run configuration file (yaml)")
	runCmd.Flags().Float64Var(&tEnd, "time", 0, "override final time")
	runCmd.Flags().IntVar(&points, "points", -1, "interpolation grid size (0 = adaptive)")
	runCmd.Flags().IntVar(&plotCol, "plot", -1, "state index to plot")
	runCmd.Flags().StringVar(&saveDir, "save", "", "archive solutions under this directory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list built-in problems",
		RunE:  listProblems,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list archived runs",
		RunE:  listRuns,
	}
	runsCmd.Flags().StringVar(&runsDir, "dir", "runs", "archive directory")

	rootCmd.AddCommand(runCmd, listCmd, runsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func resolveConfig(args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if len(args) == 1 {
			cfg.Problem = args[0]
		}
	case len(args) == 1:
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown problem %q (see `daekit list`)", args[0])
		}
	default:
		return nil, fmt.Errorf("give a problem name or --config")
	}
	if tEnd > 0 {
		cfg.TEnd = tEnd
	}
	if points >= 0 {
		cfg.Points = points
	}
	if plotCol >= 0 {
		cfg.Plot = plotCol
	}
	return cfg, cfg.Validate()
}

func runProblem(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(args)
	if err != nil {
		return err
	}
	d, ok := demos[cfg.Problem]
	if !ok {
		return fmt.Errorf("unknown problem %q (see `daekit list`)", cfg.Problem)
	}

	pb, err := d.build()
	if err != nil {
		return err
	}
	opts, err := solver.NewOptions(cfg.Options)
	if err != nil {
		return err
	}
	sg, err := solver.New(pb, opts)
	if err != nil {
		return err
	}

	inputs := d.inputs
	if len(cfg.Inputs) > 0 {
		inputs = cfg.Inputs
	}
	y0 := make([][]float64, len(inputs))
	yp0 := make([][]float64, len(inputs))
	for i := range inputs {
		y0[i] = append([]float64(nil), d.y0...)
		yp0[i] = append([]float64(nil), d.yp0...)
	}

	tEval := []float64{cfg.TStart, cfg.TEnd}
	sols, err := sg.Solve(tEval, cfg.Grid(), y0, yp0, inputs)
	if err != nil {
		return err
	}

	var st *storage.Store
	if saveDir != "" {
		st = storage.New(saveDir)
		if err := st.Init(); err != nil {
			return err
		}
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s  (%s)", cfg.Problem, d.desc)))
	for i, sol := range sols {
		fmt.Printf("\n%s %v  %s\n",
			labelStyle.Render(fmt.Sprintf("group %d, inputs", i)),
			inputs[i], renderFlag(sol.Flag))
		if sol.HasEvent {
			fmt.Printf("%s t = %.6g, y = %v\n",
				labelStyle.Render("event at"), sol.TEvent, sol.YEvent)
		}
		caption := fmt.Sprintf("state %d vs time", cfg.Plot)
		if cfg.Plot < len(d.stateNames) {
			caption = d.stateNames[cfg.Plot] + " vs time"
		}
		fmt.Println(renderPlot(sol, cfg.Plot, caption))
		if opts.PrintStats {
			fmt.Println(renderStats(sol))
		}
		if st != nil {
			runID, err := st.Save(cfg.Problem, i, inputs[i], sol)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", labelStyle.Render("saved as"), runID)
		}
	}
	return nil
}

func listProblems(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("built-in problems"))
	for _, name := range demoNames() {
		d := demos[name]
		fmt.Printf("  %s  %s\n",
			valueStyle.Render(fmt.Sprintf("%-14s", name)),
			labelStyle.Render(d.desc))
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(runsDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println(labelStyle.Render("no archived runs"))
		return nil
	}
	fmt.Println(titleStyle.Render("archived runs"))
	for _, meta := range runs {
		line := fmt.Sprintf("  %s  %s  inputs %v  %d steps",
			valueStyle.Render(fmt.Sprintf("%-28s", meta.ID)),
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			meta.Inputs, meta.Steps)
		if meta.HasEvent {
			line += fmt.Sprintf("  event at t=%.6g", meta.TEvent)
		}
		fmt.Println(line)
	}
	return nil
}
