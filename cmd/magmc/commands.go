package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/magmc/internal/analysis"
	"github.com/san-kum/magmc/internal/automation"
	"github.com/san-kum/magmc/internal/config"
	"github.com/san-kum/magmc/internal/experiment"
	"github.com/san-kum/magmc/internal/export"
	"github.com/san-kum/magmc/internal/metadynamics"
	"github.com/san-kum/magmc/internal/optim"
	"github.com/san-kum/magmc/internal/storage"
	"github.com/san-kum/magmc/internal/topology"
	"github.com/san-kum/magmc/internal/viz"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
)

var summaryStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444466")).
	Padding(0, 1)

// loadConfig resolves preset, then config file, then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("neighbors") {
		cfg.Neighbors = neighbors
	}
	if flags.Changed("atoms") {
		cfg.Atoms = atoms
	}
	if flags.Changed("temperature") {
		cfg.Temperature = temperature
	}
	if flags.Changed("iterations") {
		cfg.Iterations = iterations
	}
	if flags.Changed("thermalize") {
		cfg.Thermalize = thermalize
	}
	if flags.Changed("threads") {
		cfg.Threads = threads
	}
	if flags.Changed("lambda") {
		cfg.Lambda = lambda
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("j") {
		if len(cfg.Exchange) == 0 {
			cfg.Exchange = []config.ExchangeConfig{{Degree: 1}}
		}
		cfg.Exchange[0].J = exchangeJ
	}
	if flags.Changed("landau") {
		cfg.Landau = cfg.Landau[:0]
		for k, c := range landau {
			cfg.Landau = append(cfg.Landau, config.LandauConfig{Degree: 2 * (k + 1), Coeff: c})
		}
	}
	if flags.Changed("meta-range") {
		d := metadynamics.DefaultConfig(metaRange)
		cfg.Metadynamics = &config.MetadynamicsConfig{
			MaxRange:        d.MaxRange,
			EnergyIncrement: d.EnergyIncrement,
			LengthScale:     d.LengthScale,
			Bins:            d.Bins,
			Cutoff:          d.Cutoff,
		}
	}
	if flags.Changed("spin-dynamics") {
		cfg.Dynamics.Enabled = spinDyn
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("points") {
		cfg.Scan.Points = points
	}
	if flags.Changed("workers") {
		cfg.Scan.Workers = workers
	}
	return cfg, cfg.Validate()
}

func loadTopology(cfg *config.Config) (*topology.List, error) {
	if cfg.Neighbors == "" {
		return nil, nil
	}
	topo, err := topology.Load(cfg.Neighbors)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	return topo, nil
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	topo, err := loadTopology(cfg)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, topo, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	kind := "metropolis"
	if cfg.Dynamics.Enabled {
		kind = "dynamics"
	}
	fmt.Printf("running %s on %d sites...\n", kind, exp.Ensemble().NumberOfAtoms())
	start := time.Now()
	res, err := exp.Run(ctx, nil)
	if err != nil && (res == nil || !errors.Is(err, context.Canceled)) {
		return err
	}
	elapsed := time.Since(start)

	var b []string
	b = append(b,
		fmt.Sprintf("sweeps        %s", humanize.Comma(int64(res.Sweeps))),
		fmt.Sprintf("elapsed       %v", elapsed.Round(time.Millisecond)),
		fmt.Sprintf("throughput    %s", humanize.SIWithDigits(res.StepsPerSecond, 2, "steps/s")),
		fmt.Sprintf("<E0>          %.6f eV", res.MeanEnergy[0]),
		fmt.Sprintf("<E1>          %.6f eV", res.MeanEnergy[1]),
		fmt.Sprintf("Var(E0)       %.3e eV²", res.EnergyVariance[0]),
		fmt.Sprintf("<E1-E0>       %.6f eV", res.MeanDifference),
		fmt.Sprintf("acceptance    %.2f%%", 100*res.Acceptance),
	)
	if n := len(res.Samples); n > 0 {
		fmt.Println(summaryStyle.Render(lipgloss.JoinVertical(lipgloss.Left, append(b,
			fmt.Sprintf("order         %.4f", res.Samples[n-1].Magnetization))...)))
	} else {
		fmt.Println(summaryStyle.Render(lipgloss.JoinVertical(lipgloss.Left, b...)))
	}

	if !save {
		return nil
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	runID, err := st.Save(kind, cfg, res)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runMinimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	topo, err := loadTopology(cfg)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, topo, logger)
	if err != nil {
		return err
	}

	residual, moments := exp.Minimize()
	ens := exp.Ensemble()
	e0, _ := ens.Energy(0)
	e1, _ := ens.Energy(1)
	fmt.Printf("residual: %.3e\n", residual)
	fmt.Printf("energy:   %.6f eV (channel 0), %.6f eV (channel 1)\n", e0, e1)
	fmt.Printf("order:    %.6f\n", ens.OrderParameter())

	if !save {
		return nil
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	runID, err := st.SaveMoments("minimize", cfg, moments, map[string]float64{
		"residual": residual,
		"energy_0": e0,
		"energy_1": e1,
	})
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runIntegration(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	topo, err := loadTopology(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	lambdas := floats.Span(make([]float64, max(cfg.Scan.Points, 2)), 0, 1)
	fmt.Printf("integrating over %d lambda points with %d workers...\n", len(lambdas), cfg.Scan.Workers)
	pts, err := experiment.ScanLambda(ctx, cfg, topo, lambdas, logger)
	if err != nil {
		return err
	}

	integrand := make([]float64, len(pts))
	for i, p := range pts {
		integrand[i] = p.MeanDifference
	}
	deltaF, err := analysis.ThermodynamicIntegration(lambdas, integrand)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LAMBDA\t<E>\t<E1-E0>\tACCEPT")
	for _, p := range pts {
		fmt.Fprintf(w, "%.3f\t%.6f\t%.6f\t%.1f%%\n", p.Lambda, p.MeanEnergy, p.MeanDifference, 100*p.Acceptance)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(asciigraph.Plot(integrand, asciigraph.Height(10), asciigraph.Width(60), asciigraph.Caption("<E1-E0> vs lambda")))
	fmt.Printf("\nΔF = F1 - F0 = %.6f eV\n", deltaF)

	st, err := openStore()
	if err != nil {
		return err
	}
	runID, err := st.SaveScan("ti", cfg, pts, map[string]float64{"delta_f": deltaF})
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if tFrom <= 0 || tTo < tFrom {
		return fmt.Errorf("invalid temperature range [%g, %g]", tFrom, tTo)
	}
	topo, err := loadTopology(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	temps := floats.Span(make([]float64, max(cfg.Scan.Points, 2)), tFrom, tTo)
	pts, err := experiment.ScanTemperature(ctx, cfg, topo, temps, logger)
	if err != nil {
		return err
	}

	heat := make([]float64, len(pts))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "T (K)\t<E>\tC/kB\tACCEPT")
	for i, p := range pts {
		heat[i] = p.HeatCapacity
		fmt.Fprintf(w, "%.1f\t%.6f\t%.3f\t%.1f%%\n", p.Temperature, p.MeanEnergy, p.HeatCapacity, 100*p.Acceptance)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(asciigraph.Plot(heat, asciigraph.Height(10), asciigraph.Width(60), asciigraph.Caption("heat capacity vs temperature")))

	peak := floats.MaxIdx(heat)
	st, err := openStore()
	if err != nil {
		return err
	}
	runID, err := st.SaveScan("scan", cfg, pts, map[string]float64{"peak_temperature": pts[peak].Temperature})
	if err != nil {
		return err
	}
	fmt.Printf("heat capacity peak near %.1f K\nrun id: %s\n", pts[peak].Temperature, runID)
	return nil
}

func runAnneal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	topo, err := loadTopology(cfg)
	if err != nil {
		return err
	}
	ens, err := experiment.Build(cfg, topo)
	if err != nil {
		return err
	}

	sc := automation.Anneal(annealHot, annealCold, stages, cfg.Iterations)
	sc.Threads = cfg.Threads
	if schedule != "" {
		if sc, err = automation.LoadScenario(schedule); err != nil {
			return err
		}
	}
	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunScenario(ctx, sc, ens, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tT (K)\tLAMBDA\tSWEEPS\t<E>\tACCEPT\tORDER")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%d\t%.6f\t%.1f%%\t%.4f\n", r.Name, r.Temperature, r.Lambda, r.Sweeps, r.MeanEnergy, 100*r.Acceptance, r.Order)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !save || len(results) == 0 {
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	last := results[len(results)-1]
	runID, err := st.SaveMoments("anneal", cfg, ens.MagneticMoments(), map[string]float64{
		"final_temperature": last.Temperature,
		"mean_energy":       last.MeanEnergy,
		"order":             last.Order,
	})
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	topo, err := loadTopology(cfg)
	if err != nil {
		return err
	}
	ens, err := experiment.Build(cfg, topo)
	if err != nil {
		return err
	}
	if ens.SpinDynamics() {
		return fmt.Errorf("live view samples with Metropolis; disable dynamics in the configuration")
	}

	title := "ring"
	if preset != "" {
		title = preset
	} else if cfg.Neighbors != "" {
		title = cfg.Neighbors
	}
	m := viz.NewModel(ens, title, cfg.Temperature, cfg.Threads)

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(viz.Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tATOMS\tT (K)\tLAMBDA\tSWEEPS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\t%.3f\t%s\n",
			run.ID,
			run.Kind,
			humanize.Time(run.Timestamp),
			run.Atoms,
			run.Temperature,
			run.Lambda,
			humanize.Comma(int64(run.Sweeps)),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("kind: %s\n\n", meta.Kind)

	switch meta.Kind {
	case "ti", "scan":
		pts, err := st.LoadScan(runID)
		if err != nil {
			return err
		}
		if len(pts) == 0 {
			return fmt.Errorf("no data to plot")
		}
		y := make([]float64, len(pts))
		caption := "<E1-E0> vs lambda"
		for i, p := range pts {
			if meta.Kind == "scan" {
				y[i] = p.HeatCapacity
			} else {
				y[i] = p.MeanDifference
			}
		}
		if meta.Kind == "scan" {
			caption = "heat capacity vs temperature"
		}
		fmt.Println(asciigraph.Plot(y, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption(caption)))
		return nil
	case "minimize", "anneal":
		return fmt.Errorf("run %s stores moments only; use svg to render them", runID)
	}

	trace, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	if len(trace) == 0 {
		return fmt.Errorf("no data to plot")
	}
	energy := make([]float64, len(trace))
	order := make([]float64, len(trace))
	for i, s := range trace {
		energy[i] = (1-meta.Lambda)*s.Energy[0] + meta.Lambda*s.Energy[1]
		order[i] = s.Magnetization
	}
	fmt.Println(asciigraph.Plot(energy, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("energy (eV) vs sweep")))
	fmt.Println()
	fmt.Println(asciigraph.Plot(order, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("order parameter vs sweep")))
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	trace, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	if len(trace) < 2 {
		return fmt.Errorf("no data")
	}

	energy := make([]float64, len(trace))
	order := make([]float64, len(trace))
	for i, s := range trace {
		energy[i] = (1-meta.Lambda)*s.Energy[0] + meta.Lambda*s.Energy[1]
		order[i] = s.Magnetization
	}

	fmt.Printf("autocorrelation analysis: %s\n\n", meta.ID)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERIES\tTAU (sweeps)\tSTD ERROR\tEFFECTIVE SAMPLES")
	for _, series := range []struct {
		name string
		x    []float64
	}{{"energy", energy}, {"order", order}} {
		tau := analysis.IntegratedTime(series.x)
		fmt.Fprintf(w, "%s\t%.2f\t%.3e\t%.0f\n", series.name, tau, analysis.StandardError(series.x), float64(len(series.x))/math.Max(2*tau, 1))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	rho := analysis.Autocorrelation(energy)
	lags := min(len(rho), 100)
	fmt.Println()
	fmt.Println(asciigraph.Plot(rho[:lags], asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("energy autocorrelation vs lag")))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportJSON(os.Stdout, args[0])
}

func exportCSV(cmd *cobra.Command, args []string) error {
	if err := storage.New(dataDir).CopyTrace(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("trace written to %s\n", args[1])
	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	topo, err := loadTopology(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("searching %d x %d proposal steps for acceptance %.2f...\n", len(tuneDm), len(tuneDphi), targetAcc)
	prop, acc, err := optim.TuneProposal(ctx, cfg, topo, tuneDm, tuneDphi, targetAcc)
	if err != nil {
		return err
	}
	fmt.Printf("dm:         %g\n", prop.Dm)
	fmt.Printf("dphi:       %g\n", prop.Dphi)
	fmt.Printf("acceptance: %.2f%%\n", 100*acc)
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	moments, err := storage.New(dataDir).LoadMoments(args[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], []byte(export.MomentsToSVG(moments, 60, 30, 6)), 0644); err != nil {
		return err
	}
	fmt.Printf("moments written to %s\n", args[1])
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	fmt.Println("presets:")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Printf("  %-14s %3d sites, %6.1f K, %s sweeps\n", name, p.Atoms, p.Temperature, humanize.Comma(int64(p.Iterations)))
	}
	return nil
}

func benchSweeps(cmd *cobra.Command, args []string) error {
	fmt.Printf("benchmarking %d sweeps\n\n", benchIters)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SITES\tTHREADS\tTIME\tSTEPS/SEC")

	for _, n := range benchSizes {
		for _, th := range []int{1, 2, 4} {
			cfg := config.DefaultConfig()
			cfg.Atoms = n
			cfg.Threads = th
			ens, err := experiment.Build(cfg, nil)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := ens.Run(cfg.Temperature, benchIters, th); err != nil {
				return err
			}
			elapsed := time.Since(start)
			fmt.Fprintf(w, "%d\t%d\t%v\t%s\n", n, th, elapsed.Round(time.Microsecond), humanize.SIWithDigits(ens.StepsPerSecond(), 2, ""))
		}
	}
	return w.Flush()
}
