package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir     string
	verbose     bool
	configFile  string
	preset      string
	neighbors   string
	atoms       int
	temperature float64
	iterations  int
	thermalize  int
	threads     int
	lambda      float64
	seed        int64
	exchangeJ   float64
	landau      []float64
	metaRange   float64
	spinDyn     bool
	debug       bool
	save        bool
	points      int
	workers     int
	tFrom, tTo  float64
	benchSizes  []int
	benchIters  int
	targetAcc   float64
	tuneDm      []float64
	tuneDphi    []float64
	schedule    string
	stages      int
	annealHot   float64
	annealCold  float64
)

var logger = slog.New(slog.DiscardHandler)

// main registers the magmc commands and executes the root command, exiting
// with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "magmc",
		Short:         "classical spin Monte Carlo and spin dynamics",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".magmc", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "sample a model with Metropolis Monte Carlo or spin dynamics",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	modelFlags(runCmd)
	runCmd.Flags().Float64Var(&metaRange, "meta-range", 0, "enable metadynamics on [0, range] (or [-range, range] with a double-sided preset)")
	runCmd.Flags().BoolVar(&spinDyn, "spin-dynamics", false, "integrate the LLG equation instead of sampling")
	runCmd.Flags().BoolVar(&debug, "debug", false, "check cached energies after every proposal")
	runCmd.Flags().BoolVar(&save, "save", true, "store the run")

	minimizeCmd := &cobra.Command{
		Use:   "minimize",
		Short: "relax the moments by gradient descent",
		Args:  cobra.NoArgs,
		RunE:  runMinimize,
	}
	modelFlags(minimizeCmd)
	minimizeCmd.Flags().BoolVar(&save, "save", true, "store the relaxed moments")

	tiCmd := &cobra.Command{
		Use:   "ti",
		Short: "thermodynamic integration between energy channels 0 and 1",
		Args:  cobra.NoArgs,
		RunE:  runIntegration,
	}
	modelFlags(tiCmd)
	scanFlags(tiCmd)

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "temperature scan of energy and heat capacity",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
	modelFlags(scanCmd)
	scanFlags(scanCmd)
	scanCmd.Flags().Float64Var(&tFrom, "from", 10, "lowest temperature (K)")
	scanCmd.Flags().Float64Var(&tTo, "to", 500, "highest temperature (K)")

	annealCmd := &cobra.Command{
		Use:   "anneal",
		Short: "run a cooling schedule or a scripted scenario on one chain",
		Args:  cobra.NoArgs,
		RunE:  runAnneal,
	}
	modelFlags(annealCmd)
	annealCmd.Flags().StringVar(&schedule, "schedule", "", "scenario file (yaml); overrides the geometric schedule")
	annealCmd.Flags().Float64Var(&annealHot, "from", 1000, "starting temperature (K)")
	annealCmd.Flags().Float64Var(&annealCold, "to", 1, "final temperature (K)")
	annealCmd.Flags().IntVar(&stages, "stages", 10, "number of temperature stages")
	annealCmd.Flags().BoolVar(&save, "save", true, "store the final moments")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "watch a Monte Carlo chain in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	modelFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the trace or scan of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "autocorrelation analysis of a stored trace",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id] [path]",
		Short: "copy the trace of a run to a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE:  exportCSV,
	}

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search of proposal steps for a target acceptance ratio",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	modelFlags(tuneCmd)
	tuneCmd.Flags().Float64Var(&targetAcc, "target", 0.5, "target acceptance ratio")
	tuneCmd.Flags().Float64SliceVar(&tuneDm, "dm", []float64{0, 0.02, 0.05, 0.1, 0.2}, "magnitude steps to try")
	tuneCmd.Flags().Float64SliceVar(&tuneDphi, "dphi", []float64{0.1, 0.3, 0.6, 1, 0}, "orientation steps to try (0 redraws uniformly)")

	svgCmd := &cobra.Command{
		Use:   "svg [run_id] [path]",
		Short: "render the stored moments of a run as SVG",
		Args:  cobra.ExactArgs(2),
		RunE:  exportSVG,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "measure sweep throughput over system sizes and thread counts",
		Args:  cobra.NoArgs,
		RunE:  benchSweeps,
	}
	benchCmd.Flags().IntSliceVar(&benchSizes, "sizes", []int{64, 256, 1024}, "ring sizes")
	benchCmd.Flags().IntVar(&benchIters, "iterations", 200, "sweeps per measurement")

	rootCmd.AddCommand(runCmd, minimizeCmd, tiCmd, scanCmd, annealCmd, liveCmd, listCmd, plotCmd, analyzeCmd, exportCmd, exportCSVCmd, svgCmd, tuneCmd, presetsCmd, benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func modelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&neighbors, "neighbors", "", "neighbour list file (i j [shell] per line)")
	cmd.Flags().IntVar(&atoms, "atoms", 64, "number of sites")
	cmd.Flags().Float64Var(&temperature, "temperature", 300, "temperature (K)")
	cmd.Flags().IntVar(&iterations, "iterations", 1000, "sampled sweeps")
	cmd.Flags().IntVar(&thermalize, "thermalize", 100, "sweeps discarded before sampling")
	cmd.Flags().IntVar(&threads, "threads", 1, "worker threads")
	cmd.Flags().Float64Var(&lambda, "lambda", 0, "channel mixing parameter")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().Float64Var(&exchangeJ, "j", 0.01, "nearest-shell exchange coefficient (eV)")
	cmd.Flags().Float64SliceVar(&landau, "landau", nil, "on-site coefficients for degrees 2,4,6,... (eV)")
}

func scanFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&points, "points", 11, "number of chains")
	cmd.Flags().IntVar(&workers, "workers", 4, "chains run at once")
}
