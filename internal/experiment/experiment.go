package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/magmc/internal/config"
	"github.com/san-kum/magmc/internal/metadynamics"
	"github.com/san-kum/magmc/internal/rng"
	"github.com/san-kum/magmc/internal/sim"
	"github.com/san-kum/magmc/internal/topology"
)

// Sample is the state of the chain after one sweep.
type Sample struct {
	Sweep         int
	Energy        [2]float64
	Magnetization float64
	Acceptance    float64
}

type Result struct {
	Temperature    float64
	Lambda         float64
	Sweeps         int
	Samples        []Sample
	MeanEnergy     [2]float64
	EnergyVariance [2]float64
	MeanDifference float64
	Acceptance     float64
	StepsPerSecond float64
	Moments        []float64
	BiasX, BiasV   []float64
}

// Metrics flattens the scalar observables for storage.
func (r *Result) Metrics() map[string]float64 {
	return map[string]float64{
		"mean_energy_0":     r.MeanEnergy[0],
		"mean_energy_1":     r.MeanEnergy[1],
		"energy_variance_0": r.EnergyVariance[0],
		"energy_variance_1": r.EnergyVariance[1],
		"mean_difference":   r.MeanDifference,
		"acceptance":        r.Acceptance,
		"steps_per_second":  r.StepsPerSecond,
	}
}

type Experiment struct {
	cfg *config.Config
	ens *sim.Ensemble
	log *slog.Logger
}

// New builds the ensemble described by cfg on topo. A nil topo means a
// ring of cfg.Atoms sites; a nil logger discards output.
func New(cfg *config.Config, topo *topology.List, logger *slog.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ens, err := Build(cfg, topo)
	if err != nil {
		return nil, err
	}
	return &Experiment{cfg: cfg, ens: ens, log: logger}, nil
}

// Build creates and couples an ensemble from a configuration.
func Build(cfg *config.Config, topo *topology.List) (*sim.Ensemble, error) {
	if topo == nil {
		topo = topology.Ring(cfg.Atoms)
	}
	n := max(cfg.Atoms, topo.Sites())
	ens := sim.New(n, rng.New(cfg.Seed))

	for _, x := range cfg.Exchange {
		i, j := topo.Shell(x.Shell)
		if len(i) == 0 {
			continue
		}
		if err := ens.SetHeisenbergCoeff([]float64{x.J}, i, j, x.Degree, x.Channel); err != nil {
			return nil, fmt.Errorf("exchange shell %d: %w", x.Shell, err)
		}
	}
	for _, l := range cfg.Landau {
		if err := ens.SetLandauCoeff([]float64{l.Coeff}, l.Degree, l.Channel); err != nil {
			return nil, fmt.Errorf("landau degree %d: %w", l.Degree, err)
		}
	}
	if err := ens.SetProposalSteps([]float64{cfg.Proposal.Dm}, []float64{cfg.Proposal.Dphi}); err != nil {
		return nil, err
	}
	if err := ens.SetLambda(cfg.Lambda); err != nil {
		return nil, err
	}
	if m := cfg.Metadynamics; m != nil {
		err := ens.SetMetadynamics(metadynamics.Config{
			MaxRange:        m.MaxRange,
			EnergyIncrement: m.EnergyIncrement,
			LengthScale:     m.LengthScale,
			Bins:            m.Bins,
			Cutoff:          m.Cutoff,
			DoubleSided:     m.DoubleSided,
			UseDerivative:   m.UseDerivative,
		})
		if err != nil {
			return nil, err
		}
	}
	if d := cfg.Dynamics; d.Enabled {
		if err := ens.SwitchSpinDynamics(true, d.Damping, d.Dt, d.Rescale); err != nil {
			return nil, err
		}
	}
	ens.ActivateDebug(cfg.Debug)
	return ens, nil
}

func (e *Experiment) Ensemble() *sim.Ensemble { return e.ens }

// Run thermalizes the chain, resets the statistics and then samples
// cfg.Iterations sweeps. observe, when set, sees every sample and stops the
// run early by returning false.
func (e *Experiment) Run(ctx context.Context, observe func(Sample) bool) (*Result, error) {
	cfg := e.cfg
	e.log.Info("thermalizing", "sweeps", cfg.Thermalize, "temperature", cfg.Temperature)
	for i := 0; i < cfg.Thermalize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.ens.Run(cfg.Temperature, 1, cfg.Threads); err != nil {
			return nil, err
		}
	}
	e.ens.Reset()

	res := &Result{
		Temperature: cfg.Temperature,
		Lambda:      cfg.Lambda,
		Samples:     make([]Sample, 0, cfg.Iterations),
	}
	e.log.Info("sampling", "sweeps", cfg.Iterations, "atoms", e.ens.NumberOfAtoms(), "threads", cfg.Threads)
	var err error
	for i := 0; i < cfg.Iterations; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = e.ens.Run(cfg.Temperature, 1, cfg.Threads); err != nil {
			break
		}
		s := Sample{
			Sweep:         i,
			Energy:        [2]float64{e.ens.CurrentEnergy(0), e.ens.CurrentEnergy(1)},
			Magnetization: e.ens.OrderParameter(),
			Acceptance:    e.ens.AcceptanceRatio(),
		}
		res.Samples = append(res.Samples, s)
		if observe != nil && !observe(s) {
			break
		}
	}
	e.fill(res)
	e.log.Info("finished", "sweeps", res.Sweeps, "acceptance", res.Acceptance, "mean_energy", res.MeanEnergy[0])
	return res, err
}

func (e *Experiment) fill(res *Result) {
	res.Sweeps = len(res.Samples)
	for c := 0; c < 2; c++ {
		res.MeanEnergy[c] = e.ens.MeanEnergy(c)
		res.EnergyVariance[c] = e.ens.EnergyVariance(c)
	}
	res.MeanDifference = e.ens.MeanEnergyDifference()
	res.Acceptance = e.ens.AcceptanceRatio()
	res.StepsPerSecond = e.ens.StepsPerSecond()
	res.Moments = e.ens.MagneticMoments()
	res.BiasX, res.BiasV = e.ens.Histogram(0)
}

// Minimize relaxes the configuration by gradient descent and returns the
// final residual.
func (e *Experiment) Minimize() (float64, []float64) {
	m := e.cfg.Minimize
	e.log.Info("minimizing", "iterations", m.Iterations, "step", m.Step, "tolerance", m.Tolerance)
	residual := e.ens.RunGradientDescent(m.Iterations, m.Step, m.Decrement, m.Tolerance)
	if residual > m.Tolerance && !math.IsInf(residual, 1) {
		e.log.Warn("descent stopped above tolerance", "residual", residual)
	}
	return residual, e.ens.MagneticMoments()
}
