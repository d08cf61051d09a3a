package experiment

import (
	"context"
	"log/slog"

	"github.com/san-kum/magmc/internal/config"
	"github.com/san-kum/magmc/internal/sim"
	"github.com/san-kum/magmc/internal/topology"
	"github.com/sourcegraph/conc/pool"
)

// ScanPoint is the outcome of one independent chain of a scan.
type ScanPoint struct {
	Lambda         float64
	Temperature    float64
	MeanEnergy     float64
	EnergyVariance float64
	MeanDifference float64
	// HeatCapacity is Var(E) / (kB T^2) in units of kB.
	HeatCapacity float64
	Acceptance   float64
}

// ScanLambda runs one chain per lambda in parallel. Chain k uses seed
// cfg.Seed+k, so the scan is reproducible regardless of scheduling.
func ScanLambda(ctx context.Context, cfg *config.Config, topo *topology.List, lambdas []float64, logger *slog.Logger) ([]ScanPoint, error) {
	return scan(ctx, cfg, topo, len(lambdas), logger, func(c *config.Config, k int) {
		c.Lambda = lambdas[k]
	})
}

// ScanTemperature runs one chain per temperature in parallel.
func ScanTemperature(ctx context.Context, cfg *config.Config, topo *topology.List, temperatures []float64, logger *slog.Logger) ([]ScanPoint, error) {
	return scan(ctx, cfg, topo, len(temperatures), logger, func(c *config.Config, k int) {
		c.Temperature = temperatures[k]
	})
}

func scan(ctx context.Context, cfg *config.Config, topo *topology.List, n int, logger *slog.Logger, vary func(*config.Config, int)) ([]ScanPoint, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	points := make([]ScanPoint, n)
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(max(cfg.Scan.Workers, 1))
	for k := 0; k < n; k++ {
		p.Go(func(ctx context.Context) error {
			c := *cfg
			c.Seed = cfg.Seed + int64(k)
			vary(&c, k)

			exp, err := New(&c, topo, logger.With("chain", k))
			if err != nil {
				return err
			}
			res, err := exp.Run(ctx, nil)
			if err != nil {
				return err
			}
			points[k] = ScanPoint{
				Lambda:         c.Lambda,
				Temperature:    c.Temperature,
				MeanEnergy:     (1-c.Lambda)*res.MeanEnergy[0] + c.Lambda*res.MeanEnergy[1],
				EnergyVariance: res.EnergyVariance[0],
				MeanDifference: res.MeanDifference,
				Acceptance:     res.Acceptance,
			}
			if c.Temperature > 0 {
				kT := sim.KB * c.Temperature
				points[k].HeatCapacity = res.EnergyVariance[0] / (kT * kT)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}
