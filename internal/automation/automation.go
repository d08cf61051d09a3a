// Package automation runs scripted protocols, such as annealing schedules,
// against a single ensemble.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/san-kum/magmc/internal/sim"
	"gopkg.in/yaml.v3"
)

var ErrEmptyScenario = errors.New("automation: scenario has no steps")

// Scenario is an ordered list of stages applied to the same chain.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Threads     int            `yaml:"threads"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep runs Iterations sweeps at Temperature. Unset Lambda keeps
// the current value. Minimize relaxes by gradient descent after the
// sweeps.
type ScenarioStep struct {
	Name         string   `yaml:"name"`
	Temperature  float64  `yaml:"temperature"`
	Iterations   int      `yaml:"iterations"`
	Lambda       *float64 `yaml:"lambda,omitempty"`
	SpinDynamics bool     `yaml:"spin_dynamics,omitempty"`
	Damping      float64  `yaml:"damping,omitempty"`
	Dt           float64  `yaml:"dt,omitempty"`
	Minimize     int      `yaml:"minimize,omitempty"`
	MinimizeStep float64  `yaml:"minimize_step,omitempty"`
}

// StepResult holds the statistics of one stage, measured from its start.
type StepResult struct {
	Name           string
	Temperature    float64
	Lambda         float64
	Sweeps         int
	MeanEnergy     float64
	EnergyVariance float64
	Acceptance     float64
	Order          float64
	Residual       float64
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Anneal builds a geometric cooling schedule of stages steps from hot to
// cold, each running sweeps sweeps.
func Anneal(hot, cold float64, stages, sweeps int) *Scenario {
	sc := &Scenario{Name: "anneal", Threads: 1}
	if stages < 1 || hot <= 0 || cold <= 0 {
		return sc
	}
	ratio := 1.0
	if stages > 1 {
		ratio = math.Pow(cold/hot, 1/float64(stages-1))
	}
	t := hot
	for i := 0; i < stages; i++ {
		sc.Steps = append(sc.Steps, ScenarioStep{
			Name:        fmt.Sprintf("T=%.1f", t),
			Temperature: t,
			Iterations:  sweeps,
		})
		t *= ratio
	}
	return sc
}

// RunScenario executes all steps on ens. Statistics are reset at the start
// of every step; moments carry over. Cancellation is checked between
// sweeps and returns the results of the completed steps.
func RunScenario(ctx context.Context, sc *Scenario, ens *sim.Ensemble, logger *slog.Logger) ([]StepResult, error) {
	if len(sc.Steps) == 0 {
		return nil, ErrEmptyScenario
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	results := make([]StepResult, 0, len(sc.Steps))

	for i, step := range sc.Steps {
		logger.Info("step", "index", i+1, "of", len(sc.Steps), "name", step.Name, "temperature", step.Temperature)

		if step.Lambda != nil {
			if err := ens.SetLambda(*step.Lambda); err != nil {
				return results, fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		damping, dt := step.Damping, step.Dt
		if damping == 0 {
			damping = sim.DefaultDamping
		}
		if dt == 0 {
			dt = sim.DefaultDt
		}
		if err := ens.SwitchSpinDynamics(step.SpinDynamics, damping, dt, false); err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		ens.Reset()
		for it := 0; it < step.Iterations; it++ {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			if err := ens.Run(step.Temperature, 1, sc.Threads); err != nil {
				return results, fmt.Errorf("step %d run: %w", i+1, err)
			}
		}

		res := StepResult{
			Name:        step.Name,
			Temperature: step.Temperature,
			Lambda:      ens.Lambda(),
			Sweeps:      ens.Samples(),
		}
		lambda := res.Lambda
		res.MeanEnergy = (1-lambda)*ens.MeanEnergy(0) + lambda*ens.MeanEnergy(1)
		res.EnergyVariance = ens.EnergyVariance(0)
		res.Acceptance = ens.AcceptanceRatio()
		if step.Minimize > 0 {
			size := step.MinimizeStep
			if size == 0 {
				size = 0.1
			}
			res.Residual = ens.RunGradientDescent(step.Minimize, size, 0, 0)
		}
		res.Order = ens.OrderParameter()
		results = append(results, res)
	}

	return results, nil
}
