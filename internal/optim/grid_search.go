package optim

import (
	"context"
	"maps"
	"math"

	"github.com/san-kum/magmc/internal/config"
	"github.com/san-kum/magmc/internal/experiment"
	"github.com/san-kum/magmc/internal/topology"
)

// GridSearch evaluates an objective on the Cartesian product of parameter
// ranges and keeps the lowest value.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search returns the best parameters and objective value. The first
// objective error aborts the search.
func (g *GridSearch) Search(ctx context.Context, objective func(ctx context.Context, params map[string]float64) (float64, error)) (map[string]float64, float64, error) {
	best := math.Inf(1)
	var bestParams map[string]float64
	err := g.searchRecursive(ctx, 0, map[string]float64{}, objective, &best, &bestParams)
	return bestParams, best, err
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	objective func(context.Context, map[string]float64) (float64, error),
	best *float64,
	bestParams *map[string]float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		val, err := objective(ctx, current)
		if err != nil {
			return err
		}
		if val < *best {
			*best = val
			*bestParams = maps.Clone(current)
		}
		return nil
	}

	for _, val := range g.ranges[depth] {
		next := maps.Clone(current)
		next[g.paramNames[depth]] = val
		if err := g.searchRecursive(ctx, depth+1, next, objective, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}

// TuneProposal picks the proposal steps whose acceptance ratio over a
// short run of cfg is closest to target. cfg is not modified.
func TuneProposal(ctx context.Context, cfg *config.Config, topo *topology.List, dms, dphis []float64, target float64) (config.ProposalConfig, float64, error) {
	g := NewGridSearch([]string{"dm", "dphi"}, [][]float64{dms, dphis})
	params, _, err := g.Search(ctx, func(ctx context.Context, p map[string]float64) (float64, error) {
		c := *cfg
		c.Proposal = config.ProposalConfig{Dm: p["dm"], Dphi: p["dphi"]}
		exp, err := experiment.New(&c, topo, nil)
		if err != nil {
			return 0, err
		}
		res, err := exp.Run(ctx, nil)
		if err != nil {
			return 0, err
		}
		return math.Abs(res.Acceptance - target), nil
	})
	if err != nil || params == nil {
		return cfg.Proposal, 0, err
	}
	prop := config.ProposalConfig{Dm: params["dm"], Dphi: params["dphi"]}

	c := *cfg
	c.Proposal = prop
	exp, err := experiment.New(&c, topo, nil)
	if err != nil {
		return prop, 0, err
	}
	res, err := exp.Run(ctx, nil)
	if err != nil {
		return prop, 0, err
	}
	return prop, res.Acceptance, nil
}
