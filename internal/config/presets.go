package config

import "sort"

var Presets = map[string]*Config{
	"ferromagnet": {
		Atoms: 64, Seed: 1, Temperature: 100, Iterations: 2000, Thermalize: 200, Threads: 1,
		Exchange: []ExchangeConfig{{Degree: 1, J: 0.01}},
		Proposal: ProposalConfig{Dm: DefaultDm},
		Dynamics: DynamicsConfig{Damping: DefaultDamping, Dt: DefaultDt},
	},
	"landau": {
		Atoms: 64, Seed: 1, Temperature: 300, Iterations: 2000, Thermalize: 200, Threads: 1,
		Exchange: []ExchangeConfig{{Degree: 1, J: 0.01}, {Degree: 3, J: 0.002}},
		Landau:   []LandauConfig{{Degree: 2, Coeff: -0.02}, {Degree: 4, Coeff: 0.01}},
		Proposal: ProposalConfig{Dm: 0.05, Dphi: 0.3},
		Dynamics: DynamicsConfig{Damping: DefaultDamping, Dt: DefaultDt},
	},
	"integration": {
		Atoms: 32, Seed: 7, Temperature: 50, Iterations: 1000, Thermalize: 200, Threads: 1,
		Exchange: []ExchangeConfig{{Channel: 0, Degree: 1, J: 0.01}, {Channel: 1, Degree: 1, J: 0.005}},
		Proposal: ProposalConfig{Dm: DefaultDm},
		Dynamics: DynamicsConfig{Damping: DefaultDamping, Dt: DefaultDt},
		Scan:     ScanConfig{Points: 11, Workers: 4},
	},
	"metadynamics": {
		Atoms: 16, Seed: 3, Temperature: 50, Iterations: 5000, Threads: 1,
		Exchange: []ExchangeConfig{{Degree: 1, J: 0.01}},
		Proposal: ProposalConfig{Dm: DefaultDm, Dphi: 0.5},
		Metadynamics: &MetadynamicsConfig{
			MaxRange: 1, EnergyIncrement: 0.001, LengthScale: 0.02, Bins: 500, Cutoff: 3, DoubleSided: true,
		},
		Dynamics: DynamicsConfig{Damping: DefaultDamping, Dt: DefaultDt},
	},
	"dynamics": {
		Atoms: 64, Seed: 1, Iterations: 5000, Threads: 2,
		Exchange: []ExchangeConfig{{Degree: 1, J: 0.01}},
		Dynamics: DynamicsConfig{Enabled: true, Damping: 0.05, Dt: 1, Rescale: true},
	},
	"minimize": {
		Atoms: 16, Seed: 1, Threads: 1,
		Exchange: []ExchangeConfig{{Degree: 1, J: 0.01}},
		Landau:   []LandauConfig{{Degree: 2, Coeff: -0.02}, {Degree: 4, Coeff: 0.01}},
		Minimize: MinimizeConfig{Iterations: 5000, Step: 1, Decrement: 0, Tolerance: 1e-9},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := *p
	cfg.Exchange = append([]ExchangeConfig(nil), p.Exchange...)
	cfg.Landau = append([]LandauConfig(nil), p.Landau...)
	if p.Metadynamics != nil {
		m := *p.Metadynamics
		cfg.Metadynamics = &m
	}
	return &cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
