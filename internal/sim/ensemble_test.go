package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/magmc/internal/metadynamics"
	"github.com/san-kum/magmc/internal/rng"
	"github.com/san-kum/magmc/internal/spin"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// ring couples n sites to both ring neighbours in both directions.
func ring(t *testing.T, n int, seed int64, j float64, degree, channel int) *Ensemble {
	t.Helper()
	e := New(n, rng.New(seed))
	addRing(t, e, j, degree, channel)
	return e
}

func addRing(t *testing.T, e *Ensemble, j float64, degree, channel int) {
	t.Helper()
	n := e.NumberOfAtoms()
	var src, dst []int
	for i := 0; i < n; i++ {
		src = append(src, i, (i+1)%n)
		dst = append(dst, (i+1)%n, i)
	}
	if err := e.SetHeisenbergCoeff([]float64{j}, src, dst, degree, channel); err != nil {
		t.Fatal(err)
	}
}

func TestCoefficientValidation(t *testing.T) {
	tests := []struct {
		name string
		set  func(e *Ensemble) error
		want error
	}{
		{"landau length", func(e *Ensemble) error { return e.SetLandauCoeff([]float64{1, 2}, 2, 0) }, ErrLengthMismatch},
		{"landau degree", func(e *Ensemble) error { return e.SetLandauCoeff([]float64{1}, 3, 0) }, ErrInvalidDegree},
		{"landau channel", func(e *Ensemble) error { return e.SetLandauCoeff([]float64{1}, 2, 2) }, ErrInvalidChannel},
		{"pair lengths", func(e *Ensemble) error {
			return e.SetHeisenbergCoeff([]float64{1}, []int{0, 1}, []int{1}, 1, 0)
		}, ErrLengthMismatch},
		{"pair coefficients", func(e *Ensemble) error {
			return e.SetHeisenbergCoeff([]float64{1, 2}, []int{0, 1, 2}, []int{1, 2, 0}, 1, 0)
		}, ErrLengthMismatch},
		{"pair index", func(e *Ensemble) error {
			return e.SetHeisenbergCoeff([]float64{1}, []int{0, 1}, []int{1, 3}, 1, 0)
		}, ErrIndexOutOfRange},
		{"negative index", func(e *Ensemble) error {
			return e.SetHeisenbergCoeff([]float64{1}, []int{-1}, []int{0}, 1, 0)
		}, ErrIndexOutOfRange},
		{"pair degree", func(e *Ensemble) error {
			return e.SetHeisenbergCoeff([]float64{1}, []int{0}, []int{1}, 2, 0)
		}, ErrInvalidDegree},
		{"pair channel", func(e *Ensemble) error {
			return e.SetHeisenbergCoeff([]float64{1}, []int{0}, []int{1}, 1, -1)
		}, ErrInvalidChannel},
		{"self link", func(e *Ensemble) error {
			return e.SetHeisenbergCoeff([]float64{1}, []int{0, 1}, []int{1, 1}, 1, 0)
		}, ErrSelfCoupling},
		{"select", func(e *Ensemble) error { return e.SelectID([]int{0, 3}) }, ErrIndexOutOfRange},
		{"select duplicate", func(e *Ensemble) error { return e.SelectID([]int{0, 0, 2}) }, ErrDuplicateID},
		{"magnitudes", func(e *Ensemble) error { return e.SetMagnitudes([]float64{1, 2}, nil, nil) }, ErrLengthMismatch},
		{"flips", func(e *Ensemble) error {
			return e.SetMagnitudes([]float64{1}, nil, []bool{true, false})
		}, ErrLengthMismatch},
		{"moments", func(e *Ensemble) error { return e.SetMagneticMoments(make([]float64, 6)) }, ErrLengthMismatch},
		{"steps", func(e *Ensemble) error { return e.SetProposalSteps([]float64{0.1, 0.1}, []float64{0}) }, ErrLengthMismatch},
		{"lambda", func(e *Ensemble) error { return e.SetLambda(1.5) }, ErrInvalidLambda},
		{"lambda nan", func(e *Ensemble) error { return e.SetLambda(math.NaN()) }, ErrInvalidLambda},
		{"timestep", func(e *Ensemble) error { return e.SwitchSpinDynamics(true, 0.1, 0, false) }, ErrInvalidTimestep},
		{"damping", func(e *Ensemble) error { return e.SwitchSpinDynamics(true, -0.1, 1e-3, false) }, ErrInvalidTimestep},
		{"temperature", func(e *Ensemble) error { return e.Run(-1, 1, 1) }, ErrInvalidTemperature},
		{"iterations", func(e *Ensemble) error { return e.Run(10, -1, 1) }, ErrInvalidIterations},
		{"metadynamics", func(e *Ensemble) error {
			return e.SetMetadynamics(metadynamics.Config{MaxRange: 1})
		}, metadynamics.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(3, rng.New(1))
			if err := tt.set(e); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFailedSetterAppliesNothing(t *testing.T) {
	e := New(3, rng.New(1))
	err := e.SetHeisenbergCoeff([]float64{1}, []int{0, 1}, []int{1, 5}, 1, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(e.sites[0].Links(0)) != 0 {
		t.Error("first pair was applied despite the error")
	}
	if err := e.SetHeisenbergCoeff([]float64{1}, []int{0, 2}, []int{1, 2}, 1, 0); err == nil {
		t.Fatal("expected error for a self link")
	}
	if len(e.sites[0].Links(0)) != 0 {
		t.Error("pair before the self link was applied despite the error")
	}
	if err := e.SelectID([]int{1, 1}); err == nil {
		t.Fatal("expected error for a duplicate id")
	}
	if got := e.Selected(); len(got) != 3 {
		t.Errorf("selection changed to %v despite the error", got)
	}
}

func TestEnergyOfAlignedPair(t *testing.T) {
	e := ring(t, 2, 1, 1, 1, 0)
	// With two sites both ring neighbours coincide, so each site holds two
	// links to the other.
	if got, _ := e.Energy(0); math.Abs(got+2) > 1e-12 {
		t.Errorf("exchange energy = %f, want -2", got)
	}
	if err := e.SetLandauCoeff([]float64{-1, -0.5}, 2, 0); err != nil {
		t.Fatal(err)
	}
	if got, _ := e.Energy(0); math.Abs(got+3.5) > 1e-12 {
		t.Errorf("total energy = %f, want -3.5", got)
	}
	if got, _ := e.Energy(1); got != 0 {
		t.Errorf("empty channel energy = %f, want 0", got)
	}
	if _, err := e.Energy(2); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("expected ErrInvalidChannel, got %v", err)
	}
}

func TestMagneticGradients(t *testing.T) {
	e := New(2, rng.New(1))
	if err := e.SetHeisenbergCoeff([]float64{1}, []int{0, 1}, []int{1, 0}, 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMagneticMoments([]float64{1, 0, 0, 0, 0, 1}); err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0, -1, -1, 0, 0}
	got := e.MagneticGradients()
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("gradients = %v, want %v", got, want)
		}
	}
}

func TestMetropolisCriterion(t *testing.T) {
	src := rng.New(3)
	for _, dE := range []float64{-1, -1e-9, 0} {
		for i := 0; i < 100; i++ {
			if !metropolis(dE, 10, src) {
				t.Fatalf("downhill move dE=%g rejected", dE)
			}
		}
	}
	if metropolis(1e-12, 0, src) {
		t.Error("uphill move accepted at zero temperature")
	}

	const temperature, trials = 300.0, 200000
	dE := KB * temperature * math.Ln2
	accepted := 0
	for i := 0; i < trials; i++ {
		if metropolis(dE, temperature, src) {
			accepted++
		}
	}
	if p := float64(accepted) / trials; math.Abs(p-0.5) > 0.01 {
		t.Errorf("acceptance %f, want 0.5", p)
	}
}

func TestRunningStatisticsMatchTrace(t *testing.T) {
	const sweeps, temperature = 60, 300.0

	traced := ring(t, 6, 7, 0.1, 1, 0)
	addRing(t, traced, -0.05, 1, 1)
	var trace0, trace1 []float64
	for i := 0; i < sweeps; i++ {
		if err := traced.Run(temperature, 1, 1); err != nil {
			t.Fatal(err)
		}
		e0, _ := traced.Energy(0)
		e1, _ := traced.Energy(1)
		trace0 = append(trace0, e0)
		trace1 = append(trace1, e1)
	}

	e := ring(t, 6, 7, 0.1, 1, 0)
	addRing(t, e, -0.05, 1, 1)
	if err := e.Run(temperature, sweeps, 1); err != nil {
		t.Fatal(err)
	}

	if e.Samples() != sweeps {
		t.Fatalf("samples = %d, want %d", e.Samples(), sweeps)
	}
	for c, trace := range [][]float64{trace0, trace1} {
		mean, unbiased := stat.MeanVariance(trace, nil)
		pop := unbiased * (sweeps - 1) / sweeps
		if math.Abs(e.MeanEnergy(c)-mean) > 1e-9 {
			t.Errorf("channel %d: mean %f, trace mean %f", c, e.MeanEnergy(c), mean)
		}
		if math.Abs(e.EnergyVariance(c)-pop) > 1e-9 {
			t.Errorf("channel %d: variance %g, trace variance %g", c, e.EnergyVariance(c), pop)
		}
	}
	if e.AcceptanceRatio() <= 0 || e.AcceptanceRatio() >= 1 {
		t.Errorf("acceptance ratio %f outside (0, 1)", e.AcceptanceRatio())
	}
}

func TestIncrementalTrackingMatchesRecomputation(t *testing.T) {
	e := ring(t, 8, 11, 0.2, 3, 0)
	addRing(t, e, 0.1, 1, 1)
	if err := e.SetLandauCoeff([]float64{-0.4}, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.SetLandauCoeff([]float64{0.2}, 4, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.SetProposalSteps([]float64{0.05}, []float64{0.3}); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(500, 40, 1); err != nil {
		t.Fatal(err)
	}

	// Only LinLin is symmetric under magnitude moves, so check channel 1.
	want, _ := e.Energy(1)
	if got := e.CurrentEnergy(1); math.Abs(got-want) > 1e-9 {
		t.Errorf("tracked energy %f, recomputed %f", got, want)
	}
	var total r3.Vec
	m := e.MagneticMoments()
	for i := 0; i < len(m); i += 3 {
		total = r3.Add(total, r3.Vec{X: m[i], Y: m[i+1], Z: m[i+2]})
	}
	if r3.Norm(r3.Sub(total, e.TotalMoment())) > 1e-9 {
		t.Errorf("tracked moment %v, recomputed %v", e.TotalMoment(), total)
	}
}

func TestSelectIDFreezesOtherSites(t *testing.T) {
	e := ring(t, 4, 5, 0.05, 1, 0)
	if err := e.SelectID([]int{0, 2}); err != nil {
		t.Fatal(err)
	}
	before := e.MagneticMoments()
	if err := e.Run(1000, 20, 1); err != nil {
		t.Fatal(err)
	}
	after := e.MagneticMoments()
	for _, frozen := range []int{1, 3} {
		for k := 0; k < 3; k++ {
			if before[3*frozen+k] != after[3*frozen+k] {
				t.Fatalf("frozen site %d moved", frozen)
			}
		}
	}
	ratios := e.AcceptanceRatios()
	if ratios[1] != 0 || ratios[3] != 0 {
		t.Errorf("frozen sites report acceptance %v", ratios)
	}
	if ratios[0] == 0 && ratios[2] == 0 {
		t.Error("selected sites never moved")
	}
}

func TestMagnetizationHistory(t *testing.T) {
	e := ring(t, 4, 2, 0.1, 1, 0)
	if err := e.Run(100, 3, 1); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(100, 4, 1); err != nil {
		t.Fatal(err)
	}
	h := e.Magnetization()
	if len(h) != 7 {
		t.Fatalf("history length %d, want 7", len(h))
	}
	for _, x := range h {
		if x < 0 || x > 1+1e-12 {
			t.Errorf("order parameter %f outside [0, 1]", x)
		}
	}
	e.Reset()
	if len(e.Magnetization()) != 0 || e.Samples() != 0 || e.AcceptanceRatio() != 0 {
		t.Error("Reset left statistics behind")
	}
}

func TestMomentsRoundTrip(t *testing.T) {
	e := New(2, rng.New(1))
	in := []float64{0.6, 0, 0.8, 0, -2, 0}
	if err := e.SetMagneticMoments(in); err != nil {
		t.Fatal(err)
	}
	out := e.MagneticMoments()
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("moments %v, want %v", out, in)
		}
	}
	if err := e.SetMagnitudes([]float64{2}, nil, nil); err != nil {
		t.Fatal(err)
	}
	out = e.MagneticMoments()
	if math.Abs(out[0]-1.2) > 1e-12 || math.Abs(out[4]+2) > 1e-12 {
		t.Errorf("rescaled moments %v", out)
	}
}

func TestSetMagnitudesFlip(t *testing.T) {
	e := ring(t, 2, 1, 1, 1, 0)
	if err := e.SetLandauCoeff([]float64{1}, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMagnitudes([]float64{2}, []float64{1}, []bool{true, false}); err != nil {
		t.Fatal(err)
	}
	m := e.MagneticMoments()
	want := []float64{0, 0, -2, 0, 0, 2}
	for i := range want {
		if m[i] != want[i] {
			t.Fatalf("moments %v, want %v", m, want)
		}
	}
	// Antiparallel pair of length 2: four links at +4 each, halved, plus
	// 4 Landau units per site.
	got, err := e.Energy(0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-16) > 1e-12 {
		t.Errorf("energy = %f, want 16", got)
	}
	if c := e.CurrentEnergy(0); math.Abs(c-got) > 1e-12 {
		t.Errorf("tracked energy %f does not match %f", c, got)
	}
	if tot := e.TotalMoment(); tot != (r3.Vec{}) {
		t.Errorf("total moment %v, want zero", tot)
	}
}

func TestBiasedRunWithNaNMoment(t *testing.T) {
	e := New(1, rng.New(1))
	if err := e.SetMetadynamics(metadynamics.DefaultConfig(1)); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMagneticMoments([]float64{math.NaN(), 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(300, 1, 1); err != nil {
		t.Fatalf("non-debug run should not report numeric errors, got %v", err)
	}
}

func TestColoringSeparatesCoupledSites(t *testing.T) {
	e := ring(t, 9, 1, 0.1, 1, 0)
	// One-directional long-range links still constrain the colouring.
	if err := e.SetHeisenbergCoeff([]float64{0.02}, []int{0, 4}, []int{4, 7}, 1, 1); err != nil {
		t.Fatal(err)
	}
	classes := e.colorSelected()

	seen := make(map[int]int)
	for c, class := range classes {
		for _, i := range class {
			if _, dup := seen[i]; dup {
				t.Fatalf("site %d in two classes", i)
			}
			seen[i] = c
		}
	}
	if len(seen) != 9 {
		t.Fatalf("coloured %d of 9 sites", len(seen))
	}
	for i := 0; i < 9; i++ {
		for _, k := range e.coupled(i) {
			if seen[i] == seen[k] {
				t.Errorf("coupled sites %d and %d share class %d", i, k, seen[i])
			}
		}
	}
}

func TestParallelSweepTracksObservables(t *testing.T) {
	e := ring(t, 32, 9, 0.1, 1, 0)
	addRing(t, e, -0.02, 1, 1)
	if err := e.Run(200, 50, 4); err != nil {
		t.Fatal(err)
	}
	for c := 0; c < spin.Channels; c++ {
		want, _ := e.Energy(c)
		if got := e.CurrentEnergy(c); math.Abs(got-want) > 1e-9 {
			t.Errorf("channel %d: tracked %f, recomputed %f", c, got, want)
		}
	}
	if e.Samples() != 50 || len(e.Magnetization()) != 50 {
		t.Errorf("samples %d, history %d, want 50", e.Samples(), len(e.Magnetization()))
	}
	if e.AcceptanceRatio() == 0 {
		t.Error("parallel sweep accepted nothing")
	}
	for _, a := range e.sites {
		if a.Pending() {
			t.Fatal("site left with a pending proposal")
		}
	}
}

func TestDebugRunPassesConsistencyChecks(t *testing.T) {
	e := ring(t, 5, 4, 0.1, 1, 0)
	addRing(t, e, 0.05, 5, 1)
	if err := e.SetLandauCoeff([]float64{-0.2}, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.SetLandauCoeff([]float64{0.1}, 4, 0); err != nil {
		t.Fatal(err)
	}
	e.ActivateDebug(true)
	if err := e.Run(300, 30, 4); err != nil {
		t.Fatalf("debug run failed: %v", err)
	}
}

func TestDebugRunReportsNonFiniteMoment(t *testing.T) {
	e := New(3, rng.New(4))
	if err := e.SetMagneticMoments([]float64{0, 0, 1, 0, 0, 1, math.NaN(), 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := e.SetLandauCoeff([]float64{1}, 2, 0); err != nil {
		t.Fatal(err)
	}
	e.ActivateDebug(true)
	err := e.Run(300, 1, 1)
	var siteErr *SiteError
	if !errors.As(err, &siteErr) || siteErr.Site != 2 {
		t.Fatalf("expected SiteError on site 2, got %v", err)
	}
	if !errors.Is(err, spin.ErrNonFinite) {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
}

func TestSpinDynamicsConservesMagnitude(t *testing.T) {
	e := ring(t, 4, 1, 0.5, 1, 0)
	if err := e.SetMagneticMoments([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1, 0.6, 0.8, 0}); err != nil {
		t.Fatal(err)
	}
	if err := e.SwitchSpinDynamics(true, 0, 1e-2, false); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(0, 2000, 2); err != nil {
		t.Fatal(err)
	}
	m := e.MagneticMoments()
	for i := 0; i < len(m); i += 3 {
		if n := r3.Norm(r3.Vec{X: m[i], Y: m[i+1], Z: m[i+2]}); math.Abs(n-1) > 1e-9 {
			t.Errorf("site %d: |m| = %.12f", i/3, n)
		}
	}
	if len(e.Magnetization()) != 2000 {
		t.Errorf("history length %d, want 2000", len(e.Magnetization()))
	}
}

func TestSpinDynamicsDampingAligns(t *testing.T) {
	e := ring(t, 2, 1, 1, 1, 0)
	if err := e.SetMagneticMoments([]float64{1, 0, 0, 0, 1, 0}); err != nil {
		t.Fatal(err)
	}
	start, _ := e.Energy(0)
	if err := e.SwitchSpinDynamics(true, 0.5, 1e-2, true); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(0, 3000, 1); err != nil {
		t.Fatal(err)
	}
	end, _ := e.Energy(0)
	if end >= start {
		t.Errorf("damped dynamics raised the energy: %f -> %f", start, end)
	}
	m := e.MagneticMoments()
	if cos := m[0]*m[3] + m[1]*m[4] + m[2]*m[5]; cos < 0.99 {
		t.Errorf("damped pair not aligned, cos = %f", cos)
	}
}

func TestGradientDescentSingleSite(t *testing.T) {
	e := New(1, rng.New(1))
	if err := e.SetLandauCoeff([]float64{-1}, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.SetLandauCoeff([]float64{1}, 4, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMagneticMoments([]float64{0.6, 0, 0.8}); err != nil {
		t.Fatal(err)
	}
	residual := e.RunGradientDescent(500, 0.1, 0, 1e-10)
	if residual >= 1e-10 {
		t.Fatalf("residual %g above tolerance", residual)
	}
	m := e.MagneticMoments()
	v := r3.Vec{X: m[0], Y: m[1], Z: m[2]}
	if math.Abs(r3.Norm(v)-1/math.Sqrt2) > 1e-8 {
		t.Errorf("|m| = %f, want %f", r3.Norm(v), 1/math.Sqrt2)
	}
	if d := r3.Unit(v); math.Abs(d.X-0.6) > 1e-9 || math.Abs(d.Z-0.8) > 1e-9 {
		t.Errorf("descent rotated the moment to %v", d)
	}
}

func TestBiasedRunFillsHistogram(t *testing.T) {
	e := ring(t, 6, 3, 0.05, 1, 0)
	cfg := metadynamics.DefaultConfig(1)
	cfg.EnergyIncrement = 0.01
	if err := e.SetMetadynamics(cfg); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(300, 100, 4); err != nil {
		t.Fatal(err)
	}
	x, v := e.Histogram(200)
	if len(x) != 200 || len(v) != 200 {
		t.Fatalf("histogram length %d/%d, want 200", len(x), len(v))
	}
	sum := 0.0
	for _, vi := range v {
		sum += vi
	}
	if sum <= 0 {
		t.Error("no bias was deposited")
	}
	_, f := e.FreeEnergy(200)
	for i := range f {
		if f[i] != -v[i] {
			t.Fatalf("free energy %f at %d is not the negated bias %f", f[i], i, v[i])
		}
	}
}
