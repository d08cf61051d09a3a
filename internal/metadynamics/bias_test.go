package metadynamics

import (
	"errors"
	"math"
	"testing"
)

func newBias(t *testing.T, cfg Config) *Bias {
	t.Helper()
	b := New()
	if err := b.Set(cfg); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestUninitializedBiasIsInert(t *testing.T) {
	b := New()
	b.Append(0.5)
	if b.Initialized() || b.Energy(0.5, 1) != 0 || b.Gradient(0.5) != 0 {
		t.Error("uninitialized bias should contribute nothing")
	}
	if x, v := b.Histogram(10); x != nil || v != nil {
		t.Error("uninitialized bias should export no histogram")
	}
}

func TestRepeatedDepositsStack(t *testing.T) {
	cfg := Config{MaxRange: 1, EnergyIncrement: 0.01, LengthScale: 0.02, Bins: 101, Cutoff: 3}
	b := newBias(t, cfg)

	x0 := 0.4 // on grid point 40
	const n = 25
	for i := 0; i < n; i++ {
		b.Append(x0)
	}

	if got, want := b.Energy(x0, 1), n*cfg.EnergyIncrement; math.Abs(got-want) > 1e-12 {
		t.Errorf("Energy(x0) = %f, want %f", got, want)
	}
	peak := b.Energy(x0, 1)
	for _, x := range []float64{0.0, 0.2, 0.33, 0.5, 0.8, 1.0} {
		if v := b.Energy(x, 1); v >= peak {
			t.Errorf("Energy(%f) = %f not below peak %f", x, v, peak)
		}
	}
	if v := b.Energy(0.5, 1); v != 0 {
		t.Errorf("expected zero potential outside the cutoff, got %g", v)
	}
	if b.Deposits() != n {
		t.Errorf("expected %d deposits, got %d", n, b.Deposits())
	}
}

func TestOffGridDepositWithinDiscretization(t *testing.T) {
	cfg := Config{MaxRange: 1, EnergyIncrement: 1, LengthScale: 0.05, Bins: 201, Cutoff: 4}
	b := newBias(t, cfg)
	b.Append(0.3333)
	if got := b.Energy(0.3333, 1); math.Abs(got-1) > 0.01 {
		t.Errorf("Energy at kernel centre = %f, want ~1", got)
	}
}

func TestScaleAndClamp(t *testing.T) {
	b := newBias(t, Config{MaxRange: 1, EnergyIncrement: 0.5, LengthScale: 0.05, Bins: 51, Cutoff: 3})
	b.Append(1.0)
	if got := b.Energy(1.0, 4); math.Abs(got-2) > 1e-12 {
		t.Errorf("scaled energy = %f, want 2", got)
	}
	if b.Energy(5, 1) != b.Energy(1, 1) {
		t.Error("values beyond the range should saturate at the boundary bin")
	}
	if b.Gradient(5) != 0 || b.Gradient(-1) != 0 {
		t.Error("gradient should vanish outside the range")
	}
	b.Append(-3)
	if b.Energy(0, 1) <= 0 {
		t.Error("deposit below range should clamp to the lower boundary")
	}
}

func TestGradientSign(t *testing.T) {
	b := newBias(t, Config{MaxRange: 1, EnergyIncrement: 1, LengthScale: 0.05, Bins: 401, Cutoff: 4})
	b.Append(0.5)
	if g := b.Gradient(0.45); g <= 0 {
		t.Errorf("gradient left of the kernel should be positive, got %f", g)
	}
	if g := b.Gradient(0.55); g >= 0 {
		t.Errorf("gradient right of the kernel should be negative, got %f", g)
	}
}

func TestDelta(t *testing.T) {
	cfg := Config{MaxRange: 1, EnergyIncrement: 1, LengthScale: 0.05, Bins: 401, Cutoff: 4}
	b := newBias(t, cfg)
	b.Append(0.5)
	want := b.Energy(0.52, 2) - b.Energy(0.5, 2)
	if got := b.Delta(0.52, 0.5, 2); math.Abs(got-want) > 1e-12 {
		t.Errorf("Delta = %f, want %f", got, want)
	}

	cfg.UseDerivative = true
	d := newBias(t, cfg)
	d.Append(0.5)
	if got, want := d.Delta(0.46, 0.45, 1), d.Gradient(0.45)*0.01; math.Abs(got-want) > 1e-12 {
		t.Errorf("derivative Delta = %f, want %f", got, want)
	}
}

func TestDoubleSidedHistogram(t *testing.T) {
	b := newBias(t, Config{MaxRange: 2, EnergyIncrement: 1, LengthScale: 0.1, Bins: 81, Cutoff: 3, DoubleSided: true})
	b.Append(-1)
	x, v := b.Histogram(41)
	if len(x) != 41 || x[0] != -2 || x[40] != 2 {
		t.Fatalf("unexpected grid: len=%d first=%f last=%f", len(x), x[0], x[len(x)-1])
	}
	step := x[1] - x[0]
	for i := 1; i < len(x); i++ {
		if math.Abs(x[i]-x[i-1]-step) > 1e-12 {
			t.Fatal("grid is not uniform")
		}
	}
	if v[10] != 1 {
		t.Errorf("expected peak 1 at x=-1, got %f", v[10])
	}
	_, f := b.FreeEnergy(41)
	for i := range f {
		if f[i] > 0 {
			t.Fatalf("free energy must not be positive, got %f at %d", f[i], i)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero range", Config{MaxRange: 0, LengthScale: 0.1, Bins: 10, Cutoff: 3}},
		{"zero length", Config{MaxRange: 1, LengthScale: 0, Bins: 10, Cutoff: 3}},
		{"one bin", Config{MaxRange: 1, LengthScale: 0.1, Bins: 1, Cutoff: 3}},
		{"zero cutoff", Config{MaxRange: 1, LengthScale: 0.1, Bins: 10}},
		{"negative height", Config{MaxRange: 1, LengthScale: 0.1, Bins: 10, Cutoff: 3, EnergyIncrement: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New().Set(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
	if err := DefaultConfig(1).Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestNaNOrderParameter(t *testing.T) {
	b := newBias(t, DefaultConfig(1))
	b.Append(0.5)
	b.Append(math.NaN())
	if b.Deposits() != 1 {
		t.Errorf("Deposits = %d, want 1", b.Deposits())
	}
	if !math.IsNaN(b.Energy(math.NaN(), 1)) {
		t.Error("Energy(NaN) should be NaN")
	}
	if !math.IsNaN(b.Gradient(math.NaN())) {
		t.Error("Gradient(NaN) should be NaN")
	}
	if !math.IsNaN(b.Delta(math.NaN(), 0.5, 1)) {
		t.Error("Delta from NaN should be NaN")
	}
}
