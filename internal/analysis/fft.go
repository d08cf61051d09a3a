package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// sokalWindow is the self-consistent window factor of IntegratedTime.
const sokalWindow = 5

// Autocorrelation returns the normalized autocorrelation rho(t) of x for
// lags 0..len(x)-1, computed through a zero-padded FFT.
func Autocorrelation(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	mean := stat.Mean(x, nil)

	size := 1
	for size < 2*n {
		size <<= 1
	}
	buf := make([]float64, size)
	for i, v := range x {
		buf[i] = v - mean
	}

	spec := fft.FFTReal(buf)
	for i, c := range spec {
		spec[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	acf := fft.IFFT(spec)

	out := make([]float64, n)
	c0 := real(acf[0])
	if c0 <= 0 {
		out[0] = 1
		return out
	}
	for t := range out {
		out[t] = real(acf[t]) / c0
	}
	return out
}

// IntegratedTime is the integrated autocorrelation time
// tau = 1 + 2 sum_{t=1..W} rho(t), with W the smallest window satisfying
// W >= 5 tau. A trace of independent samples has tau close to 1.
func IntegratedTime(x []float64) float64 {
	rho := Autocorrelation(x)
	if len(rho) == 0 {
		return 0
	}
	tau := 1.0
	for w := 1; w < len(rho); w++ {
		tau += 2 * rho[w]
		if float64(w) >= sokalWindow*tau {
			break
		}
	}
	return tau
}

// StandardError is the error of the mean of a correlated trace,
// sqrt(tau Var(x) / n).
func StandardError(x []float64) float64 {
	n := float64(len(x))
	if n < 2 {
		return 0
	}
	_, variance := stat.PopMeanVariance(x, nil)
	return math.Sqrt(math.Max(IntegratedTime(x), 1) * variance / n)
}

// PowerSpectrum returns |X(f)| for the non-negative frequencies of x.
func PowerSpectrum(x []float64) []float64 {
	spec := fft.FFTReal(x)
	ps := make([]float64, len(spec)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spec[i])
	}
	return ps
}

// DominantFrequency returns the frequency of the strongest non-constant
// component of x sampled every dt.
func DominantFrequency(x []float64, dt float64) float64 {
	if len(x) < 4 || dt <= 0 {
		return 0
	}
	mean := stat.Mean(x, nil)
	centred := make([]float64, len(x))
	for i, v := range x {
		centred[i] = v - mean
	}
	ps := PowerSpectrum(centred)
	best := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	return float64(best) / (float64(len(x)) * dt)
}
