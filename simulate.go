// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Synthetic panel generation from a known factor structure, used for
// end-to-end checks and demo runs

package main

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// SimulationConfig describes a synthetic factor panel: NFactors latent
// factors following a VAR(FactorLags) with diagonal coefficient FactorAR,
// loaded onto NSeries observed series with idiosyncratic AR(1) noise, and a
// fraction of the cells dropped at random.
type SimulationConfig struct {
	NPeriods    int
	NSeries     int
	NFactors    int
	FactorLags  int
	FactorAR    float64 // diagonal VAR coefficient on the first lag
	Lambda      *mat.Dense
	IdioAR      float64
	IdioSD      float64
	MissingRate float64
	Seed        uint64
}

// burn-in periods discarded before the sample starts, so the factor
// recursion forgets its zero initial state.
const simulateBurnIn = 100

// SimulatePanel draws a synthetic panel from the configured factor structure
// and returns it together with the true factor paths. When cfg.Lambda is nil
// the loadings are drawn standard normal. The generator is fully seeded, so
// equal configs produce equal panels.
func SimulatePanel(cfg SimulationConfig) (*Panel, *mat.Dense, error) {
	if cfg.NPeriods <= 0 || cfg.NSeries <= 0 || cfg.NFactors <= 0 {
		return nil, nil, fmt.Errorf("%w: simulation dimensions must be positive", ErrBadConfig)
	}
	if cfg.FactorLags <= 0 {
		return nil, nil, fmt.Errorf("%w: factor lag order must be > 0, got %d", ErrBadConfig, cfg.FactorLags)
	}
	if math.Abs(cfg.FactorAR) >= 1 {
		return nil, nil, fmt.Errorf("%w: factor AR coefficient %v is not stationary", ErrBadConfig, cfg.FactorAR)
	}
	if cfg.MissingRate < 0 || cfg.MissingRate >= 1 {
		return nil, nil, fmt.Errorf("%w: missing rate must be in [0, 1), got %v", ErrBadConfig, cfg.MissingRate)
	}
	nfac := cfg.NFactors
	ns := cfg.NSeries
	T := cfg.NPeriods

	lambda := cfg.Lambda
	src := rand.NewPCG(cfg.Seed, cfg.Seed+1)
	stdNormal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	if lambda == nil {
		lambda = mat.NewDense(ns, nfac, nil)
		for i := 0; i < ns; i++ {
			for q := 0; q < nfac; q++ {
				lambda.Set(i, q, stdNormal.Rand())
			}
		}
	} else if r, c := lambda.Dims(); r != ns || c != nfac {
		return nil, nil, fmt.Errorf("%w: loadings are %dx%d, want %dx%d", ErrDimensionMismatch, r, c, ns, nfac)
	}

	// Factor innovations with identity covariance.
	mu := make([]float64, nfac)
	sigma := mat.NewSymDense(nfac, nil)
	for q := 0; q < nfac; q++ {
		sigma.SetSym(q, q, 1)
	}
	innov, ok := distmv.NewNormal(mu, sigma, src)
	if !ok {
		return nil, nil, fmt.Errorf("factor innovation distribution not constructible")
	}

	// VAR recursion with burn-in; only the first lag carries the persistence.
	total := simulateBurnIn + T
	fPath := mat.NewDense(total, nfac, nil)
	u := make([]float64, nfac)
	for t := 0; t < total; t++ {
		innov.Rand(u)
		for q := 0; q < nfac; q++ {
			v := u[q]
			if t >= 1 {
				v += cfg.FactorAR * fPath.At(t-1, q)
			}
			fPath.Set(t, q, v)
		}
	}
	factor := mat.DenseCopyOf(fPath.Slice(simulateBurnIn, total, 0, nfac))

	// Observed series: common component plus AR(1) idiosyncratic noise.
	idio := distuv.Normal{Mu: 0, Sigma: cfg.IdioSD, Src: src}
	if cfg.IdioSD <= 0 {
		idio.Sigma = 1
	}
	X := mat.NewDense(T, ns, nil)
	eprev := make([]float64, ns)
	for t := 0; t < T; t++ {
		for i := 0; i < ns; i++ {
			common := 0.0
			for q := 0; q < nfac; q++ {
				common += lambda.At(i, q) * factor.At(t, q)
			}
			e := cfg.IdioAR*eprev[i] + idio.Rand()
			eprev[i] = e
			X.Set(t, i, common+e)
		}
	}

	// Random missingness, cell by cell.
	if cfg.MissingRate > 0 {
		r := rand.New(src)
		for t := 0; t < T; t++ {
			for i := 0; i < ns; i++ {
				if r.Float64() < cfg.MissingRate {
					X.Set(t, i, math.NaN())
				}
			}
		}
	}

	names := make([]string, ns)
	times := make([]float64, T)
	for i := range names {
		names[i] = fmt.Sprintf("series_%02d", i+1)
	}
	for t := range times {
		times[t] = float64(t + 1)
	}
	return &Panel{X: X, Time: times, SeriesNames: names}, factor, nil
}
