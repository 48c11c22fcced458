// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Tests for the alternating factor estimation

package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// onesLoadings builds an ns x nfac loading matrix of ones, so every series
// carries the common component with equal strength.
func onesLoadings(ns, nfac int) *mat.Dense {
	l := mat.NewDense(ns, nfac, nil)
	for i := 0; i < ns; i++ {
		for q := 0; q < nfac; q++ {
			l.Set(i, q, 1)
		}
	}
	return l
}

func allIncluded(ns int) []int {
	inc := make([]int, ns)
	for i := range inc {
		inc[i] = 1
	}
	return inc
}

func testConfig(T int) DFMConfig {
	return DFMConfig{
		InitPeriod:              1,
		LastPeriod:              T,
		NumUnobsFactors:         1,
		MinObsFactorEstimation:  10,
		MinObsLoadingEstimation: 10,
		NumARLags:               1,
		NumFactorLags:           1,
	}
}

// windowCorrelation returns the correlation between an estimated factor
// column and a true factor path over the estimation window.
func windowCorrelation(est *mat.Dense, col int, truth *mat.Dense, n0, nt int) float64 {
	a := make([]float64, nt)
	b := make([]float64, nt)
	for t := 0; t < nt; t++ {
		a[t] = est.At(n0+t, col)
		b[t] = truth.At(n0+t, 0)
	}
	return stat.Correlation(a, b, nil)
}

func TestEstimateFactorRecoversSingleFactor(t *testing.T) {
	T, ns := 150, 12
	panel, truth, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.7,
		Lambda:     onesLoadings(ns, 1),
		IdioSD:     0.3,
		Seed:       101,
	})
	require.NoError(t, err)

	m, err := NewDFMModel(panel, allIncluded(ns), testConfig(T))
	require.NoError(t, err)

	stats, err := m.EstimateFactor(true)
	require.NoError(t, err)
	assert.True(t, stats.Converged)
	assert.LessOrEqual(t, stats.Iterations, defaultMaxIter)
	assert.Greater(t, stats.TSS, stats.SSR)

	// The estimated factor is identified up to scale and sign only, so check
	// correlation with the true path rather than levels.
	corr := windowCorrelation(m.Factor, 0, truth, 0, T)
	assert.Greater(t, math.Abs(corr), 0.9)

	for i := 0; i < ns; i++ {
		assert.Greater(t, stats.R2[i], 0.7, "series %d", i)
	}
}

func TestEstimateFactorWithMissingData(t *testing.T) {
	T, ns := 200, 15
	panel, truth, err := SimulatePanel(SimulationConfig{
		NPeriods:    T,
		NSeries:     ns,
		NFactors:    1,
		FactorLags:  1,
		FactorAR:    0.7,
		Lambda:      onesLoadings(ns, 1),
		IdioSD:      0.3,
		MissingRate: 0.15,
		Seed:        202,
	})
	require.NoError(t, err)

	m, err := NewDFMModel(panel, allIncluded(ns), testConfig(T))
	require.NoError(t, err)

	stats, err := m.EstimateFactor(true)
	require.NoError(t, err)
	assert.True(t, stats.Converged)
	assert.Less(t, stats.NumObs, T*ns)

	corr := windowCorrelation(m.Factor, 0, truth, 0, T)
	assert.Greater(t, math.Abs(corr), 0.85)
}

func TestEstimateFactorWritesWindowOnly(t *testing.T) {
	T, ns := 120, 10
	panel, _, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.5,
		Lambda:     onesLoadings(ns, 1),
		IdioSD:     0.5,
		Seed:       303,
	})
	require.NoError(t, err)

	cfg := testConfig(T)
	cfg.InitPeriod = 11
	cfg.LastPeriod = T - 10
	m, err := NewDFMModel(panel, allIncluded(ns), cfg)
	require.NoError(t, err)

	_, err = m.EstimateFactor(false)
	require.NoError(t, err)

	for tt := 0; tt < T; tt++ {
		inside := tt >= cfg.InitPeriod-1 && tt <= cfg.LastPeriod-1
		if inside {
			assert.False(t, isMissing(m.Factor.At(tt, 0)), "period %d", tt+1)
		} else {
			assert.True(t, isMissing(m.Factor.At(tt, 0)), "period %d", tt+1)
		}
	}
}

func TestEstimateFactorFullRankExactFit(t *testing.T) {
	// With as many factors as series and a fully observed panel, the factor
	// space spans the data and the fit is exact.
	T, ns := 50, 4
	panel, _, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   ns,
		FactorLags: 1,
		FactorAR:   0.3,
		IdioSD:     1,
		Seed:       404,
	})
	require.NoError(t, err)

	cfg := testConfig(T)
	cfg.NumUnobsFactors = ns
	m, err := NewDFMModel(panel, allIncluded(ns), cfg)
	require.NoError(t, err)

	stats, err := m.EstimateFactor(true)
	require.NoError(t, err)
	assert.True(t, stats.Converged)
	assert.InDelta(t, 0, stats.SSR, 1e-6)
	for i := 0; i < ns; i++ {
		assert.InDelta(t, 1, stats.R2[i], 1e-6)
	}
}

func TestEstimateFactorObservedOnly(t *testing.T) {
	// All factors observed: a single loading pass fixes the fit, nothing
	// iterates.
	T, ns := 100, 8
	panel, truth, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.6,
		Lambda:     onesLoadings(ns, 1),
		IdioSD:     0.3,
		Seed:       505,
	})
	require.NoError(t, err)

	cfg := testConfig(T)
	cfg.NumObsFactors = 1
	cfg.NumUnobsFactors = 0
	m, err := NewDFMModel(panel, allIncluded(ns), cfg)
	require.NoError(t, err)
	require.NoError(t, m.SetObservedFactors(truth))

	stats, err := m.EstimateFactor(true)
	require.NoError(t, err)
	assert.True(t, stats.Converged)
	assert.Equal(t, 1, stats.Iterations)
	for i := 0; i < ns; i++ {
		assert.False(t, isMissing(m.Lambda.At(i, 0)), "series %d", i)
		assert.Greater(t, stats.R2[i], 0.7, "series %d", i)
	}
}

func TestEstimateFactorObservedMissingIsError(t *testing.T) {
	T, ns := 60, 6
	panel, _, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.5,
		IdioSD:     0.5,
		Seed:       606,
	})
	require.NoError(t, err)

	cfg := testConfig(T)
	cfg.NumObsFactors = 1
	cfg.NumUnobsFactors = 0
	m, err := NewDFMModel(panel, allIncluded(ns), cfg)
	require.NoError(t, err)
	// Observed factor never set: the factor matrix is still NaN.
	_, err = m.EstimateFactor(false)
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestEstimateFactorNoIncludedSeries(t *testing.T) {
	T, ns := 60, 5
	panel, _, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.5,
		IdioSD:     0.5,
		Seed:       707,
	})
	require.NoError(t, err)

	m, err := NewDFMModel(panel, make([]int, ns), testConfig(T))
	require.NoError(t, err)
	_, err = m.EstimateFactor(false)
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestNewDFMModelValidation(t *testing.T) {
	T, ns := 40, 4
	panel, _, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.5,
		IdioSD:     0.5,
		Seed:       808,
	})
	require.NoError(t, err)
	inc := allIncluded(ns)

	cfg := testConfig(T)
	cfg.LastPeriod = T + 1
	_, err = NewDFMModel(panel, inc, cfg)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig(T)
	cfg.NumUnobsFactors = 0
	_, err = NewDFMModel(panel, inc, cfg)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig(T)
	cfg.NumARLags = 0
	_, err = NewDFMModel(panel, inc, cfg)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig(T)
	_, err = NewDFMModel(panel, []int{1, 0, 2, 1}, cfg)
	assert.ErrorIs(t, err, ErrBadConfig)

	_, err = NewDFMModel(panel, inc[:2], testConfig(T))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
