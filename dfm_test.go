// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// End-to-end pipeline test on a simulated unbalanced panel

package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFactorSpaceRecoveryTwoFactors(t *testing.T) {
	// The estimated factors identify the true factor space only up to an
	// invertible rotation, so recovery is measured by regressing each true
	// factor on the estimated ones.
	T, ns := 100, 10
	panel, truth, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   2,
		FactorLags: 1,
		FactorAR:   0.6,
		IdioSD:     0.1,
		Seed:       90,
	})
	require.NoError(t, err)

	cfg := testConfig(T)
	cfg.NumUnobsFactors = 2
	m, err := NewDFMModel(panel, allIncluded(ns), cfg)
	require.NoError(t, err)
	_, err = m.EstimateFactor(false)
	require.NoError(t, err)

	for q := 0; q < 2; q++ {
		yq := mat.NewDense(T, 1, nil)
		for tt := 0; tt < T; tt++ {
			yq.Set(tt, 0, truth.At(tt, q))
		}
		X := mat.NewDense(T, 3, nil)
		for tt := 0; tt < T; tt++ {
			X.Set(tt, 0, m.Factor.At(tt, 0))
			X.Set(tt, 1, m.Factor.At(tt, 1))
			X.Set(tt, 2, 1)
		}
		_, e, err := OLS(yq, X)
		require.NoError(t, err)

		yv := make([]float64, T)
		ev := make([]float64, T)
		for tt := 0; tt < T; tt++ {
			yv[tt] = yq.At(tt, 0)
			ev[tt] = e.At(tt, 0)
		}
		r2, _, _ := ComputeR2(yv, ev)
		assert.Greater(t, r2, 0.95, "true factor %d", q+1)
	}
}

func TestEndToEndUnbalancedPanel(t *testing.T) {
	T, ns := 200, 12
	panel, truth, err := SimulatePanel(SimulationConfig{
		NPeriods:    T,
		NSeries:     ns,
		NFactors:    1,
		FactorLags:  1,
		FactorAR:    0.7,
		Lambda:      onesLoadings(ns, 1),
		IdioAR:      0.3,
		IdioSD:      0.4,
		MissingRate: 0.1,
		Seed:        91,
	})
	require.NoError(t, err)

	m, err := NewDFMModel(panel, allIncluded(ns), testConfig(T))
	require.NoError(t, err)

	stats, err := m.Fit()
	require.NoError(t, err)
	require.True(t, stats.Converged)

	// Factor recovery up to sign and scale.
	corr := windowCorrelation(m.Factor, 0, truth, 0, T)
	assert.Greater(t, math.Abs(corr), 0.85)

	// Equal true loadings: the estimated full-panel loadings agree across
	// series up to sampling noise.
	ref := m.Lambda.At(0, 0)
	require.False(t, isMissing(ref))
	for i := 1; i < ns; i++ {
		ratio := m.Lambda.At(i, 0) / ref
		assert.InDelta(t, 1, ratio, 0.3, "series %d", i)
	}

	// Idiosyncratic persistence shows up in the AR fits.
	nPositive := 0
	for i := 0; i < ns; i++ {
		require.False(t, isMissing(m.ARCoef.At(i, 0)))
		if m.ARCoef.At(i, 0) > 0 {
			nPositive++
		}
	}
	assert.Greater(t, nPositive, ns/2)

	// The factor VAR picked up the persistence and supports impulse
	// responses out of the box.
	require.NotNil(t, m.VAR)
	irfs, err := m.VAR.ImpulseResponses(12, nil)
	require.NoError(t, err)
	require.Len(t, irfs, 1)

	// A stationary factor's responses die out.
	irf := irfs[0]
	assert.Greater(t, math.Abs(irf.At(0, 0)), math.Abs(irf.At(0, 11)))

	// The selection scan runs on the same panel and flags at least as good a
	// fit at the true count as at one factor.
	sel, err := SelectFactorNumber(panel, allIncluded(ns), testConfig(T), 3, 2)
	require.NoError(t, err)
	assert.Greater(t, sel.TSS, 0.0)
	for k := 0; k < 3; k++ {
		assert.False(t, isMissing(sel.BaiNg[k]))
	}
}
