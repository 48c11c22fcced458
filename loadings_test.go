// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Tests for the full-panel loading regressions and the loading F-test

package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateFactorLoadingsFillsAllSeries(t *testing.T) {
	T, ns := 150, 10
	panel, _, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.7,
		Lambda:     onesLoadings(ns, 1),
		IdioAR:     0.4,
		IdioSD:     0.5,
		Seed:       31,
	})
	require.NoError(t, err)

	// Exclude the last two series from factor estimation; the loading pass
	// still covers them.
	inc := allIncluded(ns)
	inc[ns-2], inc[ns-1] = 0, 0

	m, err := NewDFMModel(panel, inc, testConfig(T))
	require.NoError(t, err)
	_, err = m.EstimateFactor(false)
	require.NoError(t, err)
	require.NoError(t, m.EstimateFactorLoadings())

	for i := 0; i < ns; i++ {
		assert.False(t, isMissing(m.Lambda.At(i, 0)), "loading %d", i)
		assert.False(t, isMissing(m.ARCoef.At(i, 0)), "AR coef %d", i)
		assert.False(t, isMissing(m.ARStdErr[i]), "AR stderr %d", i)
		assert.False(t, isMissing(m.LoadingFStat[i]), "F-stat %d", i)
		assert.GreaterOrEqual(t, m.LoadingPValue[i], 0.0)
		assert.LessOrEqual(t, m.LoadingPValue[i], 1.0)
		assert.Greater(t, m.LoadingR2[i], 0.0, "R2 %d", i)
		assert.LessOrEqual(t, m.LoadingR2[i], 1.0, "R2 %d", i)
	}
}

func TestLoadingFTestSignificantForFactorSeries(t *testing.T) {
	T, ns := 200, 8
	panel, _, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.7,
		Lambda:     onesLoadings(ns, 1),
		IdioSD:     0.3,
		Seed:       32,
	})
	require.NoError(t, err)

	m, err := NewDFMModel(panel, allIncluded(ns), testConfig(T))
	require.NoError(t, err)
	_, err = m.EstimateFactor(false)
	require.NoError(t, err)
	require.NoError(t, m.EstimateFactorLoadings())

	// Every series carries the factor with a strong loading; the null of
	// all-zero loadings should be rejected decisively.
	for i := 0; i < ns; i++ {
		assert.Less(t, m.LoadingPValue[i], 0.01, "series %d", i)
		assert.Greater(t, m.LoadingFStat[i], 0.0, "series %d", i)
	}
}

func TestNearPerfectFitZeroesARModel(t *testing.T) {
	// A panel series equal to the factor itself fits perfectly; the AR model
	// is pinned to zero rather than fit to numerical noise.
	T, ns := 100, 6
	panel, truth, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.7,
		Lambda:     onesLoadings(ns, 1),
		IdioSD:     0.5,
		Seed:       33,
	})
	require.NoError(t, err)
	for tt := 0; tt < T; tt++ {
		panel.X.Set(tt, 0, truth.At(tt, 0))
	}

	cfg := testConfig(T)
	cfg.NumObsFactors = 1
	cfg.NumUnobsFactors = 0
	m, err := NewDFMModel(panel, allIncluded(ns), cfg)
	require.NoError(t, err)
	require.NoError(t, m.SetObservedFactors(truth))
	_, err = m.EstimateFactor(false)
	require.NoError(t, err)
	require.NoError(t, m.EstimateFactorLoadings())

	assert.Equal(t, 0.0, m.ARCoef.At(0, 0))
	assert.Equal(t, 0.0, m.ARStdErr[0])
}

func TestShortSampleKeepsPriorLoadings(t *testing.T) {
	T, ns := 120, 6
	panel, _, err := SimulatePanel(SimulationConfig{
		NPeriods:   T,
		NSeries:    ns,
		NFactors:   1,
		FactorLags: 1,
		FactorAR:   0.6,
		Lambda:     onesLoadings(ns, 1),
		IdioSD:     0.5,
		Seed:       34,
	})
	require.NoError(t, err)

	// Series 0 has only five observations, below the loading threshold.
	for tt := 0; tt < T; tt++ {
		if tt >= 5 {
			panel.X.Set(tt, 0, math.NaN())
		}
	}

	inc := allIncluded(ns)
	inc[0] = 0
	m, err := NewDFMModel(panel, inc, testConfig(T))
	require.NoError(t, err)
	_, err = m.EstimateFactor(false)
	require.NoError(t, err)
	require.NoError(t, m.EstimateFactorLoadings())

	// The thin series keeps its unestimated state.
	assert.True(t, isMissing(m.Lambda.At(0, 0)))
	assert.True(t, isMissing(m.ARStdErr[0]))
	assert.True(t, isMissing(m.LoadingR2[0]))
	assert.True(t, isMissing(m.LoadingFStat[0]))
	// The others are estimated.
	for i := 1; i < ns; i++ {
		assert.False(t, isMissing(m.Lambda.At(i, 0)), "series %d", i)
	}
}

func TestLoadingFTestClamps(t *testing.T) {
	// Degenerate inputs resolve to the no-evidence point (F=0, p=1) or NaN,
	// never to out-of-range values.
	f, p := loadingFTest(1.0, 1.0, 1, 50)
	assert.Equal(t, 0.0, f)
	assert.Equal(t, 1.0, p)

	// tss slightly below ssr from floating-point error.
	f, p = loadingFTest(1.0+1e-15, 1.0, 1, 50)
	assert.Equal(t, 0.0, f)
	assert.Equal(t, 1.0, p)

	// Insufficient degrees of freedom.
	f, p = loadingFTest(0.5, 1.0, 3, 4)
	assert.True(t, isMissing(f))
	assert.True(t, isMissing(p))

	// Strong fit: large F, small p.
	f, p = loadingFTest(0.1, 10.0, 1, 100)
	assert.Greater(t, f, 100.0)
	assert.Less(t, p, 1e-6)
}
