// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Full-panel factor loading regressions with idiosyncratic AR dynamics and a
// joint loading significance test per series

package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Near-perfect fits are treated as trivially reconstructible series: the
// idiosyncratic AR model is pinned to zero instead of being fit to numerical
// noise.
const perfectFitR2 = 0.9999

// EstimateFactorLoadings regresses every panel series (not just the included
// ones) on the estimated factor plus a constant over the estimation window,
// storing the factor-loading coefficients, and fits an AR(NumARLags) model
// to each idiosyncratic residual. Series whose usable sample is below
// MinObsLoadingEstimation keep their prior values: this is a carry-over, not
// a reset, so repeated calls leave stale entries for such series.
func (m *DFMModel) EstimateFactorLoadings() error {
	cfg := m.Config
	n0, _, nt := m.windowBounds()
	_, ns := m.Panel.Dims()
	nfacT := m.NumFactors

	// Factor block over the window plus a constant column.
	fWin := mat.NewDense(nt, nfacT, nil)
	for t := 0; t < nt; t++ {
		for j := 0; j < nfacT; j++ {
			fWin.Set(t, j, m.Factor.At(n0+t, j))
		}
	}
	X := mat.NewDense(nt, nfacT+1, nil)
	for t := 0; t < nt; t++ {
		for j := 0; j < nfacT; j++ {
			X.Set(t, j, fWin.At(t, j))
		}
		X.Set(t, nfacT, 1)
	}

	yi := mat.NewDense(nt, 1, nil)
	for i := 0; i < ns; i++ {
		count := 0
		for t := 0; t < nt; t++ {
			yi.Set(t, 0, m.Panel.X.At(n0+t, i))
			if !isMissing(yi.At(t, 0)) && rowComplete(t, fWin) {
				count++
			}
		}
		if count < cfg.MinObsLoadingEstimation {
			continue
		}

		b, e, keep, err := OLSMissingBalanced(yi, X)
		if err != nil {
			continue
		}
		for q := 0; q < nfacT; q++ {
			m.Lambda.Set(i, q, b.At(q, 0))
		}

		// Residual back at its original window positions for the AR fit.
		eFull := nanDense(nt, 1)
		yk := make([]float64, 0, count)
		ek := make([]float64, 0, count)
		r := 0
		for t := 0; t < nt; t++ {
			if keep[t] {
				eFull.Set(t, 0, e.At(r, 0))
				yk = append(yk, yi.At(t, 0))
				ek = append(ek, e.At(r, 0))
				r++
			}
		}

		r2, ssr, tss := ComputeR2(yk, ek)
		m.LoadingR2[i] = r2
		m.LoadingFStat[i], m.LoadingPValue[i] = loadingFTest(ssr, tss, nfacT, count)

		if !isMissing(r2) && r2 >= perfectFitR2 {
			for q := 0; q < cfg.NumARLags; q++ {
				m.ARCoef.Set(i, q, 0)
			}
			m.ARStdErr[i] = 0
			continue
		}
		if err := m.fitIdiosyncraticAR(i, eFull); err != nil {
			return err
		}
	}
	return nil
}

// fitIdiosyncraticAR fits an AR(NumARLags) model to the idiosyncratic
// residual of series i via the lag matrix and balanced missing-data OLS. An
// unusable sample leaves the prior AR values in place.
func (m *DFMModel) fitIdiosyncraticAR(i int, eFull *mat.Dense) error {
	p := m.Config.NumARLags
	lagE, err := LagMatrix(eFull, lagRange(p))
	if err != nil {
		return fmt.Errorf("idiosyncratic AR for series %d: %w", i, err)
	}
	b, eAR, keep, err := OLSMissingBalanced(eFull, lagE)
	if err != nil {
		return nil
	}
	tUsed := 0
	for _, k := range keep {
		if k {
			tUsed++
		}
	}
	if tUsed <= p {
		return nil
	}
	for q := 0; q < p; q++ {
		m.ARCoef.Set(i, q, b.At(q, 0))
	}
	ssr := 0.0
	for t := 0; t < tUsed; t++ {
		v := eAR.At(t, 0)
		ssr += v * v
	}
	m.ARStdErr[i] = math.Sqrt(ssr / float64(tUsed-p))
	return nil
}

// loadingFTest computes the F-statistic and p-value for the joint null that
// all factor loadings of a series are zero. The restricted model is the
// constant-only regression, whose residual sum of squares is the total sum
// of squares around the series mean.
func loadingFTest(ssr, tss float64, nfac, count int) (fstat, pvalue float64) {
	if isMissing(ssr) || isMissing(tss) {
		return math.NaN(), math.NaN()
	}
	q := float64(nfac)
	dof := float64(count - nfac - 1)
	if dof <= 0 {
		return math.NaN(), math.NaN()
	}

	// In theory tss >= ssr, but floating point can produce a tiny negative
	// difference; clamp to zero.
	num := tss - ssr
	if num < 0 {
		num = 0
	}
	den := ssr / dof
	if den <= 0 || num == 0 {
		return 0, 1
	}

	fstat = (num / q) / den
	if fstat <= 0 || math.IsNaN(fstat) || math.IsInf(fstat, 0) {
		return 0, 1
	}
	fDist := distuv.F{D1: q, D2: dof}
	pvalue = 1 - fDist.CDF(fstat)
	if pvalue < 0 {
		pvalue = 0
	}
	if pvalue > 1 {
		pvalue = 1
	}
	return fstat, pvalue
}
