// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Factor-number selection: Bai-Ng information criterion over a candidate
// scan plus the Amengual-Watson dynamic-factor test

package main

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// baiNgCriterion evaluates log(ssr/nobs) + nfac*g with the penalty
// g = log(min(nbar, T)) * (nbar+T)/nobs and nbar = nobs/T, the average
// coverage per period. A non-positive ssr or nobs yields NaN.
func baiNgCriterion(ssr float64, nobs, numPeriods, nfac int) float64 {
	if nobs <= 0 || ssr <= 0 || isMissing(ssr) {
		return math.NaN()
	}
	n := float64(nobs)
	T := float64(numPeriods)
	nbar := n / T
	g := math.Log(math.Min(nbar, T)) * (nbar + T) / n
	return math.Log(ssr/n) + float64(nfac)*g
}

// SelectFactorNumber scans candidate unobserved factor counts 1..maxFactors.
// Each candidate gets a fresh, independent model on the same panel, window,
// and inclusion vector; the scan runs the alternating factor estimation,
// records the Bai-Ng criterion with the static SSR and per-series R2, and
// runs the Amengual-Watson dynamic-factor test with nper lagged periods.
// Candidates are independent, so they run concurrently.
func SelectFactorNumber(p *Panel, include []int, cfg DFMConfig, maxFactors, nper int) (*FactorNumberEstimateStats, error) {
	if maxFactors < 1 {
		return nil, fmt.Errorf("%w: maxFactors must be >= 1, got %d", ErrBadConfig, maxFactors)
	}
	if p == nil || p.X == nil {
		return nil, fmt.Errorf("%w: panel data not provided", ErrBadConfig)
	}
	_, ns := p.X.Dims()

	out := &FactorNumberEstimateStats{
		MaxFactors:  maxFactors,
		BaiNg:       nanSlice(maxFactors),
		SSRStatic:   nanSlice(maxFactors),
		R2Static:    nanDense(maxFactors, ns),
		AWCriterion: nanDense(maxFactors, maxFactors),
		AWSSR:       nanDense(maxFactors, maxFactors),
		AWR2:        make([]*mat.Dense, maxFactors),
	}
	perRun := make([]*FactorEstimateStats, maxFactors)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for k := 1; k <= maxFactors; k++ {
		g.Go(func() error {
			c := cfg
			c.NumObsFactors = 0
			c.NumUnobsFactors = k

			m, err := NewDFMModel(p, include, c)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", k, err)
			}
			stats, err := m.EstimateFactor(true)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", k, err)
			}
			perRun[k-1] = stats

			out.BaiNg[k-1] = baiNgCriterion(stats.SSR, stats.NumObs, stats.NumPeriods, k)
			out.SSRStatic[k-1] = stats.SSR
			for j := 0; j < ns; j++ {
				out.R2Static.Set(k-1, j, stats.R2[j])
			}

			aw, err := m.DynamicFactorTest(nper)
			if err != nil {
				return fmt.Errorf("candidate %d: dynamic factor test: %w", k, err)
			}
			for d := 0; d < k; d++ {
				out.AWCriterion.Set(k-1, d, aw.Criterion[d])
				out.AWSSR.Set(k-1, d, aw.SSR[d])
			}
			out.AWR2[k-1] = aw.R2
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Panel-level scalars are candidate-invariant; record them once rather
	// than rewriting them on every scan iteration.
	out.TSS = perRun[0].TSS
	out.NumObs = perRun[0].NumObs
	out.NumPeriods = perRun[0].NumPeriods
	return out, nil
}

// DynamicFactorTest runs the Amengual-Watson procedure on a model whose
// static factor has been estimated: each included series is regressed on a
// constant plus nper lags of the static factor over the window shifted
// forward by nper periods (so lag construction never reaches before the
// original window), residuals with enough degrees of freedom form a residual
// panel, and static factor estimation is re-run on that panel for every
// dynamic factor count 1..NumFactors. Low residual common variation at small
// counts indicates fewer dynamic than static factors.
func (m *DFMModel) DynamicFactorTest(nper int) (*DynamicFactorTestResult, error) {
	cfg := m.Config
	if nper <= 0 {
		return nil, fmt.Errorf("%w: nper must be > 0, got %d", ErrBadConfig, nper)
	}
	initShift := cfg.InitPeriod + nper
	if initShift >= cfg.LastPeriod {
		return nil, fmt.Errorf("%w: window [%d, %d] too short for %d lagged periods",
			ErrBadConfig, cfg.InitPeriod, cfg.LastPeriod, nper)
	}
	T, ns := m.Panel.Dims()
	nfacT := m.NumFactors

	// The factor must be filled over the original window.
	for t := cfg.InitPeriod - 1; t < cfg.LastPeriod; t++ {
		if !rowComplete(t, m.Factor) {
			return nil, fmt.Errorf("static factor not estimated over the window")
		}
	}

	lagF, err := LagMatrix(m.Factor, lagRange(nper))
	if err != nil {
		return nil, err
	}

	n0 := initShift - 1
	n1 := cfg.LastPeriod - 1
	nt := n1 - n0 + 1
	ncol := 1 + nfacT*nper

	X := mat.NewDense(nt, ncol, nil)
	for t := 0; t < nt; t++ {
		X.Set(t, 0, 1)
		for j := 0; j < nfacT*nper; j++ {
			X.Set(t, 1+j, lagF.At(n0+t, j))
		}
	}

	residPanel := nanDense(T, ns)
	yi := mat.NewDense(nt, 1, nil)
	for i := 0; i < ns; i++ {
		if m.Include[i] != 1 {
			continue
		}
		count := 0
		for t := 0; t < nt; t++ {
			yi.Set(t, 0, m.Panel.X.At(n0+t, i))
			if !isMissing(yi.At(t, 0)) && rowComplete(t, X) {
				count++
			}
		}
		if count-ncol < cfg.MinObsLoadingEstimation {
			continue
		}
		_, e, keep, err := OLSMissingBalanced(yi, X)
		if err != nil {
			continue
		}
		r := 0
		for t := 0; t < nt; t++ {
			if keep[t] {
				residPanel.Set(n0+t, i, e.At(r, 0))
				r++
			}
		}
	}

	res := &DynamicFactorTestResult{
		Criterion: nanSlice(nfacT),
		SSR:       nanSlice(nfacT),
		R2:        nanDense(nfacT, ns),
	}
	rp := &Panel{X: residPanel, Time: m.Panel.Time, SeriesNames: m.Panel.SeriesNames}
	for d := 1; d <= nfacT; d++ {
		c := cfg
		c.InitPeriod = initShift
		c.NumObsFactors = 0
		c.NumUnobsFactors = d

		md, err := NewDFMModel(rp, m.Include, c)
		if err != nil {
			return nil, fmt.Errorf("dynamic count %d: %w", d, err)
		}
		stats, err := md.EstimateFactor(true)
		if err != nil {
			return nil, fmt.Errorf("dynamic count %d: %w", d, err)
		}
		res.Criterion[d-1] = baiNgCriterion(stats.SSR, stats.NumObs, stats.NumPeriods, d)
		res.SSR[d-1] = stats.SSR
		for j := 0; j < ns; j++ {
			res.R2.Set(d-1, j, stats.R2[j])
		}
	}
	return res, nil
}
