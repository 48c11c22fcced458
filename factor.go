// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Alternating least-squares extraction of static factors from an unbalanced
// panel, initialized from principal components of the balanced sub-panel

package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// includedColumns returns the panel column indices with inclusion flag 1.
func (m *DFMModel) includedColumns() []int {
	var idx []int
	for j, v := range m.Include {
		if v == 1 {
			idx = append(idx, j)
		}
	}
	return idx
}

// windowBounds returns the 0-indexed estimation window [n0, n1] and its
// length.
func (m *DFMModel) windowBounds() (n0, n1, nt int) {
	n0 = m.Config.InitPeriod - 1
	n1 = m.Config.LastPeriod - 1
	return n0, n1, n1 - n0 + 1
}

// balancedColumns returns the columns of x that have no missing entries.
func balancedColumns(x *mat.Dense) []int {
	T, k := x.Dims()
	var idx []int
	for j := 0; j < k; j++ {
		complete := true
		for t := 0; t < T; t++ {
			if isMissing(x.At(t, j)) {
				complete = false
				break
			}
		}
		if complete {
			idx = append(idx, j)
		}
	}
	return idx
}

// principalComponents initializes nfac factor series as the principal
// component scores of the fully observed sub-matrix: the top nfac right
// singular vectors of xbal scaled by xbal itself.
func principalComponents(xbal *mat.Dense, nfac int) (*mat.Dense, error) {
	T, k := xbal.Dims()
	if k < nfac || T < nfac {
		return nil, fmt.Errorf("balanced sub-panel is %dx%d, cannot extract %d components", T, k, nfac)
	}

	var svd mat.SVD
	if ok := svd.Factorize(xbal, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD of balanced sub-panel failed")
	}
	var v mat.Dense
	svd.VTo(&v)

	vTop := mat.DenseCopyOf(v.Slice(0, k, 0, nfac))
	f := mat.NewDense(T, nfac, nil)
	f.Mul(xbal, vTop)
	return f, nil
}

// EstimateFactor runs the alternating factor/loading iteration over the
// estimation window and the included series, writing the resulting factor
// into the model's factor array on rows [InitPeriod, LastPeriod] only.
// Observed factors (the first NumObsFactors columns, set beforehand through
// SetObservedFactors) are held fixed as identifying restrictions. When
// computeR2 is true, per-series fit statistics are computed from the final
// factor. The returned stats record SSR at exit and whether the tolerance
// was met within the iteration cap.
func (m *DFMModel) EstimateFactor(computeR2 bool) (*FactorEstimateStats, error) {
	cfg := m.Config
	n0, _, nt := m.windowBounds()
	incl := m.includedColumns()
	nIncl := len(incl)
	if nIncl == 0 {
		return nil, fmt.Errorf("%w: no series included in factor estimation", ErrBadConfig)
	}
	nfacO, nfacU, nfacT := cfg.NumObsFactors, cfg.NumUnobsFactors, m.NumFactors
	_, ns := m.Panel.Dims()

	// Standardized sub-panel: window rows, included columns.
	xsub := mat.NewDense(nt, nIncl, nil)
	for t := 0; t < nt; t++ {
		for j, col := range incl {
			xsub.Set(t, j, m.Panel.X.At(n0+t, col))
		}
	}
	xs, _ := Standardize(xsub)

	nobs := 0
	tss := 0.0
	for t := 0; t < nt; t++ {
		for j := 0; j < nIncl; j++ {
			if v := xs.At(t, j); !isMissing(v) {
				nobs++
				tss += v * v
			}
		}
	}

	// Observed factor block over the window, fixed through the iteration.
	var fObs *mat.Dense
	if nfacO > 0 {
		fObs = mat.NewDense(nt, nfacO, nil)
		for t := 0; t < nt; t++ {
			for j := 0; j < nfacO; j++ {
				v := m.Factor.At(n0+t, j)
				if isMissing(v) {
					return nil, fmt.Errorf("%w: observed factor %d missing at period %d",
						ErrBadConfig, j+1, cfg.InitPeriod+t)
				}
				fObs.Set(t, j, v)
			}
		}
	}

	var f *mat.Dense
	if nfacU > 0 {
		bal := balancedColumns(xs)
		var xbal *mat.Dense
		if len(bal) >= nfacU {
			xbal = mat.NewDense(nt, len(bal), nil)
			for t := 0; t < nt; t++ {
				for j, col := range bal {
					xbal.Set(t, j, xs.At(t, col))
				}
			}
		} else {
			// Too few fully observed columns to anchor the initialization.
			// Fall back to mean imputation: missing cells are zero in
			// standardized units. The iteration refines the factor on the
			// actual missingness pattern afterwards.
			xbal = mat.NewDense(nt, nIncl, nil)
			for t := 0; t < nt; t++ {
				for j := 0; j < nIncl; j++ {
					if v := xs.At(t, j); !isMissing(v) {
						xbal.Set(t, j, v)
					}
				}
			}
		}
		var err error
		f, err = principalComponents(xbal, nfacU)
		if err != nil {
			return nil, fmt.Errorf("factor initialization: %w", err)
		}
	}

	stats := &FactorEstimateStats{
		NumPeriods: nt,
		NumSeries:  nIncl,
		NumObs:     nobs,
		TSS:        tss,
		R2:         nanSlice(ns),
	}

	lambda := nanDense(nIncl, nfacT)
	fFull := mat.NewDense(nt, nfacT, nil)
	ssrOld := math.Inf(1)

	if nfacU > 0 {
		for iter := 1; iter <= cfg.MaxIter; iter++ {
			stats.Iterations = iter
			composeFactor(fFull, fObs, f)

			// Loading step: each series on the current factor, rows with
			// joint data only; below the sample threshold the loading stays
			// undefined and the series drops out of the factor step.
			m.loadingStep(xs, fFull, lambda)

			// Factor step: the standardized panel net of the observed-factor
			// contribution, transposed so series are rows, regressed on the
			// unobserved-factor loadings per time period.
			z := netOfObserved(xs, fObs, lambda, nfacO)
			zT := mat.DenseCopyOf(z.T())
			lambdaU := mat.DenseCopyOf(lambda.Slice(0, nIncl, nfacO, nfacT))

			bt, e, _, err := OLSMissingUnbalanced(zT, lambdaU)
			if err != nil {
				return nil, fmt.Errorf("factor step: %w", err)
			}
			f = mat.DenseCopyOf(bt.T())

			ssr := 0.0
			for i := 0; i < nIncl; i++ {
				for t := 0; t < nt; t++ {
					if v := e.At(i, t); !isMissing(v) {
						ssr += v * v
					}
				}
			}
			stats.SSR = ssr

			if math.Abs(ssr-ssrOld) < cfg.Tolerance*float64(nt)*float64(nIncl) {
				stats.Converged = true
				break
			}
			ssrOld = ssr
		}
	} else {
		// Nothing to iterate: all factors are observed, one loading pass
		// fixes the fit.
		stats.Iterations = 1
		stats.Converged = true
		composeFactor(fFull, fObs, nil)
		m.loadingStep(xs, fFull, lambda)
		ssr := 0.0
		for j := 0; j < nIncl; j++ {
			_, s, _ := seriesFitSSR(xs, fFull, lambda, j)
			if !isMissing(s) {
				ssr += s
			}
		}
		stats.SSR = ssr
	}

	composeFactor(fFull, fObs, f)

	// Write the factor back over the estimation window only; rows outside
	// stay as they were.
	for t := 0; t < nt; t++ {
		for j := nfacO; j < nfacT; j++ {
			m.Factor.Set(n0+t, j, fFull.At(t, j))
		}
	}
	// Balanced-subpanel loadings for the included series; the full-panel
	// loading regression overwrites these later.
	for j, col := range incl {
		for q := 0; q < nfacT; q++ {
			m.Lambda.Set(col, q, lambda.At(j, q))
		}
	}

	if computeR2 {
		for j, col := range incl {
			r2, _, _ := seriesFitR2(xs, fFull, j, cfg.MinObsFactorEstimation)
			stats.R2[col] = r2
		}
	}
	return stats, nil
}

// composeFactor assembles [fObs | f] into dst (nt x nfacT). Either block may
// be nil.
func composeFactor(dst, fObs, f *mat.Dense) {
	nt, _ := dst.Dims()
	off := 0
	if fObs != nil {
		_, c := fObs.Dims()
		for t := 0; t < nt; t++ {
			for j := 0; j < c; j++ {
				dst.Set(t, j, fObs.At(t, j))
			}
		}
		off = c
	}
	if f != nil {
		_, c := f.Dims()
		for t := 0; t < nt; t++ {
			for j := 0; j < c; j++ {
				dst.Set(t, off+j, f.At(t, j))
			}
		}
	}
}

// loadingStep regresses each series of xs on the current factor estimate,
// using rows where the series and the factor are jointly observed. Series
// below the minimum-sample threshold keep NaN loadings.
func (m *DFMModel) loadingStep(xs, f, lambda *mat.Dense) {
	nt, nIncl := xs.Dims()
	_, nfacT := f.Dims()

	yj := mat.NewDense(nt, 1, nil)
	for j := 0; j < nIncl; j++ {
		count := 0
		for t := 0; t < nt; t++ {
			yj.Set(t, 0, xs.At(t, j))
			if !isMissing(xs.At(t, j)) && rowComplete(t, f) {
				count++
			}
		}
		if count < m.Config.MinObsFactorEstimation {
			for q := 0; q < nfacT; q++ {
				lambda.Set(j, q, math.NaN())
			}
			continue
		}
		b, _, _, err := OLSMissingBalanced(yj, f)
		if err != nil {
			continue
		}
		for q := 0; q < nfacT; q++ {
			lambda.Set(j, q, b.At(q, 0))
		}
	}
}

// netOfObserved subtracts the observed-factor contribution fObs * lambdaO'
// from xs. Series with undefined loadings become all-NaN columns, which the
// per-period regressions then drop.
func netOfObserved(xs, fObs, lambda *mat.Dense, nfacO int) *mat.Dense {
	if fObs == nil || nfacO == 0 {
		return xs
	}
	nt, nIncl := xs.Dims()
	z := mat.NewDense(nt, nIncl, nil)
	for t := 0; t < nt; t++ {
		for j := 0; j < nIncl; j++ {
			v := xs.At(t, j)
			for q := 0; q < nfacO; q++ {
				v -= fObs.At(t, q) * lambda.At(j, q)
			}
			z.Set(t, j, v)
		}
	}
	return z
}

// seriesFitR2 regresses series j of xs on the factor over jointly observed
// rows and returns its R-squared, or NaN when the usable sample is below
// minObs.
func seriesFitR2(xs, f *mat.Dense, j, minObs int) (r2, ssr, tss float64) {
	nt, _ := xs.Dims()
	yj := mat.NewDense(nt, 1, nil)
	count := 0
	for t := 0; t < nt; t++ {
		yj.Set(t, 0, xs.At(t, j))
		if !isMissing(xs.At(t, j)) && rowComplete(t, f) {
			count++
		}
	}
	if count < minObs {
		return math.NaN(), math.NaN(), math.NaN()
	}
	_, e, _, err := OLSMissingBalanced(yj, f)
	if err != nil {
		return math.NaN(), math.NaN(), math.NaN()
	}
	yk := make([]float64, 0, count)
	ek := make([]float64, 0, count)
	r := 0
	for t := 0; t < nt; t++ {
		if !isMissing(xs.At(t, j)) && rowComplete(t, f) {
			yk = append(yk, xs.At(t, j))
			ek = append(ek, e.At(r, 0))
			r++
		}
	}
	return ComputeR2(yk, ek)
}

// seriesFitSSR returns the residual sum of squares of regressing series j of
// xs on the full factor with its current loadings (no re-estimation).
func seriesFitSSR(xs, f, lambda *mat.Dense, j int) (r2, ssr, tss float64) {
	nt, _ := xs.Dims()
	_, nfacT := f.Dims()
	y := make([]float64, 0, nt)
	e := make([]float64, 0, nt)
	for t := 0; t < nt; t++ {
		v := xs.At(t, j)
		if isMissing(v) || !rowComplete(t, f) {
			continue
		}
		fit := 0.0
		for q := 0; q < nfacT; q++ {
			fit += f.At(t, q) * lambda.At(j, q)
		}
		if isMissing(fit) {
			continue
		}
		y = append(y, v)
		e = append(e, v-fit)
	}
	return ComputeR2(y, e)
}
