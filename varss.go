// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// VAR estimation on the factor series and companion state-space construction

package main

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// EstimateVAR fits a VAR(lags) to the series in y over the 1-indexed window
// [initPeriod, lastPeriod] using balanced missing-data OLS on the lag design
// (rows lost to lag construction or missing data are dropped jointly), then
// builds the companion state-space form. A residual covariance that is not
// positive definite is fatal: the state-space form cannot be built without
// its Cholesky factor.
func EstimateVAR(y *mat.Dense, lags int, constant bool, initPeriod, lastPeriod int) (*VARModel, error) {
	if y == nil {
		return nil, fmt.Errorf("%w: series data not provided", ErrBadConfig)
	}
	T, ns := y.Dims()
	if lags <= 0 {
		return nil, fmt.Errorf("%w: VAR lag order must be > 0, got %d", ErrBadConfig, lags)
	}
	if initPeriod < 1 || lastPeriod > T || initPeriod >= lastPeriod {
		return nil, fmt.Errorf("%w: VAR window [%d, %d] invalid for T=%d",
			ErrBadConfig, initPeriod, lastPeriod, T)
	}

	n0 := initPeriod - 1
	n1 := lastPeriod - 1
	nt := n1 - n0 + 1

	ysub := mat.DenseCopyOf(y.Slice(n0, n1+1, 0, ns))
	lagX, err := LagMatrix(ysub, lagRange(lags))
	if err != nil {
		return nil, err
	}

	icons := 0
	if constant {
		icons = 1
	}
	ncol := icons + ns*lags
	X := mat.NewDense(nt, ncol, nil)
	for t := 0; t < nt; t++ {
		if constant {
			X.Set(t, 0, 1)
		}
		for j := 0; j < ns*lags; j++ {
			X.Set(t, icons+j, lagX.At(t, j))
		}
	}

	b, eKept, keep, err := OLSMissingBalanced(ysub, X)
	if err != nil {
		return nil, fmt.Errorf("VAR estimation: %w", err)
	}
	tUsed := 0
	for _, k := range keep {
		if k {
			tUsed++
		}
	}
	if tUsed <= ncol {
		return nil, fmt.Errorf("VAR estimation: %d usable periods for %d regressors", tUsed, ncol)
	}

	// Residuals back at their original time indices.
	resid := nanDense(T, ns)
	r := 0
	for t := 0; t < nt; t++ {
		if !keep[t] {
			continue
		}
		for j := 0; j < ns; j++ {
			resid.Set(n0+t, j, eKept.At(r, j))
		}
		r++
	}

	// Residual covariance e'e / (T_used - K).
	var ete mat.Dense
	ete.Mul(eKept.T(), eKept)
	df := float64(tUsed - ncol)
	sepsData := make([]float64, ns*ns)
	for i := 0; i < ns; i++ {
		for j := 0; j < ns; j++ {
			sepsData[i*ns+j] = ete.At(i, j) / df
		}
	}
	seps := mat.NewSymDense(ns, sepsData)

	v := &VARModel{
		Y:          y,
		NumSeries:  ns,
		Lags:       lags,
		Constant:   constant,
		InitPeriod: initPeriod,
		LastPeriod: lastPeriod,
		Betahat:    b,
		Resid:      resid,
		Seps:       seps,
	}
	if err := v.fillCompanionMatrices(); err != nil {
		return nil, err
	}
	return v, nil
}

// fillCompanionMatrices builds the companion-form matrices M, Q, G from the
// estimated coefficients and residual covariance:
//
//	M's top NumSeries rows hold the transposed VAR coefficients (constant
//	excluded) and its remaining rows the identity shift selecting lagged
//	states; Q selects the first NumSeries state coordinates; G's top-left
//	block is the lower Cholesky factor of Seps, zero elsewhere.
func (v *VARModel) fillCompanionMatrices() error {
	ns := v.NumSeries
	p := v.Lags
	np := ns * p
	icons := 0
	if v.Constant {
		icons = 1
	}

	M := mat.NewDense(np, np, nil)
	for i := 0; i < ns; i++ {
		for l := 0; l < p; l++ {
			for j := 0; j < ns; j++ {
				M.Set(i, l*ns+j, v.Betahat.At(icons+l*ns+j, i))
			}
		}
	}
	for i := ns; i < np; i++ {
		M.Set(i, i-ns, 1)
	}

	Q := mat.NewDense(ns, np, nil)
	for i := 0; i < ns; i++ {
		Q.Set(i, i, 1)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(v.Seps); !ok {
		return fmt.Errorf("%w: VAR residual covariance has no Cholesky factor", ErrNotPositiveDefinite)
	}
	L := mat.NewTriDense(ns, mat.Lower, nil)
	chol.LTo(L)

	G := mat.NewDense(np, ns, nil)
	for i := 0; i < ns; i++ {
		for j := 0; j <= i; j++ {
			G.Set(i, j, L.At(i, j))
		}
	}

	v.M, v.Q, v.G = M, Q, G
	return nil
}

// Fit runs the full estimation pipeline on the model: factor extraction,
// full-panel loading regressions with idiosyncratic AR fits, and the factor
// VAR in companion form. The VAR is constructed over the model's own factor
// matrix, so both views share one backing store.
func (m *DFMModel) Fit() (*FactorEstimateStats, error) {
	stats, err := m.EstimateFactor(true)
	if err != nil {
		return nil, err
	}
	if err := m.EstimateFactorLoadings(); err != nil {
		return nil, err
	}
	v, err := EstimateVAR(m.Factor, m.Config.NumFactorLags, true, m.Config.InitPeriod, m.Config.LastPeriod)
	if err != nil {
		return nil, err
	}
	m.VAR = v
	return stats, nil
}
