// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Least-squares primitives: plain OLS, balanced and unbalanced missing-data
// variants, lag-matrix construction, and R-squared bookkeeping

package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// olsSolve computes the least-squares coefficients B for X B ~ Y.
// First try: normal equations B = (X'X)^(-1) X'Y.
// Fallback: X'X is singular or badly conditioned, so use SVD-based least
// squares with the minimum-norm solution. Rank 0 means X is numerically
// all-zero and the minimum-norm solution is B = 0.
func olsSolve(X, Y *mat.Dense) (*mat.Dense, error) {
	_, k := X.Dims()
	_, n := Y.Dims()

	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	var xtxInv mat.Dense
	if errInv := xtxInv.Inverse(&xtx); errInv == nil {
		var xty, b mat.Dense
		xty.Mul(X.T(), Y)
		b.Mul(&xtxInv, &xty)
		return &b, nil
	} else {
		var svd mat.SVD
		if ok := svd.Factorize(X, mat.SVDFullU|mat.SVDFullV); !ok {
			return nil, fmt.Errorf("OLS failed: X'X singular and SVD factorization failed: %v", errInv)
		}
		rank := svd.Rank(1e-12)
		b := mat.NewDense(k, n, nil)
		if rank > 0 {
			svd.SolveTo(b, Y, rank)
		}
		return b, nil
	}
}

// OLS regresses y (T x N) on X (T x K, full column rank assumed) and returns
// the coefficients b (K x N) and the residual e = y - X b. No missing-value
// handling at this level.
func OLS(y, X *mat.Dense) (b, e *mat.Dense, err error) {
	ty, _ := y.Dims()
	tx, _ := X.Dims()
	if ty != tx {
		return nil, nil, fmt.Errorf("%w: y has %d rows, X has %d", ErrDimensionMismatch, ty, tx)
	}

	b, err = olsSolve(X, y)
	if err != nil {
		return nil, nil, err
	}

	var fitted mat.Dense
	fitted.Mul(X, b)
	e = &mat.Dense{}
	e.Sub(y, &fitted)
	return b, e, nil
}

// OLSMissingBalanced drops every row where any value in [y X] is missing and
// runs OLS on the remainder. It returns the coefficients, the residual for
// the kept rows only, and a boolean mask of kept rows. Used when a single
// joint-missingness pattern should be applied across all columns of y.
func OLSMissingBalanced(y, X *mat.Dense) (b, e *mat.Dense, keep []bool, err error) {
	ty, ny := y.Dims()
	tx, k := X.Dims()
	if ty != tx {
		return nil, nil, nil, fmt.Errorf("%w: y has %d rows, X has %d", ErrDimensionMismatch, ty, tx)
	}

	keep = make([]bool, ty)
	nKeep := 0
	for t := 0; t < ty; t++ {
		keep[t] = rowComplete(t, y, X)
		if keep[t] {
			nKeep++
		}
	}
	if nKeep == 0 {
		return nil, nil, keep, fmt.Errorf("no rows with complete data in [y X]")
	}

	ySub := mat.NewDense(nKeep, ny, nil)
	xSub := mat.NewDense(nKeep, k, nil)
	r := 0
	for t := 0; t < ty; t++ {
		if !keep[t] {
			continue
		}
		for j := 0; j < ny; j++ {
			ySub.Set(r, j, y.At(t, j))
		}
		for j := 0; j < k; j++ {
			xSub.Set(r, j, X.At(t, j))
		}
		r++
	}

	b, e, err = OLS(ySub, xSub)
	if err != nil {
		return nil, nil, keep, err
	}
	return b, e, keep, nil
}

// OLSMissingUnbalanced regresses each column of y (T x N) independently on
// the shared regressor matrix X (T x K), dropping the rows that are missing
// for that column (or in X). Residuals are placed back at their original row
// positions; dropped rows stay NaN. Coefficients are collected column-wise
// into a K x N matrix and the per-column row masks into keep[col][row].
// A column with no usable rows gets NaN coefficients and residuals.
func OLSMissingUnbalanced(y, X *mat.Dense) (b, e *mat.Dense, keep [][]bool, err error) {
	ty, ny := y.Dims()
	tx, k := X.Dims()
	if ty != tx {
		return nil, nil, nil, fmt.Errorf("%w: y has %d rows, X has %d", ErrDimensionMismatch, ty, tx)
	}

	b = nanDense(k, ny)
	e = nanDense(ty, ny)
	keep = make([][]bool, ny)

	yj := mat.NewDense(ty, 1, nil)
	for j := 0; j < ny; j++ {
		for t := 0; t < ty; t++ {
			yj.Set(t, 0, y.At(t, j))
		}

		bj, ej, keepj, errj := OLSMissingBalanced(yj, X)
		if keepj == nil {
			// Row-count mismatch cannot happen per column; still propagate.
			return nil, nil, nil, errj
		}
		keep[j] = keepj
		if errj != nil {
			// No usable rows for this column: leave NaN and move on.
			continue
		}

		for i := 0; i < k; i++ {
			b.Set(i, j, bj.At(i, 0))
		}
		r := 0
		for t := 0; t < ty; t++ {
			if keepj[t] {
				e.Set(t, j, ej.At(r, 0))
				r++
			}
		}
	}
	return b, e, keep, nil
}

// LagMatrix builds a T x (K*len(lags)) matrix where block i equals X shifted
// down by lags[i] rows; the first lags[i] rows of that block are NaN. Lags
// must be non-negative. A lag of T or more yields an all-NaN block.
func LagMatrix(X *mat.Dense, lags []int) (*mat.Dense, error) {
	T, k := X.Dims()
	for _, l := range lags {
		if l < 0 {
			return nil, fmt.Errorf("%w: lag %d is negative", ErrBadConfig, l)
		}
	}

	out := mat.NewDense(T, k*len(lags), nil)
	for bi, l := range lags {
		for t := 0; t < T; t++ {
			for j := 0; j < k; j++ {
				if t < l {
					out.Set(t, bi*k+j, math.NaN())
				} else {
					out.Set(t, bi*k+j, X.At(t-l, j))
				}
			}
		}
	}
	return out, nil
}

// lagRange returns [1, 2, ..., p].
func lagRange(p int) []int {
	lags := make([]int, p)
	for i := range lags {
		lags[i] = i + 1
	}
	return lags
}

// ComputeR2 returns 1 - ssr/tss along with ssr and tss, computed over the
// entries where both y and e are observed; tss is taken around y's own mean
// on those entries. e must be the residual of regressing y for the R-squared
// to be meaningful. A zero tss yields NaN.
func ComputeR2(y, e []float64) (r2, ssr, tss float64) {
	if len(y) != len(e) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	n := 0
	mean := 0.0
	for i := range y {
		if !isMissing(y[i]) && !isMissing(e[i]) {
			mean += y[i]
			n++
		}
	}
	if n == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	mean /= float64(n)

	for i := range y {
		if isMissing(y[i]) || isMissing(e[i]) {
			continue
		}
		d := y[i] - mean
		tss += d * d
		ssr += e[i] * e[i]
	}
	if tss == 0 {
		return math.NaN(), ssr, tss
	}
	return 1 - ssr/tss, ssr, tss
}
