// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Column-wise standardization tolerant of missing values

package main

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Standardize normalizes each column of data to zero mean and unit variance
// using only its observed entries, applying the small-sample correction
// sqrt((n-1)/n) to the standard deviation (n = observed count for that
// column). It returns the standardized matrix and the corrected standard
// deviations. A column with no observed entries stays all-NaN: dropping
// degenerate columns happens downstream in balanced-subpanel extraction,
// never here.
func Standardize(data *mat.Dense) (*mat.Dense, []float64) {
	T, k := data.Dims()
	out := nanDense(T, k)
	sd := nanSlice(k)

	vals := make([]float64, 0, T)
	for j := 0; j < k; j++ {
		vals = vals[:0]
		for t := 0; t < T; t++ {
			if v := data.At(t, j); !isMissing(v) {
				vals = append(vals, v)
			}
		}
		n := len(vals)
		if n == 0 {
			continue
		}

		mean, std := stat.MeanStdDev(vals, nil)
		if n == 1 {
			std = 0
		} else {
			std *= math.Sqrt(float64(n-1) / float64(n))
		}
		sd[j] = std

		for t := 0; t < T; t++ {
			v := data.At(t, j)
			if isMissing(v) {
				continue
			}
			// A constant column has std 0; the division propagates the
			// resulting Inf/NaN rather than silently dropping the column.
			out.Set(t, j, (v-mean)/std)
		}
	}
	return out, sd
}
