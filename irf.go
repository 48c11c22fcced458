// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Impulse-response propagation through the companion state-space recursion

package main

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// AllShocks selects every structural shock (every column of G) when passed
// inside the shock set of ImpulseResponses.
const AllShocks = -1

// ImpulseResponse propagates a one-standard-deviation structural shock with
// the given index through the state-space recursion: the state starts as the
// corresponding column of G, each step emits Q*state and advances the state
// by M. The result is NumSeries x horizon; column h holds the response at
// horizon h, so column 0 is the impact response Q*G[:,shock]. Deterministic:
// no randomness, no missing data.
func (v *VARModel) ImpulseResponse(horizon, shock int) (*mat.Dense, error) {
	if v == nil || v.M == nil || v.Q == nil || v.G == nil {
		return nil, fmt.Errorf("state-space form not built")
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be > 0")
	}
	np, nshock := v.G.Dims()
	if shock < 0 || shock >= nshock {
		return nil, fmt.Errorf("shock index must be between 0 and %d", nshock-1)
	}

	state := mat.NewVecDense(np, nil)
	for i := 0; i < np; i++ {
		state.SetVec(i, v.G.At(i, shock))
	}

	out := mat.NewDense(v.NumSeries, horizon, nil)
	for h := 0; h < horizon; h++ {
		var obs mat.VecDense
		obs.MulVec(v.Q, state)
		for i := 0; i < v.NumSeries; i++ {
			out.Set(i, h, obs.AtVec(i))
		}
		var next mat.VecDense
		next.MulVec(v.M, state)
		state = &next
	}
	return out, nil
}

// ImpulseResponses computes responses for a set of shock indices; a nil set
// or any AllShocks entry expands to every column of G. The result is indexed
// like the input set, one NumSeries x horizon matrix per shock.
func (v *VARModel) ImpulseResponses(horizon int, shocks []int) ([]*mat.Dense, error) {
	if v == nil || v.G == nil {
		return nil, fmt.Errorf("state-space form not built")
	}
	_, nshock := v.G.Dims()

	expand := shocks == nil
	for _, s := range shocks {
		if s == AllShocks {
			expand = true
			break
		}
	}
	if expand {
		shocks = make([]int, nshock)
		for i := range shocks {
			shocks[i] = i
		}
	}

	out := make([]*mat.Dense, len(shocks))
	for i, s := range shocks {
		irf, err := v.ImpulseResponse(horizon, s)
		if err != nil {
			return nil, fmt.Errorf("impulse response for shock %d: %w", s, err)
		}
		out[i] = irf
	}
	return out, nil
}
