// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// Missing-data factor extraction, factor VAR state-space form, factor-number
// selection, and impulse responses

package main

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sentinel errors wrapped by the estimation routines. Insufficient-sample
// conditions are never errors: the affected output stays NaN and processing
// continues for the remaining series.
var (
	ErrDimensionMismatch   = errors.New("dimension mismatch")
	ErrBadConfig           = errors.New("invalid configuration")
	ErrNotPositiveDefinite = errors.New("matrix not positive definite")
)

// Missing observations are carried as NaN inside the data matrices. NaN is
// never a valid observation, so the marker cannot collide with real data.
// All missing-aware code goes through these helpers.
func isMissing(x float64) bool { return math.IsNaN(x) }

// rowComplete reports whether row t of every matrix in ms is fully observed.
func rowComplete(t int, ms ...*mat.Dense) bool {
	for _, m := range ms {
		_, c := m.Dims()
		for j := 0; j < c; j++ {
			if isMissing(m.At(t, j)) {
				return false
			}
		}
	}
	return true
}

// Panel holds a T x ns data matrix (rows: time, cols: series), a time index,
// and series names. Entries may be NaN for unobserved cells.
type Panel struct {
	X *mat.Dense
	// Time index, one entry per row
	Time []float64
	// List of series names
	SeriesNames []string
}

// Dims returns the number of periods and series in the panel.
func (p *Panel) Dims() (T, ns int) { return p.X.Dims() }

// DFMConfig collects the scalar settings of a dynamic factor model.
// InitPeriod and LastPeriod are 1-indexed and inclusive.
type DFMConfig struct {
	// Estimation window bounds within 1..T
	InitPeriod int
	LastPeriod int

	// Pre-specified (observed) factors, used as identifying restrictions,
	// and unobserved factors to estimate
	NumObsFactors   int
	NumUnobsFactors int

	// Convergence tolerance for the alternating factor iteration; the loop
	// stops when |SSR_new - SSR_old| < Tolerance * T * ns
	Tolerance float64

	// Minimum usable-sample thresholds
	MinObsFactorEstimation  int
	MinObsLoadingEstimation int

	// AR lag order for idiosyncratic residuals and VAR lag order for the
	// factor dynamics; both must be positive
	NumARLags     int
	NumFactorLags int

	// Iteration cap for the alternating factor iteration. Exceeding the cap
	// returns the last iterate with Converged=false; convergence is bounded,
	// not verified.
	MaxIter int
}

// Defaults used when the corresponding config field is zero.
const (
	defaultTolerance = 1e-8
	defaultMaxIter   = 5000
)

// DFMModel aggregates the panel, the inclusion vector selecting which series
// participate in factor estimation, the configuration, and the estimated
// outputs. Output matrices are allocated NaN-filled at construction and only
// the estimation methods write into them.
type DFMModel struct {
	Panel   *Panel
	Include []int
	Config  DFMConfig

	// Total factor count: NumObsFactors + NumUnobsFactors
	NumFactors int

	// Estimated factor, T x NumFactors; NaN outside the estimation window.
	// The embedded VAR model is constructed over this same matrix: both hold
	// a reference to one backing store, written only by EstimateFactor and
	// only inside the window.
	Factor *mat.Dense

	// Loadings, ns x NumFactors
	Lambda *mat.Dense

	// Idiosyncratic AR coefficients (ns x NumARLags) and residual standard
	// errors per series
	ARCoef   *mat.Dense
	ARStdErr []float64

	// Per-series fit and joint significance of the factor loadings:
	// R-squared of the loading regression, F-statistic and p-value of the
	// null that all loadings are zero
	LoadingR2     []float64
	LoadingFStat  []float64
	LoadingPValue []float64

	// VAR over the factor series in companion state-space form
	VAR *VARModel
}

// NewDFMModel validates the configuration against the panel and allocates a
// model with NaN-filled output arrays.
func NewDFMModel(p *Panel, include []int, cfg DFMConfig) (*DFMModel, error) {
	if p == nil || p.X == nil {
		return nil, fmt.Errorf("%w: panel data not provided", ErrBadConfig)
	}
	T, ns := p.X.Dims()
	if len(include) != ns {
		return nil, fmt.Errorf("%w: inclusion vector has %d entries, panel has %d series",
			ErrDimensionMismatch, len(include), ns)
	}
	for i, v := range include {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("%w: inclusion entry %d is %d, want 0 or 1", ErrBadConfig, i, v)
		}
	}
	if cfg.InitPeriod < 1 || cfg.LastPeriod > T || cfg.InitPeriod >= cfg.LastPeriod {
		return nil, fmt.Errorf("%w: estimation window [%d, %d] invalid for T=%d",
			ErrBadConfig, cfg.InitPeriod, cfg.LastPeriod, T)
	}
	if cfg.NumObsFactors < 0 || cfg.NumUnobsFactors < 0 || cfg.NumObsFactors+cfg.NumUnobsFactors == 0 {
		return nil, fmt.Errorf("%w: factor counts nobs=%d nunobs=%d", ErrBadConfig,
			cfg.NumObsFactors, cfg.NumUnobsFactors)
	}
	if cfg.NumARLags <= 0 {
		return nil, fmt.Errorf("%w: idiosyncratic AR lag order must be > 0, got %d",
			ErrBadConfig, cfg.NumARLags)
	}
	if cfg.NumFactorLags <= 0 {
		return nil, fmt.Errorf("%w: factor VAR lag order must be > 0, got %d",
			ErrBadConfig, cfg.NumFactorLags)
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = defaultTolerance
	}
	if cfg.Tolerance < 0 {
		return nil, fmt.Errorf("%w: tolerance must be positive, got %g", ErrBadConfig, cfg.Tolerance)
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = defaultMaxIter
	}

	nfac := cfg.NumObsFactors + cfg.NumUnobsFactors
	m := &DFMModel{
		Panel:         p,
		Include:       include,
		Config:        cfg,
		NumFactors:    nfac,
		Factor:        nanDense(T, nfac),
		Lambda:        nanDense(ns, nfac),
		ARCoef:        nanDense(ns, cfg.NumARLags),
		ARStdErr:      nanSlice(ns),
		LoadingR2:     nanSlice(ns),
		LoadingFStat:  nanSlice(ns),
		LoadingPValue: nanSlice(ns),
	}
	return m, nil
}

// SetObservedFactors copies the pre-specified factor series into the first
// NumObsFactors columns of the factor matrix. obs must be T x NumObsFactors.
func (m *DFMModel) SetObservedFactors(obs *mat.Dense) error {
	T, _ := m.Panel.X.Dims()
	r, c := obs.Dims()
	if r != T || c != m.Config.NumObsFactors {
		return fmt.Errorf("%w: observed factors are %dx%d, want %dx%d",
			ErrDimensionMismatch, r, c, T, m.Config.NumObsFactors)
	}
	for t := 0; t < T; t++ {
		for j := 0; j < c; j++ {
			m.Factor.Set(t, j, obs.At(t, j))
		}
	}
	return nil
}

// FactorEstimateStats is the per-run bookkeeping of a factor estimation.
// R2 is indexed by the full series set; excluded series and series with an
// insufficient sample stay NaN.
type FactorEstimateStats struct {
	NumPeriods int
	NumSeries  int
	NumObs     int
	TSS        float64
	SSR        float64
	R2         []float64
	Iterations int
	Converged  bool
}

// VARModel represents a VAR(p) in state-space form
//
//	y_t = Q z_t
//	z_t = M z_{t-1} + G u_t
//
// where z_t stacks y_t with its p-1 lags. Y is the source series matrix
// (shared with the owning DFMModel's factor array when estimated through
// Fit), Betahat holds the OLS coefficients with the constant in row 0 when
// present, Resid places residuals back at their original time indices (NaN
// elsewhere), and Seps is the residual covariance. M is the companion
// transition matrix, Q selects the first NumSeries state coordinates, and
// G's top-left block is the lower Cholesky factor of Seps so that G G' with
// unit-variance shocks reproduces the covariance.
type VARModel struct {
	Y          *mat.Dense
	NumSeries  int
	Lags       int
	Constant   bool
	InitPeriod int
	LastPeriod int

	Betahat *mat.Dense
	Resid   *mat.Dense
	Seps    *mat.SymDense

	M *mat.Dense
	Q *mat.Dense
	G *mat.Dense
}

// DynamicFactorTestResult holds the Amengual-Watson re-estimation results on
// the lagged-factor regression residuals, indexed by dynamic factor count
// 1..NumFactors.
type DynamicFactorTestResult struct {
	Criterion []float64
	SSR       []float64
	// R2 is (NumFactors x ns): per-series fit of the residual-panel factor
	// model at each dynamic factor count
	R2 *mat.Dense
}

// FactorNumberEstimateStats collects the candidate-count scan results.
// Row k-1 of the grids corresponds to the candidate static factor count k;
// Amengual-Watson columns beyond the candidate count stay NaN.
type FactorNumberEstimateStats struct {
	MaxFactors int

	BaiNg     []float64
	SSRStatic []float64
	R2Static  *mat.Dense

	AWCriterion *mat.Dense
	AWSSR       *mat.Dense
	AWR2        []*mat.Dense

	// Panel-level scalars. These depend only on the data and the window, not
	// on the candidate count, so one recording covers the whole scan.
	TSS        float64
	NumObs     int
	NumPeriods int
}

func nanDense(r, c int) *mat.Dense {
	d := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.Set(i, j, math.NaN())
		}
	}
	return d
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
