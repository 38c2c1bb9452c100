package movement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/banshee-data/habitat.report/internal/argos"
	"github.com/banshee-data/habitat.report/internal/geo"
	"github.com/banshee-data/habitat.report/internal/monitoring"
)

// FitConfig holds the optimiser settings for Fit.
type FitConfig struct {
	InitialSigma   float64 // starting sigma, (m/h)/sqrt(h)
	InitialBeta    float64 // starting beta, 1/h
	MaxEvaluations int     // likelihood evaluations before the optimiser stops
	Projector      geo.Projector

	// Search bounds. Zero values take the defaults below.
	MinSigma, MaxSigma float64
	MinBeta, MaxBeta   float64
}

// Default search bounds. A near-straight track pushes the likelihood
// towards beta = 0 and sigma = 0, where the state noise vanishes.
const (
	DefaultMinSigma = 1.0
	DefaultMaxSigma = 1e6
	DefaultMinBeta  = 1e-3
	DefaultMaxBeta  = 1e3
)

// DefaultFitConfig returns the settings used when nothing is configured.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		InitialSigma:   5000,
		InitialBeta:    1,
		MaxEvaluations: 400,
		MinSigma:       DefaultMinSigma,
		MaxSigma:       DefaultMaxSigma,
		MinBeta:        DefaultMinBeta,
		MaxBeta:        DefaultMaxBeta,
	}
}

// bound is a closed interval in log space mapped onto the real line with a
// logistic, so the optimiser can search unconstrained.
type bound struct{ lo, hi float64 }

func newBound(lo, hi float64) (bound, error) {
	if lo <= 0 || hi <= lo {
		return bound{}, fmt.Errorf("invalid bounds [%v, %v]", lo, hi)
	}
	return bound{lo: math.Log(lo), hi: math.Log(hi)}, nil
}

func (b bound) value(theta float64) float64 {
	return math.Exp(b.lo + (b.hi-b.lo)/(1+math.Exp(-theta)))
}

// theta inverts value. Starting points on or outside the bounds are pulled
// just inside.
func (b bound) theta(v float64) float64 {
	frac := (math.Log(v) - b.lo) / (b.hi - b.lo)
	frac = math.Min(math.Max(frac, 1e-6), 1-1e-6)
	return math.Log(frac / (1 - frac))
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func (cfg FitConfig) bounds() (sigma, beta bound, err error) {
	sigma, err = newBound(orDefault(cfg.MinSigma, DefaultMinSigma), orDefault(cfg.MaxSigma, DefaultMaxSigma))
	if err != nil {
		return sigma, beta, fmt.Errorf("sigma: %w", err)
	}
	beta, err = newBound(orDefault(cfg.MinBeta, DefaultMinBeta), orDefault(cfg.MaxBeta, DefaultMaxBeta))
	if err != nil {
		return sigma, beta, fmt.Errorf("beta: %w", err)
	}
	return sigma, beta, nil
}

// Location is one position estimate or posterior draw at a fitted timestamp.
type Location struct {
	Time  time.Time
	Point orb.Point // projected metres
	// Standard errors of the smoothed estimate; zero for simulated draws.
	SEX, SEY float64
}

// Model is a fitted CTCRW. It is immutable after Fit and safe for
// concurrent use; Simulate draws only from the source it is given.
type Model struct {
	Params      Params
	LogLik      float64
	Evaluations int

	times []time.Time
	steps []step

	smoothMean []*mat.VecDense
	smoothCov  []*mat.SymDense

	// Backward-sampling terms for k < N-1: x_k | x_k+1 has mean
	// filtMean_k + gain_k (x_k+1 - predMean_k+1) and Cholesky factor condChol_k.
	gain     []*mat.Dense
	condChol []*mat.Cholesky
	lastChol *mat.Cholesky
}

// Fit estimates sigma and beta by maximum likelihood within the configured
// bounds and prepares the smoothing and sampling terms. When the best
// parameters cannot be smoothed, the next best evaluated ones are used.
func Fit(ctx context.Context, fixes []argos.Fix, cfg FitConfig) (*Model, error) {
	if err := validateFixes(fixes); err != nil {
		return nil, err
	}
	if cfg.InitialSigma <= 0 || cfg.InitialBeta <= 0 {
		return nil, fmt.Errorf("initial sigma and beta must be positive, got %v and %v", cfg.InitialSigma, cfg.InitialBeta)
	}
	sb, bb, err := cfg.bounds()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer monitoring.ObserveModelFit(start)

	var tried []candidate
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			p := Params{Sigma: sb.value(theta[0]), Beta: bb.value(theta[1])}
			ll, _, err := kalmanFilter(fixes, p, cfg.Projector)
			if err != nil || math.IsNaN(ll) || math.IsInf(ll, 0) {
				return math.MaxFloat64
			}
			tried = append(tried, candidate{p, ll})
			return -ll
		},
	}
	settings := &optimize.Settings{FuncEvaluations: cfg.MaxEvaluations}
	init := []float64{sb.theta(cfg.InitialSigma), bb.theta(cfg.InitialBeta)}

	res, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{SimplexSize: 0.5})
	if res == nil {
		return nil, fmt.Errorf("optimise CTCRW likelihood: %w", err)
	}
	if err != nil {
		monitoring.Logf("[movement] optimiser stopped early (%v): %v", res.Status, err)
	}
	if res.F == math.MaxFloat64 || len(tried) == 0 {
		return nil, errors.New("optimise CTCRW likelihood: no finite likelihood found")
	}

	best := candidate{Params{Sigma: sb.value(res.X[0]), Beta: bb.value(res.X[1])}, -res.F}
	m, err := smoothBest(ctx, fixes, cfg.Projector, best, tried)
	if err != nil {
		return nil, err
	}
	m.Evaluations = res.Stats.FuncEvaluations
	monitoring.Logf("[movement] fitted %d fixes: sigma=%.1f beta=%.4f loglik=%.2f evals=%d status=%v (%s)",
		len(fixes), m.Params.Sigma, m.Params.Beta, m.LogLik, m.Evaluations, res.Status, time.Since(start).Round(time.Millisecond))
	return m, nil
}

type candidate struct {
	params Params
	logLik float64
}

// smoothBest builds the model for best, falling back through the other
// evaluated parameters in decreasing likelihood until one smooths.
func smoothBest(ctx context.Context, fixes []argos.Fix, proj geo.Projector, best candidate, tried []candidate) (*Model, error) {
	m, firstErr := newModel(fixes, best.params, proj)
	if firstErr == nil {
		return m, nil
	}
	sort.SliceStable(tried, func(i, j int) bool { return tried[i].logLik > tried[j].logLik })
	for _, c := range tried {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.params == best.params {
			continue
		}
		if m, err := newModel(fixes, c.params, proj); err == nil {
			monitoring.Logf("[movement] sigma=%.3g beta=%.3g does not smooth (%v); using sigma=%.3g beta=%.3g",
				best.params.Sigma, best.params.Beta, firstErr, c.params.Sigma, c.params.Beta)
			return m, nil
		}
	}
	return nil, fmt.Errorf("no fitted parameters could be smoothed: %w", firstErr)
}

// NewModel builds a model with fixed parameters, skipping estimation.
func NewModel(fixes []argos.Fix, p Params, proj geo.Projector) (*Model, error) {
	if err := validateFixes(fixes); err != nil {
		return nil, err
	}
	if p.Sigma <= 0 || p.Beta <= 0 {
		return nil, fmt.Errorf("sigma and beta must be positive, got %v and %v", p.Sigma, p.Beta)
	}
	return newModel(fixes, p, proj)
}

func newModel(fixes []argos.Fix, p Params, proj geo.Projector) (*Model, error) {
	ll, steps, err := kalmanFilter(fixes, p, proj)
	if err != nil {
		return nil, fmt.Errorf("kalman filter: %w", err)
	}
	m := &Model{
		Params: p,
		LogLik: ll,
		times:  make([]time.Time, len(fixes)),
		steps:  steps,
	}
	for i, f := range fixes {
		m.times[i] = f.Time
	}
	if err := m.smooth(); err != nil {
		return nil, err
	}
	return m, nil
}

func validateFixes(fixes []argos.Fix) error {
	if len(fixes) < 2 {
		return fmt.Errorf("need at least 2 fixes to fit, got %d", len(fixes))
	}
	for i, f := range fixes {
		if f.SemiMajor <= 0 || f.SemiMinor <= 0 {
			return fmt.Errorf("fix %d: error ellipse axes must be positive", i)
		}
		if i > 0 && !f.Time.After(fixes[i-1].Time) {
			return fmt.Errorf("fix %d: timestamps must be strictly increasing", i)
		}
	}
	return nil
}

// smooth runs the Rauch-Tung-Striebel backward pass and caches the
// backward-sampling gains and conditional covariance factors.
func (m *Model) smooth() error {
	n := len(m.steps)
	m.smoothMean = make([]*mat.VecDense, n)
	m.smoothCov = make([]*mat.SymDense, n)
	m.gain = make([]*mat.Dense, n)
	m.condChol = make([]*mat.Cholesky, n)

	last := m.steps[n-1]
	m.smoothMean[n-1] = last.filtMean
	m.smoothCov[n-1] = last.filtCov
	chol, ok := factorize(last.filtCov)
	if !ok {
		return fmt.Errorf("fix %d: %w", n-1, errSingular)
	}
	m.lastChol = chol

	for k := n - 2; k >= 0; k-- {
		cur, next := m.steps[k], m.steps[k+1]

		predChol, ok := factorize(next.predCov)
		if !ok {
			return fmt.Errorf("fix %d: %w", k+1, errSingular)
		}
		// J = P(k|k) T' P(k+1|k)^-1, from J' = P(k+1|k)^-1 T P(k|k).
		var tp, jt mat.Dense
		tp.Mul(next.trans, cur.filtCov)
		if err := predChol.SolveTo(&jt, &tp); err != nil {
			return fmt.Errorf("fix %d: smoother gain: %w", k, err)
		}
		J := mat.DenseCopyOf(jt.T())
		m.gain[k] = J

		var diff mat.VecDense
		diff.SubVec(m.smoothMean[k+1], next.predMean)
		mean := mat.NewVecDense(stateDim, nil)
		mean.MulVec(J, &diff)
		mean.AddVec(mean, cur.filtMean)
		m.smoothMean[k] = mean

		var dc, jdc, jdcj mat.Dense
		dc.Sub(m.smoothCov[k+1], next.predCov)
		jdc.Mul(J, &dc)
		jdcj.Mul(&jdc, J.T())
		jdcj.Add(&jdcj, cur.filtCov)
		m.smoothCov[k] = symmetrize(&jdcj)

		// Conditional covariance P(k|k) - J P(k+1|k) J', written as
		// (I - J T) P(k|k) (I - J T)' + J Q J' so rounding cannot make it
		// indefinite.
		var jT, ijt, a, cond, jq, jqj mat.Dense
		jT.Mul(J, next.trans)
		ijt.Sub(identity(stateDim), &jT)
		a.Mul(&ijt, cur.filtCov)
		cond.Mul(&a, ijt.T())
		jq.Mul(J, next.noise)
		jqj.Mul(&jq, J.T())
		cond.Add(&cond, &jqj)
		cc, ok := factorize(symmetrize(&cond))
		if !ok {
			return fmt.Errorf("fix %d: conditional covariance: %w", k, errSingular)
		}
		m.condChol[k] = cc
	}
	return nil
}

// Times returns a copy of the timestamps the model was fitted on.
func (m *Model) Times() []time.Time {
	out := make([]time.Time, len(m.times))
	copy(out, m.times)
	return out
}

// Len is the number of fitted fixes.
func (m *Model) Len() int { return len(m.times) }

// Predict returns the smoothed location at every fitted timestamp.
func (m *Model) Predict() []Location {
	out := make([]Location, len(m.times))
	for k := range m.times {
		mean, cov := m.smoothMean[k], m.smoothCov[k]
		out[k] = Location{
			Time:  m.times[k],
			Point: orb.Point{mean.AtVec(0), mean.AtVec(2)},
			SEX:   math.Sqrt(math.Max(cov.At(0, 0), 0)),
			SEY:   math.Sqrt(math.Max(cov.At(2, 2), 0)),
		}
	}
	return out
}

// Simulate draws one joint sample of the true track from the smoothing
// posterior by backward sampling, conditioned on all fixes. Draws made
// from independent sources are independent.
func (m *Model) Simulate(src rand.Source) ([]Location, error) {
	if src == nil {
		return nil, errors.New("simulate: nil random source")
	}
	n := len(m.steps)
	out := make([]Location, n)

	x := make([]float64, stateDim)
	distmv.NormalRand(x, m.steps[n-1].filtMean.RawVector().Data, m.lastChol, src)
	if !finite(x) {
		return nil, fmt.Errorf("simulate: non-finite draw at fix %d", n-1)
	}
	out[n-1] = Location{Time: m.times[n-1], Point: orb.Point{x[0], x[2]}}

	next := mat.NewVecDense(stateDim, x)
	for k := n - 2; k >= 0; k-- {
		var diff, shift mat.VecDense
		diff.SubVec(next, m.steps[k+1].predMean)
		shift.MulVec(m.gain[k], &diff)
		shift.AddVec(&shift, m.steps[k].filtMean)

		draw := make([]float64, stateDim)
		distmv.NormalRand(draw, shift.RawVector().Data, m.condChol[k], src)
		if !finite(draw) {
			return nil, fmt.Errorf("simulate: non-finite draw at fix %d", k)
		}
		out[k] = Location{Time: m.times[k], Point: orb.Point{draw[0], draw[2]}}
		next = mat.NewVecDense(stateDim, draw)
	}
	return out, nil
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
