// Package movement fits a continuous-time correlated random walk (CTCRW)
// state-space model to Argos fixes and exposes smoothed predictions and
// posterior simulation at the fitted timestamps.
//
// Each planar axis carries position and an Ornstein-Uhlenbeck velocity
// (dv = -beta*v dt + sigma dW). The state vector is [x, vx, y, vy] in
// projected metres and metres/hour; time is measured in hours.
package movement

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/habitat.report/internal/argos"
	"github.com/banshee-data/habitat.report/internal/geo"
)

const stateDim = 4

// Params are the CTCRW parameters.
type Params struct {
	Sigma float64 // velocity diffusion, (m/h)/sqrt(h)
	Beta  float64 // velocity mean-reversion rate, 1/h
}

// StationaryVelocityVar is the long-run variance of each velocity component.
func (p Params) StationaryVelocityVar() float64 {
	return p.Sigma * p.Sigma / (2 * p.Beta)
}

// observation selects x and y from the state.
var observation = mat.NewDense(2, stateDim, []float64{
	1, 0, 0, 0,
	0, 0, 1, 0,
})

// maxInitialVelocityVar caps the prior velocity variance at the first fix,
// (m/h)^2. The stationary variance grows without bound as beta shrinks.
const maxInitialVelocityVar = 1e10

// initialVelocityVar is the prior variance of each velocity component.
func (p Params) initialVelocityVar() float64 {
	return math.Min(p.StationaryVelocityVar(), maxInitialVelocityVar)
}

// transition returns the state transition T and process noise Q for a step
// of dt hours. Terms are written with expm1 so they stay accurate when
// beta*dt is small.
func transition(p Params, dt float64) (*mat.Dense, *mat.SymDense) {
	b, s2 := p.Beta, p.Sigma*p.Sigma
	x := b * dt
	em1 := -math.Expm1(-x)     // 1 - exp(-beta dt)
	em2 := -math.Expm1(-2 * x) // 1 - exp(-2 beta dt)
	e := 1 - em1

	t01 := em1 / b
	T := mat.NewDense(stateDim, stateDim, []float64{
		1, t01, 0, 0,
		0, e, 0, 0,
		0, 0, 1, t01,
		0, 0, 0, e,
	})

	qPos := s2 * dt * dt * dt * integratedPositionVar(x)
	qCross := s2 / 2 * t01 * t01
	qVel := s2 / (2 * b) * em2
	Q := mat.NewSymDense(stateDim, []float64{
		qPos, qCross, 0, 0,
		qCross, qVel, 0, 0,
		0, 0, qPos, qCross,
		0, 0, qCross, qVel,
	})
	return T, Q
}

// integratedPositionVar returns (x - 2(1-e^-x) + (1-e^-2x)/2) / x^3, the
// position noise of an integrated OU velocity per sigma^2 dt^3. The closed
// form cancels catastrophically for small x, so a power series is used
// there; its limit at zero is 1/3.
func integratedPositionVar(x float64) float64 {
	if x >= 0.1 {
		return (x + 2*math.Expm1(-x) - math.Expm1(-2*x)/2) / (x * x * x)
	}
	// Coefficient of x^k is (-1)^(k+1) (2^(k-1) - 2) / k!.
	sum, term := 0.0, 1.0/6 // term = x^(k-3) / k!
	pow2 := 4.0             // 2^(k-1)
	sign := 1.0
	for k := 3; k <= 20; k++ {
		sum += sign * (pow2 - 2) * term
		term *= x / float64(k+1)
		pow2 *= 2
		sign = -sign
	}
	return sum
}

// ellipseCovariance converts an Argos error ellipse into a 2x2 covariance
// in projected metres. Axes are scaled by the projection's scale factor at
// the fix latitude.
func ellipseCovariance(f argos.Fix, proj geo.Projector) *mat.SymDense {
	scale := proj.ScaleAt(f.Lat)
	M := f.SemiMajor / math.Sqrt2 * scale
	m := f.SemiMinor / math.Sqrt2 * scale
	s, c := math.Sincos(f.Orientation * math.Pi / 180)

	M2, m2 := M*M, m*m
	return mat.NewSymDense(2, []float64{
		M2*s*s + m2*c*c, (M2 - m2) * s * c,
		(M2 - m2) * s * c, M2*c*c + m2*s*s,
	})
}

// symmetrize returns (A + A^T)/2 as a SymDense.
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return out
}

// factorize computes a Cholesky factorisation, adding diagonal jitter when
// the matrix is numerically semi-definite.
func factorize(a *mat.SymDense) (*mat.Cholesky, bool) {
	var chol mat.Cholesky
	if chol.Factorize(a) {
		return &chol, true
	}
	n := a.SymmetricDim()
	scale := 0.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(a.At(i, i)))
	}
	if scale == 0 {
		scale = 1
	}
	jittered := mat.NewSymDense(n, nil)
	for eps := 1e-12; eps <= 1e-4; eps *= 100 {
		jittered.CopySym(a)
		for i := 0; i < n; i++ {
			jittered.SetSym(i, i, a.At(i, i)+eps*scale)
		}
		if chol.Factorize(jittered) {
			return &chol, true
		}
	}
	return nil, false
}
