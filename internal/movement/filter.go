package movement

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/habitat.report/internal/argos"
	"github.com/banshee-data/habitat.report/internal/geo"
)

var errSingular = errors.New("singular covariance")

// step holds the Kalman moments at one fix. pred* are the one-step-ahead
// moments m(k|k-1), P(k|k-1); filt* are m(k|k), P(k|k). trans is the
// transition from fix k-1 to k and noise its process noise; both are nil
// for k = 0.
type step struct {
	predMean *mat.VecDense
	predCov  *mat.SymDense
	filtMean *mat.VecDense
	filtCov  *mat.SymDense
	trans    *mat.Dense
	noise    *mat.SymDense
}

// kalmanFilter runs the forward pass and returns the log-likelihood of
// fixes[1:] given the first fix, plus the moments needed for smoothing
// and sampling.
func kalmanFilter(fixes []argos.Fix, p Params, proj geo.Projector) (float64, []step, error) {
	steps := make([]step, len(fixes))

	// Initialise at the first fix: its ellipse for position, the capped
	// stationary variance for velocity.
	r0 := ellipseCovariance(fixes[0], proj)
	vv := p.initialVelocityVar()
	m0 := mat.NewVecDense(stateDim, []float64{fixes[0].X, 0, fixes[0].Y, 0})
	p0 := mat.NewSymDense(stateDim, []float64{
		r0.At(0, 0), 0, r0.At(0, 1), 0,
		0, vv, 0, 0,
		r0.At(1, 0), 0, r0.At(1, 1), 0,
		0, 0, 0, vv,
	})
	steps[0] = step{predMean: m0, predCov: p0, filtMean: m0, filtCov: p0}

	var logLik float64
	ident := identity(stateDim)
	for k := 1; k < len(fixes); k++ {
		dt := fixes[k].Time.Sub(fixes[k-1].Time).Hours()
		T, Q := transition(p, dt)

		prev := steps[k-1]
		predMean := mat.NewVecDense(stateDim, nil)
		predMean.MulVec(T, prev.filtMean)

		var tp, tpt mat.Dense
		tp.Mul(T, prev.filtCov)
		tpt.Mul(&tp, T.T())
		tpt.Add(&tpt, Q)
		predCov := symmetrize(&tpt)

		R := ellipseCovariance(fixes[k], proj)

		// Innovation and its covariance S = H P H' + R.
		var hp, hph mat.Dense
		hp.Mul(observation, predCov)
		hph.Mul(&hp, observation.T())
		hph.Add(&hph, R)
		S := symmetrize(&hph)

		var chol mat.Cholesky
		if !chol.Factorize(S) {
			return math.Inf(-1), nil, errSingular
		}

		innov := mat.NewVecDense(2, []float64{
			fixes[k].X - predMean.AtVec(0),
			fixes[k].Y - predMean.AtVec(2),
		})
		var sInvInnov mat.VecDense
		if err := chol.SolveVecTo(&sInvInnov, innov); err != nil {
			return math.Inf(-1), nil, err
		}
		logLik -= 0.5 * (chol.LogDet() + mat.Dot(innov, &sInvInnov) + 2*math.Log(2*math.Pi))

		// Gain K = P H' S^-1, computed as K' = S^-1 H P.
		var kt mat.Dense
		if err := chol.SolveTo(&kt, &hp); err != nil {
			return math.Inf(-1), nil, err
		}
		K := kt.T()

		filtMean := mat.NewVecDense(stateDim, nil)
		filtMean.MulVec(K, innov)
		filtMean.AddVec(filtMean, predMean)

		// Joseph form: (I-KH) P (I-KH)' + K R K'.
		var kh, ikh, a, joseph, kr, krk mat.Dense
		kh.Mul(K, observation)
		ikh.Sub(ident, &kh)
		a.Mul(&ikh, predCov)
		joseph.Mul(&a, ikh.T())
		kr.Mul(K, R)
		krk.Mul(&kr, &kt)
		joseph.Add(&joseph, &krk)

		steps[k] = step{
			predMean: predMean,
			predCov:  predCov,
			filtMean: filtMean,
			filtCov:  symmetrize(&joseph),
			trans:    T,
			noise:    Q,
		}
	}
	return logLik, steps, nil
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}
