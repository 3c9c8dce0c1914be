package calibrate

import (
	"errors"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// maxIterations caps the optimizer's major iterations.
const maxIterations = 100

// stalledGradTol is the gradient norm below which a stalled linesearch
// counts as convergence.
const stalledGradTol = 1e-6

// FitResult reports the optimizer's terminal state.
type FitResult struct {
	Values     []float64
	RMSE       float64
	Converged  bool
	Iterations int
}

// minimizeBounded runs L-BFGS over the logistic-transformed search space and
// returns the fitted values in parameter space. The gradient is taken by
// central finite differences; the objective has no analytic derivative.
func minimizeBounded(objective func([]float64) float64, initial []float64, bounds []Bound) (*FitResult, error) {
	if len(initial) != len(bounds) {
		return nil, eris.Errorf("calibrate: %d initial values for %d bounds", len(initial), len(bounds))
	}

	wrapped := func(z []float64) float64 {
		return objective(boundedVector(z, bounds))
	}

	z0 := make([]float64, len(initial))
	for i, v := range initial {
		z0[i] = toUnbounded(v, bounds[i])
	}

	problem := optimize.Problem{
		Func: wrapped,
		Grad: func(grad, z []float64) {
			fd.Gradient(grad, wrapped, z, nil)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maxIterations,
	}

	result, err := optimize.Minimize(problem, z0, settings, &optimize.LBFGS{})
	if result == nil {
		return nil, eris.Wrap(err, "calibrate: minimize")
	}

	converged := false
	switch result.Status {
	case optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence:
		converged = err == nil
	default:
		// L-BFGS over a finite-difference gradient routinely stalls the
		// linesearch once the iterate reaches the optimum. A stalled
		// iterate with a near-zero gradient is a converged fit.
		if errors.Is(err, optimize.ErrLinesearcherFailure) &&
			len(result.Gradient) > 0 && floats.Norm(result.Gradient, 2) < stalledGradTol {
			converged = true
		}
	}

	return &FitResult{
		Values:     boundedVector(result.X, bounds),
		RMSE:       result.F,
		Converged:  converged,
		Iterations: result.Stats.MajorIterations,
	}, nil
}

func boundedVector(z []float64, bounds []Bound) []float64 {
	out := make([]float64, len(z))
	for i := range z {
		out[i] = toBounded(z[i], bounds[i])
	}
	return out
}
