package symjit

import (
	"math"
	"testing"
)

func TestLineSearchQuadraticIsNewtonExact(t *testing.T) {
	// l(lambda) = 36*lambda^2 + 36*lambda + 9, matching spec scenario 1:
	// f=(x0-3)^2 at x0=0 with gradient -6.
	l := func(lambda float64) float64 { return 36*lambda*lambda + 36*lambda + 9 }
	lp := func(lambda float64) float64 { return 72*lambda + 36 }

	result := LineSearch(l, lp, DefaultLineSearchConfig())
	if math.Abs(result.Lambda-(-0.5)) > 1e-9 {
		t.Fatalf("Lambda = %g, want -0.5", result.Lambda)
	}
}

func TestLineSearchAtStationaryPointReturnsZero(t *testing.T) {
	l := func(lambda float64) float64 { return (lambda) * (lambda) }
	lp := func(lambda float64) float64 { return 2 * lambda }
	// Already at the minimizer (lambda=0 has l'(0)=0).
	result := LineSearch(l, lp, DefaultLineSearchConfig())
	if result.Lambda != 0 {
		t.Fatalf("Lambda = %g, want 0 (already stationary)", result.Lambda)
	}
}

func TestLineSearchNonQuadraticConverges(t *testing.T) {
	// l(lambda) = (lambda-2)^4 + 1, minimized at lambda=2, l=1.
	l := func(lambda float64) float64 { v := lambda - 2; return v*v*v*v + 1 }
	lp := func(lambda float64) float64 { v := lambda - 2; return 4 * v * v * v }

	cfg := DefaultLineSearchConfig()
	cfg.MaxIters = 200
	result := LineSearch(l, lp, cfg)
	if got := l(result.Lambda); math.Abs(got-1) > 1e-4 {
		t.Fatalf("l(lambda*) = %g, want close to 1", got)
	}
}

func TestNewtonStepEstimateExactForQuadratic(t *testing.T) {
	l := func(lambda float64) float64 { return 3*lambda*lambda - 4*lambda + 1 }
	step := newtonStepEstimate(l, l(0), -4, 1)
	// minimizer at lambda=2/3
	if math.Abs(step-2.0/3.0) > 1e-6 {
		t.Fatalf("newtonStepEstimate = %g, want 2/3", step)
	}
}

func TestNewtonStepEstimateFallsBackOnFlatCurvature(t *testing.T) {
	l := func(lambda float64) float64 { return 5 + 2*lambda } // linear, zero curvature
	step := newtonStepEstimate(l, 5, 2, 99)
	if step != 99 {
		t.Fatalf("newtonStepEstimate = %g, want fallback 99", step)
	}
}

func TestSignDiffers(t *testing.T) {
	cases := []struct {
		a, b float64
		want bool
	}{
		{1, -1, true},
		{-1, 1, true},
		{1, 1, false},
		{0, 1, false},
		{0, -1, false},
	}
	for _, c := range cases {
		if got := signDiffers(c.a, c.b); got != c.want {
			t.Errorf("signDiffers(%g, %g) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
