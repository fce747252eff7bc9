package symjit

import "math"

// LineSearchConfig carries the search's tunable constants: the bracketing
// growth factor, the default initial step when no Newton estimate is
// available, and one iteration cap, MaxIters, shared by the bracketing
// loop, bisection-on-derivative and the binary-minimize fallback. The
// iteration cap is overridable via
// SYMJIT_LINESEARCH_MAX_ITERS (see Config); the rest are hardcoded.
type LineSearchConfig struct {
	DefaultInitialStep float64
	BracketGrowth      float64
	MaxIters           int
}

// DefaultLineSearchConfig returns the library's defaults, honoring
// SYMJIT_LINESEARCH_MAX_ITERS if set.
func DefaultLineSearchConfig() LineSearchConfig {
	return LineSearchConfig{
		DefaultInitialStep: 1.0,
		BracketGrowth:      2.0,
		MaxIters:           LoadConfig().LineSearchMaxIters,
	}
}

// PathPoint is one probe recorded during bracketing or refinement, for
// diagnostics and plotting.
type PathPoint struct {
	Lambda float64
	F      float64
	Fprime float64
}

// LineSearchResult is the outcome of LineSearch: the best step found,
// and the two diagnostic paths recorded during refinement (Path1 from
// bisection-on-the-derivative, Path2 from the binary-minimize fallback,
// whichever one refinement actually took; the other stays nil).
type LineSearchResult struct {
	Lambda float64
	Path1  []PathPoint
	Path2  []PathPoint
}

// LineSearch finds an approximately-minimizing step along l, given l and
// its derivative as plain closures (typically backed by a JITCallContext
// evaluating a line function built with BuildLineFunction, but the
// algorithm itself has no JIT dependency).
//
// The bracket search seeds itself at the Newton step -l'(0)/l''(0), where
// l''(0) is estimated by a central finite difference on l rather than by
// a second symbolic differentiation (this engine's differentiator has no
// Hessian, by design — see DESIGN.md). For a quadratic l the finite
// difference has no truncation error, so the estimate is exact and the
// bracket search's first probe already lands on the true minimizer for a
// quadratic l, without needing a second derivative rule.
func LineSearch(l, lprime func(lambda float64) float64, cfg LineSearchConfig) LineSearchResult {
	f0 := l(0)
	fp0 := lprime(0)
	if fp0 == 0 {
		return LineSearchResult{Lambda: 0}
	}

	step := newtonStepEstimate(l, f0, fp0, cfg.DefaultInitialStep)
	// Bracket search always moves downhill from lambda=0: the sign of
	// fp0 tells us which direction decreases l.
	if (fp0 > 0 && step > 0) || (fp0 < 0 && step < 0) {
		step = -step
	}

	lo, hi := 0.0, step
	loF, loFp := f0, fp0
	hiF, hiFp := l(hi), lprime(hi)
	if hiFp == 0 {
		// The Newton step landed exactly on a stationary point (always
		// true for a quadratic l): nothing left to bracket or refine.
		return LineSearchResult{Lambda: hi}
	}
	best, bestF := 0.0, f0
	if hiF < bestF {
		best, bestF = hi, hiF
	}

	bracketed := signDiffers(loFp, hiFp) || hiF > loF
	for i := 0; i < cfg.MaxIters && !bracketed; i++ {
		lo, loF, loFp = hi, hiF, hiFp
		hi *= cfg.BracketGrowth
		hiF, hiFp = l(hi), lprime(hi)
		if hiF < bestF {
			best, bestF = hi, hiF
		}
		bracketed = signDiffers(loFp, hiFp) || hiF > loF
	}

	result := LineSearchResult{Lambda: best}

	if bracketed && signDiffers(loFp, hiFp) {
		lambda, path1 := bisectOnDerivative(l, lprime, lo, loFp, hi, hiFp, cfg.MaxIters)
		result.Path1 = path1
		if v := l(lambda); v < bestF {
			best, bestF = lambda, v
		}
	} else {
		lambda, path2 := binaryMinimize(l, lo, hi, cfg.MaxIters)
		result.Path2 = path2
		if v := l(lambda); v < bestF {
			best, bestF = lambda, v
		}
	}

	result.Lambda = best
	return result
}

// newtonStepEstimate returns -fp0/l''(0), with l''(0) from a central
// finite difference at a fixed small h. Falls back to fallback if the
// estimated curvature is too close to zero to divide by safely.
func newtonStepEstimate(l func(float64) float64, f0, fp0, fallback float64) float64 {
	const h = 1e-3
	curvature := (l(h) + l(-h) - 2*f0) / (h * h)
	if math.Abs(curvature) < 1e-12 {
		return fallback
	}
	return -fp0 / curvature
}

func signDiffers(a, b float64) bool {
	return (a < 0 && b > 0) || (a > 0 && b < 0)
}

// bisectOnDerivative narrows [lo,hi] by evaluating l' at the midpoint and
// keeping the half whose endpoints still bracket a sign change.
func bisectOnDerivative(l, lprime func(float64) float64, lo, loFp, hi, hiFp float64, maxIters int) (float64, []PathPoint) {
	path := make([]PathPoint, 0, maxIters)
	for i := 0; i < maxIters; i++ {
		mid := (lo + hi) / 2
		midFp := lprime(mid)
		path = append(path, PathPoint{Lambda: mid, F: l(mid), Fprime: midFp})
		if midFp == 0 {
			return mid, path
		}
		if signDiffers(loFp, midFp) {
			hi, hiFp = mid, midFp
		} else {
			lo, loFp = mid, midFp
		}
	}
	return (lo + hi) / 2, path
}

// binaryMinimize narrows [lo,hi] by comparing l at two interior points
// when the derivative never bracketed a sign change within budget.
func binaryMinimize(l func(float64) float64, lo, hi float64, maxIters int) (float64, []PathPoint) {
	path := make([]PathPoint, 0, maxIters)
	for i := 0; i < maxIters; i++ {
		m1 := lo + (hi-lo)/3
		m2 := hi - (hi-lo)/3
		f1, f2 := l(m1), l(m2)
		path = append(path, PathPoint{Lambda: m1, F: f1}, PathPoint{Lambda: m2, F: f2})
		if f1 < f2 {
			hi = m2
		} else {
			lo = m1
		}
		if math.Abs(hi-lo) < 1e-12 {
			break
		}
	}
	return (lo + hi) / 2, path
}
