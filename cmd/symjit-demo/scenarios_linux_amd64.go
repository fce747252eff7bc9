//go:build linux && amd64

package main

import (
	"fmt"
	"math"

	"github.com/oxcart-labs/symjit"
)

const scratchExtras = 8

// scenarioQuadratic reproduces spec scenario 1: x[0]=0, f=(x0-3)^2. The
// gradient is -6 at the origin, and because f is quadratic the line
// search's Newton-estimated first step lands exactly on the minimizer,
// lambda*=-0.5, moving x0 to 3 and f to 0.
func scenarioQuadratic(ctx *CommandContext) error {
	sess, err := symjit.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Set(symjit.P(0), 0); err != nil {
		return err
	}
	store := sess.Store()
	x0, err := sess.Var(symjit.P(0))
	if err != nil {
		return err
	}
	f := store.Sqr(store.Sub(x0, store.Const(3)))

	cfg, err := sess.Freeze()
	if err != nil {
		return err
	}
	diff := symjit.NewDifferentiator(store, cfg)
	g, err := diff.Gradient(f)
	if err != nil {
		return err
	}
	lineFn, err := symjit.BuildLineFunction(store, cfg, f, g)
	if err != nil {
		return err
	}
	lineDeriv, err := diff.DifferentiateByLambda(lineFn)
	if err != nil {
		return err
	}

	jit, err := symjit.NewJITCompiler(store, cfg, scratchExtras)
	if err != nil {
		return err
	}
	defer jit.Close()
	fFn, err := jit.CompileRoot(f)
	if err != nil {
		return err
	}
	gFn, err := jit.CompileVector(g)
	if err != nil {
		return err
	}
	lFn, err := jit.CompileRoot(lineFn)
	if err != nil {
		return err
	}
	lpFn, err := jit.CompileRoot(lineDeriv)
	if err != nil {
		return err
	}
	if err := jit.Finalize(); err != nil {
		return err
	}

	jctx := jit.NewContext()
	vars := cfg.Values()

	jctx.MarkNewPoint()
	if _, err := jctx.Call(fFn, vars); err != nil {
		return err
	}
	if _, err := jctx.Call(gFn, vars); err != nil {
		return err
	}
	gvals := jctx.VectorOutput(len(g))
	if ctx.Verbose {
		fmt.Printf("g[0] = %g\n", gvals[0])
	}

	l := func(lambda float64) float64 {
		jctx.MarkNewPoint()
		jctx.SetLambda(lambda)
		_, _ = jctx.Call(fFn, vars)
		_, _ = jctx.Call(gFn, vars)
		v, _ := jctx.Call(lFn, vars)
		return v
	}
	lprime := func(lambda float64) float64 {
		jctx.MarkNewPoint()
		jctx.SetLambda(lambda)
		_, _ = jctx.Call(fFn, vars)
		_, _ = jctx.Call(gFn, vars)
		_, _ = jctx.Call(lFn, vars)
		v, _ := jctx.Call(lpFn, vars)
		return v
	}

	result := symjit.LineSearch(l, lprime, symjit.DefaultLineSearchConfig())
	fmt.Printf("lambda* = %g\n", result.Lambda)

	if err := cfg.MoveAlongGradient(vars, gvals, result.Lambda); err != nil {
		return err
	}
	jctx.MarkNewPoint()
	fval, err := jctx.Call(fFn, vars)
	if err != nil {
		return err
	}
	fmt.Printf("x[0] = %g, f = %g\n", vars[0], fval)
	return nil
}

// scenarioSineValley reproduces spec scenario 2: x[0]=0, f=2-sin(0.35*x0-0.75).
// Unlike the quadratic, one Newton step does not land on the minimizer, so
// this loops gradient-descent-by-line-search until f is within 1e-6 of the
// valley floor, 1.0.
func scenarioSineValley(ctx *CommandContext) error {
	sess, err := symjit.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Set(symjit.P(0), 0); err != nil {
		return err
	}
	store := sess.Store()
	x0, err := sess.Var(symjit.P(0))
	if err != nil {
		return err
	}
	inner := store.Sub(store.Mul(store.Const(0.35), x0), store.Const(0.75))
	f := store.Sub(store.Const(2), store.Sin(inner))

	cfg, err := sess.Freeze()
	if err != nil {
		return err
	}
	diff := symjit.NewDifferentiator(store, cfg)
	g, err := diff.Gradient(f)
	if err != nil {
		return err
	}
	lineFn, err := symjit.BuildLineFunction(store, cfg, f, g)
	if err != nil {
		return err
	}
	lineDeriv, err := diff.DifferentiateByLambda(lineFn)
	if err != nil {
		return err
	}

	jit, err := symjit.NewJITCompiler(store, cfg, scratchExtras)
	if err != nil {
		return err
	}
	defer jit.Close()
	fFn, err := jit.CompileRoot(f)
	if err != nil {
		return err
	}
	gFn, err := jit.CompileVector(g)
	if err != nil {
		return err
	}
	lFn, err := jit.CompileRoot(lineFn)
	if err != nil {
		return err
	}
	lpFn, err := jit.CompileRoot(lineDeriv)
	if err != nil {
		return err
	}
	if err := jit.Finalize(); err != nil {
		return err
	}

	jctx := jit.NewContext()
	vars := cfg.Values()

	const maxOuterIters = 50
	var fval float64
	for iter := 0; iter < maxOuterIters; iter++ {
		jctx.MarkNewPoint()
		fval, err = jctx.Call(fFn, vars)
		if err != nil {
			return err
		}
		if math.Abs(fval-1.0) < 1e-6 {
			break
		}
		if _, err := jctx.Call(gFn, vars); err != nil {
			return err
		}
		gvals := jctx.VectorOutput(len(g))

		l := func(lambda float64) float64 {
			jctx.MarkNewPoint()
			jctx.SetLambda(lambda)
			_, _ = jctx.Call(fFn, vars)
			_, _ = jctx.Call(gFn, vars)
			v, _ := jctx.Call(lFn, vars)
			return v
		}
		lprime := func(lambda float64) float64 {
			jctx.MarkNewPoint()
			jctx.SetLambda(lambda)
			_, _ = jctx.Call(fFn, vars)
			_, _ = jctx.Call(gFn, vars)
			_, _ = jctx.Call(lFn, vars)
			v, _ := jctx.Call(lpFn, vars)
			return v
		}
		result := symjit.LineSearch(l, lprime, symjit.DefaultLineSearchConfig())
		if err := cfg.MoveAlongGradient(vars, gvals, result.Lambda); err != nil {
			return err
		}
		if ctx.Verbose {
			fmt.Printf("iter %d: x[0]=%g f=%g\n", iter, vars[0], fval)
		}
	}
	fmt.Printf("x[0] = %g, f = %g (target 1.0)\n", vars[0], fval)
	return nil
}

// scenarioExponential reproduces spec scenario 3: x["c"]=0, f=exp(c), and
// checks that the JIT-compiled value matches math.Exp bit for bit over
// {-2,-1,0,1,2}.
func scenarioExponential(ctx *CommandContext) error {
	sess, err := symjit.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Set(symjit.P("c"), 0); err != nil {
		return err
	}
	store := sess.Store()
	c, err := sess.Var(symjit.P("c"))
	if err != nil {
		return err
	}
	f := store.Exp(c)

	cfg, err := sess.Freeze()
	if err != nil {
		return err
	}
	jit, err := symjit.NewJITCompiler(store, cfg, scratchExtras)
	if err != nil {
		return err
	}
	defer jit.Close()
	fFn, err := jit.CompileRoot(f)
	if err != nil {
		return err
	}
	if err := jit.Finalize(); err != nil {
		return err
	}
	jctx := jit.NewContext()
	vars := cfg.Values()

	for _, x := range []float64{-2, -1, 0, 1, 2} {
		vars[0] = x
		jctx.MarkNewPoint()
		got, err := jctx.Call(fFn, vars)
		if err != nil {
			return err
		}
		want := math.Exp(x)
		match := got == want
		fmt.Printf("exp(%g) = %g (host: %g, bit-equal: %v)\n", x, got, want, match)
		if !match {
			return fmt.Errorf("exp(%g): compiled value diverged from host math.Exp", x)
		}
	}
	return nil
}

// scenarioVectorOutputs reproduces spec scenario 4: x["a"]=10, x["b"]=5,
// compiled as one vector-output function returning {a+b, a-b, a*b, a/b}.
func scenarioVectorOutputs(ctx *CommandContext) error {
	sess, err := symjit.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Set(symjit.P("a"), 10); err != nil {
		return err
	}
	if err := sess.Set(symjit.P("b"), 5); err != nil {
		return err
	}
	store := sess.Store()
	a, err := sess.Var(symjit.P("a"))
	if err != nil {
		return err
	}
	b, err := sess.Var(symjit.P("b"))
	if err != nil {
		return err
	}
	roots := []symjit.Handle{
		store.Add(a, b),
		store.Sub(a, b),
		store.Mul(a, b),
		store.Div(a, b),
	}
	vec, err := store.BuildVector(roots)
	if err != nil {
		return err
	}

	cfg, err := sess.Freeze()
	if err != nil {
		return err
	}
	jit, err := symjit.NewJITCompiler(store, cfg, scratchExtras)
	if err != nil {
		return err
	}
	defer jit.Close()
	vecFn, err := jit.CompileVectorFunc(vec)
	if err != nil {
		return err
	}
	if err := jit.Finalize(); err != nil {
		return err
	}
	jctx := jit.NewContext()
	vars := cfg.Values()

	jctx.MarkNewPoint()
	if _, err := jctx.Call(vecFn, vars); err != nil {
		return err
	}
	out := jctx.VectorOutput(len(roots))
	fmt.Printf("{a+b, a-b, a*b, a/b} = %v\n", out)
	return nil
}

// scenarioConstantFreeze reproduces spec scenario 5: leaves one, two, three
// start at 1, 2, 3; two and three are marked constant; after freeze,
// is_constant=[false,true,true], and move_along_gradient shifts one only.
func scenarioConstantFreeze(ctx *CommandContext) error {
	sess, err := symjit.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Set(symjit.P("one"), 1); err != nil {
		return err
	}
	if err := sess.Set(symjit.P("two"), 2); err != nil {
		return err
	}
	if err := sess.Set(symjit.P("three"), 3); err != nil {
		return err
	}
	if err := sess.SetConstant(symjit.P("two")); err != nil {
		return err
	}
	if err := sess.SetConstant(symjit.P("three")); err != nil {
		return err
	}

	store := sess.Store()
	one, err := sess.Var(symjit.P("one"))
	if err != nil {
		return err
	}
	two, err := sess.Var(symjit.P("two"))
	if err != nil {
		return err
	}
	three, err := sess.Var(symjit.P("three"))
	if err != nil {
		return err
	}
	f := store.Add(one, store.Add(two, three))

	cfg, err := sess.Freeze()
	if err != nil {
		return err
	}
	isConst := make([]bool, cfg.N())
	for i := 0; i < cfg.N(); i++ {
		isConst[i] = cfg.IsConstant(i)
	}
	fmt.Printf("is_constant = %v\n", isConst)

	diff := symjit.NewDifferentiator(store, cfg)
	g, err := diff.Gradient(f)
	if err != nil {
		return err
	}
	jit, err := symjit.NewJITCompiler(store, cfg, scratchExtras)
	if err != nil {
		return err
	}
	defer jit.Close()
	gFn, err := jit.CompileVector(g)
	if err != nil {
		return err
	}
	if err := jit.Finalize(); err != nil {
		return err
	}
	jctx := jit.NewContext()
	vars := cfg.Values()
	jctx.MarkNewPoint()
	if _, err := jctx.Call(gFn, vars); err != nil {
		return err
	}
	gvals := jctx.VectorOutput(len(g))

	before := append([]float64{}, vars...)
	if err := cfg.MoveAlongGradient(vars, gvals, 1.0); err != nil {
		return err
	}
	fmt.Printf("before = %v, after = %v\n", before, vars)
	return nil
}

// scenarioOrderRule reproduces spec scenario 6: compile f then g=grad(f) in
// one scope. Calling g before f on a fresh point fails PrerequisiteNotMet;
// after mark_new_point(); f(x); g(x) succeeds.
func scenarioOrderRule(ctx *CommandContext) error {
	sess, err := symjit.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Set(symjit.P(0), 2); err != nil {
		return err
	}
	store := sess.Store()
	x0, err := sess.Var(symjit.P(0))
	if err != nil {
		return err
	}
	f := store.Sqr(x0)

	cfg, err := sess.Freeze()
	if err != nil {
		return err
	}
	diff := symjit.NewDifferentiator(store, cfg)
	g, err := diff.Gradient(f)
	if err != nil {
		return err
	}

	jit, err := symjit.NewJITCompiler(store, cfg, scratchExtras)
	if err != nil {
		return err
	}
	defer jit.Close()
	fFn, err := jit.CompileRoot(f)
	if err != nil {
		return err
	}
	gFn, err := jit.CompileVector(g)
	if err != nil {
		return err
	}
	if err := jit.Finalize(); err != nil {
		return err
	}
	jctx := jit.NewContext()
	vars := cfg.Values()

	jctx.MarkNewPoint()
	_, err = jctx.Call(gFn, vars)
	if err == nil || !symjit.Is(err, symjit.KindPrerequisiteNotMet) {
		return fmt.Errorf("expected PrerequisiteNotMet calling g before f, got %v", err)
	}
	fmt.Printf("calling g before f: %v\n", err)

	jctx.MarkNewPoint()
	if _, err := jctx.Call(fFn, vars); err != nil {
		return err
	}
	if _, err := jctx.Call(gFn, vars); err != nil {
		return err
	}
	fmt.Println("mark_new_point(); f(x); g(x) succeeded")
	return nil
}
