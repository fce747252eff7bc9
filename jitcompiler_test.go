//go:build linux && amd64

package symjit

import (
	"math"
	"testing"
)

func TestJITCompileRootScalarArithmetic(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x", "y"}, []float64{2, 3})
	f := store.Add(store.Mul(vars[0], vars[1]), store.Const(1)) // x*y+1

	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fn, err := jit.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}
	ctx := jit.NewContext()
	got, err := ctx.Call(fn, cfg.Values())
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Fatalf("x*y+1 at (2,3) = %g, want 7", got)
	}
}

func TestJITCallTwiceReturnsIdenticalBits(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{1.5})
	f := store.Sin(store.Mul(vars[0], store.Const(3)))
	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fn, err := jit.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}
	ctx := jit.NewContext()
	vars2 := cfg.Values()

	ctx.MarkNewPoint()
	a, err := ctx.Call(fn, vars2)
	if err != nil {
		t.Fatal(err)
	}
	ctx.MarkNewPoint()
	b, err := ctx.Call(fn, vars2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Float64bits(a) != math.Float64bits(b) {
		t.Fatalf("two calls to the same compiled function on the same input diverged: %g vs %g", a, b)
	}
}

func TestJITExponentialMatchesHostBitForBit(t *testing.T) {
	ns := newVarNamespace()
	if err := ns.Set(P("c"), 0); err != nil {
		t.Fatal(err)
	}
	node, err := ns.walk(P("c"))
	if err != nil {
		t.Fatal(err)
	}
	c := varHandle(node.leaf.q)
	cfg, err := ns.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	store := newExpressionStore()
	f := store.Exp(c)

	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fn, err := jit.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}
	ctx := jit.NewContext()

	for _, x := range []float64{-2, -1, 0, 1, 2} {
		vars := []float64{x}
		ctx.MarkNewPoint()
		got, err := ctx.Call(fn, vars)
		if err != nil {
			t.Fatal(err)
		}
		want := math.Exp(x)
		if math.Float64bits(got) != math.Float64bits(want) {
			t.Errorf("exp(%g): JIT=%g host=%g, not bit-equal", x, got, want)
		}
	}
}

func TestJITCompileVectorOutputs(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"a", "b"}, []float64{10, 5})
	roots := []Handle{
		store.Add(vars[0], vars[1]),
		store.Sub(vars[0], vars[1]),
		store.Mul(vars[0], vars[1]),
		store.Div(vars[0], vars[1]),
	}
	jit, err := NewJITCompiler(store, cfg, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fn, err := jit.CompileVector(roots)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}
	ctx := jit.NewContext()
	ctx.MarkNewPoint()
	if _, err := ctx.Call(fn, cfg.Values()); err != nil {
		t.Fatal(err)
	}
	out := ctx.VectorOutput(4)
	want := []float64{15, 5, 50, 2}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %g, want %g", i, out[i], want[i])
		}
	}
}

func TestJITCompileVectorFuncMatchesCompileVector(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"a", "b"}, []float64{10, 5})
	roots := []Handle{
		store.Add(vars[0], vars[1]),
		store.Sub(vars[0], vars[1]),
		store.Mul(vars[0], vars[1]),
		store.Div(vars[0], vars[1]),
	}
	vec, err := store.BuildVector(roots)
	if err != nil {
		t.Fatal(err)
	}
	jit, err := NewJITCompiler(store, cfg, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fn, err := jit.CompileVectorFunc(vec)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}
	ctx := jit.NewContext()
	ctx.MarkNewPoint()
	if _, err := ctx.Call(fn, cfg.Values()); err != nil {
		t.Fatal(err)
	}
	out := ctx.VectorOutput(4)
	want := []float64{15, 5, 50, 2}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %g, want %g", i, out[i], want[i])
		}
	}
}

func TestJITVectorOutputNotEnoughExtras(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{1})
	roots := []Handle{vars[0], vars[0], vars[0]}
	jit, err := NewJITCompiler(store, cfg, 3) // extras-1 = 2 slots for roots, need 3
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	_, err = jit.CompileVector(roots)
	if !Is(err, KindNotEnoughExtras) {
		t.Fatalf("expected KindNotEnoughExtras, got %v", err)
	}
}

func TestJITContextMismatch(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{1})
	f := store.Sqr(vars[0])

	jit1, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit1.Close()
	fn1, err := jit1.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit1.Finalize(); err != nil {
		t.Fatal(err)
	}

	jit2, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit2.Close()
	if err := jit2.Finalize(); err != nil {
		t.Fatal(err)
	}
	ctx2 := jit2.NewContext()

	_, err = ctx2.Call(fn1, cfg.Values())
	if !Is(err, KindContextMismatch) {
		t.Fatalf("expected KindContextMismatch calling a function from a different compiler, got %v", err)
	}
}

func TestJITOrderRule(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{2})
	f := store.Sqr(vars[0])
	diff := NewDifferentiator(store, cfg)
	g, err := diff.Gradient(f)
	if err != nil {
		t.Fatal(err)
	}

	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fFn, err := jit.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	gFn, err := jit.CompileVector(g)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}

	ctx := jit.NewContext()
	vars2 := cfg.Values()

	ctx.MarkNewPoint()
	if _, err := ctx.Call(gFn, vars2); !Is(err, KindPrerequisiteNotMet) {
		t.Fatalf("calling g before f on a fresh point should be KindPrerequisiteNotMet, got %v", err)
	}

	ctx.MarkNewPoint()
	if _, err := ctx.Call(fFn, vars2); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Call(gFn, vars2); err != nil {
		t.Fatalf("calling g after f on a fresh point should succeed, got %v", err)
	}
}

func TestJITNextLegalGateIsMonotonic(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{2})
	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fFn, err := jit.CompileRoot(vars[0])
	if err != nil {
		t.Fatal(err)
	}
	mFn, err := jit.CompileRoot(store.Const(1))
	if err != nil {
		t.Fatal(err)
	}
	gFn, err := jit.CompileRoot(store.Const(2))
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}

	ctx := jit.NewContext()
	vars2 := cfg.Values()
	ctx.MarkNewPoint()

	if _, err := ctx.Call(fFn, vars2); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Call(mFn, vars2); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Call(gFn, vars2); err != nil {
		t.Fatal(err)
	}

	// Revisiting the earliest-order function must not lower the gate:
	// gFn (the latest-order function) should still be callable afterward
	// without needing to replay mFn in between.
	if _, err := ctx.Call(fFn, vars2); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Call(gFn, vars2); err != nil {
		t.Fatalf("revisiting an earlier-order function should not make a later-order function newly illegal, got %v", err)
	}
}

func TestJITCompilerCloseIsSafeBeforeFinalizeAndIdempotent(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{1})
	f := store.Sqr(vars[0])
	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Close(); err != nil {
		t.Fatalf("Close before Finalize should be a no-op, got %v", err)
	}

	jit2, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	fn, err := jit2.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit2.Finalize(); err != nil {
		t.Fatal(err)
	}
	ctx := jit2.NewContext()
	if _, err := ctx.Call(fn, cfg.Values()); err != nil {
		t.Fatal(err)
	}
	if err := jit2.Close(); err != nil {
		t.Fatal(err)
	}
	if err := jit2.Close(); err != nil {
		t.Fatalf("second Close should be idempotent, got %v", err)
	}
}

func TestJITCallBeforeFinalizeFails(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{1})
	f := store.Sqr(vars[0])
	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fn, err := jit.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	ctx := jit.NewContext()
	if _, err := ctx.Call(fn, cfg.Values()); !Is(err, KindManagement) {
		t.Fatalf("calling before Finalize should fail with KindManagement, got %v", err)
	}
}

func TestSessionOpenJITContextUnfreezesOnClose(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	if err := sess.Set(P("x"), 2); err != nil {
		t.Fatal(err)
	}
	x, err := sess.Var(P("x"))
	if err != nil {
		t.Fatal(err)
	}
	store := sess.Store()
	f := store.Sqr(x)

	if _, err := sess.OpenJITContext(nil); !Is(err, KindNotFrozen) {
		t.Fatalf("opening a JIT context before Freeze should be KindNotFrozen, got %v", err)
	}

	cfg, err := sess.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fn, err := jit.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}

	ctx, err := sess.OpenJITContext(jit)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Call(fn, cfg.Values()); err != nil {
		t.Fatal(err)
	}

	if err := sess.Set(P("y"), 1); !Is(err, KindFrozen) {
		t.Fatalf("namespace should still be frozen while the context is open, got %v", err)
	}

	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sess.Set(P("y"), 1); err != nil {
		t.Fatalf("Close should have unfrozen the namespace, got %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close should be idempotent, got %v", err)
	}
}

func TestJITDeepExpressionCompilesWithoutOverflow(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{1})
	f := vars[0]
	const depth = 100000
	for i := 0; i < depth; i++ {
		f = store.Add(f, store.Const(1))
	}
	jit, err := NewJITCompiler(store, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer jit.Close()
	fn, err := jit.CompileRoot(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := jit.Finalize(); err != nil {
		t.Fatal(err)
	}
	ctx := jit.NewContext()
	got, err := ctx.Call(fn, cfg.Values())
	if err != nil {
		t.Fatal(err)
	}
	if got != 1+depth {
		t.Fatalf("x+depth at x=1 = %g, want %g", got, float64(1+depth))
	}
}
