package symjit

import "testing"

func TestBuildLineFunctionSubstitutesEveryVariable(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{0})
	f := store.Sqr(store.Sub(vars[0], store.Const(3)))
	diff := NewDifferentiator(store, cfg)
	g, err := diff.Gradient(f)
	if err != nil {
		t.Fatal(err)
	}

	lineFn, err := BuildLineFunction(store, cfg, f, g)
	if err != nil {
		t.Fatal(err)
	}

	// l(lambda) = (0 + lambda*(-6) - 3)^2 = (-6*lambda - 3)^2
	x0 := cfg.Values()
	for _, lambda := range []float64{0, 1, -0.5} {
		got := evalHandle(store, cfg, lineFn, x0, lambda)
		want := evalHandle(store, cfg, f, []float64{0 + lambda*(-6)}, lambda)
		if got != want {
			t.Errorf("l(%g) = %g, want %g", lambda, got, want)
		}
	}
}

func TestBuildLineFunctionDimensionMismatch(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x", "y"}, []float64{0, 0})
	f := store.Add(vars[0], vars[1])
	_, err := BuildLineFunction(store, cfg, f, []Handle{store.Const(1)})
	if !Is(err, KindGradientDimMismatch) {
		t.Fatalf("expected KindGradientDimMismatch, got %v", err)
	}
}

func TestBuildLineFunctionAtLambdaZeroEqualsOriginal(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x", "y"}, []float64{2, 3})
	f := store.Mul(vars[0], vars[1])
	diff := NewDifferentiator(store, cfg)
	g, err := diff.Gradient(f)
	if err != nil {
		t.Fatal(err)
	}
	lineFn, err := BuildLineFunction(store, cfg, f, g)
	if err != nil {
		t.Fatal(err)
	}

	x0 := cfg.Values()
	got := evalHandle(store, cfg, lineFn, x0, 0)
	want := evalHandle(store, cfg, f, x0, 0)
	if got != want {
		t.Fatalf("l(0) = %g, want f(x0) = %g", got, want)
	}
}

func TestBuildLineFunctionOnSharedSubtreeRewritesOnce(t *testing.T) {
	store, cfg, vars := buildFrozen(t, []string{"x"}, []float64{1})
	shared := store.Sqr(vars[0])
	f := store.Add(shared, shared)
	diff := NewDifferentiator(store, cfg)
	g, err := diff.Gradient(f)
	if err != nil {
		t.Fatal(err)
	}
	lineFn, err := BuildLineFunction(store, cfg, f, g)
	if err != nil {
		t.Fatal(err)
	}
	got := evalHandle(store, cfg, lineFn, cfg.Values(), 0.5)
	// l(0.5) = (1+0.5*g)^2 * 2, g = d(2x^2)/dx at x=1 = 4
	x := 1 + 0.5*4.0
	want := 2 * x * x
	if got != want {
		t.Fatalf("l(0.5) = %g, want %g", got, want)
	}
}
