package symjit

import "testing"

func TestSetThenFreezeAssignsDenseIndices(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P("b"), 2))
	must(t, ns.Set(P("a"), 1))
	cfg, err := ns.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.N() != 2 {
		t.Fatalf("N() = %d, want 2", cfg.N())
	}
	// lexicographic order: "a" before "b"
	if cfg.Name(0) != "x['a']" || cfg.Name(1) != "x['b']" {
		t.Fatalf("dense order = [%s, %s], want [x['a'], x['b']]", cfg.Name(0), cfg.Name(1))
	}
}

func TestSetSameValueTwiceIsNoOp(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P(0), 5))
	if err := ns.Set(P(0), 5); err != nil {
		t.Fatalf("re-setting to the same value should be a no-op, got %v", err)
	}
}

func TestSetDifferentValueIsReassignment(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P(0), 5))
	err := ns.Set(P(0), 6)
	if !Is(err, KindReassignment) {
		t.Fatalf("expected KindReassignment, got %v", err)
	}
}

func TestDeclareDenseVectorTwiceSameLengthIsNoOp(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.DeclareDenseVector(P("v"), 3))
	if err := ns.DeclareDenseVector(P("v"), 3); err != nil {
		t.Fatalf("re-declaring with the same length should be a no-op, got %v", err)
	}
}

func TestDeclareDenseVectorBoundaryLengths(t *testing.T) {
	ns := newVarNamespace()
	if err := ns.DeclareDenseVector(P("v"), 0); !Is(err, KindManagement) {
		t.Fatalf("length 0 should be rejected with KindManagement, got %v", err)
	}
	ns2 := newVarNamespace()
	if err := ns2.DeclareDenseVector(P("v"), 1_000_001); !Is(err, KindManagement) {
		t.Fatalf("length > 1e6 should be rejected with KindManagement, got %v", err)
	}
}

func TestDenseVectorOutOfRangeIndex(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.DeclareDenseVector(P("v"), 2))
	_, err := ns.walk(P("v", 5))
	if !Is(err, KindManagement) {
		t.Fatalf("out-of-range dense index should be KindManagement, got %v", err)
	}
}

func TestSetConstantWithoutExistingLeafFails(t *testing.T) {
	ns := newVarNamespace()
	err := ns.SetConstant(P("never-set"))
	if !Is(err, KindManagement) {
		t.Fatalf("set_constant on a never-set leaf should be KindManagement, got %v", err)
	}
}

func TestSetConstantMarksExistingLeaf(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P(0), 1))
	must(t, ns.SetConstant(P(0)))
	cfg, err := ns.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.IsConstant(0) {
		t.Fatal("leaf should be constant after SetConstant")
	}
}

func TestFreezeUnfreezeRoundTripPreservesValues(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P(0), 9))
	if _, err := ns.Freeze(); err != nil {
		t.Fatal(err)
	}
	if err := ns.Unfreeze(); err != nil {
		t.Fatal(err)
	}
	if err := ns.Set(P(0), 9); err != nil {
		t.Fatalf("re-setting the same value after unfreeze should succeed, got %v", err)
	}
	cfg, err := ns.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.X0(0) != 9 {
		t.Fatalf("X0(0) = %g, want 9", cfg.X0(0))
	}
}

func TestDoubleFreezeFails(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P(0), 1))
	if _, err := ns.Freeze(); err != nil {
		t.Fatal(err)
	}
	if _, err := ns.Freeze(); !Is(err, KindAlreadyFrozen) {
		t.Fatalf("second Freeze without Unfreeze should be KindAlreadyFrozen, got %v", err)
	}
}

func TestMutationAfterFreezeFails(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P(0), 1))
	if _, err := ns.Freeze(); err != nil {
		t.Fatal(err)
	}
	if err := ns.Set(P(1), 2); !Is(err, KindFrozen) {
		t.Fatalf("Set after Freeze should be KindFrozen, got %v", err)
	}
}

func TestFreezeOfZeroVariablesReturnsEmptyConfig(t *testing.T) {
	ns := newVarNamespace()
	cfg, err := ns.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.N() != 0 {
		t.Fatalf("N() = %d, want 0", cfg.N())
	}
}

func TestTypeMismatchAcrossVariants(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P("a"), 1))
	if err := ns.Set(P(0), 1); !Is(err, KindTypeMismatch) {
		t.Fatalf("mixing string and int subscripts at the same level should be KindTypeMismatch, got %v", err)
	}
}

func TestWalkVisitsLeavesInLexicographicOrder(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P("weights", 2), 2))
	must(t, ns.Set(P("weights", 1), 1))
	must(t, ns.Set(P("bias"), 9))

	var names []string
	err := ns.Walk(func(path Path, leaf *Leaf) error {
		names = append(names, path.String())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"x['bias']", "x['weights'][1]", "x['weights'][2]"}
	if len(names) != len(want) {
		t.Fatalf("Walk visited %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Walk visited %v, want %v", names, want)
		}
	}
}

func TestWalkPropagatesCallbackError(t *testing.T) {
	ns := newVarNamespace()
	must(t, ns.Set(P("a"), 1))
	sentinel := newErr(KindManagement, "stop")
	err := ns.Walk(func(path Path, leaf *Leaf) error { return sentinel })
	if err != sentinel {
		t.Fatalf("Walk should propagate the callback's error, got %v", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
