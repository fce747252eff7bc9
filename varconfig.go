package symjit

// VarConfig is the immutable, densely-indexed snapshot produced by
// freezing a VarNamespace. Entry i describes the leaf with dense index i.
type VarConfig struct {
	names      []string
	x0         []float64
	isConstant []bool
	nodes      []*nsNode // back-reference for VarsMapper path lookups
	denseIndexByQ []int  // translates a variable handle's provisional q to its frozen dense index
}

// VarHandle returns the expression Handle for dense index i — the same
// handle Session.Var would have returned for the leaf now occupying that
// dense slot. BuildLineFunction uses this to build the substitution
// x_i + lambda*g_i for variable i.
func (c *VarConfig) VarHandle(i int) Handle { return varHandle(c.nodes[i].leaf.q) }

// DenseIndexForQ translates a variable handle's provisional insertion
// index (as stored in a Handle built before Freeze) into its dense index
// after freezing. The differentiator and JIT compiler call this whenever
// they encounter a KindVar handle.
func (c *VarConfig) DenseIndexForQ(q int) int { return c.denseIndexByQ[q] }

// N returns the number of dense variables.
func (c *VarConfig) N() int { return len(c.names) }

// Name returns the display name of dense index i.
func (c *VarConfig) Name(i int) string { return c.names[i] }

// X0 returns the starting value of dense index i.
func (c *VarConfig) X0(i int) float64 { return c.x0[i] }

// IsConstant reports whether dense index i is a constant leaf.
func (c *VarConfig) IsConstant(i int) bool { return c.isConstant[i] }

// Values returns a fresh []float64 of every leaf's starting value, ordered
// by dense index. This is the array callers pass as the JIT's `rdi`
// variables argument.
func (c *VarConfig) Values() []float64 {
	out := make([]float64, len(c.x0))
	copy(out, c.x0)
	return out
}

// MoveAlongGradient updates values in place: values[i] += lambda*grad[i]
// for every non-constant dense index i. Constant leaves are left
// untouched, matching the invariant that constants never move. Returns
// GradientDimMismatch if grad's length disagrees with this VarConfig.
func (c *VarConfig) MoveAlongGradient(values, grad []float64, lambda float64) error {
	n := c.N()
	if len(grad) != n {
		return newErr(KindGradientDimMismatch, "gradient has %d components, expected %d", len(grad), n)
	}
	if len(values) != n {
		return newErr(KindGradientDimMismatch, "values has %d components, expected %d", len(values), n)
	}
	for i := 0; i < n; i++ {
		if c.isConstant[i] {
			continue
		}
		values[i] += lambda * grad[i]
	}
	return nil
}
