package symjit

import "go.uber.org/multierr"

// Differentiator computes partial derivatives of expressions already built
// in an ExpressionStore. It emits new nodes into the same store rather than
// building a separate result tree, so a gradient's N components can share
// common subexpressions discovered along the way through the store's
// existing (non-deduplicating) append semantics.
//
// Traversal is iterative: a DAG built by a loop constructing 1e5+ nodes
// would blow a recursive call stack on the way back down, so run walks
// an explicit work stack instead, mirroring the rest of the engine's
// no-recursion-over-the-graph discipline (see Handle, whose comment makes
// the same case for integer handles over pointer-chasing).
type Differentiator struct {
	store *ExpressionStore
	cfg   *VarConfig
}

// NewDifferentiator builds a Differentiator over store, resolving variable
// handles through cfg (the VarConfig produced by VarNamespace.Freeze).
func NewDifferentiator(store *ExpressionStore, cfg *VarConfig) *Differentiator {
	return &Differentiator{store: store, cfg: cfg}
}

// diffFrame is one entry of the explicit post-order work stack. visited is
// flipped the first time the frame is on top of the stack, at which point
// its node's children are pushed above it (if not already memoized); the
// next time it is on top, its children are done and it is combined and
// popped.
type diffFrame struct {
	h       Handle
	visited bool
}

// Differentiate returns d(f)/d(x_wrt), where wrt is a dense variable index
// (see VarConfig.DenseIndexForQ for translating a Handle's provisional
// insertion index into this dense form). It refuses to differentiate
// through UnitStep or Sigmoid with DifferentiationRefused, and fails with
// UnexpectedLambda if it encounters the line-search parameter while
// differentiating by a variable.
func (d *Differentiator) Differentiate(f Handle, wrt int) (Handle, error) {
	return d.run(f, wrt, false)
}

// DifferentiateByLambda returns d(f)/d(lambda), for use on a line function
// built by BuildLineFunction. A bare variable handle reached in this mode
// (one build_line_function did not substitute away) is treated as constant
// with respect to lambda, contributing zero.
func (d *Differentiator) DifferentiateByLambda(f Handle) (Handle, error) {
	return d.run(f, -1, true)
}

// Gradient returns d(f)/d(x_i) for every dense variable i. Each component
// is computed independently; per-component failures are aggregated with
// multierr rather than aborting the whole batch on the first one, so a
// caller can see every dimension's DifferentiationRefused at once instead
// of fixing one and re-running to discover the next.
func (d *Differentiator) Gradient(f Handle) ([]Handle, error) {
	n := d.cfg.N()
	out := make([]Handle, n)
	var errs error
	for i := 0; i < n; i++ {
		h, err := d.Differentiate(f, i)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out[i] = h
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func (d *Differentiator) run(f Handle, wrt int, byLambda bool) (Handle, error) {
	cache := make(map[int]Handle)
	if f.Kind() != KindNode {
		return d.leafDeriv(f, wrt, byLambda)
	}

	stack := []diffFrame{{h: f}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if !top.visited {
			top.visited = true
			n := d.store.node(top.h)
			for _, child := range d.children(n) {
				if child.Kind() == KindNode {
					if _, ok := cache[child.NodeIndex()]; !ok {
						stack = append(stack, diffFrame{h: child})
					}
				}
			}
			continue
		}

		n := d.store.node(top.h)
		result, err := d.combine(top.h, n, wrt, byLambda, cache)
		if err != nil {
			return 0, err
		}
		cache[top.h.NodeIndex()] = result
		stack = stack[:len(stack)-1]
	}

	return cache[f.NodeIndex()], nil
}

func (d *Differentiator) children(n node) []Handle {
	switch n.tag {
	case nodeBinary:
		return []Handle{n.a, n.b}
	case nodeUnary:
		return []Handle{n.a}
	default:
		return nil
	}
}

// childDeriv resolves the derivative of a node's operand: directly, for a
// non-node handle, or from the memo cache, for a node handle (guaranteed
// present because the post-order stack processes children before parents).
func (d *Differentiator) childDeriv(h Handle, wrt int, byLambda bool, cache map[int]Handle) (Handle, error) {
	if h.Kind() != KindNode {
		return d.leafDeriv(h, wrt, byLambda)
	}
	v, ok := cache[h.NodeIndex()]
	if !ok {
		panic("symjit: differentiator visited a node before its child")
	}
	return v, nil
}

// leafDeriv handles the three non-node handle kinds: variable, immediate,
// and the line-search lambda marker.
func (d *Differentiator) leafDeriv(h Handle, wrt int, byLambda bool) (Handle, error) {
	switch h.Kind() {
	case KindVar:
		if byLambda {
			return d.store.Const(0), nil
		}
		i := d.cfg.DenseIndexForQ(h.VarIndex())
		if i == wrt && !d.cfg.IsConstant(i) {
			return d.store.Const(1), nil
		}
		return d.store.Const(0), nil

	case KindImmediate:
		return d.store.Const(0), nil

	case KindLambda:
		if byLambda {
			return d.store.Const(1), nil
		}
		return 0, newErr(KindUnexpectedLambda, "encountered lambda while differentiating by a variable")

	default:
		return 0, newErr(KindUnexpectedLambda, "unrecognized leaf handle kind")
	}
}

// combine applies the derivative rule for n's operator, given that every
// node-kind operand's derivative is already in cache.
func (d *Differentiator) combine(self Handle, n node, wrt int, byLambda bool, cache map[int]Handle) (Handle, error) {
	s := d.store

	switch n.tag {
	case nodeImmediate:
		return s.Const(0), nil

	case nodeBinary:
		da, err := d.childDeriv(n.a, wrt, byLambda, cache)
		if err != nil {
			return 0, err
		}
		db, err := d.childDeriv(n.b, wrt, byLambda, cache)
		if err != nil {
			return 0, err
		}
		switch n.op {
		case OpAdd:
			return s.Add(da, db), nil
		case OpSub:
			return s.Sub(da, db), nil
		case OpMul:
			// product rule: d(a*b) = da*b + a*db
			return s.Add(s.Mul(da, n.b), s.Mul(n.a, db)), nil
		case OpDiv:
			// quotient rule: d(a/b) = (da*b - a*db) / b^2
			num := s.Sub(s.Mul(da, n.b), s.Mul(n.a, db))
			return s.Div(num, s.Sqr(n.b)), nil
		default:
			return 0, newErr(KindUnknown, "unrecognized binary operator")
		}

	case nodeUnary:
		da, err := d.childDeriv(n.a, wrt, byLambda, cache)
		if err != nil {
			return 0, err
		}
		inner, err := d.unaryDeriv(n.fn, n.a, self)
		if err != nil {
			return 0, err
		}
		return s.Mul(inner, da), nil

	default:
		return 0, newErr(KindUnknown, "unrecognized node tag")
	}
}

// unaryDeriv returns d(fn)/d(x) evaluated at x (symbolically, as an
// expression in x), the chain rule's outer factor for node.unaryDeriv's
// caller to multiply by d(x)/d(wrt). self is the handle of the fn(x) node
// itself (top.h in run's traversal); exp and sqrt reuse it verbatim rather
// than re-emitting a duplicate call, so the JIT's computed[] cache sees
// self as already evaluated by the time the derivative subtree reaches it.
func (d *Differentiator) unaryDeriv(fn UnaryFn, x, self Handle) (Handle, error) {
	s := d.store
	switch fn {
	case FnExp:
		return self, nil
	case FnLog:
		return s.Div(s.Const(1), x), nil
	case FnSin:
		return s.Cos(x), nil
	case FnCos:
		return s.Neg(s.Sin(x)), nil
	case FnTan:
		// d/dx tan(x) = 1/cos(x)^2
		return s.Div(s.Const(1), s.Sqr(s.Cos(x))), nil
	case FnSqr:
		return s.Mul(s.Const(2), x), nil
	case FnSqrt:
		return s.Div(s.Const(1), s.Mul(s.Const(2), self)), nil
	case FnAsin:
		return s.Div(s.Const(1), s.Sqrt(s.Sub(s.Const(1), s.Sqr(x)))), nil
	case FnAcos:
		return s.Neg(s.Div(s.Const(1), s.Sqrt(s.Sub(s.Const(1), s.Sqr(x))))), nil
	case FnAtan:
		return s.Div(s.Const(1), s.Add(s.Const(1), s.Sqr(x))), nil
	case FnRamp:
		// ramp(x) = max(x,0); its derivative is the unit step. The result
		// cannot itself be differentiated again: unit_step is refused below.
		return s.UnitStep(x), nil
	case FnLogSigmoid:
		// log_sigmoid(x) = -log(1+exp(-x)); d/dx = sigmoid(-x) = 1-sigmoid(x)
		return s.Sub(s.Const(1), s.Sigmoid(x)), nil
	case FnUnitStep, FnSigmoid:
		return 0, newErr(KindDifferentiationRefused, "%s is not differentiable", fn)
	default:
		return 0, newErr(KindUnknown, "unrecognized unary function")
	}
}
