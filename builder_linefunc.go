package symjit

// BuildLineFunction produces a handle for l(lambda) = f(x0 + lambda*g):
// for every dense variable i it builds the substitution handle
// x_i + lambda*g_i, then walks f rewriting every reference to variable i
// into that substitution. Rewriting is memoized by source node handle so
// a subtree reachable from multiple parents is only rebuilt once; the
// traversal has the same visited-frame/cache shape as Differentiator's.
func BuildLineFunction(store *ExpressionStore, cfg *VarConfig, f Handle, g []Handle) (Handle, error) {
	n := cfg.N()
	if len(g) != n {
		return 0, newErr(KindGradientDimMismatch, "gradient has %d components, expected %d", len(g), n)
	}

	lambda := store.Lambda()
	subst := make([]Handle, n)
	for i := 0; i < n; i++ {
		subst[i] = store.Add(cfg.VarHandle(i), store.Mul(lambda, g[i]))
	}

	return rewriteVars(store, cfg, f, subst)
}

// rewriteVars walks h, replacing every KindVar leaf with its substitution
// handle and leaving every other leaf kind untouched.
func rewriteVars(store *ExpressionStore, cfg *VarConfig, h Handle, subst []Handle) (Handle, error) {
	if h.Kind() != KindNode {
		return rewriteLeaf(cfg, h, subst), nil
	}

	type frame struct {
		h       Handle
		visited bool
	}
	cache := make(map[int]Handle)
	stack := []frame{{h: h}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		idx := top.h.NodeIndex()
		if _, ok := cache[idx]; ok {
			stack = stack[:len(stack)-1]
			continue
		}
		if !top.visited {
			top.visited = true
			n := store.node(top.h)
			for _, child := range nodeOperands(n) {
				if child.Kind() == KindNode {
					if _, ok := cache[child.NodeIndex()]; !ok {
						stack = append(stack, frame{h: child})
					}
				}
			}
			continue
		}
		n := store.node(top.h)
		cache[idx] = rebuildNode(store, n, cache, cfg, subst)
		stack = stack[:len(stack)-1]
	}

	return cache[h.NodeIndex()], nil
}

func nodeOperands(n node) []Handle {
	switch n.tag {
	case nodeBinary:
		return []Handle{n.a, n.b}
	case nodeUnary:
		return []Handle{n.a}
	default:
		return nil
	}
}

func mappedOperand(h Handle, cache map[int]Handle, cfg *VarConfig, subst []Handle) Handle {
	if h.Kind() == KindNode {
		return cache[h.NodeIndex()]
	}
	return rewriteLeaf(cfg, h, subst)
}

func rewriteLeaf(cfg *VarConfig, h Handle, subst []Handle) Handle {
	if h.Kind() == KindVar {
		return subst[cfg.DenseIndexForQ(h.VarIndex())]
	}
	return h
}

func rebuildNode(store *ExpressionStore, n node, cache map[int]Handle, cfg *VarConfig, subst []Handle) Handle {
	switch n.tag {
	case nodeImmediate:
		return store.Const(n.imm)
	case nodeBinary:
		a := mappedOperand(n.a, cache, cfg, subst)
		b := mappedOperand(n.b, cache, cfg, subst)
		return store.binary(n.op, a, b)
	case nodeUnary:
		a := mappedOperand(n.a, cache, cfg, subst)
		return store.unary(n.fn, a)
	default:
		panic("symjit: unrecognized node tag")
	}
}
