package symjit

// VarsMapper resolves leaf paths against a frozen VarConfig. It is the
// bridge a caller uses to read or write a named variable's value in a
// dense `[]float64` buffer without threading dense indices through
// application code by hand.
type VarsMapper struct {
	cfg *VarConfig
	ns  *VarNamespace
}

// NewVarsMapper builds a mapper over a frozen namespace's VarConfig. The
// namespace must have been frozen (ns.Freeze must have been called)
// before this is useful.
func NewVarsMapper(ns *VarNamespace, cfg *VarConfig) *VarsMapper {
	return &VarsMapper{cfg: cfg, ns: ns}
}

func (m *VarsMapper) resolve(path Path) (*nsNode, error) {
	node := m.ns.root
	for _, key := range path {
		switch node.kind {
		case vnSparseStr:
			if !key.IsString() {
				return nil, newErr(KindWrongVar, "no leaf at %s", path)
			}
			next, ok := node.strKids[key.Str()]
			if !ok {
				return nil, newErr(KindWrongVar, "no leaf at %s", path)
			}
			node = next
		case vnSparseInt:
			if key.IsString() {
				return nil, newErr(KindWrongVar, "no leaf at %s", path)
			}
			next, ok := node.intKids[key.Int()]
			if !ok {
				return nil, newErr(KindWrongVar, "no leaf at %s", path)
			}
			node = next
		case vnDense:
			if key.IsString() {
				return nil, newErr(KindWrongVar, "no leaf at %s", path)
			}
			idx := key.Int()
			if idx < 0 || idx >= node.denseLen || node.denseKids[idx] == nil {
				return nil, newErr(KindWrongVar, "no leaf at %s", path)
			}
			node = node.denseKids[idx]
		default:
			return nil, newErr(KindWrongVar, "no leaf at %s", path)
		}
	}
	return node, nil
}

// Index returns the dense index of the leaf at path. WrongVar if no live
// leaf resolves there; IsNotLeaf if path resolves to a container.
func (m *VarsMapper) Index(path Path) (int, error) {
	node, err := m.resolve(path)
	if err != nil {
		return 0, err
	}
	if node.kind != vnLeaf {
		return 0, newErr(KindIsNotLeaf, "%s is not a value leaf", path)
	}
	return node.leaf.denseIdx, nil
}

// Get reads the current value of the leaf at path out of values, a dense
// buffer ordered like VarConfig (e.g. the JIT's `rdi` array).
func (m *VarsMapper) Get(path Path, values []float64) (float64, error) {
	i, err := m.Index(path)
	if err != nil {
		return 0, err
	}
	return values[i], nil
}

// Set writes value into the leaf at path inside values. VarIsConstant if
// the leaf is marked constant.
func (m *VarsMapper) Set(path Path, values []float64, value float64) error {
	node, err := m.resolve(path)
	if err != nil {
		return err
	}
	if node.kind != vnLeaf {
		return newErr(KindIsNotLeaf, "%s is not a value leaf", path)
	}
	if node.leaf.isConstant {
		return newErr(KindVarIsConstant, "%s is constant", path)
	}
	values[node.leaf.denseIdx] = value
	return nil
}

// ApplyValues writes a dense buffer's values back into the namespace
// tree's leaves, keeping Dump() consistent with the buffer after an
// external move_along_gradient step. It does not check constancy: callers
// that used VarConfig.MoveAlongGradient will not have moved constants in
// the first place.
func (m *VarsMapper) ApplyValues(values []float64) error {
	if len(values) != m.cfg.N() {
		return newErr(KindGradientDimMismatch, "values has %d components, expected %d", len(values), m.cfg.N())
	}
	for _, n := range m.cfg.nodes {
		n.leaf.x0 = values[n.leaf.denseIdx]
	}
	return nil
}
