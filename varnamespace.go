package symjit

import "sort"

// varKind is the live variant of a namespace tree node. The variant is
// fixed on first use; any later access in an incompatible variant fails
// with TypeMismatch.
type varKind uint8

const (
	vnUnset varKind = iota
	vnLeaf
	vnDense
	vnSparseInt
	vnSparseStr
)

// leafData is the payload of a Value leaf: its provisional insertion
// index, starting value, constant flag, and (once frozen) dense index.
type leafData struct {
	q          int
	x0         float64
	isConstant bool
	denseIdx   int // -1 until Freeze assigns it
}

// nsNode is one node of the VarNamespace tree.
type nsNode struct {
	kind      varKind
	leaf      *leafData
	denseLen  int
	denseKids []*nsNode
	intKids   map[int]*nsNode
	strKids   map[string]*nsNode
}

func newUnsetNode() *nsNode { return &nsNode{kind: vnUnset} }

// VarNamespace is the mutable-until-frozen tree of named scalar variables
// that backs a Session. Users address leaves by nested integer/string
// subscripts; the tree's shape is discovered as set/declare_dense_vector
// calls are made, never declared up front.
type VarNamespace struct {
	root     *nsNode
	leaves   []*nsNode // insertion order, for enumeration and Dump
	nextQ    int
	frozen   bool
	config   *VarConfig
}

func newVarNamespace() *VarNamespace {
	return &VarNamespace{root: newUnsetNode()}
}

// descend returns the child of node addressed by key, creating the child
// (and, if node is Unset, deciding node's own variant) as needed. It never
// creates leaves — only container nodes.
func (ns *VarNamespace) descend(node *nsNode, key PathKey) (*nsNode, error) {
	if node.kind == vnUnset {
		if key.IsString() {
			node.kind = vnSparseStr
			node.strKids = make(map[string]*nsNode)
		} else {
			node.kind = vnSparseInt
			node.intKids = make(map[int]*nsNode)
		}
	}

	switch node.kind {
	case vnSparseStr:
		if !key.IsString() {
			return nil, newErr(KindTypeMismatch, "expected string subscript, got %s", key)
		}
		child, ok := node.strKids[key.Str()]
		if !ok {
			child = newUnsetNode()
			node.strKids[key.Str()] = child
		}
		return child, nil

	case vnSparseInt:
		if key.IsString() {
			return nil, newErr(KindTypeMismatch, "expected integer subscript, got %s", key)
		}
		child, ok := node.intKids[key.Int()]
		if !ok {
			child = newUnsetNode()
			node.intKids[key.Int()] = child
		}
		return child, nil

	case vnDense:
		if key.IsString() {
			return nil, newErr(KindTypeMismatch, "expected integer subscript into dense vector, got %s", key)
		}
		idx := key.Int()
		if idx < 0 || idx >= node.denseLen {
			return nil, newErr(KindManagement, "dense vector index %d out of range [0,%d)", idx, node.denseLen)
		}
		if node.denseKids[idx] == nil {
			node.denseKids[idx] = newUnsetNode()
		}
		return node.denseKids[idx], nil

	case vnLeaf:
		return nil, newErr(KindTypeMismatch, "cannot descend into a value leaf at %s", key)

	default:
		return nil, newErr(KindTypeMismatch, "unreachable namespace variant")
	}
}

// walk descends the full path from the root, returning the node it
// addresses (creating containers as it goes).
func (ns *VarNamespace) walk(path Path) (*nsNode, error) {
	node := ns.root
	for _, key := range path {
		next, err := ns.descend(node, key)
		if err != nil {
			return nil, err
		}
		node = next
	}
	return node, nil
}

// Set creates or revisits the leaf at path with the given starting value.
// Re-setting the same leaf to the same value is a no-op; a differing value
// is a Reassignment error.
func (ns *VarNamespace) Set(path Path, value float64) error {
	if ns.frozen {
		return newErr(KindFrozen, "cannot set %s: namespace is frozen", path)
	}
	node, err := ns.walk(path)
	if err != nil {
		return err
	}
	return ns.setLeaf(node, path, value, nil)
}

// setLeaf instantiates or revisits a leaf node. constFlag, if non-nil,
// additionally sets (or checks) the constant flag.
func (ns *VarNamespace) setLeaf(node *nsNode, path Path, value float64, constFlag *bool) error {
	switch node.kind {
	case vnUnset:
		node.kind = vnLeaf
		node.leaf = &leafData{q: ns.nextQ, x0: value, denseIdx: -1}
		ns.nextQ++
		ns.leaves = append(ns.leaves, node)
		if constFlag != nil {
			node.leaf.isConstant = *constFlag
		}
		return nil

	case vnLeaf:
		if node.leaf.x0 != value {
			return newErr(KindReassignment, "leaf %s already set to %g, cannot reassign to %g", path, node.leaf.x0, value)
		}
		if constFlag != nil {
			node.leaf.isConstant = *constFlag
		}
		return nil

	default:
		return newErr(KindTypeMismatch, "%s is a container, not a value leaf", path)
	}
}

// SetConstant marks the leaf at path constant. If values is given, it
// behaves like Set followed by marking the leaf constant (idempotent with
// the same value). With no value, the leaf must already exist.
func (ns *VarNamespace) SetConstant(path Path, values ...float64) error {
	if ns.frozen {
		return newErr(KindFrozen, "cannot set_constant %s: namespace is frozen", path)
	}
	node, err := ns.walk(path)
	if err != nil {
		return err
	}
	isConst := true
	if len(values) > 0 {
		return ns.setLeaf(node, path, values[0], &isConst)
	}
	if node.kind != vnLeaf {
		return newErr(KindManagement, "set_constant %s: no existing leaf to mark constant", path)
	}
	node.leaf.isConstant = true
	return nil
}

// DeclareDenseVector creates (or revisits, if length matches) a dense
// vector container of length L at path. Children remain Unset until
// individually Set.
func (ns *VarNamespace) DeclareDenseVector(path Path, length int) error {
	if ns.frozen {
		return newErr(KindFrozen, "cannot declare_dense_vector %s: namespace is frozen", path)
	}
	node, err := ns.walk(path)
	if err != nil {
		return err
	}
	switch node.kind {
	case vnUnset:
		if length < 1 || length > 1_000_000 {
			return newErr(KindManagement, "dense vector length %d out of range [1,1000000]", length)
		}
		node.kind = vnDense
		node.denseLen = length
		node.denseKids = make([]*nsNode, length)
		return nil
	case vnDense:
		if node.denseLen != length {
			return newErr(KindTypeMismatch, "dense vector %s already declared with length %d, not %d", path, node.denseLen, length)
		}
		return nil
	default:
		return newErr(KindTypeMismatch, "%s is not a dense vector", path)
	}
}

// FullName reconstructs the display name for path without requiring the
// path to resolve to a live node.
func (ns *VarNamespace) FullName(path Path) string {
	return path.String()
}

// Leaf is a read-only view of one Value leaf, handed to a Walk callback.
// It exposes the fields the original source's debug dump needs without
// giving the caller a way to mutate the namespace through it.
type Leaf struct {
	Q          int
	DenseIndex int // -1 until the namespace has been frozen
	X0         float64
	IsConstant bool
}

// Walk enumerates every live leaf in lexicographic path order (integer
// subscripts compared numerically, string subscripts as byte strings),
// calling fn with each leaf's full path and a read-only snapshot. Freeze
// uses this same order to assign dense indices; Dump uses it to build its
// informational snapshot. Walk does not require the namespace to be
// frozen, and it returns the first error fn produces.
func (ns *VarNamespace) Walk(fn func(path Path, leaf *Leaf) error) error {
	var walk func(node *nsNode, prefix Path) error
	walk = func(node *nsNode, prefix Path) error {
		switch node.kind {
		case vnLeaf:
			return fn(prefix, &Leaf{
				Q:          node.leaf.q,
				DenseIndex: node.leaf.denseIdx,
				X0:         node.leaf.x0,
				IsConstant: node.leaf.isConstant,
			})
		case vnDense:
			for i := 0; i < node.denseLen; i++ {
				if node.denseKids[i] != nil {
					if err := walk(node.denseKids[i], append(append(Path{}, prefix...), IntKey(i))); err != nil {
						return err
					}
				}
			}
		case vnSparseInt:
			keys := make([]int, 0, len(node.intKids))
			for k := range node.intKids {
				keys = append(keys, k)
			}
			sort.Ints(keys)
			for _, k := range keys {
				if err := walk(node.intKids[k], append(append(Path{}, prefix...), IntKey(k))); err != nil {
					return err
				}
			}
		case vnSparseStr:
			keys := make([]string, 0, len(node.strKids))
			for k := range node.strKids {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := walk(node.strKids[k], append(append(Path{}, prefix...), StrKey(k))); err != nil {
					return err
				}
			}
		case vnUnset:
			// never enumerated
		}
		return nil
	}
	return walk(ns.root, nil)
}

// Freeze assigns dense indices to every live leaf, in lexicographic path
// order (integer subscripts compared numerically, string subscripts
// compared as byte strings), and returns the resulting VarConfig. It is a
// one-shot transition: a second Freeze without an intervening Unfreeze is
// AlreadyFrozen.
func (ns *VarNamespace) Freeze() (*VarConfig, error) {
	if ns.frozen {
		return nil, newErr(KindAlreadyFrozen, "namespace is already frozen")
	}
	type enumerated struct {
		path Path
		n    *nsNode
	}
	var entries []enumerated
	var walkErr error
	nodeByQ := make(map[int]*nsNode, len(ns.leaves))
	for _, n := range ns.leaves {
		nodeByQ[n.leaf.q] = n
	}
	walkErr = ns.Walk(func(path Path, leaf *Leaf) error {
		entries = append(entries, enumerated{path: append(Path{}, path...), n: nodeByQ[leaf.Q]})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	cfg := &VarConfig{denseIndexByQ: make([]int, len(ns.leaves))}
	for i := range cfg.denseIndexByQ {
		cfg.denseIndexByQ[i] = -1
	}
	for i, e := range entries {
		e.n.leaf.denseIdx = i
		cfg.names = append(cfg.names, ns.FullName(e.path))
		cfg.x0 = append(cfg.x0, e.n.leaf.x0)
		cfg.isConstant = append(cfg.isConstant, e.n.leaf.isConstant)
		cfg.nodes = append(cfg.nodes, e.n)
		cfg.denseIndexByQ[e.n.leaf.q] = i
	}

	ns.frozen = true
	ns.config = cfg
	return cfg, nil
}

// Unfreeze permits mutation again. New leaves added after Unfreeze cause
// the next Freeze to reassign dense indices from scratch.
func (ns *VarNamespace) Unfreeze() error {
	if !ns.frozen {
		return newErr(KindNotFrozen, "namespace is not frozen")
	}
	ns.frozen = false
	return nil
}

// Frozen reports whether the namespace currently rejects mutation.
func (ns *VarNamespace) Frozen() bool { return ns.frozen }

// LeafDumpEntry is one row of VarNamespace.Dump()'s informational output.
type LeafDumpEntry struct {
	Q          int
	I          int
	Name       string
	X          float64
	IsConstant bool
}

// Dump returns a stable, informational snapshot of every live leaf for
// debugging; it is not used by any core operation.
func (ns *VarNamespace) Dump() []LeafDumpEntry {
	out := make([]LeafDumpEntry, 0, len(ns.leaves))
	_ = ns.Walk(func(path Path, leaf *Leaf) error {
		out = append(out, LeafDumpEntry{
			Q:          leaf.Q,
			I:          leaf.DenseIndex,
			Name:       ns.FullName(path),
			X:          leaf.X0,
			IsConstant: leaf.IsConstant,
		})
		return nil
	})
	return out
}
