package symjit

import (
	"fmt"
	"math"
)

// Handle is a 64-bit tagged reference into one of four spaces: a node in
// the ExpressionStore, a variable leaf (by its provisional insertion index,
// see VarConfig.DenseIndexForQ), an immediate double drawn
// from a small encodable set, or the line-search parameter lambda. It is
// never a pointer — the expression graph is entirely index-based, which is
// what lets the differentiator and the JIT walk it with a plain integer
// work stack instead of recursion.
type Handle uint64

// HandleKind identifies which of the four spaces a Handle addresses.
type HandleKind uint8

const (
	KindNode HandleKind = iota
	KindVar
	KindImmediate
	KindLambda
)

const (
	handleTagShift = 62
	handleTagMask  = uint64(0x3) << handleTagShift
	handlePayload  = (uint64(1) << handleTagShift) - 1
)

func makeHandle(tag HandleKind, payload uint64) Handle {
	if payload > handlePayload {
		panic("symjit: handle payload overflow")
	}
	return Handle(uint64(tag)<<handleTagShift | payload)
}

// Kind reports which space this handle addresses.
func (h Handle) Kind() HandleKind {
	return HandleKind((uint64(h) & handleTagMask) >> handleTagShift)
}

func (h Handle) payload() uint64 {
	return uint64(h) & handlePayload
}

// nodeHandle builds a handle referencing a store node by index.
func nodeHandle(idx int) Handle {
	return makeHandle(KindNode, uint64(idx))
}

// NodeIndex returns the store index this handle refers to; behavior is
// undefined unless Kind() == KindNode.
func (h Handle) NodeIndex() int {
	return int(h.payload())
}

// varHandle builds a handle referencing a variable leaf by its provisional
// insertion index q (not its dense index; VarConfig.DenseIndexForQ
// translates q to the dense index after Freeze).
func varHandle(i int) Handle {
	return makeHandle(KindVar, uint64(i))
}

// VarIndex returns the provisional insertion index q this handle refers
// to; behavior is undefined unless Kind() == KindVar.
func (h Handle) VarIndex() int {
	return int(h.payload())
}

// lambdaHandle is the single marker handle for the line-search parameter.
var lambdaHandleValue = makeHandle(KindLambda, 0)

func lambdaHandle() Handle { return lambdaHandleValue }

// immediateTable holds the small set of float64 values directly encodable
// in a Handle's 62-bit payload: the integers 0..immediateSmallIntMax-1, then
// -1 and a handful of common constants. Anything else falls back to a store
// node (see ExpressionStore.Const).
var immediateTable = buildImmediateTable()

const immediateSmallIntMax = 1 << 16

func buildImmediateTable() []float64 {
	t := make([]float64, 0, immediateSmallIntMax+8)
	for i := 0; i < immediateSmallIntMax; i++ {
		t = append(t, float64(i))
	}
	t = append(t, -1, 0.5, -0.5, 2, -2, math.Pi, math.E, 1.0/3.0)
	return t
}

var immediateIndex = buildImmediateIndex()

func buildImmediateIndex() map[float64]int {
	m := make(map[float64]int, len(immediateTable))
	for i, v := range immediateTable {
		// First writer wins, so a value listed twice (2 is both a small
		// integer and one of the named constants) keeps its first index.
		if _, ok := m[v]; !ok {
			m[v] = i
		}
	}
	return m
}

// encodeImmediate returns a Handle encoding v directly, and true, if v is
// in the small representable set; otherwise it returns false and the
// caller must fall back to a store node.
func encodeImmediate(v float64) (Handle, bool) {
	idx, ok := immediateIndex[v]
	if !ok {
		return 0, false
	}
	return makeHandle(KindImmediate, uint64(idx)), true
}

// ImmediateValue returns the float64 this handle encodes; behavior is
// undefined unless Kind() == KindImmediate.
func (h Handle) ImmediateValue() float64 {
	idx := h.payload()
	if idx >= uint64(len(immediateTable)) {
		panic("symjit: corrupt immediate handle")
	}
	return immediateTable[idx]
}

func (h Handle) String() string {
	switch h.Kind() {
	case KindNode:
		return fmt.Sprintf("node#%d", h.NodeIndex())
	case KindVar:
		return fmt.Sprintf("var#%d", h.VarIndex())
	case KindImmediate:
		return fmt.Sprintf("imm(%g)", h.ImmediateValue())
	case KindLambda:
		return "lambda"
	default:
		return "invalid-handle"
	}
}
