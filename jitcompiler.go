//go:build linux && amd64

package symjit

import "math"

const (
	xmm0 = 0
	xmm1 = 1
)

// mathHelperOrder fixes the index each runtime-helper function occupies in
// every JITCompiler's helper-pointer array, so emitted CALL sites can
// address a helper by a compile-time-constant offset into the table
// handed in at `rdx`.
var mathHelperOrder = []UnaryFn{FnExp, FnLog, FnSin, FnCos, FnTan, FnAsin, FnAcos, FnAtan}

func mathHelperIndex(fn UnaryFn) int {
	for i, f := range mathHelperOrder {
		if f == fn {
			return i
		}
	}
	return -1
}

func buildHelperPointerTable() []uintptr {
	out := make([]uintptr, len(mathHelperOrder))
	for i, fn := range mathHelperOrder {
		out[i] = mathHelperAddr(fn)
	}
	return out
}

// compiledFn is one function emitted into a JITCompiler's buffer: either a
// scalar root or a vector of K roots sharing one call. entryOffset is its
// start within the compiler's codeWriter, resolved to an absolute address
// once the compiler is finalized.
type compiledFn struct {
	compiler    *JITCompiler
	order       int // emission order, for the PrerequisiteNotMet check
	entryOffset int
	vectorLen   int // 0 for a scalar function
}

// JITCompiler accumulates one or more compiled functions into a single
// executable buffer, sharing a `computed` bitmap across them so that a
// function compiled later can rely on scratch slots a function compiled
// earlier already populated. It is not safe for concurrent emission.
type JITCompiler struct {
	store  *ExpressionStore
	cfg    *VarConfig
	n      int // node-slot count, fixed to store.Len() at construction
	extras int

	w        *codeWriter
	computed []bool
	funcs    []*compiledFn

	helperTable []uintptr
	page        *execPage
	finalized   bool
}

// NewJITCompiler opens a compiler over store/cfg with extras additional
// scratch slots beyond the N node slots (extras[0] is always lambda;
// extras must be at least 1). Node-slot count is fixed to store.Len() at
// this point — nodes appended to store afterward are not addressable by
// this compiler's scratch layout.
func NewJITCompiler(store *ExpressionStore, cfg *VarConfig, extras int) (*JITCompiler, error) {
	if extras < 1 {
		return nil, newErr(KindManagement, "JIT compiler needs at least 1 extra scratch slot for lambda, got %d", extras)
	}
	return &JITCompiler{
		store:       store,
		cfg:         cfg,
		n:           store.Len(),
		extras:      extras,
		w:           newCodeWriter(),
		computed:    make([]bool, store.Len()),
		helperTable: buildHelperPointerTable(),
	}, nil
}

// CompileRoot emits a scalar function computing f, returning a handle
// usable (after Finalize) to invoke it through a JITCallContext.
func (c *JITCompiler) CompileRoot(f Handle) (*compiledFn, error) {
	if c.finalized {
		return nil, newErr(KindManagement, "cannot compile into a finalized JIT buffer")
	}
	fn := &compiledFn{compiler: c, order: len(c.funcs), entryOffset: c.w.pos()}
	c.emitPrologue()
	c.emitRootsIntoScratch([]Handle{f})
	c.emitFinalLoad(f, xmm0)
	c.emitEpilogue()
	c.funcs = append(c.funcs, fn)
	return fn, nil
}

// CompileVectorFunc is CompileVector over a VectorFunc prepared by
// ExpressionStore.BuildVector, rather than a raw handle slice.
func (c *JITCompiler) CompileVectorFunc(v VectorFunc) (*compiledFn, error) {
	return c.CompileVector(v.Roots())
}

// CompileVector emits a function computing every handle in roots,
// storing roots[j]'s value in extras slot 1+j (extras slot 0 stays
// reserved for lambda) so a caller can read back a length-K vector after
// invoking it. NotEnoughExtras if K exceeds the compiler's configured
// extras minus the lambda slot.
func (c *JITCompiler) CompileVector(roots []Handle) (*compiledFn, error) {
	if c.finalized {
		return nil, newErr(KindManagement, "cannot compile into a finalized JIT buffer")
	}
	k := len(roots)
	if k > c.extras-1 {
		return nil, newErr(KindNotEnoughExtras, "vector output needs %d extras beyond lambda, compiler has %d", k, c.extras-1)
	}
	fn := &compiledFn{compiler: c, order: len(c.funcs), entryOffset: c.w.pos(), vectorLen: k}
	c.emitPrologue()
	c.emitRootsIntoScratch(roots)
	for j, root := range roots {
		c.emitFinalLoad(root, xmm0)
		c.w.MovsdStore(xmm0, regRBX, int32(8*(c.n+1+j)))
	}
	if k > 0 {
		c.emitFinalLoad(roots[k-1], xmm0)
	} else {
		c.w.XorpdReg(xmm0, xmm0)
	}
	c.emitEpilogue()
	c.funcs = append(c.funcs, fn)
	return fn, nil
}

func (c *JITCompiler) emitPrologue() {
	c.w.Push(regRBX)
	c.w.MovRegReg(regRBX, regRSI)
}

func (c *JITCompiler) emitEpilogue() {
	c.w.Pop(regRBX)
	c.w.Ret()
}

// emitRootsIntoScratch runs the shared post-order DFS over every root,
// emitting code for any node not already marked computed — by a prior
// CompileRoot/CompileVector call on this compiler, or by an earlier root
// in this same call sharing a subtree.
func (c *JITCompiler) emitRootsIntoScratch(roots []Handle) {
	type frame struct {
		h       Handle
		visited bool
	}
	var stack []frame
	for _, r := range roots {
		if r.Kind() == KindNode && !c.computed[r.NodeIndex()] {
			stack = append(stack, frame{h: r})
		}
	}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		idx := top.h.NodeIndex()
		if c.computed[idx] {
			stack = stack[:len(stack)-1]
			continue
		}
		if !top.visited {
			top.visited = true
			n := c.store.node(top.h)
			for _, child := range c.nodeChildren(n) {
				if child.Kind() == KindNode && !c.computed[child.NodeIndex()] {
					stack = append(stack, frame{h: child})
				}
			}
			continue
		}
		c.emitNode(top.h)
		c.computed[idx] = true
		stack = stack[:len(stack)-1]
	}
}

func (c *JITCompiler) nodeChildren(n node) []Handle {
	switch n.tag {
	case nodeBinary:
		return []Handle{n.a, n.b}
	case nodeUnary:
		return []Handle{n.a}
	default:
		return nil
	}
}

// emitNode generates the instructions for one store node and writes its
// result to its own scratch slot.
func (c *JITCompiler) emitNode(h Handle) {
	idx := h.NodeIndex()
	n := c.store.node(h)
	switch n.tag {
	case nodeImmediate:
		c.loadImmediate(xmm0, n.imm)
	case nodeBinary:
		c.emitFinalLoad(n.a, xmm0)
		c.emitFinalLoad(n.b, xmm1)
		switch n.op {
		case OpAdd:
			c.w.AddsdReg(xmm0, xmm1)
		case OpSub:
			c.w.SubsdReg(xmm0, xmm1)
		case OpMul:
			c.w.MulsdReg(xmm0, xmm1)
		case OpDiv:
			c.w.DivsdReg(xmm0, xmm1)
		}
	case nodeUnary:
		c.emitFinalLoad(n.a, xmm0)
		c.emitUnary(n.fn)
	}
	c.w.MovsdStore(xmm0, regRBX, int32(8*idx))
}

// emitFinalLoad loads h's value into xmmReg: from its scratch slot if h
// is a node, from the variable array if a var, from an immediate bit
// pattern if an immediate, or from the lambda slot if lambda.
func (c *JITCompiler) emitFinalLoad(h Handle, xmmReg uint8) {
	switch h.Kind() {
	case KindNode:
		c.w.MovsdLoad(xmmReg, regRBX, int32(8*h.NodeIndex()))
	case KindVar:
		i := c.cfg.DenseIndexForQ(h.VarIndex())
		c.w.MovsdLoad(xmmReg, regRDI, int32(8*i))
	case KindImmediate:
		c.loadImmediate(xmmReg, h.ImmediateValue())
	case KindLambda:
		c.w.MovsdLoad(xmmReg, regRBX, int32(8*c.n))
	}
}

// loadImmediate materializes v's IEEE-754 bit pattern through a GPR
// (rax, always free between node emissions) into xmmReg.
func (c *JITCompiler) loadImmediate(xmmReg uint8, v float64) {
	c.w.MovImm64(regRAX, math.Float64bits(v))
	c.w.MovqXmmFromGPR(xmmReg, regRAX)
}

// emitHelperCall emits the push-call-pop sequence for a runtime math
// helper, operating on xmm0 in place. rdi and rdx are the only registers
// the calling convention promises are preserved across this call, so
// those are the only two saved.
func (c *JITCompiler) emitHelperCall(fn UnaryFn) {
	idx := mathHelperIndex(fn)
	c.w.Push(regRDI)
	c.w.Push(regRDX)
	c.w.MovLoad(regRAX, regRDX, int32(8*idx))
	c.w.CallReg(regRAX)
	c.w.Pop(regRDX)
	c.w.Pop(regRDI)
}

// emitUnary expands fn's computation in place on xmm0, which already
// holds the operand's value.
func (c *JITCompiler) emitUnary(fn UnaryFn) {
	w := c.w
	switch {
	case fn.callsRuntimeHelper():
		c.emitHelperCall(fn)
		return
	}

	switch fn {
	case FnSqr:
		w.MulsdReg(xmm0, xmm0)

	case FnSqrt:
		w.SqrtsdReg(xmm0, xmm0)

	case FnUnitStep:
		w.XorpdReg(xmm1, xmm1)
		w.ComisdReg(xmm0, xmm1)
		w.Setae(regRAX)
		w.Movzx8To32(regRAX, regRAX)
		w.Cvtsi2sdFromGPR32(xmm0, regRAX)

	case FnRamp:
		w.XorpdReg(xmm1, xmm1)
		w.MaxsdReg(xmm0, xmm1)

	case FnSigmoid:
		c.emitNegate(xmm0)
		c.emitHelperCall(FnExp) // xmm0 = exp(-x)
		c.loadImmediate(xmm1, 1)
		w.AddsdReg(xmm0, xmm1) // xmm0 = 1+exp(-x)
		c.loadImmediate(xmm1, 1)
		w.DivsdReg(xmm1, xmm0) // xmm1 = 1/(1+exp(-x))
		w.MovsdReg(xmm0, xmm1)

	case FnLogSigmoid:
		c.emitNegate(xmm0)
		c.emitHelperCall(FnExp) // xmm0 = exp(-x)
		c.loadImmediate(xmm1, 1)
		w.AddsdReg(xmm0, xmm1) // xmm0 = 1+exp(-x)
		c.emitHelperCall(FnLog) // xmm0 = log(1+exp(-x))
		c.emitNegate(xmm0)
	}
}

// emitNegate flips xmmReg's sign by computing 0-x, avoiding the need for
// a sign-bit mask constant.
func (c *JITCompiler) emitNegate(xmmReg uint8) {
	w := c.w
	var other uint8 = xmm1
	if xmmReg == xmm1 {
		other = xmm0
	}
	w.XorpdReg(other, other)
	w.SubsdReg(other, xmmReg)
	w.MovsdReg(xmmReg, other)
}

// Finalize maps the accumulated buffer into executable memory. No further
// CompileRoot/CompileVector calls are permitted afterward.
func (c *JITCompiler) Finalize() error {
	if c.finalized {
		return nil
	}
	page, err := allocExecPage(len(c.w.bytes()))
	if err != nil {
		return err
	}
	if err := page.writeAndSeal(c.w.bytes()); err != nil {
		return err
	}
	c.page = page
	c.finalized = true
	return nil
}

// Close releases the compiler's executable page. Compiled functions must
// not be called again after this returns. It is a no-op before Finalize
// and idempotent after.
func (c *JITCompiler) Close() error {
	if c.page == nil {
		return nil
	}
	page := c.page
	c.page = nil
	return page.free()
}

// NewContext opens a fresh scratch RAM buffer and invocation-order
// tracker bound to this compiler. Only one JITCallContext should be in
// use per session at a time; this package does not itself enforce that
// beyond what Session already enforces for the namespace.
func (c *JITCompiler) NewContext() *JITCallContext {
	return &JITCallContext{
		compiler: c,
		scratch:  make([]float64, c.n+c.extras),
	}
}

// JITCallContext owns the scratch RAM a family of compiled functions
// share and the bookkeeping that enforces calling them in emission order.
// A context opened through Session.OpenJITContext remembers the session it
// came from and unfreezes it automatically when Close is called.
type JITCallContext struct {
	compiler  *JITCompiler
	scratch   []float64
	nextLegal int
	session   *Session
}

// Close releases this context's hold on its session, if it was opened
// through Session.OpenJITContext, unfreezing the namespace so construction
// can resume. It is a no-op (and safe to call) on a context opened
// directly from JITCompiler.NewContext with no session attached.
func (ctx *JITCallContext) Close() error {
	if ctx.session == nil {
		return nil
	}
	s := ctx.session
	ctx.session = nil
	return s.Unfreeze()
}

// MarkNewPoint resets the emission-order gate, permitting the sequence of
// compiled functions to be invoked from the start again on a new input
// point.
func (ctx *JITCallContext) MarkNewPoint() { ctx.nextLegal = 0 }

// SetLambda writes the line-search parameter into its scratch slot
// (extras[0]) ahead of invoking a function built over a line function.
func (ctx *JITCallContext) SetLambda(lambda float64) {
	ctx.scratch[ctx.compiler.n] = lambda
}

// VectorOutput reads back the K results a CompileVector-built function
// wrote into extras[1..K] on its most recent invocation.
func (ctx *JITCallContext) VectorOutput(k int) []float64 {
	base := ctx.compiler.n + 1
	out := make([]float64, k)
	copy(out, ctx.scratch[base:base+k])
	return out
}

// Call invokes fn against ctx's scratch RAM and variable values. It fails
// with ContextMismatch if fn was not compiled by ctx's own compiler, or
// PrerequisiteNotMet if fn's emission order is ahead of what has been
// legally reached on this context since the last MarkNewPoint.
func (ctx *JITCallContext) Call(fn *compiledFn, vars []float64) (float64, error) {
	if fn.compiler != ctx.compiler {
		return 0, newErr(KindContextMismatch, "compiled function belongs to a different JIT compiler than this context")
	}
	if !ctx.compiler.finalized {
		return 0, newErr(KindManagement, "JIT compiler has not been finalized")
	}
	if fn.order > ctx.nextLegal {
		return 0, newErr(KindPrerequisiteNotMet, "function emitted at position %d called before position %d; call in emission order or MarkNewPoint", fn.order, ctx.nextLegal)
	}
	addr := ctx.compiler.page.entryPointer(fn.entryOffset)
	result := callCompiled(addr, ptrOf(vars), ptrOf(ctx.scratch), ptrOfU(ctx.compiler.helperTable))
	if fn.order+1 > ctx.nextLegal {
		ctx.nextLegal = fn.order + 1
	}
	return result, nil
}
