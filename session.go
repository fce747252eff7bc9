package symjit

import "sync"

// Only one VarNamespace session may be active per goroutine-free program
// at a time: construction and use are meant to be serialized on one
// thread, and Go has no stable notion of "the current OS thread" worth
// building on, so the session singleton is enforced at process scope
// instead. Attempting to open a second session while one is active is a
// Management error, never a silent nesting.
var (
	sessionMu     sync.Mutex
	activeSession *Session
)

// Session owns the VarNamespace and ExpressionStore that together make up
// one symbolic-expression construction: the namespace supplies variable
// leaves, the store accumulates the expression DAG built from them. Both
// live for the session's lifetime; freezing the namespace does not end
// the session, only a call to Close does.
type Session struct {
	ns     *VarNamespace
	store  *ExpressionStore
	closed bool
}

// NewSession opens the process's single active session. It fails with
// Management if a session is already open.
func NewSession() (*Session, error) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if activeSession != nil {
		return nil, newErr(KindManagement, "a session is already active; nested sessions are forbidden")
	}
	s := &Session{ns: newVarNamespace(), store: newExpressionStore()}
	activeSession = s
	return s, nil
}

// Close releases the process's session slot, allowing a new NewSession
// call to succeed. It is idempotent.
func (s *Session) Close() {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if activeSession == s {
		activeSession = nil
	}
	s.closed = true
}

func (s *Session) checkOpen() error {
	if s.closed {
		return newErr(KindNoSession, "session is closed")
	}
	return nil
}

// Namespace returns the session's VarNamespace for direct use.
func (s *Session) Namespace() *VarNamespace { return s.ns }

// Store returns the session's ExpressionStore for direct use.
func (s *Session) Store() *ExpressionStore { return s.store }

// Set creates or revisits a leaf at path with the given starting value.
func (s *Session) Set(path Path, value float64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.ns.Set(path, value)
}

// SetConstant marks the leaf at path constant, optionally also setting
// its value.
func (s *Session) SetConstant(path Path, values ...float64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.ns.SetConstant(path, values...)
}

// DeclareDenseVector creates a dense-vector container at path.
func (s *Session) DeclareDenseVector(path Path, length int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.ns.DeclareDenseVector(path, length)
}

// Var returns the expression handle for the leaf previously created at
// path with Set or SetConstant. The handle encodes the leaf's provisional
// insertion index; differentiation and JIT compilation translate it to
// the leaf's dense index via the VarConfig produced by Freeze.
func (s *Session) Var(path Path) (Handle, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	node, err := s.ns.walk(path)
	if err != nil {
		return 0, err
	}
	if node.kind != vnLeaf {
		return 0, newErr(KindIsNotLeaf, "%s is not a value leaf", path)
	}
	return varHandle(node.leaf.q), nil
}

// Freeze freezes the namespace and returns its VarConfig.
func (s *Session) Freeze() (*VarConfig, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.ns.Freeze()
}

// Unfreeze unfreezes the namespace.
func (s *Session) Unfreeze() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.ns.Unfreeze()
}

// OpenJITContext opens a JITCallContext over jit, which must have been
// built from this session's own store and VarConfig. The session must
// already be frozen (NotFrozen otherwise); the returned context's Close
// method unfreezes it again.
func (s *Session) OpenJITContext(jit *JITCompiler) (*JITCallContext, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if !s.ns.Frozen() {
		return nil, newErr(KindNotFrozen, "session must be frozen before opening a JIT call context")
	}
	ctx := jit.NewContext()
	ctx.session = s
	return ctx, nil
}

// Dump returns an informational, stable snapshot of every live leaf and
// every store node, in the format an out-of-core serializer reads: leaves
// as {q, i, x, c} tuples, nodes keyed by their own index.
func (s *Session) Dump() (leaves []LeafDumpEntry, nodes []ExprDumpEntry) {
	return s.ns.Dump(), s.store.Dump()
}
