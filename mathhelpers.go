package symjit

import (
	"math"
	"reflect"
)

// mathHelperTable maps a UnaryFn that callsRuntimeHelper() to the code
// address of the stdlib math function that implements it, found the same
// way the launix memcp JIT locates a function's entry point for dynamic
// dispatch: reflect.ValueOf(fn).Pointer(). Go's ABIInternal calling
// convention for a func(float64) float64 passes the argument and the
// result in X0, which is exactly the register the JIT leaves its operand
// in and expects its result back in, so the generated call site needs no
// argument shuffling beyond the call itself.
var mathHelperTable = buildMathHelperTable()

func buildMathHelperTable() map[UnaryFn]uintptr {
	addr := func(fn func(float64) float64) uintptr {
		return reflect.ValueOf(fn).Pointer()
	}
	return map[UnaryFn]uintptr{
		FnExp:  addr(math.Exp),
		FnLog:  addr(math.Log),
		FnSin:  addr(math.Sin),
		FnCos:  addr(math.Cos),
		FnTan:  addr(math.Tan),
		FnAsin: addr(math.Asin),
		FnAcos: addr(math.Acos),
		FnAtan: addr(math.Atan),
	}
}

// mathHelperAddr returns the call target for fn, panicking if fn is not
// one of the runtime-helper functions (callsRuntimeHelper() false means
// the JIT must emit an inline sequence instead, never reach here).
func mathHelperAddr(fn UnaryFn) uintptr {
	addr, ok := mathHelperTable[fn]
	if !ok {
		panic("symjit: " + fn.String() + " has no runtime helper; it must be emitted inline")
	}
	return addr
}
