//go:build !(linux && amd64)

package main

import "fmt"

// The JIT compiler targets System V AMD64 on Linux only; on every other
// platform these subcommands report why instead of attempting to compile
// anything.

func scenarioQuadratic(ctx *CommandContext) error     { return errUnsupported() }
func scenarioSineValley(ctx *CommandContext) error    { return errUnsupported() }
func scenarioExponential(ctx *CommandContext) error   { return errUnsupported() }
func scenarioVectorOutputs(ctx *CommandContext) error { return errUnsupported() }
func scenarioConstantFreeze(ctx *CommandContext) error { return errUnsupported() }
func scenarioOrderRule(ctx *CommandContext) error      { return errUnsupported() }

func errUnsupported() error {
	return fmt.Errorf("symjit's JIT compiler requires linux/amd64; this scenario cannot run on this platform")
}
