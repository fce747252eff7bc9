package main

import (
	"flag"
	"fmt"
)

// CommandContext holds the flags common to every subcommand.
type CommandContext struct {
	Verbose bool
}

// run is the CLI's entry point: it parses the global flags, then dispatches
// on the first positional argument as a subcommand.
func run(args []string) error {
	fs := flag.NewFlagSet("symjit-demo", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "print intermediate diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx := &CommandContext{Verbose: *verbose}

	rest := fs.Args()
	if len(rest) == 0 {
		return cmdHelp()
	}

	switch rest[0] {
	case "quadratic":
		return scenarioQuadratic(ctx)
	case "sinevalley":
		return scenarioSineValley(ctx)
	case "exponential":
		return scenarioExponential(ctx)
	case "vectors":
		return scenarioVectorOutputs(ctx)
	case "constfreeze":
		return scenarioConstantFreeze(ctx)
	case "order":
		return scenarioOrderRule(ctx)
	case "help", "--help", "-h":
		return cmdHelp()
	default:
		return fmt.Errorf("unknown scenario: %s\n\nrun 'symjit-demo help' for usage", rest[0])
	}
}

func cmdHelp() error {
	fmt.Println(`symjit-demo - exercises the symjit engine end to end

Usage:
  symjit-demo [-v] <scenario>

Scenarios:
  quadratic    f=(x0-3)^2, one Newton-exact line search step
  sinevalley   f=2-sin(0.35*x0-0.75), gradient descent to within 1e-6 of 1.0
  exponential  f=exp(c), compiled value checked bit-for-bit against math.Exp
  vectors      {a+b, a-b, a*b, a/b} compiled as one vector-output function
  constfreeze  marking leaves constant excludes them from gradient and move
  order        PrerequisiteNotMet when a later-emitted function is called first`)
	return nil
}
