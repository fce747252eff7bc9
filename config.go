package symjit

import env "github.com/xyproto/env/v2"

// Config gathers the environment-driven knobs this package reads at
// startup, parsed with env.Bool/env.Int rather than hand-rolled
// os.Getenv/strconv calls.
type Config struct {
	Debug              bool
	ScratchExtras      int
	LineSearchMaxIters int
}

const (
	defaultScratchExtras      = 8
	defaultLineSearchMaxIters = 50
)

// LoadConfig reads SYMJIT_DEBUG, SYMJIT_SCRATCH_EXTRAS and
// SYMJIT_LINESEARCH_MAX_ITERS from the environment, falling back to
// library defaults when unset.
func LoadConfig() Config {
	return Config{
		Debug:              env.Bool("SYMJIT_DEBUG"),
		ScratchExtras:      env.Int("SYMJIT_SCRATCH_EXTRAS", defaultScratchExtras),
		LineSearchMaxIters: env.Int("SYMJIT_LINESEARCH_MAX_ITERS", defaultLineSearchMaxIters),
	}
}
