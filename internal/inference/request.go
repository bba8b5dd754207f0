package inference

// Options carries per-call overrides. Nil fields keep the default.
type Options struct {
	MaxLength     *int
	Temperature   *float64
	TopP          *float64
	Seed          *int64
	RepeatPenalty *float64
	RepeatLastN   *int
	UseCache      *bool
}

// Resolve applies opts on top of defaults.
func Resolve(opts Options, defaults Config) Config {
	cfg := defaults
	cfg.StopTokens = append([]int(nil), defaults.StopTokens...)

	if opts.MaxLength != nil {
		cfg.MaxLength = *opts.MaxLength
	}
	if opts.Temperature != nil {
		cfg.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		cfg.TopP = *opts.TopP
	}
	if opts.Seed != nil {
		cfg.Seed = *opts.Seed
	}
	if opts.RepeatPenalty != nil {
		cfg.RepeatPenalty = *opts.RepeatPenalty
	}
	if opts.RepeatLastN != nil {
		cfg.RepeatLastN = *opts.RepeatLastN
	}
	if opts.UseCache != nil {
		cfg.UseCache = *opts.UseCache
	}
	return cfg
}
