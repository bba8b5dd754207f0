package inference

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig reports generation settings the decode loop cannot run.
var ErrInvalidConfig = errors.New("invalid generation config")

// StreamFunc receives each decoded text fragment as soon as it is complete.
type StreamFunc func(fragment string)

// Config controls one local generation.
type Config struct {
	// MaxLength bounds the number of generated tokens. The decoder start
	// token is not counted.
	MaxLength     int
	Temperature   float64
	TopP          float64
	Seed          int64
	RepeatPenalty float64
	RepeatLastN   int
	// StopTokens overrides the engine's stop set when non-empty.
	StopTokens []int
	UseCache   bool
}

// DefaultConfig is the setting committer ships with: greedy decoding with a
// strong repetition penalty.
func DefaultConfig() Config {
	return Config{
		MaxLength:     512,
		Temperature:   0,
		TopP:          0,
		Seed:          299792458,
		RepeatPenalty: 1.9,
		RepeatLastN:   64,
		UseCache:      true,
	}
}

// Validate reports the first setting outside its domain.
func (c Config) Validate() error {
	switch {
	case c.MaxLength < 1:
		return fmt.Errorf("%w: max length %d must be at least 1", ErrInvalidConfig, c.MaxLength)
	case math.IsNaN(c.Temperature) || c.Temperature < 0:
		return fmt.Errorf("%w: temperature %v must be >= 0", ErrInvalidConfig, c.Temperature)
	case math.IsNaN(c.TopP) || c.TopP < 0 || c.TopP > 1:
		return fmt.Errorf("%w: top-p %v must be in [0, 1]", ErrInvalidConfig, c.TopP)
	case math.IsNaN(c.RepeatPenalty) || c.RepeatPenalty <= 0:
		return fmt.Errorf("%w: repeat penalty %v must be > 0", ErrInvalidConfig, c.RepeatPenalty)
	case c.RepeatLastN < 0:
		return fmt.Errorf("%w: repeat window %d must be >= 0", ErrInvalidConfig, c.RepeatLastN)
	}
	for _, id := range c.StopTokens {
		if id < 0 {
			return fmt.Errorf("%w: stop token %d is negative", ErrInvalidConfig, id)
		}
	}
	return nil
}

type Stats struct {
	PromptTokens    int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

type Result struct {
	Text  string
	Stats Stats
}
