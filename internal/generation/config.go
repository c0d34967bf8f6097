package generation

import "time"

const (
	DefaultPrefix         = "summarize: "
	DefaultMaxInputLength = 1024
	DefaultNumBeams       = 4
	DefaultMinLength      = 30
	DefaultMaxLength      = 150
	DefaultLengthPenalty  = 1.0
)

// Config is shared by every request. Lengths count decoder tokens including
// the decoder start token.
type Config struct {
	Prefix         string
	MaxInputLength int
	NumBeams       int
	MinLength      int
	MaxLength      int
	EarlyStopping  bool
	LengthPenalty  float64
	// Timeout bounds a single generation. Zero means no bound.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Prefix:         DefaultPrefix,
		MaxInputLength: DefaultMaxInputLength,
		NumBeams:       DefaultNumBeams,
		MinLength:      DefaultMinLength,
		MaxLength:      DefaultMaxLength,
		EarlyStopping:  true,
		LengthPenalty:  DefaultLengthPenalty,
	}
}
