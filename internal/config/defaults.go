package config

import "errors"

const (
	DefaultPort       = 8000
	DefaultRPCPort    = 9008
	DefaultRPCWorkers = 10

	// DefaultMaxBodyBytes caps HTTP request bodies; far above anything that
	// survives truncation to the input length.
	DefaultMaxBodyBytes = 1 << 20

	DefaultModelName = "t5-base"
	DefaultDevice    = "auto"

	DefaultRuntimeAddress  = "localhost:8882"
	DefaultRuntimeTimeout  = 500
	DefaultRuntimePoolSize = 4

	DefaultDBDriver = "sqlite"
	DefaultDBDSN    = "file:./data/summaries.db"

	DefaultSummarizeHome = "~/.summarize"
)

var (
	ErrHomeNotSet       = errors.New("summarize home directory is not set")
	ErrHomeExpandFailed = errors.New("failed to expand summarize home directory")
	ErrConfigNotLoaded  = errors.New("config not loaded")
)
