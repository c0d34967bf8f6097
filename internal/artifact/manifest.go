package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

const (
	ConfigFile    = "config.json"
	TokenizerFile = "tokenizer.json"
)

var (
	ErrUnresolvable = errors.New("model locator could not be resolved")
	ErrIncompatible = errors.New("model artifact is incompatible")
)

var weightPatterns = []string{"*.safetensors", "pytorch_model*.bin"}

var seq2seqModelTypes = map[string]bool{
	"t5":      true,
	"mt5":     true,
	"umt5":    true,
	"longt5":  true,
	"bart":    true,
	"mbart":   true,
	"pegasus": true,
}

// ModelConfig is the subset of config.json the server depends on.
type ModelConfig struct {
	Architectures       []string `json:"architectures"`
	ModelType           string   `json:"model_type"`
	IsEncoderDecoder    *bool    `json:"is_encoder_decoder"`
	DecoderStartTokenID *int     `json:"decoder_start_token_id"`
	EOSTokenID          *int     `json:"eos_token_id"`
	PadTokenID          *int     `json:"pad_token_id"`
	VocabSize           int      `json:"vocab_size"`
}

// Architecture returns the declared architecture name, falling back to the model type.
func (c *ModelConfig) Architecture() string {
	if len(c.Architectures) > 0 {
		return c.Architectures[0]
	}
	return c.ModelType
}

func (c *ModelConfig) isSeq2Seq() bool {
	if c.IsEncoderDecoder != nil {
		return *c.IsEncoderDecoder
	}
	for _, arch := range c.Architectures {
		if strings.HasSuffix(arch, "ForConditionalGeneration") {
			return true
		}
	}
	return seq2seqModelTypes[strings.ToLower(c.ModelType)]
}

// Artifact is a resolved, validated model directory.
type Artifact struct {
	Dir           string
	Source        *Source
	Config        ModelConfig
	TokenizerPath string
	WeightFiles   []string
	Fingerprint   string
}

// Inspect validates dir as a sequence-to-sequence artifact and fingerprints it.
func Inspect(dir string) (*Artifact, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolvable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnresolvable, dir)
	}

	configPath := filepath.Join(dir, ConfigFile)
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s: %w", ErrIncompatible, ConfigFile, err)
	}

	var cfg ModelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %w", ErrIncompatible, ConfigFile, err)
	}
	if !cfg.isSeq2Seq() {
		return nil, fmt.Errorf("%w: architecture %q is not an encoder-decoder model", ErrIncompatible, cfg.Architecture())
	}

	tokenizerPath := filepath.Join(dir, TokenizerFile)
	if _, err := os.Stat(tokenizerPath); err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompatible, TokenizerFile)
	}

	var weights []string
	for _, pattern := range weightPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		weights = append(weights, matches...)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no weight files in %s", ErrIncompatible, dir)
	}
	sort.Strings(weights)

	fingerprint, err := fingerprint(configPath, tokenizerPath, weights)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Dir:           dir,
		Config:        cfg,
		TokenizerPath: tokenizerPath,
		WeightFiles:   weights,
		Fingerprint:   fingerprint,
	}, nil
}

// fingerprint hashes config and tokenizer contents plus weight names and sizes.
// Weight contents are not read; they can be gigabytes.
func fingerprint(configPath, tokenizerPath string, weights []string) (string, error) {
	h := blake3.New(32, nil)

	for _, path := range []string{configPath, tokenizerPath} {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", path, err)
		}
	}

	for _, path := range weights {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s:%d\n", filepath.Base(path), info.Size())
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
