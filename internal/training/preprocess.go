package training

import (
	"io"
	"os"

	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/tokenizer"

	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

const (
	DefaultPrefix          = "summarize: "
	DefaultMaxInputLength  = 1024
	DefaultMaxTargetLength = 128
)

var progressOutput io.Writer = os.Stderr

type PreprocessConfig struct {
	Prefix          string
	MaxInputLength  int
	MaxTargetLength int
}

func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		Prefix:          DefaultPrefix,
		MaxInputLength:  DefaultMaxInputLength,
		MaxTargetLength: DefaultMaxTargetLength,
	}
}

// Preprocess tokenizes every record to fixed-length inputs and labels.
// Labels keep the pad id in padded positions.
func Preprocess(tok *tokenizer.Tokenizer, records []Record, cfg PreprocessConfig) []runtime.Example {
	examples := make([]runtime.Example, len(records))
	for i, rec := range records {
		examples[i] = preprocessRecord(tok, rec, cfg)
	}
	return examples
}

func preprocessRecord(tok *tokenizer.Tokenizer, rec Record, cfg PreprocessConfig) runtime.Example {
	input := tok.Encode(cfg.Prefix+rec.Dialogue, tokenizer.Options{MaxLength: cfg.MaxInputLength, Pad: true})
	labels := tok.Encode(rec.Summary, tokenizer.Options{MaxLength: cfg.MaxTargetLength, Pad: true})

	return runtime.Example{
		InputIDs:      input.IDs,
		AttentionMask: input.AttentionMask,
		Labels:        labels.IDs,
	}
}

// preprocessWithProgress is Preprocess with a progress bar per split.
func preprocessWithProgress(progress *mpb.Progress, name string, tok *tokenizer.Tokenizer, records []Record, cfg PreprocessConfig) []runtime.Example {
	bar := progress.AddBar(int64(len(records)),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 12, C: decor.DidentRight}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	examples := make([]runtime.Example, len(records))
	for i, rec := range records {
		examples[i] = preprocessRecord(tok, rec, cfg)
		bar.Increment()
	}
	bar.SetTotal(int64(len(records)), true)
	return examples
}
