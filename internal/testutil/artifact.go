// Package testutil holds fixtures shared by package tests: a tiny on-disk
// model artifact and a scripted in-memory runtime.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// Token ids of the fixture vocabulary.
const (
	PadID = 0
	EOSID = 1
	UnkID = 2

	TokenSpace     = 3
	TokenHello     = 4
	TokenWorld     = 5
	TokenSummarize = 6
	TokenColon     = 7
	TokenThe       = 8
	TokenCat       = 9
	TokenSat       = 10
	TokenDot       = 11
)

// TokenizerJSON is a minimal Unigram tokenizer.json.
const TokenizerJSON = `{
  "version": "1.0",
  "added_tokens": [
    {"id": 0, "content": "<pad>", "special": true},
    {"id": 1, "content": "</s>", "special": true},
    {"id": 2, "content": "<unk>", "special": true}
  ],
  "model": {
    "type": "Unigram",
    "unk_id": 2,
    "vocab": [
      ["<pad>", 0.0], ["</s>", 0.0], ["<unk>", 0.0],
      ["▁", -2.0], ["▁hello", -1.0], ["▁world", -1.5], ["▁summarize", -1.0],
      [":", -2.0], ["▁the", -1.0], ["▁cat", -1.0], ["▁sat", -1.0], [".", -1.0]
    ]
  }
}`

// VocabSize is the number of entries in TokenizerJSON.
const VocabSize = 12

type ArtifactOptions struct {
	Architecture string
	ModelType    string
	SkipWeights  bool
	SkipTokens   bool
}

// WriteArtifact writes a loadable seq2seq artifact into a fresh temp dir.
func WriteArtifact(t testing.TB) string {
	t.Helper()
	return WriteArtifactWith(t, ArtifactOptions{})
}

func WriteArtifactWith(t testing.TB, opts ArtifactOptions) string {
	t.Helper()

	dir := t.TempDir()
	WriteArtifactTo(t, dir, opts)
	return dir
}

func WriteArtifactTo(t testing.TB, dir string, opts ArtifactOptions) {
	t.Helper()

	if opts.Architecture == "" {
		opts.Architecture = "T5ForConditionalGeneration"
	}
	if opts.ModelType == "" {
		opts.ModelType = "t5"
	}

	cfg := map[string]any{
		"architectures":          []string{opts.Architecture},
		"model_type":             opts.ModelType,
		"decoder_start_token_id": PadID,
		"eos_token_id":           EOSID,
		"pad_token_id":           PadID,
		"vocab_size":             VocabSize,
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "config.json"), raw)
	if !opts.SkipTokens {
		writeFile(t, filepath.Join(dir, "tokenizer.json"), []byte(TokenizerJSON))
	}
	if !opts.SkipWeights {
		writeFile(t, filepath.Join(dir, "model.safetensors"), []byte("weights"))
	}
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}
