// Package tokenizer implements the Unigram (SentencePiece) tokenizer stored in
// a Hugging Face tokenizer.json, which is what T5-family checkpoints ship with.
package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	spaceSymbol = "▁"

	PadToken = "<pad>"
	EOSToken = "</s>"
	UnkToken = "<unk>"

	// unkPenalty is subtracted from the lowest piece score to price unknown characters.
	unkPenalty = 10.0
)

var (
	ErrUnsupportedModel = errors.New("unsupported tokenizer model")
	ErrMissingToken     = errors.New("tokenizer is missing a required special token")
	ErrEmptyVocab       = errors.New("tokenizer vocabulary is empty")
)

type Tokenizer struct {
	pieces   map[string]int
	scores   []float64
	vocab    []string
	special  map[int]bool
	maxPiece int
	unkScore float64

	padID int
	eosID int
	unkID int
}

type Options struct {
	// MaxLength bounds the encoded length including the end-of-sequence token.
	// Zero disables truncation.
	MaxLength int
	// Pad right-pads the ids up to MaxLength with the pad token.
	Pad bool
}

type Encoding struct {
	IDs           []int
	AttentionMask []int
	// Length is the encoded length including the end-of-sequence token before
	// truncation. Segmentation stops once MaxLength pieces exist, so for
	// truncated inputs it is a lower bound on the full length.
	Length    int
	Truncated bool
}

type fileFormat struct {
	AddedTokens []addedToken `json:"added_tokens"`
	Model       modelFormat  `json:"model"`
}

type addedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

type modelFormat struct {
	Type  string       `json:"type"`
	UnkID *int         `json:"unk_id"`
	Vocab []vocabEntry `json:"vocab"`
}

type vocabEntry struct {
	Piece string
	Score float64
}

func (v *vocabEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("vocab entry must have 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &v.Piece); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &v.Score)
}

func LoadFile(path string) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return New(f)
}

func New(r io.Reader) (*Tokenizer, error) {
	var file fileFormat
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer: %w", err)
	}

	if !strings.EqualFold(file.Model.Type, "Unigram") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, file.Model.Type)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, ErrEmptyVocab
	}

	t := &Tokenizer{
		pieces:  make(map[string]int, len(file.Model.Vocab)),
		scores:  make([]float64, len(file.Model.Vocab)),
		vocab:   make([]string, len(file.Model.Vocab)),
		special: make(map[int]bool),
		padID:   -1,
		eosID:   -1,
		unkID:   -1,
	}

	minScore := math.Inf(1)
	for id, entry := range file.Model.Vocab {
		t.vocab[id] = entry.Piece
		t.scores[id] = entry.Score
		if _, ok := t.pieces[entry.Piece]; !ok {
			t.pieces[entry.Piece] = id
		}
		if n := len([]rune(entry.Piece)); n > t.maxPiece {
			t.maxPiece = n
		}
		if entry.Score < minScore {
			minScore = entry.Score
		}
	}
	t.unkScore = minScore - unkPenalty

	for _, tok := range file.AddedTokens {
		if tok.Special {
			t.special[tok.ID] = true
		}
		switch tok.Content {
		case PadToken:
			t.padID = tok.ID
		case EOSToken:
			t.eosID = tok.ID
		case UnkToken:
			t.unkID = tok.ID
		}
	}

	if file.Model.UnkID != nil {
		t.unkID = *file.Model.UnkID
	}
	if t.padID < 0 {
		t.padID = t.lookup(PadToken)
	}
	if t.eosID < 0 {
		t.eosID = t.lookup(EOSToken)
	}
	if t.unkID < 0 {
		t.unkID = t.lookup(UnkToken)
	}

	for name, id := range map[string]int{PadToken: t.padID, EOSToken: t.eosID, UnkToken: t.unkID} {
		if id < 0 || id >= len(t.vocab) {
			return nil, fmt.Errorf("%w: %s", ErrMissingToken, name)
		}
		t.special[id] = true
	}

	return t, nil
}

func (t *Tokenizer) lookup(piece string) int {
	if id, ok := t.pieces[piece]; ok {
		return id
	}
	return -1
}

func (t *Tokenizer) PadID() int     { return t.padID }
func (t *Tokenizer) EOSID() int     { return t.eosID }
func (t *Tokenizer) UnkID() int     { return t.unkID }
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

func (t *Tokenizer) IsSpecial(id int) bool {
	return t.special[id]
}

// Encode segments text and appends the end-of-sequence token. Inputs longer
// than opts.MaxLength are truncated, never rejected.
func (t *Tokenizer) Encode(text string, opts Options) Encoding {
	var ids []int
	for _, word := range pretokenize(normalize(text)) {
		// the rest would be truncated away
		if opts.MaxLength > 0 && len(ids) >= opts.MaxLength {
			break
		}
		ids = append(ids, t.segment(word)...)
	}
	ids = append(ids, t.eosID)

	enc := Encoding{Length: len(ids)}
	if opts.MaxLength > 0 && len(ids) > opts.MaxLength {
		ids = append(ids[:opts.MaxLength-1], t.eosID)
		enc.Truncated = true
	}

	mask := make([]int, len(ids), max(len(ids), opts.MaxLength))
	for i := range mask {
		mask[i] = 1
	}

	if opts.Pad && opts.MaxLength > len(ids) {
		for len(ids) < opts.MaxLength {
			ids = append(ids, t.padID)
			mask = append(mask, 0)
		}
	}

	enc.IDs = ids
	enc.AttentionMask = mask
	return enc
}

// Decode maps ids back to text. With skipSpecial, pad/eos/unk and any other
// special added token are dropped.
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.vocab) {
			continue
		}
		if skipSpecial && t.special[id] {
			continue
		}
		sb.WriteString(t.vocab[id])
	}

	text := strings.ReplaceAll(sb.String(), spaceSymbol, " ")
	text = strings.TrimPrefix(text, " ")
	return cleanup(text)
}

func normalize(text string) string {
	text = norm.NFKC.String(text)
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

func pretokenize(text string) []string {
	fields := strings.Fields(text)
	words := make([]string, len(fields))
	for i, f := range fields {
		words[i] = spaceSymbol + f
	}
	return words
}

// segment runs Viterbi over the unigram lattice of a single pre-token.
func (t *Tokenizer) segment(word string) []int {
	runes := []rune(word)
	n := len(runes)

	best := make([]float64, n+1)
	from := make([]int, n+1)
	piece := make([]int, n+1)
	for i := 1; i <= n; i++ {
		best[i] = math.Inf(-1)
	}

	for start := 0; start < n; start++ {
		if math.IsInf(best[start], -1) {
			continue
		}

		matchedSingle := false
		limit := min(n, start+t.maxPiece)
		for end := start + 1; end <= limit; end++ {
			id, ok := t.pieces[string(runes[start:end])]
			if !ok {
				continue
			}
			if end == start+1 {
				matchedSingle = true
			}
			if score := best[start] + t.scores[id]; score > best[end] {
				best[end] = score
				from[end] = start
				piece[end] = id
			}
		}

		if !matchedSingle {
			if score := best[start] + t.unkScore; score > best[start+1] {
				best[start+1] = score
				from[start+1] = start
				piece[start+1] = t.unkID
			}
		}
	}

	var reversed []int
	for pos := n; pos > 0; pos = from[pos] {
		id := piece[pos]
		if id == t.unkID && len(reversed) > 0 && reversed[len(reversed)-1] == t.unkID {
			continue
		}
		reversed = append(reversed, id)
	}

	ids := make([]int, len(reversed))
	for i, id := range reversed {
		ids[len(reversed)-1-i] = id
	}
	return ids
}

var cleanupReplacer = strings.NewReplacer(
	" .", ".",
	" ?", "?",
	" !", "!",
	" ,", ",",
	" ' ", "'",
	" n't", "n't",
	" 'm", "'m",
	" 's", "'s",
	" 've", "'ve",
	" 're", "'re",
)

func cleanup(text string) string {
	return cleanupReplacer.Replace(text)
}
