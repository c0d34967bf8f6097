package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cozy-creator/summarize-server/internal/modelstore"
	"github.com/cozy-creator/summarize-server/internal/runtime"
)

var ErrMalformedStep = errors.New("malformed step response")

type beam struct {
	tokens []int
	// score is the sum of token log-probabilities.
	score float64
}

type hypothesis struct {
	tokens []int
	score  float64
}

// hypotheses keeps the best n finished sequences by length-normalised score.
type hypotheses struct {
	n             int
	lengthPenalty float64
	earlyStopping bool
	items         []hypothesis
	worst         float64
}

func newHypotheses(n int, lengthPenalty float64, earlyStopping bool) *hypotheses {
	return &hypotheses{n: n, lengthPenalty: lengthPenalty, earlyStopping: earlyStopping, worst: math.Inf(1)}
}

func (h *hypotheses) normalise(sum float64, length int) float64 {
	return sum / math.Pow(float64(length), h.lengthPenalty)
}

func (h *hypotheses) add(tokens []int, sum float64) {
	score := h.normalise(sum, len(tokens))
	if len(h.items) >= h.n && score <= h.worst {
		return
	}

	h.items = append(h.items, hypothesis{tokens: tokens, score: score})
	sort.SliceStable(h.items, func(i, j int) bool { return h.items[i].score > h.items[j].score })
	if len(h.items) > h.n {
		h.items = h.items[:h.n]
	}
	h.worst = h.items[len(h.items)-1].score
}

// done reports whether no live beam can beat the worst kept hypothesis.
func (h *hypotheses) done(bestLive float64, curLen int) bool {
	if len(h.items) < h.n {
		return false
	}
	if h.earlyStopping {
		return true
	}
	return h.worst >= h.normalise(bestLive, curLen)
}

func (h *hypotheses) best() (hypothesis, bool) {
	if len(h.items) == 0 {
		return hypothesis{}, false
	}
	return h.items[0], true
}

type scoredToken struct {
	beam  int
	token int
	score float64
}

// beamSearch decodes against an encoded session. Each step asks the runtime
// for the 2*beams best continuations of every live prefix, which always
// contains the global 2*beams best candidates.
func (c *Controller) beamSearch(ctx context.Context, model *modelstore.LoadedModel, session string) (hypothesis, int, error) {
	width := max(c.cfg.NumBeams, 1)
	topK := 2 * width

	beams := []beam{{tokens: []int{model.DecoderStartID}}}
	finished := newHypotheses(width, c.cfg.LengthPenalty, c.cfg.EarlyStopping)
	steps := 0
	done := false

	for curLen := 1; curLen < c.cfg.MaxLength && len(beams) > 0; curLen++ {
		if err := ctx.Err(); err != nil {
			return hypothesis{}, steps, err
		}

		prefixes := make([][]int, len(beams))
		for i, b := range beams {
			prefixes[i] = b.tokens
		}

		var suppress []int
		if curLen < c.cfg.MinLength {
			suppress = []int{model.EOSID}
		}

		rows, err := c.backend.Step(ctx, runtime.StepRequest{
			Handle:   model.Handle,
			Session:  session,
			Prefixes: prefixes,
			TopK:     topK,
			Suppress: suppress,
		})
		if err != nil {
			return hypothesis{}, steps, err
		}
		steps++

		if len(rows) != len(beams) {
			return hypothesis{}, steps, fmt.Errorf("%w: runtime returned %d rows for %d beams", ErrMalformedStep, len(rows), len(beams))
		}

		candidates := make([]scoredToken, 0, len(beams)*topK)
		for i, row := range rows {
			for _, cand := range row {
				// Suppress is advisory; EOS never scores below the minimum length.
				if cand.Token == model.EOSID && curLen < c.cfg.MinLength {
					continue
				}
				candidates = append(candidates, scoredToken{beam: i, token: cand.Token, score: beams[i].score + cand.LogProb})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}

		next := make([]beam, 0, width)
		for rank, cand := range candidates {
			parent := beams[cand.beam].tokens
			if cand.token == model.EOSID {
				if rank < width {
					finished.add(parent, cand.score)
				}
				continue
			}

			tokens := make([]int, len(parent)+1)
			copy(tokens, parent)
			tokens[len(parent)] = cand.token
			next = append(next, beam{tokens: tokens, score: cand.score})
			if len(next) == width {
				break
			}
		}

		beams = next
		if len(candidates) > 0 && finished.done(candidates[0].score, curLen) {
			done = true
			break
		}
	}

	if !done {
		for _, b := range beams {
			finished.add(b.tokens, b.score)
		}
	}

	best, ok := finished.best()
	if !ok {
		return hypothesis{tokens: []int{model.DecoderStartID}}, steps, nil
	}
	return best, steps, nil
}
