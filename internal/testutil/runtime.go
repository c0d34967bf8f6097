package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cozy-creator/summarize-server/internal/runtime"
)

// Distribution returns next-token log-probabilities for a decoder prefix.
type Distribution func(prefix []int) []runtime.Candidate

// Scripted emits script token by token, then EOS. Positions past the script
// strongly prefer filler so a minimum length can still be met.
func Scripted(script []int, filler int) Distribution {
	return func(prefix []int) []runtime.Candidate {
		pos := len(prefix) - 1
		if pos < len(script) {
			return []runtime.Candidate{
				{Token: script[pos], LogProb: -0.1},
				{Token: filler, LogProb: -3.0},
				{Token: EOSID, LogProb: -4.0},
			}
		}
		return []runtime.Candidate{
			{Token: EOSID, LogProb: -0.05},
			{Token: filler, LogProb: -0.5},
			{Token: TokenDot, LogProb: -2.0},
		}
	}
}

// Repeating never offers EOS; generation only stops at the length bound.
func Repeating(token int) Distribution {
	return func(prefix []int) []runtime.Candidate {
		return []runtime.Candidate{
			{Token: token, LogProb: -0.01},
			{Token: TokenDot, LogProb: -7.0},
		}
	}
}

// OnlyEOS ends every prefix immediately.
func OnlyEOS() Distribution {
	return func(prefix []int) []runtime.Candidate {
		return []runtime.Candidate{{Token: EOSID, LogProb: -0.01}}
	}
}

// FakeRuntime is an in-memory runtime.Backend.
type FakeRuntime struct {
	mu sync.Mutex

	DeviceList []runtime.Device
	Reentrant  bool
	Dist       Distribution
	StepDelay  time.Duration
	// IgnoreSuppress makes Step return suppressed tokens anyway.
	IgnoreSuppress bool
	// ExtraRows appends rows beyond the prefixes sent.
	ExtraRows int

	DevicesErr error
	LoadErr    error
	EncodeErr  error
	StepErr    error
	TrainFunc  func(ctx context.Context, req runtime.TrainRequest) (*runtime.TrainResult, error)

	Loads     []runtime.LoadRequest
	Unloads   []string
	Encodes   []runtime.EncodeRequest
	Steps     []runtime.StepRequest
	Released  []string
	Trainings []runtime.TrainRequest

	sessions    int
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

var _ runtime.Backend = (*FakeRuntime)(nil)

func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		DeviceList: []runtime.Device{{Kind: runtime.DeviceCPU, Available: true}},
		Reentrant:  true,
		Dist:       Scripted([]int{TokenThe, TokenCat, TokenSat, TokenDot}, TokenCat),
	}
}

func (f *FakeRuntime) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (f *FakeRuntime) Devices(ctx context.Context) ([]runtime.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DevicesErr != nil {
		return nil, f.DevicesErr
	}
	return slices.Clone(f.DeviceList), nil
}

func (f *FakeRuntime) Load(ctx context.Context, req runtime.LoadRequest) (*runtime.ModelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Loads = append(f.Loads, req)
	if f.LoadErr != nil {
		return nil, f.LoadErr
	}
	return &runtime.ModelInfo{
		Handle:    fmt.Sprintf("model-%d", len(f.Loads)),
		Device:    req.Device,
		Reentrant: f.Reentrant,
		VocabSize: VocabSize,
	}, nil
}

func (f *FakeRuntime) Unload(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Unloads = append(f.Unloads, handle)
	return nil
}

func (f *FakeRuntime) Encode(ctx context.Context, req runtime.EncodeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Encodes = append(f.Encodes, req)
	if f.EncodeErr != nil {
		return "", f.EncodeErr
	}
	f.sessions++
	return fmt.Sprintf("session-%d", f.sessions), nil
}

func (f *FakeRuntime) Step(ctx context.Context, req runtime.StepRequest) ([][]runtime.Candidate, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if f.StepDelay > 0 {
		select {
		case <-time.After(f.StepDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.Steps = append(f.Steps, req)
	err := f.StepErr
	dist := f.Dist
	suppress := req.Suppress
	if f.IgnoreSuppress {
		suppress = nil
	}
	extra := f.ExtraRows
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}

	out := make([][]runtime.Candidate, len(req.Prefixes), len(req.Prefixes)+extra)
	for i, prefix := range req.Prefixes {
		out[i] = topK(dist(prefix), suppress, req.TopK)
	}
	for range extra {
		out = append(out, topK(dist(req.Prefixes[0]), suppress, req.TopK))
	}
	return out, nil
}

func (f *FakeRuntime) Release(ctx context.Context, handle, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Released = append(f.Released, session)
	return nil
}

func (f *FakeRuntime) Train(ctx context.Context, req runtime.TrainRequest) (*runtime.TrainResult, error) {
	f.mu.Lock()
	f.Trainings = append(f.Trainings, req)
	fn := f.TrainFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &runtime.TrainResult{OutputDir: req.OutputDir}, nil
}

func (f *FakeRuntime) Close() error {
	return nil
}

// MaxInFlight reports the largest number of concurrent Step calls observed.
func (f *FakeRuntime) MaxInFlight() int {
	return int(f.maxInFlight.Load())
}

func (f *FakeRuntime) StepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Steps)
}

func (f *FakeRuntime) ReleasedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Released)
}

func topK(cands []runtime.Candidate, suppress []int, k int) []runtime.Candidate {
	out := make([]runtime.Candidate, 0, len(cands))
	for _, c := range cands {
		if !slices.Contains(suppress, c.Token) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LogProb > out[j].LogProb })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
