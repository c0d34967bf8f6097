package runtime

import "fmt"

type Op string

const (
	OpPing    Op = "ping"
	OpDevices Op = "devices"
	OpLoad    Op = "load"
	OpUnload  Op = "unload"
	OpEncode  Op = "encode"
	OpStep    Op = "step"
	OpRelease Op = "release"
	OpTrain   Op = "train"
)

type DeviceKind string

const (
	DeviceCUDA DeviceKind = "cuda"
	DeviceMPS  DeviceKind = "mps"
	DeviceCPU  DeviceKind = "cpu"
)

type Device struct {
	Kind        DeviceKind `msgpack:"kind" json:"kind"`
	Index       int        `msgpack:"index" json:"index"`
	Name        string     `msgpack:"name" json:"name,omitempty"`
	Available   bool       `msgpack:"available" json:"available"`
	MemoryTotal uint64     `msgpack:"memory_total" json:"memory_total,omitempty"`
	MemoryFree  uint64     `msgpack:"memory_free" json:"memory_free,omitempty"`
}

func (d Device) String() string {
	if d.Kind == DeviceCPU || d.Kind == "" {
		return string(DeviceCPU)
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.Index)
}

func (d Device) IsAccelerator() bool {
	return d.Kind == DeviceCUDA || d.Kind == DeviceMPS
}

type LoadRequest struct {
	ArtifactDir  string `msgpack:"artifact_dir"`
	Architecture string `msgpack:"architecture"`
	Device       string `msgpack:"device"`
	// InferenceOnly switches the model to eval mode with gradient tracking disabled.
	InferenceOnly bool `msgpack:"inference_only"`
	FP16          bool `msgpack:"fp16"`
}

type ModelInfo struct {
	Handle string `msgpack:"handle"`
	Device string `msgpack:"device"`
	// Reentrant reports whether concurrent forward passes on this model are safe.
	Reentrant     bool  `msgpack:"reentrant"`
	VocabSize     int   `msgpack:"vocab_size"`
	ParameterSize int64 `msgpack:"parameter_size"`
}

type EncodeRequest struct {
	Handle        string `msgpack:"handle"`
	InputIDs      []int  `msgpack:"input_ids"`
	AttentionMask []int  `msgpack:"attention_mask"`
	Device        string `msgpack:"device"`
}

// StepRequest asks for the TopK most likely next tokens of every decoder prefix.
// Suppress lists token ids whose probability must be forced to zero first.
type StepRequest struct {
	Handle   string  `msgpack:"handle"`
	Session  string  `msgpack:"session"`
	Prefixes [][]int `msgpack:"prefixes"`
	TopK     int     `msgpack:"top_k"`
	Suppress []int   `msgpack:"suppress,omitempty"`
}

type Candidate struct {
	Token   int     `msgpack:"token"`
	LogProb float64 `msgpack:"log_prob"`
}

type Hyperparameters struct {
	BatchSize                 int     `msgpack:"batch_size" json:"batch_size"`
	Epochs                    int     `msgpack:"epochs" json:"epochs"`
	LearningRate              float64 `msgpack:"learning_rate" json:"learning_rate"`
	WeightDecay               float64 `msgpack:"weight_decay" json:"weight_decay"`
	GradientAccumulationSteps int     `msgpack:"gradient_accumulation_steps" json:"gradient_accumulation_steps"`
	SaveTotalLimit            int     `msgpack:"save_total_limit" json:"save_total_limit"`
	LoggingSteps              int     `msgpack:"logging_steps" json:"logging_steps"`
	EvalStrategy              string  `msgpack:"eval_strategy" json:"eval_strategy"`
	FP16                      bool    `msgpack:"fp16" json:"fp16"`
}

type Example struct {
	InputIDs      []int `msgpack:"input_ids"`
	AttentionMask []int `msgpack:"attention_mask"`
	Labels        []int `msgpack:"labels"`
}

type TrainRequest struct {
	BaseArtifactDir string          `msgpack:"base_artifact_dir"`
	OutputDir       string          `msgpack:"output_dir"`
	Device          string          `msgpack:"device"`
	Hyperparameters Hyperparameters `msgpack:"hyperparameters"`
	Train           []Example       `msgpack:"train"`
	Validation      []Example       `msgpack:"validation"`
	Test            []Example       `msgpack:"test"`
}

type TrainResult struct {
	OutputDir   string             `msgpack:"output_dir" json:"output_dir"`
	Steps       int                `msgpack:"steps" json:"steps"`
	TestMetrics map[string]float64 `msgpack:"test_metrics" json:"test_metrics"`
}

type request struct {
	Op      Op             `msgpack:"op"`
	ID      string         `msgpack:"id"`
	Load    *LoadRequest   `msgpack:"load,omitempty"`
	Handle  string         `msgpack:"handle,omitempty"`
	Session string         `msgpack:"session,omitempty"`
	Encode  *EncodeRequest `msgpack:"encode,omitempty"`
	Step    *StepRequest   `msgpack:"step,omitempty"`
	Train   *TrainRequest  `msgpack:"train,omitempty"`
}

type response struct {
	OK         bool          `msgpack:"ok"`
	Code       string        `msgpack:"code,omitempty"`
	Error      string        `msgpack:"error,omitempty"`
	Devices    []Device      `msgpack:"devices,omitempty"`
	Model      *ModelInfo    `msgpack:"model,omitempty"`
	Session    string        `msgpack:"session,omitempty"`
	Candidates [][]Candidate `msgpack:"candidates,omitempty"`
	Train      *TrainResult  `msgpack:"train,omitempty"`
}
