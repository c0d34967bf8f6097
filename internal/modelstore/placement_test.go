package modelstore

import (
	"testing"

	"github.com/cozy-creator/summarize-server/internal/runtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectDevice(t *testing.T) {
	cuda0 := runtime.Device{Kind: runtime.DeviceCUDA, Index: 0, Available: true}
	cuda1 := runtime.Device{Kind: runtime.DeviceCUDA, Index: 1, Available: true}
	busy := runtime.Device{Kind: runtime.DeviceCUDA, Index: 0, Available: false}
	mps := runtime.Device{Kind: runtime.DeviceMPS, Available: true}
	cpu := runtime.Device{Kind: runtime.DeviceCPU, Available: true}

	tests := []struct {
		name      string
		devices   []runtime.Device
		preferred string
		want      string
	}{
		{"cpu only", []runtime.Device{cpu}, "auto", "cpu"},
		{"no devices reported", nil, "", "cpu"},
		{"cuda before mps", []runtime.Device{cpu, mps, cuda0}, "auto", "cuda:0"},
		{"mps when no cuda", []runtime.Device{cpu, mps}, "auto", "mps:0"},
		{"skips unavailable", []runtime.Device{busy, cpu}, "auto", "cpu"},
		{"explicit cpu", []runtime.Device{cuda0}, "cpu", "cpu"},
		{"explicit index", []runtime.Device{cuda0, cuda1}, "cuda:1", "cuda:1"},
		{"explicit kind", []runtime.Device{cpu, cuda1}, "CUDA", "cuda:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := SelectDevice(tt.devices, tt.preferred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestSelectDeviceUnavailable(t *testing.T) {
	_, err := SelectDevice([]runtime.Device{{Kind: runtime.DeviceCUDA, Available: false}}, "cuda")
	assert.Error(t, err)

	_, err = SelectDevice(nil, "mps")
	assert.Error(t, err)
}
