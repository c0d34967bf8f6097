package modelstore

import (
	"fmt"
	"strings"

	"github.com/cozy-creator/summarize-server/internal/runtime"
)

const DeviceAuto = "auto"

var acceleratorPreference = []runtime.DeviceKind{runtime.DeviceCUDA, runtime.DeviceMPS}

// SelectDevice picks where the model lives. "auto" takes the first available
// accelerator and falls back to the CPU. Anything else must name an available
// device, either by kind ("cuda") or exactly ("cuda:1").
func SelectDevice(devices []runtime.Device, preferred string) (runtime.Device, error) {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if preferred == "" || preferred == DeviceAuto {
		for _, kind := range acceleratorPreference {
			for _, d := range devices {
				if d.Kind == kind && d.Available {
					return d, nil
				}
			}
		}
		return runtime.Device{Kind: runtime.DeviceCPU, Available: true}, nil
	}

	if preferred == string(runtime.DeviceCPU) {
		return runtime.Device{Kind: runtime.DeviceCPU, Available: true}, nil
	}

	for _, d := range devices {
		if !d.Available {
			continue
		}
		if d.String() == preferred || string(d.Kind) == preferred {
			return d, nil
		}
	}

	return runtime.Device{}, fmt.Errorf("device %q is not available", preferred)
}
