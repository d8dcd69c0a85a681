package donut

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Device is where the model weights are placed.
type Device struct {
	Type       string // "cuda" | "cpu"
	DeviceName string
	DriverVer  string
}

func (d Device) String() string {
	if d.DeviceName == "" {
		return d.Type
	}
	return d.Type + " (" + d.DeviceName + ")"
}

var (
	detectedDevice     Device
	detectedDeviceOnce sync.Once
)

// DetectDevice reports CUDA when an NVIDIA GPU is visible, CPU otherwise.
// Results are cached after the first call.
func DetectDevice() Device {
	detectedDeviceOnce.Do(func() {
		detectedDevice = detectCUDA()
	})
	return detectedDevice
}

// ResolveDevice applies a configured mode ("auto", "cpu", "cuda") on top of detection.
func ResolveDevice(mode string, detect func() Device) Device {
	switch mode {
	case "cpu":
		return Device{Type: "cpu"}
	case "cuda":
		d := detect()
		d.Type = "cuda"
		return d
	default:
		return detect()
	}
}

func detectCUDA() Device {
	if d, ok := tryNvidiaSMI(); ok {
		return d
	}
	if cudaLibsExist() {
		return Device{Type: "cuda", DeviceName: "CUDA (libraries detected)"}
	}
	return Device{Type: "cpu"}
}

func tryNvidiaSMI() (Device, bool) {
	nvidiaSMI, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return Device{}, false
	}
	out, err := exec.Command(nvidiaSMI, "--query-gpu=name,driver_version", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return Device{}, false
	}
	first := strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)[0]
	parts := strings.Split(first, ", ")
	d := Device{Type: "cuda"}
	if len(parts) >= 1 {
		d.DeviceName = strings.TrimSpace(parts[0])
	}
	if len(parts) >= 2 {
		d.DriverVer = strings.TrimSpace(parts[1])
	}
	return d, true
}

func cudaLibsExist() bool {
	dirs := []string{"/usr/local/cuda/lib64", "/usr/lib/x86_64-linux-gnu"}
	if ld := os.Getenv("LD_LIBRARY_PATH"); ld != "" {
		dirs = append(strings.Split(ld, ":"), dirs...)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if matches, _ := filepath.Glob(filepath.Join(dir, "libcudart.so*")); len(matches) > 0 {
			return true
		}
	}
	return false
}
