package composite

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/user/watermark/pkg/budget"
	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// GPUThreshold is the smallest image, in pixels, that auto mode sends to
// the GPU. Below it upload and dispatch cost more than CPU blending.
const GPUThreshold = 512 * 512

// Directive is the user's GPU preference.
type Directive string

const (
	DirectiveAuto Directive = "auto"
	DirectiveOn   Directive = "on"
	DirectiveOff  Directive = "off"
)

// ParseDirective parses auto, on or off. "true"/"false" are accepted as
// aliases for on/off.
func ParseDirective(s string) (Directive, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DirectiveAuto, nil
	case "on", "true", "gpu":
		return DirectiveOn, nil
	case "off", "false", "cpu":
		return DirectiveOff, nil
	default:
		return "", fmt.Errorf("%w: unknown gpu directive %q", pipeline.ErrInvalidSpec, s)
	}
}

// Select picks a backend for an image of pixels pixels.
// off always yields CPU. on yields GPU or ErrDeviceUnavailable. auto
// yields GPU only when a device exists and the image reaches GPUThreshold.
func Select(directive Directive, pixels int, deviceAvailable bool) (BackendKind, error) {
	switch directive {
	case DirectiveOff:
		return BackendCPU, nil
	case DirectiveOn:
		if !deviceAvailable {
			return BackendCPU, pipeline.ErrDeviceUnavailable
		}
		return BackendGPU, nil
	default:
		if deviceAvailable && pixels >= GPUThreshold {
			return BackendGPU, nil
		}
		return BackendCPU, nil
	}
}

// ProbeFunc opens the process-wide compute device.
type ProbeFunc func() (ports.ComputeDevice, error)

// SelectorConfig configures a Selector.
type SelectorConfig struct {
	Directive     Directive
	AllowFallback bool // let "on" degrade to CPU when no device exists
	Threads       int  // 0 = auto
	Probe         ProbeFunc
	Budget        *budget.Budget
	Logger        ports.Logger
}

// Selector resolves backends for a run. The device is probed at most once
// and shared by every job.
type Selector struct {
	cfg    SelectorConfig
	logger ports.Logger

	once     sync.Once
	device   ports.ComputeDevice
	probeErr error

	cpuOnce sync.Once
	cpu     *CPU
	gpuMu   sync.Mutex
	gpu     *GPU
}

// NewSelector creates a selector.
func NewSelector(cfg SelectorConfig) *Selector {
	if cfg.Directive == "" {
		cfg.Directive = DirectiveAuto
	}
	return &Selector{
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("backend"),
	}
}

// Directive returns the configured directive.
func (s *Selector) Directive() Directive {
	return s.cfg.Directive
}

// AllowsCPUFallback reports whether a failed GPU job may be retried on
// the CPU. Only auto mode and explicit fallback allow it.
func (s *Selector) AllowsCPUFallback() bool {
	return s.cfg.Directive == DirectiveAuto || s.cfg.AllowFallback
}

// probe opens the device once.
func (s *Selector) probe() (ports.ComputeDevice, error) {
	s.once.Do(func() {
		if s.cfg.Probe == nil {
			s.probeErr = pipeline.ErrDeviceUnavailable
			return
		}
		s.device, s.probeErr = s.cfg.Probe()
		if s.probeErr == nil {
			s.logger.Info("Using GPU: %s", s.device.Name())
		} else {
			s.logger.Debug("No GPU available: %v", s.probeErr)
		}
	})
	return s.device, s.probeErr
}

// Select resolves the backend for an image of pixels pixels.
func (s *Selector) Select(pixels int) (BackendChoice, error) {
	available := false
	if s.cfg.Directive != DirectiveOff {
		_, err := s.probe()
		available = err == nil
	}

	kind, err := Select(s.cfg.Directive, pixels, available)
	if err != nil {
		if !s.cfg.AllowFallback {
			return BackendChoice{}, fmt.Errorf("gpu requested: %w", err)
		}
		s.logger.Warn("GPU requested but unavailable, falling back to CPU")
		kind = BackendCPU
	}

	return BackendChoice{Kind: kind, Threads: s.threadsFor(kind)}, nil
}

func (s *Selector) threadsFor(kind BackendKind) int {
	if s.cfg.Threads > 0 {
		return s.cfg.Threads
	}
	if kind == BackendGPU {
		return 1
	}
	return runtime.NumCPU()
}

// Compositor returns the compositor for choice.
func (s *Selector) Compositor(choice BackendChoice) (Compositor, error) {
	if choice.Kind == BackendGPU {
		device, err := s.probe()
		if err != nil {
			return nil, err
		}
		s.gpuMu.Lock()
		defer s.gpuMu.Unlock()
		if s.gpu == nil {
			s.gpu = NewGPU(device, nil, s.cfg.Logger)
		}
		return s.gpu, nil
	}
	return s.CPU(choice.Threads), nil
}

// CPU returns a CPU compositor with the given thread count.
func (s *Selector) CPU(threads int) *CPU {
	s.cpuOnce.Do(func() {
		s.cpu = NewCPU(s.threadsFor(BackendCPU), s.cfg.Budget, s.cfg.Logger)
	})
	if threads > 0 && threads != s.cpu.Threads() {
		return NewCPU(threads, s.cfg.Budget, s.cfg.Logger)
	}
	return s.cpu
}

// Close releases the device if one was opened.
func (s *Selector) Close() error {
	if s.device != nil {
		return s.device.Close()
	}
	return nil
}
