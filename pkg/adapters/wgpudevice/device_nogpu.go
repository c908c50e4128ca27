//go:build nogpu

package wgpudevice

import (
	"fmt"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// Probe reports that the binary was built without GPU support.
func Probe() (ports.ComputeDevice, error) {
	return nil, fmt.Errorf("%w: built with nogpu", pipeline.ErrDeviceUnavailable)
}
