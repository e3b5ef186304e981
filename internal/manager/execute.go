package manager

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/backend"
	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/wrapper"
)

// AllocateTensor wraps the finalized graph's inputs and outputs as reported
// by the driver. Previously held tensor lists are replaced.
func (m *Manager) AllocateTensor() error {
	if m.bundle.State != backend.StateInitialized {
		return internalError(errNotInitialized, "allocate tensors")
	}
	inputs, outputs, err := m.bundle.Graph.IO()
	if err != nil {
		return internalError(err, "graph io")
	}
	m.inputs, m.outputs = inputs, outputs
	return nil
}

// AllocateTensorWith adopts caller-built tensor lists, replacing the ones
// held before. The manager keeps the slices; callers must not modify them
// afterwards.
func (m *Manager) AllocateTensorWith(inputs, outputs []*wrapper.Tensor) error {
	m.inputs, m.outputs = inputs, outputs
	return nil
}

// InputTensors returns the tensors set by the last AllocateTensor call.
func (m *Manager) InputTensors() []*wrapper.Tensor {
	return m.inputs
}

// OutputTensors returns the tensors set by the last AllocateTensor call.
func (m *Manager) OutputTensors() []*wrapper.Tensor {
	return m.outputs
}

// Execute runs the graph once with the buffers bound to the given tensors.
// A failure is returned as is; the caller decides whether to retry.
func (m *Manager) Execute(inputs, outputs []*wrapper.Tensor) error {
	if m.bundle.State != backend.StateInitialized {
		return internalError(errNotInitialized, "execute")
	}
	if err := m.bundle.Graph.Execute(inputs, outputs); err != nil {
		klog.ErrorS(err, "Graph execute failed", "code", driver.Code(err))
		return internalError(err, "execute graph %s", m.bundle.Graph.Name())
	}
	return nil
}
