package manager

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/backend"
	"github.com/born-ml/accel/internal/ctxbin"
	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/wrapper"
)

var errNotInitialized = errors.New("backend is not initialized")

// IsNodeSupportedByBackend reports whether the backend accepts every op.
// Parameters are populated and each op is validated in turn; the first
// rejection stops the scan. The graph is not touched.
func (m *Manager) IsNodeSupportedByBackend(ops []*wrapper.Op) bool {
	if m.bundle.State != backend.StateInitialized {
		klog.ErrorS(errNotInitialized, "Op validation rejected")
		return false
	}

	for _, op := range ops {
		for _, p := range op.Params() {
			if err := p.Populate(); err != nil {
				klog.ErrorS(err, "Op validation failed", "op", op.Name(), "param", p.Name())
				return false
			}
		}
		if err := m.bundle.Backend.ValidateOp(op); err != nil {
			klog.ErrorS(err, "Op validation failed", "op", op.Name(), "code", driver.Code(err))
			return false
		}
	}
	return true
}

// Compile adds ops to the graph in order and finalizes it. Every tensor an
// op refers to, including tensor-valued parameters, is registered before
// the op's node is added. Unless the manager prepares graphs online, the
// resulting context binary is returned.
//
// On error the graph is left partially built and cannot be reused; Destroy
// the manager before trying again.
func (m *Manager) Compile(ops []*wrapper.Op) (ctxbin.ContextBinary, error) {
	if m.bundle.State != backend.StateInitialized {
		return nil, internalError(errNotInitialized, "compile")
	}
	g := m.bundle.Graph

	for _, op := range ops {
		for _, t := range op.Inputs() {
			if err := g.EnsureTensor(t); err != nil {
				klog.ErrorS(err, "Tensor isn't added to graph", "tensor", t.Name(), "op", op.Name())
				return nil, internalError(err, "input tensor %q of %s", t.Name(), op.Name())
			}
		}
		for _, t := range op.Outputs() {
			if err := g.EnsureTensor(t); err != nil {
				klog.ErrorS(err, "Tensor isn't added to graph", "tensor", t.Name(), "op", op.Name())
				return nil, internalError(err, "output tensor %q of %s", t.Name(), op.Name())
			}
		}
		for _, p := range op.Params() {
			if p.Kind() == driver.ParamTensor {
				t := p.Tensor()
				if t == nil {
					return nil, internalError(fmt.Errorf("no tensor bound"), "param %q of %s", p.Name(), op.Name())
				}
				if err := g.EnsureTensor(t); err != nil {
					klog.ErrorS(err, "Param tensor isn't added to graph", "param", p.Name(), "op", op.Name())
					return nil, internalError(err, "param tensor %q of %s", p.Name(), op.Name())
				}
			}
			if err := p.Populate(); err != nil {
				klog.ErrorS(err, "Failed to populate param", "param", p.Name(), "op", op.Name())
				return nil, internalError(err, "populate param %q of %s", p.Name(), op.Name())
			}
		}

		if err := g.AddNode(op); err != nil {
			return nil, internalError(err, "add node %s", op.Name())
		}
	}

	if err := g.Finalize(); err != nil {
		return nil, internalError(err, "finalize graph %s", g.Name())
	}

	// An online-prepared graph is rebuilt on device, there is nothing to cache.
	if m.IsOnlinePrepare() {
		return nil, nil
	}

	blob, err := m.bundle.Context.Binary()
	if err != nil {
		return nil, internalError(err, "get context binary")
	}
	klog.V(2).InfoS("Compiled graph", "graph", g.Name(), "ops", len(ops), "contextBinarySize", len(blob))
	return blob, nil
}
