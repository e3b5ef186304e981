package refdrv

import (
	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/parallel"
)

// Package is the op package served by the built-in registry.
const Package = "qti.aisw"

// KernelArgs gives a kernel its bound buffers and parameters.
type KernelArgs struct {
	Inputs   []*driver.Tensor
	Outputs  []*driver.Tensor
	Params   map[string]driver.Param
	Parallel parallel.Config
}

// Kernel runs one node on the host.
type Kernel func(args *KernelArgs) driver.Status

// Validator checks a node description before it enters a graph.
type Validator func(op *driver.OpConfig) driver.Status

// OpDef describes one operator type.
type OpDef struct {
	NumInputs  int
	NumOutputs int
	Validate   Validator
	Run        Kernel
}

// Registry maps operator types to their definitions.
type Registry struct {
	ops map[string]OpDef
}

// NewRegistry creates a registry with all built-in operators.
func NewRegistry() *Registry {
	r := &Registry{ops: make(map[string]OpDef)}

	r.registerElementwise()
	r.registerActivations()
	r.registerShapeOps()
	r.registerMatMul()

	return r
}

// Register adds or replaces an operator type.
func (r *Registry) Register(typeName string, def OpDef) {
	r.ops[typeName] = def
}

// Get returns the definition of an operator type.
func (r *Registry) Get(typeName string) (OpDef, bool) {
	def, ok := r.ops[typeName]
	return def, ok
}

// SupportedOps returns all registered operator types.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.ops))
	for op := range r.ops {
		ops = append(ops, op)
	}
	return ops
}

// Validate checks an op config against its definition: package, arity,
// float32 element types, then the op-specific validator.
func (r *Registry) Validate(op *driver.OpConfig) driver.Status {
	if op.PackageName != Package {
		return driver.StatusOf(driver.CodeOpNotSupported)
	}
	def, ok := r.ops[op.TypeName]
	if !ok {
		return driver.StatusOf(driver.CodeOpNotSupported)
	}
	if len(op.Inputs) != def.NumInputs || len(op.Outputs) != def.NumOutputs {
		return driver.StatusOf(driver.CodeOpInvalidTensors)
	}
	for i := range op.Inputs {
		if op.Inputs[i].DataType != driver.Float32 {
			return driver.StatusOf(driver.CodeOpInvalidTensors)
		}
	}
	for i := range op.Outputs {
		if op.Outputs[i].DataType != driver.Float32 {
			return driver.StatusOf(driver.CodeOpInvalidTensors)
		}
	}
	for i := range op.Params {
		if op.Params[i].Kind != driver.ParamScalar && op.Params[i].Kind != driver.ParamTensor {
			return driver.StatusOf(driver.CodeOpInvalidParam)
		}
	}
	if def.Validate != nil {
		return def.Validate(op)
	}
	return driver.Success
}

func findParam(op *driver.OpConfig, name string) (driver.Param, bool) {
	for i := range op.Params {
		if op.Params[i].Name == name {
			return op.Params[i], true
		}
	}
	return driver.Param{}, false
}

func sameElements(tensors ...driver.Tensor) bool {
	n := tensors[0].NumElements()
	for i := range tensors[1:] {
		if tensors[i+1].NumElements() != n {
			return false
		}
	}
	return true
}
