package wrapper

import (
	"fmt"

	"github.com/born-ml/accel/internal/driver"
)

// DefaultPackage is the op package of built-in operators.
const DefaultPackage = "qti.aisw"

// Param is one operator parameter: a scalar or a reference to a tensor.
// The kind is fixed at construction.
type Param struct {
	kind   driver.ParamKind
	name   string
	scalar driver.Scalar
	tensor *Tensor

	native    driver.Param
	populated bool
}

// NewScalarParam creates a scalar-valued parameter.
func NewScalarParam(name string, s driver.Scalar) *Param {
	return &Param{kind: driver.ParamScalar, name: name, scalar: s}
}

// NewTensorParam creates a tensor-valued parameter. The tensor is shared,
// not copied.
func NewTensorParam(name string, t *Tensor) *Param {
	return &Param{kind: driver.ParamTensor, name: name, tensor: t}
}

// Kind returns the parameter kind.
func (p *Param) Kind() driver.ParamKind { return p.kind }

// Name returns the parameter name.
func (p *Param) Name() string { return p.name }

// Scalar returns the scalar payload. Only meaningful for ParamScalar.
func (p *Param) Scalar() driver.Scalar { return p.scalar }

// Tensor returns the referenced tensor, or nil for scalar parameters.
func (p *Param) Tensor() *Tensor {
	if p.kind != driver.ParamTensor {
		return nil
	}
	return p.tensor
}

// Populate builds the native representation of the parameter. On failure
// the previously committed native value is left untouched.
func (p *Param) Populate() error {
	np := driver.Param{Kind: p.kind, Name: p.name}

	switch p.kind {
	case driver.ParamScalar:
		if p.scalar.DataType.Size() == 0 {
			return fmt.Errorf("param %q: unsupported scalar type %s", p.name, p.scalar.DataType)
		}
		np.Scalar = p.scalar
	case driver.ParamTensor:
		if p.tensor == nil {
			return fmt.Errorf("param %q: no tensor bound", p.name)
		}
		if err := p.tensor.Validate(); err != nil {
			return fmt.Errorf("param %q: %w", p.name, err)
		}
		np.Tensor = p.tensor.Native()
	default:
		return fmt.Errorf("param %q: unknown kind %d", p.name, p.kind)
	}

	p.native = np
	p.populated = true
	return nil
}

// Native returns the last successfully populated native value.
func (p *Param) Native() (driver.Param, bool) {
	return p.native, p.populated
}

// Op describes one graph node: its type, tensors and parameters.
type Op struct {
	name     string
	pkg      string
	typeName string
	inputs   []*Tensor
	outputs  []*Tensor
	params   []*Param
}

// NewOp creates an operator in the default package.
func NewOp(name, typeName string, inputs, outputs []*Tensor, params ...*Param) *Op {
	return &Op{
		name:     name,
		pkg:      DefaultPackage,
		typeName: typeName,
		inputs:   inputs,
		outputs:  outputs,
		params:   params,
	}
}

// WithPackage sets a custom op package and returns the op.
func (o *Op) WithPackage(pkg string) *Op {
	o.pkg = pkg
	return o
}

// Name returns the node name.
func (o *Op) Name() string { return o.name }

// PackageName returns the op package.
func (o *Op) PackageName() string { return o.pkg }

// TypeName returns the operator type.
func (o *Op) TypeName() string { return o.typeName }

// Inputs returns the input tensors.
func (o *Op) Inputs() []*Tensor { return o.inputs }

// Outputs returns the output tensors.
func (o *Op) Outputs() []*Tensor { return o.outputs }

// Params returns the parameters.
func (o *Op) Params() []*Param { return o.params }

// OpConfig assembles the native node description from the current tensor
// descriptors and the committed parameter values.
func (o *Op) OpConfig() driver.OpConfig {
	cfg := driver.OpConfig{
		Name:        o.name,
		PackageName: o.pkg,
		TypeName:    o.typeName,
		Inputs:      Natives(o.inputs),
		Outputs:     Natives(o.outputs),
		Params:      make([]driver.Param, 0, len(o.params)),
	}
	for _, p := range o.params {
		np, _ := p.Native()
		cfg.Params = append(cfg.Params, np)
	}
	return cfg
}
