// Package ir loads operator graphs described in HCL.
//
// A graph file declares tensors and ops. Ops refer to tensors by name and
// every reference resolves to the same *wrapper.Tensor, so a tensor shared
// by several ops (or used as a tensor parameter) is registered once.
//
//	tensor "x" {
//	  type  = "app_write"
//	  dtype = "float32"
//	  dims  = [1, 4]
//	}
//
//	tensor "perm" {
//	  type  = "static"
//	  dtype = "uint32"
//	  dims  = [2]
//	  data  = [1, 0]
//	}
//
//	op "clamp" {
//	  type    = "ReluMinMax"
//	  inputs  = ["x"]
//	  outputs = ["y"]
//
//	  param "min_value" {
//	    value = 0
//	  }
//	  param "perm" {
//	    tensor = "perm"
//	  }
//	}
package ir

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/wrapper"
)

// Graph is a decoded graph file. Ops keep file order.
type Graph struct {
	Tensors []*wrapper.Tensor
	Ops     []*wrapper.Op

	byName map[string]*wrapper.Tensor
}

// Tensor returns the tensor declared under name, or nil.
func (g *Graph) Tensor(name string) *wrapper.Tensor {
	return g.byName[name]
}

type hclFile struct {
	Tensors []*hclTensor `hcl:"tensor,block"`
	Ops     []*hclOp     `hcl:"op,block"`
}

type hclTensor struct {
	Name   string    `hcl:"name,label"`
	Type   string    `hcl:"type"`
	DType  string    `hcl:"dtype"`
	Dims   []int     `hcl:"dims"`
	Data   []float64 `hcl:"data,optional"`
	Scale  *float64  `hcl:"scale,optional"`
	Offset *int      `hcl:"offset,optional"`
}

type hclOp struct {
	Name    string      `hcl:"name,label"`
	Type    string      `hcl:"type"`
	Package *string     `hcl:"package,optional"`
	Inputs  []string    `hcl:"inputs"`
	Outputs []string    `hcl:"outputs"`
	Params  []*hclParam `hcl:"param,block"`
}

type hclParam struct {
	Name   string         `hcl:"name,label"`
	DType  *string        `hcl:"dtype,optional"`
	Value  hcl.Expression `hcl:"value,optional"`
	Tensor *string        `hcl:"tensor,optional"`
}

// LoadFile parses and decodes the graph file at path.
func LoadFile(path string) (*Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decode(file, path)
}

// Parse decodes a graph from HCL source. filename is used in diagnostics.
func Parse(src []byte, filename string) (*Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decode(file, filename)
}

func decode(file *hcl.File, filename string) (*Graph, error) {
	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	g := &Graph{byName: make(map[string]*wrapper.Tensor, len(parsed.Tensors))}
	for _, ht := range parsed.Tensors {
		if _, dup := g.byName[ht.Name]; dup {
			return nil, fmt.Errorf("%s: tensor %q declared twice", filename, ht.Name)
		}
		t, err := ht.build()
		if err != nil {
			return nil, fmt.Errorf("%s: tensor %q: %w", filename, ht.Name, err)
		}
		g.Tensors = append(g.Tensors, t)
		g.byName[ht.Name] = t
	}

	seen := make(map[string]bool, len(parsed.Ops))
	for _, ho := range parsed.Ops {
		if seen[ho.Name] {
			return nil, fmt.Errorf("%s: op %q declared twice", filename, ho.Name)
		}
		seen[ho.Name] = true
		op, err := g.buildOp(ho)
		if err != nil {
			return nil, fmt.Errorf("%s: op %q: %w", filename, ho.Name, err)
		}
		g.Ops = append(g.Ops, op)
	}
	return g, nil
}

func (ht *hclTensor) build() (*wrapper.Tensor, error) {
	typ, err := parseTensorType(ht.Type)
	if err != nil {
		return nil, err
	}
	dt, err := parseDataType(ht.DType)
	if err != nil {
		return nil, err
	}

	dims := make([]uint32, len(ht.Dims))
	for i, d := range ht.Dims {
		if d <= 0 || uint64(d) > math.MaxUint32 {
			return nil, fmt.Errorf("invalid dimension %d at axis %d", d, i)
		}
		dims[i] = uint32(d)
	}

	var quant driver.QuantizeParams
	if ht.Scale != nil {
		quant.Encoding = driver.QuantScaleOffset
		quant.ScaleOffset.Scale = float32(*ht.Scale)
		if ht.Offset != nil {
			quant.ScaleOffset.Offset = int32(*ht.Offset)
		}
	}

	var data []byte
	if ht.Data != nil {
		data, err = encode(dt, ht.Data)
		if err != nil {
			return nil, err
		}
	}
	return wrapper.NewTensor(ht.Name, typ, dt, quant, dims, data), nil
}

func (g *Graph) buildOp(ho *hclOp) (*wrapper.Op, error) {
	inputs, err := g.lookup(ho.Inputs)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	outputs, err := g.lookup(ho.Outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}

	params := make([]*wrapper.Param, 0, len(ho.Params))
	for _, hp := range ho.Params {
		p, err := g.buildParam(hp)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", hp.Name, err)
		}
		params = append(params, p)
	}

	op := wrapper.NewOp(ho.Name, ho.Type, inputs, outputs, params...)
	if ho.Package != nil {
		op.WithPackage(*ho.Package)
	}
	return op, nil
}

func (g *Graph) lookup(names []string) ([]*wrapper.Tensor, error) {
	out := make([]*wrapper.Tensor, len(names))
	for i, name := range names {
		t := g.byName[name]
		if t == nil {
			return nil, fmt.Errorf("unknown tensor %q", name)
		}
		out[i] = t
	}
	return out, nil
}

func (g *Graph) buildParam(hp *hclParam) (*wrapper.Param, error) {
	val, diags := hp.Value.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}

	if hp.Tensor != nil {
		if !val.IsNull() {
			return nil, fmt.Errorf("value and tensor are mutually exclusive")
		}
		t := g.byName[*hp.Tensor]
		if t == nil {
			return nil, fmt.Errorf("unknown tensor %q", *hp.Tensor)
		}
		return wrapper.NewTensorParam(hp.Name, t), nil
	}
	if val.IsNull() {
		return nil, fmt.Errorf("one of value or tensor is required")
	}

	s, err := scalarFromCty(val, hp.DType)
	if err != nil {
		return nil, err
	}
	return wrapper.NewScalarParam(hp.Name, s), nil
}

// scalarFromCty converts val to a scalar. Without an explicit dtype numbers
// become float32 and bools stay bool.
func scalarFromCty(val cty.Value, dtype *string) (driver.Scalar, error) {
	if !val.IsWhollyKnown() {
		return driver.Scalar{}, fmt.Errorf("value is not known")
	}

	dt := driver.Float32
	switch {
	case dtype != nil:
		parsed, err := parseDataType(*dtype)
		if err != nil {
			return driver.Scalar{}, err
		}
		dt = parsed
	case val.Type() == cty.Bool:
		dt = driver.Bool
	}

	switch dt {
	case driver.Float32:
		var f float32
		if err := gocty.FromCtyValue(val, &f); err != nil {
			return driver.Scalar{}, err
		}
		return driver.ScalarFloat32(f), nil
	case driver.Int32:
		var i int32
		if err := gocty.FromCtyValue(val, &i); err != nil {
			return driver.Scalar{}, err
		}
		return driver.ScalarInt32(i), nil
	case driver.Uint32:
		var u uint32
		if err := gocty.FromCtyValue(val, &u); err != nil {
			return driver.Scalar{}, err
		}
		return driver.ScalarUint32(u), nil
	case driver.Bool:
		var b bool
		if err := gocty.FromCtyValue(val, &b); err != nil {
			return driver.Scalar{}, err
		}
		return driver.ScalarBool(b), nil
	default:
		return driver.Scalar{}, fmt.Errorf("unsupported scalar dtype %s", dt)
	}
}

// encode packs values little-endian as dt. Values dt cannot represent are
// rejected rather than wrapped.
func encode(dt driver.DataType, values []float64) ([]byte, error) {
	size := dt.Size()
	buf := make([]byte, len(values)*size)
	for i, v := range values {
		b := buf[i*size:]
		switch dt {
		case driver.Float32:
			if math.Abs(v) > math.MaxFloat32 && !math.IsInf(v, 0) {
				return nil, fmt.Errorf("value %v out of range for %s", v, dt)
			}
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		case driver.Int32:
			if err := checkInteger(dt, v, math.MinInt32, math.MaxInt32); err != nil {
				return nil, err
			}
			binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		case driver.Uint32:
			if v < 0 {
				return nil, fmt.Errorf("negative value %v for %s", v, dt)
			}
			if err := checkInteger(dt, v, 0, math.MaxUint32); err != nil {
				return nil, err
			}
			binary.LittleEndian.PutUint32(b, uint32(v))
		case driver.Int8:
			if err := checkInteger(dt, v, math.MinInt8, math.MaxInt8); err != nil {
				return nil, err
			}
			b[0] = byte(int8(v))
		case driver.Uint8, driver.UFixedPoint8:
			if err := checkInteger(dt, v, 0, math.MaxUint8); err != nil {
				return nil, err
			}
			b[0] = byte(v)
		case driver.Bool:
			if v != 0 {
				b[0] = 1
			}
		default:
			return nil, fmt.Errorf("static data of dtype %s is not supported", dt)
		}
	}
	return buf, nil
}

func checkInteger(dt driver.DataType, v, lo, hi float64) error {
	if v != math.Trunc(v) {
		return fmt.Errorf("value %v is not an integer for %s", v, dt)
	}
	if v < lo || v > hi {
		return fmt.Errorf("value %v out of range for %s", v, dt)
	}
	return nil
}

var tensorTypes = []driver.TensorType{
	driver.TensorTypeAppWrite,
	driver.TensorTypeAppRead,
	driver.TensorTypeAppReadWrite,
	driver.TensorTypeNative,
	driver.TensorTypeStatic,
}

func parseTensorType(s string) (driver.TensorType, error) {
	for _, tt := range tensorTypes {
		if tt.String() == s {
			return tt, nil
		}
	}
	return driver.TensorTypeUndefined, fmt.Errorf("unknown tensor type %q", s)
}

func parseDataType(s string) (driver.DataType, error) {
	for dt := driver.Float32; dt <= driver.SFixedPoint32; dt++ {
		if dt.String() == s {
			return dt, nil
		}
	}
	return driver.DataTypeUndefined, fmt.Errorf("unknown dtype %q", s)
}
