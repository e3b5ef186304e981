package refdrv

import (
	"math"

	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/parallel"
)

func (r *Registry) registerElementwise() {
	r.Register("ElementWiseAdd", binaryOp(func(a, b float32) float32 { return a + b }))
	r.Register("ElementWiseSubtract", binaryOp(func(a, b float32) float32 { return a - b }))
	r.Register("ElementWiseMultiply", binaryOp(func(a, b float32) float32 { return a * b }))
}

func (r *Registry) registerActivations() {
	r.Register("Relu", unaryOp(func(x float32) float32 {
		return max(x, 0)
	}))
	r.Register("Sigmoid", unaryOp(func(x float32) float32 {
		return float32(1 / (1 + math.Exp(-float64(x))))
	}))
	r.Register("Tanh", unaryOp(func(x float32) float32 {
		return float32(math.Tanh(float64(x)))
	}))

	clamp := unaryOp(nil)
	clamp.Validate = validateReluMinMax
	clamp.Run = func(args *KernelArgs) driver.Status {
		lo := args.Params["min_value"].Scalar.Float32()
		hi := args.Params["max_value"].Scalar.Float32()
		return mapUnary(args, func(x float32) float32 {
			return min(max(x, lo), hi)
		})
	}
	r.Register("ReluMinMax", clamp)
}

func (r *Registry) registerShapeOps() {
	r.Register("Reshape", OpDef{
		NumInputs:  1,
		NumOutputs: 1,
		Validate: func(op *driver.OpConfig) driver.Status {
			if !sameElements(op.Inputs[0], op.Outputs[0]) {
				return driver.StatusOf(driver.CodeOpInvalidTensors)
			}
			return driver.Success
		},
		Run: func(args *KernelArgs) driver.Status {
			copy(args.Outputs[0].Data, args.Inputs[0].Data)
			return driver.Success
		},
	})

	r.Register("Transpose", OpDef{
		NumInputs:  1,
		NumOutputs: 1,
		Validate:   validateTranspose,
		Run:        runTranspose,
	})
}

func (r *Registry) registerMatMul() {
	r.Register("MatMul", OpDef{
		NumInputs:  2,
		NumOutputs: 1,
		Validate:   validateMatMul,
		Run:        runMatMul,
	})
}

func binaryOp(f func(a, b float32) float32) OpDef {
	return OpDef{
		NumInputs:  2,
		NumOutputs: 1,
		Validate: func(op *driver.OpConfig) driver.Status {
			n := op.Inputs[0].NumElements()
			m := op.Inputs[1].NumElements()
			if (m != n && m != 1) || op.Outputs[0].NumElements() != n {
				return driver.StatusOf(driver.CodeOpInvalidTensors)
			}
			return driver.Success
		},
		Run: func(args *KernelArgs) driver.Status {
			a := driver.Float32s(args.Inputs[0].Data)
			b := driver.Float32s(args.Inputs[1].Data)
			out := make([]float32, len(a))
			parallel.For(len(a), args.Parallel, func(i int) {
				if len(b) == 1 {
					out[i] = f(a[i], b[0])
					return
				}
				out[i] = f(a[i], b[i])
			})
			driver.PutFloat32s(args.Outputs[0].Data, out)
			return driver.Success
		},
	}
}

func unaryOp(f func(x float32) float32) OpDef {
	return OpDef{
		NumInputs:  1,
		NumOutputs: 1,
		Validate: func(op *driver.OpConfig) driver.Status {
			if !sameElements(op.Inputs[0], op.Outputs[0]) {
				return driver.StatusOf(driver.CodeOpInvalidTensors)
			}
			return driver.Success
		},
		Run: func(args *KernelArgs) driver.Status {
			return mapUnary(args, f)
		},
	}
}

func mapUnary(args *KernelArgs, f func(x float32) float32) driver.Status {
	in := driver.Float32s(args.Inputs[0].Data)
	out := make([]float32, len(in))
	parallel.For(len(in), args.Parallel, func(i int) {
		out[i] = f(in[i])
	})
	driver.PutFloat32s(args.Outputs[0].Data, out)
	return driver.Success
}

func validateReluMinMax(op *driver.OpConfig) driver.Status {
	if !sameElements(op.Inputs[0], op.Outputs[0]) {
		return driver.StatusOf(driver.CodeOpInvalidTensors)
	}
	lo, okLo := findParam(op, "min_value")
	hi, okHi := findParam(op, "max_value")
	if !okLo || !okHi || lo.Kind != driver.ParamScalar || hi.Kind != driver.ParamScalar {
		return driver.StatusOf(driver.CodeOpInvalidParam)
	}
	if lo.Scalar.Float32() > hi.Scalar.Float32() {
		return driver.StatusOf(driver.CodeOpInvalidParam)
	}
	return driver.Success
}

// transposePerm extracts and checks the "perm" tensor parameter.
func transposePerm(op *driver.OpConfig) ([]uint32, bool) {
	p, ok := findParam(op, "perm")
	if !ok || p.Kind != driver.ParamTensor || p.Tensor.DataType != driver.Uint32 {
		return nil, false
	}
	rank := len(op.Inputs[0].Dims)
	if len(p.Tensor.Dims) != 1 || int(p.Tensor.Dims[0]) != rank || len(p.Tensor.Data) != rank*4 {
		return nil, false
	}
	perm := driver.Uint32s(p.Tensor.Data)
	seen := make([]bool, rank)
	for _, axis := range perm {
		if int(axis) >= rank || seen[axis] {
			return nil, false
		}
		seen[axis] = true
	}
	return perm, true
}

func validateTranspose(op *driver.OpConfig) driver.Status {
	perm, ok := transposePerm(op)
	if !ok {
		return driver.StatusOf(driver.CodeOpInvalidParam)
	}
	in, out := op.Inputs[0].Dims, op.Outputs[0].Dims
	if len(out) != len(in) {
		return driver.StatusOf(driver.CodeOpInvalidTensors)
	}
	for d, axis := range perm {
		if out[d] != in[axis] {
			return driver.StatusOf(driver.CodeOpInvalidTensors)
		}
	}
	return driver.Success
}

func runTranspose(args *KernelArgs) driver.Status {
	perm := driver.Uint32s(args.Params["perm"].Tensor.Data)
	inDims := args.Inputs[0].Dims
	outDims := args.Outputs[0].Dims
	rank := len(inDims)

	inStrides := make([]int, rank)
	stride := 1
	for d := rank - 1; d >= 0; d-- {
		inStrides[d] = stride
		stride *= int(inDims[d])
	}

	in := driver.Float32s(args.Inputs[0].Data)
	out := make([]float32, len(in))
	parallel.Range(len(out), args.Parallel, func(lo, hi int) {
		coord := make([]int, rank)
		for i := lo; i < hi; i++ {
			rem := i
			for d := rank - 1; d >= 0; d-- {
				coord[d] = rem % int(outDims[d])
				rem /= int(outDims[d])
			}
			src := 0
			for d := 0; d < rank; d++ {
				src += coord[d] * inStrides[perm[d]]
			}
			out[i] = in[src]
		}
	})
	driver.PutFloat32s(args.Outputs[0].Data, out)
	return driver.Success
}

// matmulDims returns (M, K, N) honoring the transpose_in0/transpose_in1
// scalar parameters.
func matmulDims(op *driver.OpConfig) (m, k, n int, ok bool) {
	a, b := op.Inputs[0].Dims, op.Inputs[1].Dims
	if len(a) != 2 || len(b) != 2 {
		return 0, 0, 0, false
	}
	m, k = int(a[0]), int(a[1])
	if p, found := findParam(op, "transpose_in0"); found && p.Scalar.Bool() {
		m, k = k, m
	}
	k2, n := int(b[0]), int(b[1])
	if p, found := findParam(op, "transpose_in1"); found && p.Scalar.Bool() {
		k2, n = n, k2
	}
	return m, k, n, k == k2
}

func validateMatMul(op *driver.OpConfig) driver.Status {
	m, _, n, ok := matmulDims(op)
	if !ok {
		return driver.StatusOf(driver.CodeOpInvalidTensors)
	}
	out := op.Outputs[0].Dims
	if len(out) != 2 || int(out[0]) != m || int(out[1]) != n {
		return driver.StatusOf(driver.CodeOpInvalidTensors)
	}
	return driver.Success
}

func runMatMul(args *KernelArgs) driver.Status {
	op := &driver.OpConfig{
		Inputs: []driver.Tensor{*args.Inputs[0], *args.Inputs[1]},
	}
	for _, p := range args.Params {
		op.Params = append(op.Params, p)
	}
	m, k, n, _ := matmulDims(op)
	ta := args.Params["transpose_in0"].Scalar.Bool()
	tb := args.Params["transpose_in1"].Scalar.Bool()

	a := driver.Float32s(args.Inputs[0].Data)
	b := driver.Float32s(args.Inputs[1].Data)
	out := make([]float32, m*n)

	parallel.For(m, args.Parallel, func(i int) {
		for j := 0; j < n; j++ {
			var sum float32
			for p := 0; p < k; p++ {
				av := a[i*k+p]
				if ta {
					av = a[p*m+i]
				}
				bv := b[p*n+j]
				if tb {
					bv = b[j*k+p]
				}
				sum += av * bv
			}
			out[i*n+j] = sum
		}
	})
	driver.PutFloat32s(args.Outputs[0].Data, out)
	return driver.Success
}
