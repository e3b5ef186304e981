package backend

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/wrapper"
)

// Graph is the driver's graph object inside a context. Tensors must be
// registered before any node references them.
type Graph struct {
	rt      driver.Runtime
	ctx     *Context
	name    string
	handle  driver.GraphHandle
	tensors map[*wrapper.Tensor]struct{}
}

// NewGraph creates an unconfigured graph component.
func NewGraph(rt driver.Runtime, ctx *Context, name string) *Graph {
	return &Graph{rt: rt, ctx: ctx, name: name, tensors: make(map[*wrapper.Tensor]struct{})}
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// Configure retrieves the graph from a restored context, or creates an empty
// one.
func (g *Graph) Configure() error {
	var (
		h  driver.GraphHandle
		st driver.Status
		op string
	)
	if g.ctx.FromBinary() {
		op = "GraphRetrieve"
		h, st = g.rt.GraphRetrieve(g.ctx.Handle(), g.name)
	} else {
		op = "GraphCreate"
		h, st = g.rt.GraphCreate(g.ctx.Handle(), g.name, nil)
	}
	if err := st.Err(op); err != nil {
		klog.ErrorS(err, "Failed to configure graph", "graph", g.name, "code", st.Code())
		return err
	}
	g.handle = h
	return nil
}

// Handle returns the native handle, or 0 before Configure.
func (g *Graph) Handle() driver.GraphHandle {
	return g.handle
}

// EnsureTensor registers t in the graph unless it already is.
func (g *Graph) EnsureTensor(t *wrapper.Tensor) error {
	if _, ok := g.tensors[t]; ok {
		return nil
	}
	if err := t.Validate(); err != nil {
		return err
	}

	nt := t.Native()
	st := g.rt.TensorCreateGraphTensor(g.handle, &nt)
	if err := st.Err("TensorCreateGraphTensor"); err != nil {
		klog.ErrorS(err, "Failed to create graph tensor", "graph", g.name, "tensor", t.Name(), "code", st.Code())
		return fmt.Errorf("tensor %q: %w", t.Name(), err)
	}
	t.MarkCreated(nt.ID)
	g.tensors[t] = struct{}{}
	return nil
}

// AddNode appends op. Its tensors must be registered and its parameters
// populated.
func (g *Graph) AddNode(op *wrapper.Op) error {
	st := g.rt.GraphAddNode(g.handle, op.OpConfig())
	if err := st.Err("GraphAddNode"); err != nil {
		klog.ErrorS(err, "Failed to add node", "graph", g.name, "node", op.Name(), "type", op.TypeName(), "code", st.Code())
		return fmt.Errorf("node %q: %w", op.Name(), err)
	}
	return nil
}

// Finalize compiles the graph.
func (g *Graph) Finalize() error {
	st := g.rt.GraphFinalize(g.handle)
	if err := st.Err("GraphFinalize"); err != nil {
		klog.ErrorS(err, "Failed to finalize graph", "graph", g.name, "code", st.Code())
		return err
	}
	return nil
}

// IO wraps the graph's input and output tensors as reported by the driver.
func (g *Graph) IO() (inputs, outputs []*wrapper.Tensor, err error) {
	in, out, st := g.rt.GraphInfo(g.handle)
	if err := st.Err("GraphInfo"); err != nil {
		klog.ErrorS(err, "Failed to get graph info", "graph", g.name, "code", st.Code())
		return nil, nil, err
	}
	inputs = make([]*wrapper.Tensor, len(in))
	for i := range in {
		inputs[i] = wrapper.FromNative(in[i])
	}
	outputs = make([]*wrapper.Tensor, len(out))
	for i := range out {
		outputs[i] = wrapper.FromNative(out[i])
	}
	return inputs, outputs, nil
}

// Execute runs the finalized graph with the buffers bound to the tensors.
func (g *Graph) Execute(inputs, outputs []*wrapper.Tensor) error {
	st := g.rt.GraphExecute(g.handle, wrapper.Natives(inputs), wrapper.Natives(outputs))
	if err := st.Err("GraphExecute"); err != nil {
		klog.ErrorS(err, "Failed to execute graph", "graph", g.name, "code", st.Code())
		return err
	}
	return nil
}

// Release drops the graph handle. The native graph is owned by its context.
func (g *Graph) Release() {
	if g == nil {
		return
	}
	g.handle = 0
	clear(g.tensors)
}
