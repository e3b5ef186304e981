package refdrv

import (
	"sort"

	"github.com/born-ml/accel/internal/driver"
)

type node struct {
	Name    string         `msgpack:"name"`
	Type    string         `msgpack:"type"`
	Inputs  []uint32       `msgpack:"inputs"`
	Outputs []uint32       `msgpack:"outputs"`
	Params  []driver.Param `msgpack:"params"`
}

type graph struct {
	name      string
	ctx       driver.ContextHandle
	log       *logger
	tensors   map[uint32]*driver.Tensor
	byName    map[string]uint32
	nodes     []node
	order     []int
	nextID    uint32
	finalized bool
}

func newGraph(name string, ctx driver.ContextHandle, log *logger) *graph {
	return &graph{
		name:    name,
		ctx:     ctx,
		log:     log,
		tensors: make(map[uint32]*driver.Tensor),
		byName:  make(map[string]uint32),
		nextID:  1,
	}
}

// lookup resolves a tensor reference by id and checks the name matches.
func (g *graph) lookup(t *driver.Tensor) (*driver.Tensor, bool) {
	gt, ok := g.tensors[t.ID]
	if !ok || gt.Name != t.Name {
		return nil, false
	}
	return gt, true
}

// GraphCreate creates an empty graph in a context.
func (r *Runtime) GraphCreate(c driver.ContextHandle, name string, _ []driver.CustomConfig) (driver.GraphHandle, driver.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.contexts[c]
	if !ok {
		return 0, driver.StatusOf(driver.CodeInvalidHandle)
	}
	if _, exists := ctx.graphs[name]; name == "" || exists {
		return 0, driver.StatusOf(driver.CodeGraphInvalidName)
	}

	h := driver.GraphHandle(r.handle())
	r.graphs[h] = newGraph(name, c, ctx.backend.log)
	ctx.graphs[name] = h
	return h, driver.Success
}

// GraphRetrieve returns a graph previously created in, or deserialized into,
// a context.
func (r *Runtime) GraphRetrieve(c driver.ContextHandle, name string) (driver.GraphHandle, driver.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.contexts[c]
	if !ok {
		return 0, driver.StatusOf(driver.CodeInvalidHandle)
	}
	h, ok := ctx.graphs[name]
	if !ok {
		return 0, driver.StatusOf(driver.CodeContextGraphMissing)
	}
	return h, driver.Success
}

// GraphInfo lists the client-visible tensors of a graph, ordered by id.
// Inputs are app-write tensors, outputs app-read tensors.
func (r *Runtime) GraphInfo(g driver.GraphHandle) (inputs, outputs []driver.Tensor, st driver.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gr, ok := r.graphs[g]
	if !ok {
		return nil, nil, driver.StatusOf(driver.CodeInvalidHandle)
	}
	ids := make([]uint32, 0, len(gr.tensors))
	for id := range gr.tensors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		t := *gr.tensors[id]
		t.Data = nil
		t.Dims = append([]uint32(nil), t.Dims...)
		switch t.Type {
		case driver.TensorTypeAppWrite, driver.TensorTypeAppReadWrite:
			inputs = append(inputs, t)
		case driver.TensorTypeAppRead:
			outputs = append(outputs, t)
		}
	}
	return inputs, outputs, driver.Success
}

// TensorCreateGraphTensor registers a tensor in a graph and writes the
// assigned id back into t. Only static tensors keep their data.
func (r *Runtime) TensorCreateGraphTensor(g driver.GraphHandle, t *driver.Tensor) driver.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	gr, ok := r.graphs[g]
	if !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	if gr.finalized {
		return driver.StatusOf(driver.CodeGraphFinalized)
	}
	if t == nil || t.Name == "" || t.Type == driver.TensorTypeUndefined || t.DataType.Size() == 0 || len(t.Dims) == 0 {
		return driver.StatusOf(driver.CodeInvalidArgument)
	}
	if _, exists := gr.byName[t.Name]; exists {
		return driver.StatusOf(driver.CodeTensorAlreadyExists)
	}

	stored := *t
	stored.Dims = append([]uint32(nil), t.Dims...)
	stored.Data = nil
	if t.Type == driver.TensorTypeStatic {
		if len(t.Data) != t.ByteSize() {
			return driver.StatusOf(driver.CodeTensorInvalidData)
		}
		stored.Data = append([]byte(nil), t.Data...)
	}

	stored.ID = gr.nextID
	gr.nextID++
	gr.tensors[stored.ID] = &stored
	gr.byName[stored.Name] = stored.ID
	t.ID = stored.ID

	gr.log.logf(driver.LogDebug, "graph %s: tensor %s registered as %d", gr.name, stored.Name, stored.ID)
	return driver.Success
}

// GraphAddNode appends a node. Every tensor the node touches, including
// tensor-valued parameters, must already be registered in the graph.
func (r *Runtime) GraphAddNode(g driver.GraphHandle, op driver.OpConfig) driver.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	gr, ok := r.graphs[g]
	if !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	if gr.finalized {
		return driver.StatusOf(driver.CodeGraphFinalized)
	}

	n := node{Name: op.Name, Type: op.TypeName}
	resolved := op
	resolved.Inputs = make([]driver.Tensor, len(op.Inputs))
	resolved.Outputs = make([]driver.Tensor, len(op.Outputs))
	resolved.Params = make([]driver.Param, len(op.Params))

	for i := range op.Inputs {
		gt, ok := gr.lookup(&op.Inputs[i])
		if !ok {
			gr.log.logf(driver.LogError, "node %s: input %s is not in graph %s", op.Name, op.Inputs[i].Name, gr.name)
			return driver.StatusOf(driver.CodeGraphInvalidTensor)
		}
		resolved.Inputs[i] = *gt
		n.Inputs = append(n.Inputs, gt.ID)
	}
	for i := range op.Outputs {
		gt, ok := gr.lookup(&op.Outputs[i])
		if !ok {
			gr.log.logf(driver.LogError, "node %s: output %s is not in graph %s", op.Name, op.Outputs[i].Name, gr.name)
			return driver.StatusOf(driver.CodeGraphInvalidTensor)
		}
		resolved.Outputs[i] = *gt
		n.Outputs = append(n.Outputs, gt.ID)
	}
	for i, p := range op.Params {
		if p.Kind == driver.ParamTensor {
			gt, ok := gr.lookup(&p.Tensor)
			if !ok {
				gr.log.logf(driver.LogError, "node %s: param tensor %s is not in graph %s", op.Name, p.Tensor.Name, gr.name)
				return driver.StatusOf(driver.CodeGraphInvalidTensor)
			}
			p.Tensor = *gt
		}
		resolved.Params[i] = p
	}

	if st := r.registry.Validate(&resolved); !st.OK() {
		return driver.StatusOf(driver.CodeGraphInvalidNode)
	}
	n.Params = resolved.Params
	gr.nodes = append(gr.nodes, n)
	return driver.Success
}

// GraphFinalize orders the nodes by data dependency and checks that every
// node and every app-read tensor is reachable from the graph inputs and
// static tensors. Finalizing twice is a no-op.
func (r *Runtime) GraphFinalize(g driver.GraphHandle) driver.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	gr, ok := r.graphs[g]
	if !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	if gr.finalized {
		return driver.Success
	}

	ready := make(map[uint32]bool, len(gr.tensors))
	for id, t := range gr.tensors {
		switch t.Type {
		case driver.TensorTypeAppWrite, driver.TensorTypeAppReadWrite, driver.TensorTypeStatic:
			ready[id] = true
		}
	}

	done := make([]bool, len(gr.nodes))
	order := make([]int, 0, len(gr.nodes))
	for {
		progress := false
		for i, n := range gr.nodes {
			if done[i] {
				continue
			}
			runnable := true
			for _, id := range n.Inputs {
				if !ready[id] {
					runnable = false
					break
				}
			}
			if !runnable {
				continue
			}
			done[i] = true
			order = append(order, i)
			for _, id := range n.Outputs {
				ready[id] = true
			}
			progress = true
		}
		if !progress {
			break
		}
	}

	for i, n := range gr.nodes {
		if !done[i] {
			gr.log.logf(driver.LogError, "graph %s: node %s has unreachable inputs", gr.name, n.Name)
			return driver.StatusOf(driver.CodeGraphUnconnectedNode)
		}
	}
	for id, t := range gr.tensors {
		if t.Type == driver.TensorTypeAppRead && !ready[id] {
			gr.log.logf(driver.LogError, "graph %s: output %s is never produced", gr.name, t.Name)
			return driver.StatusOf(driver.CodeGraphUnconnectedNode)
		}
	}

	gr.order = order
	gr.finalized = true
	gr.log.logf(driver.LogVerbose, "graph %s finalized with %d nodes", gr.name, len(gr.nodes))
	return driver.Success
}

// GraphExecute runs a finalized graph. Every app-write tensor must appear in
// inputs and every app-read tensor in outputs, each with a buffer of the
// exact size; results are written into the output buffers.
func (r *Runtime) GraphExecute(g driver.GraphHandle, inputs, outputs []driver.Tensor) driver.Status {
	r.mu.Lock()
	gr, ok := r.graphs[g]
	r.mu.Unlock()
	if !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	if !gr.finalized {
		return driver.StatusOf(driver.CodeGraphNotFinalized)
	}

	bufs := make(map[uint32][]byte, len(gr.tensors))
	for id, t := range gr.tensors {
		switch t.Type {
		case driver.TensorTypeStatic:
			bufs[id] = t.Data
		case driver.TensorTypeNative:
			bufs[id] = make([]byte, t.ByteSize())
		}
	}

	bind := func(list []driver.Tensor) driver.Status {
		for i := range list {
			gt, ok := gr.lookup(&list[i])
			if !ok {
				return driver.StatusOf(driver.CodeGraphInvalidTensor)
			}
			if len(list[i].Data) != gt.ByteSize() {
				return driver.StatusOf(driver.CodeTensorInvalidData)
			}
			bufs[gt.ID] = list[i].Data
		}
		return driver.Success
	}
	if st := bind(inputs); !st.OK() {
		return st
	}
	if st := bind(outputs); !st.OK() {
		return st
	}
	for id, t := range gr.tensors {
		if _, bound := bufs[id]; !bound {
			gr.log.logf(driver.LogError, "graph %s: tensor %s has no buffer", gr.name, t.Name)
			return driver.StatusOf(driver.CodeTensorInvalidData)
		}
	}

	view := func(id uint32) *driver.Tensor {
		t := *gr.tensors[id]
		t.Data = bufs[id]
		return &t
	}

	for _, idx := range gr.order {
		n := gr.nodes[idx]
		def, ok := r.registry.Get(n.Type)
		if !ok {
			return driver.StatusOf(driver.CodeOpNotSupported)
		}
		args := &KernelArgs{
			Inputs:   make([]*driver.Tensor, len(n.Inputs)),
			Outputs:  make([]*driver.Tensor, len(n.Outputs)),
			Params:   make(map[string]driver.Param, len(n.Params)),
			Parallel: r.parallel,
		}
		for i, id := range n.Inputs {
			args.Inputs[i] = view(id)
		}
		for i, id := range n.Outputs {
			args.Outputs[i] = view(id)
		}
		for _, p := range n.Params {
			args.Params[p.Name] = p
		}
		if st := def.Run(args); !st.OK() {
			gr.log.logf(driver.LogError, "graph %s: node %s failed with error %d", gr.name, n.Name, st.Code())
			return driver.StatusOf(driver.CodeGraphExecution)
		}
	}

	gr.log.logf(driver.LogDebug, "graph %s executed %d nodes", gr.name, len(gr.order))
	return driver.Success
}
