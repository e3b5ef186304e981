package refdrv

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/born-ml/accel/internal/driver"
)

const (
	imageMagic   = "refdrv.context"
	imageVersion = 1
)

// contextImage is the serialized form of a context: every finalized graph
// with its tensors, nodes and execution order.
type contextImage struct {
	Magic   string       `msgpack:"magic"`
	Version int          `msgpack:"version"`
	Library string       `msgpack:"library"`
	Graphs  []graphImage `msgpack:"graphs"`
}

type graphImage struct {
	Name    string          `msgpack:"name"`
	Tensors []driver.Tensor `msgpack:"tensors"`
	Nodes   []node          `msgpack:"nodes"`
	Order   []int           `msgpack:"order"`
	NextID  uint32          `msgpack:"next_id"`
}

// encodeContext serializes a context. Callers hold r.mu.
func (r *Runtime) encodeContext(c driver.ContextHandle) ([]byte, driver.Status) {
	ctx, ok := r.contexts[c]
	if !ok {
		return nil, driver.StatusOf(driver.CodeInvalidHandle)
	}

	names := make([]string, 0, len(ctx.graphs))
	for name := range ctx.graphs {
		names = append(names, name)
	}
	sort.Strings(names)

	img := contextImage{Magic: imageMagic, Version: imageVersion, Library: r.library}
	for _, name := range names {
		gr := r.graphs[ctx.graphs[name]]
		if !gr.finalized {
			return nil, driver.StatusOf(driver.CodeGraphNotFinalized)
		}
		gi := graphImage{Name: gr.name, Nodes: gr.nodes, Order: gr.order, NextID: gr.nextID}
		ids := make([]uint32, 0, len(gr.tensors))
		for id := range gr.tensors {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			gi.Tensors = append(gi.Tensors, *gr.tensors[id])
		}
		img.Graphs = append(img.Graphs, gi)
	}

	data, err := msgpack.Marshal(&img)
	if err != nil {
		return nil, driver.StatusOf(driver.CodeGeneral)
	}
	return data, driver.Success
}

// ContextGetBinarySize returns the size of the serialized context.
func (r *Runtime) ContextGetBinarySize(c driver.ContextHandle) (uint64, driver.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, st := r.encodeContext(c)
	if !st.OK() {
		return 0, st
	}
	return uint64(len(data)), driver.Success
}

// ContextGetBinary serializes the context into buf and returns the number of
// bytes written.
func (r *Runtime) ContextGetBinary(c driver.ContextHandle, buf []byte) (uint64, driver.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, st := r.encodeContext(c)
	if !st.OK() {
		return 0, st
	}
	if len(buf) < len(data) {
		return 0, driver.StatusOf(driver.CodeContextBufferTooSmall)
	}
	return uint64(copy(buf, data)), driver.Success
}

// ContextCreateFromBinary restores a context and its finalized graphs. The
// graphs are then obtained with GraphRetrieve.
func (r *Runtime) ContextCreateFromBinary(b driver.BackendHandle, d driver.DeviceHandle, _ []driver.CustomConfig, blob []byte) (driver.ContextHandle, driver.Status) {
	var img contextImage
	if err := msgpack.Unmarshal(blob, &img); err != nil || img.Magic != imageMagic || img.Version != imageVersion {
		return 0, driver.StatusOf(driver.CodeContextBinaryInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	be, st := r.checkBackendDevice(b, d)
	if !st.OK() {
		return 0, st
	}

	names := make(map[string]bool, len(img.Graphs))
	for i := range img.Graphs {
		gi := &img.Graphs[i]
		if names[gi.Name] {
			be.log.logf(driver.LogError, "context binary: graph %s appears twice", gi.Name)
			return 0, driver.StatusOf(driver.CodeContextBinaryInvalid)
		}
		names[gi.Name] = true
		if err := r.checkGraphImage(gi); err != "" {
			be.log.logf(driver.LogError, "context binary: graph %s: %s", gi.Name, err)
			return 0, driver.StatusOf(driver.CodeContextBinaryInvalid)
		}
	}

	h := driver.ContextHandle(r.handle())
	ctx := &execContext{backend: be, graphs: make(map[string]driver.GraphHandle, len(img.Graphs))}
	for _, gi := range img.Graphs {
		gr := newGraph(gi.Name, h, be.log)
		for i := range gi.Tensors {
			t := gi.Tensors[i]
			gr.tensors[t.ID] = &t
			gr.byName[t.Name] = t.ID
		}
		gr.nodes = gi.Nodes
		gr.order = gi.Order
		gr.nextID = gi.NextID
		gr.finalized = true

		gh := driver.GraphHandle(r.handle())
		r.graphs[gh] = gr
		ctx.graphs[gi.Name] = gh
	}
	r.contexts[h] = ctx

	be.log.logf(driver.LogInfo, "context restored with %d graphs from %d bytes", len(img.Graphs), len(blob))
	return h, driver.Success
}

// checkGraphImage verifies that a restored graph is one GraphFinalize could
// have produced: tensor ids are unique and below NextID, every node refers to
// known tensors and passes op validation, and Order runs each node once.
// It returns a description of the first problem, or "".
func (r *Runtime) checkGraphImage(gi *graphImage) string {
	if gi.Name == "" {
		return "empty graph name"
	}

	tensors := make(map[uint32]*driver.Tensor, len(gi.Tensors))
	byName := make(map[string]bool, len(gi.Tensors))
	for i := range gi.Tensors {
		t := &gi.Tensors[i]
		switch {
		case t.ID == 0 || t.ID >= gi.NextID:
			return fmt.Sprintf("tensor %s has id %d outside [1,%d)", t.Name, t.ID, gi.NextID)
		case tensors[t.ID] != nil:
			return fmt.Sprintf("tensor id %d appears twice", t.ID)
		case t.Name == "" || byName[t.Name]:
			return fmt.Sprintf("tensor name %q is empty or repeated", t.Name)
		case t.DataType.Size() == 0:
			return fmt.Sprintf("tensor %s has dtype %s", t.Name, t.DataType)
		case t.Type == driver.TensorTypeStatic && len(t.Data) != t.ByteSize():
			return fmt.Sprintf("static tensor %s holds %d bytes, needs %d", t.Name, len(t.Data), t.ByteSize())
		}
		tensors[t.ID] = t
		byName[t.Name] = true
	}

	resolve := func(ids []uint32) ([]driver.Tensor, bool) {
		out := make([]driver.Tensor, len(ids))
		for i, id := range ids {
			t, ok := tensors[id]
			if !ok {
				return nil, false
			}
			out[i] = *t
		}
		return out, true
	}
	for _, n := range gi.Nodes {
		op := driver.OpConfig{Name: n.Name, PackageName: Package, TypeName: n.Type, Params: n.Params}
		var ok bool
		if op.Inputs, ok = resolve(n.Inputs); !ok {
			return fmt.Sprintf("node %s has an unknown input", n.Name)
		}
		if op.Outputs, ok = resolve(n.Outputs); !ok {
			return fmt.Sprintf("node %s has an unknown output", n.Name)
		}
		for _, p := range n.Params {
			if p.Kind == driver.ParamTensor && tensors[p.Tensor.ID] == nil {
				return fmt.Sprintf("node %s param %s refers to an unknown tensor", n.Name, p.Name)
			}
		}
		if st := r.registry.Validate(&op); !st.OK() {
			return fmt.Sprintf("node %s (%s) rejected with error %d", n.Name, n.Type, st.Code())
		}
	}

	if len(gi.Order) != len(gi.Nodes) {
		return fmt.Sprintf("order lists %d nodes, graph has %d", len(gi.Order), len(gi.Nodes))
	}
	seen := make([]bool, len(gi.Nodes))
	for _, idx := range gi.Order {
		if idx < 0 || idx >= len(gi.Nodes) || seen[idx] {
			return fmt.Sprintf("order entry %d is out of range or repeated", idx)
		}
		seen[idx] = true
	}
	return ""
}
