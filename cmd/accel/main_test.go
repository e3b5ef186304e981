package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accel/accel"
)

const reluGraph = `
tensor "x" {
  type  = "app_write"
  dtype = "float32"
  dims  = [3]
}

tensor "y" {
  type  = "app_read"
  dtype = "float32"
  dims  = [3]
}

op "relu" {
  type    = "Relu"
  inputs  = ["x"]
  outputs = ["y"]
}
`

func TestInputFlags(t *testing.T) {
	f := inputFlags{}
	require.NoError(t, f.Set("x=in.bin"))
	assert.Equal(t, "in.bin", f["x"])
	assert.Equal(t, "x=in.bin", f.String())

	assert.Error(t, f.Set("x"))
	assert.Error(t, f.Set("=in.bin"))
	assert.Error(t, f.Set("x="))
}

func TestCompileAndRun(t *testing.T) {
	dir := t.TempDir()
	graph := filepath.Join(dir, "graph.hcl")
	require.NoError(t, os.WriteFile(graph, []byte(reluGraph), 0o600))

	binary := filepath.Join(dir, "forward.actx")
	ctx := context.Background()
	require.NoError(t, run(ctx, []string{"compile", "-graph", graph, "-out", binary}))

	in := make([]byte, 12)
	accel.PutFloat32s(in, []float32{-1, 0, 4})
	input := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(input, in, 0o600))

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0o755))
	require.NoError(t, run(ctx, []string{"run", "-binary", binary, "-input", "x=" + input, "-output-dir", outDir}))

	out, err := os.ReadFile(filepath.Join(outDir, "y.bin"))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 4}, accel.Float32s(out))
}

func TestCommandErrors(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, run(ctx, []string{"bogus"}))
	assert.Error(t, run(ctx, []string{"compile"}))
	assert.Error(t, run(ctx, []string{"run"}))
	assert.NoError(t, run(ctx, []string{"version"}))
	assert.NoError(t, run(ctx, []string{"info"}))
}
