// Package main provides the accel CLI: compile graph descriptions into
// context binaries and run them on an accelerator backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/born-ml/accel/accel"
	"github.com/born-ml/accel/internal/blobs"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()

	if err := run(context.Background(), flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "accel %s\n\n", version)
	fmt.Fprintln(os.Stderr, "Usage: accel [klog flags] <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version    Show version")
	fmt.Fprintln(os.Stderr, "  info       Show the resolved backend configuration")
	fmt.Fprintln(os.Stderr, "  compile    Compile a graph description into a context binary")
	fmt.Fprintln(os.Stderr, "  run        Execute a context binary")
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	switch args[0] {
	case "version":
		fmt.Printf("accel %s\n", version)
		return nil
	case "info":
		return runInfo(args[1:])
	case "compile":
		return runCompile(ctx, args[1:])
	case "run":
		return runExecute(ctx, args[1:])
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// loadConfig reads the configuration file, or returns the reference HTP
// defaults when path is empty.
func loadConfig(path string) (accel.Config, error) {
	if path == "" {
		cfg := accel.DefaultConfig(accel.KindHTP)
		cfg.Driver = accel.DriverReference
		return cfg, nil
	}
	cfg, err := accel.LoadConfig(path)
	if err != nil {
		return accel.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return accel.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	configPath := fs.String("config", "", "backend config file (.hcl, .yaml)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	m := accel.New(cfg, nil)

	fmt.Printf("Backend:        %s\n", cfg.Kind)
	fmt.Printf("Available:      %t\n", m.IsAvailable())
	fmt.Printf("Driver:         %s\n", cfg.Driver)
	fmt.Printf("Library:        %s\n", m.LibraryPath())
	fmt.Printf("Graph:          %s\n", cfg.GraphName)
	fmt.Printf("SoC:            %s (%s, %d MB VTCM)\n", cfg.Soc.Model, cfg.Soc.HtpArch, cfg.Soc.VtcmSizeMB)
	fmt.Printf("Online prepare: %t\n", m.IsOnlinePrepare())
	fmt.Printf("Log level:      %s\n", cfg.LogLevel)
	return nil
}

func runCompile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	configPath := fs.String("config", "", "backend config file (.hcl, .yaml)")
	graphPath := fs.String("graph", "", "graph description (.hcl)")
	out := fs.String("out", "", "output path or gs:// URL for the context binary")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *graphPath == "" {
		return fmt.Errorf("-graph is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	g, err := accel.LoadGraph(*graphPath)
	if err != nil {
		return err
	}

	m := accel.New(cfg, nil)
	defer m.Destroy()
	if err := m.Init(); err != nil {
		return err
	}
	if !m.IsNodeSupportedByBackend(g.Ops) {
		return fmt.Errorf("graph %s has ops the %s backend does not support", *graphPath, cfg.Kind)
	}

	payload, err := m.Compile(g.Ops)
	if err != nil {
		return err
	}
	if m.IsOnlinePrepare() {
		klog.InfoS("Graph prepared online, no context binary produced", "graph", cfg.GraphName)
		return nil
	}
	if *out == "" {
		return fmt.Errorf("-out is required unless online_prepare is set")
	}

	data, err := accel.MarshalContextBinary(accel.NewContextBinaryFile(payload, cfg))
	if err != nil {
		return fmt.Errorf("encoding context binary: %w", err)
	}
	if err := blobs.WriteAll(ctx, *out, data); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d ops, %d bytes)\n", *out, len(g.Ops), len(data))
	return nil
}

// inputFlags collects repeated -input name=file flags.
type inputFlags map[string]string

func (f inputFlags) String() string {
	pairs := make([]string, 0, len(f))
	for name, path := range f {
		pairs = append(pairs, name+"="+path)
	}
	return strings.Join(pairs, ",")
}

func (f inputFlags) Set(v string) error {
	name, path, ok := strings.Cut(v, "=")
	if !ok || name == "" || path == "" {
		return fmt.Errorf("expected name=file, got %q", v)
	}
	f[name] = path
	return nil
}

func runExecute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "backend config file (.hcl, .yaml)")
	binary := fs.String("binary", "", "context binary path or gs:// URL")
	outDir := fs.String("output-dir", "", "directory for raw output tensors (default: print float32 outputs)")
	inputs := inputFlags{}
	fs.Var(inputs, "input", "raw input tensor as name=file (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *binary == "" {
		return fmt.Errorf("-binary is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	data, err := blobs.ReadAll(ctx, *binary)
	if err != nil {
		return err
	}
	file, err := accel.UnmarshalContextBinary(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", *binary, err)
	}
	if file.Header.GraphName != cfg.GraphName {
		klog.Warningf("context binary was built for graph %q, config names %q", file.Header.GraphName, cfg.GraphName)
	}

	m := accel.New(cfg, file.Payload)
	defer m.Destroy()
	if err := m.Init(); err != nil {
		return err
	}
	if err := m.AllocateTensor(); err != nil {
		return err
	}

	for _, t := range m.InputTensors() {
		path, ok := inputs[t.Name()]
		if !ok {
			klog.InfoS("No data for input, using zeros", "tensor", t.Name())
			t.AllocateData()
			continue
		}
		//nolint:gosec // G304: input path is supplied by the operator
		buf, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading input %s: %w", t.Name(), err)
		}
		if err := t.SetData(buf); err != nil {
			return fmt.Errorf("input %s: %w", t.Name(), err)
		}
	}
	for _, t := range m.OutputTensors() {
		t.AllocateData()
	}

	if err := m.Execute(m.InputTensors(), m.OutputTensors()); err != nil {
		return err
	}
	return writeOutputs(ctx, m.OutputTensors(), *outDir)
}

func writeOutputs(ctx context.Context, outputs []*accel.Tensor, dir string) error {
	for _, t := range outputs {
		if dir != "" {
			url := strings.TrimSuffix(dir, "/") + "/" + t.Name() + ".bin"
			if err := blobs.WriteAll(ctx, url, t.Data()); err != nil {
				return err
			}
			continue
		}
		if t.DataType() != accel.Float32 {
			fmt.Printf("%s: %s %v (%d bytes)\n", t.Name(), t.DataType(), t.Dims(), len(t.Data()))
			continue
		}
		fmt.Printf("%s: %v\n", t.Name(), accel.Float32s(t.Data()))
	}
	return nil
}
