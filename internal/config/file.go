package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk layout shared by the HCL and YAML loaders.
type fileConfig struct {
	Backend fileBackend `hcl:"backend,block" yaml:"backend"`
}

type fileBackend struct {
	Kind           string   `hcl:"kind" yaml:"kind"`
	LibraryPath    *string  `hcl:"library_path,optional" yaml:"library_path"`
	SkelLibraryDir *string  `hcl:"skel_library_dir,optional" yaml:"skel_library_dir"`
	GraphName      *string  `hcl:"graph_name,optional" yaml:"graph_name"`
	LogLevel       *string  `hcl:"log_level,optional" yaml:"log_level"`
	OnlinePrepare  *bool    `hcl:"online_prepare,optional" yaml:"online_prepare"`
	Driver         *string  `hcl:"driver,optional" yaml:"driver"`
	Soc            *fileSoc `hcl:"soc,block" yaml:"soc"`
	Htp            *fileHtp `hcl:"htp,block" yaml:"htp"`
}

type fileSoc struct {
	Model      *string `hcl:"model,optional" yaml:"model"`
	HtpArch    *string `hcl:"htp_arch,optional" yaml:"htp_arch"`
	VtcmSizeMB *int    `hcl:"vtcm_size_mb,optional" yaml:"vtcm_size_mb"`
}

type fileHtp struct {
	PerformanceMode *string `hcl:"performance_mode,optional" yaml:"performance_mode"`
	Precision       *string `hcl:"precision,optional" yaml:"precision"`
	PDSession       *string `hcl:"pd_session,optional" yaml:"pd_session"`
	UseConvHMX      *bool   `hcl:"use_conv_hmx,optional" yaml:"use_conv_hmx"`
	UseFoldRelu     *bool   `hcl:"use_fold_relu,optional" yaml:"use_fold_relu"`
}

// LoadFile reads a backend configuration from an .hcl, .yaml or .yml file.
// Unset fields keep the values of Default for the configured kind.
func LoadFile(path string) (BackendConfig, error) {
	var fc fileConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return BackendConfig{}, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
		}
		diags = gohcl.DecodeBody(file.Body, nil, &fc)
		if diags.HasErrors() {
			return BackendConfig{}, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
		}
	case ".yaml", ".yml":
		//nolint:gosec // G304: config path is supplied by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return BackendConfig{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return BackendConfig{}, fmt.Errorf("failed to decode YAML file %s: %w", path, err)
		}
	default:
		return BackendConfig{}, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}

	cfg, err := fc.Backend.toConfig()
	if err != nil {
		return BackendConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (fb *fileBackend) toConfig() (BackendConfig, error) {
	kind, err := ParseBackendKind(fb.Kind)
	if err != nil {
		return BackendConfig{}, err
	}
	cfg := Default(kind)

	setString(&cfg.LibraryPath, fb.LibraryPath)
	setString(&cfg.SkelLibraryDir, fb.SkelLibraryDir)
	setString(&cfg.GraphName, fb.GraphName)
	setString(&cfg.Driver, fb.Driver)
	if fb.OnlinePrepare != nil {
		cfg.OnlinePrepare = *fb.OnlinePrepare
	}
	if fb.LogLevel != nil {
		level, err := ParseLogLevel(*fb.LogLevel)
		if err != nil {
			return BackendConfig{}, err
		}
		cfg.LogLevel = level
	}

	if soc := fb.Soc; soc != nil {
		setString(&cfg.Soc.Model, soc.Model)
		setString(&cfg.Soc.HtpArch, soc.HtpArch)
		if soc.VtcmSizeMB != nil {
			cfg.Soc.VtcmSizeMB = *soc.VtcmSizeMB
		}
	}

	if htp := fb.Htp; htp != nil {
		setString(&cfg.Htp.PerformanceMode, htp.PerformanceMode)
		setString(&cfg.Htp.Precision, htp.Precision)
		setString(&cfg.Htp.PDSession, htp.PDSession)
		if htp.UseConvHMX != nil {
			cfg.Htp.UseConvHMX = *htp.UseConvHMX
		}
		if htp.UseFoldRelu != nil {
			cfg.Htp.UseFoldRelu = *htp.UseFoldRelu
		}
	}

	return cfg, cfg.Validate()
}

func setString(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}
