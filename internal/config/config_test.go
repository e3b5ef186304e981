package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/accel/internal/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLibraryPathDefaults(t *testing.T) {
	tests := []struct {
		kind BackendKind
		want string
	}{
		{KindHTP, HTPLibraryName},
		{KindDSP, DSPLibraryName},
		{KindGPU, GPULibraryName},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			cfg := Default(tt.kind)
			path, err := cfg.ResolveLibraryPath()
			require.NoError(t, err)
			assert.Equal(t, tt.want, path)
		})
	}
}

func TestResolveLibraryPathExplicit(t *testing.T) {
	cfg := Default(KindDSP)
	cfg.LibraryPath = "/opt/qnn/lib/libCustom.so"
	path, err := cfg.ResolveLibraryPath()
	require.NoError(t, err)
	assert.Equal(t, "/opt/qnn/lib/libCustom.so", path)
}

func TestResolveLibraryPathCPUHasNoDefault(t *testing.T) {
	_, err := Default(KindCPU).ResolveLibraryPath()
	assert.Error(t, err)
}

func TestLogLevelEnabled(t *testing.T) {
	assert.True(t, LogInfo.Enabled(LogError))
	assert.True(t, LogInfo.Enabled(LogInfo))
	assert.False(t, LogInfo.Enabled(LogVerbose))
	assert.False(t, LogOff.Enabled(LogError))
	assert.False(t, LogDebug.Enabled(LogOff))

	assert.Equal(t, driver.LogWarn, LogWarn.DriverLevel())
	assert.Equal(t, driver.LogDebug, LogDebug.DriverLevel())
	assert.Equal(t, driver.LogLevel(0), LogOff.DriverLevel())
}

func TestParse(t *testing.T) {
	k, err := ParseBackendKind("HTP")
	require.NoError(t, err)
	assert.Equal(t, KindHTP, k)

	_, err = ParseBackendKind("npu")
	assert.Error(t, err)

	l, err := ParseLogLevel("none")
	require.NoError(t, err)
	assert.Equal(t, LogOff, l)

	_, err = ParseLogLevel("trace")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default(KindHTP)
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Kind = KindUnknown
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.GraphName = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Soc.VtcmSizeMB = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Driver = "cuda"
	assert.Error(t, bad.Validate())
}

func TestLoadFileHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.hcl")
	src := `
backend {
  kind             = "dsp"
  skel_library_dir = "/vendor/lib/rfsa/adsp"
  graph_name       = "mobilenet"
  log_level        = "verbose"
  online_prepare   = true
  driver           = "reference"

  soc {
    model        = "SM8650"
    vtcm_size_mb = 4
  }

  htp {
    precision     = "fp16"
    use_fold_relu = false
  }
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, KindDSP, cfg.Kind)
	assert.Empty(t, cfg.LibraryPath)
	assert.Equal(t, "/vendor/lib/rfsa/adsp", cfg.SkelLibraryDir)
	assert.Equal(t, "mobilenet", cfg.GraphName)
	assert.Equal(t, LogVerbose, cfg.LogLevel)
	assert.True(t, cfg.OnlinePrepare)
	assert.Equal(t, DriverReference, cfg.Driver)
	assert.Equal(t, "SM8650", cfg.Soc.Model)
	assert.Equal(t, "v73", cfg.Soc.HtpArch, "unset fields keep defaults")
	assert.Equal(t, 4, cfg.Soc.VtcmSizeMB)
	assert.Equal(t, "fp16", cfg.Htp.Precision)
	assert.False(t, cfg.Htp.UseFoldRelu)
	assert.True(t, cfg.Htp.UseConvHMX)
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.yaml")
	src := `
backend:
  kind: gpu
  library_path: /data/local/tmp/libQnnGpu.so
  log_level: error
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, KindGPU, cfg.Kind)
	assert.Equal(t, "/data/local/tmp/libQnnGpu.so", cfg.LibraryPath)
	assert.Equal(t, LogError, cfg.LogLevel)
	assert.Equal(t, "forward", cfg.GraphName)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "backend.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.hcl")
	require.NoError(t, os.WriteFile(bad, []byte(`backend { kind = "tpu" }`), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)

	missing := filepath.Join(dir, "missing.hcl")
	require.NoError(t, os.WriteFile(missing, []byte(`other {}`), 0o600))
	_, err = LoadFile(missing)
	assert.Error(t, err)
}
