// Package config holds the immutable configuration snapshot of one
// accelerator backend manager.
package config

import (
	"fmt"
	"strings"

	"github.com/born-ml/accel/internal/driver"
)

// BackendKind selects the accelerator subsystem a manager targets.
type BackendKind int

// Supported backend kinds.
const (
	KindUnknown BackendKind = iota
	KindCPU
	KindGPU
	KindDSP
	KindHTP
)

// Default driver library names per backend kind.
const (
	HTPLibraryName = "libQnnHtp.so"
	DSPLibraryName = "libQnnDsp.so"
	GPULibraryName = "libQnnGpu.so"
)

// SkelLibraryEnv is exported with SkelLibraryDir before the driver loads.
const SkelLibraryEnv = "ADSP_LIBRARY_PATH"

// String returns the backend kind name.
func (k BackendKind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindGPU:
		return "gpu"
	case KindDSP:
		return "dsp"
	case KindHTP:
		return "htp"
	default:
		return "unknown"
	}
}

// ParseBackendKind parses a backend kind name (case-insensitive).
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return KindCPU, nil
	case "gpu":
		return KindGPU, nil
	case "dsp":
		return KindDSP, nil
	case "htp":
		return KindHTP, nil
	default:
		return KindUnknown, fmt.Errorf("unknown backend kind %q", s)
	}
}

// DefaultLibraryName returns the driver library used when no explicit path
// is configured. Only HTP, DSP and GPU have one.
func DefaultLibraryName(k BackendKind) (string, bool) {
	switch k {
	case KindHTP:
		return HTPLibraryName, true
	case KindDSP:
		return DSPLibraryName, true
	case KindGPU:
		return GPULibraryName, true
	default:
		return "", false
	}
}

// LogLevel is the configured verbosity. Each level shows every lower one.
type LogLevel int

// Log levels, least to most verbose.
const (
	LogOff LogLevel = iota
	LogError
	LogWarn
	LogInfo
	LogVerbose
	LogDebug
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogOff:
		return "off"
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	case LogVerbose:
		return "verbose"
	case LogDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a level name. "none" is accepted for LogOff.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return LogOff, nil
	case "error":
		return LogError, nil
	case "warn", "warning":
		return LogWarn, nil
	case "info":
		return LogInfo, nil
	case "verbose":
		return LogVerbose, nil
	case "debug":
		return LogDebug, nil
	default:
		return LogOff, fmt.Errorf("unknown log level %q", s)
	}
}

// Enabled reports whether records at level are shown under l.
func (l LogLevel) Enabled(level LogLevel) bool {
	return level != LogOff && level <= l
}

// DriverLevel maps the level onto the native log level. LogOff maps to 0,
// which no driver record can match.
func (l LogLevel) DriverLevel() driver.LogLevel {
	if l <= LogOff {
		return 0
	}
	return driver.LogLevel(l)
}

// SocInfo describes the target system-on-chip.
type SocInfo struct {
	Model      string // SoC model name, e.g. "SM8550"
	HtpArch    string // tensor processor architecture, e.g. "v73"
	VtcmSizeMB int    // on-chip memory reserved for the graph
}

// HtpOptions are tuning knobs forwarded to the tensor processor backend.
type HtpOptions struct {
	PerformanceMode string // "default", "burst", "balanced", "power_saver", ...
	Precision       string // "quantized" or "fp16"
	PDSession       string // "unsigned" or "signed"
	UseConvHMX      bool
	UseFoldRelu     bool
}

// Driver names accepted in BackendConfig.Driver.
const (
	DriverNative    = "native"
	DriverReference = "reference"
)

// BackendConfig is the configuration snapshot of one manager. It is copied
// on manager construction and never mutated afterwards.
type BackendConfig struct {
	Kind           BackendKind
	LibraryPath    string
	SkelLibraryDir string
	GraphName      string
	Soc            SocInfo
	Htp            HtpOptions
	LogLevel       LogLevel
	OnlinePrepare  bool
	Driver         string
}

// Default returns the configuration used when no file is given.
func Default(kind BackendKind) BackendConfig {
	return BackendConfig{
		Kind:      kind,
		GraphName: "forward",
		Soc: SocInfo{
			Model:      "SM8550",
			HtpArch:    "v73",
			VtcmSizeMB: 8,
		},
		Htp: HtpOptions{
			PerformanceMode: "default",
			Precision:       "quantized",
			PDSession:       "unsigned",
			UseConvHMX:      true,
			UseFoldRelu:     true,
		},
		LogLevel: LogWarn,
		Driver:   DriverNative,
	}
}

// Validate checks that the configuration can drive a manager.
func (c BackendConfig) Validate() error {
	if c.Kind == KindUnknown || c.Kind > KindHTP {
		return fmt.Errorf("invalid backend kind %d", c.Kind)
	}
	if c.LogLevel < LogOff || c.LogLevel > LogDebug {
		return fmt.Errorf("invalid log level %d", c.LogLevel)
	}
	if c.GraphName == "" {
		return fmt.Errorf("graph name is empty")
	}
	if c.Soc.VtcmSizeMB < 0 {
		return fmt.Errorf("invalid vtcm size %d MB (must be >= 0)", c.Soc.VtcmSizeMB)
	}
	switch c.Driver {
	case "", DriverNative, DriverReference:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	return nil
}

// ResolveLibraryPath returns the configured library path, or the kind's
// default library name when the path is empty.
func (c BackendConfig) ResolveLibraryPath() (string, error) {
	if c.LibraryPath != "" {
		return c.LibraryPath, nil
	}
	name, ok := DefaultLibraryName(c.Kind)
	if !ok {
		return "", fmt.Errorf("no default library for backend kind %s", c.Kind)
	}
	return name, nil
}
