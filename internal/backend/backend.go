package backend

import (
	"strconv"

	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/config"
	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/logging"
	"github.com/born-ml/accel/internal/wrapper"
)

// Backend is the driver's backend object. It validates operators and is
// the parent of every context.
type Backend struct {
	rt     driver.Runtime
	log    *logging.Logger
	kind   config.BackendKind
	htp    config.HtpOptions
	handle driver.BackendHandle
}

// NewBackend creates an unconfigured backend component.
func NewBackend(rt driver.Runtime, log *logging.Logger, kind config.BackendKind, htp config.HtpOptions) *Backend {
	return &Backend{rt: rt, log: log, kind: kind, htp: htp}
}

// CustomConfigs returns the backend options passed to the driver. Only the
// tensor processor backend takes any.
func (b *Backend) CustomConfigs() []driver.CustomConfig {
	if b.kind != config.KindHTP {
		return nil
	}
	return []driver.CustomConfig{
		{Key: "htp.performance_mode", Value: b.htp.PerformanceMode},
		{Key: "htp.precision", Value: b.htp.Precision},
		{Key: "htp.pd_session", Value: b.htp.PDSession},
		{Key: "htp.use_conv_hmx", Value: strconv.FormatBool(b.htp.UseConvHMX)},
		{Key: "htp.use_fold_relu", Value: strconv.FormatBool(b.htp.UseFoldRelu)},
	}
}

// Configure creates the native backend.
func (b *Backend) Configure() error {
	h, st := b.rt.BackendCreate(b.log.Handle(), b.CustomConfigs())
	if err := st.Err("BackendCreate"); err != nil {
		klog.ErrorS(err, "Failed to create backend", "kind", b.kind, "code", st.Code())
		return err
	}
	b.handle = h
	return nil
}

// Handle returns the native handle, or 0 before Configure.
func (b *Backend) Handle() driver.BackendHandle {
	return b.handle
}

// ValidateOp asks the driver whether it can run op. The op's parameters
// must be populated first.
func (b *Backend) ValidateOp(op *wrapper.Op) error {
	st := b.rt.BackendValidateOpConfig(b.handle, op.OpConfig())
	return st.Err("BackendValidateOpConfig")
}

// Release frees the native backend.
func (b *Backend) Release() {
	if b == nil || b.handle == 0 {
		return
	}
	if st := b.rt.BackendFree(b.handle); !st.OK() {
		klog.Warningf("failed to free backend, error %d", st.Code())
	}
	b.handle = 0
}
