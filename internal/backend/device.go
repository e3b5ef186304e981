package backend

import (
	"strconv"

	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/config"
	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/logging"
)

// Device is the driver's device object for the target SoC.
type Device struct {
	rt     driver.Runtime
	log    *logging.Logger
	kind   config.BackendKind
	soc    config.SocInfo
	handle driver.DeviceHandle
}

// NewDevice creates an unconfigured device component.
func NewDevice(rt driver.Runtime, log *logging.Logger, kind config.BackendKind, soc config.SocInfo) *Device {
	return &Device{rt: rt, log: log, kind: kind, soc: soc}
}

// CustomConfigs returns the SoC description for DSP-class backends.
func (d *Device) CustomConfigs() []driver.CustomConfig {
	if d.kind != config.KindHTP && d.kind != config.KindDSP {
		return nil
	}
	cfgs := []driver.CustomConfig{{Key: "soc.model", Value: d.soc.Model}}
	if d.kind == config.KindHTP {
		cfgs = append(cfgs,
			driver.CustomConfig{Key: "soc.htp_arch", Value: d.soc.HtpArch},
			driver.CustomConfig{Key: "soc.vtcm_size_mb", Value: strconv.Itoa(d.soc.VtcmSizeMB)},
		)
	}
	return cfgs
}

// Configure creates the native device.
func (d *Device) Configure() error {
	h, st := d.rt.DeviceCreate(d.log.Handle(), d.CustomConfigs())
	if err := st.Err("DeviceCreate"); err != nil {
		klog.ErrorS(err, "Failed to create device", "soc", d.soc.Model, "code", st.Code())
		return err
	}
	d.handle = h
	return nil
}

// Handle returns the native handle, or 0 before Configure.
func (d *Device) Handle() driver.DeviceHandle {
	return d.handle
}

// Release frees the native device.
func (d *Device) Release() {
	if d == nil || d.handle == 0 {
		return
	}
	if st := d.rt.DeviceFree(d.handle); !st.OK() {
		klog.Warningf("failed to free device, error %d", st.Code())
	}
	d.handle = 0
}
