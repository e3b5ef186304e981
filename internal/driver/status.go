package driver

import (
	"errors"
	"fmt"
)

// Status is the raw result of a native driver call.
// The low 16 bits carry the error code; zero means success.
type Status uint64

// Success is returned by every native call that completed.
const Success Status = 0

// Native error codes, grouped by the driver API family that reports them.
const (
	// Common.
	CodeGeneral         uint16 = 1000
	CodeNotSupported    uint16 = 1001
	CodeMemAlloc        uint16 = 1002
	CodeInvalidArgument uint16 = 1003
	CodeInvalidHandle   uint16 = 1004
	CodeLoadFailed      uint16 = 1005

	// Backend.
	CodeOpNotSupported     uint16 = 3001
	CodeOpInvalidParam     uint16 = 3002
	CodeOpInvalidTensors   uint16 = 3003
	CodeBackendUnavailable uint16 = 3004

	// Device.
	CodeDeviceInvalidConfig uint16 = 4001

	// Context.
	CodeContextBinaryInvalid  uint16 = 5001
	CodeContextBufferTooSmall uint16 = 5002
	CodeContextGraphMissing   uint16 = 5003

	// Graph.
	CodeGraphInvalidName     uint16 = 6001
	CodeGraphInvalidTensor   uint16 = 6002
	CodeGraphInvalidNode     uint16 = 6003
	CodeGraphFinalized       uint16 = 6004
	CodeGraphNotFinalized    uint16 = 6005
	CodeGraphUnconnectedNode uint16 = 6006
	CodeGraphExecution       uint16 = 6007

	// Tensor.
	CodeTensorAlreadyExists uint16 = 7001
	CodeTensorInvalidData   uint16 = 7002
)

// StatusOf builds a status from a native error code.
func StatusOf(code uint16) Status {
	return Status(code)
}

// Code returns the native error code of the status.
func (s Status) Code() uint16 {
	return uint16(s & 0xffff)
}

// OK reports whether the call succeeded.
func (s Status) OK() bool {
	return s == Success
}

// Err converts a failed status into a *StatusError naming the native call.
// It returns nil for Success.
func (s Status) Err(op string) error {
	if s == Success {
		return nil
	}
	return &StatusError{Op: op, Status: s}
}

// StatusError reports a native call that returned a non-success status.
type StatusError struct {
	Op     string // Native call that failed (e.g. "GraphAddNode")
	Status Status // Raw status returned by the driver
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with error %d", e.Op, e.Status.Code())
}

// Code returns the native error code carried by err, or 0 when err does not
// wrap a *StatusError.
func Code(err error) uint16 {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status.Code()
	}
	return 0
}
