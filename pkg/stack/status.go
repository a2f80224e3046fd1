package stack

import (
	"fmt"

	"github.com/periph-ble/ble-command/pkg/protocol"
)

// Status is the outcome code the radio stack attaches to completion events. The numbering
// follows esp_bt_status_t.
type Status uint32

const (
	StatusSuccess Status = iota
	StatusFail
	StatusNotReady
	StatusNoMem
	StatusBusy
	StatusDone
	StatusUnsupported
	StatusParamInvalid
	StatusUnhandled
	StatusAuthFailure
	StatusRemoteDeviceDown
	StatusAuthRejected
	StatusInvalidStaticRandAddr
	StatusPending
	StatusUnacceptConnInterval
	StatusParamOutOfRange
	StatusTimeout
	StatusPeerLEDataLenUnsupported
	StatusControlLEDataLenUnsupported
	StatusIllegalParameterFormat
	StatusMemoryFull
	StatusEIRTooLarge
)

var statusNames = map[Status]string{
	StatusSuccess:                     "success",
	StatusFail:                        "failure",
	StatusNotReady:                    "not ready",
	StatusNoMem:                       "out of memory",
	StatusBusy:                        "busy",
	StatusDone:                        "done",
	StatusUnsupported:                 "unsupported",
	StatusParamInvalid:                "invalid parameter",
	StatusUnhandled:                   "unhandled",
	StatusAuthFailure:                 "authentication failure",
	StatusRemoteDeviceDown:            "remote device down",
	StatusAuthRejected:                "authentication rejected",
	StatusInvalidStaticRandAddr:       "invalid static random address",
	StatusPending:                     "pending",
	StatusUnacceptConnInterval:        "unacceptable connection interval",
	StatusParamOutOfRange:             "parameter out of range",
	StatusTimeout:                     "timeout",
	StatusPeerLEDataLenUnsupported:    "peer does not support LE data length",
	StatusControlLEDataLenUnsupported: "controller does not support LE data length",
	StatusIllegalParameterFormat:      "illegal parameter format",
	StatusMemoryFull:                  "memory full",
	StatusEIRTooLarge:                 "EIR data too large",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%x", uint32(s))
}

// OK returns true if s indicates success.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// Transient returns true if the same command might succeed if retried later.
func (s Status) Transient() bool {
	switch s {
	case StatusBusy, StatusNotReady, StatusNoMem, StatusPending, StatusTimeout:
		return true
	}
	return false
}

// Err returns nil if s indicates success, and otherwise a *protocol.StackError describing the
// failure of op.
func (s Status) Err(op string) error {
	if s.OK() {
		return nil
	}
	return &protocol.StackError{Op: op, Status: s}
}
