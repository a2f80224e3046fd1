// Package stack describes the callback-driven BLE radio stack that a peripheral drives.
//
// A Stack accepts commands synchronously but reports their outcome later through Handlers,
// invoked from the stack's own goroutine. Backends live in subpackages: sim is an in-memory
// simulator, goble drives a Linux HCI device, and tinygo drives tinygo.org/x/bluetooth.
package stack

import (
	"errors"
	"fmt"
)

// DefaultMTU is the local MTU requested during bring-up when Config.MTU is zero.
const DefaultMTU = 500

// MaxApplicationID is the largest application id the stack accepts.
const MaxApplicationID = 0x7fff

var (
	// ErrInvalidArgument is returned by backends that refuse a command because of a bad argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotReady is returned by backends that receive a command before Init or after Close.
	ErrNotReady = errors.New("stack not ready")
	// ErrUnsupported is returned by backends that cannot express a command on their hardware.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// Config holds the parameters of the one-shot bring-up.
type Config struct {
	DeviceName string
	MTU        uint16
}

// Handlers receive stack events. Each payload slice is only valid for the duration of the call;
// implementations must copy anything they need to keep.
type Handlers struct {
	GAP   func(kind GAPEvent, payload []byte)
	GATTS func(kind GATTSEvent, iface Interface, payload []byte)
}

//go:generate mockgen -source stack.go -destination ../../mocks/stack.go -package mocks -mock_names Stack=Stack

// Stack is the outbound command surface of the radio stack. Each method returns only whether
// the command was accepted; the result arrives later through Handlers.
type Stack interface {
	// Init brings up the controller and host, installs h and applies cfg. It must be called
	// exactly once before any other method.
	Init(cfg Config, h Handlers) error
	// RegisterApplication asks the stack to register a GATT server application. Completion is
	// reported as GATTSRegister with the assigned Interface.
	RegisterApplication(appID uint16) error
	// ConfigureAdvertisingData installs an advertising or scan response payload, depending on
	// data.ScanResponse. Completion is reported as GAPAdvDataSetComplete or
	// GAPScanRspDataSetComplete.
	ConfigureAdvertisingData(data *AdvertisingData) error
	// StartAdvertising enables advertising. Completion is reported as GAPAdvStartComplete.
	StartAdvertising(params *AdvertisingParameters) error
	Close() error
}

// AdvertisingData mirrors the structured advertising payload accepted by the stack. Backends
// that need raw bytes render it with advertise.Encode.
type AdvertisingData struct {
	ScanResponse     bool
	IncludeName      bool
	IncludeTxPower   bool
	MinInterval      uint16 // Preferred connection interval, 1.25 ms units. Zero omits the range.
	MaxInterval      uint16
	Appearance       uint16
	ManufacturerData []byte
	ServiceData      []byte
	ServiceUUID      []byte // 2 or 16 bytes, little-endian as sent over the air.
	Flags            uint8
}

// AdvertisingType is the PDU type used while advertising.
type AdvertisingType uint8

const (
	AdvertisingConnectable    AdvertisingType = 0x00 // ADV_IND
	AdvertisingDirectHighDuty AdvertisingType = 0x01 // ADV_DIRECT_IND
	AdvertisingScannable      AdvertisingType = 0x02 // ADV_SCAN_IND
	AdvertisingNonConnectable AdvertisingType = 0x03 // ADV_NONCONN_IND
	AdvertisingDirectLowDuty  AdvertisingType = 0x04

	advertisingTypeMaxKnown = AdvertisingDirectLowDuty
)

// Advertising interval bounds accepted by the controller.
const (
	AdvertisingIntervalMinAllowed = 0x0020
	AdvertisingIntervalMaxAllowed = 0x4000
)

func (t AdvertisingType) String() string {
	switch t {
	case AdvertisingConnectable:
		return "ADV_IND"
	case AdvertisingDirectHighDuty:
		return "ADV_DIRECT_IND_HIGH"
	case AdvertisingScannable:
		return "ADV_SCAN_IND"
	case AdvertisingNonConnectable:
		return "ADV_NONCONN_IND"
	case AdvertisingDirectLowDuty:
		return "ADV_DIRECT_IND_LOW"
	}
	return fmt.Sprintf("ADV_TYPE_%d", uint8(t))
}

// AdvertisingParameters are passed to StartAdvertising. Intervals are in 0.625 ms units.
type AdvertisingParameters struct {
	IntervalMin     uint16
	IntervalMax     uint16
	Type            AdvertisingType
	OwnAddressType  uint8
	PeerAddress     [6]byte
	PeerAddressType uint8
	ChannelMap      uint8
	FilterPolicy    uint8
}

// Validate checks the ranges the controller enforces.
func (p *AdvertisingParameters) Validate() error {
	if p.IntervalMin < AdvertisingIntervalMinAllowed || p.IntervalMax > AdvertisingIntervalMaxAllowed {
		return fmt.Errorf("%w: advertising interval outside 0x%04x-0x%04x", ErrInvalidArgument,
			AdvertisingIntervalMinAllowed, AdvertisingIntervalMaxAllowed)
	}
	if p.IntervalMin > p.IntervalMax {
		return fmt.Errorf("%w: advertising interval min 0x%04x exceeds max 0x%04x", ErrInvalidArgument,
			p.IntervalMin, p.IntervalMax)
	}
	if p.Type > advertisingTypeMaxKnown {
		return fmt.Errorf("%w: unknown advertising type %d", ErrInvalidArgument, p.Type)
	}
	if p.ChannelMap&0x07 == 0 || p.ChannelMap&^0x07 != 0 {
		return fmt.Errorf("%w: invalid channel map 0x%02x", ErrInvalidArgument, p.ChannelMap)
	}
	return nil
}
