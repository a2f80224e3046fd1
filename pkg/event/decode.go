package event

import (
	"encoding/binary"

	"github.com/periph-ble/ble-command/pkg/stack"
)

const reasonTruncated = "truncated payload"

// DecodeGAP classifies a GAP callback. It accepts any kind and any payload, including nil.
func DecodeGAP(kind stack.GAPEvent, payload []byte) Event {
	switch kind {
	case stack.GAPAdvDataSetComplete, stack.GAPScanRspDataSetComplete, stack.GAPAdvStartComplete:
	default:
		return Unhandled{Layer: LayerGAP, Code: uint32(kind), Interface: stack.InterfaceNone}
	}
	status, ok := readStatus(payload)
	if !ok {
		return Unhandled{Layer: LayerGAP, Code: uint32(kind), Interface: stack.InterfaceNone, Reason: reasonTruncated}
	}
	switch kind {
	case stack.GAPAdvDataSetComplete:
		return AdvertisingDataSet{Status: status}
	case stack.GAPScanRspDataSetComplete:
		return ScanResponseDataSet{Status: status}
	default:
		return AdvertisingStarted{Status: status}
	}
}

// DecodeGATTS classifies a GATT server callback received on iface.
func DecodeGATTS(kind stack.GATTSEvent, iface stack.Interface, payload []byte) Event {
	if kind != stack.GATTSRegister {
		return Unhandled{Layer: LayerGATTS, Code: uint32(kind), Interface: iface}
	}
	if len(payload) < stack.RegisterPayloadSize {
		return Unhandled{Layer: LayerGATTS, Code: uint32(kind), Interface: iface, Reason: reasonTruncated}
	}
	status, _ := readStatus(payload)
	return ApplicationRegistered{
		Status:    status,
		AppID:     binary.LittleEndian.Uint16(payload[stack.AppIDOffset:]),
		Interface: iface,
	}
}

func readStatus(payload []byte) (stack.Status, bool) {
	if len(payload) < stack.StatusOffset+stack.StatusPayloadSize {
		return 0, false
	}
	return stack.Status(binary.LittleEndian.Uint32(payload[stack.StatusOffset:])), true
}
