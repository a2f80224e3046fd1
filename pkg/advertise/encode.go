package advertise

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"

	"github.com/periph-ble/ble-command/pkg/stack"
)

// MaxPayloadLength is the size of a legacy advertising or scan response PDU payload.
const MaxPayloadLength = adv.MaxEIRPacketLength

// AD structure types the adv package has no field constructor for.
const (
	typeTxPower        = 0x0a
	typeSlaveConnRange = 0x12
	typeServiceData16  = 0x16
	typeAppearance     = 0x19
)

// Flags values.
const (
	FlagLimitedDiscoverable = adv.FlagLimitedDiscoverable
	FlagGeneralDiscoverable = adv.FlagGeneralDiscoverable
	FlagBREDRNotSupported   = adv.FlagLEOnly
	FlagDualModeController  = adv.FlagBothController
	FlagDualModeHost        = adv.FlagBothHost
)

// ErrPayloadTooLarge is returned when advertising data does not fit in a single PDU.
var ErrPayloadTooLarge = fmt.Errorf("%w: advertising payload exceeds %d bytes", stack.ErrInvalidArgument, MaxPayloadLength)

func field(typ byte, b []byte) adv.Field {
	return adv.Raw(append([]byte{byte(len(b) + 1), typ}, b...))
}

func uint16Field(typ byte, values ...uint16) adv.Field {
	b := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return field(typ, b)
}

// manufacturerData splits the leading company identifier off b.
func manufacturerData(b []byte) adv.Field {
	if len(b) < 2 {
		return field(0xff, b)
	}
	return adv.ManufacturerData(binary.LittleEndian.Uint16(b), b[2:])
}

// shorten trims name to at most n bytes without splitting a rune.
func shorten(name string, n int) string {
	if n >= len(name) {
		return name
	}
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n]
}

// Encode renders data as AD structures. The device name is added last when data.IncludeName is
// set and is shortened to whatever space remains. txPower is only used when data.IncludeTxPower
// is set.
func Encode(data *stack.AdvertisingData, deviceName string, txPower int8) ([]byte, error) {
	if data == nil {
		return nil, errors.New("nil advertising data")
	}
	switch len(data.ServiceUUID) {
	case 0, 2, 4, 16:
	default:
		return nil, fmt.Errorf("%w: service UUID must be 2, 4 or 16 bytes", stack.ErrInvalidArgument)
	}

	var fields []adv.Field
	if data.Flags != 0 {
		fields = append(fields, adv.Flags(data.Flags))
	}
	if data.IncludeTxPower {
		fields = append(fields, field(typeTxPower, []byte{byte(txPower)}))
	}
	if data.MinInterval != 0 || data.MaxInterval != 0 {
		fields = append(fields, uint16Field(typeSlaveConnRange, data.MinInterval, data.MaxInterval))
	}
	if data.Appearance != 0 {
		fields = append(fields, uint16Field(typeAppearance, data.Appearance))
	}
	if len(data.ServiceUUID) > 0 {
		fields = append(fields, adv.AllUUID(ble.UUID(data.ServiceUUID)))
	}
	// adv.ServiceData16 also emits a complete 16-bit UUID list, which would repeat ServiceUUID.
	if len(data.ServiceData) > 0 {
		fields = append(fields, field(typeServiceData16, data.ServiceData))
	}
	if len(data.ManufacturerData) > 0 {
		fields = append(fields, manufacturerData(data.ManufacturerData))
	}
	p, err := adv.NewPacket(fields...)
	if errors.Is(err, adv.ErrNotFit) {
		return nil, ErrPayloadTooLarge
	} else if err != nil {
		return nil, fmt.Errorf("%w: %s", stack.ErrInvalidArgument, err)
	}

	if data.IncludeName && deviceName != "" {
		room := MaxPayloadLength - p.Len() - 2
		if room >= len(deviceName) {
			err = p.Append(adv.CompleteName(deviceName))
		} else if name := shorten(deviceName, room); name != "" {
			err = p.Append(adv.ShortName(name))
		}
		if err != nil {
			return nil, ErrPayloadTooLarge
		}
	}
	return p.Bytes(), nil
}
