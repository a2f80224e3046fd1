package advertise

import "github.com/periph-ble/ble-command/pkg/stack"

// Defaults used by DefaultParameters.
const (
	DefaultIntervalMin = 0x20
	DefaultIntervalMax = 0x40
	DefaultChannelMap  = 0x07
	OwnAddressPublic   = 0x00
	FilterAllowAll     = 0x00
)

// Parameters controls how advertising is performed. Intervals are in 0.625 ms units.
type Parameters struct {
	IntervalMin    uint16                `json:"interval_min" yaml:"interval_min"`
	IntervalMax    uint16                `json:"interval_max" yaml:"interval_max"`
	Type           stack.AdvertisingType `json:"type" yaml:"type"`
	OwnAddressType uint8                 `json:"own_address_type" yaml:"own_address_type"`
	ChannelMap     uint8                 `json:"channel_map" yaml:"channel_map"`
	FilterPolicy   uint8                 `json:"filter_policy" yaml:"filter_policy"`
}

// DefaultParameters returns connectable undirected advertising on all three channels every 20 to
// 40 ms from the public address, accepting scan and connection requests from any device.
func DefaultParameters() *Parameters {
	return &Parameters{
		IntervalMin:    DefaultIntervalMin,
		IntervalMax:    DefaultIntervalMax,
		Type:           stack.AdvertisingConnectable,
		OwnAddressType: OwnAddressPublic,
		ChannelMap:     DefaultChannelMap,
		FilterPolicy:   FilterAllowAll,
	}
}

// Stack converts p into the structure accepted by stack.Stack.StartAdvertising. A nil p yields
// the defaults.
func (p *Parameters) Stack() *stack.AdvertisingParameters {
	if p == nil {
		p = DefaultParameters()
	}
	return &stack.AdvertisingParameters{
		IntervalMin:    p.IntervalMin,
		IntervalMax:    p.IntervalMax,
		Type:           p.Type,
		OwnAddressType: p.OwnAddressType,
		ChannelMap:     p.ChannelMap,
		FilterPolicy:   p.FilterPolicy,
	}
}
