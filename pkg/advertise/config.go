// Package advertise builds the advertising and scan response payloads and the advertising
// parameters passed to the radio stack.
package advertise

import (
	"fmt"

	"github.com/go-ble/ble"

	"github.com/periph-ble/ble-command/pkg/stack"
)

// Config describes an advertising or scan response payload. The zero value advertises nothing
// but is valid.
type Config struct {
	IncludeName    bool `json:"include_name,omitempty" yaml:"include_name"`
	IncludeTxPower bool `json:"include_tx_power,omitempty" yaml:"include_tx_power"`
	// Preferred connection interval range in 1.25 ms units. Both zero omits the range.
	MinInterval  uint16     `json:"min_interval,omitempty" yaml:"min_interval"`
	MaxInterval  uint16     `json:"max_interval,omitempty" yaml:"max_interval"`
	Manufacturer string     `json:"manufacturer,omitempty" yaml:"manufacturer"`
	Service      string     `json:"service,omitempty" yaml:"service"`
	ServiceUUID  string     `json:"service_uuid,omitempty" yaml:"service_uuid"`
	Appearance   Appearance `json:"appearance,omitempty" yaml:"appearance"`
	Flags        uint8      `json:"flags,omitempty" yaml:"flags"`
}

// Data converts c into the structure accepted by stack.Stack.ConfigureAdvertisingData.
func (c *Config) Data(scanResponse bool) (*stack.AdvertisingData, error) {
	if c.MinInterval > c.MaxInterval {
		return nil, fmt.Errorf("%w: connection interval min %d exceeds max %d", stack.ErrInvalidArgument,
			c.MinInterval, c.MaxInterval)
	}
	data := &stack.AdvertisingData{
		ScanResponse:   scanResponse,
		IncludeName:    c.IncludeName,
		IncludeTxPower: c.IncludeTxPower,
		MinInterval:    c.MinInterval,
		MaxInterval:    c.MaxInterval,
		Appearance:     c.Appearance.Value(),
		Flags:          c.Flags,
	}
	if c.Manufacturer != "" {
		data.ManufacturerData = []byte(c.Manufacturer)
	}
	if c.Service != "" {
		data.ServiceData = []byte(c.Service)
	}
	if c.ServiceUUID != "" {
		uuid, err := ble.Parse(c.ServiceUUID)
		if err != nil {
			return nil, fmt.Errorf("%w: service UUID: %s", stack.ErrInvalidArgument, err)
		}
		data.ServiceUUID = []byte(uuid)
	}
	return data, nil
}
