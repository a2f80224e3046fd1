//go:build !linux

package tinygo

import (
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/stack"
)

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		log.Warning("Only Linux supports specifying a Bluetooth adapter ID")
		return nil, fmt.Errorf("%w: the bluetooth adapter ID is invalid", stack.ErrInvalidArgument)
	}
	return bluetooth.DefaultAdapter, nil
}
