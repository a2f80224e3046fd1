//go:build !linux

package goble

import (
	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/stack"
)

// Stack is unavailable outside Linux; every method returns stack.ErrUnsupported.
type Stack struct{}

func New(deviceID int) *Stack {
	return &Stack{}
}

func (s *Stack) Init(cfg stack.Config, h stack.Handlers) error {
	log.Warning("HCI sockets are only available on Linux")
	return stack.ErrUnsupported
}

func (s *Stack) RegisterApplication(appID uint16) error { return stack.ErrUnsupported }

func (s *Stack) ConfigureAdvertisingData(data *stack.AdvertisingData) error {
	return stack.ErrUnsupported
}

func (s *Stack) StartAdvertising(params *stack.AdvertisingParameters) error {
	return stack.ErrUnsupported
}

func (s *Stack) Close() error { return nil }
