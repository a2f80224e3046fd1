//go:build linux

// Package goble implements stack.Stack on a Linux HCI socket using github.com/go-ble/ble.
//
// HCI commands are synchronous, so the backend runs them on its own goroutine and reports each
// outcome through the installed handlers, the way an asynchronous stack would. GATT application
// registration has no HCI equivalent; interfaces are assigned by the backend.
package goble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci"
	"github.com/go-ble/ble/linux/hci/cmd"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/stack"
)

const queueSize = 16

// ErrAdapterInvalidID is returned for a negative HCI device id.
var ErrAdapterInvalidID = fmt.Errorf("%w: the bluetooth adapter ID is invalid", stack.ErrInvalidArgument)

type controller interface {
	Send(c hci.Command, r hci.CommandRP) error
	Close() error
}

var _ controller = (*hci.HCI)(nil)

func openDevice(id int) (controller, error) {
	device, err := linux.NewDevice(ble.OptDeviceID(id))
	if err != nil {
		return nil, err
	}
	return device.HCI, nil
}

// Stack drives hciN, where N is the device id passed to New.
type Stack struct {
	deviceID int
	open     func(id int) (controller, error)

	lock        sync.Mutex
	cfg         stack.Config
	handlers    stack.Handlers
	hci         controller
	txPower     int8
	apps        map[uint16]stack.Interface
	nextIface   stack.Interface
	initialized bool
	closed      bool
	queue       chan func()
	done        chan struct{}
}

func New(deviceID int) *Stack {
	return newStack(deviceID, openDevice)
}

func newStack(deviceID int, open func(int) (controller, error)) *Stack {
	return &Stack{
		deviceID: deviceID,
		open:     open,
		apps:     make(map[uint16]stack.Interface),
		queue:    make(chan func(), queueSize),
		done:     make(chan struct{}),
	}
}

func (s *Stack) Init(cfg stack.Config, h stack.Handlers) error {
	if s.deviceID < 0 {
		return ErrAdapterInvalidID
	}
	if h.GAP == nil || h.GATTS == nil {
		return fmt.Errorf("%w: missing event handler", stack.ErrInvalidArgument)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.initialized || s.closed {
		return fmt.Errorf("%w: already initialized", stack.ErrNotReady)
	}

	log.Debug("Creating new BLE adapter on hci%d", s.deviceID)
	device, err := s.open(s.deviceID)
	if err != nil {
		return fmt.Errorf("ble: failed to enable device: %w", err)
	}
	var power cmd.LEReadAdvertisingChannelTxPowerRP
	if err := device.Send(&cmd.LEReadAdvertisingChannelTxPower{}, &power); err != nil {
		log.Warning("ble: failed to read advertising tx power: %s", err)
	} else {
		s.txPower = int8(power.TransmitPowerLevel)
	}

	if cfg.MTU == 0 {
		cfg.MTU = stack.DefaultMTU
	}
	s.cfg = cfg
	s.handlers = h
	s.hci = device
	s.initialized = true
	go s.run()
	log.Info("HCI device hci%d up as %q", s.deviceID, cfg.DeviceName)
	return nil
}

func (s *Stack) run() {
	defer close(s.done)
	for f := range s.queue {
		f()
	}
}

// submit must be called with s.lock held.
func (s *Stack) submit(f func()) error {
	if !s.initialized || s.closed {
		return stack.ErrNotReady
	}
	select {
	case s.queue <- f:
		return nil
	default:
		return fmt.Errorf("%w: command queue full", stack.ErrNotReady)
	}
}

func (s *Stack) RegisterApplication(appID uint16) error {
	if appID > stack.MaxApplicationID {
		return fmt.Errorf("%w: application id 0x%x exceeds 0x%x", stack.ErrInvalidArgument, appID, stack.MaxApplicationID)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.submit(func() {
		s.lock.Lock()
		status, iface := stack.StatusSuccess, stack.InterfaceNone
		if _, ok := s.apps[appID]; ok {
			status = stack.StatusFail
		} else if s.nextIface == stack.InterfaceNone {
			status = stack.StatusNoMem
		} else {
			iface = s.nextIface
			s.apps[appID] = iface
			s.nextIface++
		}
		s.lock.Unlock()
		s.handlers.GATTS(stack.GATTSRegister, iface, stack.RegisterPayload(status, appID))
	})
}

func (s *Stack) ConfigureAdvertisingData(data *stack.AdvertisingData) error {
	if data == nil {
		return fmt.Errorf("%w: nil advertising data", stack.ErrInvalidArgument)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	payload, err := advertise.Encode(data, s.cfg.DeviceName, s.txPower)
	if err != nil {
		return err
	}
	if data.ScanResponse {
		c := &cmd.LESetScanResponseData{ScanResponseDataLength: uint8(len(payload))}
		copy(c.ScanResponseData[:], payload)
		return s.submit(func() {
			s.handlers.GAP(stack.GAPScanRspDataSetComplete, stack.StatusPayload(s.send(c)))
		})
	}
	c := &cmd.LESetAdvertisingData{AdvertisingDataLength: uint8(len(payload))}
	copy(c.AdvertisingData[:], payload)
	return s.submit(func() {
		s.handlers.GAP(stack.GAPAdvDataSetComplete, stack.StatusPayload(s.send(c)))
	})
}

func (s *Stack) StartAdvertising(params *stack.AdvertisingParameters) error {
	if params == nil {
		return fmt.Errorf("%w: nil advertising parameters", stack.ErrInvalidArgument)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	c := &cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin:  params.IntervalMin,
		AdvertisingIntervalMax:  params.IntervalMax,
		AdvertisingType:         uint8(params.Type),
		OwnAddressType:          params.OwnAddressType,
		DirectAddressType:       params.PeerAddressType,
		DirectAddress:           params.PeerAddress,
		AdvertisingChannelMap:   params.ChannelMap,
		AdvertisingFilterPolicy: params.FilterPolicy,
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.submit(func() {
		status := s.send(c)
		if status.OK() {
			status = s.send(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 1})
		}
		s.handlers.GAP(stack.GAPAdvStartComplete, stack.StatusPayload(status))
	})
}

// send runs on the callback goroutine.
func (s *Stack) send(c hci.Command) stack.Status {
	err := s.hci.Send(c, nil)
	if err != nil {
		log.Debug("ble: %s failed: %s", c, err)
	}
	return statusFromError(err)
}

// Close disables advertising and releases the HCI device once queued commands have run.
func (s *Stack) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	initialized := s.initialized
	close(s.queue)
	s.lock.Unlock()
	if !initialized {
		return nil
	}
	<-s.done
	if err := s.hci.Send(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 0}, nil); err != nil {
		log.Debug("ble: failed to disable advertising: %s", err)
	}
	if err := s.hci.Close(); err != nil {
		return fmt.Errorf("ble: failed to close device: %w", err)
	}
	log.Debug("Closed BLE adapter")
	return nil
}

func statusFromError(err error) stack.Status {
	if err == nil {
		return stack.StatusSuccess
	}
	var code hci.ErrCommand
	if !errors.As(err, &code) {
		return stack.StatusFail
	}
	switch code {
	case hci.ErrControllerBusy:
		return stack.StatusBusy
	case hci.ErrDisallowed:
		return stack.StatusNotReady
	case hci.ErrMemoryCapacity, hci.ErrLimitedResource:
		return stack.StatusNoMem
	case hci.ErrInvalidParams:
		return stack.StatusParamInvalid
	case hci.ErrUnsupportedParams, hci.ErrUnknownCommand:
		return stack.StatusUnsupported
	}
	return stack.StatusFail
}
