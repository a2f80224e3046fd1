// Package tinygo implements stack.Stack on top of tinygo.org/x/bluetooth, which drives BlueZ on
// Linux, CoreBluetooth on macOS, WinRT on Windows and the SoftDevice or HCI firmware on
// microcontrollers.
//
// The library builds the advertising PDUs itself, so advertising and scan response data are
// staged and only handed to the adapter when advertising starts. Fields the library cannot
// express (flags, appearance, tx power, connection interval range) are dropped with a warning.
package tinygo

import (
	"encoding/binary"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/stack"
)

const queueSize = 16

type advertisement interface {
	Configure(options bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

func enableAdapter(id string) (advertisement, error) {
	adapter, err := newAdapter(id)
	if err != nil {
		return nil, err
	}
	if err := adapter.Enable(); err != nil {
		return nil, err
	}
	return adapter.DefaultAdvertisement(), nil
}

// Stack drives a tinygo bluetooth adapter. An empty id selects bluetooth.DefaultAdapter.
type Stack struct {
	id     string
	enable func(id string) (advertisement, error)

	lock         sync.Mutex
	cfg          stack.Config
	handlers     stack.Handlers
	adv          advertisement
	data         *stack.AdvertisingData
	scanResponse *stack.AdvertisingData
	advertising  bool
	apps         map[uint16]stack.Interface
	nextIface    stack.Interface
	initialized  bool
	closed       bool
	queue        chan func()
	done         chan struct{}
}

func New(id string) *Stack {
	return newStack(id, enableAdapter)
}

func newStack(id string, enable func(string) (advertisement, error)) *Stack {
	return &Stack{
		id:     id,
		enable: enable,
		apps:   make(map[uint16]stack.Interface),
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
}

func (s *Stack) Init(cfg stack.Config, h stack.Handlers) error {
	if h.GAP == nil || h.GATTS == nil {
		return fmt.Errorf("%w: missing event handler", stack.ErrInvalidArgument)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.initialized || s.closed {
		return fmt.Errorf("%w: already initialized", stack.ErrNotReady)
	}
	log.Debug("Creating new BLE adapter")
	adv, err := s.enable(s.id)
	if err != nil {
		return fmt.Errorf("ble: failed to enable device: %w", err)
	}
	if cfg.MTU == 0 {
		cfg.MTU = stack.DefaultMTU
	}
	s.cfg = cfg
	s.handlers = h
	s.adv = adv
	s.initialized = true
	go s.run()
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
	if _, err := serviceUUIDs(data.ServiceUUID); err != nil {
		return err
	}
	staged := *data
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.submit(func() {
		kind := stack.GAPAdvDataSetComplete
		s.lock.Lock()
		if staged.ScanResponse {
			kind = stack.GAPScanRspDataSetComplete
			s.scanResponse = &staged
		} else {
			s.data = &staged
		}
		s.lock.Unlock()
		s.handlers.GAP(kind, stack.StatusPayload(stack.StatusSuccess))
	})
}

func (s *Stack) StartAdvertising(params *stack.AdvertisingParameters) error {
	if params == nil {
		return fmt.Errorf("%w: nil advertising parameters", stack.ErrInvalidArgument)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	p := *params
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.submit(func() {
		s.handlers.GAP(stack.GAPAdvStartComplete, stack.StatusPayload(s.start(&p)))
	})
}

// start runs on the callback goroutine.
func (s *Stack) start(params *stack.AdvertisingParameters) (status stack.Status) {
	s.lock.Lock()
	options := s.options(params)
	advertising := s.advertising
	s.lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Error("ble: adapter panicked while starting advertising: %v", r)
			status = stack.StatusFail
		}
	}()
	if advertising {
		if err := s.adv.Stop(); err != nil {
			log.Warning("ble: failed to stop advertising: %s", err)
			return stack.StatusBusy
		}
	}
	if err := s.adv.Configure(options); err != nil {
		log.Warning("ble: failed to configure advertisement: %s", err)
		return stack.StatusParamInvalid
	}
	if err := s.adv.Start(); err != nil {
		log.Warning("ble: failed to start advertising: %s", err)
		return stack.StatusFail
	}
	s.lock.Lock()
	s.advertising = true
	s.lock.Unlock()
	return stack.StatusSuccess
}

// options merges the staged payloads. It must be called with s.lock held.
func (s *Stack) options(params *stack.AdvertisingParameters) bluetooth.AdvertisementOptions {
	options := bluetooth.AdvertisementOptions{
		AdvertisementType: advertisementType(params.Type),
		Interval:          bluetooth.Duration(params.IntervalMin),
	}
	for _, data := range []*stack.AdvertisingData{s.data, s.scanResponse} {
		if data == nil {
			continue
		}
		if data.IncludeName {
			options.LocalName = s.cfg.DeviceName
		}
		uuids, _ := serviceUUIDs(data.ServiceUUID)
		options.ServiceUUIDs = append(options.ServiceUUIDs, uuids...)
		if len(data.ManufacturerData) >= 2 {
			options.ManufacturerData = append(options.ManufacturerData, bluetooth.ManufacturerDataElement{
				CompanyID: binary.LittleEndian.Uint16(data.ManufacturerData),
				Data:      data.ManufacturerData[2:],
			})
		}
		if len(data.ServiceData) >= 2 {
			options.ServiceData = append(options.ServiceData, bluetooth.ServiceDataElement{
				UUID: bluetooth.New16BitUUID(binary.LittleEndian.Uint16(data.ServiceData)),
				Data: data.ServiceData[2:],
			})
		}
		if data.Flags != 0 || data.Appearance != 0 || data.IncludeTxPower || data.MinInterval != 0 || data.MaxInterval != 0 {
			log.Warning("ble: adapter cannot advertise flags, appearance, tx power or connection intervals; dropping them")
		}
	}
	return options
}

func advertisementType(t stack.AdvertisingType) bluetooth.AdvertisingType {
	switch t {
	case stack.AdvertisingDirectHighDuty, stack.AdvertisingDirectLowDuty:
		return bluetooth.AdvertisingTypeDirectInd
	case stack.AdvertisingScannable:
		return bluetooth.AdvertisingTypeScanInd
	case stack.AdvertisingNonConnectable:
		return bluetooth.AdvertisingTypeNonConnInd
	}
	return bluetooth.AdvertisingTypeInd
}

// serviceUUIDs converts an over-the-air (little-endian) UUID.
func serviceUUIDs(b []byte) ([]bluetooth.UUID, error) {
	switch len(b) {
	case 0:
		return nil, nil
	case 2:
		return []bluetooth.UUID{bluetooth.New16BitUUID(binary.LittleEndian.Uint16(b))}, nil
	case 16:
		var be [16]byte
		for i := range b {
			be[15-i] = b[i]
		}
		return []bluetooth.UUID{bluetooth.NewUUID(be)}, nil
	}
	return nil, fmt.Errorf("%w: service UUID must be 2 or 16 bytes", stack.ErrInvalidArgument)
}

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
	s.lock.Lock()
	advertising := s.advertising
	s.lock.Unlock()
	if advertising {
		if err := s.adv.Stop(); err != nil {
			return fmt.Errorf("ble: failed to stop advertising: %w", err)
		}
	}
	return nil
}
