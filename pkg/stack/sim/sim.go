// Package sim implements stack.Stack in memory.
//
// Like a real radio stack, the simulator accepts or rejects each command immediately and reports
// the outcome later from a single callback goroutine. Tests can inject failures, swallow
// completions, delay them, or deliver arbitrary raw events.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/stack"
)

// Op identifies a kind of command.
type Op int

const (
	OpRegisterApplication Op = iota
	OpAdvertisingData
	OpScanResponseData
	OpStartAdvertising
)

func (o Op) String() string {
	switch o {
	case OpRegisterApplication:
		return "register-application"
	case OpAdvertisingData:
		return "advertising-data"
	case OpScanResponseData:
		return "scan-response-data"
	case OpStartAdvertising:
		return "start-advertising"
	}
	return fmt.Sprintf("op-%d", int(o))
}

// ErrQueueFull is returned when commands are issued faster than the callback goroutine drains
// them.
var ErrQueueFull = errors.New("simulated stack queue full")

const queueSize = 64

// Command records an accepted command.
type Command struct {
	Op      Op
	AppID   uint16
	Payload []byte // Encoded advertising data.
	Params  stack.AdvertisingParameters
}

// Stack is a simulated radio stack. Create one with New.
type Stack struct {
	// TxPower is advertised when advertising data includes the transmit power level.
	TxPower int8

	lock        sync.Mutex
	cfg         stack.Config
	handlers    stack.Handlers
	initialized bool
	closed      bool
	queue       chan func()
	done        chan struct{}
	delay       time.Duration
	failNext    map[Op]stack.Status
	dropNext    map[Op]int
	commands    []Command
	apps        map[uint16]stack.Interface
	nextIface   stack.Interface
	advertising bool
	payloads    map[Op][]byte
}

func New() *Stack {
	return &Stack{
		queue:    make(chan func(), queueSize),
		done:     make(chan struct{}),
		failNext: make(map[Op]stack.Status),
		dropNext: make(map[Op]int),
		apps:     make(map[uint16]stack.Interface),
		payloads: make(map[Op][]byte),
	}
}

func (s *Stack) Init(cfg stack.Config, h stack.Handlers) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.initialized || s.closed {
		return fmt.Errorf("%w: already initialized", stack.ErrNotReady)
	}
	if h.GAP == nil || h.GATTS == nil {
		return fmt.Errorf("%w: missing event handler", stack.ErrInvalidArgument)
	}
	if cfg.MTU == 0 {
		cfg.MTU = stack.DefaultMTU
	}
	s.cfg = cfg
	s.handlers = h
	s.initialized = true
	go s.run()
	log.Info("Simulated stack up as %q (MTU %d)", cfg.DeviceName, cfg.MTU)
	return nil
}

func (s *Stack) run() {
	defer close(s.done)
	for f := range s.queue {
		s.lock.Lock()
		delay := s.delay
		s.lock.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		f()
	}
}

// ready must be called with s.lock held.
func (s *Stack) ready() error {
	if !s.initialized || s.closed {
		return stack.ErrNotReady
	}
	return nil
}

// submit must be called with s.lock held.
func (s *Stack) submit(f func()) error {
	if err := s.ready(); err != nil {
		return err
	}
	select {
	case s.queue <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// complete must be called with s.lock held. It consumes any injected fault for op and reports
// whether a completion should be delivered, and with which status.
func (s *Stack) complete(op Op) (stack.Status, bool) {
	if n := s.dropNext[op]; n > 0 {
		s.dropNext[op] = n - 1
		return 0, false
	}
	if status, ok := s.failNext[op]; ok {
		delete(s.failNext, op)
		return status, true
	}
	return stack.StatusSuccess, true
}

func (s *Stack) RegisterApplication(appID uint16) error {
	if appID > stack.MaxApplicationID {
		return fmt.Errorf("%w: application id 0x%x exceeds 0x%x", stack.ErrInvalidArgument, appID, stack.MaxApplicationID)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	status, deliver := s.complete(OpRegisterApplication)
	iface := stack.InterfaceNone
	if status.OK() {
		if _, ok := s.apps[appID]; ok {
			status = stack.StatusFail
		} else if s.nextIface == stack.InterfaceNone {
			status = stack.StatusNoMem
		}
	}
	if deliver && status.OK() {
		iface = s.nextIface
	}
	err := s.submit(func() {
		if deliver {
			s.handlers.GATTS(stack.GATTSRegister, iface, stack.RegisterPayload(status, appID))
		}
	})
	if err != nil {
		return err
	}
	if iface != stack.InterfaceNone {
		s.apps[appID] = iface
		s.nextIface++
	}
	s.commands = append(s.commands, Command{Op: OpRegisterApplication, AppID: appID})
	return nil
}

func (s *Stack) ConfigureAdvertisingData(data *stack.AdvertisingData) error {
	if data == nil {
		return fmt.Errorf("%w: nil advertising data", stack.ErrInvalidArgument)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	payload, err := advertise.Encode(data, s.cfg.DeviceName, s.TxPower)
	if err != nil {
		return err
	}
	op, kind := OpAdvertisingData, stack.GAPAdvDataSetComplete
	if data.ScanResponse {
		op, kind = OpScanResponseData, stack.GAPScanRspDataSetComplete
	}
	status, deliver := s.complete(op)
	err = s.submit(func() {
		if !deliver {
			return
		}
		if status.OK() {
			s.lock.Lock()
			s.payloads[op] = payload
			s.lock.Unlock()
		}
		s.handlers.GAP(kind, stack.StatusPayload(status))
	})
	if err != nil {
		return err
	}
	s.commands = append(s.commands, Command{Op: op, Payload: payload})
	return nil
}

func (s *Stack) StartAdvertising(params *stack.AdvertisingParameters) error {
	if params == nil {
		return fmt.Errorf("%w: nil advertising parameters", stack.ErrInvalidArgument)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	status, deliver := s.complete(OpStartAdvertising)
	err := s.submit(func() {
		if !deliver {
			return
		}
		if status.OK() {
			s.lock.Lock()
			s.advertising = true
			s.lock.Unlock()
		}
		s.handlers.GAP(stack.GAPAdvStartComplete, stack.StatusPayload(status))
	})
	if err != nil {
		return err
	}
	s.commands = append(s.commands, Command{Op: OpStartAdvertising, Params: *params})
	return nil
}

// Close stops the callback goroutine after it delivers every queued event.
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
	if initialized {
		<-s.done
	}
	return nil
}

// FailNext makes the next completion of op report status instead of success.
func (s *Stack) FailNext(op Op, status stack.Status) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failNext[op] = status
}

// DropNext makes the stack accept the next command of kind op without ever completing it.
func (s *Stack) DropNext(op Op) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.dropNext[op]++
}

// SetDelay holds every subsequent callback for d before delivering it.
func (s *Stack) SetDelay(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.delay = d
}

// Inject runs f on the callback goroutine with the installed handlers, so tests can deliver
// arbitrary (including malformed or unsolicited) events.
func (s *Stack) Inject(f func(h stack.Handlers)) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	h := s.handlers
	return s.submit(func() { f(h) })
}

// Commands returns the accepted commands in the order they were issued.
func (s *Stack) Commands() []Command {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Command(nil), s.commands...)
}

// Advertising returns true once a start command has completed successfully.
func (s *Stack) Advertising() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.advertising
}

// Payload returns the last payload successfully installed by op (OpAdvertisingData or
// OpScanResponseData).
func (s *Stack) Payload(op Op) []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.payloads[op]
}

// Config returns the configuration passed to Init, with defaults applied.
func (s *Stack) Config() stack.Config {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cfg
}
