// Package peripheral turns the callback-driven radio stack into blocking calls.
//
// Each operation reserves a waiter, issues a command to the stack and blocks until the router
// receives the matching completion from the stack's callback goroutine, the caller's context
// expires, or the peripheral's command timeout elapses. At most one operation of each kind may be
// outstanding; a second one fails immediately with protocol.ErrSlotBusy.
//
// Completions that arrive after their caller gave up are never handed to a later caller. The
// slot stays quarantined for the late completion window, and the straggler is reported through
// Anomalies instead.
package peripheral

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/internal/waiter"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/protocol"
	"github.com/periph-ble/ble-command/pkg/stack"
)

const (
	DefaultCommandTimeout = 5 * time.Second
	DefaultAnomalyBuffer  = 32
)

type registration struct {
	iface  stack.Interface
	status stack.Status
}

// Peripheral owns the waiter registry and the application table for one radio stack.
type Peripheral struct {
	stack          stack.Stack
	commandTimeout time.Duration
	lateWindow     time.Duration
	lateWindowSet  bool

	advertisingData  waiter.Slot[stack.Status]
	scanResponse     waiter.Slot[stack.Status]
	advertisingStart waiter.Slot[stack.Status]
	registrations    *waiter.Keyed[uint16, registration]

	stateLock   sync.Mutex
	initialized bool
	closed      bool
	config      stack.Config

	appLock     sync.Mutex
	apps        map[stack.Interface]Application
	byID        map[uint16]stack.Interface
	registering map[uint16]bool

	anomalies chan Anomaly
	diagLock  sync.Mutex
	counters  counters
}

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithCommandTimeout bounds how long each operation waits for its completion. Zero leaves the
// wait bounded only by the caller's context.
func WithCommandTimeout(d time.Duration) Option {
	return func(p *Peripheral) {
		p.commandTimeout = d
	}
}

// WithLateCompletionWindow sets how long a slot stays quarantined after its caller gave up. The
// default is the command timeout. Non-positive values keep the default.
//
// The quarantine ends when the late completion arrives or the window elapses. A completion that
// is still in flight after the window is indistinguishable from the next caller's, so d should
// exceed the slowest completion the stack can produce.
func WithLateCompletionWindow(d time.Duration) Option {
	return func(p *Peripheral) {
		if d <= 0 {
			log.Warning("Ignoring non-positive late completion window %s", d)
			return
		}
		p.lateWindow = d
		p.lateWindowSet = true
	}
}

// WithAnomalyBuffer sets the capacity of the channel returned by Anomalies.
func WithAnomalyBuffer(n int) Option {
	return func(p *Peripheral) {
		if n < 0 {
			n = 0
		}
		p.anomalies = make(chan Anomaly, n)
	}
}

// New creates a Peripheral that drives s. Call Init before issuing operations.
func New(s stack.Stack, options ...Option) *Peripheral {
	p := &Peripheral{
		stack:          s,
		commandTimeout: DefaultCommandTimeout,
		registrations:  waiter.NewKeyed[uint16, registration](),
		apps:           make(map[stack.Interface]Application),
		byID:           make(map[uint16]stack.Interface),
		registering:    make(map[uint16]bool),
		anomalies:      make(chan Anomaly, DefaultAnomalyBuffer),
		counters:       newCounters(),
	}
	for _, option := range options {
		option(p)
	}
	if !p.lateWindowSet {
		p.lateWindow = p.commandTimeout
		if p.lateWindow == 0 {
			p.lateWindow = DefaultCommandTimeout
		}
	}
	return p
}

// Init brings up the radio stack and installs the router as its event handler. A zero MTU is
// replaced by stack.DefaultMTU.
func (p *Peripheral) Init(cfg stack.Config) error {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	if p.closed {
		return protocol.ErrClosed
	}
	if p.initialized {
		return protocol.NewError("radio stack already initialized", false, false)
	}
	if cfg.MTU == 0 {
		cfg.MTU = stack.DefaultMTU
	}
	handlers := stack.Handlers{
		GAP:   p.HandleGAPEvent,
		GATTS: p.HandleGATTSEvent,
	}
	if err := p.stack.Init(cfg, handlers); err != nil {
		return &protocol.StackError{Op: "init", Err: err}
	}
	p.initialized = true
	p.config = cfg
	log.Info("Radio stack initialized as %q (MTU %d)", cfg.DeviceName, cfg.MTU)
	return nil
}

// Config returns the configuration passed to Init.
func (p *Peripheral) Config() stack.Config {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.config
}

// Close shuts down the radio stack. Outstanding operations and operations issued afterwards fail
// with protocol.ErrClosed.
func (p *Peripheral) Close() error {
	p.stateLock.Lock()
	if p.closed {
		p.stateLock.Unlock()
		return nil
	}
	p.closed = true
	p.stateLock.Unlock()

	aborted := p.registrations.AbortAll()
	for _, slot := range []*waiter.Slot[stack.Status]{&p.advertisingData, &p.scanResponse, &p.advertisingStart} {
		if slot.Abort() {
			aborted++
		}
	}
	if aborted > 0 {
		log.Debug("Aborted %d outstanding operations", aborted)
	}
	return p.stack.Close()
}

func (p *Peripheral) ready() error {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	if p.closed {
		return protocol.ErrClosed
	}
	if !p.initialized {
		return protocol.ErrNotInitialized
	}
	return nil
}

// wait blocks on w. If the wait is abandoned, release is called with the quarantine period; if
// release reports that the completion already claimed w, its result is returned instead.
func wait[T any](ctx context.Context, p *Peripheral, op string, w *waiter.Waiter[T], release func(time.Duration) bool) (T, error) {
	if p.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.commandTimeout)
		defer cancel()
	}
	result, err := w.Wait(ctx)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, waiter.ErrAborted) {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	if !release(p.lateWindow) {
		// The router or Close removed w before we could; its outcome is imminent.
		if result, err = w.Wait(context.Background()); err != nil {
			return result, fmt.Errorf("%s: %w", op, err)
		}
		return result, nil
	}
	log.Warning("Gave up on %s after %s: %s", op, time.Since(w.ReservedAt()).Round(time.Millisecond), err)
	if errors.Is(err, context.DeadlineExceeded) {
		return result, fmt.Errorf("%s: %w", op, protocol.ErrTimeout)
	}
	return result, &protocol.CommandError{Err: fmt.Errorf("%s: %w", op, err), PossibleSuccess: true, PossibleTemporary: false}
}

// command runs the reserve, issue, wait sequence for a single-slot operation.
func (p *Peripheral) command(ctx context.Context, op string, slot *waiter.Slot[stack.Status], issue func() error) error {
	if err := p.ready(); err != nil {
		return err
	}
	w, err := slot.Reserve()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := issue(); err != nil {
		slot.Release(w, 0)
		return &protocol.StackError{Op: op, Err: err}
	}
	log.Debug("Issued %s", op)
	status, err := wait(ctx, p, op, w, func(q time.Duration) bool { return slot.Release(w, q) })
	if err != nil {
		return err
	}
	return status.Err(op)
}

// RegisterApplication registers app with the stack and returns the interface handle assigned to
// it. On success app is added to the application table.
func (p *Peripheral) RegisterApplication(ctx context.Context, app Application) (stack.Interface, error) {
	const op = "register application"
	if app == nil {
		return stack.InterfaceNone, &protocol.StackError{Op: op, Err: fmt.Errorf("%w: nil application", stack.ErrInvalidArgument)}
	}
	if err := p.ready(); err != nil {
		return stack.InterfaceNone, err
	}
	appID := app.ApplicationID()
	if err := p.beginRegistration(appID); err != nil {
		return stack.InterfaceNone, err
	}
	defer p.endRegistration(appID)

	w, err := p.registrations.Reserve(appID)
	if err != nil {
		return stack.InterfaceNone, fmt.Errorf("%s %d: %w", op, appID, err)
	}
	if err := p.stack.RegisterApplication(appID); err != nil {
		p.registrations.Release(appID, w, 0)
		return stack.InterfaceNone, &protocol.StackError{Op: op, Err: err}
	}
	log.Debug("Issued %s %d", op, appID)
	reg, err := wait(ctx, p, op, w, func(q time.Duration) bool { return p.registrations.Release(appID, w, q) })
	if err != nil {
		return stack.InterfaceNone, err
	}
	if err := reg.status.Err(op); err != nil {
		return stack.InterfaceNone, err
	}
	p.insertApplication(reg.iface, app)
	log.Info("Application %d registered on interface %d", appID, reg.iface)
	return reg.iface, nil
}

// ConfigureAdvertising installs cfg as the advertising payload.
func (p *Peripheral) ConfigureAdvertising(ctx context.Context, cfg advertise.Config) error {
	return p.configure(ctx, "configure advertising data", cfg, false, &p.advertisingData)
}

// ConfigureScanResponse installs cfg as the scan response payload.
func (p *Peripheral) ConfigureScanResponse(ctx context.Context, cfg advertise.Config) error {
	return p.configure(ctx, "configure scan response", cfg, true, &p.scanResponse)
}

func (p *Peripheral) configure(ctx context.Context, op string, cfg advertise.Config, scanResponse bool, slot *waiter.Slot[stack.Status]) error {
	data, err := cfg.Data(scanResponse)
	if err != nil {
		return &protocol.StackError{Op: op, Err: err}
	}
	return p.command(ctx, op, slot, func() error {
		return p.stack.ConfigureAdvertisingData(data)
	})
}

// StartAdvertising starts advertising with params, or advertise.DefaultParameters if params is
// nil.
func (p *Peripheral) StartAdvertising(ctx context.Context, params *advertise.Parameters) error {
	stackParams := params.Stack()
	return p.command(ctx, "start advertising", &p.advertisingStart, func() error {
		return p.stack.StartAdvertising(stackParams)
	})
}
