package peripheral

import (
	"fmt"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/event"
	"github.com/periph-ble/ble-command/pkg/protocol"
	"github.com/periph-ble/ble-command/pkg/stack"
)

// Application is a GATT server application registered with the stack.
type Application interface {
	ApplicationID() uint16
}

// EventHandler is implemented by applications that want the GATT server events the peripheral
// does not consume itself (connections, reads, writes, ...) for their interface. HandleEvent is
// called from the stack's callback goroutine and must not block.
type EventHandler interface {
	HandleEvent(e event.Event)
}

// AppID is an Application with no behavior beyond its id.
type AppID uint16

func (a AppID) ApplicationID() uint16 {
	return uint16(a)
}

func (a AppID) String() string {
	return fmt.Sprintf("app %d", uint16(a))
}

func (p *Peripheral) beginRegistration(appID uint16) error {
	p.appLock.Lock()
	defer p.appLock.Unlock()
	if iface, ok := p.byID[appID]; ok {
		return fmt.Errorf("application %d on interface %d: %w", appID, iface, protocol.ErrAlreadyRegistered)
	}
	if p.registering[appID] {
		return fmt.Errorf("register application %d: %w", appID, protocol.ErrSlotBusy)
	}
	p.registering[appID] = true
	return nil
}

func (p *Peripheral) endRegistration(appID uint16) {
	p.appLock.Lock()
	delete(p.registering, appID)
	p.appLock.Unlock()
}

func (p *Peripheral) insertApplication(iface stack.Interface, app Application) {
	p.appLock.Lock()
	defer p.appLock.Unlock()
	if previous, ok := p.apps[iface]; ok {
		log.Warning("Interface %d reassigned from application %d to %d", iface, previous.ApplicationID(), app.ApplicationID())
		delete(p.byID, previous.ApplicationID())
	}
	p.apps[iface] = app
	p.byID[app.ApplicationID()] = iface
}

// Application returns the application registered on iface.
func (p *Peripheral) Application(iface stack.Interface) (Application, bool) {
	p.appLock.Lock()
	defer p.appLock.Unlock()
	app, ok := p.apps[iface]
	return app, ok
}

// Applications returns a copy of the application table.
func (p *Peripheral) Applications() map[stack.Interface]Application {
	p.appLock.Lock()
	defer p.appLock.Unlock()
	apps := make(map[stack.Interface]Application, len(p.apps))
	for iface, app := range p.apps {
		apps[iface] = app
	}
	return apps
}
