package peripheral

import (
	"errors"
	"fmt"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/internal/waiter"
	"github.com/periph-ble/ble-command/pkg/event"
	"github.com/periph-ble/ble-command/pkg/stack"
)

// HandleGAPEvent is the stack's GAP callback. It never blocks.
func (p *Peripheral) HandleGAPEvent(kind stack.GAPEvent, payload []byte) {
	log.Debug("GAP callback %s (%d bytes)", kind, len(payload))
	p.route(event.DecodeGAP(kind, payload))
}

// HandleGATTSEvent is the stack's GATT server callback. It never blocks.
func (p *Peripheral) HandleGATTSEvent(kind stack.GATTSEvent, iface stack.Interface, payload []byte) {
	log.Debug("GATTS callback %s on interface %d (%d bytes)", kind, iface, len(payload))
	p.route(event.DecodeGATTS(kind, iface, payload))
}

func (p *Peripheral) route(e event.Event) {
	p.countEvent(e)
	var err error
	switch e := e.(type) {
	case event.AdvertisingDataSet:
		err = p.advertisingData.Complete(e.Status)
	case event.ScanResponseDataSet:
		err = p.scanResponse.Complete(e.Status)
	case event.AdvertisingStarted:
		err = p.advertisingStart.Complete(e.Status)
	case event.ApplicationRegistered:
		err = p.registrations.Complete(e.AppID, registration{iface: e.Interface, status: e.Status})
	case event.Unhandled:
		p.forward(e)
		return
	}
	if err == nil {
		log.Debug("Routed %s", e)
		return
	}
	kind := AnomalyUnroutable
	if errors.Is(err, waiter.ErrLate) {
		kind = AnomalyLate
	}
	p.recordAnomaly(kind, e, err)
}

// forward hands unhandled GATT server events to the application registered on their interface,
// if it implements EventHandler.
func (p *Peripheral) forward(e event.Unhandled) {
	if e.Reason != "" {
		log.Warning("Dropping %s", e)
		return
	}
	if e.Layer != event.LayerGATTS || e.Interface == stack.InterfaceNone {
		log.Debug("Ignoring %s", e)
		return
	}
	app, ok := p.Application(e.Interface)
	if !ok {
		log.Debug("Ignoring %s: no application on interface", e)
		return
	}
	handler, ok := app.(EventHandler)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("application %d panicked handling %s: %v", app.ApplicationID(), e, r)
			log.Error("%s", err)
			p.recordAnomaly(AnomalyHandlerPanic, e, err)
		}
	}()
	handler.HandleEvent(e)
}
