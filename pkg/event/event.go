// Package event converts raw radio stack callbacks into typed events.
//
// The decoder never retains the payload slice it is given; all fields are copied out while the
// callback is running.
package event

import (
	"fmt"

	"github.com/periph-ble/ble-command/pkg/stack"
)

// Layer identifies which callback produced an event.
type Layer uint8

const (
	LayerGAP Layer = iota
	LayerGATTS
)

func (l Layer) String() string {
	switch l {
	case LayerGAP:
		return "GAP"
	case LayerGATTS:
		return "GATTS"
	}
	return fmt.Sprintf("layer %d", uint8(l))
}

// Event is one of AdvertisingDataSet, ScanResponseDataSet, AdvertisingStarted,
// ApplicationRegistered or Unhandled.
type Event interface {
	fmt.Stringer
	isEvent()
}

type AdvertisingDataSet struct {
	Status stack.Status
}

type ScanResponseDataSet struct {
	Status stack.Status
}

type AdvertisingStarted struct {
	Status stack.Status
}

type ApplicationRegistered struct {
	Status    stack.Status
	AppID     uint16
	Interface stack.Interface
}

// Unhandled covers every event the peripheral does not act on, including modeled events whose
// payload was too short to decode. Reason is empty for events that were simply not modeled.
type Unhandled struct {
	Layer     Layer
	Code      uint32
	Interface stack.Interface // stack.InterfaceNone for GAP events.
	Reason    string
}

func (AdvertisingDataSet) isEvent()    {}
func (ScanResponseDataSet) isEvent()   {}
func (AdvertisingStarted) isEvent()    {}
func (ApplicationRegistered) isEvent() {}
func (Unhandled) isEvent()             {}

func (e AdvertisingDataSet) String() string {
	return fmt.Sprintf("advertising data set (%s)", e.Status)
}

func (e ScanResponseDataSet) String() string {
	return fmt.Sprintf("scan response data set (%s)", e.Status)
}

func (e AdvertisingStarted) String() string {
	return fmt.Sprintf("advertising started (%s)", e.Status)
}

func (e ApplicationRegistered) String() string {
	return fmt.Sprintf("application %d registered on interface %d (%s)", e.AppID, e.Interface, e.Status)
}

func (e Unhandled) String() string {
	var name string
	if e.Layer == LayerGATTS {
		name = GATTSName(stack.GATTSEvent(e.Code))
	} else {
		name = GAPName(stack.GAPEvent(e.Code))
	}
	if e.Reason != "" {
		return fmt.Sprintf("unhandled %s: %s", name, e.Reason)
	}
	if e.Layer == LayerGATTS && e.Interface != stack.InterfaceNone {
		return fmt.Sprintf("unhandled %s on interface %d", name, e.Interface)
	}
	return "unhandled " + name
}

// GAPName returns the stack's name for a GAP event code.
func GAPName(kind stack.GAPEvent) string {
	return kind.String()
}

// GATTSName returns the stack's name for a GATT server event code.
func GATTSName(kind stack.GATTSEvent) string {
	return kind.String()
}
