package peripheral

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/event"
	"github.com/periph-ble/ble-command/pkg/stack"
)

// AnomalyKind classifies events the router could not deliver normally.
type AnomalyKind int

const (
	// AnomalyUnroutable is a completion that matched no pending operation.
	AnomalyUnroutable AnomalyKind = iota
	// AnomalyLate is a completion for an operation whose caller already gave up.
	AnomalyLate
	// AnomalyHandlerPanic is a panic raised by an application's EventHandler.
	AnomalyHandlerPanic
)

func (k AnomalyKind) String() string {
	switch k {
	case AnomalyUnroutable:
		return "unroutable"
	case AnomalyLate:
		return "late"
	case AnomalyHandlerPanic:
		return "handler panic"
	}
	return fmt.Sprintf("anomaly %d", int(k))
}

type Anomaly struct {
	Kind  AnomalyKind
	Event event.Event
	Time  time.Time
	Err   error
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s %s: %s", a.Time.Format(time.RFC3339), a.Kind, a.Event)
}

// Anomalies returns a channel of router anomalies. The channel is buffered; anomalies that do not
// fit are counted in Diagnostics.DroppedAnomalies and discarded.
func (p *Peripheral) Anomalies() <-chan Anomaly {
	return p.anomalies
}

type counters struct {
	events        map[string]uint64
	unhandled     uint64
	unroutable    uint64
	late          uint64
	handlerPanics uint64
	dropped       uint64
}

func newCounters() counters {
	return counters{events: make(map[string]uint64)}
}

func eventName(e event.Event) string {
	switch e.(type) {
	case event.AdvertisingDataSet:
		return "advertising_data_set"
	case event.ScanResponseDataSet:
		return "scan_response_data_set"
	case event.AdvertisingStarted:
		return "advertising_started"
	case event.ApplicationRegistered:
		return "application_registered"
	}
	return "unhandled"
}

func (p *Peripheral) countEvent(e event.Event) {
	p.diagLock.Lock()
	defer p.diagLock.Unlock()
	p.counters.events[eventName(e)]++
	if _, ok := e.(event.Unhandled); ok {
		p.counters.unhandled++
	}
}

func (p *Peripheral) recordAnomaly(kind AnomalyKind, e event.Event, err error) {
	a := Anomaly{Kind: kind, Event: e, Time: time.Now(), Err: err}
	p.diagLock.Lock()
	switch kind {
	case AnomalyUnroutable:
		p.counters.unroutable++
	case AnomalyLate:
		p.counters.late++
	case AnomalyHandlerPanic:
		p.counters.handlerPanics++
	}
	p.diagLock.Unlock()
	if kind != AnomalyHandlerPanic {
		log.Warning("Discarding %s completion %s: %s", kind, e, err)
	}

	select {
	case p.anomalies <- a:
	default:
		p.diagLock.Lock()
		p.counters.dropped++
		p.diagLock.Unlock()
	}
}

// Diagnostics is a snapshot of the router's counters and the registry's occupancy.
type Diagnostics struct {
	Events           map[string]uint64
	Unhandled        uint64
	Unroutable       uint64
	Late             uint64
	HandlerPanics    uint64
	DroppedAnomalies uint64
	// Pending reports outstanding operations per slot; "registrations" counts keyed waiters.
	Pending      map[string]int
	Applications map[stack.Interface]uint16
}

// Diagnostics returns a snapshot of p's counters.
func (p *Peripheral) Diagnostics() Diagnostics {
	d := Diagnostics{
		Events:       make(map[string]uint64),
		Pending:      make(map[string]int),
		Applications: make(map[stack.Interface]uint16),
	}
	p.diagLock.Lock()
	for name, n := range p.counters.events {
		d.Events[name] = n
	}
	d.Unhandled = p.counters.unhandled
	d.Unroutable = p.counters.unroutable
	d.Late = p.counters.late
	d.HandlerPanics = p.counters.handlerPanics
	d.DroppedAnomalies = p.counters.dropped
	p.diagLock.Unlock()

	d.Pending["advertising_data"] = boolToInt(p.advertisingData.Pending())
	d.Pending["scan_response"] = boolToInt(p.scanResponse.Pending())
	d.Pending["advertising_start"] = boolToInt(p.advertisingStart.Pending())
	d.Pending["registrations"] = p.registrations.Pending()

	for iface, app := range p.Applications() {
		d.Applications[iface] = app.ApplicationID()
	}
	return d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Proto renders d as a protobuf Struct.
func (d *Diagnostics) Proto() (*structpb.Struct, error) {
	events := make(map[string]interface{}, len(d.Events))
	for name, n := range d.Events {
		events[name] = n
	}
	pending := make(map[string]interface{}, len(d.Pending))
	for name, n := range d.Pending {
		pending[name] = int64(n)
	}
	apps := make(map[string]interface{}, len(d.Applications))
	for iface, appID := range d.Applications {
		apps[strconv.Itoa(int(iface))] = uint64(appID)
	}
	return structpb.NewStruct(map[string]interface{}{
		"events":            events,
		"unhandled":         d.Unhandled,
		"unroutable":        d.Unroutable,
		"late":              d.Late,
		"handler_panics":    d.HandlerPanics,
		"dropped_anomalies": d.DroppedAnomalies,
		"pending":           pending,
		"applications":      apps,
	})
}

// JSON renders d with protojson.
func (d *Diagnostics) JSON() ([]byte, error) {
	s, err := d.Proto()
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true}.Marshal(s)
}
