package stack

import (
	"bytes"
	"errors"
	"testing"

	"github.com/periph-ble/ble-command/pkg/protocol"
)

func TestStatusErr(t *testing.T) {
	if err := StatusSuccess.Err("configure"); err != nil {
		t.Errorf("Success produced error: %s", err)
	}
	err := StatusParamInvalid.Err("configure")
	if !errors.Is(err, protocol.ErrStackFailure) {
		t.Errorf("Expected ErrStackFailure, got %s", err)
	}
	var stackErr *protocol.StackError
	if !errors.As(err, &stackErr) || stackErr.Status != StatusParamInvalid {
		t.Errorf("Status not preserved in %v", err)
	}
	if protocol.ShouldRetry(err) {
		t.Error("Invalid parameter should not be retried")
	}
	if !protocol.ShouldRetry(StatusBusy.Err("start")) {
		t.Error("Busy status should be retried")
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusEIRTooLarge.String(); s != "EIR data too large" {
		t.Errorf("Unexpected name %q", s)
	}
	if s := Status(0x99).String(); s != "status 0x99" {
		t.Errorf("Unexpected name for unknown status %q", s)
	}
}

func TestEventNames(t *testing.T) {
	if s := GAPAdvStartComplete.String(); s != "GAP_ADV_START_COMPLETE" {
		t.Errorf("Unexpected GAP name %q", s)
	}
	if s := GATTSSendServiceChange.String(); s != "GATTS_SEND_SERVICE_CHANGE" {
		t.Errorf("Unexpected GATTS name %q", s)
	}
	if s := GAPEvent(200).String(); s != "GAP_EVENT_200" {
		t.Errorf("Unexpected name for unknown GAP event %q", s)
	}
}

func TestPayloads(t *testing.T) {
	if p := StatusPayload(StatusBusy); !bytes.Equal(p, []byte{4, 0, 0, 0}) {
		t.Errorf("Unexpected status payload %x", p)
	}
	if p := RegisterPayload(StatusSuccess, 0x0102); !bytes.Equal(p, []byte{0, 0, 0, 0, 0x02, 0x01}) {
		t.Errorf("Unexpected register payload %x", p)
	}
}

func TestAdvertisingParametersValidate(t *testing.T) {
	good := AdvertisingParameters{IntervalMin: 0x20, IntervalMax: 0x40, ChannelMap: 0x07}
	if err := good.Validate(); err != nil {
		t.Fatalf("Valid parameters rejected: %s", err)
	}
	cases := []AdvertisingParameters{
		{IntervalMin: 0x10, IntervalMax: 0x40, ChannelMap: 0x07},
		{IntervalMin: 0x20, IntervalMax: 0x4001, ChannelMap: 0x07},
		{IntervalMin: 0x40, IntervalMax: 0x20, ChannelMap: 0x07},
		{IntervalMin: 0x20, IntervalMax: 0x40, ChannelMap: 0x00},
		{IntervalMin: 0x20, IntervalMax: 0x40, ChannelMap: 0x0f},
		{IntervalMin: 0x20, IntervalMax: 0x40, ChannelMap: 0x07, Type: 9},
	}
	for i, p := range cases {
		if err := p.Validate(); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}
