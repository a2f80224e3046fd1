package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/peripheral"
	"github.com/periph-ble/ble-command/pkg/stack"
)

var ErrInvalidProfile = errors.New("invalid profile")

// Profile describes a complete bring-up: which applications to register, what to advertise, and
// whether to start advertising.
//
//	device_name: thermometer
//	log_level: info
//	applications: [0x55]
//	advertising:
//	  include_name: true
//	  service_uuid: "1809"
//	  appearance: thermometer
//	scan_response:
//	  manufacturer: acme
//	start_advertising: true
//	parameters:
//	  interval_max: 0x80
type Profile struct {
	DeviceName       string                `yaml:"device_name"`
	MTU              uint16                `yaml:"mtu"`
	LogLevel         string                `yaml:"log_level"`
	CommandTimeout   time.Duration         `yaml:"command_timeout"`
	Applications     []uint16              `yaml:"applications"`
	Advertising      *advertise.Config     `yaml:"advertising"`
	ScanResponse     *advertise.Config     `yaml:"scan_response"`
	StartAdvertising bool                  `yaml:"start_advertising"`
	Parameters       *advertise.Parameters `yaml:"parameters"`
}

// ParseProfile decodes a YAML profile. Omitted advertising parameters take the values of
// advertise.DefaultParameters.
func ParseProfile(r io.Reader) (*Profile, error) {
	profile := Profile{Parameters: advertise.DefaultParameters()}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&profile); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProfile, err)
	}
	if err := profile.validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// LoadProfile reads a profile from filename.
func LoadProfile(filename string) (*Profile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseProfile(bytes.NewReader(data))
}

func (p *Profile) validate() error {
	seen := make(map[uint16]bool)
	for _, appID := range p.Applications {
		if appID > stack.MaxApplicationID {
			return fmt.Errorf("%w: application id 0x%x exceeds 0x%x", ErrInvalidProfile, appID, stack.MaxApplicationID)
		}
		if seen[appID] {
			return fmt.Errorf("%w: application id 0x%x listed twice", ErrInvalidProfile, appID)
		}
		seen[appID] = true
	}
	if p.LogLevel != "" {
		if _, err := log.ParseLevel(p.LogLevel); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidProfile, err)
		}
	}
	if p.CommandTimeout < 0 {
		return fmt.Errorf("%w: negative command timeout", ErrInvalidProfile)
	}
	if p.StartAdvertising {
		if err := p.Parameters.Stack().Validate(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidProfile, err)
		}
	}
	return nil
}

// Apply runs the bring-up sequence on an initialized peripheral: every application is
// registered, then the advertising and scan response payloads are installed and finally
// advertising is started. Apply stops at the first failure.
func (p *Profile) Apply(ctx context.Context, periph *peripheral.Peripheral) error {
	for _, appID := range p.Applications {
		iface, err := periph.RegisterApplication(ctx, peripheral.AppID(appID))
		if err != nil {
			return fmt.Errorf("failed to register application 0x%x: %w", appID, err)
		}
		log.Info("Registered application 0x%x on interface %d", appID, iface)
	}
	if p.Advertising != nil {
		if err := periph.ConfigureAdvertising(ctx, *p.Advertising); err != nil {
			return err
		}
	}
	if p.ScanResponse != nil {
		if err := periph.ConfigureScanResponse(ctx, *p.ScanResponse); err != nil {
			return err
		}
	}
	if p.StartAdvertising {
		if err := periph.StartAdvertising(ctx, p.Parameters); err != nil {
			return err
		}
		log.Info("Advertising started")
	}
	return nil
}
