package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/cli"
	"github.com/periph-ble/ble-command/pkg/peripheral"
	"github.com/periph-ble/ble-command/pkg/stack"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrInvalidInterval = errors.New("invalid advertising interval")
	ErrUnknownCommand  = errors.New("unrecognized command")
	ErrRequiresProfile = errors.New("command requires a profile (-profile or $BLE_PROFILE)")

	advertisingTypes = map[string]stack.AdvertisingType{
		"CONNECTABLE":     stack.AdvertisingConnectable,
		"ADV_IND":         stack.AdvertisingConnectable,
		"SCANNABLE":       stack.AdvertisingScannable,
		"ADV_SCAN_IND":    stack.AdvertisingScannable,
		"NONCONNECTABLE":  stack.AdvertisingNonConnectable,
		"ADV_NONCONN_IND": stack.AdvertisingNonConnectable,
	}
)

// advertisingUnit is the granularity of advertising intervals.
const advertisingUnit = 625 * time.Microsecond

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args map[string]string) error

type Command struct {
	help            string
	requiresProfile bool
	args            []Argument
	optional        []Argument
	handler         Handler
}

// ParseInterval converts a duration such as "20ms" into 0.625 ms advertising units. Bare integers
// are taken to already be in advertising units.
func ParseInterval(s string) (uint16, error) {
	if n, err := strconv.ParseUint(s, 0, 16); err == nil {
		return uint16(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidInterval, err)
	}
	if d%advertisingUnit != 0 {
		return 0, fmt.Errorf("%w: %s is not a multiple of 0.625ms", ErrInvalidInterval, s)
	}
	units := d / advertisingUnit
	if units < stack.AdvertisingIntervalMinAllowed || units > stack.AdvertisingIntervalMaxAllowed {
		return 0, fmt.Errorf("%w: %s outside 20ms-10.24s", ErrInvalidInterval, s)
	}
	return uint16(units), nil
}

// ParseAdvertisingConfig parses a comma-separated list of payload fields, e.g.
// "name,tx-power,uuid=180d,appearance=thermometer,manufacturer=acme".
func ParseAdvertisingConfig(fields string) (advertise.Config, error) {
	var cfg advertise.Config
	for _, field := range strings.Split(fields, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, hasValue := strings.Cut(field, "=")
		key = strings.ToLower(key)
		if hasValue == (key == "name" || key == "tx-power") {
			return cfg, fmt.Errorf("%w: malformed field '%s'", ErrCommandLineArgs, field)
		}
		switch key {
		case "name":
			cfg.IncludeName = true
		case "tx-power":
			cfg.IncludeTxPower = true
		case "uuid":
			cfg.ServiceUUID = value
		case "appearance":
			if err := cfg.Appearance.UnmarshalText([]byte(value)); err != nil {
				return cfg, err
			}
		case "manufacturer":
			cfg.Manufacturer = value
		case "service":
			cfg.Service = value
		case "flags":
			flags, err := strconv.ParseUint(value, 0, 8)
			if err != nil {
				return cfg, fmt.Errorf("%w: flags: %s", ErrCommandLineArgs, err)
			}
			cfg.Flags = uint8(flags)
		case "conn-interval":
			lo, hi, ok := strings.Cut(value, "-")
			if !ok {
				return cfg, fmt.Errorf("%w: conn-interval must be MIN-MAX", ErrCommandLineArgs)
			}
			min, err := strconv.ParseUint(lo, 0, 16)
			if err != nil {
				return cfg, fmt.Errorf("%w: conn-interval: %s", ErrCommandLineArgs, err)
			}
			max, err := strconv.ParseUint(hi, 0, 16)
			if err != nil {
				return cfg, fmt.Errorf("%w: conn-interval: %s", ErrCommandLineArgs, err)
			}
			cfg.MinInterval, cfg.MaxInterval = uint16(min), uint16(max)
		default:
			return cfg, fmt.Errorf("%w: unrecognized field '%s'", ErrCommandLineArgs, key)
		}
	}
	return cfg, nil
}

func execute(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, ok := commands[args[0]]
	if !ok {
		return ErrUnknownCommand
	}
	if info.requiresProfile && config.Profile() == nil {
		return ErrRequiresProfile
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, periph, config, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

const payloadHelp = "Comma-separated fields: name, tx-power, uuid=UUID, appearance=NAME, manufacturer=DATA, service=DATA, flags=N, conn-interval=MIN-MAX"

func configureHandler(scanResponse bool) Handler {
	return func(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args map[string]string) error {
		cfg, err := ParseAdvertisingConfig(args["FIELDS"])
		if err != nil {
			return err
		}
		if scanResponse {
			return periph.ConfigureScanResponse(ctx, cfg)
		}
		return periph.ConfigureAdvertising(ctx, cfg)
	}
}

var commands = map[string]*Command{
	"register-app": &Command{
		help: "Register a GATT server application",
		args: []Argument{
			Argument{name: "APP_ID", help: "Application id (0 to 0x7fff)"},
		},
		handler: func(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args map[string]string) error {
			appID, err := strconv.ParseUint(args["APP_ID"], 0, 16)
			if err != nil || appID > stack.MaxApplicationID {
				return fmt.Errorf("%w: APP_ID must be an integer between 0 and 0x%x", ErrCommandLineArgs, stack.MaxApplicationID)
			}
			iface, err := periph.RegisterApplication(ctx, peripheral.AppID(appID))
			if err != nil {
				return err
			}
			fmt.Printf("Registered application 0x%x on interface %d\n", appID, iface)
			return nil
		},
	},
	"configure-adv": &Command{
		help: "Install the advertising payload",
		optional: []Argument{
			Argument{name: "FIELDS", help: payloadHelp},
		},
		handler: configureHandler(false),
	},
	"configure-scan-rsp": &Command{
		help: "Install the scan response payload",
		optional: []Argument{
			Argument{name: "FIELDS", help: payloadHelp},
		},
		handler: configureHandler(true),
	},
	"start-adv": &Command{
		help: "Start advertising",
		optional: []Argument{
			Argument{name: "MIN", help: "Minimum advertising interval (e.g., 20ms; defaults to 20ms)"},
			Argument{name: "MAX", help: "Maximum advertising interval (e.g., 40ms; defaults to 40ms)"},
			Argument{name: "TYPE", help: "connectable, scannable or nonconnectable"},
		},
		handler: func(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args map[string]string) error {
			params := advertise.DefaultParameters()
			var err error
			if s, ok := args["MIN"]; ok {
				if params.IntervalMin, err = ParseInterval(s); err != nil {
					return err
				}
				if params.IntervalMax < params.IntervalMin {
					params.IntervalMax = params.IntervalMin
				}
			}
			if s, ok := args["MAX"]; ok {
				if params.IntervalMax, err = ParseInterval(s); err != nil {
					return err
				}
			}
			if s, ok := args["TYPE"]; ok {
				t, ok := advertisingTypes[strings.ToUpper(s)]
				if !ok {
					return fmt.Errorf("%w: unrecognized advertising type '%s'", ErrCommandLineArgs, s)
				}
				params.Type = t
			}
			return periph.StartAdvertising(ctx, params)
		},
	},
	"bring-up": &Command{
		help:            "Register applications and start advertising as described by the profile",
		requiresProfile: true,
		handler: func(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args map[string]string) error {
			return config.Profile().Apply(ctx, periph)
		},
	},
	"apps": &Command{
		help: "List registered applications",
		handler: func(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args map[string]string) error {
			apps := periph.Applications()
			ifaces := make([]int, 0, len(apps))
			for iface := range apps {
				ifaces = append(ifaces, int(iface))
			}
			sort.Ints(ifaces)
			for _, iface := range ifaces {
				fmt.Printf("%3d  0x%04x\n", iface, apps[stack.Interface(iface)].ApplicationID())
			}
			return nil
		},
	},
	"diagnostics": &Command{
		help: "Print router counters as JSON",
		handler: func(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args map[string]string) error {
			d := periph.Diagnostics()
			body, err := d.JSON()
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	},
	"anomalies": &Command{
		help: "Print anomalies reported since the last call",
		handler: func(ctx context.Context, periph *peripheral.Peripheral, config *cli.Config, args map[string]string) error {
			for {
				select {
				case a := <-periph.Anomalies():
					fmt.Println(a)
				default:
					return nil
				}
			}
		},
	},
}
