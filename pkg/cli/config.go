/*
Package cli facilitates building command-line applications that drive a BLE peripheral. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package) and environment variable equivalents, and a YAML [Profile] describing a complete
bring-up.

# Examples

	import flag

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for the backend, device name, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables

	// Creates the radio stack backend and brings it up. Settings that were not provided by flags
	// or the environment are taken from the profile, if one was configured.
	p, err := config.Open()
	if err != nil {
		panic(err)
	}
	defer p.Close()

	// Registers the profile's applications, installs its advertising payloads and starts
	// advertising.
	if profile := config.Profile(); profile != nil {
		err = profile.Apply(ctx, p)
	}

Use a [Flag] mask to control what [Config] fields are populated. Note that config.Flags must be set
before calling [flag.Parse] or [Config.ReadFromEnvironment]:

	config, err = NewConfig(FlagDevice | FlagBackend) // No profile or timeout options.
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/peripheral"
	"github.com/periph-ble/ble-command/pkg/stack"
	"github.com/periph-ble/ble-command/pkg/stack/goble"
	"github.com/periph-ble/ble-command/pkg/stack/sim"
	"github.com/periph-ble/ble-command/pkg/stack/tinygo"
)

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvBLEDeviceName     = "BLE_DEVICE_NAME"
	EnvBLEMTU            = "BLE_MTU"
	EnvBLEBackend        = "BLE_BACKEND"
	EnvBLEHCIDevice      = "BLE_HCI_DEVICE"
	EnvBLEProfile        = "BLE_PROFILE"
	EnvBLECommandTimeout = "BLE_COMMAND_TIMEOUT"
	EnvBLEVerbose        = "BLE_VERBOSE"
	EnvBLELogLevel       = "BLE_LOG_LEVEL"
)

// DefaultDeviceName is advertised when neither the command line, the environment nor the profile
// provide a name.
const DefaultDeviceName = "ble-peripheral"

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagDevice  Flag = 1 // Enable device name and MTU options.
	FlagBackend Flag = 2 // Enable backend and adapter options.
	FlagProfile Flag = 4 // Enable the profile option.
	FlagTimeout Flag = 8 // Enable the command timeout option.
	FlagAll     Flag = FlagDevice | FlagBackend | FlagProfile | FlagTimeout
)

// Backend names accepted by [BackendName.Set].
const (
	BackendSim    = "sim"
	BackendHCI    = "hci"
	BackendTinyGo = "tinygo"
)

var backendNames = []string{BackendSim, BackendHCI, BackendTinyGo}

var (
	ErrUnknownBackend  = errors.New("unknown backend")
	ErrInvalidAdapter  = errors.New("invalid HCI device")
	ErrNoProfileLoaded = errors.New("no profile configured")
	ErrInvalidMTU      = errors.New("invalid MTU")
)

// BackendName selects the radio stack implementation. It implements flag.Value.
type BackendName string

func (b *BackendName) Set(value string) error {
	name := strings.ToLower(strings.TrimSpace(value))
	for _, known := range backendNames {
		if name == known {
			*b = BackendName(name)
			return nil
		}
	}
	return fmt.Errorf("%w '%s' (must be one of %s)", ErrUnknownBackend, value, strings.Join(backendNames, "|"))
}

func (b *BackendName) String() string {
	return string(*b)
}

// Config fields determine which radio stack is used and how it is brought up.
type Config struct {
	Flags           Flag // Controls which set of environment variables/CLI flags to use.
	DeviceName      string
	MTU             uint
	Backend         BackendName
	AdapterID       string // hciN for the hci backend, a BlueZ adapter for tinygo.
	ProfileFilename string
	CommandTimeout  time.Duration
	LogLevel        string
	Verbose         bool

	profile *Profile
}

func NewConfig(flags Flag) (*Config, error) {
	return &Config{Flags: flags}, nil
}

// RegisterCommandLineFlags adds c's options to the global flag set.
func (c *Config) RegisterCommandLineFlags() {
	c.RegisterFlags(flag.CommandLine)
}

// RegisterFlags adds c's options to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	if c.Flags.isSet(FlagDevice) {
		fs.StringVar(&c.DeviceName, "device-name", "", "Advertised device `name`. Defaults to $BLE_DEVICE_NAME.")
		fs.UintVar(&c.MTU, "mtu", 0, "Local MTU requested during bring-up. Defaults to $BLE_MTU or 500.")
	}
	if c.Flags.isSet(FlagBackend) {
		fs.Var(&c.Backend, "backend", "Radio stack `backend` ("+strings.Join(backendNames, "|")+"). Defaults to $BLE_BACKEND.")
		c.registerFlagsOsSpecific(fs)
	}
	if c.Flags.isSet(FlagProfile) {
		fs.StringVar(&c.ProfileFilename, "profile", "", "Load bring-up profile from YAML `file`. Defaults to $BLE_PROFILE.")
	}
	if c.Flags.isSet(FlagTimeout) {
		fs.DurationVar(&c.CommandTimeout, "command-timeout", 0, "How long to wait for the stack to complete each command. Defaults to $BLE_COMMAND_TIMEOUT.")
	}
	fs.StringVar(&c.LogLevel, "log-level", "", "Log `level` (none|error|warn|info|debug). Defaults to $BLE_LOG_LEVEL.")
	fs.BoolVar(&c.Verbose, "debug", false, "Enable verbose debugging messages")
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if !c.Verbose {
		_, c.Verbose = os.LookupEnv(EnvBLEVerbose)
	}
	if c.LogLevel == "" {
		c.LogLevel = os.Getenv(EnvBLELogLevel)
	}
	c.applyLogLevel("")
	if c.Flags.isSet(FlagDevice) {
		if c.DeviceName == "" {
			c.DeviceName = os.Getenv(EnvBLEDeviceName)
			log.Debug("Set device name to '%s'", c.DeviceName)
		}
		if c.MTU == 0 {
			if mtu, err := strconv.ParseUint(os.Getenv(EnvBLEMTU), 0, 16); err == nil {
				c.MTU = uint(mtu)
				log.Debug("Set MTU to %d", c.MTU)
			}
		}
	}
	if c.Flags.isSet(FlagBackend) {
		if c.Backend == "" {
			if err := c.Backend.Set(os.Getenv(EnvBLEBackend)); err == nil {
				log.Debug("Set backend to '%s'", c.Backend)
			}
		}
		if c.AdapterID == "" {
			c.AdapterID = os.Getenv(EnvBLEHCIDevice)
			log.Debug("Set adapter to '%s'", c.AdapterID)
		}
	}
	if c.Flags.isSet(FlagProfile) {
		if c.ProfileFilename == "" {
			c.ProfileFilename = os.Getenv(EnvBLEProfile)
			log.Debug("Set profile file to '%s'", c.ProfileFilename)
		}
	}
	if c.Flags.isSet(FlagTimeout) {
		if c.CommandTimeout == 0 {
			if timeout, err := time.ParseDuration(os.Getenv(EnvBLECommandTimeout)); err == nil {
				c.CommandTimeout = timeout
				log.Debug("Set command timeout to %s", c.CommandTimeout)
			}
		}
	}
}

// applyLogLevel sets the global log level from c, falling back to fallback (usually the profile's
// level) when c does not name one.
func (c *Config) applyLogLevel(fallback string) {
	if c.Verbose {
		log.SetLevel(log.LevelDebug)
		return
	}
	name := c.LogLevel
	if name == "" {
		name = fallback
	}
	if name == "" {
		return
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		log.Warning("Ignoring log level: %s", err)
		return
	}
	log.SetLevel(level)
}

// Profile returns the profile loaded by [Config.LoadProfile] or [Config.Open], or nil.
func (c *Config) Profile() *Profile {
	return c.profile
}

// LoadProfile reads c.ProfileFilename. It returns ErrNoProfileLoaded if no file is configured.
// The profile is cached after it is first loaded.
func (c *Config) LoadProfile() (*Profile, error) {
	if c.profile != nil {
		return c.profile, nil
	}
	if !c.Flags.isSet(FlagProfile) || c.ProfileFilename == "" {
		return nil, ErrNoProfileLoaded
	}
	log.Debug("Loading profile from %s...", c.ProfileFilename)
	profile, err := LoadProfile(c.ProfileFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	c.profile = profile
	return profile, nil
}

// StackConfig merges c with the profile (if any) and defaults. It fails with ErrInvalidMTU if
// c.MTU does not fit in 16 bits.
func (c *Config) StackConfig() (stack.Config, error) {
	if c.MTU > math.MaxUint16 {
		return stack.Config{}, fmt.Errorf("%w: %d exceeds %d", ErrInvalidMTU, c.MTU, math.MaxUint16)
	}
	cfg := stack.Config{DeviceName: c.DeviceName, MTU: uint16(c.MTU)}
	if c.profile != nil {
		if cfg.DeviceName == "" {
			cfg.DeviceName = c.profile.DeviceName
		}
		if cfg.MTU == 0 {
			cfg.MTU = c.profile.MTU
		}
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = DefaultDeviceName
	}
	if cfg.MTU == 0 {
		cfg.MTU = stack.DefaultMTU
	}
	return cfg, nil
}

func (c *Config) commandTimeout() time.Duration {
	if c.CommandTimeout != 0 {
		return c.CommandTimeout
	}
	if c.profile != nil && c.profile.CommandTimeout != 0 {
		return c.profile.CommandTimeout
	}
	return peripheral.DefaultCommandTimeout
}

// Stack creates the configured backend. The simulator is used if no backend was selected.
func (c *Config) Stack() (stack.Stack, error) {
	switch c.Backend {
	case "", BackendSim:
		log.Debug("Using simulated radio stack")
		return sim.New(), nil
	case BackendHCI:
		id, err := hciDeviceID(c.AdapterID)
		if err != nil {
			return nil, err
		}
		return goble.New(id), nil
	case BackendTinyGo:
		return tinygo.New(c.AdapterID), nil
	}
	return nil, fmt.Errorf("%w '%s'", ErrUnknownBackend, c.Backend)
}

// hciDeviceID accepts "", "1" or "hci1".
func hciDeviceID(adapter string) (int, error) {
	if adapter == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(strings.TrimPrefix(adapter, "hci"))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w '%s'", ErrInvalidAdapter, adapter)
	}
	return id, nil
}

// Open loads the profile (if configured), creates the backend and brings it up.
func (c *Config) Open() (*peripheral.Peripheral, error) {
	if _, err := c.LoadProfile(); err != nil && !errors.Is(err, ErrNoProfileLoaded) {
		return nil, err
	}
	var fallback string
	if c.profile != nil {
		fallback = c.profile.LogLevel
	}
	c.applyLogLevel(fallback)
	cfg, err := c.StackConfig()
	if err != nil {
		return nil, err
	}
	s, err := c.Stack()
	if err != nil {
		return nil, err
	}
	p := peripheral.New(s, peripheral.WithCommandTimeout(c.commandTimeout()))
	log.Info("Bringing up %s backend as '%s'", c.backendName(), cfg.DeviceName)
	if err := p.Init(cfg); err != nil {
		s.Close()
		return nil, err
	}
	return p, nil
}

func (c *Config) backendName() string {
	if c.Backend == "" {
		return BackendSim
	}
	return string(c.Backend)
}
