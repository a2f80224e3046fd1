//go:build !linux

package cli

import "flag"

func (c *Config) registerFlagsOsSpecific(_ *flag.FlagSet) {
	// Only BlueZ exposes more than one adapter.
}
