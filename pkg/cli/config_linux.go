package cli

import "flag"

func (c *Config) registerFlagsOsSpecific(fs *flag.FlagSet) {
	fs.StringVar(&c.AdapterID, "bt-adapter", "", "ID of the Bluetooth adapter to use. Defaults to $BLE_HCI_DEVICE or hci0.")
}
