package tinygo

import "tinygo.org/x/bluetooth"

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return bluetooth.NewAdapter(id), nil
	}
	return bluetooth.DefaultAdapter, nil
}
