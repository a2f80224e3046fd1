package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/cli"
)

var testAdvertise = flag.Bool("test-advertise", false, "Also advertise the device name until interrupted")

func main() {
	config, _ := cli.NewConfig(cli.FlagDevice | cli.FlagBackend | cli.FlagTimeout)
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	if config.Backend == "" {
		config.Backend = cli.BackendHCI
	}
	config.Verbose = true
	log.SetLevel(log.LevelDebug)

	log.Info("Bringing up %s backend (adapter '%s')", config.Backend, config.AdapterID)
	periph, err := config.Open()
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			log.Error("Permission denied; grant CAP_NET_ADMIN or run as root")
		} else {
			log.Error("Failed to initialize BLE device: %v", err)
		}
		os.Exit(1)
	}
	defer periph.Close()
	log.Info("BLE stack initialized as '%s'", periph.Config().DeviceName)

	if !*testAdvertise {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := periph.ConfigureAdvertising(ctx, advertise.Config{IncludeName: true, Flags: advertise.FlagGeneralDiscoverable | advertise.FlagBREDRNotSupported}); err != nil {
		log.Error("Failed to configure advertising data: %v", err)
		return
	}
	if err := periph.StartAdvertising(ctx, nil); err != nil {
		log.Error("Failed to start advertising: %v", err)
		return
	}
	log.Info("Advertising until interrupted")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	for {
		select {
		case a := <-periph.Anomalies():
			log.Warning("%s", a)
		case <-signalChan:
			log.Info("Stopping")
			return
		}
	}
}
