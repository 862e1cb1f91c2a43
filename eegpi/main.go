// Command eegpi acquires 16-channel EEG from two ADS1299 converters and streams
// the samples to a BLE-UART bridge.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/goeeg/pkg/config"
	"github.com/itohio/goeeg/pkg/logging"
)

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated converters and an in-process peripheral")
		intervalFlag = flag.Duration("interval", 0, "Acquisition interval (overrides config)")
		portFlag     = flag.String("port", "", "BLE bridge serial port override (e.g., /dev/ttyS0)")
		averageFlag  = flag.Int("average-samples", -1, "Number of samples to average before classification (0 = disabled, overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Notify.Port = *portFlag
	}
	if *intervalFlag > 0 {
		cfg.Scheduler.Interval = *intervalFlag
	}
	if *averageFlag >= 0 {
		cfg.Classifier.AverageSamples = *averageFlag
	}
	if *mockFlag {
		cfg.Notify.Backend = "memory"
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, logOut := logging.Setup(cfg.Log)
	defer logOut.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, *mockFlag, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		logOut.Close()
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("acquisition failed", "error", err)
		logOut.Close()
		os.Exit(1)
	}
}
