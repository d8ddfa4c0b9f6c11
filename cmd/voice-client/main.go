// ABOUTME: Entry point for the Resonate voice client
// ABOUTME: Loads configuration, applies CLI overrides and runs the client application
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-voice/internal/app"
	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/device"
	"github.com/sirupsen/logrus"
)

var (
	configPath   = flag.String("config", "resonate-voice.yaml", "Configuration file; created with session settings on exit")
	mixerAddr    = flag.String("mixer", "", "Mixer address host:port (skip mDNS)")
	name         = flag.String("name", "", "Client name (default: hostname-voice)")
	inputDevice  = flag.String("input", "", "Input device name")
	outputDevice = flag.String("output", "", "Output device name")
	backend      = flag.String("backend", "", "Audio backend: portaudio or oto")
	listDevices  = flag.Bool("list-devices", false, "List audio devices and exit")
	logFile      = flag.String("log-file", "", "Log file path")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	noTUI        = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	noSave       = flag.Bool("no-save", false, "Do not write session settings on exit")
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func applyFlags(cfg *config.Config) {
	if *mixerAddr != "" {
		cfg.Mixer.Address = *mixerAddr
	}
	if *name != "" {
		cfg.Mixer.ClientName = *name
	}
	if *inputDevice != "" {
		cfg.Audio.InputDevice = *inputDevice
	}
	if *outputDevice != "" {
		cfg.Audio.OutputDevice = *outputDevice
	}
	if *backend != "" {
		cfg.Audio.Backend = *backend
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *noTUI {
		cfg.UI.Enabled = false
	}
}

func printDevices(p device.Provider) error {
	for _, mode := range []device.Mode{device.ModeInput, device.ModeOutput} {
		devices, err := p.Devices(mode)
		if err != nil {
			return err
		}
		fmt.Printf("%s devices:\n", mode)
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf(" %s %s (%d-%d ch, %v Hz)\n", marker, d.Name, d.MinChannels, d.MaxChannels, d.SupportedSampleRates())
		}
	}
	return nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	provider := app.NewProvider(cfg.Audio)
	defer provider.Close()

	if *listDevices {
		if err := printDevices(provider); err != nil {
			log.Fatalf("Failed to list devices: %v", err)
		}
		return
	}

	useTUI := cfg.UI.Enabled
	logCloser, err := app.SetupLogging(cfg.Log, useTUI)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	logrus.WithFields(logrus.Fields{
		"name":    cfg.Mixer.ClientName,
		"backend": cfg.Audio.Backend,
		"config":  *configPath,
	}).Info("Starting Resonate Voice")

	savePath := *configPath
	if *noSave {
		savePath = ""
	}

	a := app.New(app.Config{
		Settings:   cfg,
		ConfigPath: savePath,
		UseTUI:     useTUI,
	}, provider)

	if err := a.Start(); err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-a.Quit():
		logrus.Info("Received quit signal from TUI")
	case sig := <-sigChan:
		logrus.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	if err := a.Stop(); err != nil {
		logrus.WithError(err).Error("Failed to save settings")
	}
	logrus.Info("Voice client stopped")
}
