// ABOUTME: Entry point for the development loopback mixer
// ABOUTME: Serves voice clients that hear only their own echo, for testing without a real mixer
package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-voice/internal/app"
	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/pkg/mixer"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "Optional configuration file (mixer section)")
	port       = flag.Int("port", 0, "WebSocket server port (default 8930)")
	name       = flag.String("name", "", "Mixer friendly name")
	logFile    = flag.String("log-file", "loopback-mixer.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	reverbTime = flag.Float64("reverb", 0, "Send an environment with this reverb time in seconds (0 disables)")
	wetLevel   = flag.Float64("wet-level", -6, "Environment reverb wet level in dB")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Fatalf("Failed to load config: %v", err)
		}
		if loaded != nil {
			cfg = loaded
		}
	}

	if *port != 0 {
		cfg.Mixer.Port = *port
	}
	if *name != "" {
		cfg.Mixer.Name = *name
	}
	if *noMDNS {
		cfg.Mixer.Advertise = false
	}
	if *reverbTime > 0 {
		cfg.Mixer.Reverb = true
		cfg.Mixer.ReverbT60 = float32(*reverbTime)
		cfg.Mixer.WetLevel = float32(*wetLevel)
	}
	cfg.Log.File = *logFile
	if *debug {
		cfg.Log.Level = "debug"
	}

	logCloser, err := app.SetupLogging(cfg.Log, false)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	logrus.WithFields(logrus.Fields{
		"name": cfg.Mixer.Name,
		"port": cfg.Mixer.Port,
		"mdns": cfg.Mixer.Advertise,
	}).Info("Starting loopback mixer, press Ctrl-C to stop")

	srv := mixer.New(mixer.Config{
		Port:        cfg.Mixer.Port,
		Name:        cfg.Mixer.Name,
		Path:        cfg.Mixer.Path,
		EnableMDNS:  cfg.Mixer.Advertise,
		Environment: cfg.MixerEnvironment(),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Shutting down")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logrus.Fatalf("Mixer error: %v", err)
	}

	logrus.Info("Mixer stopped")
}
