// Command remoteio runs the RemoteIO device daemon: it binds GPIO references
// to the NodeIoT cloud, relays through peers when offline and serves the
// local monitor.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sweeney/remoteio/internal/anchor"
	"github.com/sweeney/remoteio/internal/clock"
	"github.com/sweeney/remoteio/internal/cloud"
	"github.com/sweeney/remoteio/internal/config"
	"github.com/sweeney/remoteio/internal/device"
	"github.com/sweeney/remoteio/internal/gpio"
	"github.com/sweeney/remoteio/internal/logging"
	"github.com/sweeney/remoteio/internal/metrics"
	"github.com/sweeney/remoteio/internal/mqtt"
	"github.com/sweeney/remoteio/internal/status"
	"github.com/sweeney/remoteio/internal/store"
	"github.com/sweeney/remoteio/internal/stream"
	"github.com/sweeney/remoteio/internal/web"
	"github.com/sweeney/remoteio/internal/wifi"
)

// exitReboot tells the supervisor to start the daemon again.
const exitReboot = 3

func main() {
	configPath := flag.String("config", "/etc/remoteio/config.yaml", "Path to YAML config (empty for defaults)")
	printState := flag.Bool("print-state", false, "Print stored credentials state and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printState {
		if err := printStoredState(os.Stdout, cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	err = run(cfg)
	var rb *device.Reboot
	switch {
	case errors.As(err, &rb):
		os.Exit(exitReboot)
	case err != nil:
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config) error {
	logger := logging.New(cfg.Logging, cfg.Device.Version)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pins, err := gpio.NewRealPins(cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clk := clock.NewReal(cfg.Clock.Servers, logger)
	if err := clk.Sync(); err != nil {
		logger.Warn("initial clock sync failed", "error", err)
	}
	go clk.Run(ctx, cfg.Clock.Resync)

	api := cloud.NewClient(cfg.Cloud.BaseURL, newHTTPClient(cfg.Cloud))
	api.SetPeerPort(cfg.Anchor.PeerPort)

	tracker := status.NewTracker(time.Now(), status.Config{
		CycleMs:    cfg.Timing.Cycle.Milliseconds(),
		DebounceMs: cfg.Timing.Debounce.Milliseconds(),
		CloudURL:   cfg.Cloud.BaseURL,
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
	})
	m := metrics.New()

	var publisher mqtt.Publisher
	if deviceID, ok := mirrorDeviceID(ctx, cfg.MQTT.Broker, st, logger); ok {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			DeviceID: deviceID,
			Buffer:   cfg.MQTT.Buffer,
		}, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher = p
	}

	dev := device.New(cfg, device.Deps{
		Pins:      pins,
		Link:      wifi.NewNMCLI(cfg.WiFi.Interface, logger),
		Clock:     clk,
		Store:     st,
		Cloud:     api,
		Stream:    stream.New(logger),
		Browser:   &anchor.MDNS{Service: cfg.Anchor.Service, Domain: cfg.Anchor.Domain, Timeout: cfg.Anchor.Timeout},
		Publisher: publisher,
		Tracker:   tracker,
		Metrics:   m,
		Logger:    logger,
	})

	srv := web.New(cfg.HTTP.Addr, tracker, dev, m.Handler(), logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	logger.Info("http server listening", "addr", cfg.HTTP.Addr)

	loopErr := dev.Boot(ctx)
	if loopErr == nil {
		if adv, err := anchor.Advertise(dev.Hostname(), cfg.Anchor.Service, cfg.Anchor.Domain, httpPort(cfg.HTTP.Addr)); err != nil {
			logger.Warn("mdns advertisement failed", "error", err)
		} else {
			defer adv.Shutdown()
		}

		ticker := time.NewTicker(cfg.Timing.Cycle)
		defer ticker.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		loopErr = runLoop(ctx, dev, mqttStatus(publisher), tracker, ticker.C, sigCh, logger)
	}

	if errors.Is(loopErr, device.ErrReboot) {
		logger.Warn("rebooting", "reason", loopErr.Error(), "delay", cfg.Device.RebootDelay)
		time.Sleep(cfg.Device.RebootDelay)
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return loopErr
}

// mirrorDeviceID returns the device id for the MQTT mirror topics. The
// mirror is skipped without a broker and while no credentials are stored;
// provisioning always ends in a restart, which brings it up.
func mirrorDeviceID(ctx context.Context, broker string, st store.Store, logger *logging.Logger) (string, bool) {
	if broker == "" {
		return "", false
	}
	creds, err := st.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Info("no credentials stored, mqtt mirror disabled until provisioned")
		return "", false
	case err != nil:
		logger.Error("loading credentials for mqtt mirror failed", "error", err)
		return "", false
	case creds.DeviceID == "":
		logger.Warn("stored credentials have no device id, mqtt mirror disabled")
		return "", false
	}
	return creds.DeviceID, true
}

// cycler is the control loop side of *device.Device.
type cycler interface {
	OnCycle(ctx context.Context) error
	Notify() <-chan struct{}
	Shutdown(reason string)
}

// runLoop is the single control loop. It returns nil after a signal and
// the *device.Reboot when the device asks for a restart.
func runLoop(ctx context.Context, dev cycler, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, tick <-chan time.Time, sig <-chan os.Signal, logger *logging.Logger) error {
	for {
		select {
		case s := <-sig:
			logger.Info("signal received, shutting down", "signal", s.String())
			dev.Shutdown(signalName(s))
			return nil

		case <-ctx.Done():
			dev.Shutdown("CONTEXT_DONE")
			return ctx.Err()

		case <-tick:
		case <-dev.Notify():
		}

		if tracker != nil && mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		if err := dev.OnCycle(ctx); err != nil {
			return err
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func mqttStatus(p mqtt.Publisher) mqtt.ConnectionStatus {
	if cs, ok := p.(mqtt.ConnectionStatus); ok {
		return cs
	}
	return nil
}

func newHTTPClient(cfg config.CloudConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // devices ship without a CA bundle
	}
	return &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}
}

// httpPort extracts the port of a listen address, defaulting to 80.
func httpPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	n, err := strconv.Atoi(port)
	if err != nil || n == 0 {
		return 80
	}
	return n
}

// printStoredState reports the stored credentials without secrets.
func printStoredState(w io.Writer, cfg *config.Config) error {
	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return writeStoredState(w, st)
}

func writeStoredState(w io.Writer, st store.Store) error {
	creds, err := st.Load(context.Background())
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(w, "provisioned: no")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	fmt.Fprintln(w, "provisioned: yes")
	fmt.Fprintf(w, "ssid: %s (authenticated: %t)\n", creds.SSID, creds.SSIDAuth)
	fmt.Fprintf(w, "company: %s\n", creds.CompanyName)
	fmt.Fprintf(w, "device: %s\n", creds.DeviceID)
	fmt.Fprintf(w, "model: %s\n", creds.Model)
	if creds.SettingsTimestamp != "" {
		fmt.Fprintf(w, "settings: %s (saved %s)\n", creds.SettingsTimestamp, creds.SettingsSavedAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "settings: none")
	}
	return nil
}
