// Command alarm-gateway watches contact lines, the panel status line and the
// alarm node serial link, and dispatches alarm events to MQTT and a local
// journal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/config"
	"github.com/sweeney/alarm-gateway/internal/gpio"
	"github.com/sweeney/alarm-gateway/internal/journal"
	"github.com/sweeney/alarm-gateway/internal/logger"
	"github.com/sweeney/alarm-gateway/internal/logic"
	"github.com/sweeney/alarm-gateway/internal/monitor"
	"github.com/sweeney/alarm-gateway/internal/mqtt"
	"github.com/sweeney/alarm-gateway/internal/serialport"
	"github.com/sweeney/alarm-gateway/internal/status"
	"github.com/sweeney/alarm-gateway/internal/web"
)

var (
	configPath string
	logLevel   string
	printOnly  bool

	rootCmd = &cobra.Command{
		Use:          "alarm-gateway",
		Short:        "Detect alarm activations and dispatch them to MQTT",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)

			return run(cmd.Context(), configPath, logLevel, printOnly, sig)
		},
	}
)

func main() {
	defer logger.Sync()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Errorf(context.Background(), "fatal: %v", err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+")")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.Flags().BoolVar(&printOnly, "print-state", false, "print the contact lines once and exit")
}

func run(ctx context.Context, path, level string, printState bool, sig <-chan os.Signal) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level == "" {
		level = cfg.LogLevel
	}
	if lvl, ok := logger.ParseLogLevel(level); ok {
		logger.SetLevel(lvl)
	}

	table, err := cfg.Table()
	if err != nil {
		return err
	}
	contacts := cfg.Inputs.LineContacts()

	reader, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.Inputs.Pins())
	if err != nil {
		return fmt.Errorf("%w: contact lines: %w", alarm.ErrHardwareUnavailable, err)
	}
	defer reader.Close()

	if printState {
		return printContacts(os.Stdout, reader, contacts)
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	publisher, err := mqtt.NewRealPublisher(ctx, mqtt.Options{
		Broker:             cfg.MQTT.Broker,
		ClientID:           cfg.MQTT.ClientID,
		BufferSize:         cfg.MQTT.BufferSize,
		OnConnectionChange: tracker.SetMQTTConnected,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	tracker.WatchOutbox(func() (int, uint64) { return publisher.Queued(), publisher.Dropped() })

	sinks := alarm.MultiSink{publisher}
	var events web.EventLister
	if j, err := journal.Open(cfg.Journal.Path); err != nil {
		logger.ErrorKV(ctx, "journal unavailable, events go to MQTT only", "path", cfg.Journal.Path, "error", err)
	} else {
		defer j.Close()
		sinks = append(sinks, j)
		events = j
	}

	router := alarm.NewRouter(table, sinks)
	tracker.WatchCounts(router.Counts)

	d := &daemon{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		contacts:   monitor.NewContactMonitor(reader, contacts, router, tracker),
		now:        time.Now,
	}

	if cfg.Pulse.On() {
		d.pulse = monitor.NewPulseMonitor(logic.ContactID(cfg.Pulse.Contact), cfg.Pulse.Thresholds(), router, tracker)
		watcher, err := gpio.NewRealEdgeWatcher(cfg.GPIO.Chip, *cfg.Pulse.Pin, d.pulse.HandleEdge)
		if err != nil {
			return fmt.Errorf("%w: status line: %w", alarm.ErrHardwareUnavailable, err)
		}
		defer watcher.Close()
		d.pulse.SetClock(watcher.Now)
	}

	if cfg.Serial.On() {
		port, err := serialport.Open(cfg.Serial.Port, cfg.Serial.Link)
		if err != nil {
			logger.ErrorKV(ctx, "serial monitor disabled",
				"port", cfg.Serial.Port, "error", fmt.Errorf("%w: %w", alarm.ErrTransportUnavailable, err))
			tracker.EnableSerial()
		} else {
			defer port.Close()
			d.serial = monitor.NewSerialMonitor(port, cfg.Serial.Port, cfg.Serial.Resolver(), router, tracker)
		}
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, events)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf(ctx, "http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Infof(ctx, "http status server listening on %s", cfg.HTTPAddr)
	}

	logger.InfoKV(ctx, "started",
		"contacts", len(contacts), "pulse", cfg.Pulse.On(), "serial", d.serial != nil,
		"broker", cfg.MQTT.Broker, "table", table.Len(), "log_level", logger.Level().String())

	poll := time.NewTicker(cfg.Inputs.Poll)
	defer poll.Stop()
	heartbeat := time.NewTicker(cfg.Heartbeat)
	defer heartbeat.Stop()
	t := ticks{contacts: poll.C, heartbeat: heartbeat.C}

	if d.pulse != nil {
		watchdog := time.NewTicker(cfg.Pulse.CheckInterval)
		defer watchdog.Stop()
		t.watchdog = watchdog.C
	}

	return d.run(ctx, sig, t)
}

func statusConfig(cfg *config.Config) status.Config {
	sc := status.Config{
		PollMs:      cfg.Inputs.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	}
	if cfg.Pulse.On() {
		sc.WatchdogMs = cfg.Pulse.CheckInterval.Milliseconds()
	}
	if cfg.Serial.On() {
		sc.SerialPort = cfg.Serial.Port
		sc.SerialMode = cfg.Serial.Mode
	}
	return sc
}

// ticks carries the periodic schedules of the daemon.
type ticks struct {
	contacts  <-chan time.Time
	watchdog  <-chan time.Time
	heartbeat <-chan time.Time
}

// daemon runs the monitors and publishes lifecycle events.
type daemon struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	contacts   *monitor.ContactMonitor
	pulse      *monitor.PulseMonitor
	serial     *monitor.SerialMonitor
	now        func() time.Time
}

// run starts every monitor and blocks until a signal arrives or ctx is done.
// Monitors are stopped before SHUTDOWN is published.
func (d *daemon) run(ctx context.Context, sig <-chan os.Signal, t ticks) error {
	d.publishSystem(ctx, mqtt.EventStartup, "", true)

	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return d.contacts.Run(monCtx, t.contacts) })
	if d.pulse != nil {
		g.Go(func() error { return d.pulse.Run(monCtx, t.watchdog) })
	}
	if d.serial != nil {
		g.Go(func() error {
			// A transport failure ends only this monitor.
			_ = d.serial.Run(monCtx)
			return nil
		})
	}

	reason := waitForStop(ctx, d, sig, t.heartbeat)

	cancel()
	err := g.Wait()

	d.publishSystem(ctx, mqtt.EventShutdown, reason, true)
	return err
}

func waitForStop(ctx context.Context, d *daemon, sig <-chan os.Signal, heartbeat <-chan time.Time) string {
	for {
		select {
		case s := <-sig:
			logger.Infof(ctx, "received %v, shutting down", s)
			return signalName(s)
		case <-ctx.Done():
			return "CANCELLED"
		case <-heartbeat:
			d.publishSystem(ctx, mqtt.EventHeartbeat, "", false)
		}
	}
}

func (d *daemon) publishSystem(ctx context.Context, event, reason string, retained bool) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()

	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		logger.Warnf(ctx, "failed to publish %s event: %v", event, err)
		return
	}
	logger.Debugf(ctx, "published %s event", event)
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

func printContacts(w io.Writer, reader gpio.Reader, contacts []logic.ContactID) error {
	levels, err := monitor.ReadOnce(reader, contacts)
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	for _, id := range contacts {
		state := "idle"
		if levels[id] {
			state = "ACTIVE"
		}
		fmt.Fprintf(w, "contact %s: %s\n", id, state)
	}
	return nil
}
