package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/cjeanneret/SunTrack/internal/config"
	"github.com/cjeanneret/SunTrack/internal/debug"
	"github.com/cjeanneret/SunTrack/internal/hw/console"
	"github.com/cjeanneret/SunTrack/internal/hw/gpio"
	"github.com/cjeanneret/SunTrack/internal/hw/orientation"
	"github.com/cjeanneret/SunTrack/internal/hw/rtc"
	"github.com/cjeanneret/SunTrack/internal/hw/stepper"
	"github.com/cjeanneret/SunTrack/internal/logic/solar"
	"github.com/cjeanneret/SunTrack/internal/logic/tracking"
	"github.com/cjeanneret/SunTrack/internal/store"
	"github.com/cjeanneret/SunTrack/internal/web"
)

// options holds the parsed command line.
type options struct {
	configPath  string
	debugLevel  int // -1 = from config
	webPort     int // 0 = no web server
	cycles      int // 0 = forever
	limit       int
	unconverged bool
}

const (
	cmdTrack    = "track"
	cmdSequence = "sequence"
	cmdPosition = "position"
	cmdHistory  = "history"
	cmdPorts    = "ports"
	cmdSetClock = "set-clock"
)

func newApp(o *options) *kingpin.Application {
	app := kingpin.New("suntrack", "Single-axis solar tracker.")
	app.Flag("config", "path to config file").
		Short('c').Default(filepath.Join("configs", "default.yaml")).StringVar(&o.configPath)
	app.Flag("debug", "debug level 0-4, overrides the config").
		Default("-1").IntVar(&o.debugLevel)
	app.Flag("web", "serve the status page on this port (0 = off)").
		Default("0").IntVar(&o.webPort)
	app.Flag("cycles", "number of cycles to run (0 = until interrupted)").
		Default("0").IntVar(&o.cycles)

	app.Command(cmdTrack, "Track the sun with the A4988 azimuth drive.").Default()
	app.Command(cmdSequence, "Run the TB238A 4-phase sequence.")
	app.Command(cmdPosition, "Print the sun position once.")
	history := app.Command(cmdHistory, "Print stored tracking samples.")
	history.Flag("limit", "number of samples").Default("20").IntVar(&o.limit)
	history.Flag("unconverged", "only adjustments that gave up").BoolVar(&o.unconverged)
	app.Command(cmdPorts, "List serial ports.")
	app.Command(cmdSetClock, "Write the host time to the DS3231.")
	return app
}

func main() {
	var o options
	app := newApp(&o)
	cmd, err := app.Parse(os.Args[1:])
	app.FatalIfError(err, "")
	app.FatalIfError(validateOptions(o), "")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cmd == cmdPorts {
		app.FatalIfError(listPorts(os.Stdout), "list ports")
		return
	}

	cfg, err := loadConfig(o)
	app.FatalIfError(err, "load config")

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	closeConsole, err := attachConsole(cfg)
	app.FatalIfError(err, "serial console")
	defer closeConsole()

	debug.Section("Initialization")
	debug.Value("Config path", o.configPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Command", cmd)

	switch cmd {
	case cmdTrack:
		err = runTrack(ctx, cfg, o)
	case cmdSequence:
		err = runSequence(ctx, cfg, o)
	case cmdPosition:
		err = runPosition(os.Stdout, cfg)
	case cmdHistory:
		err = runHistory(ctx, os.Stdout, cfg, o)
	case cmdSetClock:
		err = runSetClock(cfg)
	}
	if errors.Is(err, context.Canceled) {
		debug.Info("Interrupted")
		return
	}
	app.FatalIfError(err, "%s", cmd)
}

func validateOptions(o options) error {
	if o.debugLevel < -1 || o.debugLevel > 4 {
		return fmt.Errorf("--debug must be between 0 and 4, got %d", o.debugLevel)
	}
	if o.webPort < 0 || o.webPort > 65535 {
		return fmt.Errorf("--web port must be 1-65535, got %d", o.webPort)
	}
	if o.cycles < 0 {
		return fmt.Errorf("--cycles must be >= 0, got %d", o.cycles)
	}
	if o.limit < 0 {
		return fmt.Errorf("--limit must be >= 0, got %d", o.limit)
	}
	return nil
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(o options) (*config.Config, error) {
	if err := config.ValidateConfigPath(o.configPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.debugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.debugLevel
	}
	return cfg, nil
}

// attachConsole mirrors debug output to the configured serial port.
func attachConsole(cfg *config.Config) (func(), error) {
	if cfg.Serial.Port == "" {
		return func() {}, nil
	}
	port, err := console.Open(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		return func() {}, err
	}
	debug.SetOutput(io.MultiWriter(os.Stdout, port))
	debug.Value("Serial console", cfg.Serial.Port)
	return func() {
		debug.SetOutput(os.Stdout)
		port.Close()
	}, nil
}

func site(cfg *config.Config) solar.Site {
	return solar.Site{
		Latitude:  cfg.Site.Latitude,
		Longitude: cfg.Site.Longitude,
		UTCOffset: cfg.Site.UTCOffset,
	}
}

func newClock(cfg *config.Config) (rtc.Source, func() error, error) {
	return rtc.New(rtc.Options{
		Source: cfg.Clock.Source,
		Fix: solar.TimeFix{
			Hour:      cfg.Clock.Hour,
			Minute:    cfg.Clock.Minute,
			DayOfYear: cfg.Clock.DayOfYear,
		},
		UTCOffset: cfg.Site.UTCOffset,
		I2CBus:    cfg.Clock.I2CBus,
		I2CAddr:   cfg.Clock.I2CAddr,
	})
}

func newGPIO(cfg *config.Config) (gpio.Driver, error) {
	debug.Value("GPIO backend", cfg.Defaults.GPIOBackend)
	return gpio.NewDriver(cfg.Defaults.GPIOBackend, cfg.Defaults.GPIOChip)
}

func newA4988(g gpio.Driver, cfg *config.Config) (*stepper.A4988, error) {
	debug.PrintStruct("A4988 config", cfg.A4988)
	return stepper.NewA4988(g, stepper.A4988Config{
		EnablePin:   cfg.A4988.EnablePin,
		MS1Pin:      cfg.A4988.MS1Pin,
		MS2Pin:      cfg.A4988.MS2Pin,
		MS3Pin:      cfg.A4988.MS3Pin,
		ResetPin:    cfg.A4988.ResetPin,
		SleepPin:    cfg.A4988.SleepPin,
		StepPin:     cfg.A4988.StepPin,
		DirPin:      cfg.A4988.DirPin,
		StepsPerRev: cfg.A4988.StepsPerRev,
		Microstep:   stepper.Microstep(cfg.A4988.Microstep),
		StepDelay:   cfg.StepDelay(),
		WakeDelay:   cfg.WakeDelay(),
	})
}

func newTB238A(g gpio.Driver, cfg *config.Config) (*stepper.TB238A, error) {
	debug.PrintStruct("TB238A config", cfg.TB238A)
	return stepper.NewTB238A(g, stepper.TB238AConfig{
		AIN1Pin:    cfg.TB238A.AIN1Pin,
		AIN2Pin:    cfg.TB238A.AIN2Pin,
		BIN1Pin:    cfg.TB238A.BIN1Pin,
		BIN2Pin:    cfg.TB238A.BIN2Pin,
		PWMAPin:    cfg.TB238A.PWMAPin,
		PWMBPin:    cfg.TB238A.PWMBPin,
		StandbyPin: cfg.TB238A.StandbyPin,
		Power:      cfg.TB238A.Power,
		StepDelay:  cfg.PhaseDelay(),
		Cooldown:   cfg.Cooldown(),
	})
}

// runTrack runs the tracking loop, and the web server when --web is set.
func runTrack(ctx context.Context, cfg *config.Config, o options) error {
	debug.Step(1, "Initializing GPIO driver")
	drv, err := newGPIO(cfg)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer closeLogged("GPIO driver", drv.Close)

	debug.Step(2, "Initializing A4988 driver")
	motor, err := newA4988(drv, cfg)
	if err != nil {
		return fmt.Errorf("init A4988: %w", err)
	}
	tracker, err := tracking.NewTracker(motor, tracking.Config{
		StepDeg:       cfg.Tracker.StepDeg,
		Tolerance:     cfg.Tracker.ToleranceDeg,
		MaxIterations: cfg.Tracker.MaxIterations,
		SettleDelay:   cfg.SettleDelay(),
	})
	if err != nil {
		return err
	}

	debug.Step(3, "Initializing clock and orientation")
	clock, closeClock, err := newClock(cfg)
	if err != nil {
		return fmt.Errorf("init clock: %w", err)
	}
	defer closeLogged("clock", closeClock)
	sensor, err := orientation.New(cfg.Orientation.Source, cfg.Orientation.Initial, cfg.Orientation.DriftDeg)
	if err != nil {
		return err
	}
	debug.Value("Clock source", cfg.Clock.Source)
	debug.Value("Orientation source", cfg.Orientation.Source)

	loopCfg := tracking.LoopConfig{
		Site:     site(cfg),
		Clock:    clock,
		Sensor:   sensor,
		Tracker:  tracker,
		Interval: cfg.CycleInterval(),
	}

	var history *store.Store
	if cfg.Store.Path != "" {
		debug.Step(4, "Opening history store")
		history, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer closeLogged("history store", history.Close)
		loopCfg.Recorder = history
		debug.Value("History", cfg.Store.Path)
	}

	debug.Summary("Sun Tracker Initialized")

	if o.webPort == 0 {
		return tracking.NewLoop(loopCfg).Run(ctx, o.cycles)
	}

	broadcaster := web.NewStatusBroadcaster()
	debug.AddHook(web.BroadcastHook(broadcaster))
	loopCfg.OnCycle = func(rep tracking.Report) {
		broadcaster.BroadcastData("cycle", cycleSummary(rep), rep)
	}
	loop := tracking.NewLoop(loopCfg)

	staticFS, err := web.StaticFS()
	if err != nil {
		return err
	}
	handlers := web.NewHandlers(broadcaster, loop, nil, loopCfg.Site, clock, staticFS)
	if history != nil {
		handlers.History = history
	}
	srv := web.NewServer(fmt.Sprintf(":%d", o.webPort), handlers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopErr := make(chan error, 1)
	go func() {
		err := loop.Run(ctx, o.cycles)
		if err != nil && !errors.Is(err, context.Canceled) {
			debug.Error(fmt.Errorf("tracking loop: %w", err))
			cancel()
		}
		loopErr <- err
	}()

	if err := srv.Run(ctx); err != nil {
		cancel()
		<-loopErr
		return fmt.Errorf("web server: %w", err)
	}
	cancel()
	if err := <-loopErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func cycleSummary(rep tracking.Report) string {
	if rep.Error != "" {
		return "Cycle failed: " + rep.Error
	}
	return fmt.Sprintf("Heading %.2f, azimuth %.2f, %d steps", rep.State.Orientation, rep.Angles.Azimuth, rep.Result.Iterations)
}

// runSequence runs the TB238A sequencer.
func runSequence(ctx context.Context, cfg *config.Config, o options) error {
	drv, err := newGPIO(cfg)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer closeLogged("GPIO driver", drv.Close)

	seq, err := newTB238A(drv, cfg)
	if err != nil {
		return fmt.Errorf("init TB238A: %w", err)
	}
	debug.Summary("TB238A Sequencer")
	return seq.Run(ctx, o.cycles)
}

// runPosition prints the sun position for the configured site and clock.
func runPosition(w io.Writer, cfg *config.Config) error {
	clock, closeClock, err := newClock(cfg)
	if err != nil {
		return err
	}
	defer closeLogged("clock", closeClock)

	fix, err := clock.Now()
	if err != nil {
		return err
	}
	return printPosition(w, site(cfg), fix)
}

func printPosition(w io.Writer, s solar.Site, fix solar.TimeFix) error {
	a, err := solar.Calculate(s, fix)
	if err != nil && !errors.Is(err, solar.ErrDegenerateAzimuth) {
		return err
	}
	fmt.Fprintf(w, "Time: %02d:%02d day %d (UTC%+g)\n", fix.Hour, fix.Minute, fix.DayOfYear, s.UTCOffset)
	fmt.Fprintf(w, "Solar Elevation Angle: %.2f\n", a.Elevation)
	if err != nil {
		fmt.Fprintln(w, "Solar Azimuth Angle: undefined")
	} else {
		fmt.Fprintf(w, "Solar Azimuth Angle: %.2f\n", a.Azimuth)
	}
	if debug.IsEnabled(debug.LevelVerbose) {
		debug.Value("Declination", a.Declination)
		debug.Value("Time correction", a.TimeCorrection)
		debug.Value("Hour angle", a.HourAngle)
		debug.Value("Zenith", a.Zenith)
	}
	return nil
}

// runHistory prints stored samples, newest first.
func runHistory(ctx context.Context, w io.Writer, cfg *config.Config, o options) error {
	if cfg.Store.Path == "" {
		return errors.New("store.path is not configured")
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer closeLogged("history store", s.Close)
	return printHistory(ctx, w, s, o)
}

func printHistory(ctx context.Context, w io.Writer, s *store.Store, o options) error {
	var opts []store.QueryOption
	if o.unconverged {
		opts = append(opts, store.Unconverged)
	}
	samples, err := s.Recent(ctx, o.limit, opts...)
	if err != nil {
		return err
	}
	total, err := s.Count(ctx, opts...)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tTAKEN\tSEA\tAZ\tHEADING\tMOTOR\tSTEPS\tOK\t")
	for _, smp := range samples {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%t\t\n",
			smp.ID, smp.TakenAt.Local().Format(time.DateTime),
			smp.Elevation, smp.Azimuth, smp.Orientation, smp.MotorAngle,
			smp.Iterations, smp.Converged)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d samples\n", len(samples), total)
	return nil
}

func listPorts(w io.Writer) error {
	ports, err := console.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

// runSetClock writes the host time to the DS3231 and clears its
// oscillator-stop flag.
func runSetClock(cfg *config.Config) error {
	d, bus, err := rtc.OpenDS3231(cfg.Clock.I2CBus, cfg.Clock.I2CAddr, cfg.Site.UTCOffset)
	if err != nil {
		return err
	}
	defer closeLogged("I2C bus", bus.Close)

	now := time.Now()
	if err := d.Set(now); err != nil {
		return err
	}
	debug.Info("DS3231 set to %s", now.Format(time.RFC3339))
	return nil
}

func closeLogged(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		debug.Error(fmt.Errorf("closing %s: %w", name, err))
	}
}
