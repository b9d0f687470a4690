package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a config file.
const MaxConfigFileBytes = 64 * 1024

// SiteConfig is the observer location.
type SiteConfig struct {
	Latitude  float64 `yaml:"latitude"`   // degrees, north positive
	Longitude float64 `yaml:"longitude"`  // degrees, east positive
	UTCOffset float64 `yaml:"utc_offset"` // hours, e.g. -5 for EST
}

// ClockConfig selects where the time of day comes from.
type ClockConfig struct {
	Source    string `yaml:"source"` // fixed | system | ds3231
	Hour      int    `yaml:"hour"`   // fixed source only
	Minute    int    `yaml:"minute"`
	DayOfYear int    `yaml:"day_of_year"`
	I2CBus    string `yaml:"i2c_bus"`  // ds3231 only, "" = first bus
	I2CAddr   uint16 `yaml:"i2c_addr"` // ds3231 only, default 0x68
}

// OrientationConfig selects the panel heading source.
type OrientationConfig struct {
	Source   string  `yaml:"source"`    // simulated | commanded
	Initial  float64 `yaml:"initial"`   // starting heading, degrees
	DriftDeg float64 `yaml:"drift_deg"` // simulated only, added after each cycle
}

// A4988Config holds the azimuth driver wiring (BCM numbers, 0 = not wired).
type A4988Config struct {
	EnablePin   int `yaml:"enable_pin"` // active LOW
	MS1Pin      int `yaml:"ms1_pin"`
	MS2Pin      int `yaml:"ms2_pin"`
	MS3Pin      int `yaml:"ms3_pin"`
	ResetPin    int `yaml:"reset_pin"` // active LOW
	SleepPin    int `yaml:"sleep_pin"` // active LOW
	StepPin     int `yaml:"step_pin"`
	DirPin      int `yaml:"dir_pin"`
	StepsPerRev int `yaml:"steps_per_rev"`
	Microstep   int `yaml:"microstep"`     // 1, 2, 4, 8 or 16
	StepDelayUs int `yaml:"step_delay_us"` // pulse half-period
	WakeDelayMs int `yaml:"wake_delay_ms"`
}

// TB238AConfig holds the 4-phase driver wiring.
type TB238AConfig struct {
	AIN1Pin     int   `yaml:"ain1_pin"`
	AIN2Pin     int   `yaml:"ain2_pin"`
	BIN1Pin     int   `yaml:"bin1_pin"`
	BIN2Pin     int   `yaml:"bin2_pin"`
	PWMAPin     int   `yaml:"pwma_pin"`
	PWMBPin     int   `yaml:"pwmb_pin"`
	StandbyPin  int   `yaml:"standby_pin"` // 0 = tied high
	Power       uint8 `yaml:"power"`       // PWM duty 0-255
	StepDelayMs int   `yaml:"step_delay_ms"`
	CooldownMs  int   `yaml:"cooldown_ms"`
}

// TrackerConfig holds the adjustment loop parameters.
type TrackerConfig struct {
	StepDeg         float64 `yaml:"step_deg"`
	ToleranceDeg    float64 `yaml:"tolerance_deg"`
	MaxIterations   int     `yaml:"max_iterations"` // 0 = derived from step
	SettleDelayMs   int     `yaml:"settle_delay_ms"`
	CycleIntervalMs int     `yaml:"cycle_interval_ms"`
}

// SerialConfig is the optional serial console mirror.
type SerialConfig struct {
	Port string `yaml:"port"` // "" = disabled
	Baud int    `yaml:"baud"`
}

// StoreConfig locates the history database.
type StoreConfig struct {
	Path string `yaml:"path"` // "" = history disabled
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel  int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	GPIOBackend string `yaml:"gpio_backend"` // mock | rpio | gpiocdev | periph
	GPIOChip    string `yaml:"gpio_chip"`    // gpiocdev only, e.g. "gpiochip0"
}

// Config aggregates all application configuration.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Clock       ClockConfig       `yaml:"clock"`
	Orientation OrientationConfig `yaml:"orientation"`
	A4988       A4988Config       `yaml:"a4988"`
	TB238A      TB238AConfig      `yaml:"tb238a"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Serial      SerialConfig      `yaml:"serial"`
	Store       StoreConfig       `yaml:"store"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
}

// Default returns the configuration of the bench setup: Philadelphia on
// 25 February at 10:15 EST, simulated heading, mock GPIO.
func Default() *Config {
	return &Config{
		Site:  SiteConfig{Latitude: 39.9526, Longitude: -75.1652, UTCOffset: -5},
		Clock: ClockConfig{Source: "fixed", Hour: 10, Minute: 15, DayOfYear: 56, I2CAddr: 0x68},
		Orientation: OrientationConfig{
			Source:   "simulated",
			DriftDeg: 5,
		},
		A4988: A4988Config{
			EnablePin: 12, MS1Pin: 11, MS2Pin: 10, MS3Pin: 9,
			ResetPin: 8, SleepPin: 7, StepPin: 6, DirPin: 5,
			StepsPerRev: 200,
			Microstep:   8,
			StepDelayUs: 2000,
			WakeDelayMs: 1,
		},
		TB238A: TB238AConfig{
			AIN1Pin: 17, AIN2Pin: 27, BIN1Pin: 22, BIN2Pin: 23,
			PWMAPin: 18, PWMBPin: 13,
			Power:       255,
			StepDelayMs: 10,
			CooldownMs:  3000,
		},
		Tracker: TrackerConfig{
			StepDeg:         0.9,
			ToleranceDeg:    2,
			SettleDelayMs:   100,
			CycleIntervalMs: 3000,
		},
		Serial:   SerialConfig{Baud: 9600},
		Defaults: DefaultsConfig{GPIOBackend: "mock"},
	}
}

// ValidateConfigPath rejects paths that are not a .yaml file directly
// inside a configs/ directory, or that climb out with "..".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration. Missing fields keep
// the values from Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and fills zero values that have a sensible default.
func (c *Config) Validate() error {
	if !inRange(c.Site.Latitude, -90, 90) {
		return fmt.Errorf("site.latitude must be between -90 and 90, got %.4f", c.Site.Latitude)
	}
	if !inRange(c.Site.Longitude, -180, 180) {
		return fmt.Errorf("site.longitude must be between -180 and 180, got %.4f", c.Site.Longitude)
	}
	if !inRange(c.Site.UTCOffset, -12, 14) {
		return fmt.Errorf("site.utc_offset must be between -12 and 14, got %g", c.Site.UTCOffset)
	}

	switch c.Clock.Source {
	case "fixed":
		if c.Clock.Hour < 0 || c.Clock.Hour > 23 || c.Clock.Minute < 0 || c.Clock.Minute > 59 {
			return fmt.Errorf("clock time %02d:%02d is out of range", c.Clock.Hour, c.Clock.Minute)
		}
		if c.Clock.DayOfYear < 1 || c.Clock.DayOfYear > 366 {
			return fmt.Errorf("clock.day_of_year must be between 1 and 366, got %d", c.Clock.DayOfYear)
		}
	case "system", "ds3231":
	default:
		return fmt.Errorf("clock.source must be fixed, system or ds3231, got %q", c.Clock.Source)
	}
	if c.Clock.I2CAddr == 0 {
		c.Clock.I2CAddr = 0x68
	}

	switch c.Orientation.Source {
	case "simulated", "commanded":
	default:
		return fmt.Errorf("orientation.source must be simulated or commanded, got %q", c.Orientation.Source)
	}
	if !inRange(c.Orientation.Initial, -360, 360) || !inRange(c.Orientation.DriftDeg, -360, 360) {
		return fmt.Errorf("orientation.initial and drift_deg must be between -360 and 360")
	}

	switch c.A4988.Microstep {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("a4988.microstep must be 1, 2, 4, 8 or 16, got %d", c.A4988.Microstep)
	}
	if c.A4988.StepsPerRev <= 0 {
		return fmt.Errorf("a4988.steps_per_rev must be > 0")
	}
	if c.A4988.StepDelayUs <= 0 {
		c.A4988.StepDelayUs = 2000
	}

	if c.TB238A.StepDelayMs <= 0 {
		c.TB238A.StepDelayMs = 10
	}
	if c.TB238A.CooldownMs < 0 {
		return fmt.Errorf("tb238a.cooldown_ms must be >= 0, got %d", c.TB238A.CooldownMs)
	}

	if !(c.Tracker.StepDeg > 0) || math.IsInf(c.Tracker.StepDeg, 0) {
		return fmt.Errorf("tracker.step_deg must be > 0, got %g", c.Tracker.StepDeg)
	}
	if !(c.Tracker.ToleranceDeg > 0) || math.IsInf(c.Tracker.ToleranceDeg, 0) {
		return fmt.Errorf("tracker.tolerance_deg must be > 0, got %g", c.Tracker.ToleranceDeg)
	}
	if c.Tracker.StepDeg >= 2*c.Tracker.ToleranceDeg {
		return fmt.Errorf("tracker.step_deg (%g) must be smaller than twice tracker.tolerance_deg (%g)", c.Tracker.StepDeg, c.Tracker.ToleranceDeg)
	}
	pulses := c.Tracker.StepDeg * float64(c.A4988.StepsPerRev*c.A4988.Microstep) / 360
	if math.Round(pulses) < 1 || math.Abs(pulses-math.Round(pulses)) > 1e-6 {
		return fmt.Errorf("tracker.step_deg (%g) must be a whole number of A4988 microsteps (%g°)",
			c.Tracker.StepDeg, 360/float64(c.A4988.StepsPerRev*c.A4988.Microstep))
	}
	if c.Tracker.MaxIterations < 0 {
		return fmt.Errorf("tracker.max_iterations must be >= 0, got %d", c.Tracker.MaxIterations)
	}
	if c.Tracker.SettleDelayMs < 0 || c.Tracker.CycleIntervalMs < 0 {
		return fmt.Errorf("tracker delays must be >= 0")
	}

	if c.Serial.Baud <= 0 {
		c.Serial.Baud = 9600
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	switch c.Defaults.GPIOBackend {
	case "mock", "rpio", "gpiocdev", "periph":
	case "":
		c.Defaults.GPIOBackend = "mock"
	default:
		return fmt.Errorf("defaults.gpio_backend must be mock, rpio, gpiocdev or periph, got %q", c.Defaults.GPIOBackend)
	}
	return nil
}

// inRange reports whether lo <= x <= hi. NaN is never in range.
func inRange(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

// StepDelay returns the A4988 pulse half-period.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.A4988.StepDelayUs) * time.Microsecond
}

// WakeDelay returns the A4988 settling time after leaving sleep.
func (c *Config) WakeDelay() time.Duration {
	return time.Duration(c.A4988.WakeDelayMs) * time.Millisecond
}

// PhaseDelay returns the delay between TB238A phase steps.
func (c *Config) PhaseDelay() time.Duration {
	return time.Duration(c.TB238A.StepDelayMs) * time.Millisecond
}

// Cooldown returns the TB238A standby time between cycles.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.TB238A.CooldownMs) * time.Millisecond
}

// SettleDelay returns the pause after each tracker step.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Tracker.SettleDelayMs) * time.Millisecond
}

// CycleInterval returns the pause between tracking cycles.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Tracker.CycleIntervalMs) * time.Millisecond
}
