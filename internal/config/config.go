// Package config holds the tracker's runtime configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/mount-tracker/ephem"
)

// ErrInvalidConfig wraps malformed configuration values.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultLocation is used when the configured location is unknown.
const DefaultLocation = "Nottingham"

// Location is a named ground station.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
}

// Observer converts the location for propagation.
func (l Location) Observer() ephem.Observer {
	return ephem.Observer{Latitude: l.Latitude, Longitude: l.Longitude, Elevation: l.Elevation}
}

// DefaultLocations returns the built-in station table.
func DefaultLocations() map[string]Location {
	return map[string]Location{
		"Nottingham": {Latitude: 52.95, Longitude: 1.13, Elevation: 80},
		"Bletchley":  {Latitude: 51.97, Longitude: 0.767, Elevation: 80},
	}
}

// Config is everything the tracker needs at startup.
type Config struct {
	// Target is matched against record names. Default: "ISS"
	Target string
	// FallbackID is fetched when Target matches nothing. Default: "25544"
	FallbackID string

	// Location names an entry in Locations. Default: Nottingham
	Location  string
	Locations map[string]Location

	// SerialPort selects the mount device; empty uses stdin/stdout.
	SerialPort string
	// BaudRate defaults to 115200.
	BaudRate int
	// Echo logs every line received from the mount.
	Echo bool
	// ReadTimeout bounds one reply read. Default: 50ms
	ReadTimeout time.Duration

	// StartAzimuth and StartAltitude tell the mount where it is pointing at
	// startup. Defaults: 0 and -90.
	StartAzimuth  float64
	StartAltitude float64

	// TLEDir holds one persisted file per record. Default: "TLE"
	TLEDir string
	// RefreshInterval is the staleness threshold for records. Default: 2h
	RefreshInterval time.Duration
	// RefreshCheckInterval is how often the refresher looks for stale records.
	// Default: 1m
	RefreshCheckInterval time.Duration

	// ControlPeriod is the controller tick period. Default: 1s
	ControlPeriod time.Duration
	// PollInterval is the scheduler sleep between ticks. Default: 10ms
	PollInterval time.Duration
	// MaxSpeed is the mount's fastest azimuth rate in deg/s. Default: 6
	MaxSpeed float64

	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Target:               "ISS",
		FallbackID:           "25544",
		Location:             DefaultLocation,
		Locations:            DefaultLocations(),
		BaudRate:             115200,
		ReadTimeout:          50 * time.Millisecond,
		StartAzimuth:         0,
		StartAltitude:        -90,
		TLEDir:               "TLE",
		RefreshInterval:      2 * time.Hour,
		RefreshCheckInterval: time.Minute,
		ControlPeriod:        time.Second,
		PollInterval:         10 * time.Millisecond,
		MaxSpeed:             6,
	}
}

// ApplyDefaults returns c with empty or non-positive fields replaced by
// defaults. Start angles are taken as given.
func (c Config) ApplyDefaults() Config {
	d := Default()
	if c.Target == "" {
		c.Target = d.Target
	}
	if c.FallbackID == "" {
		c.FallbackID = d.FallbackID
	}
	if c.Location == "" {
		c.Location = d.Location
	}
	if len(c.Locations) == 0 {
		c.Locations = d.Locations
	}
	if c.BaudRate <= 0 {
		c.BaudRate = d.BaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.TLEDir == "" {
		c.TLEDir = d.TLEDir
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.RefreshCheckInterval <= 0 {
		c.RefreshCheckInterval = d.RefreshCheckInterval
	}
	if c.ControlPeriod <= 0 {
		c.ControlPeriod = d.ControlPeriod
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxSpeed <= 0 {
		c.MaxSpeed = d.MaxSpeed
	}
	return c
}

// FromEnv overlays TRACKER_* environment variables on base.
func FromEnv(base Config) (Config, error) {
	c := base
	setString(&c.Target, "TRACKER_TARGET")
	setString(&c.FallbackID, "TRACKER_FALLBACK_ID")
	setString(&c.Location, "TRACKER_LOCATION")
	setString(&c.SerialPort, "TRACKER_SERIAL_PORT")
	setString(&c.TLEDir, "TRACKER_TLE_DIR")
	setString(&c.MetricsAddr, "TRACKER_METRICS_ADDR")

	var errs []error
	errs = append(errs,
		setInt(&c.BaudRate, "TRACKER_BAUD_RATE"),
		setBool(&c.Echo, "TRACKER_ECHO"),
		setFloat(&c.MaxSpeed, "TRACKER_MAX_SPEED"),
		setFloat(&c.StartAzimuth, "TRACKER_START_AZIMUTH"),
		setFloat(&c.StartAltitude, "TRACKER_START_ALTITUDE"),
		setDuration(&c.RefreshInterval, "TRACKER_REFRESH_INTERVAL"),
		setDuration(&c.RefreshCheckInterval, "TRACKER_REFRESH_CHECK_INTERVAL"),
		setDuration(&c.ControlPeriod, "TRACKER_CONTROL_PERIOD"),
	)
	if err := errors.Join(errs...); err != nil {
		return base, err
	}
	return c, nil
}

// Observer resolves the configured location. ok is false when the name is
// unknown and the default location was used instead.
func (c Config) Observer() (obs ephem.Observer, ok bool) {
	if loc, found := c.lookupLocation(c.Location); found {
		return loc.Observer(), true
	}
	if loc, found := c.lookupLocation(DefaultLocation); found {
		return loc.Observer(), false
	}
	return DefaultLocations()[DefaultLocation].Observer(), false
}

// LocationNames returns the known location names, sorted.
func (c Config) LocationNames() []string {
	names := make([]string, 0, len(c.Locations))
	for name := range c.Locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) lookupLocation(name string) (Location, bool) {
	if loc, ok := c.Locations[name]; ok {
		return loc, true
	}
	for k, loc := range c.Locations {
		if strings.EqualFold(k, name) {
			return loc, true
		}
	}
	return Location{}, false
}

// LoadLocations merges a JSON object of named locations from path into c.
// Entries in the file replace built-in entries of the same name.
func (c Config) LoadLocations(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	var extra map[string]Location
	if err := json.Unmarshal(data, &extra); err != nil {
		return c, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	merged := make(map[string]Location, len(c.Locations)+len(extra))
	for k, v := range c.Locations {
		merged[k] = v
	}
	for k, v := range extra {
		if v.Latitude < -90 || v.Latitude > 90 || v.Longitude < -180 || v.Longitude > 180 {
			return c, fmt.Errorf("%w: location %q out of range", ErrInvalidConfig, k)
		}
		merged[k] = v
	}
	c.Locations = merged
	return c, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = b
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = d
	return nil
}
