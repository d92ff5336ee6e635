package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/theoremus-urban-solutions/transit-tracker/block"
)

// DefaultPaths are tried in order when LoadAppConfig gets no paths.
var DefaultPaths = []string{"config.yml", "./config/config.yml"}

// Defaults returns the configuration used for anything config.yml omits.
func Defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{Port: 16181, AllowedOrigins: []string{"*"}},
		GTFS: GTFSConfig{
			StaticURL: "https://www.thebus.org/transitdata/production/google_transit.zip",
			Timezone:  "Pacific/Honolulu",
			TimeoutMS: 60000,
		},
		HEA:      HEAConfig{BaseURL: "https://api.thebus.org/", TimeoutMS: 10000},
		GTFSRT:   GTFSRTConfig{TimeoutMS: 10000},
		Live:     LiveConfig{Source: "hea"},
		Polling:  PollingConfig{IntervalMS: 7500, StaleAfterMS: 120000},
		Resolver: ResolverConfig{NextDayLookbackMinutes: 50},
		Store:    StoreConfig{RetentionHours: 24},
		NATS:     NATSConfig{SubjectPrefix: "transit"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// LoadAppConfig reads the first existing file of paths (DefaultPaths when
// none are given) over Defaults, applies environment overrides and
// validates the result. Without any config file the defaults and
// environment alone are used.
func LoadAppConfig(paths ...string) (*AppConfig, error) {
	_ = godotenv.Load()

	if len(paths) == 0 {
		paths = DefaultPaths
	}
	cfg := Defaults()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		break
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envOverrides = []struct {
	name string
	dst  func(*AppConfig) *string
}{
	{"HEA_API_KEY", func(c *AppConfig) *string { return &c.HEA.APIKey }},
	{"HEA_BASE_URL", func(c *AppConfig) *string { return &c.HEA.BaseURL }},
	{"GTFS_STATIC_URL", func(c *AppConfig) *string { return &c.GTFS.StaticURL }},
	{"DATABASE_URL", func(c *AppConfig) *string { return &c.GTFS.PostgresDSN }},
	{"NATS_URL", func(c *AppConfig) *string { return &c.NATS.URL }},
	{"SQLITE_PATH", func(c *AppConfig) *string { return &c.Store.SQLitePath }},
	{"LOG_LEVEL", func(c *AppConfig) *string { return &c.Log.Level }},
}

func applyEnv(cfg *AppConfig) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			*o.dst(cfg) = v
		}
	}
}

// Validate checks struct tags and the rules that span sections.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.GTFS.StaticURL == "" && c.GTFS.StaticPath == "" && c.GTFS.PostgresDSN == "" {
		return errors.New("invalid config: gtfs needs staticURL, staticPath or postgresDSN")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Live.Source {
	case "hea":
		if c.HEA.BaseURL == "" {
			return errors.New("invalid config: hea.baseURL is required for the hea source")
		}
	case "gtfsrt":
		if c.GTFSRT.VehiclePositionsURL == "" {
			return errors.New("invalid config: gtfsrt.vehiclePositionsURL is required for the gtfsrt source")
		}
	}
	return nil
}

// Location resolves the feed timezone.
func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.GTFS.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.GTFS.Timezone, err)
	}
	return loc, nil
}

func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalMS) * time.Millisecond
}

func (c *AppConfig) StaleAfter() time.Duration {
	return time.Duration(c.Polling.StaleAfterMS) * time.Millisecond
}

func (c *AppConfig) ExpiryGrace() time.Duration {
	return time.Duration(c.GTFS.ExpiryGraceMinutes) * time.Minute
}

func (c *AppConfig) Retention() time.Duration {
	return time.Duration(c.Store.RetentionHours) * time.Hour
}

// TripResolver builds the trip resolver tunables.
func (c *AppConfig) TripResolver() block.Resolver {
	return block.Resolver{
		NextDayLookback: c.Resolver.NextDayLookbackMinutes * 60,
		SkipWindow:      c.Resolver.SkipWindowSeconds,
	}
}

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func (c *AppConfig) StaticTimeout() time.Duration { return millis(c.GTFS.TimeoutMS) }
func (c *AppConfig) HEATimeout() time.Duration    { return millis(c.HEA.TimeoutMS) }
func (c *AppConfig) GTFSRTTimeout() time.Duration { return millis(c.GTFSRT.TimeoutMS) }
