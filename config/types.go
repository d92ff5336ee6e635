package config

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port" validate:"gt=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// GTFSConfig contains static feed configuration. Exactly one of
// PostgresDSN, StaticPath and StaticURL is used, in that order.
type GTFSConfig struct {
	StaticURL          string `yaml:"staticURL" validate:"omitempty,url"`
	StaticPath         string `yaml:"staticPath"`
	PostgresDSN        string `yaml:"postgresDSN"`
	SnapshotPath       string `yaml:"snapshotPath"`
	Timezone           string `yaml:"timezone" validate:"required"`
	ExpiryGraceMinutes int    `yaml:"expiryGraceMinutes" validate:"gte=0"`
	TimeoutMS          int    `yaml:"timeoutMS" validate:"gte=0"`
}

// HEAConfig contains the TheBus HEA API configuration
type HEAConfig struct {
	BaseURL   string `yaml:"baseURL" validate:"omitempty,url"`
	APIKey    string `yaml:"apiKey"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gte=0"`
}

// GTFSRTConfig contains GTFS-Realtime feed configuration
type GTFSRTConfig struct {
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
	TripUpdatesURL      string `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	TimeoutMS           int    `yaml:"timeoutMS" validate:"gte=0"`
}

// LiveConfig selects the live vehicle source
type LiveConfig struct {
	Source string `yaml:"source" validate:"oneof=hea gtfsrt"`
}

type PollingConfig struct {
	IntervalMS   int `yaml:"intervalMS" validate:"gt=0"`
	StaleAfterMS int `yaml:"staleAfterMS" validate:"gt=0"`
}

type ResolverConfig struct {
	NextDayLookbackMinutes int `yaml:"nextDayLookbackMinutes" validate:"gt=0,lt=1440"`
	SkipWindowSeconds      int `yaml:"skipWindowSeconds" validate:"gte=0"`
}

// StoreConfig enables the SQLite vehicle store when SQLitePath is set
type StoreConfig struct {
	SQLitePath     string `yaml:"sqlitePath"`
	RetentionHours int    `yaml:"retentionHours" validate:"gte=0"`
}

// NATSConfig enables vehicle publishing when URL is set
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server   ServerConfig   `yaml:"server" validate:"required"`
	GTFS     GTFSConfig     `yaml:"gtfs"`
	HEA      HEAConfig      `yaml:"hea"`
	GTFSRT   GTFSRTConfig   `yaml:"gtfsrt"`
	Live     LiveConfig     `yaml:"live"`
	Polling  PollingConfig  `yaml:"polling"`
	Resolver ResolverConfig `yaml:"resolver"`
	Store    StoreConfig    `yaml:"store"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}
