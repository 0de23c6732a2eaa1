package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

const (
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "WEBHELP"

	// SessionStoreMemory keeps session values in process memory.
	SessionStoreMemory = "memory"

	// SessionStorePostgres keeps session values in a postgres table.
	SessionStorePostgres = "postgres"

	// MinSessionSecretLen is the shortest accepted session secret.
	MinSessionSecretLen = 32
)

var (
	// DefaultPort is the default port to expose the help server.
	DefaultPort = 8081

	// DefaultStaticDir is the default directory of help files.
	DefaultStaticDir = "./"

	// DefaultDBTestName is the default name of the test database.
	DefaultDBTestName = "webhelp_test"
)

type Config struct {
	Port            int           `envconfig:"PORT" default:"8081"`                // Port the HTTP server listens on.
	StaticDir       string        `envconfig:"STATIC_DIR" default:"./"`            // StaticDir is the root of the served help files.
	LicenseFile     string        `envconfig:"LICENSE_FILE" default:"licenses.txt"` // LicenseFile holds one valid key per line.
	SessionSecrets  []string      `envconfig:"SESSION_SECRET"`                      // SessionSecrets sign the session cookie. The first signs, all verify.
	SessionStore    string        `envconfig:"SESSION_STORE" default:"memory"`      // SessionStore selects where session values live.
	SessionMaxAge   time.Duration `envconfig:"SESSION_MAX_AGE" default:"24h"`       // SessionMaxAge bounds both the cookie and the stored values.
	CookieName      string        `envconfig:"COOKIE_NAME" default:"webhelp_session"`
	CookieSecure    bool          `envconfig:"COOKIE_SECURE" default:"false"` // CookieSecure restricts the session cookie to HTTPS.
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`      // LogLevel is the level of logging for the application.
	Metrics         bool          `envconfig:"METRICS" default:"false"`       // Metrics exposes /metrics.
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	DB              DBConfig      `envconfig:"DB"`
}

// DBConfig locates the postgres instance backing the postgres session store.
type DBConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"` // Host is the host machine running the postgres instance.
	Port     string `envconfig:"PORT" default:"5432"`      // Port is the port that exposes the db server.
	Name     string `envconfig:"NAME" default:"webhelp"`   // Name is the postgres database name.
	User     string `envconfig:"USER" default:"postgres"`  // User is the postgres user account.
	Password string `envconfig:"PASS"`                     // Password is the password for the User postgres account.
}

func missingEnvErr(envVar string) error {
	return fmt.Errorf("%s not found in environment", envVar)
}

// Load reads the configuration from WEBHELP_* environment variables and
// validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d must be between 1 and 65535", c.Port)
	}

	if c.StaticDir == "" {
		return fmt.Errorf("static directory cannot be empty")
	}

	if c.LicenseFile == "" {
		return fmt.Errorf("license file path cannot be empty")
	}

	if c.CookieName == "" {
		return fmt.Errorf("cookie name cannot be empty")
	}

	if c.SessionMaxAge < time.Second {
		return fmt.Errorf("session max age %s must be at least 1s", c.SessionMaxAge)
	}

	for _, s := range c.SessionSecrets {
		if len(s) < MinSessionSecretLen {
			return fmt.Errorf("session secrets must be at least %d bytes", MinSessionSecretLen)
		}
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStorePostgres:
		if c.DB.Password == "" {
			return missingEnvErr(EnvPrefix + "_DB_PASS")
		}
		// Every instance sharing the table must sign with the same keys.
		if len(c.SessionSecrets) == 0 {
			return missingEnvErr(EnvPrefix + "_SESSION_SECRET")
		}
	default:
		return fmt.Errorf("unsupported session store %q", c.SessionStore)
	}

	return nil
}

// SessionKeyPairs returns the securecookie hash keys in rotation order.
// Block keys are nil: the cookie only carries an opaque session ID, so it is
// signed but not encrypted.
func (c Config) SessionKeyPairs() [][]byte {
	pairs := make([][]byte, 0, len(c.SessionSecrets)*2)
	for _, s := range c.SessionSecrets {
		pairs = append(pairs, []byte(s), nil)
	}
	return pairs
}
