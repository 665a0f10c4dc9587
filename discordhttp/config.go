//nolint:lll // struct tags can't be split
package discordhttp

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/go-playground/validator/v10"
)

const (
	EnvvarSetEnvPrefix = "DISCORD_HTTP_ENV_PREFIX"
	DefaultEnvPrefix   = "DH"

	// DefaultListen is the default interaction endpoint bind address.
	// Loopback on purpose: the endpoint is expected to sit behind a
	// TLS-terminating proxy unless SSL is configured here.
	DefaultListen        = "127.0.0.1:8080"
	defaultListenNetwork = "tcp"

	DefaultLogLevel          = slog.LevelInfo
	DefaultServerLogLevel    = slog.LevelInfo
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultStorageLogLevel   = slog.LevelInfo

	// DefaultRequestTimeout bounds outbound Discord REST calls.
	DefaultRequestTimeout = 30 * time.Second

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
	DefaultStartupTimeout    = 30 * time.Second
	DefaultShutdownTimeout   = 60 * time.Second

	DefaultTLSMinVersion = tls.VersionTLS12

	DefaultStorageType          = "sqlite"
	DefaultStorageDSN           = "discordhttp.sqlite3"
	DefaultStorageSlowThreshold = 200 * time.Millisecond

	// discordInteractionTokenLifespan is how long Discord keeps an
	// interaction token alive - followup edits after this fail.
	discordInteractionTokenLifespan = 15 * time.Minute

	// maxAutocompleteChoices is Discord's cap on autocomplete suggestions.
	maxAutocompleteChoices = 25

	// discordMaxMessageLength is Discord's message content limit.
	discordMaxMessageLength = 2000

	// maxComponentsPerRow is Discord's cap on components in one action row.
	maxComponentsPerRow = 5
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Cache-Control",
		xRequestIDHeader,
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
		xRequestIDHeader,
	}
	DefaultCORSMaxAge = 12 * time.Hour

	structValidator = newStructValidator()
)

// newStructValidator builds the validator used for config validation,
// reading the same `binding` tags gin uses.
func newStructValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

// Config is the top-level configuration for a [Client].
type Config struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal).
	// Used for REST calls only - command sync, followup edits, fetching
	// the bot user. No gateway connection is ever opened.
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the
	// discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// PublicKey is the hex-encoded ed25519 key used to verify interaction
	// POST requests. In the Discord dev portal for your bot, this is
	// under 'General Information'.
	PublicKey string `yaml:"public_key" mapstructure:"public_key" json:"public_key" binding:"required"`

	// GuildID specifies the guild ID used when syncing slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// SyncCommandsOnStart overwrites the application's commands with the
	// local registry during Run.
	SyncCommandsOnStart bool `yaml:"sync_commands_on_start" mapstructure:"sync_commands_on_start" json:"sync_commands_on_start"`

	// DebugEvents forwards every verified interaction body to the
	// raw-interaction listener before dispatch.
	DebugEvents bool `yaml:"debug_events" mapstructure:"debug_events" json:"debug_events"`

	// DisableDefaultGetPath disables the GET status endpoint at the
	// server root. When disabled, GET requests receive HTTP 405.
	DisableDefaultGetPath bool `yaml:"disable_default_get_path" mapstructure:"disable_default_get_path" json:"disable_default_get_path"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Server configures the HTTP interaction endpoint
	Server *ServerConfig `yaml:"server" mapstructure:"server" json:"server"`

	// Storage configures the optional interaction log database
	Storage *StorageConfig `yaml:"storage" mapstructure:"storage" json:"storage"`

	// Metrics configures the prometheus registry and /metrics endpoint
	Metrics *MetricsConfig `yaml:"metrics" mapstructure:"metrics" json:"metrics"`

	// StartupTimeout bounds Run's initialization (fetching the bot user,
	// syncing commands, opening storage). If exceeded, Run aborts.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After
	// this elapses, remaining connections are force-closed.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Development enables gin debug mode and disables the recovery
	// middleware, so handler panics surface in tests.
	Development bool `yaml:"development" mapstructure:"development" json:"development"`

	HTTPClient *http.Client `log:"[redacted]" json:"-" yaml:"-" mapstructure:"-"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// ServerConfig configures the HTTP server hosting the interaction
// endpoint.
type ServerConfig struct {
	// The address and port on which the server should listen (e.g., "127.0.0.1:8080").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required,hostname_port|filepath"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required,oneof=tcp tcp4 tcp6 unix"`

	// Configuration for SSL/TLS. Optional - without it the server speaks
	// plain HTTP and expects a proxy in front.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The logging level for the interaction server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration, applied to the GET status endpoint
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"min=1s"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout" binding:"min=1s"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"min=1s"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" binding:"min=1s"`
}

// StorageConfig configures the optional gorm-backed interaction log.
type StorageConfig struct {
	// Enabled turns on interaction logging. When false, no database
	// connection is opened at all.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// Type specifies the type of database, either 'sqlite' or 'postgres'
	Type string `yaml:"type" mapstructure:"type" json:"type" binding:"required_if=Enabled true,omitempty,oneof=sqlite postgres"`

	// DSN is the database connection string, or SQLite file path
	DSN string `yaml:"dsn" mapstructure:"dsn" json:"dsn" binding:"required_if=Enabled true"`

	// LogLevel sets the log level for database operations
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// SlowThreshold is the duration threshold for identifying slow database queries
	SlowThreshold time.Duration `yaml:"slow_threshold" mapstructure:"slow_threshold" json:"slow_threshold"`
}

// MetricsConfig configures prometheus metrics.
type MetricsConfig struct {
	// Enabled registers collectors and exposes GET /metrics
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	// Path to an SSL certificate
	Cert string `yaml:"cert" mapstructure:"cert" json:"cert"`

	// Path to an SSL cert key
	Key string `yaml:"key" mapstructure:"key" json:"key"`

	// Minimum TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		MaxAge:           c.MaxAge,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
	}
}

func DefaultCORSConfig() CORSConfig {
	defaultMethods := make([]string, len(DefaultCORSAllowMethods))
	copy(defaultMethods, DefaultCORSAllowMethods)

	defaultHeaders := make([]string, len(DefaultCORSAllowHeaders))
	copy(defaultHeaders, DefaultCORSAllowHeaders)

	defaultExpose := make([]string, len(DefaultCORSExposeHeaders))
	copy(defaultExpose, DefaultCORSExposeHeaders)

	return CORSConfig{
		AllowOrigins:  []string{},
		AllowMethods:  defaultMethods,
		AllowHeaders:  defaultHeaders,
		ExposeHeaders: defaultExpose,
		MaxAge:        DefaultCORSMaxAge,
	}
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	serverLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	storageLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	serverLogLevel.Set(DefaultServerLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	storageLogLevel.Set(DefaultStorageLogLevel)

	return &Config{
		LogLevel:          mainLogLevel,
		DiscordGoLogLevel: discordgoLogLevel,
		StartupTimeout:    DefaultStartupTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		Server: &ServerConfig{
			Listen:        DefaultListen,
			ListenNetwork: defaultListenNetwork,
			SSL: SSLConfig{
				TLSMinVersion: DefaultTLSMinVersion,
			},
			LogLevel:          serverLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS:              DefaultCORSConfig(),
		},
		Storage: &StorageConfig{
			Enabled:       false,
			Type:          DefaultStorageType,
			DSN:           DefaultStorageDSN,
			LogLevel:      storageLogLevel,
			SlowThreshold: DefaultStorageSlowThreshold,
		},
		Metrics: &MetricsConfig{Enabled: false},
	}
}
