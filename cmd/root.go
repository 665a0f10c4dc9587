package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joyn-gg/discord.http/discordhttp"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = discordhttp.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "discordhttp [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes log level strings ("INFO", "DEBUG", ...)
// into *slog.LevelVar during viper unmarshalling.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("token", "")
	viper.SetDefault("application_id", "")
	viper.SetDefault("public_key", "")
	viper.SetDefault("guild_id", "")
	viper.SetDefault("sync_commands_on_start", false)
	viper.SetDefault("debug_events", false)
	viper.SetDefault("disable_default_get_path", false)
	viper.SetDefault("development", false)

	viper.SetDefault("log_level", discordhttp.DefaultLogLevel.String())
	viper.SetDefault(
		"discordgo_log_level",
		discordhttp.DefaultDiscordgoLogLevel.String(),
	)

	viper.SetDefault("startup_timeout", discordhttp.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", discordhttp.DefaultShutdownTimeout)

	// Server config
	viper.SetDefault("server.listen", discordhttp.DefaultListen)
	viper.SetDefault("server.listen_network", "tcp")
	viper.SetDefault(
		"server.log_level",
		discordhttp.DefaultServerLogLevel.String(),
	)
	viper.SetDefault("server.read_timeout", discordhttp.DefaultReadTimeout)
	viper.SetDefault(
		"server.read_header_timeout",
		discordhttp.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("server.write_timeout", discordhttp.DefaultWriteTimeout)
	viper.SetDefault("server.idle_timeout", discordhttp.DefaultIdleTimeout)

	fatalErr := func(err error) {
		if err != nil {
			log.Fatalf("error: %v", err)
		}
	}

	// Server: SSL
	fatalErr(viper.BindEnv("server.ssl.cert"))
	fatalErr(viper.BindEnv("server.ssl.key"))
	fatalErr(viper.BindEnv("server.ssl.tls_min_version"))

	// Server: CORS
	viper.SetDefault(
		"server.cors.allow_headers",
		discordhttp.DefaultCORSAllowHeaders,
	)
	viper.SetDefault(
		"server.cors.allow_methods",
		discordhttp.DefaultCORSAllowMethods,
	)
	viper.SetDefault(
		"server.cors.expose_headers",
		discordhttp.DefaultCORSExposeHeaders,
	)
	viper.SetDefault("server.cors.allow_origins", []string{})
	viper.SetDefault("server.cors.max_age", discordhttp.DefaultCORSMaxAge)
	viper.SetDefault("server.cors.allow_credentials", false)

	// Storage config
	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.type", discordhttp.DefaultStorageType)
	viper.SetDefault("storage.dsn", discordhttp.DefaultStorageDSN)
	viper.SetDefault(
		"storage.log_level",
		discordhttp.DefaultStorageLogLevel.String(),
	)
	viper.SetDefault(
		"storage.slow_threshold",
		discordhttp.DefaultStorageSlowThreshold,
	)

	// Metrics config
	viper.SetDefault("metrics.enabled", false)

	envPrefix := os.Getenv(discordhttp.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = discordhttp.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"server.cors.allow_headers",
		viper.GetStringSlice("server.cors.allow_headers"),
	)
	viper.Set(
		"server.cors.allow_origins",
		viper.GetStringSlice("server.cors.allow_origins"),
	)
	viper.Set(
		"server.cors.allow_methods",
		viper.GetStringSlice("server.cors.allow_methods"),
	)
	viper.Set(
		"server.cors.expose_headers",
		viper.GetStringSlice("server.cors.expose_headers"),
	)

	for _, key := range []string{
		"log_level",
		"discordgo_log_level",
		"server.log_level",
		"storage.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
