package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/GoCodeAlone/modserver"
	"github.com/GoCodeAlone/modserver/database"
	"github.com/GoCodeAlone/modserver/feeders"
	"github.com/GoCodeAlone/modserver/httpserver"
)

// EnvPrefix prefixes every environment variable read into ServerOptions.
const EnvPrefix = "MODSERVER"

// DefaultOptionFiles are looked up in the working directory when --config
// is not given.
var DefaultOptionFiles = []string{"modserver.yaml", "modserver.yml", "modserver.json", "modserver.toml"}

// DefaultEnvFile is read for MODSERVER_* variables when it exists and
// --env-file is not given.
const DefaultEnvFile = ".env"

// ServerOptions configures the server process. Values are layered: defaults,
// then the options file, then MODSERVER_* variables from the .env file and
// the environment, then flags.
type ServerOptions struct {
	Dir               string        `yaml:"dir" json:"dir" toml:"dir" env:"DIR"`
	Env               string        `yaml:"env" json:"env" toml:"env" env:"ENV"`
	SettingsFile      string        `yaml:"settingsFile" json:"settingsFile" toml:"settingsFile" env:"SETTINGS_FILE"`
	LogLevel          string        `yaml:"logLevel" json:"logLevel" toml:"logLevel" env:"LOG_LEVEL"`
	LogFormat         string        `yaml:"logFormat" json:"logFormat" toml:"logFormat" env:"LOG_FORMAT"`
	Concurrency       int           `yaml:"concurrency" json:"concurrency" toml:"concurrency" env:"CONCURRENCY"`
	MiddlewareTimeout time.Duration `yaml:"middlewareTimeout" json:"middlewareTimeout" toml:"middlewareTimeout" env:"MIDDLEWARE_TIMEOUT"`

	// Refresh is a cron schedule for periodic reloads. Empty disables it.
	Refresh string `yaml:"refresh" json:"refresh" toml:"refresh" env:"REFRESH"`

	// Watch invalidates the config cache when app files change.
	Watch bool `yaml:"watch" json:"watch" toml:"watch" env:"WATCH"`

	HTTP     httpserver.Config `yaml:"http" json:"http" toml:"http"`
	Database database.Config   `yaml:"database" json:"database" toml:"database"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() ServerOptions {
	return ServerOptions{
		Dir:               ".",
		Env:               modserver.EnvDevelopment,
		SettingsFile:      modserver.DefaultSettingsFile,
		LogLevel:          "info",
		LogFormat:         "text",
		MiddlewareTimeout: modserver.DefaultMiddlewareTimeout,
		HTTP:              httpserver.DefaultConfig(),
	}
}

func addOptionFlags(fs *pflag.FlagSet) {
	defaults := DefaultOptions()
	fs.StringP("dir", "d", defaults.Dir, "app directory")
	fs.String("env", defaults.Env, "environment name")
	fs.String("settings", defaults.SettingsFile, "app settings file, relative to the app directory")
	fs.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", defaults.LogFormat, "log format (text, json)")
	fs.Int("concurrency", 0, "modules or resources initialized at once (0 for one per CPU)")
	fs.Duration("middleware-timeout", defaults.MiddlewareTimeout, "soft time budget of one middleware step")
	fs.String("refresh", "", "cron schedule for periodic config reloads")
	fs.Bool("watch", false, "reload when app files change")
	fs.String("addr", defaults.HTTP.Addr, "HTTP listen address")
	fs.String("admin-key", "", "key required by the admin endpoints")
	fs.String("db", "", "database DSN")
}

// LoadOptions resolves the ServerOptions for cmd.
func LoadOptions(cmd *cobra.Command) (ServerOptions, error) {
	opts := DefaultOptions()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return opts, err
	}
	if path == "" {
		path = findOptionFile()
	}
	if path != "" {
		feeder, err := feeders.ForFile(path)
		if err != nil {
			return opts, err
		}
		if err := feeder.Feed(&opts); err != nil {
			return opts, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return opts, err
	}
	if envFile == "" {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			envFile = DefaultEnvFile
		}
	}
	if envFile != "" {
		if err := feeders.NewDotEnvFeeder(envFile, EnvPrefix, "").Feed(&opts); err != nil {
			return opts, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	if err := feeders.NewAffixedEnvFeeder(EnvPrefix, "").Feed(&opts); err != nil {
		return opts, fmt.Errorf("reading environment: %w", err)
	}

	if err := applyFlags(cmd.Flags(), &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func findOptionFile() string {
	for _, name := range DefaultOptionFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// applyFlags copies explicitly set flags over opts.
func applyFlags(fs *pflag.FlagSet, opts *ServerOptions) error {
	var errs []error
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	str("dir", &opts.Dir)
	str("env", &opts.Env)
	str("settings", &opts.SettingsFile)
	str("log-level", &opts.LogLevel)
	str("log-format", &opts.LogFormat)
	str("refresh", &opts.Refresh)
	str("addr", &opts.HTTP.Addr)
	str("admin-key", &opts.HTTP.AdminKey)
	str("db", &opts.Database.DSN)

	if fs.Changed("concurrency") {
		v, err := fs.GetInt("concurrency")
		errs = append(errs, err)
		opts.Concurrency = v
	}
	if fs.Changed("middleware-timeout") {
		v, err := fs.GetDuration("middleware-timeout")
		errs = append(errs, err)
		opts.MiddlewareTimeout = v
	}
	if fs.Changed("watch") {
		v, err := fs.GetBool("watch")
		errs = append(errs, err)
		opts.Watch = v
	}
	return errors.Join(errs...)
}
