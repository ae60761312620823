// Package cmd provides the reactive command-line interface.
//
// Configuration is read from multiple sources, highest priority first:
//
//  1. Command-line flags (--config, --port, --log-level, ...)
//  2. REACTIVE_CONFIG_FILE: path of the configuration file
//  3. Environment variables following REACTIVE_<SECTION>_<OPTION>, e.g.
//     REACTIVE_SERVER_PORT or REACTIVE_LOG_LEVEL
//  4. The configuration file, .reactive.yml in the working directory
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
)

const envPrefix = "REACTIVE"

var (
	cfgFile string
	output  = formatText
)

var rootCmd = &cobra.Command{
	Use:   "reactive",
	Short: "Observable data stores with live change streams",
	Long: `reactive keeps JSON-like data in observable stores and streams every
change to subscribers.

Stores are declared in .reactive.yml. They can be backed by JSON or YAML
files that are reloaded on change, or persisted in a repository.

Quick Start:
  reactive serve                 Serve stores over HTTP and WebSocket
  reactive watch data.yaml       Print the changes of a file as it is edited
  reactive route /users/42       Match a URL against the configured routes
  reactive translate cart.items  Resolve a message key
  reactive repo list todos       List the records of a collection`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// ExitCode maps a failure to the process exit status: 2 for configuration
// problems, 1 for everything else.
func ExitCode(err error) int {
	if errors.HasType(err, errors.ErrorTypeConfig) {
		return 2
	}
	return 1
}

func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", errors.FormatError(err))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .reactive.yml, can also use REACTIVE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().VarP(&output, "output", "o", "output format (text, json, yaml)")
}

// initConfig points viper at the configuration file and environment. Flags
// are bound here rather than in init so every execution sees a fresh binding.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(envPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".reactive")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the logger described by cfg.Log. The returned function
// closes the log file, if any.
func newLogger(cfg *config.Config, stderr io.Writer) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	loggerConfig := &logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: stderr,
	}
	console := logging.NewLogger(loggerConfig)
	if cfg.Log.Dir == "" {
		return console, func() {}, nil
	}

	file, err := logging.NewFileLogger(loggerConfig, cfg.Log.Dir)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewMultiLogger(console, file), func() { _ = file.Close() }, nil
}
